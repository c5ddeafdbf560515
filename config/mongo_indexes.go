package config

import (
	"context"
	"errors"
	"os"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoDatabase returns the configured database (MONGO_DB, default "basketvoice").
func MongoDatabase() (*mongo.Database, error) {
	if MongoClient == nil {
		return nil, errors.New("MongoClient is nil; call InitMongo() first")
	}
	dbName := os.Getenv("MONGO_DB")
	if dbName == "" {
		dbName = "basketvoice"
	}
	return MongoClient.Database(dbName), nil
}

func EnsureMongoIndexes() error {
	db, err := MongoDatabase()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// utterance_logs indexes
	utterances := db.Collection("utterance_logs")
	_, err = utterances.Indexes().CreateMany(ctx, []mongo.IndexModel{
		// 1) TTL index: expire at ExpiresAt (must be Date)
		{
			Keys: bson.D{{Key: "expires_at", Value: 1}},
			Options: options.Index().
				SetName("ttl_expires_at").
				SetExpireAfterSeconds(0),
		},
		// 2) one row per utterance sequence within a session
		{
			Keys: bson.D{{Key: "session_id", Value: 1}, {Key: "sequence", Value: 1}},
			Options: options.Index().
				SetName("uniq_session_sequence").
				SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "outcome", Value: 1}, {Key: "timestamp", Value: -1}},
			Options: options.Index().SetName("by_outcome_ts"),
		},
	})
	if err != nil {
		return err
	}

	sessions := db.Collection("assistant_sessions")
	_, err = sessions.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "session_id", Value: 1}},
			Options: options.Index().
				SetName("uniq_session_id").
				SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "device_id", Value: 1}, {Key: "created_at", Value: -1}},
			Options: options.Index().SetName("by_device_created"),
		},
	})
	return err
}
