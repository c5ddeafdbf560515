package mongo

import (
	"context"
	"time"

	"github.com/yoockh/basketvoice/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type UtteranceRepository interface {
	Insert(ctx context.Context, u *models.UtteranceLog) error
	ListBySession(ctx context.Context, sessionID string, limit int64) ([]models.UtteranceLog, error)
}

type utteranceRepo struct {
	col *mongo.Collection
}

func NewUtteranceRepo(db *mongo.Database) UtteranceRepository {
	return &utteranceRepo{col: db.Collection("utterance_logs")}
}

func (r *utteranceRepo) Insert(ctx context.Context, u *models.UtteranceLog) error {
	if u.Timestamp.IsZero() {
		u.Timestamp = time.Now().UTC()
	}
	_, err := r.col.InsertOne(ctx, u)
	return err
}

func (r *utteranceRepo) ListBySession(ctx context.Context, sessionID string, limit int64) ([]models.UtteranceLog, error) {
	if limit <= 0 {
		limit = 200
	}

	cur, err := r.col.Find(ctx,
		bson.M{"session_id": sessionID},
		options.Find().
			SetSort(bson.D{{Key: "sequence", Value: 1}}).
			SetLimit(limit),
	)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []models.UtteranceLog
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}
