package mongo

import (
	"context"
	"errors"
	"time"

	"github.com/yoockh/basketvoice/internal/models"
	"github.com/yoockh/basketvoice/internal/utils"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type SessionRepository interface {
	Create(ctx context.Context, s *models.AssistantSession) error
	GetBySessionID(ctx context.Context, sessionID string) (*models.AssistantSession, error)
	Close(ctx context.Context, sessionID string, closedAt time.Time, durationSeconds int64) error
	IncUtterances(ctx context.Context, sessionID string) error
	ListByDevice(ctx context.Context, deviceID string, limit int64) ([]models.AssistantSession, error)
}

type sessionRepo struct {
	col *mongo.Collection
}

func NewSessionRepo(db *mongo.Database) SessionRepository {
	return &sessionRepo{col: db.Collection("assistant_sessions")}
}

func (r *sessionRepo) Create(ctx context.Context, s *models.AssistantSession) error {
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
	}
	if s.Status == "" {
		s.Status = models.SessionStatusActive
	}
	_, err := r.col.InsertOne(ctx, s)
	return err
}

func (r *sessionRepo) GetBySessionID(ctx context.Context, sessionID string) (*models.AssistantSession, error) {
	var s models.AssistantSession
	err := r.col.FindOne(ctx, bson.M{"session_id": sessionID}).Decode(&s)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, utils.ErrNotFound
	}
	return &s, err
}

func (r *sessionRepo) Close(ctx context.Context, sessionID string, closedAt time.Time, durationSeconds int64) error {
	_, err := r.col.UpdateOne(ctx,
		bson.M{"session_id": sessionID, "status": models.SessionStatusActive},
		bson.M{"$set": bson.M{
			"status":           models.SessionStatusClosed,
			"closed_at":        closedAt.UTC(),
			"duration_seconds": durationSeconds,
		}},
	)
	return err
}

func (r *sessionRepo) IncUtterances(ctx context.Context, sessionID string) error {
	_, err := r.col.UpdateOne(ctx,
		bson.M{"session_id": sessionID},
		bson.M{"$inc": bson.M{"utterance_count": 1}},
	)
	return err
}

func (r *sessionRepo) ListByDevice(ctx context.Context, deviceID string, limit int64) ([]models.AssistantSession, error) {
	if limit <= 0 {
		limit = 20
	}
	cur, err := r.col.Find(ctx,
		bson.M{"device_id": deviceID},
		options.Find().
			SetSort(bson.D{{Key: "created_at", Value: -1}}).
			SetLimit(limit),
	)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []models.AssistantSession
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}
