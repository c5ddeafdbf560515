package postgres

import (
	"context"

	"github.com/yoockh/basketvoice/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ConversationRepo stores archived exchanges, one row per speaker.
type ConversationRepo interface {
	// InsertExchange writes the rows of one exchange atomically. Rows whose id
	// already exists are skipped, so a redelivered exchange is a no-op.
	InsertExchange(ctx context.Context, rows []models.ConversationLog) (inserted int64, err error)
	ListBySession(ctx context.Context, userID, sessionID string, limit int) ([]models.ConversationLog, error)
}

type conversationRepo struct {
	db *gorm.DB
}

func NewConversationRepo(db *gorm.DB) ConversationRepo {
	return &conversationRepo{db: db}
}

func (r *conversationRepo) InsertExchange(ctx context.Context, rows []models.ConversationLog) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	var n int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoNothing: true,
		}).Create(&rows)
		n = res.RowsAffected
		return res.Error
	})
	return n, err
}

// ListBySession returns a session's rows oldest first.
func (r *conversationRepo) ListBySession(ctx context.Context, userID, sessionID string, limit int) ([]models.ConversationLog, error) {
	if limit <= 0 {
		limit = 50
	}

	var rows []models.ConversationLog
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND session_id = ?", userID, sessionID).
		Order("timestamp ASC").
		Order("role DESC"). // "user" before "assistant" on equal timestamps
		Limit(limit).
		Find(&rows).Error
	return rows, err
}
