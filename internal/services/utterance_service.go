package services

import (
	"context"
	"time"

	"github.com/yoockh/basketvoice/internal/models"
	mongorepo "github.com/yoockh/basketvoice/internal/repositories/mongo"
	"github.com/yoockh/basketvoice/internal/utils"
)

// UtteranceService records the outcome of each utterance.
type UtteranceService interface {
	Record(ctx context.Context, u *models.UtteranceLog) error
	ListBySession(ctx context.Context, sessionID string, limit int64) ([]models.UtteranceLog, error)
}

type utteranceService struct {
	utterances mongorepo.UtteranceRepository
	ttl        time.Duration
}

func NewUtteranceService(utterances mongorepo.UtteranceRepository, ttl time.Duration) UtteranceService {
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &utteranceService{utterances: utterances, ttl: ttl}
}

func (s *utteranceService) Record(ctx context.Context, u *models.UtteranceLog) error {
	const op = "UtteranceService.Record"

	if u == nil || u.SessionID == "" || u.Sequence <= 0 || u.Outcome == "" {
		return utils.E(utils.CodeInvalidArgument, op, "session_id, sequence (>0), and outcome are required", nil)
	}

	if u.Timestamp.IsZero() {
		u.Timestamp = time.Now().UTC()
	}
	u.ExpiresAt = u.Timestamp.Add(s.ttl)

	if err := s.utterances.Insert(ctx, u); err != nil {
		return utils.E(utils.CodeInternal, op, "failed to insert utterance log", err)
	}
	return nil
}

func (s *utteranceService) ListBySession(ctx context.Context, sessionID string, limit int64) ([]models.UtteranceLog, error) {
	const op = "UtteranceService.ListBySession"

	if sessionID == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "session_id is required", nil)
	}
	out, err := s.utterances.ListBySession(ctx, sessionID, limit)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to list utterance logs", err)
	}
	return out, nil
}
