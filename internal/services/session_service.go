package services

import (
	"context"
	"errors"
	"time"

	"github.com/yoockh/basketvoice/internal/models"
	mongorepo "github.com/yoockh/basketvoice/internal/repositories/mongo"
	"github.com/yoockh/basketvoice/internal/utils"
)

// SessionService keeps the audit trail of opened assistant sessions.
type SessionService interface {
	Start(ctx context.Context, sessionID, deviceID, userID, locale string) (*models.AssistantSession, error)
	Get(ctx context.Context, sessionID string) (*models.AssistantSession, error)
	End(ctx context.Context, sessionID string) (*models.AssistantSession, error)
	CountUtterance(ctx context.Context, sessionID string) error
	ListByDevice(ctx context.Context, deviceID string, limit int64) ([]models.AssistantSession, error)
}

type sessionService struct {
	sessions mongorepo.SessionRepository
	now      func() time.Time
}

func NewSessionService(sessions mongorepo.SessionRepository) SessionService {
	return &sessionService{sessions: sessions, now: time.Now}
}

func (s *sessionService) Start(ctx context.Context, sessionID, deviceID, userID, locale string) (*models.AssistantSession, error) {
	const op = "SessionService.Start"

	if sessionID == "" || deviceID == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "session_id and device_id are required", nil)
	}

	session := &models.AssistantSession{
		SessionID: sessionID,
		DeviceID:  deviceID,
		UserID:    userID,
		Locale:    locale,
		Status:    models.SessionStatusActive,
		CreatedAt: s.now().UTC(),
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to create session", err)
	}
	return session, nil
}

func (s *sessionService) Get(ctx context.Context, sessionID string) (*models.AssistantSession, error) {
	const op = "SessionService.Get"

	if sessionID == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "session_id is required", nil)
	}

	out, err := s.sessions.GetBySessionID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			return nil, utils.E(utils.CodeNotFound, op, "session not found", err)
		}
		return nil, utils.E(utils.CodeInternal, op, "failed to get session", err)
	}
	return out, nil
}

func (s *sessionService) End(ctx context.Context, sessionID string) (*models.AssistantSession, error) {
	const op = "SessionService.End"

	ss, err := s.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if ss.Status == models.SessionStatusClosed {
		return ss, nil
	}

	now := s.now().UTC()
	dur := int64(now.Sub(ss.CreatedAt).Seconds())
	if dur < 0 {
		dur = 0
	}

	if err := s.sessions.Close(ctx, sessionID, now, dur); err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to close session", err)
	}

	ss.Status = models.SessionStatusClosed
	ss.ClosedAt = &now
	ss.DurationSeconds = dur
	return ss, nil
}

func (s *sessionService) CountUtterance(ctx context.Context, sessionID string) error {
	const op = "SessionService.CountUtterance"

	if sessionID == "" {
		return utils.E(utils.CodeInvalidArgument, op, "session_id is required", nil)
	}
	if err := s.sessions.IncUtterances(ctx, sessionID); err != nil {
		return utils.E(utils.CodeInternal, op, "failed to count utterance", err)
	}
	return nil
}

func (s *sessionService) ListByDevice(ctx context.Context, deviceID string, limit int64) ([]models.AssistantSession, error) {
	const op = "SessionService.ListByDevice"

	if deviceID == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "device_id is required", nil)
	}
	out, err := s.sessions.ListByDevice(ctx, deviceID, limit)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to list sessions", err)
	}
	return out, nil
}
