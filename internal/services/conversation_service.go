package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/yoockh/basketvoice/internal/models"
	pgrepo "github.com/yoockh/basketvoice/internal/repositories/postgres"
	"github.com/yoockh/basketvoice/internal/utils"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/datatypes"
)

// ConversationService archives completed exchanges.
type ConversationService interface {
	Archive(ctx context.Context, rec models.ExchangeRecord) ([]models.ConversationLog, error)
	ListBySession(ctx context.Context, userID, sessionID string, limit int) ([]models.ConversationLog, error)
}

type conversationService struct {
	convos pgrepo.ConversationRepo
}

func NewConversationService(convos pgrepo.ConversationRepo) ConversationService {
	return &conversationService{convos: convos}
}

func (s *conversationService) Archive(ctx context.Context, rec models.ExchangeRecord) ([]models.ConversationLog, error) {
	const op = "ConversationService.Archive"

	if rec.UserID == "" || rec.SessionID == "" || rec.User == "" || rec.Assistant == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "user_id, session_id, user and assistant text are required", nil)
	}

	md, err := json.Marshal(map[string]any{
		"exchange_id": rec.ID,
		"source":      rec.Source,
		"screen":      rec.Screen,
	})
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to encode metadata", err)
	}

	exchangeID := rec.ID
	if exchangeID == "" {
		exchangeID = uuid.NewString()
	}
	at := rec.At.UTC()
	rows := []models.ConversationLog{
		{
			ID:        rowID(exchangeID, models.RoleUser),
			UserID:    rec.UserID,
			DeviceID:  rec.DeviceID,
			SessionID: rec.SessionID,
			Role:      string(models.RoleUser),
			Content:   rec.User,
			Timestamp: at,
			Metadata:  datatypes.JSON(md),
		},
		{
			ID:        rowID(exchangeID, models.RoleAssistant),
			UserID:    rec.UserID,
			DeviceID:  rec.DeviceID,
			SessionID: rec.SessionID,
			Role:      string(models.RoleAssistant),
			Content:   rec.Assistant,
			ToolNames: pq.StringArray(rec.ToolNames),
			// keep user before assistant when ordering by timestamp
			Timestamp: at.Add(time.Microsecond),
			Metadata:  datatypes.JSON(md),
		},
	}

	if _, err := s.convos.InsertExchange(ctx, rows); err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to insert conversation logs", err)
	}
	return rows, nil
}

// rowID derives a row id from the exchange so replays collide.
func rowID(exchangeID string, role models.Role) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(exchangeID+"/"+string(role))).String()
}

func (s *conversationService) ListBySession(ctx context.Context, userID, sessionID string, limit int) ([]models.ConversationLog, error) {
	const op = "ConversationService.ListBySession"

	if userID == "" || sessionID == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "user_id and session_id are required", nil)
	}

	rows, err := s.convos.ListBySession(ctx, userID, sessionID, limit)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to list conversations", err)
	}
	return rows, nil
}
