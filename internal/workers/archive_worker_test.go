package workers

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/yoockh/basketvoice/internal/logger"
	"github.com/yoockh/basketvoice/internal/models"
	"github.com/yoockh/basketvoice/internal/utils"
)

type fakeConversations struct {
	archived []models.ExchangeRecord
	err      error
}

func (f *fakeConversations) Archive(ctx context.Context, rec models.ExchangeRecord) ([]models.ConversationLog, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.archived = append(f.archived, rec)
	return []models.ConversationLog{{SessionID: rec.SessionID}, {SessionID: rec.SessionID}}, nil
}

func (f *fakeConversations) ListBySession(ctx context.Context, userID, sessionID string, limit int) ([]models.ConversationLog, error) {
	return nil, nil
}

func payload(t *testing.T, rec models.ExchangeRecord) map[string]any {
	t.Helper()
	b, err := json.Marshal(rec)
	if err != nil {
		t.Fatal(err)
	}
	return map[string]any{"session_id": rec.SessionID, "payload": string(b)}
}

func TestArchiveWorker_Handle(t *testing.T) {
	rec := models.ExchangeRecord{
		SessionID: "s-1",
		DeviceID:  "dev-1",
		UserID:    "u-1",
		User:      "what's on my list",
		Assistant: "Milk and eggs.",
		Source:    "primary",
		At:        time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC),
	}

	cases := []struct {
		name    string
		values  func(t *testing.T) map[string]any
		err     error
		wantAck bool
		wantN   int
	}{
		{"archived", func(t *testing.T) map[string]any { return payload(t, rec) }, nil, true, 1},
		{"missing payload", func(t *testing.T) map[string]any { return map[string]any{} }, nil, true, 0},
		{"bad json", func(t *testing.T) map[string]any { return map[string]any{"payload": "{"} }, nil, true, 0},
		{"incomplete exchange", func(t *testing.T) map[string]any { return payload(t, rec) },
			utils.E(utils.CodeInvalidArgument, "ConversationService.Archive", "empty text", nil), true, 0},
		{"database down", func(t *testing.T) map[string]any { return payload(t, rec) },
			errors.New("connection refused"), false, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			conv := &fakeConversations{err: tc.err}
			p := &ArchiveWorkerPool{Conversations: conv, Logger: logger.Discard()}

			if got := p.handle(context.Background(), "1-0", tc.values(t)); got != tc.wantAck {
				t.Fatalf("ack = %v, want %v", got, tc.wantAck)
			}
			if len(conv.archived) != tc.wantN {
				t.Fatalf("archived %d, want %d", len(conv.archived), tc.wantN)
			}
			if tc.wantN == 1 && conv.archived[0].Assistant != rec.Assistant {
				t.Fatalf("record = %+v", conv.archived[0])
			}
		})
	}
}

func TestArchiveWorker_StartRequiresDeps(t *testing.T) {
	if err := (&ArchiveWorkerPool{}).Start(context.Background()); err == nil {
		t.Fatalf("expected error without redis")
	}
}
