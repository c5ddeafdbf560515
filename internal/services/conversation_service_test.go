package services

import (
	"context"
	"testing"
	"time"

	"github.com/yoockh/basketvoice/internal/models"
	"github.com/yoockh/basketvoice/internal/utils"
)

type memConversationRepo struct {
	rows map[string]models.ConversationLog
}

func (m *memConversationRepo) InsertExchange(ctx context.Context, rows []models.ConversationLog) (int64, error) {
	var n int64
	for _, r := range rows {
		if _, ok := m.rows[r.ID]; ok {
			continue
		}
		m.rows[r.ID] = r
		n++
	}
	return n, nil
}

func (m *memConversationRepo) ListBySession(ctx context.Context, userID, sessionID string, limit int) ([]models.ConversationLog, error) {
	return nil, nil
}

func TestConversationService_ArchiveIsIdempotent(t *testing.T) {
	repo := &memConversationRepo{rows: map[string]models.ConversationLog{}}
	svc := NewConversationService(repo)
	rec := models.ExchangeRecord{
		ID:        "ex-1",
		SessionID: "s-1",
		UserID:    "u-1",
		User:      "add eggs",
		Assistant: "Added eggs to Weekend.",
		ToolNames: []string{"add_list_item"},
		At:        time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC),
	}

	first, err := svc.Archive(context.Background(), rec)
	if err != nil {
		t.Fatalf("archive: %v", err)
	}
	if _, err := svc.Archive(context.Background(), rec); err != nil {
		t.Fatalf("replay: %v", err)
	}
	if len(repo.rows) != 2 {
		t.Fatalf("rows = %d, want 2 after replay", len(repo.rows))
	}
	if first[0].Role != "user" || first[1].Role != "assistant" || !first[0].Timestamp.Before(first[1].Timestamp) {
		t.Fatalf("rows out of order: %+v", first)
	}
	if len(first[1].ToolNames) != 1 || len(first[0].ToolNames) != 0 {
		t.Fatalf("tool names on wrong row")
	}
}

func TestConversationService_ArchiveRejectsIncomplete(t *testing.T) {
	svc := NewConversationService(&memConversationRepo{rows: map[string]models.ConversationLog{}})
	_, err := svc.Archive(context.Background(), models.ExchangeRecord{SessionID: "s-1", UserID: "u-1", User: "hi"})
	if !utils.IsCode(err, utils.CodeInvalidArgument) {
		t.Fatalf("err = %v", err)
	}
}
