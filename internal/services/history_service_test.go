package services

import (
	"fmt"
	"testing"

	"github.com/yoockh/basketvoice/internal/models"
)

func TestHistoryStore_EvictsOldestFirst(t *testing.T) {
	h := NewHistoryStore(12)
	for i := 1; i <= 13; i++ {
		h.Append(models.ConversationTurn{Role: models.RoleUser, Text: fmt.Sprint(i)})
	}

	got := h.Snapshot()
	if len(got) != 12 {
		t.Fatalf("len = %d, want 12", len(got))
	}
	for i, turn := range got {
		if want := fmt.Sprint(i + 2); turn.Text != want {
			t.Fatalf("entry %d = %q, want %q", i, turn.Text, want)
		}
	}
}

func TestHistoryStore_ExchangesStayPaired(t *testing.T) {
	h := NewHistoryStore(12)
	for i := 0; i < 10; i++ {
		h.AppendExchange(fmt.Sprintf("q%d", i), fmt.Sprintf("a%d", i))
	}

	got := h.Snapshot()
	if len(got) != 12 {
		t.Fatalf("len = %d, want 12", len(got))
	}
	if got[0].Role != models.RoleUser || got[0].Text != "q4" {
		t.Fatalf("first = %+v, want user q4", got[0])
	}
	for i := 0; i < len(got); i += 2 {
		if got[i].Role != models.RoleUser || got[i+1].Role != models.RoleAssistant {
			t.Fatalf("pair at %d out of order: %+v %+v", i, got[i], got[i+1])
		}
	}
}

func TestHistoryStore_SnapshotIsIsolated(t *testing.T) {
	h := NewHistoryStore(4)
	h.AppendExchange("hi", "hello")

	snap := h.Snapshot()
	h.AppendExchange("more", "sure")
	snap[0].Text = "changed"

	if len(snap) != 2 {
		t.Fatalf("snapshot grew to %d", len(snap))
	}
	if h.Snapshot()[0].Text != "hi" {
		t.Fatalf("store was mutated through snapshot")
	}
}

func TestHistoryStore_Reset(t *testing.T) {
	h := NewHistoryStore(0)
	h.AppendExchange("a", "b")
	h.Reset()
	if h.Len() != 0 || len(h.Snapshot()) != 0 {
		t.Fatalf("expected empty store after reset")
	}
}
