package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/yoockh/basketvoice/config"
	"github.com/yoockh/basketvoice/internal/models"
	"github.com/yoockh/basketvoice/internal/repositories"
)

func newTestRepo(t *testing.T) *rateLimitRepo {
	t.Helper()
	db, err := config.OpenSQLite(filepath.Join(t.TempDir(), "limits.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	repo, err := NewRateLimitRepo(db)
	if err != nil {
		t.Fatalf("repo: %v", err)
	}
	return repo.(*rateLimitRepo)
}

func TestRateLimitRepo_MissingEntries(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	if _, ok, err := r.GetLastRequest(ctx, "dev-1"); err != nil || ok {
		t.Fatalf("last: ok=%v err=%v", ok, err)
	}
	if _, ok, err := r.GetDaily(ctx, "dev-1"); err != nil || ok {
		t.Fatalf("daily: ok=%v err=%v", ok, err)
	}
}

func TestRateLimitRepo_ReserveAndDelete(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	at := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

	put := func(st models.RateLimitState) {
		t.Helper()
		err := r.Reserve(ctx, "dev-1", func(repositories.StoredRateLimit) (models.RateLimitState, bool) {
			return st, true
		})
		if err != nil {
			t.Fatalf("reserve: %v", err)
		}
	}
	put(models.RateLimitState{LastRequestAt: at, Daily: models.DailyWindow{Date: "2026-03-14", Count: 3}})

	var seen repositories.StoredRateLimit
	err := r.Reserve(ctx, "dev-1", func(cur repositories.StoredRateLimit) (models.RateLimitState, bool) {
		seen = cur
		cur.Daily.Count++
		return models.RateLimitState{LastRequestAt: cur.LastRequestAt, Daily: cur.Daily}, true
	})
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if !seen.HasLast || !seen.HasDaily || !seen.LastRequestAt.Equal(at) || seen.Daily.Count != 3 {
		t.Fatalf("decide saw %+v", seen)
	}

	last, ok, err := r.GetLastRequest(ctx, "dev-1")
	if err != nil || !ok || !last.Equal(at) {
		t.Fatalf("last = %v ok=%v err=%v", last, ok, err)
	}
	w, ok, err := r.GetDaily(ctx, "dev-1")
	if err != nil || !ok || w.Count != 4 || w.Date != "2026-03-14" {
		t.Fatalf("daily = %+v ok=%v err=%v", w, ok, err)
	}

	// a declined reservation writes nothing
	_ = r.Reserve(ctx, "dev-1", func(repositories.StoredRateLimit) (models.RateLimitState, bool) {
		return models.RateLimitState{}, false
	})
	if w, _, _ := r.GetDaily(ctx, "dev-1"); w.Count != 4 {
		t.Fatalf("declined reserve changed count to %d", w.Count)
	}

	// other devices are untouched
	if _, ok, _ := r.GetDaily(ctx, "dev-2"); ok {
		t.Fatalf("dev-2 should have no entry")
	}

	if err := r.Delete(ctx, "dev-1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok, _ := r.GetLastRequest(ctx, "dev-1"); ok {
		t.Fatalf("entry survived delete")
	}
}
