package repositories

import (
	"context"
	"sync"
	"time"

	"github.com/yoockh/basketvoice/internal/models"
)

// StoredRateLimit is a device's persisted rate-limit entries. Missing
// entries have HasLast or HasDaily false.
type StoredRateLimit struct {
	LastRequestAt time.Time
	HasLast       bool
	Daily         models.DailyWindow
	HasDaily      bool
}

// DecideFunc looks at the stored entries and returns what to store next.
// save=false leaves storage untouched. It may run more than once per
// Reserve, so it must not have side effects.
type DecideFunc func(cur StoredRateLimit) (next models.RateLimitState, save bool)

// RateLimitRepository persists the two rate-limit entries of a device.
// Missing entries read as ok=false without error.
type RateLimitRepository interface {
	GetLastRequest(ctx context.Context, deviceID string) (t time.Time, ok bool, err error)
	GetDaily(ctx context.Context, deviceID string) (w models.DailyWindow, ok bool, err error)

	// Reserve reads both entries, calls decide and writes its result as one
	// atomic step against every other writer of the same device.
	Reserve(ctx context.Context, deviceID string, decide DecideFunc) error
	Delete(ctx context.Context, deviceID string) error
}

type memoryRateLimitRepo struct {
	mu    sync.Mutex
	last  map[string]time.Time
	daily map[string]models.DailyWindow
}

// NewMemoryRateLimitRepo keeps state in process memory only.
func NewMemoryRateLimitRepo() RateLimitRepository {
	return &memoryRateLimitRepo{
		last:  make(map[string]time.Time),
		daily: make(map[string]models.DailyWindow),
	}
}

func (r *memoryRateLimitRepo) GetLastRequest(_ context.Context, deviceID string) (time.Time, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.last[deviceID]
	return t, ok, nil
}

func (r *memoryRateLimitRepo) GetDaily(_ context.Context, deviceID string) (models.DailyWindow, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.daily[deviceID]
	return w, ok, nil
}

func (r *memoryRateLimitRepo) Reserve(_ context.Context, deviceID string, decide DecideFunc) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var cur StoredRateLimit
	cur.LastRequestAt, cur.HasLast = r.last[deviceID]
	cur.Daily, cur.HasDaily = r.daily[deviceID]

	next, save := decide(cur)
	if save {
		r.last[deviceID] = next.LastRequestAt
		r.daily[deviceID] = next.Daily
	}
	return nil
}

func (r *memoryRateLimitRepo) Delete(_ context.Context, deviceID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.last, deviceID)
	delete(r.daily, deviceID)
	return nil
}
