package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/yoockh/basketvoice/internal/models"
	"github.com/yoockh/basketvoice/internal/repositories"
)

const (
	keyLast  = "last_request_at"
	keyDate  = "daily_date"
	keyCount = "daily_count"
)

type rateLimitRepo struct {
	db *sql.DB
	mu sync.Mutex
}

// NewRateLimitRepo keeps rate-limit entries in a local rate_limits table.
func NewRateLimitRepo(db *sql.DB) (repositories.RateLimitRepository, error) {
	r := &rateLimitRepo{db: db}
	if err := r.initSchema(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *rateLimitRepo) initSchema() error {
	_, err := r.db.Exec(`
		CREATE TABLE IF NOT EXISTS rate_limits (
			device_id TEXT NOT NULL,
			key TEXT NOT NULL,
			value TEXT NOT NULL,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (device_id, key)
		)
	`)
	if err != nil {
		return fmt.Errorf("create rate_limits table: %w", err)
	}
	return nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func upsert(ctx context.Context, ex execer, deviceID, key, value string) error {
	_, err := ex.ExecContext(ctx, `
		INSERT INTO rate_limits (device_id, key, value, updated_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(device_id, key) DO UPDATE SET
			value = excluded.value,
			updated_at = CURRENT_TIMESTAMP
	`, deviceID, key, value)
	return err
}

func get(ctx context.Context, q querier, deviceID, key string) (string, bool, error) {
	var v string
	err := q.QueryRowContext(ctx,
		`SELECT value FROM rate_limits WHERE device_id = ? AND key = ?`, deviceID, key,
	).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func readLast(ctx context.Context, q querier, deviceID string) (time.Time, bool, error) {
	v, ok, err := get(ctx, q, deviceID, keyLast)
	if err != nil || !ok {
		return time.Time{}, false, err
	}
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}, false, err
	}
	return time.UnixMilli(ms), true, nil
}

func readDaily(ctx context.Context, q querier, deviceID string) (models.DailyWindow, bool, error) {
	var w models.DailyWindow
	date, ok, err := get(ctx, q, deviceID, keyDate)
	if err != nil || !ok {
		return w, false, err
	}
	count, ok, err := get(ctx, q, deviceID, keyCount)
	if err != nil || !ok {
		return w, false, err
	}
	n, err := strconv.Atoi(count)
	if err != nil {
		return w, false, err
	}
	return models.DailyWindow{Date: date, Count: n}, true, nil
}

func (r *rateLimitRepo) GetLastRequest(ctx context.Context, deviceID string) (time.Time, bool, error) {
	return readLast(ctx, r.db, deviceID)
}

func (r *rateLimitRepo) GetDaily(ctx context.Context, deviceID string) (models.DailyWindow, bool, error) {
	return readDaily(ctx, r.db, deviceID)
}

func (r *rateLimitRepo) Reserve(ctx context.Context, deviceID string, decide repositories.DecideFunc) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.inTx(ctx, func(tx *sql.Tx) error {
		var (
			cur repositories.StoredRateLimit
			err error
		)
		if cur.LastRequestAt, cur.HasLast, err = readLast(ctx, tx, deviceID); err != nil {
			return err
		}
		if cur.Daily, cur.HasDaily, err = readDaily(ctx, tx, deviceID); err != nil {
			return err
		}

		next, save := decide(cur)
		if !save {
			return nil
		}
		if err := upsert(ctx, tx, deviceID, keyLast, strconv.FormatInt(next.LastRequestAt.UnixMilli(), 10)); err != nil {
			return err
		}
		if err := upsert(ctx, tx, deviceID, keyDate, next.Daily.Date); err != nil {
			return err
		}
		return upsert(ctx, tx, deviceID, keyCount, strconv.Itoa(next.Daily.Count))
	})
}

func (r *rateLimitRepo) Delete(ctx context.Context, deviceID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, err := r.db.ExecContext(ctx, `DELETE FROM rate_limits WHERE device_id = ?`, deviceID)
	return err
}

func (r *rateLimitRepo) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}
