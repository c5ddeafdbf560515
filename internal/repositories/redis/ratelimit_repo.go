package redis

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/yoockh/basketvoice/internal/models"
	"github.com/yoockh/basketvoice/internal/repositories"
)

// a day window is useless after two days
const dailyTTL = 48 * time.Hour

// reserveAttempts bounds optimistic retries when another node writes the
// same device between WATCH and EXEC.
const reserveAttempts = 8

type rateLimitRepo struct {
	rdb *redis.Client
}

// NewRateLimitRepo stores two keys per device:
// ratelimit:{device}:last (unix millis) and ratelimit:{device}:daily (JSON).
func NewRateLimitRepo(rdb *redis.Client) repositories.RateLimitRepository {
	return &rateLimitRepo{rdb: rdb}
}

func lastKey(deviceID string) string  { return "ratelimit:" + deviceID + ":last" }
func dailyKey(deviceID string) string { return "ratelimit:" + deviceID + ":daily" }

// getter is satisfied by both *redis.Client and *redis.Tx.
type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func readLast(ctx context.Context, g getter, key string) (time.Time, bool, error) {
	s, err := g.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}, false, err
	}
	return time.UnixMilli(ms), true, nil
}

func readDaily(ctx context.Context, g getter, key string) (models.DailyWindow, bool, error) {
	var w models.DailyWindow
	s, err := g.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return w, false, nil
	}
	if err != nil {
		return w, false, err
	}
	if err := json.Unmarshal([]byte(s), &w); err != nil {
		return w, false, err
	}
	return w, true, nil
}

func (r *rateLimitRepo) GetLastRequest(ctx context.Context, deviceID string) (time.Time, bool, error) {
	return readLast(ctx, r.rdb, lastKey(deviceID))
}

func (r *rateLimitRepo) GetDaily(ctx context.Context, deviceID string) (models.DailyWindow, bool, error) {
	return readDaily(ctx, r.rdb, dailyKey(deviceID))
}

// Reserve reads and writes inside one WATCH on both keys. If another writer
// touches either key before EXEC, the transaction is dropped and the whole
// read-decide-write runs again on the fresh values.
func (r *rateLimitRepo) Reserve(ctx context.Context, deviceID string, decide repositories.DecideFunc) error {
	lk, dk := lastKey(deviceID), dailyKey(deviceID)

	txf := func(tx *redis.Tx) error {
		var (
			cur repositories.StoredRateLimit
			err error
		)
		if cur.LastRequestAt, cur.HasLast, err = readLast(ctx, tx, lk); err != nil {
			return err
		}
		if cur.Daily, cur.HasDaily, err = readDaily(ctx, tx, dk); err != nil {
			return err
		}

		next, save := decide(cur)
		if !save {
			return nil
		}
		daily, err := json.Marshal(next.Daily)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, lk, strconv.FormatInt(next.LastRequestAt.UnixMilli(), 10), 0)
			pipe.Set(ctx, dk, daily, dailyTTL)
			return nil
		})
		return err
	}

	var err error
	for i := 0; i < reserveAttempts; i++ {
		err = r.rdb.Watch(ctx, txf, lk, dk)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
	}
	return err
}

func (r *rateLimitRepo) Delete(ctx context.Context, deviceID string) error {
	return r.rdb.Del(ctx, lastKey(deviceID), dailyKey(deviceID)).Err()
}
