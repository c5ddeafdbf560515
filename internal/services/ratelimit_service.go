package services

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/yoockh/basketvoice/internal/models"
	"github.com/yoockh/basketvoice/internal/repositories"
	"github.com/yoockh/basketvoice/internal/utils"
)

type Decision struct {
	Allowed bool
	Reason  string // utils.ReasonTooSoon | utils.ReasonQuotaExhausted
}

// RateLimiter enforces a per-request cooldown and a daily quota per device.
type RateLimiter interface {
	CheckAndReserve(ctx context.Context, deviceID string) (Decision, error)
	Status(ctx context.Context, deviceID string) (*models.RateLimitStatus, error)
	Reset(ctx context.Context, deviceID string) error
}

type RateLimitOptions struct {
	Cooldown   time.Duration
	DailyLimit int
	Location   *time.Location
	Now        func() time.Time
}

type rateLimiter struct {
	repo repositories.RateLimitRepository
	opts RateLimitOptions
	log  *logrus.Logger

	// serializes callers in this process; Reserve covers other nodes
	mu sync.Mutex
}

func NewRateLimiter(repo repositories.RateLimitRepository, opts RateLimitOptions, log *logrus.Logger) RateLimiter {
	if opts.Cooldown <= 0 {
		opts.Cooldown = 6 * time.Second
	}
	if opts.DailyLimit <= 0 {
		opts.DailyLimit = 200
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if log == nil {
		log = logrus.New()
	}
	return &rateLimiter{repo: repo, opts: opts, log: log}
}

func (r *rateLimiter) day(t time.Time) string {
	return t.In(r.opts.Location).Format("2006-01-02")
}

// CheckAndReserve denies with RATE_LIMITED when the cooldown has not elapsed
// or today's quota is spent. Storage failures allow the request.
func (r *rateLimiter) CheckAndReserve(ctx context.Context, deviceID string) (Decision, error) {
	const op = "RateLimiter.CheckAndReserve"

	if deviceID == "" {
		return Decision{}, utils.E(utils.CodeInvalidArgument, op, "device_id is required", nil)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	log := r.log.WithFields(logrus.Fields{"device_id": deviceID, "op": op})
	now := r.opts.Now()
	today := r.day(now)

	var reason string
	err := r.repo.Reserve(ctx, deviceID, func(cur repositories.StoredRateLimit) (models.RateLimitState, bool) {
		reason = ""
		if cur.HasLast {
			if since := now.Sub(cur.LastRequestAt); since >= 0 && since < r.opts.Cooldown {
				reason = utils.ReasonTooSoon
				return models.RateLimitState{}, false
			}
		}
		w := cur.Daily
		if !cur.HasDaily || w.Date != today {
			w = models.DailyWindow{Date: today}
		}
		if w.Count >= r.opts.DailyLimit {
			reason = utils.ReasonQuotaExhausted
			return models.RateLimitState{}, false
		}
		w.Count++
		return models.RateLimitState{LastRequestAt: now, Daily: w}, true
	})
	if err != nil {
		log.WithError(err).Warn("rate limit storage failed, allowing request")
		return Decision{Allowed: true}, nil
	}
	if reason != "" {
		return Decision{Reason: reason}, utils.RateLimited(op, reason)
	}
	return Decision{Allowed: true}, nil
}

func (r *rateLimiter) Status(ctx context.Context, deviceID string) (*models.RateLimitStatus, error) {
	const op = "RateLimiter.Status"

	if deviceID == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "device_id is required", nil)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.opts.Now()
	out := &models.RateLimitStatus{DeviceID: deviceID, DailyLimit: r.opts.DailyLimit, NextAllowedAt: now}

	last, ok, err := r.repo.GetLastRequest(ctx, deviceID)
	if err != nil {
		return nil, utils.E(utils.CodeUnavailable, op, "failed to read rate limit state", err)
	}
	if ok && last.Add(r.opts.Cooldown).After(now) {
		out.NextAllowedAt = last.Add(r.opts.Cooldown)
	}

	w, ok, err := r.repo.GetDaily(ctx, deviceID)
	if err != nil {
		return nil, utils.E(utils.CodeUnavailable, op, "failed to read rate limit state", err)
	}
	if ok && w.Date == r.day(now) {
		out.UsedToday = w.Count
	}
	out.Remaining = r.opts.DailyLimit - out.UsedToday
	if out.Remaining <= 0 {
		out.Remaining = 0
		local := now.In(r.opts.Location)
		out.NextAllowedAt = time.Date(local.Year(), local.Month(), local.Day()+1, 0, 0, 0, 0, r.opts.Location)
	}
	return out, nil
}

func (r *rateLimiter) Reset(ctx context.Context, deviceID string) error {
	const op = "RateLimiter.Reset"

	if deviceID == "" {
		return utils.E(utils.CodeInvalidArgument, op, "device_id is required", nil)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.repo.Delete(ctx, deviceID); err != nil {
		return utils.E(utils.CodeInternal, op, "failed to reset rate limit", err)
	}
	return nil
}
