package models

import "time"

// DailyWindow is the persisted (date, count) pair of the daily quota.
type DailyWindow struct {
	Date  string `json:"date"` // YYYY-MM-DD in the limiter's location
	Count int    `json:"count"`
}

// RateLimitState is the combined view of both persisted rate-limit entries.
type RateLimitState struct {
	LastRequestAt time.Time   `json:"last_request_at"`
	Daily         DailyWindow `json:"daily"`
}

type RateLimitStatus struct {
	DeviceID      string    `json:"device_id"`
	DailyLimit    int       `json:"daily_limit"`
	UsedToday     int       `json:"used_today"`
	Remaining     int       `json:"remaining"`
	NextAllowedAt time.Time `json:"next_allowed_at"`
}
