package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// UtteranceLog records how one utterance travelled through the engine.
type UtteranceLog struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	SessionID string             `bson:"session_id" json:"session_id"`
	Sequence  int64              `bson:"sequence" json:"sequence"`

	Transcript string `bson:"transcript" json:"transcript"`
	Response   string `bson:"response,omitempty" json:"response,omitempty"`

	Outcome    string   `bson:"outcome" json:"outcome"` // spoken|pending|rate_limited|failed|dropped
	Source     string   `bson:"source,omitempty" json:"source,omitempty"`
	ToolRounds int      `bson:"tool_rounds" json:"tool_rounds"`
	ToolNames  []string `bson:"tool_names,omitempty" json:"tool_names,omitempty"`
	Error      string   `bson:"error,omitempty" json:"error,omitempty"`

	ProcessingTimeMS int64     `bson:"processing_time_ms,omitempty" json:"processing_time_ms,omitempty"`
	Timestamp        time.Time `bson:"timestamp" json:"timestamp"`

	ExpiresAt time.Time `bson:"expires_at" json:"expires_at"` // for TTL index
}

const (
	OutcomeSpoken      = "spoken"
	OutcomePending     = "pending"
	OutcomeRateLimited = "rate_limited"
	OutcomeFailed      = "failed"
	OutcomeDropped     = "dropped"
)
