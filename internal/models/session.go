package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// AssistantSession is the audit record of one opened assistant surface.
type AssistantSession struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	SessionID string             `bson:"session_id" json:"session_id"` // uuid v4
	DeviceID  string             `bson:"device_id" json:"device_id"`
	UserID    string             `bson:"user_id" json:"user_id"` // uuid from Supabase Auth

	Locale string `bson:"locale" json:"locale"`
	Status string `bson:"status" json:"status"` // active|closed

	UtteranceCount int `bson:"utterance_count" json:"utterance_count"`

	CreatedAt time.Time  `bson:"created_at" json:"created_at"`
	ClosedAt  *time.Time `bson:"closed_at,omitempty" json:"closed_at,omitempty"`

	DurationSeconds int64 `bson:"duration_seconds" json:"duration_seconds"`
}

const (
	SessionStatusActive = "active"
	SessionStatusClosed = "closed"
)
