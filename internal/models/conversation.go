package models

import (
	"time"

	"github.com/lib/pq"
	"gorm.io/datatypes"
)

type ConversationLog struct {
	ID        string         `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	UserID    string         `gorm:"column:user_id;type:uuid;index" json:"user_id"`
	DeviceID  string         `gorm:"column:device_id;type:text;index" json:"device_id"`
	SessionID string         `gorm:"column:session_id;type:uuid;index" json:"session_id"`
	Role      string         `gorm:"column:role;type:text" json:"role"` // "user" | "assistant"
	Content   string         `gorm:"column:content;type:text" json:"content"`
	ToolNames pq.StringArray `gorm:"column:tool_names;type:text[]" json:"tool_names"`
	Timestamp time.Time      `gorm:"column:timestamp;type:timestamptz;index" json:"timestamp"`
	Metadata  datatypes.JSON `gorm:"column:metadata;type:jsonb" json:"metadata"`
}

func (ConversationLog) TableName() string { return "conversation_logs" }

// ExchangeRecord is what the engine publishes for archiving after a
// successful round trip.
type ExchangeRecord struct {
	ID        string        `json:"id"` // stable across stream redelivery
	SessionID string        `json:"session_id"`
	DeviceID  string        `json:"device_id"`
	UserID    string        `json:"user_id"`
	User      string        `json:"user"`
	Assistant string        `json:"assistant"`
	Source    string        `json:"source"`
	ToolNames []string      `json:"tool_names,omitempty"`
	Screen    ScreenContext `json:"screen"`
	At        time.Time     `json:"at"`
}
