package models

// SessionState is the assistant session state machine position.
type SessionState string

const (
	StateIdle                 SessionState = "idle"
	StateListening            SessionState = "listening"
	StateProcessing           SessionState = "processing"
	StateSpeaking             SessionState = "speaking"
	StateAwaitingConfirmation SessionState = "awaiting_confirmation"
	StateError                SessionState = "error"
	StateClosed               SessionState = "closed"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ConversationTurn is one immutable entry of the in-session history.
type ConversationTurn struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
}

// PendingAction is a tool call held back until the user confirms it.
type PendingAction struct {
	ActionName string         `json:"action_name"`
	Parameters map[string]any `json:"parameters"`
	Prompt     string         `json:"prompt"`
}

// ScreenContext describes what the user is looking at when they speak.
type ScreenContext struct {
	Screen     string `json:"screen"`
	EntityID   string `json:"entity_id,omitempty"`
	EntityName string `json:"entity_name,omitempty"`
}

// SessionSnapshot is a read-only view of a live assistant session.
type SessionSnapshot struct {
	SessionID         string         `json:"session_id"`
	DeviceID          string         `json:"device_id"`
	State             SessionState   `json:"state"`
	Transcript        string         `json:"transcript"`
	PartialTranscript string         `json:"partial_transcript,omitempty"`
	LastResponseText  string         `json:"last_response_text,omitempty"`
	PendingAction     *PendingAction `json:"pending_action,omitempty"`
	LastError         string         `json:"last_error,omitempty"`
	IsOpen            bool           `json:"is_open"`
	Screen            ScreenContext  `json:"screen"`
}
