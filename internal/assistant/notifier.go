package assistant

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/yoockh/basketvoice/internal/models"
)

type EventType string

const (
	EventState      EventType = "state"
	EventPartial    EventType = "partial_transcript"
	EventTranscript EventType = "transcript"
	EventResponse   EventType = "response"
	EventPending    EventType = "pending_action"
	EventError      EventType = "error"
	EventHaptic     EventType = "haptic"
)

type Haptic string

const (
	HapticFirm Haptic = "firm"
	HapticSoft Haptic = "soft"
)

// Event is what clients of a session observe. Fields not relevant to Type
// are left empty.
type Event struct {
	Type      EventType             `json:"type"`
	SessionID string                `json:"session_id"`
	State     models.SessionState   `json:"state,omitempty"`
	Text      string                `json:"text,omitempty"`
	Pending   *models.PendingAction `json:"pending_action,omitempty"`
	Code      string                `json:"code,omitempty"`
	Message   string                `json:"message,omitempty"`
	Haptic    Haptic                `json:"haptic,omitempty"`
	At        time.Time             `json:"at"`
}

type Notifier interface {
	Notify(ctx context.Context, ev Event)
}

// EventsChannel is the pub/sub channel carrying a session's events.
func EventsChannel(sessionID string) string {
	return "session:" + sessionID + ":events"
}

// RedisNotifier publishes events as JSON so any API instance holding the
// client's socket can forward them.
type RedisNotifier struct {
	rdb *redis.Client
	log *logrus.Logger
}

func NewRedisNotifier(rdb *redis.Client, log *logrus.Logger) *RedisNotifier {
	if log == nil {
		log = logrus.New()
	}
	return &RedisNotifier{rdb: rdb, log: log}
}

func (n *RedisNotifier) Notify(ctx context.Context, ev Event) {
	b, err := json.Marshal(ev)
	if err != nil {
		return
	}
	if err := n.rdb.Publish(ctx, EventsChannel(ev.SessionID), b).Err(); err != nil {
		n.log.WithError(err).WithField("session_id", ev.SessionID).Warn("publish session event failed")
	}
}

type NopNotifier struct{}

func (NopNotifier) Notify(context.Context, Event) {}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, ev Event)

func (f NotifierFunc) Notify(ctx context.Context, ev Event) { f(ctx, ev) }
