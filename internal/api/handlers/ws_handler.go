package handlers

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/yoockh/basketvoice/internal/assistant"
	"github.com/yoockh/basketvoice/internal/models"
	"github.com/yoockh/basketvoice/internal/utils"
)

type WSHandler struct {
	sessions SessionManager
	redis    *redis.Client
	log      *logrus.Logger
	upgrader websocket.Upgrader
}

func NewWSHandler(sessions SessionManager, rdb *redis.Client, log *logrus.Logger, allowedOrigins []string) *WSHandler {
	if log == nil {
		log = logrus.New()
	}
	return &WSHandler{
		sessions: sessions,
		redis:    rdb,
		log:      log,
		upgrader: websocket.Upgrader{
			CheckOrigin: originChecker(allowedOrigins),
		},
	}
}

// originChecker allows everything when no origins are configured.
func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return func(r *http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true // native clients
		}
		for _, a := range allowed {
			if strings.EqualFold(a, origin) {
				return true
			}
		}
		return false
	}
}

type wsClientMsg struct {
	Type        string                `json:"type"`
	AudioBase64 string                `json:"audio_base64"`
	ID          string                `json:"id"`
	Error       string                `json:"error"`
	Screen      *models.ScreenContext `json:"screen"`
}

type wsConn struct {
	c  *websocket.Conn
	mu sync.Mutex
}

func (w *wsConn) writeText(b []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.c.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return w.c.WriteMessage(websocket.TextMessage, b)
}

func (w *wsConn) writeError(err error) {
	b, _ := json.Marshal(map[string]any{
		"type":    "error",
		"code":    utils.CodeOf(err),
		"message": utils.UserMessage(err),
	})
	_ = w.writeText(b)
}

// wsSink sends playback frames to the socket.
type wsSink struct{ wc *wsConn }

func (s wsSink) Send(frame assistant.OutboundFrame) error {
	b, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	return s.wc.writeText(b)
}

func (h *WSHandler) SessionWS(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	sessionID := c.Param("session_id")
	if sessionID == "" {
		writeError(c, utils.E(utils.CodeInvalidArgument, "WSHandler.SessionWS", "missing session_id", nil))
		return
	}

	sess, err := h.sessions.Get(sessionID)
	if err != nil {
		writeError(c, err)
		return
	}
	if sess.UserID() != userID {
		writeError(c, utils.E(utils.CodeForbidden, "WSHandler.SessionWS", "forbidden", nil))
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// upgrade already wrote response in most cases
		return
	}
	defer conn.Close()

	wc := &wsConn{c: conn}
	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	log := h.log.WithFields(logrus.Fields{"session_id": sessionID, "device_id": sess.DeviceID()})

	if audio := sess.ClientAudio(); audio != nil {
		audio.Attach(wsSink{wc: wc})
		defer audio.Detach()
	}

	pubsub := h.redis.Subscribe(ctx, assistant.EventsChannel(sessionID))
	defer pubsub.Close()

	// reader: WS -> session
	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		conn.SetPongHandler(func(string) error {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			return nil
		})

		for {
			_, data, rerr := conn.ReadMessage()
			if rerr != nil {
				return
			}
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))

			var msg wsClientMsg
			if err := json.Unmarshal(data, &msg); err != nil {
				wc.writeError(utils.E(utils.CodeInvalidArgument, "WSHandler", "invalid json", err))
				continue
			}
			if done := h.dispatch(ctx, sess, wc, msg, log); done {
				return
			}
		}
	}()

	// writer: Redis Pub/Sub -> WS
	msgs := pubsub.Channel()
	for {
		select {
		case <-readDone:
			return
		case <-ctx.Done():
			return
		case m, ok := <-msgs:
			if !ok {
				return
			}
			if werr := wc.writeText([]byte(m.Payload)); werr != nil {
				return
			}
		}
	}
}

// dispatch applies one client message; it reports whether the socket should close.
func (h *WSHandler) dispatch(ctx context.Context, sess *assistant.Session, wc *wsConn, msg wsClientMsg, log *logrus.Entry) bool {
	switch msg.Type {
	case "audio_chunk":
		raw := msg.AudioBase64
		if i := strings.Index(raw, ","); i >= 0 {
			raw = raw[i+1:] // strip data:...;base64,
		}
		frame, err := base64.StdEncoding.DecodeString(raw)
		if err != nil || len(frame) == 0 {
			wc.writeError(utils.E(utils.CodeInvalidArgument, "WSHandler", "invalid audio_base64", err))
			return false
		}
		if pipe := sess.AudioIn(); pipe == nil || !pipe.Write(frame) {
			log.Debug("audio frame dropped")
		}

	case "playback_done":
		if audio := sess.ClientAudio(); audio != nil {
			audio.PlaybackDone(msg.ID, msg.Error)
		}

	case "listen":
		if err := sess.Listen(ctx); err != nil {
			wc.writeError(err)
		}

	case "confirm":
		if err := sess.Confirm(ctx); err != nil {
			wc.writeError(err)
		}

	case "cancel":
		if err := sess.CancelPending(); err != nil {
			wc.writeError(err)
		}

	case "screen":
		if msg.Screen == nil {
			wc.writeError(utils.E(utils.CodeInvalidArgument, "WSHandler", "screen is required", nil))
			return false
		}
		sess.SetScreen(*msg.Screen)

	case "end_session":
		if err := h.sessions.Close(ctx, sess.ID()); err != nil {
			log.WithError(err).Warn("close session from socket")
		}
		return true

	default:
		wc.writeError(utils.E(utils.CodeInvalidArgument, "WSHandler", "unknown message type", nil))
	}
	return false
}
