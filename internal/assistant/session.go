package assistant

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/yoockh/basketvoice/internal/logger"
	"github.com/yoockh/basketvoice/internal/models"
	"github.com/yoockh/basketvoice/internal/providers/stt"
	"github.com/yoockh/basketvoice/internal/services"
	"github.com/yoockh/basketvoice/internal/utils"
)

const messageNoSpeech = "I didn't catch that."

type Deps struct {
	Capture    *CaptureController
	Limiter    services.RateLimiter
	History    *services.HistoryStore
	Dispatcher services.Dispatcher
	Synth      *services.SynthesisCascade
	Notifier   Notifier
	Recorder   Recorder

	// optional, owned by the session once passed in
	AudioIn *stt.AudioPipe
	Audio   *ClientAudio

	Log *logrus.Logger
	Now func() time.Time
}

type Options struct {
	SessionID string
	DeviceID  string
	UserID    string
	Locale    string
	Screen    models.ScreenContext

	ContinuousEnabled bool
	ResumeAfterCancel bool
	ResumeDelay       time.Duration
}

// Session is one open assistant interaction on one device.
type Session struct {
	opts Options
	deps Deps
	log  *logrus.Entry

	// ctx lives as long as the session; bg keeps its values for work that
	// must outlive Close (events, audit writes).
	ctx    context.Context
	cancel context.CancelFunc
	bg     context.Context

	continuous *Continuous

	mu           sync.Mutex
	state        models.SessionState
	transcript   string
	partial      string
	lastResponse string
	pending      *models.PendingAction
	lastError    string
	open         bool
	screen       models.ScreenContext
	turn         uint64 // bumped whenever in-flight work becomes stale
	seq          int64
}

func NewSession(parent context.Context, opts Options, deps Deps) *Session {
	if deps.Notifier == nil {
		deps.Notifier = NopNotifier{}
	}
	if deps.Recorder == nil {
		deps.Recorder = nopRecorder{}
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.History == nil {
		deps.History = services.NewHistoryStore(services.DefaultHistoryCap)
	}

	ctx, cancel := context.WithCancel(parent)
	s := &Session{
		opts:   opts,
		deps:   deps,
		log:    logger.ForSession(deps.Log, opts.SessionID, opts.DeviceID),
		ctx:    ctx,
		cancel: cancel,
		bg:     context.WithoutCancel(parent),
		state:  models.StateIdle,
		open:   true,
		screen: opts.Screen,
	}
	s.continuous = NewContinuous(opts.ContinuousEnabled, opts.ResumeDelay, s.canResume, s.resume)
	return s
}

func (s *Session) ID() string       { return s.opts.SessionID }
func (s *Session) DeviceID() string { return s.opts.DeviceID }
func (s *Session) UserID() string   { return s.opts.UserID }

// AudioIn is where the client's microphone frames go.
func (s *Session) AudioIn() *stt.AudioPipe { return s.deps.AudioIn }

func (s *Session) ClientAudio() *ClientAudio { return s.deps.Audio }

// scope is whose data tools act on.
func (s *Session) scope() string {
	if s.opts.UserID != "" {
		return s.opts.UserID
	}
	return s.opts.DeviceID
}

func (s *Session) State() models.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) Snapshot() models.SessionSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := models.SessionSnapshot{
		SessionID:         s.opts.SessionID,
		DeviceID:          s.opts.DeviceID,
		State:             s.state,
		Transcript:        s.transcript,
		PartialTranscript: s.partial,
		LastResponseText:  s.lastResponse,
		LastError:         s.lastError,
		IsOpen:            s.open,
		Screen:            s.screen,
	}
	if s.pending != nil {
		p := *s.pending
		snap.PendingAction = &p
	}
	return snap
}

func (s *Session) SetScreen(screen models.ScreenContext) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.screen = screen
}

// ResetConversation forgets all remembered turns.
func (s *Session) ResetConversation() {
	s.deps.History.Reset()
}

// Listen is the manual microphone trigger. While the assistant is talking
// it interrupts playback.
func (s *Session) Listen(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.listen(HapticFirm)
}

func (s *Session) listen(cue Haptic) error {
	const op = "Session.Listen"

	s.mu.Lock()
	if !s.open {
		s.mu.Unlock()
		return utils.E(utils.CodeInvalidState, op, "session is closed", nil)
	}
	switch s.state {
	case models.StateAwaitingConfirmation:
		s.mu.Unlock()
		return utils.E(utils.CodeConfirmationRequired, op, "confirm or cancel the pending action first", nil)
	case models.StateListening, models.StateProcessing:
		s.mu.Unlock()
		return utils.E(utils.CodeInvalidState, op, "already "+string(s.state), nil)
	}
	wasSpeaking := s.state == models.StateSpeaking
	s.state = models.StateListening
	s.transcript, s.partial, s.lastError = "", "", ""
	s.turn++
	turn := s.turn
	s.mu.Unlock()

	s.continuous.Cancel()
	if wasSpeaking {
		s.deps.Synth.Stop()
	}

	s.emit(
		Event{Type: EventHaptic, Haptic: cue},
		Event{Type: EventState, State: models.StateListening},
	)

	events, err := s.deps.Capture.Start(s.ctx)
	if err != nil {
		s.fail(turn, err, "")
		return err
	}
	go s.consume(turn, events)
	return nil
}

func (s *Session) consume(turn uint64, events <-chan stt.Event) {
	for ev := range events {
		switch ev.Kind {
		case stt.EventPartial:
			s.mu.Lock()
			stale := s.staleLocked(turn)
			if !stale {
				s.partial = ev.Text
			}
			s.mu.Unlock()
			if !stale {
				s.emit(Event{Type: EventPartial, Text: ev.Text})
			}
		case stt.EventFinal:
			s.onFinal(turn, strings.TrimSpace(ev.Text))
		case stt.EventError:
			if errors.Is(ev.Err, ErrNoSpeech) {
				s.fail(turn, utils.E(utils.CodeInvalidArgument, "Session.Listen", "no speech detected", ev.Err), messageNoSpeech)
				continue
			}
			s.fail(turn, utils.E(utils.CodeCaptureUnavailable, "Session.Listen", "speech recognition failed", ev.Err), "")
		}
	}
}

func (s *Session) onFinal(turn uint64, text string) {
	s.mu.Lock()
	if s.staleLocked(turn) {
		s.mu.Unlock()
		return
	}
	s.transcript, s.partial = text, ""
	s.seq++
	seq := s.seq
	s.mu.Unlock()
	s.emit(Event{Type: EventTranscript, Text: text})

	started := s.deps.Now()
	decision, err := s.deps.Limiter.CheckAndReserve(s.ctx, s.opts.DeviceID)
	if !decision.Allowed {
		s.mu.Lock()
		if s.staleLocked(turn) {
			s.mu.Unlock()
			return
		}
		s.state = models.StateIdle
		s.lastError = utils.UserMessage(err)
		msg := s.lastError
		s.mu.Unlock()

		s.emit(
			Event{Type: EventError, Code: string(utils.CodeRateLimited), Message: msg},
			Event{Type: EventState, State: models.StateIdle},
		)
		s.record(&models.UtteranceLog{Sequence: seq, Transcript: text, Outcome: models.OutcomeRateLimited, Error: utils.RateLimitReason(err)}, started)
		return
	}

	s.mu.Lock()
	if s.staleLocked(turn) {
		s.mu.Unlock()
		return
	}
	s.state = models.StateProcessing
	screen := s.screen
	s.mu.Unlock()
	s.emit(Event{Type: EventState, State: models.StateProcessing})

	// The call is not aborted by Close; its result is checked against the
	// session when it comes back.
	res, err := s.deps.Dispatcher.Process(context.WithoutCancel(s.ctx), s.scope(), text, screen, s.deps.History.Snapshot())
	s.onResult(turn, seq, text, screen, res, err, started)
}

func (s *Session) onResult(turn uint64, seq int64, text string, screen models.ScreenContext, res *services.DispatchResult, err error, started time.Time) {
	entry := &models.UtteranceLog{Sequence: seq, Transcript: text}
	if res != nil {
		entry.Response = res.Text
		entry.Source = string(res.Source)
		entry.ToolRounds = res.Rounds
		entry.ToolNames = res.ToolNames
	}

	s.mu.Lock()
	if s.staleLocked(turn) {
		s.mu.Unlock()
		s.log.Debug("dropping stale dispatcher result")
		entry.Outcome = models.OutcomeDropped
		s.record(entry, started)
		return
	}

	if err != nil {
		s.mu.Unlock()
		response := ""
		if res != nil {
			response = res.Text
		}
		s.log.WithError(err).Warn("utterance failed")
		s.fail(turn, err, "")
		if response != "" {
			s.mu.Lock()
			s.lastResponse = response
			s.mu.Unlock()
			s.emit(Event{Type: EventResponse, Text: response})
		}
		entry.Outcome = models.OutcomeFailed
		entry.Error = err.Error()
		s.record(entry, started)
		return
	}

	s.deps.History.AppendExchange(text, res.Text)
	s.lastResponse = res.Text

	if res.PendingAction != nil {
		s.pending = res.PendingAction
		s.state = models.StateAwaitingConfirmation
		s.speakLocked(turn, res.Text, false)
		pending := *res.PendingAction
		s.mu.Unlock()

		s.emit(
			Event{Type: EventResponse, Text: res.Text},
			Event{Type: EventPending, Pending: &pending},
			Event{Type: EventState, State: models.StateAwaitingConfirmation},
		)
		entry.Outcome = models.OutcomePending
	} else {
		s.state = models.StateSpeaking
		s.speakLocked(turn, res.Text, true)
		s.mu.Unlock()

		s.emit(
			Event{Type: EventResponse, Text: res.Text},
			Event{Type: EventState, State: models.StateSpeaking},
		)
		entry.Outcome = models.OutcomeSpoken
	}

	s.record(entry, started)
	s.publish(models.ExchangeRecord{
		ID:        uuid.NewString(),
		SessionID: s.opts.SessionID,
		DeviceID:  s.opts.DeviceID,
		UserID:    s.opts.UserID,
		User:      text,
		Assistant: res.Text,
		Source:    string(res.Source),
		ToolNames: res.ToolNames,
		Screen:    screen,
		At:        s.deps.Now().UTC(),
	})
}

// Confirm runs the held action. The outcome arrives as events.
func (s *Session) Confirm(ctx context.Context) error {
	const op = "Session.Confirm"

	s.mu.Lock()
	if !s.open {
		s.mu.Unlock()
		return utils.E(utils.CodeInvalidState, op, "session is closed", nil)
	}
	if s.state != models.StateAwaitingConfirmation || s.pending == nil {
		s.mu.Unlock()
		return utils.E(utils.CodeInvalidState, op, "nothing to confirm", nil)
	}
	action := *s.pending
	s.pending = nil
	s.state = models.StateProcessing
	s.turn++
	turn := s.turn
	s.mu.Unlock()

	s.deps.Synth.Stop()
	s.emit(Event{Type: EventState, State: models.StateProcessing})

	go s.runConfirmed(turn, action)
	return nil
}

func (s *Session) runConfirmed(turn uint64, action models.PendingAction) {
	text, err := s.deps.Dispatcher.ExecutePending(context.WithoutCancel(s.ctx), s.scope(), action)

	s.mu.Lock()
	if s.staleLocked(turn) {
		s.mu.Unlock()
		return
	}
	if err != nil {
		s.mu.Unlock()
		s.log.WithError(err).WithField("tool", action.ActionName).Warn("confirmed action failed")
		s.fail(turn, err, "")
		if text != "" {
			s.mu.Lock()
			s.lastResponse = text
			s.mu.Unlock()
			s.emit(Event{Type: EventResponse, Text: text})
		}
		return
	}

	s.lastResponse = text
	s.state = models.StateSpeaking
	s.speakLocked(turn, text, true)
	s.mu.Unlock()

	s.emit(
		Event{Type: EventResponse, Text: text},
		Event{Type: EventState, State: models.StateSpeaking},
	)
}

// CancelPending drops the held action without running it.
func (s *Session) CancelPending() error {
	const op = "Session.CancelPending"

	s.mu.Lock()
	if !s.open || s.state != models.StateAwaitingConfirmation {
		s.mu.Unlock()
		return utils.E(utils.CodeInvalidState, op, "nothing to cancel", nil)
	}
	s.pending = nil
	s.state = models.StateIdle
	s.turn++
	s.mu.Unlock()

	s.deps.Synth.Stop()
	s.emit(Event{Type: EventState, State: models.StateIdle})

	if s.opts.ResumeAfterCancel {
		s.continuous.Schedule()
	}
	return nil
}

// Close stops capture and playback and makes every in-flight result a
// no-op. Safe to call more than once.
func (s *Session) Close() {
	s.mu.Lock()
	if !s.open {
		s.mu.Unlock()
		return
	}
	s.open = false
	s.pending = nil
	s.state = models.StateClosed
	s.turn++
	s.mu.Unlock()

	s.continuous.Cancel()
	if err := s.deps.Capture.Stop(); err != nil {
		s.log.WithError(err).Warn("stop capture on close")
	}
	s.deps.Synth.Stop()
	s.cancel()
	s.deps.History.Reset()

	if s.deps.AudioIn != nil {
		s.deps.AudioIn.Close()
	}
	if s.deps.Audio != nil {
		s.deps.Audio.Detach()
	}

	s.emit(Event{Type: EventState, State: models.StateClosed})
}

// speakLocked starts playback while s.mu is held so a concurrent Close
// always observes and stops it.
func (s *Session) speakLocked(turn uint64, text string, resume bool) {
	pb := s.deps.Synth.Speak(s.ctx, text)
	go func() {
		<-pb.Done()
		s.onPlaybackDone(turn, pb, resume)
	}()
}

func (s *Session) onPlaybackDone(turn uint64, pb *services.Playback, resume bool) {
	err := pb.Err()

	s.mu.Lock()
	if s.staleLocked(turn) || s.state != models.StateSpeaking {
		s.mu.Unlock()
		return
	}
	s.state = models.StateIdle
	failed := err != nil && !pb.Stopped()
	if failed {
		s.lastError = utils.UserMessage(err)
	}
	msg := s.lastError
	s.mu.Unlock()

	if failed {
		s.log.WithError(err).Warn("no synthesis provider produced audio")
		s.emit(Event{Type: EventError, Code: string(utils.CodeOf(err)), Message: msg})
	}
	s.emit(Event{Type: EventState, State: models.StateIdle})

	if resume && err == nil {
		s.continuous.Schedule()
	}
}

// fail moves through Error back to Idle. msg overrides the default user text.
func (s *Session) fail(turn uint64, err error, msg string) {
	s.mu.Lock()
	if s.staleLocked(turn) {
		s.mu.Unlock()
		return
	}
	if msg == "" {
		msg = utils.UserMessage(err)
	}
	s.lastError = msg
	s.pending = nil
	s.state = models.StateIdle
	s.mu.Unlock()

	s.emit(
		Event{Type: EventState, State: models.StateError},
		Event{Type: EventError, Code: string(utils.CodeOf(err)), Message: msg},
		Event{Type: EventState, State: models.StateIdle},
	)
}

func (s *Session) staleLocked(turn uint64) bool {
	return !s.open || turn != s.turn
}

func (s *Session) canResume() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.open && s.pending == nil && s.state == models.StateIdle
}

func (s *Session) resume() {
	if err := s.listen(HapticSoft); err != nil {
		s.log.WithError(err).Debug("continuous resume skipped")
	}
}

func (s *Session) emit(events ...Event) {
	now := s.deps.Now().UTC()
	for _, ev := range events {
		ev.SessionID = s.opts.SessionID
		ev.At = now
		s.deps.Notifier.Notify(s.bg, ev)
	}
}

func (s *Session) record(entry *models.UtteranceLog, started time.Time) {
	entry.SessionID = s.opts.SessionID
	entry.Timestamp = started.UTC()
	entry.ProcessingTimeMS = s.deps.Now().Sub(started).Milliseconds()
	s.deps.Recorder.RecordUtterance(s.bg, entry)
}

func (s *Session) publish(rec models.ExchangeRecord) {
	s.deps.Recorder.PublishExchange(s.bg, rec)
}
