package assistant

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/yoockh/basketvoice/config"
	"github.com/yoockh/basketvoice/internal/models"
	"github.com/yoockh/basketvoice/internal/providers/stt"
	"github.com/yoockh/basketvoice/internal/providers/tts"
	"github.com/yoockh/basketvoice/internal/services"
	"github.com/yoockh/basketvoice/internal/utils"
)

// SpeechFactory binds a recognizer to one session's audio pipe.
type SpeechFactory func(pipe *stt.AudioPipe, micGranted bool) stt.Engine

// Engine holds what every session shares.
type Engine struct {
	Config      config.AssistantConfig
	Speech      SpeechFactory
	Limiter     services.RateLimiter
	Dispatcher  services.Dispatcher
	Synthesis   []tts.Provider
	Notifier    Notifier
	Recorder    Recorder
	Audit       services.SessionService // optional
	Log         *logrus.Logger
	SampleRate  int32
	AudioBuffer int
}

type OpenOptions struct {
	DeviceID   string
	UserID     string
	Locale     string
	MicGranted bool
	Voices     []string
	Screen     models.ScreenContext
}

// NewSession assembles a session with its own capture, history and audio
// output.
func (e *Engine) NewSession(ctx context.Context, o OpenOptions) *Session {
	locale := o.Locale
	if locale == "" {
		locale = e.Config.Locale
	}

	pipe := stt.NewAudioPipe(e.AudioBuffer)
	audio := NewClientAudio()
	audio.SetVoices(o.Voices)

	var engine stt.Engine
	if e.Speech != nil {
		engine = e.Speech(pipe, o.MicGranted)
	}

	synth := services.NewSynthesisCascade(e.Synthesis, audio, audio, services.SynthesisOptions{
		Voice:       locale,
		DeviceVoice: e.Config.DeviceVoice,
	}, e.Log)

	return NewSession(ctx, Options{
		SessionID:         uuid.NewString(),
		DeviceID:          o.DeviceID,
		UserID:            o.UserID,
		Locale:            locale,
		Screen:            o.Screen,
		ContinuousEnabled: e.Config.ContinuousEnabled,
		ResumeAfterCancel: e.Config.ResumeAfterCancel,
		ResumeDelay:       e.Config.ResumeDelay,
	}, Deps{
		Capture:    NewCaptureController(engine, stt.Options{Language: locale, SampleRateHz: e.SampleRate}, e.Log),
		Limiter:    e.Limiter,
		History:    services.NewHistoryStore(e.Config.HistoryCap),
		Dispatcher: e.Dispatcher,
		Synth:      synth,
		Notifier:   e.Notifier,
		Recorder:   e.Recorder,
		AudioIn:    pipe,
		Audio:      audio,
		Log:        e.Log,
	})
}

// Manager keeps at most one live session per device.
type Manager struct {
	engine *Engine
	log    *logrus.Logger

	mu       sync.Mutex
	byID     map[string]*Session
	byDevice map[string]string
}

func NewManager(engine *Engine) *Manager {
	log := engine.Log
	if log == nil {
		log = logrus.New()
	}
	return &Manager{
		engine:   engine,
		log:      log,
		byID:     make(map[string]*Session),
		byDevice: make(map[string]string),
	}
}

// Open closes whatever session the device already has, then starts a new one.
func (m *Manager) Open(ctx context.Context, o OpenOptions) (*Session, error) {
	const op = "Manager.Open"
	if o.DeviceID == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "device_id is required", nil)
	}

	m.mu.Lock()
	var previous *Session
	if id, ok := m.byDevice[o.DeviceID]; ok {
		previous = m.byID[id]
		delete(m.byID, id)
		delete(m.byDevice, o.DeviceID)
	}
	s := m.engine.NewSession(context.WithoutCancel(ctx), o)
	m.byID[s.ID()] = s
	m.byDevice[o.DeviceID] = s.ID()
	m.mu.Unlock()

	if previous != nil {
		m.shutdown(ctx, previous)
	}

	if m.engine.Audit != nil {
		if _, err := m.engine.Audit.Start(ctx, s.ID(), s.DeviceID(), s.UserID(), s.opts.Locale); err != nil {
			m.log.WithError(err).WithField("session_id", s.ID()).Warn("session audit start failed")
		}
	}
	m.log.WithFields(logrus.Fields{"session_id": s.ID(), "device_id": o.DeviceID}).Info("assistant session opened")
	return s, nil
}

func (m *Manager) Get(sessionID string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.byID[sessionID]
	if !ok {
		return nil, utils.E(utils.CodeNotFound, "Manager.Get", "session not found", nil)
	}
	return s, nil
}

func (m *Manager) ForDevice(deviceID string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byDevice[deviceID]
	if !ok {
		return nil, false
	}
	return m.byID[id], true
}

func (m *Manager) Close(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	s, ok := m.byID[sessionID]
	if ok {
		delete(m.byID, sessionID)
		if m.byDevice[s.DeviceID()] == sessionID {
			delete(m.byDevice, s.DeviceID())
		}
	}
	m.mu.Unlock()

	if !ok {
		return utils.E(utils.CodeNotFound, "Manager.Close", "session not found", nil)
	}
	m.shutdown(ctx, s)
	return nil
}

func (m *Manager) CloseAll(ctx context.Context) {
	m.mu.Lock()
	all := make([]*Session, 0, len(m.byID))
	for _, s := range m.byID {
		all = append(all, s)
	}
	m.byID = make(map[string]*Session)
	m.byDevice = make(map[string]string)
	m.mu.Unlock()

	for _, s := range all {
		m.shutdown(ctx, s)
	}
}

func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byID)
}

func (m *Manager) shutdown(ctx context.Context, s *Session) {
	s.Close()
	if m.engine.Audit != nil {
		if _, err := m.engine.Audit.End(ctx, s.ID()); err != nil {
			m.log.WithError(err).WithField("session_id", s.ID()).Warn("session audit end failed")
		}
	}
	m.log.WithFields(logrus.Fields{"session_id": s.ID(), "device_id": s.DeviceID()}).Info("assistant session closed")
}
