package assistant

import (
	"context"
	"testing"

	"github.com/yoockh/basketvoice/config"
	"github.com/yoockh/basketvoice/internal/logger"
	"github.com/yoockh/basketvoice/internal/models"
	"github.com/yoockh/basketvoice/internal/providers/stt"
	"github.com/yoockh/basketvoice/internal/repositories"
	"github.com/yoockh/basketvoice/internal/services"
	"github.com/yoockh/basketvoice/internal/utils"
)

func newTestManager() *Manager {
	log := logger.Discard()
	return NewManager(&Engine{
		Config:     config.DefaultAssistant(),
		Speech:     func(pipe *stt.AudioPipe, mic bool) stt.Engine { return &fakeEngine{available: true, granted: mic} },
		Limiter:    services.NewRateLimiter(repositories.NewMemoryRateLimitRepo(), services.RateLimitOptions{}, log),
		Dispatcher: &fakeDispatcher{ProcessFunc: answer("ok")},
		Log:        log,
	})
}

func TestManager_OneSessionPerDevice(t *testing.T) {
	m := newTestManager()
	ctx := context.Background()

	first, err := m.Open(ctx, OpenOptions{DeviceID: "dev-1", UserID: "u1", MicGranted: true})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	second, err := m.Open(ctx, OpenOptions{DeviceID: "dev-1", UserID: "u1", MicGranted: true})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}

	if first.State() != models.StateClosed {
		t.Fatalf("previous session still %s", first.State())
	}
	if _, err := m.Get(first.ID()); !utils.IsCode(err, utils.CodeNotFound) {
		t.Fatalf("closed session still reachable: %v", err)
	}
	if got, ok := m.ForDevice("dev-1"); !ok || got.ID() != second.ID() {
		t.Fatalf("device maps to the wrong session")
	}
	if m.Len() != 1 {
		t.Fatalf("len = %d", m.Len())
	}

	if _, err := m.Open(ctx, OpenOptions{DeviceID: "dev-2", UserID: "u2"}); err != nil {
		t.Fatalf("open dev-2: %v", err)
	}
	if m.Len() != 2 {
		t.Fatalf("len = %d", m.Len())
	}

	m.CloseAll(ctx)
	if m.Len() != 0 || second.State() != models.StateClosed {
		t.Fatalf("CloseAll left sessions open")
	}
}

func TestManager_MicPermissionFlowsToCapture(t *testing.T) {
	m := newTestManager()
	s, err := m.Open(context.Background(), OpenOptions{DeviceID: "dev-1", UserID: "u1", MicGranted: false})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := s.Listen(context.Background()); !utils.IsCode(err, utils.CodePermissionDenied) {
		t.Fatalf("listen without mic permission: %v", err)
	}
	if err := m.Close(context.Background(), s.ID()); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := m.Close(context.Background(), s.ID()); !utils.IsCode(err, utils.CodeNotFound) {
		t.Fatalf("second close: %v", err)
	}
}

func TestManager_OpenRequiresDevice(t *testing.T) {
	if _, err := newTestManager().Open(context.Background(), OpenOptions{UserID: "u1"}); !utils.IsCode(err, utils.CodeInvalidArgument) {
		t.Fatalf("err = %v", err)
	}
}
