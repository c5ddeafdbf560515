package assistant

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/yoockh/basketvoice/internal/models"
	"github.com/yoockh/basketvoice/internal/services"
)

// Recorder receives the audit trail of a session. Implementations must not
// block the caller.
type Recorder interface {
	RecordUtterance(ctx context.Context, u *models.UtteranceLog)
	PublishExchange(ctx context.Context, rec models.ExchangeRecord)
}

// ExchangePublisher queues an exchange for the archive.
type ExchangePublisher interface {
	Publish(ctx context.Context, rec models.ExchangeRecord) error
}

type nopRecorder struct{}

func (nopRecorder) RecordUtterance(context.Context, *models.UtteranceLog)  {}
func (nopRecorder) PublishExchange(context.Context, models.ExchangeRecord) {}

// ServiceRecorder writes utterances to the utterance log and session audit
// and hands exchanges to the archive queue. Any of the three may be nil.
type ServiceRecorder struct {
	Utterances services.UtteranceService
	Sessions   services.SessionService
	Archive    ExchangePublisher
	Log        *logrus.Logger
	Timeout    time.Duration
}

func (r *ServiceRecorder) RecordUtterance(ctx context.Context, u *models.UtteranceLog) {
	go func() {
		ctx, cancel := r.deadline(ctx)
		defer cancel()

		if r.Utterances != nil {
			if err := r.Utterances.Record(ctx, u); err != nil {
				r.logger().WithError(err).WithField("session_id", u.SessionID).Warn("record utterance failed")
			}
		}
		if r.Sessions != nil {
			if err := r.Sessions.CountUtterance(ctx, u.SessionID); err != nil {
				r.logger().WithError(err).WithField("session_id", u.SessionID).Warn("count utterance failed")
			}
		}
	}()
}

func (r *ServiceRecorder) PublishExchange(ctx context.Context, rec models.ExchangeRecord) {
	if r.Archive == nil {
		return
	}
	go func() {
		ctx, cancel := r.deadline(ctx)
		defer cancel()
		if err := r.Archive.Publish(ctx, rec); err != nil {
			r.logger().WithError(err).WithField("session_id", rec.SessionID).Warn("queue exchange for archive failed")
		}
	}()
}

func (r *ServiceRecorder) deadline(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return context.WithTimeout(context.WithoutCancel(ctx), timeout)
}

func (r *ServiceRecorder) logger() *logrus.Logger {
	if r.Log == nil {
		return logrus.StandardLogger()
	}
	return r.Log
}
