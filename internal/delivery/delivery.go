// Package delivery is the delivery worker: it drains the
// notification queue, enforces the per-user daily cap, renders one
// message per listing, and sends it through the Chat Transport with
// bounded retries.
package delivery

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/huisjacht/huisjacht/internal/chattransport"
	"github.com/huisjacht/huisjacht/internal/listing"
	"github.com/huisjacht/huisjacht/internal/obs"
	"github.com/huisjacht/huisjacht/internal/store"
)

// Transport error classes re-exported so callers that only import
// internal/delivery don't need internal/chattransport too.
var (
	ErrUserBlocked = chattransport.ErrUnauthorized
	ErrBadRequest  = chattransport.ErrBadRequest
)

// queueStore is the slice of *store.Store the Delivery Worker needs.
type queueStore interface {
	PickBatch(ctx context.Context, batchSize int) ([]store.QueueItem, error)
	MarkStatus(ctx context.Context, id int64, status store.QueueStatus) error
	RecordSent(ctx context.Context, queueID, userID, propertyID int64) error
	SentToday(ctx context.Context, userID int64) (int, error)
	GetListing(ctx context.Context, id int64) (*listing.Listing, error)
	DeactivateUser(ctx context.Context, userID int64) error
	GCTerminalRows(ctx context.Context, retention time.Duration) (int64, error)
}

// Config tunes one Worker instance.
type Config struct {
	BatchSize        int
	MaxPerUserPerDay int
	RetryAttempts    int
	InterMessageGap  time.Duration // floor of 100ms to stay under provider rate limits
	RetryBackoff     time.Duration // sleep between transient-error retries
	GCRetention      time.Duration

	// Metrics is optional; nil disables the delivery counters.
	Metrics *obs.Metrics
}

// Worker drains the Notification Queue and delivers through Transport.
type Worker struct {
	store     queueStore
	transport chattransport.Transport
	cfg       Config
	log       *zap.Logger
}

// New builds a Worker over the given store, transport, and config.
func New(store queueStore, transport chattransport.Transport, cfg Config, log *zap.Logger) *Worker {
	if cfg.InterMessageGap < 100*time.Millisecond {
		cfg.InterMessageGap = 100 * time.Millisecond
	}
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = 3
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = time.Second
	}
	return &Worker{store: store, transport: transport, cfg: cfg, log: log}
}

// Run loops DeliverOnce every interval until stop fires or ctx ends.
func (w *Worker) Run(ctx context.Context, interval time.Duration, stop <-chan struct{}) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if err := w.DeliverOnce(ctx); err != nil {
			w.log.Error("delivery batch failed", zap.Error(err))
		}
		select {
		case <-ticker.C:
		case <-stop:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// DeliverOnce picks up to cfg.BatchSize pending entries (oldest first)
// and processes each in order.
func (w *Worker) DeliverOnce(ctx context.Context) error {
	items, err := w.store.PickBatch(ctx, w.cfg.BatchSize)
	if err != nil {
		return err
	}

	for i, item := range items {
		w.deliverOne(ctx, item)
		if i < len(items)-1 {
			select {
			case <-time.After(w.cfg.InterMessageGap):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return nil
}

// deliverOne handles a single already-claimed entry: the daily cap
// check, message render, transport send with retries, and the terminal
// status transition.
func (w *Worker) deliverOne(ctx context.Context, item store.QueueItem) {
	sentToday, err := w.store.SentToday(ctx, item.UserID)
	if err != nil {
		w.log.Error("sent-today lookup failed", zap.Int64("user_id", item.UserID), zap.Error(err))
		return
	}
	if sentToday >= w.cfg.MaxPerUserPerDay {
		if err := w.store.MarkStatus(ctx, item.ID, store.StatusRateLimited); err != nil {
			w.log.Error("mark rate_limited failed", zap.Int64("queue_id", item.ID), zap.Error(err))
		}
		return
	}

	l, err := w.store.GetListing(ctx, item.PropertyID)
	if err != nil {
		w.log.Error("get listing failed", zap.Int64("property_id", item.PropertyID), zap.Error(err))
		w.fail(ctx, item.ID)
		return
	}

	text, leadImage, buttons := renderMessage(l)

	sendErr := w.sendWithRetry(ctx, item.UserID, text, leadImage, buttons)

	switch {
	case sendErr == nil:
		if err := w.store.RecordSent(ctx, item.ID, item.UserID, item.PropertyID); err != nil {
			w.log.Error("record sent failed", zap.Int64("queue_id", item.ID), zap.Error(err))
		}
		if w.cfg.Metrics != nil {
			w.cfg.Metrics.DeliverySuccess.Inc()
		}
	case errors.Is(sendErr, chattransport.ErrUnauthorized):
		if err := w.store.DeactivateUser(ctx, item.UserID); err != nil {
			w.log.Error("deactivate user failed", zap.Int64("user_id", item.UserID), zap.Error(err))
		}
		w.fail(ctx, item.ID)
	default:
		// Covers both ErrBadRequest (no retry budget was spent beyond
		// the one attempt) and an exhausted ProviderTransient retry loop.
		w.log.Warn("delivery failed", zap.Int64("queue_id", item.ID), zap.Error(sendErr))
		w.fail(ctx, item.ID)
	}
}

// sendWithRetry makes up to RetryAttempts sends, short-circuiting on
// Unauthorized/BadRequest (no point retrying those) and sleeping
// RetryBackoff between transient failures.
func (w *Worker) sendWithRetry(ctx context.Context, chatID int64, text, leadImage string, buttons []chattransport.Button) error {
	var lastErr error
	for attempt := 0; attempt < w.cfg.RetryAttempts; attempt++ {
		var err error
		if leadImage != "" {
			err = w.transport.SendPhoto(chatID, leadImage, text, buttons)
		} else {
			err = w.transport.SendText(chatID, text, buttons)
		}
		if err == nil {
			return nil
		}
		lastErr = err
		if errors.Is(err, chattransport.ErrUnauthorized) || errors.Is(err, chattransport.ErrBadRequest) {
			return err
		}
		if attempt < w.cfg.RetryAttempts-1 {
			select {
			case <-time.After(w.cfg.RetryBackoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return lastErr
}

func (w *Worker) fail(ctx context.Context, queueID int64) {
	if err := w.store.MarkStatus(ctx, queueID, store.StatusFailed); err != nil {
		w.log.Error("mark failed failed", zap.Int64("queue_id", queueID), zap.Error(err))
	}
	if w.cfg.Metrics != nil {
		w.cfg.Metrics.DeliveryFailure.Inc()
	}
}

// GC removes terminal queue rows past the retention window, invoked by
// the notifier's cron schedule.
func (w *Worker) GC(ctx context.Context) {
	n, err := w.store.GCTerminalRows(ctx, w.cfg.GCRetention)
	if err != nil {
		w.log.Error("queue gc failed", zap.Error(err))
		return
	}
	if n > 0 {
		w.log.Info("queue gc removed terminal rows", zap.Int64("count", n))
	}
}
