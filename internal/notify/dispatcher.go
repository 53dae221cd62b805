package notify

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/catalystcommunity/app-utils-go/logging"
	"github.com/felipet/lacoctelera-backend/internal/metrics"
	"github.com/gammazero/workerpool"
	"github.com/sirupsen/logrus"
)

// ErrDispatcherClosed is returned by Notify after Close
var ErrDispatcherClosed = errors.New("notification dispatcher closed")

// DefaultDeliveryTimeout bounds one delivery including its retries
const DefaultDeliveryTimeout = 2 * time.Minute

// Dispatcher queues events and delivers them on a worker pool so that a slow or
// failing mail server never delays the caller. Delivery failures are logged.
type Dispatcher struct {
	notifier Notifier
	retry    *RetryConfig
	timeout  time.Duration

	mu     sync.RWMutex
	pool   *workerpool.WorkerPool
	closed bool
}

func NewDispatcher(notifier Notifier, workers int, retry *RetryConfig) *Dispatcher {
	if workers <= 0 {
		workers = 1
	}
	return &Dispatcher{
		notifier: notifier,
		retry:    retry,
		timeout:  DefaultDeliveryTimeout,
		pool:     workerpool.New(workers),
	}
}

// Notify enqueues the event and returns immediately
func (d *Dispatcher) Notify(ctx context.Context, event Event) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrDispatcherClosed
	}

	deliveryCtx := context.WithoutCancel(ctx)
	d.pool.Submit(func() {
		d.deliver(deliveryCtx, event)
	})
	return nil
}

func (d *Dispatcher) deliver(ctx context.Context, event Event) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	err := RetryWithBackoff(ctx, d.retry, "notify:"+string(event.Kind), func() error {
		return d.notifier.Notify(ctx, event)
	})
	entry := logging.Log.WithFields(logrus.Fields{
		"account_id": event.AccountID,
		"event_kind": event.Kind,
	})
	if err != nil {
		metrics.NotificationsSent.WithLabelValues(string(event.Kind), "failed").Inc()
		entry.WithError(err).Error("Failed to deliver notification")
		return
	}
	metrics.NotificationsSent.WithLabelValues(string(event.Kind), "sent").Inc()
	entry.Debug("Notification delivered")
}

// Close stops accepting events and waits for queued deliveries to finish
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	d.mu.Unlock()
	d.pool.StopWait()
}
