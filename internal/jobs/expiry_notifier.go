// Package jobs holds background jobs run by the API server.
package jobs

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/catalystcommunity/app-utils-go/logging"
	"github.com/felipet/lacoctelera-backend/internal/audit"
	"github.com/felipet/lacoctelera-backend/internal/metrics"
	"github.com/felipet/lacoctelera-backend/internal/notify"
	"github.com/felipet/lacoctelera-backend/internal/store"
	"github.com/sirupsen/logrus"
)

const (
	DefaultExpiryWarning  = 7 * 24 * time.Hour
	DefaultExpiryInterval = 12 * time.Hour
)

// ExpiryNotifier periodically warns owners of enabled accounts whose tokens are
// about to expire. A token is warned about once; the mark is kept in the store so
// restarts do not repeat warnings.
type ExpiryNotifier struct {
	store    store.Store
	notifier notify.Notifier
	recorder audit.Recorder
	warning  time.Duration
	interval time.Duration
	nowFunc  func() time.Time

	stopOnce sync.Once
	stopChan chan struct{}
}

// NewExpiryNotifier returns a job over s. A nil recorder keeps no audit trail of the warnings.
func NewExpiryNotifier(s store.Store, notifier notify.Notifier, recorder audit.Recorder, warning, interval time.Duration) *ExpiryNotifier {
	if warning <= 0 {
		warning = DefaultExpiryWarning
	}
	if interval <= 0 {
		interval = DefaultExpiryInterval
	}
	if recorder == nil {
		recorder = audit.NopRecorder{}
	}
	return &ExpiryNotifier{
		store:    s,
		notifier: notifier,
		recorder: recorder,
		warning:  warning,
		interval: interval,
		nowFunc:  time.Now,
		stopChan: make(chan struct{}),
	}
}

// Start runs a check immediately and then on every interval until ctx is
// cancelled or Stop is called. It blocks.
func (n *ExpiryNotifier) Start(ctx context.Context) {
	ticker := time.NewTicker(n.interval)
	defer ticker.Stop()

	logging.Log.WithFields(logrus.Fields{
		"interval": n.interval,
		"warning":  n.warning,
	}).Info("Token expiry notifier started")

	n.RunCheck(ctx)
	for {
		select {
		case <-ticker.C:
			n.RunCheck(ctx)
		case <-n.stopChan:
			logging.Log.Info("Token expiry notifier stopped")
			return
		case <-ctx.Done():
			logging.Log.Info("Token expiry notifier context cancelled")
			return
		}
	}
}

// Stop signals the loop to exit
func (n *ExpiryNotifier) Stop() {
	n.stopOnce.Do(func() { close(n.stopChan) })
}

// RunCheck queues a warning for every token expiring within the warning window
// and returns how many were queued
func (n *ExpiryNotifier) RunCheck(ctx context.Context) int {
	now := n.nowFunc().UTC()
	expiring, err := n.store.FindExpiringTokens(ctx, now, now.Add(n.warning))
	if err != nil {
		logging.Log.WithError(err).Error("Failed to query expiring tokens")
		return 0
	}
	if len(expiring) == 0 {
		return 0
	}
	logging.Log.Infof("Found %d token(s) approaching expiry", len(expiring))

	sent := 0
	for _, token := range expiring {
		entry := logging.Log.WithFields(logrus.Fields{
			"account_id": token.ClientID,
			"token_ref":  token.Ref(),
		})
		account, err := n.store.GetAccount(ctx, token.ClientID)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			entry.WithError(err).Warn("Could not load token owner")
			continue
		}
		// Disabled accounts are reconsidered on the next run
		if !account.Enabled() {
			continue
		}

		validUntil := token.ValidUntil
		err = n.notifier.Notify(ctx, notify.Event{
			AccountID:  account.ID,
			Email:      account.Email,
			Name:       account.DisplayName(),
			Kind:       notify.EventTokenExpiring,
			ValidUntil: &validUntil,
			OccurredAt: now,
		})
		if err != nil {
			entry.WithError(err).Error("Failed to queue token expiry warning")
			continue
		}
		if err := n.store.MarkTokenExpiryNotified(ctx, token.TokenHash, now); err != nil {
			entry.WithError(err).Error("Failed to mark token expiry warning sent")
			continue
		}
		metrics.ExpiryWarningsSent.Inc()
		sent++

		err = n.recorder.Record(ctx, audit.Record{
			AccountID: account.ID,
			Event:     audit.EventExpiryWarned,
			Actor:     audit.ActorSystem,
			State:     account.State,
			TokenRef:  token.Ref(),
		})
		if err != nil {
			entry.WithError(err).Error("Failed to archive token expiry warning")
		}
	}
	return sent
}
