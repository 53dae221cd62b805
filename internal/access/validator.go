// Package access decides whether a presented bearer token may be used.
package access

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/catalystcommunity/app-utils-go/logging"
	"github.com/felipet/lacoctelera-backend/internal/checkauth"
	"github.com/felipet/lacoctelera-backend/internal/metrics"
	"github.com/felipet/lacoctelera-backend/internal/store"
	"github.com/felipet/lacoctelera-backend/internal/store/models"
	"github.com/sirupsen/logrus"
)

// Reason explains a denial. It is logged, never returned to the client.
type Reason string

const (
	ReasonUnknown  Reason = "unknown"
	ReasonExpired  Reason = "expired"
	ReasonDisabled Reason = "disabled"
)

// ErrUnavailable means the decision could not be made. It is never a denial.
var ErrUnavailable = errors.New("access check unavailable")

// Decision is the outcome of Authorize. Account is set only when Allowed.
type Decision struct {
	Allowed   bool
	AccountID string
	Reason    Reason
	Account   *models.APIUser
}

// String returns "allow" or "deny:<reason>"
func (d Decision) String() string {
	if d.Allowed {
		return "allow"
	}
	return "deny:" + string(d.Reason)
}

// Lookup is the read side of the store used on the request path
type Lookup interface {
	GetAPIToken(ctx context.Context, tokenHash []byte) (*models.APIToken, error)
	GetAccount(ctx context.Context, accountID string) (*models.APIUser, error)
}

type Validator struct {
	store   Lookup
	nowFunc func() time.Time
}

type Option func(*Validator)

// WithNowFunc overrides the clock used for expiry checks
func WithNowFunc(now func() time.Time) Option {
	return func(v *Validator) {
		v.nowFunc = now
	}
}

func NewValidator(s Lookup, opts ...Option) *Validator {
	v := &Validator{store: s, nowFunc: time.Now}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Authorize looks the token up by digest and checks revocation and the validity
// window, then the owner's
// enabled state. Every call reads current store state. Store failures, including
// timeouts, return ErrUnavailable instead of a decision.
func (v *Validator) Authorize(ctx context.Context, presented string) (Decision, error) {
	start := time.Now()
	decision, err := v.authorize(ctx, presented)
	metrics.AccessDecisionDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		metrics.AccessDecisions.WithLabelValues("unavailable").Inc()
		logging.Log.WithError(err).Warn("Unable to authorize API token")
		return Decision{}, err
	}
	metrics.AccessDecisions.WithLabelValues(decision.String()).Inc()
	if !decision.Allowed {
		entry := logging.Log.WithField("reason", decision.Reason)
		if decision.AccountID != "" {
			entry = entry.WithField("account_id", decision.AccountID)
		}
		entry.Info("API token denied")
	}
	return decision, nil
}

func (v *Validator) authorize(ctx context.Context, presented string) (Decision, error) {
	if presented == "" {
		return Decision{Reason: ReasonUnknown}, nil
	}

	token, err := v.store.GetAPIToken(ctx, checkauth.HashAPIToken(presented))
	if errors.Is(err, store.ErrNotFound) {
		return Decision{Reason: ReasonUnknown}, nil
	}
	if err != nil {
		return Decision{}, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	now := v.nowFunc()
	switch {
	case token.IsRevoked():
		return Decision{AccountID: token.ClientID, Reason: ReasonUnknown}, nil
	case token.IsExpiredAt(now):
		return Decision{AccountID: token.ClientID, Reason: ReasonExpired}, nil
	case !token.IsActiveAt(now):
		// created lies ahead of this host's clock
		return Decision{AccountID: token.ClientID, Reason: ReasonUnknown}, nil
	}

	account, err := v.store.GetAccount(ctx, token.ClientID)
	if errors.Is(err, store.ErrNotFound) {
		// Owner deleted between the two reads
		return Decision{AccountID: token.ClientID, Reason: ReasonUnknown}, nil
	}
	if err != nil {
		return Decision{}, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	if !account.Enabled() {
		return Decision{AccountID: account.ID, Reason: ReasonDisabled}, nil
	}

	logging.Log.WithFields(logrus.Fields{
		"account_id": account.ID,
		"token_ref":  token.Ref(),
	}).Debug("API token allowed")
	return Decision{Allowed: true, AccountID: account.ID, Account: account}, nil
}
