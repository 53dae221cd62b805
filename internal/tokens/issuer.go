package tokens

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

const DefaultMaxAttempts = 3

var (
	// ErrTokenCollision means every generated token matched one already stored
	ErrTokenCollision = errors.New("generated token collides with a stored token")
	// ErrIssuanceFailed wraps any failure to produce a usable token
	ErrIssuanceFailed = errors.New("token issuance failed")
)

// TokenGenerator produces candidate token secrets
type TokenGenerator interface {
	Generate() (string, error)
}

// IssuedToken holds the plaintext secret, which is never stored, and the stored record
type IssuedToken struct {
	Token  string
	Record models.APIToken
}

// Issuer creates tokens for enabled accounts and persists their digest
type Issuer struct {
	store       store.Store
	generator   TokenGenerator
	validity    time.Duration
	maxAttempts int
	nowFunc     func() time.Time
}

type IssuerOption func(*Issuer)

// WithMaxAttempts bounds the number of generations tried when tokens collide
func WithMaxAttempts(n int) IssuerOption {
	return func(i *Issuer) {
		if n > 0 {
			i.maxAttempts = n
		}
	}
}

// WithNowFunc overrides the issuance clock
func WithNowFunc(now func() time.Time) IssuerOption {
	return func(i *Issuer) {
		i.nowFunc = now
	}
}

func NewIssuer(s store.Store, generator TokenGenerator, validity time.Duration, opts ...IssuerOption) (*Issuer, error) {
	if validity <= 0 {
		return nil, fmt.Errorf("%w: validity must be positive, got %s", ErrInvalidConfig, validity)
	}
	i := &Issuer{
		store:       s,
		generator:   generator,
		validity:    validity,
		maxAttempts: DefaultMaxAttempts,
		nowFunc:     time.Now,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i, nil
}

// Validity returns the lifetime given to new tokens
func (i *Issuer) Validity() time.Duration {
	return i.validity
}

// Issue generates a token for the account and stores it with validity
// [now, now+validity). A generated token that already exists is discarded and a
// new one generated, up to the attempt bound. Store lifecycle errors such as
// ErrAccountNotValidated are returned unchanged.
func (i *Issuer) Issue(ctx context.Context, accountID string) (*IssuedToken, error) {
	// Postgres keeps microseconds
	now := i.nowFunc().UTC().Truncate(time.Microsecond)

	for attempt := 1; attempt <= i.maxAttempts; attempt++ {
		secret, err := i.generator.Generate()
		if err != nil {
			metrics.TokenIssuanceAttempts.WithLabelValues("error").Inc()
			return nil, fmt.Errorf("%w: %v", ErrIssuanceFailed, err)
		}

		record := models.APIToken{
			TokenHash:  checkauth.HashAPIToken(secret),
			Created:    now,
			ValidUntil: now.Add(i.validity),
			ClientID:   accountID,
		}
		err = i.store.CreateAPIToken(ctx, &record)
		switch {
		case err == nil:
			metrics.TokenIssuanceAttempts.WithLabelValues("issued").Inc()
			logging.Log.WithFields(logrus.Fields{
				"account_id":  accountID,
				"token_ref":   record.Ref(),
				"valid_until": record.ValidUntil,
			}).Info("Issued API token")
			return &IssuedToken{Token: secret, Record: record}, nil
		case errors.Is(err, store.ErrAlreadyExists):
			metrics.TokenIssuanceAttempts.WithLabelValues("collision").Inc()
			metrics.TokenCollisions.Inc()
			logging.Log.WithField("account_id", accountID).Warnf("Generated token collided, attempt %d/%d", attempt, i.maxAttempts)
		default:
			metrics.TokenIssuanceAttempts.WithLabelValues("error").Inc()
			return nil, err
		}
	}
	return nil, fmt.Errorf("%w: %w after %d attempts", ErrIssuanceFailed, ErrTokenCollision, i.maxAttempts)
}
