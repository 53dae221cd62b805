// Package workflow drives an API account from request to enabled and manages its tokens.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/catalystcommunity/app-utils-go/logging"
	"github.com/felipet/lacoctelera-backend/internal/audit"
	"github.com/felipet/lacoctelera-backend/internal/metrics"
	"github.com/felipet/lacoctelera-backend/internal/notify"
	"github.com/felipet/lacoctelera-backend/internal/store"
	"github.com/felipet/lacoctelera-backend/internal/store/models"
	"github.com/felipet/lacoctelera-backend/internal/tokens"
	"github.com/sirupsen/logrus"
)

// ConfirmPath is where confirmation links point
const ConfirmPath = "/token/confirm"

// TokenIssuer issues tokens for enabled accounts
type TokenIssuer interface {
	Issue(ctx context.Context, accountID string) (*tokens.IssuedToken, error)
}

// ConfirmationCodes signs and verifies the codes carried by confirmation links
type ConfirmationCodes interface {
	Issue(account *models.APIUser) (string, error)
	Verify(code string) (*ConfirmationClaims, error)
}

// Deps are the collaborators of a Service. Notifier and Recorder are optional.
type Deps struct {
	Store     store.Store
	Issuer    TokenIssuer
	Confirmer ConfirmationCodes
	Notifier  notify.Notifier
	Recorder  audit.Recorder
	BaseURL   string
}

type Service struct {
	store     store.Store
	issuer    TokenIssuer
	confirmer ConfirmationCodes
	notifier  notify.Notifier
	recorder  audit.Recorder
	baseURL   string
	nowFunc   func() time.Time
}

// EnableResult is the account after enabling and the token issued for it, if any
type EnableResult struct {
	Account *models.APIUser
	Token   *tokens.IssuedToken
}

func NewService(deps Deps) (*Service, error) {
	if deps.Store == nil || deps.Issuer == nil || deps.Confirmer == nil {
		return nil, errors.New("workflow requires a store, a token issuer and a confirmer")
	}
	s := &Service{
		store:     deps.Store,
		issuer:    deps.Issuer,
		confirmer: deps.Confirmer,
		notifier:  deps.Notifier,
		recorder:  deps.Recorder,
		baseURL:   strings.TrimRight(deps.BaseURL, "/"),
		nowFunc:   time.Now,
	}
	if s.notifier == nil {
		s.notifier = notify.NewLogNotifier()
	}
	if s.recorder == nil {
		s.recorder = audit.NopRecorder{}
	}
	return s, nil
}

// Submit validates the request and stores a new account in the requested state.
// The requester is sent a confirmation link.
func (s *Service) Submit(ctx context.Context, req TokenRequest) (*models.APIUser, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	account := &models.APIUser{
		Email:       req.Email,
		Explanation: req.Explanation,
		State:       models.AccountStateRequested,
	}
	if req.Name != "" {
		name := req.Name
		account.Name = &name
	}
	if err := s.store.CreateAccount(ctx, account); err != nil {
		return nil, err
	}

	link, err := s.confirmationLink(account)
	if err != nil {
		// Without a link the request could never be confirmed, drop it so it can be submitted again
		if delErr := s.store.DeleteAccount(context.WithoutCancel(ctx), account.ID); delErr != nil {
			logging.Log.WithError(delErr).WithField("account_id", account.ID).Error("Failed to drop unconfirmable request")
		}
		return nil, err
	}
	s.transitioned(ctx, account, audit.EventRequested, audit.ActorRequester)
	s.notify(ctx, account, notify.EventRequested, func(e *notify.Event) {
		e.ConfirmationLink = link
	})
	return account, nil
}

// confirmationLink returns a fresh link for the account
func (s *Service) confirmationLink(account *models.APIUser) (string, error) {
	code, err := s.confirmer.Issue(account)
	if err != nil {
		return "", err
	}
	return s.baseURL + ConfirmPath + "?code=" + url.QueryEscape(code), nil
}

// Confirm marks the account behind a confirmation code as validated and lets the
// administrator know a request awaits evaluation. Confirming again is a no-op.
func (s *Service) Confirm(ctx context.Context, code string) (*models.APIUser, error) {
	claims, err := s.confirmer.Verify(code)
	if err != nil {
		return nil, err
	}
	before, err := s.store.GetAccount(ctx, claims.Subject)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: account no longer exists", ErrInvalidConfirmation)
	}
	if err != nil {
		return nil, err
	}
	if !strings.EqualFold(before.Email, claims.Email) {
		return nil, fmt.Errorf("%w: email mismatch", ErrInvalidConfirmation)
	}
	return s.validate(ctx, before, audit.ActorRequester)
}

// Validate marks the account validated on the administrator's behalf, for
// requesters who confirmed out of band
func (s *Service) Validate(ctx context.Context, accountID string) (*models.APIUser, error) {
	before, err := s.store.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return s.validate(ctx, before, audit.ActorAdmin)
}

func (s *Service) validate(ctx context.Context, before *models.APIUser, actor string) (*models.APIUser, error) {
	if before.Validated() {
		return before, nil
	}
	account, err := s.store.SetAccountValidated(ctx, before.ID, true)
	if err != nil {
		return nil, err
	}
	if account.State != before.State {
		s.transitioned(ctx, account, audit.EventValidated, actor)
		s.notify(ctx, account, notify.EventValidated, nil)
	}
	return account, nil
}

// Enable grants access. A token is issued unless the account still holds an
// unexpired one, which is the case when re-enabling a disabled account.
// When issuance fails the account stays enabled and the error is returned.
func (s *Service) Enable(ctx context.Context, accountID string) (*EnableResult, error) {
	before, err := s.store.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	account, err := s.store.SetAccountEnabled(ctx, accountID, true)
	if err != nil {
		return nil, err
	}
	result := &EnableResult{Account: account}
	if account.State != before.State {
		s.transitioned(ctx, account, audit.EventEnabled, audit.ActorAdmin)
	}

	usable, err := s.hasUsableToken(ctx, accountID)
	if err != nil {
		return result, err
	}
	if !usable {
		issued, err := s.IssueToken(ctx, accountID)
		if err != nil {
			return result, err
		}
		result.Token = issued
	}

	if account.State != before.State || result.Token != nil {
		s.notify(ctx, account, notify.EventEnabled, func(e *notify.Event) {
			if result.Token != nil {
				validUntil := result.Token.Record.ValidUntil
				e.Token = result.Token.Token
				e.ValidUntil = &validUntil
			}
		})
	}
	return result, nil
}

func (s *Service) hasUsableToken(ctx context.Context, accountID string) (bool, error) {
	existing, err := s.store.GetAPITokensByAccount(ctx, accountID)
	if err != nil {
		return false, err
	}
	now := s.nowFunc()
	for i := range existing {
		if existing[i].IsActiveAt(now) {
			return true, nil
		}
	}
	return false, nil
}

// Disable suspends an enabled account. Its tokens are kept and deny until re-enabled.
func (s *Service) Disable(ctx context.Context, accountID string) (*models.APIUser, error) {
	before, err := s.store.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	account, err := s.store.SetAccountEnabled(ctx, accountID, false)
	if err != nil {
		return nil, err
	}
	if account.State != before.State {
		s.transitioned(ctx, account, audit.EventDisabled, audit.ActorAdmin)
		s.notify(ctx, account, notify.EventDisabled, nil)
	}
	return account, nil
}

// Reject closes a pending request for good
func (s *Service) Reject(ctx context.Context, accountID string) (*models.APIUser, error) {
	before, err := s.store.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	account, err := s.store.RejectAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if account.State != before.State {
		s.transitioned(ctx, account, audit.EventRejected, audit.ActorAdmin)
		s.notify(ctx, account, notify.EventRejected, nil)
	}
	return account, nil
}

// IssueToken issues an additional token for an enabled account
func (s *Service) IssueToken(ctx context.Context, accountID string) (*tokens.IssuedToken, error) {
	issued, err := s.issuer.Issue(ctx, accountID)
	if err != nil {
		return nil, err
	}
	metrics.WorkflowTransitions.WithLabelValues(string(audit.EventTokenIssued)).Inc()
	s.record(ctx, audit.Record{
		AccountID: accountID,
		Event:     audit.EventTokenIssued,
		Actor:     audit.ActorAdmin,
		TokenRef:  issued.Record.Ref(),
	})
	return issued, nil
}

// RevokeTokens revokes every live token of the account and returns how many were revoked
func (s *Service) RevokeTokens(ctx context.Context, accountID string) (int64, error) {
	revoked, err := s.store.RevokeAPITokens(ctx, accountID)
	if err != nil {
		return 0, err
	}
	metrics.TokensRevoked.Add(float64(revoked))
	metrics.WorkflowTransitions.WithLabelValues(string(audit.EventTokensRevoked)).Inc()
	s.record(ctx, audit.Record{
		AccountID: accountID,
		Event:     audit.EventTokensRevoked,
		Actor:     audit.ActorAdmin,
		Count:     revoked,
	})
	logging.Log.WithFields(logrus.Fields{"account_id": accountID, "revoked": revoked}).Info("Revoked API tokens")
	return revoked, nil
}

// Delete removes the account together with its tokens
func (s *Service) Delete(ctx context.Context, accountID string) error {
	if err := s.store.DeleteAccount(ctx, accountID); err != nil {
		return err
	}
	metrics.WorkflowTransitions.WithLabelValues(string(audit.EventDeleted)).Inc()
	s.record(ctx, audit.Record{AccountID: accountID, Event: audit.EventDeleted, Actor: audit.ActorAdmin})
	logging.Log.WithField("account_id", accountID).Info("Deleted account")
	return nil
}

func (s *Service) Get(ctx context.Context, accountID string) (*models.APIUser, error) {
	return s.store.GetAccount(ctx, accountID)
}

// Find resolves an account by id, or by email when ref contains an @
func (s *Service) Find(ctx context.Context, ref string) (*models.APIUser, error) {
	ref = strings.TrimSpace(ref)
	if strings.Contains(ref, "@") {
		return s.store.GetAccountByEmail(ctx, strings.ToLower(ref))
	}
	return s.store.GetAccount(ctx, ref)
}

// History returns the archived transitions of the account, oldest first. It fails
// with audit.ErrNoHistory when the recorder keeps nothing.
func (s *Service) History(ctx context.Context, accountID string) ([]audit.Record, error) {
	reader, ok := s.recorder.(audit.HistoryReader)
	if !ok {
		return nil, audit.ErrNoHistory
	}
	return reader.History(ctx, accountID)
}

func (s *Service) List(ctx context.Context, filter store.AccountFilter) ([]models.APIUser, error) {
	return s.store.ListAccounts(ctx, filter)
}

func (s *Service) ListTokens(ctx context.Context, accountID string) ([]models.APIToken, error) {
	if _, err := s.store.GetAccount(ctx, accountID); err != nil {
		return nil, err
	}
	return s.store.GetAPITokensByAccount(ctx, accountID)
}

func (s *Service) transitioned(ctx context.Context, account *models.APIUser, event audit.Event, actor string) {
	metrics.WorkflowTransitions.WithLabelValues(string(event)).Inc()
	logging.Log.WithFields(logrus.Fields{
		"account_id": account.ID,
		"state":      account.State,
	}).Infof("Account %s", event)
	s.record(ctx, audit.Record{AccountID: account.ID, Event: event, Actor: actor, State: account.State})
}

// record archives the transition. A failing archive never fails the transition.
func (s *Service) record(ctx context.Context, record audit.Record) {
	if err := s.recorder.Record(ctx, record); err != nil {
		logging.Log.WithError(err).WithField("account_id", record.AccountID).Error("Failed to archive audit record")
	}
}

func (s *Service) notify(ctx context.Context, account *models.APIUser, kind notify.EventKind, decorate func(*notify.Event)) {
	event := notify.Event{
		AccountID:  account.ID,
		Email:      account.Email,
		Name:       account.DisplayName(),
		Kind:       kind,
		OccurredAt: s.nowFunc().UTC(),
	}
	if decorate != nil {
		decorate(&event)
	}
	if err := s.notifier.Notify(ctx, event); err != nil {
		logging.Log.WithError(err).WithFields(logrus.Fields{
			"account_id": account.ID,
			"event_kind": kind,
		}).Error("Failed to queue notification")
	}
}
