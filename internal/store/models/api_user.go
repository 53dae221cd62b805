package models

import (
	"errors"
	"time"
)

var (
	// ErrInvalidTransition is returned when an account state change is not allowed from the current state
	ErrInvalidTransition = errors.New("invalid account state transition")
	// ErrAccountNotValidated is returned when an operation requires a validated account
	ErrAccountNotValidated = errors.New("account not validated")
)

// AccountState is the lifecycle state of an API user.
//
//	requested --confirm--> validated --enable--> enabled <--disable/enable--> disabled
//	requested|validated --reject--> rejected
type AccountState string

const (
	AccountStateRequested AccountState = "requested"
	AccountStateValidated AccountState = "validated"
	AccountStateEnabled   AccountState = "enabled"
	AccountStateDisabled  AccountState = "disabled"
	AccountStateRejected  AccountState = "rejected"
)

// AccountStates lists every known state in lifecycle order
var AccountStates = []AccountState{
	AccountStateRequested,
	AccountStateValidated,
	AccountStateEnabled,
	AccountStateDisabled,
	AccountStateRejected,
}

// IsKnown reports whether s is one of the defined states
func (s AccountState) IsKnown() bool {
	for _, known := range AccountStates {
		if s == known {
			return true
		}
	}
	return false
}

// IsValidated reports whether the requester confirmed the request
func (s AccountState) IsValidated() bool {
	return s == AccountStateValidated || s == AccountStateEnabled || s == AccountStateDisabled
}

// IsEnabled reports whether tokens owned by the account are usable
func (s AccountState) IsEnabled() bool {
	return s == AccountStateEnabled
}

// WithValidated returns the state that results from setting the validated flag.
// Setting a flag to the value it already has is a no-op.
func (s AccountState) WithValidated(validated bool) (AccountState, error) {
	switch {
	case !s.IsKnown():
		return s, ErrInvalidTransition
	case validated && s == AccountStateRequested:
		return AccountStateValidated, nil
	case validated && s.IsValidated():
		return s, nil
	case !validated && s == AccountStateValidated:
		return AccountStateRequested, nil
	case !validated && s == AccountStateRequested:
		return s, nil
	}
	// Unvalidating an enabled/disabled account would leave tokens issued to an unconfirmed requester
	return s, ErrInvalidTransition
}

// WithEnabled returns the state that results from setting the enabled flag.
// Enabling requires a validated account; disabling is reversible.
func (s AccountState) WithEnabled(enabled bool) (AccountState, error) {
	switch {
	case !s.IsKnown() || s == AccountStateRejected:
		return s, ErrInvalidTransition
	case enabled && s == AccountStateRequested:
		return s, ErrAccountNotValidated
	case enabled:
		return AccountStateEnabled, nil
	case s == AccountStateEnabled:
		return AccountStateDisabled, nil
	}
	return s, nil
}

// Rejected returns the terminal rejected state. Only pending requests can be rejected.
func (s AccountState) Rejected() (AccountState, error) {
	switch s {
	case AccountStateRequested, AccountStateValidated:
		return AccountStateRejected, nil
	case AccountStateRejected:
		return s, nil
	}
	return s, ErrInvalidTransition
}

// APIUser maps to the api_users table in the database
type APIUser struct {
	ID          string       `gorm:"primaryKey;type:uuid" json:"id"`
	CreatedAt   time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt   time.Time    `gorm:"not null" json:"updated_at"`
	Name        *string      `gorm:"type:text" json:"name,omitempty"`
	Email       string       `gorm:"type:text;not null" json:"email"`
	Explanation string       `gorm:"type:text;not null" json:"explanation"`
	State       AccountState `gorm:"type:text;not null" json:"state"`

	// Relationships
	Tokens []APIToken `gorm:"foreignKey:ClientID;constraint:OnDelete:CASCADE" json:"-"`
}

// TableName specifies the table name for the model
func (APIUser) TableName() string {
	return "api_users"
}

// Validated reports whether the requester confirmed the request
func (u *APIUser) Validated() bool {
	return u.State.IsValidated()
}

// Enabled reports whether the account may use its tokens
func (u *APIUser) Enabled() bool {
	return u.State.IsEnabled()
}

// DisplayName returns the name if present, otherwise the email
func (u *APIUser) DisplayName() string {
	if u.Name != nil && *u.Name != "" {
		return *u.Name
	}
	return u.Email
}
