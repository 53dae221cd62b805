// Package notify delivers account lifecycle notifications to requesters and the administrator.
package notify

import (
	"context"
	"time"
)

// EventKind identifies the lifecycle change being notified
type EventKind string

const (
	EventRequested     EventKind = "requested"
	EventValidated     EventKind = "validated"
	EventEnabled       EventKind = "enabled"
	EventDisabled      EventKind = "disabled"
	EventRejected      EventKind = "rejected"
	EventTokenExpiring EventKind = "token_expiring"
)

// Event carries what a notifier needs to tell the requester or the administrator.
// Token holds a freshly issued secret for EventEnabled and must never be logged.
type Event struct {
	AccountID        string     `json:"account_id"`
	Email            string     `json:"email"`
	Name             string     `json:"name,omitempty"`
	Kind             EventKind  `json:"event_kind"`
	ConfirmationLink string     `json:"-"`
	Token            string     `json:"-"`
	ValidUntil       *time.Time `json:"valid_until,omitempty"`
	OccurredAt       time.Time  `json:"occurred_at"`
}

// Notifier delivers a single event
type Notifier interface {
	Notify(ctx context.Context, event Event) error
}

// NotifierFunc adapts a function to Notifier
type NotifierFunc func(ctx context.Context, event Event) error

func (f NotifierFunc) Notify(ctx context.Context, event Event) error {
	return f(ctx, event)
}
