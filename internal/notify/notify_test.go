package notify

import (
	"bytes"
	"context"
	"errors"
	"net/textproto"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/gomail.v2"
)

func fastRetry() *RetryConfig {
	return &RetryConfig{MaxRetries: 2, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, BackoffFactor: 2}
}

// MockSender implements Sender
type MockSender struct {
	mu            sync.Mutex
	DialAndSendFn func(m ...*gomail.Message) error
	Sent          []*gomail.Message
}

func (s *MockSender) DialAndSend(m ...*gomail.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Sent = append(s.Sent, m...)
	if s.DialAndSendFn != nil {
		return s.DialAndSendFn(m...)
	}
	return nil
}

func TestDispatcher_DeliversAsynchronously(t *testing.T) {
	memory := NewMemoryNotifier()
	d := NewDispatcher(memory, 2, fastRetry())

	for _, kind := range []EventKind{EventRequested, EventValidated, EventEnabled} {
		require.NoError(t, d.Notify(context.Background(), Event{AccountID: "acc", Email: "a@example.com", Kind: kind}))
	}
	d.Close()

	assert.ElementsMatch(t, []EventKind{EventRequested, EventValidated, EventEnabled}, memory.Kinds())
	assert.ErrorIs(t, d.Notify(context.Background(), Event{Kind: EventDisabled}), ErrDispatcherClosed)
}

func TestDispatcher_DetachesFromCallerContext(t *testing.T) {
	memory := NewMemoryNotifier()
	d := NewDispatcher(memory, 1, fastRetry())

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, d.Notify(ctx, Event{AccountID: "acc", Kind: EventRequested}))
	cancel()
	d.Close()

	assert.Len(t, memory.Events(), 1)
}

func TestDispatcher_RetriesTransientFailures(t *testing.T) {
	attempts := 0
	notifier := NotifierFunc(func(ctx context.Context, event Event) error {
		attempts++
		if attempts < 3 {
			return &RetryableError{Err: errors.New("421 try later"), Retryable: true}
		}
		return nil
	})
	d := NewDispatcher(notifier, 1, fastRetry())
	require.NoError(t, d.Notify(context.Background(), Event{Kind: EventEnabled}))
	d.Close()

	assert.Equal(t, 3, attempts)
}

func TestDispatcher_DoesNotRetryPermanentFailures(t *testing.T) {
	attempts := 0
	notifier := NotifierFunc(func(ctx context.Context, event Event) error {
		attempts++
		return errors.New("550 mailbox unavailable")
	})
	d := NewDispatcher(notifier, 1, fastRetry())
	require.NoError(t, d.Notify(context.Background(), Event{Kind: EventEnabled}))
	d.Close()

	assert.Equal(t, 1, attempts)
}

func TestRetryWithBackoff_GivesUp(t *testing.T) {
	attempts := 0
	err := RetryWithBackoff(context.Background(), fastRetry(), "test", func() error {
		attempts++
		return &RetryableError{Err: errors.New("timeout"), Retryable: true}
	})
	assert.Error(t, err)
	assert.Equal(t, 3, attempts)
	assert.False(t, IsRetryable(context.DeadlineExceeded))
}

func TestSMTPNotifier_Compose(t *testing.T) {
	validUntil := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name     string
		admin    string
		event    Event
		wantTo   []string
		contains string
	}{
		{
			name:   "Requested goes to the requester",
			event:  Event{Email: "jane@example.com", Kind: EventRequested, ConfirmationLink: "http://localhost/token/confirm?code=abc"},
			wantTo: []string{"jane@example.com"},
		},
		{
			name:     "Validated goes to the administrator",
			admin:    "admin@lacoctelera.net",
			event:    Event{AccountID: "acc-1", Email: "jane@example.com", Kind: EventValidated},
			wantTo:   []string{"admin@lacoctelera.net"},
			contains: "acc-1",
		},
		{
			name:  "Validated without administrator sends nothing",
			event: Event{Email: "jane@example.com", Kind: EventValidated},
		},
		{
			name:     "Enabled carries the token",
			event:    Event{Email: "jane@example.com", Kind: EventEnabled, Token: "Tok3nTok3nTok3n", ValidUntil: &validUntil},
			wantTo:   []string{"jane@example.com"},
			contains: "Tok3nTok3nTok3n",
		},
		{
			name:     "Expiry warning",
			event:    Event{Email: "jane@example.com", Kind: EventTokenExpiring, ValidUntil: &validUntil},
			wantTo:   []string{"jane@example.com"},
			contains: "2025-01-01",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sender := &MockSender{}
			n := NewSMTPNotifierWithSender(sender, "no-reply@lacoctelera.net", tt.admin)
			require.NoError(t, n.Notify(context.Background(), tt.event))

			if tt.wantTo == nil {
				assert.Empty(t, sender.Sent)
				return
			}
			require.Len(t, sender.Sent, 1)
			assert.Equal(t, tt.wantTo, sender.Sent[0].GetHeader("To"))
			assert.Equal(t, []string{"no-reply@lacoctelera.net"}, sender.Sent[0].GetHeader("From"))
			if tt.contains != "" {
				var buf bytes.Buffer
				_, err := sender.Sent[0].WriteTo(&buf)
				require.NoError(t, err)
				assert.Contains(t, buf.String(), tt.contains)
			}
		})
	}
}

func TestSMTPNotifier_ClassifiesErrors(t *testing.T) {
	sender := &MockSender{DialAndSendFn: func(m ...*gomail.Message) error {
		return &textproto.Error{Code: 421, Msg: "service not available"}
	}}
	n := NewSMTPNotifierWithSender(sender, "no-reply@lacoctelera.net", "")
	err := n.Notify(context.Background(), Event{Email: "jane@example.com", Kind: EventDisabled})
	assert.True(t, IsRetryable(err))

	sender.DialAndSendFn = func(m ...*gomail.Message) error {
		return &textproto.Error{Code: 550, Msg: "no such user"}
	}
	err = n.Notify(context.Background(), Event{Email: "jane@example.com", Kind: EventDisabled})
	assert.Error(t, err)
	assert.False(t, IsRetryable(err))

	err = n.Notify(context.Background(), Event{Email: "jane@example.com", Kind: EventKind("bogus")})
	assert.Error(t, err)
}
