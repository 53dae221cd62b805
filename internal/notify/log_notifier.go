package notify

import (
	"context"

	"github.com/catalystcommunity/app-utils-go/logging"
	"github.com/sirupsen/logrus"
)

// LogNotifier writes events to the application log. Used in development, where
// the confirmation link in the log stands in for the email.
type LogNotifier struct{}

func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

func (n *LogNotifier) Notify(ctx context.Context, event Event) error {
	fields := logrus.Fields{
		"account_id": event.AccountID,
		"email":      event.Email,
		"event_kind": event.Kind,
	}
	if event.ConfirmationLink != "" {
		fields["confirmation_link"] = event.ConfirmationLink
	}
	if event.ValidUntil != nil {
		fields["valid_until"] = event.ValidUntil
	}
	if event.Token != "" {
		fields["token_delivered"] = true
	}
	logging.Log.WithFields(fields).Info("Account notification")
	return nil
}
