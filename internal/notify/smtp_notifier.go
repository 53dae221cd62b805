package notify

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/textproto"
	"strings"

	"gopkg.in/gomail.v2"
)

// Sender sends composed messages. *gomail.Dialer implements it.
type Sender interface {
	DialAndSend(m ...*gomail.Message) error
}

type SMTPConfig struct {
	Host       string
	Port       int
	Username   string
	Password   string
	From       string
	AdminEmail string
}

// SMTPNotifier emails requesters, and the administrator for events that need a decision
type SMTPNotifier struct {
	sender     Sender
	from       string
	adminEmail string
}

func NewSMTPNotifier(cfg SMTPConfig) *SMTPNotifier {
	return NewSMTPNotifierWithSender(gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password), cfg.From, cfg.AdminEmail)
}

func NewSMTPNotifierWithSender(sender Sender, from, adminEmail string) *SMTPNotifier {
	return &SMTPNotifier{sender: sender, from: from, adminEmail: adminEmail}
}

func (n *SMTPNotifier) Notify(ctx context.Context, event Event) error {
	messages, err := n.compose(event)
	if err != nil {
		return err
	}
	if len(messages) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := n.sender.DialAndSend(messages...); err != nil {
		return classifySMTPError(err)
	}
	return nil
}

func (n *SMTPNotifier) message(to, subject, body string) *gomail.Message {
	m := gomail.NewMessage()
	m.SetHeader("From", n.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", body)
	return m
}

func (n *SMTPNotifier) compose(event Event) ([]*gomail.Message, error) {
	greeting := "Hello"
	if event.Name != "" {
		greeting = "Hello " + event.Name
	}

	switch event.Kind {
	case EventRequested:
		body := fmt.Sprintf("%s,\n\nWe received your request for access to the La Coctelera API.\n"+
			"Please confirm your email address by following this link:\n\n%s\n\n"+
			"If you did not request access you can ignore this message.\n", greeting, event.ConfirmationLink)
		return []*gomail.Message{n.message(event.Email, "Confirm your La Coctelera API request", body)}, nil

	case EventValidated:
		if n.adminEmail == "" {
			return nil, nil
		}
		body := fmt.Sprintf("A new API access request awaits evaluation.\n\nAccount: %s\nEmail: %s\n",
			event.AccountID, event.Email)
		return []*gomail.Message{n.message(n.adminEmail, "Pending La Coctelera API request", body)}, nil

	case EventEnabled:
		var b strings.Builder
		fmt.Fprintf(&b, "%s,\n\nYour access to the La Coctelera API has been enabled.\n", greeting)
		if event.Token != "" {
			fmt.Fprintf(&b, "\nYour API token is:\n\n%s\n\nSend it in the Authorization header as \"Bearer <token>\". "+
				"It is shown only once, keep it safe.\n", event.Token)
		}
		if event.ValidUntil != nil {
			fmt.Fprintf(&b, "\nThe token is valid until %s.\n", event.ValidUntil.UTC().Format("2006-01-02 15:04 MST"))
		}
		return []*gomail.Message{n.message(event.Email, "Your La Coctelera API access", b.String())}, nil

	case EventDisabled:
		body := fmt.Sprintf("%s,\n\nYour access to the La Coctelera API has been suspended.\n", greeting)
		return []*gomail.Message{n.message(event.Email, "La Coctelera API access suspended", body)}, nil

	case EventRejected:
		body := fmt.Sprintf("%s,\n\nYour request for access to the La Coctelera API was not approved.\n", greeting)
		return []*gomail.Message{n.message(event.Email, "La Coctelera API request", body)}, nil

	case EventTokenExpiring:
		expires := "soon"
		if event.ValidUntil != nil {
			expires = "on " + event.ValidUntil.UTC().Format("2006-01-02 15:04 MST")
		}
		body := fmt.Sprintf("%s,\n\nOne of your La Coctelera API tokens expires %s.\n"+
			"Contact the administrator to get a new one.\n", greeting, expires)
		return []*gomail.Message{n.message(event.Email, "Your La Coctelera API token is expiring", body)}, nil
	}
	return nil, fmt.Errorf("unknown event kind %q", event.Kind)
}

// classifySMTPError marks connection failures and 4xx replies as retryable
func classifySMTPError(err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return &RetryableError{Err: err, Retryable: true, Reason: "network error"}
	}
	var protoErr *textproto.Error
	if errors.As(err, &protoErr) && protoErr.Code >= 400 && protoErr.Code < 500 {
		return &RetryableError{Err: err, Retryable: true, Reason: "transient SMTP reply"}
	}
	return err
}
