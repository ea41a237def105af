// Package mail builds account emails and delivers them over SMTP.
package mail

import (
	"context"
	"errors"
	"strings"
)

// ErrNoRecipient is returned for messages without a To address.
var ErrNoRecipient = errors.New("mail: empty recipient")

// Message is one outgoing email. HTML is optional; Body is always sent as the
// plain text part.
type Message struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
	HTML    string `json:"html,omitempty"`
}

// Validate checks the message can be delivered.
func (m Message) Validate() error {
	if strings.TrimSpace(m.To) == "" {
		return ErrNoRecipient
	}
	if m.Subject == "" && m.Body == "" {
		return errors.New("mail: empty message")
	}
	return nil
}

// Sender delivers a message synchronously.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Dispatcher hands a message over for asynchronous delivery.
type Dispatcher interface {
	Dispatch(ctx context.Context, msg Message) error
}

// DispatcherFunc adapts a function to Dispatcher.
type DispatcherFunc func(ctx context.Context, msg Message) error

// Dispatch implements Dispatcher.
func (f DispatcherFunc) Dispatch(ctx context.Context, msg Message) error {
	return f(ctx, msg)
}
