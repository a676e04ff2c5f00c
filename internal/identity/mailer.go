package identity

import (
	"context"
	"log"
)

// Message is one outbound email.
type Message struct {
	ToEmail string
	ToName  string
	Subject string
	Text    string
	HTML    string
}

// Mailer delivers messages. Send failures are caught by callers: any
// single-use token created for the message is deleted so a retry cannot
// collide, and the user sees a "could not send" result instead of a fault.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// LogMailer writes messages to the process log instead of delivering them.
// Used when no delivery backend is configured so invitation links still
// reach the operator.
type LogMailer struct{}

func (LogMailer) Send(ctx context.Context, msg Message) error {
	log.Printf("mail to=%s subject=%q body=%q", msg.ToEmail, msg.Subject, msg.Text)
	return nil
}
