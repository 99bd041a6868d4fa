// Package mail is the outbound notification boundary. Delivery itself is
// an external collaborator; the provider only hands over a Message.
package mail

import (
	"context"
	"log/slog"
	"slices"
	"sync"

	"github.com/aussiebroadwan/tollgate/pkg/slogx"
)

// Templates used by the provider.
const (
	TemplateEmailOTP = "mfa_email_otp"
)

type Message struct {
	Template  string
	Recipient string
	Vars      map[string]string
}

type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// LogSender logs messages instead of delivering them. Vars are only
// logged when Verbose is set since they may hold one-time codes.
type LogSender struct {
	Verbose bool
}

func (s LogSender) Send(ctx context.Context, msg Message) error {
	attrs := []any{
		slog.String("template", msg.Template),
		slog.String("recipient", msg.Recipient),
	}
	if s.Verbose {
		attrs = append(attrs, slog.Any("vars", msg.Vars))
	}
	slogx.FromContext(ctx).Info("mail: message queued", attrs...)
	return nil
}

// Outbox records messages in memory.
type Outbox struct {
	mu   sync.Mutex
	msgs []Message
	// Err, when set, is returned by Send after recording.
	Err error
}

func (o *Outbox) Send(_ context.Context, msg Message) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.msgs = append(o.msgs, msg)
	return o.Err
}

func (o *Outbox) Messages() []Message {
	o.mu.Lock()
	defer o.mu.Unlock()
	return slices.Clone(o.msgs)
}

// Last returns the most recent message to recipient.
func (o *Outbox) Last(recipient string) (Message, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for i := len(o.msgs) - 1; i >= 0; i-- {
		if o.msgs[i].Recipient == recipient {
			return o.msgs[i], true
		}
	}
	return Message{}, false
}
