// Package notify delivers terminal batch notifications. Delivery failures
// are logged and swallowed; they never affect job state.
package notify

import (
	"context"
	"errors"
	"log/slog"

	"github.com/clearform/photo-upscaler/pkg/schema"
)

// Notifier sends one human-readable completion message. The event carries
// the structured counterpart for transports that can use it.
type Notifier interface {
	Send(ctx context.Context, message string, event schema.BatchDone) error
}

// Nop discards every notification.
type Nop struct{}

func (Nop) Send(context.Context, string, schema.BatchDone) error { return nil }

// Chain tries each notifier in order and stops at the first success.
type Chain struct {
	Notifiers []Notifier
	Logger    *slog.Logger
}

func (c Chain) Send(ctx context.Context, message string, event schema.BatchDone) error {
	var errs []error
	for _, n := range c.Notifiers {
		err := n.Send(ctx, message, event)
		if err == nil {
			return nil
		}
		c.Logger.Warn("notification delivery failed", "err", err)
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return errors.New("no notifiers configured")
	}
	return errors.Join(errs...)
}
