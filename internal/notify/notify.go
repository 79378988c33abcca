// Package notify delivers the notification requests the engine emits. The
// engine never talks to users directly; it hands a Notification to a
// Notifier after the triggering change has been committed.
package notify

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

type Type string

const (
	TypeEventSubmitted        Type = "event_submitted"
	TypeEventApproved         Type = "event_approved"
	TypeEventRejected         Type = "event_rejected"
	TypeEventCancelled        Type = "event_cancelled"
	TypeEventReminder         Type = "event_reminder"
	TypeRegistrationConfirmed Type = "registration_confirmed"
	TypeResourceAssigned      Type = "resource_assigned"
	TypeResourceDecided       Type = "resource_decided"
	TypeExpenseDecided        Type = "expense_decided"
)

type Notification struct {
	Recipients []string          `json:"recipients"`
	Type       Type              `json:"type"`
	Message    string            `json:"message"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
}

type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// Nop drops every notification.
type Nop struct{}

func (Nop) Notify(context.Context, Notification) error { return nil }

// LogNotifier writes notifications to a structured logger.
type LogNotifier struct {
	Logger *slog.Logger
}

func (l LogNotifier) Notify(ctx context.Context, n Notification) error {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "Notification", "type", n.Type, "recipients", n.Recipients, "message", n.Message, "metadata", n.Metadata)
	return nil
}

// Fanout delivers to every notifier and joins their errors. A failing
// channel does not stop delivery on the others.
type Fanout []Notifier

func (f Fanout) Notify(ctx context.Context, n Notification) error {
	var errs []error
	for _, notifier := range f {
		if err := notifier.Notify(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
