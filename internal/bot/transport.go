// Package bot maps inbound chat commands and inline-button callbacks to
// checklist mutations. The chat transport and the payment collaborator are
// abstract interfaces; concrete bindings live outside this module.
package bot

import (
	"context"
	"log/slog"

	"github.com/dailycheck/checklistbot/internal/entitlement"
	"github.com/dailycheck/checklistbot/internal/logfields"
)

// Button is one inline keyboard button. Callback is the opaque token the
// transport round-trips back on press.
type Button struct {
	Label    string
	Callback string
}

// Keyboard is rows of buttons.
type Keyboard [][]Button

// View is a rendered message: text plus inline keyboard.
type View struct {
	Text     string
	Keyboard Keyboard
}

// MessageRef identifies an already-delivered message for editing.
type MessageRef struct {
	UserID    string
	MessageID int64
}

// Transport is the outbound chat capability the core consumes. All calls are
// fire-and-forget: failures are logged by callers, never fatal.
type Transport interface {
	SendMessage(ctx context.Context, userID string, text string, keyboard Keyboard) error
	EditMessage(ctx context.Context, ref MessageRef, text string, keyboard Keyboard) error
	AnswerCallback(ctx context.Context, callbackID string, alert string) error
}

// PaymentProvider requests an invoice from the external payment collaborator.
// Confirmation arrives separately through the daemon's payment hook.
type PaymentProvider interface {
	RequestPayment(ctx context.Context, userID string, plan entitlement.Plan) (invoiceHandle string, err error)
}

// LoggingTransport logs outbound traffic instead of delivering it. It is the
// default wiring until a concrete chat binding is attached.
type LoggingTransport struct{}

func (LoggingTransport) SendMessage(ctx context.Context, userID, text string, keyboard Keyboard) error {
	slog.Info("Outbound message", logfields.UserID(userID),
		slog.String("text", text), slog.Int("keyboard_rows", len(keyboard)))
	return nil
}

func (LoggingTransport) EditMessage(ctx context.Context, ref MessageRef, text string, keyboard Keyboard) error {
	slog.Info("Outbound edit", logfields.UserID(ref.UserID),
		slog.Int64("message_id", ref.MessageID), slog.String("text", text))
	return nil
}

func (LoggingTransport) AnswerCallback(ctx context.Context, callbackID, alert string) error {
	slog.Info("Callback answered", slog.String("callback_id", callbackID), slog.String("alert", alert))
	return nil
}

// LoggingPayments logs invoice requests instead of issuing them.
type LoggingPayments struct{}

func (LoggingPayments) RequestPayment(ctx context.Context, userID string, plan entitlement.Plan) (string, error) {
	slog.Info("Payment requested", logfields.UserID(userID), logfields.Plan(string(plan.Tier)))
	return "invoice-" + userID + "-" + string(plan.Tier), nil
}
