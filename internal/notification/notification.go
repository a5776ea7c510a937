package notification

import (
	"context"
	"log/slog"
)

const (
	KindUserRegistered  = "user_registered"
	KindUserLogin       = "user_login"
	KindPINVerified     = "pin_verified"
	KindPlanRequested   = "plan_requested"
	KindIDCardRequested = "idcard_requested"
	KindStepApproved    = "step_approved"
)

// Message describes a notification payload. An empty Destination addresses
// the operator mailbox configured on the sink.
type Message struct {
	Kind        string
	Destination string
	Subject     string
	Body        string
}

// Notifier delivers notifications to downstream systems.
type Notifier interface {
	Send(ctx context.Context, message Message) error
}

// LoggerNotifier writes notifications to the logger instead of delivering them.
type LoggerNotifier struct {
	logger *slog.Logger
}

// NewLoggerNotifier constructs a logging notifier.
func NewLoggerNotifier(logger *slog.Logger) *LoggerNotifier {
	return &LoggerNotifier{logger: logger}
}

// Send writes the message to the structured logger.
func (n *LoggerNotifier) Send(_ context.Context, message Message) error {
	if n == nil || n.logger == nil {
		return nil
	}
	n.logger.Info("notification",
		slog.String("kind", message.Kind),
		slog.String("destination", message.Destination),
		slog.String("subject", message.Subject),
		slog.String("body", message.Body),
	)
	return nil
}
