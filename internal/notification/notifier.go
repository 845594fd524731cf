// Package notification delivers signal messages to external channels
// (Telegram, webhooks, Redis pub/sub) and gates delivery on signal changes.
package notification

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"nifty-signal/internal/signal"
)

// ErrTransport wraps every delivery failure.
var ErrTransport = errors.New("notification: transport error")

// AlertLevel represents the severity of an alert.
type AlertLevel string

const (
	AlertInfo     AlertLevel = "INFO"
	AlertWarning  AlertLevel = "WARNING"
	AlertCritical AlertLevel = "CRITICAL"
)

// Alert represents a notification to be sent.
type Alert struct {
	Level   AlertLevel `json:"level"`
	Title   string     `json:"title"`   // instrument name
	Message string     `json:"message"` // fully formatted signal line

	// Set for signal alerts.
	Signal  signal.Text `json:"signal,omitempty"`
	Close   float64     `json:"close,omitempty"`
	BarTime time.Time   `json:"bar_time"`
}

// Notifier is the interface for all notification backends.
type Notifier interface {
	// Send delivers an alert. Returns error if delivery fails.
	Send(ctx context.Context, alert Alert) error
}

// LogNotifier is a simple notifier that logs alerts (useful for development).
type LogNotifier struct{}

// NewLogNotifier creates a log-based notifier.
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

func (n *LogNotifier) Send(ctx context.Context, alert Alert) error {
	slog.InfoContext(ctx, "[notify] alert",
		slog.String("level", string(alert.Level)),
		slog.String("title", alert.Title),
		slog.String("message", alert.Message),
	)
	return nil
}

// Multi sends to a primary notifier and best-effort to secondaries.
// Only the primary's result is reported.
type Multi struct {
	primary     Notifier
	secondaries []Notifier
}

// NewMulti creates a fan-out notifier.
func NewMulti(primary Notifier, secondaries ...Notifier) *Multi {
	return &Multi{primary: primary, secondaries: secondaries}
}

func (m *Multi) Send(ctx context.Context, alert Alert) error {
	err := m.primary.Send(ctx, alert)
	for _, s := range m.secondaries {
		if serr := s.Send(ctx, alert); serr != nil {
			slog.WarnContext(ctx, "[notify] secondary delivery failed", slog.Any("error", serr))
		}
	}
	return err
}
