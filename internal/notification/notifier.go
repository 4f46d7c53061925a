// Package notification delivers signal and status alerts to external
// channels (Telegram, webhooks, the log).
package notification

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"smc-systemv1/internal/model"
)

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
	Title   string     `json:"title"`
	Message string     `json:"message"`
	// SignalID links the alert to a stored signal, when there is one.
	SignalID string `json:"signal_id,omitempty"`
}

// Notifier is the interface for all notification backends.
type Notifier interface {
	// Send delivers an alert. Returns error if delivery fails.
	Send(ctx context.Context, alert Alert) error
}

// LogNotifier writes alerts to the process log.
type LogNotifier struct{}

// NewLogNotifier creates a log-based notifier.
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

func (n *LogNotifier) Send(ctx context.Context, alert Alert) error {
	log.Printf("[notify] [%s] %s: %s", alert.Level, alert.Title, alert.Message)
	return nil
}

// Multi sends every alert to all backends and joins their errors.
type Multi []Notifier

func (m Multi) Send(ctx context.Context, alert Alert) error {
	var errs []error
	for _, n := range m {
		if err := n.Send(ctx, alert); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// SignalAlert renders a newly emitted signal.
func SignalAlert(sig *model.Signal) Alert {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s on %s\n", sig.Action, sig.Symbol, sig.Timeframe)
	fmt.Fprintf(&b, "Entry %g  SL %g\n", sig.Entry, sig.StopLoss)
	fmt.Fprintf(&b, "TP1 %g  TP2 %g  TP3 %g\n", sig.TakeProfit1, sig.TakeProfit2, sig.TakeProfit3)
	fmt.Fprintf(&b, "Confidence %d%%  RR %.2f", sig.ConfidenceOverall, sig.RiskRewardRatio)
	for _, r := range sig.Reasons {
		b.WriteString("\n- " + r)
	}
	return Alert{
		Level:    AlertInfo,
		Title:    fmt.Sprintf("%s %s %s", sig.Symbol, sig.Timeframe, sig.Action),
		Message:  b.String(),
		SignalID: sig.ID,
	}
}

// StatusAlert renders a lifecycle change. Stops are warnings.
func StatusAlert(sig model.Signal, u model.StatusUpdate, pips float64) Alert {
	level := AlertInfo
	if u.Status == model.StatusHitSL {
		level = AlertWarning
	}
	return Alert{
		Level:    level,
		Title:    fmt.Sprintf("%s %s %s", sig.Symbol, sig.Action, u.Status),
		Message:  fmt.Sprintf("exit %g (%+.1f pips), entry %g", u.ExitPrice, pips, sig.Entry),
		SignalID: u.ID,
	}
}
