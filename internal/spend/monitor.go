// Package spend watches cumulative run cost against a configured budget and
// raises alerts at warning, critical, and exceeded thresholds. Alerts are
// deduplicated per level so a run sitting at 85% does not page on every
// request.
package spend

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/agentlab/inference-gateway/internal/notifications"
)

type AlertLevel string

const (
	AlertLevelWarning  AlertLevel = "warning"
	AlertLevelCritical AlertLevel = "critical"
	AlertLevelExceeded AlertLevel = "exceeded"
)

type Alert struct {
	Level      AlertLevel
	Budget     float64
	CurrentUse float64
	Percentage float64
	Timestamp  time.Time
}

type Thresholds struct {
	Warning  float64
	Critical float64
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		Warning:  0.8,
		Critical: 0.95,
	}
}

// SpendFunc reports the run's cumulative cost in USD.
type SpendFunc func() float64

type Monitor struct {
	budget     float64
	thresholds Thresholds
	spend      SpendFunc
	dedup      Deduplicator
	notifier   notifications.Notifier
	logger     *slog.Logger
}

// NewMonitor builds a monitor. A zero or negative budget disables checking.
func NewMonitor(budget float64, thresholds Thresholds, spend SpendFunc, dedup Deduplicator, notifier notifications.Notifier, logger *slog.Logger) *Monitor {
	return &Monitor{
		budget:     budget,
		thresholds: thresholds,
		spend:      spend,
		dedup:      dedup,
		notifier:   notifier,
		logger:     logger,
	}
}

// Check compares current spend against the budget and dispatches at most one
// notification per crossed level. Returns the alert raised, if any.
func (m *Monitor) Check(ctx context.Context) *Alert {
	if m.budget <= 0 {
		return nil
	}

	current := m.spend()
	percentage := current / m.budget

	var level AlertLevel
	switch {
	case percentage >= 1.0:
		level = AlertLevelExceeded
	case percentage >= m.thresholds.Critical:
		level = AlertLevelCritical
	case percentage >= m.thresholds.Warning:
		level = AlertLevelWarning
	default:
		m.dedup.Clear(ctx)
		return nil
	}

	if !m.dedup.ShouldAlert(ctx, level) {
		return nil
	}

	alert := &Alert{
		Level:      level,
		Budget:     m.budget,
		CurrentUse: current,
		Percentage: percentage * 100,
		Timestamp:  time.Now(),
	}

	m.logger.Warn("run spend alert",
		"level", alert.Level,
		"budget_usd", alert.Budget,
		"spend_usd", alert.CurrentUse,
		"percentage", alert.Percentage)

	if m.notifier != nil {
		notification := notifications.Notification{
			Type:    notificationType(level),
			Message: fmt.Sprintf("run spend $%.4f is %.1f%% of the $%.2f budget", current, alert.Percentage, m.budget),
			Data: map[string]interface{}{
				"budget_usd": m.budget,
				"spend_usd":  current,
			},
		}
		if err := m.notifier.Send(ctx, notification); err != nil {
			m.logger.Error("send spend notification", "error", err)
		}
	}

	return alert
}

// Exceeded reports whether the run has spent its full budget.
func (m *Monitor) Exceeded() bool {
	if m.budget <= 0 {
		return false
	}
	return m.spend() >= m.budget
}

func notificationType(level AlertLevel) notifications.NotificationType {
	switch level {
	case AlertLevelExceeded:
		return notifications.NotificationSpendExceeded
	case AlertLevelCritical:
		return notifications.NotificationSpendCritical
	default:
		return notifications.NotificationSpendWarning
	}
}
