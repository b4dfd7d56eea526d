// Package telemetry holds the OpenTelemetry instruments recorded by the
// notification and dispatch paths.
package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/moniquedpoliveira/licito"

// Metrics groups the counters. The zero value records nothing.
type Metrics struct {
	notifications  metric.Int64Counter
	attempts       metric.Int64Counter
	fanoutFailures metric.Int64Counter
	transitions    metric.Int64Counter
}

// New builds counters on the given provider, falling back to the global one.
func New(mp metric.MeterProvider) (*Metrics, error) {
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	meter := mp.Meter(meterName)
	var (
		m   Metrics
		err error
	)
	if m.notifications, err = meter.Int64Counter("licito.notifications.created",
		metric.WithDescription("In-app notifications persisted"), metric.WithUnit("{notification}")); err != nil {
		return nil, fmt.Errorf("notifications counter: %w", err)
	}
	if m.attempts, err = meter.Int64Counter("licito.dispatch.attempts",
		metric.WithDescription("Outbound delivery attempts per destination"), metric.WithUnit("{attempt}")); err != nil {
		return nil, fmt.Errorf("attempts counter: %w", err)
	}
	if m.fanoutFailures, err = meter.Int64Counter("licito.notifications.fanout_failures",
		metric.WithDescription("Best-effort notification fan-outs that failed after commit")); err != nil {
		return nil, fmt.Errorf("fanout failures counter: %w", err)
	}
	if m.transitions, err = meter.Int64Counter("licito.checklist.transitions",
		metric.WithDescription("Checklist item status changes")); err != nil {
		return nil, fmt.Errorf("transitions counter: %w", err)
	}
	return &m, nil
}

func (m *Metrics) NotificationsCreated(ctx context.Context, kind string, n int) {
	if m == nil || m.notifications == nil {
		return
	}
	m.notifications.Add(ctx, int64(n), metric.WithAttributes(attribute.String("type", kind)))
}

func (m *Metrics) DispatchAttempt(ctx context.Context, channel string, success bool) {
	if m == nil || m.attempts == nil {
		return
	}
	m.attempts.Add(ctx, 1, metric.WithAttributes(attribute.String("channel", channel), attribute.Bool("success", success)))
}

func (m *Metrics) FanoutFailed(ctx context.Context, kind string) {
	if m == nil || m.fanoutFailures == nil {
		return
	}
	m.fanoutFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("type", kind)))
}

func (m *Metrics) Transition(ctx context.Context, status string) {
	if m == nil || m.transitions == nil {
		return
	}
	m.transitions.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}
