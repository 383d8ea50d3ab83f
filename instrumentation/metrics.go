package instrumentation

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds all metric instruments for the auth core
type Metrics struct {
	// HTTP layer
	HTTPRequestsTotal   metric.Int64Counter
	HTTPRequestDuration metric.Float64Histogram

	// Flow engine
	FlowsStarted       metric.Int64Counter
	CallbacksProcessed metric.Int64Counter
	ExchangeFailures   metric.Int64Counter

	// Access control pipeline
	AccessDecisions metric.Int64Counter

	// Audit
	AuditEventsTotal metric.Int64Counter

	// Security
	RateLimitExceeded metric.Int64Counter
}

// newMetrics creates and registers all metric instruments
func newMetrics(inst *Instrumentation) (*Metrics, error) {
	m := &Metrics{}

	httpMeter := inst.Meter("http")
	flowMeter := inst.Meter("flow")
	pipelineMeter := inst.Meter("pipeline")
	auditMeter := inst.Meter("audit")
	securityMeter := inst.Meter("security")

	var err error
	m.HTTPRequestsTotal, err = httpMeter.Int64Counter(
		"auth.http.requests.total",
		metric.WithDescription("Total number of HTTP requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http.requests.total counter: %w", err)
	}

	m.HTTPRequestDuration, err = httpMeter.Float64Histogram(
		"auth.http.request.duration",
		metric.WithDescription("HTTP request duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http.request.duration histogram: %w", err)
	}

	m.FlowsStarted, err = flowMeter.Int64Counter(
		"auth.flow.started",
		metric.WithDescription("Number of authorization flows initiated"),
		metric.WithUnit("{flow}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create flow.started counter: %w", err)
	}

	m.CallbacksProcessed, err = flowMeter.Int64Counter(
		"auth.flow.callbacks",
		metric.WithDescription("Number of provider callbacks processed"),
		metric.WithUnit("{callback}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create flow.callbacks counter: %w", err)
	}

	m.ExchangeFailures, err = flowMeter.Int64Counter(
		"auth.flow.exchange.failures",
		metric.WithDescription("Number of failed code-for-token exchanges"),
		metric.WithUnit("{failure}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create flow.exchange.failures counter: %w", err)
	}

	m.AccessDecisions, err = pipelineMeter.Int64Counter(
		"auth.access.decisions",
		metric.WithDescription("Access control decisions by layer and outcome"),
		metric.WithUnit("{decision}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create access.decisions counter: %w", err)
	}

	m.AuditEventsTotal, err = auditMeter.Int64Counter(
		"auth.audit.events.total",
		metric.WithDescription("Number of audit events recorded"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create audit.events.total counter: %w", err)
	}

	m.RateLimitExceeded, err = securityMeter.Int64Counter(
		"auth.rate_limit.exceeded",
		metric.WithDescription("Number of rate limit violations"),
		metric.WithUnit("{violation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create rate_limit.exceeded counter: %w", err)
	}

	return m, nil
}

// RecordAccessDecision records one pipeline decision.
func (m *Metrics) RecordAccessDecision(ctx context.Context, layer int, allowed bool) {
	m.AccessDecisions.Add(ctx, 1, metric.WithAttributes(
		attribute.Int("layer", layer),
		attribute.Bool("allowed", allowed),
	))
}

// RecordCallback records one processed callback with its outcome code
// ("success" or the terminal error code).
func (m *Metrics) RecordCallback(ctx context.Context, provider, outcome string) {
	m.CallbacksProcessed.Add(ctx, 1, metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("outcome", outcome),
	))
}
