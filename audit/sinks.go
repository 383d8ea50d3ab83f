package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// SlogSink writes events to a structured logger. It never fails, making it
// the right default for single-process deployments.
type SlogSink struct {
	logger *slog.Logger
}

// NewSlogSink creates a sink over the given logger.
func NewSlogSink(logger *slog.Logger) *SlogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogSink{logger: logger}
}

// Flush logs each event.
func (s *SlogSink) Flush(_ context.Context, events []Event) error {
	for _, e := range events {
		s.logger.Info("security_audit",
			"event_id", e.ID,
			"event_type", e.Type,
			"severity", e.Severity,
			"layer", int(e.Layer),
			"user_id", e.UserID,
			"resource_type", e.ResourceType,
			"resource_id", e.ResourceID,
			"permission", e.Permission,
			"route", e.Route,
			"timestamp", e.Timestamp,
			"details", e.Details,
		)
	}
	return nil
}

// FlushAsync logs synchronously; slog does not block on network I/O.
func (s *SlogSink) FlushAsync(events []Event) {
	_ = s.Flush(context.Background(), events)
}

// HTTPSink posts event batches as JSON to a collector endpoint.
type HTTPSink struct {
	endpoint string
	client   *http.Client
	logger   *slog.Logger
}

// asyncFlushTimeout bounds the fire-and-forget delivery attempt so shutdown
// goroutines do not linger.
const asyncFlushTimeout = 2 * time.Second

// NewHTTPSink creates an HTTP sink. A nil client gets a 10-second timeout
// default.
func NewHTTPSink(endpoint string, client *http.Client, logger *slog.Logger) *HTTPSink {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPSink{endpoint: endpoint, client: client, logger: logger}
}

// Flush posts the batch and fails on any non-2xx response.
func (s *HTTPSink) Flush(ctx context.Context, events []Event) error {
	body, err := json.Marshal(events)
	if err != nil {
		return fmt.Errorf("failed to marshal audit batch: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build audit request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to deliver audit batch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("audit sink returned status %d", resp.StatusCode)
	}
	return nil
}

// FlushAsync fires the batch from a goroutine and discards the outcome.
// This is the unload escape hatch: it must not delay the caller.
func (s *HTTPSink) FlushAsync(events []Event) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), asyncFlushTimeout)
		defer cancel()
		if err := s.Flush(ctx, events); err != nil {
			s.logger.Debug("best-effort audit flush failed", "events", len(events), "error", err)
		}
	}()
}
