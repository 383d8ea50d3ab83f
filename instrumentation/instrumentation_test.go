package instrumentation

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNew_Defaults(t *testing.T) {
	inst, err := New(Config{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if inst.Metrics() == nil {
		t.Fatal("expected metrics holder")
	}
	if inst.MeterProvider() == nil || inst.TracerProvider() == nil {
		t.Fatal("expected providers")
	}
	if err := inst.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown: %v", err)
	}
}

func TestNew_DisabledUsesNoop(t *testing.T) {
	inst, err := New(Config{ServiceName: "test", Enabled: false})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	// Recording against no-op instruments must not panic.
	inst.Metrics().RecordAccessDecision(context.Background(), 2, false)
	inst.Metrics().RecordCallback(context.Background(), "google", "success")
	inst.Metrics().FlowsStarted.Add(context.Background(), 1)
}

func TestHTTPMiddleware(t *testing.T) {
	inst, err := New(Config{ServiceName: "test"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	handler := inst.HTTPMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/auth/login", nil))
	if rec.Code != http.StatusTeapot {
		t.Errorf("middleware must pass the response through, got %d", rec.Code)
	}
}

func TestShutdown_Idempotent(t *testing.T) {
	inst, err := New(Config{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	for i := 0; i < 2; i++ {
		if err := inst.Shutdown(context.Background()); err != nil {
			t.Errorf("Shutdown call %d: %v", i+1, err)
		}
	}
}
