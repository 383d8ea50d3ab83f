package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/tradepost/authcore"
	"github.com/tradepost/authcore/audit"
	"github.com/tradepost/authcore/authz"
	"github.com/tradepost/authcore/flow"
	"github.com/tradepost/authcore/instrumentation"
	"github.com/tradepost/authcore/middleware"
	"github.com/tradepost/authcore/ownership"
	"github.com/tradepost/authcore/pipeline"
	"github.com/tradepost/authcore/providers"
	"github.com/tradepost/authcore/security"
	"github.com/tradepost/authcore/storage"
	"github.com/tradepost/authcore/storage/memory"
	"github.com/tradepost/authcore/storage/redisstore"
)

const (
	sessionCookie = "authcore_sid"

	// auditFlushDeadline bounds the final audit drain on shutdown.
	auditFlushDeadline = 3 * time.Second
)

func newServeCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the authentication endpoints",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", envOr("AUTHCORE_ADDR", ":8080"), "listen address")
	return cmd
}

func serve(ctx context.Context, addr string) error {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel()}))
	slog.SetDefault(logger)

	inst, err := instrumentation.New(instrumentation.Config{
		ServiceName: "authcored",
		Enabled:     true,
	})
	if err != nil {
		return err
	}

	cfg := &authcore.Config{
		ClientID:     os.Getenv("AUTHCORE_CLIENT_ID"),
		ClientSecret: os.Getenv("AUTHCORE_CLIENT_SECRET"),
		RedirectURL:  os.Getenv("AUTHCORE_REDIRECT_URL"),
		TenantID:     os.Getenv("AUTHCORE_TENANT_ID"),
		Logger:       logger,
		RateLimit: authcore.RateLimitConfig{
			Rate:       envInt("AUTHCORE_RATE_LIMIT", 5),
			Burst:      envInt("AUTHCORE_RATE_BURST", 10),
			TrustProxy: os.Getenv("AUTHCORE_TRUST_PROXY") == "true",
		},
		Audit: authcore.AuditConfig{
			BufferCapacity: envInt("AUTHCORE_AUDIT_BUFFER", 0),
			FlushInterval:  time.Duration(envInt("AUTHCORE_AUDIT_FLUSH_SECONDS", 0)) * time.Second,
		},
	}

	auditor := audit.NewLogger(
		&meteredSink{next: buildAuditSink(logger), metrics: inst.Metrics()},
		audit.WithCapacity(cfg.Audit.BufferCapacity),
		audit.WithFlushInterval(cfg.Audit.FlushInterval),
		audit.WithLogger(logger),
	)

	store, err := buildSessionStore(logger)
	if err != nil {
		return err
	}

	engine, err := flow.NewEngine(cfg, providers.DefaultRegistry(), store, auditor)
	if err != nil {
		return err
	}

	verifier, closeStore, err := buildVerifier(ctx, logger)
	if err != nil {
		return err
	}
	if closeStore != nil {
		defer closeStore()
	}

	guard := pipeline.NewGuard(verifier, auditor, logger,
		pipeline.WithDecisionHook(inst.Metrics().RecordAccessDecision))

	limiter := security.NewRateLimiter(cfg.RateLimit.Rate, cfg.RateLimit.Burst, logger)
	defer limiter.Stop()
	trustProxy := cfg.RateLimit.TrustProxy

	srv := &http.Server{
		Addr:              addr,
		Handler:           buildRouter(engine, guard, inst, auditor, limiter, trustProxy, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-stop:
		logger.Info("shutting down", "signal", sig.String())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown", "error", err)
	}

	// Best-effort audit drain; events still buffered past the deadline go
	// out through the sink's non-blocking path.
	flushCtx, cancelFlush := context.WithTimeout(context.Background(), auditFlushDeadline)
	defer cancelFlush()
	if err := auditor.Close(flushCtx); err != nil {
		logger.Warn("audit drain incomplete", "error", err)
	}

	return inst.Shutdown(shutdownCtx)
}

func buildRouter(engine *flow.Engine, guard *pipeline.Guard, inst *instrumentation.Instrumentation, auditor *audit.Logger, limiter *security.RateLimiter, trustProxy bool, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(inst.HTTPMiddleware())

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	r.Route("/auth/{provider}", func(r chi.Router) {
		r.Get("/login", loginHandler(engine, inst, logger))
		r.With(
			countRateLimited(inst.Metrics()),
			middleware.RateLimit(limiter, trustProxy, auditor),
		).Get("/callback", callbackHandler(engine, inst, logger))
	})

	// Demo protected surface showing the pipeline wiring. A real host
	// application mounts its own routes the same way.
	r.With(middleware.RequireAccess(guard, middleware.Policy{
		RequireAuth: true,
		Requirement: authz.Requirement{Permission: authz.PermAdminDashboard},
	})).Get("/admin", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	r.With(middleware.RequireAccess(guard, middleware.Policy{
		RequireAuth: true,
		Resource: &middleware.ResourcePolicy{
			Type:    ownership.Order,
			IDParam: "orderID",
		},
	})).Get("/orders/{orderID}", func(w http.ResponseWriter, req *http.Request) {
		dec := middleware.DecisionFrom(req.Context())
		writeJSON(w, http.StatusOK, map[string]any{
			"order_id":     chi.URLParam(req, "orderID"),
			"access_level": dec.Ownership.AccessLevel,
		})
	})

	return r
}

func loginHandler(engine *flow.Engine, inst *instrumentation.Instrumentation, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		provider := chi.URLParam(r, "provider")
		authURL, err := engine.InitiateFlow(r.Context(), sessionID(w, r), provider, nil)
		if err != nil {
			writeFlowError(w, logger, err)
			return
		}
		inst.Metrics().FlowsStarted.Add(r.Context(), 1)
		http.Redirect(w, r, authURL, http.StatusFound)
	}
}

func callbackHandler(engine *flow.Engine, inst *instrumentation.Instrumentation, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		provider := chi.URLParam(r, "provider")
		params, err := flow.ParseCallback(r.URL.String())
		if err != nil {
			writeFlowError(w, logger, err)
			return
		}

		result, err := engine.HandleCallback(r.Context(), sessionID(w, r), provider, params)
		if err != nil {
			outcome := authcore.ErrorCodeServerError
			var fe *authcore.FlowError
			if errors.As(err, &fe) {
				outcome = fe.Code
			}
			inst.Metrics().RecordCallback(r.Context(), provider, outcome)
			if outcome == authcore.ErrorCodeTokenExchangeFailed {
				inst.Metrics().ExchangeFailures.Add(r.Context(), 1)
			}
			writeFlowError(w, logger, err)
			return
		}
		inst.Metrics().RecordCallback(r.Context(), provider, "success")

		// A host application would mint its own session here; the demo
		// daemon just reports the flow outcome.
		writeJSON(w, http.StatusOK, map[string]any{
			"provider": result.Provider,
			"claims":   result.Claims,
		})
	}
}

// sessionID reads the flow session cookie, minting one when absent.
func sessionID(w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(sessionCookie); err == nil && c.Value != "" {
		return c.Value
	}
	id := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
	})
	return id
}

func buildSessionStore(logger *slog.Logger) (storage.SessionStore, error) {
	if redisAddr := os.Getenv("AUTHCORE_REDIS_ADDR"); redisAddr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     redisAddr,
			Password: os.Getenv("AUTHCORE_REDIS_PASSWORD"),
		})
		logger.Info("using redis session store", "addr", redisAddr)
		return redisstore.New(client), nil
	}
	logger.Info("using in-memory session store")
	return memory.New(), nil
}

// buildVerifier wires the ownership layer against Postgres when a DSN is
// configured. Without one, resource-scoped routes fail closed.
func buildVerifier(ctx context.Context, logger *slog.Logger) (*ownership.Verifier, func() error, error) {
	dsn := os.Getenv("AUTHCORE_DATABASE_URL")
	if dsn == "" {
		logger.Warn("no database configured; resource-scoped routes will deny")
		return nil, nil, nil
	}
	store, err := ownership.NewPostgresStore(ctx, dsn)
	if err != nil {
		return nil, nil, err
	}
	return ownership.NewVerifier(store, logger), store.Close, nil
}

// countRateLimited counts 429 responses from the rate limiter underneath.
func countRateLimited(m *instrumentation.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			if ww.Status() == http.StatusTooManyRequests {
				m.RateLimitExceeded.Add(r.Context(), 1)
			}
		})
	}
}

// meteredSink counts delivered audit events on their way to the real sink.
type meteredSink struct {
	next    audit.Sink
	metrics *instrumentation.Metrics
}

func (s *meteredSink) Flush(ctx context.Context, events []audit.Event) error {
	s.metrics.AuditEventsTotal.Add(ctx, int64(len(events)))
	return s.next.Flush(ctx, events)
}

func (s *meteredSink) FlushAsync(events []audit.Event) {
	s.metrics.AuditEventsTotal.Add(context.Background(), int64(len(events)))
	s.next.FlushAsync(events)
}

func buildAuditSink(logger *slog.Logger) audit.Sink {
	if endpoint := os.Getenv("AUTHCORE_AUDIT_URL"); endpoint != "" {
		return audit.NewHTTPSink(endpoint, nil, logger)
	}
	return audit.NewSlogSink(logger)
}

func writeFlowError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var fe *authcore.FlowError
	if !errors.As(err, &fe) {
		logger.Error("flow failed", "error", err)
		fe = authcore.ErrServerError("internal error")
	}
	writeJSON(w, fe.Status, map[string]string{
		"error":             fe.Code,
		"error_description": fe.Description,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func logLevel() slog.Level {
	switch os.Getenv("AUTHCORE_LOG_LEVEL") {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
