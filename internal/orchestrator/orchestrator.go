// Package orchestrator resolves configured backends, mounts their routes,
// and drives the HTTP server for its entire lifetime.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/mcpgateway/transport-proxy/internal/backend"
	"github.com/mcpgateway/transport-proxy/internal/config"
	"github.com/mcpgateway/transport-proxy/internal/metrics"
	"github.com/mcpgateway/transport-proxy/internal/proxyadapter"
	"github.com/mcpgateway/transport-proxy/internal/status"
	"github.com/mcpgateway/transport-proxy/internal/stdio"
	"github.com/mcpgateway/transport-proxy/internal/telemetry"
	"github.com/mcpgateway/transport-proxy/internal/transport"
)

// Orchestrator is the application entry point: it resolves the configured
// backends, composes the route tree, installs CORS, and drives the HTTP
// server for the life of the process.
type Orchestrator struct {
	cfg    *config.Config
	logger *slog.Logger
}

// New builds an Orchestrator for cfg. If logger is nil, slog.Default() is
// used.
func New(cfg *config.Config, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{cfg: cfg, logger: logger}
}

// Run mounts every configured backend's routes, starts the HTTP server, and
// blocks until ctx is cancelled or the server fails. On return, every static
// backend process this call spawned has been terminated.
//
// Precondition: if the configuration has no default and no named backends,
// this is a configuration error — Run logs it and returns nil without
// starting a listener, matching the orchestrator's documented behavior for
// an empty configuration (spec.md §7's ConfigError: "logged; orchestrator
// returns without serving").
func (o *Orchestrator) Run(ctx context.Context) error {
	if o.cfg.Default == nil && len(o.cfg.Backends) == 0 {
		o.logger.Error("no backends configured; refusing to start")
		return nil
	}

	st := status.New()
	mux := http.NewServeMux()
	rb := backend.NewRouteBuilder(mux)

	mux.Handle("/status", statusHandler(st))

	var met *metrics.Metrics
	if o.cfg.Telemetry.MetricsEnabled {
		reg := prometheus.NewRegistry()
		met = metrics.NewMetrics(reg)
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	}

	var cleanups []func() error
	runCleanups := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			if err := cleanups[i](); err != nil {
				o.logger.Warn("cleanup failed", "error", err)
			}
		}
	}
	defer runCleanups()

	// requestCounter mirrors met.RequestsTotal through OpenTelemetry's metric
	// API instead of Prometheus's; it stays nil (and instrument() skips
	// recording to it) unless tracing/OTel metrics are enabled.
	var requestCounter otelmetric.Int64Counter

	if o.cfg.Telemetry.TracingEnabled {
		_, shutdownTracing, err := telemetry.NewTracerProvider(ctx, o.cfg.Telemetry.ServiceName)
		if err != nil {
			return fmt.Errorf("orchestrator: start tracing: %w", err)
		}
		cleanups = append(cleanups, func() error {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return shutdownTracing(shutdownCtx)
		})

		_, shutdownMeter, err := telemetry.NewMeterProvider(ctx, o.cfg.Telemetry.ServiceName)
		if err != nil {
			return fmt.Errorf("orchestrator: start OTel metrics: %w", err)
		}
		cleanups = append(cleanups, func() error {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return shutdownMeter(shutdownCtx)
		})

		requestCounter, err = telemetry.Meter("mcp-transport-proxy/backend").Int64Counter(
			"mcp_requests_total",
			otelmetric.WithDescription("Total number of MCP requests processed, by backend and status"),
		)
		if err != nil {
			return fmt.Errorf("orchestrator: create OTel request counter: %w", err)
		}
	}

	sseURLs := make([]string, 0, len(o.cfg.Backends)+1)

	if o.cfg.Default != nil {
		inst := instanceFromConfig("default", *o.cfg.Default)
		if err := o.mountInstance(ctx, rb, st, met, requestCounter, inst, "", &cleanups); err != nil {
			return fmt.Errorf("orchestrator: mount default backend: %w", err)
		}
		tag := status.InstanceConfigured
		if inst.Mode == backend.Dynamic {
			tag = status.InstanceDynamic
		}
		st.SetInstance("default", tag)
		sseURLs = append(sseURLs, "/sse")
	}

	for _, b := range o.cfg.Backends {
		inst := instanceFromConfig(b.Name, b)
		prefix := "/servers/" + b.Name
		if err := o.mountInstance(ctx, rb, st, met, requestCounter, inst, prefix, &cleanups); err != nil {
			return fmt.Errorf("orchestrator: mount backend %s: %w", b.Name, err)
		}
		tag := status.InstanceStatic
		if inst.Mode == backend.Dynamic {
			tag = status.InstanceDynamic
		}
		st.SetInstance(b.Name, tag)
		sseURLs = append(sseURLs, prefix+"/sse")
	}

	o.logger.Info("serving MCP backends via SSE")
	for _, u := range sseURLs {
		o.logger.Info("mounted SSE route", "url", u)
	}

	var handler http.Handler = mux
	if len(o.cfg.Server.AllowOrigins) > 0 {
		handler = corsMiddleware(o.cfg.Server.AllowOrigins, handler)
	}

	server := &http.Server{
		Addr:    o.cfg.Server.HTTPAddr,
		Handler: handler,
	}

	errCh := make(chan error, 1)
	go func() {
		o.logger.Info("starting HTTP server", "addr", o.cfg.Server.HTTPAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		o.logger.Info("context cancelled, shutting down HTTP server")
	case err := <-errCh:
		if err != nil {
			return err
		}
		return nil
	}

	shutdownTimeout, err := time.ParseDuration(o.cfg.Server.ShutdownTimeout)
	if err != nil {
		shutdownTimeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		o.logger.Error("error during server shutdown", "error", err)
		return err
	}

	<-errCh
	o.logger.Info("HTTP server shutdown complete")
	return nil
}

// instanceFromConfig builds a backend.Instance from a BackendConfig without
// spawning anything.
func instanceFromConfig(name string, b config.BackendConfig) backend.Instance {
	mode := backend.Static
	if b.Dynamic() {
		mode = backend.Dynamic
	}
	return backend.Instance{
		Name: name,
		Mode: mode,
		Params: backend.Params{
			Command: b.Command,
			Args:    b.Args,
			Dir:     b.Dir,
			Env:     b.Env,
		},
		HeaderMapping: backend.HeaderMapping(b.HeaderMapping),
	}
}

// mountInstance spawns (Static) or defers spawning (Dynamic) inst's backend
// process and mounts its routes at prefix ("" for the default backend).
func (o *Orchestrator) mountInstance(ctx context.Context, rb *backend.RouteBuilder, st *status.GlobalStatus, met *metrics.Metrics, requestCounter otelmetric.Int64Counter, inst backend.Instance, prefix string, cleanups *[]func() error) error {
	if inst.Mode == backend.Dynamic {
		handlers := backend.Handlers{
			SSE:        instrument(met, requestCounter, inst.Name, transport.NewDynamicSSEHandler(inst, st, prefix, o.logger)),
			Streamable: instrument(met, requestCounter, inst.Name, transport.NewDynamicStreamableHandler(inst, st, o.logger)),
		}
		if prefix == "" {
			rb.MountDefault(handlers)
		} else {
			rb.MountNamed(inst.Name, handlers)
		}
		return nil
	}

	proc, err := stdio.Open(ctx, stdio.Params{
		Command: inst.Params.Command,
		Args:    inst.Params.Args,
		Dir:     inst.Params.Dir,
		Env:     inst.Params.Env,
		Logger:  o.logger,
	})
	if err != nil {
		if met != nil {
			met.BackendSpawnFail.WithLabelValues(inst.Name).Inc()
		}
		return fmt.Errorf("spawn backend %s: %w", inst.Name, err)
	}
	if met != nil {
		met.BackendSpawns.WithLabelValues(inst.Name).Inc()
		met.BackendUptime.WithLabelValues(inst.Name).Set(1)
	}

	pmux := proxyadapter.NewMultiplexer(proc, o.logger)
	runCtx, cancelRun := context.WithCancel(context.Background())
	go func() { _ = pmux.Run(runCtx) }()

	*cleanups = append(*cleanups, func() error {
		cancelRun()
		if met != nil {
			met.BackendUptime.WithLabelValues(inst.Name).Set(0)
		}
		return proc.Close()
	})

	handlers := backend.Handlers{
		SSE:        instrument(met, requestCounter, inst.Name, transport.NewSSEHandler(pmux, st, prefix, o.logger)),
		Messages:   instrument(met, requestCounter, inst.Name, transport.NewMessagesHandler(pmux, st, o.logger)),
		Streamable: instrument(met, requestCounter, inst.Name, transport.NewStaticStreamableHandler(pmux, st, o.logger)),
	}
	if prefix == "" {
		rb.MountDefault(handlers)
	} else {
		rb.MountNamed(inst.Name, handlers)
	}
	return nil
}

// instrument wraps next so every request against backendName is traced (a
// span covering the handler's full spawn→handshake→pump→teardown duration,
// since SSE/Streamable-HTTP handlers block for the session's lifetime) and,
// when metrics are enabled, counted with request-count/duration/in-flight
// observations.
func instrument(met *metrics.Metrics, requestCounter otelmetric.Int64Counter, backendName string, next http.Handler) http.Handler {
	traced := withTracing(backendName, next)
	if met == nil && requestCounter == nil {
		return traced
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		if met != nil {
			met.ActiveSessions.Inc()
		}
		traced.ServeHTTP(rec, r)
		if met != nil {
			met.ActiveSessions.Dec()
			met.RequestDuration.WithLabelValues(backendName).Observe(time.Since(started).Seconds())
			met.RequestsTotal.WithLabelValues(backendName, http.StatusText(rec.status)).Inc()
		}
		if requestCounter != nil {
			requestCounter.Add(r.Context(), 1,
				otelmetric.WithAttributes(
					attribute.String("backend", backendName),
					attribute.String("status", http.StatusText(rec.status)),
				),
			)
		}
	})
}

// withTracing starts a span named for backendName around next's ServeHTTP
// call. When tracing is disabled, telemetry.Tracer resolves to OpenTelemetry's
// no-op implementation, so this wrapper is always safe to apply.
func withTracing(backendName string, next http.Handler) http.Handler {
	tracer := telemetry.Tracer("mcp-transport-proxy/backend")
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "backend.session",
			trace.WithAttributes(
				attribute.String("backend.name", backendName),
				attribute.String("http.method", r.Method),
				attribute.String("http.path", r.URL.Path),
			),
		)
		defer span.End()
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Flush lets an instrumented SSE/Streamable-HTTP handler keep using
// http.Flusher through the wrapper.
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func statusHandler(st *status.GlobalStatus) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(st.Snapshot())
	}
}

// corsMiddleware allows the configured origins, all methods, and all
// headers, matching spec.md §6's "CORS, when enabled, permits all methods
// and headers from the configured origins."
func corsMiddleware(allowOrigins []string, next http.Handler) http.Handler {
	allowed := make(map[string]struct{}, len(allowOrigins))
	for _, o := range allowOrigins {
		allowed[o] = struct{}{}
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if _, ok := allowed[origin]; ok {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "*")
			w.Header().Set("Access-Control-Allow-Headers", "*")
			w.Header().Set("Vary", "Origin")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
