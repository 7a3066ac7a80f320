package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sqlmind/sqlmind/internal/auth"
	"github.com/sqlmind/sqlmind/internal/config"
	"github.com/sqlmind/sqlmind/internal/engine"
	"github.com/sqlmind/sqlmind/internal/executor"
	"github.com/sqlmind/sqlmind/internal/observability"
	"github.com/sqlmind/sqlmind/internal/schema"
	"github.com/sqlmind/sqlmind/internal/session"
)

type ReadinessCheck func(ctx context.Context) error

// Resolver is the engine surface the API depends on.
type Resolver interface {
	ProcessQuery(ctx context.Context, question string) engine.Resolution
	LearnFromSuccess(question, sql string) error
	LearnFromCorrection(question, generatedSQL, correctedSQL, feedback string) (engine.CorrectionRecord, error)
	Optimize() int
	ClearCache() int
	Stats() engine.Stats
	Snapshot() engine.State
	Corrections(limit int) []engine.CorrectionRecord
}

// Persister saves the learned state on demand.
type Persister interface {
	Save(ctx context.Context, state engine.State) error
}

// Archiver exports correction history.
type Archiver interface {
	Archive(ctx context.Context, records []engine.CorrectionRecord) (string, error)
}

// SchemaInspector returns the structured schema for the inspection endpoint.
type SchemaInspector interface {
	Snapshot(ctx context.Context) (schema.Schema, error)
}

type Dependencies struct {
	Logger            *slog.Logger
	Readiness         ReadinessCheck
	AuthMiddleware    func(http.Handler) http.Handler
	DependencyTimeout time.Duration
	Resolver          Resolver
	Executor          executor.Executor
	Persister         Persister
	Archiver          Archiver
	Sessions          *session.Manager
	Schema            SchemaInspector
}

func NewHandler(cfg config.Config, deps Dependencies) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /v1/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "service": cfg.Service.Name})
	})

	mux.HandleFunc("GET /v1/ready", func(w http.ResponseWriter, r *http.Request) {
		if deps.Readiness == nil {
			writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
			return
		}
		timeout := deps.DependencyTimeout
		if timeout <= 0 {
			timeout = 2 * time.Second
		}
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()
		if err := deps.Readiness(ctx); err != nil {
			writeError(r.Context(), w, http.StatusServiceUnavailable, "NOT_READY", err.Error(), true, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
	})

	mux.Handle("GET /v1/metrics", promhttp.Handler())

	analyst := auth.RequireRole(auth.RoleAnalyst)
	trainer := auth.RequireRole(auth.RoleTrainer)
	admin := auth.RequireRole(auth.RoleAdmin)

	protected := http.NewServeMux()
	protected.Handle("POST /v1/query", analyst(depsHandler(deps, handleQuery)))
	protected.Handle("POST /v1/learn/success", trainer(depsHandler(deps, handleLearnSuccess)))
	protected.Handle("POST /v1/learn/correction", trainer(depsHandler(deps, handleLearnCorrection)))
	protected.Handle("GET /v1/stats", analyst(depsHandler(deps, handleStats)))
	protected.Handle("GET /v1/schema", analyst(depsHandler(deps, handleSchema)))
	protected.Handle("POST /v1/admin/optimize", admin(depsHandler(deps, handleOptimize)))
	protected.Handle("POST /v1/admin/cache/clear", admin(depsHandler(deps, handleClearCache)))
	protected.Handle("POST /v1/admin/save", admin(depsHandler(deps, handleSave)))
	protected.Handle("POST /v1/admin/archive", admin(depsHandler(deps, handleArchive)))

	var protectedHandler http.Handler = protected
	if cfg.Auth.Required {
		if deps.AuthMiddleware == nil {
			if deps.Logger != nil {
				deps.Logger.Error("auth required but auth middleware missing")
			}
			protectedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				writeError(r.Context(), w, http.StatusInternalServerError, "AUTH_MIDDLEWARE_MISSING", "auth middleware is required by configuration", false, nil)
			})
		} else {
			protectedHandler = deps.AuthMiddleware(protectedHandler)
		}
	}
	mux.Handle("POST /v1/query", protectedHandler)
	mux.Handle("POST /v1/learn/success", protectedHandler)
	mux.Handle("POST /v1/learn/correction", protectedHandler)
	mux.Handle("GET /v1/stats", protectedHandler)
	mux.Handle("GET /v1/schema", protectedHandler)
	mux.Handle("POST /v1/admin/optimize", protectedHandler)
	mux.Handle("POST /v1/admin/cache/clear", protectedHandler)
	mux.Handle("POST /v1/admin/save", protectedHandler)
	mux.Handle("POST /v1/admin/archive", protectedHandler)

	middlewares := []func(http.Handler) http.Handler{
		observability.TraceMiddleware,
		observability.MetricsMiddleware,
	}
	if deps.Logger != nil {
		middlewares = append(middlewares, observability.LoggingMiddleware(deps.Logger))
	}
	return chain(mux, middlewares...)
}

func CheckKnowledgeDir(cfg config.Config) ReadinessCheck {
	return func(_ context.Context) error {
		if cfg.Storage.Dir == "" {
			return errors.New("knowledge directory is not configured")
		}
		return nil
	}
}

func CheckObjectStoreConfig(cfg config.Config) ReadinessCheck {
	return func(_ context.Context) error {
		if cfg.ObjectStore.Endpoint == "" {
			return errors.New("object store endpoint is not configured")
		}
		if cfg.ObjectStore.Bucket == "" {
			return errors.New("object store bucket is not configured")
		}
		return nil
	}
}

func CombineReadinessChecks(checks ...ReadinessCheck) ReadinessCheck {
	filtered := make([]ReadinessCheck, 0, len(checks))
	for _, check := range checks {
		if check != nil {
			filtered = append(filtered, check)
		}
	}
	return func(ctx context.Context) error {
		for _, check := range filtered {
			if err := check(ctx); err != nil {
				return err
			}
		}
		return nil
	}
}

func chain(base http.Handler, middlewares ...func(http.Handler) http.Handler) http.Handler {
	wrapped := base
	for i := len(middlewares) - 1; i >= 0; i-- {
		wrapped = middlewares[i](wrapped)
	}
	return wrapped
}

// depsHandler adapts the package's dependency-taking handler functions to
// http.Handler so role middleware can wrap them.
func depsHandler(deps Dependencies, fn func(Dependencies, http.ResponseWriter, *http.Request)) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fn(deps, w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(ctx context.Context, w http.ResponseWriter, status int, code, message string, retryable bool, extra map[string]any) {
	writeJSON(w, status, map[string]any{
		"error_code": code,
		"message":    message,
		"retryable":  retryable,
		"context":    extra,
		"trace_id":   observability.TraceIDFromContext(ctx),
	})
}
