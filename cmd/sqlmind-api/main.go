package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sqlmind/sqlmind/internal/api"
	"github.com/sqlmind/sqlmind/internal/archive"
	"github.com/sqlmind/sqlmind/internal/auth"
	"github.com/sqlmind/sqlmind/internal/config"
	"github.com/sqlmind/sqlmind/internal/engine"
	"github.com/sqlmind/sqlmind/internal/executor"
	executorduckdb "github.com/sqlmind/sqlmind/internal/executor/duckdb"
	executorpostgres "github.com/sqlmind/sqlmind/internal/executor/postgres"
	"github.com/sqlmind/sqlmind/internal/nl2sql"
	"github.com/sqlmind/sqlmind/internal/observability"
	"github.com/sqlmind/sqlmind/internal/persist"
	schemapostgres "github.com/sqlmind/sqlmind/internal/schema/postgres"
	"github.com/sqlmind/sqlmind/internal/session"
	"github.com/sqlmind/sqlmind/internal/storage"
	s3store "github.com/sqlmind/sqlmind/internal/storage/s3"
)

func main() {
	cfg, err := config.LoadFromEnv("sqlmind-api")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg, os.Stdout)

	var backup storage.ObjectStore
	if cfg.Storage.BackupEnabled {
		store, err := s3store.New(context.Background(), s3store.Config{
			Endpoint:         cfg.ObjectStore.Endpoint,
			Region:           cfg.ObjectStore.Region,
			Bucket:           cfg.ObjectStore.Bucket,
			AccessKeyID:      cfg.ObjectStore.AccessKeyID,
			SecretAccessKey:  cfg.ObjectStore.SecretAccessKey,
			UseSSL:           cfg.ObjectStore.UseSSL,
			Prefix:           cfg.ObjectStore.Prefix,
			AutoCreateBucket: cfg.ObjectStore.AutoCreateBucket,
		})
		if err != nil {
			logger.Error("failed to initialize object store", slog.Any("error", err))
			os.Exit(1)
		}
		backup = store
	}

	knowledge, err := persist.NewStore(cfg.Storage.Dir, logger, backup)
	if err != nil {
		logger.Error("failed to prepare knowledge store", slog.Any("error", err))
		os.Exit(1)
	}

	var translator nl2sql.Translator
	if cfg.AI.Enabled {
		translator, err = nl2sql.NewOpenAITranslator(nl2sql.OpenAIConfig{
			BaseURL:     cfg.AI.BaseURL,
			APIKey:      cfg.AI.APIKey,
			Model:       cfg.AI.Model,
			Temperature: cfg.AI.Temperature,
			Timeout:     cfg.AI.Timeout,
		})
		if err != nil {
			logger.Error("failed to initialize sql translator", slog.Any("error", err))
			os.Exit(1)
		}
	}

	var schemaInspector api.SchemaInspector
	var schemaDescriber engine.SchemaDescriber
	var queryExecutor executor.Executor
	switch cfg.Executor.Backend {
	case "postgres":
		db, err := schemapostgres.Open(context.Background(), schemapostgres.DBConfig{
			DSN:             cfg.Database.DSN,
			MaxOpenConns:    cfg.Database.MaxOpenConns,
			MaxIdleConns:    cfg.Database.MaxIdleConns,
			ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
			ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		})
		if err != nil {
			logger.Error("failed to open analytics db", slog.Any("error", err))
			os.Exit(1)
		}
		defer func() { _ = db.Close() }()
		introspector := schemapostgres.NewIntrospector(db, logger, 0)
		schemaInspector = introspector
		schemaDescriber = introspector
		queryExecutor = executorpostgres.New(db, cfg.Executor.RowLimit)
	case "duckdb":
		queryExecutor, err = executorduckdb.New(cfg.Executor.DataFile, cfg.Executor.RowLimit)
		if err != nil {
			logger.Error("failed to prepare duckdb executor", slog.Any("error", err))
			os.Exit(1)
		}
	}

	resolver := engine.New(cfg.Engine, logger, engine.Options{
		Translator: translator,
		Schema:     schemaDescriber,
	})
	resolver.Restore(knowledge.Load(context.Background()))
	if cfg.Engine.PreloadPatterns {
		added := resolver.PreloadPatterns()
		logger.Info("preloaded starter patterns", slog.Int("added", added))
	}

	var archiver api.Archiver
	if backup != nil {
		archiver, err = archive.NewArchiver(backup, logger)
		if err != nil {
			logger.Error("failed to prepare correction archiver", slog.Any("error", err))
			os.Exit(1)
		}
	}

	deps := api.Dependencies{
		Logger:            logger,
		Resolver:          resolver,
		Executor:          queryExecutor,
		Persister:         knowledge,
		Archiver:          archiver,
		Sessions:          session.NewManager(24 * time.Hour),
		Schema:            schemaInspector,
		Readiness:         readinessFor(cfg),
		DependencyTimeout: time.Second,
	}
	if cfg.Auth.Required {
		validator, err := auth.NewStaticAPIKeyValidator(cfg.Auth.StaticKeys)
		if err != nil {
			logger.Error("failed to parse static auth keys", slog.Any("error", err))
			os.Exit(1)
		}
		deps.AuthMiddleware = auth.Middleware(logger, validator)
	}

	handler := api.NewHandler(cfg, deps)
	server := &http.Server{
		Addr:         cfg.HTTP.Address,
		Handler:      handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Engine.OptimizeInterval > 0 {
		go optimizeLoop(ctx, resolver, deps.Sessions, cfg.Engine.OptimizeInterval, logger)
	}

	go func() {
		logger.Info("starting api server", slog.String("addr", cfg.HTTP.Address))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api server failed", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info("shutting down api server")
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", slog.Any("error", err))
		_ = server.Close()
	}
	// The learned state is the whole value of the service; flush it on the
	// way out even when shutdown was less than graceful.
	if err := knowledge.Save(shutdownCtx, resolver.Snapshot()); err != nil {
		logger.Error("failed to save knowledge on shutdown", slog.Any("error", err))
		os.Exit(1)
	}
}

func readinessFor(cfg config.Config) api.ReadinessCheck {
	checks := []api.ReadinessCheck{api.CheckKnowledgeDir(cfg)}
	if cfg.Storage.BackupEnabled {
		checks = append(checks, api.CheckObjectStoreConfig(cfg))
	}
	return api.CombineReadinessChecks(checks...)
}

func optimizeLoop(ctx context.Context, resolver *engine.Engine, sessions *session.Manager, interval time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed := resolver.Optimize()
			swept := sessions.Sweep()
			logger.Info("periodic optimization completed",
				slog.Int("removed_patterns", removed),
				slog.Int("swept_sessions", swept))
		}
	}
}
