package observability

import (
	"io"
	"log/slog"

	"github.com/sqlmind/sqlmind/internal/config"
)

// NewLogger builds the process-wide logger. Production profiles log JSON
// for ingestion pipelines; development keeps the text handler readable.
// Every line carries the service name and profile so mixed-environment
// log streams stay attributable.
func NewLogger(cfg config.Config, writer io.Writer) *slog.Logger {
	if writer == nil {
		writer = io.Discard
	}
	opts := &slog.HandlerOptions{Level: cfg.Observability.LogLevel}
	var handler slog.Handler = slog.NewTextHandler(writer, opts)
	if cfg.Observability.LogJSON {
		handler = slog.NewJSONHandler(writer, opts)
	}
	return slog.New(handler).With(
		slog.String("service", cfg.Service.Name),
		slog.String("profile", string(cfg.Profile)),
	)
}
