package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sqlmind/sqlmind/internal/schema"
)

const columnsQuery = `SELECT table_name, column_name, data_type, is_nullable
FROM information_schema.columns
WHERE table_schema = 'public'
ORDER BY table_name, ordinal_position`

// Introspector reads the public schema from information_schema and caches the
// rendered description. The schema changes on deploys, not between queries,
// so a generous TTL is fine.
type Introspector struct {
	db     *sql.DB
	logger *slog.Logger
	ttl    time.Duration

	mu      sync.Mutex
	cached  string
	expires time.Time
}

func NewIntrospector(db *sql.DB, logger *slog.Logger, ttl time.Duration) *Introspector {
	if logger == nil {
		logger = slog.Default()
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Introspector{
		db:     db,
		logger: logger.With("component", "schema"),
		ttl:    ttl,
	}
}

func (i *Introspector) Describe(ctx context.Context) (string, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.cached != "" && time.Now().Before(i.expires) {
		return i.cached, nil
	}

	loaded, err := i.load(ctx)
	if err != nil {
		// Serve stale text over nothing when introspection hiccups.
		if i.cached != "" {
			i.logger.Warn("schema refresh failed, serving stale description", "error", err)
			return i.cached, nil
		}
		return "", err
	}

	i.cached = loaded.Describe()
	i.expires = time.Now().Add(i.ttl)
	i.logger.Debug("schema description refreshed", "tables", len(loaded.Tables))
	return i.cached, nil
}

// Snapshot returns the structured schema without caching, for the schema
// inspection endpoint.
func (i *Introspector) Snapshot(ctx context.Context) (schema.Schema, error) {
	return i.load(ctx)
}

func (i *Introspector) load(ctx context.Context) (schema.Schema, error) {
	rows, err := i.db.QueryContext(ctx, columnsQuery)
	if err != nil {
		return schema.Schema{}, fmt.Errorf("query information_schema: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var result schema.Schema
	var current *schema.Table
	for rows.Next() {
		var tableName, columnName, dataType, isNullable string
		if err := rows.Scan(&tableName, &columnName, &dataType, &isNullable); err != nil {
			return schema.Schema{}, fmt.Errorf("scan column row: %w", err)
		}
		if current == nil || current.Name != tableName {
			result.Tables = append(result.Tables, schema.Table{Name: tableName})
			current = &result.Tables[len(result.Tables)-1]
		}
		current.Columns = append(current.Columns, schema.Column{
			Name:     columnName,
			DataType: dataType,
			Nullable: isNullable == "YES",
		})
	}
	if err := rows.Err(); err != nil {
		return schema.Schema{}, fmt.Errorf("iterate column rows: %w", err)
	}
	return result, nil
}
