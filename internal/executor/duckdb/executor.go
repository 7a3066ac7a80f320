// Package duckdb runs resolved SQL against a local JSON export instead of a
// live database, for demos and development without Postgres.
package duckdb

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/marcboeker/go-duckdb/v2"

	"github.com/sqlmind/sqlmind/internal/executor"
	"github.com/sqlmind/sqlmind/internal/nl2sql"
)

type Executor struct {
	dataFile string
	rowLimit int
}

// New mounts the given JSON export. The table name is the file's base name,
// so data/videos.json becomes the videos table.
func New(dataFile string, rowLimit int) (*Executor, error) {
	if strings.TrimSpace(dataFile) == "" {
		return nil, fmt.Errorf("data file is required")
	}
	if _, err := os.Stat(dataFile); err != nil {
		return nil, fmt.Errorf("data file %q: %w", dataFile, err)
	}
	return &Executor{dataFile: dataFile, rowLimit: rowLimit}, nil
}

func (e *Executor) Execute(ctx context.Context, sqlText string) (executor.Result, error) {
	if err := nl2sql.ValidateReadOnly(sqlText); err != nil {
		return executor.Result{}, fmt.Errorf("refusing to execute: %w", err)
	}

	start := time.Now()
	db, err := sql.Open("duckdb", "")
	if err != nil {
		return executor.Result{}, fmt.Errorf("open duckdb: %w", err)
	}
	defer func() { _ = db.Close() }()

	tableName := strings.TrimSuffix(filepath.Base(e.dataFile), filepath.Ext(e.dataFile))
	viewSQL := fmt.Sprintf(
		`CREATE OR REPLACE VIEW %s AS SELECT * FROM read_json_auto(%s)`,
		quoteIdent(tableName),
		quoteString(e.dataFile),
	)
	if _, err := db.ExecContext(ctx, viewSQL); err != nil {
		return executor.Result{}, fmt.Errorf("mount data file %q: %w", e.dataFile, err)
	}

	rows, err := db.QueryContext(ctx, executor.WrapWithLimit(sqlText, e.rowLimit))
	if err != nil {
		return executor.Result{}, fmt.Errorf("execute query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return executor.Result{}, fmt.Errorf("query columns: %w", err)
	}

	resultRows := make([][]any, 0)
	for rows.Next() {
		values := make([]any, len(columns))
		scanTargets := make([]any, len(columns))
		for i := range values {
			scanTargets[i] = &values[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return executor.Result{}, fmt.Errorf("scan row: %w", err)
		}
		resultRows = append(resultRows, executor.NormalizeValues(values))
	}
	if err := rows.Err(); err != nil {
		return executor.Result{}, fmt.Errorf("iterate rows: %w", err)
	}

	return executor.Result{
		Columns:  columns,
		Rows:     resultRows,
		RowCount: len(resultRows),
		Duration: time.Since(start),
	}, nil
}

func quoteIdent(value string) string {
	return `"` + strings.ReplaceAll(value, `"`, `""`) + `"`
}

func quoteString(value string) string {
	return `'` + strings.ReplaceAll(value, `'`, `''`) + `'`
}
