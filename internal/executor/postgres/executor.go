package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/sqlmind/sqlmind/internal/executor"
	"github.com/sqlmind/sqlmind/internal/nl2sql"
)

// Executor runs resolved SQL against the production analytics database. The
// read-only filter runs again here so the executor stays safe even when
// called with SQL that skipped the resolution path.
type Executor struct {
	db       *sql.DB
	rowLimit int
}

func New(db *sql.DB, rowLimit int) *Executor {
	return &Executor{db: db, rowLimit: rowLimit}
}

func (e *Executor) Execute(ctx context.Context, sqlText string) (executor.Result, error) {
	if err := nl2sql.ValidateReadOnly(sqlText); err != nil {
		return executor.Result{}, fmt.Errorf("refusing to execute: %w", err)
	}

	start := time.Now()
	rows, err := e.db.QueryContext(ctx, executor.WrapWithLimit(sqlText, e.rowLimit))
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
