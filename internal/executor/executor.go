// Package executor runs resolved read-only SQL against an analytics backend.
package executor

import (
	"context"
	"strconv"
	"strings"
	"time"
)

type Result struct {
	Columns  []string      `json:"columns"`
	Rows     [][]any       `json:"rows"`
	RowCount int           `json:"row_count"`
	Duration time.Duration `json:"duration"`
}

type Executor interface {
	Execute(ctx context.Context, sqlText string) (Result, error)
}

// WrapWithLimit bounds an arbitrary SELECT without parsing it. The trailing
// semicolon has to go first or the subquery is invalid.
func WrapWithLimit(sqlText string, rowLimit int) string {
	trimmed := StripTrailingSemicolons(sqlText)
	if rowLimit <= 0 {
		return trimmed
	}
	return "SELECT * FROM (" + trimmed + ") AS q LIMIT " + strconv.Itoa(rowLimit)
}

func StripTrailingSemicolons(sqlText string) string {
	trimmed := strings.TrimSpace(sqlText)
	for strings.HasSuffix(trimmed, ";") {
		trimmed = strings.TrimSpace(strings.TrimSuffix(trimmed, ";"))
	}
	return trimmed
}

// NormalizeValues makes driver values JSON-friendly; byte slices become
// strings instead of base64 blobs.
func NormalizeValues(values []any) []any {
	normalized := make([]any, len(values))
	for i, value := range values {
		switch typed := value.(type) {
		case []byte:
			normalized[i] = string(typed)
		default:
			normalized[i] = typed
		}
	}
	return normalized
}
