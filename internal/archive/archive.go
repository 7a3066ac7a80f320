// Package archive exports correction history as parquet files to the object
// store, for offline analysis of what the engine keeps getting wrong.
package archive

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/sqlmind/sqlmind/internal/engine"
	"github.com/sqlmind/sqlmind/internal/storage"
)

type parquetCorrection struct {
	Question        string  `parquet:"question"`
	GeneratedSQL    string  `parquet:"generated_sql"`
	CorrectedSQL    string  `parquet:"corrected_sql"`
	Feedback        string  `parquet:"feedback"`
	CorrectionType  string  `parquet:"correction_type"`
	SameStructure   bool    `parquet:"same_structure"`
	DiffConfidence  float64 `parquet:"diff_confidence"`
	TimestampUnixMs int64   `parquet:"timestamp_unix_ms"`
}

// EncodeCorrections renders correction records as a parquet byte slice.
func EncodeCorrections(records []engine.CorrectionRecord) ([]byte, error) {
	if len(records) == 0 {
		return nil, fmt.Errorf("no corrections to archive")
	}

	rows := make([]parquetCorrection, 0, len(records))
	for _, record := range records {
		rows = append(rows, parquetCorrection{
			Question:        record.Question,
			GeneratedSQL:    record.GeneratedSQL,
			CorrectedSQL:    record.CorrectedSQL,
			Feedback:        record.Feedback,
			CorrectionType:  record.Diff.CorrectionType,
			SameStructure:   record.Diff.SameStructure,
			DiffConfidence:  record.Diff.Confidence,
			TimestampUnixMs: record.Timestamp.UnixMilli(),
		})
	}

	buf := bytes.NewBuffer(nil)
	writer := parquet.NewGenericWriter[parquetCorrection](buf)
	if _, err := writer.Write(rows); err != nil {
		return nil, fmt.Errorf("write parquet rows: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close parquet writer: %w", err)
	}
	return buf.Bytes(), nil
}

// Archiver uploads correction archives to the object store.
type Archiver struct {
	store  storage.ObjectStore
	logger *slog.Logger
	now    func() time.Time
}

func NewArchiver(store storage.ObjectStore, logger *slog.Logger) (*Archiver, error) {
	if store == nil {
		return nil, fmt.Errorf("object store is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Archiver{
		store:  store,
		logger: logger.With("component", "archive"),
		now:    time.Now,
	}, nil
}

// Archive encodes and uploads the given records, returning the object key.
func (a *Archiver) Archive(ctx context.Context, records []engine.CorrectionRecord) (string, error) {
	data, err := EncodeCorrections(records)
	if err != nil {
		return "", err
	}
	key := storage.BuildArchivePath(a.now())
	_, err = a.store.Put(ctx, key, bytes.NewReader(data), int64(len(data)), storage.PutOptions{
		ContentType: "application/vnd.apache.parquet",
	})
	if err != nil {
		return "", fmt.Errorf("upload archive %q: %w", key, err)
	}
	a.logger.Info("corrections archived", "key", key, "records", len(records), "bytes", len(data))
	return key, nil
}
