package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sqlmind/sqlmind/internal/config"
	"github.com/sqlmind/sqlmind/internal/engine"
	"github.com/sqlmind/sqlmind/internal/schema"
)

type fakePersister struct {
	saved *engine.State
	err   error
}

func (f *fakePersister) Save(_ context.Context, state engine.State) error {
	f.saved = &state
	return f.err
}

type fakeArchiver struct {
	records []engine.CorrectionRecord
	key     string
	err     error
}

func (f *fakeArchiver) Archive(_ context.Context, records []engine.CorrectionRecord) (string, error) {
	f.records = records
	return f.key, f.err
}

type fakeSchema struct {
	snapshot schema.Schema
	err      error
}

func (f *fakeSchema) Snapshot(context.Context) (schema.Schema, error) {
	return f.snapshot, f.err
}

func TestAdminOptimize(t *testing.T) {
	handler := newTestHandler(t, nil)
	rec := postJSON(t, handler, "/v1/admin/optimize", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
	}
	var payload struct {
		Removed int          `json:"removed_patterns"`
		Stats   engine.Stats `json:"stats"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.Removed != 0 {
		t.Fatalf("removed = %d on an empty engine", payload.Removed)
	}
}

func TestAdminClearCache(t *testing.T) {
	resolver := testResolver(t)
	handler := newTestHandler(t, func(_ *config.Config, deps *Dependencies) {
		deps.Resolver = resolver
	})

	if err := resolver.LearnFromSuccess("Сколько всего видео?", "SELECT COUNT(*) FROM videos"); err != nil {
		t.Fatalf("learn: %v", err)
	}

	rec := postJSON(t, handler, "/v1/admin/cache/clear", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
	}
	var payload struct {
		Status  string `json:"status"`
		Removed int    `json:"removed_entries"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.Status != "cleared" || payload.Removed != 1 {
		t.Fatalf("payload = %+v", payload)
	}
	if resolver.Stats().CacheEntries != 0 {
		t.Fatalf("cache entries after clear = %d", resolver.Stats().CacheEntries)
	}
}

func TestAdminSave(t *testing.T) {
	resolver := testResolver(t)
	persister := &fakePersister{}
	handler := newTestHandler(t, func(_ *config.Config, deps *Dependencies) {
		deps.Resolver = resolver
		deps.Persister = persister
	})

	if err := resolver.LearnFromSuccess("Сколько всего видео?", "SELECT COUNT(*) FROM videos"); err != nil {
		t.Fatalf("learn: %v", err)
	}

	rec := postJSON(t, handler, "/v1/admin/save", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
	}
	if persister.saved == nil {
		t.Fatal("save not invoked")
	}
	if len(persister.saved.ExactCache) != 1 {
		t.Fatalf("saved cache entries = %d", len(persister.saved.ExactCache))
	}
	if !strings.Contains(rec.Body.String(), `"saved"`) {
		t.Fatalf("body = %s", rec.Body.String())
	}
}

func TestAdminSaveFailure(t *testing.T) {
	handler := newTestHandler(t, func(_ *config.Config, deps *Dependencies) {
		deps.Persister = &fakePersister{err: errors.New("disk full")}
	})
	rec := postJSON(t, handler, "/v1/admin/save", "")
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "SAVE_FAILED") {
		t.Fatalf("body = %s", rec.Body.String())
	}
}

func TestAdminSaveNotConfigured(t *testing.T) {
	handler := newTestHandler(t, nil)
	rec := postJSON(t, handler, "/v1/admin/save", "")
	if rec.Code != http.StatusNotImplemented {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestAdminArchive(t *testing.T) {
	resolver := testResolver(t)
	archiver := &fakeArchiver{key: "archives/corrections/date=2026-08-30/corrections-1.parquet"}
	handler := newTestHandler(t, func(_ *config.Config, deps *Dependencies) {
		deps.Resolver = resolver
		deps.Archiver = archiver
	})

	// Nothing recorded yet.
	rec := postJSON(t, handler, "/v1/admin/archive", "")
	if rec.Code != http.StatusConflict {
		t.Fatalf("empty archive status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "NOTHING_TO_ARCHIVE") {
		t.Fatalf("body = %s", rec.Body.String())
	}

	if _, err := resolver.LearnFromCorrection("Сколько видео?", "SELECT COUNT(*) FROM video_snapshots", "SELECT COUNT(*) FROM videos", ""); err != nil {
		t.Fatalf("correction: %v", err)
	}

	rec = postJSON(t, handler, "/v1/admin/archive", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
	}
	if len(archiver.records) != 1 {
		t.Fatalf("archived records = %d", len(archiver.records))
	}
	var payload struct {
		Status  string `json:"status"`
		Key     string `json:"key"`
		Records int    `json:"records"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.Status != "archived" || payload.Records != 1 {
		t.Fatalf("payload = %+v", payload)
	}
	if payload.Key != archiver.key {
		t.Fatalf("key = %q", payload.Key)
	}
}

func TestStatsEndpoint(t *testing.T) {
	resolver := testResolver(t)
	handler := newTestHandler(t, func(_ *config.Config, deps *Dependencies) {
		deps.Resolver = resolver
	})

	postJSON(t, handler, "/v1/query", `{"question": "Сколько всего видео?", "session_id": "tg-1"}`)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/stats", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
	}
	var payload struct {
		Stats          engine.Stats `json:"stats"`
		ActiveSessions int          `json:"active_sessions"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.Stats.TotalQueries != 1 {
		t.Fatalf("total queries = %d", payload.Stats.TotalQueries)
	}
	if payload.ActiveSessions != 1 {
		t.Fatalf("active sessions = %d", payload.ActiveSessions)
	}
}

func TestSchemaEndpoint(t *testing.T) {
	handler := newTestHandler(t, func(_ *config.Config, deps *Dependencies) {
		deps.Schema = &fakeSchema{snapshot: schema.Schema{Tables: []schema.Table{{
			Name:    "videos",
			Columns: []schema.Column{{Name: "id", DataType: "character varying"}},
		}}}}
	})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/schema", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "videos") {
		t.Fatalf("body = %s", rec.Body.String())
	}

	handler = newTestHandler(t, nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/schema", nil))
	if rec.Code != http.StatusNotImplemented {
		t.Fatalf("unconfigured status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "SCHEMA_NOT_CONFIGURED") {
		t.Fatalf("body = %s", rec.Body.String())
	}
}
