package persist

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sqlmind/sqlmind/internal/engine"
	"github.com/sqlmind/sqlmind/internal/storage"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sampleState() engine.State {
	return engine.State{
		ExactCache: map[string]string{
			"Сколько всего видео?": "SELECT COUNT(*) FROM videos",
		},
		Patterns: map[string]engine.Pattern{
			"deadbeefdeadbeefdeadbeefdeadbeef": {
				TriggerWords: []string{"видео", "сколько"},
				Template:     "SELECT COUNT(*) FROM videos",
				HitCount:     4,
				Source:       engine.OriginSuccess,
				CreatedAt:    time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC),
				LastUsedAt:   time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC),
			},
		},
		Corrections: []engine.CorrectionRecord{
			{
				Question:     "вопрос",
				GeneratedSQL: "SELECT 1",
				CorrectedSQL: "SELECT 2",
				Timestamp:    time.Date(2026, 8, 28, 9, 0, 0, 0, time.UTC),
			},
		},
		TotalCorrections: 7,
		Stats: engine.StatsState{
			TotalQueries: 12,
			ExactHits:    5,
			PatternHits:  3,
			Fallbacks:    4,
			AutoLearned:  2,
		},
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir, discardLogger(), nil)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	if err := store.Save(context.Background(), sampleState()); err != nil {
		t.Fatalf("Save: %v", err)
	}
	for _, name := range []string{ExactCacheFile, PatternsFile, CorrectionsFile} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Fatalf("missing snapshot %s: %v", name, err)
		}
	}

	loaded := store.Load(context.Background())
	if loaded.ExactCache["Сколько всего видео?"] != "SELECT COUNT(*) FROM videos" {
		t.Fatalf("cache lost: %+v", loaded.ExactCache)
	}
	pattern := loaded.Patterns["deadbeefdeadbeefdeadbeefdeadbeef"]
	if pattern.HitCount != 4 || pattern.Template != "SELECT COUNT(*) FROM videos" {
		t.Fatalf("pattern lost: %+v", pattern)
	}
	if loaded.TotalCorrections != 7 || len(loaded.Corrections) != 1 {
		t.Fatalf("corrections lost: total=%d len=%d", loaded.TotalCorrections, len(loaded.Corrections))
	}
	if loaded.Stats.TotalQueries != 12 || loaded.Stats.ExactHits != 5 || loaded.Stats.AutoLearned != 2 {
		t.Fatalf("stats lost: %+v", loaded.Stats)
	}

	// The counters live in the patterns snapshot, as a top-level member.
	raw, err := os.ReadFile(filepath.Join(dir, PatternsFile))
	if err != nil {
		t.Fatalf("read patterns snapshot: %v", err)
	}
	var payload map[string]json.RawMessage
	if err := json.Unmarshal(raw, &payload); err != nil {
		t.Fatalf("decode patterns snapshot: %v", err)
	}
	if _, ok := payload["stats"]; !ok {
		t.Fatalf("patterns snapshot has no stats member; keys = %v", mapKeys(payload))
	}
}

func mapKeys(m map[string]json.RawMessage) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	return keys
}

func TestLoadColdStart(t *testing.T) {
	store, err := NewStore(t.TempDir(), discardLogger(), nil)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	state := store.Load(context.Background())
	if state.ExactCache == nil || state.Patterns == nil {
		t.Fatal("cold start must yield usable empty maps")
	}
	if len(state.ExactCache) != 0 || len(state.Patterns) != 0 || state.TotalCorrections != 0 {
		t.Fatalf("cold start not empty: %+v", state)
	}
}

func TestLoadSurvivesCorruptSnapshot(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir, discardLogger(), nil)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	if err := store.Save(context.Background(), sampleState()); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, PatternsFile), []byte("{not json"), 0o644); err != nil {
		t.Fatalf("corrupt file: %v", err)
	}

	state := store.Load(context.Background())
	if len(state.Patterns) != 0 {
		t.Fatal("corrupt patterns file must load as empty")
	}
	if len(state.ExactCache) != 1 {
		t.Fatal("healthy files must still load")
	}
}

func TestSaveLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	store, _ := NewStore(dir, discardLogger(), nil)
	if err := store.Save(context.Background(), sampleState()); err != nil {
		t.Fatalf("Save: %v", err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	for _, entry := range entries {
		if filepath.Ext(entry.Name()) == ".tmp" {
			t.Fatalf("leftover temp file %s", entry.Name())
		}
	}
}

type fakeBackup struct {
	objects map[string][]byte
}

func (f *fakeBackup) Put(_ context.Context, key string, body io.Reader, _ int64, _ storage.PutOptions) (storage.ObjectInfo, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return storage.ObjectInfo{}, err
	}
	f.objects[key] = data
	return storage.ObjectInfo{Key: key, Size: int64(len(data))}, nil
}

func (f *fakeBackup) Get(_ context.Context, key string) (io.ReadCloser, error) {
	data, ok := f.objects[key]
	if !ok {
		return nil, storage.ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func TestSaveMirrorsToBackup(t *testing.T) {
	backup := &fakeBackup{objects: map[string][]byte{}}
	store, err := NewStore(t.TempDir(), discardLogger(), backup)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	at := time.Date(2026, 8, 30, 15, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return at }

	if err := store.Save(context.Background(), sampleState()); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if len(backup.objects) != 3 {
		t.Fatalf("expected three mirrored files, got %d", len(backup.objects))
	}
	if _, ok := backup.objects["snapshots/date=2026-08-30/patterns.json"]; !ok {
		t.Fatalf("patterns backup missing, keys: %v", keysOf(backup.objects))
	}
}

func TestPullBackupRestoresLocalFiles(t *testing.T) {
	backup := &fakeBackup{objects: map[string][]byte{}}
	at := time.Date(2026, 8, 30, 15, 0, 0, 0, time.UTC)

	source, err := NewStore(t.TempDir(), discardLogger(), backup)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	source.now = func() time.Time { return at }
	if err := source.Save(context.Background(), sampleState()); err != nil {
		t.Fatalf("Save: %v", err)
	}

	target, err := NewStore(t.TempDir(), discardLogger(), backup)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	if err := target.PullBackup(context.Background(), at); err != nil {
		t.Fatalf("PullBackup: %v", err)
	}
	state := target.Load(context.Background())
	if len(state.ExactCache) != 1 || len(state.Patterns) != 1 || state.TotalCorrections != 7 {
		t.Fatalf("restored state incomplete: %+v", state)
	}
}

func keysOf(m map[string][]byte) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	return keys
}
