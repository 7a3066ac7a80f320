package persist

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/sqlmind/sqlmind/internal/engine"
	"github.com/sqlmind/sqlmind/internal/storage"
)

// Snapshot file names inside the knowledge directory.
const (
	ExactCacheFile  = "exact_cache.json"
	PatternsFile    = "patterns.json"
	CorrectionsFile = "corrections.json"
)

type exactCacheFile struct {
	ExactCache map[string]string `json:"exact_cache"`
	UpdatedAt  time.Time         `json:"updated_at"`
	CacheSize  int               `json:"cache_size"`
}

type patternsFile struct {
	Patterns      map[string]engine.Pattern `json:"patterns"`
	Stats         engine.StatsState         `json:"stats"`
	UpdatedAt     time.Time                 `json:"updated_at"`
	TotalPatterns int                       `json:"total_patterns"`
}

type correctionsFile struct {
	Corrections      []engine.CorrectionRecord `json:"corrections"`
	TotalCorrections int                       `json:"total_corrections"`
	UpdatedAt        time.Time                 `json:"updated_at"`
}

// Store persists the learned state as JSON snapshots on local disk, with an
// optional object-store mirror. Disk is the source of truth; a failed mirror
// upload is logged and otherwise ignored.
type Store struct {
	dir    string
	logger *slog.Logger
	backup storage.ObjectStore
	now    func() time.Time
}

func NewStore(dir string, logger *slog.Logger, backup storage.ObjectStore) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("knowledge directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create knowledge directory %q: %w", dir, err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		dir:    dir,
		logger: logger.With("component", "persist"),
		backup: backup,
		now:    time.Now,
	}, nil
}

// Save writes all three snapshot files. Each file is written to a temp path
// and renamed into place so a crash mid-write can never leave a truncated
// snapshot behind.
func (s *Store) Save(ctx context.Context, state engine.State) error {
	now := s.now().UTC()

	if err := s.writeFile(ExactCacheFile, exactCacheFile{
		ExactCache: state.ExactCache,
		UpdatedAt:  now,
		CacheSize:  len(state.ExactCache),
	}); err != nil {
		return err
	}
	if err := s.writeFile(PatternsFile, patternsFile{
		Patterns:      state.Patterns,
		Stats:         state.Stats,
		UpdatedAt:     now,
		TotalPatterns: len(state.Patterns),
	}); err != nil {
		return err
	}
	if err := s.writeFile(CorrectionsFile, correctionsFile{
		Corrections:      state.Corrections,
		TotalCorrections: state.TotalCorrections,
		UpdatedAt:        now,
	}); err != nil {
		return err
	}

	s.logger.Info("knowledge saved",
		"patterns", len(state.Patterns),
		"cache_entries", len(state.ExactCache),
		"corrections", len(state.Corrections))

	if s.backup != nil {
		s.mirror(ctx, now)
	}
	return nil
}

// Load reads whatever snapshots exist. Missing files mean a cold start and
// corrupt files are quarantined to empty state: startup must never be blocked
// by bad knowledge files.
func (s *Store) Load(_ context.Context) engine.State {
	state := engine.State{
		ExactCache: map[string]string{},
		Patterns:   map[string]engine.Pattern{},
	}

	var cache exactCacheFile
	if s.readFile(ExactCacheFile, &cache) && cache.ExactCache != nil {
		state.ExactCache = cache.ExactCache
	}
	var patterns patternsFile
	if s.readFile(PatternsFile, &patterns) {
		if patterns.Patterns != nil {
			state.Patterns = patterns.Patterns
		}
		state.Stats = patterns.Stats
	}
	var corrections correctionsFile
	if s.readFile(CorrectionsFile, &corrections) {
		state.Corrections = corrections.Corrections
		state.TotalCorrections = corrections.TotalCorrections
	}

	s.logger.Info("knowledge loaded",
		"patterns", len(state.Patterns),
		"cache_entries", len(state.ExactCache),
		"corrections", len(state.Corrections))
	return state
}

// PullBackup downloads the snapshot files mirrored on the given date into the
// local knowledge directory. Files absent from the mirror are skipped.
func (s *Store) PullBackup(ctx context.Context, at time.Time) error {
	if s.backup == nil {
		return fmt.Errorf("no backup store configured")
	}
	restored := 0
	for _, name := range []string{ExactCacheFile, PatternsFile, CorrectionsFile} {
		key, err := storage.BuildSnapshotPath(name, at)
		if err != nil {
			return err
		}
		reader, err := s.backup.Get(ctx, key)
		if err != nil {
			if errors.Is(err, storage.ErrObjectNotFound) {
				continue
			}
			return fmt.Errorf("pull backup %q: %w", key, err)
		}
		data, err := io.ReadAll(reader)
		_ = reader.Close()
		if err != nil {
			return fmt.Errorf("read backup %q: %w", key, err)
		}
		if err := s.writeRaw(name, data); err != nil {
			return err
		}
		restored++
	}
	s.logger.Info("backup pulled", "files", restored, "date", at.UTC().Format("2006-01-02"))
	return nil
}

func (s *Store) mirror(ctx context.Context, now time.Time) {
	for _, name := range []string{ExactCacheFile, PatternsFile, CorrectionsFile} {
		key, err := storage.BuildSnapshotPath(name, now)
		if err != nil {
			s.logger.Warn("backup path rejected", "file", name, "error", err)
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.dir, name))
		if err != nil {
			s.logger.Warn("backup read failed", "file", name, "error", err)
			continue
		}
		_, err = s.backup.Put(ctx, key, bytes.NewReader(data), int64(len(data)), storage.PutOptions{ContentType: "application/json"})
		if err != nil {
			s.logger.Warn("backup upload failed", "key", key, "error", err)
		}
	}
}

func (s *Store) writeFile(name string, payload any) error {
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", name, err)
	}
	return s.writeRaw(name, data)
}

func (s *Store) writeRaw(name string, data []byte) error {
	target := filepath.Join(s.dir, name)
	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, target); err != nil {
		return fmt.Errorf("rename %s: %w", tmp, err)
	}
	return nil
}

// readFile reports whether the target was read and decoded.
func (s *Store) readFile(name string, target any) bool {
	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("snapshot unreadable, starting empty", "file", name, "error", err)
		}
		return false
	}
	if err := json.Unmarshal(data, target); err != nil {
		s.logger.Warn("snapshot corrupt, starting empty", "file", name, "error", err)
		return false
	}
	return true
}
