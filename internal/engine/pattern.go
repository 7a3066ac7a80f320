package engine

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"
	"time"

	"github.com/sqlmind/sqlmind/internal/normalize"
)

// Pattern origins: how a pattern entered the store.
const (
	OriginPreload    = "preload"
	OriginSuccess    = "success"
	OriginCorrection = "correction"
)

// Pattern is a learned association between a trigger word set and a SQL
// template. Patterns are owned by the PatternStore; callers only ever see
// copies.
type Pattern struct {
	TriggerWords []string  `json:"trigger_words"`
	Template     string    `json:"template"`
	HitCount     int       `json:"hit_count"`
	Examples     []string  `json:"example_questions"`
	Source       string    `json:"source"`
	CreatedAt    time.Time `json:"created_at"`
	LastUsedAt   time.Time `json:"last_used_at"`
}

func (p *Pattern) clone() Pattern {
	copied := *p
	copied.TriggerWords = append([]string(nil), p.TriggerWords...)
	copied.Examples = append([]string(nil), p.Examples...)
	return copied
}

// PatternKey derives the store key from a trigger word set: the first 32 hex
// characters (128 bits) of SHA-256 over the sorted words. Unrelated word sets
// must never collide into one pattern, which rules out short digests.
func PatternKey(words normalize.FeatureSet) string {
	digest := sha256.Sum256([]byte(strings.Join(words.Words(), " ")))
	return hex.EncodeToString(digest[:16])
}

// Match is a scored candidate returned by FindBest.
type Match struct {
	Key     string
	Pattern Pattern
	Score   float64
}

// PatternStore holds learned patterns with an inverted word index for
// candidate narrowing. All mutation goes through a single mutex; readers get
// copies, never live pointers.
type PatternStore struct {
	mu          sync.RWMutex
	patterns    map[string]*Pattern
	wordIndex   map[string]map[string]struct{}
	maxExamples int
	now         func() time.Time
}

func NewPatternStore(maxExamples int) *PatternStore {
	if maxExamples <= 0 {
		maxExamples = 5
	}
	return &PatternStore{
		patterns:    map[string]*Pattern{},
		wordIndex:   map[string]map[string]struct{}{},
		maxExamples: maxExamples,
		now:         time.Now,
	}
}

// Put inserts a pattern for the trigger word set, or reinforces the existing
// one: an existing key gets its hit count bumped and the example question
// appended (capped). Returns the key and whether a new pattern was created.
func (s *PatternStore) Put(words normalize.FeatureSet, template, source, example string) (string, bool) {
	if len(words) == 0 {
		return "", false
	}
	key := PatternKey(words)
	now := s.now().UTC()

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.patterns[key]; ok {
		existing.HitCount++
		existing.LastUsedAt = now
		if example != "" && !containsString(existing.Examples, example) {
			existing.Examples = append(existing.Examples, example)
			if len(existing.Examples) > s.maxExamples {
				existing.Examples = existing.Examples[len(existing.Examples)-s.maxExamples:]
			}
		}
		return key, false
	}

	pattern := &Pattern{
		TriggerWords: words.Words(),
		Template:     template,
		HitCount:     1,
		Source:       source,
		CreatedAt:    now,
		LastUsedAt:   now,
	}
	if example != "" {
		pattern.Examples = []string{example}
	}
	s.patterns[key] = pattern
	for word := range words {
		s.indexWord(word, key)
	}
	return key, true
}

// FindBest returns the acceptable candidate with the highest combined score,
// or ok=false when nothing clears the threshold. Scoring weights coverage of
// the pattern's own trigger set (0.6) over recall against the question (0.4):
// a narrow, fully-covered pattern is safer to reuse than a loose overlap.
// Ties break toward the most recently used pattern.
func (s *PatternStore) FindBest(features normalize.FeatureSet, threshold float64) (Match, bool) {
	if len(features) == 0 {
		return Match{}, false
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	candidates := map[string]struct{}{}
	for word := range features {
		for key := range s.wordIndex[word] {
			candidates[key] = struct{}{}
		}
	}

	var best *Pattern
	bestKey := ""
	bestScore := 0.0
	for key := range candidates {
		pattern := s.patterns[key]
		common := features.IntersectionSize(normalize.FromWords(pattern.TriggerWords))
		if common == 0 {
			continue
		}
		coverage := float64(common) / float64(len(pattern.TriggerWords))
		recall := float64(common) / float64(len(features))
		score := 0.6*coverage + 0.4*recall
		if score <= threshold {
			continue
		}
		if best == nil || score > bestScore ||
			(score == bestScore && pattern.LastUsedAt.After(best.LastUsedAt)) {
			best = pattern
			bestKey = key
			bestScore = score
		}
	}
	if best == nil {
		return Match{}, false
	}
	return Match{Key: bestKey, Pattern: best.clone(), Score: bestScore}, true
}

// MarkUsed records a reuse of the pattern.
func (s *PatternStore) MarkUsed(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if pattern, ok := s.patterns[key]; ok {
		pattern.HitCount++
		pattern.LastUsedAt = s.now().UTC()
	}
}

// Evict removes patterns last used before the cutoff AND below the hit floor.
// Either condition alone retains the pattern. Returns the number removed.
func (s *PatternStore) Evict(cutoff time.Time, minHits int) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, pattern := range s.patterns {
		if pattern.LastUsedAt.Before(cutoff) && pattern.HitCount < minHits {
			for _, word := range pattern.TriggerWords {
				if keys, ok := s.wordIndex[word]; ok {
					delete(keys, key)
					if len(keys) == 0 {
						delete(s.wordIndex, word)
					}
				}
			}
			delete(s.patterns, key)
			removed++
		}
	}
	return removed
}

func (s *PatternStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.patterns)
}

// Snapshot returns a deep copy of all patterns for persistence.
func (s *PatternStore) Snapshot() map[string]Pattern {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snapshot := make(map[string]Pattern, len(s.patterns))
	for key, pattern := range s.patterns {
		snapshot[key] = pattern.clone()
	}
	return snapshot
}

// Restore replaces the store contents with a persisted snapshot and rebuilds
// the inverted index.
func (s *PatternStore) Restore(patterns map[string]Pattern) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.patterns = make(map[string]*Pattern, len(patterns))
	s.wordIndex = map[string]map[string]struct{}{}
	for key, pattern := range patterns {
		restored := pattern.clone()
		s.patterns[key] = &restored
		for _, word := range restored.TriggerWords {
			s.indexWord(word, key)
		}
	}
}

func (s *PatternStore) indexWord(word, key string) {
	keys, ok := s.wordIndex[word]
	if !ok {
		keys = map[string]struct{}{}
		s.wordIndex[word] = keys
	}
	keys[key] = struct{}{}
}

func containsString(items []string, target string) bool {
	for _, item := range items {
		if item == target {
			return true
		}
	}
	return false
}
