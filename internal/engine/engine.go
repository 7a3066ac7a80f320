package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sqlmind/sqlmind/internal/config"
	"github.com/sqlmind/sqlmind/internal/nl2sql"
	"github.com/sqlmind/sqlmind/internal/normalize"
	"github.com/sqlmind/sqlmind/internal/observability"
	"github.com/sqlmind/sqlmind/internal/params"
	"github.com/sqlmind/sqlmind/internal/sqltemplate"
)

// Resolution sources, ordered from cheapest to most expensive.
const (
	SourceExactCache = "exact_cache"
	SourcePattern    = "pattern"
	SourceGenerator  = "llm"
	SourceFallback   = "fallback"
)

// Resolution is the answer to a natural-language question. Every question
// gets one: resolution degrades through the tiers but never fails outright.
type Resolution struct {
	SQL             string  `json:"sql"`
	Source          string  `json:"source"`
	Confidence      float64 `json:"confidence,omitempty"`
	NeedsValidation bool    `json:"needs_validation"`
	Warning         string  `json:"warning,omitempty"`
	Provider        string  `json:"provider,omitempty"`
	Model           string  `json:"model,omitempty"`
}

// CorrectionRecord captures one human correction along with the classified
// difference between what was generated and what was right.
type CorrectionRecord struct {
	Question     string              `json:"question"`
	GeneratedSQL string              `json:"generated_sql"`
	CorrectedSQL string              `json:"corrected_sql"`
	Feedback     string              `json:"feedback,omitempty"`
	Timestamp    time.Time           `json:"timestamp"`
	Diff         sqltemplate.Summary `json:"diff_summary"`
}

// Stats is a point-in-time view of engine activity.
type Stats struct {
	TotalQueries     int64   `json:"total_queries"`
	ExactHits        int64   `json:"exact_cache_hits"`
	PatternHits      int64   `json:"pattern_hits"`
	GeneratorCalls   int64   `json:"llm_calls"`
	Fallbacks        int64   `json:"fallbacks"`
	AutoLearned      int64   `json:"auto_learned"`
	Corrections      int64   `json:"corrections_session"`
	TotalCorrections int     `json:"total_corrections"`
	LearningRate     float64 `json:"learning_rate"`
	PatternCount     int     `json:"total_patterns"`
	CacheEntries     int     `json:"cache_size"`
}

// SchemaDescriber supplies a textual schema description for generator
// prompts. A nil describer simply omits the schema.
type SchemaDescriber interface {
	Describe(ctx context.Context) (string, error)
}

// StatsState is the cumulative-counter subset of Stats that survives
// restarts. Session-scoped counters and derived values stay out.
type StatsState struct {
	TotalQueries   int64 `json:"total_queries"`
	ExactHits      int64 `json:"exact_cache_hits"`
	PatternHits    int64 `json:"pattern_hits"`
	GeneratorCalls int64 `json:"llm_calls"`
	Fallbacks      int64 `json:"fallbacks"`
	AutoLearned    int64 `json:"auto_learned"`
}

// State is the persistable view of everything the engine has learned.
type State struct {
	ExactCache       map[string]string
	Patterns         map[string]Pattern
	Corrections      []CorrectionRecord
	TotalCorrections int
	Stats            StatsState
}

type counters struct {
	totalQueries   atomic.Int64
	exactHits      atomic.Int64
	patternHits    atomic.Int64
	generatorCalls atomic.Int64
	fallbacks      atomic.Int64
	autoLearned    atomic.Int64
	corrections    atomic.Int64
}

// Engine resolves questions through the tier chain exact cache → pattern
// match → generator → keyword fallback, and learns from confirmations and
// corrections as it goes.
type Engine struct {
	cfg        config.EngineConfig
	logger     *slog.Logger
	translator nl2sql.Translator
	schema     SchemaDescriber

	cache    *ExactCache
	patterns *PatternStore
	stats    counters

	mu               sync.Mutex
	corrections      []CorrectionRecord
	totalCorrections int

	now func() time.Time
}

// Options carries the optional collaborators. Zero value disables both the
// generator tier and schema context.
type Options struct {
	Translator nl2sql.Translator
	Schema     SchemaDescriber
}

func New(cfg config.EngineConfig, logger *slog.Logger, opts Options) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		cfg:        cfg,
		logger:     logger.With("component", "engine"),
		translator: opts.Translator,
		schema:     opts.Schema,
		cache:      NewExactCache(),
		patterns:   NewPatternStore(cfg.MaxExamples),
		now:        time.Now,
	}
}

// ProcessQuery resolves a question to SQL. It never returns an error and
// never panics: any internal failure degrades to the keyword fallback.
func (e *Engine) ProcessQuery(ctx context.Context, question string) (res Resolution) {
	started := e.now()
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("query resolution panicked",
				"panic", r,
				"question", question)
			res = Resolution{
				SQL:             FallbackSQL(question),
				Source:          SourceFallback,
				NeedsValidation: true,
				Warning:         "internal error during resolution",
			}
		}
		observability.ObserveResolution(res.Source, time.Since(started))
	}()

	e.stats.totalQueries.Add(1)

	if sql, ok := e.cache.Get(question); ok {
		e.stats.exactHits.Add(1)
		e.logger.Debug("exact cache hit", "question", question)
		return Resolution{SQL: sql, Source: SourceExactCache, Confidence: 1.0}
	}

	features := normalize.Question(question)
	if len(features) > 0 {
		if match, ok := e.patterns.FindBest(features, e.cfg.ScoreThreshold); ok {
			e.patterns.MarkUsed(match.Key)
			e.stats.patternHits.Add(1)
			sql := params.FillFromQuestion(match.Pattern.Template, question)
			if params.HasPlaceholders(sql) {
				e.logger.Debug("pattern hit with unresolved placeholders",
					"key", match.Key,
					"score", match.Score)
				return Resolution{
					SQL:             sql,
					Source:          SourcePattern,
					Confidence:      match.Score,
					NeedsValidation: true,
					Warning:         "template has unresolved placeholders",
				}
			}
			e.cache.Put(question, sql)
			e.updateGauges()
			return Resolution{SQL: sql, Source: SourcePattern, Confidence: match.Score}
		}
	}

	if e.translator != nil {
		e.stats.generatorCalls.Add(1)
		result, err := e.translator.Translate(ctx, nl2sql.Request{
			Question:            question,
			SchemaDescription:   e.schemaDescription(ctx),
			PreviousCorrections: e.recentCorrectionExamples(3),
		})
		switch {
		case err != nil:
			e.logger.Warn("translator failed, falling back", "error", err)
		// Translator implementations are not trusted to enforce the
		// read-only contract; re-check it here before the SQL leaves
		// the engine as a generator answer.
		case nl2sql.ValidateReadOnly(result.SQL) != nil:
			e.logger.Warn("translator produced non read-only sql, falling back",
				"sql", result.SQL)
		default:
			return Resolution{
				SQL:             result.SQL,
				Source:          SourceGenerator,
				Confidence:      result.Confidence,
				NeedsValidation: true,
				Provider:        result.Provider,
				Model:           result.Model,
			}
		}
	}

	e.stats.fallbacks.Add(1)
	e.logger.Warn("falling back to keyword SQL", "question", question)
	return Resolution{
		SQL:             FallbackSQL(question),
		Source:          SourceFallback,
		NeedsValidation: true,
		Warning:         "could not generate optimal SQL",
	}
}

// LearnFromSuccess records a confirmed question/SQL pair: the pair enters the
// exact cache verbatim and its generalized template becomes (or reinforces) a
// pattern. The SQL must be concrete; templates with placeholders would poison
// the exact cache.
func (e *Engine) LearnFromSuccess(question, sql string) error {
	question = strings.TrimSpace(question)
	sql = strings.TrimSpace(sql)
	if question == "" || sql == "" {
		return fmt.Errorf("question and sql are both required")
	}
	if params.HasPlaceholders(sql) {
		return fmt.Errorf("sql still contains unresolved placeholders")
	}

	e.cache.Put(question, sql)
	features := normalize.Question(question)
	if len(features) > 0 {
		// A paraphrase an existing pattern already covers must not spawn
		// a near-duplicate pattern for the same shape of question.
		if match, covered := e.patterns.FindBest(features, e.cfg.ScoreThreshold); covered {
			e.patterns.MarkUsed(match.Key)
		} else {
			template := sqltemplate.Generalize(sql)
			key, created := e.patterns.Put(features, template, OriginSuccess, question)
			if created {
				e.logger.Info("learned new pattern",
					"key", key,
					"template", template)
			}
		}
	}
	e.stats.autoLearned.Add(1)
	observability.IncrementAutoLearned()
	e.updateGauges()
	return nil
}

// LearnFromCorrection records a human correction. The record is always kept;
// when the corrected SQL actually differs from what was generated, the
// corrected version additionally goes through the success path.
func (e *Engine) LearnFromCorrection(question, generatedSQL, correctedSQL, feedback string) (CorrectionRecord, error) {
	question = strings.TrimSpace(question)
	corrected := strings.TrimSpace(correctedSQL)
	if question == "" || corrected == "" {
		return CorrectionRecord{}, fmt.Errorf("question and corrected sql are both required")
	}

	record := CorrectionRecord{
		Question:     question,
		GeneratedSQL: strings.TrimSpace(generatedSQL),
		CorrectedSQL: corrected,
		Feedback:     strings.TrimSpace(feedback),
		Timestamp:    e.now().UTC(),
		Diff:         sqltemplate.Diff(generatedSQL, corrected),
	}

	e.mu.Lock()
	e.corrections = append(e.corrections, record)
	if e.cfg.CorrectionsKept > 0 && len(e.corrections) > e.cfg.CorrectionsKept {
		e.corrections = e.corrections[len(e.corrections)-e.cfg.CorrectionsKept:]
	}
	e.totalCorrections++
	e.mu.Unlock()

	e.stats.corrections.Add(1)
	observability.IncrementCorrections()

	if record.GeneratedSQL != corrected {
		if !params.HasPlaceholders(corrected) {
			e.cache.Put(question, corrected)
		}
		features := normalize.Question(question)
		if len(features) > 0 {
			e.patterns.Put(features, sqltemplate.Generalize(corrected), OriginCorrection, question)
		}
	}

	e.logger.Info("correction recorded",
		"question", question,
		"type", record.Diff.CorrectionType,
		"confidence", record.Diff.Confidence)
	e.updateGauges()
	return record, nil
}

// ClearCache empties the exact cache. Patterns and corrections are kept:
// the cache holds verbatim answers that go stale when the underlying data
// or a template changes, while patterns stay structurally valid.
func (e *Engine) ClearCache() int {
	removed := e.cache.Clear()
	e.logger.Info("exact cache cleared", "removed", removed)
	e.updateGauges()
	return removed
}

// Optimize evicts patterns that are both stale and rarely hit. It is meant
// for maintenance windows, never the request path.
func (e *Engine) Optimize() int {
	cutoff := e.now().UTC().Add(-e.cfg.RetentionWindow)
	removed := e.patterns.Evict(cutoff, e.cfg.MinHitCount)
	if removed > 0 {
		observability.ObserveEviction(removed)
		e.logger.Info("evicted stale patterns", "removed", removed)
	}
	e.updateGauges()
	return removed
}

func (e *Engine) Stats() Stats {
	s := Stats{
		TotalQueries:   e.stats.totalQueries.Load(),
		ExactHits:      e.stats.exactHits.Load(),
		PatternHits:    e.stats.patternHits.Load(),
		GeneratorCalls: e.stats.generatorCalls.Load(),
		Fallbacks:      e.stats.fallbacks.Load(),
		AutoLearned:    e.stats.autoLearned.Load(),
		Corrections:    e.stats.corrections.Load(),
		PatternCount:   e.patterns.Len(),
		CacheEntries:   e.cache.Len(),
	}
	if s.TotalQueries > 0 {
		s.LearningRate = float64(s.ExactHits+s.PatternHits) / float64(s.TotalQueries)
	}
	e.mu.Lock()
	s.TotalCorrections = e.totalCorrections
	e.mu.Unlock()
	return s
}

// Snapshot returns a deep copy of the learned state for persistence.
func (e *Engine) Snapshot() State {
	e.mu.Lock()
	corrections := append([]CorrectionRecord(nil), e.corrections...)
	total := e.totalCorrections
	e.mu.Unlock()
	return State{
		ExactCache:       e.cache.Snapshot(),
		Patterns:         e.patterns.Snapshot(),
		Corrections:      corrections,
		TotalCorrections: total,
		Stats: StatsState{
			TotalQueries:   e.stats.totalQueries.Load(),
			ExactHits:      e.stats.exactHits.Load(),
			PatternHits:    e.stats.patternHits.Load(),
			GeneratorCalls: e.stats.generatorCalls.Load(),
			Fallbacks:      e.stats.fallbacks.Load(),
			AutoLearned:    e.stats.autoLearned.Load(),
		},
	}
}

// Restore replaces the learned state with a persisted snapshot, cumulative
// counters included, so learning-rate history spans restarts.
func (e *Engine) Restore(state State) {
	e.cache.Restore(state.ExactCache)
	e.patterns.Restore(state.Patterns)
	e.stats.totalQueries.Store(state.Stats.TotalQueries)
	e.stats.exactHits.Store(state.Stats.ExactHits)
	e.stats.patternHits.Store(state.Stats.PatternHits)
	e.stats.generatorCalls.Store(state.Stats.GeneratorCalls)
	e.stats.fallbacks.Store(state.Stats.Fallbacks)
	e.stats.autoLearned.Store(state.Stats.AutoLearned)
	e.mu.Lock()
	e.corrections = append([]CorrectionRecord(nil), state.Corrections...)
	e.totalCorrections = state.TotalCorrections
	e.mu.Unlock()
	e.updateGauges()
	e.logger.Info("state restored",
		"patterns", len(state.Patterns),
		"cache_entries", len(state.ExactCache),
		"corrections", len(state.Corrections))
}

// Corrections returns up to limit of the most recent correction records,
// newest last. limit <= 0 returns all retained records.
func (e *Engine) Corrections(limit int) []CorrectionRecord {
	e.mu.Lock()
	defer e.mu.Unlock()
	records := e.corrections
	if limit > 0 && len(records) > limit {
		records = records[len(records)-limit:]
	}
	return append([]CorrectionRecord(nil), records...)
}

func (e *Engine) recentCorrectionExamples(limit int) []nl2sql.CorrectionExample {
	records := e.Corrections(limit)
	examples := make([]nl2sql.CorrectionExample, 0, len(records))
	for _, record := range records {
		if record.GeneratedSQL == record.CorrectedSQL {
			continue
		}
		examples = append(examples, nl2sql.CorrectionExample{
			Question:     record.Question,
			WrongSQL:     record.GeneratedSQL,
			CorrectedSQL: record.CorrectedSQL,
		})
	}
	return examples
}

func (e *Engine) schemaDescription(ctx context.Context) string {
	if e.schema == nil {
		return ""
	}
	description, err := e.schema.Describe(ctx)
	if err != nil {
		e.logger.Warn("schema description unavailable", "error", err)
		return ""
	}
	return description
}

func (e *Engine) updateGauges() {
	s := e.Stats()
	observability.SetLearningState(s.LearningRate, s.PatternCount, s.CacheEntries)
}
