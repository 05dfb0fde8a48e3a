// Package engine is the consistency orchestrator. It fingerprints images,
// answers cache lookups and turns raw model text into cached, validated and
// scored results.
package engine

import (
	"context"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/fishlens/fishlens/pkg/cache/memory"
	"github.com/fishlens/fishlens/pkg/confidence"
	"github.com/fishlens/fishlens/pkg/fingerprint"
	"github.com/fishlens/fishlens/pkg/models"
	"github.com/fishlens/fishlens/pkg/normalize"
	"github.com/fishlens/fishlens/pkg/validate"
)

// Fatal per-request errors. Neither is ever cached.
var (
	ErrUndecodableImage      = fingerprint.ErrUndecodableImage
	ErrNoRecognizableContent = normalize.ErrNoRecognizableContent
)

// Config holds construction-time engine settings.
type Config struct {
	CacheCapacity       int
	SimilarityThreshold int
	TTL                 time.Duration
}

// DefaultConfig returns the default engine settings.
func DefaultConfig() Config {
	return Config{
		CacheCapacity:       memory.DefaultCapacity,
		SimilarityThreshold: fingerprint.DefaultThreshold,
	}
}

// Outcome classifies a cache lookup.
type Outcome string

const (
	OutcomeExactHit       Outcome = "exact_hit"
	OutcomeSimilarMatches Outcome = "similar_matches"
	OutcomeMiss           Outcome = "miss"
)

// SimilarMatch is a near-duplicate reported alongside a miss.
type SimilarMatch struct {
	Fingerprint models.Fingerprint `json:"fingerprint"`
	Distance    int                `json:"distance"`
}

// LookupResult is the answer to Lookup. Entry is set only for an exact hit.
type LookupResult struct {
	Outcome Outcome            `json:"outcome"`
	Entry   *models.CacheEntry `json:"entry,omitempty"`
	Matches []SimilarMatch     `json:"matches,omitempty"`
}

// FinalizeResult is a freshly normalized, validated and scored analysis.
type FinalizeResult struct {
	Result     models.NormalizedResult `json:"result"`
	Confidence models.ConfidenceScore  `json:"confidence"`
	Report     models.ValidationReport `json:"report"`
}

// Engine is safe for concurrent use.
type Engine struct {
	cfg    Config
	cache  *memory.Cache
	norm   *normalize.Normalizer
	logger *log.Logger
	now    func() time.Time
	store  func(models.CacheEntry) error
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger. Engines are silent by default.
func WithLogger(l *log.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithNormalizer replaces the default-vocabulary normalizer.
func WithNormalizer(n *normalize.Normalizer) Option {
	return func(e *Engine) {
		if n != nil {
			e.norm = n
		}
	}
}

// WithClock sets the time source for entry timestamps and TTL checks.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithWriteThrough calls store with every entry the engine caches. A store
// error is logged and the entry stays cached in memory.
func WithWriteThrough(store func(models.CacheEntry) error) Option {
	return func(e *Engine) {
		e.store = store
	}
}

// New creates an Engine with its own cache.
func New(cfg Config, opts ...Option) *Engine {
	if cfg.CacheCapacity <= 0 {
		cfg.CacheCapacity = memory.DefaultCapacity
	}
	if cfg.SimilarityThreshold < 0 {
		cfg.SimilarityThreshold = fingerprint.DefaultThreshold
	}
	e := &Engine{
		cfg:    cfg,
		logger: log.New(io.Discard, "", 0),
		now:    time.Now,
	}
	for _, o := range opts {
		o(e)
	}
	if e.norm == nil {
		e.norm = normalize.Default()
	}
	e.cache = memory.New(cfg.CacheCapacity, memory.WithTTL(cfg.TTL), memory.WithClock(e.now))
	return e
}

// Config returns the engine settings.
func (e *Engine) Config() Config { return e.cfg }

// Normalizer returns the normalizer used by Finalize.
func (e *Engine) Normalizer() *normalize.Normalizer { return e.norm }

// Fingerprint computes the fingerprint of encoded image bytes.
func (e *Engine) Fingerprint(image []byte) (models.Fingerprint, error) {
	fp, err := fingerprint.Compute(image)
	if err != nil {
		e.logger.Printf("engine: fingerprint failed: %v", err)
		return models.Fingerprint{}, err
	}
	return fp, nil
}

// Lookup checks the cache for an exact entry and, failing that, for
// near-duplicates within the similarity threshold. Near-duplicates are
// advisory and never stand in for an exact hit.
func (e *Engine) Lookup(fp models.Fingerprint, kind models.AnalysisKind) LookupResult {
	key := models.CacheKey{Fingerprint: fp, Kind: kind}
	if entry, ok := e.cache.GetExact(key); ok {
		e.logger.Printf("engine: exact hit %s/%s (hits=%d)", fp, kind, entry.HitCount)
		return LookupResult{Outcome: OutcomeExactHit, Entry: &entry}
	}

	found := e.cache.FindSimilar(fp, kind, e.cfg.SimilarityThreshold)
	if len(found) == 0 {
		return LookupResult{Outcome: OutcomeMiss}
	}
	matches := make([]SimilarMatch, len(found))
	for i, m := range found {
		matches[i] = SimilarMatch{Fingerprint: m.Entry.Fingerprint, Distance: m.Distance}
	}
	e.logger.Printf("engine: %d similar entries for %s/%s (nearest=%d)", len(matches), fp, kind, matches[0].Distance)
	return LookupResult{Outcome: OutcomeSimilarMatches, Matches: matches}
}

// Finalize normalizes, validates and scores raw model text, then writes the
// entry into the cache. Validation findings lower the confidence but are not
// errors. When normalization fails nothing is cached.
func (e *Engine) Finalize(fp models.Fingerprint, kind models.AnalysisKind, raw string) (FinalizeResult, error) {
	res, err := e.evaluate(kind, raw, nil)
	if err != nil {
		e.logger.Printf("engine: finalize %s/%s rejected: %v", fp, kind, err)
		return FinalizeResult{}, err
	}
	e.write(fp, kind, res)
	return res, nil
}

func (e *Engine) evaluate(kind models.AnalysisKind, raw string, visit func(State)) (FinalizeResult, error) {
	if visit == nil {
		visit = func(State) {}
	}

	visit(StateNormalizing)
	result, err := e.norm.Normalize(raw, kind)
	if err != nil {
		return FinalizeResult{}, fmt.Errorf("finalize: %w", err)
	}

	visit(StateValidating)
	report := validate.Validate(result, kind)

	visit(StateScoring)
	score := confidence.Score(result, report)

	return FinalizeResult{Result: result, Confidence: score, Report: report}, nil
}

func (e *Engine) write(fp models.Fingerprint, kind models.AnalysisKind, res FinalizeResult) {
	key := models.CacheKey{Fingerprint: fp, Kind: kind}
	entry := models.CacheEntry{
		Fingerprint: fp,
		Kind:        kind,
		Result:      res.Result,
		Confidence:  res.Confidence,
		Report:      res.Report,
		CreatedAt:   e.now(),
		HitCount:    1,
	}
	victim, evicted := e.cache.Put(key, entry)
	if evicted {
		e.logger.Printf("engine: evicted %s/%s", victim.Fingerprint, victim.Kind)
	}
	e.logger.Printf("engine: cached %s/%s confidence=%d violations=%d",
		fp, kind, res.Confidence.Percentage, len(res.Report.Violations))

	if e.store != nil {
		if err := e.store(entry.Clone()); err != nil {
			e.logger.Printf("engine: write-through %s/%s: %v", fp, kind, err)
		}
	}
}

// Stats returns cache counters.
func (e *Engine) Stats() models.CacheStats {
	return e.cache.Stats()
}

// Snapshot returns copies of every live cache entry, oldest first.
func (e *Engine) Snapshot() []models.CacheEntry {
	return e.cache.Entries()
}

// Restore loads previously snapshotted entries, keeping their timestamps and
// hit counts. Entries with an unknown kind are skipped. It returns the number
// of entries stored.
func (e *Engine) Restore(entries []models.CacheEntry) int {
	n := 0
	for _, entry := range entries {
		if !entry.Kind.Valid() {
			continue
		}
		e.cache.Put(entry.Key(), entry)
		n++
	}
	if n > 0 {
		e.logger.Printf("engine: restored %d entries", n)
	}
	return n
}

// Forget drops the cached entry for fp and kind.
func (e *Engine) Forget(fp models.Fingerprint, kind models.AnalysisKind) bool {
	return e.cache.Delete(models.CacheKey{Fingerprint: fp, Kind: kind})
}

// Clear empties the cache and returns how many entries were dropped.
func (e *Engine) Clear() int {
	return e.cache.Clear()
}

// Analyze runs the full request flow for one image. On an exact hit the
// cached result is returned and model is never called.
func (e *Engine) Analyze(ctx context.Context, image []byte, kind models.AnalysisKind, model ModelFunc) (Analysis, error) {
	var a Analysis
	visit := func(s State) { a.States = append(a.States, s) }

	visit(StateFingerprinting)
	fp, err := e.Fingerprint(image)
	if err != nil {
		return a, err
	}
	a.Fingerprint = fp

	visit(StateCacheLookup)
	lr := e.Lookup(fp, kind)
	if lr.Outcome == OutcomeExactHit {
		visit(StateCacheHit)
		a.Reused = true
		a.Result = lr.Entry.Result
		a.Confidence = lr.Entry.Confidence
		a.Report = lr.Entry.Report
		a.HitCount = lr.Entry.HitCount
		visit(StateDone)
		return a, nil
	}
	visit(StateCacheMiss)
	a.Matches = lr.Matches

	raw, err := model(ctx, image, kind)
	if err != nil {
		return a, fmt.Errorf("invoke model: %w", err)
	}
	a.Raw = raw

	res, err := e.evaluate(kind, raw, visit)
	if err != nil {
		e.logger.Printf("engine: analyze %s/%s rejected: %v", fp, kind, err)
		return a, err
	}

	visit(StateCacheWrite)
	e.write(fp, kind, res)
	a.Result = res.Result
	a.Confidence = res.Confidence
	a.Report = res.Report
	a.HitCount = 1
	visit(StateDone)
	return a, nil
}
