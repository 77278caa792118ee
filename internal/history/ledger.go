// Package history implements the ledger of previously surfaced clusters
// used to penalize repeated output across runs.
package history

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/nmery/needscan/internal/config"
	"github.com/nmery/needscan/internal/storage"
	"github.com/nmery/needscan/internal/types"
	"github.com/nmery/needscan/internal/vec"
)

// SimilarityResult describes how closely an embedding matches the ledger
// within the similarity window.
type SimilarityResult struct {
	MaxSimilarity float64 `json:"max_similarity"`
	MostSimilarID string  `json:"most_similar_id,omitempty"`
	// HasHistory is false when the window was empty, in which case
	// MaxSimilarity is exactly 0 (fail-open: a cold ledger never
	// over-penalizes).
	HasHistory  bool `json:"has_history"`
	IsDuplicate bool `json:"is_duplicate"`
	IsRecurring bool `json:"is_recurring"`
}

// Ledger is the append-only record of surfaced clusters.
type Ledger struct {
	store storage.Storage
	cfg   config.HistoryConfig
	log   *zap.Logger
}

// NewLedger creates a ledger over the given store.
func NewLedger(store storage.Storage, cfg config.HistoryConfig, log *zap.Logger) *Ledger {
	if log == nil {
		log = zap.NewNop()
	}
	return &Ledger{store: store, cfg: cfg, log: log}
}

// RecordAll appends entries for every cluster included in a run's final
// output. Duplicate entry ids are ignored, so re-recording after a worker
// retry is harmless.
func (l *Ledger) RecordAll(ctx context.Context, entries []types.HistoryEntry) error {
	if err := l.store.RecordHistory(ctx, entries); err != nil {
		return fmt.Errorf("failed to record history: %w", err)
	}
	l.log.Debug("recorded history entries", zap.Int("count", len(entries)))
	return nil
}

// MaxSimilarity returns the highest cosine similarity between the embedding
// and any ledger entry within the window, in [0,1]. An empty window returns
// exactly 0.0.
func (l *Ledger) MaxSimilarity(ctx context.Context, embedding []float64, windowDays int) (float64, error) {
	res, err := l.Similarity(ctx, embedding, windowDays)
	if err != nil {
		return 0, err
	}
	return res.MaxSimilarity, nil
}

// Similarity is the richer form of MaxSimilarity, also reporting whether
// the window held any history and whether the match crosses the duplicate
// or recurring-theme thresholds.
func (l *Ledger) Similarity(ctx context.Context, embedding []float64, windowDays int) (SimilarityResult, error) {
	if windowDays <= 0 {
		windowDays = l.cfg.WindowDays
	}
	since := time.Now().UTC().AddDate(0, 0, -windowDays)
	entries, err := l.store.HistoryWindow(ctx, since)
	if err != nil {
		return SimilarityResult{}, fmt.Errorf("failed to read history window: %w", err)
	}
	return l.SimilarityAgainst(entries, embedding), nil
}

// SimilarityAgainst computes the similarity result against an already
// fetched window, letting a pipeline read the window once and score every
// cluster against the same snapshot.
func (l *Ledger) SimilarityAgainst(entries []types.HistoryEntry, embedding []float64) SimilarityResult {
	if len(entries) == 0 {
		return SimilarityResult{}
	}

	res := SimilarityResult{HasHistory: true}
	for _, e := range entries {
		sim := vec.Cosine(embedding, e.Embedding)
		if sim > res.MaxSimilarity {
			res.MaxSimilarity = sim
			res.MostSimilarID = e.EntryID
		}
	}
	if res.MaxSimilarity > 1 {
		res.MaxSimilarity = 1
	}
	res.IsDuplicate = res.MaxSimilarity >= l.cfg.DuplicateThreshold
	res.IsRecurring = res.MaxSimilarity >= l.cfg.RecurringThreshold
	return res
}

// WindowEntries returns the raw entries in the similarity window, for
// scorers that need more than a single similarity number.
func (l *Ledger) WindowEntries(ctx context.Context, windowDays int) ([]types.HistoryEntry, error) {
	if windowDays <= 0 {
		windowDays = l.cfg.WindowDays
	}
	since := time.Now().UTC().AddDate(0, 0, -windowDays)
	return l.store.HistoryWindow(ctx, since)
}

// Sweep deletes entries older than the retention cutoff. Deletion never
// alters past run outputs, which are persisted separately as insights.
func (l *Ledger) Sweep(ctx context.Context, retentionDays int) (int, error) {
	if retentionDays <= 0 {
		retentionDays = l.cfg.RetentionDays
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -retentionDays)
	n, err := l.store.SweepHistory(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to sweep history: %w", err)
	}
	if n > 0 {
		l.log.Info("swept history entries",
			zap.Int("removed", n),
			zap.Time("cutoff", cutoff))
	}
	return n, nil
}
