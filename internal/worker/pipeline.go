package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nmery/needscan/internal/llm"
	"github.com/nmery/needscan/internal/rank"
	"github.com/nmery/needscan/internal/scoring"
	"github.com/nmery/needscan/internal/types"
)

// Heuristic blend used only to pick which clusters deserve the heavy
// generation tier. The real priority score is computed later from the
// full signal set.
const (
	allocPainWeight     = 0.4
	allocTractionWeight = 0.3
	allocWTPWeight      = 0.3
)

// runScan executes one claimed job end to end: load candidates, score every
// cluster, rank, rerank for diversity, persist, and record history. Signal
// scorers degrade to neutral defaults instead of failing, so a run only
// errors on missing inputs or storage problems.
func (w *Worker) runScan(ctx context.Context, job *types.Job) error {
	log := w.log.With(zap.String("job_id", job.ID))
	start := time.Now()
	totalCost := 0.0

	if err := w.store.UpdateProgress(ctx, job.ID, 5, "loading candidate clusters"); err != nil {
		return err
	}
	clusters, err := w.loader.Load(ctx, job.InputPattern)
	if err != nil {
		return fmt.Errorf("failed to load candidate clusters: %w", err)
	}
	if err := w.store.SaveClusters(ctx, job.ID, clusters); err != nil {
		return fmt.Errorf("failed to persist clusters: %w", err)
	}
	if err := w.store.UpdateProgress(ctx, job.ID, 15, fmt.Sprintf("scoring %d clusters", len(clusters))); err != nil {
		return err
	}

	// Cheap signals first; they also drive the heavy-tier allocation.
	painH := make(map[int]float64, len(clusters))
	traction := make(map[int]float64, len(clusters))
	wtp := make(map[int]float64, len(clusters))
	cands := make([]rank.Candidate, 0, len(clusters))
	for _, c := range clusters {
		painH[c.ID] = scoring.PainHeuristic(c)
		traction[c.ID] = scoring.TractionScore(c)
		wtp[c.ID] = scoring.WTPScore(c)
		cands = append(cands, rank.Candidate{
			ID:        c.ID,
			Heuristic: allocPainWeight*painH[c.ID] + allocTractionWeight*traction[c.ID] + allocWTPWeight*wtp[c.ID],
		})
	}

	heavyBudget := 0
	if job.RunMode == types.RunModeDeep {
		heavyBudget = w.cfg.HeavyTopK
	}
	heavyIDs, _ := rank.Allocate(cands, heavyBudget)
	heavySet := make(map[int]bool, len(heavyIDs))
	for _, id := range heavyIDs {
		heavySet[id] = true
	}

	// The history window is read once and every cluster scores against the
	// same snapshot, so one run sees a consistent view of the past.
	window, err := w.ledger.WindowEntries(ctx, w.cfg.History.WindowDays)
	if err != nil {
		log.Warn("history window unavailable, scoring without history", zap.Error(err))
		window = nil
	}

	centroids := make(map[int][]float64, len(clusters))
	insights := make([]*types.Insight, 0, len(clusters))
	for i, c := range clusters {
		if err := ctx.Err(); err != nil {
			return err
		}
		centroids[c.ID] = c.Centroid

		tier := llm.TierLight
		if heavySet[c.ID] {
			tier = llm.TierHeavy
		}

		sim := w.ledger.SimilarityAgainst(window, c.Centroid)

		llmPain, cost, painDeg := w.scorer.PainScore(ctx, c, tier)
		totalCost += cost
		sector, cost, sectorDeg := w.scorer.ClassifySector(ctx, c, tier)
		totalCost += cost
		title, summary, cost, enrichDeg := w.scorer.Enrich(ctx, c, tier)
		totalCost += cost
		fit, cost, fitDeg := w.scorer.FounderFit(ctx, c, tier)
		totalCost += cost

		signals := types.SignalSet{
			Pain:     scoring.CombinedPain(llmPain, painH[c.ID]),
			Traction: traction[c.ID],
			Novelty:  scoring.NoveltyScore(sim.HasHistory, sim.MaxSimilarity),
			Trend:    scoring.TrendScore(c, window),
			WTP:      wtp[c.ID],
			Degraded: painDeg || sectorDeg || enrichDeg || fitDeg,
		}
		if w.scorer.HasFounderProfile() {
			signals.FounderFit = &fit
		}

		raw := rank.Compose(signals, w.cfg.Weights)
		adjusted := rank.Adjust(raw, sim.MaxSimilarity, w.cfg.History.Alpha)

		insights = append(insights, &types.Insight{
			ID:               uuid.New().String(),
			JobID:            job.ID,
			ClusterID:        c.ID,
			Title:            title,
			Summary:          summary,
			Sector:           sector,
			ClusterSize:      c.MemberCount,
			Signals:          signals,
			PriorityRaw:      raw,
			PriorityAdjusted: adjusted,
			MaxSimilarity:    sim.MaxSimilarity,
			IsHistoricalDup:  sim.IsDuplicate,
			IsRecurringTheme: sim.IsRecurring,
			CreatedAt:        time.Now().UTC(),
		})

		pct := 15 + (i+1)*55/len(clusters)
		note := fmt.Sprintf("scored cluster %d of %d", i+1, len(clusters))
		if err := w.store.UpdateProgress(ctx, job.ID, pct, note); err != nil {
			return err
		}
	}

	if err := w.store.UpdateProgress(ctx, job.ID, 75, "ranking insights"); err != nil {
		return err
	}
	rank.AssignRanks(insights)

	topK := w.cfg.MMR.TopK
	if job.MaxInsights > 0 && job.MaxInsights < topK {
		topK = job.MaxInsights
	}
	items := make([]rank.Item, 0, len(insights))
	for _, ins := range insights {
		items = append(items, rank.Item{
			ID:        ins.ClusterID,
			Relevance: ins.PriorityAdjusted,
			Embedding: centroids[ins.ClusterID],
			Sector:    ins.Sector,
		})
	}
	var selections []rank.Selection
	if w.cfg.MMR.BySector {
		selections = rank.RerankBySector(items, topK, w.cfg.MMR.TopKPerSector, w.cfg.MMR.Lambda)
	} else {
		selections = rank.Rerank(items, topK, w.cfg.MMR.Lambda)
	}
	mmrRank := make(map[int]int, len(selections))
	for _, sel := range selections {
		mmrRank[sel.ID] = sel.MMRRank
	}
	published := 0
	for _, ins := range insights {
		ins.MMRRank = mmrRank[ins.ClusterID]
		if ins.MMRRank > 0 {
			published++
		}
	}

	if err := w.store.UpdateProgress(ctx, job.ID, 85, "saving insights"); err != nil {
		return err
	}
	if err := w.store.SaveInsights(ctx, job.ID, insights); err != nil {
		return fmt.Errorf("failed to persist insights: %w", err)
	}

	if err := w.store.UpdateProgress(ctx, job.ID, 95, "recording history"); err != nil {
		return err
	}
	entries := make([]types.HistoryEntry, 0, published)
	now := time.Now().UTC()
	for _, ins := range insights {
		if ins.MMRRank == 0 {
			continue
		}
		entries = append(entries, types.HistoryEntry{
			EntryID:     fmt.Sprintf("%s-%d", job.ID, ins.ClusterID),
			CapturedAt:  now,
			Embedding:   centroids[ins.ClusterID],
			Sector:      ins.Sector,
			PriorityRaw: ins.PriorityRaw,
			MemberCount: ins.ClusterSize,
		})
	}
	if err := w.ledger.RecordAll(ctx, entries); err != nil {
		return fmt.Errorf("failed to record history: %w", err)
	}

	result := types.RunResult{
		InsightCount: published,
		ClusterCount: len(clusters),
		TotalCostUSD: totalCost,
	}
	if err := w.store.CompleteJob(ctx, job.ID, result); err != nil {
		return fmt.Errorf("failed to complete job: %w", err)
	}

	log.Info("scan completed",
		zap.Int("clusters", len(clusters)),
		zap.Int("insights_published", published),
		zap.Float64("cost_usd", totalCost),
		zap.Duration("duration", time.Since(start)))
	return nil
}
