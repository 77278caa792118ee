package worker

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/nmery/needscan/internal/candidates"
	"github.com/nmery/needscan/internal/config"
	"github.com/nmery/needscan/internal/history"
	"github.com/nmery/needscan/internal/llm"
	"github.com/nmery/needscan/internal/scoring"
	"github.com/nmery/needscan/internal/storage"
	"github.com/nmery/needscan/internal/storage/sqlite"
	"github.com/nmery/needscan/internal/types"
)

// scriptedGen answers each scorer prompt with a canned parseable response.
type scriptedGen struct {
	err   error
	calls int
}

func (g *scriptedGen) Generate(ctx context.Context, prompt string, tier llm.Tier) (string, float64, error) {
	g.calls++
	if g.err != nil {
		return "", 0, g.err
	}
	switch {
	case strings.Contains(prompt, "Allowed sectors"):
		return `{"sector": "dev_tools"}`, 0.001, nil
	case strings.Contains(prompt, `"title"`):
		return `{"title": "Flaky CI pipelines", "summary": "Teams lose hours to flaky test reruns."}`, 0.001, nil
	default:
		return `{"score": 7}`, 0.001, nil
	}
}

func testClusters(n int) []*types.Cluster {
	clusters := make([]*types.Cluster, 0, n)
	for i := 0; i < n; i++ {
		centroid := make([]float64, 3)
		centroid[i%3] = 1.0
		clusters = append(clusters, &types.Cluster{
			ID:          i + 1,
			Centroid:    centroid,
			MemberCount: 4,
			Examples: []types.RawItem{
				{
					ID:        "p1",
					Source:    "reddit",
					Title:     "CI keeps failing and I can't ship",
					Body:      "I would pay for anything that makes this stop wasting my time.",
					Score:     120,
					Comments:  45,
					CreatedAt: time.Now().UTC(),
				},
			},
		})
	}
	return clusters
}

func writeClusterFile(t *testing.T, dir string, clusters []*types.Cluster) string {
	t.Helper()
	payload, err := json.Marshal(map[string]any{"clusters": clusters})
	if err != nil {
		t.Fatalf("failed to marshal clusters: %v", err)
	}
	path := filepath.Join(dir, "clusters_2026-01-15.json")
	if err := os.WriteFile(path, payload, 0o644); err != nil {
		t.Fatalf("failed to write cluster file: %v", err)
	}
	return path
}

func setupWorker(t *testing.T, gen llm.Generator) (*Worker, storage.Storage, *config.Config) {
	t.Helper()

	store, err := sqlite.New(filepath.Join(t.TempDir(), "scan.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	cfg := config.Default()
	ledger := history.NewLedger(store, cfg.History, zap.NewNop())
	loader := candidates.NewLoader(nil, zap.NewNop())
	scorer := scoring.NewLLMScorer(gen, "", zap.NewNop())

	w, err := New(store, ledger, loader, scorer, cfg, zap.NewNop())
	if err != nil {
		t.Fatalf("failed to create worker: %v", err)
	}
	return w, store, cfg
}

func enqueueJob(t *testing.T, store storage.Storage, owner, pattern string, maxInsights int) *types.Job {
	t.Helper()
	job, err := store.CreateJob(context.Background(), storage.CreateJobParams{
		OwnerUserID: owner,
		Request: types.ScanRequest{
			Mode:         "daily",
			RunMode:      types.RunModeLight,
			MaxInsights:  maxInsights,
			InputPattern: pattern,
		},
		CacheKey: "test-key-" + pattern,
		Now:      time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("failed to create job: %v", err)
	}
	return job
}

func TestProcessNextRunsQueuedJobToCompletion(t *testing.T) {
	ctx := context.Background()
	gen := &scriptedGen{}
	w, store, _ := setupWorker(t, gen)

	pattern := writeClusterFile(t, t.TempDir(), testClusters(3))
	job := enqueueJob(t, store, "user-1", pattern, 10)

	claimed, err := w.ProcessNext(ctx)
	if err != nil {
		t.Fatalf("ProcessNext failed: %v", err)
	}
	if !claimed {
		t.Fatal("expected the queued job to be claimed")
	}

	done, err := store.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("failed to get job: %v", err)
	}
	if done.Status != types.StatusCompleted {
		t.Fatalf("expected completed, got %s (error: %s)", done.Status, done.Error)
	}
	if done.Progress != 100 {
		t.Errorf("expected progress 100, got %d", done.Progress)
	}
	if done.ClusterCount != 3 {
		t.Errorf("expected cluster count 3, got %d", done.ClusterCount)
	}
	if done.InsightCount != 3 {
		t.Errorf("expected 3 published insights, got %d", done.InsightCount)
	}
	if done.TotalCostUSD <= 0 {
		t.Errorf("expected a positive run cost, got %f", done.TotalCostUSD)
	}

	insights, err := store.GetInsights(ctx, job.ID, 0)
	if err != nil {
		t.Fatalf("failed to get insights: %v", err)
	}
	if len(insights) != 3 {
		t.Fatalf("expected 3 insights, got %d", len(insights))
	}
	for _, ins := range insights {
		if ins.Rank < 1 {
			t.Errorf("insight %d has unassigned rank", ins.ClusterID)
		}
		if ins.Title == "" {
			t.Errorf("insight %d has empty title", ins.ClusterID)
		}
		if ins.Signals.Degraded {
			t.Errorf("insight %d unexpectedly degraded", ins.ClusterID)
		}
	}

	window, err := store.HistoryWindow(ctx, time.Now().UTC().Add(-time.Hour))
	if err != nil {
		t.Fatalf("failed to read history: %v", err)
	}
	if len(window) != 3 {
		t.Errorf("expected 3 history entries, got %d", len(window))
	}
}

func TestSecondWorkerFindsNothingAfterClaim(t *testing.T) {
	ctx := context.Background()
	w1, store, _ := setupWorker(t, &scriptedGen{})

	pattern := writeClusterFile(t, t.TempDir(), testClusters(2))
	enqueueJob(t, store, "user-1", pattern, 10)

	w2, err := New(store, w1.ledger, w1.loader, w1.scorer, w1.cfg, zap.NewNop())
	if err != nil {
		t.Fatalf("failed to create second worker: %v", err)
	}

	if claimed, err := w1.ProcessNext(ctx); err != nil || !claimed {
		t.Fatalf("first worker should claim and run (claimed=%v err=%v)", claimed, err)
	}
	if claimed, err := w2.ProcessNext(ctx); err != nil || claimed {
		t.Fatalf("second worker should find nothing (claimed=%v err=%v)", claimed, err)
	}
}

func TestCachedJobResolvesToCanonicalInsights(t *testing.T) {
	ctx := context.Background()
	w, store, _ := setupWorker(t, &scriptedGen{})

	pattern := writeClusterFile(t, t.TempDir(), testClusters(2))
	canonical := enqueueJob(t, store, "user-1", pattern, 10)

	if _, err := w.ProcessNext(ctx); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	// Same cache key from another owner mirrors the completed canonical.
	cached := enqueueJob(t, store, "user-2", pattern, 10)
	if !cached.IsCachedResult {
		t.Fatal("expected second request to be a cached job")
	}
	if cached.EffectiveJobID() != canonical.ID {
		t.Fatalf("cached job resolves to %s, want %s", cached.EffectiveJobID(), canonical.ID)
	}

	insights, err := store.GetInsights(ctx, cached.EffectiveJobID(), 0)
	if err != nil {
		t.Fatalf("failed to get insights: %v", err)
	}
	if len(insights) != 2 {
		t.Fatalf("expected canonical insights via cached job, got %d", len(insights))
	}

	// The cached job consumed no worker time.
	if claimed, _ := w.ProcessNext(ctx); claimed {
		t.Fatal("cached job must never be claimed")
	}
}

func TestDegradedScorersStillCompleteTheRun(t *testing.T) {
	ctx := context.Background()
	gen := &scriptedGen{err: errors.New("model overloaded")}
	w, store, _ := setupWorker(t, gen)

	pattern := writeClusterFile(t, t.TempDir(), testClusters(2))
	job := enqueueJob(t, store, "user-1", pattern, 10)

	if _, err := w.ProcessNext(ctx); err != nil {
		t.Fatalf("degraded run should still complete: %v", err)
	}

	done, err := store.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("failed to get job: %v", err)
	}
	if done.Status != types.StatusCompleted {
		t.Fatalf("expected completed, got %s", done.Status)
	}

	insights, err := store.GetInsights(ctx, job.ID, 0)
	if err != nil {
		t.Fatalf("failed to get insights: %v", err)
	}
	for _, ins := range insights {
		if !ins.Signals.Degraded {
			t.Errorf("insight %d should be marked degraded", ins.ClusterID)
		}
		if ins.Sector != types.SectorOther {
			t.Errorf("degraded sector should coerce to other, got %s", ins.Sector)
		}
	}
}

func TestRunFailsWhenNoCandidateFilesMatch(t *testing.T) {
	ctx := context.Background()
	w, store, _ := setupWorker(t, &scriptedGen{})

	pattern := filepath.Join(t.TempDir(), "nonexistent_*.json")
	job := enqueueJob(t, store, "user-1", pattern, 10)

	claimed, err := w.ProcessNext(ctx)
	if !claimed {
		t.Fatal("expected the job to be claimed")
	}
	if err == nil {
		t.Fatal("expected an error for an empty input pattern")
	}

	failed, getErr := store.GetJob(ctx, job.ID)
	if getErr != nil {
		t.Fatalf("failed to get job: %v", getErr)
	}
	if failed.Status != types.StatusFailed {
		t.Fatalf("expected failed, got %s", failed.Status)
	}
	if failed.Error == "" {
		t.Error("expected the failure message to be recorded on the job")
	}
}

func TestPublishedListRespectsMaxInsights(t *testing.T) {
	ctx := context.Background()
	w, store, _ := setupWorker(t, &scriptedGen{})

	pattern := writeClusterFile(t, t.TempDir(), testClusters(4))
	job := enqueueJob(t, store, "user-1", pattern, 2)

	if _, err := w.ProcessNext(ctx); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	done, err := store.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("failed to get job: %v", err)
	}
	if done.InsightCount != 2 {
		t.Errorf("expected 2 published insights, got %d", done.InsightCount)
	}

	insights, err := store.GetInsights(ctx, job.ID, 0)
	if err != nil {
		t.Fatalf("failed to get insights: %v", err)
	}
	if len(insights) != 4 {
		t.Fatalf("all scored insights are retained for audit, got %d", len(insights))
	}
	published := 0
	for _, ins := range insights {
		if ins.MMRRank > 0 {
			published++
		}
	}
	if published != 2 {
		t.Errorf("expected exactly 2 insights with an MMR rank, got %d", published)
	}

	// Only published insights enter the history ledger.
	window, err := store.HistoryWindow(ctx, time.Now().UTC().Add(-time.Hour))
	if err != nil {
		t.Fatalf("failed to read history: %v", err)
	}
	if len(window) != 2 {
		t.Errorf("expected 2 history entries, got %d", len(window))
	}
}

func TestRepeatRunIsPenalizedByHistory(t *testing.T) {
	ctx := context.Background()
	w, store, _ := setupWorker(t, &scriptedGen{})

	dir := t.TempDir()
	pattern := writeClusterFile(t, dir, testClusters(2))

	first := enqueueJob(t, store, "user-1", pattern, 10)
	if _, err := w.ProcessNext(ctx); err != nil {
		t.Fatalf("first run failed: %v", err)
	}

	// Same clusters again on a different cache key: the ledger now holds
	// identical embeddings, so adjusted priority must drop below raw.
	second, err := store.CreateJob(ctx, storage.CreateJobParams{
		OwnerUserID: "user-1",
		Request: types.ScanRequest{
			Mode:         "daily",
			RunMode:      types.RunModeLight,
			MaxInsights:  10,
			InputPattern: pattern,
		},
		CacheKey: "next-day-key",
		Now:      time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("failed to create second job: %v", err)
	}
	if _, err := w.ProcessNext(ctx); err != nil {
		t.Fatalf("second run failed: %v", err)
	}

	firstInsights, err := store.GetInsights(ctx, first.ID, 0)
	if err != nil {
		t.Fatalf("failed to get first insights: %v", err)
	}
	for _, ins := range firstInsights {
		if ins.PriorityAdjusted != ins.PriorityRaw {
			t.Errorf("first run cluster %d should see no penalty", ins.ClusterID)
		}
	}

	secondInsights, err := store.GetInsights(ctx, second.ID, 0)
	if err != nil {
		t.Fatalf("failed to get second insights: %v", err)
	}
	for _, ins := range secondInsights {
		if ins.MaxSimilarity < 0.999 {
			t.Errorf("cluster %d should match its own history entry, similarity %f", ins.ClusterID, ins.MaxSimilarity)
		}
		if !ins.IsHistoricalDup {
			t.Errorf("cluster %d should be flagged as a historical duplicate", ins.ClusterID)
		}
		if ins.PriorityAdjusted >= ins.PriorityRaw {
			t.Errorf("cluster %d adjusted %f should drop below raw %f", ins.ClusterID, ins.PriorityAdjusted, ins.PriorityRaw)
		}
	}
}

func TestWorkerStartStop(t *testing.T) {
	w, store, cfg := setupWorker(t, &scriptedGen{})
	cfg.Worker.PollInterval = 10 * time.Millisecond

	pattern := writeClusterFile(t, t.TempDir(), testClusters(1))
	job := enqueueJob(t, store, "user-1", pattern, 10)

	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("failed to start worker: %v", err)
	}
	if err := w.Start(context.Background()); err == nil {
		t.Error("double start should error")
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		done, err := store.GetJob(context.Background(), job.ID)
		if err != nil {
			t.Fatalf("failed to get job: %v", err)
		}
		if done.Status.IsTerminal() {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	if err := w.Stop(); err != nil {
		t.Fatalf("failed to stop worker: %v", err)
	}
	if err := w.Stop(); err == nil {
		t.Error("double stop should error")
	}

	done, err := store.GetJob(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("failed to get job: %v", err)
	}
	if done.Status != types.StatusCompleted {
		t.Fatalf("expected the polled job to complete, got %s", done.Status)
	}
}
