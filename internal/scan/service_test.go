package scan

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/nmery/needscan/internal/config"
	"github.com/nmery/needscan/internal/storage"
	"github.com/nmery/needscan/internal/storage/sqlite"
	"github.com/nmery/needscan/internal/types"
)

func setupService(t *testing.T) (*Service, *sqlite.Store) {
	t.Helper()
	store, err := sqlite.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return NewService(store, config.Default(), nil), store
}

func request() types.ScanRequest {
	return types.ScanRequest{
		Mode:         "web",
		RunMode:      types.RunModeDeep,
		MaxInsights:  20,
		InputPattern: "data/*.json",
	}
}

func TestCreateJobEnforcesFreeQuota(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()

	if _, err := svc.CreateJob(ctx, "user-1", types.PlanFree, request()); err != nil {
		t.Fatalf("first scan failed: %v", err)
	}
	// Default free plan allows one scan per day.
	if _, err := svc.CreateJob(ctx, "user-1", types.PlanFree, request()); !errors.Is(err, storage.ErrQuotaExceeded) {
		t.Fatalf("second scan: expected ErrQuotaExceeded, got %v", err)
	}

	// Premium is unlimited.
	for i := 0; i < 3; i++ {
		if _, err := svc.CreateJob(ctx, "user-2", types.PlanPremium, request()); err != nil {
			t.Fatalf("premium scan %d failed: %v", i, err)
		}
	}
}

func TestSameDayRequestsShareOneCanonicalJob(t *testing.T) {
	svc, store := setupService(t)
	ctx := context.Background()

	canonical, err := svc.CreateJob(ctx, "user-1", types.PlanPremium, request())
	if err != nil {
		t.Fatalf("first request failed: %v", err)
	}
	if _, err := store.ClaimNext(ctx, "worker-1"); err != nil {
		t.Fatalf("claim failed: %v", err)
	}

	mirror, err := svc.CreateJob(ctx, "user-2", types.PlanPremium, request())
	if err != nil {
		t.Fatalf("second request failed: %v", err)
	}
	if !mirror.IsCachedResult {
		t.Fatal("same-day identical request should be served from cache")
	}
	if mirror.EffectiveJobID() != canonical.ID {
		t.Errorf("mirror resolves to %s, want %s", mirror.EffectiveJobID(), canonical.ID)
	}
}

func TestDifferentUTCDaysProduceIndependentCanonicals(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()

	day := time.Date(2026, 8, 29, 22, 0, 0, 0, time.UTC)
	svc.WithClock(func() time.Time { return day })
	first, err := svc.CreateJob(ctx, "user-1", types.PlanPremium, request())
	if err != nil {
		t.Fatalf("day one request failed: %v", err)
	}

	svc.WithClock(func() time.Time { return day.Add(6 * time.Hour) }) // past midnight
	second, err := svc.CreateJob(ctx, "user-2", types.PlanPremium, request())
	if err != nil {
		t.Fatalf("day two request failed: %v", err)
	}

	if first.IsCachedResult || second.IsCachedResult {
		t.Error("requests on different UTC days must both be canonical")
	}
	if first.CacheKey == second.CacheKey {
		t.Error("cache keys must differ across UTC days")
	}
}

func TestGetJobStatusMirrorsCanonicalLive(t *testing.T) {
	svc, store := setupService(t)
	ctx := context.Background()

	canonical, err := svc.CreateJob(ctx, "user-1", types.PlanPremium, request())
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if _, err := store.ClaimNext(ctx, "worker-1"); err != nil {
		t.Fatalf("claim failed: %v", err)
	}
	mirror, err := svc.CreateJob(ctx, "user-2", types.PlanPremium, request())
	if err != nil {
		t.Fatalf("mirror create failed: %v", err)
	}

	// Canonical progress advances after the mirror was created; the mirror
	// must see it live.
	if err := store.UpdateProgress(ctx, canonical.ID, 60, "reranking"); err != nil {
		t.Fatalf("progress update failed: %v", err)
	}

	status, err := svc.GetJobStatus(ctx, mirror.ID)
	if err != nil {
		t.Fatalf("GetJobStatus failed: %v", err)
	}
	if status.Progress != 60 || status.Status != types.StatusRunning {
		t.Errorf("mirror status = %s/%d, want running/60", status.Status, status.Progress)
	}

	// Canonical failure propagates to mirror holders.
	if err := store.FailJob(ctx, canonical.ID, "generation capability down"); err != nil {
		t.Fatalf("fail failed: %v", err)
	}
	status, err = svc.GetJobStatus(ctx, mirror.ID)
	if err != nil {
		t.Fatalf("GetJobStatus failed: %v", err)
	}
	if status.Status != types.StatusFailed || status.Error == "" {
		t.Errorf("mirror should mirror the failure: %+v", status)
	}
}

func TestGetResultsResolvesCachedToCanonical(t *testing.T) {
	svc, store := setupService(t)
	ctx := context.Background()

	canonical, err := svc.CreateJob(ctx, "user-1", types.PlanPremium, request())
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if _, err := store.ClaimNext(ctx, "worker-1"); err != nil {
		t.Fatalf("claim failed: %v", err)
	}

	insights := []*types.Insight{
		{ID: "i-1", JobID: canonical.ID, ClusterID: 1, Rank: 1, MMRRank: 1, Title: "first", Sector: types.SectorDevTools},
		{ID: "i-2", JobID: canonical.ID, ClusterID: 2, Rank: 2, MMRRank: 2, Title: "second", Sector: types.SectorHealth},
		{ID: "i-3", JobID: canonical.ID, ClusterID: 3, Rank: 3, MMRRank: 0, Title: "audit only", Sector: types.SectorHealth},
	}
	if err := store.SaveInsights(ctx, canonical.ID, insights); err != nil {
		t.Fatalf("save insights failed: %v", err)
	}
	if err := store.CompleteJob(ctx, canonical.ID, types.RunResult{InsightCount: 2}); err != nil {
		t.Fatalf("complete failed: %v", err)
	}

	mirror, err := svc.CreateJob(ctx, "user-2", types.PlanPremium, request())
	if err != nil {
		t.Fatalf("mirror create failed: %v", err)
	}

	got, err := svc.GetResults(ctx, mirror.ID, ResultFilter{})
	if err != nil {
		t.Fatalf("GetResults failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d insights, want 2 published (audit row excluded)", len(got))
	}
	if got[0].Title != "first" {
		t.Errorf("first insight = %q, want rank order", got[0].Title)
	}

	// Audit rows are retained and reachable on request.
	all, err := svc.GetResults(ctx, mirror.ID, ResultFilter{IncludeAudit: true})
	if err != nil {
		t.Fatalf("GetResults with audit failed: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("got %d insights with audit, want 3", len(all))
	}

	// Sector filter.
	health, err := svc.GetResults(ctx, mirror.ID, ResultFilter{Sector: types.SectorHealth})
	if err != nil {
		t.Fatalf("GetResults with sector failed: %v", err)
	}
	if len(health) != 1 || health[0].Sector != types.SectorHealth {
		t.Errorf("sector filter returned %+v", health)
	}
}

func TestGetResultsBeforeCompletion(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()

	job, err := svc.CreateJob(ctx, "user-1", types.PlanPremium, request())
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if _, err := svc.GetResults(ctx, job.ID, ResultFilter{}); !errors.Is(err, ErrNotCompleted) {
		t.Errorf("expected ErrNotCompleted for queued job, got %v", err)
	}
}

func TestVisibleInsightLimit(t *testing.T) {
	svc, _ := setupService(t)

	// Free plan caps at the configured per-run limit (10 by default).
	if got := svc.VisibleInsightLimit(types.PlanFree, 0); got != 10 {
		t.Errorf("free unbounded request limit = %d, want 10", got)
	}
	if got := svc.VisibleInsightLimit(types.PlanFree, 50); got != 10 {
		t.Errorf("free oversized request limit = %d, want 10", got)
	}
	if got := svc.VisibleInsightLimit(types.PlanFree, 3); got != 3 {
		t.Errorf("free small request limit = %d, want 3", got)
	}
	if got := svc.VisibleInsightLimit(types.PlanPremium, 50); got != 50 {
		t.Errorf("premium limit = %d, want caller's 50", got)
	}
}
