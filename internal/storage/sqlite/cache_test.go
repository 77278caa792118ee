package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nmery/needscan/internal/storage"
	"github.com/nmery/needscan/internal/types"
)

// Run deduplication behavior of CreateJob: one canonical job per cache key
// per day, cached mirrors for everyone else, quota counted for both.

func TestSecondRequestMirrorsCompletedCanonical(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	canonical := createQueuedJob(t, store, "user-1", "key-a")
	if _, err := store.ClaimNext(ctx, "worker-1"); err != nil {
		t.Fatalf("claim failed: %v", err)
	}
	result := types.RunResult{InsightCount: 7, ClusterCount: 19}
	if err := store.CompleteJob(ctx, canonical.ID, result); err != nil {
		t.Fatalf("complete failed: %v", err)
	}

	cached := createQueuedJob(t, store, "user-2", "key-a")
	if !cached.IsCachedResult {
		t.Fatal("expected a cached job")
	}
	if cached.Status != types.StatusCompleted {
		t.Errorf("cached status = %s, want completed", cached.Status)
	}
	if cached.SourceJobID == nil || *cached.SourceJobID != canonical.ID {
		t.Errorf("cached source = %v, want %s", cached.SourceJobID, canonical.ID)
	}
	if cached.InsightCount != 7 {
		t.Errorf("cached insight count = %d, want mirrored 7", cached.InsightCount)
	}
	if cached.EffectiveJobID() != canonical.ID {
		t.Errorf("effective id = %s, want %s", cached.EffectiveJobID(), canonical.ID)
	}
}

func TestFailedCanonicalIsNotReused(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	first := createQueuedJob(t, store, "user-1", "key-a")
	if _, err := store.ClaimNext(ctx, "worker-1"); err != nil {
		t.Fatalf("claim failed: %v", err)
	}
	if err := store.FailJob(ctx, first.ID, "boom"); err != nil {
		t.Fatalf("fail failed: %v", err)
	}

	// A failed canonical does not serve cached mirrors; the next request
	// becomes a fresh canonical attempt.
	second := createQueuedJob(t, store, "user-2", "key-a")
	if second.IsCachedResult {
		t.Error("request after a failed canonical should start a new canonical job")
	}
	if second.Status != types.StatusQueued {
		t.Errorf("new canonical status = %s, want queued", second.Status)
	}
}

func TestAllCachedJobsResolveToOldestCanonical(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	canonical := createQueuedJob(t, store, "user-1", "key-a")
	if _, err := store.ClaimNext(ctx, "worker-1"); err != nil {
		t.Fatalf("claim failed: %v", err)
	}

	var mirrors []*types.Job
	for _, owner := range []string{"user-2", "user-3", "user-4"} {
		mirrors = append(mirrors, createQueuedJob(t, store, owner, "key-a"))
	}
	for _, m := range mirrors {
		if m.EffectiveJobID() != canonical.ID {
			t.Errorf("mirror %s resolves to %s, want %s", m.ID, m.EffectiveJobID(), canonical.ID)
		}
	}

	counts, err := store.QueueCounts(ctx)
	if err != nil {
		t.Fatalf("QueueCounts failed: %v", err)
	}
	if counts[types.StatusRunning] != 4 {
		t.Errorf("running count = %d, want 4 (canonical plus three mirrors)", counts[types.StatusRunning])
	}
}

func TestQuotaCountsCachedAndCanonicalAlike(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC()
	params := storage.CreateJobParams{
		OwnerUserID: "user-1",
		Request:     testRequest(),
		CacheKey:    "key-a",
		QuotaPerDay: 2,
		Now:         now,
	}

	if _, err := store.CreateJob(ctx, params); err != nil {
		t.Fatalf("first job failed: %v", err)
	}
	if _, err := store.ClaimNext(ctx, "worker-1"); err != nil {
		t.Fatalf("claim failed: %v", err)
	}

	// Second request is served from cache but still consumes quota.
	cached, err := store.CreateJob(ctx, params)
	if err != nil {
		t.Fatalf("second job failed: %v", err)
	}
	if !cached.IsCachedResult {
		t.Fatal("expected cached job")
	}

	if _, err := store.CreateJob(ctx, params); !errors.Is(err, storage.ErrQuotaExceeded) {
		t.Fatalf("third job: expected ErrQuotaExceeded, got %v", err)
	}

	count, err := store.CountJobsToday(ctx, "user-1", now)
	if err != nil {
		t.Fatalf("CountJobsToday failed: %v", err)
	}
	if count != 2 {
		t.Errorf("jobs today = %d, want 2", count)
	}

	// A different owner has an untouched quota.
	other := params
	other.OwnerUserID = "user-2"
	if _, err := store.CreateJob(ctx, other); err != nil {
		t.Errorf("other owner's job failed: %v", err)
	}
}

func TestDifferentDaysGetIndependentCanonicals(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	day1 := time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC)
	day2 := day1.Add(24 * time.Hour)

	// The cache key carries the UTC date, so day two requests present a
	// different key and never see day one's canonical job.
	j1, err := store.CreateJob(ctx, storage.CreateJobParams{
		OwnerUserID: "user-1", Request: testRequest(), CacheKey: "key-2026-08-29", Now: day1,
	})
	if err != nil {
		t.Fatalf("day one job failed: %v", err)
	}
	j2, err := store.CreateJob(ctx, storage.CreateJobParams{
		OwnerUserID: "user-2", Request: testRequest(), CacheKey: "key-2026-08-30", Now: day2,
	})
	if err != nil {
		t.Fatalf("day two job failed: %v", err)
	}

	if j1.IsCachedResult || j2.IsCachedResult {
		t.Error("both days should produce canonical jobs")
	}
	if j1.ID == j2.ID {
		t.Error("expected two independent jobs")
	}
}
