// Package storage defines the persistence interface for the scan engine.
// The store is the single source of truth and the only synchronization
// point between workers; all cross-worker coordination goes through it.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/nmery/needscan/internal/types"
)

// Sentinel errors surfaced across the storage boundary.
var (
	// ErrJobNotFound indicates the requested job id does not exist.
	ErrJobNotFound = errors.New("job not found")
	// ErrQuotaExceeded indicates the owner has used up their daily scans.
	ErrQuotaExceeded = errors.New("daily scan quota exceeded")
	// ErrNotRunning indicates a mutation that requires a running job.
	ErrNotRunning = errors.New("job is not running")
)

// CreateJobParams carries everything needed to create a job atomically:
// the request, its precomputed cache key, and the owner's quota limit.
// Quota counting, canonical lookup, and row creation happen in one
// transaction so concurrent requests cannot both slip under the limit.
type CreateJobParams struct {
	OwnerUserID string
	Request     types.ScanRequest
	CacheKey    string
	// QuotaPerDay caps the owner's jobs per UTC day. Zero means unlimited.
	QuotaPerDay int
	Now         time.Time
}

// Storage is the persistence interface for jobs, clusters, insights, and
// the history ledger. Implementations must be safe for use by concurrent
// worker processes sharing one database.
type Storage interface {
	// CreateJob deduplicates against today's canonical job for the same
	// cache key: it returns a cached job mirroring a running or completed
	// canonical when one exists, otherwise a fresh queued canonical job.
	// Every created job counts toward the owner's quota.
	CreateJob(ctx context.Context, params CreateJobParams) (*types.Job, error)

	GetJob(ctx context.Context, id string) (*types.Job, error)
	ListJobs(ctx context.Context, ownerUserID string, limit int) ([]*types.Job, error)

	// ClaimNext atomically claims the oldest queued canonical job for
	// workerID, transitioning it to running. It returns (nil, nil) when
	// nothing is claimable; losing a claim race is not an error.
	ClaimNext(ctx context.Context, workerID string) (*types.Job, error)

	// UpdateProgress advances a running job's progress. Progress is
	// monotonic within a running lifetime; writes also refresh the
	// job's heartbeat.
	UpdateProgress(ctx context.Context, jobID string, percent int, note string) error

	// Heartbeat refreshes the liveness timestamp of a running job.
	Heartbeat(ctx context.Context, jobID, workerID string) error

	CompleteJob(ctx context.Context, jobID string, result types.RunResult) error
	FailJob(ctx context.Context, jobID, message string) error

	// ResetStaleJobs is the operator recovery action: running jobs whose
	// heartbeat predates cutoff go back to queued, and their partial
	// insight writes are discarded. Returns the number of jobs reset.
	ResetStaleJobs(ctx context.Context, cutoff time.Time) (int, error)

	// CountJobsToday returns how many jobs the owner created on the UTC
	// day containing now, cached and canonical alike.
	CountJobsToday(ctx context.Context, ownerUserID string, now time.Time) (int, error)

	// QueueCounts returns the number of jobs per status.
	QueueCounts(ctx context.Context) (map[types.JobStatus]int, error)

	SaveClusters(ctx context.Context, jobID string, clusters []*types.Cluster) error
	GetClusters(ctx context.Context, jobID string) ([]*types.Cluster, error)

	SaveInsights(ctx context.Context, jobID string, insights []*types.Insight) error
	GetInsights(ctx context.Context, jobID string, limit int) ([]*types.Insight, error)
	DeleteInsights(ctx context.Context, jobID string) error

	// RecordHistory appends ledger entries; a duplicate entry id is a
	// no-op, not an error.
	RecordHistory(ctx context.Context, entries []types.HistoryEntry) error
	// HistoryWindow returns all ledger entries captured at or after since.
	HistoryWindow(ctx context.Context, since time.Time) ([]types.HistoryEntry, error)
	// SweepHistory deletes ledger entries captured before cutoff and
	// returns how many were removed. Safe to run concurrently with reads.
	SweepHistory(ctx context.Context, cutoff time.Time) (int, error)

	Close() error
}
