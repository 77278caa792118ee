// Package scan is the engine's front door: job creation with quota and
// daily deduplication, status polling, and result retrieval. Presentation
// layers (HTTP, CLI) are thin consumers of this service.
package scan

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/nmery/needscan/internal/cache"
	"github.com/nmery/needscan/internal/config"
	"github.com/nmery/needscan/internal/quota"
	"github.com/nmery/needscan/internal/storage"
	"github.com/nmery/needscan/internal/types"
)

// ErrSourceUnresolved indicates a cached job whose canonical source job no
// longer exists. Surfaced as a failure, never as silently empty results.
var ErrSourceUnresolved = errors.New("source job no longer resolvable")

// ErrNotCompleted indicates results were requested before the job finished.
var ErrNotCompleted = errors.New("job has not completed")

// Service exposes the engine's boundary contract.
type Service struct {
	store storage.Storage
	cfg   *config.Config
	log   *zap.Logger
	now   func() time.Time
}

// NewService creates the scan service.
func NewService(store storage.Storage, cfg *config.Config, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{store: store, cfg: cfg, log: log, now: func() time.Time { return time.Now().UTC() }}
}

// WithClock overrides the service clock. Tests use this to cross UTC
// midnight deterministically.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// CreateJob validates the request, fingerprints it, and creates a job under
// the owner's quota. The returned job may be a cached mirror of another
// user's canonical run from the same UTC day.
func (s *Service) CreateJob(ctx context.Context, ownerUserID string, plan types.Plan, req types.ScanRequest) (*types.Job, error) {
	if ownerUserID == "" {
		return nil, fmt.Errorf("owner user id is required")
	}
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("invalid scan request: %w", err)
	}

	now := s.now()
	limits := quota.ForPlan(plan, s.cfg.Quota)
	job, err := s.store.CreateJob(ctx, storage.CreateJobParams{
		OwnerUserID: ownerUserID,
		Request:     req,
		CacheKey:    cache.BuildKey(req, now),
		QuotaPerDay: limits.ScansPerDay,
		Now:         now,
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("created scan job",
		zap.String("job_id", job.ID),
		zap.String("owner", ownerUserID),
		zap.Bool("cached", job.IsCachedResult),
		zap.String("status", string(job.Status)))
	return job, nil
}

// JobStatus is the polling view of a job. For cached jobs the status,
// progress, and error mirror the canonical source job live.
type JobStatus struct {
	JobID          string          `json:"job_id"`
	EffectiveJobID string          `json:"effective_job_id"`
	Status         types.JobStatus `json:"status"`
	Progress       int             `json:"progress"`
	Note           string          `json:"note,omitempty"`
	Error          string          `json:"error,omitempty"`
	IsCachedResult bool            `json:"is_cached_result"`
}

// GetJobStatus returns the live status of a job, resolving cached jobs
// through their canonical source.
func (s *Service) GetJobStatus(ctx context.Context, jobID string) (*JobStatus, error) {
	job, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}

	status := &JobStatus{
		JobID:          job.ID,
		EffectiveJobID: job.EffectiveJobID(),
		Status:         job.Status,
		Progress:       job.Progress,
		Note:           job.ProgressNote,
		Error:          job.Error,
		IsCachedResult: job.IsCachedResult,
	}
	if !job.IsCachedResult {
		return status, nil
	}

	source, err := s.store.GetJob(ctx, *job.SourceJobID)
	if errors.Is(err, storage.ErrJobNotFound) {
		status.Status = types.StatusFailed
		status.Error = fmt.Sprintf("source job %s no longer resolvable", *job.SourceJobID)
		return status, nil
	}
	if err != nil {
		return nil, err
	}
	status.Status = source.Status
	status.Progress = source.Progress
	status.Note = source.ProgressNote
	status.Error = source.Error
	return status, nil
}

// ResultFilter narrows GetResults output.
type ResultFilter struct {
	// Limit caps the number of insights. Zero or less means no cap.
	Limit int
	// Sector keeps only insights with the given sector when non-empty.
	Sector types.Sector
	// IncludeAudit also returns insights the diversity reranker excluded
	// from the published list (mmr_rank = 0).
	IncludeAudit bool
}

// GetResults returns a completed job's ranked insights, transparently
// resolving cached jobs to their canonical source.
func (s *Service) GetResults(ctx context.Context, jobID string, filter ResultFilter) ([]*types.Insight, error) {
	job, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}

	effective := job
	if job.IsCachedResult {
		effective, err = s.store.GetJob(ctx, *job.SourceJobID)
		if errors.Is(err, storage.ErrJobNotFound) {
			return nil, fmt.Errorf("job %s: %w", jobID, ErrSourceUnresolved)
		}
		if err != nil {
			return nil, err
		}
	}

	if effective.Status == types.StatusFailed {
		return nil, fmt.Errorf("job %s failed: %s", effective.ID, effective.Error)
	}
	if effective.Status != types.StatusCompleted {
		return nil, fmt.Errorf("job %s is %s: %w", effective.ID, effective.Status, ErrNotCompleted)
	}

	insights, err := s.store.GetInsights(ctx, effective.ID, 0)
	if err != nil {
		return nil, err
	}

	out := make([]*types.Insight, 0, len(insights))
	for _, in := range insights {
		if !filter.IncludeAudit && in.MMRRank == 0 {
			continue
		}
		if filter.Sector != "" && in.Sector != filter.Sector {
			continue
		}
		out = append(out, in)
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out, nil
}

// ListJobs returns the owner's recent jobs.
func (s *Service) ListJobs(ctx context.Context, ownerUserID string, limit int) ([]*types.Job, error) {
	return s.store.ListJobs(ctx, ownerUserID, limit)
}

// Usage reports the owner's consumption against their plan for today.
func (s *Service) Usage(ctx context.Context, ownerUserID string, plan types.Plan) (quota.Usage, error) {
	used, err := s.store.CountJobsToday(ctx, ownerUserID, s.now())
	if err != nil {
		return quota.Usage{}, err
	}
	return quota.NewUsage(plan, used, quota.ForPlan(plan, s.cfg.Quota)), nil
}

// QueueStatus returns the number of jobs per status.
func (s *Service) QueueStatus(ctx context.Context) (map[types.JobStatus]int, error) {
	return s.store.QueueCounts(ctx)
}

// VisibleInsightLimit caps how many insights a plan may read per run,
// folded into the caller's requested limit.
func (s *Service) VisibleInsightLimit(plan types.Plan, requested int) int {
	limits := quota.ForPlan(plan, s.cfg.Quota)
	if limits.InsightsPerRun == 0 {
		return requested
	}
	if requested <= 0 || requested > limits.InsightsPerRun {
		return limits.InsightsPerRun
	}
	return requested
}
