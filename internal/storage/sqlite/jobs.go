package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nmery/needscan/internal/storage"
	"github.com/nmery/needscan/internal/types"
)

const jobColumns = `id, owner_user_id, status, progress, progress_note, mode, run_mode,
	max_insights, input_pattern, cache_key, is_cached_result, source_job_id, worker_id,
	error, total_cost_usd, insight_count, cluster_count, created_at, started_at,
	completed_at, heartbeat_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanJob(row rowScanner) (*types.Job, error) {
	var job types.Job
	var cacheKey, sourceJobID, workerID sql.NullString
	var startedAt, completedAt, heartbeatAt sql.NullTime

	err := row.Scan(
		&job.ID, &job.OwnerUserID, &job.Status, &job.Progress, &job.ProgressNote,
		&job.Mode, &job.RunMode, &job.MaxInsights, &job.InputPattern,
		&cacheKey, &job.IsCachedResult, &sourceJobID, &workerID,
		&job.Error, &job.TotalCostUSD, &job.InsightCount, &job.ClusterCount,
		&job.CreatedAt, &startedAt, &completedAt, &heartbeatAt,
	)
	if err != nil {
		return nil, err
	}

	job.CacheKey = cacheKey.String
	if sourceJobID.Valid {
		job.SourceJobID = &sourceJobID.String
	}
	job.WorkerID = workerID.String
	if startedAt.Valid {
		t := startedAt.Time
		job.StartedAt = &t
	}
	if completedAt.Valid {
		t := completedAt.Time
		job.CompletedAt = &t
	}
	if heartbeatAt.Valid {
		t := heartbeatAt.Time
		job.HeartbeatAt = &t
	}
	return &job, nil
}

// utcDayBounds returns the [start, end) of the UTC day containing t.
func utcDayBounds(t time.Time) (time.Time, time.Time) {
	u := t.UTC()
	start := time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
	return start, start.Add(24 * time.Hour)
}

// CreateJob counts quota, looks up today's canonical job for the cache key,
// and creates either a cached mirror or a fresh queued canonical job, all in
// one IMMEDIATE transaction so two concurrent requests cannot both slip
// under the quota or both become canonical.
func (s *Store) CreateJob(ctx context.Context, params storage.CreateJobParams) (*types.Job, error) {
	if err := params.Request.Validate(); err != nil {
		return nil, fmt.Errorf("invalid scan request: %w", err)
	}
	now := params.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	var created *types.Job
	err := s.withImmediateTx(ctx, func(conn *sql.Conn) error {
		if params.QuotaPerDay > 0 {
			dayStart, dayEnd := utcDayBounds(now)
			var count int
			err := conn.QueryRowContext(ctx,
				`SELECT COUNT(*) FROM jobs WHERE owner_user_id = ? AND created_at >= ? AND created_at < ?`,
				params.OwnerUserID, dayStart, dayEnd,
			).Scan(&count)
			if err != nil {
				return fmt.Errorf("failed to count owner jobs: %w", err)
			}
			if count >= params.QuotaPerDay {
				return storage.ErrQuotaExceeded
			}
		}

		// Oldest canonical wins so every cached mirror points at the same job.
		canonical, err := scanJob(conn.QueryRowContext(ctx,
			`SELECT `+jobColumns+` FROM jobs
			 WHERE cache_key = ? AND is_cached_result = 0 AND status IN ('running', 'completed')
			 ORDER BY created_at ASC, id ASC LIMIT 1`,
			params.CacheKey,
		))
		if err != nil && err != sql.ErrNoRows {
			return fmt.Errorf("failed to look up canonical job: %w", err)
		}

		job := &types.Job{
			ID:           uuid.New().String(),
			OwnerUserID:  params.OwnerUserID,
			Mode:         params.Request.Mode,
			RunMode:      params.Request.RunMode,
			MaxInsights:  params.Request.MaxInsights,
			InputPattern: params.Request.InputPattern,
			CacheKey:     params.CacheKey,
			CreatedAt:    now,
		}

		if canonical != nil {
			// Mirror the canonical job without re-running its work.
			job.IsCachedResult = true
			job.SourceJobID = &canonical.ID
			job.Status = canonical.Status
			job.Progress = canonical.Progress
			job.StartedAt = canonical.StartedAt
			job.CompletedAt = canonical.CompletedAt
			if canonical.Status == types.StatusCompleted {
				job.InsightCount = canonical.InsightCount
				job.ClusterCount = canonical.ClusterCount
			}
		} else {
			job.Status = types.StatusQueued
		}

		_, err = conn.ExecContext(ctx,
			`INSERT INTO jobs (id, owner_user_id, status, progress, mode, run_mode,
				max_insights, input_pattern, cache_key, is_cached_result, source_job_id,
				insight_count, cluster_count, created_at, started_at, completed_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			job.ID, job.OwnerUserID, job.Status, job.Progress, job.Mode, job.RunMode,
			job.MaxInsights, job.InputPattern, job.CacheKey, job.IsCachedResult,
			job.SourceJobID, job.InsightCount, job.ClusterCount, job.CreatedAt,
			nullableTime(job.StartedAt), nullableTime(job.CompletedAt),
		)
		if err != nil {
			return fmt.Errorf("failed to insert job: %w", err)
		}
		created = job
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func nullableTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return *t
}

// GetJob returns the job with the given id.
func (s *Store) GetJob(ctx context.Context, id string) (*types.Job, error) {
	job, err := scanJob(s.db.QueryRowContext(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, storage.ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return job, nil
}

// ListJobs returns the owner's most recent jobs, newest first.
func (s *Store) ListJobs(ctx context.Context, ownerUserID string, limit int) ([]*types.Job, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE owner_user_id = ?
		 ORDER BY created_at DESC, id DESC LIMIT ?`,
		ownerUserID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*types.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// ClaimNext atomically claims the oldest queued canonical job. SQLite has no
// SELECT FOR UPDATE SKIP LOCKED, so the claim is a conditional update inside
// an IMMEDIATE transaction: select the candidate, then UPDATE guarded by
// status = 'queued' and verify exactly one row changed. A losing worker sees
// no claimable row and returns (nil, nil).
func (s *Store) ClaimNext(ctx context.Context, workerID string) (*types.Job, error) {
	var claimed *types.Job
	err := s.withImmediateTx(ctx, func(conn *sql.Conn) error {
		var id string
		err := conn.QueryRowContext(ctx,
			`SELECT id FROM jobs WHERE status = 'queued' AND is_cached_result = 0
			 ORDER BY created_at ASC, id ASC LIMIT 1`,
		).Scan(&id)
		if err == sql.ErrNoRows {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to select claimable job: %w", err)
		}

		now := time.Now().UTC()
		res, err := conn.ExecContext(ctx,
			`UPDATE jobs SET status = 'running', worker_id = ?, started_at = ?,
				heartbeat_at = ?, progress = 0, progress_note = ''
			 WHERE id = ? AND status = 'queued'`,
			workerID, now, now, id)
		if err != nil {
			return fmt.Errorf("failed to claim job %s: %w", id, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to check claim result: %w", err)
		}
		if n == 0 {
			// Another worker got there first. Not an error.
			return nil
		}

		claimed, err = scanJob(conn.QueryRowContext(ctx,
			`SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id))
		if err != nil {
			return fmt.Errorf("failed to read claimed job: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

// UpdateProgress advances progress on a running job. MAX() keeps it
// monotonic within the running lifetime; a recovery reset back to queued
// starts over from zero.
func (s *Store) UpdateProgress(ctx context.Context, jobID string, percent int, note string) error {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET progress = MAX(progress, ?), progress_note = ?, heartbeat_at = ?
		 WHERE id = ? AND status = 'running'`,
		percent, note, time.Now().UTC(), jobID)
	if err != nil {
		return fmt.Errorf("failed to update progress: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check progress update: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("job %s: %w", jobID, storage.ErrNotRunning)
	}
	return nil
}

// Heartbeat refreshes the liveness timestamp for a running job owned by
// workerID.
func (s *Store) Heartbeat(ctx context.Context, jobID, workerID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET heartbeat_at = ? WHERE id = ? AND worker_id = ? AND status = 'running'`,
		time.Now().UTC(), jobID, workerID)
	if err != nil {
		return fmt.Errorf("failed to heartbeat job: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check heartbeat: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("job %s: %w", jobID, storage.ErrNotRunning)
	}
	return nil
}

// CompleteJob transitions a running job to completed with progress 100 and
// the run's result metadata.
func (s *Store) CompleteJob(ctx context.Context, jobID string, result types.RunResult) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET status = 'completed', progress = 100, progress_note = '',
			completed_at = ?, insight_count = ?, cluster_count = ?, total_cost_usd = ?
		 WHERE id = ? AND status = 'running'`,
		time.Now().UTC(), result.InsightCount, result.ClusterCount, result.TotalCostUSD, jobID)
	if err != nil {
		return fmt.Errorf("failed to complete job: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check completion: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("job %s: %w", jobID, storage.ErrNotRunning)
	}
	return nil
}

const maxErrorLength = 2000

// FailJob transitions a running job to failed with a captured message.
func (s *Store) FailJob(ctx context.Context, jobID, message string) error {
	if len(message) > maxErrorLength {
		message = message[:maxErrorLength]
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET status = 'failed', error = ?, completed_at = ?
		 WHERE id = ? AND status = 'running'`,
		message, time.Now().UTC(), jobID)
	if err != nil {
		return fmt.Errorf("failed to fail job: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check failure update: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("job %s: %w", jobID, storage.ErrNotRunning)
	}
	return nil
}

// ResetStaleJobs is the operator recovery path for workers that died while
// running. Partial insight writes from the dead worker are discarded, never
// merged; the job goes back to queued for any worker to re-claim.
func (s *Store) ResetStaleJobs(ctx context.Context, cutoff time.Time) (int, error) {
	reset := 0
	err := s.withImmediateTx(ctx, func(conn *sql.Conn) error {
		rows, err := conn.QueryContext(ctx,
			`SELECT id FROM jobs WHERE status = 'running' AND is_cached_result = 0
			 AND (heartbeat_at IS NULL OR heartbeat_at < ?)`,
			cutoff.UTC())
		if err != nil {
			return fmt.Errorf("failed to find stale jobs: %w", err)
		}
		var ids []string
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return fmt.Errorf("failed to scan stale job id: %w", err)
			}
			ids = append(ids, id)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		for _, id := range ids {
			if _, err := conn.ExecContext(ctx,
				`DELETE FROM insights WHERE job_id = ?`, id); err != nil {
				return fmt.Errorf("failed to discard partial insights for %s: %w", id, err)
			}
			if _, err := conn.ExecContext(ctx,
				`DELETE FROM clusters WHERE job_id = ?`, id); err != nil {
				return fmt.Errorf("failed to discard partial clusters for %s: %w", id, err)
			}
			if _, err := conn.ExecContext(ctx,
				`UPDATE jobs SET status = 'queued', worker_id = NULL, started_at = NULL,
					heartbeat_at = NULL, progress = 0, progress_note = ''
				 WHERE id = ? AND status = 'running'`, id); err != nil {
				return fmt.Errorf("failed to reset job %s: %w", id, err)
			}
			reset++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return reset, nil
}

// CountJobsToday counts the owner's jobs created on the UTC day of now.
// Cached jobs count the same as canonical ones.
func (s *Store) CountJobsToday(ctx context.Context, ownerUserID string, now time.Time) (int, error) {
	dayStart, dayEnd := utcDayBounds(now)
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM jobs WHERE owner_user_id = ? AND created_at >= ? AND created_at < ?`,
		ownerUserID, dayStart, dayEnd).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count jobs: %w", err)
	}
	return count, nil
}

// QueueCounts returns the number of jobs in each status.
func (s *Store) QueueCounts(ctx context.Context) (map[types.JobStatus]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM jobs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count queue: %w", err)
	}
	defer rows.Close()

	counts := make(map[types.JobStatus]int)
	for rows.Next() {
		var status types.JobStatus
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("failed to scan queue count: %w", err)
		}
		counts[status] = n
	}
	return counts, rows.Err()
}
