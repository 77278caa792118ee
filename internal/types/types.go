package types

import (
	"fmt"
	"time"
)

// JobStatus represents the current state of a scan job.
type JobStatus string

const (
	StatusQueued    JobStatus = "queued"
	StatusRunning   JobStatus = "running"
	StatusCompleted JobStatus = "completed"
	StatusFailed    JobStatus = "failed"
)

// IsValid checks if the status value is valid
func (s JobStatus) IsValid() bool {
	switch s {
	case StatusQueued, StatusRunning, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// IsTerminal reports whether the status is a terminal state.
func (s JobStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// RunMode selects how much generation budget a scan spends.
type RunMode string

const (
	RunModeLight RunMode = "light"
	RunModeDeep  RunMode = "deep"
)

// IsValid checks if the run mode value is valid
func (m RunMode) IsValid() bool {
	return m == RunModeLight || m == RunModeDeep
}

// Plan is the billing plan attached to a request. The engine only consumes
// the plan to pick quota limits; identity and payments live elsewhere.
type Plan string

const (
	PlanFree    Plan = "free"
	PlanPremium Plan = "premium"
)

// IsValid checks if the plan value is valid
func (p Plan) IsValid() bool {
	return p == PlanFree || p == PlanPremium
}

// ScanRequest is the user-facing configuration for one scan. Together with
// the UTC date it determines the job's cache key; the owner does not.
type ScanRequest struct {
	Mode         string  `json:"mode"`
	RunMode      RunMode `json:"run_mode"`
	MaxInsights  int     `json:"max_insights"`
	InputPattern string  `json:"input_pattern"`
}

// Validate checks if the request has valid field values
func (r *ScanRequest) Validate() error {
	if r.Mode == "" {
		return fmt.Errorf("mode is required")
	}
	if !r.RunMode.IsValid() {
		return fmt.Errorf("invalid run mode: %s", r.RunMode)
	}
	if r.MaxInsights < 1 {
		return fmt.Errorf("max_insights must be at least 1 (got %d)", r.MaxInsights)
	}
	if r.InputPattern == "" {
		return fmt.Errorf("input_pattern is required")
	}
	return nil
}

// Job is one scan request persisted in the store. A canonical job is the one
// a worker actually executes; a cached job mirrors a canonical job's status
// and results through SourceJobID without re-running work.
type Job struct {
	ID             string     `json:"id"`
	OwnerUserID    string     `json:"owner_user_id"`
	Status         JobStatus  `json:"status"`
	Progress       int        `json:"progress"`
	ProgressNote   string     `json:"progress_note,omitempty"`
	Mode           string     `json:"mode"`
	RunMode        RunMode    `json:"run_mode"`
	MaxInsights    int        `json:"max_insights"`
	InputPattern   string     `json:"input_pattern"`
	CacheKey       string     `json:"cache_key,omitempty"`
	IsCachedResult bool       `json:"is_cached_result"`
	SourceJobID    *string    `json:"source_job_id,omitempty"`
	WorkerID       string     `json:"worker_id,omitempty"`
	Error          string     `json:"error,omitempty"`
	TotalCostUSD   float64    `json:"total_cost_usd"`
	InsightCount   int        `json:"insight_count"`
	ClusterCount   int        `json:"cluster_count"`
	CreatedAt      time.Time  `json:"created_at"`
	StartedAt      *time.Time `json:"started_at,omitempty"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
	HeartbeatAt    *time.Time `json:"heartbeat_at,omitempty"`
}

// EffectiveJobID returns the job whose insights answer queries for this job.
func (j *Job) EffectiveJobID() string {
	if j.IsCachedResult && j.SourceJobID != nil {
		return *j.SourceJobID
	}
	return j.ID
}

// RawItem is one normalized post produced by the upstream fetch/clean layers.
// The engine trusts it as-is.
type RawItem struct {
	ID        string    `json:"id"`
	Source    string    `json:"source"`
	Title     string    `json:"title"`
	Body      string    `json:"body,omitempty"`
	Score     int       `json:"score"`
	Comments  int       `json:"comments"`
	CreatedAt time.Time `json:"created_at"`
}

// Cluster is a group of raw items sharing a semantic centroid. Clusters are
// immutable after creation within a run.
type Cluster struct {
	ID          int       `json:"id"`
	Centroid    []float64 `json:"centroid"`
	MemberCount int       `json:"member_count"`
	Examples    []RawItem `json:"examples"`
	Sector      Sector    `json:"sector,omitempty"`
}

// Validate checks if the cluster has valid field values
func (c *Cluster) Validate() error {
	if c.ID < 0 {
		return fmt.Errorf("cluster id cannot be negative (got %d)", c.ID)
	}
	if c.MemberCount < len(c.Examples) {
		return fmt.Errorf("member_count %d is less than example count %d", c.MemberCount, len(c.Examples))
	}
	if len(c.Centroid) == 0 {
		return fmt.Errorf("cluster %d has no centroid embedding", c.ID)
	}
	return nil
}

// SignalSet holds the per-cluster scores, each on a 0-10 scale. FounderFit is
// nil when the fit scorer was not run for this cluster. Degraded marks a
// cluster whose generation-backed scores fell back to neutral defaults.
type SignalSet struct {
	Pain       float64  `json:"pain"`
	Traction   float64  `json:"traction"`
	Novelty    float64  `json:"novelty"`
	Trend      float64  `json:"trend"`
	WTP        float64  `json:"wtp"`
	FounderFit *float64 `json:"founder_fit,omitempty"`
	Degraded   bool     `json:"degraded,omitempty"`
}

// NeutralSignal is the documented fallback for generation-backed or
// history-backed signals when their inputs are unavailable.
const NeutralSignal = 5.0

// ClampScore bounds a signal to the 0-10 scale, which also catches
// out-of-range values returned by the generation capability.
func ClampScore(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 10 {
		return 10
	}
	return v
}

// HistoryEntry is one append-only record of a cluster surfaced by a past run.
type HistoryEntry struct {
	EntryID     string    `json:"entry_id"`
	CapturedAt  time.Time `json:"captured_at"`
	Embedding   []float64 `json:"embedding"`
	Sector      Sector    `json:"sector"`
	PriorityRaw float64   `json:"priority_raw"`
	MemberCount int       `json:"member_count"`
}

// Insight is one ranked cluster in a run's final output. Rank orders by
// adjusted priority; MMRRank is the position after diversity reranking and
// is 0 for items retained for audit but excluded from the published list.
type Insight struct {
	ID               string    `json:"id"`
	JobID            string    `json:"job_id"`
	ClusterID        int       `json:"cluster_id"`
	Rank             int       `json:"rank"`
	MMRRank          int       `json:"mmr_rank,omitempty"`
	Title            string    `json:"title"`
	Summary          string    `json:"summary,omitempty"`
	Sector           Sector    `json:"sector"`
	ClusterSize      int       `json:"cluster_size"`
	Signals          SignalSet `json:"signals"`
	PriorityRaw      float64   `json:"priority_raw"`
	PriorityAdjusted float64   `json:"priority_adjusted"`
	MaxSimilarity    float64   `json:"max_similarity_with_history"`
	IsHistoricalDup  bool      `json:"is_historical_duplicate"`
	IsRecurringTheme bool      `json:"is_recurring_theme"`
	CreatedAt        time.Time `json:"created_at"`
}

// RunResult is what a worker reports when a scan completes.
type RunResult struct {
	InsightCount int     `json:"insight_count"`
	ClusterCount int     `json:"cluster_count"`
	TotalCostUSD float64 `json:"total_cost_usd"`
}
