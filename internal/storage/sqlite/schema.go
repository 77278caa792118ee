package sqlite

const schema = `
CREATE TABLE IF NOT EXISTS jobs (
    id TEXT PRIMARY KEY,
    owner_user_id TEXT NOT NULL,
    status TEXT NOT NULL DEFAULT 'queued' CHECK(status IN ('queued', 'running', 'completed', 'failed')),
    progress INTEGER NOT NULL DEFAULT 0 CHECK(progress >= 0 AND progress <= 100),
    progress_note TEXT NOT NULL DEFAULT '',
    mode TEXT NOT NULL,
    run_mode TEXT NOT NULL CHECK(run_mode IN ('light', 'deep')),
    max_insights INTEGER NOT NULL,
    input_pattern TEXT NOT NULL,
    cache_key TEXT,
    is_cached_result INTEGER NOT NULL DEFAULT 0,
    source_job_id TEXT REFERENCES jobs(id),
    worker_id TEXT,
    error TEXT NOT NULL DEFAULT '',
    total_cost_usd REAL NOT NULL DEFAULT 0,
    insight_count INTEGER NOT NULL DEFAULT 0,
    cluster_count INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMP NOT NULL,
    started_at TIMESTAMP,
    completed_at TIMESTAMP,
    heartbeat_at TIMESTAMP,
    CHECK(is_cached_result = 0 OR source_job_id IS NOT NULL)
);

CREATE INDEX IF NOT EXISTS idx_jobs_claim ON jobs(status, is_cached_result, created_at);
CREATE INDEX IF NOT EXISTS idx_jobs_cache_key ON jobs(cache_key, is_cached_result);
CREATE INDEX IF NOT EXISTS idx_jobs_owner ON jobs(owner_user_id, created_at);

CREATE TABLE IF NOT EXISTS clusters (
    job_id TEXT NOT NULL REFERENCES jobs(id),
    cluster_id INTEGER NOT NULL,
    member_count INTEGER NOT NULL,
    sector TEXT NOT NULL DEFAULT '',
    centroid TEXT NOT NULL,
    examples TEXT NOT NULL DEFAULT '[]',
    PRIMARY KEY (job_id, cluster_id)
);

CREATE TABLE IF NOT EXISTS insights (
    id TEXT PRIMARY KEY,
    job_id TEXT NOT NULL REFERENCES jobs(id),
    cluster_id INTEGER NOT NULL,
    rank INTEGER NOT NULL,
    mmr_rank INTEGER NOT NULL DEFAULT 0,
    title TEXT NOT NULL,
    summary TEXT NOT NULL DEFAULT '',
    sector TEXT NOT NULL DEFAULT 'other',
    cluster_size INTEGER NOT NULL DEFAULT 0,
    pain REAL NOT NULL DEFAULT 0,
    traction REAL NOT NULL DEFAULT 0,
    novelty REAL NOT NULL DEFAULT 0,
    trend REAL NOT NULL DEFAULT 0,
    wtp REAL NOT NULL DEFAULT 0,
    founder_fit REAL,
    degraded INTEGER NOT NULL DEFAULT 0,
    priority_raw REAL NOT NULL DEFAULT 0,
    priority_adjusted REAL NOT NULL DEFAULT 0,
    max_similarity REAL NOT NULL DEFAULT 0,
    is_historical_duplicate INTEGER NOT NULL DEFAULT 0,
    is_recurring_theme INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_insights_job ON insights(job_id, rank);

CREATE TABLE IF NOT EXISTS history_entries (
    entry_id TEXT PRIMARY KEY,
    captured_at TIMESTAMP NOT NULL,
    sector TEXT NOT NULL DEFAULT 'other',
    priority_raw REAL NOT NULL DEFAULT 0,
    member_count INTEGER NOT NULL DEFAULT 0,
    embedding TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_history_captured ON history_entries(captured_at);
`
