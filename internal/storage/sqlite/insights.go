package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/nmery/needscan/internal/types"
)

// SaveInsights replaces a job's insights with the given set in one
// transaction, so readers never observe a half-written result list.
func (s *Store) SaveInsights(ctx context.Context, jobID string, insights []*types.Insight) error {
	return s.withImmediateTx(ctx, func(conn *sql.Conn) error {
		if _, err := conn.ExecContext(ctx,
			`DELETE FROM insights WHERE job_id = ?`, jobID); err != nil {
			return fmt.Errorf("failed to clear insights: %w", err)
		}
		for _, in := range insights {
			createdAt := in.CreatedAt
			if createdAt.IsZero() {
				createdAt = time.Now().UTC()
			}
			_, err := conn.ExecContext(ctx,
				`INSERT INTO insights (id, job_id, cluster_id, rank, mmr_rank, title, summary,
					sector, cluster_size, pain, traction, novelty, trend, wtp, founder_fit,
					degraded, priority_raw, priority_adjusted, max_similarity,
					is_historical_duplicate, is_recurring_theme, created_at)
				 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				in.ID, jobID, in.ClusterID, in.Rank, in.MMRRank, in.Title, in.Summary,
				string(in.Sector), in.ClusterSize, in.Signals.Pain, in.Signals.Traction,
				in.Signals.Novelty, in.Signals.Trend, in.Signals.WTP, in.Signals.FounderFit,
				in.Signals.Degraded, in.PriorityRaw, in.PriorityAdjusted, in.MaxSimilarity,
				in.IsHistoricalDup, in.IsRecurringTheme, createdAt)
			if err != nil {
				return fmt.Errorf("failed to insert insight for cluster %d: %w", in.ClusterID, err)
			}
		}
		return nil
	})
}

// GetInsights returns a job's insights ordered by rank. A limit of zero or
// less returns all of them.
func (s *Store) GetInsights(ctx context.Context, jobID string, limit int) ([]*types.Insight, error) {
	query := `SELECT id, job_id, cluster_id, rank, mmr_rank, title, summary, sector,
		cluster_size, pain, traction, novelty, trend, wtp, founder_fit, degraded,
		priority_raw, priority_adjusted, max_similarity, is_historical_duplicate,
		is_recurring_theme, created_at
		FROM insights WHERE job_id = ? ORDER BY rank ASC`
	args := []interface{}{jobID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query insights: %w", err)
	}
	defer rows.Close()

	var insights []*types.Insight
	for rows.Next() {
		var in types.Insight
		var sector string
		var founderFit sql.NullFloat64
		err := rows.Scan(
			&in.ID, &in.JobID, &in.ClusterID, &in.Rank, &in.MMRRank, &in.Title,
			&in.Summary, &sector, &in.ClusterSize, &in.Signals.Pain,
			&in.Signals.Traction, &in.Signals.Novelty, &in.Signals.Trend,
			&in.Signals.WTP, &founderFit, &in.Signals.Degraded, &in.PriorityRaw,
			&in.PriorityAdjusted, &in.MaxSimilarity, &in.IsHistoricalDup,
			&in.IsRecurringTheme, &in.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan insight: %w", err)
		}
		in.Sector = types.Sector(sector)
		if founderFit.Valid {
			v := founderFit.Float64
			in.Signals.FounderFit = &v
		}
		insights = append(insights, &in)
	}
	return insights, rows.Err()
}

// DeleteInsights removes all insights for a job.
func (s *Store) DeleteInsights(ctx context.Context, jobID string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM insights WHERE job_id = ?`, jobID); err != nil {
		return fmt.Errorf("failed to delete insights: %w", err)
	}
	return nil
}
