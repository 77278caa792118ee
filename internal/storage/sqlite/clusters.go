package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/nmery/needscan/internal/types"
)

// SaveClusters persists a run's clusters. Re-saving after a recovery reset
// replaces any earlier partial write for the job.
func (s *Store) SaveClusters(ctx context.Context, jobID string, clusters []*types.Cluster) error {
	return s.withImmediateTx(ctx, func(conn *sql.Conn) error {
		if _, err := conn.ExecContext(ctx,
			`DELETE FROM clusters WHERE job_id = ?`, jobID); err != nil {
			return fmt.Errorf("failed to clear clusters: %w", err)
		}
		for _, c := range clusters {
			centroid, err := json.Marshal(c.Centroid)
			if err != nil {
				return fmt.Errorf("failed to marshal centroid for cluster %d: %w", c.ID, err)
			}
			examples, err := json.Marshal(c.Examples)
			if err != nil {
				return fmt.Errorf("failed to marshal examples for cluster %d: %w", c.ID, err)
			}
			_, err = conn.ExecContext(ctx,
				`INSERT INTO clusters (job_id, cluster_id, member_count, sector, centroid, examples)
				 VALUES (?, ?, ?, ?, ?, ?)`,
				jobID, c.ID, c.MemberCount, string(c.Sector), string(centroid), string(examples))
			if err != nil {
				return fmt.Errorf("failed to insert cluster %d: %w", c.ID, err)
			}
		}
		return nil
	})
}

// GetClusters returns a job's clusters ordered by cluster id.
func (s *Store) GetClusters(ctx context.Context, jobID string) ([]*types.Cluster, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT cluster_id, member_count, sector, centroid, examples
		 FROM clusters WHERE job_id = ? ORDER BY cluster_id ASC`, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to query clusters: %w", err)
	}
	defer rows.Close()

	var clusters []*types.Cluster
	for rows.Next() {
		var c types.Cluster
		var sector, centroid, examples string
		if err := rows.Scan(&c.ID, &c.MemberCount, &sector, &centroid, &examples); err != nil {
			return nil, fmt.Errorf("failed to scan cluster: %w", err)
		}
		if err := json.Unmarshal([]byte(centroid), &c.Centroid); err != nil {
			return nil, fmt.Errorf("failed to unmarshal centroid for cluster %d: %w", c.ID, err)
		}
		if err := json.Unmarshal([]byte(examples), &c.Examples); err != nil {
			return nil, fmt.Errorf("failed to unmarshal examples for cluster %d: %w", c.ID, err)
		}
		c.Sector = types.Sector(sector)
		clusters = append(clusters, &c)
	}
	return clusters, rows.Err()
}
