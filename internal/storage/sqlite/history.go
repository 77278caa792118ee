package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nmery/needscan/internal/types"
)

// RecordHistory appends ledger entries. INSERT OR IGNORE makes re-recording
// after a worker retry a no-op rather than an error.
func (s *Store) RecordHistory(ctx context.Context, entries []types.HistoryEntry) error {
	if len(entries) == 0 {
		return nil
	}
	return s.withImmediateTx(ctx, func(conn *sql.Conn) error {
		for _, e := range entries {
			embedding, err := json.Marshal(e.Embedding)
			if err != nil {
				return fmt.Errorf("failed to marshal embedding for %s: %w", e.EntryID, err)
			}
			_, err = conn.ExecContext(ctx,
				`INSERT OR IGNORE INTO history_entries
					(entry_id, captured_at, sector, priority_raw, member_count, embedding)
				 VALUES (?, ?, ?, ?, ?, ?)`,
				e.EntryID, e.CapturedAt.UTC(), string(e.Sector), e.PriorityRaw,
				e.MemberCount, string(embedding))
			if err != nil {
				return fmt.Errorf("failed to insert history entry %s: %w", e.EntryID, err)
			}
		}
		return nil
	})
}

// HistoryWindow returns all entries captured at or after since. The read is
// a single statement, so WAL snapshot isolation guarantees a concurrent
// sweep never exposes a partially deleted window.
func (s *Store) HistoryWindow(ctx context.Context, since time.Time) ([]types.HistoryEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT entry_id, captured_at, sector, priority_raw, member_count, embedding
		 FROM history_entries WHERE captured_at >= ? ORDER BY captured_at ASC, entry_id ASC`,
		since.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to query history window: %w", err)
	}
	defer rows.Close()

	var entries []types.HistoryEntry
	for rows.Next() {
		var e types.HistoryEntry
		var sector, embedding string
		if err := rows.Scan(&e.EntryID, &e.CapturedAt, &sector, &e.PriorityRaw,
			&e.MemberCount, &embedding); err != nil {
			return nil, fmt.Errorf("failed to scan history entry: %w", err)
		}
		if err := json.Unmarshal([]byte(embedding), &e.Embedding); err != nil {
			return nil, fmt.Errorf("failed to unmarshal embedding for %s: %w", e.EntryID, err)
		}
		e.Sector = types.Sector(sector)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// SweepHistory deletes entries captured before cutoff.
func (s *Store) SweepHistory(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM history_entries WHERE captured_at < ?`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to sweep history: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count swept entries: %w", err)
	}
	return int(n), nil
}
