package db

import (
	"fmt"
	"time"
)

// RecordSnapshotResult saves the outcome of one snapshot and returns its row ID.
// Emits a SnapshotRecordedEvent after successful insert.
func (db *DB) RecordSnapshotResult(r SnapshotResult) (int64, error) {
	if r.RecordedAt == "" {
		r.RecordedAt = time.Now().UTC().Format(time.RFC3339)
	}
	result, err := db.db.Exec(`
		INSERT INTO snapshot_results (run_id, url, timestamp, status, path, error, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, r.RunID, r.URL, r.Timestamp, r.Status, r.Path, r.Error, r.RecordedAt)
	if err != nil {
		return 0, fmt.Errorf("failed to record snapshot result: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID: %w", err)
	}
	r.ID = id

	db.emit(SnapshotRecordedEvent{Result: r})
	return id, nil
}

// ListSnapshotResults returns results newest first, optionally restricted to
// one run. limit <= 0 means all.
func (db *DB) ListSnapshotResults(runID string, limit int) ([]SnapshotResult, error) {
	query := `
		SELECT id, run_id, url, timestamp, status, path, error, recorded_at
		FROM snapshot_results
	`
	args := []any{}
	if runID != "" {
		query += " WHERE run_id = ?"
		args = append(args, runID)
	}
	query += " ORDER BY id DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := db.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshot results: %w", err)
	}
	defer rows.Close()

	var out []SnapshotResult
	for rows.Next() {
		var r SnapshotResult
		if err := rows.Scan(&r.ID, &r.RunID, &r.URL, &r.Timestamp, &r.Status, &r.Path, &r.Error, &r.RecordedAt); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot result: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// CountSnapshotResults returns the number of results per status for a run.
func (db *DB) CountSnapshotResults(runID string) (map[string]int, error) {
	rows, err := db.db.Query(`
		SELECT status, COUNT(*)
		FROM snapshot_results
		WHERE run_id = ?
		GROUP BY status
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to count snapshot results: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("failed to scan count: %w", err)
		}
		counts[status] = n
	}
	return counts, rows.Err()
}
