package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// StartRun inserts a new run in the "running" state and returns it.
// Emits a RunStartedEvent after successful insert.
func (db *DB) StartRun(url, directory string, raw bool) (Run, error) {
	if url == "" {
		return Run{}, errors.New("run url is required")
	}
	r := Run{
		ID:        uuid.NewString(),
		URL:       url,
		Directory: directory,
		Raw:       raw,
		StartedAt: time.Now().UTC().Format(time.RFC3339),
		Status:    RunStatusRunning,
	}
	_, err := db.db.Exec(
		"INSERT INTO runs (id, url, directory, raw, started_at, status) VALUES (?, ?, ?, ?, ?, ?)",
		r.ID, r.URL, r.Directory, r.Raw, r.StartedAt, r.Status,
	)
	if err != nil {
		return Run{}, fmt.Errorf("failed to start run: %w", err)
	}

	db.emit(RunStartedEvent{Run: r})
	return r, nil
}

// FinishRun stores the final status of a run.
// Emits a RunFinishedEvent carrying the per-status snapshot counts.
func (db *DB) FinishRun(id, status, runErr string) error {
	res, err := db.db.Exec(`
		UPDATE runs
		SET finished_at = ?, status = ?, error = ?
		WHERE id = ?
	`, time.Now().UTC().Format(time.RFC3339), status, runErr, id)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to determine rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("run not found: %s", id)
	}

	counts, err := db.CountSnapshotResults(id)
	if err != nil {
		return err
	}
	db.emit(RunFinishedEvent{RunID: id, Status: status, Counts: counts})
	return nil
}

func (db *DB) GetRun(id string) (Run, error) {
	var r Run
	err := db.db.QueryRow(`
		SELECT id, url, directory, raw, started_at,
			COALESCE(finished_at, ''), status, COALESCE(error, '')
		FROM runs
		WHERE id = ?
	`, id).Scan(&r.ID, &r.URL, &r.Directory, &r.Raw, &r.StartedAt, &r.FinishedAt, &r.Status, &r.Error)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Run{}, fmt.Errorf("run not found: %s", id)
		}
		return Run{}, fmt.Errorf("failed to get run: %w", err)
	}
	return r, nil
}

// ListRuns returns runs newest first. limit <= 0 means all.
func (db *DB) ListRuns(limit int) ([]Run, error) {
	query := `
		SELECT id, url, directory, raw, started_at,
			COALESCE(finished_at, ''), status, COALESCE(error, '')
		FROM runs
		ORDER BY started_at DESC, rowid DESC
	`
	var rows *sql.Rows
	var err error
	if limit > 0 {
		rows, err = db.db.Query(query+" LIMIT ?", limit)
	} else {
		rows, err = db.db.Query(query)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.URL, &r.Directory, &r.Raw, &r.StartedAt, &r.FinishedAt, &r.Status, &r.Error); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
