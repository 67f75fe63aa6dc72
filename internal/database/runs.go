package database

import (
	"database/sql"
	"encoding/json"
	"fmt"
)

// InsertRunReport stores the outcome of a build run.
func (db *DB) InsertRunReport(r *RunReport) (int64, error) {
	var stepsJSON *string
	if r.Steps != nil {
		data, err := json.Marshal(r.Steps)
		if err != nil {
			return 0, fmt.Errorf("encoding steps: %w", err)
		}
		s := string(data)
		stepsJSON = &s
	}

	skipped := 0
	if r.Skipped {
		skipped = 1
	}

	result, err := db.conn.Exec(
		`INSERT INTO run_reports (started_at, finished_at, platform, skipped,
		routes_total, routes_rendered, routes_failed, steps, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.StartedAt, r.FinishedAt, r.Platform, skipped,
		r.RoutesTotal, r.RoutesRendered, r.RoutesFailed, stepsJSON, r.Error,
	)
	if err != nil {
		return 0, err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, err
	}
	r.ID = id
	return id, nil
}

// GetRecentRuns returns up to limit run reports, newest first.
func (db *DB) GetRecentRuns(limit int) ([]RunReport, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := db.conn.Query(
		`SELECT id, started_at, finished_at, platform, skipped,
		routes_total, routes_rendered, routes_failed, steps, error
		FROM run_reports ORDER BY started_at DESC, id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RunReport
	for rows.Next() {
		var r RunReport
		var platform, stepsJSON, errText *string
		var skipped int
		if err := rows.Scan(&r.ID, &r.StartedAt, &r.FinishedAt, &platform, &skipped,
			&r.RoutesTotal, &r.RoutesRendered, &r.RoutesFailed, &stepsJSON, &errText); err != nil {
			return nil, err
		}
		r.Skipped = skipped != 0
		if platform != nil {
			r.Platform = *platform
		}
		if errText != nil {
			r.Error = *errText
		}
		if stepsJSON != nil {
			if err := json.Unmarshal([]byte(*stepsJSON), &r.Steps); err != nil {
				r.Steps = nil
			}
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// GetLastRunDate returns the start time of the most recent run, or "" if
// there has been none.
func (db *DB) GetLastRunDate() (string, error) {
	var startedAt string
	err := db.conn.QueryRow(
		"SELECT started_at FROM run_reports ORDER BY started_at DESC, id DESC LIMIT 1",
	).Scan(&startedAt)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return startedAt, nil
}

// GetStats returns aggregate database statistics.
func (db *DB) GetStats() (*Stats, error) {
	s := &Stats{}

	queries := []struct {
		sql  string
		dest *int
	}{
		{"SELECT COUNT(*) FROM analyses", &s.Analyses},
		{"SELECT COUNT(DISTINCT url) FROM analyses", &s.Brands},
		{"SELECT COUNT(*) FROM run_reports", &s.Runs},
		{"SELECT COUNT(*) FROM run_reports WHERE error IS NOT NULL AND error != ''", &s.FailedRuns},
	}

	for _, q := range queries {
		if err := db.conn.QueryRow(q.sql).Scan(q.dest); err != nil {
			return nil, err
		}
	}

	last, err := db.GetLastRunDate()
	if err != nil {
		return nil, err
	}
	if last != "" {
		s.LastRunAt = &last
	}
	return s, nil
}
