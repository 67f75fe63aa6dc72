package database

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/TobiSchelling/visibi/internal/apiclient"
)

const analysisColumns = `id, url, brand_name, overall_sentiment, visibility, average_confidence,
	queries_analyzed, payload, analyzed_at, created_at`

// InsertAnalysis caches an analysis response. A zero timestamp is stored as
// the current time.
func (db *DB) InsertAnalysis(resp *apiclient.AnalysisResponse) (int64, error) {
	payload, err := json.Marshal(resp)
	if err != nil {
		return 0, fmt.Errorf("encoding analysis: %w", err)
	}
	analyzedAt := resp.Timestamp.Time
	if analyzedAt.IsZero() {
		analyzedAt = time.Now()
	}

	result, err := db.conn.Exec(
		`INSERT INTO analyses (url, brand_name, overall_sentiment, visibility, average_confidence,
		queries_analyzed, payload, analyzed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		resp.URL, resp.BrandName, resp.Summary.OverallSentiment, resp.Summary.Visibility,
		resp.Summary.AverageConfidence, resp.QueriesAnalyzed, string(payload),
		analyzedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

// GetAnalysis returns one cached analysis, or nil when the id is unknown.
func (db *DB) GetAnalysis(id int64) (*Analysis, error) {
	row := db.conn.QueryRow("SELECT "+analysisColumns+" FROM analyses WHERE id = ?", id)
	a, err := scanAnalysis(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

// ListAnalyses returns the newest analyses first. limit <= 0 returns all.
func (db *DB) ListAnalyses(limit int) ([]Analysis, error) {
	query := "SELECT " + analysisColumns + " FROM analyses ORDER BY analyzed_at DESC, id DESC"
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Analysis
	for rows.Next() {
		a, err := scanAnalysis(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

// GetAnalysesForURL returns the history of one brand URL, newest first.
func (db *DB) GetAnalysesForURL(url string) ([]Analysis, error) {
	rows, err := db.conn.Query(
		"SELECT "+analysisColumns+" FROM analyses WHERE url = ? ORDER BY analyzed_at DESC, id DESC", url,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Analysis
	for rows.Next() {
		a, err := scanAnalysis(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

// DeleteAnalyses clears the cache and returns how many rows were removed.
func (db *DB) DeleteAnalyses() (int64, error) {
	result, err := db.conn.Exec("DELETE FROM analyses")
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAnalysis(s scanner) (*Analysis, error) {
	var a Analysis
	var sentiment *string
	var payload string
	if err := s.Scan(&a.ID, &a.URL, &a.BrandName, &sentiment, &a.Visibility, &a.AverageConfidence,
		&a.QueriesAnalyzed, &payload, &a.AnalyzedAt, &a.CreatedAt); err != nil {
		return nil, err
	}
	if sentiment != nil {
		a.OverallSentiment = *sentiment
	}
	if err := json.Unmarshal([]byte(payload), &a.Response); err != nil {
		return nil, fmt.Errorf("decoding analysis %d: %w", a.ID, err)
	}
	return &a, nil
}
