// Package database keeps a SQLite journal of playback queue submissions.
// Playback failures never reach the caller of PlayTrackIds, so this is
// where they can be inspected afterwards.
package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"musickit/musickit"
)

// Default location of the journal
const DefaultDBPath = "~/Library/Application Support/musickit/journal.db"

// Submission statuses
const (
	StatusPlaying = "playing"
	StatusFailed  = "failed"
)

// DatabaseManager handles all database operations
type DatabaseManager struct {
	DB     *sql.DB
	logger *zap.Logger
}

// QueueSubmission is one recorded PlayTrackIds call
type QueueSubmission struct {
	ID         string    `json:"id"`
	TrackIDs   []string  `json:"track_ids"`
	TrackCount int       `json:"track_count"`
	Status     string    `json:"status"`
	Error      string    `json:"error,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// TrackCount is how often a track id has been queued
type TrackCount struct {
	TrackID string `json:"track_id"`
	Count   int64  `json:"count"`
}

// DatabaseStats contains database statistics
type DatabaseStats struct {
	SubmissionCount int64 `json:"submission_count"`
	FailedCount     int64 `json:"failed_count"`
	QueuedTracks    int64 `json:"queued_tracks"`
	DatabaseSize    int64 `json:"database_size"`
}

// ExpandPath expands a leading "~/" to the user's home directory
func ExpandPath(path string) (string, error) {
	if !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, path[2:]), nil
}

// NewDatabaseManager creates a new database manager instance
func NewDatabaseManager(dbPath string, logger *zap.Logger) (*DatabaseManager, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	dbPath, err := ExpandPath(dbPath)
	if err != nil {
		return nil, err
	}

	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	// Open database connection
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Test connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// Initialize schema
	if err := InitSchema(db, logger); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &DatabaseManager{DB: db, logger: logger}, nil
}

// Close closes the database connection
func (dm *DatabaseManager) Close() error {
	return dm.DB.Close()
}

// RecordQueue journals a queue submission. A nil queueErr means playback
// started; a partial queue is recorded as playing with the missing ids in
// the error text.
func (dm *DatabaseManager) RecordQueue(ctx context.Context, ids []string, queueErr error) error {
	idsJSON, err := json.Marshal(ids)
	if err != nil {
		return fmt.Errorf("failed to marshal track ids: %w", err)
	}

	status := StatusPlaying
	var errText sql.NullString
	if queueErr != nil {
		var partial *musickit.PartialQueueError
		if !errors.As(queueErr, &partial) {
			status = StatusFailed
		}
		errText = sql.NullString{String: queueErr.Error(), Valid: true}
	}

	id := uuid.NewString()

	tx, err := dm.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO queue_submissions (id, track_ids, track_count, status, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		id, string(idsJSON), len(ids), status, errText, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to insert queue submission: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, "INSERT INTO queue_tracks (submission_id, position, track_id) VALUES (?, ?, ?)")
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for i, trackID := range ids {
		if _, err := stmt.ExecContext(ctx, id, i, trackID); err != nil {
			return fmt.Errorf("failed to insert queue track %s: %w", trackID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit queue submission: %w", err)
	}

	dm.logger.Debug("Recorded queue submission", zap.String("id", id), zap.String("status", status), zap.Int("tracks", len(ids)))
	return nil
}

// RecentQueues returns the newest submissions first
func (dm *DatabaseManager) RecentQueues(ctx context.Context, limit int) ([]QueueSubmission, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := dm.DB.QueryContext(ctx, `
		SELECT id, track_ids, track_count, status, COALESCE(error, ''), created_at
		FROM queue_submissions
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query queue submissions: %w", err)
	}
	defer rows.Close()

	var submissions []QueueSubmission
	for rows.Next() {
		var s QueueSubmission
		var idsJSON string
		if err := rows.Scan(&s.ID, &idsJSON, &s.TrackCount, &s.Status, &s.Error, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan queue submission: %w", err)
		}
		if err := json.Unmarshal([]byte(idsJSON), &s.TrackIDs); err != nil {
			return nil, fmt.Errorf("failed to parse track ids of %s: %w", s.ID, err)
		}
		submissions = append(submissions, s)
	}

	return submissions, rows.Err()
}

// TopTracks returns the most frequently queued track ids
func (dm *DatabaseManager) TopTracks(ctx context.Context, limit int) ([]TrackCount, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := dm.DB.QueryContext(ctx, `
		SELECT track_id, COUNT(*) AS n
		FROM queue_tracks
		GROUP BY track_id
		ORDER BY n DESC, track_id
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query queue tracks: %w", err)
	}
	defer rows.Close()

	var counts []TrackCount
	for rows.Next() {
		var c TrackCount
		if err := rows.Scan(&c.TrackID, &c.Count); err != nil {
			return nil, fmt.Errorf("failed to scan track count: %w", err)
		}
		counts = append(counts, c)
	}

	return counts, rows.Err()
}

// GetStats returns database statistics
func (dm *DatabaseManager) GetStats(ctx context.Context) (*DatabaseStats, error) {
	stats := &DatabaseStats{}

	queries := []struct {
		query  string
		target *int64
	}{
		{"SELECT COUNT(*) FROM queue_submissions", &stats.SubmissionCount},
		{"SELECT COUNT(*) FROM queue_submissions WHERE status = 'failed'", &stats.FailedCount},
		{"SELECT COUNT(*) FROM queue_tracks", &stats.QueuedTracks},
	}

	for _, q := range queries {
		if err := dm.DB.QueryRowContext(ctx, q.query).Scan(q.target); err != nil {
			return nil, fmt.Errorf("failed to get stats: %w", err)
		}
	}

	// Get database file size
	var pageCount, pageSize int64
	dm.DB.QueryRowContext(ctx, "PRAGMA page_count").Scan(&pageCount)
	dm.DB.QueryRowContext(ctx, "PRAGMA page_size").Scan(&pageSize)
	stats.DatabaseSize = pageCount * pageSize

	return stats, nil
}

// Prune deletes submissions older than the given age
func (dm *DatabaseManager) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-olderThan)

	tx, err := dm.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM queue_tracks WHERE submission_id IN (
			SELECT id FROM queue_submissions WHERE created_at < ?
		)`, cutoff); err != nil {
		return 0, fmt.Errorf("failed to prune queue tracks: %w", err)
	}

	result, err := tx.ExecContext(ctx, "DELETE FROM queue_submissions WHERE created_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune queue submissions: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit prune: %w", err)
	}
	return n, nil
}

// Vacuum optimizes the database
func (dm *DatabaseManager) Vacuum() error {
	_, err := dm.DB.Exec("VACUUM")
	return err
}
