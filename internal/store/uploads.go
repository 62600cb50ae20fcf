package store

import (
	"database/sql"
	"time"
)

// UploadRun is the audit record of one ingestion submission.
type UploadRun struct {
	ID         int64
	ClientID   string
	Module     string
	Mode       string
	FileCount  int
	TotalBytes int64
	StartedAt  time.Time
	FinishedAt sql.NullTime
	Outcome    string // "pending", "success", "rejected", "failed", "aborted"
	HTTPStatus sql.NullInt64
	Message    sql.NullString
}

// StartUploadRun records a submission before it is sent upstream.
func (s *Store) StartUploadRun(clientID, module, mode string, fileCount int, totalBytes int64) (*UploadRun, error) {
	run := &UploadRun{
		ClientID:   clientID,
		Module:     module,
		Mode:       mode,
		FileCount:  fileCount,
		TotalBytes: totalBytes,
		StartedAt:  time.Now().UTC(),
		Outcome:    "pending",
	}

	result, err := s.db.Exec(`
		INSERT INTO upload_runs (client_id, module, mode, file_count, total_bytes, started_at, outcome)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, run.ClientID, run.Module, run.Mode, run.FileCount, run.TotalBytes, run.StartedAt, run.Outcome)
	if err != nil {
		return nil, err
	}

	run.ID, err = result.LastInsertId()
	if err != nil {
		return nil, err
	}
	return run, nil
}

// CompleteUploadRun stores the outcome of a submission.
func (s *Store) CompleteUploadRun(run *UploadRun) error {
	if run == nil {
		return nil
	}

	run.FinishedAt = sql.NullTime{Time: time.Now().UTC(), Valid: true}

	_, err := s.db.Exec(`
		UPDATE upload_runs SET
			finished_at = ?,
			outcome = ?,
			http_status = ?,
			message = ?
		WHERE id = ?
	`, run.FinishedAt, run.Outcome, run.HTTPStatus, run.Message, run.ID)
	return err
}

// UploadHealthSummary aggregates submissions per day and module.
type UploadHealthSummary struct {
	Date       string
	Module     string
	TotalRuns  int
	Succeeded  int
	Failed     int
	TotalFiles int64
}

// GetUploadHealth returns per-day upload summaries for the last N days.
func (s *Store) GetUploadHealth(days int) ([]UploadHealthSummary, error) {
	rows, err := s.db.Query(`
		SELECT
			DATE(SUBSTR(started_at, 1, 19)) as date,
			module,
			COUNT(*) as total_runs,
			SUM(CASE WHEN outcome = 'success' THEN 1 ELSE 0 END) as succeeded,
			SUM(CASE WHEN outcome IN ('rejected', 'failed') THEN 1 ELSE 0 END) as failed,
			COALESCE(SUM(file_count), 0) as total_files
		FROM upload_runs
		WHERE SUBSTR(started_at, 1, 19) > datetime('now', '-' || ? || ' days')
		GROUP BY date, module
		ORDER BY date DESC, module
	`, days)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []UploadHealthSummary
	for rows.Next() {
		var h UploadHealthSummary
		if err := rows.Scan(&h.Date, &h.Module, &h.TotalRuns, &h.Succeeded, &h.Failed, &h.TotalFiles); err != nil {
			return nil, err
		}
		results = append(results, h)
	}
	return results, rows.Err()
}

// GetRecentUploadRuns returns a client's latest submissions, newest first.
func (s *Store) GetRecentUploadRuns(clientID string, limit int) ([]UploadRun, error) {
	rows, err := s.db.Query(`
		SELECT id, client_id, module, mode, file_count, total_bytes, started_at,
		       finished_at, outcome, http_status, message
		FROM upload_runs
		WHERE client_id = ?
		ORDER BY started_at DESC, id DESC
		LIMIT ?
	`, clientID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []UploadRun
	for rows.Next() {
		var r UploadRun
		if err := rows.Scan(&r.ID, &r.ClientID, &r.Module, &r.Mode, &r.FileCount, &r.TotalBytes,
			&r.StartedAt, &r.FinishedAt, &r.Outcome, &r.HTTPStatus, &r.Message); err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, rows.Err()
}
