package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

const jobColumns = "seq, pipeline, id, step, attempts, state_json, last_error, created_at, updated_at"

// SaveJob inserts or replaces the journal row for rec.Pipeline/rec.ID. An
// existing row keeps its sequence number and creation time, so arrival order
// survives repeated saves.
func (s *Store) SaveJob(ctx context.Context, rec JobRecord) error {
	if strings.TrimSpace(rec.Pipeline) == "" || strings.TrimSpace(rec.ID) == "" {
		return errors.New("save job: pipeline and id are required")
	}
	now := timestamp(time.Now())
	state := string(rec.State)
	if state == "" {
		state = "{}"
	}
	_, err := s.exec(ctx,
		`INSERT INTO jobs (pipeline, id, step, attempts, state_json, last_error, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(pipeline, id) DO UPDATE SET
		   step = excluded.step,
		   attempts = excluded.attempts,
		   state_json = excluded.state_json,
		   last_error = excluded.last_error,
		   updated_at = excluded.updated_at`,
		rec.Pipeline, rec.ID, rec.Step, rec.Attempts, state, nullable(rec.LastError), now, now,
	)
	if err != nil {
		return fmt.Errorf("save job %s/%s: %w", rec.Pipeline, rec.ID, err)
	}
	return nil
}

// DeleteJob removes a journal row. Deleting a missing row is not an error.
func (s *Store) DeleteJob(ctx context.Context, pipeline, id string) error {
	if _, err := s.exec(ctx, `DELETE FROM jobs WHERE pipeline = ? AND id = ?`, pipeline, id); err != nil {
		return fmt.Errorf("delete job %s/%s: %w", pipeline, id, err)
	}
	return nil
}

// GetJob returns the journal row for pipeline/id, or nil when absent.
func (s *Store) GetJob(ctx context.Context, pipeline, id string) (*JobRecord, error) {
	ctx = queryContext(ctx)
	row := s.db.QueryRowContext(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE pipeline = ? AND id = ?`, pipeline, id)
	rec, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job %s/%s: %w", pipeline, id, err)
	}
	return rec, nil
}

// ListJobs returns the pipeline's journal in arrival order.
func (s *Store) ListJobs(ctx context.Context, pipeline string) ([]JobRecord, error) {
	ctx = queryContext(ctx)
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE pipeline = ? ORDER BY seq`, pipeline)
	if err != nil {
		return nil, fmt.Errorf("list jobs %s: %w", pipeline, err)
	}
	defer rows.Close()

	var out []JobRecord
	for rows.Next() {
		rec, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

func scanJob(scanner interface{ Scan(dest ...any) error }) (*JobRecord, error) {
	var (
		rec        JobRecord
		state      string
		lastErr    sql.NullString
		createdRaw string
		updatedRaw string
	)
	if err := scanner.Scan(
		&rec.Seq,
		&rec.Pipeline,
		&rec.ID,
		&rec.Step,
		&rec.Attempts,
		&state,
		&lastErr,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}
	rec.State = []byte(state)
	rec.LastError = lastErr.String
	if created, ok := parseTimestamp(createdRaw); ok {
		rec.CreatedAt = created
	}
	if updated, ok := parseTimestamp(updatedRaw); ok {
		rec.UpdatedAt = updated
	}
	return &rec, nil
}

// ClearJobs drops every journal row for pipeline, or for all pipelines when
// pipeline is empty. It returns the number of rows removed.
func (s *Store) ClearJobs(ctx context.Context, pipeline string) (int64, error) {
	query := `DELETE FROM jobs`
	var args []any
	if pipeline != "" {
		query += ` WHERE pipeline = ?`
		args = append(args, pipeline)
	}
	res, err := s.exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("clear jobs: %w", err)
	}
	return res.RowsAffected()
}
