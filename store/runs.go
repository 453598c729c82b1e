package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// InsertRun persists a new pipeline run at orchestration start.
func (s *Store) InsertRun(ctx context.Context, run *PipelineRun) error {
	if run.StartedAt == 0 {
		run.StartedAt = time.Now().UnixMilli()
	}
	if run.StagesJSON == "" {
		run.StagesJSON = "[]"
	}
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO pipeline_runs (id, mode, strategy, state, started_at, stages_json)
		VALUES (?, ?, ?, ?, ?, ?)`,
		run.ID, run.Mode, run.Strategy, run.State, run.StartedAt, run.StagesJSON)
	if err != nil {
		return fmt.Errorf("store: insert run %s: %w", run.ID, err)
	}
	return nil
}

// UpdateRun overwrites the mutable fields of an unfinished run: state,
// chosen strategy, and the appended stage results.
func (s *Store) UpdateRun(ctx context.Context, run *PipelineRun) error {
	_, err := s.DB.ExecContext(ctx,
		`UPDATE pipeline_runs SET strategy = ?, state = ?, stages_json = ? WHERE id = ?`,
		run.Strategy, run.State, run.StagesJSON, run.ID)
	return err
}

// FinishRun records the terminal state and finish time. The run is
// immutable afterwards by convention; nothing updates finished runs.
func (s *Store) FinishRun(ctx context.Context, run *PipelineRun) error {
	if run.FinishedAt == 0 {
		run.FinishedAt = time.Now().UnixMilli()
	}
	_, err := s.DB.ExecContext(ctx,
		`UPDATE pipeline_runs SET strategy = ?, state = ?, finished_at = ?, stages_json = ?
		WHERE id = ?`,
		run.Strategy, run.State, run.FinishedAt, run.StagesJSON, run.ID)
	return err
}

// GetRun retrieves a run by ID, or nil.
func (s *Store) GetRun(ctx context.Context, id string) (*PipelineRun, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT id, mode, strategy, state, started_at, finished_at, stages_json
		FROM pipeline_runs WHERE id = ?`, id)

	var run PipelineRun
	var finished sql.NullInt64
	err := row.Scan(&run.ID, &run.Mode, &run.Strategy, &run.State,
		&run.StartedAt, &finished, &run.StagesJSON)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("store: scan run: %w", err)
	}
	run.FinishedAt = finished.Int64
	return &run, nil
}

// ListRuns returns the most recent runs, newest first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]*PipelineRun, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.DB.QueryContext(ctx,
		`SELECT id, mode, strategy, state, started_at, finished_at, stages_json
		FROM pipeline_runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*PipelineRun
	for rows.Next() {
		var run PipelineRun
		var finished sql.NullInt64
		if err := rows.Scan(&run.ID, &run.Mode, &run.Strategy, &run.State,
			&run.StartedAt, &finished, &run.StagesJSON); err != nil {
			return nil, fmt.Errorf("store: scan run: %w", err)
		}
		run.FinishedAt = finished.Int64
		runs = append(runs, &run)
	}
	return runs, rows.Err()
}
