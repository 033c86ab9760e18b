package storage

import (
	"context"
	"database/sql"
	"strings"
	"time"

	gerrors "github.com/odvcencio/gpsr/pkg/errors"
	"github.com/odvcencio/gpsr/pkg/mission"
)

const busyRetries = 3

// RecordRun stores a finished mission report and its invocations in one
// transaction. Recording the same run twice replaces the earlier copy.
func (s *Store) RecordRun(ctx context.Context, r *mission.Report) error {
	if s == nil || s.db == nil {
		return ErrStoreClosed
	}
	if r == nil || r.ID == "" {
		return gerrors.New(gerrors.ErrCodeInvalidInput, "report has no id")
	}

	var err error
	for i := 0; i < busyRetries; i++ {
		if err = s.recordRun(ctx, r); err == nil || !isBusyError(err) {
			break
		}
		select {
		case <-ctx.Done():
			return gerrors.Wrap(ctx.Err(), gerrors.ErrCodeStorageWrite, "record run")
		case <-time.After(time.Duration(i+1) * 50 * time.Millisecond):
		}
	}
	if err != nil {
		return gerrors.Wrap(err, gerrors.ErrCodeStorageWrite, "record run").WithContext("run", r.ID)
	}

	s.notify(newEvent(EventRunRecorded, r.ID, RunSummary{
		ID:          r.ID,
		Status:      r.Status,
		Utterance:   r.Utterance,
		Invocations: len(r.Invocations),
		StartedAt:   r.StartedAt,
		EndedAt:     r.EndedAt,
	}))
	return nil
}

func (s *Store) recordRun(ctx context.Context, r *mission.Report) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM invocations WHERE run_id = ?`, r.ID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM mission_runs WHERE id = ?`, r.ID); err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO mission_runs (id, started_at, ended_at, status, utterance, sequence, parse_error,
			rejected, enter_exhausted, approach_exhausted, exit_exhausted)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		r.ID, r.StartedAt.UTC(), r.EndedAt.UTC(), r.Status, r.Utterance, r.Sequence, r.ParseError,
		r.Rejected, r.EnterExhausted, r.ApproachExhausted, r.ExitExhausted,
	)
	if err != nil {
		return err
	}

	for _, inv := range r.Invocations {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO invocations (run_id, position, primitive, args, outcome, reason, started_at, ended_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`,
			r.ID, inv.Index, inv.Primitive, strings.Join(inv.Args, " "), string(inv.Outcome), inv.Reason,
			inv.StartedAt.UTC(), inv.EndedAt.UTC(),
		)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

// RunSummary is one row of the run history.
type RunSummary struct {
	ID          string    `json:"id"`
	Status      string    `json:"status"`
	Utterance   string    `json:"utterance,omitempty"`
	Invocations int       `json:"invocations"`
	StartedAt   time.Time `json:"startedAt"`
	EndedAt     time.Time `json:"endedAt"`
}

// ListRuns returns the most recent runs first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	if s == nil || s.db == nil {
		return nil, ErrStoreClosed
	}
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.id, r.status, r.utterance, r.started_at, r.ended_at,
			(SELECT COUNT(*) FROM invocations i WHERE i.run_id = r.id)
		FROM mission_runs r
		ORDER BY r.started_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, gerrors.Wrap(err, gerrors.ErrCodeStorageRead, "list runs")
	}
	defer rows.Close()

	var runs []RunSummary
	for rows.Next() {
		var run RunSummary
		if err := rows.Scan(&run.ID, &run.Status, &run.Utterance, &run.StartedAt, &run.EndedAt, &run.Invocations); err != nil {
			return nil, gerrors.Wrap(err, gerrors.ErrCodeStorageRead, "scan run")
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, gerrors.Wrap(err, gerrors.ErrCodeStorageRead, "list runs")
	}
	return runs, nil
}

// GetRun loads a full report. A missing run returns (nil, nil).
func (s *Store) GetRun(ctx context.Context, id string) (*mission.Report, error) {
	if s == nil || s.db == nil {
		return nil, ErrStoreClosed
	}

	r := &mission.Report{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, started_at, ended_at, status, utterance, sequence, parse_error,
			rejected, enter_exhausted, approach_exhausted, exit_exhausted
		FROM mission_runs
		WHERE id = ?
	`, id).Scan(
		&r.ID, &r.StartedAt, &r.EndedAt, &r.Status, &r.Utterance, &r.Sequence, &r.ParseError,
		&r.Rejected, &r.EnterExhausted, &r.ApproachExhausted, &r.ExitExhausted,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, gerrors.Wrap(err, gerrors.ErrCodeStorageRead, "get run").WithContext("run", id)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT position, primitive, args, outcome, reason, started_at, ended_at
		FROM invocations
		WHERE run_id = ?
		ORDER BY position
	`, id)
	if err != nil {
		return nil, gerrors.Wrap(err, gerrors.ErrCodeStorageRead, "get invocations").WithContext("run", id)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			inv     mission.InvocationResult
			args    string
			outcome string
		)
		if err := rows.Scan(&inv.Index, &inv.Primitive, &args, &outcome, &inv.Reason, &inv.StartedAt, &inv.EndedAt); err != nil {
			return nil, gerrors.Wrap(err, gerrors.ErrCodeStorageRead, "scan invocation")
		}
		inv.Args = strings.Fields(args)
		inv.Outcome = mission.Outcome(outcome)
		r.Invocations = append(r.Invocations, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, gerrors.Wrap(err, gerrors.ErrCodeStorageRead, "get invocations")
	}
	return r, nil
}
