package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/gpuflat/internal/ir"
	"github.com/roach88/gpuflat/internal/rewrite"
)

// ErrRunNotFound is returned by ReadRun for an unknown run id.
var ErrRunNotFound = errors.New("run not found")

// ReadRun returns the run with the given id.
func (s *Store) ReadRun(ctx context.Context, id string) (Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, mode, source, pass_version, ir_version, before_fingerprint, after_fingerprint, applied, missed, illegal
		FROM runs
		WHERE id = ?
	`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return run, err
}

// ListRuns returns every run in insertion order.
//
// Returns an empty slice (not nil) if there are no runs.
func (s *Store) ListRuns(ctx context.Context) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, mode, source, pass_version, ir_version, before_fingerprint, after_fingerprint, applied, missed, illegal
		FROM runs
		ORDER BY rowid ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// ReadRemarks returns the remarks of a run ordered by seq.
//
// Returns an empty slice (not nil) if the run has no remarks.
func (s *Store) ReadRemarks(ctx context.Context, runID string) ([]rewrite.Remark, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, seq, func, pattern, kind, code, message, file, line, col, details
		FROM remarks
		WHERE run_id = ?
		ORDER BY seq ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query remarks: %w", err)
	}
	defer rows.Close()

	remarks := []rewrite.Remark{}
	for rows.Next() {
		r, err := scanRemark(rows)
		if err != nil {
			return nil, err
		}
		remarks = append(remarks, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate remarks: %w", err)
	}
	return remarks, nil
}

// CountRemarks returns the number of remarks of each kind in a run.
func (s *Store) CountRemarks(ctx context.Context, runID string) (map[rewrite.RemarkKind]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT kind, COUNT(*)
		FROM remarks
		WHERE run_id = ?
		GROUP BY kind
		ORDER BY kind ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("count remarks: %w", err)
	}
	defer rows.Close()

	counts := make(map[rewrite.RemarkKind]int)
	for rows.Next() {
		var kind string
		var n int
		if err := rows.Scan(&kind, &n); err != nil {
			return nil, fmt.Errorf("scan remark count: %w", err)
		}
		counts[rewrite.RemarkKind(kind)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate remark counts: %w", err)
	}
	return counts, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (Run, error) {
	var run Run
	err := row.Scan(
		&run.ID,
		&run.Mode,
		&run.Source,
		&run.PassVersion,
		&run.IRVersion,
		&run.BeforeFingerprint,
		&run.AfterFingerprint,
		&run.Applied,
		&run.Missed,
		&run.Illegal,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, err
	}
	if err != nil {
		return Run{}, fmt.Errorf("scan run: %w", err)
	}
	return run, nil
}

func scanRemark(row scanner) (rewrite.Remark, error) {
	var r rewrite.Remark
	var kind, details string
	var loc ir.Location
	err := row.Scan(
		&r.RunID,
		&r.Seq,
		&r.Func,
		&r.Pattern,
		&kind,
		&r.Code,
		&r.Message,
		&loc.File,
		&loc.Line,
		&loc.Col,
		&details,
	)
	if err != nil {
		return rewrite.Remark{}, fmt.Errorf("scan remark: %w", err)
	}
	r.Kind = rewrite.RemarkKind(kind)
	r.Loc = loc
	if r.Details, err = unmarshalDetails(details); err != nil {
		return rewrite.Remark{}, err
	}
	return r, nil
}
