package store

import (
	"context"
	"fmt"

	"github.com/roach88/gpuflat/internal/rewrite"
)

// Run summarizes one driver run over a module.
type Run struct {
	ID                string `json:"id"`
	Mode              string `json:"mode"`
	Source            string `json:"source,omitempty"`
	PassVersion       string `json:"pass_version"`
	IRVersion         string `json:"ir_version"`
	BeforeFingerprint string `json:"before_fingerprint"`
	AfterFingerprint  string `json:"after_fingerprint"`
	Applied           int    `json:"applied"`
	Missed            int    `json:"missed"`
	Illegal           int    `json:"illegal"`
}

// WriteRun inserts or completes a run record.
// Uses ON CONFLICT(id) DO UPDATE so a row created by Record is filled in.
func (s *Store) WriteRun(ctx context.Context, run Run) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs
		(id, mode, source, pass_version, ir_version, before_fingerprint, after_fingerprint, applied, missed, illegal)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			mode = excluded.mode,
			source = excluded.source,
			pass_version = excluded.pass_version,
			ir_version = excluded.ir_version,
			before_fingerprint = excluded.before_fingerprint,
			after_fingerprint = excluded.after_fingerprint,
			applied = excluded.applied,
			missed = excluded.missed,
			illegal = excluded.illegal
	`,
		run.ID,
		run.Mode,
		run.Source,
		run.PassVersion,
		run.IRVersion,
		run.BeforeFingerprint,
		run.AfterFingerprint,
		run.Applied,
		run.Missed,
		run.Illegal,
	)
	if err != nil {
		return fmt.Errorf("write run: %w", err)
	}
	return nil
}

// Record stores a remark. It implements rewrite.RemarkSink.
//
// The run row is created on first use so remarks can be recorded before
// WriteRun. Duplicate (run_id, seq) pairs are silently ignored.
func (s *Store) Record(ctx context.Context, r rewrite.Remark) error {
	details, err := marshalDetails(r.Details)
	if err != nil {
		return fmt.Errorf("write remark: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("write remark: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO runs (id) VALUES (?)`, r.RunID); err != nil {
		return fmt.Errorf("write remark: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO remarks
		(run_id, seq, func, pattern, kind, code, message, file, line, col, details)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`,
		r.RunID,
		r.Seq,
		r.Func,
		r.Pattern,
		string(r.Kind),
		r.Code,
		r.Message,
		r.Loc.File,
		r.Loc.Line,
		r.Loc.Col,
		details,
	)
	if err != nil {
		return fmt.Errorf("write remark: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("write remark: %w", err)
	}
	return nil
}

var _ rewrite.RemarkSink = (*Store)(nil)
