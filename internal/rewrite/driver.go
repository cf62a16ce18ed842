package rewrite

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/gpuflat/internal/ir"
)

// Mode selects how strictly the driver treats illegal ops left behind.
type Mode string

const (
	// ModePartial rewrites what it can and leaves the rest in place.
	ModePartial Mode = "partial"

	// ModeFull fails and leaves the function untouched when any illegal op
	// remains after all roots were attempted.
	ModeFull Mode = "full"
)

// ParseMode converts a flag value into a Mode.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModePartial, ModeFull:
		return Mode(s), nil
	}
	return "", fmt.Errorf("invalid mode %q (must be 'partial' or 'full')", s)
}

// Driver applies patterns to every candidate root of a function.
type Driver struct {
	patterns    []Pattern
	target      *Target
	mode        Mode
	logger      *slog.Logger
	sink        RemarkSink
	runIDs      RunIDGenerator
	clock       Sequencer
	concurrency int
}

// Option allows configuration of driver parameters.
type Option func(*Driver)

// WithMode sets the conversion mode. Default: ModeFull.
func WithMode(mode Mode) Option {
	return func(d *Driver) {
		d.mode = mode
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(d *Driver) {
		d.logger = logger
	}
}

// WithRemarkSink sends every remark to sink once a run completes.
func WithRemarkSink(sink RemarkSink) Option {
	return func(d *Driver) {
		d.sink = sink
	}
}

// WithRunIDGenerator sets the run id source. Default: UUIDv7Generator.
func WithRunIDGenerator(gen RunIDGenerator) Option {
	return func(d *Driver) {
		d.runIDs = gen
	}
}

// WithClock sets the clock stamping remark seq numbers. Default: NewClock().
func WithClock(clock Sequencer) Option {
	return func(d *Driver) {
		d.clock = clock
	}
}

// WithConcurrency limits the number of functions RunModule converts at
// once. Zero or less means no limit.
func WithConcurrency(n int) Option {
	return func(d *Driver) {
		d.concurrency = n
	}
}

// New creates a driver for target that tries patterns in order on each root.
func New(target *Target, patterns []Pattern, opts ...Option) *Driver {
	d := &Driver{
		patterns: append([]Pattern(nil), patterns...),
		target:   target,
		mode:     ModeFull,
		logger:   slog.Default(),
		runIDs:   UUIDv7Generator{},
		clock:    NewClock(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Mode returns the configured mode.
func (d *Driver) Mode() Mode { return d.mode }

// Report summarizes the conversion of one function.
type Report struct {
	RunID   string   `json:"run_id"`
	Func    string   `json:"func"`
	Mode    Mode     `json:"mode"`
	Roots   int      `json:"roots"`
	Applied int      `json:"applied"`
	Missed  int      `json:"missed"`
	Illegal int      `json:"illegal"`
	Remarks []Remark `json:"remarks"`
}

// Converged reports whether no illegal op remains.
func (r *Report) Converged() bool {
	return r.Illegal == 0
}

// Run converts fn. Remarks are stamped and recorded before Run returns.
//
// A *ConversionError is returned together with the report when a full
// conversion leaves illegal ops; fn is then unchanged.
func (d *Driver) Run(ctx context.Context, fn *ir.Func) (*Report, error) {
	runID := d.runIDs.Generate()
	rep, err := d.runFunc(ctx, fn, runID)
	if rep == nil {
		return nil, err
	}
	if ferr := d.finish(ctx, []*Report{rep}); ferr != nil {
		return rep, ferr
	}
	return rep, err
}

// RunModule converts every function of mod concurrently. Reports come back
// in function order and share one run id. Conversion errors of individual
// functions are joined; a cancelled context aborts the whole run.
func (d *Driver) RunModule(ctx context.Context, mod *ir.Module) ([]*Report, error) {
	runID := d.runIDs.Generate()
	reports := make([]*Report, len(mod.Funcs))
	convErrs := make([]error, len(mod.Funcs))

	g, gctx := errgroup.WithContext(ctx)
	if d.concurrency > 0 {
		g.SetLimit(d.concurrency)
	}
	for i, fn := range mod.Funcs {
		g.Go(func() error {
			rep, err := d.runFunc(gctx, fn, runID)
			if rep == nil {
				return err
			}
			reports[i] = rep
			convErrs[i] = err
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if err := d.finish(ctx, reports); err != nil {
		return reports, err
	}
	return reports, errors.Join(convErrs...)
}

// runFunc does the work of Run without stamping remarks. A nil report means
// the run was aborted.
func (d *Driver) runFunc(ctx context.Context, fn *ir.Func, runID string) (*Report, error) {
	work := fn
	if d.mode == ModeFull {
		work = ir.CloneFunc(fn)
	}
	target := d.target.clone()

	rep := &Report{RunID: runID, Func: fn.Name, Mode: d.mode}
	roots := d.collectRoots(work)
	rep.Roots = len(roots)

	d.logger.Debug("converting function",
		"func", fn.Name,
		"mode", d.mode,
		"roots", len(roots),
	)

	for _, root := range roots {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		d.attempt(root, target, rep)
	}

	illegal := target.Illegal(work)
	rep.Illegal = len(illegal)
	if len(illegal) == 0 {
		if work != fn {
			fn.Adopt(work)
		}
		return rep, nil
	}

	descr := make([]string, len(illegal))
	for i, op := range illegal {
		descr[i] = fmt.Sprintf("%s at %s", op.Name(), op.Loc())
	}
	rep.Remarks = append(rep.Remarks, Remark{
		RunID:   runID,
		Func:    fn.Name,
		Kind:    RemarkAnalysis,
		Code:    string(ErrCodeLegalizationFailed),
		Message: fmt.Sprintf("%d illegal ops remain", len(illegal)),
		Loc:     illegal[0].Loc(),
	})

	if d.mode == ModePartial {
		d.logger.Info("partial conversion left illegal ops",
			"func", fn.Name,
			"illegal", len(illegal),
		)
		return rep, nil
	}

	d.logger.Info("full conversion failed",
		"func", fn.Name,
		"illegal", len(illegal),
	)
	return rep, &ConversionError{
		Code:    ErrCodeLegalizationFailed,
		Func:    fn.Name,
		Message: fmt.Sprintf("%d illegal ops remain after conversion", len(illegal)),
		Illegal: descr,
	}
}

// collectRoots returns the outermost ops any pattern matches, in pre-order.
// Ops nested in a root are reached only through that root.
func (d *Driver) collectRoots(fn *ir.Func) []*ir.Op {
	var roots []*ir.Op
	fn.Walk(func(op *ir.Op) ir.WalkResult {
		for _, p := range d.patterns {
			if p.Matches(op) {
				roots = append(roots, op)
				return ir.WalkSkip
			}
		}
		return ir.WalkAdvance
	})
	return roots
}

// attempt offers root to each matching pattern until one succeeds.
func (d *Driver) attempt(root *ir.Op, target *Target, rep *Report) {
	loc := root.Loc()
	for _, p := range d.patterns {
		if !p.Matches(root) {
			continue
		}
		rw, err := p.MatchAndRewrite(root)
		if err != nil {
			code := ""
			var ce codedError
			if errors.As(err, &ce) {
				code = ce.ErrorCode()
			}
			d.logger.Debug("pattern did not apply",
				"func", rep.Func,
				"pattern", p.Name(),
				"code", code,
				"loc", loc.String(),
				"error", err,
			)
			rep.Remarks = append(rep.Remarks, Remark{
				RunID:   rep.RunID,
				Func:    rep.Func,
				Pattern: p.Name(),
				Kind:    RemarkMissed,
				Code:    code,
				Message: err.Error(),
				Loc:     loc,
			})
			continue
		}

		for _, op := range rw.Ops {
			target.MarkLegal(op)
		}
		rep.Applied++
		rep.Remarks = append(rep.Remarks, Remark{
			RunID:   rep.RunID,
			Func:    rep.Func,
			Pattern: p.Name(),
			Kind:    RemarkPassed,
			Message: "rewritten by " + p.Name(),
			Loc:     loc,
			Details: rw.Details,
		})
		d.logger.Info("root rewritten",
			"func", rep.Func,
			"pattern", p.Name(),
			"loc", loc.String(),
		)
		return
	}
	rep.Missed++
}

// finish stamps remarks in report order and hands them to the sink.
func (d *Driver) finish(ctx context.Context, reports []*Report) error {
	for _, rep := range reports {
		for i := range rep.Remarks {
			rep.Remarks[i].Seq = d.clock.Next()
		}
	}
	if d.sink == nil {
		return nil
	}
	for _, rep := range reports {
		for _, r := range rep.Remarks {
			if err := d.sink.Record(ctx, r); err != nil {
				return fmt.Errorf("record remark %d: %w", r.Seq, err)
			}
		}
	}
	return nil
}
