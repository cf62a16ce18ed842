package lowering

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/roach88/gpuflat/internal/ir"
	"github.com/roach88/gpuflat/internal/rewrite"
)

// PatternName identifies ParallelToLaunch in remarks.
const PatternName = "parallel-to-launch"

// ParallelToLaunch is the rewrite pattern wrapping AttemptLower.
type ParallelToLaunch struct{}

var _ rewrite.Pattern = ParallelToLaunch{}

// Name implements rewrite.Pattern.
func (ParallelToLaunch) Name() string { return PatternName }

// Matches implements rewrite.Pattern. Every loop.parallel is a candidate.
func (ParallelToLaunch) Matches(op *ir.Op) bool { return ir.IsParallel(op) }

// MatchAndRewrite implements rewrite.Pattern.
func (ParallelToLaunch) MatchAndRewrite(op *ir.Op) (*rewrite.Rewrite, error) {
	res, err := AttemptLower(op)
	if err != nil {
		return nil, err
	}
	ops := append(append([]*ir.Op(nil), res.Prologue...), res.Launch.Op)
	return &rewrite.Rewrite{Ops: ops, Details: Describe(res)}, nil
}

// Describe summarizes a committed lowering for remarks.
func Describe(res *Result) map[string]string {
	sizes, known := StaticLaunchSizes(res.Launch)
	return map[string]string{
		"grid":   formatDims(sizes, known, ir.GridSizeX, "x"),
		"block":  formatDims(sizes, known, ir.BlockSizeX, "x"),
		"levels": strconv.Itoa(res.Levels),
		"loops":  strconv.Itoa(res.Loops),
		"cloned": strconv.Itoa(res.Cloned),
	}
}

// NewTarget returns the conversion target of the lowering: no loop dialect
// op may remain, everything else is legal.
func NewTarget() *rewrite.Target {
	t := rewrite.NewTarget()
	t.AddIllegalDialect(ir.DialectLoop)
	return t
}

// NewDriver returns a driver running ParallelToLaunch against NewTarget.
func NewDriver(opts ...rewrite.Option) *rewrite.Driver {
	return rewrite.New(NewTarget(), []rewrite.Pattern{ParallelToLaunch{}}, opts...)
}

// FormatSizes prints launch sizes as grid(x, y, z) block(x, y, z), using ?
// for sizes that do not fold.
func FormatSizes(launch ir.LaunchOp) string {
	sizes, known := StaticLaunchSizes(launch)
	return fmt.Sprintf("grid(%s) block(%s)",
		formatDims(sizes, known, ir.GridSizeX, ", "),
		formatDims(sizes, known, ir.BlockSizeX, ", "))
}

func formatDims(sizes [ir.LaunchNumSizes]int64, known [ir.LaunchNumSizes]bool, from int, sep string) string {
	parts := make([]string, 3)
	for i := range parts {
		if known[from+i] {
			parts[i] = strconv.FormatInt(sizes[from+i], 10)
		} else {
			parts[i] = "?"
		}
	}
	return strings.Join(parts, sep)
}
