package store_test

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/gpuflat/internal/ir"
	"github.com/roach88/gpuflat/internal/lowering"
	"github.com/roach88/gpuflat/internal/rewrite"
	"github.com/roach88/gpuflat/internal/store"
	"github.com/roach88/gpuflat/internal/testutil"
)

// The store receives the remarks of a real driver run in seq order.
func TestStore_AsRemarkSink(t *testing.T) {
	s, err := store.Open(filepath.Join(t.TempDir(), "remarks.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	nb := testutil.NewNestBuilder("k")
	nb.At(1, 1).Chain(nb.Entry(), []testutil.Space{{Lower: 0, Upper: 8, Step: 1}}, nil)
	nb.At(2, 1).Chain(nb.Entry(), []testutil.Space{
		{Lower: 0, Upper: 2, Step: 1},
		{Lower: 0, Upper: 2, Step: 1},
		{Lower: 0, Upper: 2, Step: 1},
		{Lower: 0, Upper: 2, Step: 1},
	}, nil)
	f := nb.Finish()

	d := lowering.NewDriver(
		rewrite.WithMode(rewrite.ModePartial),
		rewrite.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		rewrite.WithRunIDGenerator(testutil.NewFixedRunIDGenerator("run-7")),
		rewrite.WithClock(testutil.NewDeterministicClock()),
		rewrite.WithRemarkSink(s),
	)
	rep, err := d.Run(context.Background(), f)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, s.WriteRun(ctx, store.Run{
		ID:               rep.RunID,
		Mode:             string(rep.Mode),
		AfterFingerprint: ir.MustFingerprint(f),
		Applied:          rep.Applied,
		Missed:           rep.Missed,
		Illegal:          rep.Illegal,
	}))

	remarks, err := s.ReadRemarks(ctx, "run-7")
	require.NoError(t, err)
	require.Len(t, remarks, 3)
	assert.Equal(t, rep.Remarks, remarks)

	run, err := s.ReadRun(ctx, "run-7")
	require.NoError(t, err)
	assert.Equal(t, 1, run.Applied)
	assert.Equal(t, 1, run.Missed)
	assert.Equal(t, "partial", run.Mode)
}
