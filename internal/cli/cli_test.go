package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/gpuflat/internal/testutil"
)

var (
	kernelsFile = filepath.Join("testdata", "kernels.cue")
	badFile     = filepath.Join("testdata", "bad.cue")
)

// execute runs the root command with args and returns stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(buf)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

// executeCapture runs the root command with args and returns stdout and
// stderr separately.
func executeCapture(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}

// decode unmarshals a JSON envelope, decoding Data into data.
func decode(t *testing.T, out string, data any) CLIResponse {
	t.Helper()
	var raw struct {
		CLIResponse
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &raw), out)
	if data != nil {
		require.NoError(t, json.Unmarshal(raw.Data, data), out)
	}
	return raw.CLIResponse
}

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "gpuflat", cmd.Use)

	for _, name := range []string{"lower", "validate", "run", "check", "remarks"} {
		t.Run(name, func(t *testing.T) {
			sub, _, err := cmd.Find([]string{name})
			require.NoError(t, err)
			assert.Equal(t, name, sub.Name())
		})
	}

	verbose := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verbose)
	assert.Equal(t, "v", verbose.Shorthand)
	format := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, format)
	assert.Equal(t, "text", format.DefValue)
}

func TestRootCommand_InvalidFormat(t *testing.T) {
	_, err := execute(t, "validate", kernelsFile, "--format", "yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `invalid format "yaml"`)
}

func TestLower_Text(t *testing.T) {
	out, err := execute(t, "lower", kernelsFile, "--func", "copy")
	require.NoError(t, err)
	assert.Contains(t, out, "✓ copy: 1 of 1 root(s) lowered, 0 illegal op(s) left")
	assert.Contains(t, out, "gpu.launch(")
	assert.NotContains(t, out, "loop.parallel")
}

func TestLower_FullFailureExitsOne(t *testing.T) {
	out, err := execute(t, "lower", kernelsFile, "--func", "deep")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	// Four loops and their four yields remain.
	assert.Contains(t, out, "✗ deep: 0 of 1 root(s) lowered, 8 illegal op(s) left")
	assert.Contains(t, out, "missed NESTING_TOO_DEEP")
	assert.Contains(t, out, "LEGALIZATION_FAILED")
}

func TestLower_JSONFailureIsTheOnlyOutput(t *testing.T) {
	out, errOut, err := executeCapture(t, "lower", kernelsFile, "--func", "deep", "--format", "json")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	resp := decode(t, out, nil)
	assert.Equal(t, "error", resp.Status)
	assert.Empty(t, errOut)

	reported := &bytes.Buffer{}
	ReportUnhandled(reported, err)
	assert.Empty(t, reported.String())
}

func TestLower_PartialKeepsWhatCannotLower(t *testing.T) {
	out, err := execute(t, "lower", kernelsFile, "--mode", "partial", "--format", "json")
	require.NoError(t, err)

	var result LowerResult
	resp := decode(t, out, &result)
	assert.Equal(t, "ok", resp.Status)
	require.Len(t, result.Reports, 3)
	assert.True(t, result.Reports[0].Converged())
	assert.True(t, result.Reports[1].Converged())
	assert.False(t, result.Reports[2].Converged())
	assert.Contains(t, result.IR, "loop.parallel")
	assert.Contains(t, result.IR, "gpu.launch")
}

func TestLower_JSONFailure(t *testing.T) {
	out, err := execute(t, "lower", kernelsFile, "--func", "deep", "--format", "json")
	require.Error(t, err)

	var result LowerResult
	resp := decode(t, out, &result)
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "LEGALIZATION_FAILED", resp.Error.Code)
	require.Len(t, result.Reports, 1)
	assert.Equal(t, 1, result.Reports[0].Missed)
}

func TestLower_WritesOutputFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "copy.ir")
	out, err := execute(t, "lower", kernelsFile, "--func", "copy", "-o", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Wrote lowered IR to "+path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "func @copy(")
	assert.Contains(t, string(data), "gpu.terminator()")
}

func TestLower_FixedRunID(t *testing.T) {
	buf := &bytes.Buffer{}
	cmd := &cobra.Command{}
	cmd.SetOut(buf)
	cmd.SetErr(io.Discard)

	opts := &LowerOptions{
		RootOptions: &RootOptions{Format: "json"},
		Func:        "scale",
		Mode:        "full",
		RunIDs:      testutil.NewFixedRunIDGenerator("cli-run"),
	}
	require.NoError(t, runLower(context.Background(), opts, kernelsFile, cmd))

	var result LowerResult
	decode(t, buf.String(), &result)
	assert.Equal(t, "cli-run", result.RunID)
	require.Len(t, result.Reports[0].Remarks, 1)
	assert.Equal(t, "4x1x1", result.Reports[0].Remarks[0].Details["grid"])
	assert.Equal(t, "1x8x1", result.Reports[0].Remarks[0].Details["block"])
}

func TestLower_CommandErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		code string
	}{
		{"missing path", []string{"lower", "nonexistent.cue"}, ErrCodeNotFound},
		{"unknown func", []string{"lower", kernelsFile, "--func", "nope"}, ErrCodeUnknownFunc},
		{"bad mode", []string{"lower", kernelsFile, "--mode", "eager"}, ErrCodeBadFlag},
		{"compile error", []string{"lower", badFile}, ErrCodeUndefined},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := execute(t, tt.args...)
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))
			assert.Contains(t, out, "Error ["+tt.code+"]")
		})
	}
}

func TestValidate(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		out, err := execute(t, "validate", kernelsFile)
		require.NoError(t, err)
		assert.Contains(t, out, "✓ 3 kernel(s) valid: copy, scale, deep")
	})

	t.Run("valid json", func(t *testing.T) {
		out, err := execute(t, "validate", kernelsFile, "--format", "json")
		require.NoError(t, err)

		var result ValidationResult
		resp := decode(t, out, &result)
		assert.Equal(t, "ok", resp.Status)
		assert.True(t, result.Valid)
		assert.Equal(t, []string{"copy", "scale", "deep"}, result.Kernels)
	})

	t.Run("compile error", func(t *testing.T) {
		out, err := execute(t, "validate", badFile)
		require.Error(t, err)
		assert.Equal(t, ExitFailure, GetExitCode(err))
		assert.Contains(t, out, "✗ Validation failed")
		assert.Contains(t, out, "line 6")
		assert.Contains(t, out, `E104`)
		assert.Contains(t, out, `undefined name "x"`)
	})

	t.Run("directory", func(t *testing.T) {
		dir := t.TempDir()
		data, err := os.ReadFile(kernelsFile)
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(filepath.Join(dir, "k.cue"), data, 0o644))

		out, err := execute(t, "validate", dir)
		require.NoError(t, err)
		assert.Contains(t, out, "3 kernel(s) valid")
	})

	t.Run("empty directory", func(t *testing.T) {
		out, err := execute(t, "validate", t.TempDir())
		require.Error(t, err)
		assert.Equal(t, ExitCommandError, GetExitCode(err))
		assert.Contains(t, out, ErrCodeNoFiles)
	})
}

func TestRun(t *testing.T) {
	args := []string{"run", kernelsFile, "--func", "copy",
		"--arg", "n=4", "--buffer", "in=[1,2,3,4]", "--buffer", "out=4"}

	t.Run("sequential", func(t *testing.T) {
		out, err := execute(t, args...)
		require.NoError(t, err)
		assert.Contains(t, out, "in[4] = [1, 2, 3, 4]")
		assert.Contains(t, out, "out[4] = [1, 2, 3, 4]")
	})

	t.Run("lowered", func(t *testing.T) {
		out, err := execute(t, append(args, "--lower", "--format", "json")...)
		require.NoError(t, err)

		var result RunResult
		decode(t, out, &result)
		assert.True(t, result.Lowered)
		assert.Equal(t, 1, result.Stats.Launches)
		require.Len(t, result.Buffers, 2)
		assert.Equal(t, "out", result.Buffers[1].Name)
		assert.Equal(t, []int64{1, 2, 3, 4}, result.Buffers[1].Data)
	})

	t.Run("out of bounds", func(t *testing.T) {
		out, err := execute(t, "run", kernelsFile, "--func", "copy",
			"--arg", "n=5", "--buffer", "in=4", "--buffer", "out=4")
		require.Error(t, err)
		assert.Equal(t, ExitFailure, GetExitCode(err))
		assert.Contains(t, out, "Error [OUT_OF_BOUNDS]")
	})

	t.Run("missing buffer", func(t *testing.T) {
		out, err := execute(t, "run", kernelsFile, "--func", "copy", "--arg", "n=4", "--buffer", "in=4")
		require.Error(t, err)
		assert.Equal(t, ExitCommandError, GetExitCode(err))
		assert.Contains(t, out, "missing buffer for parameter out")
	})

	t.Run("func required", func(t *testing.T) {
		out, err := execute(t, "run", kernelsFile)
		require.Error(t, err)
		assert.Contains(t, out, "--func is required")
	})

	t.Run("lowering failure", func(t *testing.T) {
		_, err := execute(t, "run", kernelsFile, "--func", "deep", "--lower", "--buffer", "out=2")
		require.Error(t, err)
		assert.Equal(t, ExitFailure, GetExitCode(err))
	})
}

func TestCheck(t *testing.T) {
	t.Run("passing", func(t *testing.T) {
		out, err := execute(t, "check", filepath.Join("testdata", "scenarios"))
		require.NoError(t, err)
		assert.Contains(t, out, "✓ copy")
		assert.Contains(t, out, "✓ deep")
		assert.Contains(t, out, "Check Summary: 2 passed, 0 failed, 2 total")
	})

	t.Run("filter", func(t *testing.T) {
		out, err := execute(t, "check", filepath.Join("testdata", "scenarios"), "--filter", "de*", "--format", "json")
		require.NoError(t, err)

		var result CheckResult
		decode(t, out, &result)
		assert.Equal(t, 1, result.Total)
		assert.Equal(t, "deep", result.Scenarios[0].Name)
		assert.Equal(t, "failed", string(result.Scenarios[0].Outcome))
	})

	t.Run("failing", func(t *testing.T) {
		out, err := execute(t, "check", filepath.Join("testdata", "failing"))
		require.Error(t, err)
		assert.Equal(t, ExitFailure, GetExitCode(err))
		assert.Contains(t, out, "✗ wrong")
		assert.Contains(t, out, "expected outcome converged, got failed")
	})

	t.Run("missing dir", func(t *testing.T) {
		_, err := execute(t, "check", "nonexistent")
		require.Error(t, err)
		assert.Equal(t, ExitCommandError, GetExitCode(err))
	})
}

func TestCheck_GoldenUpdateAndCompare(t *testing.T) {
	dir := t.TempDir()
	kernels, err := os.ReadFile(kernelsFile)
	require.NoError(t, err)
	scenario, err := os.ReadFile(filepath.Join("testdata", "scenarios", "copy.yaml"))
	require.NoError(t, err)

	scenarios := filepath.Join(dir, "scenarios")
	require.NoError(t, os.MkdirAll(scenarios, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "kernels.cue"), kernels, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(scenarios, "copy.yaml"), scenario, 0o644))

	out, err := execute(t, "check", scenarios, "--update")
	require.NoError(t, err)
	assert.Contains(t, out, "✓ copy (golden updated)")

	golden := filepath.Join(scenarios, "golden", "copy.golden")
	data, err := os.ReadFile(golden)
	require.NoError(t, err)
	assert.Contains(t, string(data), "gpu.launch(")

	_, err = execute(t, "check", scenarios)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(golden, []byte("stale\n"), 0o644))
	out, err = execute(t, "check", scenarios)
	require.Error(t, err)
	assert.Contains(t, out, "does not match golden file")
}

func TestRemarks(t *testing.T) {
	db := filepath.Join(t.TempDir(), "remarks.db")

	out, err := execute(t, "lower", kernelsFile, "--mode", "partial", "--remarks-db", db, "--format", "json")
	require.NoError(t, err)
	var lowered LowerResult
	decode(t, out, &lowered)
	require.NotEmpty(t, lowered.RunID)

	t.Run("list", func(t *testing.T) {
		out, err := execute(t, "remarks", db)
		require.NoError(t, err)
		assert.Contains(t, out, lowered.RunID)
		assert.Contains(t, out, "2 applied, 1 missed")
	})

	t.Run("run", func(t *testing.T) {
		out, err := execute(t, "remarks", db, "--run", lowered.RunID)
		require.NoError(t, err)
		assert.Contains(t, out, "Passed")
		assert.Contains(t, out, "Missed")
		assert.Contains(t, out, "NESTING_TOO_DEEP")
		assert.Contains(t, out, "Analysis: 1")
	})

	t.Run("run json filtered", func(t *testing.T) {
		out, err := execute(t, "remarks", db, "--run", lowered.RunID, "--kind", "passed", "--format", "json")
		require.NoError(t, err)

		var result RemarksResult
		decode(t, out, &result)
		assert.Equal(t, "partial", result.Run.Mode)
		require.Len(t, result.Remarks, 2)
		assert.Equal(t, 2, result.Counts["passed"])
		assert.Less(t, result.Remarks[0].Seq, result.Remarks[1].Seq)
	})

	t.Run("unknown run", func(t *testing.T) {
		_, err := execute(t, "remarks", db, "--run", "nope")
		require.Error(t, err)
		assert.Equal(t, ExitCommandError, GetExitCode(err))
	})

	t.Run("missing db", func(t *testing.T) {
		_, err := execute(t, "remarks", filepath.Join(t.TempDir(), "none.db"))
		require.Error(t, err)
		assert.Equal(t, ExitCommandError, GetExitCode(err))
	})
}
