package harness

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/gpuflat/internal/rewrite"
)

func loadTestScenario(t *testing.T, name string) *Scenario {
	t.Helper()
	s, err := LoadScenario(filepath.Join("testdata", "scenarios", name+".yaml"))
	require.NoError(t, err)
	return s
}

func TestRun_Scenarios(t *testing.T) {
	paths, err := filepath.Glob(filepath.Join("testdata", "scenarios", "*.yaml"))
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	for _, path := range paths {
		name := strings.TrimSuffix(filepath.Base(path), ".yaml")
		t.Run(name, func(t *testing.T) {
			s, err := LoadScenario(path)
			require.NoError(t, err)

			result, err := Run(s)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v\nIR:\n%s", result.Errors, result.IR)
		})
	}
}

func TestRunWithGolden_Copy(t *testing.T) {
	result, err := RunWithGolden(t, loadTestScenario(t, "copy_lowered"))
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRun_RemarksCarryRunID(t *testing.T) {
	result, err := Run(loadTestScenario(t, "copy_lowered"))
	require.NoError(t, err)

	require.Len(t, result.Remarks, 1)
	r := result.Remarks[0]
	assert.Equal(t, "run-copy", r.RunID)
	assert.Equal(t, int64(1), r.Seq)
	assert.Equal(t, rewrite.RemarkPassed, r.Kind)
	assert.Equal(t, "copy", r.Func)
	assert.Equal(t, "1", r.Details["levels"])

	require.Len(t, result.Reports, 1)
	assert.Equal(t, 1, result.Reports[0].Applied)
}

func TestRun_DefaultRunID(t *testing.T) {
	s := loadTestScenario(t, "tiles_three_levels")
	require.Empty(t, s.RunID)

	result, err := Run(s)
	require.NoError(t, err)
	require.NotEmpty(t, result.Remarks)
	assert.Equal(t, "test-run-default", result.Remarks[0].RunID)
}

func TestRun_Deterministic(t *testing.T) {
	s := loadTestScenario(t, "mixed_partial")

	first, err := Run(s)
	require.NoError(t, err)
	second, err := Run(s)
	require.NoError(t, err)

	assert.Equal(t, first.IR, second.IR)
	assert.Equal(t, first.Remarks, second.Remarks)
}

func TestRun_FailedFullConversionKeepsIR(t *testing.T) {
	result, err := Run(loadTestScenario(t, "deep_full"))
	require.NoError(t, err)

	assert.Equal(t, OutcomeFailed, result.Outcome)
	assert.Contains(t, result.IR, "loop.parallel")
	assert.NotContains(t, result.IR, "gpu.launch")
}

func TestRun_ReportsMismatchedExpectations(t *testing.T) {
	s := loadTestScenario(t, "deep_full")
	s.Expect = ExpectClause{Outcome: OutcomeConverged, Code: "SOMETHING_ELSE"}
	s.Assertions = []Assertion{
		{Type: AssertLoopsRemaining, Count: 0},
		{Type: AssertRemarkCount, Kind: "passed", Count: 1},
	}

	result, err := Run(s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 4)
	assert.Equal(t, "expected outcome converged, got failed", result.Errors[0])
	assert.Equal(t, "expected code SOMETHING_ELSE, not reported", result.Errors[1])
	assert.Contains(t, result.Errors[2], "Assertion failed: loops_remaining")
	assert.Contains(t, result.Errors[3], "Expected: 1 passed remarks")
}

func TestRun_UnknownFunc(t *testing.T) {
	s := loadTestScenario(t, "copy_lowered")
	s.Func = "nope"

	_, err := Run(s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `kernel "nope" not found`)
}

func TestLoadScenario_Validation(t *testing.T) {
	kernels, err := filepath.Abs(filepath.Join("testdata", "kernels", "kernels.cue"))
	require.NoError(t, err)

	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "missing name",
			yaml:    "description: d\nkernels: [" + kernels + "]\nexpect: {outcome: converged}\n",
			wantErr: "name is required",
		},
		{
			name:    "missing kernels",
			yaml:    "name: n\ndescription: d\nexpect: {outcome: converged}\n",
			wantErr: "kernels list is required",
		},
		{
			name:    "missing kernel file",
			yaml:    "name: n\ndescription: d\nkernels: [/nonexistent.cue]\nexpect: {outcome: converged}\n",
			wantErr: "kernel file not found",
		},
		{
			name:    "bad outcome",
			yaml:    "name: n\ndescription: d\nkernels: [" + kernels + "]\nexpect: {outcome: done}\n",
			wantErr: `expect.outcome "done"`,
		},
		{
			name:    "bad mode",
			yaml:    "name: n\ndescription: d\nkernels: [" + kernels + "]\nmode: eager\nexpect: {outcome: converged}\n",
			wantErr: "eager",
		},
		{
			name:    "unknown field",
			yaml:    "name: n\ndescription: d\nkernels: [" + kernels + "]\nexpect: {outcome: converged}\nassertion: []\n",
			wantErr: "failed to parse YAML",
		},
		{
			name: "equivalent without func",
			yaml: "name: n\ndescription: d\nkernels: [" + kernels + "]\nexpect: {outcome: converged}\n" +
				"assertions: [{type: equivalent}]\n",
			wantErr: "equivalent requires func",
		},
		{
			name: "launch sizes without block",
			yaml: "name: n\ndescription: d\nkernels: [" + kernels + "]\nexpect: {outcome: converged}\n" +
				"assertions: [{type: launch_sizes, grid: [1, 1, 1]}]\n",
			wantErr: "grid and block need 3 sizes each",
		},
		{
			name: "unknown assertion",
			yaml: "name: n\ndescription: d\nkernels: [" + kernels + "]\nexpect: {outcome: converged}\n" +
				"assertions: [{type: trace_contains}]\n",
			wantErr: `unknown assertion type "trace_contains"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "scenario.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.yaml), 0o644))

			_, err := LoadScenario(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadScenario_ResolvesKernelPaths(t *testing.T) {
	s := loadTestScenario(t, "copy_lowered")
	require.Len(t, s.Kernels, 1)
	assert.Equal(t, filepath.Join("testdata", "kernels", "kernels.cue"), s.Kernels[0])
}
