package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutputFormatter_JSONSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: buf}

	require.NoError(t, formatter.Success(map[string]string{"result": "success"}))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.NotNil(t, resp.Data)
	assert.Nil(t, resp.Error)
}

func TestOutputFormatter_JSONError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: buf}

	require.NoError(t, formatter.Error("E005", "path not found", map[string]string{"path": "k.cue"}))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "E005", resp.Error.Code)
	assert.Equal(t, "path not found", resp.Error.Message)
	assert.NotNil(t, resp.Error.Details)
}

func TestOutputFormatter_JSONFailureKeepsPayload(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: buf}

	require.NoError(t, formatter.Failure("LEGALIZATION_FAILED", "1 illegal op", map[string]int{"illegal": 1}))

	var resp struct {
		Status string         `json:"status"`
		Data   map[string]int `json:"data"`
		Error  *CLIError      `json:"error"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, 1, resp.Data["illegal"])
	assert.Equal(t, "LEGALIZATION_FAILED", resp.Error.Code)
}

func TestOutputFormatter_Text(t *testing.T) {
	t.Run("error", func(t *testing.T) {
		buf := &bytes.Buffer{}
		formatter := &OutputFormatter{Format: "text", Writer: buf}
		require.NoError(t, formatter.Error("E001", "lowering failed", map[string]string{"k": "v"}))
		assert.Equal(t, "Error [E001]: lowering failed\n", buf.String())
	})

	t.Run("error verbose", func(t *testing.T) {
		buf := &bytes.Buffer{}
		formatter := &OutputFormatter{Format: "text", Writer: buf, Verbose: true}
		require.NoError(t, formatter.Error("E001", "lowering failed", map[string]string{"k": "v"}))
		assert.Contains(t, buf.String(), "Details:")
	})

	t.Run("failure", func(t *testing.T) {
		buf := &bytes.Buffer{}
		formatter := &OutputFormatter{Format: "text", Writer: buf}
		require.NoError(t, formatter.Failure("E104", "2 kernels failed", nil))
		assert.Equal(t, "✗ 2 kernels failed\n", buf.String())
	})
}

func TestOutputFormatter_VerboseLogGoesToErrWriter(t *testing.T) {
	tests := []struct {
		name    string
		verbose bool
		wantLog bool
	}{
		{"verbose_enabled", true, true},
		{"verbose_disabled", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
			formatter := &OutputFormatter{Format: "json", Writer: out, ErrWriter: errOut, Verbose: tt.verbose}

			formatter.VerboseLog("Compiled %d kernel(s)", 3)

			assert.Empty(t, out.String())
			if tt.wantLog {
				assert.Equal(t, "Compiled 3 kernel(s)\n", errOut.String())
			} else {
				assert.Empty(t, errOut.String())
			}
		})
	}
}

func TestOutputFormatter_LoggerLevel(t *testing.T) {
	errOut := &bytes.Buffer{}
	quiet := (&OutputFormatter{ErrWriter: errOut}).Logger()
	quiet.Info("root rewritten")
	quiet.Warn("slow")
	assert.NotContains(t, errOut.String(), "root rewritten")
	assert.Contains(t, errOut.String(), "slow")

	errOut.Reset()
	loud := (&OutputFormatter{ErrWriter: errOut, Verbose: true}).Logger()
	loud.Debug("converting function", "func", "copy")
	assert.Contains(t, errOut.String(), "func=copy")
}

func TestReportUnhandled(t *testing.T) {
	buf := &bytes.Buffer{}
	ReportUnhandled(buf, WrapExitError(ExitFailure, "lowering failed", errors.New("LEGALIZATION_FAILED")))
	assert.Empty(t, buf.String())

	ReportUnhandled(buf, fmt.Errorf("invalid format %q", "yaml"))
	assert.Equal(t, "Error: invalid format \"yaml\"\n", buf.String())
}

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitCommandError, GetExitCode(NewExitError(ExitCommandError, "bad path")))
	assert.Equal(t, ExitFailure, GetExitCode(errors.New("plain")))

	wrapped := fmt.Errorf("outer: %w", WrapExitError(ExitCommandError, "E005", errors.New("missing")))
	assert.Equal(t, ExitCommandError, GetExitCode(wrapped))
	assert.Equal(t, "outer: E005: missing", wrapped.Error())
}
