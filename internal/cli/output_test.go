package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutputFormatter_JSONSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "json",
		Writer: buf,
	}

	data := map[string]string{"job_id": "nightly-etl"}
	err := formatter.Success(data)
	require.NoError(t, err)

	var resp CLIResponse
	err = json.Unmarshal(buf.Bytes(), &resp)
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Status)
	assert.NotNil(t, resp.Data)
}

func TestOutputFormatter_TextSuccessText(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "text",
		Writer: buf,
	}

	err := formatter.SuccessText("Created job x", map[string]string{"job_id": "x"})
	require.NoError(t, err)
	assert.Equal(t, "Created job x\n", buf.String())
}

func TestOutputFormatter_JSONSuccessTextUsesData(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "json",
		Writer: buf,
	}

	err := formatter.SuccessText("Created job x", map[string]string{"job_id": "x"})
	require.NoError(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.NotContains(t, buf.String(), "Created job x")
}

func TestOutputFormatter_JSONError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "json",
		Writer: buf,
	}

	err := formatter.Error(ErrCodeNoJob, "job not found", nil)
	require.NoError(t, err)

	var resp CLIResponse
	err = json.Unmarshal(buf.Bytes(), &resp)
	require.NoError(t, err)
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeNoJob, resp.Error.Code)
	assert.Equal(t, "job not found", resp.Error.Message)
}

func TestOutputFormatter_TextError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "text",
		Writer: buf,
	}

	err := formatter.Error("E002", "definition unreadable", nil)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "Error [E002]: definition unreadable")
}

func TestOutputFormatter_VerboseLog(t *testing.T) {
	out := &bytes.Buffer{}
	errBuf := &bytes.Buffer{}

	quiet := &OutputFormatter{Format: "text", Writer: out, ErrWriter: errBuf}
	quiet.VerboseLog("hidden %d", 1)
	assert.Empty(t, out.String())
	assert.Empty(t, errBuf.String())

	verbose := &OutputFormatter{Format: "json", Writer: out, ErrWriter: errBuf, Verbose: true}
	verbose.VerboseLog("visible %d", 2)
	assert.Empty(t, out.String(), "verbose output must not corrupt JSON stream")
	assert.Equal(t, "visible 2\n", errBuf.String())
}

func TestExitError_CodesAndUnwrap(t *testing.T) {
	inner := errors.New("boom")
	wrapped := WrapExitError(ExitCommandError, "failed to open database", inner)

	assert.Equal(t, "failed to open database: boom", wrapped.Error())
	assert.ErrorIs(t, wrapped, inner)
	assert.Equal(t, ExitCommandError, GetExitCode(wrapped))
	assert.Equal(t, ExitFailure, GetExitCode(NewExitError(ExitFailure, "no resume point")))
	assert.Equal(t, ExitFailure, GetExitCode(errors.New("plain")))
}
