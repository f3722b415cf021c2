package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParse_WorkflowsFromFlag(t *testing.T) {
	var out bytes.Buffer
	cfg, exit, err := Parse([]string{"-workflows", "wf/"}, &out)
	require.NoError(t, err)
	require.False(t, exit)
	require.Equal(t, "wf/", cfg.WorkflowsPath)
	require.Equal(t, "json", cfg.LogFormat)
	require.Equal(t, 4, cfg.WorkerCount)
}

func TestParse_WorkflowsFromPositionalArg(t *testing.T) {
	var out bytes.Buffer
	cfg, exit, err := Parse([]string{"coverage.hcl"}, &out)
	require.NoError(t, err)
	require.False(t, exit)
	require.Equal(t, "coverage.hcl", cfg.WorkflowsPath)
}

func TestParse_ShorthandFlag(t *testing.T) {
	var out bytes.Buffer
	cfg, _, err := Parse([]string{"-w", "wf/"}, &out)
	require.NoError(t, err)
	require.Equal(t, "wf/", cfg.WorkflowsPath)
}

func TestParse_NoPathPrintsUsage(t *testing.T) {
	var out bytes.Buffer
	cfg, exit, err := Parse(nil, &out)
	require.NoError(t, err)
	require.True(t, exit)
	require.Nil(t, cfg)
	require.Contains(t, out.String(), "Usage:")
}

func TestParse_InvalidLogFormat(t *testing.T) {
	var out bytes.Buffer
	_, _, err := Parse([]string{"-log-format", "yaml", "wf/"}, &out)
	var exitErr *ExitError
	require.ErrorAs(t, err, &exitErr)
	require.Equal(t, 2, exitErr.Code)
}

func TestParse_InvalidLogLevel(t *testing.T) {
	var out bytes.Buffer
	_, _, err := Parse([]string{"-log-level", "verbose", "wf/"}, &out)
	var exitErr *ExitError
	require.ErrorAs(t, err, &exitErr)
	require.Equal(t, 2, exitErr.Code)
}

func TestParse_InvalidEventType(t *testing.T) {
	var out bytes.Buffer
	_, _, err := Parse([]string{"-event", "ev.json", "-event-type", "release", "wf/"}, &out)
	var exitErr *ExitError
	require.ErrorAs(t, err, &exitErr)
	require.Equal(t, 2, exitErr.Code)
}

func TestParse_EventRequiresEventType(t *testing.T) {
	var out bytes.Buffer
	_, _, err := Parse([]string{"-event", "ev.json", "wf/"}, &out)
	var exitErr *ExitError
	require.ErrorAs(t, err, &exitErr)
	require.Equal(t, 2, exitErr.Code)
}

func TestParse_ServeAndEventFlags(t *testing.T) {
	var out bytes.Buffer
	cfg, _, err := Parse([]string{"-serve", "-event", "ev.json", "-event-type", "push", "-workers", "8", "wf/"}, &out)
	require.NoError(t, err)
	require.True(t, cfg.Serve)
	require.Equal(t, "ev.json", cfg.EventPath)
	require.Equal(t, "push", cfg.EventType)
	require.Equal(t, 8, cfg.WorkerCount)
}
