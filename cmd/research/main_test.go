package main

import (
	"os"
	"path/filepath"
	"testing"

	"deep-research-agent/pkg/validation"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCmd_Commands(t *testing.T) {
	root := newRootCmd()

	for _, path := range [][]string{
		{"run"},
		{"watch"},
		{"sessions", "list"},
		{"sessions", "show"},
		{"sessions", "delete"},
		{"sessions", "cleanup"},
		{"sessions", "cleanup-incomplete"},
		{"sessions", "set-report"},
	} {
		cmd, _, err := root.Find(path)
		require.NoError(t, err, path)
		assert.Equal(t, path[len(path)-1], cmd.Name())
	}
}

func TestRunCmd_RejectsBadDepthBeforeStartup(t *testing.T) {
	root := newRootCmd()
	root.SetArgs([]string{"run", "--depth", "exhaustive", "What is quantum computing?"})

	err := root.Execute()
	require.Error(t, err)
	assert.ErrorIs(t, err, validation.ErrInvalidInput)
}

func TestReadContextFile(t *testing.T) {
	dir := t.TempDir()

	out, err := readContextFile("")
	require.NoError(t, err)
	assert.Nil(t, out)

	good := filepath.Join(dir, "ctx.json")
	require.NoError(t, os.WriteFile(good, []byte(`{"constraints":{"budget":500}}`), 0o600))
	out, err = readContextFile(good)
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"budget": float64(500)}, out["constraints"])

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`[1,2]`), 0o600))
	_, err = readContextFile(bad)
	assert.ErrorIs(t, err, validation.ErrInvalidInput)
}

func TestFormatStageLine(t *testing.T) {
	color.NoColor = true

	ok := formatStageLine(map[string]interface{}{"stage": 2, "total_stages": 6, "stage_name": "Information Gathering"})
	assert.Equal(t, "[2/6] Information Gathering", ok)

	degraded := formatStageLine(map[string]interface{}{
		"stage": 3, "total_stages": 6, "stage_name": "Evidence Analysis", "degraded": true, "error": "timeout",
	})
	assert.Equal(t, "[3/6] Evidence Analysis (degraded) timeout", degraded)
}
