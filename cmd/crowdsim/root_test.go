package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zapcore"

	"github.com/lao-tseu-is-alive/go-crowd-avoidance/internal/observability"
)

func TestMain(m *testing.M) {
	// The first Initialize wins, so the commands under test stay quiet.
	observability.Initialize(observability.LoggerConfig{Level: "error"}, zapcore.AddSync(io.Discard))
	goleak.VerifyTestMain(m)
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

// summaryField returns the value printed after "name:" in a run summary.
func summaryField(t *testing.T, summary, name string) string {
	t.Helper()
	for _, line := range strings.Split(summary, "\n") {
		if rest, ok := strings.CutPrefix(line, name+":"); ok {
			return strings.TrimSpace(rest)
		}
	}
	t.Fatalf("no %q in summary:\n%s", name, summary)
	return ""
}

func TestRootCmd_VersionFlag(t *testing.T) {
	out, err := execute(t, "--version")
	require.NoError(t, err)
	assert.Equal(t, Version+"\n", out)
}

func TestVersionCmd(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, Version+"\n", out)
}

func TestScenariosCmd(t *testing.T) {
	out, err := execute(t, "scenarios")
	require.NoError(t, err)
	for _, name := range []string{"circle", "corridor", "line", "random"} {
		assert.Contains(t, out, name)
	}
}

func TestRunCmd_summary(t *testing.T) {
	out, err := execute(t, "run", "--scenario", "line", "--steps", "10")
	require.NoError(t, err)

	assert.Equal(t, "line", summaryField(t, out, "scenario"))
	assert.Equal(t, "10", summaryField(t, out, "steps"))
	assert.Equal(t, "40", summaryField(t, out, "agents"))
	assert.Len(t, summaryField(t, out, "fingerprint"), 16)
}

func TestRunCmd_reproducibleAcrossWorkers(t *testing.T) {
	one, err := execute(t, "run", "--scenario", "circle", "--steps", "20", "--workers", "1")
	require.NoError(t, err)
	many, err := execute(t, "run", "--scenario", "circle", "--steps", "20", "--workers", "8")
	require.NoError(t, err)

	assert.Equal(t, summaryField(t, one, "fingerprint"), summaryField(t, many, "fingerprint"))
	assert.NotEqual(t, summaryField(t, one, "run id"), summaryField(t, many, "run id"))
}

func TestRunCmd_jsonSnapshots(t *testing.T) {
	out, err := execute(t, "run", "--scenario", "line", "--steps", "10", "--format", "json", "--every", "4")
	require.NoError(t, err)

	var steps []float64
	sc := bufio.NewScanner(strings.NewReader(out))
	sc.Buffer(make([]byte, 0, 1<<16), 1<<22)
	for sc.Scan() {
		var snap map[string]any
		require.NoError(t, json.Unmarshal(sc.Bytes(), &snap))
		assert.Len(t, snap["agents"], 40)
		steps = append(steps, snap["step"].(float64))
	}
	require.NoError(t, sc.Err())
	assert.Equal(t, []float64{4, 8, 10}, steps)
}

func TestRunCmd_outputFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.txt")
	out, err := execute(t, "run", "--scenario", "corridor", "--steps", "3", "-o", path)
	require.NoError(t, err)
	assert.Empty(t, out)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "corridor", summaryField(t, string(data), "scenario"))
}

func TestRunCmd_scenarioFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pair.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
name: pair
timeStep: 0.1
steps: 5
agents:
  - {id: a, position: {x: -5, y: 0}, radius: 1, maxSpeed: 1, goal: {destination: {x: 5, y: 0}}}
  - {id: b, position: {x: 5, y: 0}, radius: 1, maxSpeed: 1, goal: {destination: {x: -5, y: 0}}}
`), 0o600))

	out, err := execute(t, "run", "--file", path)
	require.NoError(t, err)
	assert.Equal(t, "pair", summaryField(t, out, "scenario"))
	assert.Equal(t, "5", summaryField(t, out, "steps"))
	assert.Equal(t, "0.500s", summaryField(t, out, "simulated time"))
}

func TestRunCmd_errors(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{"unknown scenario", []string{"run", "--scenario", "stampede"}, `unknown scenario "stampede"`},
		{"unknown format", []string{"run", "--format", "xml"}, `unknown format "xml"`},
		{"negative steps", []string{"run", "--steps", "-1"}, "must not be negative"},
		{"both sources", []string{"run", "--scenario", "line", "--file", "x.json"}, "mutually exclusive"},
		{"missing file", []string{"run", "--file", "does-not-exist.json"}, "failed to read scenario file"},
		{"missing config", []string{"--config", "does-not-exist.yaml", "version"}, "error reading config file"},
		{"extra args", []string{"run", "now"}, "unknown command"},
		{"negative speed", []string{"serve", "--speed", "-1"}, "--speed must not be negative"},
		{"bad address", []string{"serve", "--addr", "not-an-address", "--steps", "1"}, "listen tcp"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, tt.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestRunCmd_environment(t *testing.T) {
	t.Setenv("CROWDSIM_RUN_SCENARIO", "line")
	t.Setenv("CROWDSIM_RUN_STEPS", "3")

	out, err := execute(t, "run")
	require.NoError(t, err)
	assert.Equal(t, "line", summaryField(t, out, "scenario"))
	assert.Equal(t, "3", summaryField(t, out, "steps"))

	// Flags beat the environment.
	out, err = execute(t, "run", "--steps", "2")
	require.NoError(t, err)
	assert.Equal(t, "2", summaryField(t, out, "steps"))
}

func TestRunCmd_configFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "crowdsim.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
log:
  level: error
run:
  scenario: corridor
  steps: 4
`), 0o600))

	out, err := execute(t, "--config", path, "run")
	require.NoError(t, err)
	assert.Equal(t, "corridor", summaryField(t, out, "scenario"))
	assert.Equal(t, "4", summaryField(t, out, "steps"))
}

func TestServeCmd_runsToCompletion(t *testing.T) {
	out, err := execute(t, "serve", "--scenario", "line", "--steps", "3", "--speed", "0", "--addr", "127.0.0.1:0")
	require.NoError(t, err)
	assert.Empty(t, out, "snapshots go to websocket clients, not stdout")
}

func TestServeCmd_interrupted(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetOut(io.Discard)
	cmd.SetArgs([]string{"serve", "--scenario", "line", "--steps", "100000", "--speed", "1", "--addr", "127.0.0.1:0"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, cmd.ExecuteContext(ctx), "an interrupt ends serving cleanly")
}
