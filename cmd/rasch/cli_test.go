package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTestConfig(t *testing.T) (string, string) {
	t.Helper()
	encodings, err := filepath.Abs("../../data/encodings")
	require.NoError(t, err)
	environments, err := filepath.Abs("../../data/environments")
	require.NoError(t, err)

	out := t.TempDir()
	content := fmt.Sprintf(`rasch_config:
  asp_encodings_path: %s
  flatland_environments_path: %s
  asp_instances_path: %s
  solver_output_path: %s
  statistics_output_path: %s
  database_path: %s
  bench:
    parallelism: 2
    metrics_file: %s
  replay:
    step_delay: 1ms
  logging:
    level: error
`, encodings, environments,
		filepath.Join(out, "instances"),
		filepath.Join(out, "solver"),
		filepath.Join(out, "statistics"),
		filepath.Join(out, "rasch.db"),
		filepath.Join(out, "statistics", "rasch.prom"))
	path := filepath.Join(out, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path, out
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	benchmarkMode, render, stepDelay, noTUI = "", false, 0, false
	runsLimit, runsSummary, timeout = 20, false, 0

	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetErr(&buf)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return buf.String(), err
}

func TestSolveCmd(t *testing.T) {
	cfgPath, out := writeTestConfig(t)

	output, err := execute(t, "-c", cfgPath, "solve", "rasch", "simple_loop_map", "20")
	require.NoError(t, err)
	assert.Contains(t, output, "rasch on simple_loop_map: success")
	assert.FileExists(t, filepath.Join(out, "solver", "rasch_simple_loop_map_solve.json"))

	output, err = execute(t, "-c", cfgPath, "runs")
	require.NoError(t, err)
	assert.Contains(t, output, "simple_loop_map")

	output, err = execute(t, "-c", cfgPath, "runs", "--summary")
	require.NoError(t, err)
	assert.Contains(t, output, "Encodings")
}

func TestDefaultCmdRenders(t *testing.T) {
	cfgPath, _ := writeTestConfig(t)

	output, err := execute(t, "-c", cfgPath, "--render", "rasch", "simple_loop_map")
	require.NoError(t, err)
	assert.Contains(t, output, "step 0")
	assert.Contains(t, output, "success")
}

func TestInstanceCmd(t *testing.T) {
	cfgPath, out := writeTestConfig(t)

	output, err := execute(t, "-c", cfgPath, "instance", "rasch", "simple_switch_map", "10")
	require.NoError(t, err)
	path := filepath.Join(out, "instances", "rasch_simple_switch_map_instance.lp")
	assert.Contains(t, output, path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "limit(10).")
}

func TestReplayCmd(t *testing.T) {
	cfgPath, out := writeTestConfig(t)
	_, err := execute(t, "-c", cfgPath, "solve", "rasch", "simple_loop_map")
	require.NoError(t, err)

	artifact := filepath.Join(out, "solver", "rasch_simple_loop_map_solve.json")
	output, err := execute(t, "-c", cfgPath, "replay", "--no-tui", artifact, "simple_loop_map")
	require.NoError(t, err)
	assert.Contains(t, output, "success: true after 5 steps")
}

func TestRenderCmd(t *testing.T) {
	cfgPath, _ := writeTestConfig(t)

	output, err := execute(t, "-c", cfgPath, "render", "simple_loop_map")
	require.NoError(t, err)
	assert.Contains(t, output, "simple_loop_map")
	assert.Contains(t, output, "agent 1")
}

func TestBenchmarkAndReport(t *testing.T) {
	cfgPath, out := writeTestConfig(t)

	output, err := execute(t, "-c", cfgPath, "-b", "encs", "rasch", "simple_loop_map")
	require.NoError(t, err)
	assert.Contains(t, output, "rasch_unpruned")

	stats := filepath.Join(out, "statistics", "simple_loop_map_stats.json")
	require.FileExists(t, stats)
	assert.FileExists(t, filepath.Join(out, "statistics", "rasch.prom"))

	output, err = execute(t, "-c", cfgPath, "report", stats)
	require.NoError(t, err)
	assert.Contains(t, output, "simple_loop_map")
}

func TestBadArguments(t *testing.T) {
	cfgPath, _ := writeTestConfig(t)

	_, err := execute(t, "-c", cfgPath, "solve", "rasch", "simple_loop_map", "soon")
	assert.ErrorContains(t, err, "limit must be a positive integer")

	_, err = execute(t, "-c", cfgPath, "-b", "some", "rasch")
	assert.ErrorContains(t, err, "unknown benchmark mode")

	_, err = execute(t, "-c", cfgPath, "solve", "rasch", "nowhere")
	assert.Error(t, err)
}
