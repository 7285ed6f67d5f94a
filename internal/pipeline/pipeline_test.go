package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"rasch/internal/config"
	"rasch/internal/rail"
	"rasch/internal/replay"
	"rasch/internal/solver"
	"rasch/internal/store"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	out := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.EncodingsPath = "../../data/encodings"
	cfg.EnvironmentsPath = "../../data/environments"
	cfg.InstancesPath = filepath.Join(out, "instances")
	cfg.SolverOutputPath = filepath.Join(out, "solver")
	cfg.StatisticsOutputPath = filepath.Join(out, "statistics")
	return cfg
}

type fakeEngine struct {
	models [][]string
	block  bool
}

func (f *fakeEngine) Load(ctx context.Context, ruleSet string, facts []string) error {
	return nil
}

func (f *fakeEngine) Solve(ctx context.Context, onModel func(solver.Model) error) error {
	if f.block {
		<-ctx.Done()
		return ctx.Err()
	}
	for i, m := range f.models {
		if err := onModel(solver.NewModel(i+1, m)); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeEngine) Statistics() solver.Statistics {
	return solver.Statistics{}
}

func withFake(f *fakeEngine) Option {
	return WithEngineFactory(func() solver.Engine { return f })
}

func TestRunLoopSucceeds(t *testing.T) {
	cfg := testConfig(t)
	var frames []replay.Frame
	res, err := NewRunner(cfg, zap.NewNop()).Run(context.Background(), Request{
		Encoding:    "rasch",
		Environment: "simple_loop_map",
		Limit:       20,
		OnFrame:     func(f replay.Frame) { frames = append(frames, f) },
	})
	require.NoError(t, err)

	assert.Equal(t, StateSuccess, res.State)
	assert.True(t, res.Replay.Success)
	assert.Equal(t, 5, res.Replay.Steps)
	assert.Len(t, frames, 5)
	assert.Empty(t, res.Diagnostics)
	assert.NotEmpty(t, res.Selection.Models)

	_, err = uuid.Parse(res.RunID)
	assert.NoError(t, err)

	assert.FileExists(t, res.InstancePath)
	assert.Equal(t, "rasch_simple_loop_map_instance.lp", filepath.Base(res.InstancePath))
	loaded, err := solver.LoadArtifact(res.ArtifactPath)
	require.NoError(t, err)
	assert.Equal(t, res.Selection.Solution.AgentActions, loaded.Solution.AgentActions)
	assert.Equal(t, "rasch_simple_loop_map_solve.json", filepath.Base(res.ArtifactPath))
}

func TestRunShortHorizonHasNoActions(t *testing.T) {
	res, err := NewRunner(testConfig(t), nil).Run(context.Background(), Request{
		Encoding:    "rasch",
		Environment: "simple_loop_map",
		Limit:       1,
	})
	require.NoError(t, err)
	assert.Equal(t, StateNoActions, res.State)
	assert.FileExists(t, res.ArtifactPath)
}

func TestRunMissingResources(t *testing.T) {
	runner := NewRunner(testConfig(t), nil)

	_, err := runner.Run(context.Background(), Request{Encoding: "rasch", Environment: "nowhere"})
	assert.ErrorIs(t, err, solver.ErrResourceNotFound)

	_, err = runner.Run(context.Background(), Request{Encoding: "nothing", Environment: "simple_loop_map"})
	assert.ErrorIs(t, err, solver.ErrResourceNotFound)
}

func TestRunRuleSetParseFailure(t *testing.T) {
	cfg := testConfig(t)
	cfg.EncodingsPath = t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(cfg.EncodingsPath, "broken.mg"), []byte("move(R :- .\n"), 0644))

	_, err := NewRunner(cfg, nil).Run(context.Background(), Request{Encoding: "broken", Environment: "simple_loop_map"})
	assert.ErrorIs(t, err, solver.ErrRuleSetParse)
}

func TestRunStepGapIsInvalidActions(t *testing.T) {
	fake := &fakeEngine{models: [][]string{{
		"agent_action(0,2,0)",
		"agent_action(0,2,1)",
		"agent_action(0,2,3)",
	}}}
	res, err := NewRunner(testConfig(t), nil, withFake(fake)).Run(context.Background(), Request{
		Encoding:    "rasch",
		Environment: "simple_loop_map",
	})
	require.NoError(t, err)
	assert.Equal(t, StateInvalidActions, res.State)
	assert.Contains(t, res.Inconsistency, "step 2 missing")
}

func TestRunFailedReplayIsInvalidActions(t *testing.T) {
	fake := &fakeEngine{models: [][]string{{
		"agent_action(0,4,0)",
		"agent_action(0,4,1)",
		"agent_action(0,4,2)",
		"agent_action(0,4,3)",
		"agent_action(0,4,4)",
		"agent_action(0,4,5)",
	}}}
	res, err := NewRunner(testConfig(t), nil, withFake(fake)).Run(context.Background(), Request{
		Encoding:    "rasch",
		Environment: "simple_loop_map",
		Limit:       6,
	})
	require.NoError(t, err)
	assert.Equal(t, StateInvalidActions, res.State)
	assert.False(t, res.Replay.Success)
	assert.Contains(t, res.Inconsistency, "not done after 6 steps")
}

func TestRunTimeout(t *testing.T) {
	res, err := NewRunner(testConfig(t), nil, withFake(&fakeEngine{block: true})).Run(context.Background(), Request{
		Encoding:    "rasch",
		Environment: "simple_loop_map",
		Timeout:     20 * time.Millisecond,
	})
	require.NoError(t, err)
	assert.Equal(t, StateTimeout, res.State)
	assert.Empty(t, res.ArtifactPath)
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewRunner(testConfig(t), nil, withFake(&fakeEngine{block: true})).Run(ctx, Request{
		Encoding:    "rasch",
		Environment: "simple_loop_map",
		Timeout:     time.Second,
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRunRecordsInStore(t *testing.T) {
	s, err := store.NewStore(filepath.Join(t.TempDir(), "rasch.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	res, err := NewRunner(testConfig(t), nil, WithStore(s)).Run(context.Background(), Request{
		Encoding:    "rasch",
		Environment: "simple_loop_map",
	})
	require.NoError(t, err)

	run, err := s.Get(res.RunID)
	require.NoError(t, err)
	assert.Equal(t, "success", run.State)
	assert.Equal(t, "simple_loop_map", run.Environment)
	assert.Equal(t, 16, run.BestSize)
}

func TestRunRecordBestSize(t *testing.T) {
	run := RunRecord(&Result{
		RunID:     "x",
		State:     StateSuccess,
		Selection: solver.Artifact{Models: [][]string{{"a", "b", "c"}, {"a"}, {"a", "b"}}},
	})
	assert.Equal(t, 1, run.BestSize)
	assert.Equal(t, "success", run.State)
}

const mergeLoop = `name: merge_loop
max_episode_steps: 20
grid:
  - [0x4002, 0x0401, 0x1200]
  - [0x8020, 0x0000, 0x8020]
  - [0x0048, 0x0401, 0x0810]
agents:
  - start: [1, 2]
    target: [1, 0]
    direction: 2
    earliest_departure: 0
  - start: [2, 1]
    target: [1, 0]
    direction: 3
    earliest_departure: 1
`

func TestRunLowerHandleYields(t *testing.T) {
	env, err := rail.Decode([]byte(mergeLoop), "merge_loop")
	require.NoError(t, err)

	res, err := NewRunner(testConfig(t), zap.NewNop()).Run(context.Background(), Request{
		Encoding:    "rasch",
		Environment: "merge_loop",
		Env:         env,
		Limit:       20,
	})
	require.NoError(t, err)

	assert.Equal(t, StateSuccess, res.State)
	assert.Equal(t, 6, res.Replay.Steps)
	assert.Equal(t, solver.ActionTable{
		0: {0: rail.MoveForward, 1: rail.StopMoving, 2: rail.MoveForward, 3: rail.MoveForward, 4: rail.MoveForward},
		1: {0: rail.MoveForward, 1: rail.MoveForward},
	}, res.Selection.Solution.AgentActions)
}
