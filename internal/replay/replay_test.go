package replay

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"rasch/internal/direction"
	"rasch/internal/rail"
	"rasch/internal/solver"
)

func loopEnv(t *testing.T) *rail.Env {
	t.Helper()
	grid, err := rail.NewGrid([][]uint16{
		{0x4002, 0x0401, 0x1200},
		{0x8020, 0x0000, 0x8020},
		{0x0048, 0x0401, 0x0810},
	})
	require.NoError(t, err)
	env, err := rail.NewEnv("simple_loop_map", grid, []rail.Line{
		{Start: rail.Position{Row: 1, Col: 2}, Target: rail.Position{Row: 1, Col: 0}, Direction: direction.South},
		{Start: rail.Position{Row: 1, Col: 0}, Target: rail.Position{Row: 1, Col: 2}, Direction: direction.North},
	}, 0)
	require.NoError(t, err)
	return env
}

func forward(n int) map[int]rail.Action {
	steps := make(map[int]rail.Action, n)
	for k := 0; k < n; k++ {
		steps[k] = rail.MoveForward
	}
	return steps
}

func TestCheckStepsRejectsGap(t *testing.T) {
	table := solver.ActionTable{0: {0: rail.MoveForward, 1: rail.MoveForward, 3: rail.MoveForward}}

	err := CheckSteps(table)
	require.ErrorIs(t, err, ErrStepGap)
	var gap *GapError
	require.True(t, errors.As(err, &gap))
	assert.Equal(t, 0, gap.Handle)
	assert.Equal(t, 2, gap.Missing)
	assert.Equal(t, []int{0, 1, 3}, gap.Steps)
}

func TestCheckStepsRejectsLateStart(t *testing.T) {
	err := CheckSteps(solver.ActionTable{1: {1: rail.MoveForward}})
	assert.ErrorIs(t, err, ErrStepGap)
	assert.NoError(t, CheckSteps(solver.ActionTable{}))
}

func TestRunRejectsGapBeforeStepping(t *testing.T) {
	env := loopEnv(t)
	_, err := NewValidator(nil).Run(context.Background(), env,
		solver.ActionTable{0: {0: rail.MoveForward, 2: rail.MoveForward}}, Options{Horizon: 10})
	assert.ErrorIs(t, err, ErrStepGap)
	assert.Zero(t, env.ElapsedSteps())
}

func TestRunCrossingLoop(t *testing.T) {
	frames := 0
	res, err := NewValidator(zap.NewNop()).Run(context.Background(), loopEnv(t),
		solver.ActionTable{0: forward(4), 1: forward(4)},
		Options{Horizon: 20, OnFrame: func(Frame) { frames++ }})
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.Equal(t, 5, res.Steps)
	assert.Equal(t, 5, frames)

	first := res.Frames[0]
	assert.Equal(t, map[int]rail.Action{0: rail.MoveForward, 1: rail.MoveForward}, first.Actions)
	assert.Equal(t, map[int]AgentState{0: Active, 1: Active}, first.States)
	last := res.Frames[len(res.Frames)-1]
	assert.Equal(t, map[int]AgentState{0: Done, 1: Done}, last.States)
	assert.Len(t, last.Actions, 2)
}

func TestRunHorizonTooShort(t *testing.T) {
	res, err := NewValidator(nil).Run(context.Background(), loopEnv(t),
		solver.ActionTable{0: forward(4), 1: forward(4)}, Options{Horizon: 1})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, 1, res.Steps)
}

func TestRunDefaultsToForward(t *testing.T) {
	res, err := NewValidator(nil).Run(context.Background(), loopEnv(t), solver.ActionTable{}, Options{Horizon: 20})
	require.NoError(t, err)
	assert.True(t, res.Success)
}

func TestRunStopDelaysArrival(t *testing.T) {
	wait := forward(5)
	wait[0] = rail.StopMoving
	res, err := NewValidator(nil).Run(context.Background(), loopEnv(t),
		solver.ActionTable{0: wait, 1: forward(4)}, Options{Horizon: 20})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 6, res.Steps)
	assert.Equal(t, rail.StopMoving, res.Frames[1].Actions[0])
}

func TestRunIsDeterministic(t *testing.T) {
	env := loopEnv(t)
	table := solver.ActionTable{0: forward(4), 1: {0: rail.StopMoving, 1: rail.MoveForward}}
	v := NewValidator(nil)

	a, err := v.Run(context.Background(), env, table, Options{Horizon: 12})
	require.NoError(t, err)
	b, err := v.Run(context.Background(), env, table, Options{Horizon: 12})
	require.NoError(t, err)
	if diff := cmp.Diff(a, b); diff != "" {
		t.Errorf("replays differ (-first +second):\n%s", diff)
	}
}

func TestRunHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewValidator(nil).Run(ctx, loopEnv(t), solver.ActionTable{}, Options{Horizon: 5})
	assert.ErrorIs(t, err, context.Canceled)
}
