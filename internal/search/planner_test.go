package search

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rasch/internal/direction"
	"rasch/internal/rail"
)

var loopRows = [][]uint16{
	{0x4002, 0x0401, 0x1200},
	{0x8020, 0x0000, 0x8020},
	{0x0048, 0x0401, 0x0810},
}

// networkFor derives moves from a grid the same way the shipped rule-set does.
func networkFor(t *testing.T, rows [][]uint16) *Network {
	t.Helper()
	grid, err := rail.NewGrid(rows)
	require.NoError(t, err)
	net := NewNetwork()
	for r := 0; r < grid.Height; r++ {
		for c := 0; c < grid.Width; c++ {
			pos := rail.Position{Row: r, Col: c}
			for _, d := range direction.All {
				exits := grid.At(pos).Exits(d)
				from := State{pos, d}
				add := func(a rail.Action, x direction.Direction) {
					if to := pos.Step(x); grid.IsRail(to) {
						net.AddMove(from, a, State{to, x})
					}
				}
				if len(exits) == 1 {
					add(rail.MoveForward, exits[0])
					continue
				}
				for _, x := range exits {
					switch x {
					case d:
						add(rail.MoveForward, x)
					case direction.Left(d):
						add(rail.MoveLeft, x)
					case direction.Right(d):
						add(rail.MoveRight, x)
					}
				}
			}
		}
	}
	return net
}

func crossingTasks() []Task {
	return []Task{
		{Handle: 0, Start: rail.Position{Row: 1, Col: 2}, Target: rail.Position{Row: 1, Col: 0}, Heading: direction.South},
		{Handle: 1, Start: rail.Position{Row: 1, Col: 0}, Target: rail.Position{Row: 1, Col: 2}, Heading: direction.North},
	}
}

func collect(t *testing.T, p Problem, opts Options) ([]Plan, Stats) {
	t.Helper()
	var plans []Plan
	stats, err := Solve(context.Background(), p, opts, func(plan Plan) error {
		plans = append(plans, plan)
		return nil
	})
	require.NoError(t, err)
	return plans, stats
}

func TestSolveCrossingLoop(t *testing.T) {
	plans, stats := collect(t, Problem{Network: networkFor(t, loopRows), Tasks: crossingTasks(), Horizon: 10}, Options{})

	// the loop has no switches, so every preference order yields the same plan
	require.Len(t, plans, 1)
	assert.Equal(t, 1, stats.Plans)
	assert.Positive(t, stats.Expanded)

	plan := plans[0]
	require.Len(t, plan.Agents, 2)
	for _, a := range plan.Agents {
		assert.Equal(t, 0, a.Spawn)
		assert.Equal(t, 4, a.Arrival)
		assert.Equal(t, []rail.Action{rail.MoveForward, rail.MoveForward, rail.MoveForward, rail.MoveForward}, a.Actions)
	}
	assert.Equal(t, 5, plan.Makespan())

	facts := plan.Facts()
	assert.Len(t, facts, 16)
	assert.Equal(t, "agent_action(0,2,0)", facts[0])
	assert.Equal(t, "trans(0,(1,2),(2,2),0)", facts[1])
	assert.Equal(t, "trans(1,(0,2),(1,2),3)", facts[15])
}

func TestSolveHorizonTooShort(t *testing.T) {
	plans, stats := collect(t, Problem{Network: networkFor(t, loopRows), Tasks: crossingTasks(), Horizon: 1}, Options{})
	assert.Empty(t, plans)
	assert.Zero(t, stats.Plans)
}

func TestSolveSharedStartDelaysSpawn(t *testing.T) {
	task := crossingTasks()[0]
	second := task
	second.Handle = 1

	plans, _ := collect(t, Problem{Network: networkFor(t, loopRows), Tasks: []Task{task, second}, Horizon: 10}, Options{MaxModels: 1})
	require.Len(t, plans, 1)
	a, b := plans[0].Agents[0], plans[0].Agents[1]
	assert.Equal(t, 0, a.Spawn)
	// the start cell is free at the start of step 2 at the earliest
	assert.Equal(t, 2, b.Spawn)
	assert.Equal(t, 6, b.Arrival)
}

func TestSolveStartOnTarget(t *testing.T) {
	task := Task{Handle: 0, Start: rail.Position{Row: 1, Col: 0}, Target: rail.Position{Row: 1, Col: 0}, Heading: direction.North, Departure: 2}
	plans, _ := collect(t, Problem{Network: networkFor(t, loopRows), Tasks: []Task{task}, Horizon: 5}, Options{})
	require.Len(t, plans, 1)
	assert.Equal(t, 2, plans[0].Agents[0].Arrival)
	assert.Empty(t, plans[0].Facts())
}

func TestSolveRespectsReach(t *testing.T) {
	net := networkFor(t, loopRows)
	// only agent 1 has reach data, so agent 0 may not expand anything
	net.AddReach(1, State{rail.Position{Row: 1, Col: 0}, direction.North})
	require.True(t, net.Pruned())

	plans, _ := collect(t, Problem{Network: net, Tasks: crossingTasks(), Horizon: 10}, Options{})
	assert.Empty(t, plans)
}

func TestSolveStopsOnCallbackError(t *testing.T) {
	wantErr := assert.AnError
	_, err := Solve(context.Background(), Problem{Network: networkFor(t, loopRows), Tasks: crossingTasks(), Horizon: 10}, Options{},
		func(Plan) error { return wantErr })
	assert.ErrorIs(t, err, wantErr)
}

func TestNetworkAddMoveDeduplicates(t *testing.T) {
	net := NewNetwork()
	from := State{rail.Position{Row: 0, Col: 0}, direction.North}
	to := State{rail.Position{Row: 0, Col: 1}, direction.East}
	net.AddMove(from, rail.MoveRight, to)
	net.AddMove(from, rail.MoveRight, to)
	assert.Equal(t, 1, net.Len())
	assert.Equal(t, []Move{{rail.MoveRight, to}}, net.Moves(from))
	assert.False(t, net.Pruned())
	assert.True(t, net.Reaches(3, from))
}

// mergeTasks has agent 1 depart onto agent 0's path one step before agent 0 passes,
// so agent 0 must yield even though it has the lower handle.
func mergeTasks() []Task {
	return []Task{
		{Handle: 0, Start: rail.Position{Row: 1, Col: 2}, Target: rail.Position{Row: 1, Col: 0}, Heading: direction.South},
		{Handle: 1, Start: rail.Position{Row: 2, Col: 1}, Target: rail.Position{Row: 1, Col: 0}, Heading: direction.West, Departure: 1},
	}
}

func TestSolveLetsHigherHandleGoFirst(t *testing.T) {
	plans, stats := collect(t, Problem{Network: networkFor(t, loopRows), Tasks: mergeTasks(), Horizon: 10}, Options{MaxModels: 1})
	require.Len(t, plans, 1)
	assert.Positive(t, stats.Conflicts)

	a, b := plans[0].Agents[0], plans[0].Agents[1]
	assert.Equal(t, 0, a.Handle)
	assert.Equal(t, 0, a.Spawn)
	assert.Equal(t, 5, a.Arrival)
	assert.Equal(t, []rail.Action{rail.MoveForward, rail.StopMoving, rail.MoveForward, rail.MoveForward, rail.MoveForward}, a.Actions)

	assert.Equal(t, 1, b.Handle)
	assert.Equal(t, 1, b.Spawn)
	assert.Equal(t, 3, b.Arrival)
	assert.Equal(t, []rail.Action{rail.MoveForward, rail.MoveForward}, b.Actions)
	assert.Equal(t, 6, plans[0].Makespan())
}

func TestPlanInOrderRespectsSpawnPriority(t *testing.T) {
	task := crossingTasks()[0]
	second := task
	second.Handle = 1
	p := Problem{Network: networkFor(t, loopRows), Horizon: 10}

	// agent 0 wins the shared start cell at step 0, so agent 1 cannot be given it
	_, ok, err := planInOrder(context.Background(), p, []Task{second, task}, DefaultPreferences[0], &Stats{})
	require.NoError(t, err)
	assert.False(t, ok)

	plan, ok, err := planInOrder(context.Background(), p, []Task{task, second}, DefaultPreferences[0], &Stats{})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 0, plan.Agents[0].Spawn)
	assert.Equal(t, 2, plan.Agents[1].Spawn)
}

func TestAgentOrders(t *testing.T) {
	tasks := []Task{{Handle: 2}, {Handle: 0}, {Handle: 1}}
	var got [][]int
	for _, o := range agentOrders(tasks) {
		got = append(got, handles(o))
	}
	assert.Equal(t, [][]int{{0, 1, 2}, {2, 1, 0}, {1, 0, 2}, {2, 0, 1}}, got)
}
