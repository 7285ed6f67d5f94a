package rail

import (
	"fmt"

	"rasch/internal/direction"
)

// Dones reports per-agent completion after a step.
type Dones struct {
	Agents map[int]bool
	All    bool
}

// Env is a rail grid with a fixed set of agents.
type Env struct {
	Name            string
	Grid            *Grid
	Agents          []*Agent
	MaxEpisodeSteps int

	elapsed int
}

// NewEnv validates every line against the grid and returns a reset environment.
// Agent handles are their index in lines.
func NewEnv(name string, grid *Grid, lines []Line, maxEpisodeSteps int) (*Env, error) {
	if grid == nil {
		return nil, fmt.Errorf("environment %s: nil grid", name)
	}
	env := &Env{Name: name, Grid: grid, MaxEpisodeSteps: maxEpisodeSteps}
	for handle, line := range lines {
		if err := validateLine(grid, line); err != nil {
			return nil, fmt.Errorf("environment %s: agent %d: %w", name, handle, err)
		}
		env.Agents = append(env.Agents, newAgent(handle, line))
	}
	return env, nil
}

func validateLine(grid *Grid, line Line) error {
	if !line.Direction.Valid() {
		return fmt.Errorf("invalid direction %d", int(line.Direction))
	}
	if line.EarliestDeparture < 0 {
		return fmt.Errorf("negative earliest departure %d", line.EarliestDeparture)
	}
	if !grid.IsRail(line.Start) {
		return fmt.Errorf("start %s is not a rail cell", line.Start)
	}
	if !grid.IsRail(line.Target) {
		return fmt.Errorf("target %s is not a rail cell", line.Target)
	}
	if !grid.CheckPathExists(line.Start, line.Direction, line.Target) {
		return fmt.Errorf("no path from %s facing %s to %s", line.Start, line.Direction, line.Target)
	}
	return nil
}

// Reset puts every agent back to its waiting state and clears the step counter.
func (e *Env) Reset() {
	e.elapsed = 0
	for _, a := range e.Agents {
		a.reset()
	}
}

// SetMaxEpisodeSteps changes the horizon. Zero or negative means unbounded.
func (e *Env) SetMaxEpisodeSteps(n int) {
	e.MaxEpisodeSteps = n
}

// ElapsedSteps returns the number of steps applied since the last reset.
func (e *Env) ElapsedSteps() int {
	return e.elapsed
}

// Clone returns a deep copy sharing only the immutable grid.
func (e *Env) Clone() *Env {
	c := &Env{Name: e.Name, Grid: e.Grid, MaxEpisodeSteps: e.MaxEpisodeSteps, elapsed: e.elapsed}
	for _, a := range e.Agents {
		c.Agents = append(c.Agents, a.clone())
	}
	return c
}

// Snapshot returns the current state of every agent in handle order.
func (e *Env) Snapshot() []Snapshot {
	out := make([]Snapshot, len(e.Agents))
	for i, a := range e.Agents {
		out[i] = a.snapshot()
	}
	return out
}

// Dones reports completion without stepping.
func (e *Env) Dones() Dones {
	d := Dones{Agents: make(map[int]bool, len(e.Agents)), All: true}
	for _, a := range e.Agents {
		done := a.State == Done
		d.Agents[a.Handle] = done
		if !done {
			d.All = false
		}
	}
	if e.MaxEpisodeSteps > 0 && e.elapsed >= e.MaxEpisodeSteps {
		d.All = true
	}
	return d
}

type intent struct {
	agent *Agent
	to    Position
	dir   direction.Direction
	spawn bool
}

// Step applies one action per agent. Missing actions are DoNothing. An agent only
// enters a cell that was empty when the step began, and when several agents want
// the same cell the lowest handle gets it.
func (e *Env) Step(actions map[int]Action) Dones {
	if d := e.Dones(); d.All {
		return d
	}

	occupied := make(map[Position]int)
	for _, a := range e.Agents {
		if a.Position != nil {
			occupied[*a.Position] = a.Handle
		}
	}

	var intents []intent
	for _, a := range e.Agents {
		if a.State == Done {
			continue
		}
		act, ok := actions[a.Handle]
		if !ok {
			act = DoNothing
		}
		if a.Position == nil {
			if act.IsMoving() && e.elapsed >= a.EarliestDeparture {
				intents = append(intents, intent{agent: a, to: a.Start, dir: a.Direction, spawn: true})
			}
			continue
		}
		if act == DoNothing && a.moving {
			act = MoveForward
		}
		if !act.IsMoving() {
			a.moving = false
			continue
		}
		dir, ok := e.resolve(a, act)
		to := a.Position.Step(dir)
		if !ok || !e.Grid.IsRail(to) {
			a.moving = false
			continue
		}
		intents = append(intents, intent{agent: a, to: to, dir: dir})
	}

	claimed := make(map[Position]bool)
	for _, in := range intents {
		if _, busy := occupied[in.to]; busy || claimed[in.to] {
			in.agent.moving = false
			continue
		}
		claimed[in.to] = true
		to := in.to
		in.agent.Position = &to
		in.agent.Heading = in.dir
		in.agent.moving = true
		if in.spawn {
			in.agent.State = Moving
		}
	}

	for _, a := range e.Agents {
		if a.Position != nil && *a.Position == a.Target {
			a.Position = nil
			a.State = Done
			a.ArrivedAt = e.elapsed
			a.moving = false
		}
	}

	e.elapsed++
	return e.Dones()
}

// resolve returns the heading an agent leaves its cell with for act. On a cell with a
// single exit every moving action follows that exit.
func (e *Env) resolve(a *Agent, act Action) (direction.Direction, bool) {
	exits := e.Grid.At(*a.Position).Exits(a.Heading)
	if len(exits) == 1 {
		return exits[0], true
	}
	want := a.Heading
	switch act {
	case MoveLeft:
		want = direction.Left(a.Heading)
	case MoveRight:
		want = direction.Right(a.Heading)
	}
	for _, x := range exits {
		if x == want {
			return want, true
		}
	}
	return want, false
}
