// Package replay steps a rail environment through an action table and certifies
// whether the plan brings every agent to its target within the horizon.
package replay

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"rasch/internal/rail"
	"rasch/internal/solver"
)

// ErrStepGap is returned for action tables whose steps are not 0..n-1.
var ErrStepGap = errors.New("action table has a step gap")

// GapError names the agent and the first missing step.
type GapError struct {
	Handle  int
	Missing int
	Steps   []int
}

func (e *GapError) Error() string {
	return fmt.Sprintf("agent %d: step %d missing from %v", e.Handle, e.Missing, e.Steps)
}

func (e *GapError) Unwrap() error {
	return ErrStepGap
}

// CheckSteps verifies that every agent's steps are contiguous from 0.
func CheckSteps(table solver.ActionTable) error {
	for _, h := range table.Handles() {
		for i, k := range table.Steps(h) {
			if k != i {
				return &GapError{Handle: h, Missing: i, Steps: table.Steps(h)}
			}
		}
	}
	return nil
}

// AgentState is the replay status of one agent.
type AgentState int

const (
	NotSpawned AgentState = iota
	Active
	Done
)

func (s AgentState) String() string {
	switch s {
	case NotSpawned:
		return "not spawned"
	case Active:
		return "active"
	case Done:
		return "done"
	}
	return fmt.Sprintf("AgentState(%d)", int(s))
}

// Frame is the environment after one step.
type Frame struct {
	Step    int
	Actions map[int]rail.Action
	States  map[int]AgentState
	Agents  []rail.Snapshot
}

// Result is the outcome of a replay.
type Result struct {
	Success bool
	Steps   int
	Frames  []Frame
}

// Options tune a replay.
type Options struct {
	// Horizon bounds the number of steps. It also becomes the environment's
	// episode length.
	Horizon int
	// OnFrame, when set, is called after every step.
	OnFrame func(Frame)
}

type cursor struct {
	state AgentState
	next  int
}

// Validator replays action tables.
type Validator struct {
	logger *zap.Logger
}

// NewValidator returns a validator logging to logger.
func NewValidator(logger *zap.Logger) *Validator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Validator{logger: logger}
}

// Run resets env and replays table on it. Agents that are not on the grid yet ask
// to depart every step. Agents on the grid send the action at their cursor, or
// MoveForward once their actions run out. A table with a step gap is rejected
// before anything is stepped.
func (v *Validator) Run(ctx context.Context, env *rail.Env, table solver.ActionTable, opts Options) (Result, error) {
	if err := CheckSteps(table); err != nil {
		return Result{}, err
	}

	env.Reset()
	env.SetMaxEpisodeSteps(opts.Horizon)
	cursors := make(map[int]*cursor, len(env.Agents))
	for _, a := range env.Agents {
		cursors[a.Handle] = &cursor{state: NotSpawned}
		v.logger.Debug("agent actions", zap.Int("agent", a.Handle), zap.Int("count", len(table[a.Handle])))
	}

	var res Result
	dones := env.Dones()
	for step := 0; !dones.All && step < opts.Horizon; step++ {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		actions := make(map[int]rail.Action, len(env.Agents))
		for _, a := range env.Agents {
			c := cursors[a.Handle]
			switch c.state {
			case NotSpawned:
				actions[a.Handle] = rail.MoveForward
			case Active:
				act, ok := table[a.Handle][c.next]
				if !ok {
					act = rail.MoveForward
				}
				actions[a.Handle] = act
				c.next++
			}
		}

		dones = env.Step(actions)

		frame := Frame{Step: step, Actions: actions, States: make(map[int]AgentState, len(env.Agents)), Agents: env.Snapshot()}
		for _, a := range env.Agents {
			c := cursors[a.Handle]
			switch {
			case a.State == rail.Done:
				c.state = Done
			case a.Position != nil:
				c.state = Active
			}
			frame.States[a.Handle] = c.state
		}
		v.logger.Debug("step", zap.Int("step", step), zap.Any("actions", actions))
		res.Frames = append(res.Frames, frame)
		res.Steps = step + 1
		if opts.OnFrame != nil {
			opts.OnFrame(frame)
		}
	}

	res.Success = true
	for _, a := range env.Agents {
		if cursors[a.Handle].state != Done {
			res.Success = false
		}
	}
	v.logger.Info("replay finished", zap.Bool("success", res.Success), zap.Int("steps", res.Steps))
	return res, nil
}
