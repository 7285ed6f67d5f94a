package rail

import (
	"fmt"

	"rasch/internal/direction"
)

// State is the runtime status of an agent inside the environment.
type State int

const (
	Waiting State = iota // not yet placed on the grid
	Moving               // on the grid
	Done                 // reached its target and left the grid
)

func (s State) String() string {
	switch s {
	case Waiting:
		return "waiting"
	case Moving:
		return "moving"
	case Done:
		return "done"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Line is the static task of one agent.
type Line struct {
	Start             Position
	Target            Position
	Direction         direction.Direction
	EarliestDeparture int
	Speed             float64
}

// Agent is a train with its line and runtime state.
type Agent struct {
	Handle int
	Line

	Position  *Position
	Heading   direction.Direction
	State     State
	ArrivedAt int

	moving bool
}

func newAgent(handle int, line Line) *Agent {
	if line.Speed == 0 {
		line.Speed = 1
	}
	a := &Agent{Handle: handle, Line: line}
	a.reset()
	return a
}

func (a *Agent) reset() {
	a.Position = nil
	a.Heading = a.Direction
	a.State = Waiting
	a.ArrivedAt = -1
	a.moving = false
}

func (a *Agent) clone() *Agent {
	c := *a
	if a.Position != nil {
		p := *a.Position
		c.Position = &p
	}
	return &c
}

// Snapshot is an immutable view of an agent at the end of a step.
type Snapshot struct {
	Handle    int                 `json:"handle"`
	Position  *Position           `json:"position,omitempty"`
	Heading   direction.Direction `json:"direction"`
	State     State               `json:"state"`
	ArrivedAt int                 `json:"arrived_at"`
}

func (a *Agent) snapshot() Snapshot {
	s := Snapshot{Handle: a.Handle, Heading: a.Heading, State: a.State, ArrivedAt: a.ArrivedAt}
	if a.Position != nil {
		p := *a.Position
		s.Position = &p
	}
	return s
}
