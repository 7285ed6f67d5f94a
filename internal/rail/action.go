package rail

import "fmt"

// Action is the per-step command an agent receives. The numeric values are part of
// the contract with rule-sets: they appear verbatim in agent_action facts.
type Action int

const (
	DoNothing   Action = iota // keep the previous movement
	MoveLeft                  // take the left branch of a switch
	MoveForward               // continue, or follow the only exit
	MoveRight                 // take the right branch of a switch
	StopMoving                // stay in the cell
)

var actionNames = [...]string{"DO_NOTHING", "MOVE_LEFT", "MOVE_FORWARD", "MOVE_RIGHT", "STOP_MOVING"}

// Valid reports whether a is a known action code.
func (a Action) Valid() bool {
	return a >= DoNothing && a <= StopMoving
}

func (a Action) String() string {
	if !a.Valid() {
		return fmt.Sprintf("Action(%d)", int(a))
	}
	return actionNames[a]
}

// IsMoving reports whether a requests movement (and therefore departure).
func (a Action) IsMoving() bool {
	return a == MoveLeft || a == MoveForward || a == MoveRight
}
