// Package search finds collision-free action sequences for a set of trains on a
// movement network derived by a rule-set.
package search

import (
	"rasch/internal/direction"
	"rasch/internal/rail"
)

// State is a train in a cell facing a direction.
type State struct {
	Pos     rail.Position
	Heading direction.Direction
}

// Move is one admissible transition out of a State.
type Move struct {
	Action rail.Action
	To     State
}

// Network holds the moves a rule-set derived plus optional per-agent reachability.
type Network struct {
	moves map[State][]Move
	reach map[int]map[State]bool
}

// NewNetwork returns an empty network.
func NewNetwork() *Network {
	return &Network{
		moves: make(map[State][]Move),
	}
}

// AddMove records that action a takes a train from from to to. Duplicates are ignored.
func (n *Network) AddMove(from State, a rail.Action, to State) {
	for _, m := range n.moves[from] {
		if m.Action == a && m.To == to {
			return
		}
	}
	n.moves[from] = append(n.moves[from], Move{Action: a, To: to})
}

// Moves returns the moves out of s.
func (n *Network) Moves(s State) []Move {
	return n.moves[s]
}

// Len returns the number of recorded moves.
func (n *Network) Len() int {
	total := 0
	for _, ms := range n.moves {
		total += len(ms)
	}
	return total
}

// AddReach marks s as a state from which agent handle can still reach its target.
// Once any reach state is recorded the search only expands marked states.
func (n *Network) AddReach(handle int, s State) {
	if n.reach == nil {
		n.reach = make(map[int]map[State]bool)
	}
	if n.reach[handle] == nil {
		n.reach[handle] = make(map[State]bool)
	}
	n.reach[handle][s] = true
}

// Pruned reports whether reachability data was recorded.
func (n *Network) Pruned() bool {
	return n.reach != nil
}

// Reaches reports whether handle may expand s. Without reachability data every state
// may be expanded.
func (n *Network) Reaches(handle int, s State) bool {
	if n.reach == nil {
		return true
	}
	return n.reach[handle][s]
}
