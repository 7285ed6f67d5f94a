// Package rail implements the grid rail environment that schedules are replayed on.
//
// The model follows the Flatland conventions: each cell carries a 16-bit transition
// code made of four nibbles, one per orientation the agent is facing when it is in
// the cell (North in the highest nibble). Inside a nibble, bit 3-j marks that the
// agent may leave the cell heading in direction j.
package rail

import (
	"fmt"

	"rasch/internal/direction"
)

// Position is a (row, col) grid coordinate.
type Position struct {
	Row int `json:"row" yaml:"row"`
	Col int `json:"col" yaml:"col"`
}

// String renders the position as a fact tuple, e.g. "(1,2)".
func (p Position) String() string {
	return fmt.Sprintf("(%d,%d)", p.Row, p.Col)
}

// Step returns the neighbouring position in direction d.
func (p Position) Step(d direction.Direction) Position {
	dr, dc := direction.Delta(d)
	return Position{Row: p.Row + dr, Col: p.Col + dc}
}

// Transitions is the 16-bit connectivity code of a single cell.
type Transitions uint16

// Nibble extracts the exit mask for an agent facing entry.
func (t Transitions) Nibble(entry direction.Direction) uint8 {
	return uint8(t>>(12-4*uint(entry))) & 0xF
}

// Allows reports whether an agent facing entry may leave heading exit.
func (t Transitions) Allows(entry, exit direction.Direction) bool {
	return (t.Nibble(entry)>>(3-uint(exit)))&1 == 1
}

// Exits lists the reachable exit directions for entry in N, E, S, W order.
func (t Transitions) Exits(entry direction.Direction) []direction.Direction {
	var exits []direction.Direction
	for _, exit := range direction.All {
		if t.Allows(entry, exit) {
			exits = append(exits, exit)
		}
	}
	return exits
}

// Count returns the number of reachable exits for entry.
func (t Transitions) Count(entry direction.Direction) int {
	n := 0
	for m := t.Nibble(entry); m != 0; m &= m - 1 {
		n++
	}
	return n
}

// WithTransition returns t with the entry -> exit bit set.
func (t Transitions) WithTransition(entry, exit direction.Direction) Transitions {
	return t | Transitions(1)<<(12-4*uint(entry)+3-uint(exit))
}

// Grid is a rectangular map of cell transition codes.
type Grid struct {
	Height int
	Width  int
	cells  [][]Transitions
}

// NewGrid builds a grid from row-major codes. Every row must have the same width.
func NewGrid(rows [][]uint16) (*Grid, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("grid has no rows")
	}
	width := len(rows[0])
	if width == 0 {
		return nil, fmt.Errorf("grid has no columns")
	}
	cells := make([][]Transitions, len(rows))
	for r, row := range rows {
		if len(row) != width {
			return nil, fmt.Errorf("grid row %d has %d columns, want %d", r, len(row), width)
		}
		cells[r] = make([]Transitions, width)
		for c, code := range row {
			cells[r][c] = Transitions(code)
		}
	}
	return &Grid{Height: len(rows), Width: width, cells: cells}, nil
}

// InBounds reports whether p lies inside the grid.
func (g *Grid) InBounds(p Position) bool {
	return p.Row >= 0 && p.Row < g.Height && p.Col >= 0 && p.Col < g.Width
}

// At returns the code at p, or 0 outside the grid.
func (g *Grid) At(p Position) Transitions {
	if !g.InBounds(p) {
		return 0
	}
	return g.cells[p.Row][p.Col]
}

// IsRail reports whether p is a cell that belongs to the network.
func (g *Grid) IsRail(p Position) bool {
	return g.At(p) != 0
}

// Rows returns a copy of the codes in row-major order.
func (g *Grid) Rows() [][]uint16 {
	rows := make([][]uint16, g.Height)
	for r := range g.cells {
		rows[r] = make([]uint16, g.Width)
		for c, t := range g.cells[r] {
			rows[r][c] = uint16(t)
		}
	}
	return rows
}

// CheckPathExists reports whether an agent placed on start facing dir can reach target
// by following transitions, ignoring other agents and time.
func (g *Grid) CheckPathExists(start Position, dir direction.Direction, target Position) bool {
	type node struct {
		pos Position
		dir direction.Direction
	}
	if start == target {
		return true
	}
	seen := map[node]bool{{start, dir}: true}
	queue := []node{{start, dir}}
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		for _, exit := range g.At(n.pos).Exits(n.dir) {
			next := node{n.pos.Step(exit), exit}
			if !g.IsRail(next.pos) || seen[next] {
				continue
			}
			if next.pos == target {
				return true
			}
			seen[next] = true
			queue = append(queue, next)
		}
	}
	return false
}
