// Package direction models the four cardinal orientations used on the rail grid.
//
// Directions are cyclic: North is 0 and every clockwise 90 degree rotation adds one,
// so rotation is addition modulo four.
package direction

import "fmt"

// Direction is one of the four cardinal orientations.
type Direction int

const (
	North Direction = iota // n
	East                   // e
	South                  // s
	West                   // w
)

// All lists the directions in index order.
var All = [4]Direction{North, East, South, West}

var names = [4]string{"n", "e", "s", "w"}

var deltas = [4][2]int{
	{-1, 0}, // North
	{0, 1},  // East
	{1, 0},  // South
	{0, -1}, // West
}

// Valid reports whether d is one of the four cardinal directions.
func (d Direction) Valid() bool {
	return d >= North && d <= West
}

// String returns the single-letter name used in logs and rule-set comments.
func (d Direction) String() string {
	if !d.Valid() {
		return fmt.Sprintf("Direction(%d)", int(d))
	}
	return names[d]
}

// Rotate turns d clockwise by degrees. Only multiples of 90 are accepted;
// negative values rotate counter-clockwise.
func Rotate(d Direction, degrees int) (Direction, error) {
	if degrees%90 != 0 {
		return d, fmt.Errorf("rotate %s by %d degrees: not a multiple of 90", d, degrees)
	}
	return Normalize(int(d) + degrees/90), nil
}

// Left is the direction after a 90 degree counter-clockwise turn.
func Left(d Direction) Direction {
	return Normalize(int(d) - 1)
}

// Right is the direction after a 90 degree clockwise turn.
func Right(d Direction) Direction {
	return Normalize(int(d) + 1)
}

// Opposite returns the reverse of d.
func Opposite(d Direction) Direction {
	return Normalize(int(d) + 2)
}

// Delta returns the (row, col) unit offset of one step in direction d.
func Delta(d Direction) (int, int) {
	v := deltas[Normalize(int(d))]
	return v[0], v[1]
}

// Normalize maps any integer onto 0..3.
func Normalize(v int) Direction {
	return Direction(((v % 4) + 4) % 4)
}

// Parse accepts either the numeric form ("0".."3") or a single-letter name.
func Parse(s string) (Direction, error) {
	for i, n := range names {
		if s == n {
			return Direction(i), nil
		}
	}
	if len(s) == 1 && s[0] >= '0' && s[0] <= '3' {
		return Direction(s[0] - '0'), nil
	}
	return North, fmt.Errorf("unknown direction %q", s)
}
