package ui

import (
	"fmt"
	"strings"

	"rasch/internal/direction"
	"rasch/internal/rail"
)

const (
	sideN = 1 << iota
	sideE
	sideS
	sideW
)

var trackGlyphs = map[int]string{
	sideN | sideS:                 "│",
	sideE | sideW:                 "─",
	sideN | sideE:                 "└",
	sideN | sideW:                 "┘",
	sideS | sideE:                 "┌",
	sideS | sideW:                 "┐",
	sideN | sideE | sideS:         "├",
	sideN | sideS | sideW:         "┤",
	sideE | sideS | sideW:         "┬",
	sideN | sideE | sideW:         "┴",
	sideN | sideE | sideS | sideW: "┼",
	sideN:                         "╵",
	sideE:                         "╶",
	sideS:                         "╷",
	sideW:                         "╴",
}

var headingGlyphs = map[direction.Direction]string{
	direction.North: "▲",
	direction.East:  "▶",
	direction.South: "▼",
	direction.West:  "◀",
}

// Sides returns the cell sides touched by any transition of code as a bit set.
// An agent facing entry came in through the opposite side.
func Sides(code rail.Transitions) int {
	sides := 0
	for _, entry := range direction.All {
		exits := code.Exits(entry)
		if len(exits) == 0 {
			continue
		}
		sides |= 1 << uint(direction.Opposite(entry))
		for _, exit := range exits {
			sides |= 1 << uint(exit)
		}
	}
	return sides
}

// TrackGlyph returns the box-drawing character for a cell code.
func TrackGlyph(code rail.Transitions) string {
	if code == 0 {
		return "·"
	}
	if g, ok := trackGlyphs[Sides(code)]; ok {
		return g
	}
	return "?"
}

// RenderGrid draws the grid with agents from snapshots on top. Agents are
// drawn as their handle followed by a heading arrow; open targets as ◎.
func RenderGrid(env *rail.Env, agents []rail.Snapshot, styles Styles) string {
	byCell := map[rail.Position]rail.Snapshot{}
	open := map[int]bool{}
	for _, a := range agents {
		if a.Position != nil {
			byCell[*a.Position] = a
		}
		if a.State != rail.Done {
			open[a.Handle] = true
		}
	}
	targets := map[rail.Position]int{}
	for _, a := range env.Agents {
		if open[a.Handle] || len(agents) == 0 {
			targets[a.Target] = a.Handle
		}
	}

	var sb strings.Builder
	for r := 0; r < env.Grid.Height; r++ {
		for c := 0; c < env.Grid.Width; c++ {
			p := rail.Position{Row: r, Col: c}
			code := env.Grid.At(p)
			a, occupied := byCell[p]
			target, isTarget := targets[p]
			switch {
			case occupied:
				sb.WriteString(styles.AgentStyle(a.Handle).Render(fmt.Sprintf("%d%s", a.Handle%10, headingGlyphs[a.Heading])))
			case isTarget:
				sb.WriteString(styles.AgentStyle(target).Render("◎") + " ")
			case code == 0:
				sb.WriteString(styles.Empty.Render("·") + " ")
			default:
				sb.WriteString(styles.Track.Render(TrackGlyph(code)) + " ")
			}
		}
		if r < env.Grid.Height-1 {
			sb.WriteString("\n")
		}
	}
	return styles.Board.Render(sb.String())
}

// AgentLines describes each agent on one line.
func AgentLines(agents []rail.Snapshot, styles Styles) string {
	lines := make([]string, 0, len(agents))
	for _, a := range agents {
		where := "off grid"
		if a.Position != nil {
			where = a.Position.String()
		}
		state := styles.Body.Render(a.State.String())
		if a.State == rail.Done {
			state = styles.Success.Render(fmt.Sprintf("%s at step %d", a.State, a.ArrivedAt))
		}
		lines = append(lines, fmt.Sprintf("%s %s facing %s  %s",
			styles.AgentStyle(a.Handle).Render(fmt.Sprintf("agent %d", a.Handle)),
			where, a.Heading, state))
	}
	return strings.Join(lines, "\n")
}
