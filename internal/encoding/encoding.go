// Package encoding turns a rail environment into the fact lines consumed by rule-sets.
package encoding

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"rasch/internal/direction"
	"rasch/internal/rail"
)

// CellFact states that an agent facing Entry in the cell at Position may leave
// towards any of Exits.
type CellFact struct {
	Position rail.Position
	Entry    direction.Direction
	Exits    []direction.Direction
	// Synthesized marks the extra self-facing fact added for dead ends. It lets an
	// agent that starts on a dead end depart in the direction it is facing.
	Synthesized bool
}

func (f CellFact) String() string {
	exits := make([]string, len(f.Exits))
	for i, x := range f.Exits {
		exits[i] = fmt.Sprint(int(x))
	}
	return fmt.Sprintf("cell(%s,%d,(%s)).", f.Position, int(f.Entry), strings.Join(exits, ";"))
}

// Diagnostic describes a non-zero cell code whose connectivity looks wrong.
// Diagnostics never change the emitted facts.
type Diagnostic struct {
	Position rail.Position
	Code     uint16
	Reason   string
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("cell %s code %#04x: %s", d.Position, d.Code, d.Reason)
}

// EncodeCell decodes one cell code. Code 0 yields nothing.
func EncodeCell(pos rail.Position, code uint16) []CellFact {
	var facts []CellFact
	if code == 0 {
		return nil
	}
	for _, entry := range direction.All {
		nibble := (code >> (12 - 4*uint(entry))) & 0xF
		var exits []direction.Direction
		deadEnd := false
		for _, exit := range direction.All {
			if (nibble>>(3-uint(exit)))&1 == 0 {
				continue
			}
			exits = append(exits, exit)
			if exit == direction.Opposite(entry) {
				deadEnd = true
			}
		}
		if len(exits) == 0 {
			continue
		}
		facts = append(facts, CellFact{Position: pos, Entry: entry, Exits: exits})
		if deadEnd {
			facts = append(facts, CellFact{
				Position:    pos,
				Entry:       entry,
				Exits:       []direction.Direction{entry},
				Synthesized: true,
			})
		}
	}
	return facts
}

// Reencode rebuilds a cell code from its facts. Synthesized facts are ignored, so
// Reencode(EncodeCell(p, c)) == c for every code.
func Reencode(facts []CellFact) uint16 {
	var t rail.Transitions
	for _, f := range facts {
		if f.Synthesized {
			continue
		}
		for _, x := range f.Exits {
			t = t.WithTransition(f.Entry, x)
		}
	}
	return uint16(t)
}

// EncodeGrid decodes every rail cell in row-major order and reports suspicious codes.
func EncodeGrid(g *rail.Grid) ([]CellFact, []Diagnostic) {
	var (
		facts []CellFact
		diags []Diagnostic
	)
	for r, row := range g.Rows() {
		for c, code := range row {
			pos := rail.Position{Row: r, Col: c}
			facts = append(facts, EncodeCell(pos, code)...)
			diags = append(diags, diagnose(g, pos, code)...)
		}
	}
	return facts, diags
}

func diagnose(g *rail.Grid, pos rail.Position, code uint16) []Diagnostic {
	if code == 0 {
		return nil
	}
	var diags []Diagnostic
	t := rail.Transitions(code)
	for _, entry := range direction.All {
		exits := t.Exits(entry)
		if len(exits) > 1 && t.Allows(entry, direction.Opposite(entry)) {
			diags = append(diags, Diagnostic{pos, code, fmt.Sprintf("entry %s mixes a dead end with other exits", entry)})
		}
		for _, x := range exits {
			if !g.InBounds(pos.Step(x)) {
				diags = append(diags, Diagnostic{pos, code, fmt.Sprintf("entry %s exits %s off the grid", entry, x)})
			}
		}
	}
	return diags
}

// ScheduleFact is the task of one agent.
type ScheduleFact struct {
	Handle            int
	Start             rail.Position
	Target            rail.Position
	Direction         direction.Direction
	EarliestDeparture int
}

func (s ScheduleFact) String() string {
	return fmt.Sprintf("schedule(%d,%s,%s,%d,%d).", s.Handle, s.Start, s.Target, int(s.Direction), s.EarliestDeparture)
}

// EncodeSchedule produces exactly one fact per agent. Reachability is not checked.
func EncodeSchedule(agents []*rail.Agent) []ScheduleFact {
	out := make([]ScheduleFact, len(agents))
	for i, a := range agents {
		out[i] = ScheduleFact{
			Handle:            a.Handle,
			Start:             a.Start,
			Target:            a.Target,
			Direction:         a.Direction,
			EarliestDeparture: a.EarliestDeparture,
		}
	}
	return out
}

// DiffFacts lists the row/column offset of every direction.
func DiffFacts() []string {
	lines := make([]string, 0, len(direction.All))
	for _, d := range direction.All {
		dr, dc := direction.Delta(d)
		lines = append(lines, fmt.Sprintf("diff(%d,%d,%d).", int(d), dr, dc))
	}
	return lines
}

// LimitFact bounds the number of steps a plan may use.
func LimitFact(horizon int) string {
	return fmt.Sprintf("limit(%d).", horizon)
}

// Instance is the full fact set for one environment.
type Instance struct {
	Lines       []string
	Diagnostics []Diagnostic
}

// GenerateInstance renders limit, schedule, cell and diff facts with section comments.
func GenerateInstance(env *rail.Env, horizon int) Instance {
	lines := []string{LimitFact(horizon), "", "% schedule(handle,start,target,direction,earliest_departure)"}
	for _, s := range EncodeSchedule(env.Agents) {
		lines = append(lines, s.String())
	}

	lines = append(lines, "", "% cell((row,col),facing,(exits))")
	cells, diags := EncodeGrid(env.Grid)
	for _, c := range cells {
		lines = append(lines, c.String())
	}

	lines = append(lines, "", "% diff(direction,row_delta,col_delta)")
	lines = append(lines, DiffFacts()...)
	return Instance{Lines: lines, Diagnostics: diags}
}

// InstanceName is the file name used for a persisted instance.
func InstanceName(encoding, environment string) string {
	return fmt.Sprintf("%s_%s_instance.lp", encoding, environment)
}

// WriteInstance stores lines under dir and returns the file path.
func WriteInstance(dir, encoding, environment string, lines []string) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create instance dir: %w", err)
	}
	path := filepath.Join(dir, InstanceName(encoding, environment))
	data := strings.Join(lines, "\n") + "\n"
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		return "", fmt.Errorf("write instance %s: %w", path, err)
	}
	return path, nil
}

// ReadInstance loads lines previously written by WriteInstance.
func ReadInstance(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read instance: %w", err)
	}
	return strings.Split(strings.TrimRight(string(data), "\n"), "\n"), nil
}
