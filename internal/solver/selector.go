package solver

import (
	"fmt"
	"math"
	"sort"

	"go.uber.org/zap"

	"rasch/internal/encoding"
	"rasch/internal/rail"
)

// ActionTable maps agent handle to step to action. Steps count from the first step
// after the agent is placed on the grid.
type ActionTable map[int]map[int]rail.Action

// Set records one action, overwriting any previous one at the same step.
func (t ActionTable) Set(handle, step int, a rail.Action) {
	steps, ok := t[handle]
	if !ok {
		steps = make(map[int]rail.Action)
		t[handle] = steps
	}
	steps[step] = a
}

// Handles returns the agents in the table in ascending order.
func (t ActionTable) Handles() []int {
	handles := make([]int, 0, len(t))
	for h := range t {
		handles = append(handles, h)
	}
	sort.Ints(handles)
	return handles
}

// Steps returns the recorded steps of an agent in ascending order.
func (t ActionTable) Steps(handle int) []int {
	steps := make([]int, 0, len(t[handle]))
	for k := range t[handle] {
		steps = append(steps, k)
	}
	sort.Ints(steps)
	return steps
}

// Paths maps agent handle to the cells it visits, in step order.
type Paths map[int][]rail.Position

// Selector keeps the smallest model seen so far. Use Observe as the Solve callback.
type Selector struct {
	logger   *zap.Logger
	bestSize int
	best     *Model
	table    ActionTable
	paths    Paths
	models   [][]string
}

// NewSelector returns a selector with no model.
func NewSelector(logger *zap.Logger) *Selector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Selector{
		logger:   logger,
		bestSize: math.MaxInt,
		table:    ActionTable{},
		paths:    Paths{},
	}
}

// Observe records m for audit and replaces the best model when m is strictly smaller.
// Ties keep the earlier model.
func (s *Selector) Observe(m Model) error {
	s.models = append(s.models, m.Facts)
	if m.Size >= s.bestSize {
		return nil
	}
	table, paths, err := decode(m.Facts)
	if err != nil {
		return fmt.Errorf("model %d: %w", m.Number, err)
	}
	s.logger.Debug("smaller model found",
		zap.Int("model", m.Number),
		zap.Int("previous_size", s.bestSize),
		zap.Int("size", m.Size))
	s.bestSize = m.Size
	best := m
	s.best = &best
	s.table = table
	s.paths = paths
	return nil
}

// Best returns the retained model.
func (s *Selector) Best() (Model, bool) {
	if s.best == nil {
		return Model{}, false
	}
	return *s.best, true
}

// ActionTable returns the actions of the retained model. It is empty when no model
// was observed.
func (s *Selector) ActionTable() ActionTable {
	return s.table
}

// Paths returns the agent paths of the retained model.
func (s *Selector) Paths() Paths {
	return s.paths
}

// Models returns every observed model in arrival order.
func (s *Selector) Models() [][]string {
	return s.models
}

// Artifact packages the selection for persistence.
func (s *Selector) Artifact() Artifact {
	models := s.models
	if models == nil {
		models = [][]string{}
	}
	return Artifact{
		Solution: Solution{AgentPaths: s.paths, AgentActions: s.table},
		Models:   models,
	}
}

type hop struct {
	step     int
	from, to rail.Position
}

// decode reads agent_action(H,A,K) and trans(H,(R,C),(R2,C2),K) facts. Only those
// two predicates are parsed; every other fact is opaque and skipped without looking
// at its arguments. A malformed agent_action fails the model. A trans fact that is
// not in the expected shape is skipped, since paths are informational.
func decode(facts []string) (ActionTable, Paths, error) {
	table := ActionTable{}
	hops := map[int][]hop{}
	for _, line := range facts {
		switch encoding.Predicate(line) {
		case "agent_action":
			h, action, k, err := decodeAction(line)
			if err != nil {
				return nil, nil, fmt.Errorf("%s: %w", line, err)
			}
			table.Set(h, k, action)
		case "trans":
			h, x, ok := decodeHop(line)
			if ok {
				hops[h] = append(hops[h], x)
			}
		}
	}

	paths := Paths{}
	for h, hs := range hops {
		sort.Slice(hs, func(i, j int) bool { return hs[i].step < hs[j].step })
		path := []rail.Position{hs[0].from}
		for _, x := range hs {
			path = append(path, x.to)
		}
		paths[h] = path
	}
	return table, paths, nil
}

func decodeAction(line string) (handle int, action rail.Action, step int, err error) {
	f, err := encoding.ParseFact(line)
	if err != nil {
		return 0, 0, 0, err
	}
	if len(f.Args) != 3 {
		return 0, 0, 0, fmt.Errorf("agent_action takes 3 arguments, got %d", len(f.Args))
	}
	v, err := ints(f.Args)
	if err != nil {
		return 0, 0, 0, err
	}
	action = rail.Action(v[1])
	if !action.Valid() {
		return 0, 0, 0, fmt.Errorf("unknown action %d", v[1])
	}
	return v[0], action, v[2], nil
}

func decodeHop(line string) (int, hop, bool) {
	f, err := encoding.ParseFact(line)
	if err != nil || len(f.Args) != 4 {
		return 0, hop{}, false
	}
	h, err := f.Args[0].Value()
	if err != nil {
		return 0, hop{}, false
	}
	k, err := f.Args[3].Value()
	if err != nil {
		return 0, hop{}, false
	}
	from, err := position(f.Args[1])
	if err != nil {
		return 0, hop{}, false
	}
	to, err := position(f.Args[2])
	if err != nil {
		return 0, hop{}, false
	}
	return h, hop{step: k, from: from, to: to}, true
}

func ints(args []encoding.Term) ([]int, error) {
	out := make([]int, len(args))
	for i, a := range args {
		v, err := a.Value()
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func position(t encoding.Term) (rail.Position, error) {
	if t.Kind != encoding.Tuple || len(t.Ints) != 2 {
		return rail.Position{}, fmt.Errorf("term %s is not a position", t)
	}
	return rail.Position{Row: t.Ints[0], Col: t.Ints[1]}, nil
}
