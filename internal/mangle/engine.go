// Package mangle implements solver.Engine on top of the Google Mangle Datalog engine.
//
// The rule-set derives the movement relation of the grid (and optionally backwards
// reachability) from the instance facts. The plan search then runs over the derived
// relation and reports each distinct plan as a model.
package mangle

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"sync"
	"time"

	"github.com/google/mangle/analysis"
	"github.com/google/mangle/ast"
	_ "github.com/google/mangle/builtin"
	mengine "github.com/google/mangle/engine"
	"github.com/google/mangle/factstore"
	"github.com/google/mangle/parse"
	"go.uber.org/zap"

	"rasch/internal/encoding"
	"rasch/internal/search"
	"rasch/internal/solver"
)

var (
	movePredicate  = ast.PredicateSym{Symbol: "move", Arity: 7}
	reachPredicate = ast.PredicateSym{Symbol: "reach", Arity: 4}
)

// Config holds engine limits.
type Config struct {
	// FactLimit caps the number of derived facts. Zero means unlimited.
	FactLimit int
	// MaxModels caps the number of reported models. Zero means no cap beyond the
	// number of search preference orders.
	MaxModels int
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		FactLimit: 500000,
		MaxModels: 4,
	}
}

// Engine evaluates one rule-set against one instance. It is not reusable across
// concurrent runs; build one per pipeline.
type Engine struct {
	config Config
	logger *zap.Logger

	mu          sync.Mutex
	ruleSet     string
	programInfo *analysis.ProgramInfo
	atoms       []ast.Atom
	tasks       []search.Task
	horizon     int
	stats       solver.Statistics
}

var _ solver.Engine = (*Engine)(nil)

// NewEngine creates an engine with no program loaded.
func NewEngine(cfg Config, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{config: cfg, logger: logger}
}

// Load parses and analyses the rule-set file and converts the instance facts.
func (e *Engine) Load(ctx context.Context, ruleSet string, facts []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	src, err := os.ReadFile(ruleSet)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("rule-set %s: %w", ruleSet, solver.ErrResourceNotFound)
		}
		return fmt.Errorf("read rule-set %s: %w", ruleSet, err)
	}

	unit, err := parse.Unit(bytes.NewReader(src))
	if err != nil {
		return fmt.Errorf("rule-set %s: %w: %v", ruleSet, solver.ErrRuleSetParse, err)
	}
	programInfo, err := analysis.AnalyzeOneUnit(unit, nil)
	if err != nil {
		return fmt.Errorf("rule-set %s: %w: %v", ruleSet, solver.ErrRuleSetParse, err)
	}
	if _, ok := programInfo.Decls[movePredicate]; !ok {
		return fmt.Errorf("rule-set %s: %w: no %s/%d relation", ruleSet, solver.ErrRuleSetParse, movePredicate.Symbol, movePredicate.Arity)
	}

	parsed, err := encoding.ParseLines(facts)
	if err != nil {
		return fmt.Errorf("instance: %w: %v", solver.ErrRuleSetParse, err)
	}
	inst, err := convert(parsed)
	if err != nil {
		return fmt.Errorf("instance: %w: %v", solver.ErrRuleSetParse, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.ruleSet = ruleSet
	e.programInfo = programInfo
	e.atoms = inst.atoms
	e.tasks = inst.tasks
	e.horizon = inst.horizon
	e.stats = solver.Statistics{}
	e.stats.Grounding.Facts = len(inst.atoms)

	e.logger.Debug("rule-set loaded",
		zap.String("rule_set", ruleSet),
		zap.Int("rules", len(programInfo.Rules)),
		zap.Int("facts", len(inst.atoms)),
		zap.Int("agents", len(inst.tasks)),
		zap.Int("horizon", inst.horizon))
	return nil
}

// Solve evaluates the program, builds the movement network and reports plans.
func (e *Engine) Solve(ctx context.Context, onModel func(solver.Model) error) error {
	e.mu.Lock()
	programInfo, atoms, tasks, horizon := e.programInfo, e.atoms, e.tasks, e.horizon
	e.mu.Unlock()
	if programInfo == nil {
		return solver.ErrNotLoaded
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	start := time.Now()
	store := factstore.NewSimpleInMemoryStore()
	for _, a := range atoms {
		store.Add(a)
	}

	limit := e.config.FactLimit
	if limit <= 0 {
		limit = math.MaxInt32
	}
	evalStats, err := mengine.EvalProgramWithStats(programInfo, store, mengine.WithCreatedFactLimit(limit))
	if err != nil {
		return fmt.Errorf("evaluate rule-set: %w", err)
	}
	ground := time.Since(start)

	net := search.NewNetwork()
	moves, err := readMoves(store, net)
	if err != nil {
		return err
	}
	reaches := 0
	if _, ok := programInfo.Decls[reachPredicate]; ok {
		if reaches, err = readReach(store, net); err != nil {
			return err
		}
	}
	e.logger.Debug("rule-set evaluated",
		zap.Int("strata", len(evalStats.Strata)),
		zap.Int("moves", moves),
		zap.Int("reach", reaches),
		zap.Duration("ground", ground))

	models := 0
	searchStats, err := search.Solve(ctx, search.Problem{Network: net, Tasks: tasks, Horizon: horizon},
		search.Options{MaxModels: e.config.MaxModels},
		func(p search.Plan) error {
			models++
			return onModel(solver.NewModel(models, p.Facts()))
		})

	e.mu.Lock()
	e.stats.Grounding.Strata = len(evalStats.Strata)
	e.stats.Grounding.Derived = moves + reaches
	e.stats.Summary.Times = solver.Times{
		Total:  time.Since(start).Seconds(),
		Ground: ground.Seconds(),
		Solve:  (time.Since(start) - ground).Seconds(),
	}
	e.stats.Summary.Models.Enumerated = models
	e.stats.Solving.Solvers = solver.Solvers{Choices: searchStats.Expanded, Conflicts: searchStats.Conflicts}
	e.mu.Unlock()
	return err
}

// Statistics returns the counters of the last Solve.
func (e *Engine) Statistics() solver.Statistics {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stats
}

func readMoves(store factstore.FactStore, net *search.Network) (int, error) {
	n := 0
	err := store.GetFacts(ast.NewQuery(movePredicate), func(a ast.Atom) error {
		v, err := numbers(a)
		if err != nil {
			return err
		}
		from := search.State{Pos: pos(v[0], v[1]), Heading: dir(v[2])}
		to := search.State{Pos: pos(v[4], v[5]), Heading: dir(v[6])}
		net.AddMove(from, action(v[3]), to)
		n++
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", movePredicate.Symbol, err)
	}
	return n, nil
}

func readReach(store factstore.FactStore, net *search.Network) (int, error) {
	n := 0
	err := store.GetFacts(ast.NewQuery(reachPredicate), func(a ast.Atom) error {
		v, err := numbers(a)
		if err != nil {
			return err
		}
		net.AddReach(int(v[0]), search.State{Pos: pos(v[1], v[2]), Heading: dir(v[3])})
		n++
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", reachPredicate.Symbol, err)
	}
	return n, nil
}

func numbers(a ast.Atom) ([]int64, error) {
	out := make([]int64, len(a.Args))
	for i, arg := range a.Args {
		c, ok := arg.(ast.Constant)
		if !ok || c.Type != ast.NumberType {
			return nil, fmt.Errorf("%s argument %d is not a number: %v", a.Predicate.Symbol, i, arg)
		}
		out[i] = c.NumValue
	}
	return out, nil
}
