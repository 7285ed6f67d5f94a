// Package pipeline runs one encoding against one environment end to end:
// instance generation, solving, artifact persistence and replay.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"rasch/internal/config"
	"rasch/internal/encoding"
	"rasch/internal/logging"
	"rasch/internal/mangle"
	"rasch/internal/rail"
	"rasch/internal/replay"
	"rasch/internal/solver"
	"rasch/internal/store"
)

// State is the terminal outcome of a run.
type State string

const (
	StateSuccess        State = "success"
	StateNoActions      State = "no actions"
	StateInvalidActions State = "invalid actions"
	StateTimeout        State = "timeout"
	StateSkipped        State = "skipped"
)

// States lists every terminal state in reporting order.
var States = []State{StateSuccess, StateNoActions, StateInvalidActions, StateTimeout, StateSkipped}

// Request names what to run.
type Request struct {
	Encoding    string
	Environment string
	// Env, when set, is used instead of loading Environment from disk.
	// The pipeline resets it before replay.
	Env *rail.Env
	// Limit is the horizon. Zero falls back to the environment's episode
	// length, then to the configured default.
	Limit int
	// Timeout bounds solving. Zero means no bound.
	Timeout time.Duration
	OnFrame func(replay.Frame)
}

// Result is what one run produced.
type Result struct {
	RunID         string
	Encoding      string
	Environment   string
	State         State
	Statistics    solver.Statistics
	Selection     solver.Artifact
	Replay        replay.Result
	InstancePath  string
	ArtifactPath  string
	Inconsistency string
	Diagnostics   []encoding.Diagnostic
	Duration      time.Duration
}

// EngineFactory builds a fresh engine per run.
type EngineFactory func() solver.Engine

// Option configures a Runner.
type Option func(*Runner)

// WithEngineFactory replaces the default Mangle engine.
func WithEngineFactory(f EngineFactory) Option {
	return func(r *Runner) { r.newEngine = f }
}

// WithStore records every finished run in s.
func WithStore(s *store.Store) Option {
	return func(r *Runner) { r.store = s }
}

// Runner executes pipelines with a shared configuration.
type Runner struct {
	cfg       *config.Config
	logger    *zap.Logger
	newEngine EngineFactory
	store     *store.Store
}

// NewRunner creates a runner. A nil cfg uses the defaults.
func NewRunner(cfg *config.Config, logger *zap.Logger, opts ...Option) *Runner {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Runner{cfg: cfg, logger: logging.For(logger, logging.CategoryPipeline)}
	solverLogger := logging.For(logger, logging.CategorySolver)
	r.newEngine = func() solver.Engine {
		return mangle.NewEngine(mangle.Config{
			FactLimit: cfg.Solver.FactLimit,
			MaxModels: cfg.Solver.MaxModels,
		}, solverLogger)
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Config returns the runner's configuration.
func (r *Runner) Config() *config.Config {
	return r.cfg
}

// Run executes one request. Missing files and rule-set parse failures are
// returned as errors; every other outcome is a State on the result.
func (r *Runner) Run(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()
	res := &Result{
		RunID:       uuid.NewString(),
		Encoding:    req.Encoding,
		Environment: req.Environment,
	}
	log := r.logger.With(
		zap.String("run_id", res.RunID),
		zap.String("encoding", req.Encoding),
		zap.String("environment", req.Environment))

	env := req.Env
	if env == nil {
		loaded, err := rail.Load(r.cfg.EnvironmentPath(req.Environment))
		if err != nil {
			log.Error("failed to load environment", zap.Error(err))
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("%w: %v", solver.ErrResourceNotFound, err)
			}
			return nil, err
		}
		env = loaded
	}
	env.Reset()

	horizon := r.horizon(req, env)
	inst := encoding.GenerateInstance(env, horizon)
	res.Diagnostics = inst.Diagnostics
	for _, d := range inst.Diagnostics {
		log.Warn("suspicious cell", zap.String("cell", d.Position.String()), zap.String("reason", d.Reason))
	}

	instancePath, err := encoding.WriteInstance(r.cfg.InstancesPath, req.Encoding, req.Environment, inst.Lines)
	if err != nil {
		return nil, err
	}
	res.InstancePath = instancePath
	log.Debug("instance written", zap.String("path", instancePath), zap.Int("horizon", horizon))

	eng := r.newEngine()
	if err := eng.Load(ctx, r.cfg.EncodingPath(req.Encoding), inst.Lines); err != nil {
		if errors.Is(err, solver.ErrRuleSetParse) {
			log.Error("parsing failed", zap.String("instance", instancePath), zap.Error(err))
		}
		return nil, err
	}

	sel := solver.NewSelector(logging.For(r.logger, logging.CategorySolver))
	timedOut, err := r.solve(ctx, eng, sel, req.Timeout)
	if err != nil {
		return nil, err
	}
	if timedOut {
		log.Warn("solving timed out", zap.Duration("timeout", req.Timeout))
		res.State = StateTimeout
		return r.finish(res, start), nil
	}

	res.Statistics = eng.Statistics()
	res.Selection = sel.Artifact()
	name := strings.TrimSuffix(encoding.InstanceName(req.Encoding, req.Environment), "_instance.lp")
	artifactPath, err := solver.SaveArtifact(r.cfg.SolverOutputPath, name, res.Selection)
	if err != nil {
		return nil, err
	}
	res.ArtifactPath = artifactPath

	table := sel.ActionTable()
	if len(table) == 0 {
		log.Warn("no actions generated, check the solver and rule-set")
		res.State = StateNoActions
		return r.finish(res, start), nil
	}

	validator := replay.NewValidator(logging.For(r.logger, logging.CategoryReplay))
	rep, err := validator.Run(ctx, env, table, replay.Options{Horizon: horizon, OnFrame: req.OnFrame})
	switch {
	case errors.Is(err, replay.ErrStepGap):
		log.Warn("invalid actions", zap.Error(err))
		res.State = StateInvalidActions
		res.Inconsistency = err.Error()
		return r.finish(res, start), nil
	case err != nil:
		return nil, err
	}
	res.Replay = rep
	if rep.Success {
		res.State = StateSuccess
	} else {
		log.Warn("invalid actions, check the actions the rule-set generates", zap.Int("steps", rep.Steps))
		res.State = StateInvalidActions
		res.Inconsistency = fmt.Sprintf("agents not done after %d steps", rep.Steps)
	}
	return r.finish(res, start), nil
}

func (r *Runner) horizon(req Request, env *rail.Env) int {
	switch {
	case req.Limit > 0:
		return req.Limit
	case env.MaxEpisodeSteps > 0:
		return env.MaxEpisodeSteps
	default:
		return r.cfg.DefaultLimit
	}
}

// solve runs the engine in its own goroutine so a deadline can abandon it.
// The selector is only read after Solve has returned.
func (r *Runner) solve(ctx context.Context, eng solver.Engine, sel *solver.Selector, timeout time.Duration) (bool, error) {
	solveCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		solveCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	done := make(chan error, 1)
	go func() {
		done <- eng.Solve(solveCtx, sel.Observe)
	}()

	select {
	case err := <-done:
		if err == nil {
			return false, nil
		}
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return true, nil
		}
		return false, err
	case <-solveCtx.Done():
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		return true, nil
	}
}

func (r *Runner) finish(res *Result, start time.Time) *Result {
	res.Duration = time.Since(start)
	r.logger.Info("run finished",
		zap.String("run_id", res.RunID),
		zap.String("state", string(res.State)),
		zap.Duration("duration", res.Duration))
	if r.store != nil {
		if err := r.store.Record(RunRecord(res)); err != nil {
			r.logger.Warn("failed to record run", zap.Error(err))
		}
	}
	return res
}

// RunRecord converts a result into its stored form.
func RunRecord(res *Result) *store.Run {
	run := &store.Run{
		ID:           res.RunID,
		Encoding:     res.Encoding,
		Environment:  res.Environment,
		State:        string(res.State),
		Models:       res.Statistics.Summary.Models.Enumerated,
		TotalSeconds: res.Statistics.Summary.Times.Total,
		SolveSeconds: res.Statistics.Summary.Times.Solve,
		Choices:      int64(res.Statistics.Solving.Solvers.Choices),
		Conflicts:    int64(res.Statistics.Solving.Solvers.Conflicts),
	}
	if len(res.Selection.Models) > 0 {
		best := len(res.Selection.Models[0])
		for _, m := range res.Selection.Models[1:] {
			if len(m) < best {
				best = len(m)
			}
		}
		run.BestSize = best
	}
	return run
}
