// Package bench runs encodings against environments in parallel and collects
// solver statistics and terminal states.
package bench

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"rasch/internal/config"
	"rasch/internal/logging"
	"rasch/internal/pipeline"
	"rasch/internal/solver"
	"rasch/internal/store"
)

// Entry is the outcome of one encoding on one environment.
type Entry struct {
	RunID   string         `json:"run_id,omitempty"`
	State   pipeline.State `json:"fl_result"`
	Summary solver.Summary `json:"summary"`
	Solving solver.Solving `json:"solving"`
	Seconds float64        `json:"duration_seconds"`
	Error   string         `json:"error,omitempty"`
}

// Stats maps encoding to environment to entry.
type Stats map[string]map[string]Entry

// Report is the result of one batch.
type Report struct {
	Name  string
	Stats Stats
	Tally map[pipeline.State]int
	// Path is where the stats file was written, empty when not saved.
	Path string
}

// Option configures a Benchmark.
type Option func(*Benchmark)

// WithStore records every entry, skipped ones included, in s.
func WithStore(s *store.Store) Option {
	return func(b *Benchmark) { b.store = s }
}

// WithParallelism overrides the configured number of concurrent runs.
func WithParallelism(n int) Option {
	return func(b *Benchmark) { b.parallelism = n }
}

// Benchmark runs batches of pipelines.
type Benchmark struct {
	runner      *pipeline.Runner
	cfg         *config.Config
	logger      *zap.Logger
	metrics     *Metrics
	store       *store.Store
	parallelism int
	timeout     time.Duration
}

// New creates a benchmark around runner.
func New(runner *pipeline.Runner, logger *zap.Logger, opts ...Option) *Benchmark {
	cfg := runner.Config()
	b := &Benchmark{
		runner:      runner,
		cfg:         cfg,
		logger:      logging.For(logger, logging.CategoryBench),
		metrics:     NewMetrics(),
		parallelism: cfg.Bench.Parallelism,
		timeout:     cfg.GetBenchTimeout(),
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.parallelism < 1 {
		b.parallelism = 1
	}
	return b
}

// Metrics returns the collectors updated by every batch.
func (b *Benchmark) Metrics() *Metrics {
	return b.metrics
}

type pair struct {
	encoding    string
	environment string
}

// Environments benchmarks one encoding on every environment.
func (b *Benchmark) Environments(ctx context.Context, encoding string, limit int, save bool) (*Report, error) {
	envs, err := b.list(b.cfg.EnvironmentsPath, ".yaml")
	if err != nil {
		return nil, err
	}
	pairs := make([]pair, 0, len(envs))
	for _, env := range envs {
		pairs = append(pairs, pair{encoding: encoding, environment: env})
	}
	return b.run(ctx, encoding, pairs, limit, save)
}

// Encodings benchmarks every encoding on one environment.
func (b *Benchmark) Encodings(ctx context.Context, environment string, limit int, save bool) (*Report, error) {
	encs, err := b.list(b.cfg.EncodingsPath, ".mg")
	if err != nil {
		return nil, err
	}
	pairs := make([]pair, 0, len(encs))
	for _, enc := range encs {
		pairs = append(pairs, pair{encoding: enc, environment: environment})
	}
	return b.run(ctx, environment, pairs, limit, save)
}

// All benchmarks every encoding on every environment.
func (b *Benchmark) All(ctx context.Context, limit int, save bool) (*Report, error) {
	encs, err := b.list(b.cfg.EncodingsPath, ".mg")
	if err != nil {
		return nil, err
	}
	envs, err := b.list(b.cfg.EnvironmentsPath, ".yaml")
	if err != nil {
		return nil, err
	}
	pairs := make([]pair, 0, len(encs)*len(envs))
	for _, enc := range encs {
		for _, env := range envs {
			pairs = append(pairs, pair{encoding: enc, environment: env})
		}
	}
	return b.run(ctx, "all", pairs, limit, save)
}

func (b *Benchmark) list(dir, ext string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", dir, err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ext {
			continue
		}
		names = append(names, strings.TrimSuffix(e.Name(), ext))
	}
	sort.Strings(names)
	return names, nil
}

func (b *Benchmark) run(ctx context.Context, name string, pairs []pair, limit int, save bool) (*Report, error) {
	b.logger.Info("benchmark started",
		zap.String("name", name),
		zap.Int("runs", len(pairs)),
		zap.Int("parallelism", b.parallelism))

	entries := make([]Entry, len(pairs))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(b.parallelism)
	for i, p := range pairs {
		g.Go(func() error {
			entry, err := b.runOne(gCtx, p, limit)
			if err != nil {
				return err
			}
			entries[i] = entry
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	report := &Report{Name: name, Stats: Stats{}, Tally: map[pipeline.State]int{}}
	for i, p := range pairs {
		if report.Stats[p.encoding] == nil {
			report.Stats[p.encoding] = map[string]Entry{}
		}
		report.Stats[p.encoding][p.environment] = entries[i]
		report.Tally[entries[i].State]++
	}

	if save {
		path, err := b.save(name, report.Stats)
		if err != nil {
			return nil, err
		}
		report.Path = path
		if b.cfg.Bench.MetricsFile != "" {
			if err := b.metrics.WriteTextfile(b.cfg.Bench.MetricsFile); err != nil {
				return nil, err
			}
		}
	}

	fields := []zap.Field{zap.String("name", name)}
	for _, s := range pipeline.States {
		fields = append(fields, zap.Int(string(s), report.Tally[s]))
	}
	b.logger.Info("benchmark finished", fields...)
	return report, nil
}

// runOne turns setup failures into skipped entries. Only cancellation of
// the batch aborts it.
func (b *Benchmark) runOne(ctx context.Context, p pair, limit int) (Entry, error) {
	start := time.Now()
	res, err := b.runner.Run(ctx, pipeline.Request{
		Encoding:    p.encoding,
		Environment: p.environment,
		Limit:       limit,
		Timeout:     b.timeout,
	})
	var entry Entry
	switch {
	case err != nil && ctx.Err() != nil:
		return Entry{}, ctx.Err()
	case err != nil:
		level := b.logger.Warn
		if errors.Is(err, solver.ErrRuleSetParse) {
			level = b.logger.Error
		}
		level("run skipped",
			zap.String("encoding", p.encoding),
			zap.String("environment", p.environment),
			zap.Error(err))
		entry = Entry{RunID: uuid.NewString(), State: pipeline.StateSkipped, Error: err.Error()}
	default:
		entry = Entry{
			RunID:   res.RunID,
			State:   res.State,
			Summary: res.Statistics.Summary,
			Solving: res.Statistics.Solving,
		}
	}
	elapsed := time.Since(start)
	entry.Seconds = elapsed.Seconds()
	b.metrics.Observe(p.encoding, entry, elapsed)

	if b.store != nil {
		run := &store.Run{
			ID:           entry.RunID,
			Encoding:     p.encoding,
			Environment:  p.environment,
			State:        string(entry.State),
			TotalSeconds: entry.Seconds,
		}
		if res != nil {
			run = pipeline.RunRecord(res)
		}
		if err := b.store.Record(run); err != nil {
			b.logger.Warn("failed to record run", zap.Error(err))
		}
	}
	return entry, nil
}

func (b *Benchmark) save(name string, stats Stats) (string, error) {
	dir := b.cfg.StatisticsOutputPath
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create statistics dir: %w", err)
	}
	data, err := json.MarshalIndent(stats, "", "    ")
	if err != nil {
		return "", fmt.Errorf("encode statistics: %w", err)
	}
	path := filepath.Join(dir, name+"_stats.json")
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("write statistics: %w", err)
	}
	b.logger.Info("statistics saved", zap.String("path", path))
	return path, nil
}

// LoadStats reads a stats file written by a batch.
func LoadStats(path string) (Stats, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read statistics: %w", err)
	}
	var stats Stats
	if err := json.Unmarshal(data, &stats); err != nil {
		return nil, fmt.Errorf("decode statistics %s: %w", path, err)
	}
	return stats, nil
}
