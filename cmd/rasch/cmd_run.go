package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"rasch/cmd/rasch/ui"
	"rasch/internal/bench"
	"rasch/internal/encoding"
	"rasch/internal/logging"
	"rasch/internal/pipeline"
	"rasch/internal/rail"
	"rasch/internal/replay"
)

// solveCmd runs one pipeline without rendering
var solveCmd = &cobra.Command{
	Use:   "solve [encoding] [environment] [limit]",
	Short: "Solve and replay one environment",
	Args:  cobra.MaximumNArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		render = false
		return runSingle(cmd, args)
	},
}

// instanceCmd writes the fact file for an environment
var instanceCmd = &cobra.Command{
	Use:   "instance [encoding] [environment] [limit]",
	Short: "Generate the instance facts for an environment",
	Args:  cobra.MaximumNArgs(3),
	RunE:  runInstance,
}

func runDefault(cmd *cobra.Command, args []string) error {
	if benchmarkMode != "" {
		return runBenchmark(cmd, args)
	}
	return runSingle(cmd, args)
}

func runSingle(cmd *cobra.Command, args []string) error {
	enc, envName, limit, err := target(args)
	if err != nil {
		return err
	}
	ctx, cancel := signalContext()
	defer cancel()

	var opts []pipeline.Option
	if s := openStore(); s != nil {
		defer s.Close()
		opts = append(opts, pipeline.WithStore(s))
	}
	runner := pipeline.NewRunner(cfg, logger, opts...)

	req := pipeline.Request{
		Encoding:    enc,
		Environment: envName,
		Limit:       limit,
		Timeout:     solveTimeout(),
	}
	if render {
		env, err := rail.Load(cfg.EnvironmentPath(envName))
		if err != nil {
			return err
		}
		req.Env = env
		req.OnFrame = frameRenderer(cmd, env)
	}

	res, err := runner.Run(ctx, req)
	if err != nil {
		return err
	}
	printResult(cmd, res)
	return nil
}

func frameRenderer(cmd *cobra.Command, env *rail.Env) func(replay.Frame) {
	styles := ui.DefaultStyles()
	delay := stepDelay
	if delay <= 0 {
		delay = cfg.GetStepDelay()
	}
	return func(f replay.Frame) {
		fmt.Fprintf(cmd.OutOrStdout(), "%s\n%s\n%s\n\n",
			styles.Title.Render(fmt.Sprintf("step %d", f.Step)),
			ui.RenderGrid(env, f.Agents, styles),
			ui.AgentLines(f.Agents, styles))
		time.Sleep(delay)
	}
}

func printResult(cmd *cobra.Command, res *pipeline.Result) {
	styles := ui.DefaultStyles()
	state := styles.Warning.Render(string(res.State))
	if res.State == pipeline.StateSuccess {
		state = styles.Success.Render(string(res.State))
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s on %s: %s\n", res.Encoding, res.Environment, state)
	if res.Inconsistency != "" {
		fmt.Fprintf(out, "  %s\n", res.Inconsistency)
	}
	if res.State == pipeline.StateSuccess {
		fmt.Fprintf(out, "  %d steps, %d models, %.3fs\n",
			res.Replay.Steps, res.Statistics.Summary.Models.Enumerated, res.Duration.Seconds())
	}
	if res.ArtifactPath != "" {
		fmt.Fprintf(out, "  artifact: %s\n", res.ArtifactPath)
	}
}

func runBenchmark(cmd *cobra.Command, args []string) error {
	enc, envName, limit, err := target(args)
	if err != nil {
		return err
	}
	ctx, cancel := signalContext()
	defer cancel()

	var opts []bench.Option
	if s := openStore(); s != nil {
		defer s.Close()
		opts = append(opts, bench.WithStore(s))
	}
	if timeout > 0 {
		cfg.Bench.Timeout = timeout.String()
	}
	b := bench.New(pipeline.NewRunner(cfg, logger), logger, opts...)

	var report *bench.Report
	switch benchmarkMode {
	case "all":
		report, err = b.All(ctx, limit, true)
	case "envs":
		report, err = b.Environments(ctx, enc, limit, true)
	case "encs":
		report, err = b.Encodings(ctx, envName, limit, true)
	default:
		return fmt.Errorf("unknown benchmark mode %q (want all, envs or encs)", benchmarkMode)
	}
	if err != nil {
		return err
	}

	out, err := ui.RenderReport(report.Name, report.Stats, 100)
	if err != nil {
		return err
	}
	fmt.Fprint(cmd.OutOrStdout(), out)
	return nil
}

func runInstance(cmd *cobra.Command, args []string) error {
	enc, envName, limit, err := target(args)
	if err != nil {
		return err
	}
	env, err := rail.Load(cfg.EnvironmentPath(envName))
	if err != nil {
		return err
	}

	inst := encoding.GenerateInstance(env, limit)
	log := logging.For(logger, logging.CategoryEncoding)
	for _, d := range inst.Diagnostics {
		log.Warn("suspicious cell", zap.String("cell", d.Position.String()), zap.String("reason", d.Reason))
	}
	path, err := encoding.WriteInstance(cfg.InstancesPath, enc, envName, inst.Lines)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), path)
	return nil
}
