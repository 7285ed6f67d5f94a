package main

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"rasch/cmd/rasch/ui"
	"rasch/internal/logging"
	"rasch/internal/rail"
	"rasch/internal/replay"
	"rasch/internal/solver"
)

var noTUI bool

// replayCmd replays a saved artifact in the interactive viewer
var replayCmd = &cobra.Command{
	Use:   "replay <artifact> [environment] [limit]",
	Short: "Replay a solve artifact against an environment",
	Long: `Loads a <name>_solve.json artifact, replays its actions against the
environment and opens a step viewer (←/→ step, space play/pause, q quit).`,
	Args: cobra.RangeArgs(1, 3),
	RunE: runReplay,
}

// renderCmd prints an environment
var renderCmd = &cobra.Command{
	Use:   "render [environment]",
	Short: "Render an environment grid",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runRender,
}

func runReplay(cmd *cobra.Command, args []string) error {
	artifact, err := solver.LoadArtifact(args[0])
	if err != nil {
		return err
	}
	// The artifact stands in for the encoding argument.
	_, envName, limit, err := target(append([]string{cfg.DefaultEncoding}, args[1:]...))
	if err != nil {
		return err
	}
	env, err := rail.Load(cfg.EnvironmentPath(envName))
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()
	validator := replay.NewValidator(logging.For(logger, logging.CategoryReplay))
	res, err := validator.Run(ctx, env, artifact.Solution.AgentActions, replay.Options{Horizon: limit})
	if err != nil {
		return err
	}

	styles := ui.DefaultStyles()
	if noTUI {
		fmt.Fprintln(cmd.OutOrStdout(), ui.RenderGrid(env, env.Snapshot(), styles))
		fmt.Fprintf(cmd.OutOrStdout(), "success: %v after %d steps\n", res.Success, res.Steps)
		return nil
	}

	delay := stepDelay
	if delay <= 0 {
		delay = cfg.GetStepDelay()
	}
	viewer := ui.NewViewer(fmt.Sprintf("%s on %s", args[0], envName), env, res, delay, styles)
	_, err = tea.NewProgram(viewer, tea.WithAltScreen()).Run()
	return err
}

func runRender(cmd *cobra.Command, args []string) error {
	envName := cfg.DefaultEnvironment
	if len(args) > 0 {
		envName = args[0]
	}
	env, err := rail.Load(cfg.EnvironmentPath(envName))
	if err != nil {
		return err
	}
	styles := ui.DefaultStyles()
	fmt.Fprintln(cmd.OutOrStdout(), styles.Title.Render(env.Name))
	fmt.Fprintln(cmd.OutOrStdout(), ui.RenderGrid(env, nil, styles))
	fmt.Fprintln(cmd.OutOrStdout(), ui.AgentLines(env.Snapshot(), styles))
	return nil
}
