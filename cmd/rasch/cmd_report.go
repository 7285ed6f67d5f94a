package main

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"rasch/cmd/rasch/ui"
	"rasch/internal/bench"
)

var (
	runsLimit   int
	runsSummary bool
)

// reportCmd renders a saved stats file
var reportCmd = &cobra.Command{
	Use:   "report <stats.json>",
	Short: "Render a benchmark statistics file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		stats, err := bench.LoadStats(args[0])
		if err != nil {
			return err
		}
		title := strings.TrimSuffix(filepath.Base(args[0]), "_stats.json")
		out, err := ui.RenderReport(title, stats, 100)
		if err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), out)
		return nil
	},
}

// runsCmd lists the run history
var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recorded runs",
	Args:  cobra.NoArgs,
	RunE:  runRuns,
}

func runRuns(cmd *cobra.Command, args []string) error {
	s := openStore()
	if s == nil {
		return fmt.Errorf("cannot open run database %s", cfg.DatabasePath)
	}
	defer s.Close()
	styles := ui.DefaultStyles()

	if runsSummary {
		summaries, err := s.Summaries()
		if err != nil {
			return err
		}
		table := ui.NewTable("Encodings", "encoding", "runs", "success", "avg total s", "avg solve s")
		for _, sum := range summaries {
			table.AddRow(sum.Encoding,
				strconv.Itoa(sum.Runs),
				strconv.Itoa(sum.Successes),
				fmt.Sprintf("%.3f", sum.AvgTotalSeconds),
				fmt.Sprintf("%.3f", sum.AvgSolveSeconds))
		}
		fmt.Fprint(cmd.OutOrStdout(), table.View(styles))
		return nil
	}

	runs, err := s.List(runsLimit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "no runs recorded")
		return nil
	}
	table := ui.NewTable("Runs", "id", "when", "encoding", "environment", "state", "models", "total s")
	for _, r := range runs {
		table.AddRow(shortID(r.ID),
			r.CreatedAt.Format("2006-01-02 15:04:05"),
			r.Encoding,
			r.Environment,
			r.State,
			strconv.Itoa(r.Models),
			fmt.Sprintf("%.3f", r.TotalSeconds))
	}
	fmt.Fprint(cmd.OutOrStdout(), table.View(styles))
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
