package ui

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/glamour"

	"rasch/internal/bench"
	"rasch/internal/pipeline"
)

// ReportMarkdown renders benchmark statistics as markdown: one table per
// encoding and a state tally.
func ReportMarkdown(title string, stats bench.Stats) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# %s\n\n", title)

	tally := map[pipeline.State]int{}
	encodings := make([]string, 0, len(stats))
	for enc := range stats {
		encodings = append(encodings, enc)
	}
	sort.Strings(encodings)

	for _, enc := range encodings {
		fmt.Fprintf(&sb, "## %s\n\n", enc)
		sb.WriteString("| environment | result | models | total s | solve s | choices | conflicts |\n")
		sb.WriteString("|---|---|---:|---:|---:|---:|---:|\n")

		envs := make([]string, 0, len(stats[enc]))
		for env := range stats[enc] {
			envs = append(envs, env)
		}
		sort.Strings(envs)
		for _, env := range envs {
			e := stats[enc][env]
			tally[e.State]++
			fmt.Fprintf(&sb, "| %s | %s | %d | %.3f | %.3f | %d | %d |\n",
				env, e.State,
				e.Summary.Models.Enumerated,
				e.Summary.Times.Total,
				e.Summary.Times.Solve,
				e.Solving.Solvers.Choices,
				e.Solving.Solvers.Conflicts)
		}
		sb.WriteString("\n")
	}

	sb.WriteString("## Results\n\n")
	for _, s := range pipeline.States {
		fmt.Fprintf(&sb, "- **%s**: %d\n", s, tally[s])
	}
	return sb.String()
}

// RenderReport renders the markdown report for the terminal.
func RenderReport(title string, stats bench.Stats, width int) (string, error) {
	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return "", err
	}
	return renderer.Render(ReportMarkdown(title, stats))
}
