package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"rasch/internal/rail"
	"rasch/internal/replay"
)

type keyMap struct {
	Prev  key.Binding
	Next  key.Binding
	Play  key.Binding
	First key.Binding
	Last  key.Binding
	Quit  key.Binding
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Prev, k.Next, k.Play, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{{k.Prev, k.Next, k.First, k.Last}, {k.Play, k.Quit}}
}

var viewerKeys = keyMap{
	Prev:  key.NewBinding(key.WithKeys("left", "h"), key.WithHelp("←/h", "previous step")),
	Next:  key.NewBinding(key.WithKeys("right", "l"), key.WithHelp("→/l", "next step")),
	Play:  key.NewBinding(key.WithKeys(" "), key.WithHelp("space", "play/pause")),
	First: key.NewBinding(key.WithKeys("home", "g"), key.WithHelp("g", "first")),
	Last:  key.NewBinding(key.WithKeys("end", "G"), key.WithHelp("G", "last")),
	Quit:  key.NewBinding(key.WithKeys("q", "esc", "ctrl+c"), key.WithHelp("q", "quit")),
}

type tickMsg struct{}

// Viewer is a bubbletea model that steps through a replay.
// Position 0 is the environment before the first step; position i > 0 is
// the environment after frame i-1.
type Viewer struct {
	title    string
	env      *rail.Env
	initial  []rail.Snapshot
	frames   []replay.Frame
	success  bool
	position int
	playing  bool
	delay    time.Duration

	keys     keyMap
	help     help.Model
	viewport viewport.Model
	styles   Styles
}

// NewViewer creates a viewer over the frames of res. env supplies the grid
// and the initial agent state; it is not modified.
func NewViewer(title string, env *rail.Env, res replay.Result, delay time.Duration, styles Styles) Viewer {
	start := env.Clone()
	start.Reset()
	v := Viewer{
		title:    title,
		env:      start,
		initial:  start.Snapshot(),
		frames:   res.Frames,
		success:  res.Success,
		delay:    delay,
		keys:     viewerKeys,
		help:     help.New(),
		viewport: viewport.New(80, 20),
		styles:   styles,
	}
	v.refresh()
	return v
}

// Position returns the current replay position.
func (v Viewer) Position() int {
	return v.position
}

// Playing reports whether the viewer advances on its own.
func (v Viewer) Playing() bool {
	return v.playing
}

// Init implements tea.Model.
func (v Viewer) Init() tea.Cmd {
	return nil
}

func (v Viewer) tick() tea.Cmd {
	return tea.Tick(v.delay, func(time.Time) tea.Msg { return tickMsg{} })
}

// Update implements tea.Model.
func (v Viewer) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		v.viewport.Width = msg.Width
		v.viewport.Height = msg.Height - 4
		v.help.Width = msg.Width
		v.refresh()
		return v, nil

	case tickMsg:
		if !v.playing {
			return v, nil
		}
		if v.position >= len(v.frames) {
			v.playing = false
			return v, nil
		}
		v.position++
		v.refresh()
		return v, v.tick()

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, v.keys.Quit):
			return v, tea.Quit
		case key.Matches(msg, v.keys.Prev):
			v.playing = false
			if v.position > 0 {
				v.position--
			}
		case key.Matches(msg, v.keys.Next):
			v.playing = false
			if v.position < len(v.frames) {
				v.position++
			}
		case key.Matches(msg, v.keys.First):
			v.playing = false
			v.position = 0
		case key.Matches(msg, v.keys.Last):
			v.playing = false
			v.position = len(v.frames)
		case key.Matches(msg, v.keys.Play):
			v.playing = !v.playing
			if v.playing {
				if v.position >= len(v.frames) {
					v.position = 0
				}
				v.refresh()
				return v, v.tick()
			}
		}
		v.refresh()
		return v, nil
	}

	var cmd tea.Cmd
	v.viewport, cmd = v.viewport.Update(msg)
	return v, cmd
}

func (v *Viewer) refresh() {
	agents := v.initial
	actions := ""
	if v.position > 0 {
		f := v.frames[v.position-1]
		agents = f.Agents
		parts := make([]string, 0, len(f.Actions))
		for _, a := range agents {
			if act, ok := f.Actions[a.Handle]; ok {
				parts = append(parts, fmt.Sprintf("%d:%s", a.Handle, act))
			}
		}
		actions = strings.Join(parts, "  ")
	}

	var sb strings.Builder
	sb.WriteString(RenderGrid(v.env, agents, v.styles))
	sb.WriteString("\n\n")
	sb.WriteString(AgentLines(agents, v.styles))
	if actions != "" {
		sb.WriteString("\n\n" + v.styles.Muted.Render("actions  "+actions))
	}
	v.viewport.SetContent(sb.String())
}

// View implements tea.Model.
func (v Viewer) View() string {
	status := fmt.Sprintf("step %d/%d", v.position, len(v.frames))
	if v.position == len(v.frames) {
		if v.success {
			status += "  " + v.styles.Success.Render("all agents done")
		} else {
			status += "  " + v.styles.Error.Render("agents left over")
		}
	}
	return strings.Join([]string{
		v.styles.Header.Render(v.title),
		v.viewport.View(),
		v.styles.Footer.Render(status),
		v.help.View(v.keys),
	}, "\n")
}
