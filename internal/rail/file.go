package rail

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"rasch/internal/direction"
)

// File is the on-disk YAML form of an environment.
type File struct {
	Name            string      `yaml:"name,omitempty"`
	MaxEpisodeSteps int         `yaml:"max_episode_steps,omitempty"`
	Grid            [][]uint16  `yaml:"grid"`
	Agents          []AgentFile `yaml:"agents"`
}

// AgentFile is one line entry in an environment file.
type AgentFile struct {
	Start             [2]int `yaml:"start,flow"`
	Target            [2]int `yaml:"target,flow"`
	Direction         int    `yaml:"direction"`
	EarliestDeparture int    `yaml:"earliest_departure"`
}

// Decode parses an environment document. fallbackName is used when the document
// does not carry a name.
func Decode(data []byte, fallbackName string) (*Env, error) {
	var f File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("decode environment %s: %w", fallbackName, err)
	}
	if f.Name == "" {
		f.Name = fallbackName
	}
	grid, err := NewGrid(f.Grid)
	if err != nil {
		return nil, fmt.Errorf("environment %s: %w", f.Name, err)
	}
	lines := make([]Line, len(f.Agents))
	for i, a := range f.Agents {
		lines[i] = Line{
			Start:             Position{Row: a.Start[0], Col: a.Start[1]},
			Target:            Position{Row: a.Target[0], Col: a.Target[1]},
			Direction:         direction.Direction(a.Direction),
			EarliestDeparture: a.EarliestDeparture,
			Speed:             1,
		}
	}
	return NewEnv(f.Name, grid, lines, f.MaxEpisodeSteps)
}

// Load reads an environment file. The name defaults to the file stem.
func Load(path string) (*Env, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read environment: %w", err)
	}
	return Decode(data, NameFromPath(path))
}

// Encode renders env in its file form.
func Encode(env *Env) ([]byte, error) {
	f := File{Name: env.Name, MaxEpisodeSteps: env.MaxEpisodeSteps, Grid: env.Grid.Rows()}
	for _, a := range env.Agents {
		f.Agents = append(f.Agents, AgentFile{
			Start:             [2]int{a.Start.Row, a.Start.Col},
			Target:            [2]int{a.Target.Row, a.Target.Col},
			Direction:         int(a.Direction),
			EarliestDeparture: a.EarliestDeparture,
		})
	}
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(f); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Save writes env to path, creating parent directories.
func Save(env *Env, path string) error {
	data, err := Encode(env)
	if err != nil {
		return fmt.Errorf("encode environment %s: %w", env.Name, err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// NameFromPath strips the directory and extension from an environment path.
func NameFromPath(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
