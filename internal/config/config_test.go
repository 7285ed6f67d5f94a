package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "config.yaml"))
	require.NoError(t, err)
	if diff := cmp.Diff(DefaultConfig(), cfg); diff != "" {
		t.Errorf("defaults mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
rasch_config:
  default_encoding: rasch_unpruned
  asp_encodings_path: enc
  solver:
    max_models: 2
  replay:
    step_delay: 250ms
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "rasch_unpruned", cfg.DefaultEncoding)
	assert.Equal(t, "simple_loop_map", cfg.DefaultEnvironment)
	assert.Equal(t, 2, cfg.Solver.MaxModels)
	assert.Equal(t, 500000, cfg.Solver.FactLimit)
	assert.Equal(t, 250*time.Millisecond, cfg.GetStepDelay())
	assert.Equal(t, filepath.Join("enc", "rasch.mg"), cfg.EncodingPath("rasch"))
	assert.Equal(t, filepath.Join("data", "environments", "x.yaml"), cfg.EnvironmentPath("x"))
}

func TestLoadRequiresSection(t *testing.T) {
	_, err := Load(writeConfig(t, "default_encoding: rasch\n"))
	assert.ErrorIs(t, err, ErrMissingSection)
}

func TestLoadValidatesSchema(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"unknown key", "rasch_config:\n  colour: red\n"},
		{"bad level", "rasch_config:\n  logging:\n    level: loud\n"},
		{"bad duration", "rasch_config:\n  bench:\n    timeout: soon\n"},
		{"zero parallelism", "rasch_config:\n  bench:\n    parallelism: 0\n"},
		{"wrong type", "rasch_config:\n  default_limit: many\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			assert.ErrorContains(t, err, "config schema validation failed")
		})
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("RASCH_DB", "/tmp/other.db")
	t.Setenv("RASCH_LOG_LEVEL", "debug")

	cfg, err := Load(writeConfig(t, "rasch_config:\n  database_path: data/x.db\n"))
	require.NoError(t, err)
	assert.Equal(t, "/tmp/other.db", cfg.DatabasePath)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestSaveRoundTrip(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DefaultEnvironment = "simple_switch_map"
	cfg.Bench.Parallelism = 8
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	if diff := cmp.Diff(cfg, loaded); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestDurationFallbacks(t *testing.T) {
	cfg := &Config{}
	assert.Equal(t, 500*time.Millisecond, cfg.GetStepDelay())
	assert.Equal(t, 60*time.Second, cfg.GetBenchTimeout())
}
