package solver

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

//go:embed artifact.schema.json
var artifactSchema string

// Solution is the decoded content of the retained model.
type Solution struct {
	AgentPaths   Paths       `json:"agent_paths"`
	AgentActions ActionTable `json:"agent_actions"`
}

// Artifact is the persisted result of one solve.
type Artifact struct {
	Solution Solution   `json:"solution"`
	Models   [][]string `json:"models"`
}

// ArtifactPath returns where the artifact for name lives under dir.
func ArtifactPath(dir, name string) string {
	return filepath.Join(dir, name+"_solve.json")
}

// SaveArtifact writes a to <dir>/<name>_solve.json and returns the path.
func SaveArtifact(dir, name string, a Artifact) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create solver output dir: %w", err)
	}
	data, err := json.MarshalIndent(a, "", "    ")
	if err != nil {
		return "", fmt.Errorf("encode artifact: %w", err)
	}
	path := ArtifactPath(dir, name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("write artifact: %w", err)
	}
	return path, nil
}

// LoadArtifact reads an artifact and validates it before decoding.
func LoadArtifact(path string) (Artifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Artifact{}, fmt.Errorf("read artifact: %w", err)
	}
	if err := validateArtifact(data); err != nil {
		return Artifact{}, fmt.Errorf("artifact %s: %w", path, err)
	}
	var a Artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return Artifact{}, fmt.Errorf("decode artifact %s: %w", path, err)
	}
	return a, nil
}

func validateArtifact(data []byte) error {
	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(artifactSchema),
		gojsonschema.NewBytesLoader(data),
	)
	if err != nil {
		return fmt.Errorf("validate artifact schema: %w", err)
	}
	if result.Valid() {
		return nil
	}
	errs := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		errs = append(errs, e.String())
	}
	sort.Strings(errs)
	return fmt.Errorf("artifact schema validation failed: %s", strings.Join(errs, "; "))
}
