package encoding

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rasch/internal/direction"
	"rasch/internal/rail"
)

var origin = rail.Position{Row: 0, Col: 0}

func TestReencodeEveryCode(t *testing.T) {
	for code := 1; code <= 0xFFFF; code++ {
		facts := EncodeCell(origin, uint16(code))
		if got := Reencode(facts); got != uint16(code) {
			t.Fatalf("Reencode(EncodeCell(%#04x)) = %#04x", code, got)
		}
	}
}

func TestEncodeCellZero(t *testing.T) {
	assert.Empty(t, EncodeCell(origin, 0))
}

func TestEncodeCellStraight(t *testing.T) {
	facts := EncodeCell(origin, 0x8000)
	want := []CellFact{{Position: origin, Entry: direction.North, Exits: []direction.Direction{direction.North}}}
	if diff := cmp.Diff(want, facts); diff != "" {
		t.Errorf("EncodeCell(0x8000) mismatch (-want +got):\n%s", diff)
	}

	facts = EncodeCell(origin, 0x8020)
	require.Len(t, facts, 2)
	for _, f := range facts {
		assert.Len(t, f.Exits, 1)
		assert.False(t, f.Synthesized)
	}
}

func TestEncodeCellDeadEnd(t *testing.T) {
	facts := EncodeCell(origin, 0x2000)
	want := []CellFact{
		{Position: origin, Entry: direction.North, Exits: []direction.Direction{direction.South}},
		{Position: origin, Entry: direction.North, Exits: []direction.Direction{direction.North}, Synthesized: true},
	}
	if diff := cmp.Diff(want, facts); diff != "" {
		t.Errorf("EncodeCell(0x2000) mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, uint16(0x2000), Reencode(facts))
}

func TestCellFactString(t *testing.T) {
	pos := rail.Position{Row: 1, Col: 2}
	f := CellFact{Position: pos, Entry: direction.East, Exits: []direction.Direction{direction.North, direction.East}}
	assert.Equal(t, "cell((1,2),1,(0;1)).", f.String())
}

func TestScheduleFacts(t *testing.T) {
	env := loopEnv(t)
	facts := EncodeSchedule(env.Agents)
	require.Len(t, facts, 2)
	assert.Equal(t, "schedule(0,(1,2),(1,0),2,0).", facts[0].String())
	assert.Equal(t, "schedule(1,(1,0),(1,2),0,0).", facts[1].String())
}

func TestDiffAndLimitFacts(t *testing.T) {
	assert.Equal(t, []string{"diff(0,-1,0).", "diff(1,0,1).", "diff(2,1,0).", "diff(3,0,-1)."}, DiffFacts())
	assert.Equal(t, "limit(12).", LimitFact(12))
}

func TestGenerateInstance(t *testing.T) {
	env := loopEnv(t)
	inst := GenerateInstance(env, 10)

	assert.Equal(t, "limit(10).", inst.Lines[0])
	assert.Empty(t, inst.Diagnostics)

	facts, err := ParseLines(inst.Lines)
	require.NoError(t, err)
	counts := map[string]int{}
	for _, f := range facts {
		counts[f.Predicate]++
	}
	// 8 ring cells with two facing directions each
	assert.Equal(t, map[string]int{"limit": 1, "schedule": 2, "cell": 16, "diff": 4}, counts)
}

func TestDiagnostics(t *testing.T) {
	grid, err := rail.NewGrid([][]uint16{{0xA000}})
	require.NoError(t, err)

	_, diags := EncodeGrid(grid)
	reasons := make([]string, len(diags))
	for i, d := range diags {
		reasons[i] = d.Reason
	}
	assert.Equal(t, []string{
		"entry n mixes a dead end with other exits",
		"entry n exits n off the grid",
		"entry n exits s off the grid",
	}, reasons)
}

func TestWriteReadInstance(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "instances")
	lines := GenerateInstance(loopEnv(t), 10).Lines

	path, err := WriteInstance(dir, "rasch", "simple_loop_map", lines)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "rasch_simple_loop_map_instance.lp"), path)

	got, err := ReadInstance(path)
	require.NoError(t, err)
	assert.Equal(t, lines, got)

	_, err = ReadInstance(filepath.Join(dir, "missing.lp"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func loopEnv(t *testing.T) *rail.Env {
	t.Helper()
	grid, err := rail.NewGrid([][]uint16{
		{0x4002, 0x0401, 0x1200},
		{0x8020, 0x0000, 0x8020},
		{0x0048, 0x0401, 0x0810},
	})
	require.NoError(t, err)
	env, err := rail.NewEnv("simple_loop_map", grid, []rail.Line{
		{Start: rail.Position{Row: 1, Col: 2}, Target: rail.Position{Row: 1, Col: 0}, Direction: direction.South},
		{Start: rail.Position{Row: 1, Col: 0}, Target: rail.Position{Row: 1, Col: 2}, Direction: direction.North},
	}, 0)
	require.NoError(t, err)
	return env
}
