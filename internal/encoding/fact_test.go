package encoding

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFact(t *testing.T) {
	tests := []struct {
		line string
		want Fact
	}{
		{"limit(10).", Fact{"limit", []Term{{Kind: Int, Ints: []int{10}}}}},
		{"diff(3,0,-1). % West", Fact{"diff", []Term{
			{Kind: Int, Ints: []int{3}}, {Kind: Int, Ints: []int{0}}, {Kind: Int, Ints: []int{-1}},
		}}},
		{"cell((1,2),1,(0;1)).", Fact{"cell", []Term{
			{Kind: Tuple, Ints: []int{1, 2}}, {Kind: Int, Ints: []int{1}}, {Kind: Pool, Ints: []int{0, 1}},
		}}},
		{"cell((0,0),0,(2)).", Fact{"cell", []Term{
			{Kind: Tuple, Ints: []int{0, 0}}, {Kind: Int, Ints: []int{0}}, {Kind: Pool, Ints: []int{2}},
		}}},
		{"agent_action(0,2,3).", Fact{"agent_action", []Term{
			{Kind: Int, Ints: []int{0}}, {Kind: Int, Ints: []int{2}}, {Kind: Int, Ints: []int{3}},
		}}},
		{"done(agent_a)", Fact{"done", []Term{{Kind: Symbol, Name: "agent_a"}}}},
		{"ok.", Fact{Predicate: "ok"}},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			got, err := ParseFact(tt.line)
			require.NoError(t, err)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("ParseFact(%q) mismatch (-want +got):\n%s", tt.line, diff)
			}
		})
	}
}

func TestParseFactErrors(t *testing.T) {
	for _, line := range []string{"cell((1,2),1", "Cell(1).", "cell(1,,2).", "cell((a,b)).", "x(1))"} {
		_, err := ParseFact(line)
		assert.Error(t, err, line)
	}
}

func TestFactStringRoundTrip(t *testing.T) {
	for _, line := range []string{"cell((1,2),1,(0;1)).", "trans(0,(1,2),(2,2),1).", "limit(3)."} {
		f, err := ParseFact(line)
		require.NoError(t, err)
		assert.Equal(t, line, f.String())
	}
}

func TestParseLinesSkipsComments(t *testing.T) {
	facts, err := ParseLines([]string{"% header", "", "limit(1).", "  % indented"})
	require.NoError(t, err)
	require.Len(t, facts, 1)
	assert.Equal(t, "limit", facts[0].Predicate)

	_, err = ParseLines([]string{"limit(1).", "bad("})
	assert.ErrorContains(t, err, "line 2")
}

func TestPredicate(t *testing.T) {
	tests := map[string]string{
		"agent_action(0,2,1).":     "agent_action",
		"  trans(0,(1,2),(2,2),0)": "trans",
		`label("a,b")`:             "label",
		"at(train(0),(1,2),0)":     "at",
		"done.":                    "done",
		"flag":                     "flag",
		"% schedule(0,(1,2))":      "",
		"":                         "",
		"(1,2)":                    "",
		"Upper(1)":                 "",
	}
	for line, want := range tests {
		assert.Equal(t, want, Predicate(line), line)
	}
}
