package parser

import (
	"os"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shirerpeton/diarEval/internal/common"
)

const sampleTextGrid = "testdata/sample.TextGrid"

func loadSample(t *testing.T) *TextGrid {
	t.Helper()
	f, err := os.Open(sampleTextGrid)
	require.NoError(t, err)
	defer f.Close()
	grid, err := ParseTextGrid(f)
	require.NoError(t, err)
	return grid
}

func TestParseTextGridStructure(t *testing.T) {
	grid := loadSample(t)

	assert.Equal(t, 0.0, grid.XMin)
	assert.Equal(t, 10.0, grid.XMax)
	require.Len(t, grid.Items, 4)

	names := make([]string, 0, len(grid.Items))
	for _, tier := range grid.Items {
		names = append(names, tier.Name)
	}
	assert.Equal(t, []string{"Female", "Child", "Noise", "CT"}, names)

	ct, ok := grid.Tier("CT")
	require.True(t, ok)
	assert.Equal(t, PointTier, ct.Class)
	assert.Equal(t, []GridPoint{{Time: 1.5, Mark: "CA"}, {Time: 4, Mark: "AC"}, {Time: 6, Mark: "XX"}}, ct.Points)

	noise, ok := grid.Tier("Noise")
	require.True(t, ok)
	assert.Equal(t, "multi\nline", noise.Intervals[2].Text)
}

func TestTextGridTiers(t *testing.T) {
	tiers := loadSample(t).Tiers(Options{})

	want := common.TierMap{
		"Female": {
			seg(1716, 3043, "오빠가 자꾸 때려싸."),
			seg(3043, 10000, `he said "hi"`),
		},
		"Child": {seg(0, 2000, "V"), seg(2000, 4000, "엄마"), seg(5000, 10000, "F")},
		"Noise": {seg(0, 2500, "door"), seg(9000, 10000, "multi\nline")},
	}
	if diff := cmp.Diff(want, tiers); diff != "" {
		t.Errorf("Tiers mismatch (-want +got):\n%s", diff)
	}
}

func TestTextGridChildSubcategories(t *testing.T) {
	tiers := loadSample(t).Tiers(Options{ChildSubcategories: true})

	assert.NotContains(t, tiers, "Child")
	assert.Equal(t, []common.Segment{seg(0, 2000, "V")}, tiers["Child_v"])
	assert.Equal(t, []common.Segment{seg(2000, 4000, "엄마")}, tiers["Child_vo"])
	assert.Equal(t, []common.Segment{seg(5000, 10000, "F")}, tiers["Child_f"])
	assert.Len(t, tiers["Female"], 2)
}

func TestTextGridCounts(t *testing.T) {
	grid := loadSample(t)

	turns, err := grid.CountPoints("CT", common.NewSet("CA", "AC", "CO", "OC", "CC2", "C2C"))
	require.NoError(t, err)
	assert.Equal(t, 2, turns)

	vocalizations, err := grid.CountIntervals("Child", common.NewSet("F", "V"))
	require.NoError(t, err)
	assert.Equal(t, 1, vocalizations)

	noise, err := grid.Duration("Noise")
	require.NoError(t, err)
	assert.InDelta(t, 3.5, noise, 1e-9)

	_, err = grid.Duration("TV")
	assert.Error(t, err)
	_, err = grid.CountPoints("Missing", nil)
	assert.Error(t, err)
}

func TestParseFileTextGrid(t *testing.T) {
	tiers, err := ParseFile(sampleTextGrid, Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"Child", "Female", "Noise"}, tiers.Labels())
}

func TestParseTextGridErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{name: "empty", input: ""},
		{name: "interval outside tier", input: "intervals [1]:\n xmin = 0\n"},
		{name: "bad number", input: "item [1]:\n class = \"IntervalTier\"\n xmin = zero\n"},
		{name: "unterminated string", input: "item [1]:\n name = \"Child\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseTextGrid(strings.NewReader(tt.input))
			assert.Error(t, err)
		})
	}
}
