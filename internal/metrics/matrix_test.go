package metrics

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/shirerpeton/diarEval/internal/common"
)

func TestConfusionMatrix(t *testing.T) {
	labels := []string{"Child", "Female", "Silence"}
	reference := common.Frames{"Female", "Female", "Female", "Child", "Silence", "TV"}
	hypothesis := common.Frames{"Female", "Female", "Child", "Child", "Female", "Female"}

	m, err := NewConfusionMatrix(reference, hypothesis, labels)
	require.NoError(t, err)

	assert.Equal(t, 2, m.Count("Female", "Female"))
	assert.Equal(t, 1, m.Count("Female", "Child"))
	assert.Equal(t, 1, m.Count("Child", "Child"))
	assert.Equal(t, 1, m.Count("Silence", "Female"))
	assert.Equal(t, 0, m.Count("TV", "Female"))
	// the TV frame is outside the label set
	assert.Equal(t, 5.0, mat.Sum(m.Counts))

	norm := m.Normalized()
	assert.InDelta(t, 2.0/3.0, norm.At(1, 1), 1e-12)
	for i := range labels {
		sum := floats.Sum(mat.Row(nil, i, norm))
		assert.InDelta(t, 1.0, sum, 1e-12, "row %d", i)
	}
}

func TestConfusionMatrixEmptyRow(t *testing.T) {
	m, err := NewConfusionMatrix(common.Frames{"Female"}, common.Frames{"Female"}, []string{"Child", "Female"})
	require.NoError(t, err)
	norm := m.Normalized()
	assert.Equal(t, []float64{0, 0}, mat.Row(nil, 0, norm))
	assert.Equal(t, []float64{0, 1}, mat.Row(nil, 1, norm))
}

func TestConfusionMatrixAdd(t *testing.T) {
	labels := []string{"Female", "Male"}
	a, err := NewConfusionMatrix(common.Frames{"Female"}, common.Frames{"Male"}, labels)
	require.NoError(t, err)
	b, err := NewConfusionMatrix(common.Frames{"Female", "Male"}, common.Frames{"Male", "Male"}, labels)
	require.NoError(t, err)

	sum := a.Clone()
	require.NoError(t, sum.Add(b))
	assert.Equal(t, 2, sum.Count("Female", "Male"))
	assert.Equal(t, 1, sum.Count("Male", "Male"))
	assert.Equal(t, 1, a.Count("Female", "Male"), "clone must not share counts")

	other, err := NewConfusionMatrix(common.Frames{"Male"}, common.Frames{"Male"}, []string{"Male", "Female"})
	require.NoError(t, err)
	assert.Error(t, sum.Add(other))
}

func TestConfusionMatrixErrors(t *testing.T) {
	_, err := NewConfusionMatrix(common.Frames{"Female"}, nil, []string{"Female"})
	assert.ErrorIs(t, err, common.ErrLengthMismatch)

	_, err = NewConfusionMatrix(nil, nil, nil)
	assert.Error(t, err)
}

func TestSummarize(t *testing.T) {
	assert.Equal(t, Summary{}, Summarize(nil))
	assert.Equal(t, Summary{Clips: 1, Mean: 0.4, Min: 0.4, Max: 0.4}, Summarize([]float64{0.4}))

	s := Summarize([]float64{0.5, 1.0})
	assert.Equal(t, 2, s.Clips)
	assert.InDelta(t, 0.75, s.Mean, 1e-12)
	assert.InDelta(t, math.Sqrt(0.125), s.StdDev, 1e-12)
	assert.Equal(t, 0.5, s.Min)
	assert.Equal(t, 1.0, s.Max)
}
