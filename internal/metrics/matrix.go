package metrics

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/shirerpeton/diarEval/internal/common"
)

// ConfusionMatrix counts frames per (reference, hypothesis) label pair.
// Rows are reference labels, columns hypothesis labels.
type ConfusionMatrix struct {
	Labels []string
	Counts *mat.Dense
	index  map[string]int
}

// NewConfusionMatrix tallies the aligned sequences over labels. Pairs with a
// label outside labels are ignored.
func NewConfusionMatrix(reference, hypothesis common.Frames, labels []string) (*ConfusionMatrix, error) {
	if len(reference) != len(hypothesis) {
		return nil, &common.LengthMismatchError{Got: len(hypothesis), Want: len(reference)}
	}
	if len(labels) == 0 {
		return nil, fmt.Errorf("confusion matrix needs at least one label")
	}
	m := &ConfusionMatrix{
		Labels: append([]string(nil), labels...),
		Counts: mat.NewDense(len(labels), len(labels), nil),
		index:  make(map[string]int, len(labels)),
	}
	for i, l := range labels {
		m.index[l] = i
	}
	for i := range reference {
		r, okRef := m.index[reference[i]]
		h, okHyp := m.index[hypothesis[i]]
		if !okRef || !okHyp {
			continue
		}
		m.Counts.Set(r, h, m.Counts.At(r, h)+1)
	}
	return m, nil
}

func (m *ConfusionMatrix) Count(reference, hypothesis string) int {
	r, okRef := m.index[reference]
	h, okHyp := m.index[hypothesis]
	if !okRef || !okHyp {
		return 0
	}
	return int(m.Counts.At(r, h))
}

func (m *ConfusionMatrix) Clone() *ConfusionMatrix {
	out := &ConfusionMatrix{
		Labels: append([]string(nil), m.Labels...),
		Counts: mat.DenseCopyOf(m.Counts),
		index:  make(map[string]int, len(m.index)),
	}
	for l, i := range m.index {
		out.index[l] = i
	}
	return out
}

// Add accumulates another matrix over the same labels.
func (m *ConfusionMatrix) Add(o *ConfusionMatrix) error {
	if len(m.Labels) != len(o.Labels) {
		return fmt.Errorf("confusion matrix label sets differ")
	}
	for i := range m.Labels {
		if m.Labels[i] != o.Labels[i] {
			return fmt.Errorf("confusion matrix label %d: %q != %q", i, m.Labels[i], o.Labels[i])
		}
	}
	m.Counts.Add(m.Counts, o.Counts)
	return nil
}

// Normalized scales every row to sum to one. Rows without frames stay zero.
func (m *ConfusionMatrix) Normalized() *mat.Dense {
	r, c := m.Counts.Dims()
	out := mat.NewDense(r, c, nil)
	for i := range r {
		row := mat.Row(nil, i, m.Counts)
		if sum := floats.Sum(row); sum > 0 {
			floats.Scale(1/sum, row)
		}
		out.SetRow(i, row)
	}
	return out
}

type Summary struct {
	Clips  int     `json:"clips"`
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"std_dev"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
}

// Summarize describes the spread of per-clip error rates.
func Summarize(rates []float64) Summary {
	if len(rates) == 0 {
		return Summary{}
	}
	s := Summary{
		Clips: len(rates),
		Min:   floats.Min(rates),
		Max:   floats.Max(rates),
	}
	s.Mean, s.StdDev = stat.MeanStdDev(rates, nil)
	if math.IsNaN(s.StdDev) {
		s.StdDev = 0
	}
	return s
}
