package report

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shirerpeton/diarEval/internal/common"
	"github.com/shirerpeton/diarEval/internal/metrics"
	"github.com/shirerpeton/diarEval/internal/pipeline"
)

func TestMain(m *testing.M) {
	color.NoColor = true
	os.Exit(m.Run())
}

func testBatch() *pipeline.BatchResult {
	ok := metrics.Counts{Confusions: 10, Correct: 70, Total: 80}
	silent := metrics.Counts{FalseAlarms: 80}
	return &pipeline.BatchResult{
		RunID: "run-1",
		Results: []*pipeline.ClipResult{
			{Clip: common.Clip{Number: 1, Name: "Clip1", StartTime: 2, WindowLength: 300}, Counts: ok, IER: 0.125, HasIER: true},
			{Clip: common.Clip{Number: 4, Name: "Clip4"}, Counts: silent},
		},
		Failures: []pipeline.ClipFailure{{Clip: common.Clip{Name: "Clip3"}, Err: errors.New("open e3.cha: no such file")}},
		Totals:   ok.Add(silent),
		Summary:  metrics.Summarize([]float64{0.125}),
	}
}

func TestPrintClip(t *testing.T) {
	var buf bytes.Buffer
	PrintClip(&buf, testBatch().Results[0])
	out := buf.String()
	assert.Contains(t, out, "clip: Clip1\n")
	assert.Contains(t, out, "false alarms / misses / confusions: 0 / 0 / 10\n")
	assert.Contains(t, out, "identification error rate: 0.1250\n")

	buf.Reset()
	PrintClip(&buf, testBatch().Results[1])
	assert.Contains(t, buf.String(), "identification error rate: undefined (no reference speech)\n")
}

func TestPrintBatch(t *testing.T) {
	var buf bytes.Buffer
	PrintBatch(&buf, testBatch())
	out := buf.String()
	assert.Contains(t, out, "failed: Clip3: open e3.cha: no such file\n")
	assert.Contains(t, out, "clips: 2 compared, 1 failed\n")
	assert.Contains(t, out, "false alarms / misses / confusions / total: 80 / 0 / 10 / 80\n")
	assert.Contains(t, out, "identification error rate: 1.1250\n")
	assert.Contains(t, out, "per clip: mean 0.1250, std dev 0.0000, min 0.1250, max 0.1250\n")
}

func TestPrintMatrix(t *testing.T) {
	m, err := metrics.NewConfusionMatrix(
		common.Frames{"A", "A", "B"},
		common.Frames{"A", "B", "B"},
		[]string{"A", "B"})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, PrintMatrix(&buf, m))
	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, []string{"ref", "\\", "hyp", "A", "B"}, strings.Fields(lines[0]))
	assert.Equal(t, []string{"A", "1", "1"}, strings.Fields(lines[1]))
	assert.Equal(t, []string{"B", "0", "1"}, strings.Fields(lines[2]))
}

func TestWriteJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "run.json")
	require.NoError(t, WriteJSON(path, testBatch()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var got struct {
		RunID string         `json:"run_id"`
		IER   *float64       `json:"ier"`
		Total metrics.Counts `json:"totals"`
		Clips []struct {
			Name string   `json:"name"`
			IER  *float64 `json:"ier"`
		} `json:"clips"`
		Failures map[string]string `json:"failures"`
	}
	require.NoError(t, json.Unmarshal(data, &got))

	assert.Equal(t, "run-1", got.RunID)
	require.NotNil(t, got.IER)
	assert.InDelta(t, 1.125, *got.IER, 1e-9)
	assert.Equal(t, 80, got.Total.Total)
	require.Len(t, got.Clips, 2)
	require.NotNil(t, got.Clips[0].IER)
	assert.Nil(t, got.Clips[1].IER)
	assert.Contains(t, string(data), `"ier": null`)
	assert.Equal(t, map[string]string{"Clip3": "open e3.cha: no such file"}, got.Failures)
}

func TestWritePairs(t *testing.T) {
	var buf bytes.Buffer
	err := WritePairs(&buf, []metrics.LabelPair{
		{Reference: "Female", Hypothesis: "Female"},
		{Reference: common.Overlap, Hypothesis: "Silence"},
	})
	require.NoError(t, err)
	assert.Equal(t, "reference\thypothesis\nFemale\tFemale\nOverlap\tSilence\n", buf.String())
}

func TestPlotIER(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ier.png")
	require.NoError(t, PlotIER(path, testBatch()))
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Positive(t, info.Size())

	err = PlotIER(path, &pipeline.BatchResult{Results: []*pipeline.ClipResult{{Clip: common.Clip{Name: "Clip4"}}}})
	assert.Error(t, err)
}
