package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/fatih/color"

	"github.com/shirerpeton/diarEval/internal/metrics"
	"github.com/shirerpeton/diarEval/internal/pipeline"
)

var (
	key     = color.New(color.FgYellow)
	value   = color.New(color.FgGreen)
	result  = color.New(color.FgMagenta)
	failure = color.New(color.FgRed)
)

func field(w io.Writer, c *color.Color, name string, format string, args ...interface{}) {
	key.Fprintf(w, "%s: ", name)
	c.Fprintf(w, format, args...)
	fmt.Fprintln(w)
}

func rate(c metrics.Counts) string {
	ier, ok := c.IER()
	if !ok {
		return "undefined (no reference speech)"
	}
	return fmt.Sprintf("%.4f", ier)
}

// PrintClip writes the stats of one compared clip.
func PrintClip(w io.Writer, res *pipeline.ClipResult) {
	c := res.Counts
	field(w, value, "clip", "%s", res.Clip.Name)
	field(w, value, "hypothesis", "%s", res.Clip.Hypothesis)
	field(w, value, "reference", "%s", res.Clip.Reference)
	field(w, value, "window", "%.2fs + %.0fs", res.Clip.StartTime, res.Clip.WindowLength)
	field(w, value, "speech frames", "%d (skipped overlap: %d)", c.Total, c.Skipped)
	field(w, value, "false alarms / misses / confusions", "%d / %d / %d", c.FalseAlarms, c.Misses, c.Confusions)
	field(w, result, "identification error rate", "%s", rate(c))
	fmt.Fprintln(w)
}

// PrintBatch writes every clip followed by the aggregated totals.
func PrintBatch(w io.Writer, batch *pipeline.BatchResult) {
	for _, res := range batch.Results {
		PrintClip(w, res)
	}
	for _, f := range batch.Failures {
		key.Fprint(w, "failed: ")
		failure.Fprintf(w, "%s: %v\n", f.Clip.Name, f.Err)
	}
	if len(batch.Failures) > 0 {
		fmt.Fprintln(w)
	}
	t := batch.Totals
	field(w, value, "run", "%s", batch.RunID)
	field(w, value, "clips", "%d compared, %d failed", len(batch.Results), len(batch.Failures))
	field(w, value, "false alarms / misses / confusions / total", "%d / %d / %d / %d",
		t.FalseAlarms, t.Misses, t.Confusions, t.Total)
	field(w, result, "identification error rate", "%s", rate(t))
	if s := batch.Summary; s.Clips > 0 {
		field(w, result, "per clip", "mean %.4f, std dev %.4f, min %.4f, max %.4f", s.Mean, s.StdDev, s.Min, s.Max)
	}
}

// PrintMatrix writes the confusion matrix with reference labels as rows.
func PrintMatrix(w io.Writer, m *metrics.ConfusionMatrix) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprint(tw, "ref \\ hyp\t")
	for _, l := range m.Labels {
		fmt.Fprintf(tw, "%s\t", l)
	}
	fmt.Fprintln(tw)
	for _, r := range m.Labels {
		fmt.Fprintf(tw, "%s\t", r)
		for _, h := range m.Labels {
			fmt.Fprintf(tw, "%d\t", m.Count(r, h))
		}
		fmt.Fprintln(tw)
	}
	return tw.Flush()
}

type clipJSON struct {
	Clip   int            `json:"clip"`
	Name   string         `json:"name"`
	Counts metrics.Counts `json:"counts"`
	IER    *float64       `json:"ier"`
}

type batchJSON struct {
	RunID    string            `json:"run_id"`
	Totals   metrics.Counts    `json:"totals"`
	IER      *float64          `json:"ier"`
	Summary  metrics.Summary   `json:"summary"`
	Clips    []clipJSON        `json:"clips"`
	Failures map[string]string `json:"failures,omitempty"`
}

func ratePtr(c metrics.Counts) *float64 {
	if ier, ok := c.IER(); ok {
		return &ier
	}
	return nil
}

// WriteJSON stores the batch summary at path. An undefined error rate is null.
func WriteJSON(path string, batch *pipeline.BatchResult) error {
	out := batchJSON{
		RunID:   batch.RunID,
		Totals:  batch.Totals,
		IER:     ratePtr(batch.Totals),
		Summary: batch.Summary,
	}
	for _, res := range batch.Results {
		out.Clips = append(out.Clips, clipJSON{
			Clip:   res.Clip.Number,
			Name:   res.Clip.Name,
			Counts: res.Counts,
			IER:    ratePtr(res.Counts),
		})
	}
	if len(batch.Failures) > 0 {
		out.Failures = make(map[string]string, len(batch.Failures))
		for _, f := range batch.Failures {
			out.Failures[f.Clip.Name] = f.Err.Error()
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return err
	}
	return f.Close()
}

// WritePairs writes the aligned (reference, hypothesis) label stream as TSV,
// one frame per row.
func WritePairs(w io.Writer, pairs []metrics.LabelPair) error {
	cw := csv.NewWriter(w)
	cw.Comma = '\t'
	if err := cw.Write([]string{"reference", "hypothesis"}); err != nil {
		return err
	}
	for _, p := range pairs {
		if err := cw.Write([]string{p.Reference, p.Hypothesis}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
