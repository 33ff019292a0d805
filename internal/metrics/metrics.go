package metrics

import (
	"github.com/shirerpeton/diarEval/internal/common"
)

const DefaultSilence = "Silence"

type Options struct {
	// Speech lists the categories that count as speech.
	Speech common.Set
	// Silence is the label both streams use for frames with no activity.
	Silence string
	// SkipOverlap drops frames whose reference label is Overlap.
	SkipOverlap bool
}

func DefaultOptions(speech common.Set) Options {
	return Options{
		Speech:      speech,
		Silence:     DefaultSilence,
		SkipOverlap: true,
	}
}

type Counts struct {
	FalseAlarms int `json:"false_alarms"`
	Misses      int `json:"misses"`
	Confusions  int `json:"confusions"`
	Correct     int `json:"correct"`
	Total       int `json:"total"`
	Skipped     int `json:"skipped"`
}

func (c Counts) Tuple() (falseAlarms, misses, confusions, total int) {
	return c.FalseAlarms, c.Misses, c.Confusions, c.Total
}

func (c Counts) Errors() int {
	return c.FalseAlarms + c.Misses + c.Confusions
}

// IER is the identification error rate. ok is false when there are no
// reference speech frames to divide by.
func (c Counts) IER() (rate float64, ok bool) {
	if c.Total == 0 {
		return 0, false
	}
	return float64(c.Errors()) / float64(c.Total), true
}

func (c Counts) Add(o Counts) Counts {
	return Counts{
		FalseAlarms: c.FalseAlarms + o.FalseAlarms,
		Misses:      c.Misses + o.Misses,
		Confusions:  c.Confusions + o.Confusions,
		Correct:     c.Correct + o.Correct,
		Total:       c.Total + o.Total,
		Skipped:     c.Skipped + o.Skipped,
	}
}

// Compare counts agreement between two frame-aligned sequences.
func Compare(reference, hypothesis common.Frames, opts Options) (Counts, error) {
	var c Counts
	if len(reference) != len(hypothesis) {
		return c, &common.LengthMismatchError{Got: len(hypothesis), Want: len(reference)}
	}
	silence := opts.Silence
	if silence == "" {
		silence = DefaultSilence
	}

	for i, ref := range reference {
		hyp := hypothesis[i]
		if opts.SkipOverlap && ref == common.Overlap {
			c.Skipped++
			continue
		}
		refSpeech := opts.Speech.Has(ref)
		hypSpeech := opts.Speech.Has(hyp)

		if refSpeech {
			c.Total++
		}
		switch {
		case ref == silence && hypSpeech:
			c.FalseAlarms++
		case refSpeech && hyp == silence:
			c.Misses++
		case refSpeech && hypSpeech && ref != silence && hyp != silence && ref != hyp:
			c.Confusions++
		}
		if refSpeech && hypSpeech && ref == hyp {
			c.Correct++
		}
	}
	return c, nil
}

type LabelPair struct {
	Reference  string `json:"reference"`
	Hypothesis string `json:"hypothesis"`
}

func Pairs(reference, hypothesis common.Frames) ([]LabelPair, error) {
	if len(reference) != len(hypothesis) {
		return nil, &common.LengthMismatchError{Got: len(hypothesis), Want: len(reference)}
	}
	pairs := make([]LabelPair, len(reference))
	for i := range reference {
		pairs[i] = LabelPair{Reference: reference[i], Hypothesis: hypothesis[i]}
	}
	return pairs, nil
}
