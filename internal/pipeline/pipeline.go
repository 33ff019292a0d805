package pipeline

import (
	"context"
	"fmt"
	"math"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/shirerpeton/diarEval/internal/align"
	"github.com/shirerpeton/diarEval/internal/common"
	"github.com/shirerpeton/diarEval/internal/config"
	"github.com/shirerpeton/diarEval/internal/frames"
	"github.com/shirerpeton/diarEval/internal/metrics"
	"github.com/shirerpeton/diarEval/internal/parser"
	"github.com/shirerpeton/diarEval/internal/remap"
)

// ParseFunc reads one annotation file into a tier map.
type ParseFunc func(path string, opts parser.Options) (common.TierMap, error)

type Evaluator struct {
	cfg   *config.Config
	log   logrus.FieldLogger
	parse ParseFunc
	// KeepFrames retains the aligned frame sequences of every clip result.
	KeepFrames bool
}

func NewEvaluator(cfg *config.Config, log logrus.FieldLogger) *Evaluator {
	return &Evaluator{cfg: cfg, log: log, parse: parser.ParseFile}
}

// WithParser replaces file ingestion, mostly for tests.
func (e *Evaluator) WithParser(parse ParseFunc) *Evaluator {
	e.parse = parse
	return e
}

// Comparison is one recording reduced to aligned frames and counts.
type Comparison struct {
	Reference  common.Frames
	Hypothesis common.Frames
	Counts     metrics.Counts
}

type ClipResult struct {
	Clip   common.Clip
	Counts metrics.Counts
	IER    float64
	// HasIER is false when the reference window holds no speech.
	HasIER     bool
	Matrix     *metrics.ConfusionMatrix
	Reference  common.Frames
	Hypothesis common.Frames
}

type ClipFailure struct {
	Clip common.Clip
	Err  error
}

type BatchResult struct {
	RunID    string
	Results  []*ClipResult
	Failures []ClipFailure
	Totals   metrics.Counts
	Summary  metrics.Summary
	Matrix   *metrics.ConfusionMatrix
}

func (b *BatchResult) IER() (float64, bool) {
	return b.Totals.IER()
}

func (e *Evaluator) windowFrames(windowLength float64) int {
	return int(math.Floor(windowLength * 1000 / float64(e.cfg.FrameLengthMs)))
}

func (e *Evaluator) windowLength(clip common.Clip) float64 {
	if clip.WindowLength > 0 {
		return clip.WindowLength
	}
	return e.cfg.WindowLengthS
}

// Compare runs the core comparison on already parsed streams: both are
// remapped and discretized, the full-length hypothesis is cut down to the
// reference window and the frames are counted.
func (e *Evaluator) Compare(hypothesis, reference common.TierMap, startTime, windowLength float64) (*Comparison, error) {
	hyp, err := remap.Remap(hypothesis, e.cfg.Hypothesis.Mapping)
	if err != nil {
		return nil, fmt.Errorf("remapping hypothesis: %w", err)
	}
	ref, err := remap.Remap(reference, e.cfg.Reference.Mapping)
	if err != nil {
		return nil, fmt.Errorf("remapping reference: %w", err)
	}

	hypFrames := frames.Discretize(hyp, frames.Options{
		DefaultClass:  e.cfg.Hypothesis.DefaultClass(),
		FrameLength:   e.cfg.FrameLengthMs,
		InitialFrames: e.cfg.InitialFrames,
	})
	refFrames := frames.Discretize(ref, frames.Options{
		DefaultClass:  e.cfg.Reference.DefaultClass(),
		OverlapSet:    e.cfg.OverlapSet(),
		FrameLength:   e.cfg.FrameLengthMs,
		InitialFrames: e.windowFrames(windowLength),
	})

	hypWindow, err := align.Frames(hypFrames, refFrames, startTime, windowLength, e.cfg.FrameLengthMs)
	if err != nil {
		return nil, err
	}

	opts := metrics.Options{
		Speech:      e.cfg.SpeechSet(),
		Silence:     e.cfg.SilenceCategory,
		SkipOverlap: e.cfg.SkipOverlap,
	}
	counts, err := metrics.Compare(refFrames, hypWindow, opts)
	if err != nil {
		return nil, err
	}
	return &Comparison{Reference: refFrames, Hypothesis: hypWindow, Counts: counts}, nil
}

func (e *Evaluator) parserOptions() parser.Options {
	return parser.Options{ChildSubcategories: e.cfg.ChildSubcategories}
}

// CompareClip reads both annotation files of a clip and compares them.
func (e *Evaluator) CompareClip(clip common.Clip) (*ClipResult, error) {
	hypothesis, err := e.parse(clip.Hypothesis, e.parserOptions())
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", clip.Hypothesis, err)
	}
	reference, err := e.parse(clip.Reference, e.parserOptions())
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", clip.Reference, err)
	}

	cmp, err := e.Compare(hypothesis, reference, clip.StartTime, e.windowLength(clip))
	if err != nil {
		return nil, err
	}
	matrix, err := metrics.NewConfusionMatrix(cmp.Reference, cmp.Hypothesis, e.Labels())
	if err != nil {
		return nil, err
	}

	result := &ClipResult{Clip: clip, Counts: cmp.Counts, Matrix: matrix}
	result.IER, result.HasIER = cmp.Counts.IER()
	if e.KeepFrames {
		result.Reference, result.Hypothesis = cmp.Reference, cmp.Hypothesis
	}
	return result, nil
}

// Annotations returns the reference and hypothesis of a clip as zero-based
// tier maps over the reference window, without the silence tiers.
func (e *Evaluator) Annotations(clip common.Clip) (reference, hypothesis common.TierMap, err error) {
	hypRaw, err := e.parse(clip.Hypothesis, e.parserOptions())
	if err != nil {
		return nil, nil, fmt.Errorf("reading %s: %w", clip.Hypothesis, err)
	}
	refRaw, err := e.parse(clip.Reference, e.parserOptions())
	if err != nil {
		return nil, nil, fmt.Errorf("reading %s: %w", clip.Reference, err)
	}
	hyp, err := remap.Remap(hypRaw, e.cfg.Hypothesis.Mapping)
	if err != nil {
		return nil, nil, fmt.Errorf("remapping hypothesis: %w", err)
	}
	ref, err := remap.Remap(refRaw, e.cfg.Reference.Mapping)
	if err != nil {
		return nil, nil, fmt.Errorf("remapping reference: %w", err)
	}
	delete(hyp, e.cfg.Hypothesis.DefaultClass())
	delete(ref, e.cfg.Reference.DefaultClass())
	return ref, align.Segments(hyp, clip.StartTime, e.windowLength(clip)), nil
}

// Labels is the label set of the confusion matrix: every category either
// mapping can produce plus the overlap markers.
func (e *Evaluator) Labels() []string {
	set := common.NewSet(common.Overlap, common.UnspecifiedOverlap)
	for _, m := range []common.Mapping{e.cfg.Hypothesis.Mapping, e.cfg.Reference.Mapping} {
		for _, category := range m {
			set[category] = struct{}{}
		}
	}
	return set.Sorted()
}

// Run compares every clip concurrently. A clip that fails is logged and
// recorded in Failures; the others still count. The returned error is only
// non-nil when ctx is cancelled.
func (e *Evaluator) Run(ctx context.Context, clips []common.Clip) (*BatchResult, error) {
	results := make([]*ClipResult, len(clips))
	failures := make([]error, len(clips))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(e.cfg.Workers, 1))
	for i, clip := range clips {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			log := e.log.WithField("clip", clip.Name)
			log.Debugf("comparing %s vs %s", clip.Hypothesis, clip.Reference)
			res, err := e.CompareClip(clip)
			if err != nil {
				log.WithError(err).Warn("skipping clip")
				failures[i] = err
				return nil
			}
			if res.HasIER {
				log.WithField("ier", res.IER).Info("clip compared")
			} else {
				log.Warn("clip has no reference speech, error rate undefined")
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	batch := &BatchResult{RunID: uuid.NewString()}
	var rates []float64
	for i, res := range results {
		if failures[i] != nil {
			batch.Failures = append(batch.Failures, ClipFailure{Clip: clips[i], Err: failures[i]})
			continue
		}
		if res == nil {
			continue
		}
		batch.Results = append(batch.Results, res)
		batch.Totals = batch.Totals.Add(res.Counts)
		if res.HasIER {
			rates = append(rates, res.IER)
		}
		if batch.Matrix == nil {
			batch.Matrix = res.Matrix.Clone()
		} else if err := batch.Matrix.Add(res.Matrix); err != nil {
			return nil, err
		}
	}
	batch.Summary = metrics.Summarize(rates)
	return batch, nil
}
