package frames

import (
	"github.com/shirerpeton/diarEval/internal/common"
)

type Options struct {
	// DefaultClass fills every frame no interval touches, typically silence.
	DefaultClass string
	// OverlapSet holds the categories allowed to co-occur. nil disables
	// sanctioned overlaps entirely.
	OverlapSet    common.Set
	FrameLength   int64
	InitialFrames int
}

func (o Options) frameLength() int64 {
	if o.FrameLength <= 0 {
		return common.DefaultFrameLength
	}
	return o.FrameLength
}

func (o Options) initialFrames() int {
	if o.InitialFrames <= 0 {
		return common.DefaultInitialFrames
	}
	return o.InitialFrames
}

// Discretize rasterizes tiers into one label per frame. Frames already
// claimed by another interval escalate to Overlap or UnspecifiedOverlap and
// never fall back to a plain label.
func Discretize(tiers common.TierMap, opts Options) common.Frames {
	frameLength := opts.frameLength()
	frames := grow(nil, opts.initialFrames(), opts.DefaultClass)

	for _, tier := range tiers.Labels() {
		if tier == opts.DefaultClass {
			continue
		}
		for _, segment := range tiers[tier] {
			if segment.Empty() {
				continue
			}
			if need := ceilDiv(segment.End, frameLength); int64(len(frames)) < need {
				frames = grow(frames, int(need)-len(frames), opts.DefaultClass)
			}
			first := max(segment.Start, 0) / frameLength
			last := segment.End / frameLength
			for t := first; t < last; t++ {
				frames[t] = write(frames[t], tier, opts)
			}
		}
	}
	return frames
}

func write(current, tier string, opts Options) string {
	if current == opts.DefaultClass {
		return tier
	}
	if opts.OverlapSet != nil && opts.OverlapSet.Has(tier) &&
		(current == common.Overlap || opts.OverlapSet.Has(current)) {
		return common.Overlap
	}
	return common.UnspecifiedOverlap
}

func grow(frames common.Frames, n int, fill string) common.Frames {
	if n <= 0 {
		return frames
	}
	out := make(common.Frames, len(frames), len(frames)+n)
	copy(out, frames)
	for range n {
		out = append(out, fill)
	}
	return out
}

func ceilDiv(a, b int64) int64 {
	return (a + b - 1) / b
}
