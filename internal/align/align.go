package align

import (
	"math"

	"github.com/shirerpeton/diarEval/internal/common"
)

func frameIndex(seconds float64, frameLength int64) int {
	if frameLength <= 0 {
		frameLength = common.DefaultFrameLength
	}
	return int(math.Floor(seconds * 1000 / float64(frameLength)))
}

// Window returns the frames of full covering [startTimeS, startTimeS+windowLengthS),
// clamped to the bounds of full.
func Window(full common.Frames, startTimeS, windowLengthS float64, frameLength int64) common.Frames {
	start := frameIndex(startTimeS, frameLength)
	end := start + frameIndex(windowLengthS, frameLength)
	start = min(max(start, 0), len(full))
	end = min(max(end, start), len(full))
	return full[start:end]
}

// Frames extracts the window of full that corresponds index-for-index to
// windowed. The result must be exactly as long as windowed.
func Frames(full, windowed common.Frames, startTimeS, windowLengthS float64, frameLength int64) (common.Frames, error) {
	sub := Window(full, startTimeS, windowLengthS, frameLength)
	if len(sub) != len(windowed) {
		return nil, &common.LengthMismatchError{Got: len(sub), Want: len(windowed)}
	}
	out := make(common.Frames, len(sub))
	copy(out, sub)
	return out, nil
}

// Segments crops every interval of tiers to the window and shifts it so the
// window starts at zero. Intervals entirely outside the window are dropped.
func Segments(tiers common.TierMap, startTimeS, windowLengthS float64) common.TierMap {
	start := int64(math.Floor(startTimeS * 1000))
	end := start + int64(math.Floor(windowLengthS*1000))

	out := make(common.TierMap)
	for _, label := range tiers.Labels() {
		for _, s := range tiers[label] {
			cropped := common.Interval{Start: max(s.Start, start), End: min(s.End, end)}
			if cropped.Empty() {
				continue
			}
			out[label] = append(out[label], common.Segment{
				Interval: common.Interval{Start: cropped.Start - start, End: cropped.End - start},
				Mark:     s.Mark,
			})
		}
	}
	return out
}
