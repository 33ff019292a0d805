package condenser

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/shirerpeton/diarEval/internal/common"
)

// Disagreements returns the maximal runs of frames on which the two aligned
// sequences carry different labels, as millisecond intervals relative to the
// start of the sequences.
func Disagreements(reference, hypothesis common.Frames, frameLength int64) ([]common.Interval, error) {
	if len(reference) != len(hypothesis) {
		return nil, &common.LengthMismatchError{Got: len(hypothesis), Want: len(reference)}
	}
	if frameLength <= 0 {
		frameLength = common.DefaultFrameLength
	}
	var intervals []common.Interval
	start := -1
	for i := 0; i <= len(reference); i++ {
		differ := i < len(reference) && reference[i] != hypothesis[i]
		switch {
		case differ && start < 0:
			start = i
		case !differ && start >= 0:
			intervals = append(intervals, common.Interval{
				Start: int64(start) * frameLength,
				End:   int64(i) * frameLength,
			})
			start = -1
		}
	}
	return intervals, nil
}

// Condense merges intervals separated by at most maxGap. Inner boundaries are
// padded by half the gap, the outer ones by the whole gap, clamped to
// [0, total). A zero total leaves the end unclamped.
func Condense(intervals []common.Interval, maxGap time.Duration, total time.Duration) []common.Interval {
	if len(intervals) == 0 {
		return nil
	}
	gap := maxGap.Milliseconds()
	limit := total.Milliseconds()

	out := []common.Interval{{
		Start: max(intervals[0].Start-gap, 0),
		End:   intervals[0].End,
	}}
	in := &out[0]
	for _, curr := range intervals[1:] {
		if curr.Start-in.End <= gap {
			in.End = max(in.End, curr.End)
			continue
		}
		in.End += gap / 2
		out = append(out, common.Interval{
			Start: curr.Start - gap/2,
			End:   curr.End,
		})
		in = &out[len(out)-1]
	}
	if limit <= 0 {
		in.End += gap
	} else if in.End < limit {
		in.End = min(in.End+gap, limit)
	}
	return out
}

func Duration(intervals []common.Interval) (time.Duration, error) {
	var total time.Duration
	for _, in := range intervals {
		if in.Empty() {
			return 0, errors.New("malformed interval timings (start >= end)")
		}
		total += time.Duration(in.Duration()) * time.Millisecond
	}
	return total, nil
}

func filterComplex(intervals []common.Interval, offset time.Duration) string {
	seconds := func(ms int64) float64 {
		return (time.Duration(ms)*time.Millisecond + offset).Seconds()
	}
	if len(intervals) == 1 {
		return fmt.Sprintf(
			"[0:a]atrim=start=%.3f:end=%.3f,asetpts=PTS-STARTPTS[out]",
			seconds(intervals[0].Start),
			seconds(intervals[0].End))
	}
	var filterParts []string
	var inputs strings.Builder
	for idx, trim := range intervals {
		filterParts = append(filterParts, fmt.Sprintf(
			"[0:a]atrim=start=%.3f:end=%.3f,asetpts=PTS-STARTPTS[s%d]",
			seconds(trim.Start),
			seconds(trim.End),
			idx))
		fmt.Fprintf(&inputs, "[s%d]", idx)
	}
	filterParts = append(filterParts, fmt.Sprintf("%sconcat=n=%d:v=0:a=1[out]", inputs.String(), len(intervals)))
	return strings.Join(filterParts, ";")
}

// ProcessFile cuts the clip audio down to intervals (relative to the clip's
// comparison window) and writes the concatenation to output with ffmpeg.
func ProcessFile(ctx context.Context, clip common.Clip, intervals []common.Interval, output string) error {
	if clip.Audio == "" {
		return fmt.Errorf("%s: no audio file", clip.Name)
	}
	if len(intervals) == 0 {
		return fmt.Errorf("%s: nothing to condense", clip.Name)
	}
	offset := time.Duration(clip.StartTime * float64(time.Second))

	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-y",
		"-i", clip.Audio,
		"-filter_complex", filterComplex(intervals, offset),
		"-map", "[out]",
		output)
	if err := os.MkdirAll(filepath.Dir(output), 0755); err != nil {
		return err
	}
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("ffmpeg: %w: %s", err, lastLine(out))
	}
	return nil
}

func lastLine(out []byte) string {
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	return lines[len(lines)-1]
}

// OutputPath names the condensed file after the clip inside dir.
func OutputPath(dir string, clip common.Clip) string {
	return filepath.Join(dir, clip.Name+"_disagreements.mp3")
}
