package condenser

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shirerpeton/diarEval/internal/common"
)

func iv(start, end int64) common.Interval {
	return common.Interval{Start: start, End: end}
}

func TestDisagreements(t *testing.T) {
	ref := common.Frames{"A", "A", "B", "B", "A"}
	hyp := common.Frames{"A", "B", "B", "A", "A"}

	got, err := Disagreements(ref, hyp, 10)
	require.NoError(t, err)
	if diff := cmp.Diff([]common.Interval{iv(10, 20), iv(30, 40)}, got); diff != "" {
		t.Errorf("Disagreements() mismatch (-want +got):\n%s", diff)
	}

	got, err = Disagreements(common.Frames{"A", "B"}, common.Frames{"B", "A"}, 10)
	require.NoError(t, err)
	assert.Equal(t, []common.Interval{iv(0, 20)}, got, "run reaching the end is closed")

	got, err = Disagreements(ref, ref, 10)
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = Disagreements(ref, hyp[:3], 10)
	assert.ErrorIs(t, err, common.ErrLengthMismatch)
}

func TestCondense(t *testing.T) {
	tests := []struct {
		name      string
		intervals []common.Interval
		gap       time.Duration
		total     time.Duration
		want      []common.Interval
	}{
		{
			name:      "empty",
			intervals: nil,
			gap:       time.Second,
			want:      nil,
		},
		{
			name:      "merge and pad",
			intervals: []common.Interval{iv(1000, 2000), iv(2500, 3000), iv(10000, 11000)},
			gap:       time.Second,
			total:     20 * time.Second,
			want:      []common.Interval{iv(0, 3500), iv(9500, 12000)},
		},
		{
			name:      "end clamped to total",
			intervals: []common.Interval{iv(5000, 6000)},
			gap:       time.Second,
			total:     6500 * time.Millisecond,
			want:      []common.Interval{iv(4000, 6500)},
		},
		{
			name:      "no total",
			intervals: []common.Interval{iv(1000, 2000)},
			gap:       time.Second,
			want:      []common.Interval{iv(0, 3000)},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Condense(tt.intervals, tt.gap, tt.total)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Condense() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestDuration(t *testing.T) {
	d, err := Duration([]common.Interval{iv(0, 3500), iv(9500, 12000)})
	require.NoError(t, err)
	assert.Equal(t, 6*time.Second, d)

	_, err = Duration([]common.Interval{iv(100, 100)})
	assert.Error(t, err)
}

func TestFilterComplex(t *testing.T) {
	assert.Equal(t,
		"[0:a]atrim=start=2.000:end=2.500,asetpts=PTS-STARTPTS[out]",
		filterComplex([]common.Interval{iv(0, 500)}, 2*time.Second))

	assert.Equal(t,
		"[0:a]atrim=start=0.000:end=0.500,asetpts=PTS-STARTPTS[s0];"+
			"[0:a]atrim=start=1.000:end=1.500,asetpts=PTS-STARTPTS[s1];"+
			"[s0][s1]concat=n=2:v=0:a=1[out]",
		filterComplex([]common.Interval{iv(0, 500), iv(1000, 1500)}, 0))
}

func TestProcessFileErrors(t *testing.T) {
	ctx := context.Background()
	err := ProcessFile(ctx, common.Clip{Name: "Clip1"}, []common.Interval{iv(0, 10)}, "out.mp3")
	assert.ErrorContains(t, err, "no audio file")

	err = ProcessFile(ctx, common.Clip{Name: "Clip1", Audio: "a.wav"}, nil, "out.mp3")
	assert.ErrorContains(t, err, "nothing to condense")
}

func TestOutputPath(t *testing.T) {
	assert.Equal(t, "output/Clip7_disagreements.mp3", OutputPath("output", common.Clip{Name: "Clip7"}))
}

func TestLastLine(t *testing.T) {
	assert.Equal(t, "Conversion failed!", lastLine([]byte("ffmpeg version 6\nfoo.wav: No such file\nConversion failed!\n")))
}
