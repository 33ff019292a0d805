package align

import (
	"errors"
	"strconv"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shirerpeton/diarEval/internal/common"
)

func indexed(n int) common.Frames {
	out := make(common.Frames, n)
	for i := range out {
		out[i] = strconv.Itoa(i)
	}
	return out
}

func TestFramesExtractsWindow(t *testing.T) {
	full := indexed(1000)
	windowed := make(common.Frames, 300)

	got, err := Frames(full, windowed, 2.0, 3.0, 10)
	require.NoError(t, err)
	require.Len(t, got, 300)
	assert.Equal(t, full[200:500], got)
}

func TestFramesLengthMismatch(t *testing.T) {
	full := indexed(1000)

	tests := []struct {
		name     string
		start    float64
		window   float64
		windowed int
		got      int
	}{
		{name: "windowed too short", start: 2.0, window: 3.0, windowed: 299, got: 300},
		{name: "windowed too long", start: 2.0, window: 3.0, windowed: 301, got: 300},
		{name: "window past the end", start: 8.0, window: 3.0, windowed: 300, got: 200},
		{name: "start past the end", start: 20.0, window: 3.0, windowed: 300, got: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sub, err := Frames(full, make(common.Frames, tt.windowed), tt.start, tt.window, 10)
			assert.Nil(t, sub)
			require.Error(t, err)
			assert.True(t, errors.Is(err, common.ErrLengthMismatch))

			var mismatch *common.LengthMismatchError
			require.True(t, errors.As(err, &mismatch))
			assert.Equal(t, tt.got, mismatch.Got)
			assert.Equal(t, tt.windowed, mismatch.Want)
		})
	}
}

func TestFramesDoesNotAlias(t *testing.T) {
	full := indexed(100)
	got, err := Frames(full, make(common.Frames, 10), 0.1, 0.1, 10)
	require.NoError(t, err)

	got[0] = "changed"
	assert.Equal(t, "10", full[10])
}

func TestWindowFrameLength(t *testing.T) {
	full := indexed(100)
	assert.Equal(t, full[2:5], Window(full, 0.2, 0.3, 100))
	assert.Equal(t, full[20:50], Window(full, 0.2, 0.3, 0))
}

func seg(start, end int64, mark string) common.Segment {
	return common.Segment{Interval: common.Interval{Start: start, End: end}, Mark: mark}
}

func TestSegmentsCropAndShift(t *testing.T) {
	tiers := common.TierMap{
		"Female": {seg(100, 500, "before"), seg(1000, 2500, "straddles start"), seg(4000, 6000, "straddles end")},
		"Child":  {seg(2500, 3000, "inside")},
		"TV":     {seg(6000, 7000, "after")},
	}

	got := Segments(tiers, 2.0, 3.0)

	want := common.TierMap{
		"Female": {seg(0, 500, "straddles start"), seg(2000, 3000, "straddles end")},
		"Child":  {seg(500, 1000, "inside")},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Segments mismatch (-want +got):\n%s", diff)
	}
}
