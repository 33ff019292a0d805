package metadata

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shirerpeton/diarEval/internal/common"
)

const sampleCSV = `ClipNumber,ProcessingFile,StartTimeS,Notes
2,20170202_000000.its,0,
1,20170101_123456.its,120.5,busy morning
`

func TestReadAndClip(t *testing.T) {
	table, err := Read(strings.NewReader(sampleCSV))
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, table.Numbers())

	dirs := Dirs{Chats: "chats", TextGrids: "textgrids", Audio: "audio", AudioExt: ".wav"}
	clip, err := table.Clip(1, dirs, 300)
	require.NoError(t, err)

	want := common.Clip{
		Number:       1,
		Name:         "Clip1",
		Hypothesis:   filepath.Join("chats", "e20170101_123456.cha"),
		Reference:    filepath.Join("textgrids", "Clip1.TextGrid"),
		Audio:        filepath.Join("audio", "20170101_123456.wav"),
		StartTime:    120.5,
		WindowLength: 300,
	}
	if diff := cmp.Diff(want, clip); diff != "" {
		t.Errorf("Clip mismatch (-want +got):\n%s", diff)
	}

	clip, err = table.Clip(2, Dirs{}, 300)
	require.NoError(t, err)
	assert.Empty(t, clip.Audio)
	assert.Equal(t, 0.0, clip.StartTime)
}

func TestWindowColumn(t *testing.T) {
	csv := "ClipNumber,ProcessingFile,StartTimeS,WindowS\n1,a.its,10,60\n2,b.its,20,\n"
	table, err := Read(strings.NewReader(csv))
	require.NoError(t, err)

	clip, err := table.Clip(1, Dirs{}, 300)
	require.NoError(t, err)
	assert.Equal(t, 60.0, clip.WindowLength)

	clip, err = table.Clip(2, Dirs{}, 300)
	require.NoError(t, err)
	assert.Equal(t, 300.0, clip.WindowLength)
}

func TestUnknownClip(t *testing.T) {
	table, err := Read(strings.NewReader(sampleCSV))
	require.NoError(t, err)

	_, err = table.Clip(42, Dirs{}, 300)
	assert.True(t, errors.Is(err, ErrUnknownClip))
}

func TestReadErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{name: "empty", input: ""},
		{name: "missing column", input: "ClipNumber,ProcessingFile\n1,a.its\n"},
		{name: "bad clip number", input: "ClipNumber,ProcessingFile,StartTimeS\none,a.its,0\n"},
		{name: "bad start", input: "ClipNumber,ProcessingFile,StartTimeS\n1,a.its,soon\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Read(strings.NewReader(tt.input))
			assert.Error(t, err)
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clip_data.csv")
	require.NoError(t, os.WriteFile(path, []byte("\ufeff"+sampleCSV), 0644))

	table, err := Load(path)
	require.NoError(t, err)
	row, err := table.Row(1)
	require.NoError(t, err)
	assert.Equal(t, Row{Clip: 1, ProcessingFile: "20170101_123456.its", StartTimeS: 120.5}, row)

	_, err = Load(filepath.Join(t.TempDir(), "missing.csv"))
	assert.Error(t, err)
}
