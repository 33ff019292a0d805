package metadata

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/shirerpeton/diarEval/internal/common"
)

var ErrUnknownClip = errors.New("unknown clip")

const (
	colClip    = "ClipNumber"
	colFile    = "ProcessingFile"
	colStart   = "StartTimeS"
	colWindowS = "WindowS"
)

type Row struct {
	Clip           int
	ProcessingFile string
	StartTimeS     float64
	// WindowS is zero when the table has no per-clip window length.
	WindowS float64
}

type Table struct {
	rows map[int]Row
}

// Dirs locates the per-clip annotation files.
type Dirs struct {
	Chats     string
	TextGrids string
	Audio     string
	// AudioExt is appended to the processing file stem, e.g. ".wav".
	AudioExt string
}

func Load(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	t, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

func Read(r io.Reader) (*Table, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))] = i
	}
	for _, required := range []string{colClip, colFile, colStart} {
		if _, ok := cols[required]; !ok {
			return nil, fmt.Errorf("missing column %s", required)
		}
	}

	t := &Table{rows: make(map[int]Row)}
	line := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, err
		}
		row := Row{ProcessingFile: strings.TrimSpace(record[cols[colFile]])}
		if row.Clip, err = strconv.Atoi(strings.TrimSpace(record[cols[colClip]])); err != nil {
			return nil, fmt.Errorf("line %d: %s: %w", line, colClip, err)
		}
		if row.StartTimeS, err = strconv.ParseFloat(strings.TrimSpace(record[cols[colStart]]), 64); err != nil {
			return nil, fmt.Errorf("line %d: %s: %w", line, colStart, err)
		}
		if i, ok := cols[colWindowS]; ok && strings.TrimSpace(record[i]) != "" {
			if row.WindowS, err = strconv.ParseFloat(strings.TrimSpace(record[i]), 64); err != nil {
				return nil, fmt.Errorf("line %d: %s: %w", line, colWindowS, err)
			}
		}
		t.rows[row.Clip] = row
	}
	return t, nil
}

func (t *Table) Row(clip int) (Row, error) {
	row, ok := t.rows[clip]
	if !ok {
		return Row{}, fmt.Errorf("clip %d: %w", clip, ErrUnknownClip)
	}
	return row, nil
}

// Numbers lists every clip in the table in ascending order.
func (t *Table) Numbers() []int {
	out := make([]int, 0, len(t.rows))
	for n := range t.rows {
		out = append(out, n)
	}
	sort.Ints(out)
	return out
}

// Clip resolves the files of one clip: the LENA export is e<stem>.cha and the
// transcription is Clip<n>.TextGrid.
func (t *Table) Clip(number int, dirs Dirs, windowLength float64) (common.Clip, error) {
	row, err := t.Row(number)
	if err != nil {
		return common.Clip{}, err
	}
	stem, _, _ := strings.Cut(row.ProcessingFile, ".")
	clip := common.Clip{
		Number:       number,
		Name:         fmt.Sprintf("Clip%d", number),
		Hypothesis:   filepath.Join(dirs.Chats, "e"+stem+".cha"),
		Reference:    filepath.Join(dirs.TextGrids, fmt.Sprintf("Clip%d.TextGrid", number)),
		StartTime:    row.StartTimeS,
		WindowLength: windowLength,
	}
	if row.WindowS > 0 {
		clip.WindowLength = row.WindowS
	}
	if dirs.Audio != "" {
		clip.Audio = filepath.Join(dirs.Audio, stem+dirs.AudioExt)
	}
	return clip, nil
}
