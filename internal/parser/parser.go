package parser

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/shirerpeton/diarEval/internal/common"
)

// DefaultSubtitleLabel is used for subtitle cues that carry no speaker name.
const DefaultSubtitleLabel = "Speech"

type Options struct {
	// ChildSubcategories splits child tiers by utterance type.
	ChildSubcategories bool
	// SubtitleLabel overrides DefaultSubtitleLabel.
	SubtitleLabel string
}

// ParseFile reads any supported annotation file into a tier map, picking the
// format from the extension.
func ParseFile(path string, opts Options) (common.TierMap, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".cha":
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return ParseChat(f, opts)
	case ".textgrid":
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		grid, err := ParseTextGrid(f)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		return grid.Tiers(opts), nil
	case ".srt", ".ass":
		label := opts.SubtitleLabel
		if label == "" {
			label = DefaultSubtitleLabel
		}
		return ParseSubtitles(path, label)
	default:
		return nil, fmt.Errorf("unsupported annotation format: %s", path)
	}
}

func getDurationFromTimestamp(timestamp string) (time.Duration, error) {
	parts := strings.Split(strings.TrimSpace(timestamp), ":")
	if len(parts) != 3 {
		return 0, fmt.Errorf("can't convert timestamp %q to duration", timestamp)
	}
	hours, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, fmt.Errorf("can't convert timestamp to duration, error in hours: %w", err)
	}
	minutes, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, fmt.Errorf("can't convert timestamp to duration, error in minutes: %w", err)
	}
	sep := "."
	if strings.Contains(parts[2], ",") {
		sep = ","
	}
	parts = strings.Split(parts[2], sep)
	seconds, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, fmt.Errorf("can't convert timestamp to duration, error in seconds: %w", err)
	}
	var milliseconds int
	if len(parts) > 1 {
		fraction := parts[1]
		// ASS uses centiseconds
		for len(fraction) < 3 {
			fraction += "0"
		}
		milliseconds, err = strconv.Atoi(fraction[:3])
		if err != nil {
			return 0, fmt.Errorf("can't convert timestamp to duration, error in milliseconds: %w", err)
		}
	}
	duration := time.Duration(hours)*time.Hour +
		time.Duration(minutes)*time.Minute +
		time.Duration(seconds)*time.Second +
		time.Duration(milliseconds)*time.Millisecond
	return duration, nil
}

// ParseSubtitles reads an SRT or ASS file as a single-stream annotation.
// ASS dialogue lines with a speaker name are filed under that name.
func ParseSubtitles(path string, label string) (common.TierMap, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	contentStr := strings.ReplaceAll(string(content), "\r\n", "\n")
	if strings.HasSuffix(strings.ToLower(path), ".ass") {
		return parseAssSub(contentStr, label)
	}
	return parseSrtSub(contentStr, label)
}

func parseSrtSub(content string, label string) (common.TierMap, error) {
	tiers := make(common.TierMap)
	lines := strings.Split(content, "\n")
	for i := 0; i < len(lines); i++ {
		line := lines[i]
		if !strings.Contains(line, "-->") {
			continue
		}
		parts := strings.Fields(line)
		if len(parts) < 3 {
			return nil, fmt.Errorf("line %d: malformed cue timing", i+1)
		}
		start, err := getDurationFromTimestamp(parts[0])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", i+1, err)
		}
		end, err := getDurationFromTimestamp(parts[2])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", i+1, err)
		}
		var text []string
		for i+1 < len(lines) && strings.TrimSpace(lines[i+1]) != "" {
			i++
			text = append(text, strings.TrimSpace(lines[i]))
		}
		tiers[label] = append(tiers[label], common.Segment{
			Interval: common.Interval{Start: start.Milliseconds(), End: end.Milliseconds()},
			Mark:     strings.Join(text, " "),
		})
	}
	return tiers, nil
}

func parseAssSub(content string, label string) (common.TierMap, error) {
	tiers := make(common.TierMap)
	for i, line := range strings.Split(content, "\n") {
		if !strings.HasPrefix(line, "Dialogue: ") {
			continue
		}
		parts := strings.SplitN(strings.TrimPrefix(line, "Dialogue: "), ",", 10)
		if len(parts) < 10 {
			return nil, errors.New("malformed subtitle file")
		}
		start, err := getDurationFromTimestamp(parts[1])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", i+1, err)
		}
		end, err := getDurationFromTimestamp(parts[2])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", i+1, err)
		}
		tier := label
		if name := strings.TrimSpace(parts[4]); name != "" {
			tier = name
		}
		tiers[tier] = append(tiers[tier], common.Segment{
			Interval: common.Interval{Start: start.Milliseconds(), End: end.Milliseconds()},
			Mark:     strings.TrimSpace(parts[9]),
		})
	}
	return tiers, nil
}
