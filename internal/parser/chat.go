package parser

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/shirerpeton/diarEval/internal/common"
)

// chatBullet delimits media time stamps in CHAT transcripts.
const chatBullet = "\x15"

var utteranceSuffixes = map[string]string{
	"&=vocalization": "_voc",
	"&=vfx":          "_vfx",
	"&=crying":       "_cry",
}

type chatLine struct {
	number int
	text   string
}

// ParseChat reads the utterance tiers of a LENA CHAT export. Each utterance
// becomes a segment under its speaker code with the utterance type
// (e.g. "&=vocalization") as the mark.
func ParseChat(r io.Reader, opts Options) (common.TierMap, error) {
	var utterances []chatLine
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	number := 0
	// continuation lines belong to the utterance only when no header or
	// dependent tier came in between
	inUtterance := false
	for scanner.Scan() {
		number++
		line := strings.TrimRight(scanner.Text(), "\r")
		switch {
		case strings.HasPrefix(line, "*"):
			utterances = append(utterances, chatLine{number: number, text: line})
			inUtterance = true
		case strings.HasPrefix(line, "\t"):
			if inUtterance {
				last := &utterances[len(utterances)-1]
				last.text += " " + strings.TrimSpace(line)
			}
		default:
			inUtterance = false
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	tiers := make(common.TierMap)
	for _, u := range utterances {
		speaker, segment, err := parseUtterance(u.text)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", u.number, err)
		}
		if opts.ChildSubcategories && segment.Mark != "" {
			suffix, ok := utteranceSuffixes[segment.Mark]
			if !ok {
				return nil, fmt.Errorf("line %d: unknown utterance type %q", u.number, segment.Mark)
			}
			speaker += suffix
		}
		tiers[speaker] = append(tiers[speaker], segment)
	}
	return tiers, nil
}

func parseUtterance(line string) (string, common.Segment, error) {
	var segment common.Segment
	colon := strings.Index(line, ":")
	if colon < 2 {
		return "", segment, fmt.Errorf("malformed utterance %q", line)
	}
	speaker := line[1:colon]
	body := strings.ReplaceAll(line[colon+1:], chatBullet, " ")
	fields := strings.Fields(body)
	if len(fields) == 0 {
		return "", segment, fmt.Errorf("utterance for %s has no time stamp", speaker)
	}

	stamp := strings.Split(fields[len(fields)-1], "_")
	if len(stamp) < 2 {
		return "", segment, fmt.Errorf("utterance for %s has no time stamp", speaker)
	}
	start, err := strconv.ParseInt(stamp[len(stamp)-2], 10, 64)
	if err != nil {
		return "", segment, fmt.Errorf("bad start time: %w", err)
	}
	end, err := strconv.ParseInt(stamp[len(stamp)-1], 10, 64)
	if err != nil {
		return "", segment, fmt.Errorf("bad end time: %w", err)
	}
	segment.Interval = common.Interval{Start: start, End: end}

	for _, f := range fields[:len(fields)-1] {
		if strings.HasPrefix(f, "&=") {
			segment.Mark = f
			break
		}
	}
	return speaker, segment, nil
}
