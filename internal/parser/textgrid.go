package parser

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode"

	"github.com/shirerpeton/diarEval/internal/common"
)

const (
	IntervalTier = "IntervalTier"
	PointTier    = "TextTier"

	childTier = "Child"
)

// childSubcategories normalises the inconsistent marks transcribers used on
// the Child tier. Any other non-empty mark is a vocalization.
var childSubcategories = map[string]string{
	"V":   "_v",
	"VO":  "_vo",
	"F":   "_f",
	" V":  "_v",
	"F\t": "_f",
	" F":  "_f",
	" ":   "_vo",
	"Ｆ":   "_f",
	"VＯ":  "_vo",
}

type GridInterval struct {
	XMin float64
	XMax float64
	Text string
}

func (i GridInterval) Duration() float64 {
	return i.XMax - i.XMin
}

type GridPoint struct {
	Time float64
	Mark string
}

type Tier struct {
	Class     string
	Name      string
	XMin      float64
	XMax      float64
	Intervals []GridInterval
	Points    []GridPoint
}

type TextGrid struct {
	XMin  float64
	XMax  float64
	Items []*Tier
}

func (g *TextGrid) Tier(name string) (*Tier, bool) {
	for _, t := range g.Items {
		if t.Name == name {
			return t, true
		}
	}
	return nil, false
}

func blank(s string) bool {
	return strings.TrimFunc(s, unicode.IsSpace) == ""
}

// Tiers converts the interval tiers to a tier map. Blank intervals are gaps,
// not annotations, and times are truncated to whole milliseconds.
func (g *TextGrid) Tiers(opts Options) common.TierMap {
	tiers := make(common.TierMap)
	for _, tier := range g.Items {
		if tier.Class != IntervalTier {
			continue
		}
		for _, interval := range tier.Intervals {
			if blank(interval.Text) {
				continue
			}
			name := tier.Name
			if opts.ChildSubcategories && tier.Name == childTier {
				if suffix, ok := childSubcategories[interval.Text]; ok {
					name += suffix
				} else {
					name += "_vo"
				}
			}
			tiers[name] = append(tiers[name], common.Segment{
				Interval: common.Interval{
					Start: int64(interval.XMin * 1000),
					End:   int64(interval.XMax * 1000),
				},
				Mark: interval.Text,
			})
		}
	}
	return tiers
}

// CountPoints counts the marks of a point tier that appear in included,
// e.g. conversational turns.
func (g *TextGrid) CountPoints(tierName string, included common.Set) (int, error) {
	tier, ok := g.Tier(tierName)
	if !ok {
		return 0, fmt.Errorf("no tier named %q", tierName)
	}
	count := 0
	for _, p := range tier.Points {
		if included.Has(p.Mark) {
			count++
		}
	}
	return count, nil
}

// CountIntervals counts the annotated intervals of a tier whose mark is not
// in excluded.
func (g *TextGrid) CountIntervals(tierName string, excluded common.Set) (int, error) {
	tier, ok := g.Tier(tierName)
	if !ok {
		return 0, fmt.Errorf("no tier named %q", tierName)
	}
	count := 0
	for _, i := range tier.Intervals {
		if blank(i.Text) || excluded.Has(i.Text) {
			continue
		}
		count++
	}
	return count, nil
}

// Duration sums the length in seconds of the annotated intervals of a tier.
func (g *TextGrid) Duration(tierName string) (float64, error) {
	tier, ok := g.Tier(tierName)
	if !ok {
		return 0, fmt.Errorf("no tier named %q", tierName)
	}
	var sum float64
	for _, i := range tier.Intervals {
		if i.Text != "" {
			sum += i.Duration()
		}
	}
	return sum, nil
}

// ParseTextGrid reads a Praat TextGrid in the long text format.
func ParseTextGrid(r io.Reader) (*TextGrid, error) {
	grid := &TextGrid{}
	var (
		tier     *Tier
		interval *GridInterval
		point    *GridPoint
	)
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	number := 0
	next := func() (string, bool) {
		if !scanner.Scan() {
			return "", false
		}
		number++
		return strings.TrimRight(scanner.Text(), "\r"), true
	}

	for {
		raw, ok := next()
		if !ok {
			break
		}
		line := strings.TrimSpace(strings.TrimPrefix(raw, "\ufeff"))
		switch {
		case line == "":
			continue
		case strings.HasPrefix(line, "item ["):
			if line == "item []:" {
				continue
			}
			tier = &Tier{}
			interval, point = nil, nil
			grid.Items = append(grid.Items, tier)
			continue
		case strings.HasPrefix(line, "intervals ["):
			if tier == nil {
				return nil, fmt.Errorf("line %d: interval outside of a tier", number)
			}
			tier.Intervals = append(tier.Intervals, GridInterval{})
			interval, point = &tier.Intervals[len(tier.Intervals)-1], nil
			continue
		case strings.HasPrefix(line, "points ["):
			if tier == nil {
				return nil, fmt.Errorf("line %d: point outside of a tier", number)
			}
			tier.Points = append(tier.Points, GridPoint{})
			interval, point = nil, &tier.Points[len(tier.Points)-1]
			continue
		}

		key, value, found := strings.Cut(line, "=")
		if !found {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)

		if strings.HasPrefix(value, `"`) {
			for !closedString(value) {
				more, ok := next()
				if !ok {
					return nil, fmt.Errorf("line %d: unterminated string", number)
				}
				value += "\n" + more
			}
			value = unquote(strings.TrimSpace(value))
		}

		var err error
		switch key {
		case "class":
			if tier != nil {
				tier.Class = value
			}
		case "name":
			if tier != nil {
				tier.Name = value
			}
		case "xmin", "xmax":
			var f float64
			if f, err = strconv.ParseFloat(value, 64); err != nil {
				break
			}
			switch {
			case interval != nil:
				setBound(&interval.XMin, &interval.XMax, key, f)
			case tier != nil:
				setBound(&tier.XMin, &tier.XMax, key, f)
			default:
				setBound(&grid.XMin, &grid.XMax, key, f)
			}
		case "text":
			if interval != nil {
				interval.Text = value
			}
		case "number", "time":
			if point != nil {
				point.Time, err = strconv.ParseFloat(value, 64)
			}
		case "mark":
			if point != nil {
				point.Mark = value
			}
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %s: %w", number, key, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(grid.Items) == 0 {
		return nil, fmt.Errorf("no tiers found")
	}
	return grid, nil
}

func setBound(lo, hi *float64, key string, v float64) {
	if key == "xmin" {
		*lo = v
	} else {
		*hi = v
	}
}

// closedString reports whether a quoted value has its closing quote. Quotes
// inside are doubled.
func closedString(v string) bool {
	v = strings.TrimRightFunc(v, unicode.IsSpace)
	if len(v) < 2 || !strings.HasSuffix(v, `"`) {
		return false
	}
	quotes := 0
	for i := len(v) - 1; i > 0 && v[i] == '"'; i-- {
		quotes++
	}
	return quotes%2 == 1
}

func unquote(v string) string {
	v = strings.TrimPrefix(v, `"`)
	v = strings.TrimSuffix(v, `"`)
	return strings.ReplaceAll(v, `""`, `"`)
}
