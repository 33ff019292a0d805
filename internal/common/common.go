package common

import (
	"errors"
	"fmt"
	"sort"
)

const (
	Overlap            = "Overlap"
	UnspecifiedOverlap = "UnspecifiedOverlap"

	DefaultFrameLength   int64   = 10
	DefaultWindowLength  float64 = 300
	DefaultInitialFrames         = 30000
)

var (
	ErrIncompleteMapping = errors.New("incomplete category mapping")
	ErrLengthMismatch    = errors.New("frame sequence length mismatch")
)

// Interval is a half-open [Start, End) range in milliseconds.
type Interval struct {
	Start int64
	End   int64
}

func (i Interval) Empty() bool {
	return i.Start >= i.End
}

func (i Interval) Duration() int64 {
	if i.Empty() {
		return 0
	}
	return i.End - i.Start
}

type Segment struct {
	Interval
	Mark string
}

// TierMap maps a label to the segments annotated under it.
type TierMap map[string][]Segment

func (t TierMap) Labels() []string {
	labels := make([]string, 0, len(t))
	for label := range t {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	return labels
}

// MaxEnd is the latest end time over every segment, 0 for an empty map.
func (t TierMap) MaxEnd() int64 {
	var end int64
	for _, segments := range t {
		for _, s := range segments {
			if s.End > end {
				end = s.End
			}
		}
	}
	return end
}

func (t TierMap) Clone() TierMap {
	out := make(TierMap, len(t))
	for label, segments := range t {
		out[label] = append([]Segment(nil), segments...)
	}
	return out
}

// Mapping collapses raw stream labels into canonical categories.
type Mapping map[string]string

type Frames []string

// Set is a membership set of category labels.
type Set map[string]struct{}

func NewSet(labels ...string) Set {
	s := make(Set, len(labels))
	for _, l := range labels {
		s[l] = struct{}{}
	}
	return s
}

func (s Set) Has(label string) bool {
	_, ok := s[label]
	return ok
}

func (s Set) Sorted() []string {
	out := make([]string, 0, len(s))
	for l := range s {
		out = append(out, l)
	}
	sort.Strings(out)
	return out
}

type LengthMismatchError struct {
	Got  int
	Want int
}

func (e *LengthMismatchError) Error() string {
	return fmt.Sprintf("length of two frame lists are different: %d != %d", e.Got, e.Want)
}

func (e *LengthMismatchError) Is(target error) bool {
	return target == ErrLengthMismatch
}

// Clip is one recording comparison job.
type Clip struct {
	Number       int
	Name         string
	Hypothesis   string
	Reference    string
	Audio        string
	StartTime    float64
	WindowLength float64
}
