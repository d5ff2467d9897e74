package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

/*
VIEWPORT

A viewport is the list of document lines a client currently shows, written as
inclusive [begin, end] ranges:

  [[0, 34], [36, 74]]

Order matters. Word alignment puts the source-language lines in the first range
and the target-language lines in the second, and the editor reads them back by
position. Ranges never overlap, so every visible line belongs to exactly one range.
*/

var (
	ErrInvalidRange      = errors.New("invalid line range")
	ErrOverlappingRanges = errors.New("viewport ranges overlap")
	ErrViewportTooLarge  = errors.New("viewport covers too many lines")
)

// MaxViewportLines bounds how many lines one viewport may cover.
// Every covered line costs a live subscription.
const MaxViewportLines = 10000

// LineRange is an inclusive range of line indices
type LineRange struct {
	Begin int
	End   int
}

// Len returns the number of lines covered by the range
func (r LineRange) Len() int {
	return r.End - r.Begin + 1
}

func (r LineRange) String() string {
	return fmt.Sprintf("[%d,%d]", r.Begin, r.End)
}

// MarshalJSON encodes the range as a two-element array
func (r LineRange) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]int{r.Begin, r.End})
}

func (r *LineRange) UnmarshalJSON(data []byte) error {
	var pair []int
	if err := json.Unmarshal(data, &pair); err != nil {
		return fmt.Errorf("failed to decode line range: %w", err)
	}
	if len(pair) != 2 {
		return fmt.Errorf("%w: expected [begin,end], got %d values", ErrInvalidRange, len(pair))
	}
	r.Begin, r.End = pair[0], pair[1]
	return nil
}

// Viewport is an ordered list of disjoint line ranges
type Viewport []LineRange

// Validate rejects negative, inverted and overlapping ranges, and viewports
// covering more than MaxViewportLines lines
func (v Viewport) Validate() error {
	total := 0
	for i, r := range v {
		if r.Begin < 0 || r.End < r.Begin {
			return fmt.Errorf("%w: range %d is %s", ErrInvalidRange, i, r)
		}
		// End-Begin cannot overflow once Begin >= 0, End-Begin+1 can
		if r.End-r.Begin >= MaxViewportLines-total {
			return fmt.Errorf("%w: more than %d lines", ErrViewportTooLarge, MaxViewportLines)
		}
		total += r.Len()
	}

	sorted := make(Viewport, len(v))
	copy(sorted, v)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Begin < sorted[j].Begin })

	for i := 1; i < len(sorted); i++ {
		if sorted[i].Begin <= sorted[i-1].End {
			return fmt.Errorf("%w: %s and %s", ErrOverlappingRanges, sorted[i-1], sorted[i])
		}
	}
	return nil
}

// Lines lists every covered line index in viewport order.
// The viewport must have passed Validate.
func (v Viewport) Lines() []int {
	lines := make([]int, 0, v.LineCount())
	for _, r := range v {
		for j := r.Begin; j <= r.End; j++ {
			lines = append(lines, j)
		}
	}
	return lines
}

// LineCount returns how many lines the viewport covers
func (v Viewport) LineCount() int {
	n := 0
	for _, r := range v {
		if r.End >= r.Begin {
			n += r.Len()
		}
	}
	return n
}

// Clone returns an independent copy
func (v Viewport) Clone() Viewport {
	if v == nil {
		return nil
	}
	out := make(Viewport, len(v))
	copy(out, v)
	return out
}

// String renders the viewport in the same form ParseViewport accepts
func (v Viewport) String() string {
	parts := make([]string, len(v))
	for i, r := range v {
		parts[i] = fmt.Sprintf("%d-%d", r.Begin, r.End)
	}
	return strings.Join(parts, ",")
}

// ParseViewport parses "0-2,10-12" style viewports. A single number is a one-line range.
func ParseViewport(s string) (Viewport, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Viewport{}, nil
	}

	var v Viewport
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		begin, end, found := strings.Cut(part, "-")

		b, err := strconv.Atoi(strings.TrimSpace(begin))
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrInvalidRange, part)
		}
		e := b
		if found {
			if e, err = strconv.Atoi(strings.TrimSpace(end)); err != nil {
				return nil, fmt.Errorf("%w: %q", ErrInvalidRange, part)
			}
		}
		v = append(v, LineRange{Begin: b, End: e})
	}

	if err := v.Validate(); err != nil {
		return nil, err
	}
	return v, nil
}
