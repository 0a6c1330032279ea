package availability

import (
	"sort"
	"time"
)

// Interval is a half-open [Start, End) span. All intervals handled by this
// package are UTC instants; timezone handling ends at the window projection.
type Interval struct {
	Start time.Time
	End   time.Time
}

// Overlaps reports whether two half-open intervals share any instant:
// [a.Start,a.End) overlaps [b.Start,b.End) iff a.Start < b.End && b.Start < a.End.
func (iv Interval) Overlaps(other Interval) bool {
	return iv.Start.Before(other.End) && other.Start.Before(iv.End)
}

// Contains reports whether [start, end) lies entirely inside the interval.
func (iv Interval) Contains(start, end time.Time) bool {
	return !start.Before(iv.Start) && !end.After(iv.End)
}

func sortIntervals(in []Interval) {
	sort.Slice(in, func(i, j int) bool {
		if !in[i].Start.Equal(in[j].Start) {
			return in[i].Start.Before(in[j].Start)
		}
		return in[i].End.Before(in[j].End)
	})
}

// Merge sorts intervals and coalesces overlapping or touching spans. Empty
// and inverted inputs are dropped.
func Merge(in []Interval) []Interval {
	var spans []Interval
	for _, iv := range in {
		if iv.End.After(iv.Start) {
			spans = append(spans, iv)
		}
	}
	if len(spans) == 0 {
		return nil
	}
	sortIntervals(spans)

	merged := make([]Interval, 0, len(spans))
	for _, cur := range spans {
		if len(merged) == 0 {
			merged = append(merged, cur)
			continue
		}
		last := &merged[len(merged)-1]
		if cur.Start.After(last.End) {
			merged = append(merged, cur)
			continue
		}
		if cur.End.After(last.End) {
			last.End = cur.End
		}
	}
	return merged
}

// Intersect returns the spans present in both interval sets. Inputs need not
// be sorted; the result is merged and ordered.
func Intersect(a, b []Interval) []Interval {
	a = Merge(a)
	b = Merge(b)
	var out []Interval
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		start := a[i].Start
		if b[j].Start.After(start) {
			start = b[j].Start
		}
		end := a[i].End
		if b[j].End.Before(end) {
			end = b[j].End
		}
		if end.After(start) {
			out = append(out, Interval{Start: start, End: end})
		}
		if a[i].End.Before(b[j].End) {
			i++
		} else {
			j++
		}
	}
	return out
}

// Subtract removes blocks from base, possibly splitting base into several
// windows. Blocks outside base are clipped away.
func Subtract(base Interval, blocks []Interval) []Interval {
	if !base.End.After(base.Start) {
		return nil
	}
	var clipped []Interval
	for _, blk := range blocks {
		s, e := blk.Start, blk.End
		if !s.Before(base.End) || !e.After(base.Start) {
			continue
		}
		if s.Before(base.Start) {
			s = base.Start
		}
		if e.After(base.End) {
			e = base.End
		}
		if e.After(s) {
			clipped = append(clipped, Interval{Start: s, End: e})
		}
	}
	if len(clipped) == 0 {
		return []Interval{base}
	}
	merged := Merge(clipped)

	var out []Interval
	cursor := base.Start
	for _, m := range merged {
		if m.Start.After(cursor) {
			out = append(out, Interval{Start: cursor, End: m.Start})
		}
		if m.End.After(cursor) {
			cursor = m.End
		}
	}
	if base.End.After(cursor) {
		out = append(out, Interval{Start: cursor, End: base.End})
	}
	return out
}
