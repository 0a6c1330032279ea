package availability

import "time"

// BusyInterval is occupied time together with the buffer padding its owning
// booking demands. Buffers belong to the existing booking: a candidate slot
// needs no buffer of its own to collide with one.
type BusyInterval struct {
	Start        time.Time
	End          time.Time
	BufferBefore time.Duration
	BufferAfter  time.Duration
}

// Raw is the occupied time itself.
func (b BusyInterval) Raw() Interval {
	return Interval{Start: b.Start, End: b.End}
}

// Expanded is the occupied time widened by its buffers.
func (b BusyInterval) Expanded() Interval {
	return Interval{Start: b.Start.Add(-b.BufferBefore), End: b.End.Add(b.BufferAfter)}
}

type ConflictKind int

const (
	ConflictNone ConflictKind = iota
	ConflictDirect
	ConflictBuffer
)

// Check classifies the candidate [start, end) against busy time. All raw
// intervals are tested before any buffer zone, so a candidate that overlaps
// one booking's buffer and another booking's actual time still reports the
// direct conflict.
func Check(start, end time.Time, busy []BusyInterval) ConflictKind {
	cand := Interval{Start: start, End: end}
	for _, b := range busy {
		if cand.Overlaps(b.Raw()) {
			return ConflictDirect
		}
	}
	for _, b := range busy {
		if cand.Overlaps(b.Expanded()) {
			return ConflictBuffer
		}
	}
	return ConflictNone
}

// FilterAvailable drops slots whose interval overlaps any busy interval's
// buffer-expanded span.
func FilterAvailable(slots []Slot, busy []BusyInterval) []Slot {
	if len(busy) == 0 {
		return slots
	}
	out := make([]Slot, 0, len(slots))
	for _, s := range slots {
		if Check(s.Start, s.End, busy) == ConflictNone {
			out = append(out, s)
		}
	}
	return out
}
