package availability

import "time"

// DefaultStepMinutes is the slot grid granularity: candidate starts are
// offered every 15 minutes from the window start.
const DefaultStepMinutes = 15

// Slot is one bookable candidate interval.
type Slot struct {
	Start time.Time
	End   time.Time
}

// GenerateSlots returns candidate slots of the given duration inside the
// window, stepping from the window start. Slots starting before earliest
// (now plus the event type's minimum notice) are skipped; a slot is emitted
// only if it ends on or before the window end.
func GenerateSlots(window Interval, duration, step time.Duration, earliest time.Time) []Slot {
	if duration <= 0 || step <= 0 {
		return nil
	}
	if !window.End.After(window.Start) {
		return nil
	}
	if window.Start.Add(duration).After(window.End) {
		return nil
	}

	var slots []Slot
	for t := window.Start; !t.Add(duration).After(window.End); t = t.Add(step) {
		if t.Before(earliest) {
			continue
		}
		slots = append(slots, Slot{Start: t, End: t.Add(duration)})
	}
	return slots
}

// GenerateAll runs GenerateSlots over each window and concatenates the
// results. Windows are expected sorted and non-overlapping (Merge output),
// so the slot sequence is ordered.
func GenerateAll(windows []Interval, duration, step time.Duration, earliest time.Time) []Slot {
	var slots []Slot
	for _, w := range windows {
		slots = append(slots, GenerateSlots(w, duration, step, earliest)...)
	}
	return slots
}
