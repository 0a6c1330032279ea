package availability

import (
	"testing"
	"time"
)

func at(h, m int) time.Time {
	return time.Date(2026, 1, 26, h, m, 0, 0, time.UTC)
}

func TestMerge(t *testing.T) {
	in := []Interval{
		{Start: at(13, 0), End: at(14, 0)},
		{Start: at(9, 0), End: at(10, 30)},
		{Start: at(10, 0), End: at(11, 0)},
		{Start: at(11, 0), End: at(12, 0)}, // touching, coalesces
		{Start: at(15, 0), End: at(15, 0)}, // empty, dropped
	}
	got := Merge(in)
	if len(got) != 2 {
		t.Fatalf("expected 2 merged intervals, got %d", len(got))
	}
	if !got[0].Start.Equal(at(9, 0)) || !got[0].End.Equal(at(12, 0)) {
		t.Fatalf("expected 09:00-12:00, got %v-%v", got[0].Start, got[0].End)
	}
	if !got[1].Start.Equal(at(13, 0)) || !got[1].End.Equal(at(14, 0)) {
		t.Fatalf("expected 13:00-14:00, got %v-%v", got[1].Start, got[1].End)
	}
}

func TestIntersect(t *testing.T) {
	a := []Interval{{Start: at(9, 0), End: at(12, 0)}}
	b := []Interval{{Start: at(10, 0), End: at(13, 0)}}
	got := Intersect(a, b)
	if len(got) != 1 {
		t.Fatalf("expected 1 interval, got %d", len(got))
	}
	if !got[0].Start.Equal(at(10, 0)) || !got[0].End.Equal(at(12, 0)) {
		t.Fatalf("expected 10:00-12:00, got %v-%v", got[0].Start, got[0].End)
	}
}

func TestIntersect_Disjoint(t *testing.T) {
	a := []Interval{{Start: at(9, 0), End: at(10, 0)}}
	b := []Interval{{Start: at(10, 0), End: at(11, 0)}}
	if got := Intersect(a, b); len(got) != 0 {
		t.Fatalf("expected no intersection for touching intervals, got %v", got)
	}
}

func TestSubtract_SplitsBase(t *testing.T) {
	base := Interval{Start: at(9, 0), End: at(17, 0)}
	// The second and third blocks poke out past the base and get clipped.
	blocks := []Interval{
		{Start: at(12, 0), End: at(13, 0)},
		{Start: at(8, 0), End: at(9, 30)},
		{Start: at(16, 30), End: at(18, 0)},
	}
	got := Subtract(base, blocks)
	if len(got) != 2 {
		t.Fatalf("expected 2 windows, got %d: %v", len(got), got)
	}
	if !got[0].Start.Equal(at(9, 30)) || !got[0].End.Equal(at(12, 0)) {
		t.Fatalf("expected 09:30-12:00, got %v-%v", got[0].Start, got[0].End)
	}
	if !got[1].Start.Equal(at(13, 0)) || !got[1].End.Equal(at(16, 30)) {
		t.Fatalf("expected 13:00-16:30, got %v-%v", got[1].Start, got[1].End)
	}
}

func TestSubtract_NoBlocks(t *testing.T) {
	base := Interval{Start: at(9, 0), End: at(17, 0)}
	got := Subtract(base, nil)
	if len(got) != 1 || !got[0].Start.Equal(base.Start) || !got[0].End.Equal(base.End) {
		t.Fatalf("expected base back, got %v", got)
	}
}

func TestOverlapsHalfOpen(t *testing.T) {
	a := Interval{Start: at(9, 0), End: at(10, 0)}
	b := Interval{Start: at(10, 0), End: at(11, 0)}
	if a.Overlaps(b) {
		t.Fatal("touching intervals must not overlap")
	}
	c := Interval{Start: at(9, 59), End: at(10, 1)}
	if !a.Overlaps(c) || !b.Overlaps(c) {
		t.Fatal("expected overlap across the boundary")
	}
}
