package extcal

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/md-rashed-zaman/timeslot/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/timeslot/services/booking-service/internal/model"
)

type fakeConnections struct {
	conns []model.CalendarConnection
}

func (f *fakeConnections) CalendarConnections(ctx context.Context, userID string) ([]model.CalendarConnection, error) {
	return f.conns, nil
}

// fakeProvider answers with fixed intervals, an error, or by blocking until
// the per-call timeout fires.
type fakeProvider struct {
	name  string
	busy  []availability.Interval
	err   error
	block bool
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) BusyIntervals(ctx context.Context, conn model.CalendarConnection, from, to time.Time) ([]availability.Interval, error) {
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return f.busy, f.err
}

func day(h, m int) time.Time {
	return time.Date(2026, 1, 26, h, m, 0, 0, time.UTC)
}

func TestBridge_MergesHealthyProviders(t *testing.T) {
	conns := &fakeConnections{conns: []model.CalendarConnection{
		{ID: "c1", UserID: "u1", Provider: "google"},
		{ID: "c2", UserID: "u1", Provider: "caldav"},
	}}
	providers := []Provider{
		&fakeProvider{name: "google", busy: []availability.Interval{{Start: day(10, 0), End: day(11, 0)}}},
		&fakeProvider{name: "caldav", busy: []availability.Interval{{Start: day(10, 30), End: day(11, 30)}}},
	}
	b := NewBridge(conns, providers, time.Second, slog.Default())

	got := b.ExternalBusy(context.Background(), "u1", day(9, 0), day(17, 0))
	if len(got) != 1 {
		t.Fatalf("expected overlapping intervals merged into one, got %d", len(got))
	}
	if !got[0].Start.Equal(day(10, 0)) || !got[0].End.Equal(day(11, 30)) {
		t.Fatalf("expected [10:00, 11:30), got %v-%v", got[0].Start, got[0].End)
	}
}

func TestBridge_FailingProviderIsIgnored(t *testing.T) {
	conns := &fakeConnections{conns: []model.CalendarConnection{
		{ID: "c1", UserID: "u1", Provider: "google"},
		{ID: "c2", UserID: "u1", Provider: "caldav"},
	}}
	providers := []Provider{
		&fakeProvider{name: "google", err: errors.New("token expired")},
		&fakeProvider{name: "caldav", busy: []availability.Interval{{Start: day(14, 0), End: day(15, 0)}}},
	}
	b := NewBridge(conns, providers, time.Second, slog.Default())

	got := b.ExternalBusy(context.Background(), "u1", day(9, 0), day(17, 0))
	if len(got) != 1 || !got[0].Start.Equal(day(14, 0)) {
		t.Fatalf("expected only the healthy calendar's interval, got %v", got)
	}
}

func TestBridge_SlowProviderTimesOut(t *testing.T) {
	conns := &fakeConnections{conns: []model.CalendarConnection{
		{ID: "c1", UserID: "u1", Provider: "google"},
		{ID: "c2", UserID: "u1", Provider: "caldav"},
	}}
	providers := []Provider{
		&fakeProvider{name: "google", block: true},
		&fakeProvider{name: "caldav", busy: []availability.Interval{{Start: day(14, 0), End: day(15, 0)}}},
	}
	b := NewBridge(conns, providers, 50*time.Millisecond, slog.Default())

	started := time.Now()
	got := b.ExternalBusy(context.Background(), "u1", day(9, 0), day(17, 0))
	if elapsed := time.Since(started); elapsed > 2*time.Second {
		t.Fatalf("lookup blocked for %v", elapsed)
	}
	if len(got) != 1 || !got[0].Start.Equal(day(14, 0)) {
		t.Fatalf("expected only the responsive calendar's interval, got %v", got)
	}
}

func TestBridge_UnknownProviderSkipped(t *testing.T) {
	conns := &fakeConnections{conns: []model.CalendarConnection{
		{ID: "c1", UserID: "u1", Provider: "outlook"},
	}}
	b := NewBridge(conns, nil, time.Second, slog.Default())

	if got := b.ExternalBusy(context.Background(), "u1", day(9, 0), day(17, 0)); len(got) != 0 {
		t.Fatalf("expected no intervals, got %v", got)
	}
}
