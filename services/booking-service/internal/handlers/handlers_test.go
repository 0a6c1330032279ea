package handlers

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/md-rashed-zaman/timeslot/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/timeslot/services/booking-service/internal/questions"
)

func TestParseInterval(t *testing.T) {
	start, end, err := parseInterval("2026-03-02T09:00:00Z", "2026-03-02T09:30:00Z")
	if err != nil {
		t.Fatalf("parseInterval failed: %v", err)
	}
	if !end.Equal(start.Add(30 * time.Minute)) {
		t.Fatalf("expected 30 minute interval, got %v to %v", start, end)
	}

	cases := []struct {
		name       string
		start, end string
		field      string
	}{
		{"bad start", "yesterday", "2026-03-02T09:30:00Z", "startTime"},
		{"bad end", "2026-03-02T09:00:00Z", "soon", "endTime"},
		{"end before start", "2026-03-02T09:30:00Z", "2026-03-02T09:00:00Z", "endTime"},
		{"zero length", "2026-03-02T09:00:00Z", "2026-03-02T09:00:00Z", "endTime"},
	}
	for _, tc := range cases {
		_, _, err := parseInterval(tc.start, tc.end)
		var vErr *model.ValidationError
		if !errors.As(err, &vErr) {
			t.Fatalf("%s: expected validation error, got %v", tc.name, err)
		}
		if _, ok := vErr.FieldErrors[tc.field]; !ok {
			t.Fatalf("%s: expected error on %s, got %v", tc.name, tc.field, vErr.FieldErrors)
		}
	}
}

func validIndividualEventType() *model.EventType {
	return &model.EventType{
		Title:             "Intro Call",
		Slug:              "intro-call",
		DurationMinutes:   30,
		BookingWindowDays: 60,
		SchedulingType:    model.SchedulingIndividual,
		Location:          model.LocationVideo,
	}
}

func TestValidateEventType(t *testing.T) {
	if err := validateEventType(validIndividualEventType()); err != nil {
		t.Fatalf("valid event type rejected: %v", err)
	}

	et := validIndividualEventType()
	et.TeamID = "team-1"
	et.SchedulingType = model.SchedulingCollective
	if err := validateEventType(et); err != nil {
		t.Fatalf("valid collective event type rejected: %v", err)
	}

	cases := []struct {
		name  string
		mut   func(*model.EventType)
		field string
	}{
		{"missing title", func(et *model.EventType) { et.Title = "" }, "title"},
		{"uppercase slug", func(et *model.EventType) { et.Slug = "Intro-Call" }, "slug"},
		{"trailing hyphen", func(et *model.EventType) { et.Slug = "intro-" }, "slug"},
		{"duration too short", func(et *model.EventType) { et.DurationMinutes = 3 }, "duration_minutes"},
		{"duration too long", func(et *model.EventType) { et.DurationMinutes = 600 }, "duration_minutes"},
		{"negative buffer", func(et *model.EventType) { et.BufferBeforeMinutes = -5 }, "buffer_before_minutes"},
		{"oversized buffer", func(et *model.EventType) { et.BufferAfterMinutes = 240 }, "buffer_after_minutes"},
		{"negative notice", func(et *model.EventType) { et.MinimumNoticeMinutes = -1 }, "minimum_notice_minutes"},
		{"zero window", func(et *model.EventType) { et.BookingWindowDays = 0 }, "booking_window_days"},
		{"window beyond a year", func(et *model.EventType) { et.BookingWindowDays = 400 }, "booking_window_days"},
		{"individual with team", func(et *model.EventType) { et.TeamID = "team-1" }, "team_id"},
		{"collective without team", func(et *model.EventType) { et.SchedulingType = model.SchedulingCollective }, "team_id"},
		{"unknown scheduling type", func(et *model.EventType) { et.SchedulingType = "PAIRED" }, "scheduling_type"},
		{"unknown location", func(et *model.EventType) { et.Location = "CARRIER_PIGEON" }, "location"},
		{"too many reminders", func(et *model.EventType) {
			et.ReminderOffsetsMinutes = []int{1, 2, 3, 4, 5, 6}
		}, "reminder_offsets_minutes"},
		{"reminder offset too far out", func(et *model.EventType) {
			et.ReminderOffsetsMinutes = []int{40 * 24 * 60}
		}, "reminder_offsets_minutes"},
		{"question without label", func(et *model.EventType) {
			et.Questions = []questions.Question{{ID: "q1", Kind: questions.KindText}}
		}, "questions[0]"},
		{"duplicate question id", func(et *model.EventType) {
			et.Questions = []questions.Question{
				{ID: "q1", Label: "Topic", Kind: questions.KindText},
				{ID: "q1", Label: "Notes", Kind: questions.KindTextArea},
			}
		}, "questions[1]"},
	}
	for _, tc := range cases {
		et := validIndividualEventType()
		tc.mut(et)
		err := validateEventType(et)
		var vErr *model.ValidationError
		if !errors.As(err, &vErr) {
			t.Fatalf("%s: expected validation error, got %v", tc.name, err)
		}
		if _, ok := vErr.FieldErrors[tc.field]; !ok {
			t.Fatalf("%s: expected error on %s, got %v", tc.name, tc.field, vErr.FieldErrors)
		}
	}
}

func TestCheckTimezone(t *testing.T) {
	if msg := checkTimezone("America/New_York"); msg != "" {
		t.Fatalf("IANA zone rejected: %s", msg)
	}
	if msg := checkTimezone(""); msg == "" {
		t.Fatal("empty timezone should be rejected")
	}
	if msg := checkTimezone("Mars/Olympus"); msg == "" {
		t.Fatal("unknown zone should be rejected")
	}
}

func TestBookingItemTokens(t *testing.T) {
	cancelled := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	b := model.Booking{
		ID:              "b1",
		HostID:          "u1",
		Status:          model.BookingCancelled,
		StartTime:       time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
		EndTime:         time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC),
		RescheduleToken: "resched-token",
		CancelToken:     "cancel-token",
		CancelledAt:     &cancelled,
	}

	guest := toBookingItem(b, true)
	if guest.RescheduleToken != "resched-token" || guest.CancelToken != "cancel-token" {
		t.Fatal("guest view should carry both tokens")
	}
	if guest.CancelledAt != "2026-03-02T10:00:00Z" {
		t.Fatalf("unexpected cancelled_at: %s", guest.CancelledAt)
	}

	host := toBookingItem(b, false)
	if host.RescheduleToken != "" || host.CancelToken != "" {
		t.Fatal("host view must not leak guest tokens")
	}
}

func TestHostFrom(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "http://example.com/api?host_id=u2", nil)
	req.Header.Set("X-Host-Id", "u1")
	if got := hostFrom(req); got != "u1" {
		t.Fatalf("header should win, got %s", got)
	}

	req = httptest.NewRequest(http.MethodGet, "http://example.com/api?host_id=u2", nil)
	if got := hostFrom(req); got != "u2" {
		t.Fatalf("expected query fallback, got %s", got)
	}
}

func TestWriteDomainErrorStatus(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cases := []struct {
		err  error
		want int
	}{
		{model.Invalid("slug", "already in use"), http.StatusBadRequest},
		{&model.NotFoundError{Entity: "booking", ID: "b1"}, http.StatusNotFound},
		{&model.SlotUnavailableError{}, http.StatusConflict},
		{&model.BufferConflictError{}, http.StatusConflict},
		{&model.AlreadyCancelledError{BookingID: "b1"}, http.StatusConflict},
		{&model.ExternalServiceError{Service: "hold store", Err: errors.New("down")}, http.StatusServiceUnavailable},
		{errors.New("broken pipe"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		rw := httptest.NewRecorder()
		writeDomainError(rw, logger, tc.err)
		if rw.Code != tc.want {
			t.Fatalf("%T: expected %d, got %d", tc.err, tc.want, rw.Code)
		}
	}
}
