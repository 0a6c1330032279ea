package booking

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/md-rashed-zaman/timeslot/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/timeslot/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/timeslot/services/booking-service/internal/outbox"
	"github.com/md-rashed-zaman/timeslot/services/booking-service/internal/questions"
)

// memStore mimics the postgres store: InTx serializes on one mutex per host
// (the advisory lock), writes stage in the tx and apply on commit, and
// InsertBooking enforces the overlap backstop the exclusion constraint
// provides in production.
type memStore struct {
	mu        sync.Mutex
	hostLocks map[string]*sync.Mutex
	bookings  map[string]model.Booking
	idem      map[string]string
	events    []outbox.Event
}

func newMemStore() *memStore {
	return &memStore{
		hostLocks: make(map[string]*sync.Mutex),
		bookings:  make(map[string]model.Booking),
		idem:      make(map[string]string),
	}
}

type memTx struct {
	s        *memStore
	inserted []model.Booking
	updated  map[string]model.Booking
	idem     map[string]string
	events   []outbox.Event
}

func (s *memStore) hostLock(hostID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.hostLocks[hostID] == nil {
		s.hostLocks[hostID] = &sync.Mutex{}
	}
	return s.hostLocks[hostID]
}

func (s *memStore) InTx(ctx context.Context, hostIDs []string, fn func(tx TxStore) error) error {
	sorted := append([]string(nil), hostIDs...)
	sort.Strings(sorted)
	for _, h := range sorted {
		lk := s.hostLock(h)
		lk.Lock()
		defer lk.Unlock()
	}

	tx := &memTx{s: s, updated: make(map[string]model.Booking), idem: make(map[string]string)}
	if err := fn(tx); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range tx.inserted {
		s.bookings[b.ID] = b
	}
	for id, b := range tx.updated {
		s.bookings[id] = b
	}
	for k, v := range tx.idem {
		s.idem[k] = v
	}
	s.events = append(s.events, tx.events...)
	return nil
}

func (s *memStore) Booking(ctx context.Context, id string) (model.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[id]
	if !ok {
		return model.Booking{}, &model.NotFoundError{Entity: "booking", ID: id}
	}
	return b, nil
}

func (s *memStore) GroupBookings(ctx context.Context, groupID string) ([]model.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Booking
	for _, b := range s.bookings {
		if b.GroupID == groupID {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].GroupPrimary != out[j].GroupPrimary {
			return out[i].GroupPrimary
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *memStore) ListByHost(ctx context.Context, hostID string, from, to time.Time, limit int) ([]model.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Booking
	for _, b := range s.bookings {
		if b.HostID == hostID && b.StartTime.Before(to) && b.EndTime.After(from) {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memStore) eventTypes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.events))
	for i, e := range s.events {
		out[i] = e.EventType
	}
	return out
}

// view merges committed and staged rows.
func (tx *memTx) view() []model.Booking {
	tx.s.mu.Lock()
	defer tx.s.mu.Unlock()
	var out []model.Booking
	for id, b := range tx.s.bookings {
		if upd, ok := tx.updated[id]; ok {
			b = upd
		}
		out = append(out, b)
	}
	out = append(out, tx.inserted...)
	return out
}

func (tx *memTx) BusyIntervals(ctx context.Context, hostID string, from, to time.Time, excludeBookingID string) ([]availability.BusyInterval, error) {
	var out []availability.BusyInterval
	for _, b := range tx.view() {
		if b.HostID != hostID || b.ID == excludeBookingID || !b.Status.Blocks() {
			continue
		}
		bi := availability.BusyInterval{
			Start:        b.StartTime,
			End:          b.EndTime,
			BufferBefore: time.Duration(b.BufferBeforeMinutes) * time.Minute,
			BufferAfter:  time.Duration(b.BufferAfterMinutes) * time.Minute,
		}
		if bi.Expanded().Overlaps(availability.Interval{Start: from, End: to}) {
			out = append(out, bi)
		}
	}
	return out, nil
}

func (tx *memTx) InsertBooking(ctx context.Context, b *model.Booking) error {
	requested := availability.Interval{Start: b.StartTime, End: b.EndTime}
	for _, existing := range tx.view() {
		if existing.HostID == b.HostID && existing.Status.Blocks() &&
			requested.Overlaps(availability.Interval{Start: existing.StartTime, End: existing.EndTime}) {
			return &model.SlotUnavailableError{Start: b.StartTime, End: b.EndTime}
		}
	}
	tx.inserted = append(tx.inserted, *b)
	return nil
}

func (tx *memTx) BookingForUpdate(ctx context.Context, bookingID string) (model.Booking, error) {
	for _, b := range tx.view() {
		if b.ID == bookingID {
			return b, nil
		}
	}
	return model.Booking{}, &model.NotFoundError{Entity: "booking", ID: bookingID}
}

func (tx *memTx) UpdateBookingTimes(ctx context.Context, bookingID string, start, end time.Time) error {
	b, err := tx.BookingForUpdate(ctx, bookingID)
	if err != nil {
		return err
	}
	b.StartTime, b.EndTime = start, end
	tx.updated[bookingID] = b
	return nil
}

func (tx *memTx) SetBookingStatus(ctx context.Context, bookingID string, status model.BookingStatus) error {
	b, err := tx.BookingForUpdate(ctx, bookingID)
	if err != nil {
		return err
	}
	b.Status = status
	tx.updated[bookingID] = b
	return nil
}

func (tx *memTx) SetMeetingURL(ctx context.Context, bookingID, url string) error {
	b, err := tx.BookingForUpdate(ctx, bookingID)
	if err != nil {
		return err
	}
	b.MeetingURL = url
	tx.updated[bookingID] = b
	return nil
}

func (tx *memTx) CancelBooking(ctx context.Context, bookingID, reason string) (time.Time, error) {
	b, err := tx.BookingForUpdate(ctx, bookingID)
	if err != nil {
		return time.Time{}, err
	}
	now := time.Now().UTC()
	b.Status = model.BookingCancelled
	b.CancelReason = reason
	b.CancelledAt = &now
	tx.updated[bookingID] = b
	return now, nil
}

func (tx *memTx) LockIdempotencyKey(ctx context.Context, hostID, key string) (string, bool, error) {
	k := hostID + "|" + key
	if id, ok := tx.idem[k]; ok {
		return id, id != "", nil
	}
	tx.s.mu.Lock()
	id, ok := tx.s.idem[k]
	tx.s.mu.Unlock()
	if ok {
		return id, id != "", nil
	}
	tx.idem[k] = ""
	return "", false, nil
}

func (tx *memTx) FinalizeIdempotency(ctx context.Context, hostID, key, bookingID string) error {
	tx.idem[hostID+"|"+key] = bookingID
	return nil
}

func (tx *memTx) InsertEvent(ctx context.Context, evt outbox.Event) error {
	tx.events = append(tx.events, evt)
	return nil
}

type fakeEventTypes struct {
	byID map[string]model.EventType
}

func (f *fakeEventTypes) EventType(ctx context.Context, id string) (model.EventType, error) {
	et, ok := f.byID[id]
	if !ok {
		return model.EventType{}, &model.NotFoundError{Entity: "event type", ID: id}
	}
	return et, nil
}

type fakeUsers struct {
	byID map[string]model.User
}

func (f *fakeUsers) User(ctx context.Context, id string) (model.User, error) {
	u, ok := f.byID[id]
	if !ok {
		return model.User{}, &model.NotFoundError{Entity: "user", ID: id}
	}
	return u, nil
}

type fakeSchedules struct {
	weekly    map[string][]model.WeeklySlot
	overrides map[string]*model.DateOverride
}

func (f *fakeSchedules) WeeklySlots(ctx context.Context, userID string) ([]model.WeeklySlot, error) {
	return f.weekly[userID], nil
}

func (f *fakeSchedules) DateOverride(ctx context.Context, userID, date string) (*model.DateOverride, error) {
	return f.overrides[userID+"/"+date], nil
}

type fakeExternal struct {
	busy map[string][]availability.Interval
}

func (f *fakeExternal) ExternalBusy(ctx context.Context, userID string, from, to time.Time) []availability.Interval {
	return f.busy[userID]
}

type fakeHolds struct {
	holder string
	err    error
}

func (f *fakeHolds) HeldBy(ctx context.Context, hostID string, start, end time.Time) (string, error) {
	return f.holder, f.err
}

type fixture struct {
	store      *memStore
	ledger     *Ledger
	eventTypes *fakeEventTypes
	schedules  *fakeSchedules
	external   *fakeExternal
	holds      *fakeHolds
	now        time.Time
}

// newFixture wires a ledger around host u1 working Mondays 09:00-17:00 UTC
// with a 30-minute event type et1, clock fixed six days ahead of the target
// Monday 2026-01-26.
func newFixture() *fixture {
	now := time.Date(2026, 1, 20, 12, 0, 0, 0, time.UTC)
	store := newMemStore()
	eventTypes := &fakeEventTypes{byID: map[string]model.EventType{
		"et1": {
			ID:                  "et1",
			HostID:              "u1",
			Title:               "Intro call",
			DurationMinutes:     30,
			BufferBeforeMinutes: 0,
			BufferAfterMinutes:  0,
			SchedulingType:      model.SchedulingIndividual,
			Location:            model.LocationVideo,
		},
	}}
	users := &fakeUsers{byID: map[string]model.User{
		"u1": {ID: "u1", Name: "Host One", Email: "one@example.com", Timezone: "UTC"},
		"u2": {ID: "u2", Name: "Host Two", Email: "two@example.com", Timezone: "UTC"},
	}}
	schedules := &fakeSchedules{
		weekly: map[string][]model.WeeklySlot{
			"u1": {{UserID: "u1", Weekday: time.Monday, StartMinute: 9 * 60, EndMinute: 17 * 60}},
			"u2": {{UserID: "u2", Weekday: time.Monday, StartMinute: 9 * 60, EndMinute: 17 * 60}},
		},
		overrides: make(map[string]*model.DateOverride),
	}
	external := &fakeExternal{busy: make(map[string][]availability.Interval)}
	holds := &fakeHolds{}

	f := &fixture{store: store, eventTypes: eventTypes, schedules: schedules, external: external, holds: holds, now: now}
	f.ledger = NewLedger(Deps{
		Store:                  store,
		EventTypes:             eventTypes,
		Users:                  users,
		Schedules:              schedules,
		External:               external,
		Holds:                  holds,
		Now:                    func() time.Time { return f.now },
		DefaultReminderOffsets: []time.Duration{24 * time.Hour, time.Hour},
	})
	return f
}

func slotAt(h, m int) (time.Time, time.Time) {
	start := time.Date(2026, 1, 26, h, m, 0, 0, time.UTC)
	return start, start.Add(30 * time.Minute)
}

func validRequest(start, end time.Time) CreateRequest {
	return CreateRequest{
		EventTypeID:   "et1",
		GuestName:     "Ada Lovelace",
		GuestEmail:    "ada@example.com",
		GuestTimezone: "Europe/London",
		Start:         start,
		End:           end,
	}
}

func countEvents(types []string, want string) int {
	n := 0
	for _, t := range types {
		if t == want {
			n++
		}
	}
	return n
}

func TestCreate_Succeeds(t *testing.T) {
	f := newFixture()
	start, end := slotAt(10, 0)

	b, err := f.ledger.Create(context.Background(), validRequest(start, end))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b.Status != model.BookingConfirmed {
		t.Fatalf("expected CONFIRMED, got %s", b.Status)
	}
	if b.ID == "" || b.RescheduleToken == "" || b.CancelToken == "" {
		t.Fatal("expected id and tokens to be set")
	}
	if b.RescheduleToken == b.CancelToken {
		t.Fatal("expected distinct tokens")
	}
	if b.DurationMinutes != 30 {
		t.Fatalf("expected duration snapshot 30, got %d", b.DurationMinutes)
	}

	evts := f.store.eventTypes()
	if countEvents(evts, "booking.created.v1") != 1 {
		t.Fatalf("expected one created event, got %v", evts)
	}
	// Both default offsets are in the future and the guest has no phone, so
	// two email reminders.
	if countEvents(evts, "booking.reminder.requested.v1") != 2 {
		t.Fatalf("expected two reminder requests, got %v", evts)
	}
}

func TestCreate_PendingWhenConfirmationRequired(t *testing.T) {
	f := newFixture()
	et := f.eventTypes.byID["et1"]
	et.RequiresConfirmation = true
	f.eventTypes.byID["et1"] = et

	start, end := slotAt(10, 0)
	b, err := f.ledger.Create(context.Background(), validRequest(start, end))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b.Status != model.BookingPending {
		t.Fatalf("expected PENDING, got %s", b.Status)
	}
	// Reminders wait for confirmation.
	if n := countEvents(f.store.eventTypes(), "booking.reminder.requested.v1"); n != 0 {
		t.Fatalf("expected no reminder requests before confirmation, got %d", n)
	}
}

func TestCreate_DirectConflict(t *testing.T) {
	f := newFixture()
	start, end := slotAt(10, 0)
	if _, err := f.ledger.Create(context.Background(), validRequest(start, end)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err := f.ledger.Create(context.Background(), validRequest(start, end))
	var slotErr *model.SlotUnavailableError
	if !errors.As(err, &slotErr) {
		t.Fatalf("expected SlotUnavailableError, got %v", err)
	}
}

func TestCreate_BufferConflict(t *testing.T) {
	f := newFixture()
	et := f.eventTypes.byID["et1"]
	et.BufferBeforeMinutes = 15
	et.BufferAfterMinutes = 15
	f.eventTypes.byID["et1"] = et

	start, end := slotAt(10, 0)
	if _, err := f.ledger.Create(context.Background(), validRequest(start, end)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// 10:45 is clear of the raw interval but inside the 15-minute after
	// buffer of the 10:00-10:30 booking.
	start2, end2 := slotAt(10, 45)
	_, err := f.ledger.Create(context.Background(), validRequest(start2, end2))
	var bufErr *model.BufferConflictError
	if !errors.As(err, &bufErr) {
		t.Fatalf("expected BufferConflictError, got %v", err)
	}
}

func TestCreate_OutsideScheduleWindow(t *testing.T) {
	f := newFixture()
	start, end := slotAt(7, 0) // before the 09:00 window opens

	_, err := f.ledger.Create(context.Background(), validRequest(start, end))
	var slotErr *model.SlotUnavailableError
	if !errors.As(err, &slotErr) {
		t.Fatalf("expected SlotUnavailableError, got %v", err)
	}
}

func TestCreate_MinimumNotice(t *testing.T) {
	f := newFixture()
	et := f.eventTypes.byID["et1"]
	et.MinimumNoticeMinutes = 14 * 24 * 60 // two weeks
	f.eventTypes.byID["et1"] = et

	start, end := slotAt(10, 0) // only six days out
	_, err := f.ledger.Create(context.Background(), validRequest(start, end))
	var slotErr *model.SlotUnavailableError
	if !errors.As(err, &slotErr) {
		t.Fatalf("expected SlotUnavailableError, got %v", err)
	}
}

func TestCreate_ValidationErrors(t *testing.T) {
	f := newFixture()
	start, end := slotAt(10, 0)

	req := validRequest(start, end)
	req.GuestName = ""
	req.GuestEmail = "not-an-email"
	req.GuestTimezone = "Mars/Olympus"
	_, err := f.ledger.Create(context.Background(), req)
	var verr *model.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	for _, field := range []string{"guestName", "guestEmail", "guestTimezone"} {
		if _, ok := verr.FieldErrors[field]; !ok {
			t.Fatalf("expected field error for %s, got %v", field, verr.FieldErrors)
		}
	}

	req = validRequest(start, start.Add(45*time.Minute))
	if _, err := f.ledger.Create(context.Background(), req); !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError for duration mismatch, got %v", err)
	}
}

func TestCreate_RequiredQuestion(t *testing.T) {
	f := newFixture()
	et := f.eventTypes.byID["et1"]
	et.Questions = []questions.Question{
		{ID: "topic", Label: "Topic", Kind: questions.KindText, Required: true},
	}
	f.eventTypes.byID["et1"] = et

	start, end := slotAt(10, 0)
	_, err := f.ledger.Create(context.Background(), validRequest(start, end))
	var verr *model.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if _, ok := verr.FieldErrors["responses.topic"]; !ok {
		t.Fatalf("expected responses.topic error, got %v", verr.FieldErrors)
	}

	req := validRequest(start, end)
	req.Answers = map[string]questions.RawAnswer{"topic": {Text: "pricing"}}
	b, err := f.ledger.Create(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b.Answers["topic"].Text != "pricing" {
		t.Fatalf("expected stored answer, got %+v", b.Answers)
	}
}

func TestCreate_UnknownEventType(t *testing.T) {
	f := newFixture()
	start, end := slotAt(10, 0)
	req := validRequest(start, end)
	req.EventTypeID = "nope"

	_, err := f.ledger.Create(context.Background(), req)
	var nf *model.NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
}

func TestCreate_ExternalBusyBlocks(t *testing.T) {
	f := newFixture()
	start, end := slotAt(10, 0)
	f.external.busy["u1"] = []availability.Interval{{Start: start, End: end}}

	_, err := f.ledger.Create(context.Background(), validRequest(start, end))
	var slotErr *model.SlotUnavailableError
	if !errors.As(err, &slotErr) {
		t.Fatalf("expected SlotUnavailableError, got %v", err)
	}
}

func TestCreate_ForeignHoldBlocks(t *testing.T) {
	f := newFixture()
	f.holds.holder = "other-checkout"
	start, end := slotAt(10, 0)

	_, err := f.ledger.Create(context.Background(), validRequest(start, end))
	var slotErr *model.SlotUnavailableError
	if !errors.As(err, &slotErr) {
		t.Fatalf("expected SlotUnavailableError, got %v", err)
	}
}

func TestCreate_OwnHoldPasses(t *testing.T) {
	f := newFixture()
	f.holds.holder = "my-checkout"
	start, end := slotAt(10, 0)

	req := validRequest(start, end)
	req.HoldRef = "my-checkout"
	if _, err := f.ledger.Create(context.Background(), req); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestCreate_HoldLookupFailureIgnored(t *testing.T) {
	f := newFixture()
	f.holds.err = errors.New("redis down")
	start, end := slotAt(10, 0)

	if _, err := f.ledger.Create(context.Background(), validRequest(start, end)); err != nil {
		t.Fatalf("expected booking despite hold store failure, got %v", err)
	}
}

// Two concurrent creates for the identical slot: exactly one wins, the other
// reports the slot gone.
func TestCreate_ConcurrentSameSlot(t *testing.T) {
	f := newFixture()
	start, end := slotAt(10, 0)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			req := validRequest(start, end)
			req.GuestEmail = fmt.Sprintf("guest%d@example.com", i)
			_, errs[i] = f.ledger.Create(context.Background(), req)
		}(i)
	}
	wg.Wait()

	var winners, losers int
	for _, err := range errs {
		if err == nil {
			winners++
			continue
		}
		var slotErr *model.SlotUnavailableError
		if !errors.As(err, &slotErr) {
			t.Fatalf("expected SlotUnavailableError for loser, got %v", err)
		}
		losers++
	}
	if winners != 1 || losers != 1 {
		t.Fatalf("expected exactly one winner and one loser, got %d/%d", winners, losers)
	}
	if n := countEvents(f.store.eventTypes(), "booking.created.v1"); n != 1 {
		t.Fatalf("expected one created event, got %d", n)
	}
}

func TestCreate_IdempotentReplay(t *testing.T) {
	f := newFixture()
	start, end := slotAt(10, 0)
	req := validRequest(start, end)
	req.IdempotencyKey = "retry-7f3a"

	first, err := f.ledger.Create(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := f.ledger.Create(context.Background(), req)
	if err != nil {
		t.Fatalf("expected replay, got %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("expected replayed booking %s, got %s", first.ID, second.ID)
	}
	if len(f.store.bookings) != 1 {
		t.Fatalf("expected one booking after retry, got %d", len(f.store.bookings))
	}
	if n := countEvents(f.store.eventTypes(), "booking.created.v1"); n != 1 {
		t.Fatalf("expected one created event after retry, got %d", n)
	}
}

func TestReschedule_ExcludesOwnInterval(t *testing.T) {
	f := newFixture()
	start, end := slotAt(10, 0)
	b, err := f.ledger.Create(context.Background(), validRequest(start, end))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// The new interval overlaps the old one; the booking must not conflict
	// with itself.
	newStart, newEnd := slotAt(10, 15)
	moved, err := f.ledger.RescheduleWithToken(context.Background(), b.ID, b.RescheduleToken, newStart, newEnd)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !moved.StartTime.Equal(newStart) {
		t.Fatalf("expected start %v, got %v", newStart, moved.StartTime)
	}

	evts := f.store.eventTypes()
	if countEvents(evts, "booking.rescheduled.v1") != 1 {
		t.Fatalf("expected rescheduled event, got %v", evts)
	}
	if countEvents(evts, "booking.reminder.cancelled.v1") != 1 {
		t.Fatalf("expected reminder cancel on reschedule, got %v", evts)
	}
}

func TestReschedule_WrongToken(t *testing.T) {
	f := newFixture()
	start, end := slotAt(10, 0)
	b, err := f.ledger.Create(context.Background(), validRequest(start, end))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	newStart, newEnd := slotAt(11, 0)
	_, err = f.ledger.RescheduleWithToken(context.Background(), b.ID, "deadbeef", newStart, newEnd)
	var nf *model.NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("expected NotFoundError for wrong token, got %v", err)
	}
}

func TestReschedule_ConflictWithOtherBooking(t *testing.T) {
	f := newFixture()
	start1, end1 := slotAt(10, 0)
	if _, err := f.ledger.Create(context.Background(), validRequest(start1, end1)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	start2, end2 := slotAt(14, 0)
	b2, err := f.ledger.Create(context.Background(), validRequest(start2, end2))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err = f.ledger.Reschedule(context.Background(), b2.ID, start1, end1)
	var slotErr *model.SlotUnavailableError
	if !errors.As(err, &slotErr) {
		t.Fatalf("expected SlotUnavailableError, got %v", err)
	}
}

func TestCancel_EmitsOnceThenAlreadyCancelled(t *testing.T) {
	f := newFixture()
	start, end := slotAt(10, 0)
	b, err := f.ledger.Create(context.Background(), validRequest(start, end))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cancelled, err := f.ledger.CancelWithToken(context.Background(), b.ID, b.CancelToken, "something came up")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cancelled.Status != model.BookingCancelled || cancelled.CancelledAt == nil {
		t.Fatalf("expected cancelled booking, got %+v", cancelled)
	}
	if cancelled.CancelReason != "something came up" {
		t.Fatalf("expected reason stored, got %q", cancelled.CancelReason)
	}
	before := len(f.store.eventTypes())

	_, err = f.ledger.CancelWithToken(context.Background(), b.ID, b.CancelToken, "again")
	var already *model.AlreadyCancelledError
	if !errors.As(err, &already) {
		t.Fatalf("expected AlreadyCancelledError, got %v", err)
	}
	if after := len(f.store.eventTypes()); after != before {
		t.Fatalf("second cancel dispatched side effects: %d -> %d events", before, after)
	}
}

func TestCancel_FreesSlot(t *testing.T) {
	f := newFixture()
	start, end := slotAt(10, 0)
	b, err := f.ledger.Create(context.Background(), validRequest(start, end))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := f.ledger.Cancel(context.Background(), b.ID, "host conflict"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := f.ledger.Create(context.Background(), validRequest(start, end)); err != nil {
		t.Fatalf("expected slot free after cancel, got %v", err)
	}
}

func TestConfirm_SchedulesReminders(t *testing.T) {
	f := newFixture()
	et := f.eventTypes.byID["et1"]
	et.RequiresConfirmation = true
	f.eventTypes.byID["et1"] = et

	start, end := slotAt(10, 0)
	b, err := f.ledger.Create(context.Background(), validRequest(start, end))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	confirmed, err := f.ledger.Confirm(context.Background(), b.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if confirmed.Status != model.BookingConfirmed {
		t.Fatalf("expected CONFIRMED, got %s", confirmed.Status)
	}
	evts := f.store.eventTypes()
	if countEvents(evts, "booking.confirmed.v1") != 1 {
		t.Fatalf("expected confirmed event, got %v", evts)
	}
	if countEvents(evts, "booking.reminder.requested.v1") != 2 {
		t.Fatalf("expected reminders scheduled at confirmation, got %v", evts)
	}

	// A second confirm is not a valid transition.
	_, err = f.ledger.Confirm(context.Background(), b.ID)
	var verr *model.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestFinish_Transitions(t *testing.T) {
	f := newFixture()
	start, end := slotAt(10, 0)
	b, err := f.ledger.Create(context.Background(), validRequest(start, end))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	done, err := f.ledger.Complete(context.Background(), b.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if done.Status != model.BookingCompleted {
		t.Fatalf("expected COMPLETED, got %s", done.Status)
	}

	// Completed is terminal: cancel now fails.
	_, err = f.ledger.Cancel(context.Background(), b.ID, "late")
	var verr *model.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestCreateForHosts_CollectiveGroup(t *testing.T) {
	f := newFixture()
	et := f.eventTypes.byID["et1"]
	et.ID = "team-et"
	et.SchedulingType = model.SchedulingCollective
	et.TeamID = "t1"
	f.eventTypes.byID["team-et"] = et

	start, end := slotAt(10, 0)
	req := validRequest(start, end)
	req.EventTypeID = "team-et"

	bookings, err := f.ledger.CreateForHosts(context.Background(), "team-et", []string{"u1", "u2"}, req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(bookings) != 2 {
		t.Fatalf("expected 2 bookings, got %d", len(bookings))
	}
	if bookings[0].GroupID == "" || bookings[0].GroupID != bookings[1].GroupID {
		t.Fatal("expected shared group id")
	}
	if !bookings[0].GroupPrimary || bookings[1].GroupPrimary {
		t.Fatal("expected first booking to be the group primary")
	}
	// One created event per member, reminders only for the primary.
	evts := f.store.eventTypes()
	if countEvents(evts, "booking.created.v1") != 2 {
		t.Fatalf("expected two created events, got %v", evts)
	}
	if countEvents(evts, "booking.reminder.requested.v1") != 2 {
		t.Fatalf("expected reminders once (two offsets), got %v", evts)
	}

	// Cancelling the primary cancels the whole group.
	if _, err := f.ledger.CancelWithToken(context.Background(), bookings[0].ID, bookings[0].CancelToken, "regroup"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, b := range bookings {
		got, err := f.ledger.Get(context.Background(), b.ID)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got.Status != model.BookingCancelled {
			t.Fatalf("expected member %s cancelled, got %s", b.ID, got.Status)
		}
	}
}

func TestCreateForHosts_OneBusyMemberBlocksGroup(t *testing.T) {
	f := newFixture()
	et := f.eventTypes.byID["et1"]
	et.ID = "team-et"
	et.SchedulingType = model.SchedulingCollective
	f.eventTypes.byID["team-et"] = et

	// u2 already has an individual booking at the requested time.
	start, end := slotAt(10, 0)
	f.store.bookings["existing"] = model.Booking{
		ID: "existing", HostID: "u2", Status: model.BookingConfirmed,
		StartTime: start, EndTime: end,
	}

	req := validRequest(start, end)
	req.EventTypeID = "team-et"
	_, err := f.ledger.CreateForHosts(context.Background(), "team-et", []string{"u1", "u2"}, req)
	var slotErr *model.SlotUnavailableError
	if !errors.As(err, &slotErr) {
		t.Fatalf("expected SlotUnavailableError, got %v", err)
	}
	// All-or-nothing: u1 must not have gained a booking.
	list, err := f.ledger.ListByHost(context.Background(), "u1", start.Add(-time.Hour), end.Add(time.Hour), 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("expected no bookings for u1, got %d", len(list))
	}
}
