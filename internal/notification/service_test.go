package notification

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"testing"
	"time"
)

// fakeStore is an in-memory Store for service tests.
type fakeStore struct {
	notifications []*Notification
	scheduled     []*ScheduledNotification
	recipients    map[string]*Recipient
	bookings      map[string]*BookingContext
	dinners       map[string]*DinnerInfo
	active        map[string][]BookingRef

	failCreate bool
	failDue    bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		recipients: make(map[string]*Recipient),
		bookings:   make(map[string]*BookingContext),
		dinners:    make(map[string]*DinnerInfo),
		active:     make(map[string][]BookingRef),
	}
}

func (f *fakeStore) CreateNotification(ctx context.Context, n *Notification) error {
	if f.failCreate {
		return errors.New("store down")
	}
	f.notifications = append(f.notifications, n)
	return nil
}

func (f *fakeStore) ListForUser(ctx context.Context, userID string, limit, offset int) ([]*Notification, error) {
	var out []*Notification
	for _, n := range f.notifications {
		if n.UserID == userID {
			out = append(out, n)
		}
	}
	return out, nil
}

func (f *fakeStore) UnreadCount(ctx context.Context, userID string) (int, error) {
	count := 0
	for _, n := range f.notifications {
		if n.UserID == userID && !n.IsRead {
			count++
		}
	}
	return count, nil
}

func (f *fakeStore) MarkRead(ctx context.Context, id, userID string, at time.Time) (*Notification, error) {
	for _, n := range f.notifications {
		if n.ID == id && n.UserID == userID {
			if !n.IsRead {
				n.IsRead = true
				readAt := at
				n.ReadAt = &readAt
			}
			return n, nil
		}
	}
	return nil, ErrNotFound
}

func (f *fakeStore) MarkAllRead(ctx context.Context, userID string, at time.Time) (int64, error) {
	var count int64
	for _, n := range f.notifications {
		if n.UserID == userID && !n.IsRead {
			n.IsRead = true
			readAt := at
			n.ReadAt = &readAt
			count++
		}
	}
	return count, nil
}

func (f *fakeStore) Delete(ctx context.Context, id, userID string) error {
	for i, n := range f.notifications {
		if n.ID == id && n.UserID == userID {
			f.notifications = append(f.notifications[:i], f.notifications[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

func (f *fakeStore) CreateScheduled(ctx context.Context, s *ScheduledNotification) error {
	f.scheduled = append(f.scheduled, s)
	return nil
}

func (f *fakeStore) DueScheduled(ctx context.Context, now time.Time) ([]*ScheduledNotification, error) {
	if f.failDue {
		return nil, errors.New("store down")
	}
	var due []*ScheduledNotification
	for _, s := range f.scheduled {
		if !s.IsSent && !s.ScheduledTime.After(now) {
			due = append(due, s)
		}
	}
	return due, nil
}

func (f *fakeStore) CreateAndMarkSent(ctx context.Context, n *Notification, scheduledID string, sentAt time.Time) error {
	for _, s := range f.scheduled {
		if s.ID == scheduledID {
			if s.IsSent {
				return fmt.Errorf("scheduled notification %s already sent", scheduledID)
			}
			s.IsSent = true
			at := sentAt
			s.SentAt = &at
			f.notifications = append(f.notifications, n)
			return nil
		}
	}
	return ErrNotFound
}

func (f *fakeStore) DeleteUnsentForBooking(ctx context.Context, bookingID string) (int64, error) {
	var kept []*ScheduledNotification
	var deleted int64
	for _, s := range f.scheduled {
		if s.BookingID == bookingID && !s.IsSent {
			deleted++
			continue
		}
		kept = append(kept, s)
	}
	f.scheduled = kept
	return deleted, nil
}

func (f *fakeStore) Recipient(ctx context.Context, userID string) (*Recipient, error) {
	rec, ok := f.recipients[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return rec, nil
}

func (f *fakeStore) BookingContext(ctx context.Context, bookingID string) (*BookingContext, error) {
	bc, ok := f.bookings[bookingID]
	if !ok {
		return nil, ErrNotFound
	}
	return bc, nil
}

func (f *fakeStore) DinnerInfo(ctx context.Context, dinnerID string) (*DinnerInfo, error) {
	d, ok := f.dinners[dinnerID]
	if !ok {
		return nil, ErrNotFound
	}
	return d, nil
}

func (f *fakeStore) ActiveBookings(ctx context.Context, dinnerID string) ([]BookingRef, error) {
	return f.active[dinnerID], nil
}

type pushCall struct {
	token string
	title string
	body  string
	data  map[string]string
}

type fakePush struct {
	calls  []pushCall
	result bool
}

func (f *fakePush) Send(ctx context.Context, token, title, body string, data map[string]string) bool {
	f.calls = append(f.calls, pushCall{token: token, title: title, body: body, data: data})
	return f.result
}

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func newTestService(store *fakeStore, gateway *fakePush, now time.Time) *Service {
	return NewService(store, gateway, testLogger(), WithClock(func() time.Time { return now }))
}

func addUser(store *fakeStore, id string, token string) {
	store.recipients[id] = &Recipient{
		ID:          id,
		Email:       id + "@example.com",
		DisplayName: "User " + id,
		DeviceToken: token,
		PushEnabled: true,
	}
}

func TestCreateRejectsUnknownType(t *testing.T) {
	svc := newTestService(newFakeStore(), &fakePush{result: true}, time.Now())

	_, err := svc.Create(context.Background(), CreateParams{
		UserID: "u1", Type: "bogus", Title: "t", Message: "m",
	})
	if !errors.Is(err, ErrInvalidType) {
		t.Fatalf("err = %v, want ErrInvalidType", err)
	}
}

func TestCreatePushesWhenTokenPresent(t *testing.T) {
	store := newFakeStore()
	gateway := &fakePush{result: true}
	addUser(store, "u1", "arn:device:1")
	svc := newTestService(store, gateway, time.Now())

	dinnerID := "d1"
	n, err := svc.Create(context.Background(), CreateParams{
		UserID: "u1", Type: TypeBookingConfirmed,
		Title: "Booking Confirmed!", Message: "See you there",
		DinnerID: &dinnerID,
	})
	if err != nil {
		t.Fatal(err)
	}

	if len(store.notifications) != 1 {
		t.Fatalf("stored %d notifications, want 1", len(store.notifications))
	}
	if len(gateway.calls) != 1 {
		t.Fatalf("push called %d times, want 1", len(gateway.calls))
	}
	call := gateway.calls[0]
	if call.token != "arn:device:1" {
		t.Errorf("push token = %q", call.token)
	}
	if call.data["notification_type"] != "booking_confirmed" {
		t.Errorf("data type = %q", call.data["notification_type"])
	}
	if call.data["notification_id"] != n.ID {
		t.Errorf("data id = %q, want %q", call.data["notification_id"], n.ID)
	}
	if call.data["dinner_id"] != "d1" {
		t.Errorf("data dinner_id = %q", call.data["dinner_id"])
	}
	if _, ok := call.data["booking_id"]; ok {
		t.Error("booking_id present in data, want absent")
	}
}

func TestCreateSkipsPushWithoutToken(t *testing.T) {
	store := newFakeStore()
	gateway := &fakePush{result: true}
	addUser(store, "u1", "")
	svc := newTestService(store, gateway, time.Now())

	if _, err := svc.Create(context.Background(), CreateParams{
		UserID: "u1", Type: TypeBookingConfirmed, Title: "t", Message: "m",
	}); err != nil {
		t.Fatal(err)
	}

	if len(store.notifications) != 1 {
		t.Fatalf("stored %d notifications, want 1", len(store.notifications))
	}
	if len(gateway.calls) != 0 {
		t.Fatalf("push called %d times, want 0", len(gateway.calls))
	}
}

func TestCreateSkipsPushWhenDisabled(t *testing.T) {
	store := newFakeStore()
	gateway := &fakePush{result: true}
	addUser(store, "u1", "arn:device:1")
	store.recipients["u1"].PushEnabled = false
	svc := newTestService(store, gateway, time.Now())

	if _, err := svc.Create(context.Background(), CreateParams{
		UserID: "u1", Type: TypeBookingConfirmed, Title: "t", Message: "m",
	}); err != nil {
		t.Fatal(err)
	}
	if len(gateway.calls) != 0 {
		t.Fatalf("push called %d times, want 0", len(gateway.calls))
	}
}

func TestCreateSurvivesPushFailure(t *testing.T) {
	store := newFakeStore()
	gateway := &fakePush{result: false}
	addUser(store, "u1", "arn:device:1")
	svc := newTestService(store, gateway, time.Now())

	n, err := svc.Create(context.Background(), CreateParams{
		UserID: "u1", Type: TypeBookingConfirmed, Title: "t", Message: "m",
	})
	if err != nil {
		t.Fatalf("err = %v, want nil despite push failure", err)
	}
	if n == nil || len(store.notifications) != 1 {
		t.Fatal("notification not persisted")
	}
}

func TestNotifyBookingConfirmedMissingBookingIsNoop(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, &fakePush{result: true}, time.Now())

	if err := svc.NotifyBookingConfirmed(context.Background(), "gone"); err != nil {
		t.Fatalf("err = %v, want nil for missing booking", err)
	}
	if len(store.notifications) != 0 {
		t.Fatalf("stored %d notifications, want 0", len(store.notifications))
	}
}

func TestNotifyDinnerUsersExcludesActor(t *testing.T) {
	store := newFakeStore()
	addUser(store, "u1", "")
	addUser(store, "u2", "")
	addUser(store, "u3", "")
	store.active["d1"] = []BookingRef{
		{BookingID: "b1", UserID: "u1"},
		{BookingID: "b2", UserID: "u2"},
		{BookingID: "b3", UserID: "u3"},
	}
	svc := newTestService(store, &fakePush{result: true}, time.Now())

	created, err := svc.NotifyDinnerUsers(context.Background(), "d1",
		TypeLastMinuteSpot, "Spot open", "One seat left", "u2")
	if err != nil {
		t.Fatal(err)
	}
	if len(created) != 2 {
		t.Fatalf("created %d notifications, want 2", len(created))
	}
	for _, n := range created {
		if n.UserID == "u2" {
			t.Error("excluded user was notified")
		}
	}
}

func TestScheduleBookingReminders(t *testing.T) {
	now := time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name       string
		dinnerDate time.Time
		wantKinds  []ReminderKind
	}{
		{
			name:       "far future gets both",
			dinnerDate: time.Date(2025, 6, 13, 20, 0, 0, 0, time.UTC),
			wantKinds:  []ReminderKind{KindDayBefore, KindDayOf},
		},
		{
			name:       "tomorrow morning keeps only day-before",
			dinnerDate: time.Date(2025, 6, 11, 9, 0, 0, 0, time.UTC),
			wantKinds:  []ReminderKind{KindDayBefore},
		},
		{
			name:       "tonight keeps only day-of",
			dinnerDate: time.Date(2025, 6, 10, 20, 0, 0, 0, time.UTC),
			wantKinds:  []ReminderKind{KindDayOf},
		},
		{
			name:       "imminent dinner gets none",
			dinnerDate: time.Date(2025, 6, 10, 13, 0, 0, 0, time.UTC),
			wantKinds:  nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newFakeStore()
			store.bookings["b1"] = &BookingContext{
				BookingID: "b1", UserID: "u1", DinnerID: "d1",
				DinnerTitle: "Pasta Night", DinnerLocation: "Rome",
				DinnerDate: tt.dinnerDate,
			}
			svc := newTestService(store, &fakePush{result: true}, now)

			if err := svc.ScheduleBookingReminders(context.Background(), "b1"); err != nil {
				t.Fatal(err)
			}

			if len(store.scheduled) != len(tt.wantKinds) {
				t.Fatalf("scheduled %d rows, want %d", len(store.scheduled), len(tt.wantKinds))
			}
			for i, kind := range tt.wantKinds {
				s := store.scheduled[i]
				if s.Kind != kind {
					t.Errorf("row %d kind = %q, want %q", i, s.Kind, kind)
				}
				if !s.ScheduledTime.After(now) {
					t.Errorf("row %d scheduled at %v, not after now", i, s.ScheduledTime)
				}
				if s.BookingID != "b1" {
					t.Errorf("row %d booking = %q", i, s.BookingID)
				}
			}
		})
	}
}

func TestScheduleBookingRemindersReminderTimes(t *testing.T) {
	now := time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)
	store := newFakeStore()
	store.bookings["b1"] = &BookingContext{
		BookingID: "b1", UserID: "u1", DinnerID: "d1",
		DinnerTitle: "Pasta Night", DinnerLocation: "Rome",
		DinnerDate: time.Date(2025, 6, 13, 20, 0, 0, 0, time.UTC),
	}
	svc := newTestService(store, &fakePush{result: true}, now)

	if err := svc.ScheduleBookingReminders(context.Background(), "b1"); err != nil {
		t.Fatal(err)
	}

	wantDayBefore := time.Date(2025, 6, 12, 18, 0, 0, 0, time.UTC)
	wantDayOf := time.Date(2025, 6, 13, 18, 0, 0, 0, time.UTC)
	if !store.scheduled[0].ScheduledTime.Equal(wantDayBefore) {
		t.Errorf("day-before at %v, want %v", store.scheduled[0].ScheduledTime, wantDayBefore)
	}
	if !store.scheduled[1].ScheduledTime.Equal(wantDayOf) {
		t.Errorf("day-of at %v, want %v", store.scheduled[1].ScheduledTime, wantDayOf)
	}
}

func TestProcessScheduled(t *testing.T) {
	now := time.Date(2025, 6, 12, 18, 5, 0, 0, time.UTC)
	store := newFakeStore()
	addUser(store, "u1", "arn:device:1")
	store.bookings["b1"] = &BookingContext{
		BookingID: "b1", UserID: "u1", DinnerID: "d1",
		DinnerTitle: "Pasta Night", DinnerLocation: "Rome",
		DinnerDate: time.Date(2025, 6, 13, 20, 0, 0, 0, time.UTC),
	}
	store.scheduled = []*ScheduledNotification{
		{ID: "s1", BookingID: "b1", Kind: KindDayBefore,
			ScheduledTime: time.Date(2025, 6, 12, 18, 0, 0, 0, time.UTC)},
		{ID: "s2", BookingID: "b1", Kind: KindDayOf,
			ScheduledTime: time.Date(2025, 6, 13, 18, 0, 0, 0, time.UTC)},
	}
	gateway := &fakePush{result: true}
	svc := newTestService(store, gateway, now)

	count, err := svc.ProcessScheduled(context.Background(), now)
	if err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Fatalf("processed %d, want 1", count)
	}

	if !store.scheduled[0].IsSent || store.scheduled[0].SentAt == nil {
		t.Error("due row not marked sent")
	}
	if store.scheduled[1].IsSent {
		t.Error("future row marked sent")
	}

	if len(store.notifications) != 1 {
		t.Fatalf("stored %d notifications, want 1", len(store.notifications))
	}
	n := store.notifications[0]
	if n.Type != TypeDinnerReminder {
		t.Errorf("type = %q, want dinner_reminder", n.Type)
	}
	if n.Title != "Reminder: Pasta Night Tomorrow" {
		t.Errorf("title = %q", n.Title)
	}
	if !strings.Contains(n.Message, "8:00 PM") {
		t.Errorf("message %q does not mention the start time", n.Message)
	}
	if len(gateway.calls) != 1 {
		t.Errorf("push called %d times, want 1", len(gateway.calls))
	}

	// Second pass finds nothing new.
	count, err = svc.ProcessScheduled(context.Background(), now)
	if err != nil {
		t.Fatal(err)
	}
	if count != 0 {
		t.Fatalf("second pass processed %d, want 0", count)
	}
}

func TestProcessScheduledDayOfContent(t *testing.T) {
	now := time.Date(2025, 6, 13, 18, 1, 0, 0, time.UTC)
	store := newFakeStore()
	addUser(store, "u1", "")
	store.bookings["b1"] = &BookingContext{
		BookingID: "b1", UserID: "u1", DinnerID: "d1",
		DinnerTitle: "Pasta Night", DinnerLocation: "Rome",
		DinnerDate: time.Date(2025, 6, 13, 20, 0, 0, 0, time.UTC),
	}
	store.scheduled = []*ScheduledNotification{
		{ID: "s1", BookingID: "b1", Kind: KindDayOf,
			ScheduledTime: time.Date(2025, 6, 13, 18, 0, 0, 0, time.UTC)},
	}
	svc := newTestService(store, &fakePush{result: true}, now)

	if _, err := svc.ProcessScheduled(context.Background(), now); err != nil {
		t.Fatal(err)
	}
	n := store.notifications[0]
	if n.Title != "Today: Pasta Night" {
		t.Errorf("title = %q", n.Title)
	}
	if !strings.Contains(n.Message, "in 2 hours at Rome") {
		t.Errorf("message = %q", n.Message)
	}
}

func TestProcessScheduledSkipsVanishedBooking(t *testing.T) {
	now := time.Now().UTC()
	store := newFakeStore()
	store.scheduled = []*ScheduledNotification{
		{ID: "s1", BookingID: "gone", Kind: KindDayOf, ScheduledTime: now.Add(-time.Hour)},
	}
	svc := newTestService(store, &fakePush{result: true}, now)

	count, err := svc.ProcessScheduled(context.Background(), now)
	if err != nil {
		t.Fatal(err)
	}
	if count != 0 {
		t.Fatalf("processed %d, want 0", count)
	}
	if len(store.notifications) != 0 {
		t.Error("notification created for vanished booking")
	}
	// Skipped, not consumed: the row stays pending until the booking's
	// cascade delete removes it.
	if store.scheduled[0].IsSent {
		t.Error("skipped row marked sent")
	}
}

func TestProcessScheduledPropagatesStoreError(t *testing.T) {
	store := newFakeStore()
	store.failDue = true
	svc := newTestService(store, &fakePush{result: true}, time.Now())

	if _, err := svc.ProcessScheduled(context.Background(), time.Now()); err == nil {
		t.Fatal("err = nil, want store error")
	}
}

func TestDeleteScheduledForBooking(t *testing.T) {
	now := time.Now().UTC()
	sentAt := now.Add(-time.Hour)
	store := newFakeStore()
	store.scheduled = []*ScheduledNotification{
		{ID: "s1", BookingID: "b1", Kind: KindDayBefore, IsSent: true, SentAt: &sentAt},
		{ID: "s2", BookingID: "b1", Kind: KindDayOf},
		{ID: "s3", BookingID: "b2", Kind: KindDayOf},
	}
	svc := newTestService(store, &fakePush{result: true}, now)

	if err := svc.DeleteScheduledForBooking(context.Background(), "b1"); err != nil {
		t.Fatal(err)
	}

	if len(store.scheduled) != 2 {
		t.Fatalf("%d rows left, want 2", len(store.scheduled))
	}
	for _, s := range store.scheduled {
		if s.ID == "s2" {
			t.Error("pending row for cancelled booking survived")
		}
	}
}

func TestCancelledBookingNeverFires(t *testing.T) {
	now := time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)
	store := newFakeStore()
	addUser(store, "u1", "arn:device:1")
	store.bookings["b1"] = &BookingContext{
		BookingID: "b1", UserID: "u1", DinnerID: "d1",
		DinnerTitle: "Pasta Night", DinnerLocation: "Rome",
		DinnerDate: time.Date(2025, 6, 13, 20, 0, 0, 0, time.UTC),
	}
	svc := newTestService(store, &fakePush{result: true}, now)

	if err := svc.ScheduleBookingReminders(context.Background(), "b1"); err != nil {
		t.Fatal(err)
	}
	if err := svc.DeleteScheduledForBooking(context.Background(), "b1"); err != nil {
		t.Fatal(err)
	}

	// Well past both reminder times.
	count, err := svc.ProcessScheduled(context.Background(), now.Add(30*24*time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if count != 0 {
		t.Fatalf("processed %d, want 0 after cancellation", count)
	}
	if len(store.notifications) != 0 {
		t.Fatalf("stored %d notifications, want 0", len(store.notifications))
	}
}

func TestMarkReadIsIdempotent(t *testing.T) {
	now := time.Now().UTC()
	store := newFakeStore()
	store.notifications = []*Notification{
		{ID: "n1", UserID: "u1", Type: TypeBookingConfirmed, CreatedAt: now},
	}
	svc := newTestService(store, &fakePush{result: true}, now)

	first, err := svc.MarkRead(context.Background(), "n1", "u1")
	if err != nil {
		t.Fatal(err)
	}
	if !first.IsRead || first.ReadAt == nil {
		t.Fatal("notification not marked read")
	}

	second, err := svc.MarkRead(context.Background(), "n1", "u1")
	if err != nil {
		t.Fatal(err)
	}
	if !second.ReadAt.Equal(*first.ReadAt) {
		t.Error("read_at changed on repeat mark")
	}

	if _, err := svc.MarkRead(context.Background(), "n1", "someone-else"); !errors.Is(err, ErrNotFound) {
		t.Errorf("foreign mark err = %v, want ErrNotFound", err)
	}
}
