package notification

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/tablemate/tablemate/pkg/database"
)

// testDB connects to TEST_DATABASE_URL and applies the migrations; the
// suite is skipped when no test database is configured.
func testDB(t *testing.T) *sql.DB {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	db, err := database.Connect(dsn)
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := database.Migrate(db, "../../migrations"); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return db
}

func seedBooking(t *testing.T, db *sql.DB, dinnerDate time.Time) (userID, dinnerID, bookingID string) {
	t.Helper()
	ctx := context.Background()
	userID = uuid.NewString()
	dinnerID = uuid.NewString()
	bookingID = uuid.NewString()

	_, err := db.ExecContext(ctx, `
		INSERT INTO users (id, email, password_hash, display_name)
		VALUES ($1, $2, 'x', 'Test User')`, userID, uuid.NewString()+"@example.com")
	if err != nil {
		t.Fatal(err)
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO dinners (id, title, date, location)
		VALUES ($1, 'Pasta Night', $2, 'Rome')`, dinnerID, dinnerDate)
	if err != nil {
		t.Fatal(err)
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO bookings (id, user_id, dinner_id, status)
		VALUES ($1, $2, $3, 'confirmed')`, bookingID, userID, dinnerID)
	if err != nil {
		t.Fatal(err)
	}

	t.Cleanup(func() {
		db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, userID)
		db.ExecContext(ctx, `DELETE FROM dinners WHERE id = $1`, dinnerID)
	})
	return userID, dinnerID, bookingID
}

func TestCreateAndMarkSentClaimsOnce(t *testing.T) {
	db := testDB(t)
	repo := NewRepository(db)
	ctx := context.Background()
	now := time.Now().UTC()

	userID, dinnerID, bookingID := seedBooking(t, db, now.Add(48*time.Hour))

	scheduled := &ScheduledNotification{
		ID:            uuid.NewString(),
		BookingID:     bookingID,
		Kind:          KindDayOf,
		ScheduledTime: now.Add(-time.Minute),
		CreatedAt:     now,
	}
	if err := repo.CreateScheduled(ctx, scheduled); err != nil {
		t.Fatal(err)
	}

	n := &Notification{
		ID: uuid.NewString(), UserID: userID,
		DinnerID: &dinnerID, BookingID: &bookingID,
		Type: TypeDinnerReminder, Title: "t", Message: "m", CreatedAt: now,
	}
	if err := repo.CreateAndMarkSent(ctx, n, scheduled.ID, now); err != nil {
		t.Fatal(err)
	}

	due, err := repo.DueScheduled(ctx, now)
	if err != nil {
		t.Fatal(err)
	}
	for _, s := range due {
		if s.ID == scheduled.ID {
			t.Fatal("claimed row still reported due")
		}
	}

	// Second claim must fail and must not insert a second notification.
	dup := &Notification{
		ID: uuid.NewString(), UserID: userID,
		Type: TypeDinnerReminder, Title: "t", Message: "m", CreatedAt: now,
	}
	if err := repo.CreateAndMarkSent(ctx, dup, scheduled.ID, now); err == nil {
		t.Fatal("second claim succeeded, want error")
	}

	count, err := repo.UnreadCount(ctx, userID)
	if err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Fatalf("unread count = %d, want 1", count)
	}
}

func TestBookingCascadeSweepsScheduledRows(t *testing.T) {
	db := testDB(t)
	repo := NewRepository(db)
	ctx := context.Background()
	now := time.Now().UTC()

	_, _, bookingID := seedBooking(t, db, now.Add(48*time.Hour))

	scheduled := &ScheduledNotification{
		ID:            uuid.NewString(),
		BookingID:     bookingID,
		Kind:          KindDayBefore,
		ScheduledTime: now.Add(24 * time.Hour),
		CreatedAt:     now,
	}
	if err := repo.CreateScheduled(ctx, scheduled); err != nil {
		t.Fatal(err)
	}

	if _, err := db.ExecContext(ctx, `DELETE FROM bookings WHERE id = $1`, bookingID); err != nil {
		t.Fatal(err)
	}

	var exists bool
	err := db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM scheduled_notifications WHERE id = $1)`, scheduled.ID,
	).Scan(&exists)
	if err != nil {
		t.Fatal(err)
	}
	if exists {
		t.Fatal("scheduled row survived booking delete")
	}
}

func TestUserCascadeSweepsNotifications(t *testing.T) {
	db := testDB(t)
	repo := NewRepository(db)
	ctx := context.Background()
	now := time.Now().UTC()

	userID, _, _ := seedBooking(t, db, now.Add(48*time.Hour))

	n := &Notification{
		ID: uuid.NewString(), UserID: userID,
		Type: TypeBookingConfirmed, Title: "t", Message: "m", CreatedAt: now,
	}
	if err := repo.CreateNotification(ctx, n); err != nil {
		t.Fatal(err)
	}

	if _, err := db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, userID); err != nil {
		t.Fatal(err)
	}

	var exists bool
	err := db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM notifications WHERE id = $1)`, n.ID,
	).Scan(&exists)
	if err != nil {
		t.Fatal(err)
	}
	if exists {
		t.Fatal("notification survived user delete")
	}
}

func TestMarkReadPairsColumns(t *testing.T) {
	db := testDB(t)
	repo := NewRepository(db)
	ctx := context.Background()
	now := time.Now().UTC()

	userID, _, _ := seedBooking(t, db, now.Add(48*time.Hour))

	n := &Notification{
		ID: uuid.NewString(), UserID: userID,
		Type: TypeBookingConfirmed, Title: "t", Message: "m", CreatedAt: now,
	}
	if err := repo.CreateNotification(ctx, n); err != nil {
		t.Fatal(err)
	}

	read, err := repo.MarkRead(ctx, n.ID, userID, now)
	if err != nil {
		t.Fatal(err)
	}
	if !read.IsRead || read.ReadAt == nil {
		t.Fatal("is_read and read_at did not flip together")
	}

	again, err := repo.MarkRead(ctx, n.ID, userID, now.Add(time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if !again.ReadAt.Equal(*read.ReadAt) {
		t.Error("read_at moved on repeat mark")
	}

	if _, err := repo.MarkRead(ctx, n.ID, uuid.NewString(), now); !errors.Is(err, ErrNotFound) {
		t.Errorf("foreign mark err = %v, want ErrNotFound", err)
	}
}

func TestInvalidTypeRejectedByCheckConstraint(t *testing.T) {
	db := testDB(t)
	repo := NewRepository(db)
	ctx := context.Background()
	now := time.Now().UTC()

	userID, _, _ := seedBooking(t, db, now.Add(48*time.Hour))

	n := &Notification{
		ID: uuid.NewString(), UserID: userID,
		Type: "free_form", Title: "t", Message: "m", CreatedAt: now,
	}
	if err := repo.CreateNotification(ctx, n); err == nil {
		t.Fatal("insert with unknown type succeeded, want constraint violation")
	}
}
