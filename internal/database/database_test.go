package database

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"estateadmin/internal/models"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	logger := zerolog.Nop()
	db, err := NewDB(filepath.Join(t.TempDir(), "test.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func seedUser(t *testing.T, db *DB, email string, roles ...models.Role) *models.User {
	t.Helper()
	user := &models.User{
		Email:    email,
		FullName: "Test User",
		IsActive: true,
		Roles:    roles,
	}
	require.NoError(t, db.CreateUser(context.Background(), user))
	return user
}

func seedProperty(t *testing.T, db *DB, title string) *models.Property {
	t.Helper()
	property := &models.Property{
		Title:    title,
		Type:     "apartment",
		Price:    250000,
		Address:  "12 Main St",
		Status:   models.PropertyForSale,
		IsActive: true,
	}
	require.NoError(t, db.CreateProperty(context.Background(), property))
	return property
}

func seedReservation(t *testing.T, db *DB, propertyID, userID int64, date time.Time, slot string) *models.Reservation {
	t.Helper()
	r := &models.Reservation{
		PropertyID: propertyID,
		UserID:     userID,
		Date:       date,
		TimeSlot:   slot,
	}
	require.NoError(t, db.CreateReservationWithLock(context.Background(), r))
	return r
}

func dateAt(daysFromNow int) time.Time {
	return time.Now().AddDate(0, 0, daysFromNow)
}

func TestCreateReservationWithLock(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	user := seedUser(t, db, "visitor@example.com", models.RoleUser)
	property := seedProperty(t, db, "Loft")

	r := seedReservation(t, db, property.ID, user.ID, dateAt(1), "09:00")
	assert.Equal(t, models.StatusPending, r.Status)
	assert.Equal(t, int64(1), r.Version)
	assert.NotZero(t, r.ID)

	// Same triple is locked regardless of who asks.
	dup := &models.Reservation{
		PropertyID: property.ID,
		UserID:     user.ID,
		Date:       dateAt(1),
		TimeSlot:   "09:00",
	}
	err := db.CreateReservationWithLock(ctx, dup)
	require.ErrorIs(t, err, ErrSlotUnavailable)

	// Another slot on the same day is fine.
	other := &models.Reservation{
		PropertyID: property.ID,
		UserID:     user.ID,
		Date:       dateAt(1),
		TimeSlot:   "10:00",
	}
	require.NoError(t, db.CreateReservationWithLock(ctx, other))
}

func TestGetReservationNotFound(t *testing.T) {
	db := newTestDB(t)

	_, err := db.GetReservation(context.Background(), 12345)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestReservedSlotsAnyStatus(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	user := seedUser(t, db, "visitor@example.com", models.RoleUser)
	property := seedProperty(t, db, "Loft")
	date := dateAt(2)

	a := seedReservation(t, db, property.ID, user.ID, date, "11:00")
	seedReservation(t, db, property.ID, user.ID, date, "09:00")
	seedReservation(t, db, property.ID, user.ID, dateAt(3), "13:00")

	// A refused reservation still occupies its slot.
	require.NoError(t, db.UpdateReservationDecisionWithVersion(ctx, a.ID, a.Version, models.StatusRefused, "no show"))

	slots, err := db.ReservedSlots(ctx, property.ID, date)
	require.NoError(t, err)
	assert.Equal(t, []string{"09:00", "11:00"}, slots)
}

func TestUpdateDecisionVersionCheck(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	user := seedUser(t, db, "visitor@example.com", models.RoleUser)
	property := seedProperty(t, db, "Loft")
	r := seedReservation(t, db, property.ID, user.ID, dateAt(1), "09:00")

	require.NoError(t, db.UpdateReservationDecisionWithVersion(ctx, r.ID, 1, models.StatusAccepted, "bring ID"))

	got, err := db.GetReservation(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusAccepted, got.Status)
	assert.Equal(t, "bring ID", got.AdminRemark)
	assert.Equal(t, int64(2), got.Version)

	// A writer holding the old version loses.
	err = db.UpdateReservationDecisionWithVersion(ctx, r.ID, 1, models.StatusRefused, "late")
	require.ErrorIs(t, err, ErrConcurrentModification)

	got, err = db.GetReservation(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusAccepted, got.Status)
	assert.Equal(t, "bring ID", got.AdminRemark)
}

func TestUpdateStatusKeepsRemark(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	user := seedUser(t, db, "visitor@example.com", models.RoleUser)
	property := seedProperty(t, db, "Loft")
	r := seedReservation(t, db, property.ID, user.ID, dateAt(1), "09:00")

	require.NoError(t, db.UpdateReservationDecisionWithVersion(ctx, r.ID, 1, models.StatusAccepted, "gate code 4411"))
	require.NoError(t, db.UpdateReservationStatusWithVersion(ctx, r.ID, 2, models.StatusCancelled))

	got, err := db.GetReservation(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, got.Status)
	assert.Equal(t, "gate code 4411", got.AdminRemark)
	assert.Equal(t, int64(3), got.Version)

	err = db.UpdateReservationStatusWithVersion(ctx, r.ID, 1, models.StatusCancelled)
	require.ErrorIs(t, err, ErrConcurrentModification)
}

func TestCountAcceptedConflicts(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	user := seedUser(t, db, "visitor@example.com", models.RoleUser)
	property := seedProperty(t, db, "Loft")
	date := dateAt(1)

	r := seedReservation(t, db, property.ID, user.ID, date, "09:00")
	require.NoError(t, db.UpdateReservationDecisionWithVersion(ctx, r.ID, 1, models.StatusAccepted, ""))

	count, err := db.CountAcceptedConflicts(ctx, property.ID, date, "09:00", 0)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	// The reservation itself is not its own conflict.
	count, err = db.CountAcceptedConflicts(ctx, property.ID, date, "09:00", r.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	count, err = db.CountAcceptedConflicts(ctx, property.ID, date, "10:00", 0)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestAcceptedSlotUniqueIndex(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	user := seedUser(t, db, "visitor@example.com", models.RoleUser)
	property := seedProperty(t, db, "Loft")
	date := dateAt(1)

	first := seedReservation(t, db, property.ID, user.ID, date, "09:00")

	// Insert a rival pending row directly; data like this predates the slot lock.
	_, err := db.ExecContext(ctx,
		`INSERT INTO reservations (property_id, user_id, date, time_slot, status, version)
         VALUES (?, ?, ?, ?, 'pending', 1)`,
		property.ID, user.ID, date.Format(dateFormat), "09:00")
	require.NoError(t, err)

	rival, err := db.GetReservation(ctx, first.ID+1)
	require.NoError(t, err)

	require.NoError(t, db.UpdateReservationDecisionWithVersion(ctx, first.ID, 1, models.StatusAccepted, ""))

	// The partial unique index blocks a second acceptance on the same triple
	// and reports it as a slot conflict, not a storage error.
	err = db.UpdateReservationDecisionWithVersion(ctx, rival.ID, rival.Version, models.StatusAccepted, "")
	require.ErrorIs(t, err, ErrSlotConflict)

	got, err := db.GetReservation(ctx, rival.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, got.Status)
	assert.Equal(t, int64(1), got.Version)
}

func TestListReservationsOrdering(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	user := seedUser(t, db, "visitor@example.com", models.RoleUser)
	property := seedProperty(t, db, "Loft")

	past := seedReservation(t, db, property.ID, user.ID, dateAt(-3), "09:00")
	upcoming := seedReservation(t, db, property.ID, user.ID, dateAt(5), "09:00")
	todayLate := seedReservation(t, db, property.ID, user.ID, dateAt(0), "15:00")
	todayEarly := seedReservation(t, db, property.ID, user.ID, dateAt(0), "10:00")

	list, err := db.ListReservations(ctx, models.ReservationFilter{})
	require.NoError(t, err)
	require.Len(t, list, 4)
	assert.Equal(t, todayEarly.ID, list[0].ID)
	assert.Equal(t, todayLate.ID, list[1].ID)
	assert.Equal(t, upcoming.ID, list[2].ID)
	assert.Equal(t, past.ID, list[3].ID)
}

func TestListReservationsFilters(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	alice := seedUser(t, db, "alice@example.com", models.RoleUser)
	bob := seedUser(t, db, "bob@example.com", models.RoleUser)
	loft := seedProperty(t, db, "Downtown Loft")
	villa := seedProperty(t, db, "Seaside Villa")

	accepted := seedReservation(t, db, loft.ID, alice.ID, dateAt(1), "09:00")
	seedReservation(t, db, villa.ID, bob.ID, dateAt(1), "09:00")
	seedReservation(t, db, loft.ID, bob.ID, dateAt(4), "10:00")
	require.NoError(t, db.UpdateReservationDecisionWithVersion(ctx, accepted.ID, 1, models.StatusAccepted, ""))

	byStatus, err := db.ListReservations(ctx, models.ReservationFilter{Status: models.StatusAccepted})
	require.NoError(t, err)
	require.Len(t, byStatus, 1)
	assert.Equal(t, accepted.ID, byStatus[0].ID)

	byUser, err := db.ListReservations(ctx, models.ReservationFilter{UserID: bob.ID})
	require.NoError(t, err)
	assert.Len(t, byUser, 2)

	bySearch, err := db.ListReservations(ctx, models.ReservationFilter{Search: "seaside"})
	require.NoError(t, err)
	require.Len(t, bySearch, 1)
	assert.Equal(t, villa.ID, bySearch[0].PropertyID)

	byRange, err := db.ListReservations(ctx, models.ReservationFilter{
		DateFrom: dateAt(3),
		DateTo:   dateAt(5),
	})
	require.NoError(t, err)
	require.Len(t, byRange, 1)
	assert.Equal(t, "10:00", byRange[0].TimeSlot)
}

func TestNearbyAcceptedForUser(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	user := seedUser(t, db, "visitor@example.com", models.RoleUser)
	property := seedProperty(t, db, "Loft")

	near := seedReservation(t, db, property.ID, user.ID, dateAt(1), "09:00")
	far := seedReservation(t, db, property.ID, user.ID, dateAt(10), "09:00")
	pendingNear := seedReservation(t, db, property.ID, user.ID, dateAt(2), "10:00")
	require.NoError(t, db.UpdateReservationDecisionWithVersion(ctx, near.ID, 1, models.StatusAccepted, ""))
	require.NoError(t, db.UpdateReservationDecisionWithVersion(ctx, far.ID, 1, models.StatusAccepted, ""))

	nearby, err := db.NearbyAcceptedForUser(ctx, user.ID, property.ID, dateAt(2), 2, pendingNear.ID)
	require.NoError(t, err)
	require.Len(t, nearby, 1)
	assert.Equal(t, near.ID, nearby[0].ID)

	// The reservation being decided never counts against itself.
	nearby, err = db.NearbyAcceptedForUser(ctx, user.ID, property.ID, dateAt(1), 2, near.ID)
	require.NoError(t, err)
	assert.Empty(t, nearby)
}

func TestCountReservationsByStatus(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	user := seedUser(t, db, "visitor@example.com", models.RoleUser)
	property := seedProperty(t, db, "Loft")

	a := seedReservation(t, db, property.ID, user.ID, dateAt(1), "09:00")
	seedReservation(t, db, property.ID, user.ID, dateAt(1), "10:00")
	require.NoError(t, db.UpdateReservationDecisionWithVersion(ctx, a.ID, 1, models.StatusAccepted, ""))

	counts, err := db.CountReservationsByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, counts[models.StatusAccepted])
	assert.Equal(t, 1, counts[models.StatusPending])
}

func TestUserRoles(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	admin := seedUser(t, db, "admin@example.com", models.RoleAdmin)
	agent := seedUser(t, db, "agent@example.com", models.RoleAgent)
	both := seedUser(t, db, "both@example.com", models.RoleAdmin, models.RoleAgent)

	got, err := db.GetUserByEmail(ctx, "both@example.com")
	require.NoError(t, err)
	assert.ElementsMatch(t, []models.Role{models.RoleAdmin, models.RoleAgent}, got.Roles)

	admins, err := db.UsersInRole(ctx, models.RoleAdmin)
	require.NoError(t, err)
	require.Len(t, admins, 2)
	assert.Equal(t, admin.ID, admins[0].ID)
	assert.Equal(t, both.ID, admins[1].ID)

	// SetUserRole replaces whatever the user held before.
	require.NoError(t, db.SetUserRole(ctx, both.ID, models.RoleUser))
	roles, err := db.RolesOf(ctx, both.ID)
	require.NoError(t, err)
	assert.Equal(t, []models.Role{models.RoleUser}, roles)

	require.NoError(t, db.AddUserRole(ctx, agent.ID, models.RoleAdmin))
	roles, err = db.RolesOf(ctx, agent.ID)
	require.NoError(t, err)
	assert.Len(t, roles, 2)

	err = db.SetUserRole(ctx, 999, models.RoleAdmin)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestUserUniqueEmailAndListing(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	seedUser(t, db, "alice@example.com", models.RoleUser)
	seedUser(t, db, "bob@example.com", models.RoleAgent)

	err := db.CreateUser(ctx, &models.User{Email: "alice@example.com", FullName: "Clone", IsActive: true})
	require.Error(t, err)

	agents, err := db.ListUsers(ctx, UserFilter{Role: models.RoleAgent})
	require.NoError(t, err)
	require.Len(t, agents, 1)
	assert.Equal(t, "bob@example.com", agents[0].Email)
	assert.Equal(t, []models.Role{models.RoleAgent}, agents[0].Roles)

	found, err := db.ListUsers(ctx, UserFilter{Search: "ALICE"})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "alice@example.com", found[0].Email)

	_, err = db.GetUserByEmail(ctx, "nobody@example.com")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestPropertyCRUD(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	property := seedProperty(t, db, "Loft")
	assert.NotZero(t, property.ID)

	property.Price = 300000
	property.Status = models.PropertyForRent
	require.NoError(t, db.UpdateProperty(ctx, property))

	require.NoError(t, db.IncrementPropertyViews(ctx, property.ID))
	require.NoError(t, db.IncrementPropertyViews(ctx, property.ID))

	got, err := db.GetProperty(ctx, property.ID)
	require.NoError(t, err)
	assert.Equal(t, float64(300000), got.Price)
	assert.Equal(t, models.PropertyForRent, got.Status)
	assert.Equal(t, int64(2), got.ViewCount)

	err = db.UpdateProperty(ctx, &models.Property{ID: 999, Title: "ghost", Status: models.PropertyForSale})
	require.ErrorIs(t, err, ErrNotFound)

	_, err = db.GetProperty(ctx, 999)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestPropertyFiltersAndCounts(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	seedProperty(t, db, "Downtown Loft")
	villa := seedProperty(t, db, "Seaside Villa")
	villa.Type = "house"
	villa.Status = models.PropertyForRent
	require.NoError(t, db.UpdateProperty(ctx, villa))

	inactive := seedProperty(t, db, "Old Warehouse")
	inactive.IsActive = false
	require.NoError(t, db.UpdateProperty(ctx, inactive))

	houses, err := db.ListProperties(ctx, models.PropertyFilter{Type: "house"})
	require.NoError(t, err)
	require.Len(t, houses, 1)
	assert.Equal(t, villa.ID, houses[0].ID)

	active := true
	activeOnly, err := db.ListProperties(ctx, models.PropertyFilter{IsActive: &active})
	require.NoError(t, err)
	assert.Len(t, activeOnly, 2)

	bySearch, err := db.ListProperties(ctx, models.PropertyFilter{Search: "seaside"})
	require.NoError(t, err)
	require.Len(t, bySearch, 1)

	total, activeCount, err := db.CountProperties(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Equal(t, 2, activeCount)

	byType, err := db.CountPropertiesByType(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, byType["apartment"])
	assert.Equal(t, 1, byType["house"])

	byStatus, err := db.CountPropertiesByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, byStatus[string(models.PropertyForSale)])
	assert.Equal(t, 1, byStatus[string(models.PropertyForRent)])
}

func TestNotificationsOwnerScoped(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	alice := seedUser(t, db, "alice@example.com", models.RoleUser)
	bob := seedUser(t, db, "bob@example.com", models.RoleUser)
	property := seedProperty(t, db, "Loft")
	reservation := seedReservation(t, db, property.ID, alice.ID, dateAt(1), "09:00")

	first := &models.Notification{
		UserID:        alice.ID,
		ReservationID: reservation.ID,
		Title:         "Visit request",
		Message:       "New visit request",
	}
	require.NoError(t, db.CreateNotification(ctx, first))

	// Notifications without a reservation are allowed.
	second := &models.Notification{UserID: alice.ID, Title: "Welcome", Message: "Account created"}
	require.NoError(t, db.CreateNotification(ctx, second))

	list, err := db.ListNotificationsForUser(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, second.ID, list[0].ID)
	assert.Equal(t, reservation.ID, list[1].ReservationID)

	unread, err := db.CountUnreadNotifications(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, unread)

	// Bob cannot touch Alice's notifications.
	err = db.MarkNotificationRead(ctx, first.ID, bob.ID)
	require.ErrorIs(t, err, ErrNotFound)
	err = db.DeleteNotification(ctx, first.ID, bob.ID)
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, db.MarkNotificationRead(ctx, first.ID, alice.ID))
	unread, err = db.CountUnreadNotifications(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, unread)

	n, err := db.MarkAllNotificationsRead(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	require.NoError(t, db.DeleteNotification(ctx, second.ID, alice.ID))
	list, err = db.ListNotificationsForUser(ctx, alice.ID)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}
