package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"estateadmin/internal/config"
	"estateadmin/internal/database"
	"estateadmin/internal/events"
	"estateadmin/internal/export"
	"estateadmin/internal/models"
	"estateadmin/internal/notify"
	"estateadmin/internal/service"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type serverFixture struct {
	db     *database.DB
	server *Server
}

func newServerFixture(t *testing.T) *serverFixture {
	t.Helper()

	logger := zerolog.Nop()
	db, err := database.NewDB(filepath.Join(t.TempDir(), "test.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	distributor := notify.NewDistributor(db, nil, nil, &logger)
	scheduler := service.NewScheduler(db, db, db, distributor, events.NewEventBus(), nil,
		service.SchedulerOptions{MaxAdvanceDays: 30, AdvisoryWindowDays: 2}, &logger)

	srv := NewServer(Deps{
		Config: config.APIConfig{
			Enabled: true,
			HTTP:    config.APIHTTPConfig{Enabled: true, Port: 0},
			Auth:    config.APIAuthConfig{Enabled: false},
		},
		SchedulerConfig: config.SchedulerConfig{
			MaxAdvanceDays:     30,
			AdvisoryWindowDays: 2,
		},
		DB:            db,
		Scheduler:     scheduler,
		Properties:    service.NewPropertyService(db, &logger),
		Users:         service.NewUserService(db, &logger),
		Notifications: service.NewNotificationService(db, nil, &logger),
		Dashboard:     service.NewDashboardService(db),
		Exporter:      export.NewExcelExporter(t.TempDir(), &logger),
		Logger:        &logger,
	})

	return &serverFixture{db: db, server: srv}
}

func (f *serverFixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	return rec
}

func (f *serverFixture) seedProperty(t *testing.T) int64 {
	t.Helper()
	p := &models.Property{
		Title: "Test flat", Type: "apartment", Price: 100000, Address: "1 Main St",
		Status: models.PropertyForSale, IsActive: true,
	}
	require.NoError(t, f.db.CreateProperty(context.Background(), p))
	return p.ID
}

func (f *serverFixture) seedUser(t *testing.T, email string, roles ...models.Role) int64 {
	t.Helper()
	u := &models.User{Email: email, FullName: "T " + email, Roles: roles, IsActive: true}
	require.NoError(t, f.db.CreateUser(context.Background(), u))
	return u.ID
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), dst))
}

func testDate(daysAhead int) string {
	return time.Now().AddDate(0, 0, daysAhead).Format("2006-01-02")
}

func TestHealthz(t *testing.T) {
	f := newServerFixture(t)
	rec := f.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAvailabilityEndpoint(t *testing.T) {
	f := newServerFixture(t)
	propertyID := f.seedProperty(t)

	rec := f.do(t, http.MethodGet,
		fmt.Sprintf("/api/v1/availability?property_id=%d&date=%s", propertyID, testDate(1)), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		AvailableSlots []string `json:"available_slots"`
	}
	decodeJSON(t, rec, &resp)
	assert.Len(t, resp.AvailableSlots, 10)

	rec = f.do(t, http.MethodGet,
		fmt.Sprintf("/api/v1/availability?property_id=%d&date=not-a-date", propertyID), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodGet,
		fmt.Sprintf("/api/v1/availability?property_id=9999&date=%s", testDate(1)), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestReservationLifecycleOverHTTP(t *testing.T) {
	f := newServerFixture(t)
	propertyID := f.seedProperty(t)
	userID := f.seedUser(t, "visitor@example.com", models.RoleUser)
	f.seedUser(t, "admin@example.com", models.RoleAdmin)

	// Create.
	rec := f.do(t, http.MethodPost, "/api/v1/reservations", map[string]any{
		"property_id": propertyID,
		"user_id":     userID,
		"date":        testDate(1),
		"time_slot":   "10:00",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created models.Reservation
	decodeJSON(t, rec, &created)
	require.NotZero(t, created.ID)
	assert.Equal(t, models.StatusPending, created.Status)

	// Slot is now gone.
	rec = f.do(t, http.MethodPost, "/api/v1/reservations", map[string]any{
		"property_id": propertyID,
		"user_id":     userID,
		"date":        testDate(1),
		"time_slot":   "10:00",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)

	// Bad slot and bad date map to 400.
	rec = f.do(t, http.MethodPost, "/api/v1/reservations", map[string]any{
		"property_id": propertyID, "user_id": userID, "date": testDate(1), "time_slot": "10:30",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = f.do(t, http.MethodPost, "/api/v1/reservations", map[string]any{
		"property_id": propertyID, "user_id": userID, "date": testDate(-1), "time_slot": "11:00",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Accept with a remark.
	rec = f.do(t, http.MethodPost, fmt.Sprintf("/api/v1/reservations/%d/accept", created.ID),
		map[string]any{"admin_remark": "see you there"})
	require.Equal(t, http.StatusOK, rec.Code)

	var accepted models.Reservation
	decodeJSON(t, rec, &accepted)
	assert.Equal(t, models.StatusAccepted, accepted.Status)
	assert.Equal(t, "see you there", accepted.AdminRemark)

	// Cancel by a stranger is forbidden; by the owner succeeds.
	rec = f.do(t, http.MethodPost, fmt.Sprintf("/api/v1/reservations/%d/cancel", created.ID),
		map[string]any{"user_id": userID + 100})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(t, http.MethodPost, fmt.Sprintf("/api/v1/reservations/%d/cancel", created.ID),
		map[string]any{"user_id": userID})
	require.Equal(t, http.StatusOK, rec.Code)

	// Cancelling again is an invalid transition.
	rec = f.do(t, http.MethodPost, fmt.Sprintf("/api/v1/reservations/%d/cancel", created.ID),
		map[string]any{"user_id": userID})
	assert.Equal(t, http.StatusConflict, rec.Code)

	// Staff listing: counts are scoped to the filtered result set.
	rec = f.do(t, http.MethodGet, "/api/v1/reservations", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Reservations []models.Reservation             `json:"reservations"`
		Counts       map[models.ReservationStatus]int `json:"counts"`
		Today        int                              `json:"today"`
	}
	decodeJSON(t, rec, &list)
	assert.Len(t, list.Reservations, 1)
	assert.Equal(t, 1, list.Counts[models.StatusCancelled])
	assert.Equal(t, 0, list.Today)

	rec = f.do(t, http.MethodGet, "/api/v1/reservations?status=pending", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decodeJSON(t, rec, &list)
	assert.Empty(t, list.Reservations)
	assert.Equal(t, 0, list.Counts[models.StatusCancelled])

	rec = f.do(t, http.MethodGet, fmt.Sprintf("/api/v1/reservations/my?user_id=%d", userID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestMyReservationsCounts(t *testing.T) {
	f := newServerFixture(t)
	propertyID := f.seedProperty(t)
	userID := f.seedUser(t, "visitor@example.com", models.RoleUser)

	// One pending, one accepted upcoming, and one accepted visit in the past
	// (inserted directly; the API only books future dates).
	rec := f.do(t, http.MethodPost, "/api/v1/reservations", map[string]any{
		"property_id": propertyID, "user_id": userID, "date": testDate(1), "time_slot": "09:00",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/v1/reservations", map[string]any{
		"property_id": propertyID, "user_id": userID, "date": testDate(2), "time_slot": "10:00",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	var accepted models.Reservation
	decodeJSON(t, rec, &accepted)

	rec = f.do(t, http.MethodPost, fmt.Sprintf("/api/v1/reservations/%d/accept", accepted.ID),
		map[string]any{"admin_remark": ""})
	require.Equal(t, http.StatusOK, rec.Code)

	_, err := f.db.ExecContext(context.Background(),
		`INSERT INTO reservations (property_id, user_id, date, time_slot, status, version)
         VALUES (?, ?, ?, '11:00', 'accepted', 1)`,
		propertyID, userID, testDate(-7))
	require.NoError(t, err)

	rec = f.do(t, http.MethodGet, fmt.Sprintf("/api/v1/reservations/my?user_id=%d", userID), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Reservations []models.Reservation `json:"reservations"`
		Pending      int                  `json:"pending"`
		Accepted     int                  `json:"accepted"`
		Upcoming     int                  `json:"upcoming"`
	}
	decodeJSON(t, rec, &resp)
	assert.Len(t, resp.Reservations, 3)
	assert.Equal(t, 1, resp.Pending)
	assert.Equal(t, 2, resp.Accepted)
	assert.Equal(t, 1, resp.Upcoming)

	// The staff users listing carries each user's reservation count.
	rec = f.do(t, http.MethodGet, "/api/v1/users", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var users struct {
		Users []struct {
			models.User
			ReservationCount int `json:"reservation_count"`
		} `json:"users"`
	}
	decodeJSON(t, rec, &users)
	require.Len(t, users.Users, 1)
	assert.Equal(t, 3, users.Users[0].ReservationCount)
}

func TestExportEndpoints(t *testing.T) {
	f := newServerFixture(t)
	propertyID := f.seedProperty(t)
	userID := f.seedUser(t, "visitor@example.com", models.RoleUser)

	rec := f.do(t, http.MethodPost, "/api/v1/reservations", map[string]any{
		"property_id": propertyID, "user_id": userID, "date": testDate(1), "time_slot": "09:00",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/v1/exports/reservations.xlsx", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "reservations.xlsx")
	assert.NotZero(t, rec.Body.Len())

	rec = f.do(t, http.MethodGet, "/api/v1/exports/properties.xlsx", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "properties.xlsx")
	assert.NotZero(t, rec.Body.Len())
}

func TestRefuseEndpoint(t *testing.T) {
	f := newServerFixture(t)
	propertyID := f.seedProperty(t)
	userID := f.seedUser(t, "visitor@example.com", models.RoleUser)

	rec := f.do(t, http.MethodPost, "/api/v1/reservations", map[string]any{
		"property_id": propertyID, "user_id": userID, "date": testDate(2), "time_slot": "09:00",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	var created models.Reservation
	decodeJSON(t, rec, &created)

	rec = f.do(t, http.MethodPost, fmt.Sprintf("/api/v1/reservations/%d/refuse", created.ID),
		map[string]any{"admin_remark": "agent out sick"})
	require.Equal(t, http.StatusOK, rec.Code)

	var refused models.Reservation
	decodeJSON(t, rec, &refused)
	assert.Equal(t, models.StatusRefused, refused.Status)

	rec = f.do(t, http.MethodPost, "/api/v1/reservations/9999/refuse", map[string]any{})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPropertyEndpoints(t *testing.T) {
	f := newServerFixture(t)

	rec := f.do(t, http.MethodPost, "/api/v1/properties", map[string]any{
		"title": "Seaside villa", "type": "house", "price": 900000,
		"address": "1 Shore Rd", "status": "for_sale", "is_active": true,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created models.Property
	decodeJSON(t, rec, &created)
	require.NotZero(t, created.ID)

	rec = f.do(t, http.MethodGet, fmt.Sprintf("/api/v1/properties/%d", created.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	created.Price = 850000
	rec = f.do(t, http.MethodPut, fmt.Sprintf("/api/v1/properties/%d", created.ID), created)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/v1/properties?status=for_sale", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Properties []models.Property `json:"properties"`
	}
	decodeJSON(t, rec, &list)
	require.Len(t, list.Properties, 1)
	assert.EqualValues(t, 850000, list.Properties[0].Price)

	rec = f.do(t, http.MethodPost, "/api/v1/properties", map[string]any{"title": ""})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestNotificationEndpoints(t *testing.T) {
	f := newServerFixture(t)
	propertyID := f.seedProperty(t)
	userID := f.seedUser(t, "visitor@example.com", models.RoleUser)
	adminID := f.seedUser(t, "admin@example.com", models.RoleAdmin)

	// Creating a reservation notifies the admin.
	rec := f.do(t, http.MethodPost, "/api/v1/reservations", map[string]any{
		"property_id": propertyID, "user_id": userID, "date": testDate(1), "time_slot": "12:00",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = f.do(t, http.MethodGet, fmt.Sprintf("/api/v1/notifications?user_id=%d", adminID), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Notifications []models.Notification `json:"notifications"`
		UnreadCount   int                   `json:"unread_count"`
	}
	decodeJSON(t, rec, &resp)
	require.Len(t, resp.Notifications, 1)
	assert.Equal(t, 1, resp.UnreadCount)

	rec = f.do(t, http.MethodPost,
		fmt.Sprintf("/api/v1/notifications/%d/read", resp.Notifications[0].ID),
		map[string]any{"user_id": adminID})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, fmt.Sprintf("/api/v1/notifications?user_id=%d", adminID), nil)
	decodeJSON(t, rec, &resp)
	assert.Equal(t, 0, resp.UnreadCount)

	rec = f.do(t, http.MethodDelete,
		fmt.Sprintf("/api/v1/notifications/%d?user_id=%d", resp.Notifications[0].ID, adminID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestUserAndDashboardEndpoints(t *testing.T) {
	f := newServerFixture(t)
	f.seedProperty(t)

	rec := f.do(t, http.MethodPost, "/api/v1/users", map[string]any{
		"email": "new@example.com", "full_name": "New User",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var user models.User
	decodeJSON(t, rec, &user)
	require.NotZero(t, user.ID)

	rec = f.do(t, http.MethodPut, fmt.Sprintf("/api/v1/users/%d/role", user.ID),
		map[string]any{"role": "agent"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/v1/users?role=agent", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var users struct {
		Users []models.User `json:"users"`
	}
	decodeJSON(t, rec, &users)
	require.Len(t, users.Users, 1)

	rec = f.do(t, http.MethodGet, "/api/v1/dashboard", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var overview struct {
		TotalProperties int `json:"total_properties"`
		TotalUsers      int `json:"total_users"`
	}
	decodeJSON(t, rec, &overview)
	assert.Equal(t, 1, overview.TotalProperties)
	assert.Equal(t, 1, overview.TotalUsers)
}
