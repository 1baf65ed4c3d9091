package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"estateadmin/internal/database"
	"estateadmin/internal/export"
	"estateadmin/internal/models"
)

const dateFormat = "2006-01-02"

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}

// writeDomainError maps store sentinels onto HTTP statuses. Concurrent
// modification is flagged retryable so clients re-read and resubmit.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, database.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, database.ErrForbidden):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, database.ErrInvalidDate),
		errors.Is(err, database.ErrInvalidSlot),
		errors.Is(err, database.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, database.ErrConcurrentModification):
		writeJSON(w, http.StatusConflict, map[string]any{
			"error":     err.Error(),
			"retryable": true,
		})
	case errors.Is(err, database.ErrSlotUnavailable),
		errors.Is(err, database.ErrSlotConflict),
		errors.Is(err, database.ErrInvalidTransition):
		writeError(w, http.StatusConflict, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func pathID(r *http.Request) (int64, error) {
	return strconv.ParseInt(r.PathValue("id"), 10, 64)
}

func queryInt64(r *http.Request, name string) int64 {
	v, _ := strconv.ParseInt(strings.TrimSpace(r.URL.Query().Get(name)), 10, 64)
	return v
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

// --- availability ---

func (s *Server) handleAvailability(w http.ResponseWriter, r *http.Request) {
	propertyID := queryInt64(r, "property_id")
	if propertyID == 0 {
		writeError(w, http.StatusBadRequest, "property_id is required")
		return
	}

	dateStr := strings.TrimSpace(r.URL.Query().Get("date"))
	date, err := time.Parse(dateFormat, dateStr)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid date format; expected YYYY-MM-DD")
		return
	}

	if _, err := s.db.GetProperty(r.Context(), propertyID); err != nil {
		writeDomainError(w, err)
		return
	}

	slots, err := s.scheduler.AvailableSlots(r.Context(), propertyID, date)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"property_id":     propertyID,
		"date":            dateStr,
		"available_slots": slots,
	})
}

// --- reservations ---

type createReservationRequest struct {
	PropertyID int64  `json:"property_id"`
	UserID     int64  `json:"user_id"`
	Date       string `json:"date"`
	TimeSlot   string `json:"time_slot"`
}

func (s *Server) handleCreateReservation(w http.ResponseWriter, r *http.Request) {
	var body createReservationRequest
	if !decodeBody(w, r, &body) {
		return
	}
	if body.PropertyID == 0 || body.UserID == 0 {
		writeError(w, http.StatusBadRequest, "property_id and user_id are required")
		return
	}

	date, err := time.Parse(dateFormat, body.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid date format; expected YYYY-MM-DD")
		return
	}

	if s.badges != nil && s.schedCfg.SubmissionLimit > 0 {
		window := time.Duration(s.schedCfg.SubmissionWindowSec) * time.Second
		allowed, err := s.badges.CheckRateLimit(r.Context(), body.UserID, s.schedCfg.SubmissionLimit, window)
		if err != nil {
			s.logger.Warn().Err(err).Int64("user_id", body.UserID).Msg("submission rate limit check failed")
		} else if !allowed {
			writeError(w, http.StatusTooManyRequests, "too many reservation requests, slow down")
			return
		}
	}

	reservation, err := s.scheduler.CreateReservation(r.Context(), body.PropertyID, body.UserID, date, body.TimeSlot)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, reservation)
}

func reservationFilterFromQuery(r *http.Request) models.ReservationFilter {
	q := r.URL.Query()
	filter := models.ReservationFilter{
		Search: strings.TrimSpace(q.Get("search")),
		Status: models.ReservationStatus(strings.TrimSpace(q.Get("status"))),
	}
	if from, err := time.Parse(dateFormat, q.Get("date_from")); err == nil {
		filter.DateFrom = from
	}
	if to, err := time.Parse(dateFormat, q.Get("date_to")); err == nil {
		filter.DateTo = to
	}
	return filter
}

func (s *Server) handleListReservations(w http.ResponseWriter, r *http.Request) {
	filter := reservationFilterFromQuery(r)
	if filter.Status != "" && !filter.Status.Valid() {
		writeError(w, http.StatusBadRequest, "unknown status filter")
		return
	}

	reservations, err := s.scheduler.ListReservations(r.Context(), filter)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	// Counts cover the filtered result set, matching what the listing shows.
	today := time.Now().Format(dateFormat)
	counts := make(map[models.ReservationStatus]int)
	todayCount := 0
	for _, res := range reservations {
		counts[res.Status]++
		if res.Date.Format(dateFormat) == today {
			todayCount++
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"reservations": reservations,
		"counts":       counts,
		"today":        todayCount,
	})
}

func (s *Server) handleMyReservations(w http.ResponseWriter, r *http.Request) {
	userID := queryInt64(r, "user_id")
	if userID == 0 {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	reservations, err := s.scheduler.ListReservations(r.Context(), models.ReservationFilter{UserID: userID})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	today := time.Now().Format(dateFormat)
	var pending, accepted, upcoming int
	for _, res := range reservations {
		switch res.Status {
		case models.StatusPending:
			pending++
		case models.StatusAccepted:
			accepted++
			if res.Date.Format(dateFormat) >= today {
				upcoming++
			}
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"reservations": reservations,
		"pending":      pending,
		"accepted":     accepted,
		"upcoming":     upcoming,
	})
}

func (s *Server) handleGetReservation(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid reservation id")
		return
	}

	reservation, err := s.scheduler.GetReservation(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reservation)
}

type decisionRequest struct {
	AdminRemark string `json:"admin_remark"`
}

func (s *Server) handleAccept(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid reservation id")
		return
	}

	var body decisionRequest
	if !decodeBody(w, r, &body) {
		return
	}

	reservation, err := s.scheduler.Accept(r.Context(), id, body.AdminRemark)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reservation)
}

func (s *Server) handleAdvisory(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid reservation id")
		return
	}

	warning, err := s.scheduler.AcceptanceAdvisory(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"warning": warning})
}

func (s *Server) handleRefuse(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid reservation id")
		return
	}

	var body decisionRequest
	if !decodeBody(w, r, &body) {
		return
	}

	reservation, err := s.scheduler.Refuse(r.Context(), id, body.AdminRemark)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reservation)
}

type cancelRequest struct {
	UserID int64 `json:"user_id"`
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid reservation id")
		return
	}

	var body cancelRequest
	if !decodeBody(w, r, &body) {
		return
	}
	if body.UserID == 0 {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	reservation, err := s.scheduler.Cancel(r.Context(), id, body.UserID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reservation)
}

// --- properties ---

func (s *Server) handleListProperties(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := models.PropertyFilter{
		Search: strings.TrimSpace(q.Get("search")),
		Type:   strings.TrimSpace(q.Get("type")),
		Status: models.PropertyStatus(strings.TrimSpace(q.Get("status"))),
	}
	if raw := strings.TrimSpace(q.Get("is_active")); raw != "" {
		active := raw == "true" || raw == "1"
		filter.IsActive = &active
	}

	properties, err := s.properties.List(r.Context(), filter)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"properties": properties})
}

func (s *Server) handleCreateProperty(w http.ResponseWriter, r *http.Request) {
	var property models.Property
	if !decodeBody(w, r, &property) {
		return
	}

	if err := s.properties.Create(r.Context(), &property); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, property)
}

func (s *Server) handleGetProperty(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid property id")
		return
	}

	property, err := s.properties.Get(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, property)
}

func (s *Server) handleUpdateProperty(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid property id")
		return
	}

	var property models.Property
	if !decodeBody(w, r, &property) {
		return
	}
	property.ID = id

	if err := s.properties.Update(r.Context(), &property); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, property)
}

// --- notifications ---

func (s *Server) handleListNotifications(w http.ResponseWriter, r *http.Request) {
	userID := queryInt64(r, "user_id")
	if userID == 0 {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	notifications, err := s.notifications.List(r.Context(), userID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	unread, err := s.notifications.UnreadCount(r.Context(), userID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"notifications": notifications,
		"unread_count":  unread,
	})
}

type notificationUserRequest struct {
	UserID int64 `json:"user_id"`
}

func (s *Server) handleMarkNotificationRead(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid notification id")
		return
	}

	var body notificationUserRequest
	if !decodeBody(w, r, &body) {
		return
	}
	if body.UserID == 0 {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	if err := s.notifications.MarkRead(r.Context(), id, body.UserID); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleMarkAllNotificationsRead(w http.ResponseWriter, r *http.Request) {
	var body notificationUserRequest
	if !decodeBody(w, r, &body) {
		return
	}
	if body.UserID == 0 {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	n, err := s.notifications.MarkAllRead(r.Context(), body.UserID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"marked": n})
}

func (s *Server) handleDeleteNotification(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid notification id")
		return
	}

	userID := queryInt64(r, "user_id")
	if userID == 0 {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	if err := s.notifications.Delete(r.Context(), id, userID); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// --- dashboard ---

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	overview, err := s.dashboard.Overview(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, overview)
}

// --- users ---

type userListEntry struct {
	*models.User
	ReservationCount int `json:"reservation_count"`
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := database.UserFilter{
		Search: strings.TrimSpace(q.Get("search")),
		Role:   models.Role(strings.TrimSpace(q.Get("role"))),
	}
	if raw := strings.TrimSpace(q.Get("is_active")); raw != "" {
		active := raw == "true" || raw == "1"
		filter.IsActive = &active
	}

	users, err := s.users.List(r.Context(), filter)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	entries := make([]userListEntry, 0, len(users))
	for _, u := range users {
		count, err := s.db.CountReservationsForUser(r.Context(), u.ID)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		entries = append(entries, userListEntry{User: u, ReservationCount: count})
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": entries})
}

func (s *Server) handleRegisterUser(w http.ResponseWriter, r *http.Request) {
	var user models.User
	if !decodeBody(w, r, &user) {
		return
	}

	if err := s.users.Register(r.Context(), &user); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

type setRoleRequest struct {
	Role models.Role `json:"role"`
}

func (s *Server) handleSetUserRole(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	var body setRoleRequest
	if !decodeBody(w, r, &body) {
		return
	}

	if err := s.users.AssignRole(r.Context(), id, body.Role); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// --- exports ---

func (s *Server) handleExportReservations(w http.ResponseWriter, r *http.Request) {
	if s.exporter == nil {
		writeError(w, http.StatusNotImplemented, "exports are not configured")
		return
	}

	filter := reservationFilterFromQuery(r)
	reservations, err := s.db.ListReservations(r.Context(), filter)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	propertyTitles := make(map[int64]string)
	users := make(map[int64]*models.User)

	rows := make([]export.ReservationRow, 0, len(reservations))
	for _, res := range reservations {
		title, ok := propertyTitles[res.PropertyID]
		if !ok {
			if p, err := s.db.GetProperty(r.Context(), res.PropertyID); err == nil {
				title = p.Title
			}
			propertyTitles[res.PropertyID] = title
		}

		user, ok := users[res.UserID]
		if !ok {
			user, _ = s.db.GetUser(r.Context(), res.UserID)
			users[res.UserID] = user
		}

		row := export.ReservationRow{Reservation: res, PropertyTitle: title}
		if user != nil {
			row.UserName = user.FullName
			row.UserEmail = user.Email
		}
		rows = append(rows, row)
	}

	path, err := s.exporter.WriteReservationsWorkbook(r.Context(), rows)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	w.Header().Set("Content-Disposition", `attachment; filename="reservations.xlsx"`)
	http.ServeFile(w, r, path)
}

func (s *Server) handleExportProperties(w http.ResponseWriter, r *http.Request) {
	if s.exporter == nil {
		writeError(w, http.StatusNotImplemented, "exports are not configured")
		return
	}

	properties, err := s.db.ListProperties(r.Context(), models.PropertyFilter{})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	path, err := s.exporter.WritePropertiesWorkbook(r.Context(), properties)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	w.Header().Set("Content-Disposition", `attachment; filename="properties.xlsx"`)
	http.ServeFile(w, r, path)
}
