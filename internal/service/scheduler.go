package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"estateadmin/internal/database"
	"estateadmin/internal/domain"
	"estateadmin/internal/events"
	"estateadmin/internal/metrics"
	"estateadmin/internal/models"
	"estateadmin/internal/notify"

	"github.com/rs/zerolog"
)

const dateFormat = "2006-01-02"

// Scheduler owns slot availability, reservation creation, conflict detection
// and status transitions, with notification fan-out as a side effect.
//
// Every mutation is validated before any write; notification delivery happens
// after the write has committed and never rolls it back.
type Scheduler struct {
	properties     domain.PropertyStore
	users          domain.UserDirectory
	reservations   domain.ReservationStore
	distributor    *notify.Distributor
	eventBus       domain.EventPublisher
	worker         domain.SyncWorker
	maxAdvanceDays int
	advisoryDays   int
	logger         *zerolog.Logger
	now            func() time.Time
}

type SchedulerOptions struct {
	MaxAdvanceDays     int
	AdvisoryWindowDays int
}

func NewScheduler(
	properties domain.PropertyStore,
	users domain.UserDirectory,
	reservations domain.ReservationStore,
	distributor *notify.Distributor,
	eventBus domain.EventPublisher,
	worker domain.SyncWorker,
	opts SchedulerOptions,
	logger *zerolog.Logger,
) *Scheduler {
	if opts.MaxAdvanceDays <= 0 {
		opts.MaxAdvanceDays = 365
	}
	if opts.AdvisoryWindowDays <= 0 {
		opts.AdvisoryWindowDays = 2
	}
	return &Scheduler{
		properties:     properties,
		users:          users,
		reservations:   reservations,
		distributor:    distributor,
		eventBus:       eventBus,
		worker:         worker,
		maxAdvanceDays: opts.MaxAdvanceDays,
		advisoryDays:   opts.AdvisoryWindowDays,
		logger:         logger,
		now:            time.Now,
	}
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// AvailableSlots returns the fixed slot universe minus every slot occupied on
// (property, date) by a reservation of any status. Ascending, side-effect free.
func (s *Scheduler) AvailableSlots(ctx context.Context, propertyID int64, date time.Time) ([]string, error) {
	reserved, err := s.reservations.ReservedSlots(ctx, propertyID, date)
	if err != nil {
		return nil, err
	}

	taken := make(map[string]struct{}, len(reserved))
	for _, slot := range reserved {
		taken[slot] = struct{}{}
	}

	available := make([]string, 0, 10)
	for _, slot := range models.TimeSlots() {
		if _, ok := taken[slot]; !ok {
			available = append(available, slot)
		}
	}
	return available, nil
}

// ValidateReservationDate checks that date is strictly after today and within
// the booking horizon.
func (s *Scheduler) ValidateReservationDate(date time.Time) error {
	today := dateOnly(s.now())
	if !dateOnly(date).After(today) {
		return database.ErrInvalidDate
	}
	if dateOnly(date).After(today.AddDate(0, 0, s.maxAdvanceDays)) {
		return database.ErrInvalidDate
	}
	return nil
}

// CreateReservation validates and persists a pending reservation, then fans a
// notification out to every admin and agent (deduplicated).
func (s *Scheduler) CreateReservation(ctx context.Context, propertyID, userID int64, date time.Time, timeSlot string) (*models.Reservation, error) {
	property, err := s.properties.GetProperty(ctx, propertyID)
	if err != nil {
		return nil, err
	}

	if err := s.ValidateReservationDate(date); err != nil {
		return nil, err
	}

	if timeSlot == "" || !models.ValidTimeSlot(timeSlot) {
		return nil, database.ErrInvalidSlot
	}

	reservation := &models.Reservation{
		PropertyID: propertyID,
		UserID:     userID,
		Date:       dateOnly(date),
		TimeSlot:   timeSlot,
	}
	if err := s.reservations.CreateReservationWithLock(ctx, reservation); err != nil {
		if errors.Is(err, database.ErrSlotUnavailable) {
			metrics.IncSlotConflict()
		}
		return nil, err
	}
	metrics.IncReservationCreated()

	// Reservation is durably committed; everything below is best-effort.
	audience := s.staffAudience(ctx)
	message := fmt.Sprintf("New visit request for '%s' on %s at %s.",
		property.Title, reservation.Date.Format(dateFormat), reservation.TimeSlot)
	s.distributor.Distribute(ctx, audience, reservation.ID, "New reservation", message)
	s.distributor.Announce(ctx, message)

	s.publishEvent(events.EventReservationCreated, reservation, 0)
	s.enqueueSync(ctx, reservation)

	return reservation, nil
}

// Accept marks a pending reservation accepted unless another reservation on
// the same (property, date, slot) is already accepted.
func (s *Scheduler) Accept(ctx context.Context, reservationID int64, adminRemark string) (*models.Reservation, error) {
	reservation, err := s.reservations.GetReservation(ctx, reservationID)
	if err != nil {
		return nil, err
	}

	conflicts, err := s.reservations.CountAcceptedConflicts(ctx,
		reservation.PropertyID, reservation.Date, reservation.TimeSlot, reservation.ID)
	if err != nil {
		return nil, err
	}
	if conflicts > 0 {
		metrics.IncSlotConflict()
		return nil, database.ErrSlotConflict
	}

	err = s.reservations.UpdateReservationDecisionWithVersion(ctx,
		reservation.ID, reservation.Version, models.StatusAccepted, adminRemark)
	if err != nil {
		// A racing acceptance can slip in after the conflict count; the
		// accepted-slot index reports it as a conflict, not a storage error.
		if errors.Is(err, database.ErrSlotConflict) {
			metrics.IncSlotConflict()
		}
		return nil, err
	}
	metrics.IncTransition(string(models.StatusAccepted))

	updated, err := s.reservations.GetReservation(ctx, reservationID)
	if err != nil {
		// The write committed; fall back to a local view for the side effects.
		s.logger.Warn().Err(err).Int64("reservation_id", reservationID).Msg("reload after accept failed")
		updated = reservation
		updated.Status = models.StatusAccepted
		updated.AdminRemark = adminRemark
	}

	message := fmt.Sprintf("Your reservation for '%s' on %s at %s has been accepted.",
		s.propertyTitle(ctx, updated.PropertyID), updated.Date.Format(dateFormat), updated.TimeSlot)
	if adminRemark != "" {
		message += " Remark: " + adminRemark
	}
	s.distributor.Distribute(ctx, []int64{updated.UserID}, updated.ID, "Reservation accepted", message)

	s.publishEvent(events.EventReservationAccepted, updated, 0)
	s.enqueueSync(ctx, updated)

	return updated, nil
}

// AdvisoryWarning is informational only: it is surfaced to staff before
// confirming an acceptance and never blocks it.
type AdvisoryWarning struct {
	Message      string                `json:"message"`
	Reservations []*models.Reservation `json:"reservations"`
}

// AcceptanceAdvisory reports other accepted reservations by the same user on
// the same property within the advisory window around the reservation's date.
func (s *Scheduler) AcceptanceAdvisory(ctx context.Context, reservationID int64) (*AdvisoryWarning, error) {
	reservation, err := s.reservations.GetReservation(ctx, reservationID)
	if err != nil {
		return nil, err
	}

	nearby, err := s.reservations.NearbyAcceptedForUser(ctx,
		reservation.UserID, reservation.PropertyID, reservation.Date, s.advisoryDays, reservation.ID)
	if err != nil {
		return nil, err
	}
	if len(nearby) == 0 {
		return nil, nil
	}

	return &AdvisoryWarning{
		Message: fmt.Sprintf("This user already has %d accepted visit(s) for the same property within %d day(s).",
			len(nearby), s.advisoryDays),
		Reservations: nearby,
	}, nil
}

// Refuse marks a reservation refused. Refusing an already-refused reservation
// re-stamps it and re-notifies the owner; that matches the admin UI flow where
// the decision form can be resubmitted.
func (s *Scheduler) Refuse(ctx context.Context, reservationID int64, adminRemark string) (*models.Reservation, error) {
	reservation, err := s.reservations.GetReservation(ctx, reservationID)
	if err != nil {
		return nil, err
	}

	err = s.reservations.UpdateReservationDecisionWithVersion(ctx,
		reservation.ID, reservation.Version, models.StatusRefused, adminRemark)
	if err != nil {
		return nil, err
	}
	metrics.IncTransition(string(models.StatusRefused))

	updated, err := s.reservations.GetReservation(ctx, reservationID)
	if err != nil {
		s.logger.Warn().Err(err).Int64("reservation_id", reservationID).Msg("reload after refuse failed")
		updated = reservation
		updated.Status = models.StatusRefused
		updated.AdminRemark = adminRemark
	}

	message := fmt.Sprintf("Your reservation for '%s' on %s at %s has been refused.",
		s.propertyTitle(ctx, updated.PropertyID), updated.Date.Format(dateFormat), updated.TimeSlot)
	if adminRemark != "" {
		message += " Reason: " + adminRemark
	}
	s.distributor.Distribute(ctx, []int64{updated.UserID}, updated.ID, "Reservation refused", message)

	s.publishEvent(events.EventReservationRefused, updated, 0)
	s.enqueueSync(ctx, updated)

	return updated, nil
}

// Cancel lets the owning user withdraw a pending or accepted reservation.
// Cancelling a previously-accepted visit re-notifies staff so the slot can be
// reopened.
func (s *Scheduler) Cancel(ctx context.Context, reservationID, requestingUserID int64) (*models.Reservation, error) {
	reservation, err := s.reservations.GetReservation(ctx, reservationID)
	if err != nil {
		return nil, err
	}
	if reservation.UserID != requestingUserID {
		return nil, database.ErrForbidden
	}
	if reservation.Status.Terminal() {
		return nil, database.ErrInvalidTransition
	}

	wasAccepted := reservation.Status == models.StatusAccepted

	err = s.reservations.UpdateReservationStatusWithVersion(ctx,
		reservation.ID, reservation.Version, models.StatusCancelled)
	if err != nil {
		return nil, err
	}
	metrics.IncTransition(string(models.StatusCancelled))

	updated, err := s.reservations.GetReservation(ctx, reservationID)
	if err != nil {
		s.logger.Warn().Err(err).Int64("reservation_id", reservationID).Msg("reload after cancel failed")
		updated = reservation
		updated.Status = models.StatusCancelled
	}

	if wasAccepted {
		audience := s.staffAudience(ctx)
		message := fmt.Sprintf("An accepted visit for '%s' on %s at %s was cancelled by the user.",
			s.propertyTitle(ctx, updated.PropertyID), updated.Date.Format(dateFormat), updated.TimeSlot)
		s.distributor.Distribute(ctx, audience, updated.ID, "Reservation cancelled by user", message)
		s.distributor.Announce(ctx, message)
	}

	s.publishEvent(events.EventReservationCancelled, updated, requestingUserID)
	s.enqueueSync(ctx, updated)

	return updated, nil
}

// ListReservations passes the staff listing through to the store.
func (s *Scheduler) ListReservations(ctx context.Context, filter models.ReservationFilter) ([]*models.Reservation, error) {
	return s.reservations.ListReservations(ctx, filter)
}

func (s *Scheduler) GetReservation(ctx context.Context, id int64) (*models.Reservation, error) {
	return s.reservations.GetReservation(ctx, id)
}

// staffAudience resolves the deduplicated set of admin and agent user IDs.
// Lookup failures shrink the audience instead of failing the operation.
func (s *Scheduler) staffAudience(ctx context.Context) []int64 {
	var groups [][]*models.User
	for _, role := range models.StaffRoles {
		users, err := s.users.UsersInRole(ctx, role)
		if err != nil {
			s.logger.Error().Err(err).Str("role", string(role)).Msg("staff audience lookup failed")
			continue
		}
		groups = append(groups, users)
	}
	return notify.Dedup(groups...)
}

func (s *Scheduler) propertyTitle(ctx context.Context, propertyID int64) string {
	property, err := s.properties.GetProperty(ctx, propertyID)
	if err != nil {
		return fmt.Sprintf("property #%d", propertyID)
	}
	return property.Title
}

func (s *Scheduler) publishEvent(eventType string, r *models.Reservation, actorID int64) {
	if s.eventBus == nil {
		return
	}

	payload := events.ReservationEventPayload{
		ReservationID: r.ID,
		PropertyID:    r.PropertyID,
		UserID:        r.UserID,
		Date:          r.Date,
		TimeSlot:      r.TimeSlot,
		Status:        r.Status,
		AdminRemark:   r.AdminRemark,
		ActorID:       actorID,
	}

	if err := s.eventBus.PublishJSON(eventType, payload); err != nil {
		s.logger.Error().Err(err).Str("event_type", eventType).Int64("reservation_id", r.ID).Msg("publish event error")
	}
}

func (s *Scheduler) enqueueSync(ctx context.Context, r *models.Reservation) {
	if s.worker == nil {
		return
	}
	if err := s.worker.EnqueueReservation(ctx, r); err != nil {
		s.logger.Error().Err(err).Int64("reservation_id", r.ID).Msg("export enqueue error")
	}
	if err := s.worker.EnqueueScheduleRefresh(ctx); err != nil {
		s.logger.Error().Err(err).Msg("schedule refresh enqueue error")
	}
}
