package domain

import (
	"context"
	"time"

	"estateadmin/internal/models"
)

// PropertyStore is the read-only property lookup the scheduler depends on.
type PropertyStore interface {
	GetProperty(ctx context.Context, id int64) (*models.Property, error)
}

// UserDirectory resolves users and role membership.
type UserDirectory interface {
	GetUser(ctx context.Context, id int64) (*models.User, error)
	UsersInRole(ctx context.Context, role models.Role) ([]*models.User, error)
	RolesOf(ctx context.Context, userID int64) ([]models.Role, error)
}

// ReservationStore persists reservations and answers slot queries.
type ReservationStore interface {
	ReservedSlots(ctx context.Context, propertyID int64, date time.Time) ([]string, error)
	CreateReservationWithLock(ctx context.Context, r *models.Reservation) error
	GetReservation(ctx context.Context, id int64) (*models.Reservation, error)
	CountAcceptedConflicts(ctx context.Context, propertyID int64, date time.Time, timeSlot string, excludeID int64) (int, error)
	UpdateReservationDecisionWithVersion(ctx context.Context, id, fromVersion int64, status models.ReservationStatus, remark string) error
	UpdateReservationStatusWithVersion(ctx context.Context, id, fromVersion int64, status models.ReservationStatus) error
	ListReservations(ctx context.Context, filter models.ReservationFilter) ([]*models.Reservation, error)
	NearbyAcceptedForUser(ctx context.Context, userID, propertyID int64, date time.Time, windowDays int, excludeID int64) ([]*models.Reservation, error)
}

// NotificationSink stores notification records. Fire-and-forget from the
// scheduler's perspective.
type NotificationSink interface {
	CreateNotification(ctx context.Context, n *models.Notification) error
}

// EventPublisher fans domain events out to in-process subscribers.
type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

// StaffAnnouncer pushes a short text to an out-of-band staff channel.
// Implementations are optional; a nil announcer is a no-op.
type StaffAnnouncer interface {
	Announce(ctx context.Context, text string) error
}

// BadgeRepository caches per-user unread-notification counts and throttles
// reservation submissions.
type BadgeRepository interface {
	GetUnread(ctx context.Context, userID int64) (count int, ok bool, err error)
	SetUnread(ctx context.Context, userID int64, count int) error
	InvalidateUnread(ctx context.Context, userID int64) error
	CheckRateLimit(ctx context.Context, userID int64, limit int, window time.Duration) (bool, error)
}

// SyncWorker receives export tasks triggered by reservation mutations.
type SyncWorker interface {
	EnqueueReservation(ctx context.Context, r *models.Reservation) error
	EnqueueScheduleRefresh(ctx context.Context) error
}

// ScheduleWriter pushes the visit schedule to an external sheet.
type ScheduleWriter interface {
	UpdateScheduleSheet(ctx context.Context, daily map[string][]*models.Reservation) error
}
