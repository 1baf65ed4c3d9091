package models

import "time"

// ReservationStatus is the closed set of visit-reservation states.
type ReservationStatus string

const (
	StatusPending   ReservationStatus = "pending"
	StatusAccepted  ReservationStatus = "accepted"
	StatusRefused   ReservationStatus = "refused"
	StatusCancelled ReservationStatus = "cancelled"
)

// Valid reports whether s is one of the known reservation states.
func (s ReservationStatus) Valid() bool {
	switch s {
	case StatusPending, StatusAccepted, StatusRefused, StatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether no further transition may leave s.
func (s ReservationStatus) Terminal() bool {
	return s == StatusRefused || s == StatusCancelled
}

// ReservationFilter narrows staff reservation listings. Zero values mean
// "no filter".
type ReservationFilter struct {
	Search   string
	Status   ReservationStatus
	DateFrom time.Time
	DateTo   time.Time
	UserID   int64
}

type Reservation struct {
	ID          int64             `json:"id"`
	PropertyID  int64             `json:"property_id"`
	UserID      int64             `json:"user_id"`
	Date        time.Time         `json:"date"`
	TimeSlot    string            `json:"time_slot"`
	Status      ReservationStatus `json:"status"`
	AdminRemark string            `json:"admin_remark,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
	Version     int64             `json:"version"`
}
