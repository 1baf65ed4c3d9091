package models

import "time"

type Notification struct {
	ID            int64     `json:"id"`
	UserID        int64     `json:"user_id"`
	ReservationID int64     `json:"reservation_id"`
	Title         string    `json:"title"`
	Message       string    `json:"message"`
	IsRead        bool      `json:"is_read"`
	CreatedAt     time.Time `json:"created_at"`
}
