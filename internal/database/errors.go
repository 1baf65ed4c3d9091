package database

import "errors"

// Sentinel errors surfaced by the store and the scheduler. Callers match with
// errors.Is; everything else is an internal storage failure.
var (
	ErrNotFound               = errors.New("record not found")
	ErrInvalidInput           = errors.New("invalid input")
	ErrForbidden              = errors.New("operation not permitted for this user")
	ErrInvalidDate            = errors.New("reservation date must be in the future")
	ErrInvalidSlot            = errors.New("unrecognized time slot")
	ErrSlotUnavailable        = errors.New("time slot is no longer available")
	ErrSlotConflict           = errors.New("another reservation is already accepted for this slot")
	ErrInvalidTransition      = errors.New("reservation state does not allow this transition")
	ErrConcurrentModification = errors.New("reservation was modified concurrently, retry with fresh data")
)
