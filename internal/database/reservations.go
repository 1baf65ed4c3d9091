package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"estateadmin/internal/models"

	"github.com/mattn/go-sqlite3"
)

// ReservedSlots returns the distinct time slots occupied on (property, date)
// by a reservation of any status, ascending.
func (db *DB) ReservedSlots(ctx context.Context, propertyID int64, date time.Time) ([]string, error) {
	query := `SELECT DISTINCT time_slot FROM reservations
              WHERE property_id = ? AND date = ? ORDER BY time_slot ASC`
	rows, err := db.QueryContext(ctx, query, propertyID, date.Format(dateFormat))
	if err != nil {
		return nil, fmt.Errorf("failed to get reserved slots: %w", err)
	}
	defer rows.Close()

	var slots []string
	for rows.Next() {
		var slot string
		if err := rows.Scan(&slot); err != nil {
			return nil, fmt.Errorf("failed to scan reserved slot: %w", err)
		}
		slots = append(slots, slot)
	}
	return slots, rows.Err()
}

// CreateReservationWithLock inserts a pending reservation, re-checking slot
// occupation inside the transaction so two concurrent submissions cannot both
// land on the same (property, date, slot).
func (db *DB) CreateReservationWithLock(ctx context.Context, r *models.Reservation) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var occupied int
	queryCount := `SELECT COUNT(*) FROM reservations
                   WHERE property_id = ? AND date = ? AND time_slot = ?`
	err = tx.QueryRowContext(ctx, queryCount,
		r.PropertyID, r.Date.Format(dateFormat), r.TimeSlot).Scan(&occupied)
	if err != nil {
		return fmt.Errorf("failed to check slot occupation in tx: %w", err)
	}
	if occupied > 0 {
		return ErrSlotUnavailable
	}

	now := time.Now()
	queryInsert := `INSERT INTO reservations (
                property_id, user_id, date, time_slot, status, admin_remark,
                created_at, updated_at, version
            ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	result, err := tx.ExecContext(ctx, queryInsert,
		r.PropertyID,
		r.UserID,
		r.Date.Format(dateFormat),
		r.TimeSlot,
		models.StatusPending,
		r.AdminRemark,
		now,
		now,
		1,
	)
	if err != nil {
		return fmt.Errorf("failed to insert reservation in tx: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id in tx: %w", err)
	}
	r.ID = id
	r.Status = models.StatusPending
	r.CreatedAt = now
	r.UpdatedAt = now
	r.Version = 1

	return tx.Commit()
}

const reservationColumns = `id, property_id, user_id, date, time_slot, status,
                COALESCE(admin_remark, ''), created_at, updated_at, version`

func scanReservation(row interface{ Scan(...any) error }) (*models.Reservation, error) {
	var r models.Reservation
	var dateStr string
	err := row.Scan(
		&r.ID, &r.PropertyID, &r.UserID, &dateStr, &r.TimeSlot, &r.Status,
		&r.AdminRemark, &r.CreatedAt, &r.UpdatedAt, &r.Version,
	)
	if err != nil {
		return nil, err
	}
	r.Date, err = time.Parse(dateFormat, dateStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse reservation date %s: %w", dateStr, err)
	}
	return &r, nil
}

func (db *DB) GetReservation(ctx context.Context, id int64) (*models.Reservation, error) {
	query := `SELECT ` + reservationColumns + ` FROM reservations WHERE id = ?`
	r, err := scanReservation(db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get reservation: %w", err)
	}
	return r, nil
}

// CountAcceptedConflicts counts accepted reservations other than excludeID on
// the same (property, date, slot) triple.
func (db *DB) CountAcceptedConflicts(ctx context.Context, propertyID int64, date time.Time, timeSlot string, excludeID int64) (int, error) {
	query := `SELECT COUNT(*) FROM reservations
              WHERE property_id = ? AND date = ? AND time_slot = ?
              AND status = ? AND id != ?`
	var count int
	err := db.QueryRowContext(ctx, query,
		propertyID, date.Format(dateFormat), timeSlot, models.StatusAccepted, excludeID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count accepted conflicts: %w", err)
	}
	return count, nil
}

// UpdateReservationDecisionWithVersion applies a staff decision (status plus
// remark) under optimistic concurrency control. A unique-index violation means
// a racing acceptance landed on the same slot between the caller's conflict
// check and this write; it surfaces as ErrSlotConflict.
func (db *DB) UpdateReservationDecisionWithVersion(ctx context.Context, id, fromVersion int64, status models.ReservationStatus, remark string) error {
	query := `UPDATE reservations SET status = ?, admin_remark = ?, version = version + 1, updated_at = ?
              WHERE id = ? AND version = ?`
	result, err := db.ExecContext(ctx, query, status, remark, time.Now(), id, fromVersion)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return ErrSlotConflict
		}
		return fmt.Errorf("failed to update reservation decision: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrConcurrentModification
	}
	return nil
}

// UpdateReservationStatusWithVersion changes only the status under optimistic
// concurrency control. Used by the cancel path, which never touches the remark.
func (db *DB) UpdateReservationStatusWithVersion(ctx context.Context, id, fromVersion int64, status models.ReservationStatus) error {
	query := `UPDATE reservations SET status = ?, version = version + 1, updated_at = ?
              WHERE id = ? AND version = ?`
	result, err := db.ExecContext(ctx, query, status, time.Now(), id, fromVersion)
	if err != nil {
		return fmt.Errorf("failed to update reservation status: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrConcurrentModification
	}
	return nil
}

// ListReservations returns reservations matching the filter, ordered with
// today's visits first, then upcoming, then past; within each bucket by date
// then slot.
func (db *DB) ListReservations(ctx context.Context, filter models.ReservationFilter) ([]*models.Reservation, error) {
	var (
		conds []string
		args  []any
	)

	if filter.Status != "" {
		conds = append(conds, "r.status = ?")
		args = append(args, filter.Status)
	}
	if filter.UserID != 0 {
		conds = append(conds, "r.user_id = ?")
		args = append(args, filter.UserID)
	}
	if !filter.DateFrom.IsZero() {
		conds = append(conds, "r.date >= ?")
		args = append(args, filter.DateFrom.Format(dateFormat))
	}
	if !filter.DateTo.IsZero() {
		conds = append(conds, "r.date <= ?")
		args = append(args, filter.DateTo.Format(dateFormat))
	}
	if filter.Search != "" {
		needle := "%" + strings.ToLower(filter.Search) + "%"
		conds = append(conds, `(LOWER(p.title) LIKE ? OR LOWER(u.full_name) LIKE ? OR LOWER(u.email) LIKE ?)`)
		args = append(args, needle, needle, needle)
	}

	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	today := time.Now().Format(dateFormat)
	query := `SELECT r.id, r.property_id, r.user_id, r.date, r.time_slot, r.status,
                     COALESCE(r.admin_remark, ''), r.created_at, r.updated_at, r.version
              FROM reservations r
              JOIN properties p ON p.id = r.property_id
              JOIN users u ON u.id = r.user_id` + where + `
              ORDER BY CASE WHEN r.date = ? THEN 0 WHEN r.date > ? THEN 1 ELSE 2 END,
                       r.date ASC, r.time_slot ASC`
	args = append(args, today, today)

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list reservations: %w", err)
	}
	defer rows.Close()

	var reservations []*models.Reservation
	for rows.Next() {
		r, err := scanReservation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan reservation: %w", err)
		}
		reservations = append(reservations, r)
	}
	return reservations, rows.Err()
}

// NearbyAcceptedForUser returns accepted reservations by the same user on the
// same property within windowDays of date, excluding excludeID. Feeds the
// advisory warning shown to staff before acceptance; never blocks anything.
func (db *DB) NearbyAcceptedForUser(ctx context.Context, userID, propertyID int64, date time.Time, windowDays int, excludeID int64) ([]*models.Reservation, error) {
	from := date.AddDate(0, 0, -windowDays).Format(dateFormat)
	to := date.AddDate(0, 0, windowDays).Format(dateFormat)

	query := `SELECT ` + reservationColumns + ` FROM reservations
              WHERE user_id = ? AND property_id = ? AND status = ?
              AND date BETWEEN ? AND ? AND id != ?
              ORDER BY date ASC, time_slot ASC`
	rows, err := db.QueryContext(ctx, query, userID, propertyID, models.StatusAccepted, from, to, excludeID)
	if err != nil {
		return nil, fmt.Errorf("failed to get nearby accepted reservations: %w", err)
	}
	defer rows.Close()

	var reservations []*models.Reservation
	for rows.Next() {
		r, err := scanReservation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan reservation: %w", err)
		}
		reservations = append(reservations, r)
	}
	return reservations, rows.Err()
}

// CountReservationsByStatus returns reservation counts keyed by status.
func (db *DB) CountReservationsByStatus(ctx context.Context) (map[models.ReservationStatus]int, error) {
	rows, err := db.QueryContext(ctx, `SELECT status, COUNT(*) FROM reservations GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count reservations by status: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.ReservationStatus]int)
	for rows.Next() {
		var status models.ReservationStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		counts[status] = count
	}
	return counts, rows.Err()
}

// CountReservationsForUser returns how many reservations a user has submitted.
func (db *DB) CountReservationsForUser(ctx context.Context, userID int64) (int, error) {
	var count int
	err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM reservations WHERE user_id = ?`, userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count user reservations: %w", err)
	}
	return count, nil
}

// RecentReservations returns the n most recently created reservations.
func (db *DB) RecentReservations(ctx context.Context, n int) ([]*models.Reservation, error) {
	query := `SELECT ` + reservationColumns + ` FROM reservations
              ORDER BY created_at DESC, id DESC LIMIT ?`
	rows, err := db.QueryContext(ctx, query, n)
	if err != nil {
		return nil, fmt.Errorf("failed to get recent reservations: %w", err)
	}
	defer rows.Close()

	var reservations []*models.Reservation
	for rows.Next() {
		r, err := scanReservation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan reservation: %w", err)
		}
		reservations = append(reservations, r)
	}
	return reservations, rows.Err()
}
