package database

import (
	"context"
	"fmt"
	"time"

	"estateadmin/internal/models"
)

func (db *DB) CreateNotification(ctx context.Context, n *models.Notification) error {
	now := time.Now()
	var reservationID any
	if n.ReservationID != 0 {
		reservationID = n.ReservationID
	}
	result, err := db.ExecContext(ctx,
		`INSERT INTO notifications (user_id, reservation_id, title, message, is_read, created_at)
         VALUES (?, ?, ?, ?, 0, ?)`,
		n.UserID, reservationID, n.Title, n.Message, now,
	)
	if err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	n.ID = id
	n.IsRead = false
	n.CreatedAt = now
	return nil
}

// ListNotificationsForUser returns the user's notifications, newest first.
func (db *DB) ListNotificationsForUser(ctx context.Context, userID int64) ([]*models.Notification, error) {
	query := `SELECT id, user_id, COALESCE(reservation_id, 0), title, message, is_read, created_at
              FROM notifications WHERE user_id = ?
              ORDER BY created_at DESC, id DESC`
	rows, err := db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	defer rows.Close()

	var notifications []*models.Notification
	for rows.Next() {
		var n models.Notification
		err := rows.Scan(&n.ID, &n.UserID, &n.ReservationID, &n.Title, &n.Message, &n.IsRead, &n.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		notifications = append(notifications, &n)
	}
	return notifications, rows.Err()
}

func (db *DB) CountUnreadNotifications(ctx context.Context, userID int64) (int, error) {
	var count int
	err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM notifications WHERE user_id = ? AND is_read = 0`, userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count unread notifications: %w", err)
	}
	return count, nil
}

// MarkNotificationRead flips is_read for a notification owned by userID.
func (db *DB) MarkNotificationRead(ctx context.Context, id, userID int64) error {
	result, err := db.ExecContext(ctx,
		`UPDATE notifications SET is_read = 1 WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("failed to mark notification read: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

func (db *DB) MarkAllNotificationsRead(ctx context.Context, userID int64) (int64, error) {
	result, err := db.ExecContext(ctx,
		`UPDATE notifications SET is_read = 1 WHERE user_id = ? AND is_read = 0`, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to mark notifications read: %w", err)
	}
	rows, _ := result.RowsAffected()
	return rows, nil
}

// DeleteNotification removes a notification owned by userID.
func (db *DB) DeleteNotification(ctx context.Context, id, userID int64) error {
	result, err := db.ExecContext(ctx,
		`DELETE FROM notifications WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("failed to delete notification: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}
