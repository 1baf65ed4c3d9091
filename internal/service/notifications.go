package service

import (
	"context"

	"estateadmin/internal/database"
	"estateadmin/internal/domain"
	"estateadmin/internal/models"

	"github.com/rs/zerolog"
)

// NotificationService serves the per-user notification center. Unread counts
// go through the badge cache; reads fall back to SQL on a miss and refresh it.
type NotificationService struct {
	db     *database.DB
	badges domain.BadgeRepository
	logger *zerolog.Logger
}

func NewNotificationService(db *database.DB, badges domain.BadgeRepository, logger *zerolog.Logger) *NotificationService {
	return &NotificationService{db: db, badges: badges, logger: logger}
}

func (s *NotificationService) List(ctx context.Context, userID int64) ([]*models.Notification, error) {
	return s.db.ListNotificationsForUser(ctx, userID)
}

// UnreadCount answers from the badge cache when possible. Cache failures are
// logged and degrade to a direct count.
func (s *NotificationService) UnreadCount(ctx context.Context, userID int64) (int, error) {
	if s.badges != nil {
		count, ok, err := s.badges.GetUnread(ctx, userID)
		if err != nil {
			s.logger.Warn().Err(err).Int64("user_id", userID).Msg("badge cache read failed")
		} else if ok {
			return count, nil
		}
	}

	count, err := s.db.CountUnreadNotifications(ctx, userID)
	if err != nil {
		return 0, err
	}

	if s.badges != nil {
		if err := s.badges.SetUnread(ctx, userID, count); err != nil {
			s.logger.Warn().Err(err).Int64("user_id", userID).Msg("badge cache write failed")
		}
	}
	return count, nil
}

func (s *NotificationService) MarkRead(ctx context.Context, id, userID int64) error {
	if err := s.db.MarkNotificationRead(ctx, id, userID); err != nil {
		return err
	}
	s.invalidate(ctx, userID)
	return nil
}

func (s *NotificationService) MarkAllRead(ctx context.Context, userID int64) (int64, error) {
	n, err := s.db.MarkAllNotificationsRead(ctx, userID)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.invalidate(ctx, userID)
	}
	return n, nil
}

func (s *NotificationService) Delete(ctx context.Context, id, userID int64) error {
	if err := s.db.DeleteNotification(ctx, id, userID); err != nil {
		return err
	}
	s.invalidate(ctx, userID)
	return nil
}

func (s *NotificationService) invalidate(ctx context.Context, userID int64) {
	if s.badges == nil {
		return
	}
	if err := s.badges.InvalidateUnread(ctx, userID); err != nil {
		s.logger.Warn().Err(err).Int64("user_id", userID).Msg("badge cache invalidation failed")
	}
}
