package notify

import (
	"context"

	"estateadmin/internal/domain"
	"estateadmin/internal/metrics"
	"estateadmin/internal/models"

	"github.com/rs/zerolog"
)

// Distributor writes notification records for an audience and optionally
// mirrors staff-facing events to an out-of-band channel. Delivery is
// best-effort: the triggering mutation is already committed, so failures are
// logged and never propagated.
type Distributor struct {
	sink      domain.NotificationSink
	announcer domain.StaffAnnouncer
	badges    domain.BadgeRepository
	logger    *zerolog.Logger
}

func NewDistributor(sink domain.NotificationSink, announcer domain.StaffAnnouncer, badges domain.BadgeRepository, logger *zerolog.Logger) *Distributor {
	return &Distributor{
		sink:      sink,
		announcer: announcer,
		badges:    badges,
		logger:    logger,
	}
}

// Dedup returns the distinct user IDs across the given user sets, preserving
// first-seen order. A user appearing in several sets (e.g. holding both Admin
// and Agent) is kept once.
func Dedup(groups ...[]*models.User) []int64 {
	seen := make(map[int64]struct{})
	var ids []int64
	for _, group := range groups {
		for _, u := range group {
			if _, ok := seen[u.ID]; ok {
				continue
			}
			seen[u.ID] = struct{}{}
			ids = append(ids, u.ID)
		}
	}
	return ids
}

// Distribute writes one notification per recipient. Returns the number of
// records actually written.
func (d *Distributor) Distribute(ctx context.Context, recipients []int64, reservationID int64, title, message string) int {
	delivered := 0
	for _, userID := range recipients {
		n := &models.Notification{
			UserID:        userID,
			ReservationID: reservationID,
			Title:         title,
			Message:       message,
		}
		if err := d.sink.CreateNotification(ctx, n); err != nil {
			d.logger.Error().Err(err).
				Int64("user_id", userID).
				Int64("reservation_id", reservationID).
				Msg("notification delivery failed")
			continue
		}
		delivered++
		if d.badges != nil {
			if err := d.badges.InvalidateUnread(ctx, userID); err != nil {
				d.logger.Warn().Err(err).Int64("user_id", userID).Msg("unread badge invalidation failed")
			}
		}
	}

	if delivered > 0 {
		metrics.AddNotificationsEmitted(delivered)
	}
	return delivered
}

// Announce pushes a short message to the staff channel, if one is configured.
func (d *Distributor) Announce(ctx context.Context, text string) {
	if d.announcer == nil {
		return
	}
	if err := d.announcer.Announce(ctx, text); err != nil {
		d.logger.Warn().Err(err).Msg("staff announcement failed")
	}
}
