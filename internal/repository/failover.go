package repository

import (
	"context"
	"sync/atomic"
	"time"

	"estateadmin/internal/domain"

	"github.com/rs/zerolog"
)

// FailoverBadgeRepository serves from the primary (Redis) until it fails, then
// falls back to memory and probes the primary again after a minute.
type FailoverBadgeRepository struct {
	primary   domain.BadgeRepository
	fallback  domain.BadgeRepository
	logger    *zerolog.Logger
	isDown    atomic.Bool
	lastCheck atomic.Int64
}

func NewFailoverBadgeRepository(primary, fallback domain.BadgeRepository, logger *zerolog.Logger) *FailoverBadgeRepository {
	return &FailoverBadgeRepository{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
	}
}

func (r *FailoverBadgeRepository) markDown() {
	r.isDown.Store(true)
	r.lastCheck.Store(time.Now().UnixNano())
}

func (r *FailoverBadgeRepository) shouldProbe() bool {
	return time.Since(time.Unix(0, r.lastCheck.Load())) > time.Minute
}

func (r *FailoverBadgeRepository) GetUnread(ctx context.Context, userID int64) (int, bool, error) {
	if !r.isDown.Load() || r.shouldProbe() {
		count, ok, err := r.primary.GetUnread(ctx, userID)
		if err == nil {
			r.isDown.Store(false)
			return count, ok, nil
		}
		r.logger.Error().Err(err).Msg("primary badge repository failed, falling back to memory")
		r.markDown()
	}
	return r.fallback.GetUnread(ctx, userID)
}

func (r *FailoverBadgeRepository) SetUnread(ctx context.Context, userID int64, count int) error {
	if !r.isDown.Load() {
		err := r.primary.SetUnread(ctx, userID, count)
		if err == nil {
			return nil
		}
		r.logger.Error().Err(err).Msg("primary badge repository failed, falling back to memory")
		r.markDown()
	}
	return r.fallback.SetUnread(ctx, userID, count)
}

func (r *FailoverBadgeRepository) InvalidateUnread(ctx context.Context, userID int64) error {
	if !r.isDown.Load() {
		err := r.primary.InvalidateUnread(ctx, userID)
		if err == nil {
			return nil
		}
		r.logger.Error().Err(err).Msg("primary badge repository failed, falling back to memory")
		r.markDown()
	}
	return r.fallback.InvalidateUnread(ctx, userID)
}

func (r *FailoverBadgeRepository) CheckRateLimit(ctx context.Context, userID int64, limit int, window time.Duration) (bool, error) {
	if !r.isDown.Load() {
		allowed, err := r.primary.CheckRateLimit(ctx, userID, limit, window)
		if err == nil {
			return allowed, nil
		}
		r.logger.Error().Err(err).Msg("primary badge repository failed, falling back to memory")
		r.markDown()
	}
	return r.fallback.CheckRateLimit(ctx, userID, limit, window)
}
