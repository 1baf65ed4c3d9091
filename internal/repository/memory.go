package repository

import (
	"context"
	"sync"
	"time"
)

// MemoryBadgeRepository is the in-process fallback when Redis is unavailable.
type MemoryBadgeRepository struct {
	unread     sync.Map
	rateLimits sync.Map
	ttl        time.Duration
}

func NewMemoryBadgeRepository(ttl time.Duration) *MemoryBadgeRepository {
	return &MemoryBadgeRepository{
		ttl: ttl,
	}
}

type unreadEntry struct {
	count     int
	expiresAt time.Time
}

func (r *MemoryBadgeRepository) GetUnread(ctx context.Context, userID int64) (int, bool, error) {
	val, ok := r.unread.Load(userID)
	if !ok {
		return 0, false, nil
	}
	entry := val.(*unreadEntry)
	if time.Now().After(entry.expiresAt) {
		r.unread.Delete(userID)
		return 0, false, nil
	}
	return entry.count, true, nil
}

func (r *MemoryBadgeRepository) SetUnread(ctx context.Context, userID int64, count int) error {
	r.unread.Store(userID, &unreadEntry{count: count, expiresAt: time.Now().Add(r.ttl)})
	return nil
}

func (r *MemoryBadgeRepository) InvalidateUnread(ctx context.Context, userID int64) error {
	r.unread.Delete(userID)
	return nil
}

type rateLimitEntry struct {
	count     int
	expiresAt time.Time
}

func (r *MemoryBadgeRepository) CheckRateLimit(ctx context.Context, userID int64, limit int, window time.Duration) (bool, error) {
	now := time.Now()
	val, ok := r.rateLimits.Load(userID)

	var entry *rateLimitEntry
	if !ok {
		entry = &rateLimitEntry{
			count:     1,
			expiresAt: now.Add(window),
		}
	} else {
		entry = val.(*rateLimitEntry)
		if now.After(entry.expiresAt) {
			entry.count = 1
			entry.expiresAt = now.Add(window)
		} else {
			entry.count++
		}
	}

	r.rateLimits.Store(userID, entry)
	return entry.count <= limit, nil
}
