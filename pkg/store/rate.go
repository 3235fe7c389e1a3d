package store

import (
	"context"
	"fmt"
	"time"
)

// FloodKey builds the window key for a chat+identity flood counter.
func FloodKey(chatID, userID int64) string {
	return fmt.Sprintf("%d/%d", chatID, userID)
}

// RaidKey builds the window key for a chat join counter.
func RaidKey(chatID int64) string {
	return fmt.Sprintf("%d", chatID)
}

// RecordRateEvent appends an event to a sliding window and evaluates the
// threshold. The trim, the append and the comparison happen as one atomic
// unit: stale events never count, and concurrent recorders cannot
// interleave between trim and compare.
//
// When the count crosses the threshold the whole window is cleared, so
// the trip fires exactly once per burst and a restricted identity's
// backlog does not immediately re-trigger.
func (s *Store) RecordRateEvent(ctx context.Context, scope, key string, at time.Time, window time.Duration, threshold int) (count int, tripped bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	db := s.db.WithContext(ctx)
	cutoff := at.Add(-window)

	if err := db.Where("scope = ? AND key = ? AND at <= ?", scope, key, cutoff).
		Delete(&RateEvent{}).Error; err != nil {
		return 0, false, err
	}
	if err := db.Create(&RateEvent{Scope: scope, Key: key, At: at}).Error; err != nil {
		return 0, false, err
	}

	var n int64
	if err := db.Model(&RateEvent{}).
		Where("scope = ? AND key = ?", scope, key).
		Count(&n).Error; err != nil {
		return 0, false, err
	}

	if int(n) > threshold {
		if err := db.Where("scope = ? AND key = ?", scope, key).
			Delete(&RateEvent{}).Error; err != nil {
			return int(n), true, err
		}
		return int(n), true, nil
	}
	return int(n), false, nil
}

// RateWindowSize returns the current number of retained events for a
// window key, trimming first. Used by stats surfaces and tests.
func (s *Store) RateWindowSize(ctx context.Context, scope, key string, at time.Time, window time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	db := s.db.WithContext(ctx)
	if err := db.Where("scope = ? AND key = ? AND at <= ?", scope, key, at.Add(-window)).
		Delete(&RateEvent{}).Error; err != nil {
		return 0, err
	}
	var n int64
	err := db.Model(&RateEvent{}).
		Where("scope = ? AND key = ?", scope, key).
		Count(&n).Error
	return int(n), err
}
