package store

import (
	"context"
	"fmt"
	"time"
)

// CreateScheduledItem persists a newly authored item in pending status
// and returns it with its assigned id. Ids are monotonically assigned by
// the database.
func (s *Store) CreateScheduledItem(ctx context.Context, item *ScheduledItem) (*ScheduledItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item.Status = StatusPending
	if err := s.db.WithContext(ctx).Create(item).Error; err != nil {
		return nil, err
	}
	return item, nil
}

// BindScheduledChat sets the target chat of a pending item. Owner-checked:
// only the author may bind.
func (s *Store) BindScheduledChat(ctx context.Context, id, authorID, chatID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res := s.db.WithContext(ctx).Model(&ScheduledItem{}).
		Where("id = ? AND author_id = ? AND status = ?", id, authorID, StatusPending).
		Update("chat_id", chatID)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// CancelScheduledItem moves a pending item to cancelled. Owner-checked.
func (s *Store) CancelScheduledItem(ctx context.Context, id, authorID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res := s.db.WithContext(ctx).Model(&ScheduledItem{}).
		Where("id = ? AND author_id = ? AND status = ?", id, authorID, StatusPending).
		Update("status", StatusCancelled)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListScheduledByAuthor returns an author's pending items.
func (s *Store) ListScheduledByAuthor(ctx context.Context, authorID int64) ([]ScheduledItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var items []ScheduledItem
	err := s.db.WithContext(ctx).
		Where("author_id = ? AND status = ?", authorID, StatusPending).
		Order("id").
		Find(&items).Error
	return items, err
}

// DuePending returns pending items that are bound to a chat and due at or
// before now. Unbound items are skipped indefinitely until the author
// binds a destination.
func (s *Store) DuePending(ctx context.Context, now time.Time) ([]ScheduledItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var items []ScheduledItem
	err := s.db.WithContext(ctx).
		Where("status = ? AND chat_id IS NOT NULL AND at <= ?", StatusPending, now).
		Order("id").
		Find(&items).Error
	return items, err
}

// MarkScheduledStatus moves a pending item to a terminal status. Items
// already in a terminal status are never revisited; attempting to move
// one is reported as ErrNotFound.
func (s *Store) MarkScheduledStatus(ctx context.Context, id int64, status string) error {
	if status != StatusSent && status != StatusError && status != StatusCancelled {
		return fmt.Errorf("invalid terminal status %q", status)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	res := s.db.WithContext(ctx).Model(&ScheduledItem{}).
		Where("id = ? AND status = ?", id, StatusPending).
		Update("status", status)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// RearmScheduledItem moves a recurring item's due instant forward while
// keeping it pending. Only valid for items still in pending status.
func (s *Store) RearmScheduledItem(ctx context.Context, id int64, nextAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res := s.db.WithContext(ctx).Model(&ScheduledItem{}).
		Where("id = ? AND status = ?", id, StatusPending).
		Update("at", nextAt)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
