// Package store is the durable state layer shared by the moderation
// engine: chat policies, live challenges, verified identities, rate
// windows and scheduled items, all in one SQLite database.
//
// Every exported operation is a single atomic unit: one mutex serializes
// read-modify-write sequences so callers never have to coordinate.
package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/chatwarden/chatwarden/pkg/logger"
)

var (
	// ErrNotFound marks operations on state that no longer exists.
	// Callers treat it as a no-op outcome, never as fatal.
	ErrNotFound = errors.New("not found")

	// ErrCorrupt marks state that exists but cannot be read. Distinct
	// from ErrNotFound: absent state default-constructs, corrupt state
	// is reported.
	ErrCorrupt = errors.New("corrupt state")
)

type Store struct {
	mu sync.Mutex
	db *gorm.DB
}

// Open opens (or creates) the SQLite database at path and migrates the
// schema.
func Open(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("opening database %s: %w", path, err)
	}

	err = db.AutoMigrate(
		&ChatPolicy{},
		&Challenge{},
		&VerifiedUser{},
		&RateEvent{},
		&ScheduledItem{},
	)
	if err != nil {
		return nil, fmt.Errorf("migrating schema: %w", err)
	}

	logger.InfoCF("store", "Database ready", map[string]any{"path": path})
	return &Store{db: db}, nil
}

// Close releases the underlying database handle. Operations after Close
// fail.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// readErr maps gorm read failures onto the store taxonomy.
func readErr(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return fmt.Errorf("%w: %v", ErrCorrupt, err)
}

// ChatPolicy returns the policy for a chat, creating it with defaults on
// first reference.
func (s *Store) ChatPolicy(ctx context.Context, chatID int64) (*ChatPolicy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.chatPolicyLocked(ctx, chatID)
}

func (s *Store) chatPolicyLocked(ctx context.Context, chatID int64) (*ChatPolicy, error) {
	var p ChatPolicy
	err := s.db.WithContext(ctx).First(&p, "chat_id = ?", chatID).Error
	if err == nil {
		return &p, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, readErr(err)
	}

	fresh := defaultPolicy(chatID)
	if err := s.db.WithContext(ctx).Create(fresh).Error; err != nil {
		return nil, fmt.Errorf("creating default policy for chat %d: %w", chatID, err)
	}
	logger.DebugCF("store", "Created default chat policy", map[string]any{"chat_id": chatID})
	return fresh, nil
}

// UpdateChatPolicy persists a full policy record.
func (s *Store) UpdateChatPolicy(ctx context.Context, p *ChatPolicy) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.WithContext(ctx).Save(p).Error
}

// Counter bumps. Lost increments on delivery failure are acceptable;
// rollbacks are not performed (the mutation stands even when the platform
// call that followed it failed).

func (s *Store) BumpDeleted(ctx context.Context, chatID int64) error {
	return s.bump(ctx, chatID, "messages_deleted")
}

func (s *Store) BumpBanned(ctx context.Context, chatID int64) error {
	return s.bump(ctx, chatID, "users_banned")
}

func (s *Store) BumpMuted(ctx context.Context, chatID int64) error {
	return s.bump(ctx, chatID, "users_muted")
}

func (s *Store) BumpChallengePassed(ctx context.Context, chatID int64) error {
	return s.bump(ctx, chatID, "challenges_passed")
}

func (s *Store) bump(ctx context.Context, chatID int64, column string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.chatPolicyLocked(ctx, chatID); err != nil {
		return err
	}
	return s.db.WithContext(ctx).Model(&ChatPolicy{}).
		Where("chat_id = ?", chatID).
		UpdateColumn(column, gorm.Expr(column+" + 1")).Error
}

// PutChallenge stores a challenge, replacing any outstanding one for the
// same chat+identity. Returns whether an existing challenge was
// superseded (its attempt count is discarded).
func (s *Store) PutChallenge(ctx context.Context, c *Challenge) (superseded bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res := s.db.WithContext(ctx).
		Where("chat_id = ? AND user_id = ?", c.ChatID, c.UserID).
		Delete(&Challenge{})
	if res.Error != nil {
		return false, res.Error
	}
	if err := s.db.WithContext(ctx).Create(c).Error; err != nil {
		return false, err
	}
	return res.RowsAffected > 0, nil
}

// GetChallenge fetches the live challenge for a chat+identity, or
// ErrNotFound.
func (s *Store) GetChallenge(ctx context.Context, chatID, userID int64) (*Challenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var c Challenge
	err := s.db.WithContext(ctx).
		First(&c, "chat_id = ? AND user_id = ?", chatID, userID).Error
	if err != nil {
		return nil, readErr(err)
	}
	return &c, nil
}

// MutateChallenge runs fn against the live challenge for chat+identity as
// one atomic unit. When fn returns true the challenge is deleted,
// otherwise the (possibly modified) record is saved back. Returns the
// record as fn left it, whether it was deleted, or ErrNotFound when no
// challenge exists. This is the single read-modify-write primitive for
// attempt counting and resolution, so a submission and a timeout racing
// on the same challenge cannot double-resolve it.
func (s *Store) MutateChallenge(ctx context.Context, chatID, userID int64, fn func(c *Challenge) (remove bool)) (*Challenge, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var c Challenge
	err := s.db.WithContext(ctx).
		First(&c, "chat_id = ? AND user_id = ?", chatID, userID).Error
	if err != nil {
		return nil, false, readErr(err)
	}

	if fn(&c) {
		err := s.db.WithContext(ctx).
			Where("chat_id = ? AND user_id = ?", chatID, userID).
			Delete(&Challenge{}).Error
		return &c, true, err
	}
	return &c, false, s.db.WithContext(ctx).Save(&c).Error
}

// AddVerified marks an identity as having passed a challenge in a chat.
// Idempotent; entries are never removed by the engine.
func (s *Store) AddVerified(ctx context.Context, chatID, userID int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var existing VerifiedUser
	err := s.db.WithContext(ctx).
		First(&existing, "chat_id = ? AND user_id = ?", chatID, userID).Error
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return readErr(err)
	}
	return s.db.WithContext(ctx).Create(&VerifiedUser{
		ChatID:     chatID,
		UserID:     userID,
		VerifiedAt: at,
	}).Error
}

// IsVerified reports whether an identity has ever passed a challenge in
// this chat.
func (s *Store) IsVerified(ctx context.Context, chatID, userID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	err := s.db.WithContext(ctx).Model(&VerifiedUser{}).
		Where("chat_id = ? AND user_id = ?", chatID, userID).
		Count(&n).Error
	return n > 0, err
}
