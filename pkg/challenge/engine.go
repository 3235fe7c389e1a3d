// Package challenge gates newly joined identities behind a timed
// verification puzzle and tracks their attempts until one of three
// mutually exclusive terminal transitions: correct answer, exhausted
// attempts, or timeout.
package challenge

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/chatwarden/chatwarden/pkg/logger"
	"github.com/chatwarden/chatwarden/pkg/store"
)

// CaptchaTimeout is how long an identity has to solve its challenge.
const CaptchaTimeout = 120 * time.Second

// MaxAttempts is the number of wrong answers tolerated before the
// challenge resolves as exhausted.
const MaxAttempts = 3

// Outcome is the result of an answer submission.
type Outcome int

const (
	// OutcomeCorrect: challenge solved; identity is now verified.
	OutcomeCorrect Outcome = iota
	// OutcomeIncorrectRetry: wrong answer, attempts remain.
	OutcomeIncorrectRetry
	// OutcomeExhausted: third wrong answer; caller removes the identity.
	OutcomeExhausted
	// OutcomeNotFound: no live challenge (already resolved, timed out,
	// or the submission carried a stale token). A no-op for the caller.
	OutcomeNotFound
)

// SubmitResult carries the outcome of a submission plus what the caller
// needs to act on it.
type SubmitResult struct {
	Outcome   Outcome
	Remaining int // attempts left, set for OutcomeIncorrectRetry
	MessageID int // the challenge message, for cleanup on resolution
}

// Issued is a freshly issued challenge as handed to the caller.
type Issued struct {
	Puzzle
	Token      string
	Superseded bool // an outstanding challenge was replaced
}

// ExpireFunc is invoked when a challenge times out while still live. The
// caller removes the identity from the chat and cleans up the challenge
// message.
type ExpireFunc func(chatID, userID int64, messageID int)

type timerKey struct {
	chatID, userID int64
}

// Engine issues challenges, judges submissions and owns one cancellable
// timeout task per live challenge. Resolving a challenge cancels its
// timer deterministically; a timer that fires anyway no-ops when its
// target is already gone.
type Engine struct {
	store    *store.Store
	gen      *Generator
	timeout  time.Duration
	onExpire ExpireFunc
	nowFn    func() time.Time

	mu     sync.Mutex
	timers map[timerKey]*time.Timer
}

// Option configures an Engine.
type Option func(*Engine)

// WithTimeout overrides the challenge timeout.
func WithTimeout(d time.Duration) Option {
	return func(e *Engine) { e.timeout = d }
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.nowFn = now }
}

// NewEngine builds a challenge engine on top of the shared store.
func NewEngine(st *store.Store, opts ...Option) *Engine {
	e := &Engine{
		store:   st,
		gen:     NewGenerator(),
		timeout: CaptchaTimeout,
		nowFn:   time.Now,
		timers:  make(map[timerKey]*time.Timer),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// SetExpireHandler installs the timeout callback. Must be called before
// the first Issue.
func (e *Engine) SetExpireHandler(f ExpireFunc) {
	e.onExpire = f
}

// Issue creates a challenge for chat+identity and arms its timeout task.
// An outstanding challenge for the same pair is superseded: its record is
// replaced (attempt count resets) and its timer is rearmed, so at most
// one challenge is ever live per pair.
func (e *Engine) Issue(ctx context.Context, chatID, userID int64) (*Issued, error) {
	puzzle := e.gen.Generate()
	token := uuid.New().String()

	superseded, err := e.store.PutChallenge(ctx, &store.Challenge{
		ChatID:   chatID,
		UserID:   userID,
		Token:    token,
		Answer:   puzzle.Answer,
		IssuedAt: e.nowFn(),
	})
	if err != nil {
		return nil, err
	}

	e.armTimer(chatID, userID, token)

	if superseded {
		logger.InfoCF("challenge", "Superseded outstanding challenge", map[string]any{
			"chat_id": chatID,
			"user_id": userID,
		})
	}
	return &Issued{Puzzle: puzzle, Token: token, Superseded: superseded}, nil
}

// AttachMessage records the platform message carrying the challenge so it
// can be deleted on resolution or timeout. A no-op if the challenge
// already resolved.
func (e *Engine) AttachMessage(ctx context.Context, chatID, userID int64, messageID int) error {
	_, _, err := e.store.MutateChallenge(ctx, chatID, userID, func(c *store.Challenge) bool {
		c.MessageID = messageID
		return false
	})
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	return err
}

// Submit judges an answer. The token must match the live challenge; a
// stale token (from a superseded challenge's keyboard) resolves to
// OutcomeNotFound. The attempt-increment-then-compare sequence runs as
// one atomic store operation.
func (e *Engine) Submit(ctx context.Context, chatID, userID int64, token, answer string) (SubmitResult, error) {
	result := SubmitResult{Outcome: OutcomeNotFound}

	_, _, err := e.store.MutateChallenge(ctx, chatID, userID, func(c *store.Challenge) bool {
		if token != "" && c.Token != token {
			return false
		}
		if answer == c.Answer {
			result = SubmitResult{Outcome: OutcomeCorrect, MessageID: c.MessageID}
			return true
		}
		c.Attempts++
		if c.Attempts >= MaxAttempts {
			result = SubmitResult{Outcome: OutcomeExhausted, MessageID: c.MessageID}
			return true
		}
		result = SubmitResult{
			Outcome:   OutcomeIncorrectRetry,
			Remaining: MaxAttempts - c.Attempts,
			MessageID: c.MessageID,
		}
		return false
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return SubmitResult{Outcome: OutcomeNotFound}, nil
		}
		return SubmitResult{Outcome: OutcomeNotFound}, err
	}

	switch result.Outcome {
	case OutcomeCorrect:
		e.cancelTimer(chatID, userID)
		if err := e.store.AddVerified(ctx, chatID, userID, e.nowFn()); err != nil {
			return result, err
		}
		if err := e.store.BumpChallengePassed(ctx, chatID); err != nil {
			logger.WarnCF("challenge", "Failed to bump pass counter", map[string]any{
				"chat_id": chatID, "error": err.Error(),
			})
		}
		logger.InfoCF("challenge", "Challenge passed", map[string]any{
			"chat_id": chatID, "user_id": userID,
		})
	case OutcomeExhausted:
		e.cancelTimer(chatID, userID)
		logger.InfoCF("challenge", "Challenge attempts exhausted", map[string]any{
			"chat_id": chatID, "user_id": userID,
		})
	}
	return result, nil
}

// Expire is the timeout path for the challenge identified by token. The
// token check makes a stale timer harmless: if a superseding challenge
// is live (different token) or the challenge already resolved, this is a
// no-op and the superseding challenge's own timer stays armed.
func (e *Engine) Expire(chatID, userID int64, token string) {
	c, removed, err := e.store.MutateChallenge(context.Background(), chatID, userID,
		func(c *store.Challenge) bool { return c.Token == token })
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			logger.ErrorCF("challenge", "Expire failed", map[string]any{
				"chat_id": chatID, "user_id": userID, "error": err.Error(),
			})
		}
		return
	}
	if !removed {
		return
	}
	e.cancelTimer(chatID, userID)

	logger.InfoCF("challenge", "Challenge timed out", map[string]any{
		"chat_id": chatID, "user_id": userID,
	})
	if e.onExpire != nil {
		e.onExpire(chatID, userID, c.MessageID)
	}
}

// Stop cancels all outstanding timeout tasks.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for k, t := range e.timers {
		t.Stop()
		delete(e.timers, k)
	}
}

func (e *Engine) armTimer(chatID, userID int64, token string) {
	key := timerKey{chatID, userID}
	e.mu.Lock()
	defer e.mu.Unlock()
	if t, ok := e.timers[key]; ok {
		t.Stop()
	}
	e.timers[key] = time.AfterFunc(e.timeout, func() {
		e.Expire(chatID, userID, token)
	})
}

func (e *Engine) cancelTimer(chatID, userID int64) {
	key := timerKey{chatID, userID}
	e.mu.Lock()
	defer e.mu.Unlock()
	if t, ok := e.timers[key]; ok {
		t.Stop()
		delete(e.timers, key)
	}
}
