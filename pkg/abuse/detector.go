// Package abuse detects abusive traffic patterns with two sliding-window
// counters: per-chat/user message rate (flood) and per-chat join rate
// (raid). A sliding window, unlike a fixed bucket, cannot be gamed by two
// bursts straddling a bucket edge.
package abuse

import (
	"context"
	"time"

	"github.com/chatwarden/chatwarden/pkg/logger"
	"github.com/chatwarden/chatwarden/pkg/store"
)

// RaidWindow is the fixed window for the join-rate counter.
const RaidWindow = time.Minute

// Detector evaluates flood and raid thresholds against the shared store.
// Window parameters come from the chat policy on every call, so policy
// updates apply immediately.
type Detector struct {
	store *store.Store
	nowFn func() time.Time
}

// Option configures a Detector.
type Option func(*Detector)

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(d *Detector) { d.nowFn = now }
}

// NewDetector builds a detector on top of the shared store.
func NewDetector(st *store.Store, opts ...Option) *Detector {
	d := &Detector{store: st, nowFn: time.Now}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// RecordMessage appends a message event to the chat+identity flood window
// and reports whether the policy threshold was crossed. On a trip the
// window is reset to empty, so a muted identity's burst does not
// immediately re-trigger; the caller imposes a timed restriction of the
// policy's mute-minutes.
func (d *Detector) RecordMessage(ctx context.Context, chatID, userID int64, policy *store.ChatPolicy) (bool, error) {
	window := time.Duration(policy.FloodSeconds) * time.Second
	count, tripped, err := d.store.RecordRateEvent(ctx,
		store.ScopeFlood, store.FloodKey(chatID, userID),
		d.nowFn(), window, policy.FloodMessages)
	if err != nil {
		return false, err
	}
	if tripped {
		logger.InfoCF("abuse", "Flood threshold crossed", map[string]any{
			"chat_id": chatID,
			"user_id": userID,
			"count":   count,
			"limit":   policy.FloodMessages,
		})
	}
	return tripped, nil
}

// RecordJoin appends a join event to the chat's raid window (fixed 60
// seconds) and reports whether the joins-per-minute threshold was
// crossed. On a trip the caller removes the identity whose join tripped
// the counter; earlier joiners are not retroactively removed.
func (d *Detector) RecordJoin(ctx context.Context, chatID int64, policy *store.ChatPolicy) (bool, error) {
	count, tripped, err := d.store.RecordRateEvent(ctx,
		store.ScopeRaid, store.RaidKey(chatID),
		d.nowFn(), RaidWindow, policy.JoinsPerMinute)
	if err != nil {
		return false, err
	}
	if tripped {
		logger.InfoCF("abuse", "Raid threshold crossed", map[string]any{
			"chat_id": chatID,
			"count":   count,
			"limit":   policy.JoinsPerMinute,
		})
	}
	return tripped, nil
}
