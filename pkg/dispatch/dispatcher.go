// Package dispatch publishes caller-authored scheduled content. A poll
// loop scans for due pending items and attempts each exactly once: a
// failed delivery is terminal and must be re-authored by its owner.
package dispatch

import (
	"context"
	"errors"
	"time"

	"github.com/adhocore/gronx"

	"github.com/chatwarden/chatwarden/pkg/logger"
	"github.com/chatwarden/chatwarden/pkg/platform"
	"github.com/chatwarden/chatwarden/pkg/store"
)

// DefaultInterval is the poll interval of the dispatch loop.
const DefaultInterval = 30 * time.Second

// ScheduleTimeLayout is the authoring time format: "25.12.2024 15:30".
const ScheduleTimeLayout = "02.01.2006 15:04"

var (
	// ErrBadTimeFormat reports a scheduled time that does not parse.
	ErrBadTimeFormat = errors.New("bad schedule time format, want DD.MM.YYYY HH:MM")
	// ErrPastTime reports a scheduled time not in the future.
	ErrPastTime = errors.New("schedule time must be in the future")
	// ErrBadPayload reports a draft without exactly one payload.
	ErrBadPayload = errors.New("scheduled item needs exactly one payload")
	// ErrBadCron reports an invalid recurrence expression.
	ErrBadCron = errors.New("invalid cron expression")
)

// Sender is the slice of the platform the dispatcher needs.
type Sender interface {
	SendText(ctx context.Context, chatID int64, text string) (int, error)
	SendMedia(ctx context.Context, chatID int64, media platform.Media) (int, error)
}

// Dispatcher runs the scheduled-content poll loop.
type Dispatcher struct {
	store    *store.Store
	sender   Sender
	interval time.Duration
	nowFn    func() time.Time
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithInterval overrides the poll interval.
func WithInterval(d time.Duration) Option {
	return func(dp *Dispatcher) { dp.interval = d }
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(dp *Dispatcher) { dp.nowFn = now }
}

// NewDispatcher builds a dispatcher over the shared store and a sender.
func NewDispatcher(st *store.Store, sender Sender, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		store:    st,
		sender:   sender,
		interval: DefaultInterval,
		nowFn:    time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// ParseScheduleTime parses an authored schedule time and validates it is
// in the future relative to now.
func ParseScheduleTime(s string, now time.Time) (time.Time, error) {
	t, err := time.ParseInLocation(ScheduleTimeLayout, s, now.Location())
	if err != nil {
		return time.Time{}, ErrBadTimeFormat
	}
	if !t.After(now) {
		return time.Time{}, ErrPastTime
	}
	return t, nil
}

// Draft is a scheduled item as authored, before validation.
type Draft struct {
	AuthorID int64
	Kind     string
	Text     string
	FileID   string
	Caption  string
	At       time.Time
	Cron     string
}

// Schedule validates a draft and persists it as a pending item. The
// target chat stays unbound; authoring is two-phase (content first,
// destination second) and unbound items are never dispatched.
func (d *Dispatcher) Schedule(ctx context.Context, draft Draft) (*store.ScheduledItem, error) {
	switch draft.Kind {
	case store.KindText:
		if draft.Text == "" || draft.FileID != "" {
			return nil, ErrBadPayload
		}
	case store.KindPhoto, store.KindVideo, store.KindDocument, store.KindAudio:
		if draft.FileID == "" || draft.Text != "" {
			return nil, ErrBadPayload
		}
	default:
		return nil, ErrBadPayload
	}
	if draft.Cron != "" && !gronx.New().IsValid(draft.Cron) {
		return nil, ErrBadCron
	}

	item, err := d.store.CreateScheduledItem(ctx, &store.ScheduledItem{
		AuthorID: draft.AuthorID,
		Kind:     draft.Kind,
		Text:     draft.Text,
		FileID:   draft.FileID,
		Caption:  draft.Caption,
		At:       draft.At,
		Cron:     draft.Cron,
	})
	if err != nil {
		return nil, err
	}
	logger.InfoCF("dispatch", "Scheduled item created", map[string]any{
		"id":        item.ID,
		"author_id": item.AuthorID,
		"at":        item.At.Format(time.RFC3339),
	})
	return item, nil
}

// Run polls until the context is cancelled.
func (d *Dispatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	logger.InfoCF("dispatch", "Dispatcher started", map[string]any{
		"interval": d.interval.String(),
	})
	for {
		select {
		case <-ctx.Done():
			logger.InfoC("dispatch", "Dispatcher stopped")
			return
		case <-ticker.C:
			if err := d.RunOnce(ctx); err != nil {
				logger.ErrorCF("dispatch", "Dispatch pass failed", map[string]any{
					"error": err.Error(),
				})
			}
		}
	}
}

// RunOnce performs a single dispatch pass: every pending item bound to a
// chat and due at or before now is attempted once.
func (d *Dispatcher) RunOnce(ctx context.Context) error {
	now := d.nowFn()
	due, err := d.store.DuePending(ctx, now)
	if err != nil {
		return err
	}

	for i := range due {
		d.deliver(ctx, &due[i], now)
	}
	return nil
}

// deliver attempts one item. Success moves it to sent (or re-arms a
// recurring item); any failure moves it to error, terminally.
func (d *Dispatcher) deliver(ctx context.Context, item *store.ScheduledItem, now time.Time) {
	var err error
	if item.Kind == store.KindText {
		_, err = d.sender.SendText(ctx, *item.ChatID, item.Text)
	} else {
		_, err = d.sender.SendMedia(ctx, *item.ChatID, platform.Media{
			Kind:    item.Kind,
			FileID:  item.FileID,
			Caption: item.Caption,
		})
	}

	if err != nil {
		logger.ErrorCF("dispatch", "Delivery failed", map[string]any{
			"id":      item.ID,
			"chat_id": *item.ChatID,
			"error":   err.Error(),
		})
		if serr := d.store.MarkScheduledStatus(ctx, item.ID, store.StatusError); serr != nil {
			logger.ErrorCF("dispatch", "Failed to mark item error", map[string]any{
				"id": item.ID, "error": serr.Error(),
			})
		}
		return
	}

	if item.Cron != "" {
		next, cerr := gronx.NextTickAfter(item.Cron, now, false)
		if cerr == nil {
			if rerr := d.store.RearmScheduledItem(ctx, item.ID, next); rerr == nil {
				logger.InfoCF("dispatch", "Recurring item re-armed", map[string]any{
					"id":   item.ID,
					"next": next.Format(time.RFC3339),
				})
				return
			}
		} else {
			logger.WarnCF("dispatch", "Bad cron on recurring item", map[string]any{
				"id": item.ID, "cron": item.Cron,
			})
		}
	}

	if serr := d.store.MarkScheduledStatus(ctx, item.ID, store.StatusSent); serr != nil {
		logger.ErrorCF("dispatch", "Failed to mark item sent", map[string]any{
			"id": item.ID, "error": serr.Error(),
		})
		return
	}
	logger.InfoCF("dispatch", "Scheduled item published", map[string]any{
		"id": item.ID, "chat_id": *item.ChatID,
	})
}
