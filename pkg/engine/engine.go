// Package engine wires the four moderation cores — challenge gating,
// abuse detection, content filtering and scheduled dispatch — behind one
// event loop. It consumes platform events from the bus and turns
// decisions into platform commands; no platform failure is ever fatal.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chatwarden/chatwarden/pkg/abuse"
	"github.com/chatwarden/chatwarden/pkg/bus"
	"github.com/chatwarden/chatwarden/pkg/challenge"
	"github.com/chatwarden/chatwarden/pkg/filter"
	"github.com/chatwarden/chatwarden/pkg/logger"
	"github.com/chatwarden/chatwarden/pkg/platform"
	"github.com/chatwarden/chatwarden/pkg/store"
)

// WelcomeTTL is how long a welcome message stays before cleanup.
const WelcomeTTL = 30 * time.Second

// CallbackPrefix prefixes challenge-answer callback data. Full format:
// "captcha:<token>:<option>".
const CallbackPrefix = "captcha:"

type messageKey struct {
	chatID    int64
	messageID int
}

// Engine is the moderation orchestrator.
type Engine struct {
	store      *store.Store
	challenges *challenge.Engine
	detector   *abuse.Detector
	pipeline   *filter.Pipeline
	platform   platform.Platform
	auditor    *platform.Auditor
	nowFn      func() time.Time

	// Owned delayed-cleanup tasks for welcome messages, keyed by the
	// message they remove, so Stop cancels them deterministically.
	mu       sync.Mutex
	cleanups map[messageKey]*time.Timer
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.nowFn = now }
}

// New builds the orchestrator and installs the challenge expiry handler.
func New(st *store.Store, ch *challenge.Engine, det *abuse.Detector, pipe *filter.Pipeline, pf platform.Platform, aud *platform.Auditor, opts ...Option) *Engine {
	e := &Engine{
		store:      st,
		challenges: ch,
		detector:   det,
		pipeline:   pipe,
		platform:   pf,
		auditor:    aud,
		nowFn:      time.Now,
		cleanups:   make(map[messageKey]*time.Timer),
	}
	for _, opt := range opts {
		opt(e)
	}
	ch.SetExpireHandler(e.onChallengeExpired)
	return e
}

// Run consumes events until the context is cancelled.
func (e *Engine) Run(ctx context.Context, eb *bus.EventBus) {
	logger.InfoC("engine", "Moderation engine started")
	for {
		evt, ok := eb.Consume(ctx)
		if !ok {
			logger.InfoC("engine", "Moderation engine stopped")
			return
		}

		switch evt.Kind {
		case bus.EventJoin:
			e.HandleJoin(ctx, evt)
		case bus.EventMessage:
			e.HandleMessage(ctx, evt)
		case bus.EventAnswer:
			e.HandleAnswer(ctx, evt)
		}
	}
}

// Stop cancels all owned background tasks.
func (e *Engine) Stop() {
	e.challenges.Stop()
	e.mu.Lock()
	defer e.mu.Unlock()
	for k, t := range e.cleanups {
		t.Stop()
		delete(e.cleanups, k)
	}
}

// HandleJoin runs the raid check and, when it passes, gates the arrival
// behind a challenge.
func (e *Engine) HandleJoin(ctx context.Context, evt bus.Event) {
	policy, err := e.store.ChatPolicy(ctx, evt.ChatID)
	if err != nil {
		logger.ErrorCF("engine", "Policy load failed on join", map[string]any{
			"chat_id": evt.ChatID, "error": err.Error(),
		})
		return
	}

	if policy.RaidEnabled {
		tripped, err := e.detector.RecordJoin(ctx, evt.ChatID, policy)
		if err != nil {
			logger.ErrorCF("engine", "Raid check failed", map[string]any{
				"chat_id": evt.ChatID, "error": err.Error(),
			})
		}
		if tripped {
			if err := e.platform.BanMember(ctx, evt.ChatID, evt.UserID); err != nil {
				logger.ErrorCF("engine", "Raid ban failed", map[string]any{
					"chat_id": evt.ChatID, "user_id": evt.UserID, "error": err.Error(),
				})
			}
			if err := e.store.BumpBanned(ctx, evt.ChatID); err != nil {
				logger.WarnCF("engine", "Failed to bump ban counter", map[string]any{
					"chat_id": evt.ChatID, "error": err.Error(),
				})
			}
			e.auditor.Log(ctx, platform.Entry{
				ChatID: evt.ChatID, UserID: evt.UserID,
				Action: "antiraid_ban", Detail: "mass join", At: e.nowFn(),
			})
			return
		}
	}

	if !policy.CaptchaEnabled {
		return
	}

	// Issue before restricting: once the restriction is on, only a live
	// challenge (whose timeout kicks) or a pass can ever lift it again.
	issued, err := e.challenges.Issue(ctx, evt.ChatID, evt.UserID)
	if err != nil {
		logger.ErrorCF("engine", "Challenge issue failed", map[string]any{
			"chat_id": evt.ChatID, "user_id": evt.UserID, "error": err.Error(),
		})
		return
	}

	if err := e.platform.RestrictSending(ctx, evt.ChatID, evt.UserID, time.Time{}); err != nil {
		logger.ErrorCF("engine", "Restrict on join failed", map[string]any{
			"chat_id": evt.ChatID, "user_id": evt.UserID, "error": err.Error(),
		})
	}

	text := fmt.Sprintf("👋 Hi, %s!\n\n🔐 To access the chat, pass the check:\n\n%s",
		evt.DisplayName, issued.Question)
	msgID, err := e.platform.SendChallenge(ctx, evt.ChatID, text, issued.Options,
		CallbackPrefix+issued.Token+":")
	if err != nil {
		logger.ErrorCF("engine", "Challenge send failed", map[string]any{
			"chat_id": evt.ChatID, "user_id": evt.UserID, "error": err.Error(),
		})
		return
	}
	if err := e.challenges.AttachMessage(ctx, evt.ChatID, evt.UserID, msgID); err != nil {
		logger.WarnCF("engine", "Challenge message attach failed", map[string]any{
			"chat_id": evt.ChatID, "user_id": evt.UserID, "error": err.Error(),
		})
	}
}

// HandleMessage runs the content-filter pipeline and executes its
// decision.
func (e *Engine) HandleMessage(ctx context.Context, evt bus.Event) {
	policy, err := e.store.ChatPolicy(ctx, evt.ChatID)
	if err != nil {
		logger.ErrorCF("engine", "Policy load failed on message", map[string]any{
			"chat_id": evt.ChatID, "error": err.Error(),
		})
		return
	}

	msg := &filter.Message{
		ChatID:       evt.ChatID,
		UserID:       evt.UserID,
		MessageID:    evt.MessageID,
		IsAdmin:      evt.IsAdmin || policy.IsBotAdmin(evt.UserID),
		Text:         evt.Text,
		Caption:      evt.Caption,
		HasVoice:     evt.HasVoice,
		HasVideoNote: evt.HasVideoNote,
		HasAnimation: evt.HasAnimation,
		IsForwarded:  evt.IsForwarded,
	}

	decision, err := e.pipeline.Evaluate(ctx, msg)
	if err != nil {
		logger.ErrorCF("engine", "Pipeline evaluation failed", map[string]any{
			"chat_id": evt.ChatID, "error": err.Error(),
		})
		return
	}

	switch decision.Action {
	case filter.ActionPass:
		return
	case filter.ActionDelete:
		e.execDelete(ctx, evt, policy, decision)
	case filter.ActionMute:
		e.execMute(ctx, evt, decision)
	}
}

func (e *Engine) execDelete(ctx context.Context, evt bus.Event, policy *store.ChatPolicy, d filter.Decision) {
	if err := e.platform.DeleteMessage(ctx, evt.ChatID, evt.MessageID); err != nil {
		// The message may already be gone or permissions revoked; the
		// decision still stands and counters are not rolled back.
		logger.WarnCF("engine", "Delete failed", map[string]any{
			"chat_id": evt.ChatID, "message_id": evt.MessageID, "error": err.Error(),
		})
	}
	if d.CountsDeleted {
		if err := e.store.BumpDeleted(ctx, evt.ChatID); err != nil {
			logger.WarnCF("engine", "Failed to bump delete counter", map[string]any{
				"chat_id": evt.ChatID, "error": err.Error(),
			})
		}
	}
	if d.Notify != "" {
		if _, err := e.platform.SendText(ctx, evt.ChatID, d.Notify); err != nil {
			logger.WarnCF("engine", "Notify failed", map[string]any{
				"chat_id": evt.ChatID, "error": err.Error(),
			})
		}
	}
	// The verification gate deletes silently: the identity is still
	// mid-challenge and an audit entry per message would be noise.
	if d.Rule != filter.RuleVerification {
		e.auditor.Log(ctx, platform.Entry{
			ChatID: evt.ChatID, UserID: evt.UserID,
			Action: string(d.Rule), Detail: d.Detail, At: e.nowFn(),
		})
	}
}

func (e *Engine) execMute(ctx context.Context, evt bus.Event, d filter.Decision) {
	until := e.nowFn().Add(d.MuteFor)
	if err := e.platform.RestrictSending(ctx, evt.ChatID, evt.UserID, until); err != nil {
		logger.ErrorCF("engine", "Mute failed", map[string]any{
			"chat_id": evt.ChatID, "user_id": evt.UserID, "error": err.Error(),
		})
	}
	if err := e.store.BumpMuted(ctx, evt.ChatID); err != nil {
		logger.WarnCF("engine", "Failed to bump mute counter", map[string]any{
			"chat_id": evt.ChatID, "error": err.Error(),
		})
	}
	notice := fmt.Sprintf("🔇 %s muted for flooding (%s)", evt.DisplayName, d.MuteFor)
	if _, err := e.platform.SendText(ctx, evt.ChatID, notice); err != nil {
		logger.WarnCF("engine", "Mute notice failed", map[string]any{
			"chat_id": evt.ChatID, "error": err.Error(),
		})
	}
	e.auditor.Log(ctx, platform.Entry{
		ChatID: evt.ChatID, UserID: evt.UserID,
		Action: string(d.Rule), Detail: d.Detail, At: e.nowFn(),
	})
}

// HandleAnswer judges a challenge-answer callback. Ownership is implicit:
// submissions are keyed by the responding identity, so another user's
// click resolves to no live challenge and is rejected.
func (e *Engine) HandleAnswer(ctx context.Context, evt bus.Event) {
	res, err := e.challenges.Submit(ctx, evt.ChatID, evt.UserID, evt.Token, evt.Answer)
	if err != nil {
		logger.ErrorCF("engine", "Challenge submit failed", map[string]any{
			"chat_id": evt.ChatID, "user_id": evt.UserID, "error": err.Error(),
		})
		return
	}

	switch res.Outcome {
	case challenge.OutcomeNotFound:
		e.answerCallback(ctx, evt.CallbackID, "This challenge is not yours or has expired", true)

	case challenge.OutcomeIncorrectRetry:
		e.answerCallback(ctx, evt.CallbackID,
			fmt.Sprintf("❌ Wrong! Attempts left: %d", res.Remaining), true)

	case challenge.OutcomeExhausted:
		e.deleteQuietly(ctx, evt.ChatID, res.MessageID)
		if err := e.platform.RemoveMember(ctx, evt.ChatID, evt.UserID); err != nil {
			logger.ErrorCF("engine", "Kick after exhausted attempts failed", map[string]any{
				"chat_id": evt.ChatID, "user_id": evt.UserID, "error": err.Error(),
			})
		}
		e.auditor.Log(ctx, platform.Entry{
			ChatID: evt.ChatID, UserID: evt.UserID,
			Action: "kick_captcha_exhausted", Detail: "3 wrong answers", At: e.nowFn(),
		})
		e.answerCallback(ctx, evt.CallbackID, "❌ Too many wrong attempts", true)

	case challenge.OutcomeCorrect:
		e.deleteQuietly(ctx, evt.ChatID, res.MessageID)
		if err := e.platform.AllowSending(ctx, evt.ChatID, evt.UserID); err != nil {
			logger.ErrorCF("engine", "Unrestrict after pass failed", map[string]any{
				"chat_id": evt.ChatID, "user_id": evt.UserID, "error": err.Error(),
			})
		}
		e.welcome(ctx, evt)
		e.auditor.Log(ctx, platform.Entry{
			ChatID: evt.ChatID, UserID: evt.UserID,
			Action: "captcha_passed", At: e.nowFn(),
		})
		e.answerCallback(ctx, evt.CallbackID, "✅ Verification passed!", false)
	}
}

// welcome runs the post-verification flow: rules link if configured,
// otherwise the welcome text with timed cleanup.
func (e *Engine) welcome(ctx context.Context, evt bus.Event) {
	policy, err := e.store.ChatPolicy(ctx, evt.ChatID)
	if err != nil {
		logger.ErrorCF("engine", "Policy load failed on welcome", map[string]any{
			"chat_id": evt.ChatID, "error": err.Error(),
		})
		return
	}

	if policy.RulesLink != "" {
		text := fmt.Sprintf("✅ Welcome to the chat, %s!\n\n📜 Please read the rules before chatting:\n%s",
			evt.DisplayName, policy.RulesLink)
		if _, err := e.platform.SendText(ctx, evt.ChatID, text); err != nil {
			logger.WarnCF("engine", "Rules message failed", map[string]any{
				"chat_id": evt.ChatID, "error": err.Error(),
			})
		}
		return
	}

	if !policy.WelcomeEnabled {
		return
	}
	text := fmt.Sprintf("✅ %s, welcome!\n\n%s", evt.DisplayName, policy.WelcomeText)
	msgID, err := e.platform.SendText(ctx, evt.ChatID, text)
	if err != nil {
		logger.WarnCF("engine", "Welcome message failed", map[string]any{
			"chat_id": evt.ChatID, "error": err.Error(),
		})
		return
	}
	e.scheduleCleanup(evt.ChatID, msgID, WelcomeTTL)
}

// onChallengeExpired is the challenge timeout path: clean up the
// challenge message and remove the identity. Timeout carries the same
// external consequence as exhausted attempts: removal, not a ban.
func (e *Engine) onChallengeExpired(chatID, userID int64, messageID int) {
	ctx := context.Background()
	e.deleteQuietly(ctx, chatID, messageID)
	if err := e.platform.RemoveMember(ctx, chatID, userID); err != nil {
		logger.ErrorCF("engine", "Kick after challenge timeout failed", map[string]any{
			"chat_id": chatID, "user_id": userID, "error": err.Error(),
		})
	}
	e.auditor.Log(ctx, platform.Entry{
		ChatID: chatID, UserID: userID,
		Action: "kick_captcha_timeout", At: e.nowFn(),
	})
}

// scheduleCleanup arms an owned timer that deletes a message after ttl.
func (e *Engine) scheduleCleanup(chatID int64, messageID int, ttl time.Duration) {
	key := messageKey{chatID, messageID}
	e.mu.Lock()
	defer e.mu.Unlock()
	if t, ok := e.cleanups[key]; ok {
		t.Stop()
	}
	e.cleanups[key] = time.AfterFunc(ttl, func() {
		e.mu.Lock()
		delete(e.cleanups, key)
		e.mu.Unlock()
		e.deleteQuietly(context.Background(), chatID, messageID)
	})
}

func (e *Engine) deleteQuietly(ctx context.Context, chatID int64, messageID int) {
	if messageID == 0 {
		return
	}
	if err := e.platform.DeleteMessage(ctx, chatID, messageID); err != nil {
		logger.DebugCF("engine", "Cleanup delete failed", map[string]any{
			"chat_id": chatID, "message_id": messageID, "error": err.Error(),
		})
	}
}

func (e *Engine) answerCallback(ctx context.Context, callbackID, text string, alert bool) {
	if callbackID == "" {
		return
	}
	if err := e.platform.AnswerCallback(ctx, callbackID, text, alert); err != nil {
		logger.DebugCF("engine", "Callback answer failed", map[string]any{
			"error": err.Error(),
		})
	}
}
