// Package legacy reads the flat JSON state file of the previous bot
// generation and imports it into the SQLite store. The old format was
// one nested dictionary persisted wholesale; the import maps it onto
// typed records.
package legacy

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/chatwarden/chatwarden/pkg/logger"
	"github.com/chatwarden/chatwarden/pkg/store"
)

// Snapshot is the parsed legacy state file.
type Snapshot struct {
	Chats             map[string]ChatSettings `json:"chats"`
	VerifiedUsers     map[string][]int64      `json:"verified_users"`
	ScheduledMessages []ScheduledMessage      `json:"scheduled_messages"`
}

// ChatSettings mirrors the legacy per-chat settings dictionary.
type ChatSettings struct {
	CaptchaEnabled   bool     `json:"captcha_enabled"`
	FilterEnabled    bool     `json:"filter_enabled"`
	AntifloodEnabled bool     `json:"antiflood_enabled"`
	WelcomeEnabled   bool     `json:"welcome_enabled"`
	WelcomeText      string   `json:"welcome_text"`
	RulesLink        string   `json:"rules_link"`
	StopWords        []string `json:"stopwords"`
	NightMode        struct {
		Enabled bool   `json:"enabled"`
		Start   string `json:"start"`
		End     string `json:"end"`
	} `json:"night_mode"`
	Antiflood struct {
		Messages    int `json:"messages"`
		Seconds     int `json:"seconds"`
		MuteMinutes int `json:"mute_minutes"`
	} `json:"antiflood"`
	Antiraid struct {
		Enabled        bool `json:"enabled"`
		JoinsPerMinute int  `json:"joins_per_minute"`
	} `json:"antiraid"`
	VoiceMessagesAllowed bool    `json:"voice_messages_allowed"`
	Admins               []int64 `json:"admins"`
	Stats                struct {
		MessagesDeleted int64 `json:"messages_deleted"`
		UsersBanned     int64 `json:"users_banned"`
		UsersMuted      int64 `json:"users_muted"`
		CaptchaPassed   int64 `json:"captcha_passed"`
	} `json:"stats"`
}

// ScheduledMessage mirrors one legacy scheduled post.
type ScheduledMessage struct {
	ID            int64  `json:"id"`
	UserID        int64  `json:"user_id"`
	ScheduledTime string `json:"scheduled_time"`
	Text          string `json:"text"`
	Photo         string `json:"photo"`
	Video         string `json:"video"`
	Document      string `json:"document"`
	Audio         string `json:"audio"`
	Caption       string `json:"caption"`
	ChatID        *int64 `json:"chat_id"`
	Status        string `json:"status"`
}

// ParseFile reads and parses a legacy state file.
func ParseFile(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading legacy state %s: %w", path, err)
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrCorrupt, err)
	}
	return &snap, nil
}

// Summary counts what an import touched.
type Summary struct {
	Chats     int
	Verified  int
	Scheduled int
	Skipped   int
}

// Import loads a snapshot into the store. Live challenges and transient
// rate windows are not carried over; non-pending scheduled posts are
// skipped (terminal items are never revisited).
func Import(st *store.Store, snap *Snapshot) (*Summary, error) {
	ctx := context.Background()
	sum := &Summary{}

	for chatStr, cs := range snap.Chats {
		chatID, err := strconv.ParseInt(chatStr, 10, 64)
		if err != nil {
			logger.WarnCF("legacy", "Skipping unparsable chat id", map[string]any{"chat_id": chatStr})
			sum.Skipped++
			continue
		}

		policy, err := st.ChatPolicy(ctx, chatID)
		if err != nil {
			return sum, err
		}
		policy.CaptchaEnabled = cs.CaptchaEnabled
		policy.FilterEnabled = cs.FilterEnabled
		policy.FloodEnabled = cs.AntifloodEnabled
		policy.RaidEnabled = cs.Antiraid.Enabled
		policy.WelcomeEnabled = cs.WelcomeEnabled
		if cs.WelcomeText != "" {
			policy.WelcomeText = cs.WelcomeText
		}
		policy.RulesLink = cs.RulesLink
		policy.NightModeEnabled = cs.NightMode.Enabled
		if cs.NightMode.Start != "" {
			policy.NightStart = cs.NightMode.Start
		}
		if cs.NightMode.End != "" {
			policy.NightEnd = cs.NightMode.End
		}
		if cs.Antiflood.Messages > 0 {
			policy.FloodMessages = cs.Antiflood.Messages
		}
		if cs.Antiflood.Seconds > 0 {
			policy.FloodSeconds = cs.Antiflood.Seconds
		}
		if cs.Antiflood.MuteMinutes > 0 {
			policy.MuteMinutes = cs.Antiflood.MuteMinutes
		}
		if cs.Antiraid.JoinsPerMinute > 0 {
			policy.JoinsPerMinute = cs.Antiraid.JoinsPerMinute
		}
		policy.VoiceAllowed = cs.VoiceMessagesAllowed
		if cs.StopWords != nil {
			policy.StopWords = cs.StopWords
		}
		if cs.Admins != nil {
			policy.BotAdmins = cs.Admins
		}
		policy.MessagesDeleted = cs.Stats.MessagesDeleted
		policy.UsersBanned = cs.Stats.UsersBanned
		policy.UsersMuted = cs.Stats.UsersMuted
		policy.ChallengesPassed = cs.Stats.CaptchaPassed

		if err := st.UpdateChatPolicy(ctx, policy); err != nil {
			return sum, err
		}
		sum.Chats++
	}

	now := time.Now()
	for chatStr, users := range snap.VerifiedUsers {
		chatID, err := strconv.ParseInt(chatStr, 10, 64)
		if err != nil {
			sum.Skipped++
			continue
		}
		for _, userID := range users {
			if err := st.AddVerified(ctx, chatID, userID, now); err != nil {
				return sum, err
			}
			sum.Verified++
		}
	}

	for _, sm := range snap.ScheduledMessages {
		if sm.Status != store.StatusPending {
			sum.Skipped++
			continue
		}
		at, err := time.Parse(time.RFC3339, sm.ScheduledTime)
		if err != nil {
			// The legacy writer used naive local timestamps.
			at, err = time.ParseInLocation("2006-01-02T15:04:05", sm.ScheduledTime, time.Local)
			if err != nil {
				logger.WarnCF("legacy", "Skipping scheduled post with bad time", map[string]any{
					"id": sm.ID, "scheduled_time": sm.ScheduledTime,
				})
				sum.Skipped++
				continue
			}
		}

		item := &store.ScheduledItem{
			AuthorID: sm.UserID,
			ChatID:   sm.ChatID,
			At:       at,
			Caption:  sm.Caption,
		}
		switch {
		case sm.Photo != "":
			item.Kind, item.FileID = store.KindPhoto, sm.Photo
		case sm.Video != "":
			item.Kind, item.FileID = store.KindVideo, sm.Video
		case sm.Document != "":
			item.Kind, item.FileID = store.KindDocument, sm.Document
		case sm.Audio != "":
			item.Kind, item.FileID = store.KindAudio, sm.Audio
		case sm.Text != "":
			item.Kind, item.Text = store.KindText, sm.Text
		default:
			sum.Skipped++
			continue
		}

		if _, err := st.CreateScheduledItem(ctx, item); err != nil {
			return sum, err
		}
		sum.Scheduled++
	}

	logger.InfoCF("legacy", "Import finished", map[string]any{
		"chats":     sum.Chats,
		"verified":  sum.Verified,
		"scheduled": sum.Scheduled,
		"skipped":   sum.Skipped,
	})
	return sum, nil
}
