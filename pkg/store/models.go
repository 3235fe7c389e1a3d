package store

import "time"

// Scheduled item statuses. Transitions are one-way: pending is the only
// non-terminal status.
const (
	StatusPending   = "pending"
	StatusSent      = "sent"
	StatusError     = "error"
	StatusCancelled = "cancelled"
)

// Scheduled item payload kinds. Exactly one payload is carried per item.
const (
	KindText     = "text"
	KindPhoto    = "photo"
	KindVideo    = "video"
	KindDocument = "document"
	KindAudio    = "audio"
)

// Rate window scopes.
const (
	ScopeFlood = "flood"
	ScopeRaid  = "raid"
)

// ChatPolicy holds the full moderation configuration and running counters
// for one chat. Created lazily with defaults on first reference, mutated
// only through explicit updates, never deleted.
type ChatPolicy struct {
	ChatID int64 `gorm:"primaryKey;autoIncrement:false"`

	CaptchaEnabled bool
	FilterEnabled  bool
	FloodEnabled   bool
	RaidEnabled    bool
	WelcomeEnabled bool

	WelcomeText string
	RulesLink   string

	NightModeEnabled bool
	NightStart       string // "HH:MM"
	NightEnd         string // "HH:MM"

	FloodMessages int
	FloodSeconds  int
	MuteMinutes   int

	JoinsPerMinute int

	VoiceAllowed bool

	StopWords []string `gorm:"serializer:json"`
	BotAdmins []int64  `gorm:"serializer:json"`

	MessagesDeleted  int64
	UsersBanned      int64
	UsersMuted       int64
	ChallengesPassed int64

	CreatedAt time.Time
	UpdatedAt time.Time
}

// defaultPolicy mirrors the documented defaults for a freshly referenced chat.
func defaultPolicy(chatID int64) *ChatPolicy {
	return &ChatPolicy{
		ChatID:         chatID,
		CaptchaEnabled: true,
		FilterEnabled:  true,
		FloodEnabled:   true,
		RaidEnabled:    true,
		WelcomeEnabled: true,
		WelcomeText:    "Welcome to the chat!",
		NightStart:     "23:00",
		NightEnd:       "07:00",
		FloodMessages:  5,
		FloodSeconds:   10,
		MuteMinutes:    60,
		JoinsPerMinute: 10,
		VoiceAllowed:   true,
		StopWords:      []string{},
		BotAdmins:      []int64{},
	}
}

// IsBotAdmin reports whether the identity is on the chat's bot-admin list.
func (p *ChatPolicy) IsBotAdmin(userID int64) bool {
	for _, id := range p.BotAdmins {
		if id == userID {
			return true
		}
	}
	return false
}

// Challenge is one live verification puzzle bound to a chat+identity pair.
// It is deleted on the first terminal transition: correct answer, third
// wrong answer, or timeout.
type Challenge struct {
	ChatID int64 `gorm:"primaryKey;autoIncrement:false"`
	UserID int64 `gorm:"primaryKey;autoIncrement:false"`

	// Token binds answer callbacks to this challenge instance; a
	// superseding re-issue gets a fresh token so stale callbacks miss.
	Token string `gorm:"size:36"`

	Answer    string
	Attempts  int
	MessageID int
	IssuedAt  time.Time
}

// VerifiedUser records that an identity passed a challenge in a chat.
// Append-only; the engine never removes entries.
type VerifiedUser struct {
	ChatID     int64 `gorm:"primaryKey;autoIncrement:false"`
	UserID     int64 `gorm:"primaryKey;autoIncrement:false"`
	VerifiedAt time.Time
}

// RateEvent is one timestamped event in a sliding window. Flood windows
// key by "chat/user", raid windows key by "chat".
type RateEvent struct {
	ID    uint   `gorm:"primaryKey"`
	Scope string `gorm:"index:idx_rate_scope_key;size:8"`
	Key   string `gorm:"index:idx_rate_scope_key;size:48"`
	At    time.Time
}

// ScheduledItem is caller-authored content to be delivered at a future
// instant. ChatID stays nil until the author binds a destination; unbound
// items are skipped by the dispatcher indefinitely.
type ScheduledItem struct {
	ID       int64 `gorm:"primaryKey"`
	AuthorID int64 `gorm:"index"`
	ChatID   *int64

	Kind    string `gorm:"size:12"`
	Text    string
	FileID  string
	Caption string

	At     time.Time
	Cron   string // optional; re-arms the item after each send
	Status string `gorm:"size:12;index"`

	CreatedAt time.Time
	UpdatedAt time.Time
}
