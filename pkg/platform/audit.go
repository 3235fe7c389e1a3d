package platform

import (
	"context"
	"fmt"
	"time"

	"github.com/chatwarden/chatwarden/pkg/logger"
)

// Entry is one structured audit record of a moderation action.
type Entry struct {
	ChatID int64
	UserID int64
	Action string
	Detail string
	At     time.Time
}

// Auditor mirrors moderation actions to a configured admin channel, in
// addition to the process log. Delivery failures are logged and dropped;
// auditing never blocks or fails a moderation decision.
type Auditor struct {
	platform     Platform
	adminChannel int64
}

// NewAuditor builds an auditor. A zero adminChannel disables channel
// mirroring; entries still reach the process log.
func NewAuditor(p Platform, adminChannel int64) *Auditor {
	return &Auditor{platform: p, adminChannel: adminChannel}
}

// Log records one audit entry.
func (a *Auditor) Log(ctx context.Context, e Entry) {
	logger.InfoCF("audit", e.Action, map[string]any{
		"chat_id": e.ChatID,
		"user_id": e.UserID,
		"detail":  e.Detail,
	})

	if a == nil || a.adminChannel == 0 {
		return
	}

	text := fmt.Sprintf("📋 Log\nChat: %d\nUser: %d\nAction: %s\n%s\nTime: %s",
		e.ChatID, e.UserID, e.Action, e.Detail,
		e.At.Format("2006-01-02 15:04:05"))
	if _, err := a.platform.SendText(ctx, a.adminChannel, text); err != nil {
		logger.ErrorCF("audit", "Failed to mirror audit entry", map[string]any{
			"error": err.Error(),
		})
	}
}
