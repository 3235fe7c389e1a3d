package telegram

import (
	"context"
	"strings"

	"github.com/mymmrac/telego"

	"github.com/chatwarden/chatwarden/pkg/bus"
	"github.com/chatwarden/chatwarden/pkg/engine"
	"github.com/chatwarden/chatwarden/pkg/logger"
)

// Listen long-polls Telegram and publishes join, message and answer
// events to the bus until the context is cancelled.
func (a *Adapter) Listen(ctx context.Context, eb *bus.EventBus) error {
	updates, err := a.bot.UpdatesViaLongPolling(ctx, &telego.GetUpdatesParams{
		AllowedUpdates: []string{"message", "callback_query", "chat_member"},
	})
	if err != nil {
		return err
	}

	logger.InfoC("telegram", "Listening for updates")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			a.handleUpdate(ctx, eb, update)
		}
	}
}

func (a *Adapter) handleUpdate(ctx context.Context, eb *bus.EventBus, update telego.Update) {
	var evt *bus.Event
	switch {
	case update.ChatMember != nil:
		evt = a.joinEvent(update.ChatMember)
	case update.Message != nil:
		evt = a.messageEvent(ctx, update.Message)
	case update.CallbackQuery != nil:
		evt = a.answerEvent(update.CallbackQuery)
	}
	if evt == nil {
		return
	}

	if err := eb.Publish(ctx, *evt); err != nil {
		logger.ErrorCF("telegram", "Event publish failed", map[string]any{
			"error": err.Error(),
		})
	}
}

// joinEvent converts a member-status transition into a join event, or
// nil when the transition is not an arrival.
func (a *Adapter) joinEvent(upd *telego.ChatMemberUpdated) *bus.Event {
	oldIn := memberPresent(upd.OldChatMember)
	newIn := memberPresent(upd.NewChatMember)
	if oldIn || !newIn {
		return nil
	}

	user := upd.NewChatMember.MemberUser()
	return &bus.Event{
		Kind:        bus.EventJoin,
		ChatID:      upd.Chat.ID,
		UserID:      user.ID,
		DisplayName: displayName(&user),
	}
}

func memberPresent(m telego.ChatMember) bool {
	if m == nil {
		return false
	}
	switch m.MemberStatus() {
	case telego.MemberStatusMember, telego.MemberStatusAdministrator,
		telego.MemberStatusCreator, telego.MemberStatusRestricted:
		return true
	}
	return false
}

// messageEvent converts a group message. Admin status is resolved here
// so the engine receives it pre-computed.
func (a *Adapter) messageEvent(ctx context.Context, msg *telego.Message) *bus.Event {
	if msg.From == nil {
		return nil
	}
	if msg.Chat.Type != telego.ChatTypeGroup && msg.Chat.Type != telego.ChatTypeSupergroup {
		return nil
	}

	isAdmin, _ := a.IsChatAdmin(ctx, msg.Chat.ID, msg.From.ID)

	return &bus.Event{
		Kind:         bus.EventMessage,
		ChatID:       msg.Chat.ID,
		UserID:       msg.From.ID,
		DisplayName:  displayName(msg.From),
		MessageID:    msg.MessageID,
		Text:         msg.Text,
		Caption:      msg.Caption,
		HasVoice:     msg.Voice != nil,
		HasVideoNote: msg.VideoNote != nil,
		HasAnimation: msg.Animation != nil,
		IsForwarded:  msg.ForwardOrigin != nil,
		IsAdmin:      isAdmin,
	}
}

// answerEvent converts a challenge callback. Callback data format:
// "captcha:<token>:<option>".
func (a *Adapter) answerEvent(q *telego.CallbackQuery) *bus.Event {
	rest, ok := strings.CutPrefix(q.Data, engine.CallbackPrefix)
	if !ok {
		return nil
	}
	token, answer, ok := strings.Cut(rest, ":")
	if !ok {
		return nil
	}

	var chatID int64
	switch m := q.Message.(type) {
	case *telego.Message:
		chatID = m.Chat.ID
	case *telego.InaccessibleMessage:
		chatID = m.Chat.ID
	default:
		return nil
	}

	return &bus.Event{
		Kind:        bus.EventAnswer,
		ChatID:      chatID,
		UserID:      q.From.ID,
		DisplayName: displayName(&q.From),
		CallbackID:  q.ID,
		Token:       token,
		Answer:      answer,
	}
}

func displayName(u *telego.User) string {
	name := u.FirstName
	if u.LastName != "" {
		name += " " + u.LastName
	}
	if name == "" {
		name = u.Username
	}
	return name
}
