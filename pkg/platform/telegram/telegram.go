// Package telegram implements the platform interface over the Telegram
// Bot API. It is the only package that talks to the wire; the engine
// stays transport-agnostic.
package telegram

import (
	"context"
	"fmt"
	"time"

	"github.com/mymmrac/telego"

	"github.com/chatwarden/chatwarden/pkg/logger"
	"github.com/chatwarden/chatwarden/pkg/platform"
)

// Adapter sends engine commands to Telegram and converts Telegram
// updates into bus events.
type Adapter struct {
	bot *telego.Bot
}

// New creates an adapter for the given bot token.
func New(token string) (*Adapter, error) {
	bot, err := telego.NewBot(token, telego.WithDiscardLogger())
	if err != nil {
		return nil, fmt.Errorf("creating telegram bot: %w", err)
	}
	return &Adapter{bot: bot}, nil
}

func chatRef(chatID int64) telego.ChatID {
	return telego.ChatID{ID: chatID}
}

// DeleteMessage removes a message from a chat.
func (a *Adapter) DeleteMessage(ctx context.Context, chatID int64, messageID int) error {
	return a.bot.DeleteMessage(ctx, &telego.DeleteMessageParams{
		ChatID:    chatRef(chatID),
		MessageID: messageID,
	})
}

// RestrictSending revokes an identity's send permission until the given
// instant; a zero instant restricts indefinitely.
func (a *Adapter) RestrictSending(ctx context.Context, chatID, userID int64, until time.Time) error {
	params := &telego.RestrictChatMemberParams{
		ChatID:      chatRef(chatID),
		UserID:      userID,
		Permissions: telego.ChatPermissions{}, // everything off
	}
	if !until.IsZero() {
		params.UntilDate = until.Unix()
	}
	return a.bot.RestrictChatMember(ctx, params)
}

// AllowSending restores an identity's send permissions.
func (a *Adapter) AllowSending(ctx context.Context, chatID, userID int64) error {
	return a.bot.RestrictChatMember(ctx, &telego.RestrictChatMemberParams{
		ChatID: chatRef(chatID),
		UserID: userID,
		Permissions: telego.ChatPermissions{
			CanSendMessages:       telego.ToPtr(true),
			CanSendAudios:         telego.ToPtr(true),
			CanSendDocuments:      telego.ToPtr(true),
			CanSendPhotos:         telego.ToPtr(true),
			CanSendVideos:         telego.ToPtr(true),
			CanSendVideoNotes:     telego.ToPtr(true),
			CanSendVoiceNotes:     telego.ToPtr(true),
			CanSendOtherMessages:  telego.ToPtr(true),
			CanAddWebPagePreviews: telego.ToPtr(true),
		},
	})
}

// RemoveMember kicks an identity: ban immediately followed by unban, so
// the identity can rejoin later.
func (a *Adapter) RemoveMember(ctx context.Context, chatID, userID int64) error {
	if err := a.bot.BanChatMember(ctx, &telego.BanChatMemberParams{
		ChatID: chatRef(chatID),
		UserID: userID,
	}); err != nil {
		return err
	}
	return a.bot.UnbanChatMember(ctx, &telego.UnbanChatMemberParams{
		ChatID:       chatRef(chatID),
		UserID:       userID,
		OnlyIfBanned: true,
	})
}

// BanMember removes an identity permanently.
func (a *Adapter) BanMember(ctx context.Context, chatID, userID int64) error {
	return a.bot.BanChatMember(ctx, &telego.BanChatMemberParams{
		ChatID: chatRef(chatID),
		UserID: userID,
	})
}

// SendText sends a plain text message.
func (a *Adapter) SendText(ctx context.Context, chatID int64, text string) (int, error) {
	msg, err := a.bot.SendMessage(ctx, &telego.SendMessageParams{
		ChatID: chatRef(chatID),
		Text:   text,
	})
	if err != nil {
		return 0, err
	}
	return msg.MessageID, nil
}

// SendChallenge sends a challenge question with one inline-keyboard
// button per answer option.
func (a *Adapter) SendChallenge(ctx context.Context, chatID int64, text string, options []string, callbackPrefix string) (int, error) {
	rows := make([][]telego.InlineKeyboardButton, 0, len(options))
	for _, opt := range options {
		rows = append(rows, []telego.InlineKeyboardButton{{
			Text:         opt,
			CallbackData: callbackPrefix + opt,
		}})
	}

	msg, err := a.bot.SendMessage(ctx, &telego.SendMessageParams{
		ChatID:      chatRef(chatID),
		Text:        text,
		ReplyMarkup: &telego.InlineKeyboardMarkup{InlineKeyboard: rows},
	})
	if err != nil {
		return 0, err
	}
	return msg.MessageID, nil
}

// SendMedia sends one media payload by platform file id.
func (a *Adapter) SendMedia(ctx context.Context, chatID int64, media platform.Media) (int, error) {
	file := telego.InputFile{FileID: media.FileID}

	var msg *telego.Message
	var err error
	switch media.Kind {
	case "photo":
		msg, err = a.bot.SendPhoto(ctx, &telego.SendPhotoParams{
			ChatID: chatRef(chatID), Photo: file, Caption: media.Caption,
		})
	case "video":
		msg, err = a.bot.SendVideo(ctx, &telego.SendVideoParams{
			ChatID: chatRef(chatID), Video: file, Caption: media.Caption,
		})
	case "document":
		msg, err = a.bot.SendDocument(ctx, &telego.SendDocumentParams{
			ChatID: chatRef(chatID), Document: file, Caption: media.Caption,
		})
	case "audio":
		msg, err = a.bot.SendAudio(ctx, &telego.SendAudioParams{
			ChatID: chatRef(chatID), Audio: file, Caption: media.Caption,
		})
	default:
		return 0, fmt.Errorf("unknown media kind %q", media.Kind)
	}
	if err != nil {
		return 0, err
	}
	return msg.MessageID, nil
}

// IsChatAdmin reports whether the identity is a chat administrator or
// the owner. Lookup failures resolve to non-admin.
func (a *Adapter) IsChatAdmin(ctx context.Context, chatID, userID int64) (bool, error) {
	member, err := a.bot.GetChatMember(ctx, &telego.GetChatMemberParams{
		ChatID: chatRef(chatID),
		UserID: userID,
	})
	if err != nil {
		logger.DebugCF("telegram", "Chat member lookup failed", map[string]any{
			"chat_id": chatID, "user_id": userID, "error": err.Error(),
		})
		return false, err
	}
	status := member.MemberStatus()
	return status == telego.MemberStatusCreator || status == telego.MemberStatusAdministrator, nil
}

// AnswerCallback acknowledges a callback query.
func (a *Adapter) AnswerCallback(ctx context.Context, callbackID, text string, alert bool) error {
	return a.bot.AnswerCallbackQuery(ctx, &telego.AnswerCallbackQueryParams{
		CallbackQueryID: callbackID,
		Text:            text,
		ShowAlert:       alert,
	})
}

var _ platform.Platform = (*Adapter)(nil)
