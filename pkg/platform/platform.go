// Package platform defines the engine's view of the external messaging
// platform. The engine produces commands (delete, restrict, remove,
// send) through this interface and never talks to a transport directly,
// so every platform failure funnels through one logging boundary.
package platform

import (
	"context"
	"time"
)

// Media is a non-text payload reference: a platform file id plus an
// optional caption.
type Media struct {
	Kind    string // photo | video | document | audio
	FileID  string
	Caption string
}

// Platform is the set of commands the engine issues to the messaging
// platform. Implementations must be safe for concurrent use.
type Platform interface {
	// DeleteMessage removes a message from a chat.
	DeleteMessage(ctx context.Context, chatID int64, messageID int) error

	// RestrictSending revokes an identity's send permission until the
	// given instant. A zero instant restricts indefinitely.
	RestrictSending(ctx context.Context, chatID, userID int64, until time.Time) error

	// AllowSending restores an identity's send permissions.
	AllowSending(ctx context.Context, chatID, userID int64) error

	// RemoveMember removes an identity from the chat without a permanent
	// ban (the identity may rejoin).
	RemoveMember(ctx context.Context, chatID, userID int64) error

	// BanMember removes an identity from the chat permanently.
	BanMember(ctx context.Context, chatID, userID int64) error

	// SendText sends a text message and returns its message id.
	SendText(ctx context.Context, chatID int64, text string) (int, error)

	// SendChallenge sends a challenge question with an answer keyboard.
	// Each option's callback data is prefix + the option text.
	SendChallenge(ctx context.Context, chatID int64, text string, options []string, callbackPrefix string) (int, error)

	// SendMedia sends a media payload and returns its message id.
	SendMedia(ctx context.Context, chatID int64, media Media) (int, error)

	// IsChatAdmin reports whether the identity is an administrator or
	// owner of the chat as resolved by the platform.
	IsChatAdmin(ctx context.Context, chatID, userID int64) (bool, error)

	// AnswerCallback acknowledges a challenge-answer callback, optionally
	// as an alert.
	AnswerCallback(ctx context.Context, callbackID, text string, alert bool) error
}
