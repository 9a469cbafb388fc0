package handlers

import (
	"context"

	api "github.com/OvyFlash/telegram-bot-api"

	"github.com/temanrandom/menfesbot/internal/telegram"
)

// transport is the slice of telegram.Operations the handlers call.
type transport interface {
	SendMessage(ctx context.Context, chatID int64, text string) error
	SendHTML(ctx context.Context, chatID int64, text string, markup *api.InlineKeyboardMarkup) error
	SendVideo(ctx context.Context, chat telegram.ChatRef, fileID, caption string, markup *api.InlineKeyboardMarkup) (int, error)
	EditCaption(ctx context.Context, chatID int64, messageID int, caption string, markup *api.InlineKeyboardMarkup) error
	EditMessageText(ctx context.Context, chatID int64, messageID int, text string, markup *api.InlineKeyboardMarkup) error
	AnswerCallback(ctx context.Context, callbackID, text string) error
}

// memberGate collapses membership lookups to a boolean, faults included.
type memberGate interface {
	IsMember(ctx context.Context, userID int64, ref telegram.ChatRef) bool
}

// chatRefs hands out the best-known references for the relay targets.
type chatRefs interface {
	ChannelRef() telegram.ChatRef
	GroupRef() telegram.ChatRef
}

// auditor delivers audit events to the admin chat.
type auditor interface {
	Info(format string, args ...any)
	Error(format string, args ...any)
	Report(text string)
}
