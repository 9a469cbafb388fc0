package handlers

import (
	"context"
	"fmt"
	"strings"
	"sync"

	api "github.com/OvyFlash/telegram-bot-api"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/temanrandom/menfesbot/internal/bot"
	"github.com/temanrandom/menfesbot/internal/i18n"
	"github.com/temanrandom/menfesbot/internal/observability"
	"github.com/temanrandom/menfesbot/internal/tally"
	"github.com/temanrandom/menfesbot/internal/utils/keyed"
)

const (
	callbackLikePrefix    = "like:"
	callbackDislikePrefix = "dislike:"
)

func reactionMarkup(senderID int64) api.InlineKeyboardMarkup {
	return api.NewInlineKeyboardMarkup(
		api.NewInlineKeyboardRow(
			api.NewInlineKeyboardButtonData("👍 Like", fmt.Sprintf("%s%d", callbackLikePrefix, senderID)),
			api.NewInlineKeyboardButtonData("👎 Dislike", fmt.Sprintf("%s%d", callbackDislikePrefix, senderID)),
		),
	)
}

// Reactions applies like/dislike presses to the tally embedded in a
// published message's caption. The caption is the only durable record of
// the counts, so the read-modify-write cycle is serialized per message and
// the freshest caption is remembered locally: the one delivered with a
// callback is a snapshot from press time and may already be stale.
type Reactions struct {
	s     bot.Service
	tp    transport
	audit auditor

	locks *keyed.Mutex
	mu    sync.Mutex
	fresh map[string]string
}

func NewReactions(s bot.Service, tp transport, audit auditor) *Reactions {
	return &Reactions{
		s:     s,
		tp:    tp,
		audit: audit,
		locks: keyed.NewMutex(),
		fresh: make(map[string]string),
	}
}

func (h *Reactions) Handle(ctx context.Context, u *api.Update, _ *api.Chat, user *api.User) (bool, error) {
	if u.CallbackQuery == nil {
		return true, nil
	}
	q := u.CallbackQuery

	var action tally.Action
	var senderID string
	switch {
	case strings.HasPrefix(q.Data, callbackLikePrefix):
		action = tally.ActionLike
		senderID = strings.TrimPrefix(q.Data, callbackLikePrefix)
	case strings.HasPrefix(q.Data, callbackDislikePrefix):
		action = tally.ActionDislike
		senderID = strings.TrimPrefix(q.Data, callbackDislikePrefix)
	default:
		return true, nil
	}

	if q.Message == nil {
		return false, h.tp.AnswerCallback(ctx, q.ID, "❌ "+h.tr("Something went wrong while processing your request"))
	}

	if err := h.applyReaction(ctx, q, user, action, senderID); err != nil {
		h.getLogEntry().WithField("error", err.Error()).Error("cant apply reaction")
		return false, errors.WithMessage(err, "cant apply reaction")
	}
	return false, nil
}

func (h *Reactions) applyReaction(ctx context.Context, q *api.CallbackQuery, user *api.User, action tally.Action, senderID string) error {
	chatID := q.Message.Chat.ID
	messageID := q.Message.MessageID
	key := fmt.Sprintf("%d:%d", chatID, messageID)

	unlock := h.locks.Lock(key)
	defer unlock()

	caption := h.latestCaption(key, q.Message.Caption)
	newCaption, counts, err := tally.Apply(caption, action)
	if err != nil {
		observability.RecordReaction("malformed")
		h.getLogEntry().WithFields(log.Fields{
			"chat_id":    chatID,
			"message_id": messageID,
			"error":      err.Error(),
		}).Warn("reaction on message without a valid tally")
		return h.tp.AnswerCallback(ctx, q.ID, "❌ "+h.tr("Error: invalid caption format"))
	}

	markup := markupForSender(q.Message.ReplyMarkup, senderID)
	if err := h.tp.EditCaption(ctx, chatID, messageID, newCaption, markup); err != nil {
		return errors.WithMessage(err, "cant edit caption")
	}
	h.remember(key, newCaption)
	observability.RecordReaction(string(action))

	ack := "👍 " + h.tr("You liked this video!")
	if action == tally.ActionDislike {
		ack = "👎 " + h.tr("You disliked this video")
	}
	if err := h.tp.AnswerCallback(ctx, q.ID, ack); err != nil {
		h.getLogEntry().WithField("error", err.Error()).Error("cant acknowledge reaction")
	}

	var reactorID int64
	if user != nil {
		reactorID = user.ID
	}
	h.audit.Info("user %d reacted %s to video from user %s (message id %d, tally %s)",
		reactorID, action, senderID, messageID, counts)
	return nil
}

func (h *Reactions) latestCaption(key, snapshot string) string {
	h.mu.Lock()
	defer h.mu.Unlock()
	if caption, ok := h.fresh[key]; ok {
		return caption
	}
	return snapshot
}

func (h *Reactions) remember(key, caption string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.fresh[key] = caption
}

// markupForSender re-attaches the reaction buttons, a caption edit drops
// them otherwise. The original markup is reused when present so the button
// payloads survive untouched.
func markupForSender(current *api.InlineKeyboardMarkup, senderID string) *api.InlineKeyboardMarkup {
	if current != nil && len(current.InlineKeyboard) > 0 {
		return current
	}
	markup := api.NewInlineKeyboardMarkup(
		api.NewInlineKeyboardRow(
			api.NewInlineKeyboardButtonData("👍 Like", callbackLikePrefix+senderID),
			api.NewInlineKeyboardButtonData("👎 Dislike", callbackDislikePrefix+senderID),
		),
	)
	return &markup
}

func (h *Reactions) tr(key string) string {
	return i18n.Get(key, h.s.GetLanguage())
}

func (h *Reactions) getLogEntry() *log.Entry {
	return log.WithField("object", "Reactions")
}
