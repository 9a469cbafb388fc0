package handlers

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	api "github.com/OvyFlash/telegram-bot-api"
	"github.com/iamwavecut/tool"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/temanrandom/menfesbot/internal/bot"
	"github.com/temanrandom/menfesbot/internal/i18n"
)

// Admin owns the moderation command surface. The only operation is /ban,
// restricted to the single configured administrator; there is no un-ban.
type Admin struct {
	s       bot.Service
	tp      transport
	audit   auditor
	adminID int64
}

func NewAdmin(s bot.Service, tp transport, audit auditor, adminID int64) *Admin {
	return &Admin{
		s:       s,
		tp:      tp,
		audit:   audit,
		adminID: adminID,
	}
}

func (a *Admin) Handle(ctx context.Context, u *api.Update, chat *api.Chat, user *api.User) (bool, error) {
	if chat == nil || user == nil {
		return true, nil
	}

	switch {
	case
		u.Message == nil,
		user.IsBot,
		!chat.IsPrivate(),
		!u.Message.IsCommand(),
		u.Message.Command() != "ban":
		return true, nil
	}
	m := u.Message
	entry := a.getLogEntry().WithField("user_id", user.ID)

	if user.ID != a.adminID {
		entry.Warn("ban attempt from non-admin")
		a.audit.Info("user %d (@%s) tried to use /ban without permission", user.ID, bot.GetUN(user))
		return false, a.tp.SendMessage(ctx, chat.ID, "⛔ "+a.tr("You do not have permission to use this command."))
	}

	args := strings.Fields(m.CommandArguments())
	if len(args) == 0 {
		return false, a.tp.SendMessage(ctx, chat.ID, "❌ "+a.tr("Correct format: /ban [user_id] [reason]"))
	}

	targetID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return false, a.tp.SendMessage(ctx, chat.ID, "❌ "+a.tr("User ID must be a number."))
	}
	reason := strings.Join(args[1:], " ")
	if reason == "" {
		reason = a.tr("No reason given")
	}

	added, err := a.s.GetDB().AddToBlacklist(ctx, targetID)
	if tool.Try(err) {
		entry.WithField("error", err.Error()).Error("cant add user to blacklist")
		a.audit.Error("error banning user %d: %v", targetID, err)
		return false, errors.WithMessage(
			a.tp.SendMessage(ctx, chat.ID, "❌ "+a.tr("Something went wrong while banning the user.")),
			"cant deliver ban failure reply",
		)
	}
	if !added {
		return false, a.tp.SendMessage(ctx, chat.ID, "ℹ️ "+fmt.Sprintf(a.tr("User %d is already on the blacklist."), targetID))
	}

	entry.WithField("target_id", targetID).Info("user banned")
	a.audit.Info("admin banned user %d, reason: %s", targetID, reason)
	text := "✅ " + fmt.Sprintf(a.tr("User %d has been banned."), targetID) + "\n" +
		fmt.Sprintf(a.tr("Reason: %s"), reason)
	return false, a.tp.SendMessage(ctx, chat.ID, text)
}

func (a *Admin) tr(key string) string {
	return i18n.Get(key, a.s.GetLanguage())
}

func (a *Admin) getLogEntry() *log.Entry {
	return log.WithField("object", "Admin")
}
