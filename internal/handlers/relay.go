package handlers

import (
	"context"
	"fmt"
	"strings"
	"time"

	api "github.com/OvyFlash/telegram-bot-api"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/temanrandom/menfesbot/internal/bot"
	"github.com/temanrandom/menfesbot/internal/config"
	"github.com/temanrandom/menfesbot/internal/i18n"
	"github.com/temanrandom/menfesbot/internal/observability"
	"github.com/temanrandom/menfesbot/internal/ratelimit"
	"github.com/temanrandom/menfesbot/internal/tally"
	"github.com/temanrandom/menfesbot/internal/utils/keyed"
)

const (
	callbackCheckMembership = "check_membership"
	callbackCreateMenfes    = "create_menfes"
)

// Relay owns the submission side of the bot: onboarding commands,
// membership verification callbacks and the video admission pipeline.
type Relay struct {
	s       bot.Service
	tp      transport
	gate    memberGate
	refs    chatRefs
	limiter *ratelimit.Limiter
	audit   auditor
	cfg     config.Relay
	botName string
	locks   *keyed.Mutex
	now     func() time.Time
}

func NewRelay(s bot.Service, tp transport, gate memberGate, refs chatRefs, limiter *ratelimit.Limiter, audit auditor, cfg config.Relay, botName string) *Relay {
	return &Relay{
		s:       s,
		tp:      tp,
		gate:    gate,
		refs:    refs,
		limiter: limiter,
		audit:   audit,
		cfg:     cfg,
		botName: botName,
		locks:   keyed.NewMutex(),
		now:     time.Now,
	}
}

func (r *Relay) Handle(ctx context.Context, u *api.Update, chat *api.Chat, user *api.User) (bool, error) {
	if u.CallbackQuery != nil {
		switch u.CallbackQuery.Data {
		case callbackCheckMembership:
			return false, r.handleCheckMembership(ctx, u.CallbackQuery)
		case callbackCreateMenfes:
			return false, r.handleCreateMenfes(ctx, u.CallbackQuery)
		default:
			return true, nil
		}
	}

	if chat == nil || user == nil || u.Message == nil {
		return true, nil
	}
	if !chat.IsPrivate() || user.IsBot {
		return true, nil
	}
	m := u.Message

	if m.IsCommand() {
		switch m.Command() {
		case "start":
			return false, r.handleStart(ctx, chat, user)
		case "help":
			return false, r.handleHelp(ctx, chat, user)
		default:
			return true, nil
		}
	}

	if m.Video != nil {
		r.handleVideo(ctx, chat, user, m)
		return false, nil
	}
	r.handleOther(ctx, chat, user)
	return false, nil
}

// handleVideo runs the admission pipeline. The per-user lock makes the
// cooldown check-then-record sequence atomic, two submissions from the same
// user can never both pass the cooldown window.
func (r *Relay) handleVideo(ctx context.Context, chat *api.Chat, user *api.User, m *api.Message) {
	unlock := r.locks.Lock(fmt.Sprintf("submission:%d", user.ID))
	defer unlock()

	if err := r.runPipeline(ctx, chat, user, m); err != nil {
		r.getLogEntry().WithField("error", err.Error()).Error("video submission failed")
		r.audit.Error("error processing video from user %d: %v", user.ID, err)
		observability.RecordSubmission("fault")
		if sendErr := r.tp.SendMessage(ctx, chat.ID, "❌ "+r.tr("Something went wrong while sending your video. Please try again later.")); sendErr != nil {
			r.getLogEntry().WithField("error", sendErr.Error()).Error("cant deliver failure reply")
		}
	}
}

func (r *Relay) runPipeline(ctx context.Context, chat *api.Chat, user *api.User, m *api.Message) error {
	ctx, span := otel.Tracer("relay").Start(ctx, "admit-submission")
	defer span.End()

	entry := r.getLogEntry().WithField("user_id", user.ID)

	banned, err := r.s.GetDB().IsBlacklisted(ctx, user.ID)
	if err != nil {
		return errors.WithMessage(err, "cant check blacklist")
	}
	if banned {
		observability.RecordSubmission("blacklisted")
		return r.tp.SendMessage(ctx, chat.ID, "❌ "+r.tr("You have been banned from using this bot."))
	}

	if user.UserName == "" {
		observability.RecordSubmission("no_handle")
		r.audit.Info("user %d tried to submit a video without a username", user.ID)
		text := "⚠️ <b>" + r.tr("USERNAME REQUIRED") + "</b>\n\n" +
			r.tr("To send a menfes, you must have a Telegram username.") + "\n" +
			r.tr("Please set a username in your Telegram profile settings first.")
		return r.tp.SendHTML(ctx, chat.ID, text, nil)
	}

	caption := strings.TrimSpace(m.Caption)
	if caption == "" {
		observability.RecordSubmission("no_caption")
		r.audit.Info("user %d (@%s) tried to submit a video without a caption", user.ID, user.UserName)
		text := "⚠️ <b>" + r.tr("CAPTION REQUIRED") + "</b>\n\n" +
			r.tr("To send a menfes, your video must carry a caption/message.") + "\n" +
			r.tr("Please resend the video with a caption added.")
		return r.tp.SendHTML(ctx, chat.ID, text, nil)
	}

	isGroupMember := r.gate.IsMember(ctx, user.ID, r.refs.GroupRef())
	isChannelMember := r.gate.IsMember(ctx, user.ID, r.refs.ChannelRef())
	if !isGroupMember || !isChannelMember {
		observability.RecordSubmission("not_member")
		text := "⚠️ <b>" + r.tr("ACCESS DENIED") + "</b>\n\n" +
			r.tr("To send a menfes, you must join:") + "\n"
		if !isGroupMember {
			text += "• " + r.tr("Our group") + "\n"
		}
		if !isChannelMember {
			text += "• " + r.tr("Our channel") + "\n"
		}
		text += "\n" + r.tr("Please use the /start command to begin verification.")
		return r.tp.SendHTML(ctx, chat.ID, text, nil)
	}

	now := r.now()
	if remaining := r.limiter.Remaining(user.ID, now); remaining > 0 {
		observability.RecordSubmission("on_cooldown")
		text := "⏳ <b>" + r.tr("PLEASE WAIT") + "</b>\n\n" +
			fmt.Sprintf(r.tr("You have to wait another %d seconds before sending your next video."), int(remaining.Seconds()))
		return r.tp.SendHTML(ctx, chat.ID, text, nil)
	}

	duration := time.Duration(m.Video.Duration) * time.Second
	if duration > r.cfg.MaxVideoDuration {
		observability.RecordSubmission("too_long")
		text := "⚠️ <b>" + r.tr("DURATION TOO LONG") + "</b>\n\n" +
			fmt.Sprintf(r.tr("Your video is %d seconds long."), m.Video.Duration) + "\n" +
			fmt.Sprintf(r.tr("The maximum allowed video duration is %d seconds."), int(r.cfg.MaxVideoDuration.Seconds()))
		return r.tp.SendHTML(ctx, chat.ID, text, nil)
	}

	stamped, markup := r.stampCaption(caption, user)
	messageID, err := r.tp.SendVideo(ctx, r.refs.ChannelRef(), m.Video.FileID, stamped, markup)
	if err != nil {
		return errors.WithMessage(err, "cant forward video to channel")
	}
	r.limiter.Record(user.ID, now)
	observability.RecordSubmission("accepted")
	entry.WithField("message_id", messageID).Info("video forwarded to channel")
	observability.Logger.Info("video forwarded to channel",
		zap.Int64("user_id", user.ID),
		zap.Int("message_id", messageID),
		zap.Int("duration_seconds", m.Video.Duration),
	)

	confirmKey := "Your video has been delivered to the channel."
	if r.cfg.Flow == config.FlowAnonymous {
		confirmKey = "Your video has been delivered to the channel anonymously."
	}
	confirmation := "✅ <b>" + r.tr("VIDEO SENT!") + "</b>\n\n" +
		r.tr(confirmKey) + "\n" +
		r.tr("Thank you for using Menfes Video Bot!")
	if err := r.tp.SendHTML(ctx, chat.ID, confirmation, nil); err != nil {
		return errors.WithMessage(err, "cant deliver confirmation")
	}

	r.audit.Report(fmt.Sprintf(
		"📤 <b>MENFES VIDEO SENT</b>\n\n"+
			"<b>Sender:</b>\n"+
			"• ID: %d\n"+
			"• Username: @%s\n"+
			"• Name: %s\n\n"+
			"<b>Video:</b>\n"+
			"• Duration: %d seconds\n"+
			"• Caption: %s\n"+
			"• Message ID: %d\n"+
			"• Time: %s",
		user.ID, user.UserName, bot.GetFullName(user),
		m.Video.Duration, caption, messageID,
		now.Format("2006-01-02 15:04:05"),
	))
	r.audit.Info("user %d (@%s) submitted a %d second menfes video", user.ID, user.UserName, m.Video.Duration)
	return nil
}

// stampCaption produces the channel caption for the configured flow:
// attributed stamps the sender handle and provenance, anonymous seeds a
// zero reaction tally and attaches like/dislike buttons instead.
func (r *Relay) stampCaption(caption string, user *api.User) (string, *api.InlineKeyboardMarkup) {
	if r.cfg.Flow == config.FlowAnonymous {
		markup := reactionMarkup(user.ID)
		return caption + "\n\n<i>" + tally.Seed() + "</i>", &markup
	}

	stamped := "📨 <b>" + r.tr("MENFES VIDEO") + "</b>\n\n" +
		"<b>" + r.tr("Message:") + "</b>\n" + caption + "\n\n" +
		"<i>" + r.tr("Sent by") + ": @" + user.UserName + "</i>\n" +
		"<i>Via: @" + r.botName + "</i>"
	return stamped, nil
}

func (r *Relay) handleStart(ctx context.Context, chat *api.Chat, user *api.User) error {
	banned, err := r.s.GetDB().IsBlacklisted(ctx, user.ID)
	if err != nil {
		return errors.WithMessage(err, "cant check blacklist")
	}
	if banned {
		return r.tp.SendMessage(ctx, chat.ID, "❌ "+r.tr("You have been banned from using this bot."))
	}

	channelTag := "@" + r.cfg.ChannelUsername
	text := "👋 <b>" + fmt.Sprintf(r.tr("Welcome to Menfes Video Bot %s!"), channelTag) + "</b>\n\n" +
		fmt.Sprintf(r.tr("This bot forwards your videos to %s."), "<b>"+channelTag+"</b>") + "\n\n" +
		"<b>" + r.tr("To use this bot, you must:") + "</b>\n" +
		"1. " + r.tr("Join our channel and group") + "\n" +
		"2. " + r.tr("Have a Telegram username") + "\n" +
		"3. " + fmt.Sprintf(r.tr("Send a video with a caption to this bot (%d seconds max)"), int(r.cfg.MaxVideoDuration.Seconds())) + "\n" +
		"4. " + r.tr("Make sure the content does not break community rules") + "\n\n" +
		r.tr("Tap the buttons below to join, then press \"Already joined\" once done.")

	markup := r.joinMarkup(true)
	if err := r.tp.SendHTML(ctx, chat.ID, text, &markup); err != nil {
		return errors.WithMessage(err, "cant send start message")
	}
	r.audit.Info("user %d (@%s) started the bot", user.ID, bot.GetUN(user))
	return nil
}

func (r *Relay) handleHelp(ctx context.Context, chat *api.Chat, user *api.User) error {
	banned, err := r.s.GetDB().IsBlacklisted(ctx, user.ID)
	if err != nil {
		return errors.WithMessage(err, "cant check blacklist")
	}
	if banned {
		return r.tp.SendMessage(ctx, chat.ID, "❌ "+r.tr("You have been banned from using this bot."))
	}

	maxSeconds := int(r.cfg.MaxVideoDuration.Seconds())
	text := "ℹ️ <b>" + r.tr("Menfes Video Bot usage help") + "</b>\n\n" +
		fmt.Sprintf(r.tr("This bot lets you send videos to the %s channel."), "@"+r.cfg.ChannelUsername) + "\n\n" +
		"<b>" + r.tr("How to use:") + "</b>\n" +
		"1. " + fmt.Sprintf(r.tr("Send a video no longer than %d seconds"), maxSeconds) + "\n" +
		"2. " + r.tr("Make sure the video carries a caption/message (mandatory)") + "\n" +
		"3. " + r.tr("You must have a Telegram username") + "\n" +
		"4. " + r.tr("The bot forwards your video to the channel") + "\n\n" +
		"<b>" + r.tr("Rules:") + "</b>\n" +
		"• " + fmt.Sprintf(r.tr("Maximum video duration is %d seconds"), maxSeconds) + "\n" +
		"• " + r.tr("The video must carry a caption") + "\n" +
		"• " + fmt.Sprintf(r.tr("Submission interval is %d minutes"), int(r.cfg.Cooldown.Minutes())) + "\n" +
		"• " + r.tr("Content must not break community rules") + "\n\n" +
		r.tr("If you run into problems, contact the group admin.")

	if err := r.tp.SendHTML(ctx, chat.ID, text, nil); err != nil {
		return errors.WithMessage(err, "cant send help message")
	}
	r.audit.Info("user %d (@%s) viewed the help", user.ID, bot.GetUN(user))
	return nil
}

func (r *Relay) handleCheckMembership(ctx context.Context, q *api.CallbackQuery) error {
	user := q.From
	if user == nil || q.Message == nil {
		return r.tp.AnswerCallback(ctx, q.ID, "")
	}
	chatID := q.Message.Chat.ID

	banned, err := r.s.GetDB().IsBlacklisted(ctx, user.ID)
	if err != nil {
		return errors.WithMessage(err, "cant check blacklist")
	}
	if banned {
		text := "❌ <b>" + r.tr("ACCESS DENIED") + "</b>\n\n" +
			r.tr("You have been banned from using this bot.") + "\n" +
			r.tr("Contact the admin for further information.")
		if err := r.tp.EditMessageText(ctx, chatID, q.Message.MessageID, text, nil); err != nil {
			return errors.WithMessage(err, "cant edit membership message")
		}
		return r.tp.AnswerCallback(ctx, q.ID, "")
	}

	isGroupMember := r.gate.IsMember(ctx, user.ID, r.refs.GroupRef())
	isChannelMember := r.gate.IsMember(ctx, user.ID, r.refs.ChannelRef())
	r.audit.Info("membership check for user %d: group=%v, channel=%v", user.ID, isGroupMember, isChannelMember)

	if isGroupMember && isChannelMember {
		markup := api.NewInlineKeyboardMarkup(
			api.NewInlineKeyboardRow(
				api.NewInlineKeyboardButtonData("📹 "+r.tr("Send your menfes video now"), callbackCreateMenfes),
			),
		)
		text := "✅ <b>" + r.tr("VERIFICATION SUCCESSFUL") + "</b>\n\n" +
			r.tr("You have joined our group and channel.") + "\n" +
			r.tr("You can now send your menfes video.")
		if err := r.tp.EditMessageText(ctx, chatID, q.Message.MessageID, text, &markup); err != nil {
			return errors.WithMessage(err, "cant edit membership message")
		}
		return r.tp.AnswerCallback(ctx, q.ID, "✅ "+r.tr("Membership verified!"))
	}

	text := "⚠️ <b>" + r.tr("VERIFICATION FAILED") + "</b>\n\n" +
		r.tr("You have not joined all required groups/channels yet") + ":\n"
	if !isGroupMember {
		text += "• " + r.tr("Our group") + "\n"
	}
	if !isChannelMember {
		text += "• " + r.tr("Our channel") + "\n"
	}
	text += "\n" + r.tr("Please join first using the buttons below.") + "\n" +
		r.tr("Once joined, press the Check again button to verify.")

	markup := r.joinMarkup(false)
	if err := r.tp.EditMessageText(ctx, chatID, q.Message.MessageID, text, &markup); err != nil {
		return errors.WithMessage(err, "cant edit membership message")
	}
	return r.tp.AnswerCallback(ctx, q.ID, "")
}

func (r *Relay) handleCreateMenfes(ctx context.Context, q *api.CallbackQuery) error {
	if q.Message == nil {
		return r.tp.AnswerCallback(ctx, q.ID, "")
	}

	maxSeconds := int(r.cfg.MaxVideoDuration.Seconds())
	text := "📹 <b>" + r.tr("SEND YOUR MENFES VIDEO") + "</b>\n\n" +
		r.tr("Please send the video you want to share.") + "\n" +
		r.tr("Note: the video MUST carry a caption/message.") + "\n\n" +
		"<b>" + r.tr("Submission rules:") + "</b>\n" +
		"• " + fmt.Sprintf(r.tr("Maximum video duration is %d seconds"), maxSeconds) + "\n" +
		"• " + r.tr("Must carry a caption/message") + "\n" +
		"• " + r.tr("Must have a Telegram username")
	if err := r.tp.EditMessageText(ctx, q.Message.Chat.ID, q.Message.MessageID, text, nil); err != nil {
		return errors.WithMessage(err, "cant edit create menfes message")
	}
	return r.tp.AnswerCallback(ctx, q.ID, "")
}

func (r *Relay) handleOther(ctx context.Context, chat *api.Chat, user *api.User) {
	banned, err := r.s.GetDB().IsBlacklisted(ctx, user.ID)
	if err != nil {
		r.getLogEntry().WithField("error", err.Error()).Error("cant check blacklist")
		return
	}
	if banned {
		if err := r.tp.SendMessage(ctx, chat.ID, "❌ "+r.tr("You have been banned from using this bot.")); err != nil {
			r.getLogEntry().WithField("error", err.Error()).Error("cant deliver banned reply")
		}
		return
	}

	text := "📹 <b>" + r.tr("ATTENTION") + "</b>\n\n" +
		r.tr("This bot only accepts menfes videos.") + "\n" +
		fmt.Sprintf(r.tr("Please send a video no longer than %d seconds to forward it to the channel."), int(r.cfg.MaxVideoDuration.Seconds())) + "\n\n" +
		r.tr("Use the /help command for more information.")
	if err := r.tp.SendHTML(ctx, chat.ID, text, nil); err != nil {
		r.getLogEntry().WithField("error", err.Error()).Error("cant deliver guidance reply")
	}
}

func (r *Relay) joinMarkup(includeJoined bool) api.InlineKeyboardMarkup {
	rows := [][]api.InlineKeyboardButton{
		{api.NewInlineKeyboardButtonURL("📢 "+r.tr("Join the channel"), "https://t.me/"+r.cfg.ChannelUsername)},
		{api.NewInlineKeyboardButtonURL("👥 "+r.tr("Join the group"), "https://t.me/"+r.cfg.GroupUsername)},
	}
	checkTitle := "🔄 " + r.tr("Check again")
	if includeJoined {
		checkTitle = "✅ " + r.tr("Already joined - check again")
	}
	rows = append(rows, []api.InlineKeyboardButton{api.NewInlineKeyboardButtonData(checkTitle, callbackCheckMembership)})
	return api.NewInlineKeyboardMarkup(rows...)
}

func (r *Relay) tr(key string) string {
	return i18n.Get(key, r.s.GetLanguage())
}

func (r *Relay) getLogEntry() *log.Entry {
	return log.WithField("object", "Relay")
}
