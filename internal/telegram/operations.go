package telegram

import (
	"context"
	"fmt"
	"time"

	api "github.com/OvyFlash/telegram-bot-api"
)

// apiCallTimeout bounds every single Bot API call. Handlers hold per-user
// and per-message locks across transport calls, so a call must never stall
// longer than this.
const apiCallTimeout = 30 * time.Second

// ChatRef addresses a chat either by its stable numeric id or, before the
// id is resolved, by its public username.
type ChatRef struct {
	ID       int64
	Username string
}

func (r ChatRef) chatConfig() api.ChatConfig {
	if r.ID != 0 {
		return api.ChatConfig{ChatID: r.ID}
	}
	return api.ChatConfig{SuperGroupUsername: "@" + r.Username}
}

// Operations is the narrow transport surface the handlers call. Every call
// runs under a deadline derived from the caller's context, capped at
// apiCallTimeout; once the deadline fires the in-flight request is
// abandoned and the caller gets the context error.
type Operations struct {
	bot *api.BotAPI
}

func NewOperations(bot *api.BotAPI) *Operations {
	return &Operations{bot: bot}
}

func (o *Operations) call(ctx context.Context, op string, fn func() error) error {
	ctx, cancel := context.WithTimeout(ctx, apiCallTimeout)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- fn()
	}()
	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	}
}

func (o *Operations) SendMessage(ctx context.Context, chatID int64, text string) error {
	return o.call(ctx, "send message", func() error {
		_, err := o.bot.Send(api.NewMessage(chatID, text))
		return err
	})
}

func (o *Operations) SendHTML(ctx context.Context, chatID int64, text string, markup *api.InlineKeyboardMarkup) error {
	msg := api.NewMessage(chatID, text)
	msg.ParseMode = api.ModeHTML
	msg.LinkPreviewOptions.IsDisabled = true
	if markup != nil {
		msg.ReplyMarkup = markup
	}
	return o.call(ctx, "send html message", func() error {
		_, err := o.bot.Send(msg)
		return err
	})
}

func (o *Operations) SendVideo(ctx context.Context, chat ChatRef, fileID, caption string, markup *api.InlineKeyboardMarkup) (int, error) {
	video := api.NewVideo(chat.ID, api.FileID(fileID))
	video.ChatConfig = chat.chatConfig()
	video.Caption = caption
	video.ParseMode = api.ModeHTML
	if markup != nil {
		video.ReplyMarkup = markup
	}
	var messageID int
	err := o.call(ctx, "send video", func() error {
		sent, err := o.bot.Send(video)
		if err == nil {
			messageID = sent.MessageID
		}
		return err
	})
	if err != nil {
		return 0, err
	}
	return messageID, nil
}

func (o *Operations) EditCaption(ctx context.Context, chatID int64, messageID int, caption string, markup *api.InlineKeyboardMarkup) error {
	edit := api.NewEditMessageCaption(chatID, messageID, caption)
	edit.ParseMode = api.ModeHTML
	edit.ReplyMarkup = markup
	return o.call(ctx, "edit caption", func() error {
		_, err := o.bot.Send(edit)
		return err
	})
}

func (o *Operations) EditMessageText(ctx context.Context, chatID int64, messageID int, text string, markup *api.InlineKeyboardMarkup) error {
	edit := api.NewEditMessageText(chatID, messageID, text)
	edit.ParseMode = api.ModeHTML
	edit.ReplyMarkup = markup
	return o.call(ctx, "edit message text", func() error {
		_, err := o.bot.Send(edit)
		return err
	})
}

func (o *Operations) AnswerCallback(ctx context.Context, callbackID, text string) error {
	return o.call(ctx, "answer callback", func() error {
		_, err := o.bot.Request(api.NewCallback(callbackID, text))
		return err
	})
}

// GetChatMember resolves the membership status of a user in a chat.
func (o *Operations) GetChatMember(ctx context.Context, chat ChatRef, userID int64) (api.ChatMember, error) {
	var member api.ChatMember
	err := o.call(ctx, "get chat member", func() error {
		var err error
		member, err = o.bot.GetChatMember(api.GetChatMemberConfig{
			ChatConfigWithUser: api.ChatConfigWithUser{
				UserID:     userID,
				ChatConfig: chat.chatConfig(),
			},
		})
		return err
	})
	if err != nil {
		return api.ChatMember{}, err
	}
	return member, nil
}

// ResolveChatID turns a public chat username into its numeric id.
func (o *Operations) ResolveChatID(ctx context.Context, username string) (int64, error) {
	var chatID int64
	err := o.call(ctx, fmt.Sprintf("get chat @%s", username), func() error {
		chat, err := o.bot.GetChat(api.ChatInfoConfig{
			ChatConfig: api.ChatConfig{
				SuperGroupUsername: "@" + username,
			},
		})
		if err == nil {
			chatID = chat.ID
		}
		return err
	})
	if err != nil {
		return 0, err
	}
	return chatID, nil
}

// SetupBotProfile registers the bot description and command list once at
// startup. Failures are not fatal, the caller only logs them.
func (o *Operations) SetupBotProfile(ctx context.Context, description string, commands []api.BotCommand) error {
	if err := o.call(ctx, "set bot description", func() error {
		_, err := o.bot.Request(api.SetMyDescriptionConfig{Description: description})
		return err
	}); err != nil {
		return err
	}
	return o.call(ctx, "set bot commands", func() error {
		_, err := o.bot.Request(api.NewSetMyCommands(commands...))
		return err
	})
}
