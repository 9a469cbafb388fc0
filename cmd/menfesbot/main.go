package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	api "github.com/OvyFlash/telegram-bot-api"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/temanrandom/menfesbot/internal/audit"
	"github.com/temanrandom/menfesbot/internal/bot"
	"github.com/temanrandom/menfesbot/internal/config"
	"github.com/temanrandom/menfesbot/internal/db"
	"github.com/temanrandom/menfesbot/internal/db/flatfile"
	"github.com/temanrandom/menfesbot/internal/db/sqlite"
	"github.com/temanrandom/menfesbot/internal/handlers"
	"github.com/temanrandom/menfesbot/internal/i18n"
	"github.com/temanrandom/menfesbot/internal/infra"
	"github.com/temanrandom/menfesbot/internal/lifecycle"
	"github.com/temanrandom/menfesbot/internal/membership"
	"github.com/temanrandom/menfesbot/internal/observability"
	"github.com/temanrandom/menfesbot/internal/ratelimit"
	"github.com/temanrandom/menfesbot/internal/telegram"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatalln("cant load config")
	}
	log.SetFormatter(&config.MbFormatter{})
	log.SetOutput(os.Stdout)
	log.SetLevel(log.Level(cfg.LogLevel))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := observability.Init(ctx, cfg.MetricsAddr); err != nil {
		log.WithError(err).Fatalln("cant initialize observability")
	}

	dbClient, err := openStorage(ctx, cfg)
	if err != nil {
		log.WithError(err).Fatalln("cant open storage")
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			log.WithError(err).Errorln("cant close storage")
		}
	}()

	botAPI, err := api.NewBotAPI(cfg.TelegramAPIToken)
	if err != nil {
		log.WithError(err).Errorln("cant initialize bot api")
		time.Sleep(1 * time.Second)
		log.Fatalln("exiting")
	}
	if log.Level(cfg.LogLevel) == log.TraceLevel {
		botAPI.Debug = true
	}
	defer botAPI.StopReceivingUpdates()

	ops := telegram.NewOperations(botAPI)
	resolver := membership.NewResolver(ops, dbClient, cfg.Relay.ChannelUsername, cfg.Relay.GroupUsername)
	notifier := audit.NewNotifier(ops, cfg.AdminID)

	runtime := lifecycle.NewRuntime(resolver, notifier)
	if err := runtime.Start(ctx); err != nil {
		log.WithError(err).Fatalln("cant start components")
	}
	defer func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer stopCancel()
		if err := runtime.Stop(stopCtx); err != nil {
			log.WithError(err).Errorln("cant stop components")
		}
	}()

	service := bot.NewService(botAPI, ops, dbClient)
	gate := membership.NewGate(ops)
	limiter := ratelimit.NewLimiter(cfg.Relay.Cooldown)

	bot.RegisterUpdateHandler("admin", handlers.NewAdmin(service, ops, notifier, cfg.AdminID))
	bot.RegisterUpdateHandler("relay", handlers.NewRelay(service, ops, gate, resolver, limiter, notifier, cfg.Relay, cfg.BotUsername))
	bot.RegisterUpdateHandler("reactions", handlers.NewReactions(service, ops, notifier))

	if err := ops.SetupBotProfile(ctx, botDescription(cfg), botCommands(cfg)); err != nil {
		log.WithError(err).Errorln("cant register bot profile")
	}

	updateConfig := api.NewUpdate(0)
	updateConfig.Timeout = 60
	updateProcessor := bot.NewUpdateProcessor(service)
	updateChan, errorChan := bot.GetUpdatesChans(ctx, botAPI, updateConfig)

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		for {
			select {
			case err := <-errorChan:
				return fmt.Errorf("bot api get updates: %w", err)
			case update, ok := <-updateChan:
				if !ok {
					return nil
				}
				u := update
				go infra.GoRecoverable(1, fmt.Sprintf("update_%d", u.UpdateID), func() {
					if err := updateProcessor.Process(gCtx, &u); err != nil {
						log.WithError(err).Errorln("cant process update")
					}
				})
			case <-gCtx.Done():
				return gCtx.Err()
			}
		}
	})
	g.Go(func() error {
		select {
		case <-infra.MonitorExecutable(gCtx):
			return fmt.Errorf("executable file was modified")
		case <-gCtx.Done():
			return gCtx.Err()
		}
	})

	log.Infoln("menfes bot is running")
	if err := g.Wait(); err != nil && ctx.Err() == nil {
		log.WithError(err).Errorln("bot stopped")
	}
}

func openStorage(ctx context.Context, cfg config.Config) (db.Client, error) {
	workDir := infra.GetWorkDir()
	switch cfg.Storage {
	case "file":
		return flatfile.NewFlatfileClient(workDir)
	case "sqlite":
		return sqlite.NewSQLiteClient(ctx, workDir, "bot.db")
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage)
	}
}

func botDescription(cfg config.Config) string {
	lang := cfg.DefaultLanguage
	maxSeconds := int(cfg.Relay.MaxVideoDuration.Seconds())
	return "✨ Menfes Video Bot ✨\n\n" +
		i18n.Get("Send videos to the channel. Rules:", lang) + "\n" +
		"• " + fmt.Sprintf(i18n.Get("Maximum %d seconds", lang), maxSeconds) + "\n" +
		"• " + i18n.Get("Must carry a caption/message", lang) + "\n" +
		"• " + i18n.Get("Must have a Telegram username", lang) + "\n" +
		"• " + fmt.Sprintf(i18n.Get("Submission interval is %d minutes", lang), int(cfg.Relay.Cooldown.Minutes())) + "\n" +
		"• " + i18n.Get("Must not contain sensitive content", lang) + "\n\n" +
		i18n.Get("How to use: send a video with a caption as the message.", lang)
}

func botCommands(cfg config.Config) []api.BotCommand {
	lang := cfg.DefaultLanguage
	return []api.BotCommand{
		{Command: "start", Description: i18n.Get("Start the bot and verify membership", lang)},
		{Command: "help", Description: i18n.Get("Bot usage help", lang)},
		{Command: "ban", Description: i18n.Get("Ban a user from the bot (admin only)", lang)},
	}
}
