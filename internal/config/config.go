package config

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/sethvargo/go-envconfig"
	log "github.com/sirupsen/logrus"
)

// SubmissionFlow selects how accepted videos are stamped before they reach
// the channel. The two flows are mutually exclusive per deployment.
type SubmissionFlow string

const (
	// FlowAttributed rewrites the caption with the sender handle and a
	// provenance tag. No reaction buttons.
	FlowAttributed SubmissionFlow = "attributed"
	// FlowAnonymous omits the sender identity, seeds a zero reaction tally
	// and attaches like/dislike buttons.
	FlowAnonymous SubmissionFlow = "anonymous"
)

type (
	Config struct {
		TelegramAPIToken string   `env:"TOKEN,required"`
		BotUsername      string   `env:"BOT_USERNAME,default=TemanRandomMenfes_bot"`
		DefaultLanguage  string   `env:"LANG,default=id"`
		EnabledHandlers  []string `env:"HANDLERS,default=admin,relay,reactions"`
		LogLevel         int      `env:"LOG_LEVEL,default=4"`
		DotPath          string   `env:"DOT_PATH,default=~/.menfesbot"`
		Storage          string   `env:"STORAGE,default=sqlite"`
		MetricsAddr      string   `env:"METRICS_ADDR,default=:2112"`

		AdminID int64 `env:"ADMIN_ID,required"`

		Relay Relay
	}

	Relay struct {
		ChannelUsername string         `env:"CHANNEL_USERNAME,required"`
		GroupUsername   string         `env:"GROUP_USERNAME,required"`
		Flow            SubmissionFlow `env:"FLOW,default=attributed"`

		MaxVideoDuration time.Duration `env:"MAX_VIDEO_DURATION,default=30s"`
		Cooldown         time.Duration `env:"COOLDOWN,default=3m"`
	}
)

var (
	once         sync.Once
	globalConfig = &Config{}
	globalErr    error
)

func Load() (Config, error) {
	once.Do(func() {
		cfg := &Config{}
		envcfg := envconfig.Config{
			Lookuper: envconfig.PrefixLookuper("MENFES_", envconfig.OsLookuper()),
			Target:   cfg,
		}
		if err := envconfig.ProcessWith(context.Background(), &envcfg); err != nil {
			globalErr = fmt.Errorf("process env config: %w", err)
			return
		}
		dotPath, err := homedir.Expand(cfg.DotPath)
		if err != nil {
			globalErr = fmt.Errorf("expand dot path: %w", err)
			return
		}
		cfg.DotPath = dotPath
		cfg.Relay.ChannelUsername = strings.TrimPrefix(cfg.Relay.ChannelUsername, "@")
		cfg.Relay.GroupUsername = strings.TrimPrefix(cfg.Relay.GroupUsername, "@")
		log.Traceln("loaded config")
		globalConfig = cfg
	})
	return *globalConfig, globalErr
}

func Get() Config {
	cfg, err := Load()
	if err != nil {
		log.WithField("error", err.Error()).Error("cant load config")
	}
	return cfg
}
