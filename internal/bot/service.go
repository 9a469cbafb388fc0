package bot

import (
	api "github.com/OvyFlash/telegram-bot-api"

	"github.com/temanrandom/menfesbot/internal/config"
	"github.com/temanrandom/menfesbot/internal/db"
	"github.com/temanrandom/menfesbot/internal/telegram"
)

type service struct {
	bot *api.BotAPI
	ops *telegram.Operations
	db  db.Client
}

// NewService creates a new bot service
func NewService(bot *api.BotAPI, ops *telegram.Operations, dbClient db.Client) *service {
	return &service{
		bot: bot,
		ops: ops,
		db:  dbClient,
	}
}

func (s *service) GetBot() *api.BotAPI {
	return s.bot
}

func (s *service) GetOps() *telegram.Operations {
	return s.ops
}

func (s *service) GetDB() db.Client {
	return s.db
}

func (s *service) GetLanguage() string {
	return config.Get().DefaultLanguage
}
