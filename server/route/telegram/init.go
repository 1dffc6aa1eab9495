package telegram

import (
	"fmt"

	"co2exporter/v0/internal/logger"
	"co2exporter/v0/pkg/co2"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// Init authorizes the bot against the Telegram API. rx stays owned by the
// caller; the bot works on clones of it.
func Init(token string, rx *co2.Receiver, allowedChats []int64, log *zap.Logger) (*Bot, error) {
	if token == "" {
		return nil, fmt.Errorf("telegram token cannot be empty")
	}

	// Create a telegram bot api instance.
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create a new bot api: %v", err)
	}
	log = logger.OrNop(log).With(zap.String("bot", api.Self.UserName))
	log.Info("authorized on telegram account")

	return newBot(api, rx, allowedChats, log), nil
}
