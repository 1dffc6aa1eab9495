package telegram

import (
	"context"
	"fmt"
	"strings"
	"time"

	"co2exporter/v0/pkg/co2"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// replyTimeout bounds how long a /co2 command waits for the worker.
const replyTimeout = 5 * time.Second

type BotCommand struct {
	Description   string
	MethodHandler func(context.Context, *tgbotapi.Message) tgbotapi.Chattable
}

type Bot struct {
	api          *tgbotapi.BotAPI
	rx           *co2.Receiver
	allowedChats map[int64]bool
	commands     map[string]BotCommand
	logger       *zap.Logger
}

func newBot(api *tgbotapi.BotAPI, rx *co2.Receiver, allowedChats []int64, logger *zap.Logger) *Bot {
	b := &Bot{
		api:    api,
		rx:     rx,
		logger: logger,
	}
	if len(allowedChats) > 0 {
		b.allowedChats = make(map[int64]bool, len(allowedChats))
		for _, id := range allowedChats {
			b.allowedChats[id] = true
		}
	}
	b.setupCommands()
	return b
}

// Sets up the command map with supported commands.
func (b *Bot) setupCommands() {
	b.commands = map[string]BotCommand{
		"help": {
			Description: "Prints help menu",
			MethodHandler: func(_ context.Context, msg *tgbotapi.Message) tgbotapi.Chattable {
				return tgbotapi.NewMessage(msg.Chat.ID, b.helpText())
			},
		},
		"co2": {
			Description: "Measures the current CO2 concentration",
			MethodHandler: func(ctx context.Context, msg *tgbotapi.Message) tgbotapi.Chattable {
				ppm, err := b.measure(ctx)
				if err != nil {
					return tgbotapi.NewMessage(msg.Chat.ID, fmt.Sprintf("Failed to read CO2: %v", err))
				}
				return tgbotapi.NewMessage(msg.Chat.ID, fmt.Sprintf("CO2: %d ppm", ppm))
			},
		},
	}
}

func (b *Bot) helpText() string {
	return "Bot Commands are prefixed with '/'. Supported Commands:\n" +
		"/co2 - " + b.commands["co2"].Description + "\n" +
		"/help - " + b.commands["help"].Description
}

func (b *Bot) measure(ctx context.Context) (uint16, error) {
	ctx, cancel := context.WithTimeout(ctx, replyTimeout)
	defer cancel()

	rx := b.rx.Clone()
	defer rx.Close()

	return co2.Request(ctx, rx)
}

// HandleMessage returns the replies for msg. Messages which are not commands
// and messages from chats outside the allow list get no reply.
func (b *Bot) HandleMessage(ctx context.Context, msg *tgbotapi.Message) []tgbotapi.Chattable {
	if msg == nil || msg.Chat == nil || !strings.HasPrefix(msg.Text, "/") {
		return nil
	}
	if b.allowedChats != nil && !b.allowedChats[msg.Chat.ID] {
		b.logger.Warn("ignoring message from chat outside the allow list", zap.Int64("chat", msg.Chat.ID))
		return nil
	}

	// Commands addressed in group chats carry a "@botname" suffix.
	userCmd := strings.TrimSpace(msg.Text[1:])
	userCmd, _, _ = strings.Cut(userCmd, "@")
	b.logger.Debug("handling user command", zap.String("command", userCmd), zap.Int64("chat", msg.Chat.ID))

	if botCmd, ok := b.commands[userCmd]; ok {
		return []tgbotapi.Chattable{botCmd.MethodHandler(ctx, msg)}
	}

	// Unknown command.
	return []tgbotapi.Chattable{
		tgbotapi.NewMessage(msg.Chat.ID, fmt.Sprintf("Unknown command '%s'", userCmd)),
		b.commands["help"].MethodHandler(ctx, msg),
	}
}

// Run answers updates until ctx is done.
func (b *Bot) Run(ctx context.Context) {
	b.logger.Info("starting bot")

	// Listen.
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)
	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			b.logger.Info("bot stopped")
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			if update.Message == nil {
				continue
			}
			for _, reply := range b.HandleMessage(ctx, update.Message) {
				if _, err := b.api.Send(reply); err != nil {
					b.logger.Error("failed to send reply", zap.Error(err))
				}
			}
		}
	}
}
