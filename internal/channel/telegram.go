package channel

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/seneschal/seneschal/internal/bus"
	"github.com/seneschal/seneschal/internal/config"
)

// Telegram messages cap at 4096 characters; stay under it.
const telegramMaxLen = 4000

// Telegram runs a Telegram bot via long polling.
type Telegram struct {
	cfg config.TelegramConfig
	bus *bus.MessageBus
	bot *tgbotapi.BotAPI
}

// NewTelegram creates a Telegram channel.
func NewTelegram(cfg config.TelegramConfig, b *bus.MessageBus) *Telegram {
	return &Telegram{cfg: cfg, bus: b}
}

func (t *Telegram) Name() string { return "telegram" }

// Start connects the bot and polls for updates until ctx is cancelled.
func (t *Telegram) Start(ctx context.Context) error {
	if t.cfg.Token == "" {
		return fmt.Errorf("telegram: bot token not configured")
	}
	bot, err := tgbotapi.NewBotAPI(t.cfg.Token)
	if err != nil {
		return fmt.Errorf("telegram: create bot: %w", err)
	}
	t.bot = bot
	slog.Info("telegram: connected", "username", bot.Self.UserName)

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := bot.GetUpdatesChan(u)

	for {
		select {
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			t.handleUpdate(update)
		case <-ctx.Done():
			bot.StopReceivingUpdates()
			return ctx.Err()
		}
	}
}

func (t *Telegram) handleUpdate(update tgbotapi.Update) {
	msg := update.Message
	if msg == nil || msg.From == nil || msg.Text == "" {
		return
	}

	senderID := strconv.FormatInt(msg.From.ID, 10)
	if !allowed(t.cfg.AllowFrom, senderID, msg.From.UserName) {
		slog.Warn("telegram: access denied", "sender", senderID, "username", msg.From.UserName)
		return
	}

	chatID := strconv.FormatInt(msg.Chat.ID, 10)
	t.bus.PublishInbound(bus.NewInboundMessage("telegram", senderID, chatID, msg.Text))
}

// Send delivers a final reply, chunked to the platform limit. Token frames
// are dropped; Telegram has no sensible rendering for partial output.
func (t *Telegram) Send(msg bus.OutboundMessage) error {
	if msg.Token || t.bot == nil {
		return nil
	}
	chatID, err := strconv.ParseInt(msg.ChatID, 10, 64)
	if err != nil {
		return fmt.Errorf("telegram: bad chat id %q: %w", msg.ChatID, err)
	}
	for _, chunk := range splitMessage(msg.Content, telegramMaxLen) {
		if _, err := t.bot.Send(tgbotapi.NewMessage(chatID, chunk)); err != nil {
			return fmt.Errorf("telegram: send: %w", err)
		}
	}
	return nil
}
