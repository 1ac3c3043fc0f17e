package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Minimum spacing between two messages to the same chat. Telegram throttles
// around 30 messages per minute per chat.
const telegramSendInterval = 2 * time.Second

// TelegramSender delivers notifications via the Telegram Bot API. Messages
// are sent in HTML parse mode with the title in bold.
type TelegramSender struct {
	bot    *tgbotapi.BotAPI
	chatID int64

	mu       sync.Mutex
	lastSend time.Time
}

// NewTelegramSender creates a TelegramSender for the given bot token and chat
// ID, verifying the token against the API.
func NewTelegramSender(token string, chatID int64) (*TelegramSender, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram: create bot: %w", err)
	}
	bot.Debug = false

	if _, err := bot.GetMe(); err != nil {
		return nil, fmt.Errorf("telegram: verify bot: %w", err)
	}

	return &TelegramSender{bot: bot, chatID: chatID}, nil
}

// Bot exposes the underlying API client so the operator bot can share the
// same long-poll connection.
func (t *TelegramSender) Bot() *tgbotapi.BotAPI {
	return t.bot
}

// Send posts a message to the configured chat.
func (t *TelegramSender) Send(ctx context.Context, title, message string) error {
	msg := tgbotapi.NewMessage(t.chatID, fmt.Sprintf("<b>%s</b>\n%s", title, message))
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true
	return t.send(ctx, msg)
}

// SendAction posts a message with a single inline button carrying
// callbackData back to the operator bot when pressed.
func (t *TelegramSender) SendAction(ctx context.Context, title, message, buttonLabel, callbackData string) error {
	msg := tgbotapi.NewMessage(t.chatID, fmt.Sprintf("<b>%s</b>\n%s", title, message))
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(buttonLabel, callbackData),
		),
	)
	return t.send(ctx, msg)
}

// send spaces messages out so the chat never exceeds Telegram's rate limit.
func (t *TelegramSender) send(ctx context.Context, msg tgbotapi.MessageConfig) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if wait := telegramSendInterval - time.Since(t.lastSend); wait > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}

	t.lastSend = time.Now()
	if _, err := t.bot.Send(msg); err != nil {
		return fmt.Errorf("telegram: send message: %w", err)
	}
	return nil
}

// Name returns the sender identifier.
func (t *TelegramSender) Name() string {
	return "telegram"
}

var _ ActionSender = (*TelegramSender)(nil)
