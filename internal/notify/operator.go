package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/awestray/backlay/internal/domain"
)

// ExecCallbackPrefix marks inline-button callback data that triggers an
// execution attempt. The pending ID follows the colon.
const ExecCallbackPrefix = "exec_arb:"

// ExecCallbackData builds the callback payload for an execute button.
func ExecCallbackData(pendingID string) string {
	return ExecCallbackPrefix + pendingID
}

// OperatorHandlers are the actions the operator can trigger from chat. Each
// returns the text to post back.
type OperatorHandlers struct {
	// Execute runs an execution attempt for a registered pending
	// opportunity. domain.ErrNotFound means the registration expired or was
	// already consumed.
	Execute func(ctx context.Context, pendingID string) error

	// Status summarises live system state for /status.
	Status func(ctx context.Context) (string, error)

	// Report renders the daily summary on demand for /report.
	Report func(ctx context.Context) (string, error)
}

// OperatorBot long-polls Telegram for operator commands and inline button
// presses. Only messages from the configured chat are honored.
type OperatorBot struct {
	bot      *tgbotapi.BotAPI
	chatID   int64
	handlers OperatorHandlers
	logger   *slog.Logger
}

// NewOperatorBot wraps an existing bot connection. Reusing the sender's bot
// keeps a single getUpdates consumer per token.
func NewOperatorBot(bot *tgbotapi.BotAPI, chatID int64, handlers OperatorHandlers, logger *slog.Logger) *OperatorBot {
	return &OperatorBot{
		bot:      bot,
		chatID:   chatID,
		handlers: handlers,
		logger:   logger.With(slog.String("component", "operator_bot")),
	}
}

// Run consumes updates until the context is cancelled. Updates are handled
// sequentially so two button presses cannot race each other here; the
// execution lock still guards against other triggers.
func (b *OperatorBot) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := b.bot.GetUpdatesChan(u)

	b.logger.InfoContext(ctx, "operator bot listening",
		slog.String("username", b.bot.Self.UserName),
	)

	for {
		select {
		case <-ctx.Done():
			b.bot.StopReceivingUpdates()
			return ctx.Err()
		case update := <-updates:
			switch {
			case update.CallbackQuery != nil:
				b.handleCallback(ctx, update.CallbackQuery)
			case update.Message != nil:
				b.handleMessage(ctx, update.Message)
			}
		}
	}
}

// handleCallback reacts to an inline button press.
func (b *OperatorBot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	if cb.Message == nil || cb.Message.Chat == nil || cb.Message.Chat.ID != b.chatID {
		b.answerCallback(cb.ID, "Unauthorized")
		return
	}

	if !strings.HasPrefix(cb.Data, ExecCallbackPrefix) {
		b.answerCallback(cb.ID, "")
		return
	}
	b.answerCallback(cb.ID, "Executing...")

	pendingID := strings.TrimPrefix(cb.Data, ExecCallbackPrefix)
	b.logger.InfoContext(ctx, "execute button pressed",
		slog.String("pending_id", pendingID),
	)

	if err := b.handlers.Execute(ctx, pendingID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			b.reply(ctx, "Opportunity expired or already processed.")
			return
		}
		b.logger.ErrorContext(ctx, "execution trigger failed",
			slog.String("pending_id", pendingID),
			slog.String("error", err.Error()),
		)
		b.reply(ctx, fmt.Sprintf("Execution error: %v", err))
	}
}

// handleMessage reacts to text commands. Messages from other chats are
// ignored silently.
func (b *OperatorBot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.Chat == nil || msg.Chat.ID != b.chatID {
		return
	}

	fields := strings.Fields(msg.Text)
	if len(fields) == 0 {
		return
	}

	switch strings.ToLower(fields[0]) {
	case "/status":
		b.runCommand(ctx, "status", b.handlers.Status)
	case "/report":
		b.runCommand(ctx, "report", b.handlers.Report)
	case "/start", "/help":
		b.reply(ctx, "<b>Commands</b>\n/status - live system state\n/report - daily summary on demand")
	}
}

func (b *OperatorBot) runCommand(ctx context.Context, name string, handler func(context.Context) (string, error)) {
	if handler == nil {
		return
	}
	text, err := handler(ctx)
	if err != nil {
		b.logger.ErrorContext(ctx, "command failed",
			slog.String("command", name),
			slog.String("error", err.Error()),
		)
		b.reply(ctx, fmt.Sprintf("Command failed: %v", err))
		return
	}
	b.reply(ctx, text)
}

func (b *OperatorBot) reply(ctx context.Context, text string) {
	msg := tgbotapi.NewMessage(b.chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true
	if _, err := b.bot.Send(msg); err != nil {
		b.logger.ErrorContext(ctx, "reply failed",
			slog.String("error", err.Error()),
		)
	}
}

func (b *OperatorBot) answerCallback(id, text string) {
	cb := tgbotapi.NewCallback(id, text)
	if _, err := b.bot.Request(cb); err != nil {
		b.logger.Error("answer callback failed",
			slog.String("error", err.Error()),
		)
	}
}
