package adapter

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/harunnryd/autosend/internal/errors"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

type TelegramAdapter struct {
	token    string
	endpoint string

	mu  sync.Mutex
	bot *tgbotapi.BotAPI
}

// NewTelegramAdapter builds a Telegram sender. The bot is connected on first
// use so a missing network at startup does not stop the daemon.
func NewTelegramAdapter(token, endpoint string) *TelegramAdapter {
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}
	return &TelegramAdapter{token: token, endpoint: endpoint}
}

func (t *TelegramAdapter) Name() string {
	return "telegram"
}

func (t *TelegramAdapter) connect() (*tgbotapi.BotAPI, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.bot != nil {
		return t.bot, nil
	}
	bot, err := tgbotapi.NewBotAPIWithAPIEndpoint(t.token, t.endpoint)
	if err != nil {
		return nil, errors.Wrap(err, "failed to init telegram bot")
	}
	slog.Info("Telegram bot connected", "user", bot.Self.UserName)
	t.bot = bot
	return bot, nil
}

// Send sends a reviewer notification to a Telegram chat
func (t *TelegramAdapter) Send(ctx context.Context, recipient string, msg Message) error {
	chatID, err := strconv.ParseInt(recipient, 10, 64)
	if err != nil {
		return errors.InvalidInput("invalid telegram chat ID: " + err.Error())
	}

	bot, err := t.connect()
	if err != nil {
		return err
	}

	out := tgbotapi.NewMessage(chatID, telegramHTML(msg))
	out.ParseMode = tgbotapi.ModeHTML
	out.DisableWebPagePreview = true
	if msg.LinkURL != "" {
		label := msg.LinkLabel
		if label == "" {
			label = "Open"
		}
		out.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
			tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonURL(label, msg.LinkURL)),
		)
	}

	if _, err := bot.Send(out); err != nil {
		return errors.Wrap(err, "failed to send telegram message")
	}

	slog.Debug("Telegram message sent", "chat_id", recipient)
	return nil
}

func (t *TelegramAdapter) Health(ctx context.Context) error {
	bot, err := t.connect()
	if err != nil {
		return errors.Transient("Telegram bot not initialized")
	}
	if _, err := bot.GetMe(); err != nil {
		return errors.Transient("Telegram connection failed: " + err.Error())
	}
	return nil
}

func telegramHTML(msg Message) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<b>%s</b>\n", html.EscapeString(msg.Title))
	if msg.Summary != "" {
		fmt.Fprintf(&b, "%s\n", html.EscapeString(msg.Summary))
	}
	if len(msg.Fields) > 0 {
		b.WriteString("\n")
		for _, f := range msg.Fields {
			fmt.Fprintf(&b, "<b>%s:</b> %s\n", html.EscapeString(f.Label), html.EscapeString(f.Value))
		}
	}
	if msg.Quote != "" {
		fmt.Fprintf(&b, "\n<b>Latest inbound</b>\n<blockquote>%s</blockquote>\n", html.EscapeString(msg.Quote))
	}
	if msg.Preview != "" {
		fmt.Fprintf(&b, "\n<b>Draft</b>\n<blockquote>%s</blockquote>\n", html.EscapeString(msg.Preview))
	}
	return strings.TrimSpace(b.String())
}
