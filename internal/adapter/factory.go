package adapter

import (
	"fmt"
	"os"
	"strings"

	"github.com/harunnryd/autosend/internal/config"
)

// NewOutputAdapter builds the reviewer transport named by transport.
func NewOutputAdapter(transport string, cfg config.AdaptersConfig) (OutputAdapter, error) {
	switch strings.ToLower(strings.TrimSpace(transport)) {
	case "slack":
		if strings.TrimSpace(cfg.Slack.BotToken) == "" && strings.TrimSpace(os.Getenv("SLACK_BOT_TOKEN")) == "" {
			return nil, fmt.Errorf("adapters.slack.bot_token is required when notify.transport is slack")
		}
		return NewSlackAdapter(cfg.Slack.BotToken, cfg.Slack.APIURL), nil

	case "telegram":
		token := strings.TrimSpace(cfg.Telegram.BotToken)
		if token == "" {
			token = strings.TrimSpace(os.Getenv("TELEGRAM_BOT_TOKEN"))
		}
		if token == "" {
			return nil, fmt.Errorf("adapters.telegram.bot_token is required when notify.transport is telegram")
		}
		return NewTelegramAdapter(token, cfg.Telegram.APIURL), nil

	case "null", "":
		return NewNullAdapter("null"), nil

	default:
		return nil, fmt.Errorf("unknown notify transport: %s", transport)
	}
}
