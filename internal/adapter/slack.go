package adapter

import (
	"context"
	"log/slog"
	"os"
	"strings"

	"github.com/harunnryd/autosend/internal/errors"

	"github.com/slack-go/slack"
)

type SlackAdapter struct {
	client *slack.Client
}

// NewSlackAdapter builds a Slack sender. apiURL overrides the Slack Web API
// endpoint and is empty in production.
func NewSlackAdapter(botToken, apiURL string) *SlackAdapter {
	if botToken == "" {
		botToken = os.Getenv("SLACK_BOT_TOKEN")
	}
	var opts []slack.Option
	if apiURL != "" {
		opts = append(opts, slack.OptionAPIURL(strings.TrimSuffix(apiURL, "/")+"/"))
	}
	return &SlackAdapter{client: slack.New(botToken, opts...)}
}

func (s *SlackAdapter) Name() string {
	return "slack"
}

func (s *SlackAdapter) Send(ctx context.Context, recipient string, msg Message) error {
	if recipient == "" {
		return errors.InvalidInput("slack recipient is required")
	}

	_, _, err := s.client.PostMessageContext(ctx, recipient,
		slack.MsgOptionText(fallbackText(msg), false),
		slack.MsgOptionBlocks(slackBlocks(msg)...),
	)
	if err != nil {
		return errors.Wrap(err, "failed to send Slack message")
	}
	slog.Debug("Slack message sent", "channel", recipient)
	return nil
}

func (s *SlackAdapter) Health(ctx context.Context) error {
	if s.client == nil {
		return errors.Transient("Slack client not initialized")
	}
	if _, err := s.client.AuthTestContext(ctx); err != nil {
		return errors.Transient("Slack connection failed")
	}
	return nil
}

func slackBlocks(msg Message) []slack.Block {
	blocks := []slack.Block{
		slack.NewHeaderBlock(slack.NewTextBlockObject(slack.PlainTextType, msg.Title, false, false)),
	}
	if msg.Summary != "" {
		blocks = append(blocks, slack.NewSectionBlock(slack.NewTextBlockObject(slack.MarkdownType, msg.Summary, false, false), nil, nil))
	}

	if len(msg.Fields) > 0 {
		fields := make([]*slack.TextBlockObject, 0, len(msg.Fields))
		for _, f := range msg.Fields {
			fields = append(fields, slack.NewTextBlockObject(slack.MarkdownType, "*"+f.Label+"*\n"+f.Value, false, false))
		}
		blocks = append(blocks, slack.NewSectionBlock(nil, fields, nil))
	}

	if msg.Quote != "" {
		blocks = append(blocks, slack.NewSectionBlock(slack.NewTextBlockObject(slack.MarkdownType, "*Latest inbound*\n"+quote(msg.Quote), false, false), nil, nil))
	}
	if msg.Preview != "" {
		blocks = append(blocks, slack.NewSectionBlock(slack.NewTextBlockObject(slack.MarkdownType, "*Draft*\n"+quote(msg.Preview), false, false), nil, nil))
	}

	if msg.LinkURL != "" {
		label := msg.LinkLabel
		if label == "" {
			label = "Open"
		}
		button := slack.NewButtonBlockElement("open_dashboard", "open", slack.NewTextBlockObject(slack.PlainTextType, label, false, false))
		button.URL = msg.LinkURL
		button.Style = slack.StylePrimary
		blocks = append(blocks, slack.NewActionBlock("review_actions", button))
	}

	return blocks
}

func quote(s string) string {
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = "> " + l
	}
	return strings.Join(lines, "\n")
}

// fallbackText is what notifications and clients without block support show.
func fallbackText(msg Message) string {
	var b strings.Builder
	b.WriteString(msg.Title)
	if msg.Summary != "" {
		b.WriteString("\n")
		b.WriteString(msg.Summary)
	}
	if msg.LinkURL != "" {
		b.WriteString("\n")
		b.WriteString(msg.LinkURL)
	}
	return b.String()
}
