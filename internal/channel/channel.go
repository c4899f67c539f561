// Package channel delivers approved drafts over email, SMS and social
// channels.
package channel

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/harunnryd/autosend/internal/autosend"
	"github.com/harunnryd/autosend/internal/errors"
)

// Outbound is a draft resolved into everything a channel needs to send it.
type Outbound struct {
	DraftID       string
	WorkspaceID   string
	LeadID        string
	Channel       autosend.Channel
	Content       string
	Subject       string
	To            string
	RecipientName string
	// InReplyTo is the provider id of the message being answered.
	InReplyTo string
}

// DraftSource loads drafts and records what happened to them.
type DraftSource interface {
	LoadOutbound(ctx context.Context, draftID string) (*Outbound, error)
	RecordSent(ctx context.Context, out Outbound, providerMessageID string, sentAt time.Time) error
}

// Sender delivers one message and returns the provider's message id.
type Sender interface {
	Send(ctx context.Context, out Outbound) (string, error)
}

// Dispatcher routes drafts to the sender for their channel.
type Dispatcher struct {
	drafts  DraftSource
	senders map[autosend.Channel]Sender
	now     func() time.Time
}

func NewDispatcher(drafts DraftSource, senders map[autosend.Channel]Sender) *Dispatcher {
	return &Dispatcher{drafts: drafts, senders: senders, now: time.Now}
}

// Send loads the draft by id and sends its current content. Once the provider
// accepts the message the result is a success even if recording it fails, so
// the message is never sent twice.
func (d *Dispatcher) Send(ctx context.Context, draftID string) (autosend.SendResult, error) {
	out, err := d.drafts.LoadOutbound(ctx, draftID)
	if err != nil {
		return autosend.SendResult{}, fmt.Errorf("load draft %s: %w", draftID, err)
	}
	if strings.TrimSpace(out.Content) == "" {
		return autosend.SendResult{Error: "draft_empty"}, errors.InvalidInput("draft " + draftID + " has no content")
	}

	sender, ok := d.senders[out.Channel]
	if !ok || sender == nil {
		return autosend.SendResult{Error: "channel_not_configured:" + string(out.Channel)}, nil
	}

	messageID, err := sender.Send(ctx, *out)
	if err != nil {
		slog.WarnContext(ctx, "Channel send failed", "draft_id", draftID, "channel", out.Channel, "error", err)
		return autosend.SendResult{Error: err.Error()}, nil
	}

	if err := d.drafts.RecordSent(context.WithoutCancel(ctx), *out, messageID, d.now().UTC()); err != nil {
		slog.ErrorContext(ctx, "Sent message could not be recorded", "draft_id", draftID, "message_id", messageID, "error", err)
	}

	slog.InfoContext(ctx, "Draft sent", "draft_id", draftID, "channel", out.Channel, "message_id", messageID)
	return autosend.SendResult{Success: true, MessageID: messageID}, nil
}
