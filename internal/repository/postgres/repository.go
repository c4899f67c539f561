package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/harunnryd/autosend/internal/autosend"
	"github.com/harunnryd/autosend/internal/channel"
	apperrors "github.com/harunnryd/autosend/internal/errors"
	"github.com/harunnryd/autosend/internal/staleness"

	"github.com/google/uuid"
)

const (
	DraftStatusSent        = "sent"
	DraftStatusNeedsReview = "needs_review"

	DirectionInbound  = "inbound"
	DirectionOutbound = "outbound"
)

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) GetDraft(ctx context.Context, draftID string) (*staleness.Draft, error) {
	var d staleness.Draft
	err := r.db.QueryRowContext(ctx,
		`SELECT id, lead_id, status FROM drafts WHERE id = $1`, draftID,
	).Scan(&d.ID, &d.LeadID, &d.Status)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound("draft " + draftID)
	}
	if err != nil {
		return nil, fmt.Errorf("get draft: %w", err)
	}
	return &d, nil
}

// HasInboundAfter compares against the trigger's timestamp on every channel.
// An unknown trigger counts as newer so the send fails closed.
func (r *Repository) HasInboundAfter(ctx context.Context, leadID, triggerMessageID string) (bool, error) {
	return r.hasMessageAfter(ctx, leadID, triggerMessageID, DirectionInbound)
}

func (r *Repository) HasOutboundAfter(ctx context.Context, leadID, triggerMessageID string) (bool, error) {
	return r.hasMessageAfter(ctx, leadID, triggerMessageID, DirectionOutbound)
}

func (r *Repository) hasMessageAfter(ctx context.Context, leadID, triggerMessageID, direction string) (bool, error) {
	var found bool
	err := r.db.QueryRowContext(ctx, `
		SELECT COALESCE((
			SELECT EXISTS (
				SELECT 1 FROM messages m
				WHERE m.lead_id = $1 AND m.direction = $3 AND m.id <> t.id AND m.sent_at > t.sent_at
			)
			FROM messages t WHERE t.id = $2
		), TRUE)
	`, leadID, triggerMessageID, direction).Scan(&found)
	if err != nil {
		return false, fmt.Errorf("check %s messages: %w", direction, err)
	}
	return found, nil
}

func (r *Repository) CampaignMode(ctx context.Context, leadID string) (string, bool, error) {
	var mode string
	err := r.db.QueryRowContext(ctx, `
		SELECT c.automation_mode
		FROM leads l JOIN campaigns c ON c.id = l.campaign_id
		WHERE l.id = $1
	`, leadID).Scan(&mode)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("campaign mode: %w", err)
	}
	return mode, true, nil
}

// LoadOutbound resolves the recipient address for the draft's channel and the
// provider id of the message it answers.
func (r *Repository) LoadOutbound(ctx context.Context, draftID string) (*channel.Outbound, error) {
	var out channel.Outbound
	var ch, email, phone, socialHandle string
	err := r.db.QueryRowContext(ctx, `
		SELECT d.id, d.workspace_id, d.lead_id, d.channel, d.content,
		       COALESCE(t.subject, ''), COALESCE(t.provider_message_id, ''),
		       l.name, l.email, l.phone, l.social_handle
		FROM drafts d
		JOIN leads l ON l.id = d.lead_id
		LEFT JOIN messages t ON t.id = d.trigger_message_id
		WHERE d.id = $1
	`, draftID).Scan(&out.DraftID, &out.WorkspaceID, &out.LeadID, &ch, &out.Content,
		&out.Subject, &out.InReplyTo, &out.RecipientName, &email, &phone, &socialHandle)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound("draft " + draftID)
	}
	if err != nil {
		return nil, fmt.Errorf("load outbound: %w", err)
	}

	out.Channel = autosend.Channel(ch)
	switch out.Channel {
	case autosend.ChannelEmail:
		out.To = email
	case autosend.ChannelSMS:
		out.To = phone
	case autosend.ChannelSocial:
		out.To = socialHandle
	}
	return &out, nil
}

// RecordSent marks the draft sent and appends the outbound message in one
// transaction.
func (r *Repository) RecordSent(ctx context.Context, out channel.Outbound, providerMessageID string, sentAt time.Time) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	messageID := uuid.NewString()
	if _, err := tx.ExecContext(ctx, `
		UPDATE drafts SET status = $2, sent_message_id = $3, sent_at = $4, updated_at = $4
		WHERE id = $1
	`, out.DraftID, DraftStatusSent, messageID, sentAt); err != nil {
		return fmt.Errorf("mark draft sent: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO messages (id, workspace_id, lead_id, direction, channel, subject, body, provider_message_id, draft_id, sent_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, messageID, out.WorkspaceID, out.LeadID, DirectionOutbound, string(out.Channel), out.Subject,
		out.Content, providerMessageID, out.DraftID, sentAt); err != nil {
		return fmt.Errorf("insert outbound message: %w", err)
	}

	return tx.Commit()
}

// UpdateDraftContent rewrites a draft that is still waiting to go out. Sent,
// rejected or reviewed drafts keep the text they were resolved with.
func (r *Repository) UpdateDraftContent(ctx context.Context, draftID, content string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE drafts SET content = $2, updated_at = NOW()
		WHERE id = $1 AND status = 'pending'
	`, draftID, content)
	if err != nil {
		return fmt.Errorf("update draft: %w", err)
	}
	return expectRow(res, "pending draft "+draftID)
}

// MarkDraftNeedsReview only moves pending drafts; a draft already sent or
// reviewed keeps its status.
func (r *Repository) MarkDraftNeedsReview(ctx context.Context, draftID, reason string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE drafts SET status = $2, review_reason = $3, updated_at = NOW()
		WHERE id = $1 AND status = 'pending'
	`, draftID, DraftStatusNeedsReview, reason)
	if err != nil {
		return fmt.Errorf("mark draft needs review: %w", err)
	}
	return nil
}

func expectRow(res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return apperrors.NotFound(what)
	}
	return nil
}
