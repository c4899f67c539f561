package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/harunnryd/autosend/internal/autosend"
	apperrors "github.com/harunnryd/autosend/internal/errors"
)

// DefaultTranscriptMessages bounds how much history goes into a SendContext.
const DefaultTranscriptMessages = 20

// ContextLoader assembles a SendContext for a pending draft from the rows
// the pipeline needs.
type ContextLoader struct {
	db                 *sql.DB
	transcriptMessages int
}

func NewContextLoader(db *sql.DB) *ContextLoader {
	return &ContextLoader{db: db, transcriptMessages: DefaultTranscriptMessages}
}

func (l *ContextLoader) LoadSendContext(ctx context.Context, draftID string) (*autosend.SendContext, error) {
	var (
		sc        autosend.SendContext
		ch        string
		wsReview  string
		campaign  campaignRow
		inboundAt time.Time
	)
	err := l.db.QueryRowContext(ctx, `
		SELECT d.id, d.workspace_id, d.lead_id, d.trigger_message_id, d.content, d.channel,
		       COALESCE(w.name, ''), COALESCE(w.reviewer_id, ''),
		       l.name, l.email, l.phone, l.company, l.sentiment, l.auto_reply,
		       t.body, t.subject, t.automated, t.sent_at,
		       c.id, c.name, c.automation_mode, c.confidence_threshold,
		       c.delay_min_seconds, c.delay_max_seconds, c.schedule_policy, c.reviewer_id
		FROM drafts d
		JOIN leads l ON l.id = d.lead_id
		JOIN messages t ON t.id = d.trigger_message_id
		LEFT JOIN workspaces w ON w.id = d.workspace_id
		LEFT JOIN campaigns c ON c.id = l.campaign_id
		WHERE d.id = $1
	`, draftID).Scan(
		&sc.DraftID, &sc.WorkspaceID, &sc.LeadID, &sc.TriggerMessageID, &sc.DraftContent, &ch,
		&sc.WorkspaceLabel, &wsReview,
		&sc.Lead.Name, &sc.Lead.Email, &sc.Lead.Phone, &sc.Lead.Company, &sc.Conversation.Sentiment, &sc.LegacyAutoReply,
		&sc.Conversation.LatestInbound, &sc.Conversation.Subject, &sc.Conversation.AutomatedFlag, &inboundAt,
		&campaign.id, &campaign.name, &campaign.mode, &campaign.threshold,
		&campaign.delayMin, &campaign.delayMax, &campaign.schedulePolicy, &campaign.reviewer,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound("draft " + draftID)
	}
	if err != nil {
		return nil, fmt.Errorf("load send context: %w", err)
	}

	sc.Channel = autosend.Channel(ch)
	sc.Conversation.InboundAt = inboundAt.UTC()
	sc.Campaign = campaign.toCampaign()
	sc.ReviewerID = wsReview
	if campaign.reviewer.Valid && campaign.reviewer.String != "" {
		sc.ReviewerID = campaign.reviewer.String
	}

	transcript, err := l.transcript(ctx, sc.LeadID, inboundAt)
	if err != nil {
		return nil, err
	}
	sc.Conversation.Transcript = transcript
	return &sc, nil
}

// transcript renders the conversation up to and including the trigger,
// oldest first.
func (l *ContextLoader) transcript(ctx context.Context, leadID string, until time.Time) (string, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT direction, body FROM (
			SELECT direction, body, sent_at FROM messages
			WHERE lead_id = $1 AND sent_at <= $2
			ORDER BY sent_at DESC
			LIMIT $3
		) recent ORDER BY sent_at
	`, leadID, until, l.transcriptMessages)
	if err != nil {
		return "", fmt.Errorf("load transcript: %w", err)
	}
	defer rows.Close()

	var b strings.Builder
	for rows.Next() {
		var direction, body string
		if err := rows.Scan(&direction, &body); err != nil {
			return "", fmt.Errorf("scan transcript: %w", err)
		}
		speaker := "Lead"
		if direction == DirectionOutbound {
			speaker = "Us"
		}
		fmt.Fprintf(&b, "%s: %s\n", speaker, strings.TrimSpace(body))
	}
	if err := rows.Err(); err != nil {
		return "", fmt.Errorf("read transcript: %w", err)
	}
	return strings.TrimSpace(b.String()), nil
}

type campaignRow struct {
	id             sql.NullString
	name           sql.NullString
	mode           sql.NullString
	threshold      sql.NullFloat64
	delayMin       sql.NullInt64
	delayMax       sql.NullInt64
	schedulePolicy sql.NullString
	reviewer       sql.NullString
}

func (c campaignRow) toCampaign() *autosend.Campaign {
	if !c.id.Valid {
		return nil
	}
	out := &autosend.Campaign{
		ID:              c.id.String,
		Name:            c.name.String,
		Mode:            autosend.AutomationMode(c.mode.String),
		DelayMinSeconds: int(c.delayMin.Int64),
		DelayMaxSeconds: int(c.delayMax.Int64),
		SchedulePolicy:  c.schedulePolicy.String,
	}
	if c.threshold.Valid {
		v := c.threshold.Float64
		out.Threshold = &v
	}
	return out
}
