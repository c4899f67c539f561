// Package notify delivers reviewer escalations with at-most-once semantics
// per dedupe key.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/harunnryd/autosend/internal/adapter"
	"github.com/harunnryd/autosend/internal/autosend"
	"github.com/harunnryd/autosend/internal/idempotency"
)

const DefaultDedupeTTL = 30 * 24 * time.Hour

// Service renders escalations and hands them to a transport. A key that was
// already notified is reported as a successful, deduped send.
type Service struct {
	transport adapter.OutputAdapter
	dedupe    idempotency.Store
	ttl       time.Duration
}

func NewService(transport adapter.OutputAdapter, dedupe idempotency.Store, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = DefaultDedupeTTL
	}
	return &Service{transport: transport, dedupe: dedupe, ttl: ttl}
}

func (s *Service) Notify(ctx context.Context, recipient, dedupeKey string, e autosend.Escalation) (autosend.NotifyResult, error) {
	if strings.TrimSpace(recipient) == "" {
		return autosend.NotifyResult{Error: "no reviewer configured"}, nil
	}

	if s.dedupe != nil && dedupeKey != "" {
		claimed, err := s.dedupe.Claim(ctx, dedupeKey, s.ttl)
		if err != nil {
			return autosend.NotifyResult{Error: err.Error()}, fmt.Errorf("dedupe claim: %w", err)
		}
		if !claimed {
			slog.InfoContext(ctx, "Reviewer already notified", "dedupe_key", dedupeKey)
			return autosend.NotifyResult{Success: true, Deduped: true}, nil
		}
	}

	if err := s.transport.Send(ctx, recipient, Render(e)); err != nil {
		if s.dedupe != nil && dedupeKey != "" {
			if rerr := s.dedupe.Release(context.WithoutCancel(ctx), dedupeKey); rerr != nil {
				slog.WarnContext(ctx, "Failed to release dedupe key", "dedupe_key", dedupeKey, "error", rerr)
			}
		}
		return autosend.NotifyResult{Error: err.Error()}, err
	}

	slog.InfoContext(ctx, "Reviewer notified", "transport", s.transport.Name(), "draft_id", e.DraftID)
	return autosend.NotifyResult{Success: true}, nil
}

// Render turns an escalation into a transport-neutral message.
func Render(e autosend.Escalation) adapter.Message {
	who := e.LeadName
	if who == "" {
		who = e.LeadContact
	}
	if who == "" {
		who = e.LeadID
	}

	msg := adapter.Message{
		Title:     "Reply needs review: " + who,
		Quote:     e.LatestInbound,
		Preview:   e.DraftPreview,
		LinkURL:   e.DashboardURL,
		LinkLabel: "Open conversation",
	}

	if e.HardBlock != autosend.HardBlockNone {
		msg.Summary = fmt.Sprintf("Blocked (%s): %s", e.HardBlock, e.Reason)
	} else {
		msg.Summary = fmt.Sprintf("Confidence %.2f is below the %.2f threshold: %s", e.Confidence, e.Threshold, e.Reason)
	}

	msg.Fields = append(msg.Fields, adapter.Field{Label: "Campaign", Value: e.Label})
	if e.LeadContact != "" && e.LeadContact != who {
		msg.Fields = append(msg.Fields, adapter.Field{Label: "Contact", Value: e.LeadContact})
	}
	msg.Fields = append(msg.Fields, adapter.Field{Label: "Channel", Value: string(e.Channel)})
	if e.Sentiment != "" {
		msg.Fields = append(msg.Fields, adapter.Field{Label: "Sentiment", Value: e.Sentiment})
	}

	return msg
}

// Links builds dashboard URLs for leads.
type Links struct {
	base string
}

func NewLinks(baseURL string) *Links {
	return &Links{base: strings.TrimSuffix(strings.TrimSpace(baseURL), "/")}
}

func (l *Links) DashboardLink(leadID string) string {
	if l.base == "" || leadID == "" {
		return ""
	}
	return l.base + "/leads/" + url.PathEscape(leadID)
}
