package autosend

import (
	"strings"
	"unicode/utf8"
)

// Escalation is the context a reviewer needs to act on a held draft.
type Escalation struct {
	DraftID       string    `json:"draft_id"`
	LeadID        string    `json:"lead_id"`
	WorkspaceID   string    `json:"workspace_id"`
	LeadName      string    `json:"lead_name,omitempty"`
	LeadContact   string    `json:"lead_contact,omitempty"`
	Label         string    `json:"label"`
	Channel       Channel   `json:"channel"`
	Sentiment     string    `json:"sentiment,omitempty"`
	Confidence    float64   `json:"confidence"`
	Threshold     float64   `json:"threshold"`
	Reason        string    `json:"reason"`
	HardBlock     HardBlock `json:"hard_block,omitempty"`
	LatestInbound string    `json:"latest_inbound"`
	DraftPreview  string    `json:"draft_preview,omitempty"`
	DashboardURL  string    `json:"dashboard_url"`
}

func EscalationDedupeKey(draftID string) string {
	return EscalationKeyPrefix + draftID
}

func buildEscalation(sc SendContext, draft string, v SafetyVerdict, threshold float64, links LinkBuilder, inboundChars, previewChars int) Escalation {
	e := Escalation{
		DraftID:       sc.DraftID,
		LeadID:        sc.LeadID,
		WorkspaceID:   sc.WorkspaceID,
		LeadName:      sc.Lead.Name,
		LeadContact:   sc.Lead.Contact(),
		Label:         sc.label(),
		Channel:       sc.Channel,
		Sentiment:     sc.Conversation.Sentiment,
		Confidence:    v.Confidence,
		Threshold:     threshold,
		Reason:        v.Reason,
		HardBlock:     v.HardBlock,
		LatestInbound: Truncate(sc.Conversation.LatestInbound, inboundChars),
	}
	if e.Reason == "" {
		e.Reason = ReasonUnknown
	}
	if sc.IncludeDraftPreview {
		e.DraftPreview = Truncate(draft, previewChars)
	}
	if links != nil {
		e.DashboardURL = links.DashboardLink(sc.LeadID)
	}
	return e
}

// Truncate shortens s to at most limit runes, marking the cut with "...".
func Truncate(s string, limit int) string {
	s = strings.TrimSpace(s)
	if limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return s
	}
	if limit <= 3 {
		return string([]rune(s)[:limit])
	}
	return strings.TrimSpace(string([]rune(s)[:limit-3])) + "..."
}
