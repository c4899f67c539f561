package autosend

import "time"

type Channel string

const (
	ChannelEmail  Channel = "email"
	ChannelSMS    Channel = "sms"
	ChannelSocial Channel = "social"
)

func (c Channel) Valid() bool {
	switch c {
	case ChannelEmail, ChannelSMS, ChannelSocial:
		return true
	}
	return false
}

// AutomationMode is the campaign-level automation setting.
type AutomationMode string

const (
	AutomationManual   AutomationMode = "manual"
	AutomationAssisted AutomationMode = "ai_assisted"
	AutomationFullAuto AutomationMode = "ai_auto_send"
)

const (
	DefaultJobType      = "auto_send"
	EscalationKeyPrefix = "autosend_review:"
)

// SendContext is everything a single decision needs. It is built per inbound
// event and never mutated by the executor.
type SendContext struct {
	WorkspaceID      string       `json:"workspace_id"`
	WorkspaceLabel   string       `json:"workspace_label,omitempty"`
	LeadID           string       `json:"lead_id"`
	TriggerMessageID string       `json:"trigger_message_id"`
	DraftID          string       `json:"draft_id"`
	DraftContent     string       `json:"draft_content"`
	Channel          Channel      `json:"channel"`
	Conversation     Conversation `json:"conversation"`
	Lead             Lead         `json:"lead"`
	Campaign         *Campaign    `json:"campaign,omitempty"`

	// LegacyAutoReply is the per-conversation flag used when no campaign is set.
	LegacyAutoReply bool `json:"legacy_auto_reply"`

	ValidateImmediateSend bool   `json:"validate_immediate_send"`
	IncludeDraftPreview   bool   `json:"include_draft_preview"`
	ReviewerID            string `json:"reviewer_id,omitempty"`
}

type Conversation struct {
	LatestInbound string    `json:"latest_inbound"`
	Subject       string    `json:"subject,omitempty"`
	Transcript    string    `json:"transcript,omitempty"`
	Sentiment     string    `json:"sentiment,omitempty"`
	AutomatedFlag bool      `json:"automated_reply"`
	InboundAt     time.Time `json:"inbound_at"`
}

type Lead struct {
	Name    string `json:"name,omitempty"`
	Email   string `json:"email,omitempty"`
	Phone   string `json:"phone,omitempty"`
	Company string `json:"company,omitempty"`
}

// Contact returns the most specific way to reach the lead.
func (l Lead) Contact() string {
	switch {
	case l.Email != "":
		return l.Email
	case l.Phone != "":
		return l.Phone
	default:
		return ""
	}
}

type Campaign struct {
	ID              string         `json:"id"`
	Name            string         `json:"name,omitempty"`
	Mode            AutomationMode `json:"automation_mode"`
	Threshold       *float64       `json:"confidence_threshold,omitempty"`
	DelayMinSeconds int            `json:"delay_min_seconds,omitempty"`
	DelayMaxSeconds int            `json:"delay_max_seconds,omitempty"`
	SchedulePolicy  string         `json:"schedule_policy,omitempty"`
}

func (sc SendContext) label() string {
	switch {
	case sc.Campaign != nil && sc.Campaign.Name != "":
		return sc.Campaign.Name
	case sc.WorkspaceLabel != "":
		return sc.WorkspaceLabel
	default:
		return sc.WorkspaceID
	}
}
