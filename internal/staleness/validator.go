// Package staleness re-checks, right before a send, that the facts a decision
// relied on still hold.
package staleness

import (
	"context"
	"errors"
	"log/slog"

	apperrors "github.com/harunnryd/autosend/internal/errors"
)

const (
	DraftStatusPending = "pending"
	RequiredMode       = "ai_auto_send"
)

const (
	ReasonDraftNotFound        = "draft_not_found"
	ReasonDraftNotPending      = "draft_not_pending"
	ReasonConversationMismatch = "draft_conversation_mismatch"
	ReasonNewerInbound         = "newer_inbound_exists"
	ReasonOutboundAfterTrigger = "outbound_after_trigger"
	ReasonCampaignNotAutoSend  = "campaign_not_ai_auto_send"
	ReasonNoCampaign           = "no_campaign"
	ReasonValidationError      = "validation_error"
)

// Target identifies the send being validated.
type Target struct {
	WorkspaceID      string
	LeadID           string
	TriggerMessageID string
	DraftID          string
}

type Result struct {
	Proceed bool
	Reason  string
}

type Draft struct {
	ID     string
	LeadID string
	Status string
}

type Repository interface {
	GetDraft(ctx context.Context, draftID string) (*Draft, error)
	// HasInboundAfter reports inbound messages on any channel newer than the trigger.
	HasInboundAfter(ctx context.Context, leadID, triggerMessageID string) (bool, error)
	HasOutboundAfter(ctx context.Context, leadID, triggerMessageID string) (bool, error)
	// CampaignMode returns the lead's campaign automation mode, ok=false without a campaign.
	CampaignMode(ctx context.Context, leadID string) (mode string, ok bool, err error)
}

type Validator struct {
	repo   Repository
	mapper *apperrors.DefaultErrorMapper
}

func NewValidator(repo Repository) *Validator {
	return &Validator{repo: repo, mapper: apperrors.NewDefaultErrorMapper()}
}

// Validate runs the checks in order and stops at the first failure. Repository
// errors fail closed.
func (v *Validator) Validate(ctx context.Context, t Target) Result {
	draft, err := v.repo.GetDraft(ctx, t.DraftID)
	if errors.Is(err, apperrors.ErrNotFound) {
		return skip(ReasonDraftNotFound)
	}
	if err != nil {
		return v.failed(ctx, "get draft", err)
	}
	if draft.Status != DraftStatusPending {
		return skip(ReasonDraftNotPending + ":" + draft.Status)
	}

	if draft.LeadID != t.LeadID {
		slog.Warn("Draft belongs to a different conversation",
			"draft_id", t.DraftID, "draft_lead_id", draft.LeadID, "job_lead_id", t.LeadID)
		return skip(ReasonConversationMismatch)
	}

	newer, err := v.repo.HasInboundAfter(ctx, t.LeadID, t.TriggerMessageID)
	if err != nil {
		return v.failed(ctx, "check inbound", err)
	}
	if newer {
		return skip(ReasonNewerInbound)
	}

	replied, err := v.repo.HasOutboundAfter(ctx, t.LeadID, t.TriggerMessageID)
	if err != nil {
		return v.failed(ctx, "check outbound", err)
	}
	if replied {
		return skip(ReasonOutboundAfterTrigger)
	}

	mode, ok, err := v.repo.CampaignMode(ctx, t.LeadID)
	if err != nil {
		return v.failed(ctx, "campaign mode", err)
	}
	if !ok {
		return skip(ReasonNoCampaign)
	}
	if mode != RequiredMode {
		return skip(ReasonCampaignNotAutoSend)
	}

	return Result{Proceed: true}
}

func (v *Validator) failed(ctx context.Context, step string, err error) Result {
	category := v.mapper.Category(err)
	slog.WarnContext(ctx, "Staleness check failed closed", "step", step, "category", category, "error", err)
	return skip(ReasonValidationError + ":" + category)
}

func skip(reason string) Result {
	return Result{Proceed: false, Reason: reason}
}
