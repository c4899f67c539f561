package autosend

import (
	"context"
	"time"

	"github.com/harunnryd/autosend/internal/jobs"
	"github.com/harunnryd/autosend/internal/staleness"
)

// Evaluator scores a candidate reply against the conversation.
type Evaluator interface {
	Evaluate(ctx context.Context, sc SendContext, draft string) (SafetyVerdict, error)
}

// Revision is a rewritten draft together with its fresh verdict.
type Revision struct {
	Draft   string
	Verdict SafetyVerdict
}

// Reviser rewrites a draft once and re-evaluates it. A nil Revision means the
// reviser declined.
type Reviser interface {
	Revise(ctx context.Context, sc SendContext, draft string, verdict SafetyVerdict) (*Revision, error)
}

type GateDecision struct {
	ShouldReply bool
	Reason      string
}

// ReplyGate is the coarse yes/no check used by the legacy always-on path.
type ReplyGate interface {
	ShouldReply(ctx context.Context, sc SendContext) (GateDecision, error)
}

type SendResult struct {
	Success   bool
	MessageID string
	Error     string
}

// Sender dispatches a stored draft through its channel.
type Sender interface {
	Send(ctx context.Context, draftID string) (SendResult, error)
}

type JobStore interface {
	Create(ctx context.Context, job jobs.Job) error
	Get(ctx context.Context, id string) (*jobs.Job, error)
	Claim(ctx context.Context, id string, now time.Time, lease time.Duration) (*jobs.Job, error)
	Complete(ctx context.Context, id string, status jobs.Status, detail string) error
	Release(ctx context.Context, id string, detail string) error
}

type Validator interface {
	Validate(ctx context.Context, t staleness.Target) staleness.Result
}

type NotifyResult struct {
	Success bool
	Deduped bool
	Error   string
}

type Notifier interface {
	Notify(ctx context.Context, recipient, dedupeKey string, e Escalation) (NotifyResult, error)
}

type LinkBuilder interface {
	DashboardLink(leadID string) string
}

// DraftWriter persists draft changes caused by a decision.
type DraftWriter interface {
	UpdateDraftContent(ctx context.Context, draftID, content string) error
	MarkDraftNeedsReview(ctx context.Context, draftID, reason string) error
}
