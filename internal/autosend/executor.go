package autosend

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/harunnryd/autosend/internal/delay"
	apperrors "github.com/harunnryd/autosend/internal/errors"
	"github.com/harunnryd/autosend/internal/jobs"
	"github.com/harunnryd/autosend/internal/logger"
	"github.com/harunnryd/autosend/internal/staleness"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/harunnryd/autosend/internal/autosend"

type Timeouts struct {
	Evaluate time.Duration
	Revise   time.Duration
	Gate     time.Duration
	Schedule time.Duration
	Validate time.Duration
	Dispatch time.Duration
	Notify   time.Duration
}

type Options struct {
	DefaultThreshold    float64
	PastRunBuffer       time.Duration
	MaxAttempts         int
	LeaseDuration       time.Duration
	RevisionEnabled     bool
	Reviewer            string
	InboundPreviewChars int
	DraftPreviewChars   int
	Timeouts            Timeouts
	Now                 func() time.Time
}

// Deps are the collaborators of the executor. Reviser and Drafts are optional,
// but a Reviser without Drafts is rejected: a revised draft must be persisted
// before the sender reads it back.
type Deps struct {
	KillSwitch KillSwitch
	Evaluator  Evaluator
	Reviser    Reviser
	Gate       ReplyGate
	Sender     Sender
	Jobs       JobStore
	Validator  Validator
	Notifier   Notifier
	Links      LinkBuilder
	Drafts     DraftWriter
}

type Executor struct {
	deps   Deps
	opts   Options
	mapper *apperrors.DefaultErrorMapper
	tracer trace.Tracer
}

func DefaultOptions() Options {
	return Options{
		DefaultThreshold:    0.9,
		PastRunBuffer:       delay.DefaultPastBuffer,
		MaxAttempts:         3,
		LeaseDuration:       5 * time.Minute,
		RevisionEnabled:     true,
		InboundPreviewChars: 500,
		DraftPreviewChars:   300,
		Timeouts: Timeouts{
			Evaluate: 20 * time.Second,
			Revise:   45 * time.Second,
			Gate:     15 * time.Second,
			Schedule: 5 * time.Second,
			Validate: 5 * time.Second,
			Dispatch: 30 * time.Second,
			Notify:   10 * time.Second,
		},
		Now: time.Now,
	}
}

func NewExecutor(deps Deps, opts Options) (*Executor, error) {
	switch {
	case deps.KillSwitch == nil:
		return nil, fmt.Errorf("kill switch is required")
	case deps.Evaluator == nil:
		return nil, fmt.Errorf("evaluator is required")
	case deps.Gate == nil:
		return nil, fmt.Errorf("reply gate is required")
	case deps.Sender == nil:
		return nil, fmt.Errorf("sender is required")
	case deps.Jobs == nil:
		return nil, fmt.Errorf("job store is required")
	case deps.Validator == nil:
		return nil, fmt.Errorf("validator is required")
	case deps.Notifier == nil:
		return nil, fmt.Errorf("notifier is required")
	case deps.Reviser != nil && deps.Drafts == nil:
		return nil, fmt.Errorf("reviser requires a draft writer")
	}

	defaults := DefaultOptions()
	if opts.DefaultThreshold == 0 {
		opts.DefaultThreshold = defaults.DefaultThreshold
	}
	if opts.DefaultThreshold < 0 || opts.DefaultThreshold > 1 {
		return nil, fmt.Errorf("default threshold %v outside [0,1]", opts.DefaultThreshold)
	}
	if opts.PastRunBuffer <= 0 {
		opts.PastRunBuffer = defaults.PastRunBuffer
	}
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = defaults.MaxAttempts
	}
	if opts.LeaseDuration <= 0 {
		opts.LeaseDuration = defaults.LeaseDuration
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	opts.Timeouts = opts.Timeouts.withDefaults(defaults.Timeouts)

	return &Executor{
		deps:   deps,
		opts:   opts,
		mapper: apperrors.NewDefaultErrorMapper(),
		tracer: otel.Tracer(tracerName),
	}, nil
}

func (t Timeouts) withDefaults(d Timeouts) Timeouts {
	pick := func(v, def time.Duration) time.Duration {
		if v <= 0 {
			return def
		}
		return v
	}
	return Timeouts{
		Evaluate: pick(t.Evaluate, d.Evaluate),
		Revise:   pick(t.Revise, d.Revise),
		Gate:     pick(t.Gate, d.Gate),
		Schedule: pick(t.Schedule, d.Schedule),
		Validate: pick(t.Validate, d.Validate),
		Dispatch: pick(t.Dispatch, d.Dispatch),
		Notify:   pick(t.Notify, d.Notify),
	}
}

// Decide runs the send pipeline for one inbound event. It never panics past
// its boundary and always returns a typed Outcome.
func (e *Executor) Decide(ctx context.Context, sc SendContext) (out Outcome) {
	ctx = logger.EnsureTraceID(logger.WithLeadID(ctx, sc.LeadID))
	ctx, span := e.tracer.Start(ctx, "autosend.decide", trace.WithAttributes(
		attribute.String("autosend.workspace_id", sc.WorkspaceID),
		attribute.String("autosend.draft_id", sc.DraftID),
		attribute.String("autosend.channel", string(sc.Channel)),
	))
	defer func() {
		if r := recover(); r != nil {
			slog.ErrorContext(ctx, "Panic recovered in decide", "panic", r)
			out = Error{Message: fmt.Sprintf("internal_panic: %v", r)}
		}
		e.finish(ctx, span, "decide", sc.DraftID, out)
	}()

	killed := e.deps.KillSwitch.Engaged(ctx)
	mode := ResolveMode(sc, killed)
	span.SetAttributes(attribute.String("autosend.mode", string(mode)))
	tel := Telemetry{Mode: mode}

	switch mode {
	case ModeConfidenceGated:
		return e.decideGated(ctx, sc, tel)
	case ModeLegacyAlwaysOn:
		return e.decideLegacy(ctx, sc, tel)
	default:
		if killed {
			return Skip{Reason: ReasonKillSwitch, meta: tel}
		}
		return Skip{Reason: ReasonDisabled, meta: tel}
	}
}

func (e *Executor) decideGated(ctx context.Context, sc SendContext, tel Telemetry) Outcome {
	if strings.TrimSpace(sc.DraftContent) == "" {
		return Skip{Reason: ReasonMissingDraft, meta: tel}
	}

	threshold := e.threshold(sc)
	tel.Threshold = threshold

	draft := sc.DraftContent
	verdict, elapsed := e.evaluate(ctx, sc, draft)
	tel.EvaluationMs = elapsed.Milliseconds()
	tel.Confidence = verdict.Confidence
	tel.HardBlock = verdict.HardBlock

	revTel := RevisionTelemetry{
		BeforeConfidence: verdict.Confidence,
		AfterConfidence:  verdict.Confidence,
		Threshold:        threshold,
	}
	revised := ""
	if !verdict.IsHardBlock() && !verdict.Sendable(threshold) {
		var rev *Revision
		rev, revTel = e.revise(ctx, sc, draft, verdict, revTel)
		if rev != nil {
			draft, verdict, revised = rev.Draft, rev.Verdict, rev.Draft
			tel.Confidence = verdict.Confidence
		}
	}
	tel.Revision = &revTel

	if verdict.IsHardBlock() || !verdict.Sendable(threshold) {
		return e.escalate(ctx, sc, draft, verdict, threshold, tel)
	}

	var window delay.Window
	if sc.Campaign != nil {
		window = delay.Window{Min: sc.Campaign.DelayMinSeconds, Max: sc.Campaign.DelayMaxSeconds}
	}
	if window.Enabled() {
		return e.schedule(ctx, sc, verdict, window, revised, tel)
	}
	return e.sendNow(ctx, sc, revised, tel)
}

// persistRevision stores the rewritten draft so the sender reads it back. It
// runs only once the send is committed to: after validation for an immediate
// send, after the job exists for a delayed one.
func (e *Executor) persistRevision(ctx context.Context, draftID, content string) error {
	if content == "" {
		return nil
	}
	if err := e.deps.Drafts.UpdateDraftContent(ctx, draftID, content); err != nil {
		slog.ErrorContext(ctx, "Failed to persist revised draft", "draft_id", draftID, "error", err)
		return err
	}
	return nil
}

func (e *Executor) decideLegacy(ctx context.Context, sc SendContext, tel Telemetry) Outcome {
	if strings.TrimSpace(sc.DraftContent) == "" {
		return Skip{Reason: ReasonMissingDraft, meta: tel}
	}

	gctx, cancel := context.WithTimeout(ctx, e.opts.Timeouts.Gate)
	decision, err := e.deps.Gate.ShouldReply(gctx, sc)
	cancel()
	if err != nil {
		slog.WarnContext(ctx, "Legacy reply gate failed closed", "error", err)
		return Skip{Reason: ReasonLegacySkip + "gate_error:" + e.mapper.Category(err), meta: tel}
	}
	if !decision.ShouldReply {
		reason := decision.Reason
		if reason == "" {
			reason = ReasonUnknown
		}
		return Skip{Reason: ReasonLegacySkip + reason, meta: tel}
	}

	return e.dispatch(ctx, sc.DraftID, false, tel)
}

func (e *Executor) threshold(sc SendContext) float64 {
	if sc.Campaign != nil && sc.Campaign.Threshold != nil {
		t := *sc.Campaign.Threshold
		if t >= 0 && t <= 1 {
			return t
		}
		slog.Warn("Ignoring out of range campaign threshold", "campaign_id", sc.Campaign.ID, "threshold", t)
	}
	return e.opts.DefaultThreshold
}

// evaluate never returns an error: failures become a fail-closed verdict.
func (e *Executor) evaluate(ctx context.Context, sc SendContext, draft string) (SafetyVerdict, time.Duration) {
	ectx, cancel := context.WithTimeout(ctx, e.opts.Timeouts.Evaluate)
	defer cancel()

	start := time.Now()
	verdict, err := e.deps.Evaluator.Evaluate(ectx, sc, draft)
	elapsed := time.Since(start)
	if err != nil {
		category := e.mapper.Category(err)
		slog.WarnContext(ctx, "Safety evaluation failed closed", "category", category, "error", err)
		return FailClosed("evaluator_error:" + category), elapsed
	}
	return verdict.Normalize(), elapsed
}

func (e *Executor) revise(ctx context.Context, sc SendContext, draft string, verdict SafetyVerdict, tel RevisionTelemetry) (*Revision, RevisionTelemetry) {
	threshold := tel.Threshold
	if !e.opts.RevisionEnabled || e.deps.Reviser == nil {
		return nil, tel
	}

	tel.Attempted = true
	rctx, cancel := context.WithTimeout(ctx, e.opts.Timeouts.Revise)
	defer cancel()

	rev, err := e.deps.Reviser.Revise(rctx, sc, draft, verdict)
	if err != nil {
		tel.Error = e.mapper.Category(err)
		slog.WarnContext(ctx, "Draft revision failed", "category", tel.Error, "error", err)
		return nil, tel
	}
	if rev == nil || strings.TrimSpace(rev.Draft) == "" {
		return nil, tel
	}

	revisedVerdict := rev.Verdict.Normalize()
	tel.AfterConfidence = revisedVerdict.Confidence
	if !revisedVerdict.Sendable(threshold) {
		return nil, tel
	}

	tel.Improved = true
	return &Revision{Draft: rev.Draft, Verdict: revisedVerdict}, tel
}

func (e *Executor) escalate(ctx context.Context, sc SendContext, draft string, verdict SafetyVerdict, threshold float64, tel Telemetry) Outcome {
	notice := buildEscalation(sc, draft, verdict, threshold, e.deps.Links, e.opts.InboundPreviewChars, e.opts.DraftPreviewChars)

	recipient := sc.ReviewerID
	if recipient == "" {
		recipient = e.opts.Reviewer
	}

	nctx, cancel := context.WithTimeout(ctx, e.opts.Timeouts.Notify)
	res, err := e.deps.Notifier.Notify(nctx, recipient, EscalationDedupeKey(sc.DraftID), notice)
	cancel()

	notified := err == nil && res.Success
	if !notified {
		msg := res.Error
		if err != nil {
			msg = err.Error()
		}
		slog.WarnContext(ctx, "Reviewer notification failed", "draft_id", sc.DraftID, "error", msg)
	}

	if e.deps.Drafts != nil {
		if err := e.deps.Drafts.MarkDraftNeedsReview(ctx, sc.DraftID, notice.Reason); err != nil {
			slog.WarnContext(ctx, "Failed to mark draft for review", "draft_id", sc.DraftID, "error", err)
		}
	}

	return NeedsReview{
		Confidence: verdict.Confidence,
		Threshold:  threshold,
		Notified:   notified,
		Reason:     notice.Reason,
		meta:       tel,
	}
}

func (e *Executor) schedule(ctx context.Context, sc SendContext, verdict SafetyVerdict, window delay.Window, revised string, tel Telemetry) Outcome {
	delaySeconds := delay.Compute(sc.TriggerMessageID, window.Min, window.Max)
	now := e.opts.Now()
	runAt := delay.RunAt(sc.Conversation.InboundAt, now, delaySeconds, e.opts.PastRunBuffer)
	tel.DelaySeconds = delaySeconds

	job := jobs.Job{
		ID:               jobs.NewID(),
		IdempotencyKey:   jobs.IdempotencyKey(sc.WorkspaceID, sc.TriggerMessageID, DefaultJobType, sc.DraftID),
		Type:             DefaultJobType,
		WorkspaceID:      sc.WorkspaceID,
		LeadID:           sc.LeadID,
		TriggerMessageID: sc.TriggerMessageID,
		DraftID:          sc.DraftID,
		Status:           jobs.StatusPending,
		RunAt:            runAt,
		MaxAttempts:      e.opts.MaxAttempts,
		Payload: jobs.Payload{
			Mode:         string(tel.Mode),
			Channel:      string(sc.Channel),
			Confidence:   verdict.Confidence,
			Threshold:    tel.Threshold,
			DelaySeconds: delaySeconds,
		},
	}

	sctx, cancel := context.WithTimeout(ctx, e.opts.Timeouts.Schedule)
	err := e.deps.Jobs.Create(sctx, job)
	cancel()

	if apperrors.IsCategory(err, apperrors.ErrCollision) {
		return Skip{Reason: ReasonAlreadyScheduled, meta: tel}
	}
	if err != nil {
		slog.ErrorContext(ctx, "Failed to schedule send", "draft_id", sc.DraftID, "error", err)
		return Error{Message: "schedule_failed: " + err.Error(), meta: tel}
	}

	tel.JobID = job.ID
	if err := e.persistRevision(ctx, sc.DraftID, revised); err != nil {
		e.abandon(ctx, job, "persist_revised_draft_failed")
		return Error{Message: "persist_revised_draft_failed: " + err.Error(), meta: tel}
	}
	return SendDelayed{RunAt: runAt, JobID: job.ID, meta: tel}
}

// abandon closes a job that was just created but must never run. It is
// claimed at its own run time since it is not due yet.
func (e *Executor) abandon(ctx context.Context, job jobs.Job, detail string) {
	if _, err := e.deps.Jobs.Claim(ctx, job.ID, job.RunAt, e.opts.LeaseDuration); err != nil {
		slog.ErrorContext(ctx, "Failed to abandon job", "job_id", job.ID, "error", err)
		return
	}
	e.complete(ctx, job.ID, jobs.StatusErrored, detail)
}

func (e *Executor) sendNow(ctx context.Context, sc SendContext, revised string, tel Telemetry) Outcome {
	if sc.ValidateImmediateSend {
		res := e.validate(ctx, staleness.Target{
			WorkspaceID:      sc.WorkspaceID,
			LeadID:           sc.LeadID,
			TriggerMessageID: sc.TriggerMessageID,
			DraftID:          sc.DraftID,
		})
		if !res.Proceed {
			reason := res.Reason
			if reason == "" {
				reason = ReasonUnknown
			}
			tel.ValidationSkipReason = reason
			return Skip{Reason: ReasonValidationFailed + reason, meta: tel}
		}
	}
	if err := e.persistRevision(ctx, sc.DraftID, revised); err != nil {
		return Error{Message: "persist_revised_draft_failed: " + err.Error(), meta: tel}
	}
	return e.dispatch(ctx, sc.DraftID, revised != "", tel)
}

func (e *Executor) validate(ctx context.Context, t staleness.Target) staleness.Result {
	vctx, cancel := context.WithTimeout(ctx, e.opts.Timeouts.Validate)
	defer cancel()
	return e.deps.Validator.Validate(vctx, t)
}

// dispatch sends once. Retries belong to the job runner.
func (e *Executor) dispatch(ctx context.Context, draftID string, revised bool, tel Telemetry) Outcome {
	dctx, cancel := context.WithTimeout(ctx, e.opts.Timeouts.Dispatch)
	res, err := e.deps.Sender.Send(dctx, draftID)
	cancel()

	if err != nil {
		return Error{Message: err.Error(), meta: tel}
	}
	if !res.Success {
		msg := res.Error
		if msg == "" {
			msg = "send_failed"
		}
		return Error{Message: msg, meta: tel}
	}
	return SendImmediate{MessageID: res.MessageID, Revised: revised, meta: tel}
}

func (e *Executor) finish(ctx context.Context, span trace.Span, op, draftID string, out Outcome) {
	defer span.End()

	report := NewReport(out)
	span.SetAttributes(
		attribute.String("autosend.action", string(report.Action)),
		attribute.Float64("autosend.confidence", report.Telemetry.Confidence),
	)

	attrs := append(logger.Attrs(ctx),
		"op", op,
		"draft_id", draftID,
		"action", report.Action,
		"mode", report.Telemetry.Mode,
		"confidence", report.Telemetry.Confidence,
		"threshold", report.Telemetry.Threshold,
		"eval_ms", report.Telemetry.EvaluationMs,
	)
	if report.Reason != "" {
		attrs = append(attrs, "reason", report.Reason)
	}
	if report.JobID != "" {
		attrs = append(attrs, "job_id", report.JobID)
	}

	if report.Action == ActionError {
		span.SetStatus(codes.Error, report.Message)
		slog.Error("Auto-send failed", append(attrs, "error", report.Message)...)
		return
	}
	slog.Info("Auto-send decision", attrs...)
}
