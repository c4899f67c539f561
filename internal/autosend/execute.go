package autosend

import (
	"context"
	"fmt"
	"log/slog"

	apperrors "github.com/harunnryd/autosend/internal/errors"
	"github.com/harunnryd/autosend/internal/jobs"
	"github.com/harunnryd/autosend/internal/logger"
	"github.com/harunnryd/autosend/internal/staleness"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// ValidateAndExecute runs a scheduled job at or after its run time: claim,
// re-validate, dispatch, record. A failed dispatch is released back to pending
// until the job runs out of attempts.
func (e *Executor) ValidateAndExecute(ctx context.Context, jobID string) (out Outcome) {
	ctx = logger.EnsureTraceID(ctx)
	ctx, span := e.tracer.Start(ctx, "autosend.validate_and_execute", trace.WithAttributes(
		attribute.String("autosend.job_id", jobID),
	))
	draftID := ""
	defer func() {
		if r := recover(); r != nil {
			slog.ErrorContext(ctx, "Panic recovered in job execution", "job_id", jobID, "panic", r)
			out = Error{Message: fmt.Sprintf("internal_panic: %v", r)}
		}
		e.finish(ctx, span, "execute", draftID, out)
	}()

	tel := Telemetry{Mode: ModeConfidenceGated, JobID: jobID}

	job, err := e.deps.Jobs.Get(ctx, jobID)
	if apperrors.IsCategory(err, apperrors.ErrNotFound) {
		return Skip{Reason: ReasonJobNotFound, meta: tel}
	}
	if err != nil {
		return Error{Message: "load_job_failed: " + err.Error(), meta: tel}
	}
	draftID = job.DraftID
	ctx = logger.WithLeadID(ctx, job.LeadID)
	tel.Threshold = job.Payload.Threshold
	tel.Confidence = job.Payload.Confidence
	tel.DelaySeconds = job.Payload.DelaySeconds

	// The switch gates this attempt only. The job is left as it is so a
	// pending send resumes once the switch is released.
	if e.deps.KillSwitch.Engaged(ctx) {
		tel.Mode = ModeDisabled
		return Skip{Reason: ReasonKillSwitch, meta: tel}
	}

	claimed, err := e.deps.Jobs.Claim(ctx, jobID, e.opts.Now(), e.opts.LeaseDuration)
	if apperrors.IsCategory(err, apperrors.ErrNotClaimable) {
		return Skip{Reason: ReasonJobNotClaimable, meta: tel}
	}
	if err != nil {
		return Error{Message: "claim_job_failed: " + err.Error(), meta: tel}
	}

	if claimed.AttemptCount > claimed.MaxAttempts {
		e.complete(ctx, jobID, jobs.StatusErrored, ReasonMaxAttemptsExceeded)
		return Error{Message: ReasonMaxAttemptsExceeded, meta: tel}
	}

	res := e.validate(ctx, staleness.Target{
		WorkspaceID:      claimed.WorkspaceID,
		LeadID:           claimed.LeadID,
		TriggerMessageID: claimed.TriggerMessageID,
		DraftID:          claimed.DraftID,
	})
	if !res.Proceed {
		reason := res.Reason
		if reason == "" {
			reason = ReasonUnknown
		}
		tel.ValidationSkipReason = reason
		e.complete(ctx, jobID, jobs.StatusSkipped, reason)
		return Skip{Reason: reason, meta: tel}
	}

	out = e.dispatch(ctx, claimed.DraftID, false, tel)
	switch o := out.(type) {
	case SendImmediate:
		e.complete(ctx, jobID, jobs.StatusExecuted, o.MessageID)
	case Error:
		if claimed.AttemptCount < claimed.MaxAttempts {
			if err := e.deps.Jobs.Release(ctx, jobID, o.Message); err != nil {
				slog.WarnContext(ctx, "Failed to release job for retry", "job_id", jobID, "error", err)
			}
		} else {
			e.complete(ctx, jobID, jobs.StatusErrored, o.Message)
		}
	}
	return out
}

// complete records a terminal status. The outcome has already happened, so a
// bookkeeping failure is logged rather than returned.
func (e *Executor) complete(ctx context.Context, jobID string, status jobs.Status, detail string) {
	if err := e.deps.Jobs.Complete(ctx, jobID, status, detail); err != nil {
		slog.WarnContext(ctx, "Failed to record job status", "job_id", jobID, "status", status, "error", err)
	}
}
