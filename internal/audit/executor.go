package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/harunnryd/autosend/internal/autosend"
)

// Decider is the pair of pipeline entry points every surface calls.
type Decider interface {
	Decide(ctx context.Context, sc autosend.SendContext) autosend.Outcome
	ValidateAndExecute(ctx context.Context, jobID string) autosend.Outcome
}

// RecordingDecider records one entry per decision. A failed write is logged
// and never changes the outcome.
type RecordingDecider struct {
	next Decider
	log  Logger
	now  func() time.Time
}

func NewRecordingDecider(next Decider, log Logger) *RecordingDecider {
	return &RecordingDecider{next: next, log: log, now: time.Now}
}

func (d *RecordingDecider) Decide(ctx context.Context, sc autosend.SendContext) autosend.Outcome {
	start := d.now()
	out := d.next.Decide(ctx, sc)

	entry := fromReport(autosend.NewReport(out))
	entry.Operation = OperationDecide
	entry.WorkspaceID = sc.WorkspaceID
	entry.LeadID = sc.LeadID
	entry.DraftID = sc.DraftID
	entry.Duration = d.now().Sub(start)
	d.record(ctx, entry)

	return out
}

func (d *RecordingDecider) ValidateAndExecute(ctx context.Context, jobID string) autosend.Outcome {
	start := d.now()
	out := d.next.ValidateAndExecute(ctx, jobID)

	entry := fromReport(autosend.NewReport(out))
	entry.Operation = OperationExecute
	entry.JobID = jobID
	entry.Duration = d.now().Sub(start)
	d.record(ctx, entry)

	return out
}

func (d *RecordingDecider) record(ctx context.Context, entry *Entry) {
	if err := d.log.Log(context.WithoutCancel(ctx), entry); err != nil {
		slog.Warn("Failed to write decision audit entry", "operation", entry.Operation, "action", entry.Action, "error", err)
	}
}

func fromReport(r autosend.Report) *Entry {
	return &Entry{
		JobID:      r.JobID,
		Action:     r.Action,
		Reason:     r.Reason,
		Message:    r.Message,
		Confidence: r.Confidence,
		Threshold:  r.Threshold,
	}
}
