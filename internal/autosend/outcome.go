package autosend

import "time"

type Action string

const (
	ActionSendImmediate Action = "send_immediate"
	ActionSendDelayed   Action = "send_delayed"
	ActionNeedsReview   Action = "needs_review"
	ActionSkip          Action = "skip"
	ActionError         Action = "error"
)

// Skip reasons shared with callers and dashboards.
const (
	ReasonKillSwitch          = "kill_switch_engaged"
	ReasonDisabled            = "auto_send_disabled"
	ReasonMissingDraft        = "missing_draft_content"
	ReasonAlreadyScheduled    = "already_scheduled"
	ReasonValidationFailed    = "immediate_send_validation_failed:"
	ReasonLegacySkip          = "legacy_auto_reply_skip:"
	ReasonUnknown             = "unknown_reason"
	ReasonJobNotFound         = "job_not_found"
	ReasonJobNotClaimable     = "job_not_claimable"
	ReasonMaxAttemptsExceeded = "max_attempts_exceeded"
)

// Outcome is the result of a decision or a job execution. The concrete types
// are SendImmediate, SendDelayed, NeedsReview, Skip and Error.
type Outcome interface {
	Action() Action
	Telemetry() Telemetry
	isOutcome()
}

type Telemetry struct {
	Mode                 Mode               `json:"mode,omitempty"`
	EvaluationMs         int64              `json:"evaluation_ms"`
	Confidence           float64            `json:"confidence"`
	Threshold            float64            `json:"threshold"`
	DelaySeconds         int                `json:"delay_seconds,omitempty"`
	ValidationSkipReason string             `json:"validation_skip_reason,omitempty"`
	HardBlock            HardBlock          `json:"hard_block,omitempty"`
	JobID                string             `json:"job_id,omitempty"`
	Revision             *RevisionTelemetry `json:"revision,omitempty"`
}

type RevisionTelemetry struct {
	Attempted        bool    `json:"attempted"`
	Improved         bool    `json:"improved"`
	BeforeConfidence float64 `json:"before_confidence"`
	AfterConfidence  float64 `json:"after_confidence"`
	Threshold        float64 `json:"threshold"`
	Error            string  `json:"error,omitempty"`
}

type SendImmediate struct {
	MessageID string
	Revised   bool
	meta      Telemetry
}

type SendDelayed struct {
	RunAt time.Time
	JobID string
	meta  Telemetry
}

type NeedsReview struct {
	Confidence float64
	Threshold  float64
	Notified   bool
	Reason     string
	meta       Telemetry
}

type Skip struct {
	Reason string
	meta   Telemetry
}

type Error struct {
	Message string
	meta    Telemetry
}

func (SendImmediate) Action() Action { return ActionSendImmediate }
func (SendDelayed) Action() Action   { return ActionSendDelayed }
func (NeedsReview) Action() Action   { return ActionNeedsReview }
func (Skip) Action() Action          { return ActionSkip }
func (Error) Action() Action         { return ActionError }

func (o SendImmediate) Telemetry() Telemetry { return o.meta }
func (o SendDelayed) Telemetry() Telemetry   { return o.meta }
func (o NeedsReview) Telemetry() Telemetry   { return o.meta }
func (o Skip) Telemetry() Telemetry          { return o.meta }
func (o Error) Telemetry() Telemetry         { return o.meta }

func (SendImmediate) isOutcome() {}
func (SendDelayed) isOutcome()   {}
func (NeedsReview) isOutcome()   {}
func (Skip) isOutcome()          {}
func (Error) isOutcome()         {}

// Report is the flat, serialisable view of an Outcome used by the CLI, the
// HTTP API and decision logs.
type Report struct {
	Action     Action     `json:"action"`
	Reason     string     `json:"reason,omitempty"`
	Message    string     `json:"message,omitempty"`
	MessageID  string     `json:"message_id,omitempty"`
	RunAt      *time.Time `json:"run_at,omitempty"`
	JobID      string     `json:"job_id,omitempty"`
	Confidence *float64   `json:"confidence,omitempty"`
	Threshold  *float64   `json:"threshold,omitempty"`
	Notified   *bool      `json:"notified,omitempty"`
	Telemetry  Telemetry  `json:"telemetry"`
}

func NewReport(o Outcome) Report {
	if o == nil {
		return Report{Action: ActionError, Message: "nil outcome"}
	}

	r := Report{Action: o.Action(), Telemetry: o.Telemetry()}
	switch v := o.(type) {
	case SendImmediate:
		r.MessageID = v.MessageID
	case SendDelayed:
		runAt := v.RunAt
		r.RunAt = &runAt
		r.JobID = v.JobID
	case NeedsReview:
		confidence, threshold, notified := v.Confidence, v.Threshold, v.Notified
		r.Confidence = &confidence
		r.Threshold = &threshold
		r.Notified = &notified
		r.Reason = v.Reason
	case Skip:
		r.Reason = v.Reason
	case Error:
		r.Message = v.Message
	}
	return r
}
