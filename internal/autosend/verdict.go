package autosend

import "math"

// HardBlock marks a policy refusal that no rewrite can fix.
type HardBlock string

const (
	HardBlockNone           HardBlock = ""
	HardBlockOptOut         HardBlock = "opt_out"
	HardBlockBlacklist      HardBlock = "blacklist"
	HardBlockAutomatedReply HardBlock = "automated_reply"
	HardBlockPolicy         HardBlock = "policy"
)

func ParseHardBlock(s string) (HardBlock, bool) {
	switch HardBlock(s) {
	case HardBlockNone, HardBlockOptOut, HardBlockBlacklist, HardBlockAutomatedReply, HardBlockPolicy:
		return HardBlock(s), true
	}
	return HardBlockNone, false
}

type SafetyVerdict struct {
	Confidence          float64   `json:"confidence"`
	SafeToSend          bool      `json:"safe_to_send"`
	RequiresHumanReview bool      `json:"requires_human_review"`
	Reason              string    `json:"reason"`
	HardBlock           HardBlock `json:"hard_block,omitempty"`
}

// FailClosed is the verdict used whenever safety cannot be determined.
func FailClosed(reason string) SafetyVerdict {
	return SafetyVerdict{
		Confidence:          0,
		SafeToSend:          false,
		RequiresHumanReview: true,
		Reason:              reason,
	}
}

// Normalize clamps confidence into [0,1] and floors hard-blocked verdicts.
func (v SafetyVerdict) Normalize() SafetyVerdict {
	if math.IsNaN(v.Confidence) || v.Confidence < 0 {
		v.Confidence = 0
	}
	if v.Confidence > 1 {
		v.Confidence = 1
	}
	if v.HardBlock != HardBlockNone {
		v.Confidence = 0
		v.SafeToSend = false
		v.RequiresHumanReview = true
	}
	return v
}

func (v SafetyVerdict) IsHardBlock() bool {
	return v.HardBlock != HardBlockNone
}

// Sendable reports whether the verdict allows automatic sending at threshold.
// safe_to_send together with requires_human_review is treated as unsafe.
func (v SafetyVerdict) Sendable(threshold float64) bool {
	if v.IsHardBlock() || v.RequiresHumanReview || !v.SafeToSend {
		return false
	}
	if math.IsNaN(v.Confidence) {
		return false
	}
	return v.Confidence >= threshold
}
