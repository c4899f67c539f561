package safety

import (
	"log/slog"
	"strings"

	"github.com/harunnryd/autosend/internal/autosend"
)

// autoResponderMarkers are phrases that identify machine-written inbound
// messages. Replying to them loops two robots.
var autoResponderMarkers = []string{
	"out of office",
	"out-of-office",
	"auto-reply",
	"autoreply",
	"automatic reply",
	"auto response",
	"this is an automated",
	"do not reply to this",
	"mail delivery failed",
	"delivery status notification",
	"undeliverable:",
}

// smsStopKeywords are carrier opt-out keywords that only count when they are
// the whole message.
var smsStopKeywords = map[string]struct{}{
	"stop":        {},
	"stopall":     {},
	"unsubscribe": {},
	"cancel":      {},
	"end":         {},
	"quit":        {},
}

// Screen runs the deterministic checks that must hold regardless of what a
// model says.
type Screen struct {
	optOut []string
	rules  *Rules
}

func NewScreen(optOutPhrases []string, rules *Rules) *Screen {
	phrases := make([]string, 0, len(optOutPhrases))
	for _, p := range optOutPhrases {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" {
			phrases = append(phrases, p)
		}
	}
	return &Screen{optOut: phrases, rules: rules}
}

// Check returns a hard-block verdict and true when the conversation must not
// receive an automatic reply.
func (s *Screen) Check(sc autosend.SendContext, draft string) (autosend.SafetyVerdict, bool) {
	inbound := strings.ToLower(strings.TrimSpace(sc.Conversation.LatestInbound))

	if sc.Conversation.AutomatedFlag {
		return blocked(autosend.HardBlockAutomatedReply, "inbound flagged as automated"), true
	}
	for _, marker := range autoResponderMarkers {
		if strings.Contains(inbound, marker) || strings.Contains(strings.ToLower(sc.Conversation.Subject), marker) {
			return blocked(autosend.HardBlockAutomatedReply, "inbound looks like an auto-responder: "+marker), true
		}
	}

	if _, ok := smsStopKeywords[strings.Trim(inbound, ".! ")]; ok {
		return blocked(autosend.HardBlockOptOut, "lead sent opt-out keyword"), true
	}
	for _, phrase := range s.optOut {
		if strings.Contains(inbound, phrase) {
			return blocked(autosend.HardBlockOptOut, "lead asked to opt out: "+phrase), true
		}
	}

	match, err := s.rules.Evaluate(sc, draft)
	if err != nil {
		slog.Warn("Safety rule evaluation failed closed", "draft_id", sc.DraftID, "error", err)
		return blocked(autosend.HardBlockPolicy, "rule_error"), true
	}
	if match != nil {
		return blocked(match.Block, "blocked by rule "+match.Rule), true
	}

	return autosend.SafetyVerdict{}, false
}

func blocked(kind autosend.HardBlock, reason string) autosend.SafetyVerdict {
	return autosend.SafetyVerdict{
		Confidence:          0,
		SafeToSend:          false,
		RequiresHumanReview: true,
		Reason:              reason,
		HardBlock:           kind,
	}
}
