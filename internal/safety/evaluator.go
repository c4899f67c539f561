package safety

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/harunnryd/autosend/internal/autosend"
	"github.com/harunnryd/autosend/internal/config"
	apperrors "github.com/harunnryd/autosend/internal/errors"
	"github.com/harunnryd/autosend/internal/model"
	"github.com/harunnryd/autosend/internal/model/contract"
)

// Evaluator scores drafts with a model after the deterministic screen passes.
type Evaluator struct {
	router  model.ModelRouter
	model   string
	prompts config.EvaluatorPromptConfig
	screen  *Screen
}

func NewEvaluator(router model.ModelRouter, modelName string, prompts config.EvaluatorPromptConfig, screen *Screen) *Evaluator {
	if prompts.System == "" {
		prompts.System = config.DefaultEvaluatorSystemPrompt
	}
	if prompts.Output == "" {
		prompts.Output = config.DefaultEvaluatorOutputPrompt
	}
	return &Evaluator{router: router, model: modelName, prompts: prompts, screen: screen}
}

type verdictPayload struct {
	Confidence          *float64 `json:"confidence"`
	SafeToSend          *bool    `json:"safe_to_send"`
	RequiresHumanReview *bool    `json:"requires_human_review"`
	Reason              string   `json:"reason"`
	HardBlock           string   `json:"hard_block"`
}

func (e *Evaluator) Evaluate(ctx context.Context, sc autosend.SendContext, draft string) (autosend.SafetyVerdict, error) {
	if e.screen != nil {
		if v, hit := e.screen.Check(sc, draft); hit {
			slog.InfoContext(ctx, "Draft hard-blocked before evaluation", "draft_id", sc.DraftID, "hard_block", v.HardBlock, "reason", v.Reason)
			return v, nil
		}
	}

	resp, err := e.router.Route(ctx, e.model, contract.CompletionRequest{
		System: e.prompts.System,
		Messages: []contract.Message{{
			Role:    "user",
			Content: e.userPrompt(sc, draft),
		}},
		Temperature: contract.Float(0),
		JSONOutput:  true,
	})
	if err != nil {
		return autosend.SafetyVerdict{}, apperrors.Wrap(err, "safety evaluation")
	}

	return parseVerdict(resp.Content)
}

func (e *Evaluator) userPrompt(sc autosend.SendContext, draft string) string {
	var b strings.Builder
	b.WriteString(conversationBlock(sc))
	fmt.Fprintf(&b, "\nCandidate reply:\n%s\n\n", strings.TrimSpace(draft))
	b.WriteString(e.prompts.Output)
	return b.String()
}

// parseVerdict requires confidence and safe_to_send. An unrecognised
// hard_block value is kept as a policy block.
func parseVerdict(raw string) (autosend.SafetyVerdict, error) {
	var p verdictPayload
	if err := decodeModelJSON(raw, &p); err != nil {
		return autosend.SafetyVerdict{}, err
	}
	if p.Confidence == nil || p.SafeToSend == nil {
		return autosend.SafetyVerdict{}, apperrors.InvalidModelOutput("verdict missing confidence or safe_to_send")
	}

	v := autosend.SafetyVerdict{
		Confidence: *p.Confidence,
		SafeToSend: *p.SafeToSend,
		Reason:     strings.TrimSpace(p.Reason),
	}
	if p.RequiresHumanReview != nil {
		v.RequiresHumanReview = *p.RequiresHumanReview
	}

	hb := strings.ToLower(strings.TrimSpace(p.HardBlock))
	if hb == "none" || hb == "null" {
		hb = ""
	}
	if parsed, ok := autosend.ParseHardBlock(hb); ok {
		v.HardBlock = parsed
	} else {
		v.HardBlock = autosend.HardBlockPolicy
		if v.Reason == "" {
			v.Reason = "hard_block:" + hb
		}
	}

	return v.Normalize(), nil
}
