package safety

import (
	"context"
	"fmt"
	"strings"

	"github.com/harunnryd/autosend/internal/autosend"
	"github.com/harunnryd/autosend/internal/config"
	apperrors "github.com/harunnryd/autosend/internal/errors"
	"github.com/harunnryd/autosend/internal/model"
	"github.com/harunnryd/autosend/internal/model/contract"
)

// Reviser rewrites a low-confidence draft and scores the rewrite with the
// same evaluator that judged the original.
type Reviser struct {
	router    model.ModelRouter
	model     string
	prompts   config.ReviserPromptConfig
	evaluator autosend.Evaluator
}

func NewReviser(router model.ModelRouter, modelName string, prompts config.ReviserPromptConfig, evaluator autosend.Evaluator) *Reviser {
	if prompts.System == "" {
		prompts.System = config.DefaultReviserSystemPrompt
	}
	if prompts.Instruction == "" {
		prompts.Instruction = config.DefaultReviserInstructionPrompt
	}
	return &Reviser{router: router, model: modelName, prompts: prompts, evaluator: evaluator}
}

func (r *Reviser) Revise(ctx context.Context, sc autosend.SendContext, draft string, verdict autosend.SafetyVerdict) (*autosend.Revision, error) {
	resp, err := r.router.Route(ctx, r.model, contract.CompletionRequest{
		System: r.prompts.System,
		Messages: []contract.Message{{
			Role:    "user",
			Content: r.userPrompt(sc, draft, verdict),
		}},
		Temperature: contract.Float(0.3),
	})
	if err != nil {
		return nil, apperrors.Wrap(err, "draft revision")
	}

	revised := cleanModelText(resp.Content)
	if revised == "" || revised == strings.TrimSpace(draft) {
		return nil, nil
	}

	v, err := r.evaluator.Evaluate(ctx, sc, revised)
	if err != nil {
		return nil, apperrors.Wrap(err, "re-evaluate revised draft")
	}

	return &autosend.Revision{Draft: revised, Verdict: v}, nil
}

func (r *Reviser) userPrompt(sc autosend.SendContext, draft string, verdict autosend.SafetyVerdict) string {
	var b strings.Builder
	b.WriteString(conversationBlock(sc))
	fmt.Fprintf(&b, "\nCandidate reply:\n%s\n", strings.TrimSpace(draft))
	fmt.Fprintf(&b, "\nReviewer feedback (confidence %.2f): %s\n\n", verdict.Confidence, verdict.Reason)
	b.WriteString(r.prompts.Instruction)
	return b.String()
}
