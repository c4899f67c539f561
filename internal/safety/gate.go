package safety

import (
	"context"
	"strings"

	"github.com/harunnryd/autosend/internal/autosend"
	"github.com/harunnryd/autosend/internal/config"
	apperrors "github.com/harunnryd/autosend/internal/errors"
	"github.com/harunnryd/autosend/internal/model"
	"github.com/harunnryd/autosend/internal/model/contract"
)

// Gate answers the legacy "should we reply at all" question.
type Gate struct {
	router  model.ModelRouter
	model   string
	prompts config.GatePromptConfig
	screen  *Screen
}

func NewGate(router model.ModelRouter, modelName string, prompts config.GatePromptConfig, screen *Screen) *Gate {
	if prompts.System == "" {
		prompts.System = config.DefaultGateSystemPrompt
	}
	if prompts.Output == "" {
		prompts.Output = config.DefaultGateOutputPrompt
	}
	return &Gate{router: router, model: modelName, prompts: prompts, screen: screen}
}

type gatePayload struct {
	ShouldReply *bool  `json:"should_reply"`
	Reason      string `json:"reason"`
}

func (g *Gate) ShouldReply(ctx context.Context, sc autosend.SendContext) (autosend.GateDecision, error) {
	if g.screen != nil {
		if v, hit := g.screen.Check(sc, sc.DraftContent); hit {
			return autosend.GateDecision{ShouldReply: false, Reason: string(v.HardBlock)}, nil
		}
	}

	resp, err := g.router.Route(ctx, g.model, contract.CompletionRequest{
		System: g.prompts.System,
		Messages: []contract.Message{{
			Role:    "user",
			Content: conversationBlock(sc) + "\n" + g.prompts.Output,
		}},
		Temperature: contract.Float(0),
		JSONOutput:  true,
	})
	if err != nil {
		return autosend.GateDecision{}, apperrors.Wrap(err, "reply gate")
	}

	var p gatePayload
	if err := decodeModelJSON(resp.Content, &p); err != nil {
		return autosend.GateDecision{}, err
	}
	if p.ShouldReply == nil {
		return autosend.GateDecision{}, apperrors.InvalidModelOutput("gate response missing should_reply")
	}

	return autosend.GateDecision{ShouldReply: *p.ShouldReply, Reason: strings.TrimSpace(p.Reason)}, nil
}
