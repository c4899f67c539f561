package ingress

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/harunnryd/autosend/internal/autosend"
	"github.com/harunnryd/autosend/internal/concurrency"
	"github.com/harunnryd/autosend/internal/errors"
	"github.com/harunnryd/autosend/internal/logger"
)

type Decider interface {
	Decide(ctx context.Context, sc autosend.SendContext) autosend.Outcome
}

type ContextLoader interface {
	LoadSendContext(ctx context.Context, draftID string) (*autosend.SendContext, error)
}

// Defaults fill request flags that events loaded by draft id cannot carry.
type Defaults struct {
	ValidateImmediateSend bool
	IncludeDraftPreview   bool
}

// Handler decides one envelope at a time per lead.
type Handler struct {
	decider  Decider
	loader   ContextLoader
	defaults Defaults
	locks    *concurrency.KeyedLocker
}

func NewHandler(decider Decider, loader ContextLoader, defaults Defaults) *Handler {
	return &Handler{
		decider:  decider,
		loader:   loader,
		defaults: defaults,
		locks:    concurrency.NewKeyedLocker(),
	}
}

// Handle returns an error only when the event could not be turned into a
// decision. Every Outcome, including Error, is a handled event.
func (h *Handler) Handle(ctx context.Context, env Envelope) (autosend.Report, error) {
	if err := env.Validate(); err != nil {
		return autosend.Report{}, err
	}

	sc, err := h.resolve(ctx, env)
	if err != nil {
		return autosend.Report{}, err
	}

	unlock := h.locks.Lock(sc.WorkspaceID + "/" + sc.LeadID)
	defer unlock()

	ctx = logger.WithLeadID(logger.EnsureTraceID(ctx), sc.LeadID)
	report := autosend.NewReport(h.decider.Decide(ctx, *sc))

	attrs := append(logger.Attrs(ctx), "event_id", env.ID, "draft_id", sc.DraftID, "action", report.Action, "reason", report.Reason)
	slog.InfoContext(ctx, "Draft event handled", attrs...)
	return report, nil
}

func (h *Handler) resolve(ctx context.Context, env Envelope) (*autosend.SendContext, error) {
	if env.Context != nil {
		sc := *env.Context
		return &sc, nil
	}
	if h.loader == nil {
		return nil, errors.InvalidInput("draft_id events need a context loader")
	}

	sc, err := h.loader.LoadSendContext(ctx, env.DraftID)
	if err != nil {
		return nil, fmt.Errorf("load context for draft %s: %w", env.DraftID, err)
	}
	sc.ValidateImmediateSend = sc.ValidateImmediateSend || h.defaults.ValidateImmediateSend
	sc.IncludeDraftPreview = sc.IncludeDraftPreview || h.defaults.IncludeDraftPreview
	return sc, nil
}
