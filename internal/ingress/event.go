// Package ingress turns draft-ready events from the message bus into
// decisions.
package ingress

import (
	"strings"
	"time"

	"github.com/harunnryd/autosend/internal/autosend"
	"github.com/harunnryd/autosend/internal/errors"
)

const TypeDraftReady = "draft.ready"

// Envelope is one draft-ready event. It carries either a complete
// SendContext or the id of a draft whose context is loaded from storage.
type Envelope struct {
	ID        string                `json:"id"`
	Type      string                `json:"type"`
	DraftID   string                `json:"draft_id,omitempty"`
	Context   *autosend.SendContext `json:"context,omitempty"`
	CreatedAt time.Time             `json:"created_at"`
}

func (e Envelope) Validate() error {
	if e.Type != "" && e.Type != TypeDraftReady {
		return errors.InvalidInput("unsupported event type " + e.Type)
	}
	if e.Context == nil && strings.TrimSpace(e.DraftID) == "" {
		return errors.InvalidInput("event needs a context or a draft_id")
	}
	return nil
}
