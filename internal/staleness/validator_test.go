package staleness

import (
	"context"
	"errors"
	"testing"

	apperrors "github.com/harunnryd/autosend/internal/errors"

	"github.com/stretchr/testify/assert"
)

type fakeRepo struct {
	draft       *Draft
	draftErr    error
	inbound     bool
	inboundErr  error
	outbound    bool
	mode        string
	hasCampaign bool
	calls       []string
}

func (f *fakeRepo) GetDraft(_ context.Context, _ string) (*Draft, error) {
	f.calls = append(f.calls, "draft")
	return f.draft, f.draftErr
}

func (f *fakeRepo) HasInboundAfter(_ context.Context, _, _ string) (bool, error) {
	f.calls = append(f.calls, "inbound")
	return f.inbound, f.inboundErr
}

func (f *fakeRepo) HasOutboundAfter(_ context.Context, _, _ string) (bool, error) {
	f.calls = append(f.calls, "outbound")
	return f.outbound, nil
}

func (f *fakeRepo) CampaignMode(_ context.Context, _ string) (string, bool, error) {
	f.calls = append(f.calls, "campaign")
	return f.mode, f.hasCampaign, nil
}

func healthyRepo() *fakeRepo {
	return &fakeRepo{
		draft:       &Draft{ID: "draft-1", LeadID: "lead-1", Status: DraftStatusPending},
		mode:        RequiredMode,
		hasCampaign: true,
	}
}

var target = Target{WorkspaceID: "ws-1", LeadID: "lead-1", TriggerMessageID: "msg-1", DraftID: "draft-1"}

func TestValidate(t *testing.T) {
	tests := []struct {
		name       string
		mutate     func(*fakeRepo)
		wantReason string
		wantCalls  int
	}{
		{name: "all checks pass", mutate: func(*fakeRepo) {}, wantCalls: 4},
		{
			name:       "draft missing",
			mutate:     func(r *fakeRepo) { r.draft, r.draftErr = nil, apperrors.NotFound("draft") },
			wantReason: ReasonDraftNotFound,
			wantCalls:  1,
		},
		{
			name:       "draft already sent",
			mutate:     func(r *fakeRepo) { r.draft.Status = "sent" },
			wantReason: "draft_not_pending:sent",
			wantCalls:  1,
		},
		{
			name:       "draft for another lead",
			mutate:     func(r *fakeRepo) { r.draft.LeadID = "lead-2" },
			wantReason: ReasonConversationMismatch,
			wantCalls:  1,
		},
		{
			name:       "newer inbound",
			mutate:     func(r *fakeRepo) { r.inbound = true },
			wantReason: ReasonNewerInbound,
			wantCalls:  2,
		},
		{
			name:       "human replied",
			mutate:     func(r *fakeRepo) { r.outbound = true },
			wantReason: ReasonOutboundAfterTrigger,
			wantCalls:  3,
		},
		{
			name:       "campaign switched to manual",
			mutate:     func(r *fakeRepo) { r.mode = "manual" },
			wantReason: ReasonCampaignNotAutoSend,
			wantCalls:  4,
		},
		{
			name:       "campaign removed",
			mutate:     func(r *fakeRepo) { r.hasCampaign = false; r.mode = "" },
			wantReason: ReasonNoCampaign,
			wantCalls:  4,
		},
		{
			name:       "repository timeout fails closed",
			mutate:     func(r *fakeRepo) { r.inboundErr = context.DeadlineExceeded },
			wantReason: "validation_error:transient",
			wantCalls:  2,
		},
		{
			name:       "unknown repository error fails closed",
			mutate:     func(r *fakeRepo) { r.draft, r.draftErr = nil, errors.New("boom") },
			wantReason: "validation_error:internal",
			wantCalls:  1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := healthyRepo()
			tt.mutate(repo)

			res := NewValidator(repo).Validate(context.Background(), target)

			assert.Equal(t, tt.wantReason == "", res.Proceed)
			assert.Equal(t, tt.wantReason, res.Reason)
			assert.Len(t, repo.calls, tt.wantCalls, "checks short-circuit at first failure")
		})
	}
}
