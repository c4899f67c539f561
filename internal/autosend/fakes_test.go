package autosend

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/harunnryd/autosend/internal/jobs"
	"github.com/harunnryd/autosend/internal/staleness"

	"github.com/stretchr/testify/require"
)

type fakeEvaluator struct {
	mu      sync.Mutex
	verdict SafetyVerdict
	err     error
	calls   int
	drafts  []string
}

func (f *fakeEvaluator) Evaluate(_ context.Context, _ SendContext, draft string) (SafetyVerdict, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.drafts = append(f.drafts, draft)
	return f.verdict, f.err
}

type fakeReviser struct {
	revision *Revision
	err      error
	calls    int
}

func (f *fakeReviser) Revise(_ context.Context, _ SendContext, _ string, _ SafetyVerdict) (*Revision, error) {
	f.calls++
	return f.revision, f.err
}

type fakeGate struct {
	decision GateDecision
	err      error
	calls    int
}

func (f *fakeGate) ShouldReply(_ context.Context, _ SendContext) (GateDecision, error) {
	f.calls++
	return f.decision, f.err
}

type fakeSender struct {
	mu     sync.Mutex
	result SendResult
	err    error
	sent   []string
}

func (f *fakeSender) Send(_ context.Context, draftID string) (SendResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, draftID)
	return f.result, f.err
}

type fakeValidator struct {
	result  staleness.Result
	targets []staleness.Target
}

func (f *fakeValidator) Validate(_ context.Context, t staleness.Target) staleness.Result {
	f.targets = append(f.targets, t)
	return f.result
}

type notifyCall struct {
	recipient string
	dedupeKey string
	notice    Escalation
}

type fakeNotifier struct {
	result NotifyResult
	err    error
	calls  []notifyCall
}

func (f *fakeNotifier) Notify(_ context.Context, recipient, dedupeKey string, e Escalation) (NotifyResult, error) {
	f.calls = append(f.calls, notifyCall{recipient: recipient, dedupeKey: dedupeKey, notice: e})
	return f.result, f.err
}

type fakeLinks struct{}

func (fakeLinks) DashboardLink(leadID string) string {
	return "https://app.example.com/leads/" + leadID
}

type fakeDrafts struct {
	updated     map[string]string
	needsReview map[string]string
	updateErr   error
}

func newFakeDrafts() *fakeDrafts {
	return &fakeDrafts{updated: map[string]string{}, needsReview: map[string]string{}}
}

func (f *fakeDrafts) UpdateDraftContent(_ context.Context, draftID, content string) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	f.updated[draftID] = content
	return nil
}

func (f *fakeDrafts) MarkDraftNeedsReview(_ context.Context, draftID, reason string) error {
	f.needsReview[draftID] = reason
	return nil
}

type harness struct {
	evaluator *fakeEvaluator
	reviser   *fakeReviser
	gate      *fakeGate
	sender    *fakeSender
	validator *fakeValidator
	notifier  *fakeNotifier
	drafts    *fakeDrafts
	store     *jobs.FileStore
	kill      *StaticKillSwitch
	now       time.Time
	exec      *Executor
}

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newHarness(t *testing.T) *harness {
	t.Helper()

	store, err := jobs.NewFileStore(t.TempDir(), jobs.FileStoreConfig{})
	require.NoError(t, err)

	kill := StaticKillSwitch(false)
	h := &harness{
		evaluator: &fakeEvaluator{verdict: SafetyVerdict{Confidence: 0.95, SafeToSend: true, Reason: "on topic"}},
		reviser:   &fakeReviser{},
		gate:      &fakeGate{decision: GateDecision{ShouldReply: true}},
		sender:    &fakeSender{result: SendResult{Success: true, MessageID: "out-1"}},
		validator: &fakeValidator{result: staleness.Result{Proceed: true}},
		notifier:  &fakeNotifier{result: NotifyResult{Success: true}},
		drafts:    newFakeDrafts(),
		store:     store,
		kill:      &kill,
		now:       fixedNow,
	}

	opts := DefaultOptions()
	opts.Reviewer = "U_REVIEWER"
	opts.Now = func() time.Time { return h.now }

	exec, err := NewExecutor(Deps{
		KillSwitch: killSwitchFunc(func() bool { return bool(*h.kill) }),
		Evaluator:  h.evaluator,
		Reviser:    h.reviser,
		Gate:       h.gate,
		Sender:     h.sender,
		Jobs:       store,
		Validator:  h.validator,
		Notifier:   h.notifier,
		Links:      fakeLinks{},
		Drafts:     h.drafts,
	}, opts)
	require.NoError(t, err)
	h.exec = exec
	return h
}

type killSwitchFunc func() bool

func (f killSwitchFunc) Engaged(context.Context) bool { return f() }

func threshold(v float64) *float64 { return &v }

func gatedContext() SendContext {
	return SendContext{
		WorkspaceID:      "ws-1",
		WorkspaceLabel:   "Acme Outbound",
		LeadID:           "lead-1",
		TriggerMessageID: "msg-1",
		DraftID:          "draft-1",
		DraftContent:     "Hi Dana, Tuesday at 10am works. I'll send an invite.",
		Channel:          ChannelEmail,
		Conversation: Conversation{
			LatestInbound: "Could we meet Tuesday morning?",
			Subject:       "Re: intro",
			Sentiment:     "positive",
			InboundAt:     fixedNow.Add(-time.Minute),
		},
		Lead: Lead{Name: "Dana Scully", Email: "dana@example.com"},
		Campaign: &Campaign{
			ID:        "camp-1",
			Name:      "Q2 Founders",
			Mode:      AutomationFullAuto,
			Threshold: threshold(0.9),
		},
		ValidateImmediateSend: true,
	}
}
