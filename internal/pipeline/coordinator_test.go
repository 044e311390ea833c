package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/nbakr/marko/internal/agents"
	"github.com/nbakr/marko/internal/audit"
	"github.com/nbakr/marko/internal/config"
	"github.com/nbakr/marko/internal/db"
	"github.com/nbakr/marko/internal/feedback"
	"github.com/nbakr/marko/internal/generate"
	"github.com/nbakr/marko/internal/knowledge"
	"github.com/nbakr/marko/internal/learning"
	"github.com/nbakr/marko/internal/llm"
	"github.com/nbakr/marko/internal/verify"
)

// funcProvider routes completions through a test function.
type funcProvider struct {
	mu       sync.Mutex
	fn       func(req llm.CompletionRequest) (*llm.CompletionResponse, error)
	requests []llm.CompletionRequest
}

func (p *funcProvider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	p.mu.Lock()
	p.requests = append(p.requests, req)
	p.mu.Unlock()
	return p.fn(req)
}

func (p *funcProvider) Name() string { return "func" }

// fixedRetriever serves the same evidence and examples for every query.
type fixedRetriever struct {
	evidence []knowledge.SearchResult
	examples []knowledge.RankedExample
}

func (r *fixedRetriever) Search(ctx context.Context, ns knowledge.Namespace, query string, limit int) ([]knowledge.SearchResult, error) {
	return r.evidence, nil
}

func (r *fixedRetriever) RankedExamples(ctx context.Context, ns knowledge.Namespace, query string, limit int) ([]knowledge.RankedExample, error) {
	return r.examples, nil
}

type fixture struct {
	co       *Coordinator
	store    *Store
	db       *db.DB
	learning *learning.Store
	audits   *audit.Store

	briefing  *funcProvider
	verdicts  *funcProvider
	genny     *funcProvider
	extract   *funcProvider
	retriever *fixedRetriever
}

// completeBriefResponse is a briefing-agent reply that fills every field
// in one turn.
func completeBriefResponse() string {
	resp := map[string]interface{}{
		"reply": "Got everything I need.",
		"fields": map[string][]string{
			"target_audience":   {"new parents"},
			"pain_area":         {"sleep deprivation"},
			"funnel_stage":      {"awareness"},
			"compliance_level":  {"standard"},
			"desired_action":    {"book a consultation"},
			"value_proposition": {"rest without guilt"},
			"key_messages":      {"small habits compound"},
			"tone":              {"warm"},
			"constraints":       {"no medical claims"},
			"programs":          {"Restful Nights"},
			"centers":           {"Downtown"},
			"price_points":      {"$49/month"},
			"platform":          {"instagram"},
		},
		"has_campaign": false,
	}
	b, _ := json.Marshal(resp)
	return string(b)
}

const previewJSON = `{"hook": "Tired of being tired?", "open_loops": ["One habit changes everything"], "promise": "A calmer bedtime"}`
const contentJSON = `{"body": "Tired of being tired? Small habits compound.", "hashtags": ["#rest"], "call_to_action": "Book a free consult"}`

func newFixture(t *testing.T) *fixture {
	t.Helper()
	database, err := db.OpenMemory()
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	cfg := config.DefaultConfig()

	f := &fixture{
		store:    NewStore(database),
		db:       database,
		learning: learning.NewStore(database),
		audits:   audit.NewStore(database),
	}

	f.briefing = &funcProvider{fn: func(req llm.CompletionRequest) (*llm.CompletionResponse, error) {
		return &llm.CompletionResponse{Content: completeBriefResponse()}, nil
	}}
	f.verdicts = &funcProvider{fn: func(req llm.CompletionRequest) (*llm.CompletionResponse, error) {
		return &llm.CompletionResponse{Content: `{"status": "supported"}`}, nil
	}}
	f.genny = &funcProvider{fn: func(req llm.CompletionRequest) (*llm.CompletionResponse, error) {
		if strings.Contains(req.Messages[0].Content, "previews") {
			return &llm.CompletionResponse{Content: previewJSON}, nil
		}
		return &llm.CompletionResponse{Content: contentJSON}, nil
	}}
	f.extract = &funcProvider{fn: func(req llm.CompletionRequest) (*llm.CompletionResponse, error) {
		return &llm.CompletionResponse{Content: `{"learnings": []}`}, nil
	}}

	f.retriever = &fixedRetriever{
		evidence: []knowledge.SearchResult{
			{Snippet: knowledge.Snippet{ID: "kb-1", Content: "Restful Nights runs six weeks at Downtown."}, Similarity: 0.9},
		},
		examples: []knowledge.RankedExample{
			{Snippet: knowledge.Snippet{ID: "ex-1", Content: "A high-performing post"}, Score: 0.9},
		},
	}

	invoker := agents.NewInvoker(f.briefing, cfg, nil, nil)
	verifier := verify.NewEngine(f.retriever, f.verdicts, agents.Resolve(cfg, agents.RoleVerification), cfg.Pipeline.SimilarityFloor)
	generator := generate.NewEngine(f.genny,
		agents.Resolve(cfg, agents.RolePreview), agents.Resolve(cfg, agents.RoleContent),
		f.retriever, cfg.Platforms)
	extractor := feedback.NewExtractor(f.extract, agents.Resolve(cfg, agents.RoleFeedback), cfg.Learning)
	gate := learning.NewGate(f.learning, cfg.Learning.AutoApplyMinConfidence)

	f.co = NewCoordinator(f.store, invoker, verifier, generator, extractor,
		feedback.NewStore(database), f.learning, gate, f.audits, cfg)
	return f
}

// contentCalls counts content-stage completions sent to the generation
// provider.
func (f *fixture) contentCalls() int {
	f.genny.mu.Lock()
	defer f.genny.mu.Unlock()
	n := 0
	for _, req := range f.genny.requests {
		if strings.Contains(req.Messages[0].Content, "final marketing content") {
			n++
		}
	}
	return n
}

func TestHappyPathBriefingToReview(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	conv, reply, err := f.co.Start(ctx, "user-1")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if reply.Stage != StageBriefing {
		t.Fatalf("start stage = %s", reply.Stage)
	}

	reply, err = f.co.Message(ctx, conv.ID, "I want an instagram post for new parents about sleep")
	if err != nil {
		t.Fatalf("Message: %v", err)
	}
	if reply.Stage != StagePreview {
		t.Fatalf("expected complete brief to land in preview, got %s", reply.Stage)
	}
	if reply.Preview == nil || reply.Preview.Hook == "" {
		t.Fatal("reply should carry the generated preview")
	}
	if reply.Verification == nil || reply.Verification.Score != 100 {
		t.Fatalf("expected all-supported verification, got %+v", reply.Verification)
	}

	reply, err = f.co.ApprovePreview(ctx, conv.ID)
	if err != nil {
		t.Fatalf("ApprovePreview: %v", err)
	}
	if reply.Stage != StageReview {
		t.Fatalf("expected review after approval, got %s", reply.Stage)
	}
	if reply.Content == nil || reply.Content.Body == "" {
		t.Fatal("reply should carry the generated content")
	}

	reply, err = f.co.SubmitFeedback(ctx, conv.ID, &feedback.Feedback{Rating: 5, Comment: "great"})
	if err != nil {
		t.Fatalf("SubmitFeedback: %v", err)
	}
	if reply.Stage != StageComplete {
		t.Fatalf("expected complete after feedback, got %s", reply.Stage)
	}

	stored, err := f.store.Get(ctx, conv.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if stored.Status != StatusCompleted {
		t.Errorf("status = %s", stored.Status)
	}
}

func TestNoContentWithoutApproval(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	conv, _, err := f.co.Start(ctx, "user-1")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := f.co.Message(ctx, conv.ID, "full brief"); err != nil {
		t.Fatalf("Message: %v", err)
	}

	// Free text in the preview stage is not an approval.
	_, err = f.co.Message(ctx, conv.ID, "looks good I guess")
	var wrongStage *WrongStageError
	if !errors.As(err, &wrongStage) {
		t.Fatalf("expected WrongStageError, got %v", err)
	}
	if n := f.contentCalls(); n != 0 {
		t.Fatalf("content generated without approval: %d calls", n)
	}

	// Feedback before delivery is rejected too.
	_, err = f.co.SubmitFeedback(ctx, conv.ID, &feedback.Feedback{Rating: 5})
	if !errors.As(err, &wrongStage) {
		t.Fatalf("expected WrongStageError for early feedback, got %v", err)
	}
}

func TestRevisedPreviewsDiscardedAndSingleContentCall(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	conv, _, err := f.co.Start(ctx, "user-1")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := f.co.Message(ctx, conv.ID, "full brief"); err != nil {
		t.Fatalf("Message: %v", err)
	}

	firstID := mustConv(t, f, conv.ID).State.PreviewID

	reply, err := f.co.RevisePreview(ctx, conv.ID, "punchier hook")
	if err != nil {
		t.Fatalf("RevisePreview: %v", err)
	}
	secondID := reply.Preview.ID
	if secondID == firstID {
		t.Fatal("revision should generate a fresh preview")
	}

	if _, err := f.co.RevisePreview(ctx, conv.ID, "shorter"); err != nil {
		t.Fatalf("RevisePreview: %v", err)
	}
	thirdID := mustConv(t, f, conv.ID).State.PreviewID

	// Both rejected previews are marked discarded; the pending one is not.
	for _, tc := range []struct {
		id        string
		discarded bool
	}{{firstID, true}, {secondID, true}, {thirdID, false}} {
		var discarded int
		err := f.db.QueryRow(`SELECT discarded FROM content_previews WHERE id = ?`, tc.id).Scan(&discarded)
		if err != nil {
			t.Fatalf("querying preview %s: %v", tc.id, err)
		}
		if (discarded != 0) != tc.discarded {
			t.Errorf("preview %s discarded = %d, want %v", tc.id, discarded, tc.discarded)
		}
	}

	// Revision notes accumulate for the regeneration prompts.
	state := mustConv(t, f, conv.ID).State
	if len(state.RevisionNotes) != 2 || state.RejectedPreviews != 2 {
		t.Errorf("revision state = %+v", state)
	}

	if _, err := f.co.ApprovePreview(ctx, conv.ID); err != nil {
		t.Fatalf("ApprovePreview: %v", err)
	}
	if n := f.contentCalls(); n != 1 {
		t.Errorf("expected exactly one content generation, got %d", n)
	}
}

func TestVerificationFailureLoopsToBriefing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// The key message cannot be verified.
	f.verdicts.fn = func(req llm.CompletionRequest) (*llm.CompletionResponse, error) {
		if strings.Contains(req.Messages[1].Content, "small habits compound") {
			return &llm.CompletionResponse{Content: `{"status": "unrelated"}`}, nil
		}
		return &llm.CompletionResponse{Content: `{"status": "supported"}`}, nil
	}

	conv, _, err := f.co.Start(ctx, "user-1")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	reply, err := f.co.Message(ctx, conv.ID, "full brief")
	if err != nil {
		t.Fatalf("Message: %v", err)
	}

	// 3 verified, 1 unverified: 75, below the default threshold of 80.
	if reply.Stage != StageBriefing {
		t.Fatalf("expected failed verification to return to briefing, got %s", reply.Stage)
	}
	if !strings.Contains(reply.Text, "small habits compound") {
		t.Errorf("failure message should name the unverified claim: %q", reply.Text)
	}
	if reply.Verification == nil || reply.Verification.Score != 75 {
		t.Errorf("verification = %+v", reply.Verification)
	}

	// The user fixes the brief; the next round verifies clean.
	f.verdicts.fn = func(req llm.CompletionRequest) (*llm.CompletionResponse, error) {
		return &llm.CompletionResponse{Content: `{"status": "supported"}`}, nil
	}
	reply, err = f.co.Message(ctx, conv.ID, "drop that claim")
	if err != nil {
		t.Fatalf("Message after correction: %v", err)
	}
	if reply.Stage != StagePreview {
		t.Fatalf("expected corrected brief to reach preview, got %s", reply.Stage)
	}
}

func TestVerificationExhaustionFailsHard(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.verdicts.fn = func(req llm.CompletionRequest) (*llm.CompletionResponse, error) {
		return &llm.CompletionResponse{Content: `{"status": "unrelated"}`}, nil
	}

	conv, _, err := f.co.Start(ctx, "user-1")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	var verifyErr *VerificationFailedError
	for i := 0; i < 10; i++ {
		_, err = f.co.Message(ctx, conv.ID, "same brief again")
		if errors.As(err, &verifyErr) {
			break
		}
		if err != nil {
			t.Fatalf("Message: %v", err)
		}
	}
	if verifyErr == nil {
		t.Fatal("expected VerificationFailedError after repeated failures")
	}
	if verifyErr.Score != 0 {
		t.Errorf("score = %v", verifyErr.Score)
	}
}

func TestFieldRetryCapFailsBriefing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// The agent never manages to extract a platform.
	f.briefing.fn = func(req llm.CompletionRequest) (*llm.CompletionResponse, error) {
		return &llm.CompletionResponse{Content: `{"reply": "What platform?", "fields": {}, "has_campaign": null}`}, nil
	}

	conv, _, err := f.co.Start(ctx, "user-1")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	var briefErr *BriefIncompleteError
	for i := 0; i < 10; i++ {
		_, err = f.co.Message(ctx, conv.ID, "no idea")
		if errors.As(err, &briefErr) {
			break
		}
		if err != nil {
			t.Fatalf("Message: %v", err)
		}
	}
	if briefErr == nil {
		t.Fatal("expected BriefIncompleteError after the retry cap")
	}
	if len(briefErr.Missing) == 0 {
		t.Error("error should name the exhausted fields")
	}
}

func TestFeedbackRoutesLearningsAndRecordsApplications(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// An approved learning boosts the example used for generation.
	applied := learning.Learning{
		Type:        learning.TypeStyle,
		Subject:     "hook style",
		Content:     "question hooks outperform statements",
		Confidence:  0.8,
		Status:      learning.StatusApproved,
		ExampleRefs: []string{"ex-1"},
	}
	if err := f.learning.Insert(ctx, &applied); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	// The ranked example carries the learning that boosted it.
	f.retriever.examples = []knowledge.RankedExample{
		{Snippet: knowledge.Snippet{ID: "ex-1", Content: "A high-performing post"}, Score: 0.9, LearningIDs: []string{applied.ID}},
	}

	f.extract.fn = func(req llm.CompletionRequest) (*llm.CompletionResponse, error) {
		return &llm.CompletionResponse{Content: `{"learnings": [
			{"type": "preference", "subject": "cta softness", "content": "soft CTAs convert better here", "negative": false, "brand_guideline": false}
		]}`}, nil
	}

	conv, _, err := f.co.Start(ctx, "user-1")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := f.co.Message(ctx, conv.ID, "full brief"); err != nil {
		t.Fatalf("Message: %v", err)
	}
	if _, err := f.co.ApprovePreview(ctx, conv.ID); err != nil {
		t.Fatalf("ApprovePreview: %v", err)
	}
	if _, err := f.co.SubmitFeedback(ctx, conv.ID, &feedback.Feedback{Rating: 5, Comment: "the soft CTA worked"}); err != nil {
		t.Fatalf("SubmitFeedback: %v", err)
	}

	// The extracted preference (base 0.5, below 0.6) waits for an admin.
	pending, err := f.learning.List(ctx, learning.ListFilter{Status: learning.StatusPending})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(pending) != 1 || pending[0].Subject != "cta softness" {
		t.Fatalf("pending learnings = %+v", pending)
	}
	if pending[0].GateReason == "" {
		t.Error("pending learning should carry a gate reason")
	}

	// Positive feedback credits the applied learning.
	got, err := f.learning.Get(ctx, applied.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.AppliedCount != 1 || got.SuccessCount != 1 {
		t.Errorf("applied=%d success=%d, want 1/1", got.AppliedCount, got.SuccessCount)
	}

	// Audit trail covers feedback intake and the gate decision.
	entries, err := f.audits.List(ctx, audit.ListFilter{})
	if err != nil {
		t.Fatalf("audit List: %v", err)
	}
	var sawFeedback, sawQueued bool
	for _, e := range entries {
		if e.Action == audit.ActionFeedbackReceived {
			sawFeedback = true
		}
		if e.Action == audit.ActionLearningQueued {
			sawQueued = true
		}
	}
	if !sawFeedback || !sawQueued {
		t.Errorf("audit trail incomplete: feedback=%v queued=%v", sawFeedback, sawQueued)
	}
}

func TestCompletedConversationRejectsInteraction(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	conv, _, err := f.co.Start(ctx, "user-1")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := f.co.Message(ctx, conv.ID, "full brief"); err != nil {
		t.Fatalf("Message: %v", err)
	}
	if _, err := f.co.ApprovePreview(ctx, conv.ID); err != nil {
		t.Fatalf("ApprovePreview: %v", err)
	}
	if _, err := f.co.SubmitFeedback(ctx, conv.ID, &feedback.Feedback{Rating: 4}); err != nil {
		t.Fatalf("SubmitFeedback: %v", err)
	}

	if _, err := f.co.Message(ctx, conv.ID, "one more thing"); !errors.Is(err, ErrConversationDone) {
		t.Errorf("expected ErrConversationDone, got %v", err)
	}
}

func TestTranscriptRecordsDecisions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	conv, _, err := f.co.Start(ctx, "user-1")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := f.co.Message(ctx, conv.ID, "full brief"); err != nil {
		t.Fatalf("Message: %v", err)
	}
	if _, err := f.co.RevisePreview(ctx, conv.ID, "tighter"); err != nil {
		t.Fatalf("RevisePreview: %v", err)
	}
	if _, err := f.co.ApprovePreview(ctx, conv.ID); err != nil {
		t.Fatalf("ApprovePreview: %v", err)
	}

	turns, err := f.store.Turns(ctx, conv.ID)
	if err != nil {
		t.Fatalf("Turns: %v", err)
	}
	var decisions []string
	for _, turn := range turns {
		if turn.Decision != "" {
			decisions = append(decisions, turn.Decision)
		}
	}
	want := []string{DecisionPreviewRevised, DecisionPreviewApproved}
	if len(decisions) != len(want) {
		t.Fatalf("decisions = %v", decisions)
	}
	for i := range want {
		if decisions[i] != want[i] {
			t.Errorf("decision[%d] = %q, want %q", i, decisions[i], want[i])
		}
	}
	// Sequence numbers are strictly increasing with no gaps.
	for i, turn := range turns {
		if turn.Seq != i+1 {
			t.Errorf("turn %d has seq %d", i, turn.Seq)
		}
	}
}

func mustConv(t *testing.T, f *fixture, id string) *Conversation {
	t.Helper()
	conv, err := f.store.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if conv == nil {
		t.Fatalf("conversation %s not found", id)
	}
	return conv
}

func TestTranscriptConflictRetriedThenSurfaced(t *testing.T) {
	calls := 0
	err := retryConflicts(3, func() error {
		calls++
		if calls < 3 {
			return ErrPersistenceConflict
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected recovery within the bound, got %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}

	calls = 0
	err = retryConflicts(2, func() error {
		calls++
		return ErrPersistenceConflict
	})
	if !errors.Is(err, ErrPersistenceConflict) {
		t.Fatalf("exhausted retries should surface the conflict, got %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want initial attempt plus 2 retries", calls)
	}

	// Other errors are not retried.
	calls = 0
	boom := errors.New("disk full")
	err = retryConflicts(5, func() error {
		calls++
		return boom
	})
	if !errors.Is(err, boom) || calls != 1 {
		t.Errorf("err = %v after %d calls, want one failing attempt", err, calls)
	}
}
