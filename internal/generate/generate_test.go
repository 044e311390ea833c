package generate

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/nbakr/marko/internal/agents"
	"github.com/nbakr/marko/internal/brief"
	"github.com/nbakr/marko/internal/config"
	"github.com/nbakr/marko/internal/knowledge"
	"github.com/nbakr/marko/internal/llm"
	"github.com/nbakr/marko/internal/verify"
)

type stubRetriever struct {
	examples []knowledge.RankedExample
	queries  []string
}

func (s *stubRetriever) Search(ctx context.Context, ns knowledge.Namespace, query string, limit int) ([]knowledge.SearchResult, error) {
	return nil, nil
}

func (s *stubRetriever) RankedExamples(ctx context.Context, ns knowledge.Namespace, query string, limit int) ([]knowledge.RankedExample, error) {
	s.queries = append(s.queries, query)
	return s.examples, nil
}

type stubProvider struct {
	response string
	requests []llm.CompletionRequest
}

func (s *stubProvider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	s.requests = append(s.requests, req)
	return &llm.CompletionResponse{Content: s.response}, nil
}

func (s *stubProvider) Name() string { return "stub" }

func testBrief() *brief.Brief {
	return &brief.Brief{
		TargetAudience:   "new parents",
		PainArea:         "sleep deprivation",
		FunnelStage:      brief.FunnelAwareness,
		ComplianceLevel:  "standard",
		DesiredAction:    "book a consultation",
		ValueProposition: "rest without guilt",
		KeyMessages:      []string{"small habits compound"},
		Tone:             "warm",
		Constraints:      []string{"no medical claims"},
		Programs:         []string{"Restful Nights"},
		Centers:          []string{"Downtown"},
		PricePoints:      []string{"$49/month"},
		Platform:         "instagram",
	}
}

func testVerification() *verify.Result {
	return &verify.Result{
		Score:            90,
		VerifiedFacts:    []string{"The Restful Nights program runs six weeks"},
		UnverifiedClaims: []string{"cures insomnia"},
		Corrections: []verify.Correction{
			{Claimed: "open seven days a week", Corrected: "open weekdays only"},
		},
	}
}

func testPlatforms() map[string]config.PlatformRules {
	return map[string]config.PlatformRules{
		"instagram": {MaxLength: 2200, MaxHashtags: 5, CTAStyle: "soft"},
	}
}

func testEngine(provider llm.Provider, retriever knowledge.Retriever, platforms map[string]config.PlatformRules) *Engine {
	return NewEngine(provider,
		agents.Settings{Model: "test-model", Temperature: 0.8},
		agents.Settings{Model: "test-model", Temperature: 0.7},
		retriever, platforms)
}

func TestPreviewUsesRankedExamples(t *testing.T) {
	retriever := &stubRetriever{examples: []knowledge.RankedExample{
		{Snippet: knowledge.Snippet{ID: "ex-1", Content: "Example content about rest"}, Score: 0.9},
	}}
	provider := &stubProvider{response: `{"hook": "Tired of being tired?", "open_loops": ["There is one habit most parents skip"], "promise": "A calmer bedtime in two weeks"}`}
	engine := testEngine(provider, retriever, testPlatforms())

	preview, err := engine.Preview(context.Background(), testBrief(), testVerification(), nil)
	if err != nil {
		t.Fatalf("Preview: %v", err)
	}
	if preview.ID == "" {
		t.Error("expected preview to get an ID")
	}
	if preview.Hook != "Tired of being tired?" {
		t.Errorf("unexpected hook %q", preview.Hook)
	}
	if len(retriever.queries) != 1 {
		t.Fatalf("expected one example lookup, got %d", len(retriever.queries))
	}
	if !strings.Contains(retriever.queries[0], "instagram") {
		t.Errorf("example query should include the platform, got %q", retriever.queries[0])
	}

	prompt := provider.requests[0].Messages[1].Content
	if !strings.Contains(prompt, "Example content about rest") {
		t.Error("prompt should include the ranked example")
	}
	if !strings.Contains(prompt, "cures insomnia") {
		t.Error("prompt should list the forbidden unverified claim")
	}
	if !provider.requests[0].JSONMode {
		t.Error("preview request should use JSON mode")
	}
}

func TestPreviewIncludesRevisionNotes(t *testing.T) {
	retriever := &stubRetriever{}
	provider := &stubProvider{response: `{"hook": "h", "open_loops": [], "promise": "p"}`}
	engine := testEngine(provider, retriever, testPlatforms())

	_, err := engine.Preview(context.Background(), testBrief(), testVerification(), []string{"less salesy", "mention the program name"})
	if err != nil {
		t.Fatalf("Preview: %v", err)
	}
	prompt := provider.requests[0].Messages[1].Content
	if !strings.Contains(prompt, "less salesy") || !strings.Contains(prompt, "mention the program name") {
		t.Error("prompt should carry revision notes from rejected previews")
	}
}

func TestPreviewRejectsFlaggedClaims(t *testing.T) {
	retriever := &stubRetriever{}
	provider := &stubProvider{response: `{"hook": "This program cures insomnia", "open_loops": [], "promise": "p"}`}
	engine := testEngine(provider, retriever, testPlatforms())

	_, err := engine.Preview(context.Background(), testBrief(), testVerification(), nil)
	var cv *ContractViolationError
	if !errors.As(err, &cv) {
		t.Fatalf("expected ContractViolationError, got %v", err)
	}
	if cv.Artifact != "preview" || cv.Claim != "cures insomnia" {
		t.Errorf("unexpected violation: %+v", cv)
	}
}

func TestContentConsistentWithPreview(t *testing.T) {
	retriever := &stubRetriever{}
	provider := &stubProvider{response: `{"body": "Tired of being tired? Here is the habit.", "hashtags": ["#rest", "#parents"], "call_to_action": "Book a free consult"}`}
	engine := testEngine(provider, retriever, testPlatforms())

	preview := &Preview{ID: "prev-1", Hook: "Tired of being tired?", Promise: "A calmer bedtime"}
	content, err := engine.Content(context.Background(), testBrief(), testVerification(), preview)
	if err != nil {
		t.Fatalf("Content: %v", err)
	}
	if content.PreviewID != "prev-1" {
		t.Errorf("content should reference the approved preview, got %q", content.PreviewID)
	}
	if content.Platform != "instagram" {
		t.Errorf("content platform = %q", content.Platform)
	}

	prompt := provider.requests[0].Messages[1].Content
	if !strings.Contains(prompt, "Tired of being tired?") {
		t.Error("prompt should carry the approved hook")
	}
	if !strings.Contains(prompt, "A calmer bedtime") {
		t.Error("prompt should carry the approved promise")
	}
	if !strings.Contains(prompt, "2200") {
		t.Error("prompt should state the platform length limit")
	}
}

func TestContentRejectsCorrectedClaim(t *testing.T) {
	retriever := &stubRetriever{}
	provider := &stubProvider{response: `{"body": "We are open seven days a week.", "hashtags": [], "call_to_action": "Visit us"}`}
	engine := testEngine(provider, retriever, testPlatforms())

	preview := &Preview{ID: "prev-1", Hook: "h", Promise: "p"}
	_, err := engine.Content(context.Background(), testBrief(), testVerification(), preview)
	var cv *ContractViolationError
	if !errors.As(err, &cv) {
		t.Fatalf("expected ContractViolationError, got %v", err)
	}
	if cv.Artifact != "content" {
		t.Errorf("artifact = %q", cv.Artifact)
	}
}

func TestContentEnforcesHashtagLimit(t *testing.T) {
	retriever := &stubRetriever{}
	provider := &stubProvider{response: `{"body": "b", "hashtags": ["#a", "#b", "#c", "#d", "#e", "#f", "#g"], "call_to_action": "cta"}`}
	engine := testEngine(provider, retriever, testPlatforms())

	preview := &Preview{ID: "prev-1", Hook: "h", Promise: "p"}
	content, err := engine.Content(context.Background(), testBrief(), testVerification(), preview)
	if err != nil {
		t.Fatalf("Content: %v", err)
	}
	if len(content.Hashtags) != 5 {
		t.Errorf("expected hashtags trimmed to 5, got %d", len(content.Hashtags))
	}
}

func TestContentRejectsUnknownPlatform(t *testing.T) {
	engine := testEngine(&stubProvider{}, &stubRetriever{}, testPlatforms())
	b := testBrief()
	b.Platform = "billboard"

	_, err := engine.Content(context.Background(), b, testVerification(), &Preview{ID: "p"})
	if err == nil {
		t.Fatal("expected an error for a platform without rules")
	}
}

func TestContentRejectsOverlongBody(t *testing.T) {
	platforms := map[string]config.PlatformRules{
		"instagram": {MaxLength: 10, MaxHashtags: 5, CTAStyle: "soft"},
	}
	provider := &stubProvider{response: `{"body": "this body is much longer than ten characters", "hashtags": [], "call_to_action": "cta"}`}
	engine := testEngine(provider, &stubRetriever{}, platforms)

	_, err := engine.Content(context.Background(), testBrief(), testVerification(), &Preview{ID: "p"})
	if err == nil {
		t.Fatal("expected an error for a body over the platform limit")
	}
}

func TestEngineUsesPerAgentSettings(t *testing.T) {
	provider := &stubProvider{response: `{"hook": "h", "open_loops": [], "promise": "p", "body": "h", "hashtags": [], "call_to_action": "c"}`}
	engine := NewEngine(provider,
		agents.Settings{Model: "preview-model", Temperature: 0.9},
		agents.Settings{Model: "content-model", Temperature: 0.4},
		&stubRetriever{}, testPlatforms())

	if _, err := engine.Preview(context.Background(), testBrief(), testVerification(), nil); err != nil {
		t.Fatalf("Preview: %v", err)
	}
	preview := &Preview{ID: "prev-1", Hook: "h", Promise: "p"}
	if _, err := engine.Content(context.Background(), testBrief(), testVerification(), preview); err != nil {
		t.Fatalf("Content: %v", err)
	}

	if provider.requests[0].Model != "preview-model" || provider.requests[0].Temperature != 0.9 {
		t.Errorf("preview request = %q at %v", provider.requests[0].Model, provider.requests[0].Temperature)
	}
	if provider.requests[1].Model != "content-model" || provider.requests[1].Temperature != 0.4 {
		t.Errorf("content request = %q at %v", provider.requests[1].Model, provider.requests[1].Temperature)
	}
}
