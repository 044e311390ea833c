package verify

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/nbakr/marko/internal/agents"
	"github.com/nbakr/marko/internal/brief"
	"github.com/nbakr/marko/internal/knowledge"
	"github.com/nbakr/marko/internal/llm"
)

// stubRetriever returns canned snippets keyed by a substring of the query.
type stubRetriever struct {
	results map[string][]knowledge.SearchResult
}

func (s *stubRetriever) Search(ctx context.Context, ns knowledge.Namespace, query string, limit int) ([]knowledge.SearchResult, error) {
	for key, res := range s.results {
		if strings.Contains(query, key) {
			return res, nil
		}
	}
	return nil, nil
}

func (s *stubRetriever) RankedExamples(ctx context.Context, ns knowledge.Namespace, query string, limit int) ([]knowledge.RankedExample, error) {
	return nil, nil
}

// verdictProvider answers claim checks with canned verdicts keyed by a
// substring of the claim.
type verdictProvider struct {
	verdicts map[string]claimVerdict
	requests []llm.CompletionRequest
}

func (p *verdictProvider) Name() string { return "stub" }

func (p *verdictProvider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	p.requests = append(p.requests, req)
	user := req.Messages[len(req.Messages)-1].Content
	for key, v := range p.verdicts {
		if strings.Contains(user, key) {
			data, _ := json.Marshal(v)
			return &llm.CompletionResponse{Content: string(data)}, nil
		}
	}
	data, _ := json.Marshal(claimVerdict{Status: verdictUnrelated})
	return &llm.CompletionResponse{Content: string(data)}, nil
}

func snippet(id, content string) []knowledge.SearchResult {
	return []knowledge.SearchResult{{
		Snippet:    knowledge.Snippet{ID: id, Content: content, Metadata: knowledge.SnippetMetadata{Source: "kb.md"}},
		Similarity: 0.9,
	}}
}

func TestScoreFormula(t *testing.T) {
	cases := []struct {
		verified, unverified, corrected int
		want                            float64
	}{
		{5, 0, 0, 100},
		{0, 0, 0, 100},
		{3, 1, 0, 75},
		{2, 0, 1, 50},
		{0, 4, 0, 0},
	}
	for _, tc := range cases {
		got := Score(tc.verified, tc.unverified, tc.corrected)
		if got != tc.want {
			t.Errorf("Score(%d,%d,%d) = %v, want %v", tc.verified, tc.unverified, tc.corrected, got, tc.want)
		}
	}
}

func TestScoreNonIncreasingInCorrections(t *testing.T) {
	prev := Score(5, 0, 0)
	for corrected := 1; corrected <= 5; corrected++ {
		cur := Score(5, 0, corrected)
		if cur > prev {
			t.Fatalf("Score increased with corrections: %v -> %v", prev, cur)
		}
		prev = cur
	}
	// Corrections weigh double.
	if Score(4, 2, 0) <= Score(4, 0, 2) {
		t.Error("a correction should cost more than an unverified claim")
	}
}

func TestPassedAtExactThreshold(t *testing.T) {
	r := &Result{Score: 80}
	if !r.Passed(80) {
		t.Error("score exactly at threshold must pass")
	}
	r.Score = 79.9
	if r.Passed(80) {
		t.Error("score below threshold must not pass")
	}
}

func TestExtractClaims(t *testing.T) {
	b := &brief.Brief{
		Programs:         []string{"energy reset"},
		Centers:          []string{"north center"},
		ValueProposition: "regain energy naturally",
		KeyMessages:      []string{"includes a 30-day money-back guarantee"},
	}
	claims := ExtractClaims(b)
	if len(claims) != 4 {
		t.Fatalf("got %d claims, want 4", len(claims))
	}
	if claims[0].Kind != ClaimProgram || claims[1].Kind != ClaimCenter {
		t.Errorf("claim kinds = %v, %v", claims[0].Kind, claims[1].Kind)
	}
}

func TestVerifyMixedOutcomes(t *testing.T) {
	retriever := &stubRetriever{results: map[string][]knowledge.SearchResult{
		"energy reset":  snippet("w-1", "The energy reset program is a 6-week coaching offering."),
		"north center":  snippet("w-2", "Our only locations are the downtown and riverside centers."),
		"regain energy": snippet("w-3", "Members report improved daily energy."),
	}}
	provider := &verdictProvider{verdicts: map[string]claimVerdict{
		"energy reset":  {Status: verdictSupported},
		"north center":  {Status: verdictContradicted, Correction: "riverside center"},
		"regain energy": {Status: verdictSupported},
	}}

	engine := NewEngine(retriever, provider, agents.Settings{Model: "stub-model", Temperature: 0.1}, 0.6)

	b := &brief.Brief{
		Programs:         []string{"energy reset"},
		Centers:          []string{"north center"},
		ValueProposition: "regain energy naturally",
		KeyMessages:      []string{"includes a 30-day money-back guarantee"},
	}

	result, err := engine.Verify(context.Background(), b)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}

	if len(result.VerifiedFacts) != 2 {
		t.Errorf("VerifiedFacts = %v", result.VerifiedFacts)
	}
	if len(result.UnverifiedClaims) != 1 || !strings.Contains(result.UnverifiedClaims[0], "money-back") {
		t.Errorf("UnverifiedClaims = %v", result.UnverifiedClaims)
	}
	if len(result.Corrections) != 1 || result.Corrections[0].Corrected != "riverside center" {
		t.Errorf("Corrections = %v", result.Corrections)
	}

	// 2 verified, 1 unverified, 1 corrected: 100*2/5 = 40.
	if result.Score != 40 {
		t.Errorf("Score = %v, want 40", result.Score)
	}
	if len(result.Recommendations) != 2 {
		t.Errorf("Recommendations = %v", result.Recommendations)
	}
}

func TestVerifyAllSupportedScores100(t *testing.T) {
	retriever := &stubRetriever{results: map[string][]knowledge.SearchResult{
		"": snippet("w-1", "generic supporting snippet"),
	}}
	provider := &verdictProvider{verdicts: map[string]claimVerdict{
		"": {Status: verdictSupported},
	}}

	engine := NewEngine(retriever, provider, agents.Settings{Model: "stub-model", Temperature: 0.1}, 0.6)
	b := &brief.Brief{Programs: []string{"energy reset"}, ValueProposition: "regain energy"}

	result, err := engine.Verify(context.Background(), b)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if result.Score != 100 {
		t.Errorf("Score = %v, want 100", result.Score)
	}
	// Claim checks run with the verification agent's settings.
	for _, req := range provider.requests {
		if req.Model != "stub-model" || req.Temperature != 0.1 {
			t.Errorf("claim check used %q at %v", req.Model, req.Temperature)
		}
	}
}

func TestVerifyLowSimilarityIsUnverified(t *testing.T) {
	// Evidence exists but below the similarity floor.
	retriever := &stubRetriever{results: map[string][]knowledge.SearchResult{
		"": {{Snippet: knowledge.Snippet{ID: "w-1", Content: "loosely related"}, Similarity: 0.3}},
	}}
	provider := &verdictProvider{verdicts: map[string]claimVerdict{
		"": {Status: verdictSupported},
	}}

	engine := NewEngine(retriever, provider, agents.Settings{Model: "stub-model", Temperature: 0.1}, 0.6)
	b := &brief.Brief{Programs: []string{"energy reset"}}

	result, err := engine.Verify(context.Background(), b)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if len(result.UnverifiedClaims) != 1 {
		t.Errorf("UnverifiedClaims = %v", result.UnverifiedClaims)
	}
	if result.Score != 0 {
		t.Errorf("Score = %v, want 0", result.Score)
	}
}
