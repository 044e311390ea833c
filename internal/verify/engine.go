package verify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nbakr/marko/internal/agents"
	"github.com/nbakr/marko/internal/brief"
	"github.com/nbakr/marko/internal/knowledge"
	"github.com/nbakr/marko/internal/llm"
)

// Engine checks a completed brief's factual claims against the wellness
// knowledge base.
type Engine struct {
	retriever knowledge.Retriever
	provider  llm.Provider
	settings  agents.Settings
	// similarityFloor is the minimum retrieval similarity for a snippet to
	// count as evidence for or against a claim.
	similarityFloor float64
}

// NewEngine creates a verification engine using the verification agent's
// resolved settings.
func NewEngine(retriever knowledge.Retriever, provider llm.Provider, settings agents.Settings, similarityFloor float64) *Engine {
	return &Engine{
		retriever:       retriever,
		provider:        provider,
		settings:        settings,
		similarityFloor: similarityFloor,
	}
}

// ExtractClaims derives the atomic checkable claims from a brief: every
// named program and center must exist, and each key message and the value
// proposition are treated as wellness claims.
func ExtractClaims(b *brief.Brief) []Claim {
	var claims []Claim
	for _, p := range b.Programs {
		claims = append(claims, Claim{Kind: ClaimProgram, Text: p})
	}
	for _, c := range b.Centers {
		claims = append(claims, Claim{Kind: ClaimCenter, Text: c})
	}
	if b.ValueProposition != "" {
		claims = append(claims, Claim{Kind: ClaimWellness, Text: b.ValueProposition})
	}
	for _, m := range b.KeyMessages {
		claims = append(claims, Claim{Kind: ClaimWellness, Text: m})
	}
	return claims
}

// Verify checks every claim in the brief and produces a scored result.
func (e *Engine) Verify(ctx context.Context, b *brief.Brief) (*Result, error) {
	result := &Result{
		VerifiedFacts:    []string{},
		UnverifiedClaims: []string{},
		Corrections:      []Correction{},
		KnowledgeRefs:    []string{},
		Recommendations:  []string{},
	}

	refs := make(map[string]bool)
	for _, claim := range ExtractClaims(b) {
		verdict, ref, err := e.checkClaim(ctx, claim)
		if err != nil {
			return nil, fmt.Errorf("checking claim %q: %w", claim.Text, err)
		}
		if ref != "" && !refs[ref] {
			refs[ref] = true
			result.KnowledgeRefs = append(result.KnowledgeRefs, ref)
		}

		switch verdict.Status {
		case verdictSupported:
			result.VerifiedFacts = append(result.VerifiedFacts, claim.Text)
		case verdictContradicted:
			result.Corrections = append(result.Corrections, Correction{
				Claimed:   claim.Text,
				Corrected: verdict.Correction,
			})
			result.Recommendations = append(result.Recommendations,
				fmt.Sprintf("Replace %q with %q", claim.Text, verdict.Correction))
		default:
			result.UnverifiedClaims = append(result.UnverifiedClaims, claim.Text)
			result.Recommendations = append(result.Recommendations,
				fmt.Sprintf("Remove or substantiate the claim %q", claim.Text))
		}
	}

	result.Score = Score(len(result.VerifiedFacts), len(result.UnverifiedClaims), len(result.Corrections))
	return result, nil
}

const (
	verdictSupported    = "supported"
	verdictContradicted = "contradicted"
	verdictUnrelated    = "unrelated"
)

type claimVerdict struct {
	Status     string `json:"status"`
	Correction string `json:"correction,omitempty"`
}

// checkClaim retrieves evidence for one claim and, when evidence exists,
// asks the reasoning service whether it supports or contradicts the claim.
func (e *Engine) checkClaim(ctx context.Context, claim Claim) (*claimVerdict, string, error) {
	results, err := e.retriever.Search(ctx, knowledge.NamespaceWellness, claim.Text, 3)
	if err != nil {
		return nil, "", fmt.Errorf("knowledge search: %w", err)
	}

	var evidence []knowledge.SearchResult
	for _, r := range results {
		if float64(r.Similarity) >= e.similarityFloor {
			evidence = append(evidence, r)
		}
	}
	if len(evidence) == 0 {
		return &claimVerdict{Status: verdictUnrelated}, "", nil
	}

	var sb strings.Builder
	for i, ev := range evidence {
		fmt.Fprintf(&sb, "Snippet %d (%s):\n%s\n\n", i+1, ev.Snippet.Metadata.Source, ev.Snippet.Content)
	}

	resp, err := e.provider.Complete(ctx, llm.CompletionRequest{
		Model: e.settings.Model,
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: claimCheckSystemPrompt},
			{Role: llm.RoleUser, Content: fmt.Sprintf("Claim (%s): %s\n\nKnowledge:\n%s", claim.Kind, claim.Text, sb.String())},
		},
		MaxTokens:   512,
		Temperature: e.settings.Temperature,
		JSONMode:    true,
	})
	if err != nil {
		return nil, "", fmt.Errorf("claim check completion: %w", err)
	}

	var verdict claimVerdict
	if err := json.Unmarshal([]byte(resp.Content), &verdict); err != nil {
		return nil, "", fmt.Errorf("parsing claim verdict: %w", err)
	}
	switch verdict.Status {
	case verdictSupported, verdictContradicted, verdictUnrelated:
	default:
		return nil, "", fmt.Errorf("unknown verdict status %q", verdict.Status)
	}
	if verdict.Status == verdictContradicted && verdict.Correction == "" {
		// A contradiction without a concrete alternative is just a gap.
		verdict.Status = verdictUnrelated
	}

	return &verdict, evidence[0].Snippet.ID, nil
}

const claimCheckSystemPrompt = `You fact-check marketing claims for a wellness brand against knowledge base snippets.

Respond with valid JSON:
{"status": "supported" | "contradicted" | "unrelated", "correction": "the corrected statement, only when status is contradicted"}

Rules:
- "supported": a snippet directly backs the claim.
- "contradicted": a snippet states something incompatible; provide the corrected value.
- "unrelated": the snippets neither back nor contradict the claim.`
