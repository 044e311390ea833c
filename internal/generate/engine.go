package generate

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/nbakr/marko/internal/agents"
	"github.com/nbakr/marko/internal/brief"
	"github.com/nbakr/marko/internal/config"
	"github.com/nbakr/marko/internal/knowledge"
	"github.com/nbakr/marko/internal/llm"
	"github.com/nbakr/marko/internal/verify"
)

const exampleCount = 3

// Engine produces the two-stage creative artifact: a preview the user
// approves, then the full content. The preview and content agents carry
// their own resolved model and temperature.
type Engine struct {
	provider  llm.Provider
	preview   agents.Settings
	content   agents.Settings
	retriever knowledge.Retriever
	platforms map[string]config.PlatformRules
}

// NewEngine creates a generation engine.
func NewEngine(provider llm.Provider, preview, content agents.Settings, retriever knowledge.Retriever, platforms map[string]config.PlatformRules) *Engine {
	return &Engine{
		provider:  provider,
		preview:   preview,
		content:   content,
		retriever: retriever,
		platforms: platforms,
	}
}

// Examples returns the ranked example set the engine would use for a
// query, so callers can attribute generated content to the learnings that
// boosted it.
func (e *Engine) Examples(ctx context.Context, query string) ([]knowledge.RankedExample, error) {
	return e.retriever.RankedExamples(ctx, knowledge.NamespaceExamples, query, exampleCount)
}

// Preview generates the hook/open-loop/promise preview from a verified
// brief. Revision notes from rejected previews are appended to the prompt.
// Flagged claims must not appear in the output; if they do, the artifact is
// discarded with a ContractViolationError.
func (e *Engine) Preview(ctx context.Context, b *brief.Brief, verification *verify.Result, revisionNotes []string) (*Preview, error) {
	examples, err := e.retriever.RankedExamples(ctx, knowledge.NamespaceExamples, exampleQuery(b), exampleCount)
	if err != nil {
		return nil, fmt.Errorf("ranking examples: %w", err)
	}

	prompt := buildPreviewPrompt(b, verification, examples, revisionNotes)
	resp, err := e.provider.Complete(ctx, llm.CompletionRequest{
		Model: e.preview.Model,
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: previewSystemPrompt},
			{Role: llm.RoleUser, Content: prompt},
		},
		MaxTokens:   1024,
		Temperature: e.preview.Temperature,
		JSONMode:    true,
	})
	if err != nil {
		return nil, fmt.Errorf("preview completion: %w", err)
	}

	var preview Preview
	if err := json.Unmarshal([]byte(resp.Content), &preview); err != nil {
		return nil, fmt.Errorf("parsing preview: %w", err)
	}
	preview.ID = uuid.NewString()

	text := preview.Hook + "\n" + strings.Join(preview.OpenLoops, "\n") + "\n" + preview.Promise
	if claim := flaggedClaimIn(text, verification); claim != "" {
		return nil, &ContractViolationError{Artifact: "preview", Claim: claim}
	}

	return &preview, nil
}

// Content generates the full artifact from the approved preview. The body
// must stay consistent with the preview's hook and promise and respect the
// platform's formatting rules.
func (e *Engine) Content(ctx context.Context, b *brief.Brief, verification *verify.Result, approved *Preview) (*Content, error) {
	rules, ok := e.platforms[b.Platform]
	if !ok {
		return nil, fmt.Errorf("no formatting rules for platform %q", b.Platform)
	}

	prompt := buildContentPrompt(b, verification, approved, rules)
	resp, err := e.provider.Complete(ctx, llm.CompletionRequest{
		Model: e.content.Model,
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: contentSystemPrompt},
			{Role: llm.RoleUser, Content: prompt},
		},
		MaxTokens:   2048,
		Temperature: e.content.Temperature,
		JSONMode:    true,
	})
	if err != nil {
		return nil, fmt.Errorf("content completion: %w", err)
	}

	var content Content
	if err := json.Unmarshal([]byte(resp.Content), &content); err != nil {
		return nil, fmt.Errorf("parsing content: %w", err)
	}
	content.ID = uuid.NewString()
	content.PreviewID = approved.ID
	content.Platform = b.Platform

	if claim := flaggedClaimIn(content.Body, verification); claim != "" {
		return nil, &ContractViolationError{Artifact: "content", Claim: claim}
	}
	if rules.MaxLength > 0 && len(content.Body) > rules.MaxLength {
		return nil, fmt.Errorf("content body exceeds %s limit of %d characters", b.Platform, rules.MaxLength)
	}
	if rules.MaxHashtags >= 0 && len(content.Hashtags) > rules.MaxHashtags {
		content.Hashtags = content.Hashtags[:rules.MaxHashtags]
	}

	return &content, nil
}

// flaggedClaimIn returns the first unverified or corrected claim found in
// the text, or "".
func flaggedClaimIn(text string, verification *verify.Result) string {
	if verification == nil {
		return ""
	}
	lower := strings.ToLower(text)
	for _, claim := range verification.UnverifiedClaims {
		if strings.Contains(lower, strings.ToLower(claim)) {
			return claim
		}
	}
	for _, c := range verification.Corrections {
		if strings.Contains(lower, strings.ToLower(c.Claimed)) {
			return c.Claimed
		}
	}
	return ""
}

func exampleQuery(b *brief.Brief) string {
	return strings.Join([]string{b.Platform, b.FunnelStage, b.PainArea, b.TargetAudience}, " ")
}

func buildPreviewPrompt(b *brief.Brief, verification *verify.Result, examples []knowledge.RankedExample, revisionNotes []string) string {
	var sb strings.Builder

	briefJSON, _ := json.MarshalIndent(b, "", "  ")
	sb.WriteString("Brief:\n")
	sb.Write(briefJSON)
	sb.WriteString("\n\nVerified facts you may use:\n")
	for _, f := range verification.VerifiedFacts {
		sb.WriteString("- " + f + "\n")
	}
	if len(verification.UnverifiedClaims) > 0 || len(verification.Corrections) > 0 {
		sb.WriteString("\nClaims you must NOT include:\n")
		for _, c := range verification.UnverifiedClaims {
			sb.WriteString("- " + c + "\n")
		}
		for _, c := range verification.Corrections {
			sb.WriteString("- " + c.Claimed + " (use instead: " + c.Corrected + ")\n")
		}
	}

	if len(examples) > 0 {
		sb.WriteString("\nHigh-performing examples, best first:\n")
		for i, ex := range examples {
			fmt.Fprintf(&sb, "\nExample %d:\n%s\n", i+1, ex.Snippet.Content)
		}
	}

	if len(revisionNotes) > 0 {
		sb.WriteString("\nThe user rejected earlier previews. Revision notes, oldest first:\n")
		for _, note := range revisionNotes {
			sb.WriteString("- " + note + "\n")
		}
	}

	return sb.String()
}

func buildContentPrompt(b *brief.Brief, verification *verify.Result, approved *Preview, rules config.PlatformRules) string {
	var sb strings.Builder

	briefJSON, _ := json.MarshalIndent(b, "", "  ")
	sb.WriteString("Brief:\n")
	sb.Write(briefJSON)

	sb.WriteString("\n\nApproved preview (the content must deliver on this hook and promise):\n")
	sb.WriteString("Hook: " + approved.Hook + "\n")
	for _, loop := range approved.OpenLoops {
		sb.WriteString("Open loop: " + loop + "\n")
	}
	sb.WriteString("Promise: " + approved.Promise + "\n")

	fmt.Fprintf(&sb, "\nPlatform: %s (max %d characters, up to %d hashtags, %s call to action)\n",
		b.Platform, rules.MaxLength, rules.MaxHashtags, rules.CTAStyle)

	if len(verification.UnverifiedClaims) > 0 || len(verification.Corrections) > 0 {
		sb.WriteString("\nClaims you must NOT include:\n")
		for _, c := range verification.UnverifiedClaims {
			sb.WriteString("- " + c + "\n")
		}
		for _, c := range verification.Corrections {
			sb.WriteString("- " + c.Claimed + "\n")
		}
	}

	return sb.String()
}

const previewSystemPrompt = `You write content previews for a wellness brand. A preview is the skeleton the user approves before full content is written.

Respond with valid JSON:
{"hook": "the opening line that stops the scroll", "open_loops": ["curiosity statements left unresolved"], "promise": "what the reader will get"}

Use only verified facts. Never include claims listed as forbidden.`

const contentSystemPrompt = `You write final marketing content for a wellness brand from an approved preview.

Respond with valid JSON:
{"body": "the full content", "hashtags": ["tag"], "call_to_action": "closing CTA"}

The body must open with the approved hook, resolve the open loops, and deliver the promise. Respect the platform limits given. Never include claims listed as forbidden.`
