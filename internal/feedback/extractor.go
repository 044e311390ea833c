package feedback

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nbakr/marko/internal/agents"
	"github.com/nbakr/marko/internal/config"
	"github.com/nbakr/marko/internal/learning"
	"github.com/nbakr/marko/internal/llm"
)

// Extractor turns user feedback into candidate learnings. Explicit
// feedback is mined with an LLM; implicit signals map directly. Explicit
// candidates start at a higher base confidence than implicit ones because
// a stated opinion carries more information than a behavioral signal.
type Extractor struct {
	provider     llm.Provider
	settings     agents.Settings
	explicitBase float64
	implicitBase float64
}

// NewExtractor creates a feedback extractor using the feedback agent's
// resolved settings and the configured base confidences.
func NewExtractor(provider llm.Provider, settings agents.Settings, cfg config.LearningConfig) *Extractor {
	return &Extractor{
		provider:     provider,
		settings:     settings,
		explicitBase: cfg.ExplicitBase,
		implicitBase: cfg.ImplicitBase,
	}
}

// extractedLearning is the JSON shape the extraction prompt asks for.
type extractedLearning struct {
	Type           string `json:"type"`
	Subject        string `json:"subject"`
	Content        string `json:"content"`
	Negative       bool   `json:"negative"`
	BrandGuideline bool   `json:"brand_guideline"`
}

// Candidates extracts learning candidates from one piece of feedback.
// Candidates carry the base confidence only; accumulation across
// conversations happens in the learning gate. The exampleRefs are the
// knowledge example snippets used to generate the content the feedback is
// about, so ranking can later credit or blame them.
func (e *Extractor) Candidates(ctx context.Context, fb *Feedback, platform string, exampleRefs []string) ([]learning.Learning, error) {
	var candidates []learning.Learning

	if fb.Explicit() {
		explicit, err := e.extractExplicit(ctx, fb)
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, explicit...)
	}

	if implicit := e.implicitCandidate(fb, platform); implicit != nil {
		candidates = append(candidates, *implicit)
	}

	for i := range candidates {
		candidates[i].SourceConversations = []string{fb.ConversationID}
		candidates[i].ExampleRefs = exampleRefs
		candidates[i].Observations = 1
	}
	return candidates, nil
}

func (e *Extractor) extractExplicit(ctx context.Context, fb *Feedback) ([]learning.Learning, error) {
	resp, err := e.provider.Complete(ctx, llm.CompletionRequest{
		Model: e.settings.Model,
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: extractionSystemPrompt},
			{Role: llm.RoleUser, Content: formatFeedback(fb)},
		},
		MaxTokens:   1024,
		Temperature: e.settings.Temperature,
		JSONMode:    true,
	})
	if err != nil {
		return nil, fmt.Errorf("extracting learnings: %w", err)
	}

	var parsed struct {
		Learnings []extractedLearning `json:"learnings"`
	}
	if err := json.Unmarshal([]byte(resp.Content), &parsed); err != nil {
		return nil, fmt.Errorf("parsing extracted learnings: %w", err)
	}

	var results []learning.Learning
	for _, x := range parsed.Learnings {
		if x.Subject == "" || x.Content == "" {
			continue
		}
		results = append(results, learning.Learning{
			Type:           learningType(x.Type),
			Subject:        x.Subject,
			Content:        x.Content,
			Confidence:     e.explicitBase,
			Negative:       x.Negative,
			BrandGuideline: x.BrandGuideline,
		})
	}
	return results, nil
}

// implicitCandidate maps a behavioral signal to a single candidate. The
// subject is derived from the platform so repeated signals across
// conversations reinforce one record instead of piling up duplicates.
func (e *Extractor) implicitCandidate(fb *Feedback, platform string) *learning.Learning {
	subject := platform + " content direction"
	switch fb.ImplicitSignal {
	case SignalApprove:
		return &learning.Learning{
			Type:       learning.TypePattern,
			Subject:    subject,
			Content:    fmt.Sprintf("user accepted generated %s content without changes", platform),
			Confidence: e.implicitBase,
		}
	case SignalRegenerate:
		return &learning.Learning{
			Type:       learning.TypePattern,
			Subject:    subject,
			Content:    fmt.Sprintf("user discarded generated %s content and asked for regeneration", platform),
			Confidence: e.implicitBase,
			Negative:   true,
		}
	case SignalEdit:
		return &learning.Learning{
			Type:       learning.TypePreference,
			Subject:    subject,
			Content:    fmt.Sprintf("user kept generated %s content but edited it by hand", platform),
			Confidence: e.implicitBase,
		}
	}
	return nil
}

func learningType(s string) learning.Type {
	switch learning.Type(s) {
	case learning.TypePattern, learning.TypePreference, learning.TypeCorrection, learning.TypeStyle:
		return learning.Type(s)
	}
	return learning.TypePattern
}

func formatFeedback(fb *Feedback) string {
	var sb strings.Builder
	if fb.Rating != 0 {
		fmt.Fprintf(&sb, "Rating: %d/5\n", fb.Rating)
	}
	if fb.Comment != "" {
		sb.WriteString("Comment: " + fb.Comment + "\n")
	}
	if len(fb.Worked) > 0 {
		sb.WriteString("What worked:\n")
		for _, w := range fb.Worked {
			sb.WriteString("- " + w + "\n")
		}
	}
	if len(fb.NeedsWork) > 0 {
		sb.WriteString("What needs work:\n")
		for _, w := range fb.NeedsWork {
			sb.WriteString("- " + w + "\n")
		}
	}
	return sb.String()
}

const extractionSystemPrompt = `You extract durable learnings from user feedback on marketing content.

A learning is a reusable statement about what works or fails for this brand, not a restatement of the feedback. Skip anything one-off or content-specific.

Respond with valid JSON:
{"learnings": [{"type": "pattern|preference|correction|style", "subject": "short stable topic key", "content": "the learning statement", "negative": false, "brand_guideline": false}]}

Set "negative" when the learning describes what fails or must be avoided. Set "brand_guideline" when it affects brand voice or compliance rules. Return an empty list when the feedback contains nothing durable.`
