package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/nbakr/marko/internal/agents"
	"github.com/nbakr/marko/internal/audit"
	"github.com/nbakr/marko/internal/brief"
	"github.com/nbakr/marko/internal/config"
	"github.com/nbakr/marko/internal/feedback"
	"github.com/nbakr/marko/internal/generate"
	"github.com/nbakr/marko/internal/learning"
	"github.com/nbakr/marko/internal/llm"
	"github.com/nbakr/marko/internal/verify"
)

// Coordinator drives conversations through the pipeline stages. All stage
// transitions happen here; the agents, verifier, and generator are pure
// workers that never touch conversation state.
type Coordinator struct {
	store     *Store
	invoker   *agents.Invoker
	verifier  *verify.Engine
	generator *generate.Engine
	extractor *feedback.Extractor
	feedbacks *feedback.Store
	learnings *learning.Store
	gate      *learning.Gate
	audits    *audit.Store
	cfg       *config.Config

	// locks serializes interactions per conversation so two requests for
	// the same conversation cannot interleave stage transitions.
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewCoordinator wires the pipeline together.
func NewCoordinator(
	store *Store,
	invoker *agents.Invoker,
	verifier *verify.Engine,
	generator *generate.Engine,
	extractor *feedback.Extractor,
	feedbacks *feedback.Store,
	learnings *learning.Store,
	gate *learning.Gate,
	audits *audit.Store,
	cfg *config.Config,
) *Coordinator {
	return &Coordinator{
		store:     store,
		invoker:   invoker,
		verifier:  verifier,
		generator: generator,
		extractor: extractor,
		feedbacks: feedbacks,
		learnings: learnings,
		gate:      gate,
		audits:    audits,
		cfg:       cfg,
		locks:     make(map[string]*sync.Mutex),
	}
}

func (c *Coordinator) lock(conversationID string) func() {
	c.mu.Lock()
	l, ok := c.locks[conversationID]
	if !ok {
		l = &sync.Mutex{}
		c.locks[conversationID] = l
	}
	c.mu.Unlock()
	l.Lock()
	return l.Unlock
}

// advance persists the turn, retrying a bounded number of times when a
// writer in another process claimed the next sequence numbers first. The
// store recomputes sequence numbers inside the transaction, so a retry is
// a clean re-attempt.
func (c *Coordinator) advance(ctx context.Context, conv *Conversation, turns []Turn) error {
	return retryConflicts(c.cfg.Pipeline.MaxInfraRetries, func() error {
		return c.store.Advance(ctx, conv, turns)
	})
}

// retryConflicts runs fn up to maxRetries extra times while it keeps
// returning ErrPersistenceConflict. Any other result returns immediately.
func retryConflicts(maxRetries int, fn func() error) error {
	var err error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		err = fn()
		if !errors.Is(err, ErrPersistenceConflict) {
			return err
		}
	}
	return err
}

const greeting = "Let's build your content brief. What are we creating, and who is it for?"

// Start opens a new conversation in the briefing stage.
func (c *Coordinator) Start(ctx context.Context, userID string) (*Conversation, *Reply, error) {
	conv, err := c.store.Create(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	err = c.advance(ctx, conv, []Turn{{Role: "assistant", Content: greeting}})
	if err != nil {
		return nil, nil, err
	}
	return conv, &Reply{ConversationID: conv.ID, Stage: conv.Stage, Text: greeting}, nil
}

// briefingResponse is the JSON shape the briefing agent returns.
type briefingResponse struct {
	Reply       string              `json:"reply"`
	Fields      map[string][]string `json:"fields"`
	HasCampaign *bool               `json:"has_campaign"`
}

// Message handles a free-text user message. In briefing it advances the
// brief; in review it is treated as a feedback comment.
func (c *Coordinator) Message(ctx context.Context, conversationID, text string) (*Reply, error) {
	unlock := c.lock(conversationID)
	defer unlock()

	conv, err := c.loadActive(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	switch conv.Stage {
	case StageBriefing:
		return c.briefingTurn(ctx, conv, text)
	case StagePreview:
		return nil, &WrongStageError{Op: "message", Stage: conv.Stage}
	case StageReview:
		return c.reviewTurn(ctx, conv, &feedback.Feedback{
			ConversationID: conv.ID,
			ContentID:      conv.State.ContentID,
			Comment:        text,
		})
	default:
		return nil, &WrongStageError{Op: "message", Stage: conv.Stage}
	}
}

// briefingTurn runs one round of field extraction and, once the brief is
// complete, falls through to verification.
func (c *Coordinator) briefingTurn(ctx context.Context, conv *Conversation, text string) (*Reply, error) {
	turns := []Turn{{Role: "user", Content: text}}

	history, err := c.store.Turns(ctx, conv.ID)
	if err != nil {
		return nil, err
	}

	var resp briefingResponse
	err = c.invoker.InvokeJSON(ctx, agents.RoleBriefing, agents.BriefingSystemPrompt,
		briefingMessages(history, conv.State.Brief, text), &resp)
	if err != nil {
		return nil, fmt.Errorf("briefing agent: %w", err)
	}

	extracted := brief.Extracted{Fields: make(map[brief.Field][]string), HasCampaign: resp.HasCampaign}
	for name, values := range resp.Fields {
		extracted.Fields[brief.Field(name)] = values
	}

	merged, result := brief.Merge(conv.State.Brief, extracted)
	conv.State.Brief = merged

	if !result.Complete {
		if err := c.countFieldRetries(conv, result); err != nil {
			return nil, err
		}
		turns = append(turns, Turn{Role: "assistant", Content: resp.Reply})
		if err := c.advance(ctx, conv, turns); err != nil {
			return nil, err
		}
		return &Reply{ConversationID: conv.ID, Stage: conv.Stage, Text: resp.Reply}, nil
	}

	// Brief complete: freeze it and verify.
	return c.runVerification(ctx, conv, turns)
}

// countFieldRetries increments the re-ask counter for every field still
// missing or ambiguous. A field past the cap fails the briefing hard.
func (c *Coordinator) countFieldRetries(conv *Conversation, result brief.MergeResult) error {
	if conv.State.FieldAttempts == nil {
		conv.State.FieldAttempts = make(map[brief.Field]int)
	}
	var exhausted []brief.Field
	fields := append([]brief.Field{}, result.Missing...)
	for _, a := range result.Ambiguous {
		fields = append(fields, a.Field)
	}
	for _, f := range fields {
		conv.State.FieldAttempts[f]++
		if conv.State.FieldAttempts[f] > c.cfg.Pipeline.MaxFieldRetries {
			exhausted = append(exhausted, f)
		}
	}
	if len(exhausted) > 0 {
		return &BriefIncompleteError{Missing: exhausted}
	}
	return nil
}

// runVerification checks the frozen brief against the knowledge base.
// Failures route back to briefing with the unverified claims named so the
// user can correct them; passing continues straight into preview
// generation.
func (c *Coordinator) runVerification(ctx context.Context, conv *Conversation, turns []Turn) (*Reply, error) {
	conv.Stage = StageVerification

	result, err := c.verifier.Verify(ctx, &conv.State.Brief)
	if err != nil {
		return nil, fmt.Errorf("verifying brief: %w", err)
	}
	conv.State.Verification = result
	if err := c.store.SaveVerification(ctx, conv.ID, result); err != nil {
		return nil, err
	}

	threshold := c.cfg.Pipeline.VerificationThreshold
	if !result.Passed(threshold) {
		conv.State.VerificationRounds++
		if conv.State.VerificationRounds > c.cfg.Pipeline.MaxFieldRetries {
			return nil, &VerificationFailedError{
				Score:      result.Score,
				Threshold:  threshold,
				Unverified: result.UnverifiedClaims,
			}
		}
		conv.Stage = StageBriefing
		text := verificationFailureMessage(result, threshold)
		turns = append(turns, Turn{Role: "assistant", Content: text})
		if err := c.advance(ctx, conv, turns); err != nil {
			return nil, err
		}
		return &Reply{ConversationID: conv.ID, Stage: conv.Stage, Text: text, Verification: result}, nil
	}

	log.Printf("pipeline: conversation %s verified at %.0f", conv.ID, result.Score)
	return c.runPreview(ctx, conv, turns)
}

// runPreview generates a preview and parks the conversation waiting for
// the user's approve-or-revise decision.
func (c *Coordinator) runPreview(ctx context.Context, conv *Conversation, turns []Turn) (*Reply, error) {
	preview, err := c.generatePreview(ctx, conv)
	if err != nil {
		return nil, err
	}
	if err := c.store.SavePreview(ctx, conv.ID, preview); err != nil {
		return nil, err
	}

	conv.Stage = StagePreview
	conv.State.PreviewID = preview.ID

	text := previewMessage(preview)
	turns = append(turns, Turn{Role: "assistant", Content: text})
	if err := c.advance(ctx, conv, turns); err != nil {
		return nil, err
	}
	return &Reply{ConversationID: conv.ID, Stage: conv.Stage, Text: text, Preview: preview, Verification: conv.State.Verification}, nil
}

// generatePreview retries transient failures and regenerates once when the
// model leaks a flagged claim into the preview.
func (c *Coordinator) generatePreview(ctx context.Context, conv *Conversation) (*generate.Preview, error) {
	var lastErr error
	for attempt := 0; attempt <= c.cfg.Pipeline.MaxInfraRetries; attempt++ {
		callCtx, cancel := c.requestContext(ctx)
		preview, err := c.generator.Preview(callCtx, &conv.State.Brief, conv.State.Verification, conv.State.RevisionNotes)
		cancel()
		if err == nil {
			return preview, nil
		}
		lastErr = err

		var violation *generate.ContractViolationError
		if errors.As(err, &violation) {
			log.Printf("pipeline: discarding preview for conversation %s: %v", conv.ID, err)
			continue
		}
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			continue
		}
		return nil, err
	}
	if errors.Is(lastErr, context.DeadlineExceeded) {
		return nil, &GenerationTimeoutError{Artifact: "preview", Err: lastErr}
	}
	return nil, lastErr
}

// ApprovePreview accepts the pending preview and generates the full
// content from it. Exactly one content generation happens per approval,
// regardless of how many previews were rejected before.
func (c *Coordinator) ApprovePreview(ctx context.Context, conversationID string) (*Reply, error) {
	unlock := c.lock(conversationID)
	defer unlock()

	conv, err := c.loadActive(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if conv.Stage != StagePreview {
		return nil, &WrongStageError{Op: "approve preview", Stage: conv.Stage}
	}

	preview, err := c.store.GetPreview(ctx, conv.State.PreviewID)
	if err != nil {
		return nil, err
	}
	if preview == nil {
		return nil, fmt.Errorf("pending preview %s not found", conv.State.PreviewID)
	}

	conv.Stage = StageContent
	content, err := c.generateContent(ctx, conv, preview)
	if err != nil {
		return nil, err
	}
	if err := c.store.SaveContent(ctx, conv.ID, content); err != nil {
		return nil, err
	}

	conv.Stage = StageReview
	conv.State.ContentID = content.ID

	text := contentMessage(content)
	turns := []Turn{
		{Role: "user", Content: "Approved the preview.", Decision: DecisionPreviewApproved},
		{Role: "assistant", Content: text},
	}
	if err := c.advance(ctx, conv, turns); err != nil {
		return nil, err
	}
	return &Reply{ConversationID: conv.ID, Stage: conv.Stage, Text: text, Content: content}, nil
}

func (c *Coordinator) generateContent(ctx context.Context, conv *Conversation, preview *generate.Preview) (*generate.Content, error) {
	// Record which examples and learnings shaped this content so feedback
	// can credit them later.
	c.captureAppliedLearnings(ctx, conv)

	var lastErr error
	for attempt := 0; attempt <= c.cfg.Pipeline.MaxInfraRetries; attempt++ {
		callCtx, cancel := c.requestContext(ctx)
		content, err := c.generator.Content(callCtx, &conv.State.Brief, conv.State.Verification, preview)
		cancel()
		if err == nil {
			return content, nil
		}
		lastErr = err

		var violation *generate.ContractViolationError
		if errors.As(err, &violation) {
			log.Printf("pipeline: discarding content for conversation %s: %v", conv.ID, err)
			continue
		}
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			continue
		}
		return nil, err
	}
	if errors.Is(lastErr, context.DeadlineExceeded) {
		return nil, &GenerationTimeoutError{Artifact: "content", Err: lastErr}
	}
	return nil, lastErr
}

// captureAppliedLearnings snapshots the examples and boosting learnings
// used for this brief. Failures only cost attribution, never the content.
func (c *Coordinator) captureAppliedLearnings(ctx context.Context, conv *Conversation) {
	query := strings.Join([]string{
		conv.State.Brief.Platform, conv.State.Brief.FunnelStage,
		conv.State.Brief.PainArea, conv.State.Brief.TargetAudience,
	}, " ")
	ranked, err := c.generator.Examples(ctx, query)
	if err != nil {
		log.Printf("pipeline: capturing applied learnings: %v", err)
		return
	}
	seen := make(map[string]bool)
	conv.State.ExampleRefs = nil
	conv.State.AppliedLearningIDs = nil
	for _, ex := range ranked {
		conv.State.ExampleRefs = append(conv.State.ExampleRefs, ex.Snippet.ID)
		for _, id := range ex.LearningIDs {
			if !seen[id] {
				seen[id] = true
				conv.State.AppliedLearningIDs = append(conv.State.AppliedLearningIDs, id)
			}
		}
	}
}

// RevisePreview rejects the pending preview with a note and generates a
// fresh one. Rejected previews are marked discarded and never reused.
func (c *Coordinator) RevisePreview(ctx context.Context, conversationID, note string) (*Reply, error) {
	unlock := c.lock(conversationID)
	defer unlock()

	conv, err := c.loadActive(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if conv.Stage != StagePreview {
		return nil, &WrongStageError{Op: "revise preview", Stage: conv.Stage}
	}

	if err := c.store.DiscardPreview(ctx, conv.State.PreviewID); err != nil {
		return nil, err
	}
	conv.State.RejectedPreviews++
	if note != "" {
		conv.State.RevisionNotes = append(conv.State.RevisionNotes, note)
	}

	turns := []Turn{{Role: "user", Content: note, Decision: DecisionPreviewRevised}}
	return c.runPreview(ctx, conv, turns)
}

// SubmitFeedback records feedback on delivered content, extracts learning
// candidates, routes them through the gate, and completes the
// conversation.
func (c *Coordinator) SubmitFeedback(ctx context.Context, conversationID string, fb *feedback.Feedback) (*Reply, error) {
	unlock := c.lock(conversationID)
	defer unlock()

	conv, err := c.loadActive(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if conv.Stage != StageReview {
		return nil, &WrongStageError{Op: "submit feedback", Stage: conv.Stage}
	}
	return c.reviewTurn(ctx, conv, fb)
}

func (c *Coordinator) reviewTurn(ctx context.Context, conv *Conversation, fb *feedback.Feedback) (*Reply, error) {
	fb.ConversationID = conv.ID
	if fb.ContentID == "" {
		fb.ContentID = conv.State.ContentID
	}
	if err := c.feedbacks.Insert(ctx, fb); err != nil {
		return nil, err
	}
	c.recordAudit(ctx, audit.Entry{
		ActorType:      audit.ActorUser,
		ActorID:        conv.UserID,
		Action:         audit.ActionFeedbackReceived,
		ConversationID: conv.ID,
		Summary:        feedbackSummary(fb),
	})

	if err := c.processLearnings(ctx, conv, fb); err != nil {
		return nil, err
	}
	c.recordApplications(ctx, conv, fb)

	conv.Stage = StageComplete
	conv.Status = StatusCompleted
	text := "Thanks, noted. This conversation is wrapped up."
	turns := []Turn{
		{Role: "user", Content: feedbackSummary(fb), Decision: DecisionFeedbackGiven},
		{Role: "assistant", Content: text},
	}
	if err := c.advance(ctx, conv, turns); err != nil {
		return nil, err
	}
	return &Reply{ConversationID: conv.ID, Stage: conv.Stage, Text: text}, nil
}

// processLearnings extracts candidates from the feedback and routes each
// through the gate, auditing the outcome.
func (c *Coordinator) processLearnings(ctx context.Context, conv *Conversation, fb *feedback.Feedback) error {
	candidates, err := c.extractor.Candidates(ctx, fb, conv.State.Brief.Platform, conv.State.ExampleRefs)
	if err != nil {
		return fmt.Errorf("extracting learnings: %w", err)
	}

	for i := range candidates {
		decision, err := c.gate.Process(ctx, &candidates[i])
		if err != nil {
			return fmt.Errorf("gating learning: %w", err)
		}

		action := audit.ActionLearningQueued
		if decision.Outcome == learning.OutcomeAutoApply {
			action = audit.ActionLearningAutoApply
		}
		c.recordAudit(ctx, audit.Entry{
			ActorType:      audit.ActorSystem,
			ActorID:        "gate",
			Action:         action,
			LearningID:     decision.Learning.ID,
			ConversationID: conv.ID,
			Summary:        decision.Learning.Content,
			NewValue:       decision.Reason,
		})
	}
	return nil
}

// recordApplications updates outcome counters for the approved learnings
// that shaped this content. Positive feedback counts as success.
func (c *Coordinator) recordApplications(ctx context.Context, conv *Conversation, fb *feedback.Feedback) {
	success := fb.ImplicitSignal == feedback.SignalApprove || fb.Rating >= 4
	for _, id := range conv.State.AppliedLearningIDs {
		if err := c.learnings.RecordApplication(ctx, id, success); err != nil {
			log.Printf("pipeline: recording learning application %s: %v", id, err)
		}
	}
}

// Conversation returns a conversation with its transcript.
func (c *Coordinator) Conversation(ctx context.Context, id string) (*Conversation, []Turn, error) {
	conv, err := c.store.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if conv == nil {
		return nil, nil, nil
	}
	turns, err := c.store.Turns(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return conv, turns, nil
}

func (c *Coordinator) loadActive(ctx context.Context, id string) (*Conversation, error) {
	conv, err := c.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		return nil, fmt.Errorf("conversation not found: %s", id)
	}
	if conv.Status != StatusActive {
		return nil, ErrConversationDone
	}
	return conv, nil
}

func (c *Coordinator) requestContext(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := time.Duration(c.cfg.Pipeline.RequestTimeoutSeconds) * time.Second
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

func (c *Coordinator) recordAudit(ctx context.Context, e audit.Entry) {
	if err := c.audits.Record(ctx, e); err != nil {
		log.Printf("pipeline: recording audit entry: %v", err)
	}
}

// briefingMessages rebuilds the agent conversation: prior transcript, the
// current brief snapshot, then the new user message.
func briefingMessages(history []Turn, current brief.Brief, text string) []llm.Message {
	var messages []llm.Message
	for _, t := range history {
		role := llm.RoleUser
		if t.Role == "assistant" {
			role = llm.RoleAssistant
		}
		messages = append(messages, llm.Message{Role: role, Content: t.Content})
	}

	snapshot, _ := json.Marshal(current)
	messages = append(messages, llm.Message{
		Role:    llm.RoleUser,
		Content: fmt.Sprintf("Current brief state: %s\n\nUser message: %s", snapshot, text),
	})
	return messages
}

func verificationFailureMessage(r *verify.Result, threshold float64) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "I checked the brief against our knowledge base and it scored %.0f, below the %.0f needed. ", r.Score, threshold)
	if len(r.UnverifiedClaims) > 0 {
		sb.WriteString("I couldn't verify: ")
		sb.WriteString(strings.Join(r.UnverifiedClaims, "; "))
		sb.WriteString(". ")
	}
	for _, c := range r.Corrections {
		fmt.Fprintf(&sb, "Note: %q should be %q. ", c.Claimed, c.Corrected)
	}
	sb.WriteString("Could you correct or drop these so we can continue?")
	return sb.String()
}

func previewMessage(p *generate.Preview) string {
	var sb strings.Builder
	sb.WriteString("Here's the preview.\n\nHook: " + p.Hook + "\n")
	for _, loop := range p.OpenLoops {
		sb.WriteString("Open loop: " + loop + "\n")
	}
	sb.WriteString("Promise: " + p.Promise + "\n\nApprove it, or tell me what to change.")
	return sb.String()
}

func contentMessage(c *generate.Content) string {
	var sb strings.Builder
	sb.WriteString("Here's the full content:\n\n" + c.Body + "\n")
	if len(c.Hashtags) > 0 {
		sb.WriteString("\n" + strings.Join(c.Hashtags, " ") + "\n")
	}
	if c.CallToAction != "" {
		sb.WriteString("\nCTA: " + c.CallToAction + "\n")
	}
	sb.WriteString("\nHow did it land? Any feedback helps the next one.")
	return sb.String()
}

func feedbackSummary(fb *feedback.Feedback) string {
	var parts []string
	if fb.Rating != 0 {
		parts = append(parts, fmt.Sprintf("rated %d/5", fb.Rating))
	}
	if fb.Comment != "" {
		parts = append(parts, fb.Comment)
	}
	if fb.ImplicitSignal != "" {
		parts = append(parts, string(fb.ImplicitSignal))
	}
	if len(parts) == 0 {
		return "feedback received"
	}
	return strings.Join(parts, "; ")
}
