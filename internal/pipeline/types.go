package pipeline

import (
	"time"

	"github.com/nbakr/marko/internal/brief"
	"github.com/nbakr/marko/internal/generate"
	"github.com/nbakr/marko/internal/verify"
)

// Stage is a step in the conversation state machine. Verification and
// content are transient stages: the coordinator passes through them within
// a single turn and the conversation rests in briefing, preview, review,
// or complete.
type Stage string

const (
	StageBriefing     Stage = "briefing"
	StageVerification Stage = "verification"
	StagePreview      Stage = "preview"
	StageContent      Stage = "content"
	StageReview       Stage = "review"
	StageComplete     Stage = "complete"
)

// ConversationStatus tracks the lifecycle of a conversation record.
type ConversationStatus string

const (
	StatusActive    ConversationStatus = "active"
	StatusCompleted ConversationStatus = "completed"
	StatusArchived  ConversationStatus = "archived"
)

// State is the durable per-conversation working state, stored as JSON
// alongside the stage so a conversation can resume after a restart.
type State struct {
	Brief brief.Brief `json:"brief"`
	// FieldAttempts counts how many times each still-missing field has
	// been re-asked.
	FieldAttempts map[brief.Field]int `json:"field_attempts,omitempty"`
	// VerificationRounds counts verification passes that sent the
	// conversation back to briefing.
	VerificationRounds int            `json:"verification_rounds,omitempty"`
	Verification       *verify.Result `json:"verification,omitempty"`
	// PreviewID is the preview currently awaiting a user decision.
	PreviewID        string   `json:"preview_id,omitempty"`
	RejectedPreviews int      `json:"rejected_previews,omitempty"`
	RevisionNotes    []string `json:"revision_notes,omitempty"`
	ContentID        string   `json:"content_id,omitempty"`
	// ExampleRefs are the knowledge snippets used as few-shot examples for
	// the delivered content.
	ExampleRefs []string `json:"example_refs,omitempty"`
	// AppliedLearningIDs are the approved learnings that boosted the
	// examples; their outcome counters update when feedback arrives.
	AppliedLearningIDs []string `json:"applied_learning_ids,omitempty"`
}

// Conversation is one pipeline run for one user.
type Conversation struct {
	ID        string             `json:"id"`
	UserID    string             `json:"user_id"`
	Stage     Stage              `json:"stage"`
	State     State              `json:"state"`
	Status    ConversationStatus `json:"status"`
	CreatedAt time.Time          `json:"created_at"`
	UpdatedAt time.Time          `json:"updated_at"`
}

// Turn is one message in a conversation transcript.
type Turn struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Seq            int       `json:"seq"`
	Role           string    `json:"role"` // user, assistant, system
	Content        string    `json:"content"`
	// Decision records structural decisions (preview approved, preview
	// revision requested) so the transcript explains stage changes.
	Decision  string    `json:"decision,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Decision values recorded on turns.
const (
	DecisionPreviewApproved = "preview_approved"
	DecisionPreviewRevised  = "preview_revised"
	DecisionFeedbackGiven   = "feedback_given"
)

// Reply is what the coordinator returns for one user interaction.
type Reply struct {
	ConversationID string            `json:"conversation_id"`
	Stage          Stage             `json:"stage"`
	Text           string            `json:"text"`
	Preview        *generate.Preview `json:"preview,omitempty"`
	Content        *generate.Content `json:"content,omitempty"`
	Verification   *verify.Result    `json:"verification,omitempty"`
}
