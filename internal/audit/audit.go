package audit

import "time"

// ActorType identifies who performed an action.
type ActorType string

const (
	ActorUser   ActorType = "user"
	ActorAdmin  ActorType = "admin"
	ActorSystem ActorType = "system"
)

// Action describes what was done.
type Action string

const (
	ActionLearningExtracted  Action = "learning_extracted"
	ActionLearningAutoApply  Action = "learning_auto_applied"
	ActionLearningQueued     Action = "learning_queued"
	ActionLearningReinforced Action = "learning_reinforced"
	ActionLearningApproved   Action = "learning_approved"
	ActionLearningRejected   Action = "learning_rejected"
	ActionFeedbackReceived   Action = "feedback_received"
)

// Entry is a single audit trail record.
type Entry struct {
	ID             string    `json:"id"`
	Timestamp      time.Time `json:"timestamp"`
	ActorType      ActorType `json:"actor_type"`
	ActorID        string    `json:"actor_id"`
	Action         Action    `json:"action"`
	LearningID     string    `json:"learning_id,omitempty"`
	ConversationID string    `json:"conversation_id,omitempty"`
	Summary        string    `json:"summary"`
	PreviousValue  string    `json:"previous_value,omitempty"`
	NewValue       string    `json:"new_value,omitempty"`
}

// ListFilter controls which audit entries are returned by List.
type ListFilter struct {
	Action     Action `json:"action,omitempty"`
	LearningID string `json:"learning_id,omitempty"`
	Limit      int    `json:"limit,omitempty"`
	Offset     int    `json:"offset,omitempty"`
}
