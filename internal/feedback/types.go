package feedback

import "time"

// ImplicitSignal is a behavioral signal inferred from what the user did
// with the content, rather than what they said about it.
type ImplicitSignal string

const (
	// SignalApprove means the user accepted the content as delivered.
	SignalApprove ImplicitSignal = "approve"
	// SignalRegenerate means the user threw the content away and asked
	// for another attempt.
	SignalRegenerate ImplicitSignal = "regenerate"
	// SignalEdit means the user kept the content but changed it by hand.
	SignalEdit ImplicitSignal = "edit"
)

// Feedback is a single piece of user feedback on generated content. Either
// the explicit fields (rating, comment, worked, needs work) or the implicit
// signal may be empty, but not both.
type Feedback struct {
	ID             string         `json:"id"`
	ConversationID string         `json:"conversation_id"`
	ContentID      string         `json:"content_id,omitempty"`
	Rating         int            `json:"rating,omitempty"` // 1-5, 0 means unrated
	Comment        string         `json:"comment,omitempty"`
	Worked         []string       `json:"worked,omitempty"`
	NeedsWork      []string       `json:"needs_work,omitempty"`
	ImplicitSignal ImplicitSignal `json:"implicit_signal,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}

// Explicit reports whether the feedback carries any stated content, as
// opposed to only a behavioral signal.
func (f *Feedback) Explicit() bool {
	return f.Comment != "" || len(f.Worked) > 0 || len(f.NeedsWork) > 0 || f.Rating != 0
}
