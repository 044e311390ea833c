package learning

import "time"

// Type classifies what kind of knowledge a learning encodes.
type Type string

const (
	TypePattern    Type = "pattern"
	TypePreference Type = "preference"
	TypeCorrection Type = "correction"
	TypeStyle      Type = "style"
)

// Status tracks a learning through its approval lifecycle. Rejected
// learnings are retained for audit, never deleted.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// Learning is a durable, confidence-scored statement derived from user
// feedback. Approved pattern/style learnings influence example ranking.
type Learning struct {
	ID      string `json:"id"`
	Type    Type   `json:"type"`
	Subject string `json:"subject"`
	Content string `json:"content"`
	// Confidence is in [0,1] and grows with repeated independent
	// observations of the same subject.
	Confidence float64 `json:"confidence"`
	Status     Status  `json:"status"`
	// Negative marks learnings that describe what fails or should be
	// avoided. These always require admin review.
	Negative bool `json:"negative"`
	// BrandGuideline marks learnings affecting brand or compliance
	// guidelines. These always require admin review.
	BrandGuideline bool `json:"brand_guideline"`
	// Observations counts independent conversations that produced this
	// learning.
	Observations int `json:"observations"`
	// AppliedCount and SuccessCount update only after approval.
	AppliedCount int `json:"applied_count"`
	SuccessCount int `json:"success_count"`
	// GateReason explains why the gate routed this learning to admin
	// review; empty for auto-applied learnings.
	GateReason          string    `json:"gate_reason,omitempty"`
	SourceConversations []string  `json:"source_conversations,omitempty"`
	ExampleRefs         []string  `json:"example_refs,omitempty"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// SuccessRate returns the observed fraction of successful applications,
// or 0 before any application.
func (l *Learning) SuccessRate() float64 {
	if l.AppliedCount == 0 {
		return 0
	}
	return float64(l.SuccessCount) / float64(l.AppliedCount)
}

// GateOutcome is the routing decision for a candidate learning.
type GateOutcome string

const (
	OutcomeAutoApply    GateOutcome = "auto_apply"
	OutcomePendingAdmin GateOutcome = "pending_admin"
)

// Decision pairs a gate outcome with the stored learning record.
type Decision struct {
	Outcome  GateOutcome `json:"outcome"`
	Reason   string      `json:"reason,omitempty"`
	Learning *Learning   `json:"learning"`
}

// ListFilter controls which learnings are returned by Store.List.
type ListFilter struct {
	Type   Type   `json:"type,omitempty"`
	Status Status `json:"status,omitempty"`
	Limit  int    `json:"limit,omitempty"`
	Offset int    `json:"offset,omitempty"`
}
