package learning

import (
	"context"
	"fmt"
)

// Gate routing reasons surfaced to admins with pending learnings.
const (
	ReasonContradiction  = "contradicts approved learning"
	ReasonNegative       = "negative pattern requires review"
	ReasonBrandGuideline = "affects brand guidelines"
	ReasonLowConfidence  = "confidence below auto-apply threshold"
)

// Gate evaluates candidate learnings and routes them to auto-apply or the
// admin review queue. It also merges repeated observations of the same
// subject so confidence accumulates across independent conversations.
type Gate struct {
	store *Store
	// minConfidence is the auto-apply floor; candidates below it wait for
	// an admin.
	minConfidence float64
}

// NewGate creates a gate with the given auto-apply confidence floor.
func NewGate(store *Store, minConfidence float64) *Gate {
	return &Gate{store: store, minConfidence: minConfidence}
}

// Process evaluates one candidate learning. The candidate's Confidence is
// its single-observation base value; if a learning with the same type,
// subject, and polarity already exists, the observation reinforces it
// instead of creating a duplicate.
func (g *Gate) Process(ctx context.Context, candidate *Learning) (*Decision, error) {
	existing, err := g.store.FindBySubject(ctx, candidate.Type, candidate.Subject)
	if err != nil {
		return nil, fmt.Errorf("looking up existing learning: %w", err)
	}

	if existing != nil && existing.Negative == candidate.Negative {
		return g.reinforce(ctx, existing, candidate)
	}

	if existing != nil && existing.Status == StatusApproved {
		// Same subject, opposite polarity, already approved: only a human
		// may decide which claim stands.
		candidate.Status = StatusPending
		candidate.GateReason = ReasonContradiction
		if err := g.store.Insert(ctx, candidate); err != nil {
			return nil, err
		}
		return &Decision{Outcome: OutcomePendingAdmin, Reason: ReasonContradiction, Learning: candidate}, nil
	}

	return g.admit(ctx, candidate)
}

// reinforce merges a repeated observation into an existing record and
// re-evaluates a pending record's eligibility for auto-apply.
func (g *Gate) reinforce(ctx context.Context, existing, candidate *Learning) (*Decision, error) {
	conversationID := ""
	if len(candidate.SourceConversations) > 0 {
		conversationID = candidate.SourceConversations[0]
	}

	updated, err := g.store.Reinforce(ctx, existing.ID, candidate.Confidence, conversationID)
	if err != nil {
		return nil, err
	}

	if updated.Status == StatusApproved {
		return &Decision{Outcome: OutcomeAutoApply, Learning: updated}, nil
	}

	// Pending records that were only short on confidence may cross the
	// floor through reinforcement. Records held for negative or brand
	// reasons stay pending regardless of confidence.
	if reason := g.holdReason(updated); reason == "" {
		if err := g.store.TransitionStatus(ctx, updated.ID, StatusPending, StatusApproved); err != nil {
			if err == ErrStaleStatus {
				// An admin decided while we were evaluating; their call wins.
				refreshed, gerr := g.store.Get(ctx, updated.ID)
				if gerr != nil {
					return nil, gerr
				}
				return decisionForStatus(refreshed), nil
			}
			return nil, err
		}
		updated.Status = StatusApproved
		updated.GateReason = ""
		return &Decision{Outcome: OutcomeAutoApply, Learning: updated}, nil
	}

	return &Decision{Outcome: OutcomePendingAdmin, Reason: updated.GateReason, Learning: updated}, nil
}

// admit stores a brand-new learning with the appropriate initial status.
func (g *Gate) admit(ctx context.Context, candidate *Learning) (*Decision, error) {
	if reason := g.holdReason(candidate); reason != "" {
		candidate.Status = StatusPending
		candidate.GateReason = reason
		if err := g.store.Insert(ctx, candidate); err != nil {
			return nil, err
		}
		return &Decision{Outcome: OutcomePendingAdmin, Reason: reason, Learning: candidate}, nil
	}

	candidate.Status = StatusApproved
	if err := g.store.Insert(ctx, candidate); err != nil {
		return nil, err
	}
	return &Decision{Outcome: OutcomeAutoApply, Learning: candidate}, nil
}

// holdReason returns the first reason a learning must wait for admin
// review, or "" if it may auto-apply. Negative and brand-guideline holds
// apply at any confidence.
func (g *Gate) holdReason(l *Learning) string {
	switch {
	case l.Negative:
		return ReasonNegative
	case l.BrandGuideline:
		return ReasonBrandGuideline
	case l.Confidence < g.minConfidence:
		return ReasonLowConfidence
	}
	return ""
}

func decisionForStatus(l *Learning) *Decision {
	if l.Status == StatusApproved {
		return &Decision{Outcome: OutcomeAutoApply, Learning: l}
	}
	return &Decision{Outcome: OutcomePendingAdmin, Reason: l.GateReason, Learning: l}
}
