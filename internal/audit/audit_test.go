package audit

import (
	"context"
	"testing"

	"github.com/nbakr/marko/internal/db"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	database, err := db.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return NewStore(database)
}

func TestRecordAndList(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	entries := []Entry{
		{ActorType: ActorSystem, ActorID: "gate", Action: ActionLearningAutoApply, LearningID: "l-1", Summary: "auto-applied pattern"},
		{ActorType: ActorAdmin, ActorID: "sara", Action: ActionLearningApproved, LearningID: "l-2", PreviousValue: "pending", NewValue: "approved"},
		{ActorType: ActorSystem, ActorID: "gate", Action: ActionLearningQueued, LearningID: "l-3", Summary: "negative pattern requires review"},
	}
	for _, e := range entries {
		if err := store.Record(ctx, e); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	all, err := store.List(ctx, ListFilter{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("List returned %d entries, want 3", len(all))
	}

	approved, err := store.List(ctx, ListFilter{Action: ActionLearningApproved})
	if err != nil {
		t.Fatalf("List filtered: %v", err)
	}
	if len(approved) != 1 {
		t.Fatalf("List(approved) returned %d entries, want 1", len(approved))
	}
	if approved[0].ActorID != "sara" {
		t.Errorf("ActorID = %q, want sara", approved[0].ActorID)
	}
	if approved[0].PreviousValue != "pending" || approved[0].NewValue != "approved" {
		t.Errorf("value transition = %q -> %q", approved[0].PreviousValue, approved[0].NewValue)
	}
}

func TestListByLearning(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	for _, action := range []Action{ActionLearningExtracted, ActionLearningReinforced, ActionLearningApproved} {
		if err := store.Record(ctx, Entry{ActorType: ActorSystem, ActorID: "gate", Action: action, LearningID: "l-7"}); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}
	if err := store.Record(ctx, Entry{ActorType: ActorSystem, ActorID: "gate", Action: ActionLearningExtracted, LearningID: "l-8"}); err != nil {
		t.Fatalf("Record: %v", err)
	}

	got, err := store.List(ctx, ListFilter{LearningID: "l-7"})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 3 {
		t.Errorf("List(l-7) returned %d entries, want 3", len(got))
	}
}
