package feedback

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nbakr/marko/internal/db"
)

// Store persists user feedback.
type Store struct {
	db *db.DB
}

// NewStore creates a new feedback store.
func NewStore(database *db.DB) *Store {
	return &Store{db: database}
}

// Insert stores a feedback record. If ID is empty, a new UUID is generated.
func (s *Store) Insert(ctx context.Context, f *Feedback) error {
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	f.CreatedAt = time.Now().UTC()

	var rating interface{}
	if f.Rating != 0 {
		rating = f.Rating
	}
	var signal interface{}
	if f.ImplicitSignal != "" {
		signal = string(f.ImplicitSignal)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_feedback (id, conversation_id, content_id, rating, comment, worked, needs_work, implicit_signal, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		f.ID, f.ConversationID, f.ContentID, rating, f.Comment,
		jsonList(f.Worked), jsonList(f.NeedsWork), signal,
		f.CreatedAt.Format(time.DateTime),
	)
	if err != nil {
		return fmt.Errorf("inserting feedback: %w", err)
	}
	return nil
}

// ListByConversation returns all feedback for a conversation, oldest first.
func (s *Store) ListByConversation(ctx context.Context, conversationID string) ([]Feedback, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, conversation_id, content_id, rating, comment, worked, needs_work, implicit_signal, created_at
		FROM user_feedback WHERE conversation_id = ? ORDER BY created_at, id`,
		conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Feedback
	for rows.Next() {
		var f Feedback
		var contentID, signal, comment *string
		var rating *int
		var worked, needsWork string
		var createdAt string

		err := rows.Scan(&f.ID, &f.ConversationID, &contentID, &rating, &comment,
			&worked, &needsWork, &signal, &createdAt)
		if err != nil {
			return nil, err
		}

		if contentID != nil {
			f.ContentID = *contentID
		}
		if rating != nil {
			f.Rating = *rating
		}
		if comment != nil {
			f.Comment = *comment
		}
		if signal != nil {
			f.ImplicitSignal = ImplicitSignal(*signal)
		}
		json.Unmarshal([]byte(worked), &f.Worked)
		json.Unmarshal([]byte(needsWork), &f.NeedsWork)
		if t, err := time.Parse(time.DateTime, createdAt); err == nil {
			f.CreatedAt = t
		}
		results = append(results, f)
	}
	return results, rows.Err()
}

func jsonList(items []string) string {
	if len(items) == 0 {
		return "[]"
	}
	b, _ := json.Marshal(items)
	return string(b)
}
