package audit

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nbakr/marko/internal/db"
)

// Store provides append-only persistence for audit entries.
type Store struct {
	db *db.DB
}

// NewStore creates a new audit store.
func NewStore(database *db.DB) *Store {
	return &Store{db: database}
}

// Record appends an audit entry. If ID or Timestamp are empty they are
// filled in.
func (s *Store) Record(ctx context.Context, e Entry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_entries (id, timestamp, actor_type, actor_id, action, learning_id, conversation_id, summary, previous_value, new_value)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID,
		e.Timestamp.Format(time.DateTime),
		string(e.ActorType),
		e.ActorID,
		string(e.Action),
		nullString(e.LearningID),
		nullString(e.ConversationID),
		e.Summary,
		nullString(e.PreviousValue),
		nullString(e.NewValue),
	)
	if err != nil {
		return fmt.Errorf("recording audit entry: %w", err)
	}
	return nil
}

// List returns audit entries matching the filter, newest first.
func (s *Store) List(ctx context.Context, filter ListFilter) ([]Entry, error) {
	var conditions []string
	var args []interface{}

	if filter.Action != "" {
		conditions = append(conditions, "action = ?")
		args = append(args, string(filter.Action))
	}
	if filter.LearningID != "" {
		conditions = append(conditions, "learning_id = ?")
		args = append(args, filter.LearningID)
	}

	query := "SELECT id, timestamp, actor_type, actor_id, action, learning_id, conversation_id, summary, previous_value, new_value FROM audit_entries"
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY timestamp DESC"

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET %d", filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Entry
	for rows.Next() {
		var e Entry
		var learningID, conversationID, prev, next sql.NullString
		var ts string
		err := rows.Scan(&e.ID, &ts, &e.ActorType, &e.ActorID, &e.Action,
			&learningID, &conversationID, &e.Summary, &prev, &next)
		if err != nil {
			return nil, err
		}
		e.LearningID = learningID.String
		e.ConversationID = conversationID.String
		e.PreviousValue = prev.String
		e.NewValue = next.String
		if t, err := time.Parse(time.DateTime, ts); err == nil {
			e.Timestamp = t
		}
		results = append(results, e)
	}
	return results, rows.Err()
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
