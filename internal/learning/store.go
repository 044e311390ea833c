package learning

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nbakr/marko/internal/db"
)

// ErrStaleStatus is returned when a compare-and-set status transition
// loses a race: the record is no longer in the expected status.
var ErrStaleStatus = fmt.Errorf("learning status changed concurrently")

// Store provides persistence for learning records. Status transitions use
// compare-and-set and counters use atomic SQL increments, so concurrent
// conversations reinforcing the same learning never lose updates.
type Store struct {
	db *db.DB
}

// NewStore creates a new learning store.
func NewStore(database *db.DB) *Store {
	return &Store{db: database}
}

const learningColumns = `id, type, subject, content, confidence, status, negative, brand_guideline,
	observations, applied_count, success_count, gate_reason, source_conversations, example_refs,
	created_at, updated_at`

// Insert stores a new learning record. If ID is empty, a new UUID is generated.
func (s *Store) Insert(ctx context.Context, l *Learning) error {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	l.CreatedAt = now
	l.UpdatedAt = now
	if l.Observations == 0 {
		l.Observations = 1
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO learnings (`+learningColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		l.ID, string(l.Type), l.Subject, l.Content, l.Confidence, string(l.Status),
		boolToInt(l.Negative), boolToInt(l.BrandGuideline),
		l.Observations, l.AppliedCount, l.SuccessCount, l.GateReason,
		jsonList(l.SourceConversations), jsonList(l.ExampleRefs),
		l.CreatedAt.Format(time.DateTime), l.UpdatedAt.Format(time.DateTime),
	)
	if err != nil {
		return fmt.Errorf("inserting learning: %w", err)
	}
	return nil
}

// Get retrieves a learning by ID, or nil if not found.
func (s *Store) Get(ctx context.Context, id string) (*Learning, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+learningColumns+` FROM learnings WHERE id = ?`, id)
	return scanLearning(row)
}

// FindBySubject returns the most recently updated learning with the given
// type and subject whose status is not rejected, or nil.
func (s *Store) FindBySubject(ctx context.Context, typ Type, subject string) (*Learning, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+learningColumns+` FROM learnings
		WHERE type = ? AND subject = ? AND status != 'rejected'
		ORDER BY updated_at DESC LIMIT 1`,
		string(typ), subject)
	return scanLearning(row)
}

// List returns learnings matching the given filter, newest first.
func (s *Store) List(ctx context.Context, filter ListFilter) ([]Learning, error) {
	var conditions []string
	var args []interface{}

	if filter.Type != "" {
		conditions = append(conditions, "type = ?")
		args = append(args, string(filter.Type))
	}
	if filter.Status != "" {
		conditions = append(conditions, "status = ?")
		args = append(args, string(filter.Status))
	}

	query := "SELECT " + learningColumns + " FROM learnings"
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY updated_at DESC"

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

	var results []Learning
	for rows.Next() {
		l, err := scanLearning(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, *l)
	}
	return results, rows.Err()
}

// Approved returns all approved learnings of the given types.
func (s *Store) Approved(ctx context.Context, types ...Type) ([]Learning, error) {
	query := "SELECT " + learningColumns + " FROM learnings WHERE status = 'approved'"
	var args []interface{}
	if len(types) > 0 {
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(types)), ",")
		query += " AND type IN (" + placeholders + ")"
		for _, t := range types {
			args = append(args, string(t))
		}
	}
	query += " ORDER BY confidence DESC, id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Learning
	for rows.Next() {
		l, err := scanLearning(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, *l)
	}
	return results, rows.Err()
}

// TransitionStatus performs a compare-and-set status change. Returns
// ErrStaleStatus if the record is no longer in the expected status.
func (s *Store) TransitionStatus(ctx context.Context, id string, from, to Status) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE learnings SET status = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		string(to), time.Now().UTC().Format(time.DateTime), id, string(from))
	if err != nil {
		return fmt.Errorf("transitioning learning status: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrStaleStatus
	}
	return nil
}

// Reinforce records another independent observation of an existing
// learning. The observation count, the confidence fold
// c' = 1 - (1-c)(1-base), and the source-conversation append all happen
// inside the UPDATE itself, so simultaneous conversations reinforcing the
// same learning compose instead of overwriting each other.
func (s *Store) Reinforce(ctx context.Context, id string, base float64, conversationID string) (*Learning, error) {
	now := time.Now().UTC().Format(time.DateTime)

	var result sql.Result
	var err error
	if conversationID != "" {
		result, err = s.db.ExecContext(ctx, `
			UPDATE learnings
			SET observations = observations + 1,
				confidence = min(1.0, 1 - (1 - confidence) * (1 - ?)),
				source_conversations = json_insert(source_conversations, '$[#]', ?),
				updated_at = ?
			WHERE id = ?`,
			base, conversationID, now, id)
	} else {
		result, err = s.db.ExecContext(ctx, `
			UPDATE learnings
			SET observations = observations + 1,
				confidence = min(1.0, 1 - (1 - confidence) * (1 - ?)),
				updated_at = ?
			WHERE id = ?`,
			base, now, id)
	}
	if err != nil {
		return nil, fmt.Errorf("reinforcing learning: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, fmt.Errorf("learning not found: %s", id)
	}

	return s.Get(ctx, id)
}

// RecordApplication atomically increments the application counter (and the
// success counter when success is true) for an approved learning.
func (s *Store) RecordApplication(ctx context.Context, id string, success bool) error {
	successInc := 0
	if success {
		successInc = 1
	}
	result, err := s.db.ExecContext(ctx, `
		UPDATE learnings
		SET applied_count = applied_count + 1, success_count = success_count + ?, updated_at = ?
		WHERE id = ? AND status = 'approved'`,
		successInc, time.Now().UTC().Format(time.DateTime), id)
	if err != nil {
		return fmt.Errorf("recording learning application: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("no approved learning with id %s", id)
	}
	return nil
}

// scanner is implemented by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanLearning(s scanner) (*Learning, error) {
	var l Learning
	var typ, status string
	var negative, brandGuideline int
	var sources, refs string
	var createdAt, updatedAt string

	err := s.Scan(&l.ID, &typ, &l.Subject, &l.Content, &l.Confidence, &status,
		&negative, &brandGuideline, &l.Observations, &l.AppliedCount, &l.SuccessCount,
		&l.GateReason, &sources, &refs, &createdAt, &updatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	l.Type = Type(typ)
	l.Status = Status(status)
	l.Negative = negative != 0
	l.BrandGuideline = brandGuideline != 0
	json.Unmarshal([]byte(sources), &l.SourceConversations)
	json.Unmarshal([]byte(refs), &l.ExampleRefs)
	if t, err := time.Parse(time.DateTime, createdAt); err == nil {
		l.CreatedAt = t
	}
	if t, err := time.Parse(time.DateTime, updatedAt); err == nil {
		l.UpdatedAt = t
	}

	return &l, nil
}

func jsonList(items []string) string {
	if len(items) == 0 {
		return "[]"
	}
	data, _ := json.Marshal(items)
	return string(data)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
