package pipeline

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nbakr/marko/internal/db"
	"github.com/nbakr/marko/internal/generate"
	"github.com/nbakr/marko/internal/verify"
)

// Store persists conversations, transcripts, and the artifacts produced
// along the way. Stage changes and their turns are written in one
// transaction so a crash never leaves a transcript ahead of its stage.
type Store struct {
	db *db.DB
}

// NewStore creates a new pipeline store.
func NewStore(database *db.DB) *Store {
	return &Store{db: database}
}

// Create starts a new conversation in the briefing stage.
func (s *Store) Create(ctx context.Context, userID string) (*Conversation, error) {
	conv := &Conversation{
		ID:        uuid.NewString(),
		UserID:    userID,
		Stage:     StageBriefing,
		Status:    StatusActive,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}

	stateJSON, err := json.Marshal(conv.State)
	if err != nil {
		return nil, fmt.Errorf("encoding state: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO conversations (id, user_id, stage, state, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		conv.ID, conv.UserID, string(conv.Stage), string(stateJSON), string(conv.Status),
		conv.CreatedAt.Format(time.DateTime), conv.UpdatedAt.Format(time.DateTime))
	if err != nil {
		return nil, fmt.Errorf("creating conversation: %w", err)
	}
	return conv, nil
}

// Get retrieves a conversation by ID, or nil if not found.
func (s *Store) Get(ctx context.Context, id string) (*Conversation, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, stage, state, status, created_at, updated_at
		FROM conversations WHERE id = ?`, id)
	return scanConversation(row)
}

// List returns a user's conversations, newest first. Status filters when
// non-empty.
func (s *Store) List(ctx context.Context, userID string, status ConversationStatus) ([]Conversation, error) {
	query := `SELECT id, user_id, stage, state, status, created_at, updated_at
		FROM conversations WHERE user_id = ?`
	args := []interface{}{userID}
	if status != "" {
		query += " AND status = ?"
		args = append(args, string(status))
	}
	query += " ORDER BY updated_at DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Conversation
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, *c)
	}
	return results, rows.Err()
}

// Advance writes the conversation's new stage and state together with the
// turns produced this interaction. Sequence numbers continue from the
// stored transcript; a concurrent writer claiming the same sequence makes
// the whole transaction fail with ErrPersistenceConflict.
func (s *Store) Advance(ctx context.Context, conv *Conversation, newTurns []Turn) error {
	stateJSON, err := json.Marshal(conv.State)
	if err != nil {
		return fmt.Errorf("encoding state: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	conv.UpdatedAt = time.Now().UTC()
	_, err = tx.ExecContext(ctx, `
		UPDATE conversations SET stage = ?, state = ?, status = ?, updated_at = ?
		WHERE id = ?`,
		string(conv.Stage), string(stateJSON), string(conv.Status),
		conv.UpdatedAt.Format(time.DateTime), conv.ID)
	if err != nil {
		return fmt.Errorf("updating conversation: %w", err)
	}

	var seq int
	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq), 0) FROM conversation_turns WHERE conversation_id = ?`,
		conv.ID).Scan(&seq)
	if err != nil {
		return fmt.Errorf("reading turn sequence: %w", err)
	}

	for i := range newTurns {
		t := &newTurns[i]
		seq++
		t.ID = uuid.NewString()
		t.ConversationID = conv.ID
		t.Seq = seq
		t.CreatedAt = time.Now().UTC()

		var decision interface{}
		if t.Decision != "" {
			decision = t.Decision
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO conversation_turns (id, conversation_id, seq, role, content, decision, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			t.ID, t.ConversationID, t.Seq, t.Role, t.Content, decision,
			t.CreatedAt.Format(time.DateTime))
		if err != nil {
			if strings.Contains(err.Error(), "UNIQUE constraint") {
				return ErrPersistenceConflict
			}
			return fmt.Errorf("inserting turn: %w", err)
		}
	}

	return tx.Commit()
}

// Turns returns a conversation's transcript in order.
func (s *Store) Turns(ctx context.Context, conversationID string) ([]Turn, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, conversation_id, seq, role, content, decision, created_at
		FROM conversation_turns WHERE conversation_id = ? ORDER BY seq`,
		conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var turns []Turn
	for rows.Next() {
		var t Turn
		var decision *string
		var createdAt string
		if err := rows.Scan(&t.ID, &t.ConversationID, &t.Seq, &t.Role, &t.Content, &decision, &createdAt); err != nil {
			return nil, err
		}
		if decision != nil {
			t.Decision = *decision
		}
		if ts, err := time.Parse(time.DateTime, createdAt); err == nil {
			t.CreatedAt = ts
		}
		turns = append(turns, t)
	}
	return turns, rows.Err()
}

// SaveVerification stores a verification result for the audit trail.
func (s *Store) SaveVerification(ctx context.Context, conversationID string, r *verify.Result) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO verification_results (id, conversation_id, score, verified_facts, unverified_claims, corrections, knowledge_refs, recommendations)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), conversationID, r.Score,
		jsonField(r.VerifiedFacts), jsonField(r.UnverifiedClaims),
		jsonField(r.Corrections), jsonField(r.KnowledgeRefs), jsonField(r.Recommendations))
	if err != nil {
		return fmt.Errorf("saving verification result: %w", err)
	}
	return nil
}

// SavePreview stores a generated preview.
func (s *Store) SavePreview(ctx context.Context, conversationID string, p *generate.Preview) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO content_previews (id, conversation_id, hook, open_loops, promise)
		VALUES (?, ?, ?, ?, ?)`,
		p.ID, conversationID, p.Hook, jsonField(p.OpenLoops), p.Promise)
	if err != nil {
		return fmt.Errorf("saving preview: %w", err)
	}
	return nil
}

// GetPreview retrieves a preview by ID, or nil.
func (s *Store) GetPreview(ctx context.Context, id string) (*generate.Preview, error) {
	var p generate.Preview
	var openLoops string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, hook, open_loops, promise FROM content_previews WHERE id = ?`, id).
		Scan(&p.ID, &p.Hook, &openLoops, &p.Promise)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	json.Unmarshal([]byte(openLoops), &p.OpenLoops)
	return &p, nil
}

// DiscardPreview marks a rejected preview. Discarded previews are kept for
// the record but never used for content generation.
func (s *Store) DiscardPreview(ctx context.Context, previewID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE content_previews SET discarded = 1 WHERE id = ?`, previewID)
	if err != nil {
		return fmt.Errorf("discarding preview: %w", err)
	}
	return nil
}

// SaveContent stores a generated content artifact.
func (s *Store) SaveContent(ctx context.Context, conversationID string, c *generate.Content) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO generated_content (id, conversation_id, preview_id, body, hashtags, call_to_action, platform)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		c.ID, conversationID, c.PreviewID, c.Body, jsonField(c.Hashtags), c.CallToAction, c.Platform)
	if err != nil {
		return fmt.Errorf("saving content: %w", err)
	}
	return nil
}

// GetContent retrieves a content artifact by ID, or nil.
func (s *Store) GetContent(ctx context.Context, id string) (*generate.Content, error) {
	var c generate.Content
	var hashtags string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, preview_id, body, hashtags, call_to_action, platform
		FROM generated_content WHERE id = ?`, id).
		Scan(&c.ID, &c.PreviewID, &c.Body, &hashtags, &c.CallToAction, &c.Platform)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	json.Unmarshal([]byte(hashtags), &c.Hashtags)
	return &c, nil
}

// scanner is implemented by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanConversation(row scanner) (*Conversation, error) {
	var c Conversation
	var stage, state, status string
	var createdAt, updatedAt string

	err := row.Scan(&c.ID, &c.UserID, &stage, &state, &status, &createdAt, &updatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	c.Stage = Stage(stage)
	c.Status = ConversationStatus(status)
	if err := json.Unmarshal([]byte(state), &c.State); err != nil {
		return nil, fmt.Errorf("decoding conversation state: %w", err)
	}
	if t, err := time.Parse(time.DateTime, createdAt); err == nil {
		c.CreatedAt = t
	}
	if t, err := time.Parse(time.DateTime, updatedAt); err == nil {
		c.UpdatedAt = t
	}
	return &c, nil
}

func jsonField(v interface{}) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "[]"
	}
	return string(b)
}
