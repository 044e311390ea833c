package pipeline

import (
	"errors"
	"fmt"

	"github.com/nbakr/marko/internal/brief"
)

// ErrPersistenceConflict is returned when a concurrent writer advanced the
// same conversation first. The caller should reload and retry.
var ErrPersistenceConflict = errors.New("conversation advanced concurrently")

// ErrConversationDone is returned for interactions with a completed or
// archived conversation.
var ErrConversationDone = errors.New("conversation is no longer active")

// BriefIncompleteError is a hard briefing failure: a required field stayed
// empty past the retry cap.
type BriefIncompleteError struct {
	Missing []brief.Field
}

func (e *BriefIncompleteError) Error() string {
	return fmt.Sprintf("brief incomplete after retries, missing fields: %v", e.Missing)
}

// VerificationFailedError reports a brief that could not reach the
// verification threshold after the allowed correction rounds.
type VerificationFailedError struct {
	Score      float64
	Threshold  float64
	Unverified []string
}

func (e *VerificationFailedError) Error() string {
	return fmt.Sprintf("verification score %.0f below threshold %.0f after retries", e.Score, e.Threshold)
}

// GenerationTimeoutError reports a generation call that exceeded the
// request timeout on every retry.
type GenerationTimeoutError struct {
	Artifact string // "preview" or "content"
	Err      error
}

func (e *GenerationTimeoutError) Error() string {
	return fmt.Sprintf("%s generation timed out: %v", e.Artifact, e.Err)
}

func (e *GenerationTimeoutError) Unwrap() error { return e.Err }

// WrongStageError reports an operation invoked while the conversation is
// in a stage that does not accept it.
type WrongStageError struct {
	Op    string
	Stage Stage
}

func (e *WrongStageError) Error() string {
	return fmt.Sprintf("%s not valid in stage %s", e.Op, e.Stage)
}
