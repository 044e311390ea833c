package generate

import "fmt"

// Preview is the first-stage creative artifact the user approves or
// revises before full content is written.
type Preview struct {
	ID        string   `json:"id"`
	Hook      string   `json:"hook"`
	OpenLoops []string `json:"open_loops"`
	Promise   string   `json:"promise"`
}

// Content is the final artifact generated from an approved preview.
type Content struct {
	ID           string   `json:"id"`
	PreviewID    string   `json:"preview_id"`
	Body         string   `json:"body"`
	Hashtags     []string `json:"hashtags,omitempty"`
	CallToAction string   `json:"call_to_action"`
	Platform     string   `json:"platform"`
}

// ContractViolationError reports generated text containing a claim the
// verification result flagged. It is an internal fault: the artifact must
// never reach the user.
type ContractViolationError struct {
	Artifact string // "preview" or "content"
	Claim    string
}

func (e *ContractViolationError) Error() string {
	return fmt.Sprintf("%s contains flagged claim %q", e.Artifact, e.Claim)
}
