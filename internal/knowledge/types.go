package knowledge

// Namespace partitions the knowledge base by purpose. Verification queries
// the wellness namespace; generation draws few-shot examples from the
// examples namespace.
type Namespace string

const (
	NamespaceWellness Namespace = "wellness"
	NamespaceExamples Namespace = "examples"
)

// Snippet is a piece of knowledge stored and searched by embedding.
type Snippet struct {
	ID       string          `json:"id"`
	Content  string          `json:"content"`
	Metadata SnippetMetadata `json:"metadata"`
}

// SnippetMetadata holds structured information about a snippet.
type SnippetMetadata struct {
	Source   string `json:"source"`             // originating file or import
	Title    string `json:"title,omitempty"`    // document title
	Section  string `json:"section,omitempty"`  // heading path within the document
	Platform string `json:"platform,omitempty"` // for examples: target platform
}

// SearchResult pairs a snippet with its similarity score.
type SearchResult struct {
	Snippet    Snippet `json:"snippet"`
	Similarity float32 `json:"similarity"`
}

// RankedExample is a search result re-weighted by learning outcomes.
type RankedExample struct {
	Snippet    Snippet `json:"snippet"`
	Similarity float32 `json:"similarity"`
	// Boost is the outcome weight derived from approved learnings that
	// reference this snippet; zero when no learning applies.
	Boost float64 `json:"boost"`
	// Score is the final ranking key.
	Score float64 `json:"score"`
	// LearningIDs lists the approved learnings that contributed to Boost.
	LearningIDs []string `json:"learning_ids,omitempty"`
}
