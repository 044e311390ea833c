package knowledge

import (
	"context"
	"fmt"
	"sync"

	chromem "github.com/philippgille/chromem-go"

	"github.com/nbakr/marko/internal/embeddings"
)

// Store persists knowledge snippets in per-namespace chromem collections.
type Store struct {
	db        *chromem.DB
	embedder  embeddings.Embedder
	embedFunc chromem.EmbeddingFunc

	mu          sync.Mutex
	collections map[Namespace]*chromem.Collection
}

// NewStore creates a new in-memory knowledge store.
func NewStore(embedder embeddings.Embedder) *Store {
	return &Store{
		db:          chromem.NewDB(),
		embedder:    embedder,
		embedFunc:   embeddings.ToChromemFunc(embedder),
		collections: make(map[Namespace]*chromem.Collection),
	}
}

func (s *Store) collection(ns Namespace) (*chromem.Collection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if col, ok := s.collections[ns]; ok {
		return col, nil
	}
	col, err := s.db.GetOrCreateCollection(string(ns), nil, s.embedFunc)
	if err != nil {
		return nil, fmt.Errorf("create collection %q: %w", ns, err)
	}
	s.collections[ns] = col
	return col, nil
}

// Add inserts or updates snippets in the given namespace.
func (s *Store) Add(ctx context.Context, ns Namespace, snippets []Snippet) error {
	if len(snippets) == 0 {
		return nil
	}
	col, err := s.collection(ns)
	if err != nil {
		return err
	}

	docs := make([]chromem.Document, len(snippets))
	for i, sn := range snippets {
		docs[i] = chromem.Document{
			ID:      sn.ID,
			Content: sn.Content,
			Metadata: map[string]string{
				"source":   sn.Metadata.Source,
				"title":    sn.Metadata.Title,
				"section":  sn.Metadata.Section,
				"platform": sn.Metadata.Platform,
			},
		}
	}

	return col.AddDocuments(ctx, docs, 1)
}

// Search performs a semantic search in the given namespace.
func (s *Store) Search(ctx context.Context, ns Namespace, query string, limit int) ([]SearchResult, error) {
	col, err := s.collection(ns)
	if err != nil {
		return nil, err
	}

	if limit <= 0 {
		limit = 10
	}
	// chromem-go requires nResults <= collection size.
	count := col.Count()
	if count == 0 {
		return nil, nil
	}
	if limit > count {
		limit = count
	}

	results, err := col.Query(ctx, query, limit, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("chromem query: %w", err)
	}

	out := make([]SearchResult, len(results))
	for i, r := range results {
		out[i] = SearchResult{
			Snippet: Snippet{
				ID:      r.ID,
				Content: r.Content,
				Metadata: SnippetMetadata{
					Source:   r.Metadata["source"],
					Title:    r.Metadata["title"],
					Section:  r.Metadata["section"],
					Platform: r.Metadata["platform"],
				},
			},
			Similarity: r.Similarity,
		}
	}
	return out, nil
}

// Count returns the number of snippets in the given namespace.
func (s *Store) Count(ns Namespace) int {
	col, err := s.collection(ns)
	if err != nil {
		return 0
	}
	return col.Count()
}

// Persist saves the store's data to the given directory.
func (s *Store) Persist(ctx context.Context, dir string) error {
	return s.db.ExportToFile(dir+"/knowledge.gob.gz", true, "")
}

// Load restores the store's data from the given directory.
func (s *Store) Load(ctx context.Context, dir string) error {
	if err := s.db.ImportFromFile(dir+"/knowledge.gob.gz", ""); err != nil {
		return fmt.Errorf("import from file: %w", err)
	}

	// Re-acquire collection references after import.
	s.mu.Lock()
	defer s.mu.Unlock()
	for ns := range s.collections {
		col := s.db.GetCollection(string(ns), s.embedFunc)
		if col == nil {
			return fmt.Errorf("collection %q not found after import", ns)
		}
		s.collections[ns] = col
	}
	return nil
}
