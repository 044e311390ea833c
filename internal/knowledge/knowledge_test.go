package knowledge

import (
	"context"
	"hash/fnv"
	"strings"
	"testing"

	"github.com/nbakr/marko/internal/db"
	"github.com/nbakr/marko/internal/learning"
)

// fakeEmbedder produces deterministic vectors from token hashes so tests
// run without a network.
type fakeEmbedder struct{}

func (fakeEmbedder) Name() string    { return "fake" }
func (fakeEmbedder) Dimensions() int { return 16 }

func (fakeEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec := make([]float32, 16)
		for _, token := range strings.Fields(strings.ToLower(text)) {
			h := fnv.New32a()
			h.Write([]byte(token))
			vec[h.Sum32()%16]++
		}
		out[i] = vec
	}
	return out, nil
}

func setupStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(fakeEmbedder{})
}

func TestAddAndSearch(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	snippets := []Snippet{
		{ID: "w-1", Content: "the aqua therapy program runs twice weekly at the north center", Metadata: SnippetMetadata{Source: "programs.md"}},
		{ID: "w-2", Content: "yoga classes focus on stress relief and flexibility", Metadata: SnippetMetadata{Source: "programs.md"}},
		{ID: "w-3", Content: "the downtown center offers sauna and cold plunge", Metadata: SnippetMetadata{Source: "centers.md"}},
	}
	if err := store.Add(ctx, NamespaceWellness, snippets); err != nil {
		t.Fatalf("Add: %v", err)
	}

	results, err := store.Search(ctx, NamespaceWellness, "aqua therapy program", 2)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) == 0 {
		t.Fatal("Search returned no results")
	}
	if results[0].Snippet.ID != "w-1" {
		t.Errorf("top result = %q, want w-1", results[0].Snippet.ID)
	}

	// Namespaces are isolated.
	if store.Count(NamespaceExamples) != 0 {
		t.Errorf("examples namespace should be empty")
	}
}

func TestRankCandidatesPrefersOutcomeProven(t *testing.T) {
	candidates := []SearchResult{
		{Snippet: Snippet{ID: "ex-similar"}, Similarity: 0.90},
		{Snippet: Snippet{ID: "ex-proven"}, Similarity: 0.85},
		{Snippet: Snippet{ID: "ex-other"}, Similarity: 0.50},
	}
	approved := []learning.Learning{
		{
			ID:           "l-1",
			Type:         learning.TypePattern,
			Status:       learning.StatusApproved,
			Confidence:   0.9,
			AppliedCount: 10,
			SuccessCount: 9,
			ExampleRefs:  []string{"ex-proven"},
		},
	}

	ranked := RankCandidates(candidates, approved)

	// 0.85 * (1 + 0.9*0.9) = 1.538 beats 0.90 with no boost.
	if ranked[0].Snippet.ID != "ex-proven" {
		t.Errorf("top = %q, want ex-proven", ranked[0].Snippet.ID)
	}
	if ranked[0].Boost == 0 {
		t.Error("expected a non-zero boost")
	}
	if len(ranked[0].LearningIDs) != 1 || ranked[0].LearningIDs[0] != "l-1" {
		t.Errorf("LearningIDs = %v", ranked[0].LearningIDs)
	}
	if ranked[1].Snippet.ID != "ex-similar" {
		t.Errorf("second = %q, want ex-similar", ranked[1].Snippet.ID)
	}
}

func TestRankCandidatesSeedsUnappliedLearnings(t *testing.T) {
	candidates := []SearchResult{
		{Snippet: Snippet{ID: "a"}, Similarity: 0.8},
		{Snippet: Snippet{ID: "b"}, Similarity: 0.7},
	}
	// Approved but never applied: boosts on confidence alone, so the
	// learning can be attributed and earn its first outcome.
	approved := []learning.Learning{
		{ID: "l-1", Confidence: 0.9, ExampleRefs: []string{"b"}},
	}

	ranked := RankCandidates(candidates, approved)
	// 0.7 * (1 + 0.9) = 1.33 beats 0.8 with no boost.
	if ranked[0].Snippet.ID != "b" {
		t.Errorf("top = %q, want confidence-seeded b", ranked[0].Snippet.ID)
	}
	if ranked[0].Boost != 0.9 {
		t.Errorf("Boost = %v, want 0.9", ranked[0].Boost)
	}
	if len(ranked[0].LearningIDs) != 1 || ranked[0].LearningIDs[0] != "l-1" {
		t.Errorf("LearningIDs = %v, want [l-1]", ranked[0].LearningIDs)
	}
}

func TestRankCandidatesDropsFailedLearnings(t *testing.T) {
	candidates := []SearchResult{
		{Snippet: Snippet{ID: "a"}, Similarity: 0.8},
		{Snippet: Snippet{ID: "b"}, Similarity: 0.7},
	}
	// Applied repeatedly without a single success: no boost anymore.
	approved := []learning.Learning{
		{ID: "l-1", Confidence: 0.9, AppliedCount: 4, SuccessCount: 0, ExampleRefs: []string{"b"}},
	}

	ranked := RankCandidates(candidates, approved)
	if ranked[0].Snippet.ID != "a" {
		t.Errorf("top = %q, want a", ranked[0].Snippet.ID)
	}
	if ranked[1].Boost != 0 {
		t.Errorf("Boost = %v, want 0 after failed applications", ranked[1].Boost)
	}
}

func TestRankCandidatesDeterministic(t *testing.T) {
	candidates := []SearchResult{
		{Snippet: Snippet{ID: "c"}, Similarity: 0.5},
		{Snippet: Snippet{ID: "a"}, Similarity: 0.5},
		{Snippet: Snippet{ID: "b"}, Similarity: 0.5},
	}

	first := RankCandidates(candidates, nil)
	second := RankCandidates(candidates, nil)
	for i := range first {
		if first[i].Snippet.ID != second[i].Snippet.ID {
			t.Fatalf("orderings differ at %d: %q vs %q", i, first[i].Snippet.ID, second[i].Snippet.ID)
		}
	}
	// Equal scores break ties by ID.
	if first[0].Snippet.ID != "a" || first[1].Snippet.ID != "b" || first[2].Snippet.ID != "c" {
		t.Errorf("tie-break order = %q, %q, %q", first[0].Snippet.ID, first[1].Snippet.ID, first[2].Snippet.ID)
	}
}

func TestRankedExamplesEndToEnd(t *testing.T) {
	database, err := db.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	store := setupStore(t)
	learnings := learning.NewStore(database)
	ranker := NewRanker(store, learnings)
	ctx := context.Background()

	examples := []Snippet{
		{ID: "ex-1", Content: "hook about morning energy routines for busy parents", Metadata: SnippetMetadata{Platform: "instagram"}},
		{ID: "ex-2", Content: "hook about morning energy routines and cold exposure", Metadata: SnippetMetadata{Platform: "instagram"}},
	}
	if err := store.Add(ctx, NamespaceExamples, examples); err != nil {
		t.Fatalf("Add: %v", err)
	}

	l := &learning.Learning{
		Type:        learning.TypePattern,
		Subject:     "hook:morning-energy",
		Content:     "Morning-energy hooks convert",
		Confidence:  0.8,
		Status:      learning.StatusApproved,
		ExampleRefs: []string{"ex-2"},
	}
	if err := learnings.Insert(ctx, l); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	for i := 0; i < 5; i++ {
		if err := learnings.RecordApplication(ctx, l.ID, true); err != nil {
			t.Fatalf("RecordApplication: %v", err)
		}
	}

	first, err := ranker.RankedExamples(ctx, NamespaceExamples, "morning energy routines", 2)
	if err != nil {
		t.Fatalf("RankedExamples: %v", err)
	}
	second, err := ranker.RankedExamples(ctx, NamespaceExamples, "morning energy routines", 2)
	if err != nil {
		t.Fatalf("RankedExamples: %v", err)
	}

	if len(first) != 2 {
		t.Fatalf("got %d examples, want 2", len(first))
	}
	for i := range first {
		if first[i].Snippet.ID != second[i].Snippet.ID {
			t.Fatalf("ranking not idempotent at %d", i)
		}
	}
	if first[0].Snippet.ID != "ex-2" {
		t.Errorf("top = %q, want outcome-proven ex-2", first[0].Snippet.ID)
	}
}

func TestRankedExamplesBootstrapsNewLearnings(t *testing.T) {
	database, err := db.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	store := setupStore(t)
	learnings := learning.NewStore(database)
	ranker := NewRanker(store, learnings)
	ctx := context.Background()

	examples := []Snippet{
		{ID: "ex-1", Content: "hook about evening wind-down rituals", Metadata: SnippetMetadata{Platform: "instagram"}},
		{ID: "ex-2", Content: "hook about evening wind-down and screens", Metadata: SnippetMetadata{Platform: "instagram"}},
	}
	if err := store.Add(ctx, NamespaceExamples, examples); err != nil {
		t.Fatalf("Add: %v", err)
	}

	l := &learning.Learning{
		Type:        learning.TypeStyle,
		Subject:     "hook:wind-down",
		Content:     "Wind-down hooks land with this audience",
		Confidence:  0.9,
		Status:      learning.StatusApproved,
		ExampleRefs: []string{"ex-1"},
	}
	if err := learnings.Insert(ctx, l); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	// A freshly approved learning must already boost and be attributed,
	// otherwise its outcome counters could never move.
	ranked, err := ranker.RankedExamples(ctx, NamespaceExamples, "evening wind-down rituals", 2)
	if err != nil {
		t.Fatalf("RankedExamples: %v", err)
	}
	var seeded *RankedExample
	for i := range ranked {
		if ranked[i].Snippet.ID == "ex-1" {
			seeded = &ranked[i]
		}
	}
	if seeded == nil {
		t.Fatal("ex-1 missing from ranking")
	}
	if seeded.Boost != 0.9 {
		t.Errorf("Boost = %v, want confidence 0.9 before any application", seeded.Boost)
	}
	if len(seeded.LearningIDs) != 1 || seeded.LearningIDs[0] != l.ID {
		t.Fatalf("LearningIDs = %v, want [%s]", seeded.LearningIDs, l.ID)
	}

	// Attribution feeds back: failed applications erase the boost.
	for i := 0; i < 3; i++ {
		if err := learnings.RecordApplication(ctx, l.ID, false); err != nil {
			t.Fatalf("RecordApplication: %v", err)
		}
	}
	again, err := ranker.RankedExamples(ctx, NamespaceExamples, "evening wind-down rituals", 2)
	if err != nil {
		t.Fatalf("RankedExamples: %v", err)
	}
	for _, ex := range again {
		if ex.Snippet.ID == "ex-1" && ex.Boost != 0 {
			t.Errorf("Boost = %v, want 0 once applications keep failing", ex.Boost)
		}
	}
}

func TestParseMarkdownSections(t *testing.T) {
	source := []byte(`# Wellness Programs

Intro text about our programs.

## Aqua Therapy

Runs twice weekly at the north center.
Sessions last 45 minutes.

## Yoga

- Stress relief
- Flexibility
`)

	snippets := ParseMarkdown(source, "programs.md")
	if len(snippets) != 3 {
		t.Fatalf("got %d snippets, want 3", len(snippets))
	}
	if snippets[0].Metadata.Title != "Wellness Programs" {
		t.Errorf("Title = %q", snippets[0].Metadata.Title)
	}
	if snippets[1].Metadata.Section != "Aqua Therapy" {
		t.Errorf("Section = %q", snippets[1].Metadata.Section)
	}
	if !strings.Contains(snippets[1].Content, "north center") {
		t.Errorf("Content = %q", snippets[1].Content)
	}
	if !strings.Contains(snippets[2].Content, "Stress relief") {
		t.Errorf("list content missing: %q", snippets[2].Content)
	}
	// Re-parsing yields identical IDs.
	again := ParseMarkdown(source, "programs.md")
	for i := range snippets {
		if snippets[i].ID != again[i].ID {
			t.Errorf("snippet ID not stable at %d", i)
		}
	}
}
