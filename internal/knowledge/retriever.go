package knowledge

import (
	"context"
	"fmt"
	"sort"

	"github.com/nbakr/marko/internal/learning"
)

// Retriever is the knowledge query surface consumed by verification and
// generation.
type Retriever interface {
	// Search returns snippets ranked by semantic similarity only.
	Search(ctx context.Context, ns Namespace, query string, limit int) ([]SearchResult, error)
	// RankedExamples returns example snippets re-weighted by approved
	// learning outcomes. Given the same stored learnings and query, the
	// ordering is deterministic.
	RankedExamples(ctx context.Context, ns Namespace, query string, limit int) ([]RankedExample, error)
}

// Ranker implements Retriever over a Store, boosting examples that
// approved pattern and style learnings have proven out.
type Ranker struct {
	store     *Store
	learnings *learning.Store
}

// NewRanker creates a retriever that consults the learning store when
// ordering examples.
func NewRanker(store *Store, learnings *learning.Store) *Ranker {
	return &Ranker{store: store, learnings: learnings}
}

func (r *Ranker) Search(ctx context.Context, ns Namespace, query string, limit int) ([]SearchResult, error) {
	return r.store.Search(ctx, ns, query, limit)
}

// RankedExamples searches with extra headroom, applies learning boosts, and
// returns the top results by combined score. An example with proven
// outcomes always outranks a purely similar one at equal similarity.
func (r *Ranker) RankedExamples(ctx context.Context, ns Namespace, query string, limit int) ([]RankedExample, error) {
	if limit <= 0 {
		limit = 5
	}

	// Over-fetch so a boosted example just below the similarity cutoff can
	// still make the final list.
	candidates, err := r.store.Search(ctx, ns, query, limit*3)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	approved, err := r.learnings.Approved(ctx, learning.TypePattern, learning.TypeStyle)
	if err != nil {
		return nil, fmt.Errorf("loading approved learnings: %w", err)
	}

	ranked := RankCandidates(candidates, approved)
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked, nil
}

// RankCandidates combines similarity with learning outcomes. The boost for
// a snippet is the largest outcome weight over the approved learnings
// referencing it; the final score is similarity × (1 + boost), which is
// monotonically increasing in both factors. Ties break by snippet ID so
// the ordering is reproducible.
func RankCandidates(candidates []SearchResult, approved []learning.Learning) []RankedExample {
	boosts := make(map[string]float64)
	contributors := make(map[string][]string)
	for _, l := range approved {
		weight := outcomeWeight(l)
		if weight <= 0 {
			continue
		}
		for _, ref := range l.ExampleRefs {
			if weight > boosts[ref] {
				boosts[ref] = weight
			}
			contributors[ref] = append(contributors[ref], l.ID)
		}
	}

	ranked := make([]RankedExample, len(candidates))
	for i, c := range candidates {
		boost := boosts[c.Snippet.ID]
		ranked[i] = RankedExample{
			Snippet:     c.Snippet,
			Similarity:  c.Similarity,
			Boost:       boost,
			Score:       float64(c.Similarity) * (1 + boost),
			LearningIDs: contributors[c.Snippet.ID],
		}
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		return ranked[i].Snippet.ID < ranked[j].Snippet.ID
	})
	return ranked
}

// outcomeWeight is confidence scaled by the observed success rate. A
// learning that has never been applied ranks on confidence alone;
// otherwise its first application could never happen and the success
// counters would stay pinned at zero.
func outcomeWeight(l learning.Learning) float64 {
	if l.AppliedCount == 0 {
		return l.Confidence
	}
	return l.Confidence * l.SuccessRate()
}
