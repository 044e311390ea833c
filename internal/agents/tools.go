package agents

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nbakr/marko/internal/knowledge"
	"github.com/nbakr/marko/internal/llm"
)

// KnowledgeTools returns the tool surface reasoning agents use to consult
// the knowledge base mid-turn, plus the handler executing those calls.
func KnowledgeTools(retriever knowledge.Retriever) ([]llm.ToolDefinition, ToolHandler) {
	tools := []llm.ToolDefinition{
		{
			Name:        "search_knowledge",
			Description: "Search the wellness knowledge base for facts about programs, centers, pricing, and policies.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"query": map[string]any{
						"type":        "string",
						"description": "What to look up",
					},
				},
				"required": []string{"query"},
			},
		},
	}

	handler := func(ctx context.Context, call llm.ToolCall) (string, error) {
		if call.Name != "search_knowledge" {
			return "", fmt.Errorf("unknown tool %q", call.Name)
		}
		var args struct {
			Query string `json:"query"`
		}
		if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
			return "", fmt.Errorf("parsing search_knowledge arguments: %w", err)
		}

		results, err := retriever.Search(ctx, knowledge.NamespaceWellness, args.Query, 3)
		if err != nil {
			return "", err
		}

		type hit struct {
			Content    string  `json:"content"`
			Source     string  `json:"source"`
			Similarity float32 `json:"similarity"`
		}
		hits := make([]hit, 0, len(results))
		for _, r := range results {
			hits = append(hits, hit{
				Content:    r.Snippet.Content,
				Source:     r.Snippet.Metadata.Source,
				Similarity: r.Similarity,
			})
		}
		out, err := json.Marshal(map[string]any{"results": hits})
		if err != nil {
			return "", err
		}
		return string(out), nil
	}

	return tools, handler
}
