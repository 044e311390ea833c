package mcp

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/nbakr/marko/internal/knowledge"
	"github.com/nbakr/marko/internal/learning"
)

// handleSearchKnowledge performs semantic search over a knowledge
// namespace.
func (s *Server) handleSearchKnowledge(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := request.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: query"), nil
	}

	ns := knowledge.Namespace(request.GetString("namespace", string(knowledge.NamespaceWellness)))
	limit := request.GetInt("limit", 5)
	if limit <= 0 {
		limit = 5
	}

	results, err := s.retriever.Search(ctx, ns, query, limit)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("search failed: %v", err)), nil
	}
	if len(results) == 0 {
		return mcp.NewToolResultText("No results found. The knowledge base may be empty; run `marko ingest` to load it."), nil
	}

	var sb strings.Builder
	for i, r := range results {
		fmt.Fprintf(&sb, "%d. [%.2f] %s", i+1, r.Similarity, r.Snippet.Content)
		if r.Snippet.Metadata.Source != "" {
			fmt.Fprintf(&sb, "\n   source: %s", r.Snippet.Metadata.Source)
		}
		sb.WriteString("\n\n")
	}
	return mcp.NewToolResultText(sb.String()), nil
}

// handleListLearnings returns learnings matching the given filters.
func (s *Server) handleListLearnings(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	filter := learning.ListFilter{
		Status: learning.Status(request.GetString("status", "")),
		Type:   learning.Type(request.GetString("type", "")),
		Limit:  request.GetInt("limit", 20),
	}

	results, err := s.learnings.List(ctx, filter)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("listing learnings failed: %v", err)), nil
	}
	if len(results) == 0 {
		return mcp.NewToolResultText("No learnings recorded yet."), nil
	}

	var sb strings.Builder
	for _, l := range results {
		fmt.Fprintf(&sb, "[%s/%s] %s (confidence %.2f, %d observations)\n  %s\n",
			l.Type, l.Status, l.Subject, l.Confidence, l.Observations, l.Content)
		if l.GateReason != "" {
			fmt.Fprintf(&sb, "  held: %s\n", l.GateReason)
		}
	}
	return mcp.NewToolResultText(sb.String()), nil
}

// handlePipelineStatus reports a conversation's stage and brief progress.
func (s *Server) handlePipelineStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("conversation_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: conversation_id"), nil
	}

	conv, err := s.pipeline.Get(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("loading conversation failed: %v", err)), nil
	}
	if conv == nil {
		return mcp.NewToolResultError(fmt.Sprintf("conversation %q not found", id)), nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Conversation %s\nStage: %s\nStatus: %s\n", conv.ID, conv.Stage, conv.Status)
	if missing := conv.State.Brief.Missing(); len(missing) > 0 {
		fmt.Fprintf(&sb, "Brief fields still missing: %v\n", missing)
	} else {
		sb.WriteString("Brief: complete\n")
	}
	if conv.State.Verification != nil {
		fmt.Fprintf(&sb, "Verification score: %.0f\n", conv.State.Verification.Score)
	}
	if conv.State.RejectedPreviews > 0 {
		fmt.Fprintf(&sb, "Rejected previews: %d\n", conv.State.RejectedPreviews)
	}
	return mcp.NewToolResultText(sb.String()), nil
}
