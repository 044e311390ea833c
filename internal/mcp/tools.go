package mcp

import "github.com/mark3labs/mcp-go/mcp"

// searchKnowledgeTool defines the search_knowledge MCP tool.
var searchKnowledgeTool = mcp.NewTool("search_knowledge",
	mcp.WithDescription("Search the wellness knowledge base or the content example library semantically."),
	mcp.WithString("query",
		mcp.Required(),
		mcp.Description("Natural language search query"),
	),
	mcp.WithString("namespace",
		mcp.Description("Which collection to search (default wellness)"),
		mcp.Enum("wellness", "examples"),
	),
	mcp.WithNumber("limit",
		mcp.Description("Maximum number of results to return (default 5)"),
	),
)

// listLearningsTool defines the list_learnings MCP tool.
var listLearningsTool = mcp.NewTool("list_learnings",
	mcp.WithDescription("List learnings derived from user feedback, most recently updated first."),
	mcp.WithString("status",
		mcp.Description("Filter by lifecycle status"),
		mcp.Enum("pending", "approved", "rejected"),
	),
	mcp.WithString("type",
		mcp.Description("Filter by learning type"),
		mcp.Enum("pattern", "preference", "correction", "style"),
	),
	mcp.WithNumber("limit",
		mcp.Description("Maximum number of learnings to return (default 20)"),
	),
)

// pipelineStatusTool defines the pipeline_status MCP tool.
var pipelineStatusTool = mcp.NewTool("pipeline_status",
	mcp.WithDescription("Get the current stage and brief state of a content pipeline conversation."),
	mcp.WithString("conversation_id",
		mcp.Required(),
		mcp.Description("Conversation to inspect"),
	),
)
