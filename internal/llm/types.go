package llm

// Role represents the role of a message sender in a conversation.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message represents a single message in a conversation.
type Message struct {
	Role    Role
	Content string
	// ToolCalls is set on assistant messages that requested tool use.
	ToolCalls []ToolCall
	// ToolCallID links a tool-role message to the call it answers.
	ToolCallID string
}

// ToolDefinition declares a tool the model may call during completion.
type ToolDefinition struct {
	Name        string
	Description string
	// Parameters is a JSON Schema object describing the tool arguments.
	Parameters map[string]any
}

// ToolCall is a model request to invoke a declared tool.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string // raw JSON
}

// CompletionRequest contains the parameters for an LLM completion request.
type CompletionRequest struct {
	Model       string
	Messages    []Message
	MaxTokens   int
	Temperature float64
	JSONMode    bool
	Tools       []ToolDefinition
}

// CompletionResponse contains the result of an LLM completion request.
type CompletionResponse struct {
	Content      string
	ToolCalls    []ToolCall
	InputTokens  int
	OutputTokens int
	Model        string
	FinishReason string
}
