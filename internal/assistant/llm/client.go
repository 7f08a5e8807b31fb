// Package llm abstracts the chat completion provider behind a small client
// interface so the orchestrator can be exercised without network access.
package llm

import (
	"context"
	"encoding/json"

	"github.com/sashabaranov/go-openai/jsonschema"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is one entry of the chat transcript sent to the model.
type Message struct {
	Role       Role
	Content    string
	ImageURL   string
	ToolCalls  []ToolCall
	ToolCallID string
	Name       string
}

// ToolCall is a model-requested invocation of a registered tool.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// Response is the model's reply: free text, tool calls, or both.
type Response struct {
	Content   string
	ToolCalls []ToolCall
}

// ToolDefinition describes one callable tool to the model.
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  jsonschema.Definition
}

type Client interface {
	Chat(ctx context.Context, messages []Message, tools []ToolDefinition) (Response, error)
}
