package agent

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// RecipeContextToolName is the function the agent calls for recipe questions.
const RecipeContextToolName = "get_rag_context"

// Tool response frame schemas accepted by agent providers.
const (
	SchemaFunctionCallResponse = "function_call_response"
	SchemaFunctionResponse     = "function_response"
)

var ErrInvalidArguments = errors.New("agent: invalid tool call arguments")

// Function declares a tool the agent may call.
type Function struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// ToolCall is one function invocation requested by the agent.
type ToolCall struct {
	// ID correlates the response with this call.
	ID string

	// RequestID identifies the agent request that carried the call, if any.
	RequestID string

	Name string

	// Arguments is the raw JSON argument object.
	Arguments string
}

// FunctionCallResponse answers a tool call in the current agent protocol.
type FunctionCallResponse struct {
	Type    string `json:"type"`
	ID      string `json:"id"`
	Name    string `json:"name"`
	Content string `json:"content"`
}

// FunctionResponse answers a tool call in the legacy agent protocol.
type FunctionResponse struct {
	Type       string `json:"type"`
	RequestID  string `json:"request_id"`
	ToolCallID string `json:"tool_call_id"`
	Output     string `json:"output"`
}

// RecipeContextTool declares the recipe retrieval function.
func RecipeContextTool() Function {
	return Function{
		Name: RecipeContextToolName,
		Description: "Retrieves specific information about the recipe the user is currently working on. " +
			"Always call this function to answer any question about the recipe, its ingredients, quantities or steps.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"question": map[string]any{
					"type":        "string",
					"description": "The user's specific question about the recipe.",
				},
			},
			"required": []string{"question"},
		},
	}
}

// ParseQuestion extracts the question argument of a recipe context call.
func ParseQuestion(arguments string) (string, error) {
	var args struct {
		Question *string `json:"question"`
	}
	if err := json.Unmarshal([]byte(arguments), &args); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidArguments, err)
	}
	if args.Question == nil || strings.TrimSpace(*args.Question) == "" {
		return "", fmt.Errorf("%w: question is required", ErrInvalidArguments)
	}
	return *args.Question, nil
}

// ToolResponse builds the frame answering call with output in the given
// schema. Unknown schemas use the current protocol.
func ToolResponse(schema string, call ToolCall, output string) any {
	if schema == SchemaFunctionResponse {
		return FunctionResponse{
			Type:       "FunctionResponse",
			RequestID:  call.RequestID,
			ToolCallID: call.ID,
			Output:     output,
		}
	}
	return FunctionCallResponse{
		Type:    "FunctionCallResponse",
		ID:      call.ID,
		Name:    call.Name,
		Content: output,
	}
}
