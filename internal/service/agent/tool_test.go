package agent

import (
	"encoding/json"
	"errors"
	"testing"

	"sous-voice-service/internal/config"
)

func TestParseQuestion(t *testing.T) {
	tests := []struct {
		name    string
		args    string
		want    string
		wantErr bool
	}{
		{"valid", `{"question":"how much pork?"}`, "how much pork?", false},
		{"extra fields", `{"question":"oven temp?","lang":"en"}`, "oven temp?", false},
		{"missing", `{}`, "", true},
		{"blank", `{"question":"  "}`, "", true},
		{"wrong type", `{"question":5}`, "", true},
		{"not json", `question=pork`, "", true},
		{"empty", ``, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseQuestion(tt.args)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidArguments) {
					t.Errorf("expected ErrInvalidArguments, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestToolResponse_Schemas(t *testing.T) {
	call := ToolCall{ID: "call-1", RequestID: "req-9", Name: RecipeContextToolName, Arguments: `{"question":"q"}`}

	tests := []struct {
		name   string
		schema string
		want   map[string]string
	}{
		{"current", SchemaFunctionCallResponse, map[string]string{
			"type": "FunctionCallResponse", "id": "call-1", "name": RecipeContextToolName, "content": "ctx",
		}},
		{"unknown falls back to current", "other", map[string]string{
			"type": "FunctionCallResponse", "id": "call-1", "name": RecipeContextToolName, "content": "ctx",
		}},
		{"legacy", SchemaFunctionResponse, map[string]string{
			"type": "FunctionResponse", "request_id": "req-9", "tool_call_id": "call-1", "output": "ctx",
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, err := json.Marshal(ToolResponse(tt.schema, call, "ctx"))
			if err != nil {
				t.Fatalf("marshal failed: %v", err)
			}
			var got map[string]string
			if err := json.Unmarshal(raw, &got); err != nil {
				t.Fatalf("unmarshal failed: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Errorf("expected fields %v, got %v", tt.want, got)
			}
			for k, v := range tt.want {
				if got[k] != v {
					t.Errorf("field %s: expected %q, got %q", k, v, got[k])
				}
			}
		})
	}
}

func TestRecipeContextTool_RequiresQuestion(t *testing.T) {
	fn := RecipeContextTool()
	if fn.Name != "get_rag_context" {
		t.Errorf("unexpected name %s", fn.Name)
	}
	required, ok := fn.Parameters["required"].([]string)
	if !ok || len(required) != 1 || required[0] != "question" {
		t.Errorf("expected question to be the only required parameter, got %v", fn.Parameters["required"])
	}
}

func TestSettingsFromConfig(t *testing.T) {
	cfg := config.AgentConfig{
		InputEncoding:    "linear16",
		InputSampleRate:  16000,
		OutputEncoding:   "linear16",
		OutputSampleRate: 16000,
		OutputContainer:  "wav",
		Language:         "en",
		ListenModel:      "nova-3",
		ThinkProvider:    "open_ai",
		ThinkModel:       "gpt-4o-mini",
		ThinkPrompt:      "Be concise.",
		SpeakModel:       "aura-2-thalia-en",
		Greeting:         "Hi",
	}

	s := SettingsFromConfig(cfg, RecipeContextTool())
	if s.Input.SampleRate != 16000 || s.Output.Container != "wav" {
		t.Errorf("unexpected audio settings %+v / %+v", s.Input, s.Output)
	}
	if s.Prompt != "Be concise." || s.Greeting != "Hi" {
		t.Errorf("unexpected prompt/greeting %q / %q", s.Prompt, s.Greeting)
	}
	if len(s.Functions) != 1 || s.Functions[0].Name != RecipeContextToolName {
		t.Errorf("expected the recipe tool to be declared, got %v", s.Functions)
	}
}

func TestError_Message(t *testing.T) {
	if got := (&Error{Description: "bad"}).Error(); got != "agent error: bad" {
		t.Errorf("unexpected %q", got)
	}
	if got := (&Error{Code: "E1", Description: "bad"}).Error(); got != "agent error E1: bad" {
		t.Errorf("unexpected %q", got)
	}
}
