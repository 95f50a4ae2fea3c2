package deepgram

import "sous-voice-service/internal/service/agent"

type settingsFrame struct {
	Type  string        `json:"type"`
	Audio audioSettings `json:"audio"`
	Agent agentSettings `json:"agent"`
}

type audioSettings struct {
	Input  audioFormat `json:"input"`
	Output audioFormat `json:"output"`
}

type audioFormat struct {
	Encoding   string `json:"encoding"`
	SampleRate int    `json:"sample_rate"`
	Container  string `json:"container,omitempty"`
}

type provider struct {
	Type  string `json:"type"`
	Model string `json:"model,omitempty"`
}

type agentSettings struct {
	Language string         `json:"language,omitempty"`
	Listen   listenSettings `json:"listen"`
	Think    thinkSettings  `json:"think"`
	Speak    speakSettings  `json:"speak"`
	Greeting string         `json:"greeting,omitempty"`
}

type listenSettings struct {
	Provider provider `json:"provider"`
}

type thinkSettings struct {
	Provider  provider         `json:"provider"`
	Prompt    string           `json:"prompt,omitempty"`
	Functions []agent.Function `json:"functions,omitempty"`
}

type speakSettings struct {
	Provider provider `json:"provider"`
}

type keepAliveFrame struct {
	Type string `json:"type"`
}

func newSettingsFrame(s agent.Settings) settingsFrame {
	return settingsFrame{
		Type: "Settings",
		Audio: audioSettings{
			Input: audioFormat{
				Encoding:   s.Input.Encoding,
				SampleRate: s.Input.SampleRate,
			},
			Output: audioFormat{
				Encoding:   s.Output.Encoding,
				SampleRate: s.Output.SampleRate,
				Container:  s.Output.Container,
			},
		},
		Agent: agentSettings{
			Language: s.Language,
			Listen:   listenSettings{Provider: provider{Type: s.ListenProvider, Model: s.ListenModel}},
			Think: thinkSettings{
				Provider:  provider{Type: s.ThinkProvider, Model: s.ThinkModel},
				Prompt:    s.Prompt,
				Functions: s.Functions,
			},
			Speak:    speakSettings{Provider: provider{Type: s.SpeakProvider, Model: s.SpeakModel}},
			Greeting: s.Greeting,
		},
	}
}

// serverEvent holds the fields of every agent event the service reads.
type serverEvent struct {
	Type      string `json:"type"`
	RequestID string `json:"request_id"`

	// FunctionCallRequest
	Functions []functionCall `json:"functions"`

	// Single-call FunctionCallRequest from earlier protocol versions
	Name       string `json:"name"`
	Arguments  string `json:"arguments"`
	ToolCallID string `json:"tool_call_id"`

	// Error and Warning
	Code        string `json:"code"`
	Description string `json:"description"`
	Message     string `json:"message"`
}

type functionCall struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Arguments  string `json:"arguments"`
	ClientSide *bool  `json:"client_side"`
}

func (e serverEvent) toolCalls() []agent.ToolCall {
	if len(e.Functions) == 0 {
		if e.Name == "" {
			return nil
		}
		return []agent.ToolCall{{
			ID:        e.ToolCallID,
			RequestID: e.RequestID,
			Name:      e.Name,
			Arguments: e.Arguments,
		}}
	}
	calls := make([]agent.ToolCall, 0, len(e.Functions))
	for _, f := range e.Functions {
		// Server-side functions are run by the agent itself.
		if f.ClientSide != nil && !*f.ClientSide {
			continue
		}
		calls = append(calls, agent.ToolCall{
			ID:        f.ID,
			RequestID: e.RequestID,
			Name:      f.Name,
			Arguments: f.Arguments,
		})
	}
	return calls
}

func (e serverEvent) agentError() *agent.Error {
	desc := e.Description
	if desc == "" {
		desc = e.Message
	}
	return &agent.Error{Code: e.Code, Description: desc}
}
