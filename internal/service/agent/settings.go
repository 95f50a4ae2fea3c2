package agent

import "sous-voice-service/internal/config"

// AudioFormat describes one direction of the audio stream.
type AudioFormat struct {
	Encoding   string
	SampleRate int
	Container  string
}

// Settings configure the agent when a connection starts.
type Settings struct {
	Input          AudioFormat
	Output         AudioFormat
	Language       string
	ListenProvider string
	ListenModel    string
	ThinkProvider  string
	ThinkModel     string
	Prompt         string
	SpeakProvider  string
	SpeakModel     string
	Greeting       string
	Functions      []Function
}

// SettingsFromConfig builds Settings from configuration, declaring the given
// functions.
func SettingsFromConfig(cfg config.AgentConfig, functions ...Function) Settings {
	return Settings{
		Input: AudioFormat{
			Encoding:   cfg.InputEncoding,
			SampleRate: cfg.InputSampleRate,
		},
		Output: AudioFormat{
			Encoding:   cfg.OutputEncoding,
			SampleRate: cfg.OutputSampleRate,
			Container:  cfg.OutputContainer,
		},
		Language:       cfg.Language,
		ListenProvider: cfg.ListenProvider,
		ListenModel:    cfg.ListenModel,
		ThinkProvider:  cfg.ThinkProvider,
		ThinkModel:     cfg.ThinkModel,
		Prompt:         cfg.ThinkPrompt,
		SpeakProvider:  cfg.SpeakProvider,
		SpeakModel:     cfg.SpeakModel,
		Greeting:       cfg.Greeting,
		Functions:      functions,
	}
}
