// Package config resolves, parses, validates, and defaults parlando configuration.
package config

import "time"

// Config is the fully materialized runtime configuration used by parlando.
type Config struct {
	Wake          WakeConfig
	Conversation  ConversationConfig
	Audio         AudioConfig
	STT           STTConfig
	LLM           LLMConfig
	OpenAI        OpenAIConfig
	TTS           TTSConfig
	HomeAssistant HomeAssistantConfig
	Cues          CuesConfig
	Log           LogConfig
	Metrics       MetricsConfig
	Debug         DebugConfig
}

// WakeConfig controls how idle-mode transcripts are matched against the trigger.
type WakeConfig struct {
	Trigger        string
	Match          string
	Acknowledgment string
}

// ConversationConfig controls conversation-mode lifetime.
type ConversationConfig struct {
	Timeout     time.Duration
	ExitPhrases []string
	Farewell    string
}

// AudioConfig controls input-device selection and utterance segmentation.
//
// DeviceIndex selects a source by its position in the device listing; -1
// defers to Input, and an empty Input uses the server default source.
type AudioConfig struct {
	Input         string
	DeviceIndex   int
	ListenTimeout time.Duration
	Calibration   time.Duration
	EnergyRatio   float64
	MinEnergy     float64
	Pause         time.Duration
	PhraseLimit   time.Duration
}

// STTConfig selects and configures the transcription backend.
type STTConfig struct {
	Backend  string
	Endpoint string
	Model    string
	Language string
	Timeout  time.Duration
}

// LLMConfig selects and configures the reasoning backend.
type LLMConfig struct {
	Backend       string
	Host          string
	Model         string
	SystemPrompt  string
	MaxToolRounds int
	Timeout       time.Duration
	Think         bool
}

// OpenAIConfig is shared by the OpenAI transcription and reasoning backends.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
}

// TTSConfig controls the speech synthesizer.
type TTSConfig struct {
	Voice      string
	Rate       int
	Volume     float64
	Command    CommandConfig
	PauseAfter time.Duration
}

// CommandConfig stores a raw command string and its parsed argv form.
type CommandConfig struct {
	Raw  string
	Argv []string
}

// HomeAssistantConfig configures the light-control tool.
type HomeAssistantConfig struct {
	URL     string
	Token   string
	Entity  string
	Timeout time.Duration
}

// Enabled reports whether enough is configured to register the light tool.
func (c HomeAssistantConfig) Enabled() bool {
	return c.URL != "" && c.Token != ""
}

// CuesConfig controls audible wake/sleep cues and desktop notifications.
type CuesConfig struct {
	Enable bool
	Notify bool
}

// LogConfig controls runtime log verbosity.
type LogConfig struct {
	Level string
}

// MetricsConfig controls the optional Prometheus endpoint.
type MetricsConfig struct {
	Listen string
}

// DebugConfig controls optional debug artifact output.
type DebugConfig struct {
	EnableAudioDump bool
}

// Warning is a non-fatal parse/validation message.
type Warning struct {
	Line    int
	Message string
}
