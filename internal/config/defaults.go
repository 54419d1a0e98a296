package config

import "time"

const (
	BackendWhisper = "whisper"
	BackendOpenAI  = "openai"
	BackendOllama  = "ollama"

	MatchSubstring = "substring"
	MatchPhonetic  = "phonetic"
)

// DefaultSystemPrompt frames the assistant persona for every command.
const DefaultSystemPrompt = "You are Jarvis, an intelligent, conversational AI assistant. " +
	"Your goal is to be helpful, friendly, and informative. " +
	"You can respond in natural, human-like language and use tools when needed to answer questions more accurately. " +
	"Always explain your reasoning simply when appropriate, and keep your responses conversational and concise."

// Default returns the canonical runtime configuration used when no file is present.
func Default() Config {
	synth := "espeak-ng"

	return Config{
		Wake: WakeConfig{
			Trigger:        "jarvis",
			Match:          MatchSubstring,
			Acknowledgment: "Yes, sir?",
		},
		Conversation: ConversationConfig{
			Timeout:  30 * time.Second,
			Farewell: "Goodbye, sir.",
		},
		Audio: AudioConfig{
			DeviceIndex:   -1,
			ListenTimeout: 10 * time.Second,
			Calibration:   time.Second,
			EnergyRatio:   1.5,
			MinEnergy:     100,
			Pause:         800 * time.Millisecond,
			PhraseLimit:   15 * time.Second,
		},
		STT: STTConfig{
			Backend:  BackendWhisper,
			Endpoint: "http://127.0.0.1:8080",
			Model:    "whisper-1",
			Language: "en",
			Timeout:  30 * time.Second,
		},
		LLM: LLMConfig{
			Backend:       BackendOllama,
			Host:          "http://127.0.0.1:11434",
			Model:         "qwen3:1.7b",
			SystemPrompt:  DefaultSystemPrompt,
			MaxToolRounds: 4,
			Timeout:       60 * time.Second,
		},
		TTS: TTSConfig{
			Rate:       180,
			Volume:     1.0,
			Command:    CommandConfig{Raw: synth, Argv: mustSplitCommand(synth)},
			PauseAfter: 200 * time.Millisecond,
		},
		HomeAssistant: HomeAssistantConfig{
			Entity:  "light.office_light",
			Timeout: 2 * time.Second,
		},
		Cues:    CuesConfig{Enable: true},
		Log:     LogConfig{Level: "info"},
		Metrics: MetricsConfig{},
		Debug:   DebugConfig{},
	}
}
