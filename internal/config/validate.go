package config

import (
	"fmt"
	"net/url"
	"strings"
)

// Validate enforces config invariants and returns non-fatal warnings.
func Validate(cfg Config) ([]Warning, error) {
	warnings := make([]Warning, 0)

	if strings.TrimSpace(cfg.Wake.Trigger) == "" {
		return nil, fmt.Errorf("wake.trigger must not be empty")
	}
	if cfg.Wake.Match != MatchSubstring && cfg.Wake.Match != MatchPhonetic {
		return nil, fmt.Errorf("wake.match must be one of: %s, %s", MatchSubstring, MatchPhonetic)
	}
	if strings.TrimSpace(cfg.Wake.Acknowledgment) == "" {
		return nil, fmt.Errorf("wake.acknowledgment must not be empty")
	}
	if cfg.Conversation.Timeout <= 0 {
		return nil, fmt.Errorf("conversation.timeout_seconds must be > 0")
	}
	if len(cfg.Conversation.ExitPhrases) > 0 && strings.TrimSpace(cfg.Conversation.Farewell) == "" {
		warnings = append(warnings, Warning{Message: "conversation.exit_phrases set without a farewell; conversations will end silently"})
	}

	if cfg.Audio.DeviceIndex < -1 {
		return nil, fmt.Errorf("audio.device_index must be >= 0 (or -1 for the default source)")
	}
	if cfg.Audio.ListenTimeout <= 0 {
		return nil, fmt.Errorf("audio.listen_timeout_seconds must be > 0")
	}
	if cfg.Audio.Calibration <= 0 {
		return nil, fmt.Errorf("audio.calibration_seconds must be > 0")
	}
	if cfg.Audio.EnergyRatio < 1 {
		return nil, fmt.Errorf("audio.energy_ratio must be >= 1")
	}
	if cfg.Audio.MinEnergy < 0 {
		return nil, fmt.Errorf("audio.min_energy must be >= 0")
	}
	if cfg.Audio.Pause <= 0 {
		return nil, fmt.Errorf("audio.pause_seconds must be > 0")
	}
	if cfg.Audio.PhraseLimit <= cfg.Audio.Pause {
		return nil, fmt.Errorf("audio.phrase_limit_seconds must exceed audio.pause_seconds")
	}
	if cfg.Audio.ListenTimeout > cfg.Conversation.Timeout {
		warnings = append(warnings, Warning{Message: fmt.Sprintf(
			"audio.listen_timeout_seconds (%s) exceeds conversation.timeout_seconds (%s); conversation expiry will lag",
			cfg.Audio.ListenTimeout, cfg.Conversation.Timeout,
		)})
	}

	switch cfg.STT.Backend {
	case BackendWhisper:
		if err := validateURL("stt.endpoint", cfg.STT.Endpoint); err != nil {
			return nil, err
		}
	case BackendOpenAI:
		if strings.TrimSpace(cfg.OpenAI.APIKey) == "" {
			return nil, fmt.Errorf("stt.backend=openai requires OPENAI_API_KEY or openai.api_key")
		}
		if strings.TrimSpace(cfg.STT.Model) == "" {
			return nil, fmt.Errorf("stt.model must not be empty when stt.backend=openai")
		}
	default:
		return nil, fmt.Errorf("stt.backend must be one of: %s, %s", BackendWhisper, BackendOpenAI)
	}
	if cfg.STT.Timeout <= 0 {
		return nil, fmt.Errorf("stt.timeout_seconds must be > 0")
	}

	switch cfg.LLM.Backend {
	case BackendOllama:
		if err := validateURL("llm.host", cfg.LLM.Host); err != nil {
			return nil, err
		}
	case BackendOpenAI:
		if strings.TrimSpace(cfg.OpenAI.APIKey) == "" {
			return nil, fmt.Errorf("llm.backend=openai requires OPENAI_API_KEY or openai.api_key")
		}
	default:
		return nil, fmt.Errorf("llm.backend must be one of: %s, %s", BackendOllama, BackendOpenAI)
	}
	if strings.TrimSpace(cfg.LLM.Model) == "" {
		return nil, fmt.Errorf("llm.model must not be empty")
	}
	if cfg.LLM.MaxToolRounds < 1 {
		return nil, fmt.Errorf("llm.max_tool_rounds must be >= 1")
	}
	if cfg.LLM.Timeout <= 0 {
		return nil, fmt.Errorf("llm.timeout_seconds must be > 0")
	}
	if cfg.OpenAI.BaseURL != "" {
		if err := validateURL("openai.base_url", cfg.OpenAI.BaseURL); err != nil {
			return nil, err
		}
	}

	if cfg.TTS.Rate <= 0 {
		return nil, fmt.Errorf("tts.rate must be > 0")
	}
	if cfg.TTS.Volume < 0 || cfg.TTS.Volume > 1 {
		return nil, fmt.Errorf("tts.volume must be between 0 and 1")
	}
	if len(cfg.TTS.Command.Argv) == 0 {
		return nil, fmt.Errorf("tts.command must not be empty")
	}
	if cfg.TTS.PauseAfter < 0 {
		return nil, fmt.Errorf("tts.pause_after_seconds must be >= 0")
	}

	ha := cfg.HomeAssistant
	if ha.URL != "" {
		if err := validateURL("home_assistant.url", ha.URL); err != nil {
			return nil, err
		}
		if ha.Token == "" {
			warnings = append(warnings, Warning{Message: "home_assistant.url is set without a token; toggle_light is disabled"})
		}
		if strings.TrimSpace(ha.Entity) == "" {
			return nil, fmt.Errorf("home_assistant.entity must not be empty")
		}
		if ha.Timeout <= 0 {
			return nil, fmt.Errorf("home_assistant.timeout_seconds must be > 0")
		}
	}

	switch cfg.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return nil, fmt.Errorf("log.level must be one of: debug, info, warn, error")
	}

	return warnings, nil
}

func validateURL(field string, raw string) error {
	if strings.TrimSpace(raw) == "" {
		return fmt.Errorf("%s must not be empty", field)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s is not a valid URL: %w", field, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s must use http or https", field)
	}
	if u.Host == "" {
		return fmt.Errorf("%s must include a host", field)
	}
	return nil
}
