package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// LookupFunc matches os.LookupEnv.
type LookupFunc func(string) (string, bool)

// LoadDotEnv loads path (default ".env") into the process environment without
// overriding variables that are already set. A missing file is not an error.
func LoadDotEnv(path string) (bool, error) {
	if strings.TrimSpace(path) == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("load %s: %w", path, err)
	}
	return true, nil
}

// ApplyEnv overlays environment variables onto cfg. Environment wins over the
// config file; unset or blank variables leave cfg untouched.
func ApplyEnv(cfg *Config, lookup LookupFunc) error {
	get := func(key string) (string, bool) {
		v, ok := lookup(key)
		if !ok {
			return "", false
		}
		v = strings.TrimSpace(v)
		return v, v != ""
	}

	if v, ok := get("MIC_INDEX"); ok {
		idx, err := strconv.Atoi(v)
		if err != nil || idx < 0 {
			return fmt.Errorf("MIC_INDEX must be a non-negative integer, got %q", v)
		}
		cfg.Audio.DeviceIndex = idx
	}
	if v, ok := get("TRIGGER_WORD"); ok {
		cfg.Wake.Trigger = v
	}
	if v, ok := get("CONVERSATION_TIMEOUT"); ok {
		d, err := parsePositiveSeconds("CONVERSATION_TIMEOUT", v)
		if err != nil {
			return err
		}
		cfg.Conversation.Timeout = d
	}
	if v, ok := get("LISTEN_TIMEOUT"); ok {
		d, err := parsePositiveSeconds("LISTEN_TIMEOUT", v)
		if err != nil {
			return err
		}
		cfg.Audio.ListenTimeout = d
	}
	if v, ok := get("TTS_VOICE_NAME"); ok {
		cfg.TTS.Voice = v
	}
	if v, ok := get("OLLAMA_HOST"); ok {
		cfg.LLM.Host = normalizeOllamaHost(v)
	}
	if v, ok := get("OLLAMA_MODEL"); ok {
		cfg.LLM.Model = v
	}
	if v, ok := get("LLM_BACKEND"); ok {
		cfg.LLM.Backend = strings.ToLower(v)
	}
	if v, ok := get("OPENAI_API_KEY"); ok {
		cfg.OpenAI.APIKey = v
	}
	if v, ok := get("STT_BACKEND"); ok {
		cfg.STT.Backend = strings.ToLower(v)
	}
	if v, ok := get("STT_ENDPOINT"); ok {
		cfg.STT.Endpoint = v
	}
	if v, ok := get("HOME_ASSISTANT_URL"); ok {
		cfg.HomeAssistant.URL = strings.TrimRight(v, "/")
	}
	if v, ok := get("HOME_ASSISTANT_TOKEN"); ok {
		cfg.HomeAssistant.Token = v
	}
	if v, ok := get("HOME_ASSISTANT_ENTITY"); ok {
		cfg.HomeAssistant.Entity = v
	}
	if v, ok := get("LOG_LEVEL"); ok {
		cfg.Log.Level = strings.ToLower(v)
	}
	if v, ok := get("METRICS_LISTEN"); ok {
		cfg.Metrics.Listen = v
	}
	return nil
}

func parsePositiveSeconds(key string, raw string) (time.Duration, error) {
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v <= 0 {
		return 0, fmt.Errorf("%s must be a positive number of seconds, got %q", key, raw)
	}
	return seconds(v), nil
}

// normalizeOllamaHost accepts the bare host:port form the ollama CLI allows.
func normalizeOllamaHost(v string) string {
	if strings.Contains(v, "://") {
		return strings.TrimRight(v, "/")
	}
	return "http://" + strings.TrimRight(v, "/")
}
