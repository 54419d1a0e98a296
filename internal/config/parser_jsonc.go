package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tailscale/hujson"
)

type jsoncConfig struct {
	Wake          *jsoncWake          `json:"wake"`
	Conversation  *jsoncConversation  `json:"conversation"`
	Audio         *jsoncAudio         `json:"audio"`
	STT           *jsoncSTT           `json:"stt"`
	LLM           *jsoncLLM           `json:"llm"`
	OpenAI        *jsoncOpenAI        `json:"openai"`
	TTS           *jsoncTTS           `json:"tts"`
	HomeAssistant *jsoncHomeAssistant `json:"home_assistant"`
	Cues          *jsoncCues          `json:"cues"`
	Log           *jsoncLog           `json:"log"`
	Metrics       *jsoncMetrics       `json:"metrics"`
	Debug         *jsoncDebug         `json:"debug"`
}

type jsoncWake struct {
	Trigger        *string `json:"trigger"`
	Match          *string `json:"match"`
	Acknowledgment *string `json:"acknowledgment"`
}

type jsoncConversation struct {
	TimeoutSeconds *float64         `json:"timeout_seconds"`
	ExitPhrases    *jsoncStringList `json:"exit_phrases"`
	Farewell       *string          `json:"farewell"`
}

type jsoncAudio struct {
	Input                *string  `json:"input"`
	DeviceIndex          *int     `json:"device_index"`
	ListenTimeoutSeconds *float64 `json:"listen_timeout_seconds"`
	CalibrationSeconds   *float64 `json:"calibration_seconds"`
	EnergyRatio          *float64 `json:"energy_ratio"`
	MinEnergy            *float64 `json:"min_energy"`
	PauseSeconds         *float64 `json:"pause_seconds"`
	PhraseLimitSeconds   *float64 `json:"phrase_limit_seconds"`
}

type jsoncSTT struct {
	Backend        *string  `json:"backend"`
	Endpoint       *string  `json:"endpoint"`
	Model          *string  `json:"model"`
	Language       *string  `json:"language"`
	TimeoutSeconds *float64 `json:"timeout_seconds"`
}

type jsoncLLM struct {
	Backend        *string  `json:"backend"`
	Host           *string  `json:"host"`
	Model          *string  `json:"model"`
	SystemPrompt   *string  `json:"system_prompt"`
	MaxToolRounds  *int     `json:"max_tool_rounds"`
	TimeoutSeconds *float64 `json:"timeout_seconds"`
	Think          *bool    `json:"think"`
}

type jsoncOpenAI struct {
	APIKey  *string `json:"api_key"`
	BaseURL *string `json:"base_url"`
}

type jsoncTTS struct {
	Voice             *string  `json:"voice"`
	Rate              *int     `json:"rate"`
	Volume            *float64 `json:"volume"`
	Command           *string  `json:"command"`
	PauseAfterSeconds *float64 `json:"pause_after_seconds"`
}

type jsoncHomeAssistant struct {
	URL            *string  `json:"url"`
	Token          *string  `json:"token"`
	Entity         *string  `json:"entity"`
	TimeoutSeconds *float64 `json:"timeout_seconds"`
}

type jsoncCues struct {
	Enable *bool `json:"enable"`
	Notify *bool `json:"notify"`
}

type jsoncLog struct {
	Level *string `json:"level"`
}

type jsoncMetrics struct {
	Listen *string `json:"listen"`
}

type jsoncDebug struct {
	AudioDump *bool `json:"audio_dump"`
}

// jsoncStringList accepts either a string array or one comma-delimited string.
type jsoncStringList []string

func (l *jsoncStringList) UnmarshalJSON(data []byte) error {
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		*l = trimmedNonEmpty(list)
		return nil
	}

	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*l = trimmedNonEmpty(strings.Split(single, ","))
		return nil
	}

	return fmt.Errorf("expected string array or comma-delimited string")
}

// Parse decodes JSONC content over base and validates the result.
func Parse(content string, base Config) (Config, []Warning, error) {
	cfg, warnings, err := decode(content, base)
	if err != nil {
		return Config{}, nil, err
	}
	validated, err := Validate(cfg)
	if err != nil {
		return Config{}, nil, err
	}
	return cfg, append(warnings, validated...), nil
}

func decode(content string, base Config) (Config, []Warning, error) {
	if strings.TrimSpace(content) == "" {
		return base, nil, nil
	}

	// Standardize blanks comments and trailing commas in place, so byte
	// offsets in decode errors still point into the original file.
	standard, err := hujson.Standardize([]byte(content))
	if err != nil {
		return Config{}, nil, fmt.Errorf("invalid JSONC: %w", err)
	}

	decoder := json.NewDecoder(bytes.NewReader(standard))
	decoder.DisallowUnknownFields()

	var payload jsoncConfig
	if err := decoder.Decode(&payload); err != nil {
		return Config{}, nil, wrapJSONDecodeError(content, err)
	}

	cfg := base
	warnings, err := payload.applyTo(&cfg)
	if err != nil {
		return Config{}, nil, err
	}
	return cfg, warnings, nil
}

func (payload jsoncConfig) applyTo(cfg *Config) ([]Warning, error) {
	warnings := make([]Warning, 0)

	if w := payload.Wake; w != nil {
		setString(&cfg.Wake.Trigger, w.Trigger)
		if w.Match != nil {
			cfg.Wake.Match = strings.ToLower(strings.TrimSpace(*w.Match))
		}
		setString(&cfg.Wake.Acknowledgment, w.Acknowledgment)
	}

	if c := payload.Conversation; c != nil {
		setSeconds(&cfg.Conversation.Timeout, c.TimeoutSeconds)
		if c.ExitPhrases != nil {
			cfg.Conversation.ExitPhrases = append([]string(nil), (*c.ExitPhrases)...)
		}
		setString(&cfg.Conversation.Farewell, c.Farewell)
	}

	if a := payload.Audio; a != nil {
		setString(&cfg.Audio.Input, a.Input)
		if a.DeviceIndex != nil {
			cfg.Audio.DeviceIndex = *a.DeviceIndex
		}
		setSeconds(&cfg.Audio.ListenTimeout, a.ListenTimeoutSeconds)
		setSeconds(&cfg.Audio.Calibration, a.CalibrationSeconds)
		setFloat(&cfg.Audio.EnergyRatio, a.EnergyRatio)
		setFloat(&cfg.Audio.MinEnergy, a.MinEnergy)
		setSeconds(&cfg.Audio.Pause, a.PauseSeconds)
		setSeconds(&cfg.Audio.PhraseLimit, a.PhraseLimitSeconds)
	}

	if s := payload.STT; s != nil {
		setLower(&cfg.STT.Backend, s.Backend)
		setString(&cfg.STT.Endpoint, s.Endpoint)
		setString(&cfg.STT.Model, s.Model)
		setString(&cfg.STT.Language, s.Language)
		setSeconds(&cfg.STT.Timeout, s.TimeoutSeconds)
	}

	if l := payload.LLM; l != nil {
		setLower(&cfg.LLM.Backend, l.Backend)
		setString(&cfg.LLM.Host, l.Host)
		setString(&cfg.LLM.Model, l.Model)
		if l.SystemPrompt != nil {
			cfg.LLM.SystemPrompt = *l.SystemPrompt
		}
		if l.MaxToolRounds != nil {
			cfg.LLM.MaxToolRounds = *l.MaxToolRounds
		}
		setSeconds(&cfg.LLM.Timeout, l.TimeoutSeconds)
		if l.Think != nil {
			cfg.LLM.Think = *l.Think
		}
	}

	if o := payload.OpenAI; o != nil {
		setString(&cfg.OpenAI.APIKey, o.APIKey)
		setString(&cfg.OpenAI.BaseURL, o.BaseURL)
		if cfg.OpenAI.APIKey != "" {
			warnings = append(warnings, Warning{Message: "openai.api_key is stored in the config file; prefer OPENAI_API_KEY"})
		}
	}

	if t := payload.TTS; t != nil {
		setString(&cfg.TTS.Voice, t.Voice)
		if t.Rate != nil {
			cfg.TTS.Rate = *t.Rate
		}
		setFloat(&cfg.TTS.Volume, t.Volume)
		if t.Command != nil {
			argv, err := splitCommand(*t.Command)
			if err != nil {
				return nil, fmt.Errorf("invalid tts.command: %w", err)
			}
			cfg.TTS.Command = CommandConfig{Raw: *t.Command, Argv: argv}
		}
		setSeconds(&cfg.TTS.PauseAfter, t.PauseAfterSeconds)
	}

	if h := payload.HomeAssistant; h != nil {
		if h.URL != nil {
			cfg.HomeAssistant.URL = strings.TrimRight(strings.TrimSpace(*h.URL), "/")
		}
		setString(&cfg.HomeAssistant.Token, h.Token)
		setString(&cfg.HomeAssistant.Entity, h.Entity)
		setSeconds(&cfg.HomeAssistant.Timeout, h.TimeoutSeconds)
	}

	if c := payload.Cues; c != nil {
		if c.Enable != nil {
			cfg.Cues.Enable = *c.Enable
		}
		if c.Notify != nil {
			cfg.Cues.Notify = *c.Notify
		}
	}
	if payload.Log != nil {
		setLower(&cfg.Log.Level, payload.Log.Level)
	}
	if payload.Metrics != nil {
		setString(&cfg.Metrics.Listen, payload.Metrics.Listen)
	}
	if payload.Debug != nil && payload.Debug.AudioDump != nil {
		cfg.Debug.EnableAudioDump = *payload.Debug.AudioDump
	}

	return warnings, nil
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = strings.TrimSpace(*src)
	}
}

func setLower(dst *string, src *string) {
	if src != nil {
		*dst = strings.ToLower(strings.TrimSpace(*src))
	}
}

func setFloat(dst *float64, src *float64) {
	if src != nil {
		*dst = *src
	}
}

func setSeconds(dst *time.Duration, src *float64) {
	if src != nil {
		*dst = seconds(*src)
	}
}

func seconds(v float64) time.Duration {
	return time.Duration(v * float64(time.Second))
}

func trimmedNonEmpty(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func wrapJSONDecodeError(content string, err error) error {
	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		line, col := offsetToLineCol(content, syntaxErr.Offset)
		return fmt.Errorf("line %d column %d: %w", line, col, err)
	}

	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		line, col := offsetToLineCol(content, typeErr.Offset)
		return fmt.Errorf("line %d column %d: %w", line, col, err)
	}

	return err
}

func offsetToLineCol(content string, offset int64) (int, int) {
	if offset <= 0 {
		return 1, 1
	}

	limit := min(int(offset), len(content))
	line, col := 1, 1
	for i := 0; i < limit-1; i++ {
		if content[i] == '\n' {
			line++
			col = 1
			continue
		}
		col++
	}
	return line, col
}
