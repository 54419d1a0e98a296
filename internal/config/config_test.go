package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func envMap(values map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		v, ok := values[key]
		return v, ok
	}
}

func TestDefaultIsValid(t *testing.T) {
	warnings, err := Validate(Default())
	require.NoError(t, err)
	require.Empty(t, warnings)
}

func TestDefaultMatchesReferenceBehavior(t *testing.T) {
	cfg := Default()
	require.Equal(t, "jarvis", cfg.Wake.Trigger)
	require.Equal(t, "Yes, sir?", cfg.Wake.Acknowledgment)
	require.Equal(t, 30*time.Second, cfg.Conversation.Timeout)
	require.Equal(t, 10*time.Second, cfg.Audio.ListenTimeout)
	require.Equal(t, -1, cfg.Audio.DeviceIndex)
	require.Equal(t, 180, cfg.TTS.Rate)
	require.Equal(t, 1.0, cfg.TTS.Volume)
	require.Equal(t, []string{"espeak-ng"}, cfg.TTS.Command.Argv)
	require.Equal(t, "qwen3:1.7b", cfg.LLM.Model)
	require.Equal(t, 2*time.Second, cfg.HomeAssistant.Timeout)
	require.False(t, cfg.HomeAssistant.Enabled())
}

func TestResolvePathPrecedence(t *testing.T) {
	explicit := "/tmp/custom.jsonc"
	resolved, err := ResolvePath(explicit)
	require.NoError(t, err)
	require.Equal(t, explicit, resolved)

	xdg := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", xdg)
	resolved, err = ResolvePath("")
	require.NoError(t, err)
	require.Equal(t, filepath.Join(xdg, "parlando", "config.jsonc"), resolved)

	t.Setenv("XDG_CONFIG_HOME", "")
	home := t.TempDir()
	t.Setenv("HOME", home)
	resolved, err = ResolvePath("")
	require.NoError(t, err)
	require.Equal(t, filepath.Join(home, ".config", "parlando", "config.jsonc"), resolved)
}

func TestLoadMissingConfigUsesDefaultsWithWarning(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.jsonc")

	loaded, err := LoadWithEnv(path, envMap(nil))
	require.NoError(t, err)
	require.Equal(t, path, loaded.Path)
	require.False(t, loaded.Exists)
	require.Equal(t, Default(), loaded.Config)
	require.NotEmpty(t, loaded.Warnings)
	require.Contains(t, loaded.Warnings[0].Message, "not found")
}

func TestLoadJSONCWithCommentsAndTrailingCommas(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.jsonc")
	contents := `
{
  // wake on a custom name
  "wake": { "trigger": "Friday", "match": "Phonetic", },
  "conversation": {
    "timeout_seconds": 45,
    "exit_phrases": "goodbye, that's all",
  },
  /* tts overrides */
  "tts": { "voice": "en-gb", "command": "espeak-ng -a 150", "rate": 160 },
  "home_assistant": { "url": "http://ha.local:8123/", "token": "abc" },
}
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))

	loaded, err := LoadWithEnv(path, envMap(nil))
	require.NoError(t, err)
	require.True(t, loaded.Exists)

	cfg := loaded.Config
	require.Equal(t, "Friday", cfg.Wake.Trigger)
	require.Equal(t, MatchPhonetic, cfg.Wake.Match)
	require.Equal(t, 45*time.Second, cfg.Conversation.Timeout)
	require.Equal(t, []string{"goodbye", "that's all"}, cfg.Conversation.ExitPhrases)
	require.Equal(t, "en-gb", cfg.TTS.Voice)
	require.Equal(t, []string{"espeak-ng", "-a", "150"}, cfg.TTS.Command.Argv)
	require.Equal(t, 160, cfg.TTS.Rate)
	require.Equal(t, "http://ha.local:8123", cfg.HomeAssistant.URL)
	require.True(t, cfg.HomeAssistant.Enabled())
}

func TestLoadEnvironmentOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.jsonc")
	require.NoError(t, os.WriteFile(path, []byte(`{"wake": {"trigger": "friday"}}`), 0o600))

	loaded, err := LoadWithEnv(path, envMap(map[string]string{
		"TRIGGER_WORD":          "computer",
		"MIC_INDEX":             "2",
		"CONVERSATION_TIMEOUT":  "12.5",
		"TTS_VOICE_NAME":        "Samantha",
		"OLLAMA_HOST":           "10.0.0.5:11434",
		"HOME_ASSISTANT_URL":    "https://ha.example/",
		"HOME_ASSISTANT_TOKEN":  "secret",
		"HOME_ASSISTANT_ENTITY": "light.den",
		"LOG_LEVEL":             "DEBUG",
		"LISTEN_TIMEOUT":        "  ",
	}))
	require.NoError(t, err)

	cfg := loaded.Config
	require.Equal(t, "computer", cfg.Wake.Trigger)
	require.Equal(t, 2, cfg.Audio.DeviceIndex)
	require.Equal(t, 12500*time.Millisecond, cfg.Conversation.Timeout)
	require.Equal(t, "Samantha", cfg.TTS.Voice)
	require.Equal(t, "http://10.0.0.5:11434", cfg.LLM.Host)
	require.Equal(t, "https://ha.example", cfg.HomeAssistant.URL)
	require.Equal(t, "light.den", cfg.HomeAssistant.Entity)
	require.Equal(t, "debug", cfg.Log.Level)
	require.Equal(t, 10*time.Second, cfg.Audio.ListenTimeout)
}

func TestApplyEnvRejectsMalformedValues(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{name: "mic index text", env: map[string]string{"MIC_INDEX": "usb"}, wantErr: "MIC_INDEX"},
		{name: "mic index negative", env: map[string]string{"MIC_INDEX": "-3"}, wantErr: "MIC_INDEX"},
		{name: "timeout zero", env: map[string]string{"CONVERSATION_TIMEOUT": "0"}, wantErr: "CONVERSATION_TIMEOUT"},
		{name: "listen timeout text", env: map[string]string{"LISTEN_TIMEOUT": "soon"}, wantErr: "LISTEN_TIMEOUT"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			err := ApplyEnv(&cfg, envMap(tc.env))
			require.Error(t, err)
			require.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestLoadDotEnvDoesNotOverrideExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("PARLANDO_TEST_A=from-file\nPARLANDO_TEST_B=from-file\n"), 0o600))
	t.Setenv("PARLANDO_TEST_A", "from-shell")
	t.Setenv("PARLANDO_TEST_B", "")
	require.NoError(t, os.Unsetenv("PARLANDO_TEST_B"))

	loaded, err := LoadDotEnv(path)
	require.NoError(t, err)
	require.True(t, loaded)
	require.Equal(t, "from-shell", os.Getenv("PARLANDO_TEST_A"))
	require.Equal(t, "from-file", os.Getenv("PARLANDO_TEST_B"))

	loaded, err = LoadDotEnv(filepath.Join(t.TempDir(), "absent.env"))
	require.NoError(t, err)
	require.False(t, loaded)
}

func TestLoadParseErrorIncludesPathAndLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.jsonc")
	require.NoError(t, os.WriteFile(path, []byte("{\n  \"wake\": {\"trigger\": 7}\n}"), 0o600))

	_, err := LoadWithEnv(path, envMap(nil))
	require.Error(t, err)
	require.Contains(t, err.Error(), "parse config")
	require.Contains(t, err.Error(), path)
	require.Contains(t, err.Error(), "line 2")
}

func TestParseRejectsUnknownFields(t *testing.T) {
	_, _, err := Parse(`{"wake": {"trigger": "jarvis", "hotword": "x"}}`, Default())
	require.Error(t, err)
	require.Contains(t, err.Error(), "hotword")

	_, _, err = Parse(`{"riva": {}}`, Default())
	require.Error(t, err)
}

func TestParseRejectsMultipleValues(t *testing.T) {
	_, _, err := Parse(`{"wake": {}} {"log": {}}`, Default())
	require.Error(t, err)
	require.Contains(t, err.Error(), "invalid JSONC")
}

func TestParseEmptyContentReturnsBase(t *testing.T) {
	cfg, warnings, err := Parse("   \n", Default())
	require.NoError(t, err)
	require.Empty(t, warnings)
	require.Equal(t, Default(), cfg)
}

func TestParseWarnsOnInlineAPIKey(t *testing.T) {
	_, warnings, err := Parse(`{"openai": {"api_key": "sk-test"}}`, Default())
	require.NoError(t, err)
	require.NotEmpty(t, warnings)
	require.Contains(t, warnings[0].Message, "OPENAI_API_KEY")
}

func TestValidateRejectsInvalidFields(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "empty trigger", mutate: func(c *Config) { c.Wake.Trigger = " " }, wantErr: "wake.trigger"},
		{name: "unknown match", mutate: func(c *Config) { c.Wake.Match = "regex" }, wantErr: "wake.match"},
		{name: "zero conversation timeout", mutate: func(c *Config) { c.Conversation.Timeout = 0 }, wantErr: "conversation.timeout"},
		{name: "bad device index", mutate: func(c *Config) { c.Audio.DeviceIndex = -2 }, wantErr: "audio.device_index"},
		{name: "energy ratio below one", mutate: func(c *Config) { c.Audio.EnergyRatio = 0.5 }, wantErr: "audio.energy_ratio"},
		{name: "phrase limit under pause", mutate: func(c *Config) { c.Audio.PhraseLimit = c.Audio.Pause }, wantErr: "phrase_limit"},
		{name: "unknown stt backend", mutate: func(c *Config) { c.STT.Backend = "vosk" }, wantErr: "stt.backend"},
		{name: "whisper endpoint scheme", mutate: func(c *Config) { c.STT.Endpoint = "127.0.0.1:8080" }, wantErr: "stt.endpoint"},
		{name: "openai stt without key", mutate: func(c *Config) { c.STT.Backend = BackendOpenAI }, wantErr: "OPENAI_API_KEY"},
		{name: "openai llm without key", mutate: func(c *Config) { c.LLM.Backend = BackendOpenAI }, wantErr: "OPENAI_API_KEY"},
		{name: "empty model", mutate: func(c *Config) { c.LLM.Model = "" }, wantErr: "llm.model"},
		{name: "zero tool rounds", mutate: func(c *Config) { c.LLM.MaxToolRounds = 0 }, wantErr: "max_tool_rounds"},
		{name: "volume too high", mutate: func(c *Config) { c.TTS.Volume = 1.5 }, wantErr: "tts.volume"},
		{name: "empty synth command", mutate: func(c *Config) { c.TTS.Command = CommandConfig{} }, wantErr: "tts.command"},
		{name: "bad home assistant url", mutate: func(c *Config) { c.HomeAssistant.URL = "ha.local" }, wantErr: "home_assistant.url"},
		{name: "unknown log level", mutate: func(c *Config) { c.Log.Level = "trace" }, wantErr: "log.level"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)

			_, err := Validate(cfg)
			require.Error(t, err)
			require.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestValidateWarnings(t *testing.T) {
	cfg := Default()
	cfg.Audio.ListenTimeout = time.Minute
	cfg.HomeAssistant.URL = "http://ha.local:8123"
	cfg.Conversation.ExitPhrases = []string{"goodbye"}
	cfg.Conversation.Farewell = ""

	warnings, err := Validate(cfg)
	require.NoError(t, err)
	require.Len(t, warnings, 3)
}

func TestSplitCommand(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    []string
		wantErr string
	}{
		{name: "empty", input: "", want: nil},
		{name: "simple", input: "espeak-ng -a 100", want: []string{"espeak-ng", "-a", "100"}},
		{name: "quoted spaces", input: `say -v "Daniel Compact"`, want: []string{"say", "-v", "Daniel Compact"}},
		{name: "single quote", input: `mycmd 'hello world'`, want: []string{"mycmd", "hello world"}},
		{name: "empty quoted arg", input: `mycmd ""`, want: []string{"mycmd", ""}},
		{name: "escaped space", input: `/opt/my\ tts/bin/espeak`, want: []string{"/opt/my tts/bin/espeak"}},
		{name: "unterminated quote", input: `mycmd "oops`, wantErr: "unterminated quote"},
		{name: "unterminated escape", input: `mycmd hello\`, wantErr: "unterminated escape"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := splitCommand(tc.input)
			if tc.wantErr != "" {
				require.Error(t, err)
				require.Contains(t, err.Error(), tc.wantErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestOffsetToLineCol(t *testing.T) {
	content := "line1\nline2\nline3"
	line, col := offsetToLineCol(content, 1)
	require.Equal(t, 1, line)
	require.Equal(t, 1, col)

	line, col = offsetToLineCol(content, 8)
	require.Equal(t, 2, line)
	require.Equal(t, 2, col)
}
