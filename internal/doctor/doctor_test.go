package doctor

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rbright/parlando/internal/audio"
	"github.com/rbright/parlando/internal/config"
	"github.com/rbright/parlando/internal/tts"
	"github.com/stretchr/testify/require"
)

func TestReportOKAndString(t *testing.T) {
	report := Report{Checks: []Check{
		{Name: "one", Pass: true, Message: "good"},
		{Name: "two", Pass: false, Message: "bad"},
	}}

	require.False(t, report.OK())
	text := report.String()
	require.Contains(t, text, "[OK] one: good")
	require.Contains(t, text, "[FAIL] two: bad")
}

func TestCheckEnv(t *testing.T) {
	t.Setenv("TEST_DOCTOR_ENV", "/run/user/1000")

	check := checkEnv(
		"TEST_DOCTOR_ENV",
		func(v string) bool { return strings.HasPrefix(v, "/run") },
		"looks good",
		"unexpected",
	)

	require.True(t, check.Pass)
	require.Equal(t, "looks good", check.Message)
}

func TestCheckCommandEmpty(t *testing.T) {
	check := checkCommand(nil, "tts.command")
	require.False(t, check.Pass)
	require.Contains(t, check.Message, "command is empty")
}

func TestCheckBinaryMissing(t *testing.T) {
	check := checkBinary("definitely-not-a-real-binary", "unused")
	require.False(t, check.Pass)
	require.Contains(t, check.Message, "binary not found")
}

func TestCheckCommandUsesBinaryFromPath(t *testing.T) {
	dir := t.TempDir()
	scriptPath := filepath.Join(dir, "fake-espeak")
	require.NoError(t, os.WriteFile(scriptPath, []byte("#!/bin/sh\nexit 0\n"), 0o755))
	t.Setenv("PATH", dir+":"+os.Getenv("PATH"))

	check := checkCommand([]string{"fake-espeak", "-q"}, "tts.command")
	require.True(t, check.Pass)
	require.Contains(t, check.Message, "tts.command command is available")
}

func fakeLookups(voices []tts.Voice, deviceErr error) lookups {
	return lookups{
		selectDevice: func(context.Context, audio.Preference) (audio.Selection, error) {
			if deviceErr != nil {
				return audio.Selection{}, deviceErr
			}
			return audio.Selection{
				Device:  audio.Device{ID: "alsa_input.usb", Description: "USB Mic"},
				Warning: "primary muted",
			}, nil
		},
		listVoices: func(context.Context, []string) ([]tts.Voice, error) {
			return voices, nil
		},
	}
}

func TestCheckAudioSelection(t *testing.T) {
	cfg := config.Default()

	check := checkAudioSelection(context.Background(), cfg, fakeLookups(nil, nil))
	require.True(t, check.Pass)
	require.Contains(t, check.Message, "USB Mic")
	require.Contains(t, check.Message, "primary muted")

	check = checkAudioSelection(context.Background(), cfg, fakeLookups(nil, errors.New("no input devices")))
	require.False(t, check.Pass)
}

func TestCheckVoice(t *testing.T) {
	cfg := config.Default()
	voices := []tts.Voice{{Name: "German", Language: "de"}, {Name: "English_(America)", Language: "en-us"}}

	check := checkVoice(context.Background(), cfg, fakeLookups(voices, nil))
	require.True(t, check.Pass)
	require.Equal(t, "English (America) (en-us)", check.Message)

	check = checkVoice(context.Background(), cfg, fakeLookups(voices[:1], nil))
	require.True(t, check.Pass)
	require.Contains(t, check.Message, "engine default")
}

func TestCheckSTTWhisperReachable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "<html>whisper.cpp</html>")
	}))
	t.Cleanup(server.Close)

	cfg := config.Default()
	cfg.STT.Endpoint = server.URL
	check := checkSTT(context.Background(), cfg)
	require.True(t, check.Pass)
	require.Equal(t, "stt.whisper", check.Name)

	server.Close()
	check = checkSTT(context.Background(), cfg)
	require.False(t, check.Pass)
	require.Contains(t, check.Message, "request failed")
}

func TestCheckOpenAIRequiresKey(t *testing.T) {
	cfg := config.Default()
	cfg.STT.Backend = config.BackendOpenAI
	cfg.LLM.Backend = config.BackendOpenAI

	require.False(t, checkSTT(context.Background(), cfg).Pass)
	require.False(t, checkLLM(context.Background(), cfg).Pass)

	cfg.OpenAI.APIKey = "sk-test"
	require.True(t, checkSTT(context.Background(), cfg).Pass)
	require.True(t, checkLLM(context.Background(), cfg).Pass)
}

func newOllamaTags(t *testing.T, body string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/tags", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(server.Close)
	return server
}

func TestCheckLLMOllamaModelInstalled(t *testing.T) {
	server := newOllamaTags(t, `{"models":[{"name":"qwen3:1.7b","model":"qwen3:1.7b"}]}`)

	cfg := config.Default()
	cfg.LLM.Host = server.URL
	check := checkLLM(context.Background(), cfg)
	require.True(t, check.Pass, check.Message)
}

func TestCheckLLMOllamaModelMissing(t *testing.T) {
	server := newOllamaTags(t, `{"models":[{"name":"llama3:latest","model":"llama3:latest"}]}`)

	cfg := config.Default()
	cfg.LLM.Host = server.URL
	check := checkLLM(context.Background(), cfg)
	require.False(t, check.Pass)
	require.Contains(t, check.Message, "ollama pull qwen3:1.7b")
}

func TestCheckHomeAssistant(t *testing.T) {
	cfg := config.Default()
	require.True(t, checkHomeAssistant(context.Background(), cfg).Pass)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/" || r.Header.Get("Authorization") != "Bearer good" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = io.WriteString(w, `{"message":"API running."}`)
	}))
	t.Cleanup(server.Close)

	cfg.HomeAssistant.URL = server.URL
	cfg.HomeAssistant.Token = "good"
	require.True(t, checkHomeAssistant(context.Background(), cfg).Pass)

	cfg.HomeAssistant.Token = "bad"
	check := checkHomeAssistant(context.Background(), cfg)
	require.False(t, check.Pass)
	require.Contains(t, check.Message, "HTTP 401")
}

func TestRunReportsEveryCheck(t *testing.T) {
	cfg := config.Default()
	cfg.STT.Backend = config.BackendOpenAI
	cfg.LLM.Backend = config.BackendOpenAI
	cfg.OpenAI.APIKey = "sk-test"

	report := run(context.Background(), config.Loaded{Path: "/tmp/none.jsonc", Config: cfg}, fakeLookups(nil, nil))
	names := make([]string, 0, len(report.Checks))
	for _, c := range report.Checks {
		names = append(names, c.Name)
	}
	require.Contains(t, names, "config")
	require.Contains(t, names, "audio.device")
	require.Contains(t, names, "tts.voice")
	require.Contains(t, names, "stt.openai")
	require.Contains(t, names, "llm.openai")
	require.Contains(t, names, "home_assistant")
	require.Contains(t, report.Checks[0].Message, "using defaults")
}
