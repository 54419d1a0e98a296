// Package doctor runs readiness diagnostics for config, audio, speech, and
// reasoning backends.
package doctor

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/rbright/parlando/internal/agent"
	"github.com/rbright/parlando/internal/audio"
	"github.com/rbright/parlando/internal/config"
	"github.com/rbright/parlando/internal/tools"
	"github.com/rbright/parlando/internal/tts"
)

const checkTimeout = 2 * time.Second

// Check is one doctor assertion result.
type Check struct {
	Name    string
	Pass    bool
	Message string
}

// Report is the full doctor output contract.
type Report struct {
	Checks []Check
}

// OK returns true when all checks pass.
func (r Report) OK() bool {
	for _, check := range r.Checks {
		if !check.Pass {
			return false
		}
	}
	return true
}

// String renders the report as user-facing text output.
func (r Report) String() string {
	var b strings.Builder
	for _, check := range r.Checks {
		status := "OK"
		if !check.Pass {
			status = "FAIL"
		}
		b.WriteString(fmt.Sprintf("[%s] %s: %s\n", status, check.Name, check.Message))
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// lookups are the live system queries; tests replace them.
type lookups struct {
	selectDevice func(context.Context, audio.Preference) (audio.Selection, error)
	listVoices   func(context.Context, []string) ([]tts.Voice, error)
}

func liveLookups() lookups {
	return lookups{
		selectDevice: audio.SelectDevice,
		listVoices: func(ctx context.Context, argv []string) ([]tts.Voice, error) {
			return tts.ListVoices(ctx, argv, nil)
		},
	}
}

// Run executes environment/config/runtime checks for a loaded config.
func Run(ctx context.Context, cfg config.Loaded) Report {
	return run(ctx, cfg, liveLookups())
}

func run(ctx context.Context, loaded config.Loaded, p lookups) Report {
	cfg := loaded.Config
	checks := []Check{}

	configMsg := fmt.Sprintf("loaded %q", loaded.Path)
	if !loaded.Exists {
		configMsg = fmt.Sprintf("%q not found; using defaults", loaded.Path)
	}
	checks = append(checks, Check{Name: "config", Pass: true, Message: configMsg})

	checks = append(checks, checkEnv("XDG_RUNTIME_DIR", func(v string) bool {
		return strings.TrimSpace(v) != ""
	}, "runtime dir available for the control socket", "XDG_RUNTIME_DIR is empty; status/stop are unavailable"))

	checks = append(checks, checkAudioSelection(ctx, cfg, p))
	checks = append(checks, checkCommand(cfg.TTS.Command.Argv, "tts.command"))
	checks = append(checks, checkVoice(ctx, cfg, p))
	checks = append(checks, checkSTT(ctx, cfg))
	checks = append(checks, checkLLM(ctx, cfg))
	checks = append(checks, checkHomeAssistant(ctx, cfg))

	return Report{Checks: checks}
}

// checkEnv validates an environment variable through a caller-supplied predicate.
func checkEnv(name string, predicate func(string) bool, okMsg, failMsg string) Check {
	value := os.Getenv(name)
	if predicate(value) {
		return Check{Name: name, Pass: true, Message: okMsg}
	}
	return Check{Name: name, Pass: false, Message: failMsg}
}

// checkCommand validates that argv contains a runnable command.
func checkCommand(argv []string, name string) Check {
	if len(argv) == 0 {
		return Check{Name: name, Pass: false, Message: "command is empty"}
	}
	return checkBinary(argv[0], fmt.Sprintf("%s command is available", name))
}

// checkBinary validates that a binary exists in PATH.
func checkBinary(bin string, okMsg string) Check {
	path, err := exec.LookPath(bin)
	if err != nil {
		return Check{Name: bin, Pass: false, Message: fmt.Sprintf("binary not found in PATH: %s", bin)}
	}
	return Check{Name: bin, Pass: true, Message: fmt.Sprintf("found at %s (%s)", path, okMsg)}
}

// checkAudioSelection runs live device selection to surface selection/fallback issues.
func checkAudioSelection(ctx context.Context, cfg config.Config, p lookups) Check {
	selection, err := p.selectDevice(ctx, audio.Preference{Index: cfg.Audio.DeviceIndex, Input: cfg.Audio.Input})
	if err != nil {
		return Check{Name: "audio.device", Pass: false, Message: err.Error()}
	}
	message := fmt.Sprintf("selected %s", selection.Device)
	if selection.Warning != "" {
		message = message + " (" + selection.Warning + ")"
	}
	return Check{Name: "audio.device", Pass: true, Message: message}
}

func checkVoice(ctx context.Context, cfg config.Config, p lookups) Check {
	if len(cfg.TTS.Command.Argv) == 0 {
		return Check{Name: "tts.voice", Pass: false, Message: "tts command is empty"}
	}
	voices, err := p.listVoices(ctx, cfg.TTS.Command.Argv)
	if err != nil {
		return Check{Name: "tts.voice", Pass: false, Message: err.Error()}
	}
	voice, ok := tts.ResolveVoice(voices, cfg.TTS.Voice)
	if !ok {
		return Check{Name: "tts.voice", Pass: true, Message: fmt.Sprintf("no English voice among %d; engine default will be used", len(voices))}
	}
	return Check{Name: "tts.voice", Pass: true, Message: fmt.Sprintf("%s (%s)", voice.Label(), voice.Language)}
}

func checkSTT(ctx context.Context, cfg config.Config) Check {
	switch cfg.STT.Backend {
	case config.BackendOpenAI:
		return checkAPIKey("stt.openai", cfg)
	default:
		return checkReachable(ctx, "stt.whisper", cfg.STT.Endpoint)
	}
}

func checkLLM(ctx context.Context, cfg config.Config) Check {
	if cfg.LLM.Backend == config.BackendOpenAI {
		return checkAPIKey("llm.openai", cfg)
	}

	model, err := agent.NewOllama(cfg.LLM.Host, cfg.LLM.Model, cfg.LLM.Think, checkTimeout)
	if err != nil {
		return Check{Name: "llm.ollama", Pass: false, Message: err.Error()}
	}
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()
	installed, err := model.Models(ctx)
	if err != nil {
		return Check{Name: "llm.ollama", Pass: false, Message: fmt.Sprintf("request failed: %v", err)}
	}
	if !agent.HasModel(installed, cfg.LLM.Model) {
		return Check{Name: "llm.ollama", Pass: false, Message: fmt.Sprintf("model %q is not installed (ollama pull %s)", cfg.LLM.Model, cfg.LLM.Model)}
	}
	return Check{Name: "llm.ollama", Pass: true, Message: fmt.Sprintf("model %q available at %s", cfg.LLM.Model, cfg.LLM.Host)}
}

func checkHomeAssistant(ctx context.Context, cfg config.Config) Check {
	ha := cfg.HomeAssistant
	if !ha.Enabled() {
		return Check{Name: "home_assistant", Pass: true, Message: "not configured; light tool disabled"}
	}
	light := tools.NewLight(ha.URL, ha.Token, ha.Entity, checkTimeout)
	if err := light.Ping(ctx); err != nil {
		return Check{Name: "home_assistant", Pass: false, Message: err.Error()}
	}
	return Check{Name: "home_assistant", Pass: true, Message: fmt.Sprintf("API reachable at %s", ha.URL)}
}

func checkAPIKey(name string, cfg config.Config) Check {
	if strings.TrimSpace(cfg.OpenAI.APIKey) == "" {
		return Check{Name: name, Pass: false, Message: "OPENAI_API_KEY is not set"}
	}
	return Check{Name: name, Pass: true, Message: "API key configured"}
}

// checkReachable treats any non-5xx answer as a live server.
func checkReachable(ctx context.Context, name string, base string) Check {
	base = strings.TrimSpace(base)
	if base == "" {
		return Check{Name: name, Pass: false, Message: "endpoint is empty"}
	}
	url := strings.TrimRight(base, "/") + "/"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Check{Name: name, Pass: false, Message: err.Error()}
	}
	client := http.Client{Timeout: checkTimeout}
	resp, err := client.Do(req)
	if err != nil {
		return Check{Name: name, Pass: false, Message: fmt.Sprintf("request failed: %v", err)}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode >= 500 {
		return Check{Name: name, Pass: false, Message: fmt.Sprintf("HTTP %d from %s", resp.StatusCode, url)}
	}
	return Check{Name: name, Pass: true, Message: fmt.Sprintf("reachable at %s", url)}
}
