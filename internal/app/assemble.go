package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"

	"github.com/rbright/parlando/internal/agent"
	"github.com/rbright/parlando/internal/audio"
	"github.com/rbright/parlando/internal/config"
	"github.com/rbright/parlando/internal/indicator"
	"github.com/rbright/parlando/internal/logging"
	"github.com/rbright/parlando/internal/session"
	"github.com/rbright/parlando/internal/stt"
	"github.com/rbright/parlando/internal/tools"
	"github.com/rbright/parlando/internal/tts"
)

// parts are the collaborators handed to session.New.
type parts struct {
	source      session.AudioSource
	transcriber session.Transcriber
	reasoner    session.ReasoningEngine
	synth       session.Synthesizer
	observers   []session.Observer
	close       func()
}

type assembleFunc func(ctx context.Context, cfg config.Config, logger *slog.Logger, toolObs agent.ToolObserver) (parts, error)

// assembleLive opens the microphone and constructs every backend. Any
// failure here is fatal for the run.
func assembleLive(ctx context.Context, cfg config.Config, logger *slog.Logger, toolObs agent.ToolObserver) (parts, error) {
	var closers []func()
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (parts, error) {
		closeAll()
		return parts{}, err
	}

	selection, err := audio.SelectDevice(ctx, audio.Preference{Index: cfg.Audio.DeviceIndex, Input: cfg.Audio.Input})
	if err != nil {
		return fail(fmt.Errorf("select audio device: %w", err))
	}
	if selection.Warning != "" {
		logger.Warn("audio device fallback", "warning", selection.Warning)
	}
	logger.Info("audio device selected", "device", selection.Device.String(), "index", selection.Device.Index)

	stream, err := audio.OpenStream(ctx, selection.Device)
	if err != nil {
		return fail(fmt.Errorf("open audio stream: %w", err))
	}
	closers = append(closers, stream.Close)

	listenerCfg := audio.ListenerConfig{
		Calibration: cfg.Audio.Calibration,
		Detector: audio.DetectorConfig{
			EnergyRatio: cfg.Audio.EnergyRatio,
			MinEnergy:   cfg.Audio.MinEnergy,
			Pause:       cfg.Audio.Pause,
			PhraseLimit: cfg.Audio.PhraseLimit,
		},
	}
	if cfg.Debug.EnableAudioDump {
		stateDir, err := logging.StateDir()
		if err != nil {
			return fail(fmt.Errorf("resolve debug dir: %w", err))
		}
		dumper := audio.Dumper{Dir: filepath.Join(stateDir, "debug"), Logger: logger.With("component", "debug")}
		listenerCfg.OnSegment = dumper.Write
	}
	listener := audio.NewListener(logger.With("component", "audio"), stream, listenerCfg)

	transcriber, err := newTranscriber(cfg)
	if err != nil {
		return fail(fmt.Errorf("create transcriber: %w", err))
	}

	speaker, err := tts.New(ctx, logger, tts.Options{
		Command:    cfg.TTS.Command.Argv,
		Voice:      cfg.TTS.Voice,
		Rate:       cfg.TTS.Rate,
		Volume:     cfg.TTS.Volume,
		PauseAfter: cfg.TTS.PauseAfter,
	})
	if err != nil {
		return fail(fmt.Errorf("create synthesizer: %w", err))
	}

	engine, err := newEngine(cfg, logger, toolObs)
	if err != nil {
		return fail(fmt.Errorf("create reasoning engine: %w", err))
	}

	var observers []session.Observer
	if cfg.Cues.Enable || cfg.Cues.Notify {
		ind := indicator.New(indicator.Options{Sound: cfg.Cues.Enable, Notify: cfg.Cues.Notify}, logger.With("component", "indicator"))
		observers = append(observers, ind)
		closers = append(closers, ind.Close)
	}

	return parts{
		source:      listener,
		transcriber: transcriber,
		reasoner:    engine,
		synth:       speaker,
		observers:   observers,
		close:       closeAll,
	}, nil
}

func newTranscriber(cfg config.Config) (session.Transcriber, error) {
	switch cfg.STT.Backend {
	case config.BackendOpenAI:
		return stt.NewOpenAI(cfg.OpenAI.APIKey, cfg.STT.Model,
			stt.WithOpenAIBaseURL(cfg.OpenAI.BaseURL),
			stt.WithOpenAITimeout(cfg.STT.Timeout),
			stt.WithOpenAILanguage(cfg.STT.Language),
		)
	case config.BackendWhisper:
		return stt.NewWhisper(cfg.STT.Endpoint,
			stt.WithWhisperModel(cfg.STT.Model),
			stt.WithWhisperLanguage(cfg.STT.Language),
			stt.WithWhisperHTTPClient(&http.Client{Timeout: cfg.STT.Timeout}),
		)
	default:
		return nil, fmt.Errorf("unsupported stt backend %q", cfg.STT.Backend)
	}
}

func newChatModel(cfg config.Config) (agent.ChatModel, error) {
	switch cfg.LLM.Backend {
	case config.BackendOpenAI:
		return agent.NewOpenAI(cfg.OpenAI.APIKey, cfg.LLM.Model, cfg.OpenAI.BaseURL, cfg.LLM.Timeout)
	case config.BackendOllama:
		return agent.NewOllama(cfg.LLM.Host, cfg.LLM.Model, cfg.LLM.Think, cfg.LLM.Timeout)
	default:
		return nil, fmt.Errorf("unsupported llm backend %q", cfg.LLM.Backend)
	}
}

func newRegistry(cfg config.Config) (*tools.Registry, error) {
	registry, err := tools.NewRegistry(tools.Clock{})
	if err != nil {
		return nil, err
	}
	if ha := cfg.HomeAssistant; ha.Enabled() {
		if err := registry.Register(tools.NewLight(ha.URL, ha.Token, ha.Entity, ha.Timeout)); err != nil {
			return nil, err
		}
	}
	return registry, nil
}

func newEngine(cfg config.Config, logger *slog.Logger, toolObs agent.ToolObserver) (*agent.Engine, error) {
	model, err := newChatModel(cfg)
	if err != nil {
		return nil, err
	}
	registry, err := newRegistry(cfg)
	if err != nil {
		return nil, err
	}
	return agent.New(logger, model, registry, agent.Options{
		SystemPrompt:  cfg.LLM.SystemPrompt,
		MaxToolRounds: cfg.LLM.MaxToolRounds,
		Timeout:       cfg.LLM.Timeout,
		ToolObserver:  toolObs,
	})
}
