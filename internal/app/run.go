package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/rbright/parlando/internal/agent"
	"github.com/rbright/parlando/internal/config"
	"github.com/rbright/parlando/internal/ipc"
	"github.com/rbright/parlando/internal/observe"
	"github.com/rbright/parlando/internal/session"
	"github.com/rbright/parlando/internal/wake"
)

// commandRun owns the microphone until ctx is cancelled or a stop request
// arrives over the control socket.
func (r Runner) commandRun(ctx context.Context, cfg config.Config, logger *slog.Logger) int {
	if err := r.run(ctx, cfg, logger); err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		logger.Error("run failed", "error", err.Error())
		return 1
	}
	return 0
}

func (r Runner) run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	sock, err := acquireSocket(runCtx, logger)
	if err != nil {
		return err
	}
	socketPath := ""
	if sock != nil {
		socketPath = sock.Path
		defer func() { _ = sock.Close() }()
	}

	var provider *observe.Provider
	var toolObs agent.ToolObserver
	if cfg.Metrics.Listen != "" {
		provider, err = observe.NewProvider()
		if err != nil {
			return fmt.Errorf("setup metrics: %w", err)
		}
		defer func() { _ = provider.Shutdown(context.Background()) }()
		toolObs = provider.Metrics
	}

	assemble := r.assemble
	if assemble == nil {
		assemble = assembleLive
	}
	p, err := assemble(runCtx, cfg, logger, toolObs)
	if err != nil {
		return err
	}
	if p.close != nil {
		defer p.close()
	}

	matcher, err := wake.New(cfg.Wake.Match, cfg.Wake.Trigger)
	if err != nil {
		return fmt.Errorf("create wake matcher: %w", err)
	}

	board := ipc.NewBoard(cancel)
	observers := append([]session.Observer{board}, p.observers...)
	if provider != nil {
		observers = append(observers, provider.Metrics)
	}

	loop, err := session.New(logger.With("component", "session"), session.Options{
		ListenTimeout:       cfg.Audio.ListenTimeout,
		ConversationTimeout: cfg.Conversation.Timeout,
		Acknowledgment:      cfg.Wake.Acknowledgment,
		Farewell:            cfg.Conversation.Farewell,
		ExitPhrases:         cfg.Conversation.ExitPhrases,
		Matcher:             matcher,
	}, p.source, p.transcriber, p.reasoner, p.synth, observers...)
	if err != nil {
		return fmt.Errorf("create session loop: %w", err)
	}

	logger.Info("agent started",
		"trigger", matcher.Trigger(),
		"match", cfg.Wake.Match,
		"conversation_timeout_s", cfg.Conversation.Timeout.Seconds(),
		"stt", cfg.STT.Backend,
		"llm", cfg.LLM.Backend,
		"model", cfg.LLM.Model,
		"socket", socketPath,
	)

	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		defer cancel()
		return loop.Run(gctx)
	})
	if sock != nil {
		g.Go(func() error {
			return ipc.Serve(gctx, sock, board)
		})
	}
	if provider != nil {
		g.Go(func() error {
			return observe.Serve(gctx, logger, cfg.Metrics.Listen, provider.Handler())
		})
	}

	err = g.Wait()
	logger.Info("agent stopped", "turns", board.Snapshot().Turns)
	return err
}

// acquireSocket claims the per-user control socket. Without a runtime dir
// the agent still runs, just without status/stop.
func acquireSocket(ctx context.Context, logger *slog.Logger) (*ipc.Socket, error) {
	path, err := ipc.SocketPath()
	if err != nil {
		logger.Warn("control socket disabled", "error", err.Error())
		return nil, nil
	}

	sock, err := ipc.Acquire(ctx, path)
	if errors.Is(err, ipc.ErrAlreadyRunning) {
		return nil, fmt.Errorf("%w (socket %s)", err, path)
	}
	return sock, err
}
