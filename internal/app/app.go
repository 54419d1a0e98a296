// Package app dispatches parlando commands and wires the running agent.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"

	"github.com/rbright/parlando/internal/audio"
	"github.com/rbright/parlando/internal/cli"
	"github.com/rbright/parlando/internal/config"
	"github.com/rbright/parlando/internal/doctor"
	"github.com/rbright/parlando/internal/ipc"
	"github.com/rbright/parlando/internal/logging"
	"github.com/rbright/parlando/internal/tts"
	"github.com/rbright/parlando/internal/version"
)

type Runner struct {
	Stdout io.Writer
	Stderr io.Writer
	Logger *slog.Logger

	// assemble builds the agent's collaborators; nil uses the live devices
	// and backends.
	assemble assembleFunc
}

func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	r := Runner{Stdout: stdout, Stderr: stderr}
	return r.Execute(ctx, args)
}

func (r Runner) Execute(ctx context.Context, args []string) int {
	parsed, err := cli.Parse(args)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n\n", err)
		fmt.Fprint(r.Stderr, cli.HelpText("parlando"))
		return 2
	}

	if parsed.ShowHelp {
		fmt.Fprint(r.Stdout, cli.HelpText("parlando"))
		return 0
	}

	if parsed.Command == cli.CommandVersion {
		fmt.Fprintln(r.Stdout, version.String())
		return 0
	}

	if _, err := config.LoadDotEnv(parsed.EnvPath); err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	cfgLoaded, err := config.Load(parsed.ConfigPath)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	logOpts := logging.Options{Level: cfgLoaded.Config.Log.Level}
	if parsed.Command == cli.CommandRun {
		logOpts.Console = r.Stderr
	}
	logRuntime, err := logging.New(logOpts)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: setup logging: %v\n", err)
		return 1
	}
	defer func() { _ = logRuntime.Close() }()

	logger := r.Logger
	if logger == nil {
		logger = logRuntime.Logger
	}

	for _, w := range cfgLoaded.Warnings {
		msg := w.Message
		if w.Line > 0 {
			msg = fmt.Sprintf("line %d: %s", w.Line, w.Message)
		}
		logger.Warn("config warning", "line", w.Line, "message", w.Message)
		// run mirrors the log to stderr already.
		if parsed.Command != cli.CommandRun {
			fmt.Fprintf(r.Stderr, "warning: %s\n", msg)
		}
	}

	logger.Info("command start",
		"command", parsed.Command,
		"config", cfgLoaded.Path,
		"log", logRuntime.Path,
	)

	switch parsed.Command {
	case cli.CommandRun:
		return r.commandRun(ctx, cfgLoaded.Config, logger)
	case cli.CommandDoctor:
		report := doctor.Run(ctx, cfgLoaded)
		fmt.Fprintln(r.Stdout, report.String())
		if report.OK() {
			return 0
		}
		return 1
	case cli.CommandDevices:
		return r.commandDevices(ctx)
	case cli.CommandVoices:
		return r.commandVoices(ctx, cfgLoaded.Config)
	case cli.CommandStatus:
		return r.commandStatus(ctx)
	case cli.CommandStop:
		return r.commandStop(ctx)
	default:
		fmt.Fprintf(r.Stderr, "error: unsupported command %q\n", parsed.Command)
		return 2
	}
}

func (r Runner) commandDevices(ctx context.Context) int {
	devices, err := audio.ListDevices(ctx)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	if len(devices) == 0 {
		fmt.Fprintln(r.Stdout, "no audio devices found")
		return 1
	}

	for _, device := range devices {
		defaultMark := " "
		if device.Default {
			defaultMark = "*"
		}
		availability := "yes"
		if !device.Available {
			availability = "no"
		}
		muted := "no"
		if device.Muted {
			muted = "yes"
		}
		fmt.Fprintf(
			r.Stdout,
			"%s index=%d | id=%s | description=%q | state=%s | available=%s | muted=%s\n",
			defaultMark,
			device.Index,
			device.ID,
			device.Description,
			device.State,
			availability,
			muted,
		)
	}

	return 0
}

func (r Runner) commandVoices(ctx context.Context, cfg config.Config) int {
	voices, err := tts.ListVoices(ctx, cfg.TTS.Command.Argv, nil)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	if len(voices) == 0 {
		fmt.Fprintln(r.Stdout, "no voices found")
		return 1
	}

	selected, ok := tts.ResolveVoice(voices, cfg.TTS.Voice)
	for _, v := range voices {
		mark := " "
		if ok && v == selected {
			mark = "*"
		}
		fmt.Fprintf(r.Stdout, "%s %-10s %-6s %s\n", mark, v.Language, v.Gender, v.Label())
	}
	if !ok {
		fmt.Fprintln(r.Stdout, "no matching voice; the engine default will be used")
	}
	return 0
}

func (r Runner) commandStatus(ctx context.Context) int {
	client, ok := controlClient()
	if !ok {
		fmt.Fprintln(r.Stdout, "not running")
		return 0
	}

	status, err := client.Status(ctx)
	if errors.Is(err, ipc.ErrNotRunning) {
		fmt.Fprintln(r.Stdout, "not running")
		return 0
	}
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	fmt.Fprintln(r.Stdout, status.Mode)
	fmt.Fprintln(r.Stdout, formatStatus(*status))
	return 0
}

func formatStatus(s ipc.Status) string {
	fields := []string{
		fmt.Sprintf("pid=%d", s.PID),
		fmt.Sprintf("since=%s", s.ModeSince),
		fmt.Sprintf("turns=%d", s.Turns),
	}
	if s.LastOutcome != "" {
		fields = append(fields, "last_outcome="+s.LastOutcome)
	}
	outcomes := make([]string, 0, len(s.Outcomes))
	for name, count := range s.Outcomes {
		outcomes = append(outcomes, fmt.Sprintf("%s:%d", name, count))
	}
	sort.Strings(outcomes)
	if len(outcomes) > 0 {
		fields = append(fields, "outcomes="+strings.Join(outcomes, ","))
	}
	if s.Stopping {
		fields = append(fields, "stopping")
	}
	return strings.Join(fields, " ")
}

func (r Runner) commandStop(ctx context.Context) int {
	client, ok := controlClient()
	if !ok {
		fmt.Fprintf(r.Stderr, "error: %v\n", ipc.ErrNotRunning)
		return 1
	}

	msg, err := client.Stop(ctx)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	if msg != "" {
		fmt.Fprintln(r.Stdout, msg)
	}
	return 0
}

// controlClient addresses the running agent; ok is false when there is no
// runtime dir to hold a socket.
func controlClient() (ipc.Client, bool) {
	path, err := ipc.SocketPath()
	if err != nil {
		return ipc.Client{}, false
	}
	return ipc.Client{Path: path}, true
}
