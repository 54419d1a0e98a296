// Package tts speaks responses through a command-line synthesizer and
// PulseAudio playback.
package tts

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/rbright/parlando/internal/audio"
	"github.com/rbright/parlando/internal/speech"
)

// runner executes a synthesizer command and returns its stdout.
type runner func(ctx context.Context, argv []string) ([]byte, error)

// player plays decoded mono samples.
type player func(ctx context.Context, samples []int16, sampleRate int, mediaName string) error

func execRunner(ctx context.Context, argv []string) ([]byte, error) {
	if len(argv) == 0 {
		return nil, errors.New("synthesizer command is empty")
	}
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("%w: %s", err, msg)
		}
		return nil, err
	}
	return stdout.Bytes(), nil
}

// Options configures a Speaker.
type Options struct {
	Command    []string // synthesizer argv prefix, e.g. ["espeak-ng"]
	Voice      string   // preferred voice name; empty means English or engine default
	Rate       int      // words per minute
	Volume     float64  // 0.0 to 1.0
	PauseAfter time.Duration
}

// Speaker implements session.Synthesizer.
type Speaker struct {
	logger *slog.Logger
	opts   Options
	voice  Voice
	hasVox bool

	run   runner
	play  player
	sleep func(context.Context, time.Duration) error
}

// New queries the synthesizer's voice list and resolves the voice once.
// A failure to list voices is fatal: the synthesizer is unusable.
func New(ctx context.Context, logger *slog.Logger, opts Options) (*Speaker, error) {
	return newSpeaker(ctx, logger, opts, execRunner, audio.Play)
}

func newSpeaker(ctx context.Context, logger *slog.Logger, opts Options, run runner, play player) (*Speaker, error) {
	if len(opts.Command) == 0 {
		return nil, errors.New("tts: command is empty")
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	voices, err := ListVoices(ctx, opts.Command, run)
	if err != nil {
		return nil, err
	}

	s := &Speaker{
		logger: logger.With("component", "tts"),
		opts:   opts,
		run:    run,
		play:   play,
		sleep:  sleepContext,
	}
	s.voice, s.hasVox = ResolveVoice(voices, opts.Voice)
	if s.hasVox {
		s.logger.Info("tts voice selected", "voice", s.voice.Label(), "language", s.voice.Language)
	} else {
		s.logger.Warn("no matching tts voice; using engine default", "preferred", opts.Voice)
	}
	return s, nil
}

// ListVoices runs `<command> --voices` and parses the result.
func ListVoices(ctx context.Context, command []string, run runner) ([]Voice, error) {
	if run == nil {
		run = execRunner
	}
	argv := append(append([]string(nil), command...), "--voices")
	out, err := run(ctx, argv)
	if err != nil {
		return nil, fmt.Errorf("list tts voices: %w", err)
	}
	return ParseVoices(string(out)), nil
}

// Voice reports the resolved voice, if any.
func (s *Speaker) Voice() (Voice, bool) {
	return s.voice, s.hasVox
}

func (s *Speaker) Speak(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	wav, err := s.run(ctx, s.argv(text))
	if err != nil {
		return fmt.Errorf("synthesize speech: %w", err)
	}
	info, err := speech.DecodeWAV(wav)
	if err != nil {
		return fmt.Errorf("decode synthesized audio: %w", err)
	}
	if info.Channels != 1 {
		return fmt.Errorf("decode synthesized audio: unsupported channel count %d", info.Channels)
	}

	if err := s.play(ctx, audio.SamplesFromPCM(info.PCM), info.SampleRate, "parlando speech"); err != nil {
		return fmt.Errorf("play speech: %w", err)
	}
	return s.sleep(ctx, s.opts.PauseAfter)
}

func (s *Speaker) argv(text string) []string {
	argv := append([]string(nil), s.opts.Command...)
	if s.hasVox {
		argv = append(argv, "-v", s.voice.Language)
	}
	if s.opts.Rate > 0 {
		argv = append(argv, "-s", strconv.Itoa(s.opts.Rate))
	}
	argv = append(argv, "-a", strconv.Itoa(amplitude(s.opts.Volume)), "--stdout", "--", text)
	return argv
}

// amplitude maps a 0..1 volume onto espeak-ng's 0..200 scale where 100 is
// the engine's normal level.
func amplitude(volume float64) int {
	return int(math.Round(math.Max(0, math.Min(1, volume)) * 100))
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
