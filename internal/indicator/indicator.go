// Package indicator signals conversation-mode changes with audio cues and
// optional desktop notifications.
package indicator

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/rbright/parlando/internal/audio"
	"github.com/rbright/parlando/internal/fsm"
	"github.com/rbright/parlando/internal/session"
)

const (
	notifyTimeout = 400 * time.Millisecond
	cueTimeout    = 2 * time.Second
)

// Options selects which signals are emitted.
type Options struct {
	Sound   bool
	Notify  bool
	AppName string
}

// Indicator implements session.Observer. Cues play synchronously on the loop
// goroutine so they finish before the microphone listens again.
type Indicator struct {
	opts   Options
	logger *slog.Logger
	play   func(context.Context, []int16) error
	run    runner

	mu             sync.Mutex
	notificationID uint32
}

func New(opts Options, logger *slog.Logger) *Indicator {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if opts.AppName == "" {
		opts.AppName = "parlando"
	}
	return &Indicator{
		opts:   opts,
		logger: logger,
		play: func(ctx context.Context, samples []int16) error {
			return audio.Play(ctx, samples, cueSampleRate, "parlando cue")
		},
		run: execRunner,
	}
}

var _ session.Observer = (*Indicator)(nil)

// ModeChanged plays the wake cue on entering conversation and the sleep cue
// on leaving it.
func (i *Indicator) ModeChanged(_ fsm.Mode, to fsm.Mode, _ fsm.Event) {
	switch to {
	case fsm.ModeConversation:
		i.cue(cueWake)
		i.show("Listening…")
	case fsm.ModeIdle:
		i.cue(cueSleep)
		i.hide()
	}
}

func (i *Indicator) TurnFinished(session.Turn) {}

// Close dismisses any visible notification.
func (i *Indicator) Close() {
	i.hide()
}

func (i *Indicator) cue(kind cueKind) {
	if !i.opts.Sound {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), cueTimeout)
	defer cancel()
	if err := i.play(ctx, cueSamples(kind)); err != nil {
		i.logger.Debug("indicator audio cue failed", "cue", kind.String(), "error", err.Error())
	}
}

func (i *Indicator) show(text string) {
	if !i.opts.Notify {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
	defer cancel()

	i.mu.Lock()
	defer i.mu.Unlock()
	id, err := desktopNotify(ctx, i.run, i.opts.AppName, i.notificationID, text, 0)
	if err != nil {
		i.logger.Debug("indicator notification failed", "error", err.Error())
		return
	}
	i.notificationID = id
}

func (i *Indicator) hide() {
	if !i.opts.Notify {
		return
	}
	i.mu.Lock()
	id := i.notificationID
	i.notificationID = 0
	i.mu.Unlock()
	if id == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
	defer cancel()
	if err := desktopDismiss(ctx, i.run, id); err != nil {
		i.logger.Debug("indicator dismiss failed", "error", err.Error())
	}
}
