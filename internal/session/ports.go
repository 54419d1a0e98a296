package session

import (
	"context"
	"time"

	"github.com/rbright/parlando/internal/fsm"
	"github.com/rbright/parlando/internal/speech"
)

// AudioSource captures utterances from an input device.
type AudioSource interface {
	// Calibrate samples ambient noise once before the loop starts.
	Calibrate(context.Context) error
	// Capture returns the next utterance, or speech.ErrListenTimeout when no
	// speech begins within timeout.
	Capture(ctx context.Context, timeout time.Duration) (speech.Segment, error)
}

// Transcriber converts captured audio into text. Failures wrap
// speech.ErrNoSpeech or speech.ErrRecognition.
type Transcriber interface {
	Transcribe(context.Context, speech.Segment) (string, error)
}

// Synthesizer speaks text aloud and blocks until playback completes.
type Synthesizer interface {
	Speak(ctx context.Context, text string) error
}

// ReasoningEngine answers a spoken command, possibly invoking tools.
type ReasoningEngine interface {
	Handle(ctx context.Context, command string) (string, error)
}

// Observer receives copies of loop activity. Implementations run on the loop
// goroutine and must return promptly.
type Observer interface {
	ModeChanged(from fsm.Mode, to fsm.Mode, reason fsm.Event)
	TurnFinished(Turn)
}

// TranscriberFunc adapts a function to the Transcriber interface.
type TranscriberFunc func(context.Context, speech.Segment) (string, error)

func (f TranscriberFunc) Transcribe(ctx context.Context, seg speech.Segment) (string, error) {
	return f(ctx, seg)
}

// ReasoningFunc adapts a function to the ReasoningEngine interface.
type ReasoningFunc func(context.Context, string) (string, error)

func (f ReasoningFunc) Handle(ctx context.Context, command string) (string, error) {
	return f(ctx, command)
}

// noopObserver keeps loop flow unchanged when nothing is wired.
type noopObserver struct{}

func (noopObserver) ModeChanged(fsm.Mode, fsm.Mode, fsm.Event) {}
func (noopObserver) TurnFinished(Turn)                         {}

// observers fans notifications out in registration order.
type observers []Observer

func (o observers) ModeChanged(from fsm.Mode, to fsm.Mode, reason fsm.Event) {
	for _, obs := range o {
		obs.ModeChanged(from, to, reason)
	}
}

func (o observers) TurnFinished(turn Turn) {
	for _, obs := range o {
		obs.TurnFinished(turn)
	}
}
