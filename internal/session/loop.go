// Package session runs the wake-word and conversation interaction loop.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rbright/parlando/internal/fsm"
	"github.com/rbright/parlando/internal/speech"
	"github.com/rbright/parlando/internal/wake"
)

const (
	DefaultListenTimeout       = 10 * time.Second
	DefaultConversationTimeout = 30 * time.Second
	DefaultAcknowledgment      = "Yes, sir?"
	defaultErrorBackoff        = time.Second
)

var ErrMissingCollaborator = errors.New("session collaborator is nil")

// Options controls loop timing and phrasing.
type Options struct {
	ListenTimeout       time.Duration
	ConversationTimeout time.Duration
	Acknowledgment      string
	Farewell            string
	ExitPhrases         []string
	Matcher             wake.Matcher

	// ErrorBackoff pauses Run after a failed cycle. Zero uses one second;
	// negative disables the pause.
	ErrorBackoff time.Duration
	Now          func() time.Time
}

// Loop owns session state and drives one capture, transcribe, dispatch and
// speak cycle at a time.
type Loop struct {
	logger      *slog.Logger
	opts        Options
	router      Router
	source      AudioSource
	transcriber Transcriber
	reasoner    ReasoningEngine
	synth       Synthesizer
	observer    Observer

	state State

	// stopping is set once Run's context is done; the audio source may
	// already be closing underneath an in-flight capture.
	stopping atomic.Bool
}

// New validates collaborators and returns an idle loop.
func New(
	logger *slog.Logger,
	opts Options,
	source AudioSource,
	transcriber Transcriber,
	reasoner ReasoningEngine,
	synth Synthesizer,
	obs ...Observer,
) (*Loop, error) {
	switch {
	case source == nil:
		return nil, fmt.Errorf("%w: audio source", ErrMissingCollaborator)
	case transcriber == nil:
		return nil, fmt.Errorf("%w: transcriber", ErrMissingCollaborator)
	case reasoner == nil:
		return nil, fmt.Errorf("%w: reasoning engine", ErrMissingCollaborator)
	case synth == nil:
		return nil, fmt.Errorf("%w: synthesizer", ErrMissingCollaborator)
	case opts.Matcher == nil:
		return nil, fmt.Errorf("%w: wake matcher", ErrMissingCollaborator)
	}

	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if opts.ListenTimeout <= 0 {
		opts.ListenTimeout = DefaultListenTimeout
	}
	if opts.ConversationTimeout <= 0 {
		opts.ConversationTimeout = DefaultConversationTimeout
	}
	if strings.TrimSpace(opts.Acknowledgment) == "" {
		opts.Acknowledgment = DefaultAcknowledgment
	}
	if opts.ErrorBackoff == 0 {
		opts.ErrorBackoff = defaultErrorBackoff
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	var observer Observer = noopObserver{}
	live := make(observers, 0, len(obs))
	for _, o := range obs {
		if o != nil {
			live = append(live, o)
		}
	}
	if len(live) > 0 {
		observer = live
	}

	return &Loop{
		logger:      logger,
		opts:        opts,
		router:      Router{Matcher: opts.Matcher, ExitPhrases: opts.ExitPhrases},
		source:      source,
		transcriber: transcriber,
		reasoner:    reasoner,
		synth:       synth,
		observer:    observer,
		state:       InitialState(),
	}, nil
}

// Run calibrates the audio source once, then processes cycles until ctx is
// cancelled. Cancellation is observed between cycles; an in-flight cycle
// finishes with a context detached from ctx so speech is never cut off.
func (l *Loop) Run(ctx context.Context) error {
	if err := l.source.Calibrate(ctx); err != nil {
		return fmt.Errorf("calibrate audio source: %w", err)
	}
	l.logger.Info("audio source calibrated", "trigger", l.opts.Matcher.Trigger())

	release := context.AfterFunc(ctx, func() { l.stopping.Store(true) })
	defer release()

	cycleCtx := context.WithoutCancel(ctx)
	for {
		if err := ctx.Err(); err != nil {
			l.logger.Info("interaction loop stopping", "reason", context.Cause(ctx))
			return nil
		}

		turn := l.ProcessCycle(cycleCtx)
		if turn.Outcome.Failed() && l.opts.ErrorBackoff > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(l.opts.ErrorBackoff):
			}
		}
	}
}

// ProcessCycle runs exactly one capture, transcribe, dispatch and speak cycle.
// Every collaborator failure is absorbed into the returned Turn.
func (l *Loop) ProcessCycle(ctx context.Context) Turn {
	turn := Turn{ID: uuid.NewString(), StartedAt: l.opts.Now()}

	if next, expired := l.state.Expire(turn.StartedAt, l.opts.ConversationTimeout); expired {
		l.setState(next, fsm.EventTimeout)
	}
	turn.Mode = l.state.Mode

	if turn.Mode == fsm.ModeIdle {
		l.logger.Debug("listening for wake word", "turn_id", turn.ID)
	} else {
		l.logger.Debug("listening for command", "turn_id", turn.ID)
	}

	start := l.opts.Now()
	segment, err := l.source.Capture(ctx, l.opts.ListenTimeout)
	turn.Timings.Capture = l.opts.Now().Sub(start)
	if err != nil {
		if errors.Is(err, speech.ErrListenTimeout) {
			return l.finish(turn, OutcomeTimeout, nil)
		}
		if l.stopping.Load() {
			return l.finish(turn, OutcomeInterrupted, err)
		}
		return l.finish(turn, OutcomeCaptureError, err)
	}
	turn.AudioLength = segment.Duration()

	start = l.opts.Now()
	text, err := l.transcriber.Transcribe(ctx, segment)
	turn.Timings.Transcribe = l.opts.Now().Sub(start)
	if err == nil && strings.TrimSpace(text) == "" {
		err = speech.ErrNoSpeech
	}
	if err != nil {
		if errors.Is(err, speech.ErrNoSpeech) {
			return l.finish(turn, OutcomeNoSpeech, nil)
		}
		return l.finish(turn, OutcomeRecognitionError, err)
	}
	turn.Transcript = strings.TrimSpace(text)
	turn.HasTranscript = true

	effect := l.router.Route(l.state, turn.Transcript)
	switch effect {
	case EffectAcknowledge:
		l.speak(ctx, &turn, l.opts.Acknowledgment)
		l.setState(l.state.Apply(effect, true, l.opts.Now()), fsm.EventWake)
		return l.finish(turn, OutcomeWakeWordMatched, nil)

	case EffectEndConversation:
		if strings.TrimSpace(l.opts.Farewell) != "" {
			l.speak(ctx, &turn, l.opts.Farewell)
		}
		l.setState(l.state.Apply(effect, true, l.opts.Now()), fsm.EventExit)
		return l.finish(turn, OutcomeConversationEnded, nil)

	case EffectForward:
		start = l.opts.Now()
		response, err := l.reasoner.Handle(ctx, turn.Transcript)
		turn.Timings.Reason = l.opts.Now().Sub(start)
		if err == nil && strings.TrimSpace(response) == "" {
			err = fmt.Errorf("%w: empty response", speech.ErrReasoning)
		}
		if err != nil {
			l.state = l.state.Apply(effect, false, l.opts.Now())
			return l.finish(turn, OutcomeReasoningError, err)
		}

		turn.Response = strings.TrimSpace(response)
		l.speak(ctx, &turn, turn.Response)
		l.state = l.state.Apply(effect, true, l.opts.Now())
		return l.finish(turn, OutcomeCommandProcessed, nil)

	default:
		return l.finish(turn, OutcomeNoWakeWord, nil)
	}
}

func (l *Loop) speak(ctx context.Context, turn *Turn, text string) {
	start := l.opts.Now()
	err := l.synth.Speak(ctx, text)
	turn.Timings.Speak += l.opts.Now().Sub(start)
	if err != nil {
		turn.SpeakErr = err
		l.logger.Error("speech synthesis failed", "turn_id", turn.ID, "error", err.Error())
	}
}

func (l *Loop) setState(next State, reason fsm.Event) {
	prev := l.state.Mode
	l.state = next
	if prev == next.Mode {
		return
	}
	l.logger.Info("mode changed", "from", string(prev), "to", string(next.Mode), "reason", string(reason))
	l.observer.ModeChanged(prev, next.Mode, reason)
}

func (l *Loop) finish(turn Turn, outcome Outcome, err error) Turn {
	turn.Outcome = outcome
	turn.Err = err
	turn.FinishedAt = l.opts.Now()

	attrs := []any{
		"turn_id", turn.ID,
		"mode", string(turn.Mode),
		"outcome", string(outcome),
		"duration_ms", turn.FinishedAt.Sub(turn.StartedAt).Milliseconds(),
	}
	if turn.HasTranscript {
		attrs = append(attrs, "transcript_chars", len(turn.Transcript))
	}
	if err != nil {
		attrs = append(attrs, "error", err.Error())
	}

	switch outcome {
	case OutcomeTimeout, OutcomeNoWakeWord:
		l.logger.Debug("turn finished", attrs...)
	case OutcomeNoSpeech:
		l.logger.Info("could not understand audio", attrs...)
	case OutcomeInterrupted:
		l.logger.Info("capture interrupted by shutdown", attrs...)
	case OutcomeRecognitionError:
		l.logger.Warn("speech recognition failed", attrs...)
	case OutcomeCaptureError, OutcomeReasoningError:
		l.logger.Error("turn failed", attrs...)
	default:
		l.logger.Info("turn finished", attrs...)
	}

	l.observer.TurnFinished(turn)
	return turn
}
