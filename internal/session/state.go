package session

import (
	"time"

	"github.com/rbright/parlando/internal/fsm"
	"github.com/rbright/parlando/internal/transcript"
	"github.com/rbright/parlando/internal/wake"
)

// State is the loop-owned session state.
//
// LastInteraction is nil while idle until an interaction happens; it is set on
// wake and refreshed by every successfully answered command.
type State struct {
	Mode            fsm.Mode
	LastInteraction *time.Time
}

// InitialState is idle with no recorded interaction.
func InitialState() State {
	return State{Mode: fsm.ModeIdle}
}

// Expire reverts conversation mode to idle once more than timeout has elapsed
// since the last interaction. The check is lazy: it only runs at cycle start,
// so reversion can lag timeout by up to one listen window.
func (s State) Expire(now time.Time, timeout time.Duration) (State, bool) {
	if s.Mode != fsm.ModeConversation || s.LastInteraction == nil {
		return s, false
	}
	if now.Sub(*s.LastInteraction) <= timeout {
		return s, false
	}
	next, err := fsm.Transition(s.Mode, fsm.EventTimeout)
	if err != nil {
		return s, false
	}
	return State{Mode: next}, true
}

// Apply returns the state after an effect ran. succeeded only matters for
// EffectForward: an unanswered command leaves LastInteraction untouched so
// conversation mode still times out under sustained engine failure.
func (s State) Apply(effect Effect, succeeded bool, now time.Time) State {
	switch effect {
	case EffectAcknowledge:
		next, err := fsm.Transition(s.Mode, fsm.EventWake)
		if err != nil {
			return s
		}
		return State{Mode: next, LastInteraction: timePtr(now)}
	case EffectForward:
		if !succeeded {
			return s
		}
		return State{Mode: s.Mode, LastInteraction: timePtr(now)}
	case EffectEndConversation:
		next, err := fsm.Transition(s.Mode, fsm.EventExit)
		if err != nil {
			return s
		}
		return State{Mode: next}
	default:
		return s
	}
}

// Effect is the single externally observable action chosen for a transcript.
type Effect int

const (
	EffectIgnore Effect = iota
	EffectAcknowledge
	EffectForward
	EffectEndConversation
)

func (e Effect) String() string {
	switch e {
	case EffectIgnore:
		return "ignore"
	case EffectAcknowledge:
		return "acknowledge"
	case EffectForward:
		return "forward"
	case EffectEndConversation:
		return "end_conversation"
	default:
		return "unknown"
	}
}

// Router maps (state, transcript) to an Effect without side effects.
type Router struct {
	Matcher     wake.Matcher
	ExitPhrases []string
}

func (r Router) Route(s State, text string) Effect {
	switch s.Mode {
	case fsm.ModeIdle:
		if r.Matcher != nil && r.Matcher.Match(text) {
			return EffectAcknowledge
		}
		return EffectIgnore
	case fsm.ModeConversation:
		if r.isExitPhrase(text) {
			return EffectEndConversation
		}
		return EffectForward
	default:
		return EffectIgnore
	}
}

func (r Router) isExitPhrase(text string) bool {
	folded := transcript.Fold(text)
	if folded == "" {
		return false
	}
	for _, phrase := range r.ExitPhrases {
		if p := transcript.Fold(phrase); p != "" && p == folded {
			return true
		}
	}
	return false
}

func timePtr(t time.Time) *time.Time {
	return &t
}
