// Package fsm defines the wake-word / conversation mode machine.
package fsm

import "fmt"

type Mode string

type Event string

const (
	ModeIdle         Mode = "idle"
	ModeConversation Mode = "conversation"
)

const (
	EventWake    Event = "wake"
	EventTimeout Event = "timeout"
	EventExit    Event = "exit"
)

func Transition(current Mode, event Event) (Mode, error) {
	switch current {
	case ModeIdle:
		switch event {
		case EventWake:
			return ModeConversation, nil
		default:
			return current, invalidTransition(current, event)
		}
	case ModeConversation:
		switch event {
		case EventTimeout, EventExit:
			return ModeIdle, nil
		default:
			return current, invalidTransition(current, event)
		}
	default:
		return current, fmt.Errorf("unknown mode %q", current)
	}
}

func invalidTransition(mode Mode, event Event) error {
	return fmt.Errorf("invalid transition: %s --(%s)--> ?", mode, event)
}
