package session

import (
	"time"

	"github.com/rbright/parlando/internal/fsm"
)

// Outcome classifies how one cycle ended.
type Outcome string

const (
	OutcomeWakeWordMatched   Outcome = "wake_word_matched"
	OutcomeNoWakeWord        Outcome = "no_wake_word"
	OutcomeCommandProcessed  Outcome = "command_processed"
	OutcomeConversationEnded Outcome = "conversation_ended"
	OutcomeNoSpeech          Outcome = "no_speech"
	OutcomeTimeout           Outcome = "timeout"
	OutcomeCaptureError      Outcome = "capture_error"
	OutcomeRecognitionError  Outcome = "recognition_error"
	OutcomeReasoningError    Outcome = "reasoning_error"
	// OutcomeInterrupted is a capture cut short because the loop is
	// shutting down.
	OutcomeInterrupted Outcome = "interrupted"
)

// Failed reports whether the outcome represents a collaborator failure.
func (o Outcome) Failed() bool {
	switch o {
	case OutcomeCaptureError, OutcomeRecognitionError, OutcomeReasoningError:
		return true
	default:
		return false
	}
}

// Timings records time spent in each blocking phase of a cycle.
type Timings struct {
	Capture    time.Duration
	Transcribe time.Duration
	Reason     time.Duration
	Speak      time.Duration
}

// Turn is the ephemeral record of one cycle.
type Turn struct {
	ID            string
	Mode          fsm.Mode
	Transcript    string
	HasTranscript bool
	Outcome       Outcome
	Response      string
	Err           error
	SpeakErr      error
	AudioLength   time.Duration
	Timings       Timings
	StartedAt     time.Time
	FinishedAt    time.Time
}
