// Package stt transcribes captured utterances with a remote recognizer.
package stt

import (
	"strings"

	"github.com/rbright/parlando/internal/speech"
	"github.com/rbright/parlando/internal/transcript"
)

// finish normalizes recognizer output. Text with nothing but non-speech
// annotations counts as unintelligible audio.
func finish(raw string) (string, error) {
	text := transcript.Clean(raw)
	if strings.TrimSpace(text) == "" {
		return "", speech.ErrNoSpeech
	}
	return text, nil
}
