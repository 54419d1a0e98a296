// Package speech holds the audio segment type and failure sentinels shared by
// capture, recognition, reasoning, and synthesis adapters.
package speech

import "errors"

var (
	// ErrListenTimeout indicates no speech began within the capture window.
	ErrListenTimeout = errors.New("no speech started before listen timeout")
	// ErrNoSpeech indicates audio was captured but nothing intelligible was recognized.
	ErrNoSpeech = errors.New("no intelligible speech in audio")
	// ErrRecognition indicates the transcription backend failed.
	ErrRecognition = errors.New("speech recognition failed")
	// ErrReasoning indicates the reasoning engine failed or produced unusable output.
	ErrReasoning = errors.New("reasoning engine failed")
)
