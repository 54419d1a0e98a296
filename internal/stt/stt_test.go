package stt

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rbright/parlando/internal/speech"
	"github.com/stretchr/testify/require"
)

func segment() speech.Segment {
	return speech.Segment{PCM: make([]byte, 3200), SampleRate: 16000, Channels: 1}
}

func newWhisperServer(t *testing.T, status int, body any, calls *atomic.Int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/inference" {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		if calls != nil {
			calls.Add(1)
		}

		file, header, err := r.FormFile("file")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		defer file.Close()
		data, _ := io.ReadAll(file)
		if header.Filename != "audio.wav" || !strings.HasPrefix(string(data), "RIFF") {
			http.Error(w, "bad upload", http.StatusBadRequest)
			return
		}
		if r.FormValue("language") != "en" {
			http.Error(w, "missing language", http.StatusBadRequest)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}))
}

func TestWhisperTranscribeReturnsCleanText(t *testing.T) {
	var calls atomic.Int32
	srv := newWhisperServer(t, http.StatusOK, map[string]string{"text": "  Hey Jarvis. [BLANK_AUDIO]\n"}, &calls)
	defer srv.Close()

	w, err := NewWhisper(srv.URL + "/")
	require.NoError(t, err)
	require.Equal(t, srv.URL+"/inference", w.Endpoint())

	text, err := w.Transcribe(context.Background(), segment())
	require.NoError(t, err)
	require.Equal(t, "Hey Jarvis.", text)
	require.Equal(t, int32(1), calls.Load())
}

func TestWhisperAnnotationOnlyIsNoSpeech(t *testing.T) {
	srv := newWhisperServer(t, http.StatusOK, map[string]string{"text": "[BLANK_AUDIO] (wind blowing)"}, nil)
	defer srv.Close()

	w, err := NewWhisper(srv.URL)
	require.NoError(t, err)

	_, err = w.Transcribe(context.Background(), segment())
	require.ErrorIs(t, err, speech.ErrNoSpeech)
}

func TestWhisperServerErrorIsRecognitionError(t *testing.T) {
	srv := newWhisperServer(t, http.StatusInternalServerError, map[string]string{"error": "model not loaded"}, nil)
	defer srv.Close()

	w, err := NewWhisper(srv.URL)
	require.NoError(t, err)

	_, err = w.Transcribe(context.Background(), segment())
	require.ErrorIs(t, err, speech.ErrRecognition)
	require.Contains(t, err.Error(), "HTTP 500")
}

func TestWhisperErrorFieldIsRecognitionError(t *testing.T) {
	srv := newWhisperServer(t, http.StatusOK, map[string]string{"error": "failed to read WAV"}, nil)
	defer srv.Close()

	w, err := NewWhisper(srv.URL)
	require.NoError(t, err)

	_, err = w.Transcribe(context.Background(), segment())
	require.ErrorIs(t, err, speech.ErrRecognition)
	require.Contains(t, err.Error(), "failed to read WAV")
}

func TestWhisperUnreachableIsRecognitionError(t *testing.T) {
	w, err := NewWhisper("http://127.0.0.1:1", WithWhisperHTTPClient(&http.Client{Timeout: time.Second}))
	require.NoError(t, err)

	_, err = w.Transcribe(context.Background(), segment())
	require.ErrorIs(t, err, speech.ErrRecognition)
}

func TestWhisperEmptySegmentSkipsRequest(t *testing.T) {
	var calls atomic.Int32
	srv := newWhisperServer(t, http.StatusOK, map[string]string{"text": "hi"}, &calls)
	defer srv.Close()

	w, err := NewWhisper(srv.URL)
	require.NoError(t, err)

	_, err = w.Transcribe(context.Background(), speech.Segment{})
	require.ErrorIs(t, err, speech.ErrNoSpeech)
	require.Zero(t, calls.Load())
}

func TestNewWhisperRejectsEmptyURL(t *testing.T) {
	_, err := NewWhisper("  ")
	require.Error(t, err)
}

func newOpenAIServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || !strings.HasSuffix(r.URL.Path, "/audio/transcriptions") {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		if r.Header.Get("Authorization") != "Bearer sk-test" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		if r.FormValue("model") != "whisper-1" {
			http.Error(w, "bad model", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
}

func TestOpenAITranscribe(t *testing.T) {
	srv := newOpenAIServer(t, http.StatusOK, `{"text":"What time is it?"}`)
	defer srv.Close()

	o, err := NewOpenAI("sk-test", "", WithOpenAIBaseURL(srv.URL), WithOpenAIMaxRetries(0))
	require.NoError(t, err)

	text, err := o.Transcribe(context.Background(), segment())
	require.NoError(t, err)
	require.Equal(t, "What time is it?", text)
}

func TestOpenAIFailureIsRecognitionError(t *testing.T) {
	srv := newOpenAIServer(t, http.StatusInternalServerError, `{"error":{"message":"boom"}}`)
	defer srv.Close()

	o, err := NewOpenAI("sk-test", "whisper-1", WithOpenAIBaseURL(srv.URL), WithOpenAIMaxRetries(0))
	require.NoError(t, err)

	_, err = o.Transcribe(context.Background(), segment())
	require.ErrorIs(t, err, speech.ErrRecognition)
}

func TestOpenAIEmptyTextIsNoSpeech(t *testing.T) {
	srv := newOpenAIServer(t, http.StatusOK, `{"text":"   "}`)
	defer srv.Close()

	o, err := NewOpenAI("sk-test", "whisper-1", WithOpenAIBaseURL(srv.URL), WithOpenAIMaxRetries(0))
	require.NoError(t, err)

	_, err = o.Transcribe(context.Background(), segment())
	require.ErrorIs(t, err, speech.ErrNoSpeech)
}

func TestNewOpenAIRequiresKey(t *testing.T) {
	_, err := NewOpenAI("", "whisper-1")
	require.Error(t, err)
}
