package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/rbright/parlando/internal/speech"
	"github.com/rbright/parlando/internal/version"
)

// Whisper posts WAV audio to a whisper.cpp server's /inference endpoint.
type Whisper struct {
	serverURL  string
	model      string
	language   string
	httpClient *http.Client
}

// WhisperOption configures a Whisper transcriber.
type WhisperOption func(*Whisper)

func WithWhisperModel(model string) WhisperOption {
	return func(w *Whisper) { w.model = model }
}

func WithWhisperLanguage(lang string) WhisperOption {
	return func(w *Whisper) { w.language = lang }
}

func WithWhisperHTTPClient(client *http.Client) WhisperOption {
	return func(w *Whisper) { w.httpClient = client }
}

func NewWhisper(serverURL string, opts ...WhisperOption) (*Whisper, error) {
	serverURL = strings.TrimRight(strings.TrimSpace(serverURL), "/")
	if serverURL == "" {
		return nil, errors.New("whisper: server URL must not be empty")
	}
	w := &Whisper{
		serverURL:  serverURL,
		language:   "en",
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(w)
	}
	return w, nil
}

// Endpoint returns the inference URL used for requests.
func (w *Whisper) Endpoint() string {
	return w.serverURL + "/inference"
}

func (w *Whisper) Transcribe(ctx context.Context, seg speech.Segment) (string, error) {
	if seg.Empty() {
		return "", speech.ErrNoSpeech
	}

	body, contentType, err := w.form(seg)
	if err != nil {
		return "", fmt.Errorf("%w: whisper: %w", speech.ErrRecognition, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.Endpoint(), body)
	if err != nil {
		return "", fmt.Errorf("%w: whisper: create request: %w", speech.ErrRecognition, err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: whisper: http request: %w", speech.ErrRecognition, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("%w: whisper: read response body: %w", speech.ErrRecognition, err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: whisper: server returned HTTP %d: %s", speech.ErrRecognition, resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var result struct {
		Text  string `json:"text"`
		Error string `json:"error"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return "", fmt.Errorf("%w: whisper: parse JSON response: %w", speech.ErrRecognition, err)
	}
	if result.Error != "" {
		return "", fmt.Errorf("%w: whisper: %s", speech.ErrRecognition, result.Error)
	}
	return finish(result.Text)
}

func (w *Whisper) form(seg speech.Segment) (io.Reader, string, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	fw, err := mw.CreateFormFile("file", "audio.wav")
	if err != nil {
		return nil, "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := fw.Write(speech.EncodeWAV(seg.PCM, seg.SampleRate, seg.Channels)); err != nil {
		return nil, "", fmt.Errorf("write wav data: %w", err)
	}

	fields := [][2]string{
		{"response_format", "json"},
		{"temperature", "0.0"},
		{"language", w.language},
		{"model", w.model},
	}
	for _, f := range fields {
		if f[1] == "" {
			continue
		}
		if err := mw.WriteField(f[0], f[1]); err != nil {
			return nil, "", fmt.Errorf("write %s field: %w", f[0], err)
		}
	}

	if err := mw.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart writer: %w", err)
	}
	return &body, mw.FormDataContentType(), nil
}
