package stt

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"

	"github.com/rbright/parlando/internal/speech"
)

// OpenAI transcribes through the OpenAI audio transcription API.
type OpenAI struct {
	client   oai.Client
	model    string
	language string
}

type openAIConfig struct {
	baseURL    string
	timeout    time.Duration
	maxRetries int
	language   string
}

// OpenAIOption configures an OpenAI transcriber.
type OpenAIOption func(*openAIConfig)

func WithOpenAIBaseURL(url string) OpenAIOption {
	return func(c *openAIConfig) { c.baseURL = url }
}

func WithOpenAITimeout(d time.Duration) OpenAIOption {
	return func(c *openAIConfig) { c.timeout = d }
}

func WithOpenAIMaxRetries(n int) OpenAIOption {
	return func(c *openAIConfig) { c.maxRetries = n }
}

func WithOpenAILanguage(lang string) OpenAIOption {
	return func(c *openAIConfig) { c.language = lang }
}

func NewOpenAI(apiKey string, model string, opts ...OpenAIOption) (*OpenAI, error) {
	if apiKey == "" {
		return nil, errors.New("openai stt: apiKey must not be empty")
	}
	if model == "" {
		model = "whisper-1"
	}

	cfg := &openAIConfig{maxRetries: -1, language: "en"}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{Timeout: cfg.timeout}))
	}
	if cfg.maxRetries >= 0 {
		reqOpts = append(reqOpts, option.WithMaxRetries(cfg.maxRetries))
	}

	return &OpenAI{
		client:   oai.NewClient(reqOpts...),
		model:    model,
		language: cfg.language,
	}, nil
}

func (o *OpenAI) Transcribe(ctx context.Context, seg speech.Segment) (string, error) {
	if seg.Empty() {
		return "", speech.ErrNoSpeech
	}

	wav := speech.EncodeWAV(seg.PCM, seg.SampleRate, seg.Channels)
	params := oai.AudioTranscriptionNewParams{
		File:  oai.File(bytes.NewReader(wav), "audio.wav", "audio/wav"),
		Model: oai.AudioModel(o.model),
	}
	if o.language != "" {
		params.Language = param.NewOpt(o.language)
	}

	resp, err := o.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("%w: openai: transcription: %w", speech.ErrRecognition, err)
	}
	return finish(resp.Text)
}
