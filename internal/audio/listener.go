package audio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/rbright/parlando/internal/speech"
)

// stallTimeout bounds how long Capture waits for the next frame before
// treating the input stream as broken.
const stallTimeout = 2 * time.Second

var ErrStreamClosed = errors.New("audio stream closed")

// FrameSource delivers fixed-size PCM frames. *Stream satisfies it.
type FrameSource interface {
	Frames() <-chan []byte
	Drain() int
}

// ListenerConfig tunes calibration and segmentation.
type ListenerConfig struct {
	Calibration time.Duration
	Detector    DetectorConfig
	// OnSegment, when set, receives every completed utterance.
	OnSegment func(speech.Segment)
	Now       func() time.Time
}

// Listener turns a frame stream into discrete utterances.
type Listener struct {
	logger   *slog.Logger
	source   FrameSource
	cfg      ListenerConfig
	detector *Detector
}

func NewListener(logger *slog.Logger, source FrameSource, cfg ListenerConfig) *Listener {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if cfg.Calibration <= 0 {
		cfg.Calibration = time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Listener{
		logger:   logger,
		source:   source,
		cfg:      cfg,
		detector: NewDetector(cfg.Detector),
	}
}

// Threshold exposes the current energy threshold for diagnostics.
func (l *Listener) Threshold() float64 {
	return l.detector.Threshold()
}

// Calibrate samples ambient noise to set the initial energy threshold.
func (l *Listener) Calibrate(ctx context.Context) error {
	l.source.Drain()

	want := int(l.cfg.Calibration / FrameDuration)
	stall := time.NewTimer(stallTimeout)
	defer stall.Stop()

	for seen := 0; seen < want; seen++ {
		frame, err := l.next(ctx, stall)
		if err != nil {
			return fmt.Errorf("calibrate: %w", err)
		}
		l.detector.Observe(frame)
	}

	l.logger.Debug("ambient noise calibrated", "threshold", l.detector.Threshold())
	return nil
}

// Capture waits up to timeout of audio for speech onset, then records one
// utterance. Every frame consumed counts toward timeout, including bursts
// too short to keep, but an utterance in progress is never cut off.
func (l *Listener) Capture(ctx context.Context, timeout time.Duration) (speech.Segment, error) {
	if dropped := l.source.Drain(); dropped > 0 {
		l.logger.Debug("discarded stale audio", "frames", dropped)
	}

	seg := newSegmenter(l.detector)
	var waited time.Duration

	stall := time.NewTimer(stallTimeout)
	defer stall.Stop()

	for {
		frame, err := l.next(ctx, stall)
		if err != nil {
			return speech.Segment{}, fmt.Errorf("capture audio: %w", err)
		}

		if seg.Push(frame, l.cfg.Now()) {
			out := seg.Segment()
			if l.cfg.OnSegment != nil {
				l.cfg.OnSegment(out)
			}
			return out, nil
		}

		waited += FrameDuration
		if !seg.Started() && waited >= timeout {
			return speech.Segment{}, speech.ErrListenTimeout
		}
	}
}

func (l *Listener) next(ctx context.Context, stall *time.Timer) ([]byte, error) {
	stall.Reset(stallTimeout)
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-stall.C:
		return nil, fmt.Errorf("no audio for %s", stallTimeout)
	case frame, ok := <-l.source.Frames():
		if !ok {
			return nil, ErrStreamClosed
		}
		return frame, nil
	}
}
