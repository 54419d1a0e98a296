package audio

import (
	"math"
	"time"

	"github.com/rbright/parlando/internal/speech"
)

const (
	initialEnergyThreshold = 300
	// Fraction of the previous threshold retained per second of adaptation.
	energyDamping = 0.15
	minPhrase     = 300 * time.Millisecond
	// Silence kept on either side of a trimmed utterance.
	silencePadding = 500 * time.Millisecond
)

// DetectorConfig tunes the energy-based speech detector.
type DetectorConfig struct {
	EnergyRatio float64
	MinEnergy   float64
	Pause       time.Duration
	PhraseLimit time.Duration
}

// Detector tracks an adaptive RMS threshold separating speech from ambient
// noise. It is not safe for concurrent use.
type Detector struct {
	cfg       DetectorConfig
	threshold float64
	damping   float64
}

func NewDetector(cfg DetectorConfig) *Detector {
	if cfg.EnergyRatio < 1 {
		cfg.EnergyRatio = 1.5
	}
	if cfg.Pause <= 0 {
		cfg.Pause = 800 * time.Millisecond
	}
	if cfg.PhraseLimit <= cfg.Pause {
		cfg.PhraseLimit = 15 * time.Second
	}
	return &Detector{
		cfg:       cfg,
		threshold: math.Max(initialEnergyThreshold, cfg.MinEnergy),
		damping:   math.Pow(energyDamping, FrameDuration.Seconds()),
	}
}

// Threshold returns the current speech energy threshold.
func (d *Detector) Threshold() float64 {
	return d.threshold
}

// Observe folds one non-speech frame's energy into the threshold.
func (d *Detector) Observe(frame []byte) {
	target := speech.RMS(frame) * d.cfg.EnergyRatio
	next := d.threshold*d.damping + target*(1-d.damping)
	d.threshold = math.Max(next, d.cfg.MinEnergy)
}

// IsSpeech reports whether the frame's energy exceeds the threshold.
func (d *Detector) IsSpeech(frame []byte) bool {
	return speech.RMS(frame) > d.threshold
}

// segmenter accumulates frames for one utterance.
//
// While waiting it keeps a short preroll of silence and adapts the detector.
// Once speech starts it records until Pause of continuous silence or
// PhraseLimit of audio. Bursts shorter than minPhrase are discarded and the
// segmenter returns to waiting.
type segmenter struct {
	d *Detector

	preroll    [][]byte
	maxPreroll int

	frames    [][]byte
	started   bool
	voiced    time.Duration
	silent    time.Duration
	recorded  time.Duration
	startedAt time.Time
}

func newSegmenter(d *Detector) *segmenter {
	return &segmenter{
		d:          d,
		maxPreroll: int(silencePadding / FrameDuration),
	}
}

// Push consumes one frame and reports whether the utterance is complete.
func (s *segmenter) Push(frame []byte, now time.Time) bool {
	if !s.started {
		if !s.d.IsSpeech(frame) {
			s.d.Observe(frame)
			s.preroll = append(s.preroll, frame)
			if len(s.preroll) > s.maxPreroll {
				s.preroll = s.preroll[1:]
			}
			return false
		}
		s.started = true
		s.startedAt = now.Add(-time.Duration(len(s.preroll)) * FrameDuration)
		s.frames = append(s.frames, s.preroll...)
		s.recorded = time.Duration(len(s.preroll)) * FrameDuration
		s.preroll = nil
	}

	s.frames = append(s.frames, frame)
	s.recorded += FrameDuration
	if s.d.IsSpeech(frame) {
		s.voiced += FrameDuration
		s.silent = 0
	} else {
		s.silent += FrameDuration
	}

	if s.recorded >= s.d.cfg.PhraseLimit {
		return true
	}
	if s.silent < s.d.cfg.Pause {
		return false
	}
	if s.voiced < minPhrase {
		s.reset()
		return false
	}
	return true
}

// Started reports whether speech onset has been seen.
func (s *segmenter) Started() bool {
	return s.started
}

// Segment returns the utterance with trailing silence trimmed to the padding.
func (s *segmenter) Segment() speech.Segment {
	frames := s.frames
	if excess := int((s.silent - silencePadding) / FrameDuration); excess > 0 && excess < len(frames) {
		frames = frames[:len(frames)-excess]
	}

	pcm := make([]byte, 0, len(frames)*FrameBytes)
	for _, f := range frames {
		pcm = append(pcm, f...)
	}
	return speech.Segment{PCM: pcm, SampleRate: SampleRate, Channels: Channels, StartedAt: s.startedAt}
}

func (s *segmenter) reset() {
	keep := s.frames
	if len(keep) > s.maxPreroll {
		keep = keep[len(keep)-s.maxPreroll:]
	}
	*s = segmenter{d: s.d, maxPreroll: s.maxPreroll, preroll: keep}
}
