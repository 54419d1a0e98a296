package speech

import (
	"encoding/binary"
	"math"
	"time"
)

// Segment is one captured utterance of 16-bit little-endian PCM audio.
type Segment struct {
	PCM        []byte
	SampleRate int
	Channels   int
	StartedAt  time.Time
}

// Duration reports the playback length of the segment.
func (s Segment) Duration() time.Duration {
	return PCMDuration(len(s.PCM), s.SampleRate, s.Channels)
}

// Empty reports whether the segment carries no samples.
func (s Segment) Empty() bool {
	return len(s.PCM) < 2
}

// PCMDuration converts a byte count of s16 PCM into a duration.
func PCMDuration(n int, sampleRate int, channels int) time.Duration {
	if sampleRate <= 0 || channels <= 0 || n <= 0 {
		return 0
	}
	samples := n / (2 * channels)
	return time.Duration(samples) * time.Second / time.Duration(sampleRate)
}

// RMS returns the root-mean-square energy of s16 little-endian PCM.
func RMS(pcm []byte) float64 {
	n := len(pcm) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		v := float64(int16(binary.LittleEndian.Uint16(pcm[i*2 : i*2+2])))
		sum += v * v
	}
	return math.Sqrt(sum / float64(n))
}
