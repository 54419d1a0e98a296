package audio

import (
	"encoding/binary"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// frame returns one FrameBytes frame whose RMS equals amplitude.
func frame(amplitude int16) []byte {
	out := make([]byte, FrameBytes)
	for i := 0; i < FrameBytes/2; i++ {
		v := amplitude
		if i%2 == 1 {
			v = -amplitude
		}
		binary.LittleEndian.PutUint16(out[i*2:], uint16(v))
	}
	return out
}

func frames(n int, amplitude int16) [][]byte {
	out := make([][]byte, n)
	for i := range out {
		out[i] = frame(amplitude)
	}
	return out
}

func testDetector() *Detector {
	return NewDetector(DetectorConfig{
		EnergyRatio: 1.5,
		MinEnergy:   50,
		Pause:       200 * time.Millisecond,
		PhraseLimit: 2 * time.Second,
	})
}

func TestDetectorAdaptsTowardAmbientNoise(t *testing.T) {
	d := testDetector()
	require.Equal(t, float64(initialEnergyThreshold), d.Threshold())

	for _, f := range frames(200, 100) {
		d.Observe(f)
	}
	require.InDelta(t, 150, d.Threshold(), 1)
	require.False(t, d.IsSpeech(frame(120)))
	require.True(t, d.IsSpeech(frame(2000)))
}

func TestDetectorRespectsMinimumEnergy(t *testing.T) {
	d := testDetector()
	for _, f := range frames(200, 0) {
		d.Observe(f)
	}
	require.Equal(t, 50.0, d.Threshold())
}

func TestSegmenterEndsAfterPause(t *testing.T) {
	d := testDetector()
	seg := newSegmenter(d)
	now := time.Now()

	for _, f := range frames(5, 10) {
		require.False(t, seg.Push(f, now))
	}
	require.False(t, seg.Started())

	for _, f := range frames(20, 3000) {
		require.False(t, seg.Push(f, now))
	}
	require.True(t, seg.Started())

	done := false
	pushed := 0
	for _, f := range frames(20, 10) {
		pushed++
		if done = seg.Push(f, now); done {
			break
		}
	}
	require.True(t, done)
	require.Equal(t, 10, pushed)

	out := seg.Segment()
	require.Equal(t, SampleRate, out.SampleRate)
	require.Equal(t, (5+20+10)*FrameBytes, len(out.PCM))
	require.Equal(t, now.Add(-5*FrameDuration), out.StartedAt)
}

func TestSegmenterDiscardsShortBursts(t *testing.T) {
	d := testDetector()
	seg := newSegmenter(d)
	now := time.Now()

	for _, f := range frames(3, 3000) {
		require.False(t, seg.Push(f, now))
	}
	for _, f := range frames(10, 10) {
		require.False(t, seg.Push(f, now))
	}
	require.False(t, seg.Started())
}

func TestSegmenterStopsAtPhraseLimit(t *testing.T) {
	d := testDetector()
	seg := newSegmenter(d)
	now := time.Now()

	pushed := 0
	for _, f := range frames(500, 3000) {
		pushed++
		if seg.Push(f, now) {
			break
		}
	}
	require.Equal(t, int(2*time.Second/FrameDuration), pushed)
}

func TestSegmentTrimsLongTrailingSilence(t *testing.T) {
	d := NewDetector(DetectorConfig{EnergyRatio: 1.5, Pause: 800 * time.Millisecond, PhraseLimit: 5 * time.Second})
	seg := newSegmenter(d)
	now := time.Now()

	for _, f := range frames(20, 3000) {
		seg.Push(f, now)
	}
	for _, f := range frames(40, 0) {
		if seg.Push(f, now) {
			break
		}
	}

	out := seg.Segment()
	padding := int(silencePadding / FrameDuration)
	require.Equal(t, (20+padding)*FrameBytes, len(out.PCM))
}
