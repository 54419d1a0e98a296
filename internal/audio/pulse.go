// Package audio handles device discovery, selection, PCM capture, and
// utterance segmentation.
package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jfreymuth/pulse"
	pulseproto "github.com/jfreymuth/pulse/proto"
)

const (
	SampleRate    = 16000
	Channels      = 1
	FrameBytes    = 640 // 20ms @ 16kHz mono s16
	FrameDuration = 20 * time.Millisecond

	// Frames queued while nobody is listening; older audio is dropped.
	frameBacklog = 256
)

// Device describes one Pulse input source surfaced to parlando.
type Device struct {
	Index       int
	ID          string
	Description string
	State       string
	Available   bool
	Muted       bool
	Default     bool
}

// String formats device metadata for logs.
func (d Device) String() string {
	description := strings.TrimSpace(d.Description)
	id := strings.TrimSpace(d.ID)
	if description == "" {
		return id
	}
	if id == "" {
		return description
	}
	return fmt.Sprintf("%s (%s)", description, id)
}

// Preference expresses how the operator asked for an input source.
// Index >= 0 wins over Input; an empty Input means the server default.
type Preference struct {
	Index int
	Input string
}

// Selection is the resolved capture source plus optional fallback warning context.
type Selection struct {
	Device   Device
	Warning  string
	Fallback bool
}

func newClient() (*pulse.Client, error) {
	client, err := pulse.NewClient(
		pulse.ClientApplicationName("parlando"),
		pulse.ClientApplicationIconName("audio-input-microphone"),
	)
	if err != nil {
		return nil, fmt.Errorf("connect pulse server: %w", err)
	}
	return client, nil
}

// ListDevices returns Pulse input sources in server order with stable indices.
func ListDevices(_ context.Context) ([]Device, error) {
	client, err := newClient()
	if err != nil {
		return nil, err
	}
	defer client.Close()

	defaultSource, err := client.DefaultSource()
	if err != nil {
		return nil, fmt.Errorf("read default source: %w", err)
	}
	defaultID := defaultSource.ID()

	var sourceInfos pulseproto.GetSourceInfoListReply
	if err := client.RawRequest(&pulseproto.GetSourceInfoList{}, &sourceInfos); err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}

	devices := make([]Device, 0, len(sourceInfos))
	for _, source := range sourceInfos {
		if source == nil {
			continue
		}
		devices = append(devices, Device{
			Index:       len(devices),
			ID:          source.SourceName,
			Description: source.Device,
			State:       sourceStateString(source.State),
			Available:   sourceAvailable(source),
			Muted:       source.Mute,
			Default:     source.SourceName == defaultID,
		})
	}
	return devices, nil
}

// SelectDevice resolves an input preference against live devices.
func SelectDevice(ctx context.Context, pref Preference) (Selection, error) {
	devices, err := ListDevices(ctx)
	if err != nil {
		return Selection{}, err
	}
	return selectDeviceFromList(devices, pref)
}

// selectDeviceFromList applies selection policy to a pre-fetched device list.
func selectDeviceFromList(devices []Device, pref Preference) (Selection, error) {
	if len(devices) == 0 {
		return Selection{}, errors.New("no audio input devices found")
	}

	var defaultDevice *Device
	for i := range devices {
		if devices[i].Default {
			defaultDevice = &devices[i]
			break
		}
	}

	input := strings.TrimSpace(strings.ToLower(pref.Input))

	var primary *Device
	switch {
	case pref.Index >= 0:
		if pref.Index >= len(devices) {
			return Selection{}, fmt.Errorf("microphone index %d out of range (%d devices; see `parlando devices`)", pref.Index, len(devices))
		}
		primary = &devices[pref.Index]
	case input != "" && input != "default":
		for i := range devices {
			if deviceMatches(devices[i], input) {
				primary = &devices[i]
				break
			}
		}
		if primary == nil {
			return Selection{}, fmt.Errorf("audio.input %q did not match any device", input)
		}
	default:
		if defaultDevice == nil {
			return Selection{}, errors.New("default audio source is unavailable")
		}
		primary = defaultDevice
	}

	if primary.Available && !primary.Muted {
		return Selection{Device: *primary}, nil
	}

	reason := "unavailable"
	if primary.Muted {
		reason = "muted"
	}

	if defaultDevice == nil || defaultDevice.ID == primary.ID {
		return Selection{}, fmt.Errorf("audio input %q is %s and no usable fallback exists", primary.ID, reason)
	}
	if !defaultDevice.Available {
		return Selection{}, fmt.Errorf("audio input %q is %s and default %q is not available", primary.ID, reason, defaultDevice.ID)
	}
	if defaultDevice.Muted {
		return Selection{}, fmt.Errorf("audio input %q is %s and default %q is muted", primary.ID, reason, defaultDevice.ID)
	}

	return Selection{
		Device:   *defaultDevice,
		Warning:  fmt.Sprintf("audio input %q is %s; falling back to %q", primary.ID, reason, defaultDevice.ID),
		Fallback: true,
	}, nil
}

// deviceMatches reports whether a search term matches a device id or description.
func deviceMatches(device Device, term string) bool {
	if term == "" {
		return false
	}
	id := strings.ToLower(device.ID)
	desc := strings.ToLower(device.Description)
	return strings.Contains(id, term) || strings.Contains(desc, term)
}

// Stream is a long-lived 16kHz mono s16 record stream cut into fixed frames.
//
// The Pulse callback never blocks: when the consumer falls behind, new frames
// are dropped and counted. Consumers call Drain before listening so stale
// audio recorded while the agent was speaking is discarded.
type Stream struct {
	device Device

	client *pulse.Client
	stream *pulse.RecordStream

	frames chan []byte
	stopCh chan struct{}

	mu      sync.Mutex
	pending []byte
	stopped bool

	inflight sync.WaitGroup
	bytes    atomic.Int64
	dropped  atomic.Int64
}

// OpenStream creates and starts a record stream on the selected device.
func OpenStream(ctx context.Context, selected Device) (*Stream, error) {
	client, err := newClient()
	if err != nil {
		return nil, err
	}

	source, err := client.SourceByID(selected.ID)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("resolve source %q: %w", selected.ID, err)
	}

	s := newStream(selected)
	s.client = client

	writer := pulse.NewWriter(writerFunc(s.onPCM), pulseproto.FormatInt16LE)
	stream, err := client.NewRecord(
		writer,
		pulse.RecordSource(source),
		pulse.RecordMono,
		pulse.RecordSampleRate(SampleRate),
		pulse.RecordBufferFragmentSize(FrameBytes),
		pulse.RecordMediaName("parlando listening"),
	)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("create pulse record stream: %w", err)
	}

	s.stream = stream
	stream.Start()

	go func() {
		<-ctx.Done()
		_ = s.Stop()
	}()

	return s, nil
}

func newStream(device Device) *Stream {
	return &Stream{
		device: device,
		frames: make(chan []byte, frameBacklog),
		stopCh: make(chan struct{}),
	}
}

// Device returns capture metadata for logging and diagnostics.
func (s *Stream) Device() Device {
	return s.device
}

// Frames returns the PCM stream as FrameBytes slices. It closes on Stop.
func (s *Stream) Frames() <-chan []byte {
	return s.frames
}

// Drain discards queued frames and reports how many were dropped.
func (s *Stream) Drain() int {
	n := 0
	for {
		select {
		case _, ok := <-s.frames:
			if !ok {
				return n
			}
			n++
		default:
			return n
		}
	}
}

// BytesCaptured reports total bytes accepted from Pulse.
func (s *Stream) BytesCaptured() int64 {
	return s.bytes.Load()
}

// Dropped reports frames discarded because the backlog was full.
func (s *Stream) Dropped() int64 {
	return s.dropped.Load()
}

// Stop halts the stream and closes Frames exactly once.
func (s *Stream) Stop() error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	close(s.stopCh)
	s.mu.Unlock()

	if s.stream != nil {
		s.stream.Stop()
		s.stream.Close()
	}
	if s.client != nil {
		s.client.Close()
	}

	s.inflight.Wait()

	s.mu.Lock()
	s.pending = nil
	s.mu.Unlock()

	close(s.frames)
	return nil
}

// Close is a convenience alias for Stop.
func (s *Stream) Close() {
	_ = s.Stop()
}

// onPCM receives raw Pulse buffers and emits FrameBytes slices to s.frames.
func (s *Stream) onPCM(buffer []byte) (int, error) {
	if len(buffer) == 0 {
		return 0, nil
	}

	select {
	case <-s.stopCh:
		return 0, io.EOF
	default:
	}

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return 0, io.EOF
	}
	// Guard Add under the same mutex as s.stopped to avoid Add/Wait races.
	s.inflight.Add(1)

	s.pending = append(s.pending, buffer...)
	frames := make([][]byte, 0, len(s.pending)/FrameBytes)
	for len(s.pending) >= FrameBytes {
		frame := make([]byte, FrameBytes)
		copy(frame, s.pending[:FrameBytes])
		s.pending = s.pending[FrameBytes:]
		frames = append(frames, frame)
	}
	s.mu.Unlock()
	defer s.inflight.Done()

	s.bytes.Add(int64(len(buffer)))

	for _, frame := range frames {
		select {
		case s.frames <- frame:
		default:
			s.dropped.Add(1)
		}
	}

	return len(buffer), nil
}

// writerFunc adapts a function to io.Writer for pulse.NewWriter.
type writerFunc func([]byte) (int, error)

func (f writerFunc) Write(b []byte) (int, error) {
	return f(b)
}

// sourceStateString maps Pulse source state constants to human-readable values.
func sourceStateString(state uint32) string {
	switch state {
	case 0:
		return "running"
	case 1:
		return "idle"
	case 2:
		return "suspended"
	default:
		return fmt.Sprintf("unknown(%d)", state)
	}
}

// sourceAvailable maps Pulse source port availability to a simple boolean.
func sourceAvailable(source *pulseproto.GetSourceInfoReply) bool {
	if source == nil {
		return false
	}
	if len(source.Ports) == 0 {
		return true
	}
	for _, port := range source.Ports {
		if port.Name != source.ActivePortName {
			continue
		}
		// PulseAudio values: unknown=0, no=1, yes=2.
		return port.Available == 0 || port.Available == 2
	}
	return true
}
