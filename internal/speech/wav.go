package speech

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const wavHeaderSize = 44

// EncodeWAV wraps s16 little-endian PCM with a minimal RIFF/WAV header.
func EncodeWAV(pcm []byte, sampleRate int, channels int) []byte {
	if channels <= 0 {
		channels = 1
	}
	const bitsPerSample = 16
	byteRate := sampleRate * channels * (bitsPerSample / 8)
	blockAlign := channels * (bitsPerSample / 8)

	buf := make([]byte, wavHeaderSize+len(pcm))
	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+len(pcm)))
	copy(buf[8:12], "WAVE")
	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(buf[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(buf[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(buf[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(buf[34:36], bitsPerSample)
	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(len(pcm)))
	copy(buf[wavHeaderSize:], pcm)
	return buf
}

// WAVInfo describes decoded s16 PCM audio.
type WAVInfo struct {
	SampleRate int
	Channels   int
	PCM        []byte
}

// DecodeWAV extracts s16 PCM from a RIFF/WAV payload.
//
// Streamed WAV output (for example espeak-ng --stdout) may carry a data chunk
// size of 0 or 0xFFFFFFFF; in that case everything after the header is data.
func DecodeWAV(data []byte) (WAVInfo, error) {
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return WAVInfo{}, errors.New("not a RIFF/WAVE payload")
	}

	r := bytes.NewReader(data[12:])
	var info WAVInfo
	var haveFormat bool
	for {
		var id [4]byte
		if _, err := io.ReadFull(r, id[:]); err != nil {
			return WAVInfo{}, errors.New("wav data chunk not found")
		}
		var size uint32
		if err := binary.Read(r, binary.LittleEndian, &size); err != nil {
			return WAVInfo{}, fmt.Errorf("read wav chunk size: %w", err)
		}

		// Only the data chunk may claim more than is present (streamed output).
		if string(id[:]) != "data" && int64(size) > int64(r.Len()) {
			return WAVInfo{}, fmt.Errorf("wav chunk %q claims %d bytes, %d remain", string(id[:]), size, r.Len())
		}

		switch string(id[:]) {
		case "fmt ":
			if size < 16 {
				return WAVInfo{}, fmt.Errorf("wav fmt chunk too short: %d", size)
			}
			chunk := make([]byte, size)
			if _, err := io.ReadFull(r, chunk); err != nil {
				return WAVInfo{}, fmt.Errorf("read wav fmt chunk: %w", err)
			}
			format := binary.LittleEndian.Uint16(chunk[0:2])
			bits := binary.LittleEndian.Uint16(chunk[14:16])
			if format != 1 || bits != 16 {
				return WAVInfo{}, fmt.Errorf("unsupported wav encoding: format=%d bits=%d", format, bits)
			}
			info.Channels = int(binary.LittleEndian.Uint16(chunk[2:4]))
			info.SampleRate = int(binary.LittleEndian.Uint32(chunk[4:8]))
			haveFormat = true
			if size%2 == 1 {
				_, _ = r.Seek(1, io.SeekCurrent)
			}
		case "data":
			if !haveFormat {
				return WAVInfo{}, errors.New("wav data chunk precedes fmt chunk")
			}
			remaining := r.Len()
			n := int(size)
			if size == 0 || size == 0xFFFFFFFF || n > remaining {
				n = remaining
			}
			info.PCM = make([]byte, n-n%2)
			if _, err := io.ReadFull(r, info.PCM); err != nil {
				return WAVInfo{}, fmt.Errorf("read wav data: %w", err)
			}
			return info, nil
		default:
			if _, err := r.Seek(int64(size)+int64(size%2), io.SeekCurrent); err != nil {
				return WAVInfo{}, fmt.Errorf("skip wav chunk %q: %w", string(id[:]), err)
			}
		}
	}
}
