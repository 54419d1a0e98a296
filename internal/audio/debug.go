package audio

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/rbright/parlando/internal/speech"
)

// Dumper writes captured utterances as WAV files for offline inspection.
type Dumper struct {
	Dir    string
	Logger *slog.Logger
	Now    func() time.Time
}

// Write stores seg under Dir. Failures are logged, never returned.
func (d Dumper) Write(seg speech.Segment) {
	if seg.Empty() {
		return
	}
	path, err := d.write(seg)
	if err != nil {
		if d.Logger != nil {
			d.Logger.Warn("unable to write debug audio dump", "error", err.Error())
		}
		return
	}
	if d.Logger != nil {
		d.Logger.Debug("debug audio dump written", "path", path, "duration_ms", seg.Duration().Milliseconds())
	}
}

func (d Dumper) write(seg speech.Segment) (string, error) {
	if err := os.MkdirAll(d.Dir, 0o700); err != nil {
		return "", fmt.Errorf("create debug dir: %w", err)
	}

	now := time.Now
	if d.Now != nil {
		now = d.Now
	}
	path := filepath.Join(d.Dir, fmt.Sprintf("audio-%s.wav", now().Format("20060102-150405.000")))
	data := speech.EncodeWAV(seg.PCM, seg.SampleRate, seg.Channels)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", fmt.Errorf("write debug audio %q: %w", path, err)
	}
	return path, nil
}
