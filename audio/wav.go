package audio

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/youpy/go-wav"
)

// EncodeWAV writes pcm (little-endian PCM16 mono) to w as a WAV stream.
func EncodeWAV(w io.Writer, pcm []byte, rate int) error {
	frame := FrameFromBytes(pcm)
	samples := make([]wav.Sample, len(frame))
	for i, s := range frame {
		samples[i].Values[0] = int(s)
	}

	writer := wav.NewWriter(w, uint32(len(samples)), Channels, uint32(rate), BitsPerSample)
	if err := writer.WriteSamples(samples); err != nil {
		return fmt.Errorf("failed to write samples: %w", err)
	}
	return nil
}

// WriteWAV creates path and stores pcm in it.
func WriteWAV(path string, pcm []byte, rate int) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create wav file: %w", err)
	}
	return writeAndClose(file, pcm, rate)
}

// writeAndClose encodes pcm into w and closes it. A close failure is reported
// since it can hide an incomplete final write.
func writeAndClose(w io.WriteCloser, pcm []byte, rate int) error {
	err := EncodeWAV(w, pcm, rate)
	if cerr := w.Close(); cerr != nil && err == nil {
		err = fmt.Errorf("failed to close wav file: %w", cerr)
	}
	return err
}

// RecordingPath returns recordings/<YYYYMMDD>/<sessionID>/<prefix>_<HHMMSS>.wav,
// creating the directories as needed.
func RecordingPath(root, sessionID, prefix string, now time.Time) (string, error) {
	dir := filepath.Join(root, now.Format("20060102"), sessionID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create session directory: %w", err)
	}
	filename := fmt.Sprintf("%s_%s.wav", prefix, now.Format("150405"))
	return filepath.Join(dir, filename), nil
}
