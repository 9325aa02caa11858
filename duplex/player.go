package duplex

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/bosley/parley/audio"
	"github.com/youpy/go-wav"
)

// ReadWAV loads the first channel of a 16-bit WAV file as PCM16 bytes.
func ReadWAV(filename string) (pcm []byte, rate int, err error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to open audio file: %w", err)
	}
	defer file.Close()

	reader := wav.NewReader(file)
	format, err := reader.Format()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read wav format: %w", err)
	}
	if format.BitsPerSample != audio.BitsPerSample {
		return nil, 0, fmt.Errorf("unsupported bits per sample %d", format.BitsPerSample)
	}

	var frame audio.Frame
	for {
		samples, err := reader.ReadSamples(audio.FrameSize)
		for _, s := range samples {
			frame = append(frame, int16(reader.IntValue(s, 0)))
		}
		if err != nil || len(samples) == 0 {
			break
		}
	}
	return frame.Bytes(), int(format.SampleRate), nil
}

// PlayFile plays a WAV file through the playback pipeline of a fresh duplex.
// It is a speaker check; the input stream is opened but not read.
func PlayFile(ctx context.Context, filename string, inputID, outputID int, opts ...Option) (err error) {
	pcm, rate, err := ReadWAV(filename)
	if err != nil {
		return err
	}

	cfg := DefaultConfig()
	cfg.SampleRate = rate
	d := New(cfg, opts...)
	if err := d.Start(inputID, outputID); err != nil {
		return err
	}
	defer func() {
		if serr := d.Stop(); serr != nil {
			err = errors.Join(err, fmt.Errorf("failed to stop audio: %w", serr))
		}
	}()

	for off := 0; off < len(pcm); off += cfg.WriteChunk {
		end := min(off+cfg.WriteChunk, len(pcm))
		d.Enqueue(pcm[off:end])
	}

	length := time.Duration(audio.Seconds(len(pcm), rate) * float64(time.Second))
	select {
	case <-time.After(length):
	case <-ctx.Done():
	}
	return nil
}
