package audio

import (
	"encoding/binary"
	"math"
)

const (
	SampleRate    = 24000 // Rate expected by the realtime model for pcm16
	Channels      = 1     // Mono audio
	BitsPerSample = 16    // Using int16 for samples
	FrameSize     = 512   // Samples per captured frame

	// WriteChunkSize is the number of bytes handed to the output device per write.
	WriteChunkSize = 4096

	// GateThreshold is the mean normalised magnitude a frame must exceed to be
	// retained for evaluation.
	GateThreshold = 0.008
)

// Frame is one block of mono 16-bit PCM samples.
type Frame []int16

// Bytes encodes the frame as little-endian PCM16.
func (f Frame) Bytes() []byte {
	out := make([]byte, len(f)*2)
	for i, sample := range f {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(sample))
	}
	return out
}

// FrameFromBytes decodes little-endian PCM16. A trailing odd byte is ignored.
func FrameFromBytes(pcm []byte) Frame {
	f := make(Frame, len(pcm)/2)
	for i := range f {
		f[i] = int16(binary.LittleEndian.Uint16(pcm[i*2:]))
	}
	return f
}

// Energy returns the mean magnitude of the frame with samples normalised to [-1, 1].
func (f Frame) Energy() float64 {
	if len(f) == 0 {
		return 0
	}
	var total float64
	for _, sample := range f {
		total += math.Abs(float64(sample) / 32768.0)
	}
	return total / float64(len(f))
}

// Seconds reports how much audio a PCM16 byte count represents at rate.
func Seconds(byteCount int, rate int) float64 {
	if rate <= 0 {
		return 0
	}
	return float64(byteCount) / float64(rate*Channels*BitsPerSample/8)
}
