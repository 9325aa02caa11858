package duplex

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/bosley/parley/audio"
	"github.com/gordonklaus/portaudio"
)

const channels = 1

// DeviceInfo describes one host audio device.
type DeviceInfo struct {
	Index             int
	Name              string
	MaxInputChannels  int
	MaxOutputChannels int
	DefaultSampleRate float64
}

// ListDevices returns every device PortAudio can see.
func ListDevices() ([]DeviceInfo, error) {
	err := portaudio.Initialize()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize PortAudio: %w", err)
	}
	defer portaudio.Terminate()

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to get devices: %w", err)
	}

	out := make([]DeviceInfo, 0, len(devices))
	for i, device := range devices {
		out = append(out, DeviceInfo{
			Index:             i,
			Name:              device.Name,
			MaxInputChannels:  device.MaxInputChannels,
			MaxOutputChannels: device.MaxOutputChannels,
			DefaultSampleRate: device.DefaultSampleRate,
		})
	}
	return out, nil
}

// portaudioDevice uses blocking read/write streams.
type portaudioDevice struct {
	input  *portaudio.Stream
	output *portaudio.Stream
	in     []int16
	out    []int16
}

// OpenPortAudio opens a blocking input and output stream on the given devices.
func OpenPortAudio(cfg Config, inputID, outputID int) (Device, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize PortAudio: %w", err)
	}

	d := &portaudioDevice{
		in:  make([]int16, cfg.FrameSize),
		out: make([]int16, cfg.FrameSize),
	}
	if err := d.open(cfg, inputID, outputID); err != nil {
		d.CloseInput()
		d.CloseOutput()
		portaudio.Terminate()
		return nil, err
	}
	return d, nil
}

func (d *portaudioDevice) open(cfg Config, inputID, outputID int) error {
	inDev, err := pickDevice(inputID, true)
	if err != nil {
		return err
	}
	outDev, err := pickDevice(outputID, false)
	if err != nil {
		return err
	}

	slog.Info("Using audio devices",
		"input", inDev.Name,
		"output", outDev.Name,
		"sampleRate", cfg.SampleRate)

	inputParams := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   inDev,
			Channels: channels,
			Latency:  inDev.DefaultLowInputLatency,
		},
		SampleRate:      float64(cfg.SampleRate),
		FramesPerBuffer: cfg.FrameSize,
	}
	d.input, err = portaudio.OpenStream(inputParams, d.in)
	if err != nil {
		return fmt.Errorf("failed to open input stream: %w", err)
	}
	if err := d.input.Start(); err != nil {
		return fmt.Errorf("failed to start input stream: %w", err)
	}

	outputParams := portaudio.StreamParameters{
		Output: portaudio.StreamDeviceParameters{
			Device:   outDev,
			Channels: channels,
			Latency:  outDev.DefaultLowOutputLatency,
		},
		SampleRate:      float64(cfg.SampleRate),
		FramesPerBuffer: cfg.FrameSize,
	}
	d.output, err = portaudio.OpenStream(outputParams, d.out)
	if err != nil {
		return fmt.Errorf("failed to open output stream: %w", err)
	}
	if err := d.output.Start(); err != nil {
		return fmt.Errorf("failed to start output stream: %w", err)
	}
	return nil
}

func pickDevice(id int, input bool) (*portaudio.DeviceInfo, error) {
	if id < 0 {
		if input {
			return portaudio.DefaultInputDevice()
		}
		return portaudio.DefaultOutputDevice()
	}

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to get audio devices: %w", err)
	}
	if id >= len(devices) {
		return nil, fmt.Errorf("invalid device ID %d", id)
	}

	device := devices[id]
	if input && device.MaxInputChannels == 0 {
		return nil, fmt.Errorf("device %d (%s) is not an input device", id, device.Name)
	}
	if !input && device.MaxOutputChannels == 0 {
		return nil, fmt.Errorf("device %d (%s) is not an output device", id, device.Name)
	}
	return device, nil
}

func (d *portaudioDevice) Read(frame []int16) error {
	if err := d.input.Read(); err != nil {
		return err
	}
	copy(frame, d.in)
	return nil
}

// Write plays pcm in stream-buffer sized pieces, padding the last with silence.
func (d *portaudioDevice) Write(pcm []byte) error {
	if d.output == nil {
		return errors.New("output stream closed")
	}
	samples := audio.FrameFromBytes(pcm)
	for off := 0; off < len(samples); off += len(d.out) {
		n := copy(d.out, samples[off:])
		clear(d.out[n:])
		if err := d.output.Write(); err != nil {
			return err
		}
	}
	return nil
}

func (d *portaudioDevice) CloseInput() error {
	if d.input == nil {
		return nil
	}
	stream := d.input
	d.input = nil
	return closeStream(stream)
}

func (d *portaudioDevice) CloseOutput() error {
	if d.output == nil {
		return nil
	}
	stream := d.output
	d.output = nil
	return closeStream(stream)
}

func (d *portaudioDevice) Release() error {
	return portaudio.Terminate()
}

func closeStream(stream *portaudio.Stream) error {
	return errors.Join(stream.Stop(), stream.Close())
}
