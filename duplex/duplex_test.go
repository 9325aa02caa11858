package duplex

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/bosley/parley/audio"
)

type fakeDevice struct {
	mu       sync.Mutex
	writes   [][]byte
	readErr  error
	writeErr error
	closeErr error
	calls    []string
	next     int16
}

func (f *fakeDevice) Read(frame []int16) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.readErr != nil {
		return f.readErr
	}
	for i := range frame {
		frame[i] = f.next
	}
	f.next++
	return nil
}

func (f *fakeDevice) Write(pcm []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return f.writeErr
	}
	f.writes = append(f.writes, append([]byte(nil), pcm...))
	return nil
}

func (f *fakeDevice) record(name string, err error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, name)
	return err
}

func (f *fakeDevice) CloseInput() error  { return f.record("input", f.closeErr) }
func (f *fakeDevice) CloseOutput() error { return f.record("output", nil) }
func (f *fakeDevice) Release() error     { return f.record("release", nil) }

func (f *fakeDevice) snapshot() ([][]byte, []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]byte(nil), f.writes...), append([]string(nil), f.calls...)
}

func newTestDuplex(dev *fakeDevice) *Duplex {
	cfg := DefaultConfig()
	cfg.WriteChunk = 8
	cfg.FrameSize = 4
	cfg.PollInterval = 20 * time.Millisecond
	cfg.StopTimeout = time.Second
	return New(cfg, WithOpener(func(Config, int, int) (Device, error) { return dev, nil }))
}

func TestPlayback_ChunksNeverExceedWriteSize(t *testing.T) {
	t.Parallel()

	q := newPlaybackQueue()
	sizes := []int{3, 10, 1, 7, 16, 5}
	total := 0
	for _, n := range sizes {
		q.push(make([]byte, n))
		total += n
	}
	q.close()

	var chunks [][]byte
	err := playback(q, func(b []byte) error {
		chunks = append(chunks, append([]byte(nil), b...))
		return nil
	}, 8, time.Second)
	if err != nil {
		t.Fatalf("playback: %v", err)
	}

	written := 0
	for i, c := range chunks {
		written += len(c)
		if len(c) > 8 {
			t.Errorf("chunk %d has %d bytes; max 8", i, len(c))
		}
		if len(c) < 8 && i != len(chunks)-1 {
			t.Errorf("short chunk %d (%d bytes) is not the final flush", i, len(c))
		}
	}
	if written != total {
		t.Errorf("wrote %d bytes; want %d", written, total)
	}
	if last := chunks[len(chunks)-1]; len(last) != total%8 {
		t.Errorf("final flush = %d bytes; want %d", len(last), total%8)
	}
}

func TestPlayback_FlushesPartialOnTimeout(t *testing.T) {
	t.Parallel()

	q := newPlaybackQueue()
	q.push([]byte{1, 2, 3})

	flushed := make(chan []byte, 1)
	go playback(q, func(b []byte) error {
		flushed <- append([]byte(nil), b...)
		return nil
	}, 8, 10*time.Millisecond)

	select {
	case b := <-flushed:
		if len(b) != 3 {
			t.Errorf("flushed %d bytes; want 3", len(b))
		}
	case <-time.After(2 * time.Second):
		t.Fatal("partial buffer was not flushed after the idle timeout")
	}
	q.close()
}

func TestPlayback_WriteFailureStopsLoop(t *testing.T) {
	t.Parallel()

	q := newPlaybackQueue()
	q.push(make([]byte, 16))
	q.push(make([]byte, 16))

	calls := 0
	err := playback(q, func([]byte) error {
		calls++
		return errors.New("device gone")
	}, 8, time.Second)
	if !errors.Is(err, ErrDevice) {
		t.Fatalf("err = %v; want ErrDevice", err)
	}
	if calls != 1 {
		t.Errorf("write called %d times; want 1", calls)
	}
}

func TestPlaybackQueue_PushAfterClose(t *testing.T) {
	t.Parallel()

	q := newPlaybackQueue()
	if !q.push([]byte{1}) {
		t.Fatal("push on open queue failed")
	}
	q.close()
	if q.push([]byte{2}) {
		t.Error("push on closed queue succeeded")
	}

	item, done, _ := q.pop(time.Millisecond)
	if done || len(item) != 1 {
		t.Fatalf("queued item lost on close: item=%v done=%v", item, done)
	}
	if _, done, _ := q.pop(time.Millisecond); !done {
		t.Error("drained closed queue not reported done")
	}
}

func TestDuplex_Lifecycle(t *testing.T) {
	t.Parallel()

	dev := &fakeDevice{}
	d := newTestDuplex(dev)

	if _, err := d.CaptureFrame(); !errors.Is(err, ErrNotStarted) {
		t.Fatalf("CaptureFrame before Start: err = %v; want ErrNotStarted", err)
	}
	if err := d.Start(DefaultDevice, DefaultDevice); err != nil {
		t.Fatalf("Start: %v", err)
	}

	frame, err := d.CaptureFrame()
	if err != nil {
		t.Fatalf("CaptureFrame: %v", err)
	}
	if len(frame) != 4 {
		t.Errorf("frame has %d samples; want 4", len(frame))
	}

	d.Enqueue(make([]byte, 20))
	if err := d.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	writes, calls := dev.snapshot()
	total := 0
	for _, w := range writes {
		total += len(w)
	}
	if total != 20 {
		t.Errorf("played %d bytes; want 20", total)
	}
	want := []string{"input", "output", "release"}
	if len(calls) != len(want) {
		t.Fatalf("teardown calls = %v; want %v", calls, want)
	}
	for i := range want {
		if calls[i] != want[i] {
			t.Errorf("teardown step %d = %s; want %s", i, calls[i], want[i])
		}
	}

	if err := d.Stop(); err != nil {
		t.Errorf("second Stop: %v", err)
	}
}

func TestDuplex_StopContinuesAfterFailure(t *testing.T) {
	t.Parallel()

	dev := &fakeDevice{closeErr: errors.New("input stuck")}
	d := newTestDuplex(dev)
	if err := d.Start(DefaultDevice, DefaultDevice); err != nil {
		t.Fatalf("Start: %v", err)
	}

	if err := d.Stop(); err == nil {
		t.Error("Stop did not report the input close failure")
	}
	_, calls := dev.snapshot()
	if len(calls) != 3 {
		t.Errorf("teardown calls = %v; want all three steps", calls)
	}
}

func TestDuplex_StartFailure(t *testing.T) {
	t.Parallel()

	d := New(DefaultConfig(), WithOpener(func(Config, int, int) (Device, error) {
		return nil, errors.New("no microphone")
	}))
	if err := d.Start(DefaultDevice, DefaultDevice); !errors.Is(err, ErrDevice) {
		t.Fatalf("Start err = %v; want ErrDevice", err)
	}
	if err := d.Stop(); err != nil {
		t.Errorf("Stop after failed Start: %v", err)
	}
}

func TestDuplex_CaptureReadError(t *testing.T) {
	t.Parallel()

	dev := &fakeDevice{readErr: errors.New("input overflowed")}
	d := newTestDuplex(dev)
	if err := d.Start(DefaultDevice, DefaultDevice); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer d.Stop()

	if _, err := d.CaptureFrame(); !errors.Is(err, ErrStreamRead) {
		t.Fatalf("CaptureFrame err = %v; want ErrStreamRead", err)
	}
}

func TestReadWAV(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "tone.wav")
	in := audio.Frame{10, -10, 20, -20, 30}
	if err := audio.WriteWAV(path, in.Bytes(), 16000); err != nil {
		t.Fatalf("WriteWAV: %v", err)
	}

	pcm, rate, err := ReadWAV(path)
	if err != nil {
		t.Fatalf("ReadWAV: %v", err)
	}
	if rate != 16000 {
		t.Errorf("rate = %d; want 16000", rate)
	}
	out := audio.FrameFromBytes(pcm)
	if len(out) != len(in) {
		t.Fatalf("read %d samples; want %d", len(out), len(in))
	}
	for i := range in {
		if out[i] != in[i] {
			t.Errorf("sample %d = %d; want %d", i, out[i], in[i])
		}
	}
}

func TestPlayFile_ReportsStopFailure(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "beep.wav")
	if err := audio.WriteWAV(path, audio.Frame{100, -100, 100, -100}.Bytes(), 16000); err != nil {
		t.Fatalf("WriteWAV: %v", err)
	}

	stuck := errors.New("input stuck")
	dev := &fakeDevice{closeErr: stuck}
	open := WithOpener(func(Config, int, int) (Device, error) { return dev, nil })

	err := PlayFile(context.Background(), path, DefaultDevice, DefaultDevice, open)
	if !errors.Is(err, stuck) {
		t.Fatalf("PlayFile err = %v; want the stop failure", err)
	}
	if _, calls := dev.snapshot(); len(calls) != 3 {
		t.Errorf("teardown calls = %v; want all three steps", calls)
	}
}
