package report

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bosley/parley/conversation"
	"github.com/bosley/parley/evaluate"
	"github.com/bosley/parley/phase"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func newTestInstruments(t *testing.T) (*Instruments, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	inst, err := NewInstruments(mp)
	if err != nil {
		t.Fatalf("NewInstruments: %v", err)
	}
	return inst, reader
}

func sumOf(t *testing.T, reader *sdkmetric.ManualReader, name string) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatalf("%s is %T, not an int64 sum", name, m.Data)
			}
			var total int64
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
			return total
		}
	}
	t.Fatalf("metric %s not found", name)
	return 0
}

func TestCounters_Snapshot(t *testing.T) {
	t.Parallel()

	inst, reader := newTestInstruments(t)
	c := NewCounters(inst)
	ctx := context.Background()

	for i := 0; i < 48; i++ {
		c.AudioSent(ctx, 1000)
	}
	c.AudioReceived(ctx, 24000)
	c.AudioReceived(ctx, 24000)
	c.FrameGated()
	c.Error(ctx, "invalid_request_error")
	c.Exchange(ctx, "technical")
	c.ResponseTime(ctx, time.Second)
	c.ResponseTime(ctx, 3*time.Second)
	c.ResponseTime(ctx, 2*time.Second)

	s := c.Snapshot(24000)
	if s.ChunksSent != 48 || s.BytesSent != 48000 || s.ChunksReceived != 2 {
		t.Errorf("unexpected audio counts %+v", s)
	}
	if s.InputSeconds != 1 || s.OutputSeconds != 1 {
		t.Errorf("seconds in=%v out=%v; want 1 and 1", s.InputSeconds, s.OutputSeconds)
	}
	if s.Latency.Count != 3 || s.Latency.Average != 2 || s.Latency.Min != 1 || s.Latency.Max != 3 {
		t.Errorf("latency = %+v", s.Latency)
	}
	if s.Errors != 1 || s.Exchanges != 1 || s.GatedFrames != 1 {
		t.Errorf("counts = %+v", s)
	}

	if got := sumOf(t, reader, "parley.audio.chunks_sent"); got != 48 {
		t.Errorf("otel chunks_sent = %d", got)
	}
	if got := sumOf(t, reader, "parley.audio.bytes_received"); got != 48000 {
		t.Errorf("otel bytes_received = %d", got)
	}
}

func TestCounters_ConcurrentWriters(t *testing.T) {
	t.Parallel()

	c := NewCounters(nil)
	ctx := context.Background()
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			c.AudioSent(ctx, 1024)
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			c.AudioReceived(ctx, 10)
			c.ResponseTime(ctx, time.Millisecond)
		}
	}()
	wg.Wait()

	s := c.Snapshot(24000)
	if s.ChunksSent != 1000 || s.ChunksReceived != 100 || s.Latency.Count != 100 {
		t.Errorf("snapshot = %+v", s)
	}
}

func TestInitProvider_ServesMetrics(t *testing.T) {
	t.Parallel()

	p, err := InitProvider()
	if err != nil {
		t.Fatalf("InitProvider: %v", err)
	}
	defer p.Shutdown(context.Background())

	inst, err := NewInstruments(p.MeterProvider)
	if err != nil {
		t.Fatalf("NewInstruments: %v", err)
	}
	inst.Exchanges.Add(context.Background(), 2)

	srv := httptest.NewServer(p.Handler)
	defer srv.Close()
	resp, err := srv.Client().Get(srv.URL)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "parley_exchanges") {
		t.Errorf("metrics output missing exchanges counter:\n%s", body)
	}
}

func testSession() Session {
	start := time.Date(2025, 3, 4, 9, 0, 0, 0, time.UTC)
	return Session{
		ID:             "f3a1",
		Interview:      true,
		Voice:          "alloy",
		Start:          start,
		End:            start.Add(8 * time.Minute),
		PlannedMinutes: 8,
		FinalPhase:     "completed",
		CustomCovered:  1,
		CustomTotal:    2,
	}
}

func testExchanges() []conversation.Exchange {
	ts := time.Date(2025, 3, 4, 9, 1, 0, 0, time.UTC)
	return []conversation.Exchange{
		{Seq: 1, Timestamp: ts, User: "Hi, I'm Sam.", Assistant: "Welcome Sam.", Phase: phase.Introduction},
		{Seq: 2, Timestamp: ts.Add(time.Minute), User: "I used Kafka.", Assistant: "How did you handle retries?", Phase: phase.Technical},
	}
}

func TestWriteTranscript(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	if err := WriteTranscript(&buf, testSession(), testExchanges(), Snapshot{InputSeconds: 120}); err != nil {
		t.Fatalf("WriteTranscript: %v", err)
	}
	out := buf.String()
	for _, want := range []string{
		"TECHNICAL INTERVIEW SESSION",
		"Duration: 8m0s",
		"Input audio: 2.0 minutes",
		"Exchange #2 [09:02:00] (technical)",
		"CANDIDATE: I used Kafka.",
		"INTERVIEWER: How did you handle retries?",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("transcript missing %q:\n%s", want, out)
		}
	}
}

func TestWriter_SavesFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	w := NewWriter(dir)
	w.now = func() time.Time { return time.Date(2025, 3, 4, 9, 8, 0, 0, time.UTC) }

	path, err := w.SaveTranscript(testSession(), testExchanges(), Snapshot{})
	if err != nil {
		t.Fatalf("SaveTranscript: %v", err)
	}
	if want := filepath.Join(dir, "transcripts", "interview_session_20250304_090800.txt"); path != want {
		t.Errorf("transcript path = %s; want %s", path, want)
	}

	path, err = w.SaveMetrics(testSession(), 2, Snapshot{ChunksSent: 10})
	if err != nil {
		t.Fatalf("SaveMetrics: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read metrics: %v", err)
	}
	var m map[string]map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("metrics json: %v", err)
	}
	if m["session_metadata"]["total_exchanges"].(float64) != 2 || m["performance_metrics"]["input_chunks_sent"].(float64) != 10 {
		t.Errorf("metrics = %v", m)
	}

	rep := &evaluate.Report{Overall: evaluate.Assessment{Score: "7/10"}}
	path, err = w.SaveEvaluation(rep)
	if err != nil {
		t.Fatalf("SaveEvaluation: %v", err)
	}
	if !strings.HasPrefix(filepath.Base(path), "interview_evaluation_") {
		t.Errorf("evaluation path = %s", path)
	}
	if _, err := w.SaveEvaluation(nil); err == nil {
		t.Error("SaveEvaluation(nil) succeeded")
	}
}

func TestWriteSummary(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	snap := Snapshot{Latency: Latency{Count: 2, Average: 1.5, Min: 1, Max: 2}}
	WriteSummary(&buf, testSession(), 2, snap)
	out := buf.String()
	for _, want := range []string{"Exchanges: 2", "Avg response latency: 1.50s", "Min/Max latency: 1.00s / 2.00s", "Custom questions covered: 1/2"} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q:\n%s", want, out)
		}
	}

	buf.Reset()
	WriteSummary(&buf, testSession(), 0, Snapshot{})
	if !strings.Contains(buf.String(), "No conversation recorded.") {
		t.Errorf("empty summary = %q", buf.String())
	}
}
