package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bosley/parley/conversation"
	"github.com/bosley/parley/evaluate"
)

const fileStamp = "20060102_150405"

// Session describes a finished session for reporting.
type Session struct {
	ID             string
	Interview      bool
	Voice          string
	Start          time.Time
	End            time.Time
	PlannedMinutes int
	FinalPhase     string
	CustomCovered  int
	CustomTotal    int
}

func (s Session) Duration() time.Duration {
	if s.End.IsZero() {
		return time.Since(s.Start)
	}
	return s.End.Sub(s.Start)
}

func (s Session) labels() (title, user, assistant string) {
	if s.Interview {
		return "TECHNICAL INTERVIEW", "CANDIDATE", "INTERVIEWER"
	}
	return "CONVERSATION", "SPEAKER", "ANALYST"
}

// Writer saves report files under a data directory.
type Writer struct {
	dir string
	now func() time.Time
}

func NewWriter(dir string) *Writer {
	return &Writer{dir: dir, now: time.Now}
}

func (w *Writer) create(sub, prefix, ext string) (*os.File, error) {
	folder := filepath.Join(w.dir, sub)
	if err := os.MkdirAll(folder, 0755); err != nil {
		return nil, fmt.Errorf("failed to create %s directory: %w", sub, err)
	}
	name := filepath.Join(folder, prefix+"_"+w.now().Format(fileStamp)+ext)
	f, err := os.Create(name)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", name, err)
	}
	return f, nil
}

// SaveTranscript writes the exchange log as text and returns the file path.
func (w *Writer) SaveTranscript(s Session, exchanges []conversation.Exchange, snap Snapshot) (string, error) {
	prefix := "conversation"
	if s.Interview {
		prefix = "interview_session"
	}
	f, err := w.create("transcripts", prefix, ".txt")
	if err != nil {
		return "", err
	}
	defer f.Close()

	if err := WriteTranscript(f, s, exchanges, snap); err != nil {
		return "", fmt.Errorf("failed to write transcript: %w", err)
	}
	return f.Name(), nil
}

// WriteTranscript renders the transcript text.
func WriteTranscript(out io.Writer, s Session, exchanges []conversation.Exchange, snap Snapshot) error {
	title, userLabel, assistantLabel := s.labels()

	var b strings.Builder
	fmt.Fprintf(&b, "%s SESSION\n", title)
	fmt.Fprintf(&b, "Session: %s\n", s.ID)
	fmt.Fprintf(&b, "Date: %s\n", s.Start.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "Duration: %s\n", s.Duration().Round(time.Second))
	fmt.Fprintf(&b, "Voice: %s\n", s.Voice)
	fmt.Fprintf(&b, "Total exchanges: %d\n", len(exchanges))
	fmt.Fprintf(&b, "Input audio: %.1f minutes\n", snap.InputSeconds/60)
	fmt.Fprintf(&b, "Output audio: %.1f minutes\n", snap.OutputSeconds/60)
	b.WriteString(strings.Repeat("=", 80) + "\n\n")

	for _, ex := range exchanges {
		fmt.Fprintf(&b, "Exchange #%d [%s]", ex.Seq, ex.Timestamp.Format("15:04:05"))
		if ex.Phase != "" {
			fmt.Fprintf(&b, " (%s)", ex.Phase)
		}
		b.WriteString("\n")
		fmt.Fprintf(&b, "%s: %s\n", userLabel, ex.User)
		fmt.Fprintf(&b, "%s: %s\n", assistantLabel, ex.Assistant)
		b.WriteString(strings.Repeat("-", 70) + "\n\n")
	}

	_, err := io.WriteString(out, b.String())
	return err
}

// MetricsReport is the JSON layout of the performance metrics file.
type MetricsReport struct {
	Session struct {
		ID              string    `json:"session_id"`
		Timestamp       time.Time `json:"timestamp"`
		DurationSeconds float64   `json:"session_duration_seconds"`
		Voice           string    `json:"voice_model"`
		Interview       bool      `json:"interview_mode"`
		Exchanges       int       `json:"total_exchanges"`
	} `json:"session_metadata"`
	Performance Snapshot `json:"performance_metrics"`
}

func NewMetricsReport(s Session, exchanges int, snap Snapshot) MetricsReport {
	var m MetricsReport
	m.Session.ID = s.ID
	m.Session.Timestamp = s.Start
	m.Session.DurationSeconds = s.Duration().Seconds()
	m.Session.Voice = s.Voice
	m.Session.Interview = s.Interview
	m.Session.Exchanges = exchanges
	m.Performance = snap
	return m
}

// SaveMetrics writes the performance metrics JSON.
func (w *Writer) SaveMetrics(s Session, exchanges int, snap Snapshot) (string, error) {
	return w.saveJSON("metrics", "performance_metrics", NewMetricsReport(s, exchanges, snap))
}

// SaveEvaluation writes the evaluation report JSON.
func (w *Writer) SaveEvaluation(r *evaluate.Report) (string, error) {
	if r == nil {
		return "", fmt.Errorf("no evaluation to save")
	}
	return w.saveJSON("evaluations", "interview_evaluation", r)
}

func (w *Writer) saveJSON(sub, prefix string, v any) (string, error) {
	f, err := w.create(sub, prefix, ".json")
	if err != nil {
		return "", err
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return "", fmt.Errorf("failed to encode %s: %w", prefix, err)
	}
	return f.Name(), nil
}

// WriteSummary prints the end-of-session summary.
func WriteSummary(out io.Writer, s Session, exchanges int, snap Snapshot) {
	if exchanges == 0 {
		fmt.Fprintln(out, "No conversation recorded.")
		return
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, "SESSION SUMMARY")
	fmt.Fprintf(out, "Date: %s\n", s.Start.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(out, "Total duration: %s\n", s.Duration().Round(time.Second))
	fmt.Fprintf(out, "Voice used: %s\n", s.Voice)
	fmt.Fprintf(out, "Exchanges: %d\n", exchanges)
	fmt.Fprintf(out, "Input audio: %.1f minutes\n", snap.InputSeconds/60)
	fmt.Fprintf(out, "Output audio: %.1f minutes\n", snap.OutputSeconds/60)
	if snap.Latency.Count > 0 {
		fmt.Fprintf(out, "Avg response latency: %.2fs\n", snap.Latency.Average)
		fmt.Fprintf(out, "Min/Max latency: %.2fs / %.2fs\n", snap.Latency.Min, snap.Latency.Max)
	}
	if s.Interview {
		fmt.Fprintf(out, "Planned duration: %d minutes\n", s.PlannedMinutes)
		fmt.Fprintf(out, "Final phase: %s\n", s.FinalPhase)
	}
	if s.CustomTotal > 0 {
		fmt.Fprintf(out, "Custom questions covered: %d/%d\n", s.CustomCovered, s.CustomTotal)
	}
}
