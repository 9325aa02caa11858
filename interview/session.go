// Package interview runs one live voice session: it connects to the realtime
// model, streams microphone frames out, dispatches inbound events, keeps the
// interview on schedule and tears everything down when the session ends.
package interview

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bosley/parley/audio"
	"github.com/bosley/parley/conversation"
	"github.com/bosley/parley/evaluate"
	"github.com/bosley/parley/phase"
	"github.com/bosley/parley/realtime"
	"github.com/bosley/parley/report"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// ErrAlreadyRun is returned by a second call to Run.
var ErrAlreadyRun = errors.New("session already run")

// Audio is the local microphone and speaker.
type Audio interface {
	Start(inputID, outputID int) error
	CaptureFrame() (audio.Frame, error)
	Enqueue(pcm []byte)
	Stop() error
}

// Transport is the realtime model socket.
type Transport interface {
	Configure(cfg realtime.SessionConfig) error
	AppendAudio(pcm []byte) error
	SendItem(role, text string) error
	Next() (realtime.Event, error)
	Close() error
}

// Dialer opens a Transport.
type Dialer func(ctx context.Context) (Transport, error)

// Config is the per-session configuration.
type Config struct {
	Mode               Mode
	Voice              string
	Language           string
	TranscriptionModel string
	DurationMinutes    int
	ExitGrace          time.Duration
	EvaluationTimeout  time.Duration
	InputDevice        int
	OutputDevice       int
	SampleRate         int
	GateThreshold      float64
	RecordingsDir      string
	Job                string
	Resume             string
	Custom             evaluate.CustomQuestions
}

func (c Config) withDefaults() Config {
	if c.Voice == "" {
		c.Voice = "alloy"
	}
	if c.Language == "" {
		c.Language = "en"
	}
	if c.TranscriptionModel == "" {
		c.TranscriptionModel = "gpt-4o-transcribe"
	}
	if c.DurationMinutes <= 0 {
		c.DurationMinutes = 30
	}
	if c.ExitGrace < 0 {
		c.ExitGrace = 0
	}
	if c.EvaluationTimeout <= 0 {
		c.EvaluationTimeout = 2 * time.Minute
	}
	if c.SampleRate <= 0 {
		c.SampleRate = audio.SampleRate
	}
	return c
}

// Option configures a Session.
type Option func(*Session)

func WithLogger(l *slog.Logger) Option {
	return func(s *Session) { s.log = l }
}

// WithClock replaces time.Now for timestamps and phase timing.
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// WithGenerator sets the question generator used before an interview.
func WithGenerator(g evaluate.Generator) Option {
	return func(s *Session) { s.generator = g }
}

// WithEvaluator sets the evaluator used after an interview.
func WithEvaluator(e evaluate.Evaluator) Option {
	return func(s *Session) { s.evaluator = e }
}

// WithCounters sets the counters the session records into.
func WithCounters(c *report.Counters) Option {
	return func(s *Session) { s.counters = c }
}

// WithSessionID overrides the generated session id.
func WithSessionID(id string) Option {
	return func(s *Session) { s.id = id }
}

// Session is one realtime voice session.
type Session struct {
	cfg       Config
	dial      Dialer
	audio     Audio
	log       *slog.Logger
	now       func() time.Time
	generator evaluate.Generator
	evaluator evaluate.Evaluator
	counters  *report.Counters

	id    string
	phase *phase.Controller
	acc   *conversation.Accumulator
	convo *conversation.Log
	gate  *audio.Gate

	questions    evaluate.QuestionSet
	instructions string

	ran      atomic.Bool
	running  atomic.Bool
	stopOnce sync.Once
	stopped  chan struct{}
	reason   atomic.Value
	causeMu  sync.Mutex
	cause    error

	outboxMu sync.Mutex
	outbox   []string

	concludeOnce sync.Once
	bg           sync.WaitGroup

	evalMu   sync.Mutex
	evalDone bool
	evalRep  *evaluate.Report

	outMu    sync.Mutex
	outAudio bytes.Buffer

	startedAt  time.Time
	recordings []string
}

// New builds a session. Nothing is opened until Run.
func New(cfg Config, dial Dialer, a Audio, opts ...Option) *Session {
	s := &Session{
		cfg:     cfg.withDefaults(),
		dial:    dial,
		audio:   a,
		log:     slog.Default(),
		now:     time.Now,
		acc:     conversation.NewAccumulator(),
		convo:   conversation.NewLog(),
		stopped: make(chan struct{}),
	}
	for _, o := range opts {
		o(s)
	}
	if s.id == "" {
		s.id = uuid.NewString()
	}
	if s.counters == nil {
		s.counters = report.NewCounters(nil)
	}
	s.gate = audio.NewGate(s.cfg.GateThreshold)
	s.phase = phase.NewController(s.cfg.DurationMinutes, phase.WithClock(s.now))
	s.log = s.log.With("session", s.id)
	return s
}

func (s *Session) ID() string                 { return s.id }
func (s *Session) Mode() Mode                 { return s.cfg.Mode }
func (s *Session) Log() *conversation.Log     { return s.convo }
func (s *Session) Phase() *phase.Controller   { return s.phase }
func (s *Session) Counters() *report.Counters { return s.counters }

// Running reports whether both loops are active.
func (s *Session) Running() bool { return s.running.Load() }

// Stop ends the session. Run returns once teardown completes.
func (s *Session) Stop() { s.stop("stopped") }

func (s *Session) stop(reason string) {
	s.stopOnce.Do(func() {
		s.reason.Store(reason)
		s.running.Store(false)
		close(s.stopped)
		s.log.Info("Session stopping", "reason", reason)
	})
}

// fail records the first loop-fatal error and stops the session.
func (s *Session) fail(err error) {
	s.causeMu.Lock()
	if s.cause == nil {
		s.cause = err
	}
	s.causeMu.Unlock()
	s.stop("error")
}

// Run primes questions, connects, streams until the session stops and then
// tears down. A connection or configuration failure is returned before any
// audio device is opened. Failures after that are reported in the Result.
func (s *Session) Run(ctx context.Context) (*Result, error) {
	if !s.ran.CompareAndSwap(false, true) {
		return nil, ErrAlreadyRun
	}

	if s.cfg.Mode == Interview {
		s.questions, _ = evaluate.QuestionsOrFallback(ctx, s.generator, s.cfg.Job, s.cfg.Resume, s.log)
	}
	s.instructions = BuildInstructions(s.cfg.Mode, InstructionInput{
		Voice:     s.cfg.Voice,
		Job:       s.cfg.Job,
		Resume:    s.cfg.Resume,
		Minutes:   s.cfg.DurationMinutes,
		Questions: s.questions,
		Custom:    s.cfg.Custom,
		Now:       s.now(),
	})

	t, err := s.connect(ctx)
	if err != nil {
		return nil, err
	}

	s.startedAt = s.now()
	if s.cfg.Mode == Interview {
		s.phase.Start()
	}

	if err := s.audio.Start(s.cfg.InputDevice, s.cfg.OutputDevice); err != nil {
		s.log.Error("Failed to start audio", "error", err)
		s.fail(err)
		teardownErr := s.cleanup(ctx, t, false)
		return s.result(teardownErr), fmt.Errorf("failed to start audio: %w", err)
	}

	s.running.Store(true)
	s.stream(ctx, t)

	teardownErr := s.cleanup(ctx, t, true)
	return s.result(teardownErr), nil
}

func (s *Session) connect(ctx context.Context) (Transport, error) {
	t, err := s.dial(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}

	turn := realtime.ConversationTurnDetection()
	if s.cfg.Mode == Interview {
		turn = realtime.InterviewTurnDetection()
	}
	cfg := realtime.NewSessionConfig(s.instructions, s.cfg.Voice, s.cfg.TranscriptionModel, s.cfg.Language, turn)
	if err := t.Configure(cfg); err != nil {
		return nil, errors.Join(fmt.Errorf("failed to configure session: %w", err), t.Close())
	}

	s.log.Info("Session configured", "mode", s.cfg.Mode, "voice", s.cfg.Voice)
	return t, nil
}

// stream runs the capture and receive loops until either stops the session.
func (s *Session) stream(ctx context.Context, t Transport) {
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			s.stop("cancelled")
		case <-s.stopped:
		case <-done:
		}
		// Unblocks a receive loop waiting in Next.
		if err := t.Close(); err != nil {
			s.log.Debug("Transport close after stop", "error", err)
		}
	}()

	var g errgroup.Group
	g.Go(func() error { return s.captureLoop(ctx, t) })
	g.Go(func() error { return s.receiveLoop(ctx, t) })
	g.Wait()
	close(done)
}

// Result describes a finished session.
type Result struct {
	SessionID     string
	Mode          Mode
	Reason        string
	Cause         error
	Teardown      error
	Started       time.Time
	Ended         time.Time
	FinalPhase    phase.Phase
	Exchanges     []conversation.Exchange
	Evaluation    *evaluate.Report
	Questions     evaluate.QuestionSet
	Metrics       report.Snapshot
	CustomCovered int
	CustomTotal   int
	Recordings    []string
}

func (s *Session) result(teardown error) *Result {
	r := &Result{
		SessionID:  s.id,
		Mode:       s.cfg.Mode,
		Teardown:   teardown,
		Started:    s.startedAt,
		Ended:      s.now(),
		Exchanges:  s.convo.Exchanges(),
		Questions:  s.questions,
		Metrics:    s.counters.Snapshot(s.cfg.SampleRate),
		Recordings: s.recordings,
	}
	if v, ok := s.reason.Load().(string); ok {
		r.Reason = v
	}
	s.causeMu.Lock()
	r.Cause = s.cause
	s.causeMu.Unlock()

	if s.cfg.Mode == Interview {
		r.FinalPhase = s.phase.Current()
	}

	s.evalMu.Lock()
	r.Evaluation = s.evalRep
	s.evalMu.Unlock()

	if all := s.cfg.Custom.All(); len(all) > 0 {
		r.CustomTotal = len(all)
		r.CustomCovered, _ = s.convo.Coverage(all)
	}
	return r
}

// Status is a live view of the session for monitoring.
type Status struct {
	SessionID      string          `json:"session_id"`
	Mode           string          `json:"mode"`
	Running        bool            `json:"running"`
	Phase          phase.Phase     `json:"phase,omitempty"`
	ElapsedSeconds float64         `json:"elapsed_seconds"`
	PlannedMinutes int             `json:"planned_minutes,omitempty"`
	Exchanges      int             `json:"exchanges"`
	Metrics        report.Snapshot `json:"metrics"`
}

func (s *Session) Status() Status {
	st := Status{
		SessionID: s.id,
		Mode:      s.cfg.Mode.String(),
		Running:   s.running.Load(),
		Exchanges: s.convo.Len(),
		Metrics:   s.counters.Snapshot(s.cfg.SampleRate),
	}
	if s.cfg.Mode == Interview {
		st.Phase = s.phase.Current()
		st.PlannedMinutes = s.cfg.DurationMinutes
		st.ElapsedSeconds = s.phase.Elapsed().Seconds()
	}
	return st
}
