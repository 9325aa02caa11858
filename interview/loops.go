package interview

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/bosley/parley/audio"
	"github.com/bosley/parley/evaluate"
	"github.com/bosley/parley/phase"
	"github.com/bosley/parley/realtime"
)

// captureLoop reads microphone frames and sends them upstream until the
// session stops. Queued system notes go out between frames.
func (s *Session) captureLoop(ctx context.Context, t Transport) error {
	for s.running.Load() {
		frame, err := s.audio.CaptureFrame()
		if err != nil {
			if !s.running.Load() {
				return nil
			}
			s.log.Error("Audio capture failed", "error", err)
			s.counters.Error(ctx, "capture")
			s.fail(err)
			return err
		}

		if s.cfg.Mode == Interview && s.gate.Observe(frame) {
			s.counters.FrameGated()
		}

		if err := s.flushOutbox(t); err != nil {
			return s.sendFailed(ctx, err)
		}

		pcm := frame.Bytes()
		if err := t.AppendAudio(pcm); err != nil {
			return s.sendFailed(ctx, err)
		}
		s.counters.AudioSent(ctx, len(pcm))
		runtime.Gosched()
	}
	return nil
}

func (s *Session) sendFailed(ctx context.Context, err error) error {
	if !s.running.Load() || errors.Is(err, realtime.ErrClosed) {
		s.stop("connection closed")
		return nil
	}
	s.log.Error("Failed to send to realtime service", "error", err)
	s.counters.Error(ctx, "send")
	s.fail(err)
	return err
}

// queue schedules a system note for the capture loop to send.
func (s *Session) queue(note string) {
	s.outboxMu.Lock()
	s.outbox = append(s.outbox, note)
	s.outboxMu.Unlock()
}

func (s *Session) flushOutbox(t Transport) error {
	s.outboxMu.Lock()
	notes := s.outbox
	s.outbox = nil
	s.outboxMu.Unlock()

	for i, note := range notes {
		if err := t.SendItem("system", note); err != nil {
			s.outboxMu.Lock()
			s.outbox = append(notes[i:], s.outbox...)
			s.outboxMu.Unlock()
			return err
		}
		s.log.Debug("Sent system note", "note", note)
	}
	return nil
}

// receiveLoop dispatches inbound events until the socket closes or the
// session stops.
func (s *Session) receiveLoop(ctx context.Context, t Transport) error {
	for {
		ev, err := t.Next()
		if err != nil {
			if errors.Is(err, realtime.ErrDecode) {
				s.log.Warn("Dropping malformed realtime message", "error", err)
				s.counters.Error(ctx, "decode")
				continue
			}
			if !s.running.Load() || errors.Is(err, realtime.ErrClosed) {
				s.stop("connection closed")
				return nil
			}
			s.log.Error("Realtime receive failed", "error", err)
			s.counters.Error(ctx, "receive")
			s.fail(err)
			return err
		}
		if !s.running.Load() {
			return nil
		}
		s.dispatch(ctx, ev)
	}
}

func (s *Session) dispatch(ctx context.Context, ev realtime.Event) {
	switch ev.Kind {
	case realtime.KindSessionReady:
		s.log.Info("Realtime session ready")

	case realtime.KindSpeechStarted:
		s.log.Debug("Speech started")

	case realtime.KindSpeechStopped:
		s.log.Debug("Speech stopped")

	case realtime.KindTranscription:
		if !s.acc.AddUserText(ev.Text, s.now()) {
			return
		}
		s.log.Info("User said", "text", ev.Text)
		if MatchesExit(s.cfg.Mode, ev.Text) {
			s.conclude(ctx, "exit phrase", s.cfg.ExitGrace)
		}

	case realtime.KindResponseCreated:
		s.acc.BeginResponse(s.now())

	case realtime.KindAudioDelta:
		s.audio.Enqueue(ev.Audio)
		s.counters.AudioReceived(ctx, len(ev.Audio))
		if s.cfg.Mode == Interview {
			s.outMu.Lock()
			s.outAudio.Write(ev.Audio)
			s.outMu.Unlock()
		}

	case realtime.KindTextDelta:
		s.acc.AppendResponse(ev.Text)

	case realtime.KindResponseDone:
		s.responseDone(ctx)

	case realtime.KindError:
		s.counters.Error(ctx, ev.Err.Type)
		s.log.Error("Realtime service error", "type", ev.Err.Type, "code", ev.Err.Code, "message", ev.Err.Message)

	default:
		s.log.Debug("Ignoring realtime event", "type", ev.Type)
	}
}

func (s *Session) responseDone(ctx context.Context) {
	var current phase.Phase
	if s.cfg.Mode == Interview {
		current = s.phase.Current()
	}

	ex, elapsed, ok := s.acc.Finalize(s.now(), current)
	if elapsed > 0 {
		s.counters.ResponseTime(ctx, elapsed)
	}
	if ok {
		s.convo.Append(ex)
		s.counters.Exchange(ctx, string(ex.Phase))
		s.log.Info("Exchange recorded", "seq", ex.Seq, "phase", ex.Phase)
	}

	if s.cfg.Mode != Interview {
		return
	}

	if s.phase.TimeExceeded() {
		if s.phase.Current() != phase.Completed {
			if err := s.phase.TransitionTo(phase.Completed); err == nil {
				s.counters.PhaseTransition(ctx, string(phase.Completed))
			}
		}
		s.conclude(ctx, "time limit", 0)
		return
	}

	if !ok || !s.phase.ShouldTransition() {
		return
	}
	next := s.phase.Next()
	if next == phase.Completed {
		return
	}
	if err := s.phase.TransitionTo(next); err != nil {
		s.log.Warn("Phase transition rejected", "error", err)
		return
	}
	s.counters.PhaseTransition(ctx, string(next))
	s.log.Info("Interview phase changed", "phase", next, "minutes", s.phase.Allotment(next))
	s.queue(phaseNote(next, s.phase.Allotment(next)))
}

// conclude evaluates once, waits grace for the goodbye to play and then
// stops the session. Only the first call has any effect.
func (s *Session) conclude(ctx context.Context, reason string, grace time.Duration) {
	s.concludeOnce.Do(func() {
		s.log.Info("Concluding session", "reason", reason)
		s.bg.Add(1)
		go func() {
			defer s.bg.Done()
			s.evaluateIfNeeded(ctx)
			if grace > 0 {
				timer := time.NewTimer(grace)
				defer timer.Stop()
				select {
				case <-timer.C:
				case <-s.stopped:
				}
			}
			s.stop(reason)
		}()
	})
}

// evaluateIfNeeded scores the interview at most once. It outlives ctx so an
// interrupted interview is still evaluated.
func (s *Session) evaluateIfNeeded(ctx context.Context) {
	s.evalMu.Lock()
	defer s.evalMu.Unlock()

	if s.evalDone || s.cfg.Mode != Interview || s.evaluator == nil {
		return
	}
	if s.convo.Len() == 0 {
		s.log.Info("Nothing to evaluate")
		return
	}
	s.evalDone = true

	started, _ := s.phase.Started()
	ectx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.EvaluationTimeout)
	defer cancel()

	s.log.Info("Evaluating interview", "exchanges", s.convo.Len())
	rep, err := s.evaluator.Evaluate(ectx, evaluate.Request{
		Transcript: s.convo.Transcript(),
		Job:        s.cfg.Job,
		Resume:     s.cfg.Resume,
		StartedAt:  started,
	})
	if err != nil {
		s.log.Error("Evaluation failed", "error", err)
		s.counters.Error(ctx, "evaluation")
		return
	}

	info := &evaluate.InterviewInfo{
		Date:           started,
		PlannedMinutes: s.cfg.DurationMinutes,
		Voice:          s.cfg.Voice,
		Exchanges:      s.convo.Len(),
		FinalPhase:     string(s.phase.Current()),
		SessionID:      s.id,
	}
	if all := s.cfg.Custom.All(); len(all) > 0 {
		info.CustomQuestions = len(all)
		info.CustomCovered, _ = s.convo.Coverage(all)
	}
	rep.Interview = info
	s.evalRep = rep
}

type teardownStep struct {
	name string
	fn   func() error
}

// cleanup evaluates, releases the audio devices, closes the socket and saves
// recordings, in that order. Every step runs even when an earlier one fails.
func (s *Session) cleanup(ctx context.Context, t Transport, audioStarted bool) error {
	steps := []teardownStep{
		{"evaluation", func() error {
			s.bg.Wait()
			s.evaluateIfNeeded(ctx)
			return nil
		}},
		{"audio", func() error {
			if !audioStarted {
				return nil
			}
			return s.audio.Stop()
		}},
		{"transport", t.Close},
		{"recordings", s.saveRecordings},
	}

	var errs []error
	for _, step := range steps {
		if err := step.fn(); err != nil && !realtime.IsClosed(err) {
			s.log.Error("Teardown step failed", "step", step.name, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", step.name, err))
		}
	}
	s.running.Store(false)
	s.log.Info("Session ended", "reason", s.reason.Load(), "exchanges", s.convo.Len())
	return errors.Join(errs...)
}

func (s *Session) saveRecordings() error {
	if s.cfg.Mode != Interview || s.cfg.RecordingsDir == "" {
		return nil
	}

	s.outMu.Lock()
	assistant := append([]byte(nil), s.outAudio.Bytes()...)
	s.outMu.Unlock()

	tracks := []struct {
		prefix string
		pcm    []byte
	}{
		{"candidate", s.gate.Retained()},
		{"interviewer", assistant},
	}

	now := s.now()
	var errs []error
	for _, tr := range tracks {
		if len(tr.pcm) == 0 {
			continue
		}
		path, err := audio.RecordingPath(s.cfg.RecordingsDir, s.id, tr.prefix, now)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if err := audio.WriteWAV(path, tr.pcm, s.cfg.SampleRate); err != nil {
			errs = append(errs, fmt.Errorf("%s recording: %w", tr.prefix, err))
			continue
		}
		s.recordings = append(s.recordings, path)
		s.log.Info("Saved recording", "path", path)
	}
	return errors.Join(errs...)
}
