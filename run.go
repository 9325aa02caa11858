package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/bosley/parley/archive"
	"github.com/bosley/parley/config"
	"github.com/bosley/parley/content"
	"github.com/bosley/parley/duplex"
	"github.com/bosley/parley/evaluate"
	"github.com/bosley/parley/interview"
	"github.com/bosley/parley/monitor"
	"github.com/bosley/parley/realtime"
	"github.com/bosley/parley/report"
)

type sources struct {
	job       string
	resume    string
	questions string
}

// run wires one session from cfg, runs it and writes its reports.
func run(ctx context.Context, cfg config.Config, apiKey string, src sources) error {
	mode, err := interview.ParseMode(cfg.Interview.Mode)
	if err != nil {
		return err
	}

	extractor := content.NewExtractor(nil)
	job, err := extractor.Extract(ctx, src.job)
	if err != nil {
		return fmt.Errorf("failed to read job description: %w", err)
	}
	resume, err := extractor.Extract(ctx, src.resume)
	if err != nil {
		return fmt.Errorf("failed to read resume: %w", err)
	}
	questionText, err := extractor.Extract(ctx, src.questions)
	if err != nil {
		return fmt.Errorf("failed to read custom questions: %w", err)
	}
	custom := evaluate.CategorizeCustom(evaluate.ParseQuestions(questionText))

	provider, err := report.InitProvider()
	if err != nil {
		return err
	}
	defer provider.Shutdown(context.Background())

	inst, err := report.NewInstruments(provider.MeterProvider)
	if err != nil {
		return fmt.Errorf("failed to create instruments: %w", err)
	}
	counters := report.NewCounters(inst)

	opts := []interview.Option{
		interview.WithLogger(slog.Default()),
		interview.WithCounters(counters),
	}
	if mode == interview.Interview {
		client, err := evaluate.NewClient(apiKey, cfg.Evaluation.Model,
			evaluate.WithBaseURL(cfg.Evaluation.BaseURL),
			evaluate.WithTimeout(cfg.Evaluation.Timeout),
			evaluate.WithMaxRetries(cfg.Evaluation.MaxRetries),
			evaluate.WithLogger(slog.Default()),
		)
		if err != nil {
			return fmt.Errorf("failed to create evaluation client: %w", err)
		}
		opts = append(opts,
			interview.WithGenerator(evaluate.NewCachedGenerator(cfg.Evaluation.CacheDir, client, slog.Default())),
			interview.WithEvaluator(client),
		)
	}

	names := cfg.Realtime.Events.WithDefaults()
	dial := func(ctx context.Context) (interview.Transport, error) {
		conn, err := realtime.Dial(ctx, realtime.Options{
			URL:              cfg.Realtime.URL,
			Model:            cfg.Realtime.Model,
			APIKey:           apiKey,
			CAFile:           cfg.Realtime.CAFile,
			Names:            names,
			HandshakeTimeout: cfg.Realtime.HandshakeTimeout,
			Logger:           slog.Default(),
		})
		if err != nil {
			return nil, err
		}
		return conn, nil
	}

	device := duplex.New(duplex.Config{
		SampleRate: cfg.Audio.SampleRate,
		FrameSize:  cfg.Audio.FrameSize,
		WriteChunk: cfg.Audio.WriteChunk,
	}, duplex.WithLogger(slog.Default()))

	session := interview.New(interview.Config{
		Mode:               mode,
		Voice:              cfg.Realtime.Voice,
		Language:           cfg.Realtime.Language,
		TranscriptionModel: cfg.Realtime.TranscriptionModel,
		DurationMinutes:    cfg.Interview.DurationMinutes,
		ExitGrace:          cfg.Interview.ExitGrace,
		EvaluationTimeout:  cfg.Interview.EvaluationTimeout,
		InputDevice:        cfg.Audio.InputDevice,
		OutputDevice:       cfg.Audio.OutputDevice,
		SampleRate:         cfg.Audio.SampleRate,
		GateThreshold:      cfg.Audio.GateThreshold,
		RecordingsDir:      cfg.Output.RecordingsDir,
		Job:                job,
		Resume:             resume,
		Custom:             custom,
	}, dial, device, opts...)

	store, err := openArchive(ctx, cfg, session)
	if err != nil {
		return err
	}
	if store != nil {
		defer store.Close()
	}

	monitorCtx, stopMonitor := context.WithCancel(context.Background())
	defer stopMonitor()
	if cfg.Monitor.Addr != "" {
		mon := monitor.New(monitor.Config{
			Addr:           cfg.Monitor.Addr,
			Metrics:        provider.Handler,
			AllowedOrigins: cfg.Monitor.AllowedOrigins,
		}, session, slog.Default())
		go func() {
			if err := mon.Start(monitorCtx); err != nil {
				slog.Error("Monitor failed", "error", err)
			}
		}()
	}

	if mode == interview.Interview {
		fmt.Printf("Starting a %d minute interview. Say \"end interview\" to finish early.\n", cfg.Interview.DurationMinutes)
	} else {
		fmt.Println("Starting a conversation. Say \"goodbye\" to finish.")
	}

	res, runErr := session.Run(ctx)
	if res == nil {
		return runErr
	}
	if res.Teardown != nil {
		slog.Warn("Session teardown was incomplete", "error", res.Teardown)
	}
	if res.Cause != nil {
		slog.Error("Session ended on error", "error", res.Cause)
	}

	return errors.Join(runErr, finish(cfg, res, store))
}

func openArchive(ctx context.Context, cfg config.Config, session *interview.Session) (*archive.Archive, error) {
	if cfg.Archive.Path == "" {
		return nil, nil
	}
	store, err := archive.Open(ctx, cfg.Archive.Path, slog.Default())
	if err != nil {
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}
	err = store.BeginSession(ctx, archive.Session{
		ID:             session.ID(),
		Mode:           session.Mode().String(),
		Voice:          cfg.Realtime.Voice,
		PlannedMinutes: cfg.Interview.DurationMinutes,
		StartedAt:      time.Now(),
	})
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to archive session: %w", err)
	}
	store.Attach(session.ID(), session.Log())
	return store, nil
}

// finish writes the report files, archives the outcome and prints the
// summary.
func finish(cfg config.Config, res *interview.Result, store *archive.Archive) error {
	summary := report.Session{
		ID:             res.SessionID,
		Interview:      res.Mode == interview.Interview,
		Voice:          cfg.Realtime.Voice,
		Start:          res.Started,
		End:            res.Ended,
		PlannedMinutes: cfg.Interview.DurationMinutes,
		FinalPhase:     string(res.FinalPhase),
		CustomCovered:  res.CustomCovered,
		CustomTotal:    res.CustomTotal,
	}

	var errs []error
	writer := report.NewWriter(cfg.Output.DataDir)
	if len(res.Exchanges) > 0 {
		if path, err := writer.SaveTranscript(summary, res.Exchanges, res.Metrics); err != nil {
			errs = append(errs, err)
		} else {
			slog.Info("Saved transcript", "path", path)
		}
	}
	if path, err := writer.SaveMetrics(summary, len(res.Exchanges), res.Metrics); err != nil {
		errs = append(errs, err)
	} else {
		slog.Info("Saved metrics", "path", path)
	}
	if res.Evaluation != nil {
		if path, err := writer.SaveEvaluation(res.Evaluation); err != nil {
			errs = append(errs, err)
		} else {
			slog.Info("Saved evaluation", "path", path)
		}
	}

	if store != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := store.FinishSession(ctx, res.SessionID, res.Ended, res.FinalPhase, res.Reason); err != nil {
			errs = append(errs, err)
		}
		if res.Evaluation != nil {
			if err := store.SaveEvaluation(ctx, res.SessionID, res.Evaluation); err != nil {
				errs = append(errs, err)
			}
		}
	}

	report.WriteSummary(os.Stdout, summary, len(res.Exchanges), res.Metrics)
	if res.Evaluation != nil {
		fmt.Printf("Overall score: %s\n", res.Evaluation.Overall.Score)
	}
	for _, path := range res.Recordings {
		fmt.Printf("Recording: %s\n", path)
	}
	return errors.Join(errs...)
}
