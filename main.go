package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/bosley/parley/config"
	"github.com/bosley/parley/duplex"
)

var logLevel = new(slog.LevelVar)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	configPath := flag.String("config", "", "Path to YAML config file (reloaded on change)")
	mode := flag.String("mode", "", "Session mode: interview or conversation")
	jobSource := flag.String("jd", "", "Job description file (.txt, .md, .csv) or URL")
	resumeSource := flag.String("resume", "", "Resume file (.txt, .md, .csv) or URL")
	questionsSource := flag.String("questions", "", "Custom recruiter questions file, one per line")
	voice := flag.String("voice", "", "Interviewer voice")
	duration := flag.Int("duration", 0, "Interview length in minutes (5-120)")
	inputDevice := flag.Int("input-device", duplex.DefaultDevice, "Audio input device ID (-1 for default)")
	outputDevice := flag.Int("output-device", duplex.DefaultDevice, "Audio output device ID (-1 for default)")
	monitorAddr := flag.String("monitor", "", "Serve the live monitor on this address")
	archivePath := flag.String("archive", "", "SQLite archive file")
	playFile := flag.String("play", "", "Play a WAV file through the speaker and exit")
	listDevices := flag.Bool("list-devices", false, "List available audio devices")
	verbose := flag.Bool("verbose", false, "Enable debug logging")
	flag.Parse()

	if *verbose {
		logLevel.Set(slog.LevelDebug)
	}

	if *listDevices {
		devices, err := duplex.ListDevices()
		if err != nil {
			slog.Error("Failed to list audio devices", "error", err)
			os.Exit(1)
		}

		fmt.Println("Available audio devices:")
		for _, device := range devices {
			fmt.Printf("[%d] %s\n", device.Index, device.Name)
			fmt.Printf("    Max Input Channels: %d\n", device.MaxInputChannels)
			fmt.Printf("    Max Output Channels: %d\n", device.MaxOutputChannels)
			fmt.Printf("    Default Sample Rate: %f\n", device.DefaultSampleRate)
			fmt.Println()
		}
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Debug("Received shutdown signal")
		cancel()
	}()

	if *playFile != "" {
		if err := duplex.PlayFile(ctx, *playFile, *inputDevice, *outputDevice); err != nil {
			slog.Error("Failed to play audio file", "error", err)
			os.Exit(1)
		}
		return
	}

	given := map[string]bool{}
	flag.Visit(func(f *flag.Flag) { given[f.Name] = true })

	// Flags override the file only when given.
	override := func(cfg *config.Config) {
		if given["mode"] {
			cfg.Interview.Mode = *mode
		}
		if given["voice"] {
			cfg.Realtime.Voice = *voice
		}
		if given["duration"] {
			cfg.Interview.DurationMinutes = *duration
		}
		if given["input-device"] {
			cfg.Audio.InputDevice = *inputDevice
		}
		if given["output-device"] {
			cfg.Audio.OutputDevice = *outputDevice
		}
		if given["monitor"] {
			cfg.Monitor.Addr = *monitorAddr
		}
		if given["archive"] {
			cfg.Archive.Path = *archivePath
		}
	}

	r := reloader{level: logLevel, verbose: *verbose, override: override, log: slog.Default()}
	cfg, watcher, err := loadConfig(*configPath, r.apply)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	if watcher != nil {
		defer watcher.Stop()
	}

	override(&cfg)
	if err := config.Validate(&cfg); err != nil {
		slog.Error("Invalid configuration", "error", err)
		flag.Usage()
		os.Exit(1)
	}
	if !*verbose {
		logLevel.Set(cfg.Log.Level.Level())
	}

	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		slog.Error("OPENAI_API_KEY environment variable is not set")
		os.Exit(1)
	}

	err = run(ctx, cfg, apiKey, sources{
		job:       *jobSource,
		resume:    *resumeSource,
		questions: *questionsSource,
	})
	if err != nil {
		slog.Error("Session failed", "error", err)
		os.Exit(1)
	}

	slog.Debug("Program exiting")
}

// reloader reacts to config file changes. Values set by flags win over the
// file, so they are applied to both sides before comparing.
type reloader struct {
	level    *slog.LevelVar
	verbose  bool
	override func(*config.Config)
	log      *slog.Logger
}

func (r reloader) apply(old, new *config.Config) {
	o, n := *old, *new
	if r.override != nil {
		r.override(&o)
		r.override(&n)
	}

	if !r.verbose && o.Log.Level != n.Log.Level {
		r.level.Set(n.Log.Level.Level())
		r.log.Info("Log level changed", "level", n.Log.Level)
	}
	if o.Interview != n.Interview || o.Realtime.Voice != n.Realtime.Voice {
		r.log.Info("Session settings changed; they apply to the next session")
	}
}

// loadConfig reads path, or the defaults when path is empty. With a path
// the file is watched and onChange runs on every valid change.
func loadConfig(path string, onChange func(old, new *config.Config)) (config.Config, *config.Watcher, error) {
	if path == "" {
		cfg, err := config.Load("")
		if err != nil {
			return config.Config{}, nil, err
		}
		return *cfg, nil, nil
	}

	w, err := config.NewWatcher(path, onChange, slog.Default())
	if err != nil {
		return config.Config{}, nil, err
	}
	return *w.Current(), w, nil
}
