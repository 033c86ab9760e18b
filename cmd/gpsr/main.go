// Command gpsr runs one General Purpose Service Robot mission: it enters the
// arena, takes a spoken command from the operator, performs it and leaves.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/odvcencio/gpsr/pkg/behavior"
	"github.com/odvcencio/gpsr/pkg/bus"
	"github.com/odvcencio/gpsr/pkg/command"
	"github.com/odvcencio/gpsr/pkg/config"
	"github.com/odvcencio/gpsr/pkg/control"
	"github.com/odvcencio/gpsr/pkg/lang"
	"github.com/odvcencio/gpsr/pkg/mission"
	"github.com/odvcencio/gpsr/pkg/observability"
	"github.com/odvcencio/gpsr/pkg/sim"
	"github.com/odvcencio/gpsr/pkg/storage"
	"github.com/odvcencio/gpsr/pkg/telemetry"
	"github.com/odvcencio/gpsr/pkg/utterance"
	"github.com/odvcencio/gpsr/pkg/world"
)

var version = "dev"

const (
	exitSucceeded = 0
	exitFailed    = 1
	exitUsage     = 2
)

type options struct {
	configPath  string
	sim         bool
	natsURL     string
	httpAddr    string
	controlPath string
	dbPath      string
	logLevel    string
	parser      string
	tracePath   string
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stderr))
}

func parseFlags(args []string, stderr io.Writer) (options, error) {
	var opts options
	fs := flag.NewFlagSet("gpsr", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.configPath, "config", "", "path to a YAML config file (default: ~/.gpsr/config.yaml, ./.gpsr/config.yaml)")
	fs.BoolVar(&opts.sim, "sim", false, "simulate the subsystems in-process and read utterances from stdin")
	fs.StringVar(&opts.natsURL, "nats", "", "NATS server URL")
	fs.StringVar(&opts.httpAddr, "http", "", "status server address, \"off\" to disable")
	fs.StringVar(&opts.controlPath, "control", "", "run/pause control file to watch")
	fs.StringVar(&opts.dbPath, "db", "", "run history database, \"off\" to disable")
	fs.StringVar(&opts.logLevel, "log-level", "", "debug, info, warn or error")
	fs.StringVar(&opts.parser, "parser", "", "command parser: bridge or channel")
	fs.StringVar(&opts.tracePath, "trace", "", "write OpenTelemetry spans to this file")
	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	if fs.NArg() > 0 {
		return opts, fmt.Errorf("unexpected arguments: %s", strings.Join(fs.Args(), " "))
	}
	return opts, nil
}

func loadConfig(opts options) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if opts.configPath != "" {
		cfg, err = config.LoadFromPath(opts.configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}

	if opts.natsURL != "" {
		cfg.Bus.URL = opts.natsURL
	}
	if opts.httpAddr != "" {
		cfg.HTTP.Addr = opts.httpAddr
	}
	if opts.controlPath != "" {
		cfg.Control.Path = opts.controlPath
	}
	if opts.dbPath != "" {
		cfg.Storage.Path = opts.dbPath
	}
	if opts.logLevel != "" {
		cfg.Log.Level = opts.logLevel
	}
	if opts.parser != "" {
		cfg.Language.Parser = opts.parser
	} else if opts.sim {
		// the simulator answers lang.process_string itself
		cfg.Language.Parser = config.ParserChannel
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func run(args []string, stdin io.Reader, stderr io.Writer) int {
	opts, err := parseFlags(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitSucceeded
		}
		return exitUsage
	}
	cfg, err := loadConfig(opts)
	if err != nil {
		fmt.Fprintf(stderr, "gpsr: %v\n", err)
		return exitUsage
	}

	log := observability.NewLoggerTo(stderr, "gpsr", observability.ParseLevel(cfg.Log.Level))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	report, err := runMission(ctx, cfg, opts, stdin, log)
	if err != nil {
		log.Error("mission aborted", "error", err.Error())
		return exitFailed
	}
	if report.Status != "succeeded" {
		return exitFailed
	}
	return exitSucceeded
}

func runMission(ctx context.Context, cfg *config.Config, opts options, stdin io.Reader, log *observability.Logger) (*mission.Report, error) {
	if opts.tracePath != "" {
		f, err := os.Create(opts.tracePath)
		if err != nil {
			return nil, fmt.Errorf("open trace file: %w", err)
		}
		defer f.Close()
		tp, err := observability.NewTracerProvider("gpsr", version, f)
		if err != nil {
			return nil, err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = tp.Shutdown(shutdownCtx)
		}()
	}

	msgBus, err := openBus(cfg, opts.sim)
	if err != nil {
		return nil, err
	}
	defer msgBus.Close()

	if opts.sim {
		responder := sim.NewResponder(msgBus,
			sim.WithLogger(log.WithBehavior("sim")),
			sim.WithGrammar(sim.NewGrammar()),
			sim.WithLatency(200*time.Millisecond),
		)
		if err := responder.Start(ctx); err != nil {
			return nil, err
		}
		defer responder.Stop()
		go readUtterances(ctx, stdin, msgBus, log)
	}

	channel, err := command.NewBusChannel(ctx, msgBus, log)
	if err != nil {
		return nil, err
	}
	defer channel.Close()
	cmds := command.NewCommands(channel, cfg.Timeouts, log)

	w, err := world.New(cfg.World)
	if err != nil {
		return nil, err
	}

	queue := utterance.NewQueue()
	speech, err := queue.Subscribe(ctx, msgBus, bus.RecognizedSpeech)
	if err != nil {
		return nil, fmt.Errorf("subscribe recognizer: %w", err)
	}
	defer speech.Unsubscribe()

	hub := telemetry.NewHub()
	defer hub.Close()
	ctl := control.New(log)
	ctl.OnChange(hub.ControlChanged)

	env := behavior.NewEnv(cmds, world.NewTaskContext(w), queue,
		lang.NewRuleClassifier(cfg.Questions.Answers, cfg.Questions.RobotName), log)
	env.Gate = ctl
	env.Observers = append(env.Observers, hub)
	env.AnswerPolls = cfg.Questions.Polls
	env.AnswerPollDelay = cfg.Questions.PollDelay

	var parser lang.Parser
	switch cfg.Language.Parser {
	case config.ParserChannel:
		parser = lang.NewChannelParser(cmds)
	default:
		parser = lang.NewBridge(cfg.Language.Bridge, log)
	}

	missionOpts := []mission.Option{mission.WithOptions(cfg.Mission)}
	var store *storage.Store
	if path := cfg.StoragePath(); path != "" && path != "off" {
		store, err = storage.New(path)
		if err != nil {
			return nil, err
		}
		defer store.Close()
		store.AddObserver(hub)
		missionOpts = append(missionOpts, mission.WithRecorder(store))
	}
	orch := mission.New(env, parser, missionOpts...)

	// services live until the mission ends or a signal arrives
	svcCtx, stopServices := context.WithCancel(ctx)
	defer stopServices()
	g, gctx := errgroup.WithContext(svcCtx)

	if cfg.Control.Path != "" {
		watcher := control.NewWatcher(cfg.Control.Path, ctl,
			control.WithPollInterval(cfg.Control.PollInterval),
			control.WithLogger(log),
		)
		g.Go(func() error { return watcher.Run(gctx) })
	}

	if addr := cfg.HTTP.Addr; addr != "" && addr != "off" {
		srv := &server{
			mission: orch,
			control: ctl,
			events:  telemetry.NewEventStream(gctx, hub, log),
			log:     log,
		}
		if store != nil {
			srv.runs = store
		}
		httpServer := &http.Server{
			Addr:              addr,
			Handler:           srv.routes(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		g.Go(func() error {
			log.Info("status server listening", "addr", addr)
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("status server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return httpServer.Shutdown(shutdownCtx)
		})
	}

	var report *mission.Report
	g.Go(func() error {
		defer stopServices()
		var runErr error
		report, runErr = orch.Run(gctx)
		return runErr
	})

	err = g.Wait()
	if report == nil {
		return nil, err
	}
	if err != nil {
		log.Warn("mission ended early", "error", err.Error())
	}
	return report, nil
}

func openBus(cfg *config.Config, simulate bool) (bus.MessageBus, error) {
	if simulate {
		return bus.NewMemoryBus(), nil
	}
	b, err := bus.NewNATSBus(cfg.BusSettings())
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", cfg.Bus.URL, err)
	}
	return b, nil
}

// readUtterances stands in for the speech recognizer: every non-blank line
// of r is published as a recognized utterance.
func readUtterances(ctx context.Context, r io.Reader, b bus.MessageBus, log *observability.Logger) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if err := b.Publish(ctx, bus.RecognizedSpeech, []byte(line)); err != nil {
			log.Warn("publish utterance", "error", err.Error())
			return
		}
	}
	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		log.Warn("read utterances", "error", err.Error())
	}
}
