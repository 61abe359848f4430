// Satomat is the ground-station control plane CLI. It validates and
// executes schedule files locally, and runs the HTTP/WebSocket daemon in
// serve mode. Exit code 0 means success, 1 means any failure.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/pflag"

	"github.com/jdiez17/sat-o-mat/internal/app"
	"github.com/jdiez17/sat-o-mat/internal/config"
	"github.com/jdiez17/sat-o-mat/internal/predict"
	"github.com/jdiez17/sat-o-mat/internal/radio"
	"github.com/jdiez17/sat-o-mat/internal/schedule"
	"github.com/jdiez17/sat-o-mat/internal/tracker"
)

func main() {
	// Stop parsing global flags at the first non-flag argument (the
	// command name), so subcommand flags like --config are not rejected.
	pflag.CommandLine.Init(os.Args[0], pflag.ContinueOnError)
	pflag.CommandLine.SetInterspersed(false)
	if err := pflag.CommandLine.Parse(os.Args[1:]); err != nil {
		os.Exit(1)
	}

	if pflag.NArg() < 1 {
		usage()
		os.Exit(1)
	}

	cmd := pflag.Arg(0)
	subArgs := pflag.Args()[1:]

	logger := log.New(os.Stdout, "satomat ", log.LstdFlags|log.Lmicroseconds)

	var err error
	switch cmd {
	case "validate":
		if len(subArgs) != 1 {
			usage()
			os.Exit(1)
		}
		err = validate(subArgs[0])

	case "run":
		if len(subArgs) != 1 {
			usage()
			os.Exit(1)
		}
		err = run(subArgs[0], logger)

	case "serve":
		serveFlags := pflag.NewFlagSet("serve", pflag.ContinueOnError)
		configPath := serveFlags.StringP("config", "c", "", "Path to config TOML (auto-discovers if omitted)")
		bind := serveFlags.String("bind", "", "HTTP bind address (overrides config)")
		if err := serveFlags.Parse(subArgs); err != nil {
			os.Exit(1)
		}
		err = serve(*configPath, *bind, logger)

	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", cmd)
		usage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: satomat <command> [args]

Commands:
  validate <schedule.yaml>    Parse a schedule file and print its steps
  run <schedule.yaml>         Execute a schedule file locally
  serve [--config <path>]     Start the HTTP/WebSocket daemon
`)
}

// validate parses the schedule and prints each step with its resolved time.
func validate(path string) error {
	doc, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	sched, err := schedule.Parse(doc)
	if err != nil {
		return err
	}

	fmt.Printf("Schedule is valid (%d steps, %s -> %s)\n",
		len(sched.Steps),
		sched.Start.Format(time.RFC3339),
		sched.End.Format(time.RFC3339))
	for i, step := range sched.Steps {
		timeStr := "immediate"
		if step.Time != nil {
			timeStr = fmt.Sprintf("%s (%s)", step.Time,
				step.Time.Resolve(sched.Start).Format(time.RFC3339))
		}
		fmt.Printf("  %d: %s @ %s\n", i+1, step.Command.Subsystem(), timeStr)
	}
	return nil
}

// run executes a schedule against a local tracker and radio, writing
// artifacts under the configured data root.
func run(path string, logger *log.Logger) error {
	doc, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	sched, err := schedule.Parse(doc)
	if err != nil {
		return err
	}

	cfg := config.Default()
	if cfgFile := config.FindConfigFile(); cfgFile != "" {
		if cfg, err = config.Load(cfgFile); err != nil {
			return err
		}
		logger.Printf("loaded config from %s", cfgFile)
	}

	station := predict.GroundStation{
		LatitudeDeg:  cfg.Station.Latitude,
		LongitudeDeg: cfg.Station.Longitude,
		AltitudeM:    cfg.Station.Altitude,
	}
	trk := tracker.New(station, logger)
	defer trk.Stop()

	id := sched.Start.UTC().Format("20060102T150405Z") + "_" + uuid.NewString()
	runner, err := schedule.NewRunner(id, sched, trk, radio.NewLogController(logger), cfg.Data.Root, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Printf("starting schedule %s", id)
	if err := runner.Run(ctx); err != nil {
		return err
	}
	logger.Printf("schedule completed, artifacts in %s", runner.Artifacts().Dir())
	return nil
}

// serve starts the daemon. Shutdown is handled gracefully on SIGINT or
// SIGTERM.
func serve(configPath, bind string, logger *log.Logger) error {
	cfgFile := configPath
	if cfgFile == "" {
		cfgFile = config.FindConfigFile()
	}

	var cfg config.Config
	if cfgFile == "" {
		cfg = config.Default()
		logger.Printf("no config file found, using defaults")
		logger.Printf("create %s/config.toml to customize", config.DefaultConfigDir())
	} else {
		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("config load failed: %w", err)
		}
		logger.Printf("loaded config from %s", cfgFile)
	}

	if err := config.EnsureDirectories(cfg); err != nil {
		return fmt.Errorf("directory setup: %w", err)
	}

	a, err := app.New(app.Options{
		Logger: logger,
		Cfg:    cfg,
		Bind:   bind,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.Run(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	// Brief pause so in-flight log writes can flush before exit.
	time.Sleep(50 * time.Millisecond)
	return nil
}
