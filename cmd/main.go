package main

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"runtime"
	"time"

	"github.com/Borislavv/shared-handle/internal/stress"
	"github.com/Borislavv/shared-handle/pkg/config"
	"github.com/Borislavv/shared-handle/pkg/gc"
	"github.com/Borislavv/shared-handle/pkg/k8s/probe/liveness"
	"github.com/Borislavv/shared-handle/pkg/shutdown"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.uber.org/automaxprocs/maxprocs"
)

const (
	configPath      = "sharedHandle.cfg.yaml"
	configPathLocal = "sharedHandle.cfg.local.yaml"
)

// setMaxProcs sets GOMAXPROCS from the cgroup/docker CPU quota (uses automaxprocs).
func setMaxProcs() {
	if _, err := maxprocs.Set(); err != nil {
		log.Err(err).Msg("[main] setting up GOMAXPROCS value failed")
		panic(err)
	}
	log.Info().Msgf("[main] optimized GOMAXPROCS=%d was set up", runtime.GOMAXPROCS(0))
}

// loadEnv reads an optional .env file so APP_ENV and friends can be kept next to the binary.
func loadEnv() {
	if err := godotenv.Load(); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			log.Warn().Msgf("[main] failed to load .env file: %s", err.Error())
		}
		return
	}
	log.Info().Msg("[main] .env file loaded")
}

// loadCfg tries the local config first, then the default one, then built-in defaults.
func loadCfg() (*config.Config, error) {
	cfg, err := config.LoadConfig(configPathLocal)
	if err == nil {
		log.Info().Msgf("[config] config loaded from '%v'", configPathLocal)
		return cfg, nil
	}

	cfg, err = config.LoadConfig(configPath)
	if err == nil {
		log.Info().Msgf("[config] config loaded from '%v'", configPath)
		return cfg, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		log.Err(err).Msg("[config] failed to load")
		return nil, err
	}

	cfg = config.Default()
	if env := os.Getenv("APP_ENV"); env != "" {
		cfg.Env = env
	}
	if err = cfg.Validate(); err != nil {
		return nil, err
	}
	log.Info().Msg("[config] no config file found, using defaults")
	return cfg, nil
}

// setupLogger applies the configured level and output format to the global logger.
func setupLogger(cfg config.Logs) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		log.Warn().Msgf("[main] unknown log level '%s', falling back to info", cfg.Level)
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339Nano

	if cfg.Pretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly})
	}
}

func main() {
	os.Exit(run())
}

// run wires and starts the stress application and returns the process exit code.
func run() int {
	// Root context for graceful shutdown and cancellation.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	loadEnv()

	cfg, err := loadCfg()
	if err != nil {
		log.Err(err).Msg("[main] failed to load config")
		return 1
	}
	setupLogger(cfg.Logs)
	setMaxProcs()

	// SIGTERM/SIGINT or root cancel start the graceful shutdown.
	gracefulShutdown := shutdown.NewGraceful(ctx, cancel)
	gracefulShutdown.SetGracefulTimeout(cfg.Shutdown.Timeout)

	probe := liveness.NewProbe(cfg.K8S.Probe.Timeout)

	app, err := stress.NewApp(ctx, cfg, probe)
	if err != nil {
		log.Err(err).Msg("[main] failed to init stress app")
		return 1
	}

	gracefulShutdown.Add(1)
	go app.Start(gracefulShutdown)

	// Without the api there is nothing left to serve once the run is over.
	go func() {
		select {
		case <-app.Done():
			if !cfg.Api.Enabled {
				cancel()
			}
		case <-ctx.Done():
		}
	}()

	gc.Run(ctx, cfg.GC, app.Tracker())

	if err = gracefulShutdown.ListenCancelAndAwait(); err != nil {
		log.Err(err).Msg("[main] failed to gracefully shut down service")
		return 1
	}

	if err = app.Err(); err != nil && !errors.Is(err, stress.ErrInterrupted) {
		return 1
	}
	return 0
}
