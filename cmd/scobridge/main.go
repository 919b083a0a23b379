package main

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/thenatally/scoscmp-discord-intergration/bridge"
)

func main() {
	configPath := pflag.StringP("config", "c", bridge.DefaultConfigPath, "Path to the configuration file.")
	logLevel := pflag.String("log-level", "", "Override the configured log level (debug, info, warn, error).")
	console := pflag.Bool("console", true, "Read simulated player commands from stdin.")
	pflag.Parse()

	level := new(slog.LevelVar)
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		logger.Warn("failed to load .env", "error", err)
	}

	cfg := bridge.LoadOrCreateConfig(*configPath, logger)
	level.Set(bridge.ParseLogLevel(cfg.LogLevel))
	if *logLevel != "" {
		level.Set(bridge.ParseLogLevel(*logLevel))
	}

	host := newConsoleHost(os.Stdout)
	opts := bridge.ConfigOptions(cfg, logger)
	b := bridge.New(host, append(opts, bridge.WithLogger(logger))...)
	host.attach(b)

	logger.Info("starting bridge", "url", cfg.WebsocketURL, "server", cfg.ServerName)
	b.Open(cfg.WebsocketURL)

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup

	watcher := bridge.NewConfigWatcher(*configPath, cfg, b.Open, logger)
	wg.Add(3)
	go func() {
		defer wg.Done()
		if err := watcher.Run(ctx); err != nil {
			logger.Error("config watcher stopped", "error", err)
		}
	}()
	go func() {
		defer wg.Done()
		host.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		b.Run(ctx)
	}()
	if *console {
		go host.readCommands(ctx, os.Stdin)
	}

	shutdownChan := make(chan os.Signal, 1)
	signal.Notify(shutdownChan, syscall.SIGINT, syscall.SIGTERM)
	<-shutdownChan

	logger.Info("shutdown signal received, stopping bridge")
	cancel()
	wg.Wait()
	logger.Info("bridge stopped")
}
