// Package main provides the entry point for the lessonpipe server.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/etiennegwiavander/linguaspark-sub009/internal/app"
	"github.com/etiennegwiavander/linguaspark-sub009/internal/config"
	"github.com/etiennegwiavander/linguaspark-sub009/internal/logging"
)

var (
	port      = flag.Int("port", 0, "Server port (default from config)")
	hostname  = flag.String("hostname", "", "Listen address (default from config)")
	directory = flag.String("directory", "", "Project directory holding lessonpipe.json")
	logLevel  = flag.String("log-level", "", "Log level (DEBUG|INFO|WARN|ERROR)")
	version   = flag.Bool("version", false, "Print version and exit")
)

const (
	Version   = "0.1.0"
	BuildTime = "dev"
)

func main() {
	flag.Parse()

	if *version {
		fmt.Printf("lessonpipe-server %s (%s)\n", Version, BuildTime)
		os.Exit(0)
	}

	// Determine working directory
	workDir := *directory
	if workDir == "" {
		var err error
		workDir, err = os.Getwd()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to get working directory: %v\n", err)
			os.Exit(1)
		}
	}

	if err := config.GetPaths().EnsurePaths(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create data directories: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.Load(workDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	app.InitLogging(cfg.Log, *logLevel, false)

	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *hostname != "" {
		cfg.Server.Hostname = *hostname
	}

	a, err := app.New(context.Background(), cfg)
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to initialize")
	}
	defer a.Close()

	logging.Info().Str("version", Version).Str("directory", workDir).Msg("starting lessonpipe server")
	if a.Orchestrator == nil {
		logging.Warn().Msg("no generation endpoint configured; generation is disabled")
	}

	srv := a.Server()
	go func() {
		logging.Info().Str("addr", srv.Addr()).Msg("server listening")
		if err := srv.Start(); err != nil {
			logging.Fatal().Err(err).Msg("server error")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logging.Info().Msg("shutting down server")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Error().Err(err).Msg("server shutdown error")
	}

	logging.Info().Msg("server stopped")
}
