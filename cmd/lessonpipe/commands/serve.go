package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/etiennegwiavander/linguaspark-sub009/internal/config"
	"github.com/etiennegwiavander/linguaspark-sub009/internal/logging"
	"github.com/etiennegwiavander/linguaspark-sub009/pkg/types"
)

var (
	servePort     int
	serveHostname string
	serveWatch    bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the lessonpipe HTTP server",
	Long: `Start lessonpipe as a server that exposes the session, generation,
history and analytics API, plus an SSE event stream at /event.

With --watch, edits to the project config file change the log level
without a restart.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Port to listen on (default from config)")
	serveCmd.Flags().StringVar(&serveHostname, "hostname", "", "Hostname to listen on (default from config)")
	serveCmd.Flags().BoolVar(&serveWatch, "watch", false, "Reload the log level when the project config changes")
}

func runServe(cmd *cobra.Command, args []string) error {
	// The server always logs to stderr.
	if !printLogs {
		cfg := logging.DefaultConfig()
		cfg.Level = logging.ParseLevel(logLevel)
		logging.Init(cfg)
	}

	a, err := loadApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	if logLevel == "" && a.Config.Log.Level != "" {
		logging.SetLevel(logging.ParseLevel(a.Config.Log.Level))
	}
	if servePort != 0 {
		a.Config.Server.Port = servePort
	}
	if serveHostname != "" {
		a.Config.Server.Hostname = serveHostname
	}
	if a.Orchestrator == nil {
		logging.Warn().Msg("no generation endpoint configured; /session/{id}/generate is disabled")
	}

	if serveWatch {
		dir, err := GetWorkDir(workDir)
		if err != nil {
			return err
		}
		w, err := config.NewWatcher(dir, func(cfg *types.Config) {
			if logLevel != "" {
				return
			}
			logging.SetLevel(logging.ParseLevel(cfg.Log.Level))
			logging.Info().Str("level", logging.GetLevel().String()).Msg("log level updated")
		})
		if err != nil {
			return fmt.Errorf("watch config: %w", err)
		}
		w.Start()
		defer w.Stop()
	}

	srv := a.Server()
	g, ctx := errgroup.WithContext(cmd.Context())

	g.Go(func() error {
		logging.Info().Str("addr", srv.Addr()).Str("version", Version).Msg("starting server")
		if err := srv.Start(); err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		logging.Info().Msg("shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logging.Error().Err(err).Msg("server shutdown error")
		}
		return nil
	})

	err = g.Wait()
	logging.Info().Msg("server stopped")
	return err
}
