// Package commands provides the CLI commands for lessonpipe.
package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/etiennegwiavander/linguaspark-sub009/internal/app"
	"github.com/etiennegwiavander/linguaspark-sub009/internal/config"
	"github.com/etiennegwiavander/linguaspark-sub009/internal/logging"
)

var (
	// Version information set at build time
	Version   = "0.1.0"
	BuildTime = "dev"
)

// Global flags
var (
	printLogs bool
	logLevel  string
	workDir   string
)

var rootCmd = &cobra.Command{
	Use:   "lessonpipe",
	Short: "lessonpipe - turn web pages into language lessons",
	Long: `lessonpipe tracks content extraction sessions and streams structured
language lessons from a generation service.

Run 'lessonpipe generate' to build one lesson from the terminal, or
'lessonpipe serve' to start the HTTP API.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		initLogging()
	},
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

func init() {
	// Global flags available to all commands
	rootCmd.PersistentFlags().BoolVar(&printLogs, "print-logs", false, "Print logs to stderr")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (DEBUG|INFO|WARN|ERROR)")
	rootCmd.PersistentFlags().StringVarP(&workDir, "directory", "d", "", "Project directory holding lessonpipe.json")

	rootCmd.SetVersionTemplate(fmt.Sprintf("lessonpipe %s (%s)\n", Version, BuildTime))

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(sessionCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(analyticsCmd)
	rootCmd.AddCommand(cleanupCmd)
	rootCmd.AddCommand(debugCmd)
}

// Execute runs the root command.
func Execute() error {
	defer logging.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

// GetWorkDir returns the working directory from flag or current directory.
func GetWorkDir(dir string) (string, error) {
	if dir != "" {
		return dir, nil
	}
	return os.Getwd()
}

// initLogging writes logs to stderr with --print-logs and to a file in the
// state directory otherwise.
func initLogging() {
	cfg := logging.DefaultConfig()
	cfg.Level = logging.ParseLevel(logLevel)
	if printLogs {
		cfg.Pretty = true
	} else {
		cfg.Output = io.Discard
		cfg.LogToFile = true
		cfg.LogDir = filepath.Join(config.GetPaths().State, "log")
	}
	logging.Init(cfg)
}

// loadApp loads configuration for the working directory and wires the app.
func loadApp(ctx context.Context) (*app.App, error) {
	dir, err := GetWorkDir(workDir)
	if err != nil {
		return nil, err
	}
	if err := config.GetPaths().EnsurePaths(); err != nil {
		return nil, err
	}
	return app.Load(ctx, dir)
}
