// Package cmd implements the sandboxctl CLI: the three user-facing
// isolation commands (nonet, hidehome, isolate), version, and the two
// hidden re-exec stages the orchestrator dispatches into.
package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"sandboxctl/logging"
)

// Version information set at build time.
var (
	Version   = "0.1.0"
	BuildTime = "unknown"
)

// Global flags.
var (
	globalLog       string
	globalLogFormat string
	globalDebug     bool
)

// rootCmd is the base command for sandboxctl.
var rootCmd = &cobra.Command{
	Use:   "sandboxctl",
	Short: "Run a command inside a restricted set of Linux namespaces",
	Long: `sandboxctl launches a command inside a freshly constructed set of
Linux kernel namespaces, reshapes its filesystem view according to the
chosen isolation policy, drops privileges, then execs the command so its
whole process subtree inherits the sandbox.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		setupLogging()
		return nil
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// GetContext returns a context that cancels on SIGINT/SIGTERM, for
// commands that want cooperative cancellation outside the orchestrator's
// own signal-forwarding park loop.
func GetContext() context.Context {
	ctx, _ := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	return ctx
}

func init() {
	rootCmd.PersistentFlags().StringVar(&globalLog, "log", "", "set the log file path")
	rootCmd.PersistentFlags().StringVar(&globalLogFormat, "log-format", "text", "set the format for log output (text or json)")
	rootCmd.PersistentFlags().BoolVar(&globalDebug, "debug", false, "enable debug logging")
}

// exePath resolves the path used to re-exec into stage1/stage2. The
// policy configuration travels via the environment, so this only needs
// to name a binary the kernel can load; os.Executable is preferred over
// os.Args[0] since the latter may be a bare name resolved through a PATH
// that a later namespace no longer shares.
func exePath() string {
	p, err := os.Executable()
	if err != nil {
		return os.Args[0]
	}
	return p
}

func setupLogging() {
	logOutput := os.Stderr
	if globalLog != "" {
		f, err := os.OpenFile(globalLog, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err == nil {
			logOutput = f
		}
	}

	level := logging.LevelFromEnv()
	if globalDebug {
		level = slog.LevelDebug
	}

	logger := logging.NewLogger(logging.Config{
		Level:  level,
		Format: globalLogFormat,
		Output: logOutput,
	})
	logging.SetDefault(logger)
}
