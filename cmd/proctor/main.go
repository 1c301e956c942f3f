// Command proctor runs the exam proctoring engine behind a local HTTP and
// websocket API, and provides device checks and audio calibration.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/teslashibe/go-proctor/internal/config"
	"github.com/teslashibe/go-proctor/internal/log"
)

// Version is the application version.
var Version = "0.1.0"

var (
	cfgFile  string
	logLevel string

	// cfg is loaded once by the root PersistentPreRunE. cfgErrs holds the
	// problems its validation found.
	cfg     *config.Config
	cfgErrs []error
)

var rootCmd = &cobra.Command{
	Use:          "proctor",
	Short:        "Exam proctoring engine: camera, microphone and lockdown monitoring",
	Version:      Version,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, used, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		if logLevel != "" {
			loaded.LogLevel = logLevel
		}
		log.Init(loaded.LogLevel)
		if used != "" {
			log.Debug("config loaded", "file", used)
		}
		cfgErrs = loaded.Validate()
		cfg = loaded
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./proctor.yaml or /etc/proctor/proctor.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	rootCmd.AddCommand(runCmd, checkCmd, calibrateCmd, configCmd, sessionCmd, versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	// The version needs no config.
	PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), "proctor", Version)
	},
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}
