package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/muesli/termenv"
	"github.com/spf13/cobra"

	"github.com/mklimuk/hpa/cmd/dev/cmd"
	"github.com/mklimuk/hpa/config"
)

func newLogger(debug bool) *slog.Logger {
	charm := log.NewWithOptions(os.Stderr, log.Options{
		ReportCaller:    true,
		ReportTimestamp: true,
		TimeFormat:      time.DateTime,
		Prefix:          "dev",
		Level:           log.InfoLevel,
	})
	charm.SetColorProfile(termenv.TrueColor)
	if debug {
		charm.SetLevel(log.DebugLevel)
	}
	return slog.New(charm)
}

func rootCmd() *cobra.Command {
	var debug bool
	root := &cobra.Command{
		Use:           "dev",
		Short:         "build and test tool for the hpa station",
		Long:          "Builds the hpa cli natively or in a cross-compiling container and runs the test suites",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			slog.SetDefault(newLogger(debug))
		},
	}
	root.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")

	root.AddCommand(
		cmd.BuildCmd(),
		cmd.TestCmd(),
		cmd.LintCmd(),
		cmd.IntegrationTestCmd(),
		&cobra.Command{
			Use:   "version",
			Short: "Print the dev tool build",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Println(config.BuildInfo())
			},
		},
	)
	return root
}

func main() {
	err := rootCmd().Execute()
	if err != nil {
		slog.Error("dev command failed", "error", err)
		os.Exit(1)
	}
}
