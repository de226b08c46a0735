package main

import (
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/lymanepp/ha-calibration/pkg/config"
)

var (
	logLevel        string
	calibrationFile string
	envFile         string

	cfg *config.Config
)

func setupLogger() error {
	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		return fmt.Errorf("failed to parse log level: %w", err)
	}
	logrus.SetLevel(level)
	logrus.SetFormatter(&logrus.TextFormatter{})
	if term.IsTerminal(int(os.Stderr.Fd())) {
		logrus.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: time.DateTime,
		})
	}

	return nil
}

func main() {
	cmd := NewCommand()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ha-calibration",
		Short: "Republish home-automation sensors through fitted calibration polynomials",
		Long: `ha-calibration fits a polynomial to each configured set of (raw, true) data points
and republishes the matching upstream sensor through it over MQTT.

Process settings come from the environment (or a .env file); calibrations
come from a YAML file.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if envFile != "" {
				cfg = config.Load(envFile)
			} else {
				cfg = config.Load()
			}
			if !cmd.Flags().Changed("log-level") {
				logLevel = cfg.LogLevel
			}
			if cmd.Flags().Changed("config") {
				cfg.CalibrationFile = calibrationFile
			}
			return setupLogger()
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context())
		},
	}

	cmd.PersistentFlags().StringVarP(&logLevel, "log-level", "l", "info", "log level (trace, debug, info, warn, error, fatal, panic)")
	cmd.PersistentFlags().StringVarP(&calibrationFile, "config", "c", "calibrations.yaml", "path to the calibration definitions")
	cmd.PersistentFlags().StringVar(&envFile, "env-file", "", "dotenv file to seed the environment from (default .env)")

	cmd.AddCommand(
		NewServeCommand(),
		NewFitCommand(),
		NewValidateCommand(),
	)

	return cmd
}
