package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lymanepp/ha-calibration/pkg/config"
)

func NewValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the environment settings and the calibration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			specs, err := config.LoadCalibrations(cfg.CalibrationFile)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d calibrations valid\n", cfg.CalibrationFile, len(specs))
			return nil
		},
	}
}
