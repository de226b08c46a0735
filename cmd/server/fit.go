package main

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lymanepp/ha-calibration/internal/calibration"
	"github.com/lymanepp/ha-calibration/pkg/config"
)

func NewFitCommand() *cobra.Command {
	var inputs []float64

	cmd := &cobra.Command{
		Use:   "fit [name...]",
		Short: "Fit calibrations and print their coefficients",
		Long: `Fit every calibration in the calibration file (or only the named ones) and
print the fitted coefficients, highest degree first. With --input, also print
the calibrated value of each input.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			specs, err := config.LoadCalibrations(cfg.CalibrationFile)
			if err != nil {
				return err
			}

			names := args
			if len(names) == 0 {
				for name := range specs {
					names = append(names, name)
				}
				sort.Strings(names)
			}

			out := cmd.OutOrStdout()
			failed := 0
			for _, name := range names {
				spec, ok := specs[name]
				if !ok {
					return fmt.Errorf("calibration %s is not defined in %s", name, cfg.CalibrationFile)
				}

				cal, err := calibration.FitCalibration(name, spec)
				if err != nil {
					fmt.Fprintf(out, "%s: %v\n", name, err)
					failed++
					continue
				}

				fmt.Fprintf(out, "%s: %s -> %s\n", name, spec.Source, formatCoefficients(cal.Polynomial.Coefficients()))
				for _, x := range inputs {
					y := cal.Polynomial.Eval(x)
					fmt.Fprintf(out, "  %g -> %s\n", x, formatValue(y, spec.Precision))
				}
			}

			if failed > 0 {
				return fmt.Errorf("%d of %d calibrations failed to fit", failed, len(names))
			}
			return nil
		},
	}

	cmd.Flags().Float64SliceVarP(&inputs, "input", "i", nil, "raw input values to evaluate")

	return cmd
}

func formatCoefficients(coefficients []float64) string {
	parts := make([]string, len(coefficients))
	for i, c := range coefficients {
		parts[i] = fmt.Sprintf("%g", c)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func formatValue(v float64, precision int) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "not a number"
	}
	return fmt.Sprintf("%g", calibration.Round(v, precision))
}
