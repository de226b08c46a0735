package calibration

import (
	"errors"
	"fmt"
)

var (
	// ErrDegenerateFit is returned when the least-squares system cannot determine the coefficients
	ErrDegenerateFit = errors.New("degenerate least-squares system")

	// ErrUnknownState is returned when the source reports the unknown sentinel
	ErrUnknownState = errors.New("source state is unknown")

	// ErrMissingAttribute is returned when the configured attribute is absent from the source state
	ErrMissingAttribute = errors.New("attribute is missing")
)

// FitError reports that a calibration could not be fitted. Setup skips the calibration.
type FitError struct {
	Calibration string
	Err         error
}

func (e *FitError) Error() string {
	return fmt.Sprintf("failed to fit calibration %s: %v", e.Calibration, e.Err)
}

func (e *FitError) Unwrap() error {
	return e.Err
}

// ConversionError reports that an upstream value could not be used as a numeric input
type ConversionError struct {
	Source    string
	Attribute string
	Err       error
}

func (e *ConversionError) Error() string {
	if e.Attribute != "" {
		return fmt.Sprintf("%s attribute %s is not a number: %v", e.Source, e.Attribute, e.Err)
	}
	return fmt.Sprintf("%s state is not a number: %v", e.Source, e.Err)
}

func (e *ConversionError) Unwrap() error {
	return e.Err
}
