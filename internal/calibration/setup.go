package calibration

import (
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/lymanepp/ha-calibration/internal/models"
)

// Calibration is a named spec together with its fitted polynomial
type Calibration struct {
	Name       string
	Spec       models.CalibrationSpec
	Polynomial *Polynomial
}

// FitCalibration fits one named spec. Failures are returned as *FitError.
func FitCalibration(name string, spec models.CalibrationSpec) (*Calibration, error) {
	poly, err := Fit(spec.Points, spec.Degree)
	if err != nil {
		return nil, &FitError{Calibration: name, Err: err}
	}
	return &Calibration{
		Name:       name,
		Spec:       spec,
		Polynomial: poly,
	}, nil
}

// Setup fits every spec. A calibration that fails to fit is logged and left out
// of the result; the others are unaffected.
func Setup(specs map[string]models.CalibrationSpec, logger logrus.FieldLogger) map[string]*Calibration {
	names := make([]string, 0, len(specs))
	for name := range specs {
		names = append(names, name)
	}
	sort.Strings(names)

	calibrations := make(map[string]*Calibration, len(specs))
	for _, name := range names {
		log := logger.WithField("calibration", name)
		log.Debug("Setup calibration")

		cal, err := FitCalibration(name, specs[name])
		if err != nil {
			log.WithError(err).Errorf("Setup of %s encountered an error", name)
			continue
		}

		log.WithField("coefficients", cal.Polynomial.Coefficients()).Info("Calibration fitted")
		calibrations[name] = cal
	}

	return calibrations
}

// UniqueID returns the configured unique id, defaulting to the calibration name
func (c *Calibration) UniqueID() string {
	if c.Spec.UniqueID != "" {
		return c.Spec.UniqueID
	}
	return c.Name
}

// DisplayName returns the configured friendly name, defaulting to the title-cased calibration name
func (c *Calibration) DisplayName() string {
	if c.Spec.FriendlyName != "" {
		return c.Spec.FriendlyName
	}
	return cases.Title(language.Und).String(strings.ReplaceAll(c.Name, "_", " "))
}
