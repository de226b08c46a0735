package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"

	pkgerrors "github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/lymanepp/ha-calibration/internal/models"
)

const (
	DefaultDegree    = 1
	DefaultPrecision = 2
	MinDegree        = 1
	MaxDegree        = 7
	MaxPrecision     = 15 // significant digits of a float64
)

var (
	slugPattern     = regexp.MustCompile(`^[a-z0-9_]+$`)
	entityIDPattern = regexp.MustCompile(`^[a-z0-9_]+\.[a-z0-9_]+$`)
)

// calibrationKey is the top-level key holding calibration definitions
const calibrationKey = "calibration"

// RawCalibration is one calibration as written in the file; nil pointers take defaults
type RawCalibration struct {
	Source            string     `yaml:"source"`
	DataPoints        [][]string `yaml:"data_points"`
	Degree            *int       `yaml:"degree,omitempty"`
	Precision         *int       `yaml:"precision,omitempty"`
	Attribute         string     `yaml:"attribute,omitempty"`
	UniqueID          string     `yaml:"unique_id,omitempty"`
	FriendlyName      string     `yaml:"friendly_name,omitempty"`
	DeviceClass       string     `yaml:"device_class,omitempty"`
	UnitOfMeasurement string     `yaml:"unit_of_measurement,omitempty"`
}

// LoadCalibrations reads, validates and converts the calibration file at path
func LoadCalibrations(path string) (map[string]models.CalibrationSpec, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to open calibration file %s", path)
	}
	defer f.Close()

	specs, err := ParseCalibrations(f)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "invalid calibration file %s", path)
	}
	return specs, nil
}

// ParseCalibrations decodes calibration definitions and validates every entry.
// All problems are reported together.
func ParseCalibrations(r io.Reader) (map[string]models.CalibrationSpec, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "failed to read calibrations")
	}

	// other top-level keys belong to other consumers of the file
	var top map[string]yaml.Node
	if err := yaml.Unmarshal(data, &top); err != nil {
		return nil, pkgerrors.Wrap(err, "failed to decode calibrations")
	}
	node, ok := top[calibrationKey]
	if !ok {
		return map[string]models.CalibrationSpec{}, nil
	}

	section, err := yaml.Marshal(&node)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "failed to re-encode calibrations")
	}

	var raw map[string]RawCalibration
	decoder := yaml.NewDecoder(bytes.NewReader(section))
	decoder.KnownFields(true)
	if err := decoder.Decode(&raw); err != nil && !errors.Is(err, io.EOF) {
		return nil, pkgerrors.Wrap(err, "failed to decode calibrations")
	}

	return ValidateCalibrations(raw)
}

// ValidateCalibrations applies defaults and checks every entry of raw
func ValidateCalibrations(raw map[string]RawCalibration) (map[string]models.CalibrationSpec, error) {
	names := make([]string, 0, len(raw))
	for name := range raw {
		names = append(names, name)
	}
	sort.Strings(names)

	specs := make(map[string]models.CalibrationSpec, len(raw))
	var problems []error
	for _, name := range names {
		spec, err := validateCalibration(name, raw[name])
		if err != nil {
			problems = append(problems, pkgerrors.Wrapf(err, "calibration %s", name))
			continue
		}
		specs[name] = spec
	}

	if err := errors.Join(problems...); err != nil {
		return nil, err
	}
	return specs, nil
}

func validateCalibration(name string, raw RawCalibration) (models.CalibrationSpec, error) {
	var problems []error
	fail := func(format string, args ...interface{}) {
		problems = append(problems, fmt.Errorf(format, args...))
	}

	if !slugPattern.MatchString(name) {
		fail("name %q is not a valid slug", name)
	}

	if raw.Source == "" {
		fail("source is required")
	} else if !entityIDPattern.MatchString(raw.Source) {
		fail("source %q is not a valid entity id", raw.Source)
	}

	degree := DefaultDegree
	if raw.Degree != nil {
		degree = *raw.Degree
	}
	if degree < MinDegree || degree > MaxDegree {
		fail("degree %d must be between %d and %d", degree, MinDegree, MaxDegree)
	}

	precision := DefaultPrecision
	if raw.Precision != nil {
		precision = *raw.Precision
	}
	if precision < 0 || precision > MaxPrecision {
		fail("precision %d must be between 0 and %d", precision, MaxPrecision)
	}

	if raw.DeviceClass != "" && !IsSensorDeviceClass(raw.DeviceClass) {
		fail("device_class %q is not a known sensor device class", raw.DeviceClass)
	}

	points := make([]models.Point, 0, len(raw.DataPoints))
	for i, pair := range raw.DataPoints {
		point, err := parsePoint(pair)
		if err != nil {
			fail("data_points[%d]: %v", i, err)
			continue
		}
		points = append(points, point)
	}
	if raw.DataPoints == nil {
		fail("data_points is required")
	} else if len(raw.DataPoints) <= degree {
		fail("data_points must have at least %d data_points", degree+1)
	}

	if err := errors.Join(problems...); err != nil {
		return models.CalibrationSpec{}, err
	}

	return models.CalibrationSpec{
		Source:       raw.Source,
		Attribute:    raw.Attribute,
		Degree:       degree,
		Points:       points,
		Precision:    precision,
		Unit:         raw.UnitOfMeasurement,
		DeviceClass:  raw.DeviceClass,
		FriendlyName: raw.FriendlyName,
		UniqueID:     raw.UniqueID,
	}, nil
}

func parsePoint(pair []string) (models.Point, error) {
	if len(pair) != 2 {
		return models.Point{}, fmt.Errorf("expected [x, y], got %d values", len(pair))
	}
	x, err := strconv.ParseFloat(strings.TrimSpace(pair[0]), 64)
	if err != nil {
		return models.Point{}, fmt.Errorf("x %q is not a number", pair[0])
	}
	y, err := strconv.ParseFloat(strings.TrimSpace(pair[1]), 64)
	if err != nil {
		return models.Point{}, fmt.Errorf("y %q is not a number", pair[1])
	}
	return models.Point{X: x, Y: y}, nil
}
