package calibration

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lymanepp/ha-calibration/internal/models"
)

func points(xy ...float64) []models.Point {
	pts := make([]models.Point, 0, len(xy)/2)
	for i := 0; i+1 < len(xy); i += 2 {
		pts = append(pts, models.Point{X: xy[i], Y: xy[i+1]})
	}
	return pts
}

func sample(f func(float64) float64, xs ...float64) []models.Point {
	pts := make([]models.Point, 0, len(xs))
	for _, x := range xs {
		pts = append(pts, models.Point{X: x, Y: f(x)})
	}
	return pts
}

func TestFitExactPolynomials(t *testing.T) {
	tests := []struct {
		name   string
		points []models.Point
		degree int
		want   []float64
	}{
		{
			name:   "linear through origin",
			points: points(1, 2, 2, 4, 3, 6),
			degree: 1,
			want:   []float64{2, 0},
		},
		{
			name:   "two points define a line",
			points: points(0, 32, 100, 212),
			degree: 1,
			want:   []float64{1.8, 32},
		},
		{
			name:   "quadratic",
			points: sample(func(x float64) float64 { return 0.5*x*x - 3*x + 1 }, -2, -1, 0, 1, 2, 3),
			degree: 2,
			want:   []float64{0.5, -3, 1},
		},
		{
			name:   "degree above the data's order",
			points: points(0, 1, 1, 3, 2, 5, 3, 7),
			degree: 2,
			want:   []float64{0, 2, 1},
		},
		{
			name:   "cubic",
			points: sample(func(x float64) float64 { return x*x*x - 2*x + 4 }, -3, -1, 0, 2, 4, 5),
			degree: 3,
			want:   []float64{1, 0, -2, 4},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			poly, err := Fit(tt.points, tt.degree)
			require.NoError(t, err)
			assert.Equal(t, tt.degree, poly.Degree())
			assert.InDeltaSlice(t, tt.want, poly.Coefficients(), 1e-9)
		})
	}
}

func TestFitLeastSquares(t *testing.T) {
	// Not collinear: the best line has slope 0.6 and intercept 0.1.
	poly, err := Fit(points(0, 0, 1, 1, 2, 1, 3, 2), 1)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{0.6, 0.1}, poly.Coefficients(), 1e-9)
}

func TestFitWideRange(t *testing.T) {
	f := func(x float64) float64 { return 2e-6*x*x*x - 0.003*x*x + 1.5*x - 40 }
	poly, err := Fit(sample(f, 0, 150, 300, 450, 600, 750, 900, 1000), 3)
	require.NoError(t, err)

	for _, x := range []float64{10, 333, 987} {
		assert.InDelta(t, f(x), poly.Eval(x), 1e-4, "x=%v", x)
	}
}

func TestFitDegenerate(t *testing.T) {
	tests := []struct {
		name   string
		points []models.Point
		degree int
	}{
		{
			name:   "duplicate x values",
			points: points(1, 1, 1, 2, 2, 3),
			degree: 2,
		},
		{
			name:   "single distinct x",
			points: points(5, 1, 5, 2, 5, 3),
			degree: 1,
		},
		{
			name:   "non-finite sample",
			points: points(1, 1, 2, math.Inf(1), 3, 3),
			degree: 1,
		},
		{
			name:   "NaN sample",
			points: points(1, 1, math.NaN(), 2, 3, 3),
			degree: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			poly, err := Fit(tt.points, tt.degree)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrDegenerateFit)
			assert.Nil(t, poly)
		})
	}
}

func TestFitCalibrationReturnsFitError(t *testing.T) {
	_, err := FitCalibration("bad_probe", models.CalibrationSpec{
		Source: "sensor.probe",
		Degree: 2,
		Points: points(1, 1, 1, 2, 2, 3),
	})
	require.Error(t, err)

	var fitErr *FitError
	require.ErrorAs(t, err, &fitErr)
	assert.Equal(t, "bad_probe", fitErr.Calibration)
	assert.ErrorIs(t, err, ErrDegenerateFit)
	assert.Contains(t, err.Error(), "bad_probe")
}
