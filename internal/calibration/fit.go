package calibration

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/lymanepp/ha-calibration/internal/models"
)

// Fit returns the polynomial of the given degree minimising the squared residuals over points.
//
// Columns of the Vandermonde matrix are scaled to unit norm before solving so that
// wide x ranges at higher degrees stay well conditioned; the scale is folded back
// into the coefficients afterwards. A system that cannot determine every
// coefficient (too few distinct x values, rank deficiency, non-finite values)
// fails with ErrDegenerateFit.
func Fit(points []models.Point, degree int) (*Polynomial, error) {
	if degree < 0 {
		return nil, fmt.Errorf("%w: negative degree %d", ErrDegenerateFit, degree)
	}

	distinct := make(map[float64]struct{}, len(points))
	for _, p := range points {
		if !isFinite(p.X) || !isFinite(p.Y) {
			return nil, fmt.Errorf("%w: non-finite data point (%v, %v)", ErrDegenerateFit, p.X, p.Y)
		}
		distinct[p.X] = struct{}{}
	}
	if len(distinct) <= degree {
		return nil, fmt.Errorf("%w: %d distinct x values cannot determine a degree %d polynomial",
			ErrDegenerateFit, len(distinct), degree)
	}

	rows, cols := len(points), degree+1
	lhs := mat.NewDense(rows, cols, nil)
	rhs := mat.NewVecDense(rows, nil)
	for i, p := range points {
		// column j holds x^(degree-j)
		v := 1.0
		for j := degree; j >= 0; j-- {
			lhs.Set(i, j, v)
			v *= p.X
		}
		rhs.SetVec(i, p.Y)
	}

	scale := make([]float64, cols)
	for j := 0; j < cols; j++ {
		scale[j] = mat.Norm(lhs.ColView(j), 2)
		if scale[j] == 0 || !isFinite(scale[j]) {
			return nil, fmt.Errorf("%w: column %d has norm %v", ErrDegenerateFit, j, scale[j])
		}
	}
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			lhs.Set(i, j, lhs.At(i, j)/scale[j])
		}
	}

	var solution mat.VecDense
	if err := solution.SolveVec(lhs, rhs); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDegenerateFit, err)
	}

	coefficients := make([]float64, cols)
	for j := range coefficients {
		coefficients[j] = solution.AtVec(j) / scale[j]
		if !isFinite(coefficients[j]) {
			return nil, fmt.Errorf("%w: coefficient %d is %v", ErrDegenerateFit, j, coefficients[j])
		}
	}

	return NewPolynomial(coefficients...), nil
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
