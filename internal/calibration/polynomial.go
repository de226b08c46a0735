package calibration

import (
	"github.com/shopspring/decimal"
)

// Polynomial is an immutable polynomial with coefficients ordered highest degree first
type Polynomial struct {
	coefficients []float64
}

// NewPolynomial creates a polynomial from coefficients, highest degree first.
// The slice is copied.
func NewPolynomial(coefficients ...float64) *Polynomial {
	c := make([]float64, len(coefficients))
	copy(c, coefficients)
	return &Polynomial{coefficients: c}
}

// Degree returns the polynomial order
func (p *Polynomial) Degree() int {
	return len(p.coefficients) - 1
}

// Coefficients returns a copy of the coefficients, highest degree first
func (p *Polynomial) Coefficients() []float64 {
	c := make([]float64, len(p.coefficients))
	copy(c, p.coefficients)
	return c
}

// Eval evaluates the polynomial at x using Horner's scheme
func (p *Polynomial) Eval(x float64) float64 {
	var y float64
	for _, c := range p.coefficients {
		y = y*x + c
	}
	return y
}

// Round rounds v to precision decimal digits, ties to even. Ties are judged on the
// shortest decimal form of v, so Round(2.675, 2) is 2.68 even though the float
// 2.675 lies slightly below the tie. v must be finite.
func Round(v float64, precision int) float64 {
	rounded, _ := decimal.NewFromFloat(v).RoundBank(int32(precision)).Float64()
	return rounded
}
