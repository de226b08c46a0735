package calibration

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPolynomialEval(t *testing.T) {
	p := NewPolynomial(2, -3, 1)

	for _, x := range []float64{-2.5, 0, 1, 4, 17.25} {
		direct := 2*x*x - 3*x + 1
		assert.InDelta(t, direct, p.Eval(x), 1e-9, "x=%v", x)
		assert.Equal(t, p.Eval(x), p.Eval(x))
	}
	assert.Equal(t, 21.0, p.Eval(4))
}

func TestPolynomialIsImmutable(t *testing.T) {
	coefficients := []float64{1, 2}
	p := NewPolynomial(coefficients...)

	coefficients[0] = 100
	got := p.Coefficients()
	got[1] = 100

	assert.Equal(t, []float64{1, 2}, p.Coefficients())
	assert.Equal(t, 1, p.Degree())
}

func TestRound(t *testing.T) {
	tests := []struct {
		value     float64
		precision int
		want      float64
	}{
		{3.14159, 2, 3.14},
		{3.14159, 0, 3},
		{12.345678, 4, 12.3457},
		{2.5, 0, 2},
		{3.5, 0, 4},
		{-7.126, 2, -7.13},
		{42, 3, 42},
		// ties on the shortest decimal form, not the binary value
		{2.675, 2, 2.68},
		{2.665, 2, 2.66},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, Round(tt.value, tt.precision), "Round(%v, %d)", tt.value, tt.precision)
	}
}
