package trend

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"tradingbot/messages"
)

// Trend is the fitted price movement over a transaction window.
type Trend struct {
	// Absolute is the predicted price change between the window's first
	// and last stamps.
	Absolute float64
	// Relative is the absolute change as a fraction of the predicted
	// final price.
	Relative float64
}

// fitTrend fits an ordinary least-squares regression of price on
// (stamp_hours, volume) with an intercept, solving the normal equation
// with a pseudo-inverse, and predicts the price at the window's first
// and last stamps with the volume regressor held at 1.
func fitTrend(transactions []messages.TransactionInfo) (Trend, error) {
	n := len(transactions)
	if n < 3 {
		return Trend{}, fmt.Errorf("need at least 3 transactions, have %d", n)
	}

	minStamp := transactions[0].Stamp
	for _, t := range transactions {
		if t.Stamp < minStamp {
			minStamp = t.Stamp
		}
	}
	hours := func(stamp int64) float64 {
		return float64(stamp-minStamp) / (3600 * 1000)
	}

	x := mat.NewDense(n, 3, nil)
	y := mat.NewVecDense(n, nil)
	for i, t := range transactions {
		x.SetRow(i, []float64{1, hours(t.Stamp), t.Volume})
		y.SetVec(i, t.Price)
	}

	// theta = pinv(XᵀX) · Xᵀy
	var xtx mat.Dense
	xtx.Mul(x.T(), x)
	var xty mat.VecDense
	xty.MulVec(x.T(), y)

	pinv, err := pseudoInverse(&xtx)
	if err != nil {
		return Trend{}, err
	}
	var theta mat.VecDense
	theta.MulVec(pinv, &xty)

	predict := func(h float64) float64 {
		return theta.AtVec(0) + theta.AtVec(1)*h + theta.AtVec(2)*1
	}
	first := predict(hours(transactions[0].Stamp))
	last := predict(hours(transactions[n-1].Stamp))

	absolute := last - first
	relative := 0.0
	if last != 0 {
		relative = absolute / last
	}
	return Trend{Absolute: absolute, Relative: relative}, nil
}

// pseudoInverse computes the Moore-Penrose pseudo-inverse via SVD,
// zeroing singular values below a relative tolerance.
func pseudoInverse(a *mat.Dense) (*mat.Dense, error) {
	var svd mat.SVD
	if ok := svd.Factorize(a, mat.SVDFull); !ok {
		return nil, fmt.Errorf("svd factorization failed")
	}

	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)
	values := svd.Values(nil)

	tolerance := 0.0
	for _, s := range values {
		if s > tolerance {
			tolerance = s
		}
	}
	tolerance *= 1e-12

	inverted := mat.NewDense(len(values), len(values), nil)
	for i, s := range values {
		if s > tolerance {
			inverted.Set(i, i, 1/s)
		}
	}

	var pinv mat.Dense
	pinv.Product(&v, inverted, u.T())
	return &pinv, nil
}
