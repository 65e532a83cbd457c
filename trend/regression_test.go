package trend

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradingbot/messages"
)

func window(prices []float64, volumes []float64, step int64) []messages.TransactionInfo {
	transactions := make([]messages.TransactionInfo, len(prices))
	for i, price := range prices {
		transactions[i] = messages.TransactionInfo{
			Symbol: "AAA",
			Price:  price,
			Volume: volumes[i],
			Stamp:  int64(i) * step,
		}
	}
	return transactions
}

func TestFitTrendRising(t *testing.T) {
	// one hour window, price climbing exactly 1.0 per hour
	transactions := window(
		[]float64{10, 10.5, 11},
		[]float64{1, 1, 1},
		1_800_000,
	)

	fitted, err := fitTrend(transactions)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, fitted.Absolute, 1e-6)
	assert.InDelta(t, 1.0/11.0, fitted.Relative, 1e-6)
}

func TestFitTrendFalling(t *testing.T) {
	transactions := window(
		[]float64{11, 10.5, 10},
		[]float64{2, 3, 2},
		1_800_000,
	)

	fitted, err := fitTrend(transactions)
	require.NoError(t, err)
	assert.Less(t, fitted.Absolute, 0.0)
	assert.Less(t, fitted.Relative, 0.0)
}

func TestFitTrendFlat(t *testing.T) {
	transactions := window(
		[]float64{10, 10, 10, 10},
		[]float64{1, 5, 2, 3},
		900_000,
	)

	fitted, err := fitTrend(transactions)
	require.NoError(t, err)
	assert.InDelta(t, 0.0, fitted.Absolute, 1e-6)
}

func TestFitTrendTooFewTransactions(t *testing.T) {
	_, err := fitTrend(window([]float64{10, 11}, []float64{1, 1}, 1000))
	assert.Error(t, err)
}

func TestWeightedPrice(t *testing.T) {
	transactions := []messages.TransactionInfo{
		{Price: 10, Volume: 1},
		{Price: 20, Volume: 3},
	}
	assert.InDelta(t, 17.5, weightedPrice(transactions), 1e-9)
	assert.Equal(t, 0.0, weightedPrice([]messages.TransactionInfo{{Price: 10, Volume: 0}}))
}
