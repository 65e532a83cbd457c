package trend

import (
	"context"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"tradingbot/bus"
	"tradingbot/config"
	"tradingbot/database"
	"tradingbot/messages"
)

type fakePublisher struct {
	routes   []string
	payloads []any
}

func (f *fakePublisher) Publish(_ context.Context, routingKey string, payload any) error {
	f.routes = append(f.routes, routingKey)
	f.payloads = append(f.payloads, payload)
	return nil
}

// risingSnapshot climbs 1.0 per hour at a weighted price of 10.5.
func risingSnapshot(budget float64) []byte {
	return []byte(`{
		"stamp": 4000000,
		"active_orders": 0,
		"budget": {"amount": ` + strconv.FormatFloat(budget, 'f', -1, 64) + `, "stamp": 4000000},
		"transactions": [
			{"symbol": "AAA", "price": 10.0, "volume": 1, "stamp": 0},
			{"symbol": "AAA", "price": 10.5, "volume": 1, "stamp": 1800000},
			{"symbol": "AAA", "price": 11.0, "volume": 1, "stamp": 3600000}
		]
	}`)
}

func TestHandleProposesBuyOrder(t *testing.T) {
	pub := &fakePublisher{}
	evaluator := New(pub, config.Threshold{Value: 0.5}, zap.NewNop())
	evaluator.now = func() int64 { return 4_200_000 }

	require.NoError(t, evaluator.Handle(context.Background(), risingSnapshot(1000)))

	require.Equal(t, []string{bus.RouteDatabaseSave}, pub.routes)
	request, ok := pub.payloads[0].(messages.SaveRequest)
	require.True(t, ok)
	assert.Equal(t, "orders", request.TableName)

	// floor(1000 / 10.5) units, volume negative for a buy
	assert.Equal(t, -95.0, request.TableDesc["volume"]["0"])
	assert.Equal(t, "AAA", request.TableDesc["symbol"]["0"])
	assert.Equal(t, int64(4_200_000), request.TableDesc["stamp"]["0"])
	assert.Equal(t, database.OrderPending, request.TableDesc["status"]["0"])
	assert.InDelta(t, 10.5, request.TableDesc["price"]["0"].(float64), 1e-9)
}

func TestHandleGates(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"malformed", `not json`},
		{"no stamp", `{"active_orders": 0}`},
		{"active orders", `{"stamp": 1, "active_orders": 2, "budget": {"amount": 100, "stamp": 1}}`},
		{"no budget", `{"stamp": 1, "active_orders": 0}`},
		{"exhausted budget", `{"stamp": 1, "active_orders": 0, "budget": {"amount": 0, "stamp": 1}}`},
		{"no transactions", `{"stamp": 1, "active_orders": 0, "budget": {"amount": 100, "stamp": 1}, "transactions": []}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			pub := &fakePublisher{}
			evaluator := New(pub, config.Threshold{Value: 0.5}, zap.NewNop())

			assert.NoError(t, evaluator.Handle(context.Background(), []byte(tc.body)))
			assert.Empty(t, pub.routes)
		})
	}
}

func TestHandleBudgetBuysNoUnit(t *testing.T) {
	pub := &fakePublisher{}
	evaluator := New(pub, config.Threshold{Value: 0.5}, zap.NewNop())

	require.NoError(t, evaluator.Handle(context.Background(), risingSnapshot(5)))
	assert.Empty(t, pub.routes)
}

func TestHandleUnusablePriceEmitsNothing(t *testing.T) {
	pub := &fakePublisher{}
	evaluator := New(pub, config.Threshold{Value: 0.5}, zap.NewNop())

	// the trend clears the threshold but the weighted price is zero, so
	// no finite volume can be computed
	body := []byte(`{
		"stamp": 4000000,
		"active_orders": 0,
		"budget": {"amount": 1000, "stamp": 4000000},
		"transactions": [
			{"symbol": "AAA", "price": -1.0, "volume": 1, "stamp": 0},
			{"symbol": "AAA", "price": 0.0, "volume": 1, "stamp": 1800000},
			{"symbol": "AAA", "price": 1.0, "volume": 1, "stamp": 3600000}
		]
	}`)
	require.NoError(t, evaluator.Handle(context.Background(), body))
	assert.Empty(t, pub.routes)
}

func TestHandleThresholdNotCleared(t *testing.T) {
	pub := &fakePublisher{}
	evaluator := New(pub, config.Threshold{Value: 2.0}, zap.NewNop())

	require.NoError(t, evaluator.Handle(context.Background(), risingSnapshot(1000)))
	assert.Empty(t, pub.routes)
}

func TestPickBestPrefersSteepestTrend(t *testing.T) {
	evaluator := New(&fakePublisher{}, config.Threshold{Value: 0.1}, zap.NewNop())

	transactions := []messages.TransactionInfo{
		// AAA climbs 1.0 over the window
		{Symbol: "AAA", Price: 10.0, Volume: 1, Stamp: 0},
		{Symbol: "AAA", Price: 10.5, Volume: 1, Stamp: 1_800_000},
		{Symbol: "AAA", Price: 11.0, Volume: 1, Stamp: 3_600_000},
		// BBB climbs 2.0 over the window
		{Symbol: "BBB", Price: 5.0, Volume: 1, Stamp: 0},
		{Symbol: "BBB", Price: 6.0, Volume: 1, Stamp: 1_800_000},
		{Symbol: "BBB", Price: 7.0, Volume: 1, Stamp: 3_600_000},
		// CCC has too few transactions to fit
		{Symbol: "CCC", Price: 1.0, Volume: 1, Stamp: 0},
	}

	best := evaluator.pickBest(transactions)
	require.NotNil(t, best)
	assert.Equal(t, "BBB", best.symbol)
	assert.InDelta(t, 6.0, best.price, 1e-9)
}

func TestPickBestPercentThreshold(t *testing.T) {
	// BBB's absolute climb is larger, but relative to its price AAA
	// climbs faster
	transactions := []messages.TransactionInfo{
		{Symbol: "AAA", Price: 2.0, Volume: 1, Stamp: 0},
		{Symbol: "AAA", Price: 2.5, Volume: 1, Stamp: 1_800_000},
		{Symbol: "AAA", Price: 3.0, Volume: 1, Stamp: 3_600_000},
		{Symbol: "BBB", Price: 100.0, Volume: 1, Stamp: 0},
		{Symbol: "BBB", Price: 101.0, Volume: 1, Stamp: 1_800_000},
		{Symbol: "BBB", Price: 102.0, Volume: 1, Stamp: 3_600_000},
	}

	evaluator := New(&fakePublisher{}, config.Threshold{Value: 5, Percent: true}, zap.NewNop())
	best := evaluator.pickBest(transactions)
	require.NotNil(t, best)
	assert.Equal(t, "AAA", best.symbol)
}
