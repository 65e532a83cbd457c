package profit

import (
	"context"
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

func testEvaluator(cooldown int64, margin config.Threshold) (*Evaluator, *fakePublisher) {
	pub := &fakePublisher{}
	evaluator := New(pub, cooldown, margin, zap.NewNop())
	evaluator.now = func() int64 { return 9_000_000 }
	return evaluator, pub
}

// holdingSnapshot holds 10 units of AAA acquired at 100 apiece with 5
// commission, latest price as given.
func holdingSnapshot(price string) []byte {
	return []byte(`{
		"stamp": 8000000,
		"active_orders": 0,
		"budget": {"amount": 500, "stamp": 8000000},
		"portfolio": [
			{"symbol": "AAA", "commission": 5, "value": 1000, "volume": 10, "stamp": 1000000}
		],
		"prices": [
			{"symbol": "AAA", "price": ` + price + `, "stamp": 8000000}
		]
	}`)
}

func TestHandleProposesSellOrder(t *testing.T) {
	// 10% margin: sales 1200, cogs 1005, margin 16.25%
	evaluator, pub := testEvaluator(3600, config.Threshold{Value: 10, Percent: true})

	require.NoError(t, evaluator.Handle(context.Background(), holdingSnapshot("120")))

	require.Equal(t, []string{bus.RouteDatabaseSave}, pub.routes)
	request, ok := pub.payloads[0].(messages.SaveRequest)
	require.True(t, ok)
	assert.Equal(t, "orders", request.TableName)

	// volume positive for a sell, priced at the latest observation
	assert.Equal(t, 10.0, request.TableDesc["volume"]["0"])
	assert.Equal(t, 120.0, request.TableDesc["price"]["0"])
	assert.Equal(t, "AAA", request.TableDesc["symbol"]["0"])
	assert.Equal(t, int64(9_000_000), request.TableDesc["stamp"]["0"])
	assert.Equal(t, database.OrderPending, request.TableDesc["status"]["0"])
}

func TestHandleMarginBelowThreshold(t *testing.T) {
	// sales 1010, cogs 1005, margin under 0.5%
	evaluator, pub := testEvaluator(3600, config.Threshold{Value: 10, Percent: true})

	require.NoError(t, evaluator.Handle(context.Background(), holdingSnapshot("101")))
	assert.Empty(t, pub.routes)
}

func TestHandleFixedThreshold(t *testing.T) {
	// fixed threshold: profit must be at least the acquisition value
	evaluator, pub := testEvaluator(3600, config.Threshold{Value: 1000})
	require.NoError(t, evaluator.Handle(context.Background(), holdingSnapshot("210")))
	require.Len(t, pub.routes, 1)

	// sales 2000, cogs 1005, profit 995 < 1000
	evaluator, pub = testEvaluator(3600, config.Threshold{Value: 1000})
	require.NoError(t, evaluator.Handle(context.Background(), holdingSnapshot("200")))
	assert.Empty(t, pub.routes)
}

func TestHandleCooldown(t *testing.T) {
	// position acquired at 1_000_000 and priced at 8_000_000, cooldown
	// of 7000s has not elapsed yet
	evaluator, pub := testEvaluator(7000, config.Threshold{Value: 1, Percent: true})

	require.NoError(t, evaluator.Handle(context.Background(), holdingSnapshot("120")))
	assert.Empty(t, pub.routes)
}

func TestHandleGates(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"malformed", `not json`},
		{"no stamp", `{"active_orders": 0}`},
		{"active orders", `{"stamp": 1, "active_orders": 1, "budget": {"amount": 1, "stamp": 1}}`},
		{"no budget", `{"stamp": 1, "active_orders": 0}`},
		{"empty portfolio", `{"stamp": 1, "active_orders": 0, "budget": {"amount": 1, "stamp": 1}, "portfolio": [], "prices": []}`},
		{"no prices", `{"stamp": 1, "active_orders": 0, "budget": {"amount": 1, "stamp": 1}, "portfolio": [{"symbol": "AAA", "commission": 0, "value": 1, "volume": 1, "stamp": 1}]}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			evaluator, pub := testEvaluator(0, config.Threshold{Value: 1, Percent: true})
			assert.NoError(t, evaluator.Handle(context.Background(), []byte(tc.body)))
			assert.Empty(t, pub.routes)
		})
	}
}

func TestHandleSymbolWithoutPrice(t *testing.T) {
	evaluator, pub := testEvaluator(3600, config.Threshold{Value: 1, Percent: true})

	body := []byte(`{
		"stamp": 8000000,
		"active_orders": 0,
		"budget": {"amount": 500, "stamp": 8000000},
		"portfolio": [
			{"symbol": "ZZZ", "commission": 0, "value": 100, "volume": 1, "stamp": 1000000}
		],
		"prices": [
			{"symbol": "AAA", "price": 1, "stamp": 8000000}
		]
	}`)
	require.NoError(t, evaluator.Handle(context.Background(), body))
	assert.Empty(t, pub.routes)
}
