// Package trend implements the rising-trend buy evaluator: it fits a
// linear price trend per symbol over the snapshot window and proposes a
// single buy order for the best candidate, allocating the whole budget.
package trend

import (
	"context"
	"encoding/json"
	"math"
	"time"

	"go.uber.org/zap"

	"tradingbot/bus"
	"tradingbot/config"
	"tradingbot/database"
	"tradingbot/messages"
)

// Evaluator consumes requested.trends snapshots.
type Evaluator struct {
	bus       bus.Publisher
	threshold config.Threshold
	log       *zap.Logger

	now func() int64
}

// New creates the trend evaluator with the configured buy threshold.
func New(b bus.Publisher, threshold config.Threshold, log *zap.Logger) *Evaluator {
	return &Evaluator{
		bus:       b,
		threshold: threshold,
		log:       log,
		now:       func() int64 { return time.Now().UTC().UnixMilli() },
	}
}

// candidate is a symbol whose fitted trend cleared the threshold.
type candidate struct {
	symbol string
	price  float64 // volume-weighted average transaction price
	trend  float64 // the compared trend figure, absolute or relative
}

// Handle processes one trends snapshot. No buy is proposed while prior
// orders are in flight or the budget is exhausted; the snapshot is
// always acked.
func (e *Evaluator) Handle(ctx context.Context, body []byte) error {
	var snapshot messages.TrendsSnapshot
	if err := json.Unmarshal(body, &snapshot); err != nil {
		e.log.Warn("dropping malformed trends snapshot", zap.Error(err))
		return nil
	}
	if snapshot.Stamp == 0 {
		e.log.Warn("trends snapshot does not contain a stamp")
		return nil
	}
	if snapshot.ActiveOrders > 0 {
		e.log.Debug("there are active orders, cannot compute accurate trends",
			zap.Int64("active_orders", snapshot.ActiveOrders))
		return nil
	}
	if snapshot.Budget == nil {
		e.log.Warn("trends snapshot does not contain the budget")
		return nil
	}
	if snapshot.Budget.Amount <= 0 {
		e.log.Warn("the budget is exhausted", zap.Float64("amount", snapshot.Budget.Amount))
		return nil
	}
	if len(snapshot.Transactions) == 0 {
		e.log.Warn("there are no transactions to compute trends from")
		return nil
	}

	best := e.pickBest(snapshot.Transactions)
	if best == nil {
		e.log.Debug("no symbol cleared the trend threshold")
		return nil
	}
	if best.price <= 0 {
		e.log.Warn("candidate has no usable price",
			zap.String("symbol", best.symbol),
			zap.Float64("price", best.price))
		return nil
	}

	volume := math.Floor(snapshot.Budget.Amount / best.price)
	if volume < 1 {
		e.log.Debug("budget buys no whole unit of the best candidate",
			zap.String("symbol", best.symbol),
			zap.Float64("price", best.price))
		return nil
	}

	e.log.Info("decided to buy",
		zap.String("symbol", best.symbol),
		zap.Float64("volume", volume),
		zap.Float64("price", best.price))

	request := messages.SaveRequest{
		TableName: database.Order{}.TableName(),
		TableDesc: database.ColumnarFromRecords([]map[string]any{{
			"price":  best.price,
			"symbol": best.symbol,
			"stamp":  e.now(),
			"volume": -volume,
			"status": database.OrderPending,
		}}),
	}
	return e.bus.Publish(ctx, bus.RouteDatabaseSave, request)
}

// pickBest fits a trend for every symbol with at least 3 transactions
// in the window and returns the candidate with the highest trend, or
// nil when no symbol clears the threshold. Ties keep the symbol first
// encountered in the snapshot.
func (e *Evaluator) pickBest(transactions []messages.TransactionInfo) *candidate {
	symbols := make([]string, 0)
	bySymbol := make(map[string][]messages.TransactionInfo)
	for _, t := range transactions {
		if _, seen := bySymbol[t.Symbol]; !seen {
			symbols = append(symbols, t.Symbol)
		}
		bySymbol[t.Symbol] = append(bySymbol[t.Symbol], t)
	}

	var best *candidate
	for _, symbol := range symbols {
		window := bySymbol[symbol]
		if len(window) < 3 {
			e.log.Debug("fewer than 3 transactions, cannot compute trend",
				zap.String("symbol", symbol))
			continue
		}

		fitted, err := fitTrend(window)
		if err != nil {
			e.log.Debug("trend fit failed", zap.String("symbol", symbol), zap.Error(err))
			continue
		}
		e.log.Debug("computed trend",
			zap.String("symbol", symbol),
			zap.Float64("absolute", fitted.Absolute),
			zap.Float64("relative", fitted.Relative))

		trend := fitted.Absolute
		limit := e.threshold.Value
		if e.threshold.Percent {
			trend = fitted.Relative
			limit = e.threshold.Fraction()
		}
		if trend <= limit {
			continue
		}

		if best == nil || trend > best.trend {
			best = &candidate{
				symbol: symbol,
				price:  weightedPrice(window),
				trend:  trend,
			}
		}
	}
	return best
}

// weightedPrice is the volume-weighted average transaction price.
func weightedPrice(transactions []messages.TransactionInfo) float64 {
	var value, volume float64
	for _, t := range transactions {
		value += t.Price * t.Volume
		volume += t.Volume
	}
	if volume == 0 {
		return 0
	}
	return value / volume
}
