// Package profit implements the profit-taking sell evaluator: portfolio
// holdings whose current sale price clears the configured margin after
// the cooldown are proposed as sell orders.
package profit

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"tradingbot/bus"
	"tradingbot/config"
	"tradingbot/database"
	"tradingbot/messages"
)

// Evaluator consumes requested.profit snapshots.
type Evaluator struct {
	bus      bus.Publisher
	cooldown int64 // seconds
	margin   config.Threshold
	log      *zap.Logger

	now func() int64
}

// New creates the profit evaluator with the configured cooldown and
// margin threshold.
func New(b bus.Publisher, cooldown int64, margin config.Threshold, log *zap.Logger) *Evaluator {
	return &Evaluator{
		bus:      b,
		cooldown: cooldown,
		margin:   margin,
		log:      log,
		now:      func() int64 { return time.Now().UTC().UnixMilli() },
	}
}

// Handle processes one profit snapshot. Gated or malformed snapshots
// are dropped and acked; only a bus failure is retried.
func (e *Evaluator) Handle(ctx context.Context, body []byte) error {
	var snapshot messages.ProfitSnapshot
	if err := json.Unmarshal(body, &snapshot); err != nil {
		e.log.Warn("dropping malformed profit snapshot", zap.Error(err))
		return nil
	}
	if snapshot.Stamp == 0 {
		e.log.Warn("profit snapshot does not contain a stamp")
		return nil
	}
	if snapshot.ActiveOrders > 0 {
		e.log.Debug("there are active orders, holding off selling",
			zap.Int64("active_orders", snapshot.ActiveOrders))
		return nil
	}
	if snapshot.Budget == nil {
		e.log.Warn("profit snapshot does not contain the budget")
		return nil
	}
	if len(snapshot.Portfolio) == 0 {
		e.log.Debug("the portfolio is empty, nothing to sell")
		return nil
	}
	if snapshot.Prices == nil {
		e.log.Warn("profit snapshot does not contain prices")
		return nil
	}

	prices := make(map[string]database.SymbolPrice, len(snapshot.Prices))
	for _, price := range snapshot.Prices {
		prices[price.Symbol] = price
	}

	stamp := e.now()
	orders := make([]map[string]any, 0)
	for _, position := range snapshot.Portfolio {
		latest, ok := prices[position.Symbol]
		if !ok {
			e.log.Debug("no price for symbol", zap.String("symbol", position.Symbol))
			continue
		}
		if !e.sellable(position, latest) {
			continue
		}

		e.log.Info("decided to sell",
			zap.String("symbol", position.Symbol),
			zap.Float64("volume", position.Volume),
			zap.Float64("price", latest.Price))
		orders = append(orders, map[string]any{
			"price":  latest.Price,
			"symbol": position.Symbol,
			"stamp":  stamp,
			"volume": position.Volume,
			"status": database.OrderPending,
		})
	}

	if len(orders) == 0 {
		return nil
	}

	request := messages.SaveRequest{
		TableName: database.Order{}.TableName(),
		TableDesc: database.ColumnarFromRecords(orders),
	}
	return e.bus.Publish(ctx, bus.RouteDatabaseSave, request)
}

// sellable decides whether a position clears the cooldown and the
// margin threshold at the latest observed price.
func (e *Evaluator) sellable(position database.PortfolioPosition, latest database.SymbolPrice) bool {
	// the position must have been held for the whole cooldown
	if position.Stamp+e.cooldown*1000 >= latest.Stamp {
		e.log.Debug("position still in cooldown", zap.String("symbol", position.Symbol))
		return false
	}

	cogs := position.Value + position.Commission
	sales := latest.Price * position.Volume
	if sales <= 0 {
		return false
	}

	if e.margin.Percent {
		margin := (sales - cogs) / sales
		if margin < e.margin.Fraction() {
			e.log.Debug("margin below threshold",
				zap.String("symbol", position.Symbol),
				zap.Float64("margin", margin))
			return false
		}
		return true
	}
	if sales-cogs < e.margin.Value {
		e.log.Debug("profit below threshold",
			zap.String("symbol", position.Symbol),
			zap.Float64("profit", sales-cogs))
		return false
	}
	return true
}
