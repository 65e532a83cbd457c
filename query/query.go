// Package query implements the worker that assembles decision snapshots
// from the store and publishes them back on the reply topics.
package query

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"tradingbot/bus"
	"tradingbot/database"
	"tradingbot/messages"
)

// Worker consumes database.read requests.
type Worker struct {
	repo          *database.Repository
	bus           bus.Publisher
	defaultBudget float64
	lookahead     int64 // seconds
	lookbehind    int64 // seconds
	log           *zap.Logger
}

// New creates the query worker. lookahead and lookbehind are the
// defaults applied when a trends request does not carry them.
func New(repo *database.Repository, b bus.Publisher, defaultBudget float64, lookahead, lookbehind int64, log *zap.Logger) *Worker {
	return &Worker{
		repo:          repo,
		bus:           b,
		defaultBudget: defaultBudget,
		lookahead:     lookahead,
		lookbehind:    lookbehind,
		log:           log,
	}
}

// Handle processes one database.read request and publishes the snapshot
// on the matching reply topic. Database failures are returned so the
// request is redelivered.
func (w *Worker) Handle(ctx context.Context, body []byte) error {
	var request messages.ReadRequest
	if err := json.Unmarshal(body, &request); err != nil {
		w.log.Warn("dropping malformed read request", zap.Error(err))
		return nil
	}

	stamp := request.Stamp
	if stamp == 0 {
		stamp = time.Now().UTC().UnixMilli()
	}

	switch request.Type {
	case "profit":
		snapshot, err := w.profitSnapshot(stamp)
		if err != nil {
			return err
		}
		return w.bus.Publish(ctx, bus.RouteRequestedProfit, snapshot)
	case "trends":
		lookahead := request.Params.Lookahead
		if lookahead == 0 {
			lookahead = w.lookahead
		}
		lookbehind := request.Params.Lookbehind
		if lookbehind == 0 {
			lookbehind = w.lookbehind
		}
		snapshot, err := w.trendsSnapshot(stamp, lookahead, lookbehind)
		if err != nil {
			return err
		}
		return w.bus.Publish(ctx, bus.RouteRequestedTrends, snapshot)
	default:
		w.log.Warn("dropping read request of unknown type", zap.String("type", request.Type))
		return nil
	}
}

func (w *Worker) profitSnapshot(stamp int64) (*messages.ProfitSnapshot, error) {
	activeOrders, err := w.repo.ActiveOrderCount(stamp)
	if err != nil {
		return nil, err
	}
	budget, err := w.repo.CurrentBudget(stamp, w.defaultBudget)
	if err != nil {
		return nil, err
	}
	portfolio, err := w.repo.PortfolioBySymbol()
	if err != nil {
		return nil, err
	}
	prices, err := w.repo.LatestPrices()
	if err != nil {
		return nil, err
	}

	return &messages.ProfitSnapshot{
		Stamp:        stamp,
		ActiveOrders: activeOrders,
		Budget:       &messages.BudgetInfo{Amount: budget.Amount, Stamp: budget.Stamp},
		Portfolio:    portfolio,
		Prices:       prices,
	}, nil
}

// trendsSnapshot reads the transaction window shifted back by the
// lookahead: an order placed now will not execute for another lookahead
// seconds, so the evaluator must learn from data at least that stale.
func (w *Worker) trendsSnapshot(stamp, lookahead, lookbehind int64) (*messages.TrendsSnapshot, error) {
	activeOrders, err := w.repo.ActiveOrderCount(stamp)
	if err != nil {
		return nil, err
	}
	budget, err := w.repo.CurrentBudget(stamp, w.defaultBudget)
	if err != nil {
		return nil, err
	}

	from := stamp - (lookbehind+lookahead)*1000
	to := stamp - lookahead*1000
	transactions, err := w.repo.TransactionsBetween(from, to)
	if err != nil {
		return nil, err
	}

	window := make([]messages.TransactionInfo, 0, len(transactions))
	for _, t := range transactions {
		window = append(window, messages.TransactionInfo{
			Symbol: t.Symbol,
			Price:  t.Price,
			Volume: t.Volume,
			Stamp:  t.Stamp,
		})
	}

	return &messages.TrendsSnapshot{
		Stamp:        stamp,
		ActiveOrders: activeOrders,
		Budget:       &messages.BudgetInfo{Amount: budget.Amount, Stamp: budget.Stamp},
		Transactions: window,
	}, nil
}
