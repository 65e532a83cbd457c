// Package broker implements the fulfilment engine: it matches pending
// orders against market transactions observed after their submission,
// under the budget reserve and commission schedule, and persists the
// outcome atomically. The engine is a single writer: handler entry
// takes an advisory lock, and exactly one broker process may run.
package broker

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"tradingbot/config"
	"tradingbot/database"
	"tradingbot/messages"
)

// Engine consumes orders.make requests.
type Engine struct {
	repo       *database.Repository
	lookahead  int64 // seconds, default for requests that carry none
	seedBudget float64
	commission config.Threshold
	reserve    float64
	log        *zap.Logger

	mu  sync.Mutex
	now func() int64
}

// New creates the fulfilment engine.
func New(repo *database.Repository, cfg config.BrokerConfig, lookahead int64, log *zap.Logger) *Engine {
	return &Engine{
		repo:       repo,
		lookahead:  lookahead,
		seedBudget: cfg.Budget,
		commission: cfg.Commission,
		reserve:    cfg.Reserve,
		log:        log,
		now:        func() int64 { return time.Now().UTC().UnixMilli() },
	}
}

// Handle processes one orders.make request. A request arriving while a
// prior invocation is still running is skipped and acked. Database
// failures abort the run without acking, so the request is redelivered;
// the freshly read used rows on the retry prevent double-spending.
func (e *Engine) Handle(ctx context.Context, body []byte) error {
	var request messages.OrdersMake
	if err := json.Unmarshal(body, &request); err != nil {
		e.log.Warn("dropping malformed orders message", zap.Error(err))
		return nil
	}

	stamp := request.Stamp
	if stamp == 0 {
		stamp = e.now()
	}
	lookahead := request.Lookahead
	if lookahead == 0 {
		lookahead = e.lookahead
	}

	if !e.mu.TryLock() {
		e.log.Warn("the orders were previously locked, skipping")
		return nil
	}
	defer e.mu.Unlock()

	// an order placed at T is only processed after T + lookahead, so it
	// can only match transactions observed after its submission
	orderStamp := stamp - lookahead*1000

	orders, err := e.repo.ActiveOrdersBefore(orderStamp)
	if err != nil {
		return err
	}
	if len(orders) == 0 {
		e.log.Debug("no active orders right now")
		return nil
	}

	transactions, err := e.repo.TransactionsAfter(orderStamp, stamp)
	if err != nil {
		return err
	}
	used, err := e.repo.UsedSince(orderStamp)
	if err != nil {
		return err
	}
	budget, err := e.repo.CurrentBudget(stamp, e.seedBudget)
	if err != nil {
		return err
	}

	plan := match(orders, transactions, used, budget.Amount, e.commission, e.reserve, stamp)
	if plan.Empty() {
		e.log.Debug("could not match any orders to transactions")
		return nil
	}

	if err := e.repo.ApplyFulfilment(plan.Portfolio, plan.Used, plan.Budget, plan.Updates); err != nil {
		return err
	}

	e.log.Info("fulfilment applied",
		zap.Int("orders", len(plan.Updates)),
		zap.Int("fills", len(plan.Portfolio)),
		zap.Float64("budget", plan.Budget.Amount))
	return nil
}
