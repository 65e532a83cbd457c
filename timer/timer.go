// Package timer implements the rotating-phase dispatcher driving the
// pipeline: each tick publishes the request for the current phase of
// the cycle trends, orders, profit, orders. The orders phase between
// the evaluators makes sure freshly proposed orders are fulfilled
// before the next evaluation reads state.
package timer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"tradingbot/bus"
	"tradingbot/messages"
)

// Phase names, in cycle order.
const (
	PhaseTrends = "trends"
	PhaseOrders = "orders"
	PhaseProfit = "profit"
)

var phases = []string{PhaseTrends, PhaseOrders, PhaseProfit, PhaseOrders}

// Dispatcher publishes one phase request per tick and keeps the cycle
// position in a small state file.
type Dispatcher struct {
	bus        bus.Publisher
	statePath  string
	lookahead  int64 // seconds
	lookbehind int64 // seconds
	log        *zap.Logger

	now func() int64
}

// New creates the dispatcher. statePath is the file holding the phase
// index as an ASCII integer.
func New(b bus.Publisher, statePath string, lookahead, lookbehind int64, log *zap.Logger) *Dispatcher {
	return &Dispatcher{
		bus:        b,
		statePath:  statePath,
		lookahead:  lookahead,
		lookbehind: lookbehind,
		log:        log,
		now:        func() int64 { return time.Now().UTC().UnixMilli() },
	}
}

// Tick reads the current phase, persists the advanced index, then
// publishes the current phase's request. The index is persisted before
// publishing so a crash cannot replay a phase; a lost publish is
// recovered by the rest of the cycle.
func (d *Dispatcher) Tick(ctx context.Context) error {
	index := d.readState()
	if err := d.writeState((index + 1) % len(phases)); err != nil {
		return err
	}
	return d.Publish(ctx, phases[index])
}

// Publish sends the request message for one named phase.
func (d *Dispatcher) Publish(ctx context.Context, phase string) error {
	stamp := d.now()
	d.log.Debug("dispatching phase", zap.String("phase", phase), zap.Int64("stamp", stamp))

	switch phase {
	case PhaseTrends:
		return d.bus.Publish(ctx, bus.RouteDatabaseRead, messages.ReadRequest{
			Type:  "trends",
			Stamp: stamp,
			Params: messages.ReadParams{
				Lookahead:  d.lookahead,
				Lookbehind: d.lookbehind,
			},
		})
	case PhaseProfit:
		return d.bus.Publish(ctx, bus.RouteDatabaseRead, messages.ReadRequest{
			Type:  "profit",
			Stamp: stamp,
		})
	case PhaseOrders:
		return d.bus.Publish(ctx, bus.RouteOrdersMake, messages.OrdersMake{
			Stamp:     stamp,
			Lookahead: d.lookahead,
		})
	default:
		return fmt.Errorf("unknown timer phase: %s", phase)
	}
}

// readState returns the persisted phase index. A missing or corrupt
// state file restarts the cycle at phase 0.
func (d *Dispatcher) readState() int {
	data, err := os.ReadFile(d.statePath)
	if err != nil {
		return 0
	}
	index, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || index < 0 || index >= len(phases) {
		d.log.Warn("corrupt timer state, restarting cycle", zap.String("path", d.statePath))
		return 0
	}
	return index
}

// writeState persists the phase index atomically: write to a temporary
// file in the same directory, then rename over the state file.
func (d *Dispatcher) writeState(index int) error {
	dir := filepath.Dir(d.statePath)
	tmp, err := os.CreateTemp(dir, ".timer-state-*")
	if err != nil {
		return fmt.Errorf("cannot create timer state file: %w", err)
	}

	_, err = tmp.WriteString(strconv.Itoa(index))
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("cannot write timer state: %w", err)
	}

	if err := os.Rename(tmp.Name(), d.statePath); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("cannot replace timer state file: %w", err)
	}
	return nil
}
