package broker

import (
	"math"

	"tradingbot/config"
	"tradingbot/database"
)

// Plan is the outcome of matching a batch of active orders against
// candidate transactions: the rows to insert and the order transitions
// to apply, all of which must land atomically.
type Plan struct {
	Portfolio []database.PortfolioEntry
	Used      []database.Used
	Updates   []database.OrderUpdate
	Budget    database.Budget
}

// Empty reports whether the plan changes no order.
func (p *Plan) Empty() bool {
	return len(p.Updates) == 0
}

// match runs the fulfilment algorithm. Orders are processed in turn;
// each consumes candidate transactions of its symbol in stamp order,
// limited to the volume not already spent (prior used rows plus volume
// consumed earlier in this run). An order whose next fill would push
// the budget below the reserve is abandoned outright: everything staged
// for it in this run is discarded and matching moves on. stamp is the
// fulfilment moment recorded on the new rows.
func match(
	orders []database.Order,
	transactions []database.Transaction,
	used map[int64]float64,
	budgetAmount float64,
	commission config.Threshold,
	reserve float64,
	stamp int64,
) *Plan {
	plan := &Plan{}
	consumed := make(map[int64]float64) // committed this run, by transaction id
	deltaBudget := 0.0

	for _, order := range orders {
		initial := order.Volume
		if initial == 0 {
			continue
		}
		sign := 1.0 // sell
		if initial < 0 {
			sign = -1.0 // buy
		}
		remaining := math.Abs(initial)

		// fills are staged per order and committed only if the order
		// never breaches the reserve
		var stagedPortfolio []database.PortfolioEntry
		var stagedUsed []database.Used
		staged := make(map[int64]float64)
		stagedDelta := 0.0
		abandoned := false

		for _, transaction := range transactions {
			if transaction.Symbol != order.Symbol {
				continue
			}

			unavailable := used[transaction.ID] + consumed[transaction.ID] + staged[transaction.ID]
			available := transaction.Volume - unavailable
			if available <= 0 {
				continue
			}
			use := math.Min(available, remaining)

			value := transaction.Price * use
			fee := commission.Amount(value)

			// hard tie-break: no order may push the budget below the reserve
			if budgetAmount+deltaBudget+stagedDelta+sign*value-fee < reserve {
				abandoned = true
				break
			}

			stagedDelta += sign*value - fee
			staged[transaction.ID] += use
			stagedUsed = append(stagedUsed, database.Used{
				Transaction: transaction.ID,
				Stamp:       transaction.Stamp,
				Volume:      use,
			})
			stagedPortfolio = append(stagedPortfolio, database.PortfolioEntry{
				Transaction: transaction.ID,
				Price:       transaction.Price,
				Commission:  fee,
				Symbol:      order.Symbol,
				Time:        database.StampTime(stamp),
				Stamp:       stamp,
				Volume:      sign * use,
			})

			remaining -= use
			if remaining <= 0 {
				break
			}
		}

		if abandoned || len(stagedUsed) == 0 {
			// the order stays as it was
			continue
		}

		plan.Portfolio = append(plan.Portfolio, stagedPortfolio...)
		plan.Used = append(plan.Used, stagedUsed...)
		for id, volume := range staged {
			consumed[id] += volume
		}
		deltaBudget += stagedDelta

		if remaining <= 0 {
			plan.Updates = append(plan.Updates, database.OrderUpdate{
				ID:     order.ID,
				Status: database.OrderFulfilled,
				Volume: 0,
			})
		} else {
			plan.Updates = append(plan.Updates, database.OrderUpdate{
				ID:     order.ID,
				Status: database.OrderPartial,
				Volume: sign * remaining,
			})
		}
	}

	plan.Budget = database.Budget{
		Amount: budgetAmount + deltaBudget,
		Time:   database.StampTime(stamp),
		Stamp:  stamp,
	}
	return plan
}
