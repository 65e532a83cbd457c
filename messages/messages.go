// Package messages defines the JSON payloads exchanged over the bus.
package messages

import "tradingbot/database"

// SaveRequest asks the save sink to append rows to a table. TableDesc
// uses the columnar wire shape.
type SaveRequest struct {
	TableName string            `json:"table_name"`
	TableDesc database.Columnar `json:"table_desc"`
}

// ReadParams carries the optional parameters of a read request, both in
// seconds.
type ReadParams struct {
	Lookahead  int64 `json:"lookahead,omitempty"`
	Lookbehind int64 `json:"lookbehind,omitempty"`
}

// ReadRequest asks the query worker for a decision snapshot. Type is
// "profit" or "trends". A zero stamp means now.
type ReadRequest struct {
	Type   string     `json:"type"`
	Stamp  int64      `json:"stamp,omitempty"`
	Params ReadParams `json:"params"`
}

// OrdersMake triggers one fulfilment run. A zero stamp means now; a zero
// lookahead falls back to the configured default.
type OrdersMake struct {
	Stamp     int64 `json:"stamp,omitempty"`
	Lookahead int64 `json:"lookahead,omitempty"`
}

// BudgetInfo is the current budget inside a snapshot.
type BudgetInfo struct {
	Amount float64 `json:"amount"`
	Stamp  int64   `json:"stamp"`
}

// TransactionInfo is one market transaction inside a trends snapshot.
type TransactionInfo struct {
	Symbol string  `json:"symbol"`
	Price  float64 `json:"price"`
	Volume float64 `json:"volume"`
	Stamp  int64   `json:"stamp"`
}

// ProfitSnapshot is the query worker's reply to a profit read request.
// Budget is nil when it could not be assembled.
type ProfitSnapshot struct {
	Stamp        int64                        `json:"stamp"`
	ActiveOrders int64                        `json:"active_orders"`
	Budget       *BudgetInfo                  `json:"budget,omitempty"`
	Portfolio    []database.PortfolioPosition `json:"portfolio"`
	Prices       []database.SymbolPrice       `json:"prices"`
}

// TrendsSnapshot is the query worker's reply to a trends read request.
type TrendsSnapshot struct {
	Stamp        int64             `json:"stamp"`
	ActiveOrders int64             `json:"active_orders"`
	Budget       *BudgetInfo       `json:"budget,omitempty"`
	Transactions []TransactionInfo `json:"transactions"`
}
