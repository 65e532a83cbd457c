package database

import "time"

// Order status values. Status only ever moves toward Fulfilled.
const (
	OrderPending   = 0
	OrderPartial   = 1
	OrderFulfilled = 2
)

// Transaction is a single observed market trade. Transactions are born
// at ingest and never mutated; duplicates on (symbol, stamp) are
// silently dropped by the insert-ignore sink.
type Transaction struct {
	ID     int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Price  float64   `json:"price"`
	Symbol string    `gorm:"size:32;index:idx_transactions_symbol;uniqueIndex:idx_transactions_symbol_stamp" json:"symbol"`
	Time   time.Time `json:"time"`
	Stamp  int64     `gorm:"uniqueIndex:idx_transactions_symbol_stamp" json:"stamp"`
	Volume float64   `json:"volume"`
}

// TableName specifies the table name for Transaction
func (Transaction) TableName() string {
	return "transactions"
}

// Order is a proposed trade. The sign of Volume gives the direction:
// negative is a buy, positive is a sell. On a partial fill Volume is
// rewritten to the remaining unfilled quantity, sign preserved.
type Order struct {
	ID     int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Price  float64   `json:"price"`
	Symbol string    `gorm:"size:32;index:idx_orders_symbol;uniqueIndex:idx_orders_symbol_stamp" json:"symbol"`
	Time   time.Time `json:"time"`
	Stamp  int64     `gorm:"uniqueIndex:idx_orders_symbol_stamp" json:"stamp"`
	Volume float64   `json:"volume"`
	Status int       `gorm:"index:idx_orders_status" json:"status"`
}

// TableName specifies the table name for Order
func (Order) TableName() string {
	return "orders"
}

// PortfolioEntry records a fill: a slice of a market transaction used to
// satisfy an order, with the commission paid. Volume carries the same
// sign as the parent order.
type PortfolioEntry struct {
	ID          int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Transaction int64     `gorm:"column:transaction;index:idx_portfolio_transaction" json:"transaction"`
	Price       float64   `json:"price"`
	Commission  float64   `json:"commission"`
	Symbol      string    `gorm:"size:32;index:idx_portfolio_symbol" json:"symbol"`
	Time        time.Time `json:"time"`
	Stamp       int64     `gorm:"index:idx_portfolio_stamp" json:"stamp"`
	Volume      float64   `json:"volume"`
}

// TableName specifies the table name for PortfolioEntry
func (PortfolioEntry) TableName() string {
	return "portfolio"
}

// Used logs how much volume of a market transaction has been consumed by
// fills, so a transaction is never spent twice. Volume is positive.
type Used struct {
	ID          int64   `gorm:"primaryKey;autoIncrement" json:"id"`
	Transaction int64   `gorm:"column:transaction;index:idx_used_transaction" json:"transaction"`
	Stamp       int64   `json:"stamp"`
	Volume      float64 `json:"volume"`
}

// TableName specifies the table name for Used
func (Used) TableName() string {
	return "used"
}

// Budget is an append-only log of the available budget; the current
// value is always the row with the highest stamp.
type Budget struct {
	ID     int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Amount float64   `json:"amount"`
	Time   time.Time `json:"time"`
	Stamp  int64     `gorm:"index:idx_budget_stamp" json:"stamp"`
}

// TableName specifies the table name for Budget
func (Budget) TableName() string {
	return "budget"
}

// StampTime derives the wall-clock time column from a millisecond stamp,
// at second precision, UTC.
func StampTime(stamp int64) time.Time {
	return time.Unix(stamp/1000, 0).UTC()
}
