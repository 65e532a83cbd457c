package database

import (
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrMalformed marks a table description that cannot be decoded into
// rows. Consumers drop such messages instead of retrying them.
var ErrMalformed = errors.New("malformed table description")

// Repository handles database operations for the trading pipeline.
type Repository struct {
	db *Database
}

// NewRepository creates a new repository
func NewRepository(db *Database) *Repository {
	return &Repository{db: db}
}

// InitSchema performs auto-migration for the five pipeline tables.
func (r *Repository) InitSchema() error {
	err := r.db.db.AutoMigrate(
		&Transaction{},
		&Order{},
		&PortfolioEntry{},
		&Used{},
		&Budget{},
	)
	if err != nil {
		return fmt.Errorf("auto-migration failed: %w", err)
	}
	return nil
}

// InsertTable appends the rows of a columnar table description to the
// named table. Rows carrying a stamp but no time get the time column
// derived from the stamp. Inserts are insert-ignore: rows violating a
// unique constraint are silently dropped, which makes replayed messages
// idempotent.
func (r *Repository) InsertTable(name string, desc Columnar) (int, error) {
	records, err := desc.Records()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if len(records) == 0 {
		return 0, nil
	}

	ignore := clause.OnConflict{DoNothing: true}

	switch name {
	case "transactions":
		rows := make([]Transaction, 0, len(records))
		for _, record := range records {
			row, err := transactionRow(record)
			if err != nil {
				return 0, err
			}
			rows = append(rows, row)
		}
		return len(rows), r.db.db.Clauses(ignore).Create(&rows).Error
	case "orders":
		rows := make([]Order, 0, len(records))
		for _, record := range records {
			row, err := orderRow(record)
			if err != nil {
				return 0, err
			}
			rows = append(rows, row)
		}
		return len(rows), r.db.db.Clauses(ignore).Create(&rows).Error
	case "portfolio":
		rows := make([]PortfolioEntry, 0, len(records))
		for _, record := range records {
			row, err := portfolioRow(record)
			if err != nil {
				return 0, err
			}
			rows = append(rows, row)
		}
		return len(rows), r.db.db.Clauses(ignore).Create(&rows).Error
	case "used":
		rows := make([]Used, 0, len(records))
		for _, record := range records {
			row, err := usedRow(record)
			if err != nil {
				return 0, err
			}
			rows = append(rows, row)
		}
		return len(rows), r.db.db.Clauses(ignore).Create(&rows).Error
	case "budget":
		rows := make([]Budget, 0, len(records))
		for _, record := range records {
			row, err := budgetRow(record)
			if err != nil {
				return 0, err
			}
			rows = append(rows, row)
		}
		return len(rows), r.db.db.Clauses(ignore).Create(&rows).Error
	default:
		return 0, fmt.Errorf("%w: unknown table %s", ErrMalformed, name)
	}
}

func transactionRow(record map[string]any) (Transaction, error) {
	price, ok := floatCell(record, "price")
	if !ok {
		return Transaction{}, fmt.Errorf("%w: transaction row is missing price", ErrMalformed)
	}
	symbol, ok := stringCell(record, "symbol")
	if !ok {
		return Transaction{}, fmt.Errorf("%w: transaction row is missing symbol", ErrMalformed)
	}
	stamp, ok := intCell(record, "stamp")
	if !ok {
		return Transaction{}, fmt.Errorf("%w: transaction row is missing stamp", ErrMalformed)
	}
	volume, _ := floatCell(record, "volume")
	return Transaction{
		Price:  price,
		Symbol: symbol,
		Time:   StampTime(stamp),
		Stamp:  stamp,
		Volume: volume,
	}, nil
}

func orderRow(record map[string]any) (Order, error) {
	price, ok := floatCell(record, "price")
	if !ok {
		return Order{}, fmt.Errorf("%w: order row is missing price", ErrMalformed)
	}
	symbol, ok := stringCell(record, "symbol")
	if !ok {
		return Order{}, fmt.Errorf("%w: order row is missing symbol", ErrMalformed)
	}
	stamp, ok := intCell(record, "stamp")
	if !ok {
		return Order{}, fmt.Errorf("%w: order row is missing stamp", ErrMalformed)
	}
	volume, _ := floatCell(record, "volume")
	status, _ := intCell(record, "status")
	return Order{
		Price:  price,
		Symbol: symbol,
		Time:   StampTime(stamp),
		Stamp:  stamp,
		Volume: volume,
		Status: int(status),
	}, nil
}

func portfolioRow(record map[string]any) (PortfolioEntry, error) {
	transaction, ok := intCell(record, "transaction")
	if !ok {
		return PortfolioEntry{}, fmt.Errorf("%w: portfolio row is missing transaction", ErrMalformed)
	}
	symbol, ok := stringCell(record, "symbol")
	if !ok {
		return PortfolioEntry{}, fmt.Errorf("%w: portfolio row is missing symbol", ErrMalformed)
	}
	stamp, ok := intCell(record, "stamp")
	if !ok {
		return PortfolioEntry{}, fmt.Errorf("%w: portfolio row is missing stamp", ErrMalformed)
	}
	price, _ := floatCell(record, "price")
	commission, _ := floatCell(record, "commission")
	volume, _ := floatCell(record, "volume")
	return PortfolioEntry{
		Transaction: transaction,
		Price:       price,
		Commission:  commission,
		Symbol:      symbol,
		Time:        StampTime(stamp),
		Stamp:       stamp,
		Volume:      volume,
	}, nil
}

func usedRow(record map[string]any) (Used, error) {
	transaction, ok := intCell(record, "transaction")
	if !ok {
		return Used{}, fmt.Errorf("%w: used row is missing transaction", ErrMalformed)
	}
	stamp, ok := intCell(record, "stamp")
	if !ok {
		return Used{}, fmt.Errorf("%w: used row is missing stamp", ErrMalformed)
	}
	volume, _ := floatCell(record, "volume")
	return Used{Transaction: transaction, Stamp: stamp, Volume: volume}, nil
}

func budgetRow(record map[string]any) (Budget, error) {
	amount, ok := floatCell(record, "amount")
	if !ok {
		return Budget{}, fmt.Errorf("%w: budget row is missing amount", ErrMalformed)
	}
	stamp, ok := intCell(record, "stamp")
	if !ok {
		return Budget{}, fmt.Errorf("%w: budget row is missing stamp", ErrMalformed)
	}
	return Budget{Amount: amount, Time: StampTime(stamp), Stamp: stamp}, nil
}

// ActiveOrderCount counts orders placed at or before stamp that are
// still pending or partially filled.
func (r *Repository) ActiveOrderCount(stamp int64) (int64, error) {
	var count int64
	err := r.db.db.Model(&Order{}).
		Where("stamp <= ? AND status IN ?", stamp, []int{OrderPending, OrderPartial}).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count active orders: %w", err)
	}
	return count, nil
}

// CurrentBudget returns the budget row with the highest stamp. When the
// table is empty it seeds one row with the configured default amount and
// persists it, so every later reader sees the same starting budget.
func (r *Repository) CurrentBudget(stamp int64, seed float64) (Budget, error) {
	var budget Budget
	// id breaks stamp ties in favour of the newest row
	err := r.db.db.Order("stamp DESC, id DESC").Limit(1).Find(&budget).Error
	if err != nil {
		return Budget{}, fmt.Errorf("failed to read budget: %w", err)
	}
	if budget.ID != 0 {
		return budget, nil
	}

	budget = Budget{Amount: seed, Time: StampTime(stamp), Stamp: stamp}
	if err := r.db.db.Create(&budget).Error; err != nil {
		return Budget{}, fmt.Errorf("failed to seed budget: %w", err)
	}
	return budget, nil
}

// PortfolioPosition is the per-symbol portfolio aggregate. The signs of
// value and volume are inverted from the stored rows so that a long
// position surfaces as a positive held quantity and its acquisition
// cost as a positive value.
type PortfolioPosition struct {
	Symbol     string  `json:"symbol"`
	Commission float64 `json:"commission"`
	Value      float64 `json:"value"`
	Volume     float64 `json:"volume"`
	Stamp      int64   `json:"stamp"`
}

// PortfolioBySymbol aggregates the portfolio per symbol.
func (r *Repository) PortfolioBySymbol() ([]PortfolioPosition, error) {
	var positions []PortfolioPosition
	err := r.db.db.Raw(`
		SELECT
			symbol,
			SUM(commission) AS commission,
			-SUM(price * volume) AS value,
			-SUM(volume) AS volume,
			MAX(stamp) AS stamp
		FROM portfolio
		GROUP BY symbol
		ORDER BY symbol
	`).Scan(&positions).Error
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate portfolio: %w", err)
	}
	return positions, nil
}

// SymbolPrice is the latest transacted price observed for a symbol.
type SymbolPrice struct {
	Symbol string  `json:"symbol"`
	Price  float64 `json:"price"`
	Stamp  int64   `json:"stamp"`
}

// LatestPrices returns the most recent transaction price per symbol.
func (r *Repository) LatestPrices() ([]SymbolPrice, error) {
	var prices []SymbolPrice
	err := r.db.db.Raw(`
		SELECT t.symbol, t.price, t.stamp
		FROM transactions t
		INNER JOIN (
			SELECT symbol, MAX(stamp) AS stamp
			FROM transactions
			GROUP BY symbol
		) latest ON t.symbol = latest.symbol AND t.stamp = latest.stamp
		ORDER BY t.symbol
	`).Scan(&prices).Error
	if err != nil {
		return nil, fmt.Errorf("failed to read latest prices: %w", err)
	}
	return prices, nil
}

// TransactionsBetween returns transactions with stamp in [from, to),
// oldest first.
func (r *Repository) TransactionsBetween(from, to int64) ([]Transaction, error) {
	var transactions []Transaction
	err := r.db.db.
		Where("stamp >= ? AND stamp < ?", from, to).
		Order("stamp ASC").
		Find(&transactions).Error
	if err != nil {
		return nil, fmt.Errorf("failed to read transactions: %w", err)
	}
	return transactions, nil
}

// ActiveOrdersBefore returns pending and partial orders placed at or
// before stamp, oldest first.
func (r *Repository) ActiveOrdersBefore(stamp int64) ([]Order, error) {
	var orders []Order
	err := r.db.db.
		Where("stamp <= ? AND status IN ?", stamp, []int{OrderPending, OrderPartial}).
		Order("stamp ASC").
		Find(&orders).Error
	if err != nil {
		return nil, fmt.Errorf("failed to read active orders: %w", err)
	}
	return orders, nil
}

// TransactionsAfter returns transactions with stamp in (from, to],
// oldest first. These are the candidates an order submitted at `from`
// may be matched against.
func (r *Repository) TransactionsAfter(from, to int64) ([]Transaction, error) {
	var transactions []Transaction
	err := r.db.db.
		Where("stamp > ? AND stamp <= ?", from, to).
		Order("stamp ASC").
		Find(&transactions).Error
	if err != nil {
		return nil, fmt.Errorf("failed to read candidate transactions: %w", err)
	}
	return transactions, nil
}

// UsedSince sums the consumed volume per transaction for used rows with
// stamp after the given bound.
func (r *Repository) UsedSince(stamp int64) (map[int64]float64, error) {
	var rows []struct {
		Transaction int64   `gorm:"column:transaction"`
		Volume      float64 `gorm:"column:volume"`
	}
	err := r.db.db.Raw(`
		SELECT "transaction", SUM(volume) AS volume
		FROM used
		WHERE stamp > ?
		GROUP BY "transaction"
	`, stamp).Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to read used volumes: %w", err)
	}

	used := make(map[int64]float64, len(rows))
	for _, row := range rows {
		used[row.Transaction] = row.Volume
	}
	return used, nil
}

// OrderUpdate is a status transition the fulfilment engine decided for
// one order.
type OrderUpdate struct {
	ID     int64
	Status int
	Volume float64
}

// ApplyFulfilment persists the outcome of one fulfilment run as a unit:
// new portfolio rows, new used rows, one budget row and the order status
// updates either all land or none do.
func (r *Repository) ApplyFulfilment(portfolio []PortfolioEntry, used []Used, budget Budget, updates []OrderUpdate) error {
	return r.db.db.Transaction(func(tx *gorm.DB) error {
		if len(portfolio) > 0 {
			if err := tx.Create(&portfolio).Error; err != nil {
				return fmt.Errorf("failed to insert portfolio rows: %w", err)
			}
		}
		if len(used) > 0 {
			if err := tx.Create(&used).Error; err != nil {
				return fmt.Errorf("failed to insert used rows: %w", err)
			}
		}
		if err := tx.Create(&budget).Error; err != nil {
			return fmt.Errorf("failed to insert budget row: %w", err)
		}
		for _, update := range updates {
			err := tx.Model(&Order{}).
				Where("id = ?", update.ID).
				Updates(map[string]any{"status": update.Status, "volume": update.Volume}).Error
			if err != nil {
				return fmt.Errorf("failed to update order %d: %w", update.ID, err)
			}
		}
		return nil
	})
}
