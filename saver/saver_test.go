package saver

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"tradingbot/database"
)

func testSink(t *testing.T) (*Sink, *database.Repository) {
	t.Helper()
	db, err := database.Connect("sqlite", "", filepath.Join(t.TempDir(), "test.db"), "", "")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	repo := database.NewRepository(db)
	require.NoError(t, repo.InitSchema())
	return New(repo, zap.NewNop()), repo
}

func TestHandleInsertsRows(t *testing.T) {
	sink, repo := testSink(t)

	body := []byte(`{
		"table_name": "transactions",
		"table_desc": {
			"price":  {"0": 100.5, "1": 101.0},
			"symbol": {"0": "AAA", "1": "BBB"},
			"stamp":  {"0": 1000, "1": 2000},
			"volume": {"0": 5, "1": 3}
		}
	}`)
	require.NoError(t, sink.Handle(context.Background(), body))

	transactions, err := repo.TransactionsBetween(0, 10000)
	require.NoError(t, err)
	require.Len(t, transactions, 2)
	assert.Equal(t, "AAA", transactions[0].Symbol)
	assert.Equal(t, 100.5, transactions[0].Price)

	// redelivery of the same message is idempotent
	require.NoError(t, sink.Handle(context.Background(), body))
	transactions, err = repo.TransactionsBetween(0, 10000)
	require.NoError(t, err)
	assert.Len(t, transactions, 2)
}

func TestHandleDropsMalformed(t *testing.T) {
	sink, _ := testSink(t)
	ctx := context.Background()

	// none of these may come back for redelivery
	assert.NoError(t, sink.Handle(ctx, []byte("not json")))
	assert.NoError(t, sink.Handle(ctx, []byte(`{"table_desc": {"x": {"0": 1}}}`)))
	assert.NoError(t, sink.Handle(ctx, []byte(`{"table_name": "transactions"}`)))
	assert.NoError(t, sink.Handle(ctx, []byte(`{"table_name": "unknown", "table_desc": {"x": {"0": 1}}}`)))
	assert.NoError(t, sink.Handle(ctx, []byte(`{"table_name": "transactions", "table_desc": {"price": {"first": 1}}}`)))
}
