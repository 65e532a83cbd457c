// Package ingest implements the worker that bridges the market data
// stream onto the bus: trades are buffered in memory and emitted as one
// database.save message per full buffer.
package ingest

import (
	"context"
	"time"

	"go.uber.org/zap"

	"tradingbot/bus"
	"tradingbot/database"
	"tradingbot/feed"
	"tradingbot/messages"
)

// Worker consumes the external stream and publishes transaction batches.
type Worker struct {
	client    *feed.Client
	bus       bus.Publisher
	symbols   []string
	threshold int
	respawn   time.Duration
	log       *zap.Logger

	buffer []map[string]any
}

// New creates the ingest worker. threshold is the buffer size above
// which a database.save is emitted; respawn is the delay before
// redialing a dead stream.
func New(client *feed.Client, b bus.Publisher, symbols []string, threshold int, respawn time.Duration, log *zap.Logger) *Worker {
	return &Worker{
		client:    client,
		bus:       b,
		symbols:   symbols,
		threshold: threshold,
		respawn:   respawn,
		log:       log,
	}
}

// Run consumes the stream until the context is cancelled, redialing
// after the respawn delay whenever the stream dies. The buffer is
// flushed on stream error, close and shutdown, so no observed trade is
// dropped short of a bus failure.
func (w *Worker) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			w.flush(context.Background())
			return err
		}

		if err := w.session(ctx); err != nil && ctx.Err() == nil {
			w.log.Warn("stream terminated", zap.Error(err))
		}
		w.flush(context.Background())

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(w.respawn):
		}
	}
}

// session runs one stream connection until it fails or the context is
// cancelled.
func (w *Worker) session(ctx context.Context) error {
	if err := w.client.Connect(); err != nil {
		return err
	}
	defer w.client.Close()

	// unblock the pending read on shutdown
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			w.client.Close()
		case <-done:
		}
	}()

	if err := w.client.Subscribe(w.symbols); err != nil {
		return err
	}

	for {
		message, err := w.client.Read()
		if err != nil {
			return err
		}

		for _, record := range message.Data {
			w.buffer = append(w.buffer, map[string]any{
				"price":  record.Price,
				"symbol": record.Symbol,
				"stamp":  record.Stamp,
				"volume": record.Volume,
			})
		}

		if len(w.buffer) > w.threshold {
			w.flush(ctx)
		}
	}
}

// flush publishes the buffered trades as one database.save message and
// clears the buffer. On a publish failure the buffer is kept so the
// trades are retried with the next flush.
func (w *Worker) flush(ctx context.Context) {
	if len(w.buffer) == 0 {
		return
	}

	request := messages.SaveRequest{
		TableName: database.Transaction{}.TableName(),
		TableDesc: database.ColumnarFromRecords(w.buffer),
	}
	if err := w.bus.Publish(ctx, bus.RouteDatabaseSave, request); err != nil {
		w.log.Error("failed to publish transactions, keeping buffer", zap.Error(err))
		return
	}

	w.log.Debug("flushed transactions", zap.Int("count", len(w.buffer)))
	w.buffer = w.buffer[:0]
}
