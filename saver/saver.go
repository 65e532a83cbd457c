// Package saver implements the database.save sink: the single writer
// that turns columnar table descriptions from the bus into rows.
package saver

import (
	"context"
	"encoding/json"
	"errors"

	"go.uber.org/zap"

	"tradingbot/database"
	"tradingbot/messages"
)

// Sink consumes database.save messages and appends the described rows.
type Sink struct {
	repo *database.Repository
	log  *zap.Logger
}

// New creates the save sink.
func New(repo *database.Repository, log *zap.Logger) *Sink {
	return &Sink{repo: repo, log: log}
}

// Handle processes one database.save message. Malformed messages are
// dropped with a log line; a database failure is returned so the bus
// redelivers the message.
func (s *Sink) Handle(ctx context.Context, body []byte) error {
	var request messages.SaveRequest
	if err := json.Unmarshal(body, &request); err != nil {
		s.log.Warn("dropping malformed save message", zap.Error(err))
		return nil
	}
	if request.TableName == "" {
		s.log.Warn("save message does not contain a table name")
		return nil
	}
	if len(request.TableDesc) == 0 {
		s.log.Warn("save message does not contain a table description",
			zap.String("table", request.TableName))
		return nil
	}

	count, err := s.repo.InsertTable(request.TableName, request.TableDesc)
	if errors.Is(err, database.ErrMalformed) {
		s.log.Warn("dropping undecodable table description",
			zap.String("table", request.TableName),
			zap.Error(err))
		return nil
	}
	if err != nil {
		s.log.Error("failed to insert rows",
			zap.String("table", request.TableName),
			zap.Error(err))
		return err
	}

	s.log.Debug("inserted rows",
		zap.String("table", request.TableName),
		zap.Int("count", count))
	return nil
}
