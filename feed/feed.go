// Package feed implements the client for the external market data
// stream: a websocket push source yielding batches of trade records.
package feed

import (
	"fmt"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Record is one trade as delivered by the stream.
type Record struct {
	Price  float64 `json:"p"`
	Symbol string  `json:"s"`
	Stamp  int64   `json:"t"`
	Volume float64 `json:"v"`
}

// Message is one frame from the stream. Type is "trade" for data
// frames; other types (ping, error) carry no records.
type Message struct {
	Type string   `json:"type"`
	Data []Record `json:"data"`
}

// Client is a websocket client for the market data stream.
type Client struct {
	url   string
	token string
	conn  *websocket.Conn
	log   *zap.Logger
}

// NewClient creates a stream client. The token is appended as the query
// string the upstream expects.
func NewClient(url, token string, log *zap.Logger) *Client {
	return &Client{url: url, token: token, log: log}
}

// Connect establishes the websocket connection.
func (c *Client) Connect() error {
	url := c.url
	if c.token != "" {
		url = fmt.Sprintf("%s?token=%s", c.url, c.token)
	}

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", c.url, err)
	}

	c.conn = conn
	c.log.Info("connected to market stream", zap.String("url", c.url))
	return nil
}

// Subscribe sends one subscribe frame per symbol.
func (c *Client) Subscribe(symbols []string) error {
	if c.conn == nil {
		return fmt.Errorf("stream is not connected")
	}
	for _, symbol := range symbols {
		frame := map[string]string{"type": "subscribe", "symbol": symbol}
		if err := c.conn.WriteJSON(frame); err != nil {
			return fmt.Errorf("failed to subscribe to %s: %w", symbol, err)
		}
		c.log.Debug("subscribed to symbol", zap.String("symbol", symbol))
	}
	return nil
}

// Read blocks for the next frame from the stream.
func (c *Client) Read() (*Message, error) {
	if c.conn == nil {
		return nil, fmt.Errorf("stream is not connected")
	}
	message := &Message{}
	if err := c.conn.ReadJSON(message); err != nil {
		return nil, err
	}
	return message, nil
}

// Close closes the websocket connection.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}
