package history

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/CyberForge275/traderunner-sub002/internal/domain"
)

const (
	readLimit    = 1 << 20
	pongWait     = 60 * time.Second
	pingInterval = 25 * time.Second
	writeWait    = 10 * time.Second
)

// barMessage is the producer's stream frame.
type barMessage struct {
	Symbol    string  `json:"symbol"`
	Timeframe string  `json:"timeframe"`
	Ts        int64   `json:"ts_utc"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    int64   `json:"volume"`
}

// StreamConsumer subscribes to the producer's bar stream and upserts each
// message into the runtime cache with source=websocket.
type StreamConsumer struct {
	streamURL string
	store     *Store
}

// NewStreamConsumer wires a consumer to the cache.
func NewStreamConsumer(streamURL string, store *Store) *StreamConsumer {
	return &StreamConsumer{streamURL: streamURL, store: store}
}

// Run connects and consumes until the context is cancelled or the
// connection dies. The caller owns reconnection policy.
func (c *StreamConsumer) Run(ctx context.Context, symbol, tf string) error {
	u, err := url.Parse(c.streamURL)
	if err != nil {
		return fmt.Errorf("stream url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	u.Path = u.Path + "/stream"
	q := u.Query()
	q.Set("symbol", symbol)
	q.Set("tf", tf)
	u.RawQuery = q.Encode()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", u.String(), err)
	}
	defer conn.Close()

	conn.SetReadLimit(readLimit)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	// Ping loop; also unblocks the reader on context cancel by closing.
	go func() {
		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				deadline := time.Now().Add(writeWait)
				conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
				conn.Close()
				return
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
					return
				}
			}
		}
	}()

	log.Info().Str("url", u.String()).Msg("stream consumer connected")
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("stream read: %w", err)
		}
		var msg barMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Warn().Err(err).Msg("malformed stream frame, dropped")
			continue
		}
		if msg.Symbol == "" {
			msg.Symbol = symbol
		}
		if msg.Timeframe == "" {
			msg.Timeframe = tf
		}
		err = c.store.UpsertBars(msg.Symbol, msg.Timeframe, SourceWebsocket, []domain.Bar{{
			Ts:     time.Unix(msg.Ts, 0).UTC(),
			Open:   msg.Open,
			High:   msg.High,
			Low:    msg.Low,
			Close:  msg.Close,
			Volume: msg.Volume,
		}})
		if err != nil {
			return fmt.Errorf("stream upsert: %w", err)
		}
	}
}
