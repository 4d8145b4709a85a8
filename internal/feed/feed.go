// Package feed consumes a live transaction stream over WebSocket and runs
// each transaction through the decision engine.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/nairyuuu/vpbank-ml-api/internal/engine"
	"github.com/nairyuuu/vpbank-ml-api/internal/schema"
)

// MetricsInterface is the subset of metrics the feed reports.
type MetricsInterface interface {
	FeedReconnectsInc()
	ErrorsInc()
}

// Transaction is one streamed event awaiting a decision.
type Transaction struct {
	TxnID    string               `json:"txn_id"`
	Features schema.FeatureVector `json:"features"`
	Ts       time.Time            `json:"ts"`
}

// Consumer maintains the stream connection and dispatches decisions.
type Consumer struct {
	url     string
	engine  *engine.Engine
	metrics MetricsInterface
}

func NewConsumer(url string, e *engine.Engine, m MetricsInterface) *Consumer {
	return &Consumer{url: url, engine: e, metrics: m}
}

// Run connects to the feed and keeps consuming until ctx is cancelled,
// reconnecting with exponential backoff on failure.
func (c *Consumer) Run(ctx context.Context, ping time.Duration) error {
	backoff := time.Second
	maxBackoff := 30 * time.Second

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			if err := c.consumeOnce(ctx, ping); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				log.Warn().Err(err).Dur("backoff", backoff).Msg("feed connection failed, reconnecting")
				if c.metrics != nil {
					c.metrics.FeedReconnectsInc()
				}

				select {
				case <-time.After(backoff):
				case <-ctx.Done():
					return ctx.Err()
				}

				backoff *= 2
				if backoff > maxBackoff {
					backoff = maxBackoff
				}
				continue
			}
			backoff = time.Second
		}
	}
}

func (c *Consumer) consumeOnce(ctx context.Context, ping time.Duration) error {
	log.Info().Str("url", c.url).Msg("connecting to transaction feed")

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("dial failed: %w", err)
	}
	defer conn.Close()

	conn.SetReadLimit(512 * 1024)
	conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	pingTicker := time.NewTicker(ping)
	defer pingTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-pingTicker.C:
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteMessage(websocket.PingMessage, []byte("ping")); err != nil {
				return fmt.Errorf("ping failed: %w", err)
			}
		default:
			conn.SetReadDeadline(time.Now().Add(30 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					log.Info().Msg("feed closed normally")
					return err
				}
				return fmt.Errorf("read message failed: %w", err)
			}

			var txn Transaction
			if err := json.Unmarshal(msg, &txn); err != nil {
				log.Debug().Err(err).Str("message", string(msg)).Msg("failed to parse feed message")
				if c.metrics != nil {
					c.metrics.ErrorsInc()
				}
				continue
			}
			if len(txn.Features) == 0 {
				continue
			}

			c.decide(ctx, txn)
		}
	}
}

func (c *Consumer) decide(ctx context.Context, txn Transaction) {
	decision, err := c.engine.Decide(ctx, txn.Features)
	if err != nil {
		log.Error().Err(err).Str("txn", txn.TxnID).Msg("feed decision failed")
		if c.metrics != nil {
			c.metrics.ErrorsInc()
		}
		return
	}

	evt := log.Info()
	if decision.Label == 1 {
		evt = log.Warn()
	}
	evt.
		Str("txn", txn.TxnID).
		Str("decision", decision.ID).
		Int("label", decision.Label).
		Float64("blend", decision.Blend).
		Bool("strict_rule", decision.Rules.Strict).
		Msg("feed decision")
}
