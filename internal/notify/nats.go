package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/nahidhasan98/finetune-relay/internal/config"
	"github.com/nahidhasan98/finetune-relay/internal/logger"
	"github.com/nahidhasan98/finetune-relay/internal/record"
)

// NATS publishes each record as JSON on a subject
type NATS struct {
	conn    *nats.Conn
	subject string
}

// NewNATS connects to the configured server. The connection retries in the
// background when the server is not yet reachable.
func NewNATS(cfg config.NATSConfig, log *logger.Logger) (*NATS, error) {
	log = log.Component("nats")
	opts := []nats.Option{
		nats.Name("finetune-relay"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(60),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warnf("NATS disconnected: %v", err)
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			log.Info("NATS reconnected")
		}),
	}
	if cfg.Token != "" {
		opts = append(opts, nats.Token(cfg.Token))
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	return &NATS{conn: nc, subject: cfg.Subject}, nil
}

// Name implements Channel
func (n *NATS) Name() string { return "nats" }

// Subject returns the publish subject
func (n *NATS) Subject() string { return n.subject }

// Notify publishes rec
func (n *NATS) Notify(_ context.Context, rec *record.FineTuneRecord) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	return n.conn.Publish(n.subject, payload)
}

// Close flushes pending publishes and closes the connection
func (n *NATS) Close() {
	if err := n.conn.Drain(); err != nil {
		n.conn.Close()
	}
}
