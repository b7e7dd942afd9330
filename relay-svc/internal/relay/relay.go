// Package relay turns Postgres row-change notifications into Kafka messages
// keyed by location, closing the loop between staff writes and every
// subscribed session.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/lib/pq"
	"github.com/segmentio/kafka-go"
)

var ErrListenerClosed = errors.New("notification channel closed")

// Envelope mirrors the JSON the notify trigger emits.
type Envelope struct {
	EntityType string          `json:"entity_type"`
	Op         string          `json:"op"`
	LocationID string          `json:"location_id"`
	Payload    json.RawMessage `json:"payload"`
	Truncated  bool            `json:"truncated,omitempty"`
}

// Listener is the part of *pq.Listener the relay uses.
type Listener interface {
	NotificationChannel() <-chan *pq.Notification
	Ping() error
}

type Publisher interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

type Relay struct {
	listener     Listener
	publisher    Publisher
	logger       *slog.Logger
	pingInterval time.Duration
	retries      int
	retryDelay   time.Duration
}

func New(listener Listener, publisher Publisher, logger *slog.Logger) *Relay {
	if logger == nil {
		logger = slog.Default()
	}
	return &Relay{
		listener:     listener,
		publisher:    publisher,
		logger:       logger,
		pingInterval: 90 * time.Second,
		retries:      3,
		retryDelay:   500 * time.Millisecond,
	}
}

// Run forwards notifications until ctx ends or the listener gives up.
func (r *Relay) Run(ctx context.Context) error {
	ping := time.NewTicker(r.pingInterval)
	defer ping.Stop()

	notifications := r.listener.NotificationChannel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ping.C:
			if err := r.listener.Ping(); err != nil {
				r.logger.Warn("listener ping failed", "error", err)
			}
		case n, ok := <-notifications:
			if !ok {
				return ErrListenerClosed
			}
			if n == nil {
				// pq delivers nil after re-establishing the connection.
				r.logger.Warn("listener reconnected, notifications sent meanwhile were lost")
				continue
			}
			if err := r.Forward(ctx, n); err != nil && ctx.Err() == nil {
				r.logger.Error("dropping notification", "channel", n.Channel, "error", err)
			}
		}
	}
}

// Forward publishes one notification. Payloads are passed through untouched;
// only the location is read to pick the message key.
func (r *Relay) Forward(ctx context.Context, n *pq.Notification) error {
	var env Envelope
	if err := json.Unmarshal([]byte(n.Extra), &env); err != nil {
		return err
	}
	if env.LocationID == "" {
		return errors.New("notification without location_id")
	}

	msg := kafka.Message{Key: []byte(env.LocationID), Value: []byte(n.Extra)}
	var err error
	for attempt := 0; attempt <= r.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(r.retryDelay):
			}
		}
		if err = r.publisher.WriteMessages(ctx, msg); err == nil {
			r.logger.Debug("change relayed",
				"entity_type", env.EntityType, "op", env.Op, "location_id", env.LocationID, "truncated", env.Truncated)
			return nil
		}
		r.logger.Warn("publish failed", "attempt", attempt+1, "location_id", env.LocationID, "error", err)
	}
	return err
}
