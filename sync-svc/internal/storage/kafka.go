package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"overcooked-staffsync/sync-svc/internal/domain"
	"overcooked-staffsync/sync-svc/internal/feed"

	"github.com/segmentio/kafka-go"
)

var ErrNoPartitions = errors.New("feed topic has no partitions")

// messageReader is the part of *kafka.Reader the feed stream needs.
type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	SetOffsetAt(ctx context.Context, t time.Time) error
	Stats() kafka.ReaderStats
	Close() error
}

// KafkaTransport subscribes to the location-keyed change topic. The relay keys
// every message by location id with a hash balancer, so a location lives on
// exactly one partition and arrives in commit order.
type KafkaTransport struct {
	Brokers []string
	Topic   string
	// Lookback rewinds a new subscription so changes committed while the
	// previous one was down are replayed. Duplicates are harmless.
	Lookback time.Duration
	// IdleHeartbeat is how long Recv waits on a quiet partition before
	// reporting liveness, provided the reader is still fetching.
	IdleHeartbeat time.Duration
	Logger        *slog.Logger

	partitions func(ctx context.Context) ([]int, error)
	newReader  func(partition int) messageReader
	now        func() time.Time
}

var _ feed.Transport = (*KafkaTransport)(nil)

func NewKafkaTransport(brokers []string, topic string, lookback time.Duration, readerFor func(partition int) *kafka.Reader, logger *slog.Logger) *KafkaTransport {
	if logger == nil {
		logger = slog.Default()
	}
	t := &KafkaTransport{
		Brokers:       brokers,
		Topic:         topic,
		Lookback:      lookback,
		IdleHeartbeat: 5 * time.Second,
		Logger:        logger,
		now:           time.Now,
	}
	t.partitions = t.readPartitions
	t.newReader = func(partition int) messageReader { return readerFor(partition) }
	return t
}

func (t *KafkaTransport) Subscribe(ctx context.Context, locationID string) (feed.Stream, error) {
	partitions, err := t.partitions(ctx)
	if err != nil {
		return nil, fmt.Errorf("read partitions: %w", err)
	}
	if len(partitions) == 0 {
		return nil, ErrNoPartitions
	}
	partition := PartitionFor(locationID, partitions)

	r := t.newReader(partition)
	if err := r.SetOffsetAt(ctx, t.now().Add(-t.Lookback)); err != nil {
		r.Close()
		return nil, fmt.Errorf("seek partition %d: %w", partition, err)
	}
	t.Logger.Info("feed subscribed", "location_id", locationID, "topic", t.Topic, "partition", partition)
	return &kafkaStream{transport: t, reader: r, locationID: locationID}, nil
}

// PartitionFor picks the partition the writer's hash balancer sends key to.
func PartitionFor(locationID string, partitions []int) int {
	sorted := append([]int(nil), partitions...)
	sort.Ints(sorted)
	return (&kafka.Hash{}).Balance(kafka.Message{Key: []byte(locationID)}, sorted...)
}

func (t *KafkaTransport) readPartitions(ctx context.Context) ([]int, error) {
	var lastErr error
	for _, broker := range t.Brokers {
		conn, err := kafka.DialContext(ctx, "tcp", broker)
		if err != nil {
			lastErr = err
			continue
		}
		found, err := conn.ReadPartitions(t.Topic)
		conn.Close()
		if err != nil {
			lastErr = err
			continue
		}
		ids := make([]int, 0, len(found))
		for _, p := range found {
			ids = append(ids, p.ID)
		}
		sort.Ints(ids)
		return ids, nil
	}
	if lastErr == nil {
		lastErr = errors.New("no brokers configured")
	}
	return nil, lastErr
}

type kafkaStream struct {
	transport  *KafkaTransport
	reader     messageReader
	locationID string
}

// Recv returns the next event for the stream's location. Messages keyed for
// other locations sharing the partition are skipped, as are undecodable ones.
// A quiet partition yields a heartbeat only if the reader fetched from the
// broker since the last check; a wedged reader yields nothing.
func (s *kafkaStream) Recv(ctx context.Context) (domain.ChangeEvent, error) {
	idle := s.transport.IdleHeartbeat
	if idle <= 0 {
		idle = 5 * time.Second
	}
	for {
		readCtx, cancel := context.WithTimeout(ctx, idle)
		msg, err := s.reader.ReadMessage(readCtx)
		cancel()
		if err != nil {
			if ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
				if s.reader.Stats().Fetches > 0 {
					return domain.ChangeEvent{Op: domain.OpHeartbeat, LocationID: s.locationID}, nil
				}
				s.transport.Logger.Warn("feed reader made no fetches while idle", "location_id", s.locationID)
				continue
			}
			return domain.ChangeEvent{}, err
		}
		if string(msg.Key) != s.locationID {
			continue
		}
		var ev domain.ChangeEvent
		if err := json.Unmarshal(msg.Value, &ev); err != nil {
			s.transport.Logger.Warn("skipping undecodable feed message",
				"location_id", s.locationID, "partition", msg.Partition, "offset", msg.Offset, "error", err)
			continue
		}
		if ev.LocationID == "" {
			ev.LocationID = s.locationID
		}
		return ev, nil
	}
}

// Ping checks that a broker still serves the topic's metadata.
func (s *kafkaStream) Ping(ctx context.Context) error {
	_, err := s.transport.partitions(ctx)
	return err
}

func (s *kafkaStream) Close() error {
	return s.reader.Close()
}
