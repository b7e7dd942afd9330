// Package service wires one staff session: a location subscription feeding the
// reconciler, the stores it writes, and the gateway used for actions.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"overcooked-staffsync/sync-svc/internal/domain"
	"overcooked-staffsync/sync-svc/internal/feed"
	"overcooked-staffsync/sync-svc/internal/gateway"
	"overcooked-staffsync/sync-svc/internal/metrics"
	"overcooked-staffsync/sync-svc/internal/reconciler"
	"overcooked-staffsync/sync-svc/internal/store"

	"github.com/google/uuid"
)

var ErrNotRunning = errors.New("session is not running")

type Config struct {
	StaffID       string
	ActionTimeout time.Duration
	// HistoryWindow bounds how long completed requests and finished orders
	// stay visible after they leave the live set.
	HistoryWindow time.Duration
	Feed          feed.Options
}

type Session struct {
	id       string
	staffID  string
	window   time.Duration
	fetchTTL time.Duration
	backend  Backend
	presence Presence
	logger   *slog.Logger

	requests   *store.RequestStore
	orders     *store.OrderStore
	reconciler *reconciler.Reconciler
	client     *feed.Client
	gateway    *gateway.Gateway

	mu     sync.Mutex
	base   context.Context
	handle *feed.Handle
	now    func() time.Time
}

// NewSession builds an idle session; presence may be nil.
func NewSession(backend Backend, transport feed.Transport, presence Presence, cfg Config, logger *slog.Logger, m *metrics.Metrics) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.HistoryWindow <= 0 {
		cfg.HistoryWindow = 30 * time.Minute
	}
	if cfg.ActionTimeout <= 0 {
		cfg.ActionTimeout = 10 * time.Second
	}
	s := &Session{
		id:       uuid.NewString(),
		staffID:  cfg.StaffID,
		window:   cfg.HistoryWindow,
		fetchTTL: cfg.ActionTimeout,
		backend:  backend,
		presence: presence,
		requests: store.NewRequestStore(),
		orders:   store.NewOrderStore(),
		now:      time.Now,
	}
	s.logger = logger.With("session_id", s.id)
	s.reconciler = reconciler.New(s.requests, s.orders, s.logger, m)
	s.reconciler.OnRefetch(s.refetch)

	opts := cfg.Feed
	opts.Logger = s.logger
	opts.Metrics = m
	opts.OnTick = s.tick
	s.client = feed.NewClient(transport, s.loadSnapshot, opts)
	s.client.OnEvent(s.reconciler.Apply)

	s.gateway = gateway.New(backend, cfg.ActionTimeout, s.logger, m)
	return s
}

// Run subscribes to locationID and blocks until ctx ends.
func (s *Session) Run(ctx context.Context, locationID string) error {
	s.mu.Lock()
	s.base = ctx
	err := s.connectLocked(locationID)
	s.mu.Unlock()
	if err != nil {
		return err
	}

	<-ctx.Done()
	s.Close()
	return nil
}

// SwitchLocation drops everything known about the current location before
// subscribing to the new one.
func (s *Session) SwitchLocation(locationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.base == nil || s.base.Err() != nil {
		return ErrNotRunning
	}
	if s.handle != nil && s.handle.LocationID() == locationID {
		return nil
	}
	s.disconnectLocked()
	return s.connectLocked(locationID)
}

func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disconnectLocked()
}

func (s *Session) connectLocked(locationID string) error {
	s.reconciler.Reset()
	h, err := s.client.Connect(s.base, locationID)
	if err != nil {
		return fmt.Errorf("connect %s: %w", locationID, err)
	}
	s.handle = h
	s.logger.Info("session opened", "location_id", locationID, "staff_id", s.staffID)
	return nil
}

func (s *Session) disconnectLocked() {
	if s.handle == nil {
		return
	}
	locationID := s.handle.LocationID()
	s.client.Disconnect(s.handle)
	s.handle = nil
	s.reconciler.Reset()

	if s.presence != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := s.presence.Leave(ctx, locationID, s.id); err != nil {
			s.logger.Warn("presence leave failed", "location_id", locationID, "error", err)
		}
	}
	s.logger.Info("session closed", "location_id", locationID)
}

func (s *Session) loadSnapshot(ctx context.Context, locationID string) error {
	snap, err := s.backend.Snapshot(ctx, locationID, s.now().Add(-s.window))
	if err != nil {
		return err
	}
	snap.LocationID = locationID
	s.reconciler.ApplySnapshot(snap)
	return nil
}

// refetch reads a row announced only by reference and merges it like a feed
// event. It is called under the reconciler lock from the feed goroutine, so
// all work happens on its own goroutine.
func (s *Session) refetch(entityType domain.EntityType, id, locationID string) {
	go func() {
		s.mu.Lock()
		base := s.base
		s.mu.Unlock()
		if base == nil {
			return
		}
		ctx, cancel := context.WithTimeout(base, s.fetchTTL)
		defer cancel()

		var (
			req   domain.ServiceRequest
			order domain.Order
			err   error
		)
		switch entityType {
		case domain.EntityRequest:
			req, err = s.backend.GetRequest(ctx, id)
		case domain.EntityOrder:
			order, err = s.backend.GetOrder(ctx, id)
		default:
			return
		}
		if errors.Is(err, domain.ErrNotFound) {
			s.logger.Debug("refetched row is gone", "entity_type", entityType, "entity_id", id)
			return
		}
		if err != nil {
			s.logger.Warn("refetch failed", "entity_type", entityType, "entity_id", id, "location_id", locationID, "error", err)
			return
		}

		// a switch since the event arrived makes the row irrelevant
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.handle == nil || s.handle.LocationID() != locationID {
			return
		}
		if entityType == domain.EntityRequest {
			s.reconciler.ApplyRequest(req, locationID)
		} else {
			s.reconciler.ApplyOrder(order, locationID)
		}
	}()
}

func (s *Session) tick(ctx context.Context, locationID string) {
	if n := s.reconciler.Prune(s.window); n > 0 {
		s.logger.Debug("history pruned", "location_id", locationID, "removed", n)
	}
	if s.presence == nil || s.staffID == "" {
		return
	}
	if err := s.presence.Announce(ctx, locationID, s.id, s.staffID); err != nil {
		s.logger.Warn("presence announce failed", "location_id", locationID, "error", err)
	}
}

func (s *Session) ID() string                    { return s.id }
func (s *Session) StaffID() string               { return s.staffID }
func (s *Session) Requests() *store.RequestStore { return s.requests }
func (s *Session) Orders() *store.OrderStore     { return s.orders }
func (s *Session) Gateway() *gateway.Gateway     { return s.gateway }
func (s *Session) State() feed.State             { return s.client.State() }

func (s *Session) OnStateChange(fn func(feed.State)) { s.client.OnStateChange(fn) }

func (s *Session) LocationID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.handle == nil {
		return ""
	}
	return s.handle.LocationID()
}

// Online lists staff currently watching the session's location.
func (s *Session) Online(ctx context.Context) ([]string, error) {
	locationID := s.LocationID()
	if s.presence == nil || locationID == "" {
		return []string{}, nil
	}
	return s.presence.Online(ctx, locationID)
}
