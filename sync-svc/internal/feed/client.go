// Package feed keeps one live change-feed subscription per location and turns
// transport trouble into connection states instead of errors.
package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"overcooked-staffsync/sync-svc/internal/domain"
	"overcooked-staffsync/sync-svc/internal/metrics"
)

type State string

const (
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateDegraded     State = "degraded"
	StateDisconnected State = "disconnected"
)

func (s State) gauge() float64 {
	switch s {
	case StateConnecting:
		return 1
	case StateDegraded:
		return 2
	case StateConnected:
		return 3
	}
	return 0
}

var (
	ErrStale        = errors.New("feed silent beyond stale threshold")
	ErrNoLocation   = errors.New("missing location id")
	ErrStreamClosed = errors.New("stream closed")
)

// Stream is one live subscription on the transport. While the location is
// quiet, Recv returns domain.OpHeartbeat events as long as the delivering
// connection is healthy; they count as liveness and are never dispatched.
// Ping checks the transport out of band and does not count as liveness.
type Stream interface {
	Recv(ctx context.Context) (domain.ChangeEvent, error)
	Ping(ctx context.Context) error
	Close() error
}

type Transport interface {
	Subscribe(ctx context.Context, locationID string) (Stream, error)
}

// SnapshotLoader fetches and applies the baseline for a location. It runs after
// the stream is open and before buffered events are replayed.
type SnapshotLoader func(ctx context.Context, locationID string) error

type Handler func(domain.ChangeEvent)

type Options struct {
	Backoff           Backoff
	HeartbeatInterval time.Duration
	StaleAfter        time.Duration
	SnapshotTimeout   time.Duration
	// BufferSize bounds events held while the snapshot loads. A full buffer
	// pauses the receiver; nothing is dropped.
	BufferSize int
	// OnTick runs on every heartbeat while connected.
	OnTick  func(ctx context.Context, locationID string)
	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

func (o *Options) defaults() {
	if o.Backoff.Base == 0 {
		o.Backoff = DefaultBackoff()
	}
	if o.HeartbeatInterval <= 0 {
		o.HeartbeatInterval = 5 * time.Second
	}
	if o.StaleAfter <= 0 {
		o.StaleAfter = 15 * time.Second
	}
	if o.SnapshotTimeout <= 0 {
		o.SnapshotTimeout = o.StaleAfter
	}
	if o.BufferSize <= 0 {
		o.BufferSize = 256
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// Handle identifies one connect call; it is invalid after Disconnect.
type Handle struct {
	locationID string
	cancel     context.CancelFunc
	done       chan struct{}
}

func (h *Handle) LocationID() string { return h.locationID }

// Done is closed once the subscription loop has fully stopped.
func (h *Handle) Done() <-chan struct{} { return h.done }

type Client struct {
	transport Transport
	snapshot  SnapshotLoader
	opts      Options

	mu        sync.Mutex
	state     State
	handle    *Handle
	handlers  []Handler
	observers []func(State)
}

func NewClient(transport Transport, snapshot SnapshotLoader, opts Options) *Client {
	opts.defaults()
	return &Client{
		transport: transport,
		snapshot:  snapshot,
		opts:      opts,
		state:     StateDisconnected,
	}
}

// OnEvent registers h for every event delivered after the baseline snapshot.
// Handlers run sequentially on the subscription goroutine.
func (c *Client) OnEvent(h Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers = append(c.handlers, h)
}

func (c *Client) OnStateChange(fn func(State)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.observers = append(c.observers, fn)
}

func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connect starts a subscription for locationID in the background. An existing
// subscription is torn down first, so at most one location is live.
func (c *Client) Connect(ctx context.Context, locationID string) (*Handle, error) {
	if locationID == "" {
		return nil, ErrNoLocation
	}
	c.mu.Lock()
	prev := c.handle
	c.mu.Unlock()
	if prev != nil {
		c.Disconnect(prev)
	}

	loopCtx, cancel := context.WithCancel(ctx)
	h := &Handle{locationID: locationID, cancel: cancel, done: make(chan struct{})}

	c.mu.Lock()
	c.handle = h
	c.mu.Unlock()
	c.setState(h, StateConnecting)

	go c.run(loopCtx, h)
	return h, nil
}

// Disconnect cancels every timer and goroutine tied to h and waits for them.
func (c *Client) Disconnect(h *Handle) {
	if h == nil {
		return
	}
	h.cancel()
	<-h.done

	c.mu.Lock()
	current := c.handle == h
	if current {
		c.handle = nil
	}
	c.mu.Unlock()
	if current {
		c.forceState(h.locationID, StateDisconnected)
	}
}

func (c *Client) run(ctx context.Context, h *Handle) {
	defer close(h.done)
	log := c.opts.Logger.With("location_id", h.locationID)

	attempt := 0
	for {
		err := c.subscribe(ctx, h, &attempt)
		if ctx.Err() != nil {
			return
		}
		c.setState(h, StateDegraded)
		c.opts.Metrics.Reconnect(h.locationID)

		delay := c.opts.Backoff.Delay(attempt)
		attempt++
		log.Warn("change feed interrupted, reconnecting", "error", err, "attempt", attempt, "delay", delay)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// subscribe runs one stream from open to failure: open, buffer, snapshot,
// replay, then live delivery with heartbeat checks.
func (c *Client) subscribe(ctx context.Context, h *Handle, attempt *int) error {
	stream, err := c.transport.Subscribe(ctx, h.locationID)
	if err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	defer stream.Close()

	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var lastSeen atomic.Int64
	lastSeen.Store(time.Now().UnixNano())

	events := make(chan domain.ChangeEvent, c.opts.BufferSize)
	recvErr := make(chan error, 1)
	go func() {
		for {
			ev, err := stream.Recv(streamCtx)
			if err != nil {
				recvErr <- err
				return
			}
			lastSeen.Store(time.Now().UnixNano())
			if ev.Op == domain.OpHeartbeat {
				continue
			}
			select {
			case events <- ev:
			case <-streamCtx.Done():
				return
			}
		}
	}()

	snapCtx, snapCancel := context.WithTimeout(streamCtx, c.opts.SnapshotTimeout)
	err = c.snapshot(snapCtx, h.locationID)
	snapCancel()
	if err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}

replay:
	for {
		select {
		case ev := <-events:
			c.dispatch(h, ev)
		default:
			break replay
		}
	}
	c.setState(h, StateConnected)
	*attempt = 0

	ticker := time.NewTicker(c.opts.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-recvErr:
			if err == nil {
				err = ErrStreamClosed
			}
			return err
		case ev := <-events:
			c.dispatch(h, ev)
		case <-ticker.C:
			pingCtx, pingCancel := context.WithTimeout(streamCtx, c.opts.HeartbeatInterval)
			if err := stream.Ping(pingCtx); err != nil {
				c.opts.Logger.Debug("heartbeat ping failed", "location_id", h.locationID, "error", err)
			}
			pingCancel()

			if silent := time.Since(time.Unix(0, lastSeen.Load())); silent > c.opts.StaleAfter {
				return fmt.Errorf("%w: silent for %s", ErrStale, silent.Round(time.Millisecond))
			}
			if c.opts.OnTick != nil {
				c.opts.OnTick(ctx, h.locationID)
			}
		}
	}
}

func (c *Client) dispatch(h *Handle, ev domain.ChangeEvent) {
	if ev.LocationID != h.locationID {
		c.opts.Logger.Warn("dropping event for foreign location",
			"location_id", h.locationID, "event_location_id", ev.LocationID)
		return
	}
	c.mu.Lock()
	handlers := append([]Handler(nil), c.handlers...)
	c.mu.Unlock()
	for _, fn := range handlers {
		fn(ev)
	}
}

// setState only records transitions for the live handle; a torn-down loop
// cannot overwrite the state of its successor.
func (c *Client) setState(h *Handle, s State) {
	c.mu.Lock()
	if c.handle != h {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()
	c.forceState(h.locationID, s)
}

func (c *Client) forceState(locationID string, s State) {
	c.mu.Lock()
	if c.state == s {
		c.mu.Unlock()
		return
	}
	c.state = s
	observers := append([]func(State){}, c.observers...)
	c.mu.Unlock()

	c.opts.Metrics.FeedState(locationID, s.gauge())
	c.opts.Logger.Info("change feed state", "location_id", locationID, "state", s)
	for _, fn := range observers {
		fn(s)
	}
}
