package reconciler

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"overcooked-staffsync/sync-svc/internal/domain"
	"overcooked-staffsync/sync-svc/internal/lifecycle"
	"overcooked-staffsync/sync-svc/internal/metrics"
	"overcooked-staffsync/sync-svc/internal/store"
)

var (
	ErrMalformedPayload = errors.New("malformed payload")
	ErrWrongLocation    = errors.New("payload location does not match event location")
	ErrUnknownEntity    = errors.New("unknown entity type")
	ErrUnknownOp        = errors.New("unknown op")
)

const (
	resultApplied   = "applied"
	resultDuplicate = "duplicate"
	resultStale     = "stale"
	resultRemoved   = "removed"
	resultDropped   = "dropped"
	resultRefetch   = "refetch"

	labelUnknown = "unknown"
)

// RefetchFunc is asked to read an entity the feed only referenced. It must not
// block; the result comes back through ApplyRequest or ApplyOrder.
type RefetchFunc func(entityType domain.EntityType, id, locationID string)

// Reconciler is the only writer of the request and order stores.
type Reconciler struct {
	requests *store.RequestStore
	orders   *store.OrderStore
	logger   *slog.Logger
	metrics  *metrics.Metrics

	mu sync.Mutex
	// tombstones remember removed ids so a redelivered insert cannot resurrect them.
	tombstones map[string]time.Time
	refetch    RefetchFunc
	now        func() time.Time
}

func New(requests *store.RequestStore, orders *store.OrderStore, logger *slog.Logger, m *metrics.Metrics) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{
		requests:   requests,
		orders:     orders,
		logger:     logger,
		metrics:    m,
		tombstones: make(map[string]time.Time),
		now:        time.Now,
	}
}

// OnRefetch installs the handler for truncated events. Without one they are
// dropped and the entity catches up on the next snapshot.
func (r *Reconciler) OnRefetch(fn RefetchFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.refetch = fn
}

// Apply merges one feed event into the stores. Bad events are logged and
// dropped; nothing escapes to the caller.
func (r *Reconciler) Apply(ev domain.ChangeEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	result, err := r.apply(ev)
	if err != nil {
		result = resultDropped
		r.logger.Warn("dropping change event",
			"entity_type", ev.EntityType, "op", ev.Op, "location_id", ev.LocationID, "error", err)
	}
	entityType, op := metricLabels(ev)
	r.metrics.EventApplied(entityType, op, result)
}

// ApplyRequest merges a request read from the backend after a truncated event.
func (r *Reconciler) ApplyRequest(req domain.ServiceRequest, locationID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	result, err := r.mergeRequest(req, locationID)
	if err != nil {
		result = resultDropped
		r.logger.Warn("dropping refetched request", "entity_id", req.ID, "location_id", locationID, "error", err)
	}
	r.metrics.EventApplied(string(domain.EntityRequest), resultRefetch, result)
}

// ApplyOrder is ApplyRequest for orders.
func (r *Reconciler) ApplyOrder(o domain.Order, locationID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	result, err := r.mergeOrder(o, locationID)
	if err != nil {
		result = resultDropped
		r.logger.Warn("dropping refetched order", "entity_id", o.ID, "location_id", locationID, "error", err)
	}
	r.metrics.EventApplied(string(domain.EntityOrder), resultRefetch, result)
}

func (r *Reconciler) apply(ev domain.ChangeEvent) (string, error) {
	switch ev.Op {
	case domain.OpInsert, domain.OpUpdate, domain.OpDelete:
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownOp, ev.Op)
	}
	switch ev.EntityType {
	case domain.EntityRequest, domain.EntityOrder:
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownEntity, ev.EntityType)
	}

	if ev.Truncated && ev.Op != domain.OpDelete {
		return r.requestRefetch(ev)
	}
	switch {
	case ev.EntityType == domain.EntityRequest && ev.Op == domain.OpDelete:
		return r.removeRequest(ev)
	case ev.EntityType == domain.EntityRequest:
		return r.upsertRequest(ev)
	case ev.Op == domain.OpDelete:
		return r.removeOrder(ev)
	}
	return r.upsertOrder(ev)
}

// requestRefetch leaves the cached version untouched; a reference carries no
// content to merge.
func (r *Reconciler) requestRefetch(ev domain.ChangeEvent) (string, error) {
	id, err := decodeID(ev)
	if err != nil {
		return "", err
	}
	if r.refetch == nil {
		r.logger.Warn("truncated change without refetch handler", "entity_type", ev.EntityType, "entity_id", id)
		return resultDropped, nil
	}
	r.refetch(ev.EntityType, id, ev.LocationID)
	return resultRefetch, nil
}

func (r *Reconciler) upsertRequest(ev domain.ChangeEvent) (string, error) {
	var req domain.ServiceRequest
	if err := decode(ev, &req); err != nil {
		return "", err
	}
	return r.mergeRequest(req, ev.LocationID)
}

func (r *Reconciler) mergeRequest(req domain.ServiceRequest, locationID string) (string, error) {
	if err := req.Validate(); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if req.LocationID != locationID {
		return "", ErrWrongLocation
	}
	key := tombstoneKey(domain.EntityRequest, req.ID)

	if req.Status == domain.StatusClosed {
		r.tombstones[key] = r.now()
		if r.requests.Remove(req.ID) {
			return resultRemoved, nil
		}
		return resultDuplicate, nil
	}
	if _, dead := r.tombstones[key]; dead {
		return resultStale, nil
	}
	if cached, ok := r.requests.Get(req.ID); ok {
		if err := lifecycle.AcceptRequest(cached, req); err != nil {
			r.logger.Debug("ignoring request version",
				"entity_id", req.ID, "cached_status", cached.Status, "incoming_status", req.Status, "reason", err)
			return resultStale, nil
		}
	}
	if r.requests.Upsert(req) {
		return resultApplied, nil
	}
	return resultDuplicate, nil
}

func (r *Reconciler) upsertOrder(ev domain.ChangeEvent) (string, error) {
	var order domain.Order
	if err := decode(ev, &order); err != nil {
		return "", err
	}
	return r.mergeOrder(order, ev.LocationID)
}

func (r *Reconciler) mergeOrder(order domain.Order, locationID string) (string, error) {
	if err := order.Validate(); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if order.LocationID != locationID {
		return "", ErrWrongLocation
	}
	if _, dead := r.tombstones[tombstoneKey(domain.EntityOrder, order.ID)]; dead {
		return resultStale, nil
	}
	if cached, ok := r.orders.Get(order.ID); ok {
		if err := lifecycle.AcceptOrder(cached, order); err != nil {
			r.logger.Debug("ignoring order version",
				"entity_id", order.ID, "cached_updated_at", cached.UpdatedAt, "incoming_updated_at", order.UpdatedAt)
			return resultStale, nil
		}
	}
	if r.orders.Upsert(order) {
		return resultApplied, nil
	}
	return resultDuplicate, nil
}

func (r *Reconciler) removeRequest(ev domain.ChangeEvent) (string, error) {
	id, err := decodeID(ev)
	if err != nil {
		return "", err
	}
	r.tombstones[tombstoneKey(domain.EntityRequest, id)] = r.now()
	if r.requests.Remove(id) {
		return resultRemoved, nil
	}
	return resultDuplicate, nil
}

func (r *Reconciler) removeOrder(ev domain.ChangeEvent) (string, error) {
	id, err := decodeID(ev)
	if err != nil {
		return "", err
	}
	r.tombstones[tombstoneKey(domain.EntityOrder, id)] = r.now()
	if r.orders.Remove(id) {
		return resultRemoved, nil
	}
	return resultDuplicate, nil
}

// ApplySnapshot rebuilds both stores from an authoritative snapshot. Entities
// absent from the snapshot are removed.
func (r *Reconciler) ApplySnapshot(s domain.Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()

	requests := make([]domain.ServiceRequest, 0, len(s.Requests))
	for _, req := range s.Requests {
		if err := req.Validate(); err != nil {
			r.logger.Warn("dropping snapshot request", "entity_id", req.ID, "error", err)
			continue
		}
		if req.Status == domain.StatusClosed {
			continue
		}
		delete(r.tombstones, tombstoneKey(domain.EntityRequest, req.ID))
		requests = append(requests, req)
	}

	orders := make([]domain.Order, 0, len(s.Orders))
	for _, o := range s.Orders {
		if err := o.Validate(); err != nil {
			r.logger.Warn("dropping snapshot order", "entity_id", o.ID, "error", err)
			continue
		}
		delete(r.tombstones, tombstoneKey(domain.EntityOrder, o.ID))
		orders = append(orders, o)
	}

	changedRequests := r.requests.Replace(requests)
	changedOrders := r.orders.Replace(orders)
	r.logger.Info("snapshot applied",
		"location_id", s.LocationID,
		"requests", len(requests), "orders", len(orders),
		"changed", changedRequests+changedOrders)
}

// Prune drops history older than window: completed requests, served or
// cancelled orders and tombstones.
func (r *Reconciler) Prune(window time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.now().Add(-window)
	for key, at := range r.tombstones {
		if at.Before(cutoff) {
			delete(r.tombstones, key)
		}
	}

	n := r.requests.Prune(func(req domain.ServiceRequest) bool {
		if req.Active() {
			return true
		}
		return req.CompletedAt != nil && req.CompletedAt.After(cutoff)
	})
	n += r.orders.Prune(func(o domain.Order) bool {
		return !o.Status.Terminal() || o.UpdatedAt.After(cutoff)
	})
	return n
}

// Reset forgets everything, used when the session switches location.
func (r *Reconciler) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.tombstones = make(map[string]time.Time)
	r.requests.Clear()
	r.orders.Clear()
}

func decode(ev domain.ChangeEvent, v any) error {
	if len(ev.Payload) == 0 {
		return fmt.Errorf("%w: empty payload", ErrMalformedPayload)
	}
	if err := json.Unmarshal(ev.Payload, v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return nil
}

func decodeID(ev domain.ChangeEvent) (string, error) {
	var ref struct {
		ID string `json:"id"`
	}
	if err := decode(ev, &ref); err != nil {
		return "", err
	}
	if ref.ID == "" {
		return "", fmt.Errorf("%w: %v", ErrMalformedPayload, domain.ErrMissingID)
	}
	return ref.ID, nil
}

// metricLabels keeps feed-supplied values out of label sets.
func metricLabels(ev domain.ChangeEvent) (entityType, op string) {
	entityType, op = labelUnknown, labelUnknown
	switch ev.EntityType {
	case domain.EntityRequest, domain.EntityOrder:
		entityType = string(ev.EntityType)
	}
	switch ev.Op {
	case domain.OpInsert, domain.OpUpdate, domain.OpDelete:
		op = string(ev.Op)
	}
	return entityType, op
}

func tombstoneKey(t domain.EntityType, id string) string {
	return string(t) + ":" + id
}
