package reconciler

import (
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"overcooked-staffsync/sync-svc/internal/domain"
	"overcooked-staffsync/sync-svc/internal/metrics"
	"overcooked-staffsync/sync-svc/internal/store"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)

func newTestReconciler() (*Reconciler, *store.RequestStore, *store.OrderStore) {
	requests := store.NewRequestStore()
	orders := store.NewOrderStore()
	rec := New(requests, orders, slog.New(slog.NewTextHandler(io.Discard, nil)), nil)
	rec.now = func() time.Time { return t0 }
	return rec, requests, orders
}

func requestEvent(t *testing.T, op domain.Op, r domain.ServiceRequest) domain.ChangeEvent {
	t.Helper()
	payload, err := json.Marshal(r)
	require.NoError(t, err)
	return domain.ChangeEvent{EntityType: domain.EntityRequest, Op: op, LocationID: r.LocationID, Payload: payload}
}

func orderEvent(t *testing.T, op domain.Op, o domain.Order) domain.ChangeEvent {
	t.Helper()
	payload, err := json.Marshal(o)
	require.NoError(t, err)
	return domain.ChangeEvent{EntityType: domain.EntityOrder, Op: op, LocationID: o.LocationID, Payload: payload}
}

func pendingRequest(id string) domain.ServiceRequest {
	return domain.ServiceRequest{
		ID:          id,
		LocationID:  "L1",
		TableID:     "T4",
		TableNumber: 4,
		Type:        domain.RequestCallStaff,
		Status:      domain.StatusPending,
		Priority:    domain.PriorityNormal,
		CreatedAt:   t0,
	}
}

func acknowledged(r domain.ServiceRequest, by string) domain.ServiceRequest {
	at := t0.Add(time.Minute)
	r.Status = domain.StatusAcknowledged
	r.AcknowledgedBy = by
	r.AcknowledgedAt = &at
	return r
}

func completed(r domain.ServiceRequest, by string, at time.Time) domain.ServiceRequest {
	r.Status = domain.StatusCompleted
	r.CompletedBy = by
	r.CompletedAt = &at
	return r
}

func order(updatedAt time.Time, status domain.OrderStatus) domain.Order {
	return domain.Order{
		ID:          "42",
		OrderNumber: "#42",
		LocationID:  "L1",
		TableID:     "T4",
		Status:      status,
		Items:       json.RawMessage(`[{"sku":"latte","qty":2}]`),
		Subtotal:    900,
		Tax:         90,
		Total:       990,
		CreatedAt:   t0,
		UpdatedAt:   updatedAt,
	}
}

func TestApply_SnapshotThenAcknowledge(t *testing.T) {
	rec, requests, _ := newTestReconciler()

	rec.ApplySnapshot(domain.Snapshot{LocationID: "L1", Requests: []domain.ServiceRequest{pendingRequest("R1")}})
	rec.Apply(requestEvent(t, domain.OpUpdate, acknowledged(pendingRequest("R1"), "staffA")))

	got, ok := requests.Get("R1")
	require.True(t, ok)
	assert.Equal(t, domain.StatusAcknowledged, got.Status)
	assert.Equal(t, "staffA", got.AcknowledgedBy)
}

func TestApply_Idempotent(t *testing.T) {
	rec, requests, orders := newTestReconciler()
	notifications := 0
	requests.Subscribe(func(store.Change[domain.ServiceRequest]) { notifications++ })

	ev := requestEvent(t, domain.OpInsert, pendingRequest("R1"))
	for i := 0; i < 5; i++ {
		rec.Apply(ev)
	}
	oev := orderEvent(t, domain.OpUpdate, order(t0, domain.OrderPreparing))
	for i := 0; i < 5; i++ {
		rec.Apply(oev)
	}

	assert.Equal(t, 1, notifications)
	assert.Equal(t, 1, requests.Len())
	assert.Equal(t, 1, orders.Len())
}

func TestApply_CompletedNeverRevertsToPending(t *testing.T) {
	rec, requests, _ := newTestReconciler()
	r := pendingRequest("R1")

	rec.Apply(requestEvent(t, domain.OpInsert, r))
	rec.Apply(requestEvent(t, domain.OpUpdate, completed(acknowledged(r, "staffA"), "staffB", t0.Add(2*time.Minute))))
	rec.Apply(requestEvent(t, domain.OpUpdate, r))
	rec.Apply(requestEvent(t, domain.OpUpdate, acknowledged(r, "staffA")))

	got, _ := requests.Get("R1")
	assert.Equal(t, domain.StatusCompleted, got.Status)
	assert.Equal(t, "staffB", got.CompletedBy)
}

func TestApply_OwnerIsNeverOverwritten(t *testing.T) {
	rec, requests, _ := newTestReconciler()
	r := pendingRequest("R1")

	rec.Apply(requestEvent(t, domain.OpUpdate, acknowledged(r, "staffA")))
	rec.Apply(requestEvent(t, domain.OpUpdate, acknowledged(r, "staffB")))

	got, _ := requests.Get("R1")
	assert.Equal(t, "staffA", got.AcknowledgedBy)
}

func TestApply_OrderLastWriterWins(t *testing.T) {
	rec, _, orders := newTestReconciler()
	t1 := t0.Add(time.Minute)
	t2 := t0.Add(2 * time.Minute)

	rec.Apply(orderEvent(t, domain.OpUpdate, order(t2, domain.OrderReady)))
	rec.Apply(orderEvent(t, domain.OpUpdate, order(t1, domain.OrderPreparing)))

	got, ok := orders.Get("42")
	require.True(t, ok)
	assert.True(t, got.UpdatedAt.Equal(t2))
	assert.Equal(t, domain.OrderReady, got.Status)
}

func TestApply_MalformedEventBetweenValidOnes(t *testing.T) {
	rec, requests, _ := newTestReconciler()

	rec.Apply(requestEvent(t, domain.OpInsert, pendingRequest("R1")))
	assert.NotPanics(t, func() {
		rec.Apply(domain.ChangeEvent{EntityType: domain.EntityRequest, Op: domain.OpInsert, LocationID: "L1", Payload: json.RawMessage(`{"id":`)})
		rec.Apply(domain.ChangeEvent{EntityType: domain.EntityRequest, Op: domain.OpInsert, LocationID: "L1", Payload: json.RawMessage(`{"id":"X","location_id":"L1","status":"lost"}`)})
		rec.Apply(domain.ChangeEvent{EntityType: "menu", Op: domain.OpInsert, LocationID: "L1", Payload: json.RawMessage(`{}`)})
		rec.Apply(domain.ChangeEvent{EntityType: domain.EntityRequest, Op: "upsert", LocationID: "L1", Payload: json.RawMessage(`{}`)})
		rec.Apply(domain.ChangeEvent{EntityType: domain.EntityRequest, Op: domain.OpDelete, LocationID: "L1"})
	})
	rec.Apply(requestEvent(t, domain.OpInsert, pendingRequest("R2")))

	assert.Equal(t, 2, requests.Len())
	_, ok := requests.Get("X")
	assert.False(t, ok)
}

func TestApply_RejectsForeignLocation(t *testing.T) {
	rec, requests, _ := newTestReconciler()
	ev := requestEvent(t, domain.OpInsert, pendingRequest("R1"))
	ev.LocationID = "L2"

	rec.Apply(ev)

	assert.Equal(t, 0, requests.Len())
}

func TestApply_DeleteIsIdempotentAndFinal(t *testing.T) {
	rec, requests, orders := newTestReconciler()
	r := pendingRequest("R1")

	rec.Apply(requestEvent(t, domain.OpInsert, r))
	rec.Apply(requestEvent(t, domain.OpDelete, r))
	rec.Apply(requestEvent(t, domain.OpDelete, r))
	rec.Apply(requestEvent(t, domain.OpInsert, r))
	rec.Apply(orderEvent(t, domain.OpDelete, order(t0, domain.OrderServed)))

	assert.Equal(t, 0, requests.Len())
	assert.Equal(t, 0, orders.Len())
}

func TestApply_ClosedLeavesLiveSet(t *testing.T) {
	rec, requests, _ := newTestReconciler()
	r := completed(acknowledged(pendingRequest("R1"), "staffA"), "staffA", t0)

	rec.Apply(requestEvent(t, domain.OpUpdate, r))
	require.Equal(t, 1, requests.Len())

	r.Status = domain.StatusClosed
	rec.Apply(requestEvent(t, domain.OpUpdate, r))

	assert.Equal(t, 0, requests.Len())
}

func TestApplySnapshot_BufferedEventsMatchLateArrival(t *testing.T) {
	snapshot := domain.Snapshot{
		LocationID: "L1",
		Requests:   []domain.ServiceRequest{acknowledged(pendingRequest("R1"), "staffA"), pendingRequest("R2")},
		Orders:     []domain.Order{order(t0.Add(2*time.Minute), domain.OrderReady)},
	}
	buffered := []domain.ChangeEvent{
		requestEvent(t, domain.OpUpdate, pendingRequest("R1")),
		orderEvent(t, domain.OpUpdate, order(t0.Add(time.Minute), domain.OrderPreparing)),
		requestEvent(t, domain.OpUpdate, acknowledged(pendingRequest("R2"), "staffB")),
	}

	replayed, replayedRequests, replayedOrders := newTestReconciler()
	replayed.Apply(requestEvent(t, domain.OpInsert, pendingRequest("stale-before-snapshot")))
	replayed.ApplySnapshot(snapshot)
	for _, ev := range buffered {
		replayed.Apply(ev)
	}

	late, lateRequests, lateOrders := newTestReconciler()
	late.ApplySnapshot(snapshot)
	for _, ev := range buffered {
		late.Apply(ev)
	}

	assert.Equal(t, lateRequests.List(), replayedRequests.List())
	assert.Equal(t, lateOrders.List(), replayedOrders.List())
	_, ok := replayedRequests.Get("stale-before-snapshot")
	assert.False(t, ok)
	r2, _ := replayedRequests.Get("R2")
	assert.Equal(t, "staffB", r2.AcknowledgedBy)
}

func TestPrune_KeepsTrailingHistory(t *testing.T) {
	rec, requests, orders := newTestReconciler()

	rec.Apply(requestEvent(t, domain.OpInsert, pendingRequest("live")))
	rec.Apply(requestEvent(t, domain.OpUpdate, completed(acknowledged(pendingRequest("recent"), "staffA"), "staffA", t0.Add(-5*time.Minute))))
	rec.Apply(requestEvent(t, domain.OpUpdate, completed(acknowledged(pendingRequest("old"), "staffA"), "staffA", t0.Add(-2*time.Hour))))
	rec.Apply(orderEvent(t, domain.OpUpdate, order(t0.Add(-2*time.Hour), domain.OrderServed)))

	n := rec.Prune(30 * time.Minute)

	assert.Equal(t, 2, n)
	assert.Equal(t, 2, requests.Len())
	_, ok := requests.Get("old")
	assert.False(t, ok)
	assert.Equal(t, 0, orders.Len())
}

func TestReset(t *testing.T) {
	rec, requests, orders := newTestReconciler()
	rec.Apply(requestEvent(t, domain.OpInsert, pendingRequest("R1")))
	rec.Apply(requestEvent(t, domain.OpDelete, pendingRequest("R2")))
	rec.Apply(orderEvent(t, domain.OpInsert, order(t0, domain.OrderPending)))

	rec.Reset()

	assert.Equal(t, 0, requests.Len())
	assert.Equal(t, 0, orders.Len())
	rec.Apply(requestEvent(t, domain.OpInsert, pendingRequest("R2")))
	assert.Equal(t, 1, requests.Len())
}

type refetchCall struct {
	entityType domain.EntityType
	id         string
	locationID string
}

func TestApply_TruncatedEventKeepsCacheAndRefetches(t *testing.T) {
	rec, requests, orders := newTestReconciler()
	var calls []refetchCall
	rec.OnRefetch(func(entityType domain.EntityType, id, locationID string) {
		calls = append(calls, refetchCall{entityType, id, locationID})
	})

	cached := order(t0.Add(time.Minute), domain.OrderPreparing)
	rec.Apply(orderEvent(t, domain.OpInsert, cached))
	rec.Apply(requestEvent(t, domain.OpInsert, pendingRequest("R1")))

	rec.Apply(domain.ChangeEvent{
		EntityType: domain.EntityOrder, Op: domain.OpUpdate, LocationID: "L1", Truncated: true,
		Payload: json.RawMessage(`{"id":"42","location_id":"L1","updated_at":"2026-03-01T18:05:00Z"}`),
	})
	rec.Apply(domain.ChangeEvent{
		EntityType: domain.EntityRequest, Op: domain.OpUpdate, LocationID: "L1", Truncated: true,
		Payload: json.RawMessage(`{"id":"R1","location_id":"L1","updated_at":null}`),
	})

	assert.Equal(t, []refetchCall{
		{domain.EntityOrder, "42", "L1"},
		{domain.EntityRequest, "R1", "L1"},
	}, calls)
	got, ok := orders.Get("42")
	require.True(t, ok)
	assert.True(t, got.Equal(cached), "cached items survive the reference")

	fetched := order(t0.Add(5*time.Minute), domain.OrderReady)
	fetched.Items = json.RawMessage(`[{"sku":"latte","qty":2},{"sku":"cake","qty":40}]`)
	rec.ApplyOrder(fetched, "L1")
	got, _ = orders.Get("42")
	assert.Equal(t, domain.OrderReady, got.Status)
	assert.JSONEq(t, string(fetched.Items), string(got.Items))

	rec.ApplyRequest(acknowledged(pendingRequest("R1"), "staffA"), "L1")
	req, _ := requests.Get("R1")
	assert.Equal(t, "staffA", req.AcknowledgedBy)

	// a fetched row from another location is not merged
	rec.ApplyRequest(pendingRequest("R1"), "L2")
	req, _ = requests.Get("R1")
	assert.Equal(t, domain.StatusAcknowledged, req.Status)
}

func TestApply_TruncatedEventWithoutHandler(t *testing.T) {
	rec, _, orders := newTestReconciler()
	cached := order(t0.Add(time.Minute), domain.OrderPreparing)
	rec.Apply(orderEvent(t, domain.OpInsert, cached))

	rec.Apply(domain.ChangeEvent{
		EntityType: domain.EntityOrder, Op: domain.OpUpdate, LocationID: "L1", Truncated: true,
		Payload: json.RawMessage(`{"id":"42","location_id":"L1"}`),
	})
	got, _ := orders.Get("42")
	assert.True(t, got.Equal(cached))

	rec.Apply(domain.ChangeEvent{
		EntityType: domain.EntityOrder, Op: domain.OpDelete, LocationID: "L1", Truncated: true,
		Payload: json.RawMessage(`{"id":"42","location_id":"L1"}`),
	})
	assert.Equal(t, 0, orders.Len())
}

func TestApply_MetricLabelsAreBounded(t *testing.T) {
	reg := prometheus.NewRegistry()
	requests, orders := store.NewRequestStore(), store.NewOrderStore()
	rec := New(requests, orders, slog.New(slog.NewTextHandler(io.Discard, nil)), metrics.New(reg))

	rec.Apply(domain.ChangeEvent{EntityType: "menu", Op: domain.OpInsert, LocationID: "L1", Payload: json.RawMessage(`{}`)})
	rec.Apply(domain.ChangeEvent{EntityType: domain.EntityRequest, Op: "upsert", LocationID: "L1", Payload: json.RawMessage(`{}`)})
	rec.Apply(domain.ChangeEvent{EntityType: "x-9f2", Op: "y-77a", LocationID: "L1"})
	rec.Apply(domain.ChangeEvent{EntityType: "x-0c1", Op: "y-3bb", LocationID: "L1"})

	expected := `
# HELP staffsync_events_applied_total Change events seen by the reconciler by result.
# TYPE staffsync_events_applied_total counter
staffsync_events_applied_total{entity_type="request",op="unknown",result="dropped"} 1
staffsync_events_applied_total{entity_type="unknown",op="insert",result="dropped"} 1
staffsync_events_applied_total{entity_type="unknown",op="unknown",result="dropped"} 2
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "staffsync_events_applied_total"))
}
