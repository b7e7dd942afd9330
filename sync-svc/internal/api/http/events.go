package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"overcooked-staffsync/sync-svc/internal/domain"
	"overcooked-staffsync/sync-svc/internal/store"
)

type storeEvent struct {
	Kind  string      `json:"kind"`
	Op    string      `json:"op"`
	ID    string      `json:"id"`
	Value interface{} `json:"value,omitempty"`
}

// streamEvents pushes store notifications as server-sent events. Store
// subscribers run on the reconciler's goroutine, so a slow client loses
// events instead of stalling it; the client is told to refetch.
func (h *Handler) streamEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	events := make(chan storeEvent, 64)
	var overflow atomic.Bool
	push := func(ev storeEvent) {
		select {
		case events <- ev:
		default:
			overflow.Store(true)
		}
	}

	unsubRequests := h.Session.Requests().Subscribe(func(c store.Change[domain.ServiceRequest]) {
		ev := storeEvent{Kind: "request", Op: string(c.Op), ID: c.ID}
		if c.Op == store.ChangeUpsert {
			ev.Value = c.Value
		}
		push(ev)
	})
	defer unsubRequests()
	unsubOrders := h.Session.Orders().Subscribe(func(c store.Change[domain.Order]) {
		ev := storeEvent{Kind: "order", Op: string(c.Op), ID: c.ID}
		if c.Op == store.ChangeUpsert {
			ev.Value = c.Value
		}
		push(ev)
	})
	defer unsubOrders()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	state := h.Session.State()
	writeEvent(w, "state", map[string]interface{}{
		"location_id": h.Session.LocationID(),
		"state":       state,
	})
	flusher.Flush()

	poll := time.NewTicker(h.statePoll())
	defer poll.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-poll.C:
			if current := h.Session.State(); current != state {
				state = current
				writeEvent(w, "connection", map[string]interface{}{
					"location_id": h.Session.LocationID(),
					"state":       state,
				})
				flusher.Flush()
			}
		case ev := <-events:
			if overflow.Swap(false) {
				writeEvent(w, "resync", map[string]string{"reason": "client too slow"})
			}
			writeEvent(w, ev.Kind, ev)
			flusher.Flush()
		}
	}
}

func (h *Handler) statePoll() time.Duration {
	if h.StatePoll > 0 {
		return h.StatePoll
	}
	return time.Second
}

func writeEvent(w http.ResponseWriter, name string, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, data)
}
