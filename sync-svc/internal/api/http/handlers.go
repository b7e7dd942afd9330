package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"overcooked-staffsync/sync-svc/internal/domain"
	"overcooked-staffsync/sync-svc/internal/feed"
	"overcooked-staffsync/sync-svc/internal/gateway"
	"overcooked-staffsync/sync-svc/internal/lifecycle"
	"overcooked-staffsync/sync-svc/internal/service"
	"overcooked-staffsync/sync-svc/internal/store"

	"github.com/gorilla/mux"
)

type ActionGateway interface {
	Perform(ctx context.Context, action lifecycle.Action, requestID, actorID string) error
	UpdateOrderStatus(ctx context.Context, orderID string, expectedUpdatedAt *time.Time, status domain.OrderStatus, actorID string) error
}

// SessionView is the read side of a staff session.
type SessionView interface {
	Requests() *store.RequestStore
	Orders() *store.OrderStore
	State() feed.State
	LocationID() string
	StaffID() string
	Online(ctx context.Context) ([]string, error)
	SwitchLocation(locationID string) error
}

var (
	_ ActionGateway = (*gateway.Gateway)(nil)
	_ SessionView   = (*service.Session)(nil)
)

type Handler struct {
	Session SessionView
	Actions ActionGateway
	QR      service.QRGenerator
	// StatePoll is how often event streams check the connection state.
	StatePoll time.Duration
}

func NewHandler(session SessionView, actions ActionGateway, qr service.QRGenerator) *Handler {
	return &Handler{Session: session, Actions: actions, QR: qr}
}

func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/health", h.healthCheck).Methods("GET")

	r.HandleFunc("/api/requests", h.getRequests).Methods("GET")
	r.HandleFunc("/api/requests/{id}/{action}", h.performAction).Methods("POST")

	r.HandleFunc("/api/orders", h.getOrders).Methods("GET")
	r.HandleFunc("/api/orders/{id}/status", h.updateOrderStatus).Methods("PATCH")

	r.HandleFunc("/api/connection", h.getConnection).Methods("GET")
	r.HandleFunc("/api/connection", h.switchLocation).Methods("PUT")
	r.HandleFunc("/api/staff", h.getStaff).Methods("GET")
	r.HandleFunc("/api/events", h.streamEvents).Methods("GET")

	r.HandleFunc("/api/tables/{tableId}/qrcode", h.getTableQRCode).Methods("GET")
}

func (h *Handler) healthCheck(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"status":    "healthy",
		"service":   "sync-svc",
		"feed":      h.Session.State(),
		"timestamp": time.Now().Format(time.RFC3339),
	}
	writeJSON(w, http.StatusOK, response)
}

type requestView struct {
	domain.ServiceRequest
	Actions lifecycle.Affordances `json:"actions"`
}

func (h *Handler) getRequests(w http.ResponseWriter, r *http.Request) {
	var filters []func(domain.ServiceRequest) bool
	q := r.URL.Query()
	if statuses := q["status"]; len(statuses) > 0 {
		wanted := make([]domain.RequestStatus, 0, len(statuses))
		for _, s := range statuses {
			status := domain.RequestStatus(s)
			if !status.Valid() {
				http.Error(w, "unknown status "+s, http.StatusBadRequest)
				return
			}
			wanted = append(wanted, status)
		}
		filters = append(filters, store.ByStatus(wanted...))
	}
	if table := q.Get("table"); table != "" {
		filters = append(filters, store.RequestsAtTable(table))
	}
	if owner := q.Get("owner"); owner != "" {
		filters = append(filters, store.ByOwner(owner))
	}

	actor := h.actor(r, "")
	requests := h.Session.Requests().List(filters...)
	views := make([]requestView, 0, len(requests))
	for _, req := range requests {
		views = append(views, requestView{ServiceRequest: req, Actions: lifecycle.AffordancesFor(req, actor)})
	}
	writeJSON(w, http.StatusOK, views)
}

func (h *Handler) performAction(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	var body struct {
		ActorID string `json:"actor_id"`
	}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "Invalid payload", http.StatusBadRequest)
			return
		}
	}

	err := h.Actions.Perform(r.Context(), lifecycle.Action(vars["action"]), vars["id"], h.actor(r, body.ActorID))
	if err != nil {
		writeActionError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func (h *Handler) getOrders(w http.ResponseWriter, r *http.Request) {
	var filters []func(domain.Order) bool
	q := r.URL.Query()
	if statuses := q["status"]; len(statuses) > 0 {
		wanted := make([]domain.OrderStatus, 0, len(statuses))
		for _, s := range statuses {
			wanted = append(wanted, domain.OrderStatus(s))
		}
		filters = append(filters, store.ByOrderStatus(wanted...))
	}
	if table := q.Get("table"); table != "" {
		filters = append(filters, store.OrdersAtTable(table))
	}
	writeJSON(w, http.StatusOK, h.Session.Orders().List(filters...))
}

func (h *Handler) updateOrderStatus(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Status            domain.OrderStatus `json:"status"`
		ActorID           string             `json:"actor_id"`
		ExpectedUpdatedAt *time.Time         `json:"expected_updated_at"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "Invalid payload", http.StatusBadRequest)
		return
	}

	err := h.Actions.UpdateOrderStatus(r.Context(), mux.Vars(r)["id"], body.ExpectedUpdatedAt, body.Status, h.actor(r, body.ActorID))
	if err != nil {
		writeActionError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func (h *Handler) getConnection(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"location_id": h.Session.LocationID(),
		"state":       h.Session.State(),
	})
}

func (h *Handler) switchLocation(w http.ResponseWriter, r *http.Request) {
	var body struct {
		LocationID string `json:"location_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.LocationID == "" {
		http.Error(w, "location_id is required", http.StatusBadRequest)
		return
	}
	if err := h.Session.SwitchLocation(body.LocationID); err != nil {
		if errors.Is(err, service.ErrNotRunning) {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"location_id": body.LocationID})
}

func (h *Handler) getStaff(w http.ResponseWriter, r *http.Request) {
	online, err := h.Session.Online(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"location_id": h.Session.LocationID(),
		"online":      online,
	})
}

func (h *Handler) getTableQRCode(w http.ResponseWriter, r *http.Request) {
	locationID := r.URL.Query().Get("location")
	if locationID == "" {
		locationID = h.Session.LocationID()
	}
	if locationID == "" {
		http.Error(w, "no location", http.StatusBadRequest)
		return
	}
	png, err := h.QR.Generate(locationID, mux.Vars(r)["tableId"])
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Write(png)
}

// actor resolves who is acting: explicit body field, then header, then the
// session's own staff id.
func (h *Handler) actor(r *http.Request, explicit string) string {
	if explicit != "" {
		return explicit
	}
	if id := r.Header.Get("X-Staff-Id"); id != "" {
		return id
	}
	if id := r.URL.Query().Get("actor_id"); id != "" {
		return id
	}
	return h.Session.StaffID()
}

func writeActionError(w http.ResponseWriter, err error) {
	var rejection *gateway.Rejection
	if errors.As(err, &rejection) {
		writeJSON(w, http.StatusConflict, map[string]string{
			"error":          err.Error(),
			"current_status": rejection.Status,
			"owner":          rejection.Owner,
		})
		return
	}
	switch gateway.Classify(err) {
	case gateway.OutcomeNotFound:
		http.Error(w, err.Error(), http.StatusNotFound)
	case gateway.OutcomeUnknown:
		http.Error(w, err.Error(), http.StatusGatewayTimeout)
	case gateway.OutcomeInvalid:
		http.Error(w, err.Error(), http.StatusBadRequest)
	case gateway.OutcomeConflict:
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
