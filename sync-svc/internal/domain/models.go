package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

type RequestType string

const (
	RequestCallStaff  RequestType = "call_staff"
	RequestBill       RequestType = "request_bill"
	RequestNeedHelp   RequestType = "need_help"
	RequestOrderReady RequestType = "order_ready"
	RequestCustom     RequestType = "custom"
)

func (t RequestType) Valid() bool {
	switch t {
	case RequestCallStaff, RequestBill, RequestNeedHelp, RequestOrderReady, RequestCustom:
		return true
	}
	return false
}

type RequestStatus string

const (
	StatusPending      RequestStatus = "pending"
	StatusAcknowledged RequestStatus = "acknowledged"
	StatusInProgress   RequestStatus = "in_progress"
	StatusCompleted    RequestStatus = "completed"
	StatusClosed       RequestStatus = "closed"
)

// Rank orders statuses along the request lifecycle. Unknown statuses rank -1.
func (s RequestStatus) Rank() int {
	switch s {
	case StatusPending:
		return 0
	case StatusAcknowledged:
		return 1
	case StatusInProgress:
		return 2
	case StatusCompleted:
		return 3
	case StatusClosed:
		return 4
	}
	return -1
}

func (s RequestStatus) Valid() bool { return s.Rank() >= 0 }

// Owned reports whether a request in this status must carry an acknowledging actor.
func (s RequestStatus) Owned() bool {
	return s == StatusAcknowledged || s == StatusInProgress || s == StatusCompleted
}

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

func (p Priority) Rank() int {
	switch p {
	case PriorityLow:
		return 0
	case PriorityNormal:
		return 1
	case PriorityHigh:
		return 2
	case PriorityUrgent:
		return 3
	}
	return -1
}

var (
	ErrMissingID       = errors.New("missing id")
	ErrMissingLocation = errors.New("missing location_id")
	ErrUnknownStatus   = errors.New("unknown status")
	ErrUnknownType     = errors.New("unknown request type")
	ErrUnknownPriority = errors.New("unknown priority")
	ErrOwnership       = errors.New("acknowledged_by inconsistent with status")
	ErrNotFound        = errors.New("not found")
)

type ServiceRequest struct {
	ID             string        `json:"id"`
	LocationID     string        `json:"location_id"`
	TableID        string        `json:"table_id"`
	TableNumber    int           `json:"table_number"`
	Type           RequestType   `json:"type"`
	Status         RequestStatus `json:"status"`
	Priority       Priority      `json:"priority"`
	Message        string        `json:"message,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
	AcknowledgedAt *time.Time    `json:"acknowledged_at,omitempty"`
	AcknowledgedBy string        `json:"acknowledged_by,omitempty"`
	CompletedAt    *time.Time    `json:"completed_at,omitempty"`
	CompletedBy    string        `json:"completed_by,omitempty"`
}

func (r ServiceRequest) Key() string { return r.ID }

func (r ServiceRequest) Equal(o ServiceRequest) bool {
	return r.ID == o.ID &&
		r.LocationID == o.LocationID &&
		r.TableID == o.TableID &&
		r.TableNumber == o.TableNumber &&
		r.Type == o.Type &&
		r.Status == o.Status &&
		r.Priority == o.Priority &&
		r.Message == o.Message &&
		r.CreatedAt.Equal(o.CreatedAt) &&
		timePtrEqual(r.AcknowledgedAt, o.AcknowledgedAt) &&
		r.AcknowledgedBy == o.AcknowledgedBy &&
		timePtrEqual(r.CompletedAt, o.CompletedAt) &&
		r.CompletedBy == o.CompletedBy
}

// Validate checks the structural invariants of a request. An empty priority is
// normalised to normal before validation.
func (r *ServiceRequest) Validate() error {
	if r.ID == "" {
		return ErrMissingID
	}
	if r.LocationID == "" {
		return ErrMissingLocation
	}
	if !r.Status.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownStatus, r.Status)
	}
	if !r.Type.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownType, r.Type)
	}
	if r.Priority == "" {
		r.Priority = PriorityNormal
	}
	if r.Priority.Rank() < 0 {
		return fmt.Errorf("%w: %q", ErrUnknownPriority, r.Priority)
	}
	if r.Status == StatusPending && r.AcknowledgedBy != "" {
		return fmt.Errorf("%w: pending request owned by %q", ErrOwnership, r.AcknowledgedBy)
	}
	if r.Status.Owned() && r.AcknowledgedBy == "" {
		return fmt.Errorf("%w: %s request without owner", ErrOwnership, r.Status)
	}
	return nil
}

// Active reports whether the request still needs staff attention.
func (r ServiceRequest) Active() bool {
	return r.Status == StatusPending || r.Status == StatusAcknowledged || r.Status == StatusInProgress
}

type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderPreparing OrderStatus = "preparing"
	OrderReady     OrderStatus = "ready"
	OrderServed    OrderStatus = "served"
	OrderCancelled OrderStatus = "cancelled"
)

func (s OrderStatus) Valid() bool {
	switch s {
	case OrderPending, OrderPreparing, OrderReady, OrderServed, OrderCancelled:
		return true
	}
	return false
}

// Terminal reports whether the order left the live set.
func (s OrderStatus) Terminal() bool {
	return s == OrderServed || s == OrderCancelled
}

type Order struct {
	ID           string          `json:"id"`
	OrderNumber  string          `json:"order_number"`
	LocationID   string          `json:"location_id"`
	TableID      string          `json:"table_id"`
	TableNumber  int             `json:"table_number"`
	Status       OrderStatus     `json:"status"`
	Items        json.RawMessage `json:"items,omitempty"`
	Subtotal     int64           `json:"subtotal"`
	Tax          int64           `json:"tax"`
	Total        int64           `json:"total"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
	Notes        string          `json:"notes,omitempty"`
	CustomerName string          `json:"customer_name,omitempty"`
}

func (o Order) Key() string { return o.ID }

func (o Order) Equal(x Order) bool {
	return o.ID == x.ID &&
		o.OrderNumber == x.OrderNumber &&
		o.LocationID == x.LocationID &&
		o.TableID == x.TableID &&
		o.TableNumber == x.TableNumber &&
		o.Status == x.Status &&
		bytes.Equal(o.Items, x.Items) &&
		o.Subtotal == x.Subtotal &&
		o.Tax == x.Tax &&
		o.Total == x.Total &&
		o.CreatedAt.Equal(x.CreatedAt) &&
		o.UpdatedAt.Equal(x.UpdatedAt) &&
		o.Notes == x.Notes &&
		o.CustomerName == x.CustomerName
}

func (o *Order) Validate() error {
	if o.ID == "" {
		return ErrMissingID
	}
	if o.LocationID == "" {
		return ErrMissingLocation
	}
	if o.Status == "" {
		return fmt.Errorf("%w: empty order status", ErrUnknownStatus)
	}
	if o.UpdatedAt.IsZero() {
		return errors.New("missing updated_at")
	}
	return nil
}

func timePtrEqual(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

// RequestStatusChange is a conditional write: it applies only while the stored
// status is one of From.
type RequestStatusChange struct {
	RequestID string
	From      []RequestStatus
	To        RequestStatus
	ActorID   string
}

// OrderStatusChange applies only while the stored updated_at equals
// ExpectedUpdatedAt. A nil ExpectedUpdatedAt writes unconditionally.
type OrderStatusChange struct {
	OrderID           string
	ExpectedUpdatedAt *time.Time
	To                OrderStatus
	ActorID           string
}
