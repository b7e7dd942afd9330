// Package gateway sends staff actions to the durable backend. It never touches
// the local stores; results come back through the change feed.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"overcooked-staffsync/sync-svc/internal/domain"
	"overcooked-staffsync/sync-svc/internal/lifecycle"
	"overcooked-staffsync/sync-svc/internal/metrics"
)

var (
	ErrConflict       = errors.New("conflict")
	ErrNotFound       = domain.ErrNotFound
	ErrOutcomeUnknown = errors.New("outcome unknown, wait for the next feed event")
	ErrUnknownAction  = errors.New("unknown action")
	ErrStaleVersion   = errors.New("entity changed since it was read")
)

// Backend performs conditional writes. applied=false means the precondition
// failed and current holds the stored version.
type Backend interface {
	UpdateRequestStatus(ctx context.Context, c domain.RequestStatusChange) (current domain.ServiceRequest, applied bool, err error)
	UpdateOrderStatus(ctx context.Context, c domain.OrderStatusChange) (current domain.Order, applied bool, err error)
}

// Rejection is returned when the backend refused a change. It matches both
// ErrConflict and the underlying reason under errors.Is.
type Rejection struct {
	Action   string
	EntityID string
	Status   string
	Owner    string
	Reason   error
}

func (r *Rejection) Error() string {
	msg := fmt.Sprintf("%s %s rejected (status=%s", r.Action, r.EntityID, r.Status)
	if r.Owner != "" {
		msg += ", owner=" + r.Owner
	}
	msg += ")"
	if r.Reason != nil {
		msg += ": " + r.Reason.Error()
	}
	return msg
}

func (r *Rejection) Unwrap() []error {
	if r.Reason == nil {
		return []error{ErrConflict}
	}
	return []error{ErrConflict, r.Reason}
}

type Gateway struct {
	backend Backend
	timeout time.Duration
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func New(backend Backend, timeout time.Duration, logger *slog.Logger, m *metrics.Metrics) *Gateway {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{backend: backend, timeout: timeout, logger: logger, metrics: m}
}

func (g *Gateway) Acknowledge(ctx context.Context, requestID, actorID string) error {
	return g.Perform(ctx, lifecycle.ActionAcknowledge, requestID, actorID)
}

func (g *Gateway) Start(ctx context.Context, requestID, actorID string) error {
	return g.Perform(ctx, lifecycle.ActionStart, requestID, actorID)
}

func (g *Gateway) Complete(ctx context.Context, requestID, actorID string) error {
	return g.Perform(ctx, lifecycle.ActionComplete, requestID, actorID)
}

func (g *Gateway) Close(ctx context.Context, requestID, actorID string) error {
	return g.Perform(ctx, lifecycle.ActionClose, requestID, actorID)
}

// Perform runs action as one conditional update. Repeating an action that
// already took effect for the same actor succeeds.
func (g *Gateway) Perform(ctx context.Context, action lifecycle.Action, requestID, actorID string) (err error) {
	defer func() { g.metrics.Action(string(action), string(Classify(err))) }()

	target := action.Target()
	switch {
	case target == "":
		return fmt.Errorf("%w: %q", ErrUnknownAction, action)
	case requestID == "":
		return domain.ErrMissingID
	case actorID == "":
		return lifecycle.ErrMissingActor
	}

	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	current, applied, err := g.backend.UpdateRequestStatus(callCtx, domain.RequestStatusChange{
		RequestID: requestID,
		From:      lifecycle.Sources(target),
		To:        target,
		ActorID:   actorID,
	})
	if err != nil {
		return g.backendError(callCtx, string(action), requestID, err)
	}
	if applied {
		g.logger.Info("request transition applied",
			"action", action, "entity_id", requestID, "actor_id", actorID, "status", current.Status)
		return nil
	}

	decision, reason := lifecycle.Check(current, action, actorID)
	if reason == nil && decision == lifecycle.AlreadyDone {
		return nil
	}
	rejection := &Rejection{
		Action:   string(action),
		EntityID: requestID,
		Status:   string(current.Status),
		Owner:    current.AcknowledgedBy,
		Reason:   reason,
	}
	g.logger.Info("request transition rejected",
		"action", action, "entity_id", requestID, "actor_id", actorID,
		"status", current.Status, "owner", current.AcknowledgedBy, "reason", reason)
	return rejection
}

// UpdateOrderStatus moves an order to status if it still carries
// expectedUpdatedAt. A nil expectedUpdatedAt overwrites unconditionally.
func (g *Gateway) UpdateOrderStatus(ctx context.Context, orderID string, expectedUpdatedAt *time.Time, status domain.OrderStatus, actorID string) (err error) {
	const action = "update_order_status"
	defer func() { g.metrics.Action(action, string(Classify(err))) }()

	switch {
	case orderID == "":
		return domain.ErrMissingID
	case actorID == "":
		return lifecycle.ErrMissingActor
	case !status.Valid():
		return fmt.Errorf("%w: %q", domain.ErrUnknownStatus, status)
	}

	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	current, applied, err := g.backend.UpdateOrderStatus(callCtx, domain.OrderStatusChange{
		OrderID:           orderID,
		ExpectedUpdatedAt: expectedUpdatedAt,
		To:                status,
		ActorID:           actorID,
	})
	if err != nil {
		return g.backendError(callCtx, action, orderID, err)
	}
	if applied || current.Status == status {
		return nil
	}
	return &Rejection{Action: action, EntityID: orderID, Status: string(current.Status), Reason: ErrStaleVersion}
}

func (g *Gateway) backendError(ctx context.Context, action, id string, err error) error {
	if errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("%s %s: %w", action, id, ErrNotFound)
	}
	if ctx.Err() != nil || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		g.logger.Warn("backend call outcome unknown", "action", action, "entity_id", id, "error", err)
		return fmt.Errorf("%s %s: %w: %v", action, id, ErrOutcomeUnknown, err)
	}
	return fmt.Errorf("%s %s: %w", action, id, err)
}

type Outcome string

const (
	OutcomeOK       Outcome = "ok"
	OutcomeConflict Outcome = "conflict"
	OutcomeNotFound Outcome = "not_found"
	OutcomeUnknown  Outcome = "unknown"
	OutcomeInvalid  Outcome = "invalid"
	OutcomeFailed   Outcome = "failed"
)

// Classify buckets a gateway error for callers that render or count results.
func Classify(err error) Outcome {
	switch {
	case err == nil:
		return OutcomeOK
	case errors.Is(err, ErrConflict):
		return OutcomeConflict
	case errors.Is(err, ErrNotFound):
		return OutcomeNotFound
	case errors.Is(err, ErrOutcomeUnknown):
		return OutcomeUnknown
	case errors.Is(err, lifecycle.ErrMissingActor),
		errors.Is(err, domain.ErrMissingID),
		errors.Is(err, domain.ErrUnknownStatus),
		errors.Is(err, ErrUnknownAction):
		return OutcomeInvalid
	}
	return OutcomeFailed
}
