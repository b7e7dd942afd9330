// Package lifecycle holds the request state machine and the rules for
// accepting incoming entity versions.
package lifecycle

import (
	"errors"
	"fmt"

	"overcooked-staffsync/sync-svc/internal/domain"
)

var (
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrAlreadyClaimed    = errors.New("request already claimed by another staff member")
	ErrNotClaimed        = errors.New("request has not been acknowledged")
	ErrMissingActor      = errors.New("missing actor id")
)

var transitions = map[domain.RequestStatus][]domain.RequestStatus{
	domain.StatusPending:      {domain.StatusAcknowledged},
	domain.StatusAcknowledged: {domain.StatusInProgress, domain.StatusCompleted},
	domain.StatusInProgress:   {domain.StatusCompleted},
	domain.StatusCompleted:    {domain.StatusClosed},
}

func CanTransition(from, to domain.RequestStatus) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Sources lists the statuses from which to is directly reachable. The gateway
// sends them as the precondition of a conditional update.
func Sources(to domain.RequestStatus) []domain.RequestStatus {
	var out []domain.RequestStatus
	for _, from := range []domain.RequestStatus{
		domain.StatusPending, domain.StatusAcknowledged, domain.StatusInProgress, domain.StatusCompleted,
	} {
		if CanTransition(from, to) {
			out = append(out, from)
		}
	}
	return out
}

type Action string

const (
	ActionAcknowledge Action = "acknowledge"
	ActionStart       Action = "start"
	ActionComplete    Action = "complete"
	ActionClose       Action = "close"
)

func (a Action) Target() domain.RequestStatus {
	switch a {
	case ActionAcknowledge:
		return domain.StatusAcknowledged
	case ActionStart:
		return domain.StatusInProgress
	case ActionComplete:
		return domain.StatusCompleted
	case ActionClose:
		return domain.StatusClosed
	}
	return ""
}

type Decision int

const (
	// Apply means the transition must be sent to the backend.
	Apply Decision = iota
	// AlreadyDone means the request is already in the state this actor asked for.
	AlreadyDone
)

// TransitionError is the typed rejection for an action the policy refuses.
type TransitionError struct {
	Action    Action
	RequestID string
	Status    domain.RequestStatus
	Owner     string
	Err       error
}

func (e *TransitionError) Error() string {
	msg := fmt.Sprintf("%s %s: %v (status=%s", e.Action, e.RequestID, e.Err, e.Status)
	if e.Owner != "" {
		msg += ", owner=" + e.Owner
	}
	return msg + ")"
}

func (e *TransitionError) Unwrap() error { return e.Err }

// Check decides whether actorID may perform action on req as currently known.
func Check(req domain.ServiceRequest, action Action, actorID string) (Decision, error) {
	if actorID == "" {
		return Apply, ErrMissingActor
	}
	reject := func(err error) (Decision, error) {
		return Apply, &TransitionError{Action: action, RequestID: req.ID, Status: req.Status, Owner: req.AcknowledgedBy, Err: err}
	}

	switch action {
	case ActionAcknowledge:
		if req.AcknowledgedBy != "" {
			if req.AcknowledgedBy != actorID {
				return reject(ErrAlreadyClaimed)
			}
			return AlreadyDone, nil
		}
		if req.Status != domain.StatusPending {
			return reject(ErrInvalidTransition)
		}
		return Apply, nil

	case ActionStart:
		switch req.Status {
		case domain.StatusInProgress:
			return AlreadyDone, nil
		case domain.StatusPending:
			return reject(ErrNotClaimed)
		case domain.StatusAcknowledged:
			return Apply, nil
		}
		return reject(ErrInvalidTransition)

	case ActionComplete:
		switch req.Status {
		case domain.StatusCompleted:
			if req.CompletedBy == actorID {
				return AlreadyDone, nil
			}
			return reject(ErrInvalidTransition)
		case domain.StatusPending:
			return reject(ErrNotClaimed)
		case domain.StatusAcknowledged, domain.StatusInProgress:
			if req.AcknowledgedBy == "" {
				return reject(ErrNotClaimed)
			}
			return Apply, nil
		}
		return reject(ErrInvalidTransition)

	case ActionClose:
		switch req.Status {
		case domain.StatusClosed:
			return AlreadyDone, nil
		case domain.StatusCompleted:
			return Apply, nil
		}
		return reject(ErrInvalidTransition)
	}
	return reject(ErrInvalidTransition)
}

// Affordances tells a UI which actions to offer. It is advisory only; the
// backend remains the serialisation point.
type Affordances struct {
	Acknowledge bool `json:"acknowledge"`
	Start       bool `json:"start"`
	Complete    bool `json:"complete"`
	Close       bool `json:"close"`
}

func AffordancesFor(req domain.ServiceRequest, actorID string) Affordances {
	allowed := func(a Action) bool {
		d, err := Check(req, a, actorID)
		return err == nil && d == Apply
	}
	return Affordances{
		Acknowledge: allowed(ActionAcknowledge),
		Start:       allowed(ActionStart),
		Complete:    allowed(ActionComplete),
		Close:       allowed(ActionClose),
	}
}

var (
	ErrStaleStatus    = errors.New("incoming status precedes cached status")
	ErrOwnerOverwrite = errors.New("incoming version changes the request owner")
	ErrStaleOrder     = errors.New("incoming order is older than cached order")
)

// AcceptRequest decides whether incoming may replace cached. Status never moves
// backwards and an established owner is never replaced; closing is always
// accepted.
func AcceptRequest(cached, incoming domain.ServiceRequest) error {
	if incoming.Status == domain.StatusClosed {
		return nil
	}
	if incoming.Status.Rank() < cached.Status.Rank() {
		return ErrStaleStatus
	}
	if cached.AcknowledgedBy != "" && incoming.AcknowledgedBy != cached.AcknowledgedBy {
		return ErrOwnerOverwrite
	}
	return nil
}

// AcceptOrder applies last-writer-wins on updated_at. Equal timestamps are
// accepted so a same-instant correction still lands.
func AcceptOrder(cached, incoming domain.Order) error {
	if incoming.UpdatedAt.Before(cached.UpdatedAt) {
		return ErrStaleOrder
	}
	return nil
}
