package store

import "overcooked-staffsync/sync-svc/internal/domain"

type (
	RequestStore = Store[domain.ServiceRequest]
	OrderStore   = Store[domain.Order]
)

// NewRequestStore orders requests by priority (urgent first), then oldest first.
func NewRequestStore() *RequestStore {
	return New(func(a, b domain.ServiceRequest) bool {
		if a.Priority.Rank() != b.Priority.Rank() {
			return a.Priority.Rank() > b.Priority.Rank()
		}
		return a.CreatedAt.Before(b.CreatedAt)
	})
}

func NewOrderStore() *OrderStore {
	return New(func(a, b domain.Order) bool {
		return a.CreatedAt.Before(b.CreatedAt)
	})
}

func ByStatus(statuses ...domain.RequestStatus) func(domain.ServiceRequest) bool {
	return func(r domain.ServiceRequest) bool {
		for _, s := range statuses {
			if r.Status == s {
				return true
			}
		}
		return false
	}
}

func ByOwner(actorID string) func(domain.ServiceRequest) bool {
	return func(r domain.ServiceRequest) bool { return r.AcknowledgedBy == actorID }
}

func RequestsAtTable(tableID string) func(domain.ServiceRequest) bool {
	return func(r domain.ServiceRequest) bool { return r.TableID == tableID }
}

func ByOrderStatus(statuses ...domain.OrderStatus) func(domain.Order) bool {
	return func(o domain.Order) bool {
		for _, s := range statuses {
			if o.Status == s {
				return true
			}
		}
		return false
	}
}

func OrdersAtTable(tableID string) func(domain.Order) bool {
	return func(o domain.Order) bool { return o.TableID == tableID }
}
