package domain

import "encoding/json"

type EntityType string

const (
	EntityRequest EntityType = "request"
	EntityOrder   EntityType = "order"
)

type Op string

const (
	OpInsert Op = "insert"
	OpUpdate Op = "update"
	OpDelete Op = "delete"

	// OpHeartbeat is transport-level liveness; it carries no entity.
	OpHeartbeat Op = "heartbeat"
)

// ChangeEvent is one mutation notification from the per-location feed. Payload
// stays raw until the reconciler interprets it. A Truncated event only carries
// the entity's id; the full row has to be read from the backend.
type ChangeEvent struct {
	EntityType EntityType      `json:"entity_type"`
	Op         Op              `json:"op"`
	LocationID string          `json:"location_id"`
	Payload    json.RawMessage `json:"payload"`
	Truncated  bool            `json:"truncated,omitempty"`
}

// Snapshot is a point-in-time read of the active entities of one location.
type Snapshot struct {
	LocationID string
	Requests   []ServiceRequest
	Orders     []Order
}
