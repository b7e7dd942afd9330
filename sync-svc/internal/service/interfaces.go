package service

import (
	"context"
	"time"

	"overcooked-staffsync/sync-svc/internal/domain"
	"overcooked-staffsync/sync-svc/internal/gateway"
)

//go:generate mockery --name=Backend --output=../mocks
//go:generate mockery --name=Presence --output=../mocks

type Backend interface {
	Snapshot(ctx context.Context, locationID string, historySince time.Time) (domain.Snapshot, error)
	GetRequest(ctx context.Context, id string) (domain.ServiceRequest, error)
	GetOrder(ctx context.Context, id string) (domain.Order, error)
	gateway.Backend
}

type Presence interface {
	Announce(ctx context.Context, locationID, sessionID, staffID string) error
	Leave(ctx context.Context, locationID, sessionID string) error
	Online(ctx context.Context, locationID string) ([]string, error)
}
