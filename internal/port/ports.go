// Package port defines the interfaces (ports) for external dependencies.
// Following hexagonal architecture, these ports decouple the domain/service
// layer from concrete implementations.
package port

import (
	"context"
	"errors"

	"github.com/boddenberg/repartos-bfa-go/internal/domain"
)

// Authenticator logs staff in against the delivery backend.
type Authenticator interface {
	Login(ctx context.Context, req *domain.LoginRequest) (*domain.Identity, error)
}

// OutletLister lists every outlet known to the backend.
type OutletLister interface {
	ListOutlets(ctx context.Context, id *domain.Identity) ([]domain.Outlet, error)
}

// DeliveryReader performs the four scoped reads of a refresh cycle. An empty
// outletID means "scoped by the token" and sends no x-local-id header.
type DeliveryReader interface {
	ListOrders(ctx context.Context, id *domain.Identity, outletID string, month domain.MonthFilter) ([]domain.Order, error)
	GetSummary(ctx context.Context, id *domain.Identity, outletID string, month domain.MonthFilter) (*domain.Summary, error)
	ListCouriers(ctx context.Context, id *domain.Identity, outletID string) ([]domain.Courier, error)
	ListStatuses(ctx context.Context, id *domain.Identity, outletID string) ([]string, error)
}

// DeliveryCommander issues the scoped order mutations.
type DeliveryCommander interface {
	UpdateStatus(ctx context.Context, id *domain.Identity, outletID, orderID string, update domain.StatusUpdate) error
	AssignCourier(ctx context.Context, id *domain.Identity, outletID, orderID string, assignment domain.CourierAssignment) error
}

// DeliveryBackend is the full upstream contract.
type DeliveryBackend interface {
	Authenticator
	OutletLister
	DeliveryReader
	DeliveryCommander
}

// ErrKeyNotFound is returned by KVStore.Get for absent keys.
var ErrKeyNotFound = errors.New("key not found")

// KVStore is the small persisted key-value store backing session
// preferences. Values are opaque strings (JSON documents in practice).
type KVStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, keys ...string) error
}

// Alerter emits the short new-order sound. Implementations never fail the
// caller; any platform error is their own to swallow.
type Alerter interface {
	Alert(order *domain.Alert)
}

// Cache provides generic caching with TTL.
type Cache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, value T)
	Delete(key string)
}
