package client

import (
	"context"
	"net/http"
	"net/url"

	"github.com/boddenberg/repartos-bfa-go/internal/domain"
)

// Login authenticates against POST /auth/login. The role check happens in
// the auth service, not here.
func (b *BackendClient) Login(ctx context.Context, req *domain.LoginRequest) (*domain.Identity, error) {
	var id domain.Identity
	err := b.do(ctx, call{
		name:   "login",
		method: http.MethodPost,
		path:   "/auth/login",
		body:   req,
	}, &id)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

// ListOutlets fetches GET /locales.
func (b *BackendClient) ListOutlets(ctx context.Context, id *domain.Identity) ([]domain.Outlet, error) {
	var outlets []domain.Outlet
	err := b.do(ctx, call{
		name:     "outlets",
		method:   http.MethodGet,
		path:     "/locales",
		identity: id,
		retry:    true,
	}, &outlets)
	return outlets, err
}

// ListOrders fetches the delivery orders of the month.
func (b *BackendClient) ListOrders(ctx context.Context, id *domain.Identity, outletID string, month domain.MonthFilter) ([]domain.Order, error) {
	q := month.Values()
	q.Set("solo_domicilio", "true")
	q.Set("tipo_pedido", "delivery")

	var orders []domain.Order
	err := b.do(ctx, call{
		name:     "orders",
		method:   http.MethodGet,
		path:     "/ventasCliente/local/pedidos",
		query:    q,
		identity: id,
		outletID: outletID,
		retry:    true,
	}, &orders)
	return orders, err
}

// GetSummary fetches the month counters.
func (b *BackendClient) GetSummary(ctx context.Context, id *domain.Identity, outletID string, month domain.MonthFilter) (*domain.Summary, error) {
	var s domain.Summary
	err := b.do(ctx, call{
		name:     "summary",
		method:   http.MethodGet,
		path:     "/ventasCliente/local/repartos/resumen",
		query:    month.Values(),
		identity: id,
		outletID: outletID,
		retry:    true,
	}, &s)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// ListCouriers fetches the couriers of an outlet.
func (b *BackendClient) ListCouriers(ctx context.Context, id *domain.Identity, outletID string) ([]domain.Courier, error) {
	var couriers []domain.Courier
	err := b.do(ctx, call{
		name:     "couriers",
		method:   http.MethodGet,
		path:     "/ventasCliente/local/repartidores",
		identity: id,
		outletID: outletID,
		retry:    true,
	}, &couriers)
	return couriers, err
}

type statusesResponse struct {
	Statuses []string `json:"estados"`
}

// ListStatuses fetches the status vocabulary configured for an outlet.
func (b *BackendClient) ListStatuses(ctx context.Context, id *domain.Identity, outletID string) ([]string, error) {
	var resp statusesResponse
	err := b.do(ctx, call{
		name:     "statuses",
		method:   http.MethodGet,
		path:     "/ventasCliente/local/estados-repartidor",
		identity: id,
		outletID: outletID,
		retry:    true,
	}, &resp)
	return resp.Statuses, err
}

// UpdateStatus issues PATCH /pedidos/:id/estado. Never retried.
func (b *BackendClient) UpdateStatus(ctx context.Context, id *domain.Identity, outletID, orderID string, update domain.StatusUpdate) error {
	return b.do(ctx, call{
		name:     "status",
		method:   http.MethodPatch,
		path:     "/ventasCliente/local/pedidos/" + url.PathEscape(orderID) + "/estado",
		body:     update,
		identity: id,
		outletID: outletID,
	}, nil)
}

// AssignCourier issues PATCH /pedidos/:id/repartidor. Never retried.
func (b *BackendClient) AssignCourier(ctx context.Context, id *domain.Identity, outletID, orderID string, assignment domain.CourierAssignment) error {
	return b.do(ctx, call{
		name:     "courier",
		method:   http.MethodPatch,
		path:     "/ventasCliente/local/pedidos/" + url.PathEscape(orderID) + "/repartidor",
		body:     assignment,
		identity: id,
		outletID: outletID,
	}, nil)
}
