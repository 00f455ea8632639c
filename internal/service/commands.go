package service

import (
	"context"
	"errors"
	"strings"

	"github.com/boddenberg/repartos-bfa-go/internal/domain"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ============================================================
// Commands: status change and courier assignment
// ============================================================

// ChangeStatus updates an order's courier status, then refreshes in the
// background. An empty note falls back to the drafted one, which is
// cleared once the update is accepted.
func (e *Engine) ChangeStatus(ctx context.Context, orderID, status, note string) error {
	ctx, span := engineTracer.Start(ctx, "Engine.ChangeStatus")
	defer span.End()
	span.SetAttributes(attribute.String("order.id", orderID))

	status = strings.TrimSpace(status)
	if status == "" {
		return &domain.ErrValidation{Field: "estado", Message: "estado requerido"}
	}
	outletID, err := e.commandOutlet(orderID)
	if err != nil {
		return err
	}
	if note == "" {
		note = e.Note()
	}

	update := domain.StatusUpdate{Status: status, Note: note}
	if err := e.commander.UpdateStatus(ctx, e.identity, outletID, orderID, update); err != nil {
		return e.commandFailed("status", orderID, domain.MsgStatusFailed, err)
	}
	e.metrics.IncrCommand("status", "ok")
	e.logger.Info("order status changed",
		zap.String("order_id", orderID),
		zap.String("status", status),
	)

	e.SetNote("")
	e.refreshAfterCommand(ctx)
	return nil
}

// AssignCourier assigns a courier to an order, or clears the assignment
// when courierID is nil or empty. Only admin-tier roles may assign.
func (e *Engine) AssignCourier(ctx context.Context, orderID string, courierID *string) error {
	ctx, span := engineTracer.Start(ctx, "Engine.AssignCourier")
	defer span.End()
	span.SetAttributes(attribute.String("order.id", orderID))

	if !e.identity.IsAdminTier() {
		return &domain.ErrForbidden{Action: domain.MsgAssignForbidden}
	}
	outletID, err := e.commandOutlet(orderID)
	if err != nil {
		return err
	}
	if courierID != nil && *courierID == "" {
		courierID = nil
	}

	assignment := domain.CourierAssignment{CourierID: courierID}
	if err := e.commander.AssignCourier(ctx, e.identity, outletID, orderID, assignment); err != nil {
		return e.commandFailed("courier", orderID, domain.MsgAssignFailed, err)
	}
	e.metrics.IncrCommand("courier", "ok")
	e.logger.Info("courier assignment changed",
		zap.String("order_id", orderID),
		zap.Bool("cleared", courierID == nil),
	)

	e.refreshAfterCommand(ctx)
	return nil
}

// commandOutlet resolves the outlet a command is scoped to from the loaded
// orders: the fan-out tag first, then the current single outlet.
func (e *Engine) commandOutlet(orderID string) (string, error) {
	order, ok := e.findOrder(orderID)
	if !ok {
		return "", &domain.ErrNotFound{Resource: "pedido", ID: orderID}
	}
	if order.OutletID != "" {
		return order.OutletID, nil
	}
	return e.currentScope().OutletID(), nil
}

func (e *Engine) commandFailed(command, orderID, fallback string, err error) error {
	e.metrics.IncrCommand(command, "error")
	e.metrics.IncrUpstreamError(command)
	e.logger.Warn("command failed",
		zap.String("command", command),
		zap.String("order_id", orderID),
		zap.Error(err),
	)

	msg := fallback
	var ext *domain.ErrExternalService
	if errors.As(err, &ext) {
		msg = ext.UserMessage(fallback)
	}
	return &domain.ErrCommand{Command: command, OrderID: orderID, Message: msg, Err: err}
}

func (e *Engine) refreshAfterCommand(ctx context.Context) {
	if err := e.Refresh(ctx, domain.Background); err != nil {
		e.logger.Debug("refresh after command", zap.Error(err))
	}
}
