package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/boddenberg/repartos-bfa-go/internal/domain"
	"github.com/boddenberg/repartos-bfa-go/internal/service"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ============================================================
// Dashboard
// ============================================================

type monthRequest struct {
	Month string `json:"month"`
}

type scopeRequest struct {
	OutletID string `json:"outletId"`
}

type noteRequest struct {
	Note string `json:"nota"`
}

func outletsHandler(dashSvc *service.DashboardService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/outlets")
		defer span.End()

		outlets, err := dashSvc.Outlets(ctx, SessionFromContext(ctx))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, outlets)
	}
}

func watchHandler(dashSvc *service.DashboardService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/dashboard/watch")
		defer span.End()

		// The body is optional; an empty one mounts on the current month.
		var req monthRequest
		if err := decodeBody(r, &req); err != nil && !errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		snap, err := dashSvc.Watch(ctx, SessionFromContext(ctx), req.Month)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, snap)
	}
}

func unwatchHandler(dashSvc *service.DashboardService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		dashSvc.Unwatch(SessionFromContext(r.Context()).ID)
		w.WriteHeader(http.StatusNoContent)
	}
}

func snapshotHandler(dashSvc *service.DashboardService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/dashboard")
		defer span.End()

		tab := domain.ParseTab(r.URL.Query().Get("tab"))
		span.SetAttributes(attribute.String("tab", string(tab)))

		snap, err := dashSvc.Snapshot(ctx, SessionFromContext(ctx), tab)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, snap)
	}
}

// refreshHandler always answers with the snapshot; a failed cycle shows up
// in its error banner.
func refreshHandler(dashSvc *service.DashboardService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/dashboard/refresh")
		defer span.End()

		mode := domain.Foreground
		if r.URL.Query().Get("mode") == domain.Background.String() {
			mode = domain.Background
		}
		tab := domain.ParseTab(r.URL.Query().Get("tab"))
		span.SetAttributes(attribute.String("mode", mode.String()))

		snap, err := dashSvc.Refresh(ctx, SessionFromContext(ctx), mode, tab)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, snap)
	}
}

func monthHandler(dashSvc *service.DashboardService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PUT /v1/dashboard/month")
		defer span.End()

		var req monthRequest
		if err := decodeBody(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.Month == "" {
			handleServiceError(w, &domain.ErrValidation{Field: "month", Message: "obligatorio"}, logger)
			return
		}

		snap, err := dashSvc.SetMonth(ctx, SessionFromContext(ctx), req.Month)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, snap)
	}
}

func scopeHandler(dashSvc *service.DashboardService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PUT /v1/dashboard/scope")
		defer span.End()

		var req scopeRequest
		if err := decodeBody(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		span.SetAttributes(attribute.String("outlet_id", req.OutletID))

		snap, err := dashSvc.Select(ctx, SessionFromContext(ctx), domain.ScopeSelection(req.OutletID))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, snap)
	}
}

func noteHandler(dashSvc *service.DashboardService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req noteRequest
		if err := decodeBody(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		dashSvc.SetNote(r.Context(), SessionFromContext(r.Context()), req.Note)
		w.WriteHeader(http.StatusNoContent)
	}
}

func alertHandler(dashSvc *service.DashboardService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		alert := dashSvc.TakeAlert(r.Context(), SessionFromContext(r.Context()))
		if alert == nil {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		writeJSON(w, http.StatusOK, alert)
	}
}

// ============================================================
// Pedidos
// ============================================================

func orderDetailHandler(dashSvc *service.DashboardService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/dashboard/orders/{orderId}")
		defer span.End()

		orderID := chi.URLParam(r, "orderId")
		span.SetAttributes(attribute.String("order_id", orderID))

		detail, err := dashSvc.OpenOrder(ctx, SessionFromContext(ctx), orderID)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, detail)
	}
}

func orderStatusHandler(dashSvc *service.DashboardService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PATCH /v1/dashboard/orders/{orderId}/status")
		defer span.End()

		orderID := chi.URLParam(r, "orderId")
		var req domain.StatusUpdate
		if err := decodeBody(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		span.SetAttributes(
			attribute.String("order_id", orderID),
			attribute.String("status", req.Status),
		)

		sess := SessionFromContext(ctx)
		if err := dashSvc.ChangeStatus(ctx, sess, orderID, req); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		snap, err := dashSvc.Snapshot(ctx, sess, domain.TabOpen)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, snap)
	}
}

func orderCourierHandler(dashSvc *service.DashboardService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PATCH /v1/dashboard/orders/{orderId}/courier")
		defer span.End()

		orderID := chi.URLParam(r, "orderId")
		var req domain.CourierAssignment
		if err := decodeBody(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		span.SetAttributes(attribute.String("order_id", orderID))

		sess := SessionFromContext(ctx)
		if err := dashSvc.AssignCourier(ctx, sess, orderID, req); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		snap, err := dashSvc.Snapshot(ctx, sess, domain.TabOpen)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, snap)
	}
}
