package handler

import (
	"net/http"

	"github.com/boddenberg/repartos-bfa-go/internal/domain"
	"github.com/boddenberg/repartos-bfa-go/internal/service"

	"go.uber.org/zap"
)

// ============================================================
// Autenticacion
// ============================================================

func authLoginHandler(authSvc *service.AuthService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/auth/login")
		defer span.End()

		var req domain.LoginRequest
		if err := decodeBody(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		resp, err := authSvc.Login(ctx, &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, resp)
	}
}

// authLogoutHandler stops the session's poller before dropping its state,
// so no cycle writes into a cleared store.
func authLogoutHandler(authSvc *service.AuthService, dashSvc *service.DashboardService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/auth/logout")
		defer span.End()

		sess := SessionFromContext(ctx)
		dashSvc.Unwatch(sess.ID)

		if err := authSvc.Logout(ctx, sess.ID); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, domain.SuccessResponse{Message: "sesion cerrada", ID: sess.ID})
	}
}

func meHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess := SessionFromContext(r.Context())
		writeJSON(w, http.StatusOK, domain.NewUserView(sess.Identity))
	}
}
