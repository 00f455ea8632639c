package handler

import (
	"net/http"
	"time"

	"github.com/boddenberg/repartos-bfa-go/internal/domain"
	"github.com/boddenberg/repartos-bfa-go/internal/infra/observability"
	"github.com/boddenberg/repartos-bfa-go/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("handler")

// NewRouter creates the HTTP router with all routes and middleware.
// Routes follow the API contract of the delivery dashboard view.
func NewRouter(authSvc *service.AuthService, dashSvc *service.DashboardService, metrics *observability.Metrics, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	// --- Middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(observability.ZapLoggerMiddleware(logger))
	r.Use(observability.TracingMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/ping"))

	// --- Operational endpoints ---
	r.Get("/healthz", healthzHandler(dashSvc))
	r.Get("/readyz", readyzHandler())
	r.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	// --- API v1 ---
	r.Route("/v1", func(r chi.Router) {

		// =============================================
		// 1. Autenticacion
		// POST /v1/auth/login
		// =============================================
		r.Post("/auth/login", authLoginHandler(authSvc, logger))

		r.Group(func(r chi.Router) {
			r.Use(SessionAuthMiddleware(authSvc, logger))

			// =============================================
			// 2. Sesion
			// POST /v1/auth/logout
			// GET  /v1/auth/me
			// =============================================
			r.Post("/auth/logout", authLogoutHandler(authSvc, dashSvc, logger))
			r.Get("/auth/me", meHandler())

			// =============================================
			// 3. Locales
			// GET /v1/outlets
			// =============================================
			r.Get("/outlets", outletsHandler(dashSvc, logger))

			// =============================================
			// 4. Panel de repartos
			// =============================================
			r.Route("/dashboard", func(r chi.Router) {
				r.Get("/", snapshotHandler(dashSvc, logger))
				r.Post("/watch", watchHandler(dashSvc, logger))
				r.Delete("/watch", unwatchHandler(dashSvc))
				r.Post("/refresh", refreshHandler(dashSvc, logger))
				r.Put("/month", monthHandler(dashSvc, logger))
				r.Put("/scope", scopeHandler(dashSvc, logger))
				r.Put("/note", noteHandler(dashSvc))
				r.Get("/alert", alertHandler(dashSvc))

				// =============================================
				// 5. Pedidos
				// =============================================
				r.Get("/orders/{orderId}", orderDetailHandler(dashSvc, logger))
				r.Patch("/orders/{orderId}/status", orderStatusHandler(dashSvc, logger))
				r.Patch("/orders/{orderId}/courier", orderCourierHandler(dashSvc, logger))
			})
		})

		// =============================================
		// 6. Metricas
		// GET /v1/metrics/dashboard
		// =============================================
		r.Get("/metrics/dashboard", dashboardMetricsHandler(metrics))
	})

	return r
}

// ============================================================
// Operational
// ============================================================

func healthzHandler(dashSvc *service.DashboardService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		now := time.Now().Format(time.RFC3339)

		services := []domain.ServiceHealth{
			{Name: "repartos-bfa", Status: "healthy", LatencyMs: 0, LastChecked: now},
		}

		// Pollers are per session; none running is not a failure.
		if dashSvc != nil {
			status := "idle"
			if dashSvc.Watching() > 0 {
				status = "healthy"
			}
			services = append(services, domain.ServiceHealth{Name: "pollers", Status: status, LastChecked: now})
		}

		writeJSON(w, http.StatusOK, domain.HealthStatus{
			Status:   "healthy",
			Services: services,
		})
	}
}

func readyzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

func dashboardMetricsHandler(metrics *observability.Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, metrics.GetDashboardSnapshot())
	}
}
