package integration_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/boddenberg/repartos-bfa-go/internal/domain"
	"github.com/boddenberg/repartos-bfa-go/internal/handler"
	"github.com/boddenberg/repartos-bfa-go/internal/infra/alert"
	"github.com/boddenberg/repartos-bfa-go/internal/infra/cache"
	"github.com/boddenberg/repartos-bfa-go/internal/infra/client"
	"github.com/boddenberg/repartos-bfa-go/internal/infra/kvstore"
	"github.com/boddenberg/repartos-bfa-go/internal/infra/observability"
	"github.com/boddenberg/repartos-bfa-go/internal/infra/resilience"
	"github.com/boddenberg/repartos-bfa-go/internal/service"

	"go.uber.org/zap"
)

// upstream is a fake delivery backend with two outlets. Outlet "B" fails
// its order listing.
type upstream struct {
	mu       sync.Mutex
	patches  []string
	outletOf []string
}

func (u *upstream) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"token":"up-token","rol":"superadmin","nombre":"Root","email":"root@x.com"}`)
	})
	mux.HandleFunc("GET /api/locales", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `[{"_id":"A","nombre":"Centro"},{"_id":"B","nombre":"Norte"}]`)
	})
	mux.HandleFunc("GET /api/ventasCliente/local/pedidos", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(client.HeaderOutletID) == "B" {
			w.WriteHeader(http.StatusInternalServerError)
			io.WriteString(w, `{"error":"db down"}`)
			return
		}
		io.WriteString(w, `[
			{"_id":"a1","numero_pedido":7,"fecha":"2024-03-05T10:00:00.000Z","total":"9900","estado_pedido":"Pendiente","cliente_nombre":"Lu"},
			{"_id":"a2","numero_pedido":8,"fecha":"2024-03-04T10:00:00.000Z","total":"5000","estado_pedido":"entregado"}
		]`)
	})
	mux.HandleFunc("GET /api/ventasCliente/local/repartos/resumen", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"totalHistorico":10,"totalMes":2,"totalMesEntregados":1}`)
	})
	mux.HandleFunc("GET /api/ventasCliente/local/repartidores", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `[{"_id":"c1","nombre":"Ana"}]`)
	})
	mux.HandleFunc("GET /api/ventasCliente/local/estados-repartidor", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"estados":["pendiente","en_camino","entregado"]}`)
	})
	mux.HandleFunc("PATCH /api/ventasCliente/local/pedidos/{id}/estado", func(w http.ResponseWriter, r *http.Request) {
		u.mu.Lock()
		u.patches = append(u.patches, r.PathValue("id"))
		u.outletOf = append(u.outletOf, r.Header.Get(client.HeaderOutletID))
		u.mu.Unlock()
		io.WriteString(w, `{"ok":true}`)
	})
	return mux
}

func newBFA(t *testing.T, up *upstream) http.Handler {
	t.Helper()
	backendServer := httptest.NewServer(up.handler())
	t.Cleanup(backendServer.Close)

	logger := zap.NewNop()
	metrics := observability.NewMetrics()
	cb := resilience.NewCircuitBreaker("test", func(err error) bool {
		return err == nil || client.IsClientError(err)
	}, logger)
	cfg := resilience.Config{MaxRetries: 0, InitialBackoff: 10 * time.Millisecond, MaxConcurrency: 10}
	backend := client.NewBackendClient(&http.Client{Timeout: 5 * time.Second}, backendServer.URL+"/api", cb, cfg)

	outletCache := cache.New[[]domain.Outlet](5 * time.Minute)
	authSvc := service.NewAuthService(backend, kvstore.NewMemory(), "integration-secret", time.Hour, logger)
	dashSvc := service.NewDashboardService(
		backend,
		service.NewCachedOutlets(backend, outletCache, metrics),
		alert.Feed{},
		service.DashboardConfig{PollInterval: time.Hour, SeenLimit: 300, MaxConcurrency: 4},
		metrics,
		logger,
	)
	t.Cleanup(func() {
		dashSvc.Close()
		outletCache.Close()
	})

	return handler.NewRouter(authSvc, dashSvc, metrics, logger)
}

func call(t *testing.T, router http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

// TestIntegration_FanOutFlow logs a superadmin in, lets the dashboard default
// to all outlets, and changes the status of an order of outlet A.
func TestIntegration_FanOutFlow(t *testing.T) {
	up := &upstream{}
	router := newBFA(t, up)

	rec := call(t, router, http.MethodPost, "/v1/auth/login", "", domain.LoginRequest{Email: "root@x.com", Password: "pw"})
	if rec.Code != http.StatusOK {
		t.Fatalf("login: expected 200, got %d. Body: %s", rec.Code, rec.Body.String())
	}
	var login domain.LoginResponse
	if err := json.NewDecoder(rec.Body).Decode(&login); err != nil {
		t.Fatalf("failed to decode login: %v", err)
	}
	if !login.User.RequiresSelector {
		t.Error("expected superadmin to require the outlet selector")
	}

	rec = call(t, router, http.MethodPost, "/v1/dashboard/watch", login.Token, map[string]string{"month": "2024-03"})
	if rec.Code != http.StatusOK {
		t.Fatalf("watch: expected 200, got %d. Body: %s", rec.Code, rec.Body.String())
	}
	var snap domain.Snapshot
	if err := json.NewDecoder(rec.Body).Decode(&snap); err != nil {
		t.Fatalf("failed to decode snapshot: %v", err)
	}

	if !snap.AllOutlets {
		t.Fatalf("expected all-outlets mode, got scope %s", snap.Scope)
	}
	if snap.Error != "" {
		t.Errorf("a single failed outlet must not surface an error, got %q", snap.Error)
	}
	if len(snap.Orders) != 1 || snap.Orders[0].ID != "a1" {
		t.Fatalf("expected only open order a1, got %+v", snap.Orders)
	}
	if snap.Orders[0].OutletName != "Centro" {
		t.Errorf("expected order tagged with outlet name, got %q", snap.Orders[0].OutletName)
	}
	if snap.Summary.TotalLifetime != 20 {
		t.Errorf("expected summaries of both outlets summed, got %d", snap.Summary.TotalLifetime)
	}
	if !snap.PendingAlert {
		t.Error("expected a pending new-order alert")
	}

	rec = call(t, router, http.MethodGet, "/v1/dashboard/alert", login.Token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("alert: expected 200, got %d", rec.Code)
	}
	var a domain.Alert
	json.NewDecoder(rec.Body).Decode(&a)
	if a.OrderID != "a1" || !a.PlaySound {
		t.Errorf("unexpected alert %+v", a)
	}

	rec = call(t, router, http.MethodPatch, "/v1/dashboard/orders/a1/status", login.Token, domain.StatusUpdate{Status: "en_camino", Note: "ya sale"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status: expected 200, got %d. Body: %s", rec.Code, rec.Body.String())
	}

	up.mu.Lock()
	defer up.mu.Unlock()
	if len(up.patches) != 1 || up.patches[0] != "a1" {
		t.Fatalf("expected one PATCH for a1, got %v", up.patches)
	}
	if up.outletOf[0] != "A" {
		t.Errorf("expected the command scoped to outlet A, got %q", up.outletOf[0])
	}
}

// TestIntegration_UnknownRoleRejected checks nothing is stored for a role
// outside the dashboard.
func TestIntegration_UnknownRoleRejected(t *testing.T) {
	backendServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"token":"t","rol":"cliente"}`)
	}))
	defer backendServer.Close()

	logger := zap.NewNop()
	cb := resilience.NewCircuitBreaker("test-role", nil, logger)
	backend := client.NewBackendClient(&http.Client{Timeout: 5 * time.Second}, backendServer.URL, cb, resilience.Config{})
	kv := kvstore.NewMemory()
	authSvc := service.NewAuthService(backend, kv, "secret", time.Hour, logger)
	router := handler.NewRouter(authSvc, nil, observability.NewMetrics(), logger)

	rec := call(t, router, http.MethodPost, "/v1/auth/login", "", domain.LoginRequest{Email: "c@x.com", Password: "pw"})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d. Body: %s", rec.Code, rec.Body.String())
	}
	if kv.Len() != 0 {
		t.Errorf("expected no session state, found %d keys", kv.Len())
	}
}
