package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/boddenberg/repartos-bfa-go/internal/domain"
	"github.com/boddenberg/repartos-bfa-go/internal/infra/cache"
	"github.com/boddenberg/repartos-bfa-go/internal/infra/kvstore"
	"github.com/boddenberg/repartos-bfa-go/internal/infra/observability"
	"github.com/boddenberg/repartos-bfa-go/internal/port"
	"github.com/boddenberg/repartos-bfa-go/internal/service"
	"github.com/boddenberg/repartos-bfa-go/internal/session"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// --- Mocks ---

// mockBackend serves canned data per outlet id ("" is the token-scoped
// outlet of fixed roles).
type mockBackend struct {
	mu sync.Mutex

	orders      map[string][]domain.Order
	ordersErr   map[string]error
	summaries   map[string]*domain.Summary
	summaryErr  map[string]error
	couriers    map[string][]domain.Courier
	statuses    map[string][]string
	statusesErr map[string]error
	outlets     []domain.Outlet
	outletsErr  error
	updateErr   error
	assignErr   error

	outletCalls   int
	courierCalls  int
	orderCalls    []string
	updates       []domain.StatusUpdate
	assignments   []domain.CourierAssignment
	commandScopes []string

	// gate, when set, holds ListOrders until it is closed. entered is
	// closed when the first held call arrives.
	gate        chan struct{}
	entered     chan struct{}
	enteredOnce sync.Once
}

func newMockBackend() *mockBackend {
	return &mockBackend{
		orders:      map[string][]domain.Order{},
		ordersErr:   map[string]error{},
		summaries:   map[string]*domain.Summary{},
		summaryErr:  map[string]error{},
		couriers:    map[string][]domain.Courier{},
		statuses:    map[string][]string{},
		statusesErr: map[string]error{},
	}
}

func (m *mockBackend) hold() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gate = make(chan struct{})
	m.entered = make(chan struct{})
	m.enteredOnce = sync.Once{}
}

func (m *mockBackend) release() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.gate != nil {
		close(m.gate)
		m.gate = nil
	}
}

func (m *mockBackend) ListOutlets(_ context.Context, _ *domain.Identity) ([]domain.Outlet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outletCalls++
	return m.outlets, m.outletsErr
}

func (m *mockBackend) ListOrders(_ context.Context, _ *domain.Identity, outletID string, _ domain.MonthFilter) ([]domain.Order, error) {
	m.mu.Lock()
	gate, entered := m.gate, m.entered
	m.orderCalls = append(m.orderCalls, outletID)
	m.mu.Unlock()

	if gate != nil {
		m.enteredOnce.Do(func() { close(entered) })
		<-gate
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.ordersErr[outletID]; err != nil {
		return nil, err
	}
	return append([]domain.Order(nil), m.orders[outletID]...), nil
}

func (m *mockBackend) GetSummary(_ context.Context, _ *domain.Identity, outletID string, _ domain.MonthFilter) (*domain.Summary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.summaryErr[outletID]; err != nil {
		return nil, err
	}
	if s, ok := m.summaries[outletID]; ok {
		return s, nil
	}
	return &domain.Summary{}, nil
}

func (m *mockBackend) ListCouriers(_ context.Context, _ *domain.Identity, outletID string) ([]domain.Courier, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.courierCalls++
	return m.couriers[outletID], nil
}

func (m *mockBackend) ListStatuses(_ context.Context, _ *domain.Identity, outletID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.statusesErr[outletID]; err != nil {
		return nil, err
	}
	return m.statuses[outletID], nil
}

func (m *mockBackend) UpdateStatus(_ context.Context, _ *domain.Identity, outletID, _ string, update domain.StatusUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.commandScopes = append(m.commandScopes, outletID)
	if m.updateErr != nil {
		return m.updateErr
	}
	m.updates = append(m.updates, update)
	return nil
}

func (m *mockBackend) AssignCourier(_ context.Context, _ *domain.Identity, outletID, _ string, assignment domain.CourierAssignment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.commandScopes = append(m.commandScopes, outletID)
	if m.assignErr != nil {
		return m.assignErr
	}
	m.assignments = append(m.assignments, assignment)
	return nil
}

func (m *mockBackend) orderCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.orderCalls)
}

type mockAuthenticator struct {
	identity *domain.Identity
	err      error
}

func (m *mockAuthenticator) Login(_ context.Context, _ *domain.LoginRequest) (*domain.Identity, error) {
	if m.err != nil {
		return nil, m.err
	}
	cp := *m.identity
	return &cp, nil
}

type recordingAlerter struct {
	mu     sync.Mutex
	alerts []*domain.Alert
}

func (r *recordingAlerter) Alert(a *domain.Alert) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, a)
}

func (r *recordingAlerter) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.alerts)
}

// --- Fixtures ---

var (
	superadmin  = &domain.Identity{Token: "tok", Role: domain.RoleSuperadmin, Name: "Root"}
	adminL1     = &domain.Identity{Token: "tok", Role: domain.RoleAdmin, Outlet: &domain.OutletRef{ID: "L1"}}
	courierL1   = &domain.Identity{Token: "tok", Role: domain.RoleCourier, Outlet: &domain.OutletRef{ID: "L1"}}
	courierFree = &domain.Identity{Token: "tok", Role: domain.RoleCourier}

	errBoom = errors.New("connection refused")
	baseAt  = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
)

// order builds an order whose date grows with minute.
func order(id string, minute int, status string) domain.Order {
	return domain.Order{
		ID:           id,
		Date:         domain.Timestamp{Time: baseAt.Add(time.Duration(minute) * time.Minute)},
		CustomerName: "Cliente " + id,
		Total:        decimal.NewFromInt(10),
		Status:       status,
	}
}

type harness struct {
	backend *mockBackend
	kv      port.KVStore
	store   *session.Store
	ledger  *session.Ledger
	alerter *recordingAlerter
	metrics *observability.Metrics
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	kv := kvstore.NewMemory()
	return &harness{
		backend: newMockBackend(),
		kv:      kv,
		store:   session.NewStore(kv, zap.NewNop()),
		ledger:  session.NewLedger(kv, 300, zap.NewNop()),
		alerter: &recordingAlerter{},
		metrics: observability.NewMetrics(),
	}
}

func (h *harness) engine(t *testing.T, id *domain.Identity) *service.Engine {
	t.Helper()
	c := cache.New[[]domain.Outlet](time.Minute)
	t.Cleanup(c.Close)
	return service.NewEngine(context.Background(), id, "2024-03", service.EngineDeps{
		Reader:         h.backend,
		Commander:      h.backend,
		Outlets:        service.NewCachedOutlets(h.backend, c, h.metrics),
		Store:          h.store,
		Ledger:         h.ledger,
		Alerter:        h.alerter,
		Metrics:        h.metrics,
		Logger:         zap.NewNop(),
		MaxConcurrency: 4,
		Clock:          func() time.Time { return baseAt },
	})
}
