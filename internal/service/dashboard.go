package service

import (
	"context"
	"sync"
	"time"

	"github.com/boddenberg/repartos-bfa-go/internal/domain"
	"github.com/boddenberg/repartos-bfa-go/internal/infra/cache"
	"github.com/boddenberg/repartos-bfa-go/internal/infra/observability"
	"github.com/boddenberg/repartos-bfa-go/internal/port"
	"github.com/boddenberg/repartos-bfa-go/internal/session"

	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var dashTracer = otel.Tracer("service/dashboard")

// DeliveryAPI is what the dashboard needs from the backend.
type DeliveryAPI interface {
	port.OutletLister
	port.DeliveryReader
	port.DeliveryCommander
}

// DashboardConfig tunes the per-session engines.
type DashboardConfig struct {
	PollInterval   time.Duration
	SeenLimit      int
	MaxConcurrency int
}

type watch struct {
	engine *Engine
	poller *Poller
}

// DashboardService owns one Engine and one Poller per watched session.
// Mounting a dashboard starts polling; unmounting (or logout) stops it.
type DashboardService struct {
	backend DeliveryAPI
	outlets *CachedOutlets
	alerter port.Alerter
	cfg     DashboardConfig
	metrics *observability.Metrics
	logger  *zap.Logger

	mu      sync.Mutex
	watches map[string]*watch
}

// NewDashboardService creates the dashboard service.
func NewDashboardService(
	backend DeliveryAPI,
	outlets *CachedOutlets,
	alerter port.Alerter,
	cfg DashboardConfig,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *DashboardService {
	return &DashboardService{
		backend: backend,
		outlets: outlets,
		alerter: alerter,
		cfg:     cfg,
		metrics: metrics,
		logger:  logger,
		watches: make(map[string]*watch),
	}
}

// ============================================================
// Mount / unmount
// ============================================================

// Watch mounts the dashboard of a session: it creates the engine, runs the
// first foreground cycle and starts polling. Watching an already mounted
// session only applies the month (when given).
func (s *DashboardService) Watch(ctx context.Context, sess *Session, month string) (*domain.Snapshot, error) {
	ctx, span := dashTracer.Start(ctx, "DashboardService.Watch")
	defer span.End()

	e := s.ensure(ctx, sess, month)
	if month != "" && e.SetMonth(month) {
		s.restart(ctx, sess.ID)
	}
	return e.Snapshot(domain.TabOpen), nil
}

// Unwatch stops polling for a session. It reports whether it was mounted.
func (s *DashboardService) Unwatch(sessionID string) bool {
	s.mu.Lock()
	w, ok := s.watches[sessionID]
	delete(s.watches, sessionID)
	n := len(s.watches)
	s.mu.Unlock()

	if !ok {
		return false
	}
	w.poller.Stop()
	s.metrics.SetWatchers(n)
	s.logger.Info("dashboard unmounted", zap.String("session_id", sessionID))
	return true
}

// Close stops every poller.
func (s *DashboardService) Close() {
	s.mu.Lock()
	watches := s.watches
	s.watches = make(map[string]*watch)
	s.mu.Unlock()

	for _, w := range watches {
		w.poller.Stop()
	}
	s.metrics.SetWatchers(0)
}

// Watching returns the number of mounted dashboards.
func (s *DashboardService) Watching() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.watches)
}

// ensure returns the session's engine, mounting it on first use.
func (s *DashboardService) ensure(ctx context.Context, sess *Session, month string) *Engine {
	s.mu.Lock()
	if w, ok := s.watches[sess.ID]; ok {
		s.mu.Unlock()
		return w.engine
	}

	logger := s.logger.With(zap.String("session_id", sess.ID))
	e := NewEngine(ctx, sess.Identity, month, EngineDeps{
		Reader:         s.backend,
		Commander:      s.backend,
		Outlets:        s.outlets,
		Store:          sess.Store,
		Ledger:         session.NewLedger(sess.Store.KV(), s.cfg.SeenLimit, logger),
		Alerter:        s.alerter,
		Metrics:        s.metrics,
		Logger:         logger,
		MaxConcurrency: s.cfg.MaxConcurrency,
	})
	p := NewPoller(e, s.cfg.PollInterval, logger)
	s.watches[sess.ID] = &watch{engine: e, poller: p}
	n := len(s.watches)
	s.mu.Unlock()

	s.metrics.SetWatchers(n)
	logger.Info("dashboard mounted", zap.String("month", e.Month()))
	if err := p.Start(ctx); err != nil {
		logger.Debug("first refresh", zap.Error(err))
	}
	return e
}

// restart replaces a session's poller so the new scope or month is fetched
// right away and the interval starts over.
func (s *DashboardService) restart(ctx context.Context, sessionID string) {
	s.mu.Lock()
	w, ok := s.watches[sessionID]
	if !ok {
		s.mu.Unlock()
		return
	}
	old := w.poller
	w.poller = NewPoller(w.engine, s.cfg.PollInterval, s.logger.With(zap.String("session_id", sessionID)))
	next := w.poller
	s.mu.Unlock()

	old.Stop()
	if err := next.Start(ctx); err != nil {
		s.logger.Debug("refresh after scope change", zap.String("session_id", sessionID), zap.Error(err))
	}
}

// ============================================================
// Dashboard operations
// ============================================================

// Snapshot returns the dashboard for a tab.
func (s *DashboardService) Snapshot(ctx context.Context, sess *Session, tab domain.Tab) (*domain.Snapshot, error) {
	return s.ensure(ctx, sess, "").Snapshot(tab), nil
}

// Refresh runs a manual cycle. Its failure is part of the snapshot.
func (s *DashboardService) Refresh(ctx context.Context, sess *Session, mode domain.RefreshMode, tab domain.Tab) (*domain.Snapshot, error) {
	ctx, span := dashTracer.Start(ctx, "DashboardService.Refresh")
	defer span.End()

	e := s.ensure(ctx, sess, "")
	if err := e.Refresh(ctx, mode); err != nil {
		s.logger.Debug("manual refresh", zap.String("session_id", sess.ID), zap.Error(err))
	}
	return e.Snapshot(tab), nil
}

// SetMonth changes the month filter and refetches.
func (s *DashboardService) SetMonth(ctx context.Context, sess *Session, month string) (*domain.Snapshot, error) {
	e := s.ensure(ctx, sess, month)
	if e.SetMonth(month) {
		s.restart(ctx, sess.ID)
	}
	return e.Snapshot(domain.TabOpen), nil
}

// Select changes the outlet selection and refetches.
func (s *DashboardService) Select(ctx context.Context, sess *Session, sel domain.ScopeSelection) (*domain.Snapshot, error) {
	e := s.ensure(ctx, sess, "")
	changed, err := e.Select(ctx, sel)
	if err != nil {
		return nil, err
	}
	if changed {
		s.restart(ctx, sess.ID)
	}
	return e.Snapshot(domain.TabOpen), nil
}

// TakeAlert pops the pending new-order alert (nil when none).
func (s *DashboardService) TakeAlert(ctx context.Context, sess *Session) *domain.Alert {
	return s.ensure(ctx, sess, "").TakeAlert()
}

// OpenOrder returns an order's detail, refetching when it moved the scope.
func (s *DashboardService) OpenOrder(ctx context.Context, sess *Session, orderID string) (*domain.OrderDetail, error) {
	detail, err := s.ensure(ctx, sess, "").OpenOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if detail.ScopeChanged {
		s.restart(ctx, sess.ID)
	}
	return detail, nil
}

// ChangeStatus updates an order's status.
func (s *DashboardService) ChangeStatus(ctx context.Context, sess *Session, orderID string, update domain.StatusUpdate) error {
	return s.ensure(ctx, sess, "").ChangeStatus(ctx, orderID, update.Status, update.Note)
}

// AssignCourier assigns or clears an order's courier.
func (s *DashboardService) AssignCourier(ctx context.Context, sess *Session, orderID string, assignment domain.CourierAssignment) error {
	return s.ensure(ctx, sess, "").AssignCourier(ctx, orderID, assignment.CourierID)
}

// SetNote drafts the note of the next status change.
func (s *DashboardService) SetNote(ctx context.Context, sess *Session, note string) {
	s.ensure(ctx, sess, "").SetNote(note)
}

// Outlets lists the outlets a session may pick from. Fixed-outlet roles
// only see their own outlet.
func (s *DashboardService) Outlets(ctx context.Context, sess *Session) ([]domain.Outlet, error) {
	id := sess.Identity
	if !id.RequiresSelector() {
		if id.Outlet == nil {
			return []domain.Outlet{}, nil
		}
		return []domain.Outlet{{ID: id.Outlet.ID, Name: id.Outlet.Name}}, nil
	}
	return s.outlets.Outlets(ctx, id)
}

// ============================================================
// Outlet reference data
// ============================================================

// CachedOutlets serves the outlet list from a TTL cache.
type CachedOutlets struct {
	lister  port.OutletLister
	cache   *cache.InMemory[[]domain.Outlet]
	metrics *observability.Metrics
}

// NewCachedOutlets wraps an outlet lister with a cache.
func NewCachedOutlets(lister port.OutletLister, c *cache.InMemory[[]domain.Outlet], metrics *observability.Metrics) *CachedOutlets {
	return &CachedOutlets{lister: lister, cache: c, metrics: metrics}
}

// Outlets returns the outlet list visible to the identity's role.
func (c *CachedOutlets) Outlets(ctx context.Context, id *domain.Identity) ([]domain.Outlet, error) {
	key := "outlets:" + string(id.Role)
	outlets, hit, err := c.cache.GetOrLoad(ctx, key, func(ctx context.Context) ([]domain.Outlet, error) {
		return c.lister.ListOutlets(ctx, id)
	})
	if err != nil {
		c.metrics.IncrUpstreamError("outlets")
		return nil, err
	}
	if hit {
		c.metrics.IncrCacheHit("outlets")
	} else {
		c.metrics.IncrCacheMiss("outlets")
	}
	return outlets, nil
}
