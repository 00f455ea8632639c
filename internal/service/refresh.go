package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/boddenberg/repartos-bfa-go/internal/domain"
	"github.com/boddenberg/repartos-bfa-go/internal/infra/observability"
	"github.com/boddenberg/repartos-bfa-go/internal/infra/resilience"
	"github.com/boddenberg/repartos-bfa-go/internal/port"
	"github.com/boddenberg/repartos-bfa-go/internal/session"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var engineTracer = otel.Tracer("service/refresh")

// OutletSource provides the outlet list shown to selector roles.
type OutletSource interface {
	Outlets(ctx context.Context, id *domain.Identity) ([]domain.Outlet, error)
}

// EngineDeps are the collaborators of an Engine.
type EngineDeps struct {
	Reader         port.DeliveryReader
	Commander      port.DeliveryCommander
	Outlets        OutletSource
	Store          *session.Store
	Ledger         *session.Ledger
	Alerter        port.Alerter
	Metrics        *observability.Metrics
	Logger         *zap.Logger
	MaxConcurrency int
	// Clock defaults to time.Now.
	Clock func() time.Time
}

type engineState struct {
	orders      []domain.Order
	summary     domain.Summary
	couriers    []domain.Courier
	statuses    []string
	outlets     []domain.Outlet
	decision    domain.ScopeDecision
	errMessage  string
	loading     int
	refreshedAt time.Time
}

// Engine is the Poll/Refresh Engine of one session. It is safe for
// concurrent use: the poller, manual refreshes and commands may overlap.
//
// Every scope or month change bumps a generation counter. A cycle that
// completes after such a change discards its results.
type Engine struct {
	identity  *domain.Identity
	reader    port.DeliveryReader
	commander port.DeliveryCommander
	outlets   OutletSource
	store     *session.Store
	ledger    *session.Ledger
	alerter   port.Alerter
	resolver  ScopeResolver
	bulkhead  *resilience.Bulkhead
	metrics   *observability.Metrics
	logger    *zap.Logger
	now       func() time.Time

	mu         sync.Mutex
	month      string
	selection  domain.ScopeSelection
	generation uint64
	state      engineState
	pending    *domain.Alert
	note       string
}

// NewEngine restores the persisted selection and ledger of a session and
// returns an engine for the given month ("" means the current month).
func NewEngine(ctx context.Context, identity *domain.Identity, month string, deps EngineDeps) *Engine {
	now := deps.Clock
	if now == nil {
		now = time.Now
	}
	if month == "" {
		month = domain.CurrentMonth(now())
	}
	deps.Ledger.Load(ctx)

	e := &Engine{
		identity:  identity,
		reader:    deps.Reader,
		commander: deps.Commander,
		outlets:   deps.Outlets,
		store:     deps.Store,
		ledger:    deps.Ledger,
		alerter:   deps.Alerter,
		bulkhead:  resilience.NewBulkhead(deps.MaxConcurrency),
		metrics:   deps.Metrics,
		logger:    deps.Logger.With(zap.String("role", string(identity.Role))),
		now:       now,
		month:     month,
		state:     engineState{decision: domain.Unresolved()},
	}
	if identity.RequiresSelector() {
		e.selection = deps.Store.Selection(ctx)
	}
	return e
}

// ============================================================
// Refresh cycle
// ============================================================

// Refresh runs one fetch cycle. Foreground cycles raise the loading flag
// while they run; background cycles leave it alone.
//
// The returned error is the cycle's user-visible failure (ErrScope, or the
// orders read failing everywhere). It is also recorded in the snapshot.
func (e *Engine) Refresh(ctx context.Context, mode domain.RefreshMode) error {
	ctx, span := engineTracer.Start(ctx, "Engine.Refresh")
	defer span.End()
	span.SetAttributes(attribute.String("mode", mode.String()))

	start := time.Now()
	defer func() {
		e.metrics.RecordRequestDuration("refresh", time.Since(start))
	}()

	e.mu.Lock()
	gen, month, sel := e.generation, e.month, e.selection
	if mode == domain.Foreground {
		e.state.loading++
	}
	e.mu.Unlock()
	if mode == domain.Foreground {
		defer func() {
			e.mu.Lock()
			e.state.loading--
			e.mu.Unlock()
		}()
	}

	outlets := e.loadOutlets(ctx)

	decision, effective, persist := e.resolver.Resolve(e.identity, outlets, sel)
	if persist {
		e.persistDefault(ctx, sel, effective)
	}
	span.SetAttributes(attribute.String("scope", decision.String()))

	if decision.Kind == domain.ScopeUnresolved {
		return e.applyUnresolved(gen, decision)
	}

	filter := domain.ParseMonth(month)
	var res cycleResult
	if decision.Kind == domain.ScopeSingle {
		res = mergeSingle(e.fetchBatch(ctx, domain.Outlet{ID: decision.OutletID()}, filter))
	} else {
		res = mergeAll(e.fanOut(ctx, decision.OutletIDs, outlets, filter))
	}

	if !e.apply(ctx, gen, decision, res) {
		return nil
	}
	if res.errMessage != "" {
		return fmt.Errorf("orders fetch: %w", res.err)
	}
	return nil
}

func (e *Engine) loadOutlets(ctx context.Context) []domain.Outlet {
	if !e.identity.RequiresSelector() || e.outlets == nil {
		return nil
	}
	outlets, err := e.outlets.Outlets(ctx, e.identity)
	if err != nil {
		e.logger.Warn("outlet list unavailable", zap.Error(err))
		e.mu.Lock()
		defer e.mu.Unlock()
		return e.state.outlets
	}
	e.mu.Lock()
	e.state.outlets = outlets
	e.mu.Unlock()
	return outlets
}

// persistDefault stores the all-outlets default unless the user picked
// something in the meantime.
func (e *Engine) persistDefault(ctx context.Context, previous, effective domain.ScopeSelection) {
	e.mu.Lock()
	if e.selection != previous {
		e.mu.Unlock()
		return
	}
	e.selection = effective
	e.mu.Unlock()

	if err := e.store.SetSelection(ctx, effective); err != nil {
		e.logger.Warn("persist default selection failed", zap.Error(err))
	}
	e.logger.Info("defaulted to all outlets")
}

func (e *Engine) fetchBatch(ctx context.Context, outlet domain.Outlet, month domain.MonthFilter) outletBatch {
	b := outletBatch{outlet: outlet}
	var g errgroup.Group

	g.Go(func() error {
		orders, err := e.reader.ListOrders(ctx, e.identity, outlet.ID, month)
		b.orders = settle(orders, e.observe("orders", outlet.ID, err))
		return nil
	})
	g.Go(func() error {
		summary, err := e.reader.GetSummary(ctx, e.identity, outlet.ID, month)
		b.summary = settle(summary, e.observe("summary", outlet.ID, err))
		return nil
	})
	if e.identity.IsAdminTier() {
		g.Go(func() error {
			couriers, err := e.reader.ListCouriers(ctx, e.identity, outlet.ID)
			b.couriers = settle(couriers, e.observe("couriers", outlet.ID, err))
			return nil
		})
	} else {
		b.couriers = settle([]domain.Courier{}, nil)
	}
	g.Go(func() error {
		statuses, err := e.reader.ListStatuses(ctx, e.identity, outlet.ID)
		b.statuses = settle(statuses, e.observe("statuses", outlet.ID, err))
		return nil
	})

	_ = g.Wait()
	return b
}

// fanOut fetches every outlet concurrently, bounded by the bulkhead.
func (e *Engine) fanOut(ctx context.Context, ids []string, outlets []domain.Outlet, month domain.MonthFilter) []outletBatch {
	byID := make(map[string]domain.Outlet, len(outlets))
	for _, o := range outlets {
		byID[o.ID] = o
	}

	batches := make([]outletBatch, len(ids))
	var g errgroup.Group
	for i, id := range ids {
		i := i
		outlet, ok := byID[id]
		if !ok {
			outlet = domain.Outlet{ID: id}
		}
		g.Go(func() error {
			if err := e.bulkhead.Acquire(ctx); err != nil {
				batches[i] = failedBatch(outlet, err)
				return nil
			}
			defer e.bulkhead.Release()
			batches[i] = e.fetchBatch(ctx, outlet, month)
			return nil
		})
	}
	_ = g.Wait()
	return batches
}

func (e *Engine) observe(call, outletID string, err error) error {
	if err != nil {
		e.metrics.IncrUpstreamError(call)
		e.logger.Warn("upstream read failed",
			zap.String("call", call),
			zap.String("outlet_id", outletID),
			zap.Error(err),
		)
	}
	return err
}

func (e *Engine) applyUnresolved(gen uint64, decision domain.ScopeDecision) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if gen != e.generation {
		e.metrics.IncrCycle("stale")
		return nil
	}
	e.state.orders = nil
	e.state.summary = domain.Summary{}
	e.state.decision = decision
	e.state.errMessage = domain.MsgSelectOutlet
	e.state.refreshedAt = e.now()
	e.metrics.IncrCycle("unresolved")
	return &domain.ErrScope{}
}

// apply stores a cycle's results and raises at most one new-order alert.
// It reports false when the cycle was stale and discarded.
func (e *Engine) apply(ctx context.Context, gen uint64, decision domain.ScopeDecision, res cycleResult) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if gen != e.generation {
		e.metrics.IncrCycle("stale")
		e.logger.Debug("discarding stale cycle",
			zap.Uint64("generation", gen),
			zap.Uint64("current", e.generation),
		)
		return false
	}

	e.state.orders = res.orders
	e.state.summary = res.summary
	e.state.couriers = res.couriers
	e.state.statuses = res.statuses
	e.state.decision = decision
	e.state.errMessage = res.errMessage
	e.state.refreshedAt = e.now()

	switch {
	case res.errMessage != "":
		e.metrics.IncrCycle("error")
	case res.partial:
		e.metrics.IncrCycle("partial")
	default:
		e.metrics.IncrCycle("ok")
	}

	candidate := newOrderCandidate(res.orders, e.ledger.HasSeen)
	if candidate == nil {
		return true
	}

	alert := domain.NewAlert(*candidate, e.now())
	e.alerter.Alert(alert)
	e.ledger.MarkSeen(ctx, candidate.ID)
	e.pending = alert
	e.metrics.IncrAlert()
	e.logger.Info("new order",
		zap.String("order_id", candidate.ID),
		zap.String("outlet_id", candidate.SourceOutletID()),
	)
	return true
}

// ============================================================
// Inputs: month, scope, note
// ============================================================

// Month returns the "YYYY-MM" filter value.
func (e *Engine) Month() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.month
}

// SetMonth changes the month filter. The value is not validated; an
// unparsable month reaches the backend as NaN. It reports whether the
// month changed.
func (e *Engine) SetMonth(month string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if month == e.month {
		return false
	}
	e.month = month
	e.generation++
	return true
}

// Select applies an explicit outlet choice and persists it. It reports
// whether the selection changed.
func (e *Engine) Select(ctx context.Context, sel domain.ScopeSelection) (bool, error) {
	e.mu.Lock()
	outlets, current := e.state.outlets, e.selection
	e.mu.Unlock()

	if err := e.resolver.Select(e.identity, outlets, sel); err != nil {
		return false, err
	}
	if sel == current {
		return false, nil
	}
	if err := e.store.SetSelection(ctx, sel); err != nil {
		e.logger.Warn("persist selection failed", zap.Error(err))
	}

	e.mu.Lock()
	e.selection = sel
	e.generation++
	e.mu.Unlock()

	e.logger.Info("outlet selection changed", zap.String("selection", string(sel)))
	return true, nil
}

// SetNote keeps the note drafted for the next status change.
func (e *Engine) SetNote(note string) {
	e.mu.Lock()
	e.note = note
	e.mu.Unlock()
}

// Note returns the drafted note.
func (e *Engine) Note() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.note
}

// ============================================================
// Reads
// ============================================================

// Snapshot renders the current state for a tab.
func (e *Engine) Snapshot(tab domain.Tab) *domain.Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	filtered := domain.FilterTab(e.state.orders, tab)
	domain.SortByDateDesc(filtered)
	views := make([]domain.OrderView, 0, len(filtered))
	for _, o := range filtered {
		views = append(views, domain.NewOrderView(o))
	}

	snap := &domain.Snapshot{
		User:          domain.NewUserView(e.identity),
		Month:         e.month,
		Selection:     e.selection,
		Scope:         e.state.decision,
		AllOutlets:    e.state.decision.Kind == domain.ScopeAll,
		Tab:           tab,
		Orders:        views,
		Summary:       e.state.summary,
		Couriers:      append([]domain.Courier{}, e.state.couriers...),
		StatusOptions: domain.StatusOptions(e.state.statuses),
		Loading:       e.state.loading > 0,
		Error:         e.state.errMessage,
		PendingAlert:  e.pending != nil,
		Note:          e.note,
		RefreshedAt:   e.state.refreshedAt,
	}
	if e.identity.RequiresSelector() {
		snap.Outlets = append([]domain.Outlet{}, e.state.outlets...)
	}
	if snap.AllOutlets {
		snap.Groups = domain.GroupByOutlet(views)
	}
	return snap
}

// TakeAlert returns the pending new-order alert once, or nil.
func (e *Engine) TakeAlert() *domain.Alert {
	e.mu.Lock()
	defer e.mu.Unlock()
	a := e.pending
	e.pending = nil
	return a
}

// Identity returns the identity the engine fetches for.
func (e *Engine) Identity() *domain.Identity {
	return e.identity
}

// OpenOrder returns an order's detail. For selector roles it also moves the
// selection to the order's outlet, so the detail is followed by a cycle
// scoped to that outlet.
func (e *Engine) OpenOrder(ctx context.Context, orderID string) (*domain.OrderDetail, error) {
	order, ok := e.findOrder(orderID)
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "pedido", ID: orderID}
	}

	changed := false
	if e.identity.RequiresSelector() {
		if target := order.SourceOutletID(); target != "" {
			var err error
			changed, err = e.Select(ctx, domain.ScopeSelection(target))
			if err != nil {
				return nil, err
			}
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return &domain.OrderDetail{
		Order:         domain.NewOrderView(order),
		Tab:           domain.TabOpen,
		ScopeChanged:  changed,
		StatusOptions: domain.StatusOptions(e.state.statuses),
		Couriers:      append([]domain.Courier{}, e.state.couriers...),
	}, nil
}

func (e *Engine) findOrder(orderID string) (domain.Order, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, o := range e.state.orders {
		if o.ID == orderID {
			return o, true
		}
	}
	return domain.Order{}, false
}

// currentScope returns the decision of the last applied cycle.
func (e *Engine) currentScope() domain.ScopeDecision {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.decision
}
