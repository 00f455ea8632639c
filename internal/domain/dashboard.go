package domain

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// ============================================================
// Dashboard: what the view renders
// ============================================================

// Tab selects open or closed orders.
type Tab string

const (
	TabOpen   Tab = "abiertos"
	TabClosed Tab = "cerrados"
)

// ParseTab defaults to the open tab.
func ParseTab(s string) Tab {
	if Tab(s) == TabClosed {
		return TabClosed
	}
	return TabOpen
}

// RefreshMode distinguishes user-visible refreshes from silent ones.
type RefreshMode int

const (
	// Foreground refreshes toggle the loading indicator.
	Foreground RefreshMode = iota
	// Background refreshes (interval ticks, post-command) leave it alone.
	Background
)

func (m RefreshMode) String() string {
	if m == Foreground {
		return "foreground"
	}
	return "background"
}

// OrderView is an order decorated for display.
type OrderView struct {
	Order
	DisplayNumber string `json:"numero"`
	Address       string `json:"direccion"`
	StatusLabel   string `json:"estadoLabel"`
	StatusColor   string `json:"estadoColor"`
}

// NewOrderView decorates an order.
func NewOrderView(o Order) OrderView {
	return OrderView{
		Order:         o,
		DisplayNumber: o.DisplayNumber(),
		Address:       o.Address(),
		StatusLabel:   StatusLabel(o.Status),
		StatusColor:   StatusColor(o.Status),
	}
}

// OutletGroup is the orders of one outlet in all-outlets mode.
type OutletGroup struct {
	OutletID   string      `json:"localId"`
	OutletName string      `json:"localNombre"`
	Orders     []OrderView `json:"pedidos"`
}

// Alert is the one-shot new-order interstitial.
type Alert struct {
	OrderID       string          `json:"pedidoId"`
	DisplayNumber string          `json:"numero"`
	CustomerName  string          `json:"cliente"`
	CustomerPhone string          `json:"telefono"`
	Address       string          `json:"direccion"`
	Total         decimal.Decimal `json:"total"`
	StatusLabel   string          `json:"estado"`
	OutletID      string          `json:"localId,omitempty"`
	OutletName    string          `json:"localNombre,omitempty"`
	PlaySound     bool            `json:"sonido"`
	RaisedAt      time.Time       `json:"raisedAt"`
}

// NewAlert builds the interstitial for an order.
func NewAlert(o Order, at time.Time) *Alert {
	return &Alert{
		OrderID:       o.ID,
		DisplayNumber: o.DisplayNumber(),
		CustomerName:  o.CustomerName,
		CustomerPhone: o.CustomerPhone,
		Address:       o.Address(),
		Total:         o.Total,
		StatusLabel:   StatusLabel(o.Status),
		OutletID:      o.SourceOutletID(),
		OutletName:    o.OutletName,
		RaisedAt:      at,
	}
}

// Snapshot is the dashboard state returned to the view.
type Snapshot struct {
	User          *UserView      `json:"usuario"`
	Month         string         `json:"mes"`
	Selection     ScopeSelection `json:"localSeleccionado"`
	Scope         ScopeDecision  `json:"scope"`
	AllOutlets    bool           `json:"modoTodosLocales"`
	Outlets       []Outlet       `json:"locales,omitempty"`
	Tab           Tab            `json:"tab"`
	Orders        []OrderView    `json:"pedidos"`
	Groups        []OutletGroup  `json:"grupos,omitempty"`
	Summary       Summary        `json:"resumen"`
	Couriers      []Courier      `json:"repartidores"`
	StatusOptions []StatusOption `json:"estados"`
	Loading       bool           `json:"loading"`
	Error         string         `json:"error,omitempty"`
	PendingAlert  bool           `json:"alertaPendiente"`
	Note          string         `json:"nota,omitempty"`
	RefreshedAt   time.Time      `json:"refreshedAt"`
}

// OrderDetail is the detail view of one order. Tab is where the view
// should land; ScopeChanged reports that opening the order moved the
// outlet selection.
type OrderDetail struct {
	Order         OrderView      `json:"pedido"`
	Tab           Tab            `json:"tab"`
	ScopeChanged  bool           `json:"cambioLocal"`
	StatusOptions []StatusOption `json:"estados"`
	Couriers      []Courier      `json:"repartidores,omitempty"`
}

// SortByDateDesc sorts orders most recent first, keeping the relative
// order of equal dates.
func SortByDateDesc(orders []Order) {
	sort.SliceStable(orders, func(i, j int) bool {
		return orders[i].Date.After(orders[j].Date.Time)
	})
}

// FilterTab returns the orders belonging to a tab.
func FilterTab(orders []Order, tab Tab) []Order {
	out := make([]Order, 0, len(orders))
	for _, o := range orders {
		if o.IsOpen() == (tab == TabOpen) {
			out = append(out, o)
		}
	}
	return out
}

// GroupByOutlet groups orders by source outlet, groups sorted by name.
func GroupByOutlet(orders []OrderView) []OutletGroup {
	index := map[string]int{}
	var groups []OutletGroup
	for _, o := range orders {
		id := o.SourceOutletID()
		if id == "" {
			id = "sin_local"
		}
		name := o.OutletName
		if name == "" {
			name = "Local"
		}
		i, ok := index[id]
		if !ok {
			i = len(groups)
			index[id] = i
			groups = append(groups, OutletGroup{OutletID: id, OutletName: name})
		}
		groups[i].Orders = append(groups[i].Orders, o)
	}
	sort.SliceStable(groups, func(i, j int) bool {
		return groups[i].OutletName < groups[j].OutletName
	})
	return groups
}
