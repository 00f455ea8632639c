package domain_test

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/boddenberg/repartos-bfa-go/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMonth(t *testing.T) {
	m := domain.ParseMonth("2024-03")
	assert.True(t, m.Valid())
	assert.Equal(t, "anio=2024&mes=3", m.Values().Encode())

	bad := domain.ParseMonth("2024-xx")
	assert.False(t, bad.Valid())
	assert.True(t, math.IsNaN(bad.Month))
	assert.Equal(t, "anio=2024&mes=NaN", bad.Values().Encode())

	assert.Equal(t, "NaN-NaN", domain.ParseMonth("").String())
}

func TestStatusOptions(t *testing.T) {
	assert.Equal(t, domain.CanonicalStatuses, domain.StatusOptions(nil))
	assert.Equal(t, domain.CanonicalStatuses, domain.StatusOptions([]string{"inventado"}))

	opts := domain.StatusOptions([]string{"ENTREGADO", "cancelado", "otro"})
	require.Len(t, opts, 2)
	assert.Equal(t, domain.StatusDelivered, opts[0].Value)
	assert.Equal(t, domain.StatusCancelled, opts[1].Value)
}

func TestStatusLabel(t *testing.T) {
	assert.Equal(t, "Pedido entregado", domain.StatusLabel("Entregado"))
	assert.Equal(t, "listo", domain.StatusLabel("listo"))
	assert.Equal(t, "pendiente", domain.StatusLabel(""))
}

func TestOrder_AddressFallback(t *testing.T) {
	o := domain.Order{LineItems: []domain.LineItem{
		{Observation: "sin cebolla"},
		{Observation: "Delivery: Calle 5 #10 | tocar timbre"},
	}}
	assert.Equal(t, "Calle 5 #10", o.Address())

	o.DeliveryAddress = "  Av. Principal  "
	assert.Equal(t, "Av. Principal", o.Address())

	assert.Equal(t, "-", (&domain.Order{}).Address())
}

func TestOrder_DisplayNumber(t *testing.T) {
	assert.Equal(t, "42", (&domain.Order{ID: "abcdef123456", Number: "42"}).DisplayNumber())
	assert.Equal(t, "123456", (&domain.Order{ID: "abcdef123456"}).DisplayNumber())
}

func TestOutletRef_DecodesStringOrObject(t *testing.T) {
	var id domain.Identity
	require.NoError(t, json.Unmarshal([]byte(`{"token":"t","rol":"admin","local":"L1"}`), &id))
	assert.Equal(t, "L1", id.OutletID())

	require.NoError(t, json.Unmarshal([]byte(`{"token":"t","rol":"admin","local":{"_id":"L2","nombre":"Norte"}}`), &id))
	assert.Equal(t, "L2", id.OutletID())
	assert.Equal(t, "Norte", id.Outlet.Name)
}

func TestIdentityPredicates(t *testing.T) {
	tests := []struct {
		name     string
		id       *domain.Identity
		selector bool
		admin    bool
		header   bool
	}{
		{"superadmin", &domain.Identity{Role: domain.RoleSuperadmin}, true, true, true},
		{"admin", &domain.Identity{Role: domain.RoleAdmin, Outlet: &domain.OutletRef{ID: "L1"}}, false, true, false},
		{"courier with outlet", &domain.Identity{Role: domain.RoleCourier, Outlet: &domain.OutletRef{ID: "L1"}}, false, false, true},
		{"courier without outlet", &domain.Identity{Role: domain.RoleCourier}, true, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.selector, tt.id.RequiresSelector())
			assert.Equal(t, tt.admin, tt.id.IsAdminTier())
			assert.Equal(t, tt.header, tt.id.SendsOutletHeader())
		})
	}
	assert.False(t, domain.Role("cliente").Allowed())
}

func TestTimestamp_Lenient(t *testing.T) {
	var o domain.Order
	require.NoError(t, json.Unmarshal([]byte(`{"_id":"x","fecha":"not a date"}`), &o))
	assert.True(t, o.Date.IsZero())

	require.NoError(t, json.Unmarshal([]byte(`{"_id":"x","fecha":"2024-03-05T10:00:00.000Z"}`), &o))
	assert.Equal(t, 2024, o.Date.Year())
}

func TestSortFilterGroup(t *testing.T) {
	at := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	orders := []domain.Order{
		{ID: "old", Date: domain.Timestamp{Time: at}, OutletID: "B", OutletName: "Norte"},
		{ID: "done", Date: domain.Timestamp{Time: at.Add(time.Hour)}, Status: "entregado"},
		{ID: "new", Date: domain.Timestamp{Time: at.Add(2 * time.Hour)}, OutletID: "A", OutletName: "Centro"},
		{ID: "nodate"},
	}

	open := domain.FilterTab(orders, domain.TabOpen)
	domain.SortByDateDesc(open)
	ids := make([]string, len(open))
	for i, o := range open {
		ids[i] = o.ID
	}
	assert.Equal(t, []string{"new", "old", "nodate"}, ids)
	assert.Len(t, domain.FilterTab(orders, domain.TabClosed), 1)

	views := make([]domain.OrderView, len(open))
	for i, o := range open {
		views[i] = domain.NewOrderView(o)
	}
	groups := domain.GroupByOutlet(views)
	require.Len(t, groups, 3)
	assert.Equal(t, "Centro", groups[0].OutletName)
	assert.Equal(t, "Local", groups[1].OutletName)
	assert.Equal(t, "sin_local", groups[1].OutletID)
	assert.Equal(t, "Norte", groups[2].OutletName)
}

func TestParseTab(t *testing.T) {
	assert.Equal(t, domain.TabClosed, domain.ParseTab("cerrados"))
	assert.Equal(t, domain.TabOpen, domain.ParseTab("whatever"))
}
