package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/boddenberg/repartos-bfa-go/internal/domain"
	"github.com/boddenberg/repartos-bfa-go/internal/infra/cache"
	"github.com/boddenberg/repartos-bfa-go/internal/infra/kvstore"
	"github.com/boddenberg/repartos-bfa-go/internal/infra/observability"
	"github.com/boddenberg/repartos-bfa-go/internal/service"
	"github.com/boddenberg/repartos-bfa-go/internal/session"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newDashboard(t *testing.T, backend *mockBackend) *service.DashboardService {
	t.Helper()
	c := cache.New[[]domain.Outlet](time.Minute)
	metrics := observability.NewMetrics()
	svc := service.NewDashboardService(
		backend,
		service.NewCachedOutlets(backend, c, metrics),
		&recordingAlerter{},
		service.DashboardConfig{PollInterval: time.Hour, SeenLimit: 300, MaxConcurrency: 4},
		metrics,
		zap.NewNop(),
	)
	t.Cleanup(func() {
		svc.Close()
		c.Close()
	})
	return svc
}

func newSession(id string, identity *domain.Identity) *service.Session {
	kv := kvstore.WithNamespace(kvstore.NewMemory(), "session:"+id)
	return &service.Session{ID: id, Identity: identity, Store: session.NewStore(kv, zap.NewNop())}
}

func TestDashboard_WatchUnwatch(t *testing.T) {
	ctx := context.Background()
	backend := newMockBackend()
	backend.orders["L1"] = []domain.Order{order("o1", 1, "pendiente")}
	svc := newDashboard(t, backend)
	sess := newSession("s1", courierL1)

	snap, err := svc.Watch(ctx, sess, "2024-03")
	require.NoError(t, err)
	assert.Equal(t, "2024-03", snap.Month)
	assert.Len(t, snap.Orders, 1, "mounting runs the first cycle")
	assert.Equal(t, 1, svc.Watching())

	_, err = svc.Watch(ctx, sess, "")
	require.NoError(t, err)
	assert.Equal(t, 1, svc.Watching())
	assert.Equal(t, 1, backend.orderCallCount(), "remounting does not refetch")

	assert.True(t, svc.Unwatch("s1"))
	assert.False(t, svc.Unwatch("s1"))
	assert.Zero(t, svc.Watching())
}

func TestDashboard_MonthChangeRefetches(t *testing.T) {
	ctx := context.Background()
	backend := newMockBackend()
	svc := newDashboard(t, backend)
	sess := newSession("s1", courierL1)

	_, err := svc.Watch(ctx, sess, "2024-03")
	require.NoError(t, err)
	calls := backend.orderCallCount()

	snap, err := svc.SetMonth(ctx, sess, "2024-02")
	require.NoError(t, err)
	assert.Equal(t, "2024-02", snap.Month)
	assert.Equal(t, calls+1, backend.orderCallCount())

	_, err = svc.SetMonth(ctx, sess, "2024-02")
	require.NoError(t, err)
	assert.Equal(t, calls+1, backend.orderCallCount(), "unchanged month does not refetch")
}

func TestDashboard_SelectScope(t *testing.T) {
	ctx := context.Background()
	backend := newMockBackend()
	backend.outlets = outletsAB
	backend.orders["A"] = []domain.Order{order("a1", 1, "pendiente")}
	svc := newDashboard(t, backend)
	sess := newSession("s1", superadmin)

	snap, err := svc.Watch(ctx, sess, "")
	require.NoError(t, err)
	assert.True(t, snap.AllOutlets)
	assert.Len(t, snap.Outlets, 2)

	snap, err = svc.Select(ctx, sess, "A")
	require.NoError(t, err)
	assert.False(t, snap.AllOutlets)
	assert.Equal(t, domain.SingleOutlet("A"), snap.Scope)

	_, err = svc.Select(ctx, newSession("s2", courierL1), domain.AllOutlets)
	var forbidden *domain.ErrForbidden
	assert.ErrorAs(t, err, &forbidden)
}

func TestDashboard_Outlets(t *testing.T) {
	ctx := context.Background()
	backend := newMockBackend()
	backend.outlets = outletsAB
	svc := newDashboard(t, backend)

	own, err := svc.Outlets(ctx, newSession("s1", courierL1))
	require.NoError(t, err)
	assert.Equal(t, []domain.Outlet{{ID: "L1"}}, own)

	sess := newSession("s2", superadmin)
	for i := 0; i < 3; i++ {
		all, err := svc.Outlets(ctx, sess)
		require.NoError(t, err)
		assert.Equal(t, outletsAB, all)
	}
	assert.Equal(t, 1, backend.outletCalls, "outlets are cached")
}

func TestDashboard_AlertTakenOnce(t *testing.T) {
	ctx := context.Background()
	backend := newMockBackend()
	backend.orders["L1"] = []domain.Order{order("n1", 1, "pendiente")}
	svc := newDashboard(t, backend)
	sess := newSession("s1", courierL1)

	_, err := svc.Watch(ctx, sess, "")
	require.NoError(t, err)

	alert := svc.TakeAlert(ctx, sess)
	require.NotNil(t, alert)
	assert.Equal(t, "n1", alert.OrderID)
	assert.Nil(t, svc.TakeAlert(ctx, sess))
}
