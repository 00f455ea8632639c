package service_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/boddenberg/repartos-bfa-go/internal/domain"
	"github.com/boddenberg/repartos-bfa-go/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type countingRefresher struct {
	mu    sync.Mutex
	modes []domain.RefreshMode
	delay time.Duration
}

func (c *countingRefresher) Refresh(ctx context.Context, mode domain.RefreshMode) error {
	c.mu.Lock()
	c.modes = append(c.modes, mode)
	c.mu.Unlock()
	if c.delay > 0 && mode == domain.Background {
		select {
		case <-time.After(c.delay):
		case <-ctx.Done():
		}
	}
	return nil
}

func (c *countingRefresher) snapshot() []domain.RefreshMode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]domain.RefreshMode(nil), c.modes...)
}

func TestPoller_ForegroundFirstThenBackground(t *testing.T) {
	r := &countingRefresher{}
	p := service.NewPoller(r, time.Second, zap.NewNop())
	defer p.Stop()

	require.NoError(t, p.Start(context.Background()))
	assert.Equal(t, []domain.RefreshMode{domain.Foreground}, r.snapshot())

	require.Eventually(t, func() bool { return len(r.snapshot()) >= 2 }, 3*time.Second, 50*time.Millisecond)
	assert.Equal(t, domain.Background, r.snapshot()[1])
}

func TestPoller_StopIsIdempotentAndFinal(t *testing.T) {
	r := &countingRefresher{}
	p := service.NewPoller(r, time.Second, zap.NewNop())
	require.NoError(t, p.Start(context.Background()))

	p.Stop()
	p.Stop()
	n := len(r.snapshot())

	time.Sleep(1500 * time.Millisecond)
	assert.Equal(t, n, len(r.snapshot()), "no tick after Stop")
}

func TestPoller_StartAfterStopDoesNothing(t *testing.T) {
	r := &countingRefresher{}
	p := service.NewPoller(r, time.Second, zap.NewNop())
	p.Stop()

	require.NoError(t, p.Start(context.Background()))
	assert.Empty(t, r.snapshot())
}

func TestPoller_StopCancelsRunningCycle(t *testing.T) {
	r := &countingRefresher{delay: 10 * time.Second}
	p := service.NewPoller(r, time.Second, zap.NewNop())
	require.NoError(t, p.Start(context.Background()))
	require.Eventually(t, func() bool { return len(r.snapshot()) >= 2 }, 3*time.Second, 20*time.Millisecond)

	start := time.Now()
	p.Stop()
	assert.Less(t, time.Since(start), 5*time.Second)
}
