package service

import (
	"context"
	"sync"
	"time"

	"github.com/boddenberg/repartos-bfa-go/internal/domain"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// DefaultPollInterval is the refresh period of a watched dashboard.
const DefaultPollInterval = 5 * time.Second

// Refresher runs one refresh cycle.
type Refresher interface {
	Refresh(ctx context.Context, mode domain.RefreshMode) error
}

// Poller drives a Refresher: one foreground cycle on start, then background
// cycles on a fixed interval until stopped. A tick that fires while the
// previous cycle is still running is skipped.
type Poller struct {
	target   Refresher
	interval time.Duration
	logger   *zap.Logger

	cron     *cron.Cron
	ctx      context.Context
	cancel   context.CancelFunc
	startMu  sync.Mutex
	started  bool
	stopOnce sync.Once
}

// NewPoller creates a stopped poller. Intervals below one second are
// rounded up to one second by the schedule.
func NewPoller(target Refresher, interval time.Duration, logger *zap.Logger) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	ctx, cancel := context.WithCancel(context.Background())
	cronLogger := cron.PrintfLogger(zap.NewStdLog(logger.Named("cron")))
	return &Poller{
		target:   target,
		interval: interval,
		logger:   logger,
		cron:     cron.New(cron.WithChain(cron.SkipIfStillRunning(cronLogger))),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start runs the immediate foreground cycle and schedules the interval.
// The first cycle's error is returned for the caller to report; the
// schedule starts regardless. Start is a no-op after the first call or
// after Stop.
func (p *Poller) Start(ctx context.Context) error {
	p.startMu.Lock()
	if p.started || p.ctx.Err() != nil {
		p.startMu.Unlock()
		return nil
	}
	p.started = true
	p.startMu.Unlock()

	err := p.target.Refresh(ctx, domain.Foreground)

	p.startMu.Lock()
	defer p.startMu.Unlock()
	if p.ctx.Err() != nil {
		return err
	}
	p.cron.Schedule(cron.Every(p.interval), cron.FuncJob(p.tick))
	p.cron.Start()
	p.logger.Debug("poller started", zap.Duration("interval", p.interval))
	return err
}

func (p *Poller) tick() {
	if p.ctx.Err() != nil {
		return
	}
	if err := p.target.Refresh(p.ctx, domain.Background); err != nil {
		p.logger.Debug("background refresh", zap.Error(err))
	}
}

// Stop cancels the schedule and waits for a running cycle to return. It is
// safe to call more than once.
func (p *Poller) Stop() {
	p.stopOnce.Do(func() {
		p.startMu.Lock()
		p.cancel()
		p.startMu.Unlock()
		<-p.cron.Stop().Done()
		p.logger.Debug("poller stopped")
	})
}
