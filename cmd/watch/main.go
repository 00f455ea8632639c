// Command watch follows the delivery dashboard from a terminal. It keeps its
// session in a local preferences file, rings the terminal bell on new orders
// and prints the open orders after every poll.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/boddenberg/repartos-bfa-go/internal/config"
	"github.com/boddenberg/repartos-bfa-go/internal/domain"
	"github.com/boddenberg/repartos-bfa-go/internal/infra/alert"
	"github.com/boddenberg/repartos-bfa-go/internal/infra/cache"
	"github.com/boddenberg/repartos-bfa-go/internal/infra/client"
	"github.com/boddenberg/repartos-bfa-go/internal/infra/kvstore"
	"github.com/boddenberg/repartos-bfa-go/internal/infra/observability"
	"github.com/boddenberg/repartos-bfa-go/internal/infra/resilience"
	"github.com/boddenberg/repartos-bfa-go/internal/port"
	"github.com/boddenberg/repartos-bfa-go/internal/service"

	"go.uber.org/zap"
)

// lastSessionKey remembers the session between runs.
const lastSessionKey = "watch:session"

func main() {
	_ = config.LoadDotEnv(".env")
	cfg := config.Load()

	email := flag.String("email", os.Getenv("WATCH_EMAIL"), "staff email")
	password := flag.String("password", os.Getenv("WATCH_PASSWORD"), "staff password")
	month := flag.String("month", "", "month filter, YYYY-MM (default: current month)")
	outlet := flag.String("outlet", "", "outlet id or "+domain.AllOutlets+" (selector roles only)")
	logout := flag.Bool("logout", false, "forget the stored session and exit")
	kvFile := flag.String("kv-file", cfg.KVFile, "preferences file")
	flag.Parse()

	logger := observability.NewLogger(cfg.LogLevel)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	kv, err := kvstore.NewFile(*kvFile, logger)
	if err != nil {
		logger.Fatal("failed to open preferences file", zap.Error(err))
	}

	cb := resilience.NewCircuitBreaker("delivery-backend", func(err error) bool {
		return err == nil || client.IsClientError(err)
	}, logger)
	backend := client.NewBackendClient(&http.Client{Timeout: cfg.HTTPTimeout}, cfg.BackendURL, cb, resilience.Config{
		MaxRetries:     cfg.MaxRetries,
		InitialBackoff: cfg.InitialBackoff,
		MaxConcurrency: cfg.MaxConcurrency,
	})
	authSvc := service.NewAuthService(backend, kv, cfg.JWTSecret, cfg.SessionTTL, logger)

	if *logout {
		if id, err := kv.Get(ctx, lastSessionKey); err == nil {
			_ = authSvc.Logout(ctx, id)
		}
		_ = kv.Delete(ctx, lastSessionKey)
		fmt.Println("sesion cerrada")
		return
	}

	sess, err := restoreOrLogin(ctx, authSvc, kv, *email, *password)
	if err != nil {
		logger.Fatal("login failed", zap.Error(err))
	}

	metrics := observability.NewMetrics()
	outletCache := cache.New[[]domain.Outlet](cfg.CacheTTL)
	defer outletCache.Close()

	dashSvc := service.NewDashboardService(
		backend,
		service.NewCachedOutlets(backend, outletCache, metrics),
		alert.NewBell(os.Stdout, logger),
		service.DashboardConfig{
			PollInterval:   cfg.PollInterval,
			SeenLimit:      cfg.SeenLimit,
			MaxConcurrency: cfg.MaxConcurrency,
		},
		metrics,
		logger,
	)
	defer dashSvc.Close()

	if *outlet != "" {
		if _, err := dashSvc.Select(ctx, sess, domain.ScopeSelection(*outlet)); err != nil {
			logger.Fatal("cannot select outlet", zap.Error(err))
		}
	}

	snap, err := dashSvc.Watch(ctx, sess, *month)
	if err != nil {
		logger.Fatal("cannot start dashboard", zap.Error(err))
	}
	render(os.Stdout, snap)

	ticker := time.NewTicker(cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if a := dashSvc.TakeAlert(ctx, sess); a != nil {
			fmt.Fprintf(os.Stdout, "\n*** Nuevo pedido #%s  %s  %s  %s ***\n", a.DisplayNumber, a.CustomerName, a.Address, a.Total.StringFixed(2))
		}
		snap, err := dashSvc.Snapshot(ctx, sess, domain.TabOpen)
		if err != nil {
			logger.Warn("snapshot failed", zap.Error(err))
			continue
		}
		render(os.Stdout, snap)
	}
}

// restoreOrLogin reuses the stored session while its identity is still
// valid, and logs in otherwise.
func restoreOrLogin(ctx context.Context, authSvc *service.AuthService, kv port.KVStore, email, password string) (*service.Session, error) {
	if id, err := kv.Get(ctx, lastSessionKey); err == nil {
		sess, err := authSvc.Session(ctx, id)
		if err == nil {
			return sess, nil
		}
		var forbidden *domain.ErrForbidden
		if errors.As(err, &forbidden) {
			_ = authSvc.Logout(ctx, id)
			return nil, err
		}
	}

	if email == "" || password == "" {
		return nil, errors.New("no stored session: pass -email and -password")
	}
	resp, err := authSvc.Login(ctx, &domain.LoginRequest{Email: email, Password: password})
	if err != nil {
		return nil, err
	}
	if err := kv.Set(ctx, lastSessionKey, resp.SessionID); err != nil {
		return nil, fmt.Errorf("store session: %w", err)
	}
	return authSvc.Session(ctx, resp.SessionID)
}

func render(w io.Writer, snap *domain.Snapshot) {
	fmt.Fprintf(w, "\n%s  mes %s  %s  pedidos %d  entregados %d\n",
		snap.RefreshedAt.Format("15:04:05"),
		snap.Month,
		snap.Scope.String(),
		snap.Summary.TotalThisMonth,
		snap.Summary.TotalDeliveredThisMonth,
	)
	if snap.Error != "" {
		fmt.Fprintf(w, "! %s\n", snap.Error)
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NUMERO\tLOCAL\tCLIENTE\tDIRECCION\tESTADO\tTOTAL")
	for _, o := range snap.Orders {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			o.DisplayNumber, o.OutletName, o.CustomerName, o.Address, o.StatusLabel, o.Total.StringFixed(2))
	}
	tw.Flush()
}
