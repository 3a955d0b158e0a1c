package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/phamdoug22/happyslap-bot/internal/browser"
	"github.com/phamdoug22/happyslap-bot/internal/catalog"
	"github.com/phamdoug22/happyslap-bot/internal/clock"
	"github.com/phamdoug22/happyslap-bot/internal/config"
	"github.com/phamdoug22/happyslap-bot/internal/httpapi"
	"github.com/phamdoug22/happyslap-bot/internal/hub"
	"github.com/phamdoug22/happyslap-bot/internal/lobby"
	"github.com/phamdoug22/happyslap-bot/internal/logging"
	"github.com/phamdoug22/happyslap-bot/internal/realtime"
	"github.com/phamdoug22/happyslap-bot/internal/runner"
	"github.com/phamdoug22/happyslap-bot/internal/selector"
	"github.com/phamdoug22/happyslap-bot/internal/session"
	"github.com/phamdoug22/happyslap-bot/internal/site"
)

func main() {
	cfg, err := config.Load(".env")
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	log, err := logging.New(cfg.LogLevel, cfg.LogEncoding)
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("hostbot exited", zap.Error(err))
		_ = log.Sync()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, log *zap.Logger) (err error) {
	clk := clock.Real{}
	s := site.New(cfg.BaseURL)
	t := cfg.Timing

	pw, err := browser.Launch(browser.Options{
		Channel:  cfg.Browser.Channel,
		Headless: cfg.Browser.Headless,
		Args:     cfg.Browser.Args,
		Install:  cfg.Browser.Install,
	})
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, pw.Close()) }()

	sessions := session.NewManager(pw, session.Credentials{Identity: cfg.Email, Secret: cfg.Password}, s,
		session.Options{
			RefreshInterval: t.RefreshInterval,
			LoginTimeout:    t.LoginTimeout,
			WaitTimeout:     t.WaitTimeout,
			TokenKey:        cfg.TokenKey,
		}, clk, log.Named("session"))
	defer func() { err = multierr.Append(err, sessions.Close()) }()

	selTiming := selector.Timing{
		WaitTimeout:    t.WaitTimeout,
		SearchDebounce: t.SearchDebounce,
		SettleDelay:    t.SettleDelay,
		PartyTimeout:   t.PartyTimeout,
	}
	var strategy selector.Strategy
	switch cfg.Strategy {
	case config.StrategyCatalog:
		hc := &http.Client{Timeout: t.WaitTimeout}
		rt := realtime.NewClient(cfg.HubURL, hc, log.Named("realtime"))
		defer func() { err = multierr.Append(err, rt.Close()) }()
		strategy = selector.NewCatalog(s, catalog.NewClient(cfg.APIBaseURL, hc), rt,
			catalog.Query{GameType: cfg.GameType, Menu: cfg.Menu, Search: cfg.SearchTerm},
			selTiming, selector.UniformPicker, clk, log.Named("selector"))
	default:
		strategy = selector.NewDiscovery(s, cfg.SearchTerm, selTiming, selector.UniformPicker, clk, log.Named("selector"))
	}

	h := hub.NewHub(ctx, clk)
	defer h.Shutdown()

	orch := lobby.NewOrchestrator(lobby.Timing{
		PollInterval:     t.PollInterval,
		BaselineInterval: t.BaselineInterval,
		BaselineTimeout:  t.BaselineTimeout,
		EmptyTimeout:     t.EmptyTimeout,
		StartCountdown:   t.StartCountdown,
		EmptyCountdown:   t.EmptyCountdown,
		RestartCountdown: t.RestartCountdown,
		StartTimeout:     t.StartTimeout,
	}, clk, h, log.Named("lobby"))

	r := runner.New(sessions, strategy, orch, h, runner.Options{
		RoundPause:      t.RoundPause,
		ErrorBackoff:    t.ErrorBackoff,
		MaxAuthFailures: cfg.MaxAuthFailures,
	}, clk, log)

	g, gctx := errgroup.WithContext(ctx)
	// The runner ends the group: when it returns, the status server goes too.
	runCtx, cancelRun := context.WithCancel(gctx)
	defer cancelRun()

	g.Go(func() error {
		defer cancelRun()
		return r.Run(runCtx)
	})

	if cfg.StatusAddr != "" {
		srv := &http.Server{
			Addr:              cfg.StatusAddr,
			Handler:           httpapi.SetupRoutes(h),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			log.Info("status api listening", zap.String("addr", cfg.StatusAddr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("status api: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-runCtx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	return g.Wait()
}
