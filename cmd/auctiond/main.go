package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jensholdgaard/art-auction/internal/bidding"
	"github.com/jensholdgaard/art-auction/internal/catalog"
	"github.com/jensholdgaard/art-auction/internal/clock"
	"github.com/jensholdgaard/art-auction/internal/config"
	"github.com/jensholdgaard/art-auction/internal/health"
	"github.com/jensholdgaard/art-auction/internal/httpapi"
	"github.com/jensholdgaard/art-auction/internal/leader"
	"github.com/jensholdgaard/art-auction/internal/lifecycle"
	"github.com/jensholdgaard/art-auction/internal/settlement"
	"github.com/jensholdgaard/art-auction/internal/store"
	"github.com/jensholdgaard/art-auction/internal/sweeper"
	"github.com/jensholdgaard/art-auction/internal/telemetry"

	// Register store drivers so they are available via store.Open.
	_ "github.com/jensholdgaard/art-auction/internal/store/memory"
	_ "github.com/jensholdgaard/art-auction/internal/store/postgres"
	_ "github.com/jensholdgaard/art-auction/internal/store/sqlite"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	if err := run(*configPath); err != nil {
		slog.Error("fatal error", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(configPath string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	cfg.Telemetry.ServiceVersion = version

	tp, err := telemetry.Setup(ctx, cfg.Telemetry, os.Stderr)
	if err != nil {
		slog.Warn("telemetry setup failed, continuing without OTEL export", slog.Any("error", err))
		tp = telemetry.NewNopProvider()
	}
	defer func() {
		if shutdownErr := tp.Shutdown(context.Background()); shutdownErr != nil {
			slog.Error("telemetry shutdown error", slog.Any("error", shutdownErr))
		}
	}()

	logger := tp.Logger
	clk := clock.Real{}

	policy, err := cfg.Auction.Policy()
	if err != nil {
		return fmt.Errorf("auction increment: %w", err)
	}

	repos, err := store.Open(ctx, cfg.Database, clk)
	if err != nil {
		return fmt.Errorf("opening store (driver=%s): %w", cfg.Database.Driver, err)
	}
	defer func() {
		if closeErr := repos.Close(); closeErr != nil {
			logger.Error("closing store", slog.Any("error", closeErr))
		}
	}()

	logger.InfoContext(ctx, "store opened", slog.String("driver", cfg.Database.Driver))

	lifecycleMgr := lifecycle.NewManager(repos.Auctions, repos.Artworks, repos.Events, logger, tp.TracerProvider, clk)
	biddingSvc, err := bidding.NewService(repos.Auctions, repos.Bids, repos.Users, policy, logger, tp.TracerProvider, tp.MeterProvider, clk)
	if err != nil {
		return fmt.Errorf("creating bidding service: %w", err)
	}
	settlementSvc, err := settlement.NewService(repos.Auctions, repos.Bids, repos.Payments, repos.Users, logger, tp.TracerProvider, tp.MeterProvider, clk)
	if err != nil {
		return fmt.Errorf("creating settlement service: %w", err)
	}
	catalogSvc := catalog.NewService(repos.Artworks, repos.Users, logger, tp.TracerProvider)

	sw, err := sweeper.New(repos.Auctions, lifecycleMgr, cfg.Auction.SweepInterval, logger, tp.TracerProvider, tp.MeterProvider, clk)
	if err != nil {
		return fmt.Errorf("creating sweeper: %w", err)
	}

	healthHandler := health.NewHandler(clk,
		health.Checker{
			Name:  "database",
			Check: repos.Ping,
		},
	)

	// The API runs on every replica; only sweeping is leader-gated.
	gin.SetMode(gin.ReleaseMode)
	handler := httpapi.NewHandler(lifecycleMgr, biddingSvc, settlementSvc, catalogSvc, logger)
	router := httpapi.NewRouter(handler, healthHandler, logger, tp.TracerProvider)

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.InfoContext(ctx, "starting http server", slog.Int("port", cfg.Server.Port))
		if listenErr := httpServer.ListenAndServe(); listenErr != nil && !errors.Is(listenErr, http.ErrServerClosed) {
			serverErr <- listenErr
		}
	}()

	var wg sync.WaitGroup
	wg.Add(1)
	if cfg.LeaderElection.Enabled {
		logger.InfoContext(ctx, "leader election enabled, sweeping once elected")
		go func() {
			defer wg.Done()
			if leaderErr := leader.Run(ctx, cfg.LeaderElection, logger, sw.Run, func() {
				logger.Info("lost leadership, shutting down...")
				cancel()
			}); leaderErr != nil {
				logger.Error("leader election failed", slog.Any("error", leaderErr))
				cancel()
			}
		}()
	} else {
		go func() {
			defer wg.Done()
			sw.Run(ctx)
		}()
	}

	healthHandler.SetReady(true)
	logger.InfoContext(ctx, "auctiond is running", slog.String("version", version))

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutting down...")
	case runErr = <-serverErr:
		logger.Error("http server error", slog.Any("error", runErr))
		cancel()
	}

	healthHandler.SetReady(false)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", slog.Any("error", err))
	}
	wg.Wait()

	logger.Info("shutdown complete")
	if runErr != nil {
		return fmt.Errorf("http server: %w", runErr)
	}
	return nil
}
