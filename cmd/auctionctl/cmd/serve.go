package cmd

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"auctionhouse/internal/auctionservice"
	"auctionhouse/internal/bidservice"
	"auctionhouse/internal/config"
	"auctionhouse/internal/eventbus"
	"auctionhouse/internal/lock"
	"auctionhouse/internal/logging"
	"auctionhouse/internal/queue"
	"auctionhouse/internal/repository"
	"auctionhouse/internal/repository/memory"
	pgrepo "auctionhouse/internal/repository/postgres"
	"auctionhouse/internal/roundservice"
	"auctionhouse/internal/scheduler"
	"auctionhouse/internal/server"
	"auctionhouse/internal/wallet"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Boot the HTTP API, scheduler, and background workers",
	RunE:  runServe,
}

const (
	lockTTL         = 30 * time.Second
	lockRetry       = 50 * time.Millisecond
	jobBaseBackoff  = 2 * time.Second
	jobPollEvery    = 500 * time.Millisecond
	shutdownTimeout = 30 * time.Second
)

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logging.Configure(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		store  repository.Store
		locker lock.Locker
		q      queue.Queue
		bus    eventbus.Bus
		pool   *pgxpool.Pool
	)

	if cfg.Mode == config.ModeCluster {
		pool, err = pgxpool.New(ctx, cfg.PersistenceURL)
		if err != nil {
			return err
		}
		defer pool.Close()

		store = pgrepo.New(pool)
		locker = lock.NewPostgres(pool, lockRetry)
		pgQueue := queue.NewPostgres(pool, jobPollEvery, jobBaseBackoff)
		q = pgQueue
		pgBus := eventbus.NewPostgres(pool)
		bus = pgBus
		go func() {
			if err := pgBus.Listen(ctx); err != nil {
				logging.Error("eventbus: listen exited", map[string]any{"error": err.Error()})
			}
		}()
	} else {
		store = memory.New()
		locker = lock.NewMemory(lockTTL, lockRetry)
		q = queue.NewMemory(jobBaseBackoff)
		bus = eventbus.NewMemory()
	}

	w := wallet.New(store)
	auctions := auctionservice.New(store, q, bus)
	rounds := roundservice.New(store, w, locker, q, bus)
	bids := bidservice.New(store, w, locker, q, bus)

	sched := scheduler.New(store, q, auctions, rounds, cfg.FallbackPollInterval)
	if err := sched.Bootstrap(ctx); err != nil {
		return err
	}
	go sched.Run(ctx)

	handlers := server.NewHandlers(store, w, auctions, rounds, bids, bus, cfg.Defaults)
	router := server.SetupRouter(handlers)

	httpServer := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		logging.Info("auctionctl: starting HTTP server", map[string]any{"port": cfg.Port, "mode": string(cfg.Mode)})
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Error("auctionctl: HTTP server failed", map[string]any{"error": err.Error()})
		}
	}()

	<-ctx.Done()
	logging.Info("auctionctl: shutting down", nil)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}
