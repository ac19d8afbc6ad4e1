package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"pulsethread/internal/adapter/repo"
	"pulsethread/internal/domain"
	"pulsethread/internal/fulfillment"
	"pulsethread/internal/infra"
	"pulsethread/internal/lifecycle"
	"pulsethread/internal/metrics"
	"pulsethread/internal/realtime"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv).With().Str("cmd", "worker").Logger()
	if cfg.StoreDriver != infra.StoreDriverPostgres {
		logger.Fatal().Str("store", cfg.StoreDriver).Msg("worker: the reconcile sweep needs a shared postgres store")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: db connection failed")
	}
	defer pool.Close()

	runner := infra.NewSQLRunner(pool, logger)
	var (
		requestRepo  domain.RequestRepository  = repo.NewRequestRepository(runner)
		donationRepo domain.DonationRepository = repo.NewDonationRepository(runner)
	)
	if cfg.ChangeFeed == infra.ChangeFeedRedis {
		client, err := realtime.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			logger.Fatal().Err(err).Msg("worker: redis connection failed")
		}
		defer client.Close()
		pub := &realtime.RedisPublisher{Client: client, Channel: cfg.RedisChannel}
		requestRepo = realtime.NewPublishingRequests(requestRepo, pub, logger)
	}

	m := metrics.New()
	requests := lifecycle.NewRequests(requestRepo, donationRepo, logger, m)
	reconciler := fulfillment.NewReconciler(requestRepo, donationRepo, requests, logger, m)

	interval := cfg.ReconcileInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	logger.Info().Dur("interval", interval).Int("batch", cfg.ReconcileBatch).Msg("worker: reconcile sweep started")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		n, err := reconciler.Sweep(ctx, cfg.ReconcileBatch)
		switch {
		case err != nil && ctx.Err() == nil:
			logger.Error().Err(err).Msg("worker: sweep failed")
		case n > 0:
			logger.Info().Int("fulfilled", n).Msg("worker: sweep closed requests")
		}
		select {
		case <-ctx.Done():
			logger.Info().Msg("worker: stopped")
			return
		case <-ticker.C:
		}
	}
}
