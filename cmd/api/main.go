package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"pulsethread/internal/adapter/memstore"
	"pulsethread/internal/adapter/repo"
	"pulsethread/internal/db"
	"pulsethread/internal/domain"
	"pulsethread/internal/fulfillment"
	"pulsethread/internal/http/handlers"
	httpapi "pulsethread/internal/http/httpapi"
	"pulsethread/internal/infra"
	"pulsethread/internal/infra/geoip"
	"pulsethread/internal/infra/oidc"
	"pulsethread/internal/lifecycle"
	"pulsethread/internal/matching"
	"pulsethread/internal/metrics"
	"pulsethread/internal/middleware"
	"pulsethread/internal/realtime"
	"pulsethread/internal/verification"
)

func main() {
	// .env is optional
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)
	m := metrics.New()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		requestRepo  domain.RequestRepository
		donationRepo domain.DonationRepository
		ready        func(r *http.Request) error
	)
	switch cfg.StoreDriver {
	case infra.StoreDriverPostgres:
		pool, err := infra.NewDBPool(ctx, cfg)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect database")
		}
		defer pool.Close()
		runner := infra.NewSQLRunner(pool, logger)
		requestRepo = repo.NewRequestRepository(runner)
		donationRepo = repo.NewDonationRepository(runner)
		ready = func(r *http.Request) error { return pool.Ping(r.Context()) }
	case infra.StoreDriverMemory:
		logger.Warn().Msg("using in-memory store; data is lost on restart")
		store := memstore.New()
		requestRepo = store.Requests()
		donationRepo = store.Donations()
	}

	var source realtime.Source
	switch cfg.ChangeFeed {
	case infra.ChangeFeedPostgres:
		// table triggers publish, repositories stay plain
		source = &realtime.PGSource{DSN: cfg.DatabaseURL, Channel: db.NotifyChannel, Logger: logger}
	case infra.ChangeFeedRedis:
		client, err := realtime.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect redis")
		}
		defer client.Close()
		pub := &realtime.RedisPublisher{Client: client, Channel: cfg.RedisChannel}
		requestRepo = realtime.NewPublishingRequests(requestRepo, pub, logger)
		donationRepo = realtime.NewPublishingDonations(donationRepo, pub, logger)
		source = &realtime.RedisSource{Client: client, Channel: cfg.RedisChannel, Logger: logger}
	case infra.ChangeFeedMemory:
		feed := realtime.NewMemoryFeed(256)
		requestRepo = realtime.NewPublishingRequests(requestRepo, feed, logger)
		donationRepo = realtime.NewPublishingDonations(donationRepo, feed, logger)
		source = feed
	}

	mode, err := lifecycle.ParseAcceptMode(cfg.AcceptMode)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid accept mode")
	}
	requests := lifecycle.NewRequests(requestRepo, donationRepo, logger, m)
	donations := lifecycle.NewDonations(donationRepo, requests, mode, logger, m)
	reconciler := fulfillment.NewReconciler(requestRepo, donationRepo, requests, logger, m)
	verifier := verification.NewService(donations, requests, reconciler, logger,
		verification.WithRejectClosedRequests(cfg.RejectClosedVerify))

	hub := realtime.NewHub(logger, m)
	go hub.Run(ctx, source)

	app := &handlers.App{
		Requests:     requests,
		Donations:    donations,
		Matching:     matching.NewEngine(requestRepo, logger, m),
		Verification: verifier,
		Hub:          hub,
		Metrics:      m,
		Logger:       logger,
		PollInterval: cfg.SyncPollInterval,
		Ready:        ready,
	}

	resolver, err := geoip.NewResolver(cfg.GeoIPDBPath)
	if err != nil {
		logger.Warn().Err(err).Msg("geoip disabled")
	}
	if resolver != nil {
		defer resolver.Close()
		app.Locator = resolver
	}

	opts := httpapi.Options{
		JWTSecret:       cfg.JWTSecret,
		JWTIssuer:       cfg.JWTIssuer,
		AllowedOrigins:  cfg.CORSAllowedOrigins,
		RateLimitPerMin: cfg.RateLimitPerMin,
	}
	if cfg.OIDCIssuer != "" {
		keys := oidc.NewKeySet(cfg.OIDCIssuer)
		opts.Verifiers = append(opts.Verifiers, middleware.OIDCVerifier(keys, keys.Issuer(), cfg.OIDCAudience))
	}
	router := httpapi.NewRouter(app, opts)
	server := infra.NewHTTPServer(cfg, router, logger)

	go func() {
		logger.Info().
			Str("store", cfg.StoreDriver).
			Str("change_feed", cfg.ChangeFeed).
			Str("accept_mode", string(mode)).
			Msgf("API listening on :%s", cfg.Port)
		if err := server.Start(); err != nil {
			logger.Error().Err(err).Msg("http server failed")
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	logger.Info().Msg("server stopped")
}
