package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/rs/zerolog/log"

	"commerce-access/internal/config"
	"commerce-access/internal/infra/api"
	pg "commerce-access/internal/infra/db/postgres"
	"commerce-access/internal/infra/logging"
	"commerce-access/internal/infra/metrics"
	red "commerce-access/internal/infra/redis"
	"commerce-access/internal/infra/sched"
	"commerce-access/internal/infra/worker"
	"commerce-access/internal/usecase"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ---- CLI flags ----
	cfgPath := flag.String("config", os.Getenv("COMMERCE_CONFIG"), "path to YAML config file (optional, env overrides apply)")
	devMode := flag.Bool("dev", false, "enable developer mode (console logs, unredacted emails)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		log.Fatal().Err(err).Msg("config")
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Warn().Msg("[DEV MODE] Enabled")
	}

	metrics.MustRegister()
	metrics.SetBuildInfo(version, commit)

	// ---- Postgres ----
	pool, err := pg.Connect(ctx, cfg.Database)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres")
	}
	defer pool.Close()
	go pg.ReportPoolStats(ctx, pool, 15*time.Second)

	// ---- Redis ----
	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis")
	}
	defer redisClient.Close()
	rateLimiter := red.NewRateLimiter(redisClient)
	locker := red.NewLocker(redisClient)
	seen := red.NewWebhookSeen(redisClient, cfg.Webhook.SeenTTL)

	// ---- Repositories ----
	tm := pg.NewTxManager(pool)
	userRepo := pg.NewUserRepo(pool)
	productRepo := pg.NewProductRepoCacheDecorator(pg.NewProductRepo(pool), redisClient, cfg.Redis.TTL, logger)
	eventRepo := pg.NewPaymentEventRepo(pool)
	grantRepo := pg.NewAccessGrantRepo(pool)
	guestRepo := pg.NewGuestPurchaseRepo(pool)
	offerRepo := pg.NewOtoOfferRepo(pool)

	// ---- Use cases ----
	accessUC := usecase.NewAccessUseCase(grantRepo, userRepo, productRepo, tm, logger)
	guestUC := usecase.NewGuestLedgerUseCase(guestRepo, cfg.Runtime.Dev, logger)
	claimUC := usecase.NewClaimUseCase(guestRepo, accessUC, tm, logger)
	offerUC := usecase.NewOfferUseCase(offerRepo, productRepo, grantRepo, userRepo, guestRepo, accessUC, guestUC, tm, cfg.Oto.DefaultWindowMinutes, logger)
	paymentUC := usecase.NewPaymentUseCase(eventRepo, offerUC, tm, cfg.Checkout.PendingTTL, logger)
	userUC := usecase.NewUserUseCase(userRepo, tm, logger)

	// ---- Background jobs ----
	workers := worker.NewPool(cfg.Scheduler.Workers, logger)
	workers.Start(ctx)
	sweeper := sched.NewSweepWorker(cfg.Scheduler.SweepInterval, paymentUC, locker, logger)
	reconciler := sched.NewPaymentReconciler(paymentUC, workers, locker,
		cfg.Scheduler.ReconcileInterval, cfg.Scheduler.StaleAfter, cfg.Scheduler.BatchSize, logger)

	var jobs sync.WaitGroup
	jobs.Add(2)
	go func() { defer jobs.Done(); _ = sweeper.Run(ctx) }()
	go func() { defer jobs.Done(); _ = reconciler.Run(ctx) }()

	// ---- HTTP ----
	srv := api.NewServer(api.Deps{
		Payments:       paymentUC,
		Claims:         claimUC,
		Offers:         offerUC,
		Users:          userUC,
		Access:         accessUC,
		Auth:           api.NewAuthManager(cfg.Auth.JWTSecret, cfg.Auth.Issuer),
		Limiter:        rateLimiter,
		Seen:           seen,
		Sweep:          sweeper,
		Reconcile:      reconciler,
		Health:         health(pool, redisClient),
		WebhookSecret:  cfg.Webhook.Secret,
		AdminKey:       cfg.Admin.APIKey,
		RateLimit:      cfg.HTTP.RateLimit,
		RateWindow:     cfg.HTTP.RateWindow,
		RequestTimeout: cfg.HTTP.RequestTimeout,
	}, logger)

	server := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           srv.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info().Str("addr", server.Addr).Str("version", version).Msg("http listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("http server error")
			stop()
		}
	}()

	// ---- Graceful shutdown ----
	<-ctx.Done()
	logger.Info().Msg("shutdown requested")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown")
	}
	jobs.Wait()
	workers.Stop()
	logger.Info().Msg("bye")
}

func health(pool *pgxpool.Pool, cache red.RedisClient) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := pool.Ping(ctx); err != nil {
			return err
		}
		return cache.Ping(ctx)
	}
}
