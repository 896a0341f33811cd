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

	"educommerce/internal/config"
	"educommerce/internal/infra/api"
	pg "educommerce/internal/infra/db/postgres"
	"educommerce/internal/infra/logging"
	"educommerce/internal/infra/metrics"
	"educommerce/internal/infra/payment"
	red "educommerce/internal/infra/redis"
	"educommerce/internal/infra/sched"
	"educommerce/internal/usecase"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Warn().Msg("developer mode enabled")
	}
	metrics.MustRegister()

	// ---- Postgres ----
	pool, err := pg.Connect(ctx, cfg.Database.URL)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres connect failed")
	}
	defer pool.Close()

	// ---- Redis ----
	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis connect failed")
	}
	defer func() { _ = redisClient.Close() }()
	locker := red.NewLocker(redisClient)

	// ---- Repositories ----
	txm := pg.NewTxManager(pool)
	planRepo := pg.NewPlanRepoCacheDecorator(pg.NewPlanRepo(pool), redisClient, cfg.Redis.TTL)
	subRepo := pg.NewSubscriptionRepo(pool)
	purchaseRepo := pg.NewPurchaseRepo(pool)
	couponRepo := pg.NewCouponRepo(pool)

	// ---- Gateway ----
	pp := cfg.Payment.PayPlus
	gateway := payment.NewPayPlusGateway(pp.APIKey, pp.SecretKey, pp.PageUID, pp.RecurringUID, pp.Sandbox, *logger)

	// ---- Use cases ----
	planUC := usecase.NewPlanUseCase(planRepo, logger)
	couponUC := usecase.NewCouponUseCase(couponRepo, logger)
	decisionUC := usecase.NewDecisionUseCase(planRepo, subRepo, purchaseRepo, cfg.Reconciler.PendingTimeout, logger)
	reconcileUC := usecase.NewReconcileUseCase(subRepo, purchaseRepo, planRepo, gateway, cfg.Reconciler.PendingTimeout, logger)
	checkoutUC := usecase.NewCheckoutUseCase(decisionUC, couponUC, planRepo, subRepo, purchaseRepo,
		gateway, txm, cfg.Location(), cfg.Reconciler.PendingTimeout, logger)

	// ---- HTTP server ----
	srv := api.NewServer(planUC, couponUC, checkoutUC, reconcileUC, subRepo, purchaseRepo,
		cfg.Server.FrontendOrigin, pp.SecretKey, logger)
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           srv.Router(cfg.Auth.HMACSecret, cfg.Server.Environment),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info().Str("addr", server.Addr).Msg("http listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("http server stopped")
			cancel()
		}
	}()

	// ---- Pending sweeper ----
	sweeper := sched.NewPendingSweeper(reconcileUC, locker, cfg.Reconciler.SweepInterval, logger)
	go sweeper.Start(ctx)

	// ---- Graceful shutdown ----
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigc:
		logger.Info().Msg("shutdown requested")
	case <-ctx.Done():
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown failed")
	}
}
