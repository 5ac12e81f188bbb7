package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"storefront/internal/cache"
	"storefront/internal/client"
	"storefront/internal/gateway"
	"storefront/internal/repository"
	"storefront/internal/server"
	"storefront/internal/service"

	"github.com/spf13/cobra"
)

const notifyTimeout = 10 * time.Second

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API and the payment expiry sweeper",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, logger, db, err := bootstrap()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	guard := cache.NewNopDeliveryGuard()
	if cfg.Redis.Addr != "" {
		rdb, err := client.NewRedisClient(ctx, cfg.Redis.Addr)
		if err != nil {
			// the database guard still rejects duplicates, only slower
			logger.Warn("redis unavailable, webhook dedup fast path disabled", "addr", cfg.Redis.Addr, "error", err)
		} else {
			defer rdb.Close()
			guard = cache.NewRedisDeliveryGuard(rdb, cfg.Redis.DedupTTL)
		}
	}

	var notifiers []service.Notifier
	if len(cfg.Kafka.Brokers) > 0 {
		publisher := client.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		defer publisher.Close()
		notifiers = append(notifiers, service.NewKafkaNotifier(publisher))
	}
	if cfg.Telegram.BotToken != "" && cfg.Telegram.ChatID != "" {
		telegram := client.NewTelegramClient(cfg.Telegram.BaseApiURL, cfg.Telegram.BotToken, cfg.Telegram.ChatID)
		notifiers = append(notifiers, service.NewTelegramNotifier(telegram))
	}
	dispatcher := service.NewDispatcher(logger, notifyTimeout, notifiers...)

	gateways := gateway.NewRegistry(
		gateway.NewMidtrans(client.NewMidtransClient(), cfg.Midtrans),
		gateway.NewPaypal(client.NewPaypalClient(), cfg.Paypal, cfg.BaseURL),
		gateway.NewBraintree(client.NewBraintreeClient()),
	)

	productRepo := repository.NewProductRepository(db)
	orderRepo := repository.NewOrderRepository(db)
	discountRepo := repository.NewDiscountRepository(db)
	voucherUsageRepo := repository.NewVoucherUsageRepository(db)
	paymentMethodRepo := repository.NewPaymentMethodRepository(db)
	shippingRateRepo := repository.NewShippingRateRepository(db)
	webhookEventRepo := repository.NewWebhookEventRepository(db)

	discountService := service.NewDiscountService(db, discountRepo, productRepo, voucherUsageRepo)
	orderService := service.NewOrderService(
		db, cfg.Checkout, logger,
		gateways,
		discountService,
		dispatcher,
		productRepo,
		orderRepo,
		paymentMethodRepo,
		shippingRateRepo,
	)
	ledger := service.NewVoucherLedger(db, orderRepo, discountRepo, voucherUsageRepo)
	reconciliationService := service.NewReconciliationService(
		db, logger,
		gateways,
		guard,
		ledger,
		dispatcher,
		productRepo,
		orderRepo,
		paymentMethodRepo,
		webhookEventRepo,
	)

	srv := server.NewServer(*cfg, logger, orderService, discountService, reconciliationService)
	serverAddr := cfg.HTTP.Host + ":" + cfg.HTTP.Port

	logger.Info("starting HTTP server", "addr", serverAddr, "environment", cfg.Environment.Name)
	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(serverAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	go sweepExpired(ctx, logger, reconciliationService, cfg.Checkout.ExpirySweepInterval)

	select {
	case <-ctx.Done():
		logger.Info("signal received, starting graceful shutdown")
	case err := <-errCh:
		logger.Error("HTTP server error", "error", err)
		stop()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}
	dispatcher.Wait()
	return nil
}

func sweepExpired(ctx context.Context, logger *slog.Logger, reconciliationService service.ReconciliationService, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			expired, err := reconciliationService.ExpireOverdueOrders(ctx)
			if err != nil {
				logger.Error("expire overdue orders", "error", err)
				continue
			}
			if expired > 0 {
				logger.Info("expired overdue orders", "count", expired)
			}
		}
	}
}
