package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"templatestore/internal/app"
	"templatestore/internal/config"
	"templatestore/internal/db"
	"templatestore/internal/gateway"
	"templatestore/internal/httpserver"
	customerrepo "templatestore/internal/repository/customer"
	discountrepo "templatestore/internal/repository/discount"
	downloadrepo "templatestore/internal/repository/download"
	notificationrepo "templatestore/internal/repository/notification"
	orderrepo "templatestore/internal/repository/order"
	productrepo "templatestore/internal/repository/product"
	checkoutsvc "templatestore/internal/service/checkout"
	discountsvc "templatestore/internal/service/discount"
	downloadsvc "templatestore/internal/service/download"
	ledgersvc "templatestore/internal/service/ledger"
	notificationsvc "templatestore/internal/service/notification"
	settlementsvc "templatestore/internal/service/settlement"
	"templatestore/internal/session"
	"templatestore/internal/worker"
)

func main() {
	logger := log.New(os.Stdout, "[api] ", log.LstdFlags|log.LUTC|log.Lshortfile)
	cfg, err := config.FromEnv()
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	dbpool, err := db.Connect(ctx, cfg.DBConnString)
	if err != nil {
		logger.Fatalf("connect to db: %v", err)
	}
	defer dbpool.Close()

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer rdb.Close()
	sessions := session.NewRedisStore(rdb, cfg.SessionTTL, logger)
	if err := sessions.Ping(ctx); err != nil {
		logger.Printf("redis not reachable addr=%s error=%v", cfg.RedisAddr, err)
	}

	blobs, err := app.NewBlobStore(ctx, cfg.Storage, logger)
	if err != nil {
		logger.Fatalf("init storage: %v", err)
	}
	mailer, err := app.NewMailer(ctx, cfg.Mail, logger)
	if err != nil {
		logger.Fatalf("init mail: %v", err)
	}
	publisher, closePublisher := app.NewPublisher(cfg.Kafka, logger)
	defer func() {
		if err := closePublisher(); err != nil {
			logger.Printf("close publisher: %v", err)
		}
	}()

	gw := gateway.New(gateway.Config{
		BaseURL:   cfg.Gateway.BaseURL,
		SecretKey: cfg.Gateway.SecretKey,
		Timeout:   cfg.Gateway.Timeout,
	})

	orderRepo := orderrepo.NewPostgres(dbpool, logger)
	productRepo := productrepo.NewPostgres(dbpool, logger)
	customerRepo := customerrepo.NewPostgres(dbpool, logger)
	downloadRepo := downloadrepo.NewPostgres(dbpool, logger)

	ledger := ledgersvc.New(orderRepo, logger)
	discounts := discountsvc.New(discountrepo.NewPostgres(dbpool, logger), cfg.CustomerDiscountPercent, logger)
	downloads := downloadsvc.New(downloadRepo, blobs, logger)
	queue := notificationsvc.New(notificationrepo.NewPostgres(dbpool, logger), mailer, policyFrom(cfg.Queue), logger)
	settlement := settlementsvc.New(settlementsvc.Config{
		MaxDownloads:  cfg.Download.MaxDownloads,
		TTL:           cfg.Download.TTL,
		PublicBaseURL: cfg.PublicBaseURL,
		OrderViewURL:  cfg.OrderViewURL,
	}, settlementsvc.Deps{
		Verifier:  gw,
		Payments:  orderRepo,
		Ledger:    ledger,
		Tokens:    downloads,
		Notifier:  queue,
		Customers: customerRepo,
		Publisher: publisher,
	}, logger)
	checkout := checkoutsvc.New(productRepo, customerRepo, discounts, ledger, gw, cfg.Gateway.CallbackURL, logger)

	dispatcher := worker.NewDispatcher(cfg.Queue.Workers, cfg.Queue.Workers, logger)
	dispatcher.Start(ctx)

	srv, err := httpserver.New(cfg.HTTPAddr, logger, dbpool, httpserver.Deps{
		Settler:    settlement,
		Downloads:  downloads,
		Queue:      queue,
		Discounts:  discounts,
		Sessions:   sessions,
		Checkout:   checkout,
		Orders:     ledger,
		Dispatcher: dispatcher,
		Options: httpserver.Options{
			OrderViewURL:  cfg.OrderViewURL,
			PublicBaseURL: cfg.PublicBaseURL,
			TriggerToken:  cfg.Queue.TriggerToken,
			BatchSize:     cfg.Queue.BatchSize,
			CORSOrigins:   cfg.CORSOrigins,
			SessionTTL:    cfg.SessionTTL,
		},
	})
	if err != nil {
		logger.Fatalf("init server: %v", err)
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Printf("starting http server on %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	stopCh := make(chan os.Signal, 1)
	signal.Notify(stopCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-stopCh:
		logger.Printf("received signal %s, shutting down", sig)
	case err := <-serverErr:
		logger.Printf("server error: %v", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Printf("graceful shutdown failed: %v", err)
	} else {
		logger.Printf("server stopped")
	}
	dispatcher.Stop()
}

func policyFrom(q config.QueueConfig) notificationsvc.Policy {
	return notificationsvc.Policy{
		HighLaneLimit:   q.HighLaneLimit,
		AggressiveBatch: q.AggressiveBatch,
		MaxAttempts:     q.MaxAttempts,
		SendTimeout:     q.SendTimeout,
		ClaimLease:      q.ClaimLease,
	}
}
