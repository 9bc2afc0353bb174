package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"templatestore/internal/app"
	"templatestore/internal/config"
	"templatestore/internal/db"
	notificationrepo "templatestore/internal/repository/notification"
	notificationsvc "templatestore/internal/service/notification"
	"templatestore/internal/worker"
)

func main() {
	var (
		once       bool
		aggressive bool
	)
	flag.BoolVar(&once, "once", false, "Drain the queue once and exit")
	flag.BoolVar(&aggressive, "aggressive", false, "Use the aggressive batch size")
	flag.Parse()

	logger := log.New(os.Stdout, "[worker] ", log.LstdFlags|log.LUTC|log.Lshortfile)
	cfg, err := config.FromEnv()
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.Connect(ctx, cfg.DBConnString)
	if err != nil {
		logger.Fatalf("connect db: %v", err)
	}
	defer pool.Close()

	mailer, err := app.NewMailer(ctx, cfg.Mail, logger)
	if err != nil {
		logger.Fatalf("init mail: %v", err)
	}
	queue := notificationsvc.New(notificationrepo.NewPostgres(pool, logger), mailer, notificationsvc.Policy{
		HighLaneLimit:   cfg.Queue.HighLaneLimit,
		AggressiveBatch: cfg.Queue.AggressiveBatch,
		MaxAttempts:     cfg.Queue.MaxAttempts,
		SendTimeout:     cfg.Queue.SendTimeout,
		ClaimLease:      cfg.Queue.ClaimLease,
	}, logger)

	mode := notificationsvc.ModeNormal
	if aggressive {
		mode = notificationsvc.ModeAggressive
	}
	drain := func(ctx context.Context) {
		res, err := queue.Drain(ctx, cfg.Queue.BatchSize, mode)
		if err != nil {
			logger.Printf("drain mode=%s error=%v", mode, err)
			return
		}
		if res.Sent+res.Retried+res.Failed > 0 {
			logger.Printf("drained mode=%s sent=%d retried=%d failed=%d", mode, res.Sent, res.Retried, res.Failed)
		}
	}

	if once {
		drain(ctx)
		return
	}

	logger.Printf("polling every %s", cfg.Queue.PollInterval)
	worker.NewPoller(cfg.Queue.PollInterval, drain).Run(ctx)
	logger.Printf("worker stopped")
}
