package main

import (
	"context"
	"log"
	"os"

	"templatestore/internal/app"
	"templatestore/internal/config"
	"templatestore/internal/db"
	customerrepo "templatestore/internal/repository/customer"
	discountrepo "templatestore/internal/repository/discount"
	downloadrepo "templatestore/internal/repository/download"
	productrepo "templatestore/internal/repository/product"
	"templatestore/internal/seed"
)

func main() {
	logger := log.New(os.Stdout, "[seed] ", log.LstdFlags|log.LUTC|log.Lshortfile)
	cfg, err := config.FromEnv()
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}

	ctx := context.Background()
	pool, err := db.Connect(ctx, cfg.DBConnString)
	if err != nil {
		logger.Fatalf("connect db: %v", err)
	}
	defer pool.Close()

	blobs, err := app.NewBlobStore(ctx, cfg.Storage, logger)
	if err != nil {
		logger.Fatalf("init storage: %v", err)
	}

	if err := seed.Apply(ctx, seed.Deps{
		Products:  productrepo.NewPostgres(pool, logger),
		Files:     downloadrepo.NewPostgres(pool, logger),
		Customers: customerrepo.NewPostgres(pool, logger),
		Codes:     discountrepo.NewPostgres(pool, logger),
		Blobs:     blobs,
	}); err != nil {
		logger.Fatalf("seed apply: %v", err)
	}

	logger.Println("seed applied")
}
