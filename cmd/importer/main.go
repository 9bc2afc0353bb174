package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"templatestore/internal/app"
	"templatestore/internal/config"
	"templatestore/internal/db"
	"templatestore/internal/importer"
	downloadrepo "templatestore/internal/repository/download"
	productrepo "templatestore/internal/repository/product"
)

func main() {
	var (
		filePath  string
		sourceDir string
	)
	flag.StringVar(&filePath, "file", "", "Path to the catalog CSV")
	flag.StringVar(&sourceDir, "source", "", "Directory holding the files named in file.path (defaults to the CSV's directory)")
	flag.Parse()

	if filePath == "" {
		flag.Usage()
		os.Exit(2)
	}
	if sourceDir == "" {
		sourceDir = filepath.Dir(filePath)
	}

	logger := log.New(os.Stdout, "[importer] ", log.LstdFlags|log.LUTC|log.Lshortfile)
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

	f, err := os.Open(filePath)
	if err != nil {
		logger.Fatalf("open file: %v", err)
	}
	defer f.Close()

	imp := importer.NewCSVImporter(f,
		productrepo.NewPostgres(pool, logger),
		downloadrepo.NewPostgres(pool, logger),
		blobs,
		os.DirFS(sourceDir),
	)

	start := time.Now()
	stats, err := imp.Run(ctx)
	if err != nil {
		logger.Fatalf("import failed: %v", err)
	}

	fmt.Printf("Imported %d products and %d files in %s\n", stats.Products, stats.Files, time.Since(start).Truncate(time.Millisecond))
}
