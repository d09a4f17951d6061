package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"storefront/internal/cache"
	"storefront/internal/config"
	"storefront/internal/db"
	"storefront/internal/importer"
	"storefront/internal/logger"
	"storefront/internal/redisclient"
	"storefront/internal/repository/product"
	catalogsvc "storefront/internal/service/catalog"
)

func main() {
	var filePath string
	flag.StringVar(&filePath, "file", "", "Path to product CSV (id,title,price,sale.name,sale.percent,sale.from,sale.to)")
	flag.Parse()

	if filePath == "" {
		flag.Usage()
		os.Exit(2)
	}

	cfg := config.Load()
	log, err := logger.New(cfg.Env)
	if err != nil {
		panic(err)
	}
	defer logger.Sync(log)

	ctx := context.Background()
	pool, err := db.Connect(ctx, cfg.DBConnString)
	if err != nil {
		log.Fatal("connect db", zap.Error(err))
	}
	defer pool.Close()

	f, err := os.Open(filePath)
	if err != nil {
		log.Fatal("open file", zap.Error(err))
	}
	defer f.Close()

	repo := product.NewPostgres(pool, log)
	var opts []importer.Option
	if cfg.Session.Backend == config.SessionBackendRedis {
		rdb, err := redisclient.New(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			log.Fatal("connect to redis", zap.Error(err))
		}
		defer rdb.Close()
		// the api shares this cache; evict what the import rewrites
		catalog := catalogsvc.New(repo, cache.NewRedis(rdb, "storefront"), cfg.CatalogCacheTTL, log)
		opts = append(opts, importer.WithCacheInvalidator(catalog))
	}

	imp := importer.NewCSVImporter(f, repo, log, opts...)

	start := time.Now()
	count, err := imp.Run(ctx)
	if err != nil {
		log.Fatal("import failed", zap.Int("imported", count), zap.Error(err))
	}

	fmt.Printf("Imported %d products in %s\n", count, time.Since(start).Truncate(time.Millisecond))
}
