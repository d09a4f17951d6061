package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"storefront/internal/broker"
	"storefront/internal/cache"
	"storefront/internal/config"
	"storefront/internal/db"
	"storefront/internal/httpserver"
	"storefront/internal/logger"
	"storefront/internal/redisclient"
	orderrepo "storefront/internal/repository/order"
	productrepo "storefront/internal/repository/product"
	profilerepo "storefront/internal/repository/profile"
	basketsvc "storefront/internal/service/basket"
	catalogsvc "storefront/internal/service/catalog"
	ordersvc "storefront/internal/service/order"
	profilesvc "storefront/internal/service/profile"
	"storefront/internal/session"
	"storefront/internal/tracing"
)

func main() {
	cfg := config.Load()
	log, err := logger.New(cfg.Env)
	if err != nil {
		panic(err)
	}
	defer logger.Sync(log)

	if err := cfg.Validate(); err != nil {
		log.Fatal("invalid config", zap.Error(err))
	}

	ctx := context.Background()
	dbpool, err := db.Connect(ctx, cfg.DBConnString)
	if err != nil {
		log.Fatal("connect to db", zap.Error(err))
	}
	defer dbpool.Close()

	if cfg.JaegerEndpoint != "" {
		tp, err := tracing.Init(ctx, "storefront-api", cfg.JaegerEndpoint)
		if err != nil {
			log.Fatal("init tracing", zap.Error(err))
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tp.Shutdown(shutdownCtx); err != nil {
				log.Warn("tracer shutdown failed", zap.Error(err))
			}
		}()
	}

	var rdb *redis.Client
	if cfg.Session.Backend == config.SessionBackendRedis {
		rdb, err = redisclient.New(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			log.Fatal("connect to redis", zap.Error(err))
		}
		defer rdb.Close()
	}

	stopPurge := make(chan struct{})
	sessions := session.NewManager(sessionStore(cfg, dbpool, rdb, log, stopPurge), cfg.Session.TTL)

	var catalogCache cache.Cache
	if rdb != nil {
		catalogCache = cache.NewRedis(rdb, "storefront")
	} else {
		catalogCache = cache.NewMemory("storefront")
	}

	events := broker.NewEventPublisher(broker.NopProducer{})
	if len(cfg.Kafka.Brokers) > 0 {
		p := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.OrderTopic, cfg.Kafka.WriteTimeout, log)
		defer p.Close()
		events = broker.NewEventPublisher(p)
	} else {
		log.Info("no kafka brokers configured, order events are dropped")
	}

	orderRepo := orderrepo.NewPostgres(dbpool)
	catalog := catalogsvc.New(productrepo.NewPostgres(dbpool, log), catalogCache, cfg.CatalogCacheTTL, log)
	baskets := basketsvc.New(sessions, catalog, orderRepo, log)
	orders := ordersvc.New(orderRepo, baskets, catalog, events, log)
	profiles := profilesvc.New(profilerepo.NewPostgres(dbpool, log), cfg.BcryptCost, log)

	srv, err := httpserver.New(cfg.HTTPAddr, log, dbpool, httpserver.Deps{
		Sessions:       sessions,
		Basket:         baskets,
		Orders:         orders,
		Profiles:       profiles,
		Cookie:         httpserver.CookieConfig{Name: cfg.Session.CookieName, Secure: cfg.Session.CookieSecure},
		AllowedOrigins: cfg.AllowedOrigins,
	})
	if err != nil {
		log.Fatal("init server", zap.Error(err))
	}

	serverErr := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	stopCh := make(chan os.Signal, 1)
	signal.Notify(stopCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-stopCh:
		log.Info("shutting down", zap.String("signal", sig.String()))
	case err := <-serverErr:
		log.Error("server error", zap.Error(err))
	}
	close(stopPurge)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("graceful shutdown failed", zap.Error(err))
	} else {
		log.Info("server stopped")
	}
}

func sessionStore(cfg config.Config, pool *pgxpool.Pool, rdb *redis.Client, log *zap.Logger, stop <-chan struct{}) session.Store {
	switch cfg.Session.Backend {
	case config.SessionBackendRedis:
		return session.NewRedisStore(rdb)
	case config.SessionBackendPostgres:
		store := session.NewPostgresStore(pool)
		go purgeSessions(store, time.Hour, log, stop)
		return store
	default:
		log.Warn("using in-memory sessions; baskets are lost on restart")
		return session.NewMemoryStore()
	}
}

// purgeSessions deletes expired postgres sessions until stop is closed.
func purgeSessions(store *session.PostgresStore, every time.Duration, log *zap.Logger, stop <-chan struct{}) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			n, err := store.Purge(ctx)
			cancel()
			if err != nil {
				log.Warn("purge sessions failed", zap.Error(err))
				continue
			}
			log.Debug("purged expired sessions", zap.Int64("count", n))
		}
	}
}
