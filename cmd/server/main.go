package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"

	"github.com/rl1809/timed-flash-sale/internal/adapter/handler"
	"github.com/rl1809/timed-flash-sale/internal/adapter/handler/rpc"
	"github.com/rl1809/timed-flash-sale/internal/adapter/metrics"
	"github.com/rl1809/timed-flash-sale/internal/adapter/storage"
	"github.com/rl1809/timed-flash-sale/internal/config"
	"github.com/rl1809/timed-flash-sale/internal/core/service"
	"github.com/rl1809/timed-flash-sale/internal/logging"
	"github.com/rl1809/timed-flash-sale/internal/port"
)

type stores struct {
	sales  port.SaleRepository
	orders port.OrderRepository
	close  func()
}

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		bootLogger := logging.New("info", false)
		bootLogger.Fatal().Err(err).Msg("failed to load config")
	}
	logger := logging.New(cfg.LogLevel, cfg.LogPretty)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, err := openStores(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Str("driver", cfg.StoreDriver).Msg("failed to open store")
	}
	defer st.close()

	var gate port.StockGate
	if cfg.RedisEnabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			PoolSize: cfg.RedisPoolSize,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Fatal().Err(err).Msg("failed to connect redis")
		}
		defer rdb.Close()
		gate = storage.NewRedisAdapter(rdb)
		logger.Info().Str("addr", cfg.RedisAddr).Msg("connected to redis")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	purchaseMetrics := metrics.NewPurchaseMetrics(registry)

	saleService := service.NewSaleService(st.sales, gate, logger)
	orderService := service.NewOrderService(st.sales, st.orders, gate, purchaseMetrics, logger)

	if err := saleService.SyncGate(ctx); err != nil {
		logger.Warn().Err(err).Msg("failed to sync stock gate")
	}

	// gRPC
	var grpcServer *grpc.Server
	if cfg.GRPCEnabled() {
		grpcServer = grpc.NewServer()
		rpc.RegisterFlashSaleServer(grpcServer, handler.NewGRPCHandler(saleService, orderService, logger))

		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			logger.Fatal().Err(err).Str("addr", cfg.GRPCAddr).Msg("failed to listen")
		}

		go func() {
			logger.Info().Str("addr", cfg.GRPCAddr).Msg("gRPC server listening")
			if err := grpcServer.Serve(lis); err != nil {
				logger.Error().Err(err).Msg("gRPC server error")
			}
		}()
	}

	// HTTP
	var httpServer *http.Server
	if cfg.HTTPEnabled() {
		httpHandler := handler.NewHTTPHandler(saleService, orderService, logger)
		httpServer = &http.Server{
			Addr:    cfg.HTTPAddr,
			Handler: handler.NewRouter(httpHandler, promhttp.HandlerFor(registry, promhttp.HandlerOpts{}), cfg.RequestTimeout),
		}

		go func() {
			logger.Info().Str("addr", cfg.HTTPAddr).Msg("HTTP server listening")
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error().Err(err).Msg("HTTP server error")
			}
		}()
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()
	if httpServer != nil {
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("HTTP shutdown")
		}
		logger.Info().Msg("HTTP server stopped")
	}

	if grpcServer != nil {
		grpcServer.GracefulStop()
		logger.Info().Msg("gRPC server stopped")
	}
}

func openStores(ctx context.Context, cfg config.Config, logger zerolog.Logger) (*stores, error) {
	switch cfg.StoreDriver {
	case config.DriverMySQL:
		db, err := openMySQL(ctx, cfg)
		if err != nil {
			return nil, err
		}
		if cfg.RunMigrations {
			if err := storage.RunMySQLMigrations(db, logger); err != nil {
				db.Close()
				return nil, err
			}
		}
		logger.Info().Msg("connected to mysql")
		adapter := storage.NewMySQLAdapter(db)
		return &stores{sales: adapter, orders: adapter, close: func() { db.Close() }}, nil

	case config.DriverPostgres:
		if cfg.RunMigrations {
			if err := storage.RunPostgresMigrations(cfg.PostgresDSN, logger); err != nil {
				return nil, err
			}
		}
		poolCfg, err := pgxpool.ParseConfig(cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		poolCfg.MaxConns = int32(cfg.DBMaxOpenConns)
		poolCfg.MaxConnLifetime = cfg.DBConnMaxLifetime
		pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
		if err != nil {
			return nil, err
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, err
		}
		logger.Info().Msg("connected to postgres")
		adapter := storage.NewPostgresAdapter(pool)
		return &stores{sales: adapter, orders: adapter, close: pool.Close}, nil

	default:
		logger.Warn().Msg("using in-memory store, data is lost on restart")
		adapter := storage.NewMemoryAdapter()
		return &stores{sales: adapter, orders: adapter, close: func() {}}, nil
	}
}

// openMySQL forces the DSN options the adapter relies on: parsed UTC times.
func openMySQL(ctx context.Context, cfg config.Config) (*sql.DB, error) {
	dsnCfg, err := mysql.ParseDSN(cfg.MySQLDSN)
	if err != nil {
		return nil, err
	}
	dsnCfg.ParseTime = true
	dsnCfg.Loc = time.UTC

	db, err := sql.Open("mysql", dsnCfg.FormatDSN())
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(cfg.DBMaxOpenConns)
	db.SetMaxIdleConns(cfg.DBMaxIdleConns)
	db.SetConnMaxLifetime(cfg.DBConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}
