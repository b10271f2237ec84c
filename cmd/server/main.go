package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"escrow-service/config"
	"escrow-service/internal/api"
	"escrow-service/internal/broker"
	"escrow-service/internal/redisclient"
	"escrow-service/internal/service"
	"escrow-service/internal/store"
	"escrow-service/internal/store/memstore"
	"escrow-service/internal/util"
	"escrow-service/internal/worker"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// backend is the transactional store plus its readiness probe
type backend interface {
	store.TxRunner
	api.Pinger
}

func main() {
	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env, cfg.Server.LogLevel); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting escrow service")

	tp, err := util.InitTracer("escrow-service", cfg.Observ.JaegerEndpoint)
	if err != nil {
		logger.Fatal("Failed to initialize tracer", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			logger.Warn("Error shutting down tracer", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var db backend
	switch cfg.Database.Driver {
	case "memory":
		logger.Warn("Using in-memory store, balances will not survive a restart")
		db = memstore.New()
	default:
		pg, err := store.NewStore(cfg.Database.URL)
		if err != nil {
			logger.Fatal("Failed to connect to database", zap.Error(err))
		}
		defer pg.Close()
		if cfg.Database.AutoMigrate {
			if err := pg.MigrateUp(ctx); err != nil {
				logger.Fatal("Failed to apply migrations", zap.Error(err))
			}
		}
		logger.Info("Database connected")
		db = pg
	}
	readiness := []api.Pinger{db}

	// interfaces stay literally nil when a dependency is disabled
	var guard service.IdempotencyGuard
	if cfg.Redis.Enabled {
		redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			logger.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		defer redisClient.Close()
		logger.Info("Redis connected")
		guard = redisClient
		readiness = append(readiness, redisClient)
	}

	producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicEscrow)
	defer producer.Close()
	var publisher service.Publisher = broker.NewEventPublisher(producer)
	logger.Info("Kafka producer initialized", zap.String("topic", cfg.Kafka.TopicEscrow))

	wallets := service.NewWalletService(db, publisher, cfg.Business)
	services := api.Services{
		Orders:      service.NewOrderService(db, guard, publisher, cfg.Business),
		Disputes:    service.NewDisputeService(db, publisher, cfg.Business),
		Inspections: service.NewInspectionService(db, publisher, cfg.Business),
		Withdrawals: service.NewWithdrawalService(db, publisher),
		Wallets:     wallets,
		Gateway:     service.NewGatewayService(cfg.Gateway, wallets),
		History:     service.NewHistoryService(db),
	}

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handler := api.NewHandler(services, cfg.Auth, readiness...)
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("Starting HTTP server", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	if cfg.Kafka.ConsumeDeposit {
		consumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicPayments, cfg.Kafka.ConsumerGroup)
		depositWorker := worker.NewDepositWorker(consumer, wallets)
		g.Go(func() error {
			err := depositWorker.Start(gctx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
		defer func() {
			if err := depositWorker.Stop(); err != nil {
				logger.Warn("Error stopping deposit worker", zap.Error(err))
			}
		}()
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("Server exited with error", zap.Error(err))
		return
	}
	logger.Info("Server exited")
}
