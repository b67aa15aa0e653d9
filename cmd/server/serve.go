package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	grpclib "google.golang.org/grpc"
	"google.golang.org/grpc/reflection"

	"github.com/simaogato/cardguard-backend/internal/adapter/events"
	grpcadapter "github.com/simaogato/cardguard-backend/internal/adapter/grpc"
	httpadapter "github.com/simaogato/cardguard-backend/internal/adapter/http"
	"github.com/simaogato/cardguard-backend/internal/adapter/lock"
	"github.com/simaogato/cardguard-backend/internal/adapter/repository/memory"
	"github.com/simaogato/cardguard-backend/internal/adapter/repository/postgres"
	"github.com/simaogato/cardguard-backend/internal/config"
	"github.com/simaogato/cardguard-backend/internal/domain"
	"github.com/simaogato/cardguard-backend/internal/metrics"
	"github.com/simaogato/cardguard-backend/internal/usecase/authorization"
	"github.com/simaogato/cardguard-backend/internal/usecase/card"
	"github.com/simaogato/cardguard-backend/internal/usecase/seeder"
	"github.com/simaogato/cardguard-backend/internal/usecase/transaction"
)

type repositories struct {
	cards        domain.CardRepository
	policies     domain.ControlPolicyRepository
	transactions domain.TransactionRepository
	tx           domain.UnitOfWork
}

func serve(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	checks := make(map[string]httpadapter.Pinger)

	// 1. Storage
	var repos repositories
	switch cfg.Database.Driver {
	case config.DriverMemory:
		logger.Warn("using in-memory storage; state is lost on exit")
		store := memory.NewStore()
		repos = repositories{store.Cards(), store.Policies(), store.Transactions(), store}
	default:
		db, err := postgres.NewDB(ctx, cfg.Database.ConnectionString(), cfg.Database.MaxOpenConns)
		if err != nil {
			return err
		}
		defer db.Close()

		if err := db.Migrate(); err != nil {
			return err
		}
		logger.Info("database ready", zap.String("host", cfg.Database.Host), zap.String("name", cfg.Database.Name))

		checks["postgres"] = db
		repos = repositories{
			cards:        postgres.NewCardRepository(db),
			policies:     postgres.NewControlPolicyRepository(db),
			transactions: postgres.NewTransactionRepository(db),
			tx:           postgres.NewUnitOfWork(db),
		}
	}

	if cfg.Seed.DemoCards {
		created, err := seeder.NewDemoSeeder(repos.cards, repos.tx).Seed(ctx)
		if err != nil {
			return fmt.Errorf("failed to seed demo cards: %w", err)
		}
		logger.Info("demo cards seeded", zap.Int("created", created))
	}

	// 2. Card lock
	var locker domain.CardLocker
	if cfg.Redis.Enabled {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer client.Close()

		if err := client.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("failed to reach redis: %w", err)
		}
		checks["redis"] = httpadapter.PingFunc(func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		})
		locker = lock.NewRedisLocker(client, cfg.Redis.LockTTL, cfg.Redis.LockRetryInterval, logger)
	} else {
		locker = lock.NewLocalLocker()
	}

	// 3. Transition events
	var publisher domain.EventPublisher
	if cfg.Kafka.Enabled {
		kafkaPublisher := events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Kafka.WriteTimeout, logger)
		defer kafkaPublisher.Close()
		publisher = kafkaPublisher
	} else {
		publisher = events.NewLogPublisher(logger)
	}

	// 4. Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewCollector(registry)

	// 5. Services
	authorizationService := authorization.NewAuthorizationService(repos.cards, repos.policies, repos.transactions, repos.tx, locker, publisher, collector, logger)
	cardService := card.NewCardService(repos.cards, repos.policies, repos.tx, locker, publisher, collector, logger)
	transactionService := transaction.NewTransactionService(repos.transactions, locker, publisher, collector, logger)

	// 6. gRPC
	grpcServer := grpclib.NewServer(
		grpclib.ChainUnaryInterceptor(
			grpcadapter.LoggingInterceptor(logger),
			grpcadapter.AuthInterceptor(cfg.Server.APIToken),
		),
	)
	grpcadapter.RegisterCardGuardServer(grpcServer, grpcadapter.NewServer(authorizationService, cardService, transactionService))
	reflection.Register(grpcServer)

	grpcAddr := fmt.Sprintf(":%d", cfg.Server.GRPCPort)
	lis, err := net.Listen("tcp", grpcAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", grpcAddr, err)
	}

	// 7. Admin HTTP
	admin := httpadapter.NewAdminHandlers(checks, registry, logger)
	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler: admin.Router(),
	}

	errCh := make(chan error, 2)

	go func() {
		logger.Info("gRPC server listening", zap.String("addr", grpcAddr))
		if err := grpcServer.Serve(lis); err != nil {
			errCh <- fmt.Errorf("gRPC server failed: %w", err)
		}
	}()

	go func() {
		logger.Info("admin HTTP server listening", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("admin HTTP server failed: %w", err)
		}
	}()

	// Wait for a signal or a server failure
	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case serveErr = <-errCh:
		logger.Error("server stopped unexpectedly", zap.Error(serveErr))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("admin HTTP server shutdown", zap.Error(err))
	}

	stopped := make(chan struct{})
	go func() {
		grpcServer.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-shutdownCtx.Done():
		logger.Warn("graceful stop timed out; forcing")
		grpcServer.Stop()
	}

	logger.Info("servers stopped")
	return serveErr
}
