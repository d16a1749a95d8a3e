package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/viralforge/mesh/services/commerce/M24-retail-ordering-service/internal/adapters/cache"
	eventadapter "github.com/viralforge/mesh/services/commerce/M24-retail-ordering-service/internal/adapters/events"
	grpcadapter "github.com/viralforge/mesh/services/commerce/M24-retail-ordering-service/internal/adapters/grpc"
	httpadapter "github.com/viralforge/mesh/services/commerce/M24-retail-ordering-service/internal/adapters/http"
	"github.com/viralforge/mesh/services/commerce/M24-retail-ordering-service/internal/adapters/memory"
	"github.com/viralforge/mesh/services/commerce/M24-retail-ordering-service/internal/adapters/postgres"
	"github.com/viralforge/mesh/services/commerce/M24-retail-ordering-service/internal/adapters/security"
	"github.com/viralforge/mesh/services/commerce/M24-retail-ordering-service/internal/application"
	"github.com/viralforge/mesh/services/commerce/M24-retail-ordering-service/internal/ports"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
)

type Runtime struct {
	cfg        Config
	logger     *slog.Logger
	httpServer *http.Server
	grpcServer *grpc.Server
	grpcAddr   string
	outbox     *eventadapter.OutboxWorker
	consumer   *eventadapter.ConsumerWorker
	expiry     *eventadapter.CartExpiryWorker
	cleanupFn  func(context.Context)
}

// storage is the set of ports one storage driver provides.
type storage struct {
	repos   ports.TxRepositories
	dedup   ports.EventDedupRepository
	idem    ports.IdempotencyRepository
	uow     ports.UnitOfWork
	carts   ports.CartStore
	changes ports.CartChangeLog
	ready   func(context.Context) error
	closers []func() error
}

func NewRuntime(ctx context.Context, configPath string) (*Runtime, error) {
	cfg, err := LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})).With("service", cfg.ServiceID)
	slog.SetDefault(logger)

	store, err := openStorage(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	closeStore := func() {
		for _, closer := range store.closers {
			_ = closer()
		}
	}

	tokens, err := security.NewHMACTokenValidator(cfg.JWTSecret, cfg.JWTIssuer)
	if err != nil {
		closeStore()
		return nil, err
	}
	service := application.NewService(application.Dependencies{
		Config: application.Config{
			ServiceName:     cfg.ServiceID,
			IdempotencyTTL:  cfg.IdempotencyTTL,
			EventDedupTTL:   cfg.EventDedupTTL,
			CartTTL:         cfg.CartTTL,
			OrderListLimit:  cfg.OrderListLimit,
			MovementHistory: cfg.StockMovementHistorySize,
		},
		Logger:      logger,
		Catalog:     store.repos.Catalog,
		Agencies:    store.repos.Agencies,
		Ledger:      store.repos.Ledger,
		Allocations: store.repos.Allocations,
		Orders:      store.repos.Orders,
		Outbox:      store.repos.Outbox,
		EventDedup:  store.dedup,
		Idempotency: store.idem,
		UnitOfWork:  store.uow,
		Carts:       store.carts,
		Changes:     store.changes,
		Tokens:      tokens,
	})

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           httpadapter.NewRouter(httpadapter.NewHandler(service, logger), store.ready),
		ReadHeaderTimeout: 5 * time.Second,
	}
	grpcServer, _ := grpcadapter.NewServer(service, logger)

	topics := eventadapter.RetailTopics(cfg.KafkaTopicOrders, cfg.KafkaTopicAllocations)
	publisher := ports.EventPublisher(eventadapter.NewLoggingPublisher(logger, topics))
	consumerAdapter := eventadapter.Consumer(eventadapter.NewNoopConsumer())
	var closers []io.Closer
	if len(cfg.KafkaBrokers) > 0 {
		kafkaPublisher, pubErr := eventadapter.NewKafkaPublisher(cfg.KafkaBrokers, topics, cfg.ServiceID)
		if pubErr != nil {
			logger.WarnContext(ctx, "kafka publisher disabled, using logging publisher", "error", pubErr)
		} else {
			publisher = kafkaPublisher
			closers = append(closers, kafkaPublisher)
		}

		kafkaConsumer, conErr := eventadapter.NewKafkaConsumer(
			cfg.KafkaBrokers,
			cfg.KafkaConsumerGroup,
			[]string{cfg.KafkaTopicCatalog, cfg.KafkaTopicAgency},
		)
		if conErr != nil {
			logger.WarnContext(ctx, "kafka consumer disabled, using noop consumer", "error", conErr)
		} else {
			consumerAdapter = kafkaConsumer
			closers = append(closers, kafkaConsumer)
		}
	}

	return &Runtime{
		cfg:        cfg,
		logger:     logger,
		httpServer: httpServer,
		grpcServer: grpcServer,
		grpcAddr:   fmt.Sprintf(":%d", cfg.GRPCPort),
		outbox:     eventadapter.NewOutboxWorker(logger, store.repos.Outbox, publisher, cfg.OutboxPollInterval, cfg.OutboxBatchSize),
		consumer:   eventadapter.NewConsumerWorker(logger, consumerAdapter, service, cfg.ConsumerPollInterval),
		expiry:     eventadapter.NewCartExpiryWorker(logger, service, cfg.CartSweepInterval),
		cleanupFn: func(context.Context) {
			for _, closer := range closers {
				_ = closer.Close()
			}
			closeStore()
		},
	}, nil
}

// openStorage wires the repositories for the configured driver. The memory
// driver keeps carts in process as well and never dials Redis.
func openStorage(ctx context.Context, cfg Config, logger *slog.Logger) (storage, error) {
	var out storage
	switch cfg.StorageDriver {
	case StorageDriverMemory:
		db := memory.NewStore()
		repos := db.Repositories()
		out = storage{
			repos: ports.TxRepositories{
				Catalog: repos.Catalog, Agencies: repos.Agencies, Ledger: repos.Ledger,
				Allocations: repos.Allocations, Orders: repos.Orders, Outbox: repos.Outbox,
			},
			dedup:   repos.EventDedup,
			idem:    repos.Idempotency,
			uow:     db,
			carts:   memory.NewCartStore(),
			changes: memory.NewCartChangeLog(),
		}
		logger.WarnContext(ctx, "using in-memory storage; state is lost on restart",
			"module", "bootstrap", "layer", "runtime", "operation", "open_storage", "outcome", "success")
		return out, nil
	default:
		db, err := postgres.Connect(ctx, cfg.DatabaseURL, cfg.MaxDBConns)
		if err != nil {
			return storage{}, err
		}
		sqlDB, err := db.DB()
		if err != nil {
			return storage{}, err
		}
		if err := postgres.RunMigrations(ctx, db); err != nil {
			_ = sqlDB.Close()
			return storage{}, err
		}
		repos := postgres.NewRepositories(db)
		out = storage{
			repos: ports.TxRepositories{
				Catalog: repos.Catalog, Agencies: repos.Agencies, Ledger: repos.Ledger,
				Allocations: repos.Allocations, Orders: repos.Orders, Outbox: repos.Outbox,
			},
			dedup:   repos.EventDedup,
			idem:    repos.Idempotency,
			uow:     repos.UnitOfWork,
			ready:   sqlDB.PingContext,
			closers: []func() error{sqlDB.Close},
		}
	}

	redisClient, err := cache.Connect(ctx, cfg.RedisURL)
	if err != nil {
		for _, closer := range out.closers {
			_ = closer()
		}
		return storage{}, err
	}
	out.carts = cache.NewRedisCartStore(redisClient)
	out.changes = cache.NewRedisCartChangeLog(redisClient)
	out.closers = append(out.closers, redisClient.Close)
	dbReady := out.ready
	out.ready = func(ctx context.Context) error {
		if err := dbReady(ctx); err != nil {
			return err
		}
		return redisClient.Ping(ctx).Err()
	}
	return out, nil
}

// RunAPI serves HTTP and gRPC until a signal arrives. With the memory driver
// the background workers run in the same process since nothing else can see
// its state.
func (r *Runtime) RunAPI(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	lis, err := net.Listen("tcp", r.grpcAddr)
	if err != nil {
		r.cleanupFn(ctx)
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := r.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return r.grpcServer.Serve(lis)
	})
	if r.cfg.StorageDriver == StorageDriverMemory {
		r.startWorkers(gctx, g)
	}
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = r.httpServer.Shutdown(shutdownCtx)
		r.grpcServer.GracefulStop()
		return nil
	})

	err = g.Wait()
	r.cleanupFn(context.Background())
	if err != nil && !errors.Is(err, context.Canceled) {
		r.logger.ErrorContext(ctx, "runtime failure", "module", "bootstrap", "layer", "runtime", "operation", "run_api", "outcome", "failure", "error", err)
		return err
	}
	return nil
}

func (r *Runtime) RunWorker(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, gctx := errgroup.WithContext(ctx)
	r.startWorkers(gctx, g)
	err := g.Wait()
	r.cleanupFn(context.Background())
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func (r *Runtime) startWorkers(ctx context.Context, g *errgroup.Group) {
	g.Go(func() error { return r.outbox.Run(ctx) })
	g.Go(func() error { return r.consumer.Run(ctx) })
	g.Go(func() error { return r.expiry.Run(ctx) })
}
