package main

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/contextunity/contextworker/internal/auth"
	"github.com/contextunity/contextworker/internal/brain"
	"github.com/contextunity/contextworker/internal/config"
	"github.com/contextunity/contextworker/internal/discovery"
	_ "github.com/contextunity/contextworker/internal/grpcutil" // registers the JSON wire codec
	"github.com/contextunity/contextworker/internal/modules/gardener"
	"github.com/contextunity/contextworker/internal/modules/harvester"
	"github.com/contextunity/contextworker/internal/modules/maintenance"
	"github.com/contextunity/contextworker/internal/policy"
	"github.com/contextunity/contextworker/internal/registry"
	"github.com/contextunity/contextworker/internal/schedules"
	"github.com/contextunity/contextworker/internal/server"
	"github.com/contextunity/contextworker/internal/subagents"
	"github.com/contextunity/contextworker/internal/temporalx"
	"github.com/contextunity/contextworker/internal/tracing"
	"github.com/contextunity/contextworker/internal/worker"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, logLevel, err := buildLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("Starting worker",
		zap.String("service", cfg.ServiceName),
		zap.String("version", cfg.ServiceVersion),
		zap.String("instance", cfg.InstanceName))

	// Tracing is optional; an empty endpoint yields a no-op tracer.
	endpoint := ""
	if cfg.Tracing.Enabled {
		endpoint = cfg.Tracing.OTLPEndpoint
	}
	shutdownTracing, err := tracing.Initialize(ctx, cfg.ServiceName, cfg.ServiceVersion, endpoint, logger)
	if err != nil {
		logger.Fatal("Failed to initialize tracing", zap.Error(err))
	}
	defer func() {
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(shutCtx)
	}()

	// Metrics endpoint comes up early so scrapes succeed during startup.
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		addr := ":" + strconv.Itoa(cfg.MetricsPort)
		logger.Info("Metrics server listening", zap.String("addr", addr))
		srv := &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		}
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Metrics server failed", zap.Error(err))
		}
	}()

	// Staging database for the harvester and gardener modules. Optional:
	// a worker can run the control plane and maintenance without it.
	var stagingDB *sqlx.DB
	if db, err := sqlx.Open("postgres", cfg.Database.DSN()); err == nil {
		stagingDB = db
		defer stagingDB.Close()
	} else {
		logger.Warn("Staging database unavailable, harvest modules degraded", zap.Error(err))
	}

	tokens := auth.NewManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)

	brainClient, err := brain.Dial(cfg.BrainEndpoint, tokens.BrainServiceToken, logger)
	if err != nil {
		logger.Fatal("Failed to connect to Brain", zap.Error(err))
	}
	defer brainClient.Close()

	policyEngine, err := policy.NewEngine(policy.Config{
		Enabled:    cfg.Policy.Enabled,
		Mode:       policy.Mode(cfg.Policy.Mode),
		Path:       cfg.Policy.Path,
		FailClosed: cfg.Policy.FailClosed,
	}, logger)
	if err != nil {
		logger.Fatal("Failed to initialize policy engine", zap.Error(err))
	}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer rdb.Close()
	disc := discovery.NewClientWithRedis(rdb, logger)

	// Module registration. Providers run once; the registry keeps the
	// first definition per name.
	reg := registry.New(logger)
	var staging *harvester.StagingWriter
	if stagingDB != nil {
		staging = harvester.NewStagingWriter(stagingDB)
	}
	registry.RegisterProvider(harvester.Provider(harvester.NewActivities(staging)))
	registry.RegisterProvider(gardener.Provider(gardener.NewActivities(stagingDB)))
	registry.RegisterProvider(maintenance.Provider(maintenance.NewActivities(brainClient, logger)))
	registry.DiscoverModules(reg, logger)

	temporalClient, err := temporalx.Dial(cfg.TemporalHost, "default", logger)
	if err != nil {
		logger.Fatal("Failed to connect to Temporal", zap.Error(err))
	}
	defer temporalClient.Close()

	// Ensure the recurring schedules exist for every served tenant.
	schedMgr := schedules.NewManager(temporalClient, logger)
	tenants := cfg.TenantList()
	if len(tenants) == 0 {
		tenants = []string{cfg.TenantID}
	}
	for _, tenant := range tenants {
		schedMgr.CreateDefaults(ctx, schedules.DefaultDefinitions(), tenant)
	}

	// Sub-agent execution pipeline.
	executor := subagents.NewExecutor(
		subagents.NewIsolationManager(rdb, logger),
		brain.NewIntegration(brainClient, logger),
		policyEngine,
		subagents.NewMonitor(logger),
		cfg.Auth.Enforcement,
		logger,
	)

	// gRPC control plane.
	grpcServer := grpc.NewServer(grpc.ChainUnaryInterceptor(
		auth.UnaryInterceptor(tokens, cfg.Auth.Enforcement, logger),
	))
	server.Register(grpcServer, server.NewService(temporalClient, executor, logger))

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.GRPCPort))
	if err != nil {
		logger.Fatal("Failed to listen for gRPC", zap.Error(err))
	}
	go func() {
		logger.Info("gRPC control plane listening", zap.Int("port", cfg.GRPCPort))
		if err := grpcServer.Serve(lis); err != nil {
			logger.Error("gRPC server stopped", zap.Error(err))
		}
	}()
	defer grpcServer.GracefulStop()

	// Hot reload for runtime-safe settings.
	if path := os.Getenv("CONFIG_PATH"); path != "" {
		watcher, err := config.NewWatcher(path, cfg, logger)
		if err != nil {
			logger.Warn("Config watcher unavailable", zap.Error(err))
		} else {
			watcher.OnChange(func(old, new *config.WorkerConfig) {
				if old.LogLevel != new.LogLevel {
					if lvl, err := zap.ParseAtomicLevel(new.LogLevel); err == nil {
						logLevel.SetLevel(lvl.Level())
						logger.Info("Log level changed", zap.String("level", new.LogLevel))
					} else {
						logger.Warn("Invalid log level in reloaded config",
							zap.String("level", new.LogLevel))
					}
				}
				if old.Auth.Enforcement != new.Auth.Enforcement {
					logger.Warn("Auth enforcement change requires restart to apply",
						zap.String("old", old.Auth.Enforcement),
						zap.String("new", new.Auth.Enforcement))
				}
			})
			watcher.Start()
			defer watcher.Stop()
		}
	}

	// Blocks until shutdown.
	err = worker.Run(ctx, temporalClient, reg, disc, worker.Options{
		ServiceName:  cfg.ServiceName,
		InstanceName: cfg.InstanceName,
		Version:      cfg.ServiceVersion,
	}, logger)
	if err != nil {
		logger.Fatal("Worker run failed", zap.Error(err))
	}

	logger.Info("Worker shut down cleanly")
}

func buildLogger(level string) (*zap.Logger, zap.AtomicLevel, error) {
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		lvl = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	zcfg := zap.NewProductionConfig()
	zcfg.Level = lvl
	logger, err := zcfg.Build()
	return logger, lvl, err
}
