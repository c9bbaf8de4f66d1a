package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/pesio-ai/be-trade-contracts/internal/client"
	"github.com/pesio-ai/be-trade-contracts/internal/handler"
	"github.com/pesio-ai/be-trade-contracts/internal/repository"
	"github.com/pesio-ai/be-trade-contracts/internal/service"
	"github.com/pesio-ai/be-trade-contracts/pkg/config"
	"github.com/pesio-ai/be-trade-contracts/pkg/database"
	"github.com/pesio-ai/be-trade-contracts/pkg/logger"
	"github.com/pesio-ai/be-trade-contracts/pkg/middleware"
	"github.com/pesio-ai/be-trade-contracts/pkg/nats"
)

// storage is the repository set the service runs on.
type storage struct {
	contracts   service.ContractRepository
	amendments  service.AmendmentRepository
	fulfilments service.FulfilmentRepository
	audit       service.AuditLogger
	tx          service.Transactor
}

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New(logger.Config{
		Level:       cfg.LogLevel,
		Environment: cfg.Service.Environment,
		ServiceName: cfg.Service.Name,
		Version:     cfg.Service.Version,
	})

	log.Info().
		Str("service", cfg.Service.Name).
		Str("version", cfg.Service.Version).
		Str("environment", cfg.Service.Environment).
		Str("store", cfg.Store.Driver).
		Msg("Starting Trade Contracts Service")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	deps := map[string]handler.Pinger{}

	// Initialize storage
	var store storage
	switch cfg.Store.Driver {
	case config.DriverMemory:
		mem := repository.NewMemoryStore()
		store = storage{mem.Contracts, mem.Amendments, mem.Fulfilments, mem.Audit, mem}
		log.Warn().Msg("Using in-memory store; data is lost on restart")
	default:
		db, err := database.New(ctx, database.Config{
			Host:        cfg.Database.Host,
			Port:        cfg.Database.Port,
			User:        cfg.Database.User,
			Password:    cfg.Database.Password,
			Database:    cfg.Database.Database,
			SSLMode:     cfg.Database.SSLMode,
			MaxConns:    cfg.Database.MaxConns,
			MinConns:    cfg.Database.MinConns,
			MaxConnTime: cfg.Database.MaxConnTime,
			MaxIdleTime: cfg.Database.MaxIdleTime,
			HealthCheck: cfg.Database.HealthCheck,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to database")
		}
		defer db.Close()
		log.Info().Msg("Database connection established")

		pg := repository.NewStore(db)
		store = storage{pg.Contracts, pg.Amendments, pg.Fulfilments, pg.Audit, pg}
		deps["database"] = db
	}

	opts := []service.Option{service.WithAuditLogger(store.audit)}

	// Initialize event publishing
	if cfg.NATS.Enabled() {
		nc, err := nats.Connect(nats.Config{
			URL:       cfg.NATS.URL,
			Name:      cfg.Service.Name,
			JetStream: cfg.NATS.JetStream,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to NATS")
		}
		defer nc.Close()
		deps["nats"] = nc

		opts = append(opts, service.WithEventPublisher(client.NewEventPublisher(nc, cfg.NATS.SubjectPrefix, log.Logger)))
		log.Info().
			Str("url", cfg.NATS.URL).
			Bool("jetstream", cfg.NATS.JetStream).
			Str("subject_prefix", cfg.NATS.SubjectPrefix).
			Msg("NATS event publisher initialized")
	} else {
		log.Warn().Msg("NATS_URL not set; events will not be published")
	}

	// Initialize service clients
	var counterparties client.CounterpartiesClientInterface
	if cfg.Clients.CounterpartiesURL != "" {
		counterparties = client.NewCounterpartiesClient(cfg.Clients.CounterpartiesURL, cfg.Clients.Timeout)
	} else {
		log.Warn().Msg("COUNTERPARTIES_URL not set; counterparties are not validated")
	}
	if cfg.Clients.DocumentsURL != "" {
		opts = append(opts, service.WithDocuments(client.NewDocumentsClient(cfg.Clients.DocumentsURL, cfg.Clients.Timeout)))
	}

	log.Info().
		Str("counterparties_url", cfg.Clients.CounterpartiesURL).
		Str("documents_url", cfg.Clients.DocumentsURL).
		Msg("Service clients initialized")

	// Initialize services
	contractService := service.NewContractService(
		store.contracts,
		store.amendments,
		store.fulfilments,
		store.tx,
		counterparties,
		log,
		opts...,
	)

	// Setup HTTP routes
	httpHandler := handler.NewHTTPHandler(contractService, log)
	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	})
	httpHandler.Register(mux)

	// Apply middleware
	var h http.Handler = mux
	h = middleware.RequestID(h)
	h = middleware.Logger(&log.Logger)(h)
	h = middleware.Recovery(&log.Logger)(h)
	h = middleware.CORS([]string{"*"})(h)
	h = middleware.Timeout(cfg.Server.RequestTimeout)(h)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      h,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info().Int("port", cfg.Server.Port).Msg("Starting HTTP server")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("HTTP server failed")
		}
	}()

	// Start gRPC server
	grpcServer := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			middleware.UnaryRequestID(),
			middleware.UnaryLogging(log.Logger),
			middleware.UnaryErrorMapping(),
		),
	)
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	reflection.Register(grpcServer) // Enable reflection for debugging

	reporter := handler.NewHealthReporter(healthServer, deps, cfg.Database.HealthCheck, log.Logger)
	go reporter.Run(ctx)

	grpcListener, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.GRPC.Port))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create gRPC listener")
	}

	go func() {
		log.Info().Int("port", cfg.GRPC.Port).Msg("Starting gRPC server")
		if err := grpcServer.Serve(grpcListener); err != nil {
			log.Error().Err(err).Msg("gRPC server failed")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	// Stop gRPC server gracefully
	grpcServer.GracefulStop()

	log.Info().Msg("Server stopped")
}
