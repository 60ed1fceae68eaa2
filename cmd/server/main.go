// Server runs the fleet tracker: driver ingestion, viewer websockets, the admin API, and
// the gRPC health listener.
package main

import (
	"context"
	"crypto"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"

	"fleet-tracker/internal/assignment"
	"fleet-tracker/internal/audit"
	audithandler "fleet-tracker/internal/audit/handler"
	auditrepo "fleet-tracker/internal/audit/repository"
	"fleet-tracker/internal/config"
	"fleet-tracker/internal/db"
	"fleet-tracker/internal/dispatch"
	"fleet-tracker/internal/feed"
	fleethandler "fleet-tracker/internal/fleet/handler"
	fleetrepo "fleet-tracker/internal/fleet/repository"
	fleetservice "fleet-tracker/internal/fleet/service"
	"fleet-tracker/internal/health"
	"fleet-tracker/internal/ingest"
	lochandler "fleet-tracker/internal/location/handler"
	locrepo "fleet-tracker/internal/location/repository"
	"fleet-tracker/internal/logging"
	"fleet-tracker/internal/policy/engine"
	policyrepo "fleet-tracker/internal/policy/repository"
	"fleet-tracker/internal/security"
	"fleet-tracker/internal/server"
	"fleet-tracker/internal/server/middleware"
	"fleet-tracker/internal/subscription"
	"fleet-tracker/internal/telemetry"
	telemetryotel "fleet-tracker/internal/telemetry/otel"
	"fleet-tracker/internal/telemetry/producer"
	"fleet-tracker/internal/transport/ws"
)

const shutdownTimeout = 15 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logCloser := logging.Setup(logging.Options{File: cfg.LogFile, MaxSizeMB: cfg.LogMaxSizeMB, MaxBackups: cfg.LogMaxBackups})
	defer logCloser.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	providers, err := telemetryotel.NewProviders(ctx, telemetryotel.Options{
		Endpoint:    cfg.OTELEndpoint,
		ServiceName: cfg.OTELServiceName,
		Environment: cfg.Env,
		Insecure:    cfg.OTELInsecure,
	})
	if err != nil {
		log.Fatalf("otel: %v", err)
	}
	providers.SetGlobal()
	otelEvents := telemetryotel.NewEventEmitter(providers.LoggerProvider)

	tokens, err := tokenProvider(cfg)
	if err != nil {
		log.Fatalf("jwt: %v", err)
	}

	database, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer database.Close()

	vehicles := fleetrepo.NewPostgresRepository(database)
	lastPositions := locrepo.NewPostgresRepository(database)
	auditRepo := auditrepo.NewPostgresRepository(database)

	registry := assignment.NewRegistry()
	if err := registry.Load(ctx, vehicles); err != nil {
		log.Fatalf("assignment: cold start: %v", err)
	}
	log.Printf("assignment: loaded %d vehicles", registry.Snapshot().Len())

	policy, err := engine.NewOPAEvaluator(ctx, policyrepo.NewPostgresRepository(database))
	if err != nil {
		log.Fatalf("policy: %v", err)
	}

	// Accepted fixes go to Kafka for the position worker. Operational events go to OTel and,
	// when Kafka is configured, to the same topic so the worker can ship them to Loki.
	var positionSink producer.Producer
	events := otelEvents
	if kp := producer.NewKafkaProducer(cfg.KafkaBrokersList(), cfg.PositionKafkaTopic); kp != nil {
		positionSink = kp
		events = telemetry.Tee(otelEvents, kp)
	} else {
		log.Printf("kafka: KAFKA_BROKERS not set, last positions will not be recorded")
	}

	directory := subscription.NewDirectory()
	dispatcher := dispatch.NewDispatcher(registry, directory, events, otel.Meter("fleet-tracker/dispatch"))
	ingestor := ingest.NewIngestor(dispatcher, positionSink, events, nil)

	auditLogger := audit.NewLogger(auditRepo, audit.ContextIP)
	vehicleSvc := fleetservice.NewVehicleService(vehicles, vehicles, registry, auditLogger)

	checker := health.NewChecker(db.Pinger{DB: database}, policy)

	httpHandler := server.NewHTTPHandler(server.HTTPDeps{
		Tokens:    tokens,
		Health:    checker,
		Locations: lochandler.NewHandler(ingestor, lastPositions),
		Viewers: ws.NewHandler(directory, policy, middleware.IdentityFrom, ws.Config{
			SendBuffer:   cfg.SessionSendBuffer,
			PingInterval: cfg.PingInterval(),
			WriteTimeout: cfg.WriteTimeout(),
		}),
		Vehicles: fleethandler.NewHandler(vehicleSvc),
		Audit:    audithandler.NewHandler(auditRepo),
		Feed:     feed.NewHandler(lastPositions, vehicles),
		Events:   otelEvents,
	})
	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httpHandler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	grpcServer := server.NewGRPCServer(checker.Server())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		assignment.NewRefresher(registry, vehicles, cfg.RegistryRefresh()).Run(gctx)
		return nil
	})
	g.Go(func() error {
		checker.Run(gctx, cfg.HealthInterval())
		return nil
	})
	g.Go(func() error {
		log.Printf("HTTP server listening on %s", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			return err
		}
		log.Printf("gRPC server listening on %s", cfg.GRPCAddr)
		return grpcServer.Serve(lis)
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Println("shutting down...")
		checker.Shutdown()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("http shutdown: %v", err)
		}
		grpcServer.GracefulStop()
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Printf("server: %v", err)
	}

	// Let in-flight async telemetry finish before the exporters close.
	time.Sleep(telemetry.ShutdownDrainDuration)
	if positionSink != nil {
		if err := positionSink.Close(); err != nil {
			log.Printf("kafka close: %v", err)
		}
	}
	if n := telemetry.Shed(); n > 0 {
		log.Printf("telemetry: %d events shed during this run", n)
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := providers.Shutdown(shutdownCtx); err != nil {
		log.Printf("otel shutdown: %v", err)
	}
	log.Println("server stopped")
}

// tokenProvider builds the access-token validator. The server only verifies tokens; a
// configured private key is used when no public key is given.
func tokenProvider(cfg *config.Config) (*security.TokenProvider, error) {
	var (
		signer crypto.Signer
		pub    crypto.PublicKey
		err    error
	)
	if cfg.JWTPrivateKey != "" {
		if signer, err = security.ParsePrivateKey(cfg.JWTPrivateKey); err != nil {
			return nil, err
		}
		pub = signer.Public()
	}
	if cfg.JWTPublicKey != "" {
		if pub, err = security.ParsePublicKey(cfg.JWTPublicKey); err != nil {
			return nil, err
		}
	}
	if pub == nil {
		return nil, errors.New("JWT_PUBLIC_KEY or JWT_PRIVATE_KEY must be set")
	}
	return security.NewTokenProvider(signer, pub, cfg.JWTIssuer, cfg.JWTAudience, cfg.AccessTTL()), nil
}
