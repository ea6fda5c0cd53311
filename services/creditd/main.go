package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	protocolconfig "trustlend/config"
	"trustlend/core/protocol"
	"trustlend/integrations/webhooks"
	"trustlend/observability/logging"
	telemetry "trustlend/observability/otel"
	"trustlend/services/creditd/config"
	"trustlend/services/creditd/eventlog"
	"trustlend/services/creditd/server"
	"trustlend/storage"
)

const serviceName = "creditd"

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "services/creditd/config.yaml", "path to creditd config")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("TRUSTLEND_ENV"))
	logger := logging.Setup(serviceName, env)
	shutdownTelemetry, err := telemetry.Init(context.Background(), telemetry.ConfigFromEnv(serviceName, env))
	if err != nil {
		log.Fatalf("init telemetry: %v", err)
	}
	defer func() {
		if shutdownTelemetry != nil {
			_ = shutdownTelemetry(context.Background())
		}
	}()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	protocolCfg, err := protocolconfig.Load(cfg.ProtocolConfig)
	if err != nil {
		log.Fatalf("load protocol config: %v", err)
	}
	params, err := protocolCfg.Protocol()
	if err != nil {
		log.Fatalf("protocol config: %v", err)
	}

	db, err := openStorage(cfg.Storage)
	if err != nil {
		log.Fatalf("open storage: %v", err)
	}
	defer db.Close()

	engine, err := protocol.New(db, params)
	if err != nil {
		log.Fatalf("init protocol: %v", err)
	}
	engine.SetLogger(logger)

	if cfg.EventLog.Enabled() {
		journal, err := eventlog.Open(cfg.EventLog.Driver, cfg.EventLog.DSN)
		if err != nil {
			log.Fatalf("open event log: %v", err)
		}
		defer journal.Close()
		if err := journal.Verify(context.Background()); err != nil {
			log.Fatalf("verify event log: %v", err)
		}
		engine.Events().AddSink(journal)
		logger.Info("event journal enabled", slog.String("driver", cfg.EventLog.Driver),
			logging.MaskURL("dsn", cfg.EventLog.DSN))
	}
	if cfg.Webhook.Enabled() {
		dispatcher, err := webhooks.NewDispatcher(cfg.Webhook.Endpoint, []byte(cfg.Webhook.Secret()),
			webhooks.WithTopics(cfg.Webhook.Topics...), webhooks.WithLogger(logger))
		if err != nil {
			log.Fatalf("configure webhooks: %v", err)
		}
		defer dispatcher.Close()
		engine.Events().AddSink(dispatcher)
		logger.Info("webhook delivery enabled", logging.MaskURL("endpoint", cfg.Webhook.Endpoint))
	}

	api, err := server.New(engine, server.Config{
		Auth: server.AuthConfig{
			HMACSecret: cfg.Auth.Secret(),
			Issuer:     cfg.Auth.Issuer,
			Audience:   cfg.Auth.Audience,
			ScopeClaim: cfg.Auth.ScopeClaim,
			ClockSkew:  cfg.Auth.ClockSkew,
		},
		RateLimit: server.RateLimit{
			RequestsPerMinute: cfg.RateLimit.RequestsPerMinute,
			Burst:             cfg.RateLimit.Burst,
		},
		AllowedOrigins: cfg.Stream.AllowedOrigins,
		Logger:         logger,
	})
	if err != nil {
		log.Fatalf("init server: %v", err)
	}

	listener, err := net.Listen("tcp", cfg.ListenAddress)
	if err != nil {
		log.Fatalf("listen on %s: %v", cfg.ListenAddress, err)
	}
	if cfg.TLS.AllowInsecure {
		tcpAddr, _ := listener.Addr().(*net.TCPAddr)
		loopback := tcpAddr != nil && tcpAddr.IP != nil && tcpAddr.IP.IsLoopback()
		if !strings.EqualFold(env, "dev") && !loopback {
			log.Fatalf("plaintext creditd mode is restricted to loopback listeners or dev environment")
		}
	}
	httpServer := &http.Server{
		Handler:           api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	healthListener, err := net.Listen("tcp", cfg.HealthListen)
	if err != nil {
		log.Fatalf("listen on %s: %v", cfg.HealthListen, err)
	}
	grpcServer := grpc.NewServer(
		grpc.ChainUnaryInterceptor(otelgrpc.UnaryServerInterceptor()),
		grpc.ChainStreamInterceptor(otelgrpc.StreamServerInterceptor()),
	)
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus(serviceName, healthpb.HealthCheckResponse_SERVING)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serverErr := make(chan error, 2)
	go func() {
		logger.Info("creditd listening", slog.String("addr", cfg.ListenAddress), slog.Bool("tls", !cfg.TLS.AllowInsecure))
		var err error
		if cfg.TLS.CertPath != "" {
			err = httpServer.ServeTLS(listener, cfg.TLS.CertPath, cfg.TLS.KeyPath)
		} else {
			err = httpServer.Serve(listener)
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- fmt.Errorf("serve http: %w", err)
		}
	}()
	go func() {
		logger.Info("health service listening", slog.String("addr", cfg.HealthListen))
		if err := grpcServer.Serve(healthListener); err != nil {
			serverErr <- fmt.Errorf("serve health: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-serverErr:
		logger.Error("server failed", slog.Any("error", err))
	}
	healthServer.Shutdown()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("forcing http server stop", slog.Any("error", err))
		_ = httpServer.Close()
	}
	done := make(chan struct{})
	go func() {
		grpcServer.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-shutdownCtx.Done():
		grpcServer.Stop()
	}
}

func openStorage(cfg config.StorageConfig) (storage.Database, error) {
	switch cfg.Backend {
	case config.BackendMemory:
		return storage.NewMemDB(), nil
	case config.BackendLevelDB:
		return storage.NewLevelDB(cfg.Path)
	case config.BackendBolt:
		return storage.NewBoltDB(cfg.Path, nil)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}
