package main

import (
	"context"
	"errors"
	"io/fs"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"sous-voice-service/internal/app"
	"sous-voice-service/internal/config"
	httpapi "sous-voice-service/internal/http"
	"sous-voice-service/internal/observability"
	"sous-voice-service/internal/observability/metrics"
)

const (
	healthServiceName = "sous.voice.VoiceService"
	shutdownTimeout   = 15 * time.Second
)

func main() {
	envErr := godotenv.Load()

	cfg := config.Load()
	application := app.New(cfg)

	if envErr != nil && !errors.Is(envErr, fs.ErrNotExist) {
		log.Warn().Err(envErr).Msg("Failed to load .env file")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	obs := observability.NewServer(cfg.Observability.MetricsAddr)
	obs.Start()

	if err := application.Build(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to build services")
	}
	defer application.Shutdown()

	if err := application.Start(); err != nil {
		log.Fatal().Err(err).Msg("Failed to start application")
	}

	// gRPC health check service
	lis, err := net.Listen("tcp", ":"+cfg.Service.GRPCPort)
	if err != nil {
		log.Fatal().Err(err).Str("port", cfg.Service.GRPCPort).Msg("Failed to listen")
	}

	grpcServer := grpc.NewServer(
		grpc.ChainUnaryInterceptor(observability.UnaryServerInterceptor(metrics.DefaultMetrics)),
		grpc.ChainStreamInterceptor(observability.StreamServerInterceptor(metrics.DefaultMetrics)),
	)
	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(healthServiceName, grpc_health_v1.HealthCheckResponse_SERVING)

	// Enable gRPC reflection for debugging tools like grpcurl
	reflection.Register(grpcServer)

	go func() {
		log.Info().Str("port", cfg.Service.GRPCPort).Msg("gRPC health server started")
		if err := grpcServer.Serve(lis); err != nil {
			log.Error().Err(err).Msg("gRPC serve failed")
		}
	}()

	// Voice sessions hijack their connections, so http.Server.Shutdown does
	// not wait for them. They observe sessionCtx instead.
	sessionCtx, cancelSessions := context.WithCancel(context.Background())
	defer cancelSessions()

	httpServer := &http.Server{
		Addr:              ":" + cfg.Service.HTTPPort,
		Handler:           httpapi.NewRouter(application),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return sessionCtx },
	}

	go func() {
		log.Info().Str("port", cfg.Service.HTTPPort).Msg("Sous voice service started")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	obs.SetReady(true)

	<-ctx.Done()
	log.Info().Msg("Shutting down")

	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_NOT_SERVING)
	healthServer.SetServingStatus(healthServiceName, grpc_health_v1.HealthCheckResponse_NOT_SERVING)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	cancelSessions()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown")
	}
	grpcServer.GracefulStop()
	if err := obs.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Observability server shutdown")
	}
}
