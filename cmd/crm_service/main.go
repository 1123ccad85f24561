package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	grpcprom "github.com/grpc-ecosystem/go-grpc-middleware/providers/prometheus"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	pb "github.com/crmkit/crm_services/api/rpc/crm"
	grpcAdapter "github.com/crmkit/crm_services/internal/crm_service/adapters/grpc"
	"github.com/crmkit/crm_services/internal/crm_service/adapters/grpc_clients"
	"github.com/crmkit/crm_services/internal/crm_service/app"
	"github.com/crmkit/crm_services/internal/crm_service/auth"
	httptransport "github.com/crmkit/crm_services/internal/crm_service/transport/http"
	"github.com/crmkit/crm_services/internal/platform/config"
	"github.com/crmkit/crm_services/internal/platform/grpcjson"
	"github.com/crmkit/crm_services/internal/platform/logger"
)

const (
	serviceName     = "crm_service"
	shutdownTimeout = 30 * time.Second
)

func main() {
	mainCtx, mainCancel := context.WithCancel(context.Background())
	defer mainCancel()

	cfg, err := config.Load(serviceName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: failed to load configuration: %v\n", serviceName, err)
		os.Exit(1)
	}

	appLogger := logger.New(cfg.LogLevel).With("service", serviceName)
	appLogger.Info("Starting service...")
	appLogger.Info("Configuration loaded",
		"log_level", cfg.LogLevel,
		"grpc_port", cfg.CRMGRPCPort,
		"http_port", cfg.CRMHTTPPort,
		"user_stats_target", cfg.UserStatsGRPCClientTarget,
		"metadata_target", cfg.MetadataGRPCClientTarget,
		"notification_target", cfg.NotificationGRPCClientTarget,
		"fanout_channel_capacity", cfg.FanoutChannelCapacity,
		"fanout_workers", cfg.FanoutWorkers,
	)

	verifier, err := auth.LoadVerifier(cfg.AuthPublicKeyFile)
	if err != nil {
		appLogger.Error("Failed to load auth public key", "path", cfg.AuthPublicKeyFile, "error", err)
		os.Exit(1)
	}

	userStatsConn, err := grpc_clients.Dial(mainCtx, "user_stats_service", cfg.UserStatsGRPCClientTarget, appLogger)
	if err != nil {
		appLogger.Error("Failed to create user stats client", "error", err)
		os.Exit(1)
	}
	defer userStatsConn.Close()

	metadataConn, err := grpc_clients.Dial(mainCtx, "metadata_service", cfg.MetadataGRPCClientTarget, appLogger)
	if err != nil {
		appLogger.Error("Failed to create metadata client", "error", err)
		os.Exit(1)
	}
	defer metadataConn.Close()

	notificationConn, err := grpc_clients.Dial(mainCtx, "notification_service", cfg.NotificationGRPCClientTarget, appLogger)
	if err != nil {
		appLogger.Error("Failed to create notification client", "error", err)
		os.Exit(1)
	}
	defer notificationConn.Close()

	service := app.NewService(
		app.Config{
			SenderEmail:     cfg.SenderEmail,
			ChannelCapacity: cfg.FanoutChannelCapacity,
			Workers:         cfg.FanoutWorkers,
		},
		grpc_clients.NewUserStatsClient(userStatsConn, appLogger),
		grpc_clients.NewMetadataClient(metadataConn, 0, appLogger),
		grpc_clients.NewNotificationClient(notificationConn, appLogger),
		app.HTMLRenderer{},
		appLogger,
	)

	grpcMetrics := grpcprom.NewServerMetrics(grpcprom.WithServerHandlingTimeHistogram())
	if err := prometheus.DefaultRegisterer.Register(grpcMetrics); err != nil {
		appLogger.Warn("Failed to register gRPC Prometheus metrics", "error", err)
	}
	grpcServer := grpc.NewServer(
		grpcjson.ServerOption(),
		grpc.ChainUnaryInterceptor(
			grpcMetrics.UnaryServerInterceptor(),
			auth.UnaryServerInterceptor(verifier, appLogger),
		),
	)
	pb.RegisterCRMServer(grpcServer, grpcAdapter.NewGRPCServer(service, appLogger))
	grpcMetrics.InitializeMetrics(grpcServer)

	// The gateway serves /metrics next to the API, so no separate metrics server.
	httpServer := &http.Server{
		Addr: fmt.Sprintf(":%d", cfg.CRMHTTPPort),
		Handler: httptransport.NewRouter(
			httptransport.NewNotificationHandler(service, appLogger),
			auth.Middleware(verifier, appLogger),
			appLogger,
		),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, groupCtx := errgroup.WithContext(mainCtx)

	g.Go(func() error {
		listenAddress := fmt.Sprintf(":%d", cfg.CRMGRPCPort)
		lis, err := net.Listen("tcp", listenAddress)
		if err != nil {
			return fmt.Errorf("failed to listen for gRPC on %s: %w", listenAddress, err)
		}
		appLogger.Info("gRPC server starting", "address", listenAddress)
		if err := grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return err
		}
		appLogger.Info("gRPC server stopped gracefully.")
		return nil
	})

	g.Go(func() error {
		appLogger.Info("HTTP server starting", "address", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		stopSignal := make(chan os.Signal, 1)
		signal.Notify(stopSignal, syscall.SIGINT, syscall.SIGTERM)
		select {
		case sig := <-stopSignal:
			appLogger.Info("Received termination signal", "signal", sig.String())
			mainCancel()
		case <-groupCtx.Done():
		}
		return nil
	})

	g.Go(func() error {
		<-groupCtx.Done()
		appLogger.Info("Initiating graceful shutdown...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		var shutdownErrors error
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			shutdownErrors = errors.Join(shutdownErrors, fmt.Errorf("http shutdown: %w", err))
		}
		grpcServer.GracefulStop()
		// In-flight delivery runs hold streams to the backends; stop them before the conns close.
		if err := service.Shutdown(shutdownCtx); err != nil {
			shutdownErrors = errors.Join(shutdownErrors, fmt.Errorf("delivery runs shutdown: %w", err))
		}
		return shutdownErrors
	})

	appLogger.Info("Service is ready and running.")
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		appLogger.Error("Service group encountered an error", "error", err)
		os.Exit(1)
	}
	appLogger.Info("Service shutdown complete.")
}
