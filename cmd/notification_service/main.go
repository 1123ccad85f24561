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
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	pb "github.com/crmkit/crm_services/api/rpc/notification"
	core "github.com/crmkit/crm_services/internal/core_domain"
	"github.com/crmkit/crm_services/internal/notification_service/adapters/broker"
	grpcAdapter "github.com/crmkit/crm_services/internal/notification_service/adapters/grpc"
	"github.com/crmkit/crm_services/internal/notification_service/adapters/inbox"
	"github.com/crmkit/crm_services/internal/notification_service/app"
	"github.com/crmkit/crm_services/internal/notification_service/domain"
	"github.com/crmkit/crm_services/internal/platform/cache"
	"github.com/crmkit/crm_services/internal/platform/config"
	"github.com/crmkit/crm_services/internal/platform/grpcjson"
	"github.com/crmkit/crm_services/internal/platform/logger"
	"github.com/crmkit/crm_services/internal/platform/messagebroker"
)

const (
	serviceName     = "notification_service"
	shutdownTimeout = 15 * time.Second
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
		"nats_url", cfg.NATSUrl,
		"redis_addr", cfg.RedisAddr,
		"grpc_port", cfg.NotificationGRPCPort,
		"rate_per_second", cfg.NotificationRatePerSecond,
		"workers", cfg.NotificationWorkers,
	)

	senders := map[core.ChannelKind]domain.Sender{}

	// Each channel is optional; messages for a missing channel get a failure ack.
	if cfg.NATSUrl != "" {
		natsClient, err := messagebroker.NewNatsClient(cfg.NATSUrl, serviceName, appLogger)
		if err != nil {
			appLogger.Error("Failed to connect to NATS, email and sms disabled", "url", cfg.NATSUrl, "error", err)
		} else {
			defer natsClient.Close()
			senders[core.ChannelEmail] = broker.NewEmailSender(natsClient)
			senders[core.ChannelSMS] = broker.NewSMSSender(natsClient)
			appLogger.Info("NATS client connected", "url", cfg.NATSUrl)
		}
	}
	if cfg.RedisAddr != "" {
		redisClient, err := cache.NewRedisClient(mainCtx, cfg.RedisAddr)
		if err != nil {
			appLogger.Error("Failed to connect to Redis, in-app disabled", "addr", cfg.RedisAddr, "error", err)
		} else {
			defer redisClient.Close()
			senders[core.ChannelInApp] = inbox.NewRedisInbox(redisClient, cfg.InAppInboxSize)
			appLogger.Info("Redis client connected", "addr", cfg.RedisAddr)
		}
	}

	dispatcher := app.NewDispatcher(senders, app.DispatcherConfig{
		RatePerSecond: cfg.NotificationRatePerSecond,
		Burst:         cfg.NotificationBurst,
		Workers:       cfg.NotificationWorkers,
	}, appLogger)

	grpcMetrics := grpcprom.NewServerMetrics(grpcprom.WithServerHandlingTimeHistogram())
	if err := prometheus.DefaultRegisterer.Register(grpcMetrics); err != nil {
		appLogger.Warn("Failed to register gRPC Prometheus metrics", "error", err)
	}
	grpcServer := grpc.NewServer(
		grpcjson.ServerOption(),
		grpc.ChainStreamInterceptor(grpcMetrics.StreamServerInterceptor()),
	)
	pb.RegisterNotificationServer(grpcServer, grpcAdapter.NewGRPCServer(dispatcher, appLogger))
	grpcMetrics.InitializeMetrics(grpcServer)

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.MetricsPort),
		Handler:           metricsMux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, groupCtx := errgroup.WithContext(mainCtx)

	g.Go(func() error {
		listenAddress := fmt.Sprintf(":%d", cfg.NotificationGRPCPort)
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
		appLogger.Info("Metrics HTTP server starting", "address", metricsServer.Addr)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
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
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			shutdownErrors = errors.Join(shutdownErrors, fmt.Errorf("metrics http shutdown: %w", err))
		}
		grpcServer.GracefulStop()
		return shutdownErrors
	})

	appLogger.Info("Service is ready and running.")
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		appLogger.Error("Service group encountered an error", "error", err)
		os.Exit(1)
	}
	appLogger.Info("Service shutdown complete.")
}
