package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/rl1809/shop/internal/adapter/handler"
	"github.com/rl1809/shop/internal/app"
	"github.com/rl1809/shop/internal/config"
	"github.com/rl1809/shop/internal/platform/observability"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "shop: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := cfg.RequireJWTSecret(); err != nil {
		return err
	}

	logger, err := observability.NewLogger(cfg.Log)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.SetupTracing(ctx, cfg.Otel)
	if err != nil {
		return err
	}

	infra, err := app.NewInfrastructure(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := infra.Close(); err != nil {
			logger.Error("failed to close connections", zap.Error(err))
		}
		logger.Info("connections closed")
	}()

	if err := infra.Migrate(ctx); err != nil {
		return err
	}

	httpLis, grpcLis, err := listen(cfg.Server)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	var httpServer *http.Server
	if httpLis != nil {
		httpHandler := handler.NewHTTPHandler(infra.Orders, infra.Catalog, infra.Accounts, infra.Reports, infra.Tokens, logger.Named("http"))
		httpServer = newHTTPServer(cfg.Server, httpHandler.Routes(cfg.Server.RequestTimeout))

		g.Go(func() error {
			logger.Info("HTTP server listening", zap.String("addr", httpLis.Addr().String()))
			if err := httpServer.Serve(httpLis); !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		})
	}

	var (
		grpcServer   *grpc.Server
		healthServer *health.Server
	)
	if grpcLis != nil {
		grpcServer = grpc.NewServer()
		handler.RegisterOrderServiceServer(grpcServer, handler.NewGRPCHandler(infra.Orders, logger.Named("grpc")))
		healthServer = health.NewServer()
		healthpb.RegisterHealthServer(grpcServer, healthServer)

		g.Go(func() error {
			logger.Info("gRPC server listening", zap.String("addr", grpcLis.Addr().String()))
			if err := grpcServer.Serve(grpcLis); err != nil {
				return fmt.Errorf("grpc server: %w", err)
			}
			return nil
		})
	}

	// Graceful shutdown
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if httpServer != nil {
			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				logger.Error("HTTP shutdown failed", zap.Error(err))
			}
			logger.Info("HTTP server stopped")
		}
		if grpcServer != nil {
			healthServer.Shutdown()
			grpcServer.GracefulStop()
			logger.Info("gRPC server stopped")
		}
		if err := shutdownTracing(shutdownCtx); err != nil {
			logger.Error("failed to shutdown tracing", zap.Error(err))
		}
		return nil
	})

	return g.Wait()
}

// listen opens both configured listeners up front. An empty address yields a
// nil listener; on error nothing is left open.
func listen(cfg config.ServerConfig) (httpLis, grpcLis net.Listener, err error) {
	if cfg.HTTPAddr != "" {
		httpLis, err = net.Listen("tcp", cfg.HTTPAddr)
		if err != nil {
			return nil, nil, fmt.Errorf("listen http: %w", err)
		}
	}
	if cfg.GRPCAddr != "" {
		grpcLis, err = net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			if httpLis != nil {
				httpLis.Close()
			}
			return nil, nil, fmt.Errorf("listen grpc: %w", err)
		}
	}
	return httpLis, grpcLis, nil
}

func newHTTPServer(cfg config.ServerConfig, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           h,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}
