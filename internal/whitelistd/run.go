// Package whitelistd wires storage, the whitelist service and its HTTP and gRPC
// shells into a runnable daemon.
package whitelistd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/MarkoPoloResearchLab/whitelist/internal/grpcserver"
	"github.com/MarkoPoloResearchLab/whitelist/internal/httpapi"
	"github.com/MarkoPoloResearchLab/whitelist/internal/oplog"
	"github.com/MarkoPoloResearchLab/whitelist/pkg/whitelist"
	"github.com/tyemirov/tauth/pkg/sessionvalidator"
	"go.uber.org/zap"
	"google.golang.org/grpc"
)

const shutdownTimeout = 5 * time.Second

// Run boots the HTTP and gRPC servers and the expiry sweeper, and blocks until
// ctx is cancelled or a server fails.
func Run(ctx context.Context, cfg Config) error {
	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("zap init: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	service, cleanup, err := openService(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := cleanup(); closeErr != nil {
			logger.Warn("storage close error", zap.Error(closeErr))
		}
	}()
	if err := service.Bootstrap(ctx); err != nil {
		return fmt.Errorf("bootstrap storage: %w", err)
	}

	handlerOptions := []httpapi.Option{httpapi.WithLogger(logger)}
	if cfg.SessionEnabled() {
		validator, err := sessionvalidator.New(sessionvalidator.Config{
			SigningKey: []byte(cfg.SessionSigningKey),
			Issuer:     cfg.SessionIssuer,
			CookieName: cfg.SessionCookieName,
		})
		if err != nil {
			return fmt.Errorf("session validator: %w", err)
		}
		handlerOptions = append(handlerOptions, httpapi.WithSessionValidator(validator))
	}
	handler, err := httpapi.NewHandler(service, httpapi.Config{
		AllowedOrigins:  cfg.AllowedOrigins,
		DefaultTTLHours: cfg.DefaultTTLHours,
		CreditRateLimit: cfg.CreditRateLimit,
		CreditRateBurst: cfg.CreditRateBurst,
		RequestTimeout:  cfg.RequestTimeout,
	}, handlerOptions...)
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	handler.Start(runCtx)
	if cfg.SweepInterval > 0 {
		go runSweeper(runCtx, cfg.SweepInterval, service.CleanupExpired, logger)
	}

	httpServer := &http.Server{
		Addr:    cfg.HTTPListenAddr,
		Handler: handler.Router(),
	}
	listener, err := net.Listen("tcp", cfg.GRPCListenAddr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	grpcServer := grpc.NewServer()
	grpcserver.RegisterWhitelistServiceServer(grpcServer, grpcserver.NewServer(service))

	errCh := make(chan error, 2)
	go func() {
		logger.Info("http server starting", zap.String("listen_addr", cfg.HTTPListenAddr))
		if serveErr := httpServer.ListenAndServe(); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", serveErr)
		}
	}()
	go func() {
		logger.Info("gRPC server starting", zap.String("listen_addr", cfg.GRPCListenAddr))
		if serveErr := grpcServer.Serve(listener); serveErr != nil && !errors.Is(serveErr, grpc.ErrServerStopped) {
			errCh <- fmt.Errorf("grpc server: %w", serveErr)
		}
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown requested")
	case serveErr = <-errCh:
		logger.Error("server failed", zap.Error(serveErr))
	}
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if shutdownErr := httpServer.Shutdown(shutdownCtx); shutdownErr != nil {
		logger.Warn("http shutdown error", zap.Error(shutdownErr))
	}
	grpcServer.GracefulStop()
	return serveErr
}

// RunCleanup performs a single expiry sweep across every region.
func RunCleanup(ctx context.Context, cfg Config) (int, error) {
	logger, err := zap.NewProduction()
	if err != nil {
		return 0, fmt.Errorf("zap init: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	service, cleanup, err := openService(ctx, cfg, logger)
	if err != nil {
		return 0, err
	}
	defer func() { _ = cleanup() }()
	return service.CleanupExpired(ctx)
}

// RunBootstrap creates every partition and the accounts collection.
func RunBootstrap(ctx context.Context, cfg Config) error {
	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("zap init: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	service, cleanup, err := openService(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = cleanup() }()
	return service.Bootstrap(ctx)
}

func openService(ctx context.Context, cfg Config, logger *zap.Logger) (*whitelist.Service, func() error, error) {
	provider, cleanup, err := OpenStorage(ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("open storage: %w", err)
	}
	service, err := NewService(provider, cfg, logger)
	if err != nil {
		_ = cleanup()
		return nil, nil, err
	}
	return service, cleanup, nil
}

// NewService builds the whitelist service over provider using the wall clock.
func NewService(provider whitelist.StoreProvider, cfg Config, logger *zap.Logger) (*whitelist.Service, error) {
	cost, err := whitelist.NewCoinAmount(cfg.CoinCost)
	if err != nil {
		return nil, fmt.Errorf("coin cost: %w", err)
	}
	clock := func() int64 { return time.Now().UTC().Unix() }
	service, err := whitelist.NewService(provider, clock,
		whitelist.WithOperationLogger(oplog.New(logger)),
		whitelist.WithCoinCost(cost),
	)
	if err != nil {
		return nil, fmt.Errorf("whitelist service init: %w", err)
	}
	return service, nil
}

// runSweeper calls cleanup every interval until ctx is cancelled.
func runSweeper(ctx context.Context, interval time.Duration, cleanup func(context.Context) (int, error), logger *zap.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := cleanup(ctx)
			if err != nil {
				logger.Warn("expiry sweep failed", zap.Int("removed", removed), zap.Error(err))
				continue
			}
			if removed > 0 {
				logger.Info("expiry sweep", zap.Int("removed", removed))
			}
		}
	}
}
