// Command roomrelay runs the chat server: bind a TCP listener for the
// wire protocol, a second HTTP listener for /metrics and /healthz, and
// shut both down cleanly on SIGINT/SIGTERM.
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

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"roomrelay/internal/chatserver"
	"roomrelay/internal/config"
	"roomrelay/internal/metrics"
	"roomrelay/internal/registry"
)

const shutdownTimeout = 5 * time.Second

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var metricsAddr string

	cmd := &cobra.Command{
		Use:   "roomrelay <port>",
		Short: "roomrelay is a multi-room TCP chat server",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return run(args[0], metricsAddr)
		},
	}
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "address for the /metrics and /healthz endpoints (overrides ROOMRELAY_METRICS_ADDR)")
	return cmd
}

func run(port, metricsAddrFlag string) error {
	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Resolve(port, metricsAddrFlag)
	if err != nil {
		logger.Error("invalid configuration", zap.Error(err))
		return err
	}

	chatListener, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		logger.Error("failed to listen", zap.String("addr", cfg.ListenAddr), zap.Error(err))
		return err
	}
	defer func() { _ = chatListener.Close() }()

	metricsListener, err := net.Listen("tcp", cfg.MetricsAddr)
	if err != nil {
		logger.Error("failed to listen for metrics", zap.String("addr", cfg.MetricsAddr), zap.Error(err))
		return err
	}

	inst := metrics.New()
	reg := registry.New(inst)
	srv := chatserver.NewServer(logger, reg, inst, cfg.MaxFrameBytes)
	httpServer := metrics.NewHTTPServer(cfg.MetricsAddr, inst, srv.Healthy)

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-rootCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if shutErr := srv.Shutdown(shutdownCtx); shutErr != nil {
			logger.Warn("shutdown error", zap.Error(shutErr))
		}
		_ = httpServer.Close()
	}()

	// The chat accept loop and the metrics HTTP server are independent legs
	// that both need to be waited on before run returns; an errgroup joins
	// them the same way the connection driver joins its reader/writer pair.
	var g errgroup.Group

	g.Go(func() error {
		logger.Info("metrics endpoint listening", zap.String("addr", cfg.MetricsAddr))
		if srvErr := httpServer.Serve(metricsListener); srvErr != nil && !errors.Is(srvErr, http.ErrServerClosed) {
			logger.Warn("metrics server error", zap.Error(srvErr))
			return srvErr
		}
		return nil
	})

	g.Go(func() error {
		logger.Info("listening", zap.String("addr", cfg.ListenAddr))
		serveErr := srv.Serve(rootCtx, chatListener)
		if serveErr == nil || errors.Is(serveErr, net.ErrClosed) || errors.Is(rootCtx.Err(), context.Canceled) {
			return nil
		}
		logger.Error("server error", zap.Error(serveErr))
		return serveErr
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("server stopped")
	return nil
}
