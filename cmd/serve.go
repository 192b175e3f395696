package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/market-intel/internal/server"
)

const shutdownTimeout = 10 * time.Second

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the dashboard API and event stream",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initSession(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		api := server.New(env.Controller, env.Store, server.Config{
			AllowedOrigins: cfg.Server.AllowedOrigins,
			PingInterval:   time.Duration(cfg.Server.PingIntervalSecs) * time.Second,
		}, server.WithMetrics(env.Metrics, env.Registry))

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           api.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		srv.RegisterOnShutdown(api.CloseStreams)

		return runServer(ctx, srv, env)
	},
}

// runServer runs the HTTP server alongside the controller's feed loop and
// an initial connectivity probe until ctx is cancelled.
func runServer(ctx context.Context, srv *http.Server, env *sessionEnv) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		env.Controller.Run(gctx)
		return nil
	})

	g.Go(func() error {
		status := env.Controller.CheckConnectivity(gctx)
		zap.L().Info("provider connectivity",
			zap.String("provider", env.Intel.Provider()),
			zap.String("status", string(status.Status)),
			zap.String("message", status.Message),
		)
		return nil
	})

	g.Go(func() error {
		zap.L().Info("starting server", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return eris.Wrap(err, "server listen")
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		zap.L().Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
