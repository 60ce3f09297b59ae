package cmd

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	echoapi "go.pilab.hu/fxapi/api/echo"
	"go.pilab.hu/fxapi/internal/metrics"
	"go.pilab.hu/fxapi/internal/server"
	"go.pilab.hu/fxapi/internal/telemetry"
	"go.pilab.hu/fxapi/log"
	"go.pilab.hu/fxapi/tracing"
)

const shutdownTimeout = 30 * time.Second

func newServeCmd() *cobra.Command {
	var traceStdout bool

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServer(ctx, traceStdout)
		},
	}
	serve.Flags().BoolVar(&traceStdout, "trace-stdout", false, "write exported spans to stdout")
	return serve
}

func runServer(ctx context.Context, traceStdout bool) error {
	appLogger.Info(ctx, "Starting fxapi server", log.Fields{"version": Version, "env": cfg.AppEnv})

	traceOpts := tracing.Options{ServiceName: cfg.OtelServiceName, Environment: cfg.AppEnv}
	if traceStdout {
		traceOpts.Output = os.Stdout
	}
	tp, err := tracing.InitTracerProvider(traceOpts)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics.InitCustomMetrics(reg)
	mp, err := telemetry.InitMeterProvider(reg, cfg.OtelServiceName)
	if err != nil {
		_ = telemetry.Shutdown(context.Background(), tp, nil)
		return err
	}

	a, err := bootstrap(ctx, cfg)
	if err != nil {
		_ = telemetry.Shutdown(context.Background(), tp, mp)
		return err
	}

	api := echoapi.NewAPI(a.services, a.google, a.database, echoapi.Config{
		Development:        cfg.IsDevelopment(),
		Environment:        cfg.AppEnv,
		Version:            Version,
		FrontendSuccessURL: cfg.FrontendSuccessURL,
		FrontendErrorURL:   cfg.FrontendErrorURL,
	})
	httpServer := server.NewHTTPServer(cfg, appLogger, api, reg)

	serveErr := make(chan error, 1)
	go func() {
		appLogger.Info(ctx, "HTTP server listening", log.Fields{"addr": httpServer.Addr})
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
		appLogger.Info(ctx, "Shutdown signal received")
	case err = <-serveErr:
		appLogger.Error(ctx, "HTTP server failed", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if shutdownErr := httpServer.Shutdown(shutdownCtx); shutdownErr != nil {
		appLogger.Error(shutdownCtx, "HTTP server shutdown error", shutdownErr)
	}
	a.Close(shutdownCtx)
	if telErr := telemetry.Shutdown(shutdownCtx, tp, mp); telErr != nil {
		appLogger.Error(shutdownCtx, "Telemetry shutdown error", telErr)
	}

	appLogger.Info(shutdownCtx, "Server gracefully stopped")
	return err
}
