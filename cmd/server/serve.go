package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"reconcile/internal/contact"
	"reconcile/internal/platform/httpserver"
	"reconcile/internal/platform/metrics"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API and metrics servers",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	a, err := newApp(ctx, appOptions{withSideEffects: true, registerer: reg})
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			a.logger.Error("shutdown cleanup failed", "error", err)
		}
	}()

	httpMetrics := metrics.New(reg)
	h := contact.NewHandler(a.service, a.logger, httpMetrics, a.cfg.Server.RequestTimeout)
	router := chi.NewRouter()
	h.RegisterProbes(router)
	h.Register(router)

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return httpserver.Run(gctx, httpserver.New(a.cfg.Server.Addr, router), a.logger, "api")
	})
	g.Go(func() error {
		return httpserver.Run(gctx, httpserver.New(a.cfg.Server.MetricsAddr, metricsMux), a.logger, "metrics")
	})
	if a.worker != nil {
		g.Go(func() error {
			return a.worker.Run(gctx)
		})
	}

	err = g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		a.logger.Error("server stopped with error", "error", err)
		return err
	}
	a.logger.Info("server stopped")
	return nil
}
