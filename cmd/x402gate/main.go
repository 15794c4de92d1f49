// Command x402gate is a reverse proxy that requires an x402 payment before
// forwarding requests to an upstream service.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/handlers"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"

	x402 "github.com/vitwit/x402-gate"
	"github.com/vitwit/x402-gate/gate"
	"github.com/vitwit/x402-gate/logger"
	"github.com/vitwit/x402-gate/metrics"
	"github.com/vitwit/x402-gate/reconcile"
	"github.com/vitwit/x402-gate/session"
)

const shutdownTimeout = 10 * time.Second

func main() {
	app := &cli.App{
		Name:   "x402gate",
		Usage:  "x402 payment gateway in front of an http service",
		Flags:  flags(),
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func run(c *cli.Context) error {
	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	lg := logger.NewZapLogger(c.String("log-level"))
	defer func() {
		if z, ok := lg.(*logger.ZapLogger); ok {
			_ = z.Sync()
		}
	}()

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	upstream, err := url.Parse(c.String("upstream"))
	if err != nil || upstream.Scheme == "" || upstream.Host == "" {
		return fmt.Errorf("invalid upstream %q", c.String("upstream"))
	}

	rec, err := metrics.NewPrometheusRecorder(prometheus.DefaultRegisterer)
	if err != nil {
		return err
	}

	x, err := x402.New(cfg.Facilitator, x402.WithLogger(lg), x402.WithMetrics(rec))
	if err != nil {
		return err
	}

	var gateOpts []gate.Option
	if dir := c.String("reconcile-db"); dir != "" {
		queue, err := reconcile.OpenBoltQueue(dir)
		if err != nil {
			return err
		}
		defer queue.Close()

		worker := reconcile.NewWorker(queue, x.Facilitator(),
			reconcile.WithLogger(lg),
			reconcile.WithMetrics(rec),
			reconcile.WithInterval(c.Duration("reconcile-interval")),
			reconcile.WithMaxAttempts(c.Int("reconcile-max-attempts")))
		if err := worker.Start(); err != nil {
			return err
		}
		defer worker.Stop()

		gateOpts = append(gateOpts, gate.WithReconcileQueue(queue))
	}

	if cfg.SessionHeader != "" {
		store, err := session.NewBigCacheStore(c.Duration("session-ttl"))
		if err != nil {
			return err
		}
		gateOpts = append(gateOpts, gate.WithSessionStore(store))
	}

	g, err := x.NewGate(cfg, gateOpts...)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              c.String("listen"),
		Handler:           router(g, httputil.NewSingleHostReverseProxy(upstream)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	var metricsSrv *http.Server
	if addr := c.String("metrics-listen"); addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsSrv = &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
		go serve(metricsSrv, lg, "metrics", stop)
	}

	lg.Info("starting gateway", map[string]any{
		"listen":      srv.Addr,
		"upstream":    upstream.String(),
		"network":     string(cfg.Network),
		"facilitator": x.Facilitator().URL(),
	})
	go serve(srv, lg, "gateway", stop)

	<-ctx.Done()
	lg.Info("shutting down", nil)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		lg.Error("gateway shutdown", map[string]any{"error": err})
	}
	if metricsSrv != nil {
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
	return nil
}

// router serves healthz and sends everything else through g to upstream.
func router(g *gate.Gate, upstream http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(g.Middleware)
	r.Get(healthPath, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/*", upstream)

	return handlers.RecoveryHandler(handlers.PrintRecoveryStack(true))(
		handlers.CombinedLoggingHandler(os.Stdout, r))
}

// serve runs srv until it is shut down; any other failure stops the process.
func serve(srv *http.Server, lg logger.Logger, name string, stop context.CancelFunc) {
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		lg.Error("listener failed", map[string]any{"server": name, "addr": srv.Addr, "error": err})
		stop()
	}
}
