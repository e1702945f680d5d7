// Command cmsstored serves a component processor proxy to peers over XML
// HTTP and exposes its metrics for Prometheus.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"cmsstore/internal/adapters/httpapi"
	"cmsstore/internal/core"
	"cmsstore/internal/processors"
)

var exitFunc = os.Exit

func main() {
	exitFunc(run(os.Args[1:], os.Stderr))
}

func run(args []string, stderr io.Writer) int {
	fs := flag.NewFlagSet("cmsstored", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", os.Getenv("CMSSTORE_CONFIG"), "path to the daemon yaml config")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	cfg, err := loadConfig(*configPath, os.Getenv)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "cmsstored: %v\n", err)
		return 2
	}
	log := cfg.logger(stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	d, err := newDaemon(cfg, log)
	if err != nil {
		log.WithError(err).Error("startup failed")
		return 1
	}
	if err := d.serve(ctx); err != nil {
		log.WithError(err).Error("server failed")
		return 1
	}
	return 0
}

type daemon struct {
	cfg      daemonConfig
	log      *logrus.Logger
	resolver *core.Resolver
	server   *http.Server
}

func newDaemon(cfg daemonConfig, log *logrus.Logger) (*daemon, error) {
	logger := core.NewLogrusLogger(log)
	opts := []core.Option{core.WithLogger(logger)}

	var registry *prometheus.Registry
	if cfg.Metrics.Enabled {
		registry = prometheus.NewRegistry()
		registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		rec, err := core.NewPrometheusMetricsRecorder(registry)
		if err != nil {
			return nil, err
		}
		opts = append(opts, core.WithMetricsRecorder(rec))
	}

	resolver, err := openResolver(cfg, opts)
	if err != nil {
		return nil, err
	}
	proxy, err := core.NewProxy(resolver, opts...)
	if err != nil {
		_ = resolver.Close()
		return nil, err
	}

	if log.IsLevelEnabled(logrus.DebugLevel) {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	router := httpapi.NewRouter(httpapi.NewHandler(proxy, logger))
	if registry != nil {
		router.GET(cfg.Metrics.Path, gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry})))
	}

	log.WithFields(logrus.Fields{
		"category": resolver.Category(),
		"types":    len(resolver.Types()),
		"metrics":  cfg.Metrics.Enabled,
	}).Info("processor proxy ready")

	return &daemon{
		cfg:      cfg,
		log:      log,
		resolver: resolver,
		server:   &http.Server{Addr: cfg.Listen, Handler: router, ReadHeaderTimeout: readHeaderTimeout},
	}, nil
}

func openResolver(cfg daemonConfig, opts []core.Option) (*core.Resolver, error) {
	if cfg.ProcessorConfig == "" {
		return core.OpenResolver(cfg.Category, processors.Builtins(), opts...)
	}
	pc, err := core.LoadConfigFile(cfg.ProcessorConfig)
	if err != nil {
		return nil, err
	}
	return core.NewResolver(pc, cfg.Category, processors.Builtins(), opts...)
}

// serve blocks until ctx is done or the listener fails, then drains
// in-flight requests and closes every processor.
func (d *daemon) serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		d.log.WithField("addr", d.cfg.Listen).Info("listening")
		if err := d.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		d.log.Info("shutdown signal received")
	case serveErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), d.cfg.ShutdownTimeout)
	defer cancel()
	if err := d.server.Shutdown(shutdownCtx); err != nil {
		d.log.WithError(err).Warn("shutdown incomplete")
	}
	if err := d.resolver.Close(); err != nil {
		d.log.WithError(err).Warn("close processors")
	}
	return serveErr
}
