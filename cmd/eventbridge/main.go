package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/miladsoleymani/eventbridge/bridge"
	"github.com/miladsoleymani/eventbridge/broker"
	"github.com/miladsoleymani/eventbridge/core/middleware"
	"github.com/miladsoleymani/eventbridge/logging"
	"github.com/miladsoleymani/eventbridge/metrics"
	"github.com/miladsoleymani/eventbridge/source"

	// Import plugins to trigger self-registration via init()
	_ "github.com/miladsoleymani/eventbridge/plugins/kafka"
	_ "github.com/miladsoleymani/eventbridge/plugins/nats"
	_ "github.com/miladsoleymani/eventbridge/plugins/rabbitmq"
)

const defaultConfigPath = "event_kafka.yaml"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configFlag      = flag.String("config", defaultConfigPath, "Path to the broker config file")
		metricsAddrFlag = flag.String("metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9100)")
		logLevelFlag    = flag.String("log-level", "info", "Log level (debug, info, warn, error)")
		stopTimeoutFlag = flag.Duration("stop-timeout", bridge.DefaultFlushTimeout, "How long to wait for pending deliveries on shutdown")
	)
	flag.Parse()

	logger := logging.New("eventbridge", logging.ParseLevel(*logLevelFlag), nil)
	slog.SetDefault(logger)

	cfg, err := loadConfig(*configFlag, logger)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger.Info("loaded config", "driver", cfg.DriverName(), "brokers", cfg.Brokers, "topic", cfg.Topic)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	reg.MustRegister(collectors.NewGoCollector())
	collector := metrics.NewCollector(reg)

	if *metricsAddrFlag != "" {
		srv := &http.Server{
			Addr:              *metricsAddrFlag,
			Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			logger.Info("metrics server listening", "addr", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", "error", err)
			}
		}()
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = srv.Shutdown(ctx)
		}()
	}

	bus := source.NewBus()
	ctrl := bridge.New(bus,
		bridge.WithLogger(logger),
		bridge.WithMiddleware(middleware.Metrics(collector), middleware.Logging(logger)),
		bridge.WithDeliveryObserver(collector.DeliveryReported),
		bridge.WithFlushTimeout(*stopTimeoutFlag),
	)
	if err := ctrl.Start(cfg); err != nil {
		return fmt.Errorf("start bridge: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	type feedResult struct {
		n   int
		err error
	}
	fed := make(chan feedResult, 1)
	go func() {
		n, err := source.Feed(ctx, os.Stdin, bus)
		fed <- feedResult{n: n, err: err}
	}()

	var feedErr error
	select {
	case res := <-fed:
		logger.Info("event input exhausted", "events", res.n)
		if res.err != nil && !errors.Is(res.err, context.Canceled) {
			feedErr = fmt.Errorf("read events: %w", res.err)
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	if err := ctrl.Stop(*stopTimeoutFlag); err != nil {
		return errors.Join(feedErr, fmt.Errorf("stop bridge: %w", err))
	}
	return feedErr
}

// loadConfig reads the config file and applies environment overrides. A
// missing file at the default path is not an error when the environment
// supplies the settings.
func loadConfig(path string, logger *slog.Logger) (broker.Config, error) {
	cfg, err := broker.LoadFile(path)
	if err != nil {
		if path != defaultConfigPath || !errors.Is(err, fs.ErrNotExist) {
			return broker.Config{}, err
		}
		logger.Debug("no config file, using environment", "path", path)
	}
	cfg.ApplyEnv(os.LookupEnv)
	if err := cfg.Validate(); err != nil {
		return broker.Config{}, err
	}
	return cfg, nil
}
