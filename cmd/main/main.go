package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"smartguard-relay/src/config"
	"smartguard-relay/src/data_source/mqtt"
	"smartguard-relay/src/fanout"
	"smartguard-relay/src/logger"
	"smartguard-relay/src/metrics"
	"smartguard-relay/src/relay"
	"smartguard-relay/src/risk"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const shutdownTimeout = 10 * time.Second

// -----------------------------------------------------------------------------

func main() {

	// Parse command line flags
	configPath := flag.String("config", "", "path to YAML config file (defaults and environment only when empty)")
	flag.Parse()

	// Load config: defaults, YAML, .env, environment
	conf, err := config.NewConfig(*configPath)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}

	// Setup logger
	appLogger := logger.NewLogger(conf.LogLevel, conf.Name)

	// Metrics registry, scraped on /metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	promMetrics := metrics.NewPromMetrics(reg)

	// Pipeline components
	evaluator, err := risk.NewEvaluator(conf.Risk.Thresholds, conf.Risk.MediumBandMode)
	if err != nil {
		appLogger.Critical("Invalid thresholds: %v", err)
	}
	source := mqtt.NewSource(conf.MQTT, appLogger.Named("MQTTSource"), promMetrics)
	hub := fanout.NewHub(conf.FanOut, appLogger.Named("FanOutHub"), promMetrics)

	r := relay.New(conf.MConfig, appLogger, source, evaluator, hub, promMetrics, reg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := r.Start(ctx); err != nil {
		appLogger.Critical("Failed to start relay: %v", err)
	}
	appLogger.Info("Relaying %s from %s (thresholds %+v, %s medium bands)",
		conf.MQTT.Topic, conf.MQTT.Broker, evaluator.Thresholds(), conf.Risk.MediumBandMode)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := r.Stop(shutdownCtx); err != nil {
		appLogger.Error("Shutdown finished with errors: %v", err)
	}
}
