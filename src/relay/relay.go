// Package relay wires the ingest source, risk evaluator and fan-out hub into
// one running service and owns its network listeners.
package relay

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"smartguard-relay/src/fanout"
	"smartguard-relay/src/grpc_control"
	"smartguard-relay/src/helpers"
	"smartguard-relay/src/interfaces"
	"smartguard-relay/src/logger"
	"smartguard-relay/src/metrics"
	"smartguard-relay/src/models"
	"smartguard-relay/src/risk"
	"smartguard-relay/src/server"

	"github.com/prometheus/client_golang/prometheus"
	"google.golang.org/grpc"
)

const rawQueueSize = 64

// -----------------------------------------------------------------------------
// Relay Structure
// -----------------------------------------------------------------------------

type Relay struct {
	Config *models.MConfig
	Logger *logger.Logger

	source    interfaces.IIngestSource
	evaluator *risk.Evaluator
	hub       *fanout.Hub
	metrics   interfaces.IMetrics
	gatherer  prometheus.Gatherer

	sequence atomic.Uint64

	mu         sync.Mutex
	started    bool
	stopped    bool
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	httpServer *http.Server
	grpcServer *grpc.Server
	httpAddr   string
	grpcAddr   string
}

// -----------------------------------------------------------------------------

// New builds a relay. gatherer backs /metrics and may be nil.
func New(
	cfg *models.MConfig,
	log *logger.Logger,
	source interfaces.IIngestSource,
	evaluator *risk.Evaluator,
	hub *fanout.Hub,
	m interfaces.IMetrics,
	gatherer prometheus.Gatherer,
) *Relay {
	if m == nil {
		m = metrics.Noop{}
	}
	return &Relay{
		Config:    cfg,
		Logger:    log,
		source:    source,
		evaluator: evaluator,
		hub:       hub,
		metrics:   m,
		gatherer:  gatherer,
	}
}

// -----------------------------------------------------------------------------
// Lifecycle
// -----------------------------------------------------------------------------

// Start binds the listeners, starts ingest and the pipeline, and returns once
// everything is accepting. A relay can be started only once.
func (r *Relay) Start(parentCtx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.started {
		return helpers.ErrAlreadyStarted
	}

	httpLis, err := net.Listen("tcp", joinHostPort(r.Config.Host, r.Config.Port))
	if err != nil {
		return helpers.NewConfigurationError("listen on %s:%d: %v", r.Config.Host, r.Config.Port, err)
	}

	var grpcLis net.Listener
	if r.Config.GrpcPort >= 0 {
		grpcLis, err = net.Listen("tcp", joinHostPort(r.Config.GrpcHost, r.Config.GrpcPort))
		if err != nil {
			httpLis.Close()
			return helpers.NewConfigurationError("listen on %s:%d: %v", r.Config.GrpcHost, r.Config.GrpcPort, err)
		}
	}

	ctx, cancel := context.WithCancel(parentCtx)
	raw := make(chan models.MRawReading, rawQueueSize)

	if err := r.source.Start(ctx, raw, &r.wg); err != nil {
		cancel()
		httpLis.Close()
		if grpcLis != nil {
			grpcLis.Close()
		}
		return err
	}

	r.wg.Add(1)
	go r.pipeline(ctx, raw)

	rs := server.NewRelayServer(r.Config, r.Logger.Named(r.Config.Name+"-http"), r.hub, r, r, r.gatherer)
	r.httpServer = &http.Server{
		Handler:           rs.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	r.httpAddr = httpLis.Addr().String()
	go func() {
		if err := r.httpServer.Serve(httpLis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			r.Logger.Error("HTTP server failed: %v", err)
		}
	}()
	r.Logger.Info("Serving websocket and REST on %s", r.httpAddr)

	if grpcLis != nil {
		svc := grpc_control.NewControlService(r, r, r.Logger.Named(r.Config.Name+"-grpc"))
		r.grpcServer = grpc_control.NewServer(svc)
		r.grpcAddr = grpcLis.Addr().String()
		go func() {
			if err := r.grpcServer.Serve(grpcLis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				r.Logger.Error("gRPC control server failed: %v", err)
			}
		}()
		r.Logger.Info("Serving gRPC control on %s", r.grpcAddr)
	}

	r.cancel = cancel
	r.started = true
	return nil
}

// -----------------------------------------------------------------------------

// Stop shuts everything down and waits for the ingest and pipeline goroutines.
// Queued readings are discarded. Calling Stop more than once is safe.
func (r *Relay) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.started || r.stopped {
		r.mu.Unlock()
		return nil
	}
	r.stopped = true
	r.mu.Unlock()

	r.Logger.Info("Shutting down...")
	r.cancel()
	if err := r.source.Stop(); err != nil {
		r.Logger.Debug("Source %s already stopped: %v", r.source.Name(), err)
	}
	r.hub.Close()

	var errs []error
	if err := r.httpServer.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	if r.grpcServer != nil {
		stopGrpc(ctx, r.grpcServer)
	}

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		errs = append(errs, ctx.Err())
	}

	r.Logger.Info("Shutdown complete.")
	return errors.Join(errs...)
}

// -----------------------------------------------------------------------------

func stopGrpc(ctx context.Context, s *grpc.Server) {
	stopped := make(chan struct{})
	go func() {
		s.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-ctx.Done():
		s.Stop()
	}
}

// -----------------------------------------------------------------------------

// Addr is the bound websocket/REST address, empty before Start.
func (r *Relay) Addr() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.httpAddr
}

// ControlAddr is the bound gRPC address, empty when disabled.
func (r *Relay) ControlAddr() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.grpcAddr
}

// -----------------------------------------------------------------------------
// Pipeline
// -----------------------------------------------------------------------------

// pipeline classifies each decoded reading, stamps it with the next sequence
// number and hands it to the hub. Sequence numbers are only spent on readings
// that are actually published.
func (r *Relay) pipeline(ctx context.Context, in <-chan models.MRawReading) {
	defer r.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case raw := <-in:
			reading := r.evaluator.Evaluate(raw)
			reading.Sequence = r.sequence.Add(1)

			n := r.hub.Publish(reading)
			r.metrics.IncCounter(metrics.ReadingsPublished, 1)
			r.metrics.ObserveLatency(metrics.PublishLatency, time.Since(raw.ObservedAt).Seconds())

			if reading.RiskLevel == models.RiskHigh {
				r.Logger.Debug("Reading %d is High risk %v, sent to %d sessions", reading.Sequence, reading.Alerts, n)
			}
		}
	}
}

// -----------------------------------------------------------------------------
// IThresholdStore
// -----------------------------------------------------------------------------

func (r *Relay) Thresholds() models.MThresholds {
	return r.evaluator.Thresholds()
}

func (r *Relay) UpdateThresholds(update models.MThresholdsUpdate) (models.MThresholds, error) {
	applied, err := r.evaluator.UpdateThresholds(update)
	if err != nil {
		return applied, err
	}
	r.metrics.IncCounter(metrics.ThresholdUpdates, 1)
	return applied, nil
}

// -----------------------------------------------------------------------------
// IRelayStatus
// -----------------------------------------------------------------------------

func (r *Relay) Health() models.MHealth {
	upstream := r.source.Status()
	status := "ok"
	if !upstream.Connected {
		status = "degraded"
	}
	return models.MHealth{
		Status:       status,
		Sessions:     r.hub.Count(),
		Upstream:     upstream,
		LastSequence: r.sequence.Load(),
	}
}

func (r *Relay) Sessions() []models.MSessionStats {
	return r.hub.Sessions()
}

// -----------------------------------------------------------------------------

func joinHostPort(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}

var (
	_ interfaces.IThresholdStore = (*Relay)(nil)
	_ interfaces.IRelayStatus    = (*Relay)(nil)
)
