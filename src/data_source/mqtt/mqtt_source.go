// Package mqtt bridges the crane's MQTT telemetry topic into the relay
// pipeline. It owns a single broker connection, resubscribes after every
// reconnect, and drops undecodable messages without stopping.
package mqtt

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"smartguard-relay/src/helpers"
	"smartguard-relay/src/interfaces"
	"smartguard-relay/src/logger"
	"smartguard-relay/src/metrics"
	"smartguard-relay/src/models"

	paho "github.com/eclipse/paho.mqtt.golang"
)

const disconnectQuiesceMs = 250

// -----------------------------------------------------------------------------
// Source Structure
// -----------------------------------------------------------------------------

type Source struct {
	Config  models.MMQTTConfig
	Logger  *logger.Logger
	metrics interfaces.IMetrics

	// replaced in tests
	newClient func(*paho.ClientOptions) paho.Client
	now       func() time.Time

	mu         sync.Mutex
	client     paho.Client
	cancelFunc context.CancelFunc
	isRunning  atomic.Bool
	lost       chan error

	statusMu sync.Mutex
	status   models.MUpstreamStatus
}

// -----------------------------------------------------------------------------

func NewSource(cfg models.MMQTTConfig, log *logger.Logger, m interfaces.IMetrics) *Source {
	if m == nil {
		m = metrics.Noop{}
	}
	return &Source{
		Config:    cfg,
		Logger:    log,
		metrics:   m,
		newClient: paho.NewClient,
		now:       time.Now,
		lost:      make(chan error, 1),
	}
}

// -----------------------------------------------------------------------------

func (s *Source) Name() string {
	return fmt.Sprintf("mqtt:%s/%s", s.Config.Broker, s.Config.Topic)
}

// -----------------------------------------------------------------------------
// Lifecycle
// -----------------------------------------------------------------------------

// Start launches the connection loop. The first connection attempt happens in
// the background, so an unreachable broker does not fail Start.
func (s *Source) Start(parentCtx context.Context, outputChan chan<- models.MRawReading, wg *sync.WaitGroup) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning.Load() {
		return fmt.Errorf("source %s is already running", s.Name())
	}

	ctx, cancel := context.WithCancel(parentCtx)
	s.cancelFunc = cancel
	s.isRunning.Store(true)

	wg.Add(1)
	go s.runLoop(ctx, outputChan, wg)
	s.Logger.Info("Started MQTT source %s", s.Name())
	return nil
}

// -----------------------------------------------------------------------------

func (s *Source) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isRunning.Load() {
		return fmt.Errorf("source %s is not running", s.Name())
	}
	if s.cancelFunc != nil {
		s.cancelFunc()
	}
	s.isRunning.Store(false)
	s.Logger.Info("Stopped MQTT source %s", s.Name())
	return nil
}

// -----------------------------------------------------------------------------

func (s *Source) Status() models.MUpstreamStatus {
	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	return s.status
}

// -----------------------------------------------------------------------------
// Connection loop
// -----------------------------------------------------------------------------

func (s *Source) runLoop(ctx context.Context, out chan<- models.MRawReading, wg *sync.WaitGroup) {
	defer wg.Done()
	defer s.disconnect()

	backoff := helpers.NewBackoff(s.Config.ReconnectMin, s.Config.ReconnectMax)
	first := true

	attempt := func() error {
		if !first {
			s.metrics.IncCounter(metrics.UpstreamReconnect, 1)
			s.statusMu.Lock()
			s.status.Reconnects++
			s.statusMu.Unlock()
		}
		first = false
		return s.connect(ctx, out)
	}
	onRetry := func(n int, err error, wait time.Duration) {
		if ctx.Err() == nil {
			s.setDisconnected(err)
			s.Logger.Warning("Upstream %s unavailable (attempt %d), retrying in %s: %v",
				s.Config.Broker, n, wait, err)
		}
	}

	for {
		// Only a cancelled ctx ends an unbounded retry.
		if err := helpers.RetryWithBackoff(ctx, backoff, 0, attempt, onRetry); err != nil {
			s.Logger.Debug("Connection loop for %s stopped: %v", s.Config.Broker, err)
			return
		}

		s.setConnected()
		s.Logger.Info("Connected to %s, subscribed to %s", s.Config.Broker, s.Config.Topic)

		select {
		case <-ctx.Done():
			return
		case err := <-s.lost:
			s.setDisconnected(helpers.NewUpstreamConnectionError("connection lost", err))
			s.Logger.Warning("Upstream connection lost: %v", err)
			s.disconnect()
		}
	}
}

// -----------------------------------------------------------------------------

// connect dials the broker with a fresh client and subscribes to the
// telemetry topic. Auto-reconnect is left to runLoop.
func (s *Source) connect(ctx context.Context, out chan<- models.MRawReading) error {
	s.drainLost()

	opts := paho.NewClientOptions()
	opts.AddBroker(s.Config.Broker)
	opts.SetClientID(s.Config.ClientID)
	opts.SetUsername(s.Config.Username)
	opts.SetPassword(s.Config.Password)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(false)
	opts.SetConnectRetry(false)
	opts.SetOrderMatters(true)
	opts.SetKeepAlive(s.Config.KeepAlive)
	opts.SetConnectTimeout(s.Config.ConnectTimeout)
	opts.SetConnectionLostHandler(s.onConnectionLost)

	client := s.newClient(opts)

	token := client.Connect()
	if err := waitToken(ctx, token, s.Config.ConnectTimeout); err != nil {
		client.Disconnect(0)
		return helpers.NewUpstreamConnectionError("connect to "+s.Config.Broker, err)
	}

	handler := func(_ paho.Client, msg paho.Message) {
		s.handleMessage(ctx, out, msg)
	}
	token = client.Subscribe(s.Config.Topic, s.Config.QoS, handler)
	if err := waitToken(ctx, token, s.Config.ConnectTimeout); err != nil {
		client.Disconnect(disconnectQuiesceMs)
		return helpers.NewUpstreamConnectionError("subscribe to "+s.Config.Topic, err)
	}

	s.mu.Lock()
	s.client = client
	s.mu.Unlock()
	return nil
}

// -----------------------------------------------------------------------------

// waitToken waits for the token, giving up at timeout or once ctx is cancelled.
func waitToken(ctx context.Context, token paho.Token, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return errors.New("timed out waiting for broker")
	}
}

// -----------------------------------------------------------------------------

func (s *Source) onConnectionLost(_ paho.Client, err error) {
	select {
	case s.lost <- err:
	default:
	}
}

// -----------------------------------------------------------------------------

func (s *Source) drainLost() {
	select {
	case <-s.lost:
	default:
	}
}

// -----------------------------------------------------------------------------

func (s *Source) disconnect() {
	s.mu.Lock()
	client := s.client
	s.client = nil
	s.mu.Unlock()

	if client != nil && client.IsConnected() {
		client.Disconnect(disconnectQuiesceMs)
	}
	s.statusMu.Lock()
	s.status.Connected = false
	s.statusMu.Unlock()
	s.metrics.SetGauge(metrics.UpstreamConnected, 0)
}

// -----------------------------------------------------------------------------
// Message handling
// -----------------------------------------------------------------------------

// handleMessage runs on the paho router goroutine. With OrderMatters set the
// router delivers one message at a time, which keeps arrival order.
func (s *Source) handleMessage(ctx context.Context, out chan<- models.MRawReading, msg paho.Message) {
	raw, err := Decode(msg.Payload(), s.now())
	if err != nil {
		s.metrics.IncCounter(metrics.DecodeErrors, 1)
		s.Logger.Warning("Dropping message on %s: %v", msg.Topic(), err)
		return
	}

	s.metrics.IncCounter(metrics.ReadingsIngested, 1)
	s.statusMu.Lock()
	s.status.LastMessageAt = raw.ObservedAt
	s.statusMu.Unlock()

	select {
	case out <- raw:
	case <-ctx.Done():
	}
}

// -----------------------------------------------------------------------------
// Status helpers
// -----------------------------------------------------------------------------

func (s *Source) setConnected() {
	s.statusMu.Lock()
	s.status.Connected = true
	s.status.LastError = ""
	s.statusMu.Unlock()
	s.metrics.SetGauge(metrics.UpstreamConnected, 1)
}

// -----------------------------------------------------------------------------

func (s *Source) setDisconnected(err error) {
	s.statusMu.Lock()
	s.status.Connected = false
	if err != nil {
		s.status.LastError = err.Error()
	}
	s.statusMu.Unlock()
	s.metrics.SetGauge(metrics.UpstreamConnected, 0)
}

var _ interfaces.IIngestSource = (*Source)(nil)
