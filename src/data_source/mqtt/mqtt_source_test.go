package mqtt

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"smartguard-relay/src/logger"
	"smartguard-relay/src/metrics"
	"smartguard-relay/src/models"

	paho "github.com/eclipse/paho.mqtt.golang"
)

// -----------------------------------------------------------------------------
// Fake paho client
// -----------------------------------------------------------------------------

type fakeToken struct{ err error }

func (t *fakeToken) Wait() bool                     { return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (t *fakeToken) Error() error { return t.err }

// pendingToken never completes, like a CONNECT the broker never answers.
type pendingToken struct{ done chan struct{} }

func (t *pendingToken) Wait() bool {
	<-t.done
	return true
}
func (t *pendingToken) WaitTimeout(d time.Duration) bool {
	select {
	case <-t.done:
		return true
	case <-time.After(d):
		return false
	}
}
func (t *pendingToken) Done() <-chan struct{} { return t.done }
func (t *pendingToken) Error() error          { return nil }

type fakeMessage struct {
	topic   string
	payload []byte
}

func (m *fakeMessage) Duplicate() bool   { return false }
func (m *fakeMessage) Qos() byte         { return 0 }
func (m *fakeMessage) Retained() bool    { return false }
func (m *fakeMessage) Topic() string     { return m.topic }
func (m *fakeMessage) MessageID() uint16 { return 0 }
func (m *fakeMessage) Payload() []byte   { return m.payload }
func (m *fakeMessage) Ack()              {}

type fakeClient struct {
	mu         sync.Mutex
	connectErr error
	hang       bool
	connected  bool
	subscribed []string
	handler    paho.MessageHandler
}

func (c *fakeClient) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}
func (c *fakeClient) IsConnectionOpen() bool { return c.IsConnected() }
func (c *fakeClient) Connect() paho.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.connectErr != nil {
		return &fakeToken{err: c.connectErr}
	}
	if c.hang {
		return &pendingToken{done: make(chan struct{})}
	}
	c.connected = true
	return &fakeToken{}
}
func (c *fakeClient) Disconnect(uint) {
	c.mu.Lock()
	c.connected = false
	c.mu.Unlock()
}
func (c *fakeClient) Publish(string, byte, bool, interface{}) paho.Token { return &fakeToken{} }
func (c *fakeClient) Subscribe(topic string, _ byte, cb paho.MessageHandler) paho.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subscribed = append(c.subscribed, topic)
	c.handler = cb
	return &fakeToken{}
}
func (c *fakeClient) SubscribeMultiple(map[string]byte, paho.MessageHandler) paho.Token {
	return &fakeToken{}
}
func (c *fakeClient) Unsubscribe(...string) paho.Token        { return &fakeToken{} }
func (c *fakeClient) AddRoute(string, paho.MessageHandler)    {}
func (c *fakeClient) OptionsReader() paho.ClientOptionsReader { return paho.ClientOptionsReader{} }

func (c *fakeClient) deliver(payload string) {
	c.mu.Lock()
	h := c.handler
	c.mu.Unlock()
	h(c, &fakeMessage{topic: "smartguard/sensors", payload: []byte(payload)})
}

// -----------------------------------------------------------------------------

type countingMetrics struct {
	mu       sync.Mutex
	counters map[string]float64
}

func (m *countingMetrics) IncCounter(name string, v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.counters == nil {
		m.counters = make(map[string]float64)
	}
	m.counters[name] += v
}
func (m *countingMetrics) SetGauge(string, float64)       {}
func (m *countingMetrics) ObserveLatency(string, float64) {}

func (m *countingMetrics) get(name string) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counters[name]
}

// -----------------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------------

type clientFactory struct {
	mu      sync.Mutex
	clients []*fakeClient
	failN   int
	hangN   int
}

func (f *clientFactory) newClient(*paho.ClientOptions) paho.Client {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := &fakeClient{}
	if f.failN > 0 {
		f.failN--
		c.connectErr = errors.New("connection refused")
	} else if f.hangN > 0 {
		f.hangN--
		c.hang = true
	}
	f.clients = append(f.clients, c)
	return c
}

func (f *clientFactory) last() *fakeClient {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.clients) == 0 {
		return nil
	}
	return f.clients[len(f.clients)-1]
}

func (f *clientFactory) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.clients)
}

func newTestSource(f *clientFactory, m *countingMetrics) *Source {
	cfg := models.MMQTTConfig{
		Broker:         "tcp://broker.test:1883",
		ClientID:       "test",
		Topic:          "smartguard/sensors",
		ConnectTimeout: time.Second,
		ReconnectMin:   time.Millisecond,
		ReconnectMax:   5 * time.Millisecond,
	}
	s := NewSource(cfg, logger.NewLoggerTo(io.Discard, "ERROR", "mqtt"), m)
	s.newClient = f.newClient
	return s
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func connected(s *Source) func() bool {
	return func() bool { return s.Status().Connected }
}

const validPayload = `{"weight":500,"windSpeed":5,"stability":90,"boomAngle":30,"swingSpeed":1,"energyConsumption":40}`

// -----------------------------------------------------------------------------
// Tests
// -----------------------------------------------------------------------------

func TestSourceForwardsInOrderAndDropsBadMessages(t *testing.T) {
	f := &clientFactory{}
	m := &countingMetrics{}
	s := newTestSource(f, m)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	out := make(chan models.MRawReading, 8)
	var wg sync.WaitGroup
	if err := s.Start(ctx, out, &wg); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, connected(s))

	c := f.last()
	if len(c.subscribed) != 1 || c.subscribed[0] != "smartguard/sensors" {
		t.Fatalf("expected subscription to telemetry topic, got %v", c.subscribed)
	}

	c.deliver(`{"weight":100,"windSpeed":1,"stability":90,"boomAngle":10,"swingSpeed":1,"energyConsumption":20}`)
	c.deliver(`{"weight":"heavy","windSpeed":1,"stability":90,"boomAngle":10,"swingSpeed":1,"energyConsumption":20}`)
	c.deliver(`{"weight":300,"windSpeed":1,"stability":90,"boomAngle":10,"swingSpeed":1,"energyConsumption":20}`)

	first := <-out
	second := <-out
	if first.Weight != 100 || second.Weight != 300 {
		t.Fatalf("expected weights 100 then 300, got %v then %v", first.Weight, second.Weight)
	}
	select {
	case extra := <-out:
		t.Fatalf("unexpected extra reading %+v", extra)
	default:
	}

	if got := m.get(metrics.DecodeErrors); got != 1 {
		t.Errorf("expected 1 decode error, got %v", got)
	}
	if got := m.get(metrics.ReadingsIngested); got != 2 {
		t.Errorf("expected 2 ingested, got %v", got)
	}
	if s.Status().LastMessageAt.IsZero() {
		t.Error("LastMessageAt should be set")
	}

	if err := s.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	wg.Wait()
	if c.IsConnected() {
		t.Error("client should be disconnected after Stop")
	}
}

func TestSourceReconnectsAndResubscribes(t *testing.T) {
	f := &clientFactory{}
	m := &countingMetrics{}
	s := newTestSource(f, m)

	ctx, cancel := context.WithCancel(context.Background())
	out := make(chan models.MRawReading, 4)
	var wg sync.WaitGroup
	if err := s.Start(ctx, out, &wg); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, connected(s))
	firstClient := f.last()

	s.onConnectionLost(firstClient, errors.New("EOF"))
	waitFor(t, func() bool { return f.count() == 2 && s.Status().Connected })

	second := f.last()
	if len(second.subscribed) != 1 {
		t.Fatalf("expected resubscribe on the new connection, got %v", second.subscribed)
	}
	if s.Status().Reconnects != 1 {
		t.Errorf("expected 1 reconnect, got %d", s.Status().Reconnects)
	}
	if m.get(metrics.UpstreamReconnect) != 1 {
		t.Errorf("expected reconnect counter 1, got %v", m.get(metrics.UpstreamReconnect))
	}

	second.deliver(validPayload)
	if r := <-out; r.Weight != 500 {
		t.Errorf("unexpected reading after reconnect %+v", r)
	}

	cancel()
	wg.Wait()
}

func TestSourceRetriesUntilBrokerAccepts(t *testing.T) {
	f := &clientFactory{failN: 3}
	s := newTestSource(f, &countingMetrics{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var wg sync.WaitGroup
	if err := s.Start(ctx, make(chan models.MRawReading, 1), &wg); err != nil {
		t.Fatalf("Start: %v", err)
	}

	waitFor(t, connected(s))
	if f.count() != 4 {
		t.Errorf("expected 4 connection attempts, got %d", f.count())
	}
	st := s.Status()
	if st.Reconnects != 3 {
		t.Errorf("expected 3 reconnects, got %d", st.Reconnects)
	}
	if st.LastError != "" {
		t.Errorf("LastError should clear once connected, got %q", st.LastError)
	}

	cancel()
	wg.Wait()
}

func TestSourceStopsPromptlyDuringConnect(t *testing.T) {
	f := &clientFactory{hangN: 1}
	s := newTestSource(f, &countingMetrics{})
	s.Config.ConnectTimeout = 5 * time.Second

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	if err := s.Start(ctx, make(chan models.MRawReading, 1), &wg); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, func() bool { return f.count() == 1 })

	cancel()
	stopped := make(chan struct{})
	go func() {
		wg.Wait()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(500 * time.Millisecond):
		t.Fatal("connection loop kept waiting on the broker after cancel")
	}
	if f.count() != 1 {
		t.Errorf("no further attempts expected after cancel, got %d", f.count())
	}
}

func TestSourceRetriesAfterConnectTimeout(t *testing.T) {
	f := &clientFactory{hangN: 1}
	s := newTestSource(f, &countingMetrics{})
	s.Config.ConnectTimeout = 20 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var wg sync.WaitGroup
	if err := s.Start(ctx, make(chan models.MRawReading, 1), &wg); err != nil {
		t.Fatalf("Start: %v", err)
	}

	waitFor(t, connected(s))
	if f.count() != 2 {
		t.Errorf("expected a second attempt after the timeout, got %d", f.count())
	}
	if s.Status().Reconnects != 1 {
		t.Errorf("expected 1 reconnect, got %d", s.Status().Reconnects)
	}

	cancel()
	wg.Wait()
}

func TestSourceDoubleStart(t *testing.T) {
	s := newTestSource(&clientFactory{}, &countingMetrics{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	out := make(chan models.MRawReading, 1)
	if err := s.Start(ctx, out, &wg); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := s.Start(ctx, out, &wg); err == nil {
		t.Error("second Start should fail")
	}
	_ = s.Stop()
	if err := s.Stop(); err == nil {
		t.Error("Stop on a stopped source should fail")
	}
	wg.Wait()
}

func TestHandlerDoesNotBlockAfterCancel(t *testing.T) {
	s := newTestSource(&clientFactory{}, &countingMetrics{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan struct{})
	go func() {
		// unbuffered and never read
		s.handleMessage(ctx, make(chan models.MRawReading), &fakeMessage{payload: []byte(validPayload)})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("handler blocked on a cancelled pipeline")
	}
}
