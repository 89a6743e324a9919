package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"smartguard-relay/src/config"
	mqttsource "smartguard-relay/src/data_source/mqtt"
	"smartguard-relay/src/fanout"
	"smartguard-relay/src/grpc_control"
	"smartguard-relay/src/helpers"
	"smartguard-relay/src/logger"
	"smartguard-relay/src/metrics"
	"smartguard-relay/src/models"
	"smartguard-relay/src/risk"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/emptypb"
)

// -----------------------------------------------------------------------------
// Fake ingest source: decodes payloads the way the MQTT source does, without
// a broker.
// -----------------------------------------------------------------------------

type payloadSource struct {
	mu      sync.Mutex
	ctx     context.Context
	out     chan<- models.MRawReading
	stopped bool
}

func (s *payloadSource) Name() string { return "payloads" }

func (s *payloadSource) Start(ctx context.Context, out chan<- models.MRawReading, wg *sync.WaitGroup) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ctx, s.out = ctx, out
	return nil
}

func (s *payloadSource) Stop() error {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
	return nil
}

func (s *payloadSource) Status() models.MUpstreamStatus {
	return models.MUpstreamStatus{Connected: true}
}

func (s *payloadSource) emit(payload string) error {
	raw, err := mqttsource.Decode([]byte(payload), time.Now())
	if err != nil {
		return err
	}
	s.mu.Lock()
	ctx, out := s.ctx, s.out
	s.mu.Unlock()
	select {
	case out <- raw:
	case <-ctx.Done():
	}
	return nil
}

type failingSource struct{ payloadSource }

func (s *failingSource) Start(context.Context, chan<- models.MRawReading, *sync.WaitGroup) error {
	return errors.New("no broker")
}

// stoppedSource reports an error from Stop, like a source whose loop already
// exited on its own.
type stoppedSource struct{ payloadSource }

func (s *stoppedSource) Stop() error {
	return errors.New("source payloads is not running")
}

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// -----------------------------------------------------------------------------

type harness struct {
	relay  *Relay
	source *payloadSource
	hub    *fanout.Hub
	prom   *metrics.PromMetrics
}

func newHarness(t *testing.T, grpcPort int) *harness {
	t.Helper()
	cfg := config.Default()
	cfg.Host = "127.0.0.1"
	cfg.Port = 0
	cfg.GrpcHost = "127.0.0.1"
	cfg.GrpcPort = grpcPort
	cfg.LogLevel = "ERROR"

	log := logger.NewLoggerTo(io.Discard, "ERROR", "relay")
	reg := prometheus.NewRegistry()
	prom := metrics.NewPromMetrics(reg)
	hub := fanout.NewHub(cfg.FanOut, log, prom)
	ev, err := risk.NewEvaluator(cfg.Risk.Thresholds, cfg.Risk.MediumBandMode)
	if err != nil {
		t.Fatalf("NewEvaluator: %v", err)
	}
	src := &payloadSource{}

	r := New(cfg.MConfig, log, src, ev, hub, prom, reg)
	return &harness{relay: r, source: src, hub: hub, prom: prom}
}

func (h *harness) start(t *testing.T) {
	t.Helper()
	if err := h.relay.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		h.relay.Stop(ctx)
	})
}

func (h *harness) subscribe(t *testing.T, n int) []*websocket.Conn {
	t.Helper()
	conns := make([]*websocket.Conn, 0, n)
	for i := 0; i < n; i++ {
		conn, resp, err := websocket.DefaultDialer.Dial("ws://"+h.relay.Addr()+"/ws", nil)
		if err != nil {
			t.Fatalf("dial: %v", err)
		}
		resp.Body.Close()
		t.Cleanup(func() { conn.Close() })
		conns = append(conns, conn)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		active := 0
		for _, s := range h.hub.Sessions() {
			if s.State == models.SessionActive {
				active++
			}
		}
		if active == n {
			return conns
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("%d sessions did not become active", n)
	return nil
}

func readReading(t *testing.T, conn *websocket.Conn) models.MReading {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var r models.MReading
	if err := conn.ReadJSON(&r); err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	return r
}

// -----------------------------------------------------------------------------
// Tests
// -----------------------------------------------------------------------------

func TestDecodeErrorDoesNotDisturbStream(t *testing.T) {
	h := newHarness(t, -1)
	h.start(t)
	conns := h.subscribe(t, 2)

	valid := []string{
		`{"weight":500,"windSpeed":5,"stability":90,"boomAngle":30,"swingSpeed":1,"energyConsumption":40}`,
		`{"weight":950,"windSpeed":16,"stability":60,"boomAngle":30,"swingSpeed":4,"energyConsumption":40}`,
	}
	if err := h.source.emit(valid[0]); err != nil {
		t.Fatalf("emit: %v", err)
	}
	err := h.source.emit(`{"weight":"heavy","windSpeed":5,"stability":90,"boomAngle":30,"swingSpeed":1,"energyConsumption":40}`)
	if !helpers.IsDecodeError(err) {
		t.Fatalf("expected DecodeError, got %v", err)
	}
	if err := h.source.emit(valid[1]); err != nil {
		t.Fatalf("emit: %v", err)
	}

	for i, conn := range conns {
		first := readReading(t, conn)
		second := readReading(t, conn)

		if first.Sequence != 1 || second.Sequence != 2 {
			t.Errorf("subscriber %d: sequences %d, %d", i, first.Sequence, second.Sequence)
		}
		if first.RiskLevel != models.RiskLow || !first.SystemHealthy || len(first.Alerts) != 0 {
			t.Errorf("subscriber %d: unexpected first reading %+v", i, first)
		}
		want := []string{risk.AlertHighWind, risk.AlertLowStab, risk.AlertOverload, risk.AlertFastSwing}
		if second.RiskLevel != models.RiskHigh || len(second.Alerts) != len(want) {
			t.Fatalf("subscriber %d: unexpected second reading %+v", i, second)
		}
		for j := range want {
			if second.Alerts[j] != want[j] {
				t.Errorf("subscriber %d: alert %d = %q, want %q", i, j, second.Alerts[j], want[j])
			}
		}
	}

	if got := testutil.ToFloat64(prometheusCounter(t, h, metrics.ReadingsPublished)); got != 2 {
		t.Errorf("expected 2 published, got %v", got)
	}
}

// prometheusCounter re-gathers a counter value through the collector map.
func prometheusCounter(t *testing.T, h *harness, name string) prometheus.Collector {
	t.Helper()
	c, ok := h.prom.Collector(name)
	if !ok {
		t.Fatalf("no collector %s", name)
	}
	return c
}

func TestStartTwice(t *testing.T) {
	h := newHarness(t, -1)
	h.start(t)

	if err := h.relay.Start(context.Background()); !errors.Is(err, helpers.ErrAlreadyStarted) {
		t.Errorf("expected ErrAlreadyStarted, got %v", err)
	}
}

func TestStopIsIdempotent(t *testing.T) {
	h := newHarness(t, -1)

	if err := h.relay.Stop(context.Background()); err != nil {
		t.Errorf("Stop before Start: %v", err)
	}

	if err := h.relay.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	conns := h.subscribe(t, 1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.relay.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := h.relay.Stop(ctx); err != nil {
		t.Errorf("second Stop: %v", err)
	}

	if h.hub.Count() != 0 {
		t.Error("sessions should be closed on stop")
	}
	conns[0].SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conns[0].ReadMessage(); err == nil {
		t.Error("expected subscriber connection to be closed")
	}
	h.source.mu.Lock()
	stopped := h.source.stopped
	h.source.mu.Unlock()
	if !stopped {
		t.Error("source should be stopped")
	}
	if err := h.relay.Start(context.Background()); !errors.Is(err, helpers.ErrAlreadyStarted) {
		t.Errorf("restart after stop should fail, got %v", err)
	}
}

func TestStartFailsWhenSourceFails(t *testing.T) {
	h := newHarness(t, -1)
	h.relay.source = &failingSource{}

	if err := h.relay.Start(context.Background()); err == nil {
		t.Fatal("expected source error")
	}
	if h.relay.Addr() != "" {
		t.Error("no address should be reported after a failed start")
	}
}

func TestStopLogsSourceStopError(t *testing.T) {
	h := newHarness(t, -1)
	h.relay.source = &stoppedSource{}
	var out lockedBuffer
	h.relay.Logger = logger.NewLoggerTo(&out, "DEBUG", "relay")

	if err := h.relay.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.relay.Stop(ctx); err != nil {
		t.Fatalf("a source stop error should not fail shutdown: %v", err)
	}

	if !strings.Contains(out.String(), "DEBUG: Source payloads already stopped: source payloads is not running") {
		t.Errorf("expected the source stop error at debug level, got %q", out.String())
	}
}

func TestHealthEndpointThroughRelay(t *testing.T) {
	h := newHarness(t, -1)
	h.start(t)
	h.subscribe(t, 1)

	resp, err := http.Get("http://" + h.relay.Addr() + "/api/health")
	if err != nil {
		t.Fatalf("GET health: %v", err)
	}
	defer resp.Body.Close()

	var health models.MHealth
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if health.Status != "ok" || health.Sessions != 1 || !health.Upstream.Connected {
		t.Errorf("unexpected health %+v", health)
	}
}

func TestControlServiceOnEphemeralPort(t *testing.T) {
	h := newHarness(t, 0)
	h.start(t)

	addr := h.relay.ControlAddr()
	if addr == "" {
		t.Fatal("control address not bound")
	}
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	st, err := grpc_control.NewRelayControlClient(conn).GetStatus(ctx, &emptypb.Empty{})
	if err != nil {
		t.Fatalf("GetStatus: %v", err)
	}
	if st.AsMap()["status"] != "ok" {
		t.Errorf("unexpected status %v", st.AsMap())
	}
}

func TestThresholdUpdateAppliesToNextReading(t *testing.T) {
	h := newHarness(t, -1)
	h.start(t)
	conns := h.subscribe(t, 1)

	load := 400.0
	if _, err := h.relay.UpdateThresholds(models.MThresholdsUpdate{Load: &load}); err != nil {
		t.Fatalf("UpdateThresholds: %v", err)
	}
	if err := h.source.emit(`{"weight":500,"windSpeed":5,"stability":90,"boomAngle":30,"swingSpeed":1,"energyConsumption":40}`); err != nil {
		t.Fatalf("emit: %v", err)
	}

	r := readReading(t, conns[0])
	if r.RiskLevel != models.RiskHigh || len(r.Alerts) != 1 || r.Alerts[0] != risk.AlertOverload {
		t.Errorf("expected overload under the new threshold, got %+v", r)
	}
}
