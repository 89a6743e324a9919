// Package fanout broadcasts classified readings to subscriber sessions.
//
// Each session owns a bounded drop-oldest queue. Publishing never blocks on a
// subscriber: a slow client loses its oldest readings, a stuck client is
// evicted by its own delivery loop, and nobody else notices.
package fanout

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"smartguard-relay/src/helpers"
	"smartguard-relay/src/interfaces"
	"smartguard-relay/src/logger"
	"smartguard-relay/src/metrics"
	"smartguard-relay/src/models"
)

// -----------------------------------------------------------------------------
// Hub Structure
// -----------------------------------------------------------------------------

type Hub struct {
	mu       sync.Mutex
	sessions map[string]*Session
	closed   bool

	capacity     int
	writeTimeout time.Duration
	pingPeriod   time.Duration

	Logger  *logger.Logger
	metrics interfaces.IMetrics
}

// -----------------------------------------------------------------------------

func NewHub(cfg models.MFanOutConfig, log *logger.Logger, m interfaces.IMetrics) *Hub {
	if m == nil {
		m = metrics.Noop{}
	}
	if cfg.QueueCapacity <= 0 {
		cfg.QueueCapacity = 32
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 2 * time.Second
	}
	if cfg.PingPeriod <= 0 {
		cfg.PingPeriod = 54 * time.Second
	}
	return &Hub{
		sessions:     make(map[string]*Session),
		capacity:     cfg.QueueCapacity,
		writeTimeout: cfg.WriteTimeout,
		pingPeriod:   cfg.PingPeriod,
		Logger:       log,
		metrics:      m,
	}
}

// -----------------------------------------------------------------------------
// Registration
// -----------------------------------------------------------------------------

// Subscribe registers a new session in the Connecting state.
func (h *Hub) Subscribe(remoteAddr string) (*Session, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, helpers.ErrHubClosed
	}

	s := newSession(remoteAddr, h.capacity)
	h.sessions[s.id] = s
	h.metrics.SetGauge(metrics.ActiveSessions, float64(len(h.sessions)))
	h.Logger.Debug("Session %s subscribed from %s", s.id, remoteAddr)
	return s, nil
}

// -----------------------------------------------------------------------------

// Unsubscribe removes the session and discards its queue. Unknown or already
// removed ids are ignored.
func (h *Hub) Unsubscribe(id string) {
	h.mu.Lock()
	s, ok := h.sessions[id]
	if ok {
		delete(h.sessions, id)
		h.metrics.SetGauge(metrics.ActiveSessions, float64(len(h.sessions)))
	}
	h.mu.Unlock()

	if ok {
		s.close()
		h.Logger.Debug("Session %s unsubscribed", id)
	}
}

// -----------------------------------------------------------------------------
// Broadcast
// -----------------------------------------------------------------------------

// Publish queues a private copy of reading on every Active session. The hub
// lock is held for the whole pass so concurrent publishers cannot interleave.
func (h *Hub) Publish(reading models.MReading) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	queued := 0
	for _, s := range h.sessions {
		ok, evicted := s.enqueue(reading.Clone())
		if !ok {
			continue
		}
		queued++
		if evicted {
			h.metrics.IncCounter(metrics.ReadingsDropped, 1)
		}
	}
	return queued
}

// -----------------------------------------------------------------------------
// Delivery loop
// -----------------------------------------------------------------------------

// Serve drains session into transport until the session is removed, ctx is
// cancelled, or a write fails. A failed or timed out write evicts only this
// session. The transport is always closed on return.
func (h *Hub) Serve(ctx context.Context, session *Session, transport interfaces.ISubscriberTransport) error {
	defer h.Unsubscribe(session.id)
	defer transport.Close()

	ticker := time.NewTicker(h.pingPeriod)
	defer ticker.Stop()

	for {
		for {
			reading, ok := session.next()
			if !ok {
				break
			}
			if err := h.write(session, transport, reading); err != nil {
				return h.evict(session, err)
			}
			session.markDelivered()
		}

		select {
		case <-ctx.Done():
			return nil
		case <-session.done:
			return nil
		case <-session.notify:
		case <-ticker.C:
			if err := h.ping(session, transport); err != nil {
				return h.evict(session, err)
			}
		}
	}
}

// -----------------------------------------------------------------------------

// write runs the transport call on its own goroutine so a transport that
// ignores its deadline still cannot hold the loop past writeTimeout.
func (h *Hub) write(s *Session, t interfaces.ISubscriberTransport, r models.MReading) error {
	start := time.Now()
	deadline := start.Add(h.writeTimeout)

	err := h.bounded(s, deadline, func() error { return t.WriteReading(r, deadline) })
	if err == nil {
		h.metrics.ObserveLatency(metrics.WriteLatency, time.Since(start).Seconds())
	}
	return err
}

// -----------------------------------------------------------------------------

func (h *Hub) ping(s *Session, t interfaces.ISubscriberTransport) error {
	deadline := time.Now().Add(h.writeTimeout)
	return h.bounded(s, deadline, func() error { return t.Ping(deadline) })
}

// -----------------------------------------------------------------------------

func (h *Hub) bounded(s *Session, deadline time.Time, fn func() error) error {
	result := make(chan error, 1)
	go func() { result <- fn() }()

	timer := time.NewTimer(time.Until(deadline))
	defer timer.Stop()

	select {
	case err := <-result:
		if err == nil {
			return nil
		}
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			return helpers.NewSubscriberTimeoutError(s.id)
		}
		return helpers.NewSubscriberWriteError(s.id, err)
	case <-timer.C:
		return helpers.NewSubscriberTimeoutError(s.id)
	}
}

// -----------------------------------------------------------------------------

func (h *Hub) evict(s *Session, err error) error {
	h.metrics.IncCounter(metrics.SessionsEvicted, 1)
	if helpers.IsSubscriberTimeout(err) {
		h.Logger.Warning("Evicting stalled session %s: %v", s.id, err)
	} else {
		h.Logger.Info("Evicting session %s: %v", s.id, err)
	}
	return err
}

// -----------------------------------------------------------------------------

type timeoutError interface{ Timeout() bool }

func isTimeout(err error) bool {
	var te timeoutError
	return errors.As(err, &te) && te.Timeout()
}

// -----------------------------------------------------------------------------
// Introspection
// -----------------------------------------------------------------------------

func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

// -----------------------------------------------------------------------------

// Sessions returns stats for every live session, oldest first.
func (h *Hub) Sessions() []models.MSessionStats {
	h.mu.Lock()
	list := make([]*Session, 0, len(h.sessions))
	for _, s := range h.sessions {
		list = append(list, s)
	}
	h.mu.Unlock()

	out := make([]models.MSessionStats, 0, len(list))
	for _, s := range list {
		out = append(out, s.Stats())
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ConnectedAt.Before(out[j].ConnectedAt)
	})
	return out
}

// -----------------------------------------------------------------------------

// Close removes every session and refuses new subscriptions. Queued readings
// are discarded.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	list := make([]*Session, 0, len(h.sessions))
	for id, s := range h.sessions {
		list = append(list, s)
		delete(h.sessions, id)
	}
	h.metrics.SetGauge(metrics.ActiveSessions, 0)
	h.mu.Unlock()

	for _, s := range list {
		s.BeginDrain()
		s.close()
	}
	h.Logger.Info("Hub closed, %d sessions released", len(list))
}
