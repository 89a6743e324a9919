package fanout

import (
	"sync"
	"time"

	"smartguard-relay/src/models"
	"smartguard-relay/src/utils"

	"github.com/google/uuid"
)

// -----------------------------------------------------------------------------
// Session Structure
// -----------------------------------------------------------------------------

// Session is one downstream subscriber. Its queue is written by the hub's
// publish pass and read by its own delivery loop.
type Session struct {
	id          string
	remoteAddr  string
	connectedAt time.Time

	mu        sync.Mutex
	queue     *utils.RingBuffer[models.MReading]
	state     models.SessionState
	dropped   uint64
	delivered uint64

	notify    chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// -----------------------------------------------------------------------------

func newSession(remoteAddr string, capacity int) *Session {
	return &Session{
		id:          uuid.NewString(),
		remoteAddr:  remoteAddr,
		connectedAt: time.Now(),
		queue:       utils.NewRingBuffer[models.MReading](capacity),
		state:       models.SessionConnecting,
		notify:      make(chan struct{}, 1),
		done:        make(chan struct{}),
	}
}

// -----------------------------------------------------------------------------
// State transitions
// -----------------------------------------------------------------------------

func (s *Session) ID() string { return s.id }

// Activate marks the transport handshake as complete. Only Active sessions
// receive readings.
func (s *Session) Activate() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != models.SessionConnecting {
		return false
	}
	s.state = models.SessionActive
	return true
}

// BeginDrain stops new readings from being queued. The session stays
// registered until it is unsubscribed.
func (s *Session) BeginDrain() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == models.SessionConnecting || s.state == models.SessionActive {
		s.state = models.SessionDraining
	}
}

func (s *Session) State() models.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Done is closed once the session has been removed from the hub.
func (s *Session) Done() <-chan struct{} { return s.done }

// -----------------------------------------------------------------------------

func (s *Session) close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.state = models.SessionClosed
		s.queue.Clear()
		s.mu.Unlock()
		close(s.done)
	})
}

// -----------------------------------------------------------------------------
// Queue
// -----------------------------------------------------------------------------

// enqueue admits r if the session is Active. evicted reports that the oldest
// queued reading was dropped to make room.
func (s *Session) enqueue(r models.MReading) (queued, evicted bool) {
	s.mu.Lock()
	if s.state != models.SessionActive {
		s.mu.Unlock()
		return false, false
	}
	_, evicted = s.queue.Push(r)
	if evicted {
		s.dropped++
	}
	s.mu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
	return true, evicted
}

// -----------------------------------------------------------------------------

func (s *Session) next() (models.MReading, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue.Pop()
}

// -----------------------------------------------------------------------------

func (s *Session) markDelivered() {
	s.mu.Lock()
	s.delivered++
	s.mu.Unlock()
}

// -----------------------------------------------------------------------------

func (s *Session) Stats() models.MSessionStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return models.MSessionStats{
		ID:          s.id,
		State:       s.state,
		RemoteAddr:  s.remoteAddr,
		ConnectedAt: s.connectedAt,
		Pending:     s.queue.Size(),
		Capacity:    s.queue.Capacity(),
		Dropped:     s.dropped,
		Delivered:   s.delivered,
	}
}
