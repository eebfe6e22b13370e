package socket

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jpillora/backoff"

	"marketsync/config"
	"marketsync/internal/metrics"
	"marketsync/logger"
	"marketsync/models"
)

// State is the transport connection state.
type State int32

const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "disconnected"
	}
}

// Manager owns the single persistent websocket connection to the market data
// server. Outbound subscribe/unsubscribe frames sent while the transport is
// down are queued and flushed in order once the connection is up. Unexpected
// closes trigger reconnection with jittered exponential backoff; after every
// reconnect the OnReconnect hook runs so the subscription registry can replay
// active topics.
type Manager struct {
	url          string
	pingInterval time.Duration
	writeTimeout time.Duration
	backoffCfg   config.BackoffConfig
	dialer       *websocket.Dialer
	log          *logger.Log

	mu          sync.Mutex
	state       State
	conn        *websocket.Conn
	queue       []models.SubscribeRequest
	closed      bool
	handler     func(models.Envelope)
	stateSubs   []func(State)
	onReconnect func()

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewManager creates a manager for the configured stream endpoint.
func NewManager(cfg config.StreamConfig) *Manager {
	return &Manager{
		url:          cfg.URL,
		pingInterval: cfg.PingInterval,
		writeTimeout: cfg.WriteTimeout,
		backoffCfg:   cfg.Backoff,
		dialer:       &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		log:          logger.GetLogger(),
		state:        Disconnected,
	}
}

// OnMessage registers the inbound frame dispatcher. Must be called before
// Connect.
func (m *Manager) OnMessage(handler func(models.Envelope)) {
	m.mu.Lock()
	m.handler = handler
	m.mu.Unlock()
}

// OnStateChange registers a callback observing connection state transitions.
func (m *Manager) OnStateChange(fn func(State)) {
	m.mu.Lock()
	m.stateSubs = append(m.stateSubs, fn)
	m.mu.Unlock()
}

// OnReconnect registers the hook invoked after every successful reconnect
// that follows an unexpected close.
func (m *Manager) OnReconnect(fn func()) {
	m.mu.Lock()
	m.onReconnect = fn
	m.mu.Unlock()
}

// State returns the current connection state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Connect starts the connection loop. Idempotent: a manager that is already
// connecting or connected is left alone.
func (m *Manager) Connect(ctx context.Context) {
	m.mu.Lock()
	if m.state != Disconnected {
		m.mu.Unlock()
		return
	}
	m.closed = false
	m.setStateLocked(Connecting)
	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.mu.Unlock()

	m.wg.Add(1)
	go m.run(runCtx)
}

// Disconnect closes the transport and stops the connection loop. The
// subscription registry is untouched so a later Connect can resubscribe
// everything.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	if m.closed && m.state == Disconnected {
		m.mu.Unlock()
		return
	}
	m.closed = true
	if m.cancel != nil {
		m.cancel()
	}
	if m.conn != nil {
		m.conn.Close()
	}
	m.mu.Unlock()

	m.wg.Wait()

	m.mu.Lock()
	m.setStateLocked(Disconnected)
	m.mu.Unlock()
	m.log.WithComponent("socket_manager").Info("transport disconnected")
}

// Send transmits a subscribe/unsubscribe control frame. While the transport
// is connecting or down the frame is queued in registration order and flushed
// on connect; send never fails with a transport-closed error.
func (m *Manager) Send(topic, action string) error {
	req := models.SubscribeRequest{Action: action, Topic: topic}

	m.mu.Lock()
	if m.state != Connected || m.conn == nil {
		m.queue = append(m.queue, req)
		m.mu.Unlock()
		m.log.WithComponent("socket_manager").WithFields(logger.Fields{
			"topic":  topic,
			"action": action,
		}).Debug("transport not connected, queued control frame")
		return nil
	}
	conn := m.conn
	err := m.writeLocked(conn, req)
	m.mu.Unlock()
	if err != nil {
		m.log.WithComponent("socket_manager").WithFields(logger.Fields{"topic": topic}).WithError(err).Warn("failed to send control frame")
	}
	return err
}

func (m *Manager) writeLocked(conn *websocket.Conn, v interface{}) error {
	if m.writeTimeout > 0 {
		conn.SetWriteDeadline(time.Now().Add(m.writeTimeout))
	}
	return conn.WriteJSON(v)
}

// run dials, pumps inbound frames and reconnects with backoff until the
// context is cancelled or Disconnect is called.
func (m *Manager) run(ctx context.Context) {
	defer m.wg.Done()

	log := m.log.WithComponent("socket_manager")
	b := &backoff.Backoff{
		Min:    m.backoffCfg.Min,
		Max:    m.backoffCfg.Max,
		Factor: m.backoffCfg.Factor,
		Jitter: true,
	}
	attempt := 0

	for {
		if ctx.Err() != nil {
			return
		}

		conn, _, err := m.dialer.DialContext(ctx, m.url, nil)
		if err != nil {
			delay := b.Duration()
			log.WithError(err).WithFields(logger.Fields{"retry_in": delay.String()}).Warn("failed to connect websocket, retrying")
			select {
			case <-time.After(delay):
				continue
			case <-ctx.Done():
				return
			}
		}
		b.Reset()

		m.mu.Lock()
		m.conn = conn
		m.setStateLocked(Connected)
		pending := m.queue
		m.queue = nil
		reconnectHook := m.onReconnect
		m.mu.Unlock()

		log.WithFields(logger.Fields{"url": m.url, "queued_frames": len(pending)}).Info("websocket connected")

		for _, req := range pending {
			m.mu.Lock()
			err := m.writeLocked(conn, req)
			m.mu.Unlock()
			if err != nil {
				log.WithError(err).Warn("failed to flush queued frame")
				break
			}
		}

		if attempt > 0 && reconnectHook != nil {
			metrics.IncReconnects()
			reconnectHook()
		}
		attempt++

		m.readLoop(ctx, conn)

		m.mu.Lock()
		m.conn = nil
		wasClosed := m.closed
		if !wasClosed {
			m.setStateLocked(Connecting)
		} else {
			m.setStateLocked(Disconnected)
		}
		m.mu.Unlock()

		if wasClosed || ctx.Err() != nil {
			return
		}
		log.Warn("websocket closed unexpectedly, reconnecting")
	}
}

// readLoop pumps frames from one connection until it fails. A ping keepalive
// runs alongside; within one connection frames are dispatched strictly in
// delivery order.
func (m *Manager) readLoop(ctx context.Context, conn *websocket.Conn) {
	log := m.log.WithComponent("socket_manager")

	done := make(chan struct{})
	defer close(done)

	if m.pingInterval > 0 {
		go func() {
			ticker := time.NewTicker(m.pingInterval)
			defer ticker.Stop()
			for {
				select {
				case <-done:
					return
				case <-ctx.Done():
					return
				case <-ticker.C:
					conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(m.writeTimeout))
				}
			}
		}()
	}

	for {
		var env models.Envelope
		if err := conn.ReadJSON(&env); err != nil {
			if ctx.Err() == nil && !m.isClosed() {
				log.WithError(err).Warn("websocket read failed")
			}
			conn.Close()
			return
		}
		metrics.IncFramesReceived()

		m.mu.Lock()
		handler := m.handler
		m.mu.Unlock()
		if handler != nil {
			handler(env)
		} else {
			metrics.IncFramesDropped()
		}
	}
}

func (m *Manager) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// setStateLocked updates the state and notifies observers. Callers must hold
// m.mu; observer callbacks run without the lock.
func (m *Manager) setStateLocked(next State) {
	if m.state == next {
		return
	}
	m.state = next
	subs := make([]func(State), len(m.stateSubs))
	copy(subs, m.stateSubs)

	go func() {
		for _, fn := range subs {
			fn(next)
		}
	}()
}
