// Package monitor serves a live view of a running session over HTTP and
// websockets.
package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/bosley/parley/conversation"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Config for the monitor server.
type Config struct {
	// Listen address, e.g. "localhost:8089"
	Addr string

	// Served at /metrics when set
	Metrics http.Handler

	// Origins allowed to open /ws. Empty allows any origin.
	AllowedOrigins []string
}

// Monitor publishes session status and exchanges.
type Monitor struct {
	config Config
	source Source
	log    *slog.Logger

	subscribers sync.Map // map[uuid.UUID]*wsConnection
	unsubscribe func()

	server   *http.Server
	upgrader websocket.Upgrader
}

// New creates a monitor for source and subscribes to its exchanges.
func New(cfg Config, source Source, log *slog.Logger) *Monitor {
	if log == nil {
		log = slog.Default()
	}
	m := &Monitor{
		config: cfg,
		source: source,
		log:    log,
	}
	m.upgrader = websocket.Upgrader{CheckOrigin: m.checkOrigin}

	id := source.Log().Subscribe(m.publishExchange)
	m.unsubscribe = func() { source.Log().Unsubscribe(id) }
	return m
}

func (m *Monitor) checkOrigin(r *http.Request) bool {
	if len(m.config.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	for _, o := range m.config.AllowedOrigins {
		if o == origin {
			return true
		}
	}
	return false
}

// Start serves until ctx is cancelled.
func (m *Monitor) Start(ctx context.Context) error {
	m.server = &http.Server{
		Addr:              m.config.Addr,
		Handler:           m.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		m.log.Info("Monitor listening", "addr", m.config.Addr)
		if err := m.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("monitor server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return m.Stop(shutdownCtx)
}

// Stop detaches from the session and shuts the server down.
func (m *Monitor) Stop(ctx context.Context) error {
	m.unsubscribe()

	m.subscribers.Range(func(key, value any) bool {
		value.(*wsConnection).close()
		m.subscribers.Delete(key)
		return true
	})

	if m.server != nil {
		if err := m.server.Shutdown(ctx); err != nil {
			return fmt.Errorf("failed to stop monitor server: %w", err)
		}
	}
	return nil
}

func (m *Monitor) publishExchange(ex conversation.Exchange) {
	m.broadcast(Message{
		Type:      "exchange",
		SessionID: m.source.Status().SessionID,
		Timestamp: ex.Timestamp,
		Payload:   ex,
	})
}

func (m *Monitor) broadcast(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		m.log.Error("Failed to marshal monitor message", "error", err)
		return
	}

	m.subscribers.Range(func(key, value any) bool {
		conn := value.(*wsConnection)
		if !conn.enqueue(data) {
			m.log.Warn("Failed to send to subscriber - channel full", "subscriber", key)
		}
		return true
	})
}

func (m *Monitor) register(c *wsConnection) {
	m.subscribers.Store(c.id, c)
	m.log.Debug("Monitor subscriber added", "subscriber", c.id)
}

func (m *Monitor) unregister(c *wsConnection) {
	m.subscribers.Delete(c.id)
	m.log.Debug("Monitor subscriber removed", "subscriber", c.id)
}

func newConnection(m *Monitor, conn *websocket.Conn) *wsConnection {
	return &wsConnection{
		id:      uuid.New(),
		conn:    conn,
		send:    make(chan []byte, 256),
		done:    make(chan struct{}),
		monitor: m,
	}
}

func (m *Monitor) subscriberCount() int {
	n := 0
	m.subscribers.Range(func(any, any) bool {
		n++
		return true
	})
	return n
}
