package monitor

import (
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/bosley/parley/conversation"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10
)

type wsConnection struct {
	id        uuid.UUID
	conn      *websocket.Conn
	send      chan []byte
	done      chan struct{}
	monitor   *Monitor
	closeOnce sync.Once
}

// Handler returns the monitor's router.
func (m *Monitor) Handler() http.Handler {
	router := mux.NewRouter()

	router.HandleFunc("/api/session", m.handleSession).Methods("GET")
	router.HandleFunc("/api/exchanges", m.handleExchanges).Methods("GET")
	router.HandleFunc("/api/exchanges/{seq:[0-9]+}", m.handleExchange).Methods("GET")
	router.HandleFunc("/ws", m.handleWebSocket)
	if m.config.Metrics != nil {
		router.Handle("/metrics", m.config.Metrics).Methods("GET")
	}
	return router
}

func (m *Monitor) handleSession(w http.ResponseWriter, r *http.Request) {
	m.writeJSON(w, m.source.Status())
}

// handleExchanges returns every exchange, or those after ?since=<seq>.
func (m *Monitor) handleExchanges(w http.ResponseWriter, r *http.Request) {
	since := 0
	if v := r.URL.Query().Get("since"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			http.Error(w, "Invalid since parameter", http.StatusBadRequest)
			return
		}
		since = n
	}

	exchanges := make([]conversation.Exchange, 0)
	for _, ex := range m.source.Log().Exchanges() {
		if ex.Seq > since {
			exchanges = append(exchanges, ex)
		}
	}

	m.log.Debug("Sending exchanges", "count", len(exchanges), "since", since)
	m.writeJSON(w, exchanges)
}

func (m *Monitor) handleExchange(w http.ResponseWriter, r *http.Request) {
	seq, err := strconv.Atoi(mux.Vars(r)["seq"])
	if err != nil {
		http.Error(w, "Invalid exchange number", http.StatusBadRequest)
		return
	}

	for _, ex := range m.source.Log().Exchanges() {
		if ex.Seq == seq {
			m.writeJSON(w, ex)
			return
		}
	}
	http.Error(w, "Exchange not found", http.StatusNotFound)
}

func (m *Monitor) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		m.log.Error("Failed to encode response", "error", err)
	}
}

func (m *Monitor) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		m.log.Error("WebSocket upgrade failed", "error", err)
		return
	}

	wsConn := newConnection(m, conn)
	m.register(wsConn)

	go wsConn.writePump()
	go wsConn.readPump()
}

// enqueue hands data to the write pump without blocking. It reports false
// when the buffer is full or the connection has closed.
func (c *wsConnection) enqueue(data []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *wsConnection) close() {
	c.closeOnce.Do(func() { close(c.done) })
}

func (c *wsConnection) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
			return

		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *wsConnection) readPump() {
	defer func() {
		c.monitor.unregister(c)
		c.close()
	}()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, _, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.monitor.log.Error("WebSocket read error", "error", err)
			}
			break
		}
	}
}
