package api

import (
	"context"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/itskum47/FeedForge/observability"
)

const (
	maxStreamClients = 200
	statusInterval   = 2 * time.Second
	writeTimeout     = 5 * time.Second
)

// StatusHub broadcasts pipeline status snapshots to WebSocket clients. One
// poll loop serves all clients; each connection only ever receives, never
// drives, a database query.
type StatusHub struct {
	service *Service

	clients    map[*websocket.Conn]struct{}
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	mu         sync.RWMutex

	upgrader websocket.Upgrader
}

func NewStatusHub(service *Service) *StatusHub {
	return &StatusHub{
		service:    service,
		clients:    make(map[*websocket.Conn]struct{}),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Run owns the client set and the broadcast ticker until ctx is canceled.
func (h *StatusHub) Run(ctx context.Context) {
	ticker := time.NewTicker(statusInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return

		case conn := <-h.register:
			h.mu.Lock()
			if len(h.clients) >= maxStreamClients {
				h.mu.Unlock()
				conn.Close()
				log.Printf("api: stream connection rejected, %d clients connected", maxStreamClients)
				continue
			}
			h.clients[conn] = struct{}{}
			n := len(h.clients)
			h.mu.Unlock()
			observability.StreamClients.Set(float64(n))
			log.Printf("api: stream client connected, total %d", n)

		case conn := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[conn]; ok {
				delete(h.clients, conn)
				conn.Close()
			}
			n := len(h.clients)
			h.mu.Unlock()
			observability.StreamClients.Set(float64(n))
			log.Printf("api: stream client disconnected, total %d", n)

		case <-ticker.C:
			h.broadcast(ctx)
		}
	}
}

// broadcast snapshots the job state counters once and fans the payload out
// to every client. It also refreshes the per-state gauge so the API binary
// exports the same numbers it streams.
func (h *StatusHub) broadcast(ctx context.Context) {
	h.mu.RLock()
	idle := len(h.clients) == 0
	h.mu.RUnlock()
	if idle {
		return
	}

	status, err := h.service.GetJobStatus(ctx)
	if err != nil {
		log.Printf("api: collecting job status: %v", err)
		return
	}
	for state, n := range status.Counts {
		observability.JobsByState.WithLabelValues(state).Set(float64(n))
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for conn := range h.clients {
		conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := conn.WriteJSON(status); err != nil {
			log.Printf("api: stream write: %v", err)
			go h.Unregister(conn)
		}
	}
}

func (h *StatusHub) shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()
	log.Printf("api: shutting down stream hub with %d clients", len(h.clients))
	for conn := range h.clients {
		conn.Close()
	}
	h.clients = make(map[*websocket.Conn]struct{})
}

func (h *StatusHub) Unregister(conn *websocket.Conn) {
	h.unregister <- conn
}

// ServeHTTP upgrades the request and parks a read pump so client closes are
// noticed promptly.
func (h *StatusHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("api: stream upgrade: %v", err)
		return
	}
	h.register <- conn

	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				h.Unregister(conn)
				return
			}
		}
	}()
}
