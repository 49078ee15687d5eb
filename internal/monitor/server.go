// Package monitor serves a live progress feed for a running replay: a Hub
// adapted from internal/api/websocket.go broadcasts taintfifo.ProgressEvent
// snapshots to any connected dashboard over WebSocket, and a gin router
// adapted from internal/api/routes.go exposes the same state over plain
// HTTP. The engine itself has zero dependency on this package — it only
// ever sees a func(taintfifo.ProgressEvent) passed to SetObserver.
package monitor

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/rawblock/taintfifo/internal/taintfifo"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // single-operator local dashboard, no cross-origin concern
	},
}

// Hub maintains the set of connected dashboard clients and fans out
// progress snapshots pushed onto Broadcast.
type Hub struct {
	clients   map[*websocket.Conn]bool
	broadcast chan []byte
	mutex     sync.Mutex
}

// NewHub constructs an idle Hub; call Run in its own goroutine to start
// fanning out broadcasts.
func NewHub() *Hub {
	return &Hub{
		broadcast: make(chan []byte, 256),
		clients:   make(map[*websocket.Conn]bool),
	}
}

// Run drains the broadcast channel until it is closed, pushing every
// message to every connected client.
func (h *Hub) Run() {
	for message := range h.broadcast {
		h.mutex.Lock()
		for client := range h.clients {
			_ = client.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := client.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Printf("[monitor] websocket write error: %v", err)
				client.Close()
				delete(h.clients, client)
			}
		}
		h.mutex.Unlock()
	}
}

// Subscribe upgrades an incoming request to a WebSocket connection and
// registers it with the hub.
func (h *Hub) Subscribe(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("[monitor] failed to upgrade websocket: %v", err)
		return
	}

	h.mutex.Lock()
	h.clients[conn] = true
	n := len(h.clients)
	h.mutex.Unlock()
	log.Printf("[monitor] client connected, total %d", n)

	go func() {
		defer func() {
			h.mutex.Lock()
			delete(h.clients, conn)
			n := len(h.clients)
			h.mutex.Unlock()
			conn.Close()
			log.Printf("[monitor] client disconnected, total %d", n)
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
	}()
}

// Broadcast enqueues a raw message for delivery to every connected client.
func (h *Hub) Broadcast(data []byte) { h.broadcast <- data }

// Server wires a Hub to an HTTP router and tracks the latest progress
// snapshot for the progress endpoint.
type Server struct {
	hub *Hub

	mutex    sync.Mutex
	latest   taintfifo.ProgressEvent
	maxHeigh int64
}

// NewServer builds a Server bound to maxHeight (0 meaning unbounded, echoed
// back on the progress endpoint for dashboard display).
func NewServer(maxHeight int64) *Server {
	return &Server{hub: NewHub(), maxHeigh: maxHeight}
}

// Observe is passed to taintfifo.Engine.SetObserver. It records the latest
// snapshot and broadcasts it to connected clients. Hub.broadcast holds up to
// 256 pending messages; once it is full, Observe blocks the engine until
// Run drains a slot.
func (s *Server) Observe(ev taintfifo.ProgressEvent) {
	s.mutex.Lock()
	s.latest = ev
	s.mutex.Unlock()

	payload, err := progressJSON(ev, s.maxHeigh)
	if err != nil {
		log.Printf("[monitor] failed to marshal progress event: %v", err)
		return
	}
	s.hub.Broadcast(payload)
}

// Router returns the gin engine serving /api/v1/health, /api/v1/progress
// and /api/v1/stream. Run the Hub's Run loop in its own goroutine before
// serving traffic.
func (s *Server) Router() *gin.Engine {
	r := gin.Default()

	v1 := r.Group("/api/v1")
	v1.GET("/health", s.handleHealth)
	v1.GET("/progress", s.handleProgress)
	v1.GET("/stream", s.hub.Subscribe)

	return r
}

// Run starts the hub fan-out loop in the background.
func (s *Server) Run() { go s.hub.Run() }

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "operational", "engine": "taintfifo"})
}

func (s *Server) handleProgress(c *gin.Context) {
	s.mutex.Lock()
	ev := s.latest
	s.mutex.Unlock()
	c.JSON(http.StatusOK, gin.H{
		"height":             ev.Height,
		"maxHeight":          s.maxHeigh,
		"utxoCount":          ev.UTXOCount,
		"collisions":         ev.Collisions,
		"bootstrapRemaining": ev.BootstrapRemaining,
	})
}

func progressJSON(ev taintfifo.ProgressEvent, maxHeight int64) ([]byte, error) {
	return json.Marshal(gin.H{
		"height":             ev.Height,
		"maxHeight":          maxHeight,
		"utxoCount":          ev.UTXOCount,
		"collisions":         ev.Collisions,
		"bootstrapRemaining": ev.BootstrapRemaining,
	})
}
