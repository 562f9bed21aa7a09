package api

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"lodmesh/internal/engine"
	"lodmesh/internal/render"
)

const (
	// MaxWSConnectionsTotal is the maximum number of WebSocket connections allowed
	MaxWSConnectionsTotal = 500

	// MaxWSConnectionsPerIP is the maximum WebSocket connections per IP
	MaxWSConnectionsPerIP = 10

	meshDrainInterval  = 50 * time.Millisecond
	statsInterval      = time.Second
	meshDrainBatchSize = 256
	writeTimeout       = 5 * time.Second
)

// wsClient tracks a WebSocket connection with its source IP
type wsClient struct {
	conn     *websocket.Conn
	ip       string
	snapshot MeshSnapshot
}

// MeshSnapshot returns the current meshes and the store sequence they
// reflect.
type MeshSnapshot func() (uint64, []*render.Mesh)

// eventReset replaces a viewer's whole mesh set. Viewers ignore any later
// present or retract whose sequence is not above the reset sequence or the
// last sequence seen for that chunk.
const eventReset = "mesh_reset"

// wsMessage is the envelope every websocket frame uses.
type wsMessage struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

// meshPayload is the wire form of a presented mesh.
type meshPayload struct {
	ChunkID  int       `json:"chunkId"`
	Sequence uint64    `json:"sequence"`
	Vertices []float32 `json:"vertices,omitempty"`
	Indices  []uint32  `json:"indices,omitempty"`
}

// resetPayload is the wire form of a full mesh set.
type resetPayload struct {
	Sequence uint64        `json:"sequence"`
	Meshes   []meshPayload `json:"meshes"`
}

func resetMessage(seq uint64, meshes []*render.Mesh) resetPayload {
	p := resetPayload{Sequence: seq, Meshes: make([]meshPayload, len(meshes))}
	for i, m := range meshes {
		p.Meshes[i] = meshPayload{ChunkID: m.ChunkID, Sequence: m.Sequence, Vertices: m.Vertices, Indices: m.Indices}
	}
	return p
}

// HubConfig sets connection caps and the websocket origin policy.
type HubConfig struct {
	MaxConnections int
	MaxPerIP       int
	Origins        OriginPolicy
}

// WebSocketHub streams mesh changes to connected viewers with DoS protection.
type WebSocketHub struct {
	clients    map[*websocket.Conn]*wsClient
	broadcast  chan []byte
	register   chan *wsClient
	unregister chan *websocket.Conn
	mu         sync.RWMutex

	maxConnections int
	wsLimiter      *WebSocketRateLimiter
	upgrader       websocket.Upgrader

	stopChan chan struct{}
	stopOnce sync.Once
}

// NewWebSocketHub creates a hub. Zero caps fall back to the package limits.
func NewWebSocketHub(cfg HubConfig) *WebSocketHub {
	if cfg.MaxConnections <= 0 {
		cfg.MaxConnections = MaxWSConnectionsTotal
	}
	if cfg.MaxPerIP <= 0 {
		cfg.MaxPerIP = MaxWSConnectionsPerIP
	}

	h := &WebSocketHub{
		clients:        make(map[*websocket.Conn]*wsClient),
		broadcast:      make(chan []byte, 256),
		register:       make(chan *wsClient),
		unregister:     make(chan *websocket.Conn),
		maxConnections: cfg.MaxConnections,
		wsLimiter:      NewWebSocketRateLimiter(cfg.MaxPerIP),
		stopChan:       make(chan struct{}),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 64 * 1024, // mesh frames are large
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if cfg.Origins.Allowed(origin) {
				return true
			}
			log.Printf("⚠️ WebSocket connection rejected from origin: %s", origin)
			RecordConnectionRejected("origin")
			return false
		},
	}
	return h
}

// Run owns the client set. Every write to a connection happens here, after
// registration.
func (h *WebSocketHub) Run() {
	for {
		select {
		case client := <-h.register:
			// Synced here so no broadcast can slip between the snapshot and
			// registration.
			if err := h.sync(client); err != nil {
				log.Printf("⚠️ Viewer sync failed for %s: %v", client.ip, err)
				client.conn.Close()
				h.wsLimiter.Release(client.ip)
				continue
			}

			h.mu.Lock()
			h.clients[client.conn] = client
			count := len(h.clients)
			h.mu.Unlock()

			log.Printf("📱 Viewer connected from %s (%d total)", client.ip, count)
			UpdateWSConnections(count)

		case conn := <-h.unregister:
			h.mu.Lock()
			h.drop(conn)
			count := len(h.clients)
			h.mu.Unlock()

			log.Printf("📱 Viewer disconnected (%d remaining)", count)
			UpdateWSConnections(count)

		case message := <-h.broadcast:
			h.mu.Lock()
			for conn := range h.clients {
				conn.SetWriteDeadline(time.Now().Add(writeTimeout))
				if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
					h.drop(conn)
				}
			}
			count := len(h.clients)
			h.mu.Unlock()
			UpdateWSConnections(count)
			IncrementWSMessages()

		case <-h.stopChan:
			h.mu.Lock()
			for conn := range h.clients {
				h.drop(conn)
			}
			h.mu.Unlock()
			UpdateWSConnections(0)
			return
		}
	}
}

// sync sends a not yet registered client the current mesh set.
func (h *WebSocketHub) sync(client *wsClient) error {
	if client.snapshot == nil {
		return nil
	}
	client.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return client.conn.WriteJSON(wsMessage{Event: eventReset, Data: resetMessage(client.snapshot())})
}

// drop closes and forgets a connection. Caller holds h.mu.
func (h *WebSocketHub) drop(conn *websocket.Conn) {
	if client, ok := h.clients[conn]; ok {
		h.wsLimiter.Release(client.ip)
		delete(h.clients, conn)
		conn.Close()
	}
}

// Stop disconnects every client and ends Run and the broadcast loop.
func (h *WebSocketHub) Stop() {
	h.stopOnce.Do(func() {
		close(h.stopChan)
	})
}

// Broadcast queues an event for all connected clients. It drops the event
// when the hub is backed up, so it only suits events a later one supersedes.
func (h *WebSocketHub) Broadcast(event string, data interface{}) bool {
	jsonBytes, err := json.Marshal(wsMessage{Event: event, Data: data})
	if err != nil {
		return false
	}

	select {
	case h.broadcast <- jsonBytes:
		return true
	default:
		RecordBroadcastDropped()
		return false
	}
}

// broadcastWait queues an event, waiting while the hub is backed up. It
// returns false if the hub stops first.
func (h *WebSocketHub) broadcastWait(event string, data interface{}) bool {
	jsonBytes, err := json.Marshal(wsMessage{Event: event, Data: data})
	if err != nil {
		log.Printf("⚠️ Failed to encode %s: %v", event, err)
		return true
	}

	select {
	case h.broadcast <- jsonBytes:
		return true
	case <-h.stopChan:
		return false
	}
}

// ClientCount returns the number of connected clients
func (h *WebSocketHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// StartBroadcastLoop forwards mesh events from the store's queue and
// periodic stats from the engine snapshot. The queue is drained even with no
// clients so producers never see it full for long; a client registering
// later gets the current set instead.
func (h *WebSocketHub) StartBroadcastLoop(store *render.MeshStore, snapshot func() *engine.Snapshot) {
	go func() {
		drain := time.NewTicker(meshDrainInterval)
		defer drain.Stop()
		stats := time.NewTicker(statsInterval)
		defer stats.Stop()

		buf := make([]render.Event, meshDrainBatchSize)
		var lost uint64
		if events := store.Events(); events != nil {
			lost = events.Dropped()
		}

		for {
			select {
			case <-h.stopChan:
				return

			case <-drain.C:
				if !h.forwardMeshes(store, buf, &lost) {
					return
				}

			case <-stats.C:
				if h.ClientCount() == 0 || snapshot == nil {
					continue
				}
				h.Broadcast("lod_stats", snapshot())
			}
		}
	}()
}

// forwardMeshes drains the mesh queue into the hub, waiting while the hub
// is backed up. When the queue itself overflowed since the last call, every
// client gets the full mesh set again. It returns false once the hub stops.
func (h *WebSocketHub) forwardMeshes(store *render.MeshStore, buf []render.Event, lost *uint64) bool {
	events := store.Events()
	if events == nil {
		return true
	}

	for {
		n := events.DrainTo(buf)
		if n == 0 {
			break
		}
		if h.ClientCount() == 0 {
			continue
		}
		for _, ev := range buf[:n] {
			if !h.broadcastWait(ev.Kind.String(), eventPayload(ev)) {
				return false
			}
		}
	}

	dropped := events.Dropped()
	if dropped == *lost {
		return true
	}
	log.Printf("⚠️ Mesh queue overflowed (%d events lost), resyncing viewers", dropped-*lost)
	*lost = dropped
	if h.ClientCount() == 0 {
		return true
	}
	RecordMeshResync()
	return h.broadcastWait(eventReset, resetMessage(store.Snapshot()))
}

func eventPayload(ev render.Event) meshPayload {
	p := meshPayload{ChunkID: ev.ChunkID, Sequence: ev.Sequence}
	if ev.Mesh != nil {
		p.Vertices = ev.Mesh.Vertices
		p.Indices = ev.Mesh.Indices
	}
	return p
}

// HandleWebSocket upgrades a viewer connection and registers it for the live
// stream. The hub sends it the current mesh set from snapshot first.
func (h *WebSocketHub) HandleWebSocket(w http.ResponseWriter, r *http.Request, snapshot MeshSnapshot) {
	ip := GetClientIP(r)

	h.mu.RLock()
	totalConnections := len(h.clients)
	h.mu.RUnlock()

	if totalConnections >= h.maxConnections {
		log.Printf("⚠️ WebSocket connection rejected: total limit reached (%d)", totalConnections)
		RecordConnectionRejected("ws_total_limit")
		http.Error(w, "Too many connections", http.StatusServiceUnavailable)
		return
	}

	if !h.wsLimiter.Allow(ip) {
		log.Printf("⚠️ WebSocket connection rejected from %s: per-IP limit reached", ip)
		RecordConnectionRejected("ws_ip_limit")
		http.Error(w, "Too many connections from your IP", http.StatusTooManyRequests)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade error: %v", err)
		h.wsLimiter.Release(ip)
		return
	}

	select {
	case h.register <- &wsClient{conn: conn, ip: ip, snapshot: snapshot}:
	case <-h.stopChan:
		conn.Close()
		h.wsLimiter.Release(ip)
		return
	}

	// Viewers only listen; reading detects the close.
	go func() {
		defer func() {
			select {
			case h.unregister <- conn:
			case <-h.stopChan:
			}
		}()

		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}
