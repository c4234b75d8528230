package api

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"voting-ledger/models"
)

const (
	writeWait = 5 * time.Second

	// Frames a client may fall behind by before it is dropped
	clientBuffer = 64
)

// StreamMessage is the frame sent to chain stream clients
type StreamMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

type streamClient struct {
	conn *websocket.Conn
	send chan []byte
}

// StreamHub fans sealed entries out to websocket clients. Each client has
// its own buffered queue and writer so a slow reader never blocks a
// broadcast.
type StreamHub struct {
	upgrader  websocket.Upgrader
	clients   map[*streamClient]bool
	clientsMu sync.Mutex
}

func NewStreamHub() *StreamHub {
	return &StreamHub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		clients: make(map[*streamClient]bool),
	}
}

// BroadcastEntry queues e for every connected client
func (h *StreamHub) BroadcastEntry(e models.ExportedEntry) {
	h.broadcast(StreamMessage{Type: "entry", Data: e})
}

func (h *StreamHub) broadcast(msg StreamMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("Error marshaling stream message: %v", err)
		return
	}

	h.clientsMu.Lock()
	defer h.clientsMu.Unlock()

	for client := range h.clients {
		select {
		case client.send <- data:
		default:
			log.Printf("Stream client fell behind, disconnecting")
			h.removeLocked(client)
		}
	}
}

// removeLocked drops c from the set; its writer closes the connection.
// Caller holds clientsMu.
func (h *StreamHub) removeLocked(c *streamClient) {
	if h.clients[c] {
		delete(h.clients, c)
		close(c.send)
	}
}

// Clients is the number of connected clients
func (h *StreamHub) Clients() int {
	h.clientsMu.Lock()
	defer h.clientsMu.Unlock()
	return len(h.clients)
}

// Close disconnects every client
func (h *StreamHub) Close() {
	h.clientsMu.Lock()
	defer h.clientsMu.Unlock()

	for client := range h.clients {
		h.removeLocked(client)
	}
}

// serve upgrades the request and registers the client. The greeting is
// built and queued while the hub is locked, so every entry broadcast after
// it reaches the client; an entry may show up in both the greeting and the
// next frame, and clients dedupe by index.
func (h *StreamHub) serve(w http.ResponseWriter, r *http.Request, hello func() StreamMessage) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("Stream upgrade error: %v", err)
		return
	}

	greeting, err := json.Marshal(hello())
	if err != nil {
		log.Printf("Error marshaling stream greeting: %v", err)
		conn.Close()
		return
	}

	client := &streamClient{conn: conn, send: make(chan []byte, clientBuffer)}
	h.clientsMu.Lock()
	client.send <- greeting
	h.clients[client] = true
	h.clientsMu.Unlock()
	log.Printf("Stream client connected from %s", r.RemoteAddr)

	go h.writePump(client)
	go h.readPump(client)
}

func (h *StreamHub) writePump(c *streamClient) {
	defer c.conn.Close()

	for data := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			log.Printf("Error sending to stream client: %v", err)
			h.clientsMu.Lock()
			h.removeLocked(c)
			h.clientsMu.Unlock()
			// Drain so removeLocked's close ends the loop
			for range c.send {
			}
			return
		}
	}

	c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
		time.Now().Add(writeWait))
}

// readPump only detects the close; clients never send frames
func (h *StreamHub) readPump(c *streamClient) {
	defer func() {
		h.clientsMu.Lock()
		h.removeLocked(c)
		h.clientsMu.Unlock()
		log.Printf("Stream client disconnected")
	}()

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("Stream client error: %v", err)
			}
			return
		}
	}
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.hub.serve(w, r, func() StreamMessage {
		return StreamMessage{Type: "tail", Data: s.votingService.Ledger().Tail().Export()}
	})
}
