package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mkendall/whosaidit/internal/logger"
	"github.com/mkendall/whosaidit/internal/models"
	"github.com/mkendall/whosaidit/internal/services"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for now
	},
}

// roomMessage targets a broadcast at one room's subscribers
type roomMessage struct {
	room string
	msg  models.WSMessage
}

// directMessage carries a resync snapshot for a single client
type directMessage struct {
	client *Client
	msg    models.WSMessage
}

// Hub maintains per-room client sets and fans broadcast messages out to a
// room's subscribers. Delivery is best-effort and at-most-once: slow clients
// are dropped, and no game state ever depends on a message arriving.
type Hub struct {
	log        logger.Logger
	rooms      map[string]map[*Client]bool
	broadcast  chan roomMessage
	direct     chan directMessage
	register   chan *Client
	unregister chan *Client
	mutex      sync.RWMutex
	board      services.BoardServicer
}

// Client is a middleman between the websocket connection and the hub
type Client struct {
	hub  *Hub
	room string
	conn *websocket.Conn
	send chan models.WSMessage
}

// New creates a new Hub instance with injected dependencies
func New(log logger.Logger, board services.BoardServicer) *Hub {
	return &Hub{
		log:        log,
		rooms:      make(map[string]map[*Client]bool),
		broadcast:  make(chan roomMessage),
		direct:     make(chan directMessage),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		board:      board,
	}
}

// Start begins the hub's main loop in a goroutine
func (h *Hub) Start() {
	go h.run()
}

// run handles client registration/unregistration and message broadcasting
func (h *Hub) run() {
	for {
		select {
		case client := <-h.register:
			h.mutex.Lock()
			if h.rooms[client.room] == nil {
				h.rooms[client.room] = make(map[*Client]bool)
			}
			h.rooms[client.room][client] = true
			subscribers := len(h.rooms[client.room])
			h.mutex.Unlock()
			h.log.Debug("Client connected", "room", client.room, "subscribers", subscribers)

			// Send a fresh snapshot so a late or reconnecting subscriber
			// resyncs without having seen earlier broadcasts. The send is
			// routed back through the hub loop so it cannot race the
			// unregister path closing the client's channel.
			go func() {
				board, err := h.board.Snapshot(context.Background(), client.room)
				if err != nil {
					return
				}
				h.direct <- directMessage{
					client: client,
					msg:    models.WSMessage{Type: models.EventRoomUpdate, Payload: board.Redacted()},
				}
			}()

		case d := <-h.direct:
			h.mutex.RLock()
			_, subscribed := h.rooms[d.client.room][d.client]
			h.mutex.RUnlock()
			if !subscribed {
				// Client went away before its snapshot resolved
				continue
			}
			select {
			case d.client.send <- d.msg:
			default:
				go func(c *Client) {
					h.unregister <- c
				}(d.client)
			}

		case client := <-h.unregister:
			h.mutex.Lock()
			if clients, ok := h.rooms[client.room]; ok {
				if _, ok := clients[client]; ok {
					delete(clients, client)
					close(client.send)
					if len(clients) == 0 {
						delete(h.rooms, client.room)
					}
				}
			}
			h.mutex.Unlock()
			h.log.Debug("Client disconnected", "room", client.room)

		case message := <-h.broadcast:
			h.mutex.RLock()
			for client := range h.rooms[message.room] {
				select {
				case client.send <- message.msg:
				default:
					// Client's send channel is full, unregister
					go func(c *Client) {
						h.unregister <- c
					}(client)
				}
			}
			h.mutex.RUnlock()
		}
	}
}

// Publish implements services.Broadcaster
func (h *Hub) Publish(roomCode, event string, payload interface{}) {
	h.broadcast <- roomMessage{
		room: roomCode,
		msg:  models.WSMessage{Type: event, Payload: payload},
	}
}

// readPump pumps messages from the websocket connection to the hub
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.log.Debug("WebSocket error", "error", err)
			}
			break
		}

		// Clients only listen; inbound frames are logged and dropped
		var msg models.WSMessage
		if err := json.Unmarshal(message, &msg); err == nil {
			c.hub.log.Debug("Received message", "type", msg.Type)
		}
	}
}

// writePump pumps messages from the hub to the websocket connection
func (c *Client) writePump() {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				// Hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}

			msgBytes, _ := json.Marshal(message)
			w.Write(msgBytes)

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// ServeWs handles websocket requests from clients. The room code comes from
// the "room" query parameter.
func (h *Hub) ServeWs(w http.ResponseWriter, r *http.Request) {
	room := r.URL.Query().Get("room")
	if room == "" {
		http.Error(w, "missing room parameter", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Error("WebSocket upgrade error", "error", err)
		return
	}

	client := &Client{
		hub:  h,
		room: room,
		conn: conn,
		send: make(chan models.WSMessage, 256),
	}
	h.register <- client

	// Allow collection of memory referenced by the caller by doing all work in new goroutines
	go client.writePump()
	go client.readPump()
}
