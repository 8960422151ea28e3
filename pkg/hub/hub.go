// Package hub pushes session events to websocket clients.
package hub

import (
	"context"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	TypeState    = "state"
	TypeSyncPlay = "sync-play"
)

// Event is sent as JSON to every client of the session.
type Event struct {
	Session string `json:"session"`
	Type    string `json:"type"`
	Data    any    `json:"data,omitempty"`
}

type Hub struct {
	debug bool

	// Clients by session
	lck     sync.Mutex
	clients map[string]map[*Client]bool

	broadcast  chan Event
	register   chan *Client
	unregister chan *Client
	done       chan struct{}

	upgrader websocket.Upgrader
}

func New(debug bool) *Hub {
	return &Hub{
		debug:      debug,
		clients:    map[string]map[*Client]bool{},
		broadcast:  make(chan Event, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

func (h *Hub) log(format string, args ...any) {
	if !h.debug {
		return
	}
	format += "\n"
	log.Printf(format, args...)
}

// Run dispatches events until the context is done. Then every client is
// disconnected.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.lck.Lock()
			for _, clients := range h.clients {
				for c := range clients {
					close(c.send)
				}
			}
			h.clients = map[string]map[*Client]bool{}
			h.lck.Unlock()
			return
		case c := <-h.register:
			h.lck.Lock()
			if h.clients[c.session] == nil {
				h.clients[c.session] = map[*Client]bool{}
			}
			h.clients[c.session][c] = true
			h.lck.Unlock()
			h.log("hub: client connected to %s", c.session)
		case c := <-h.unregister:
			h.remove(c)
			h.log("hub: client disconnected from %s", c.session)
		case e := <-h.broadcast:
			h.lck.Lock()
			clients := h.clients[e.Session]
			for c := range clients {
				select {
				case c.send <- e:
				default:
					// Slow client
					close(c.send)
					delete(clients, c)
				}
			}
			if len(clients) == 0 {
				delete(h.clients, e.Session)
			}
			h.lck.Unlock()
		}
	}
}

func (h *Hub) remove(c *Client) {
	h.lck.Lock()
	defer h.lck.Unlock()
	clients, ok := h.clients[c.session]
	if !ok {
		return
	}
	if _, ok := clients[c]; !ok {
		return
	}
	delete(clients, c)
	close(c.send)
	if len(clients) == 0 {
		delete(h.clients, c.session)
	}
}

// Broadcast queues the event for the clients of its session. Events are
// dropped if the queue is full.
func (h *Hub) Broadcast(e Event) {
	select {
	case h.broadcast <- e:
	default:
		log.Printf("hub: broadcast queue full, dropping %s event for %s\n", e.Type, e.Session)
	}
}

// Clients returns the number of clients of the session.
func (h *Hub) Clients(session string) int {
	h.lck.Lock()
	defer h.lck.Unlock()
	return len(h.clients[session])
}

// Serve upgrades the request and attaches the connection to the session.
// The first event is sent right after registration.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, session string, first *Event) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	c := &Client{
		hub:     h,
		conn:    conn,
		send:    make(chan Event, 256),
		session: session,
	}
	if first != nil {
		c.send <- *first
	}
	select {
	case h.register <- c:
	case <-h.done:
		_ = conn.Close()
		return nil
	}
	go c.writePump()
	go c.readPump()
	return nil
}

type Client struct {
	hub     *Hub
	conn    *websocket.Conn
	send    chan Event
	session string
}

func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("hub: read error: %v\n", err)
			}
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case e, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(e); err != nil {
				log.Printf("hub: write error: %v\n", err)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
