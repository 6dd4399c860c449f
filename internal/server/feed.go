package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"stardock/internal/domain"
	"stardock/internal/engine"
	"stardock/internal/journal"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	sendBuffer = 256
)

// FeedMessage is the envelope pushed to every feed subscriber.
type FeedMessage struct {
	Type    string              `json:"type"`
	Tick    int64               `json:"tick"`
	Payload domain.JournalEntry `json:"payload"`
}

type feedClient struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

// Hub fans journal entries out to websocket subscribers. Run must be running
// before ServeWS or Publish are called.
type Hub struct {
	clients    map[*feedClient]bool
	broadcast  chan []byte
	register   chan *feedClient
	unregister chan *feedClient
	done       chan struct{}
	log        *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		clients:    map[*feedClient]bool{},
		broadcast:  make(chan []byte, 64),
		register:   make(chan *feedClient),
		unregister: make(chan *feedClient),
		done:       make(chan struct{}),
		log:        logger,
	}
}

// Run owns the client set until ctx ends, then closes every connection.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			return
		case c := <-h.register:
			h.clients[c] = true
			h.log.Debug("feed subscriber joined", "subscribers", len(h.clients))
		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
		case msg := <-h.broadcast:
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					// slow reader; drop it rather than stall the feed
					close(c.send)
					delete(h.clients, c)
				}
			}
		}
	}
}

// Publish queues one journal entry for every subscriber.
func (h *Hub) Publish(entry domain.JournalEntry) error {
	msg, err := json.Marshal(FeedMessage{Type: entry.Type, Tick: entry.Tick, Payload: entry})
	if err != nil {
		return err
	}
	select {
	case h.broadcast <- msg:
	case <-h.done:
	}
	return nil
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// ServeWS upgrades the request and subscribes it to the feed.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("feed upgrade failed", "err", err)
		return
	}
	c := &feedClient{hub: h, conn: conn, send: make(chan []byte, sendBuffer)}
	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return
	}
	go c.writePump()
	go c.readPump()
}

// readPump only watches for the peer going away; the feed is one-way.
func (c *feedClient) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()
	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.log.Debug("feed read error", "err", err)
			}
			return
		}
	}
}

func (c *feedClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
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

// Relay polls the journal every interval and publishes entries appended since
// the relay started. It returns when ctx ends.
func Relay(ctx context.Context, e engine.Engine, h *Hub, interval time.Duration) error {
	var last int64
	tail, err := e.Journal.Tail(ctx, e.DB, 1)
	if err != nil {
		return err
	}
	for _, entry := range tail {
		last = max(last, entry.ID)
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
		}
		entries, err := e.History(ctx, journal.Filter{AfterID: last, Limit: 500})
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			h.log.Warn("feed relay read failed", "err", err)
			continue
		}
		for _, entry := range entries {
			if err := h.Publish(entry); err != nil {
				return err
			}
			last = entry.ID
		}
	}
}
