// Package runtimefeed pushes snapshot change events to connected bot
// runtimes over websockets. Runtimes join the room named after the bot they
// serve.
package runtimefeed

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"greenhouse/metrics"
	"greenhouse/models"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	sendBuffer     = 64
)

// Client is one connected runtime.
type Client struct {
	conn *websocket.Conn
	send chan []byte
	room string
}

type broadcastMsg struct {
	room string
	data []byte
}

// Listener delivers snapshot events until its context ends.
type Listener interface {
	Listen(ctx context.Context, handle func(models.SnapshotEvent)) error
}

type Hub struct {
	rooms      map[string]map[*Client]bool
	register   chan *Client
	unregister chan *Client
	broadcast  chan broadcastMsg
	stop       chan struct{}
	stopOnce   sync.Once
	mu         sync.Mutex
	log        *logrus.Logger
}

func NewHub(log *logrus.Logger) *Hub {
	return &Hub{
		rooms:      make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan broadcastMsg),
		stop:       make(chan struct{}),
		log:        log,
	}
}

// Run serves registrations and broadcasts until Stop is called.
func (h *Hub) Run() {
	for {
		select {
		case c := <-h.register:
			h.mu.Lock()
			if h.rooms[c.room] == nil {
				h.rooms[c.room] = make(map[*Client]bool)
			}
			h.rooms[c.room][c] = true
			h.mu.Unlock()
			metrics.FeedClientConnected()
			h.log.WithField("bot", c.room).Debug("runtime connected")

		case c := <-h.unregister:
			h.mu.Lock()
			h.drop(c)
			h.mu.Unlock()

		case m := <-h.broadcast:
			h.mu.Lock()
			for c := range h.rooms[m.room] {
				select {
				case c.send <- m.data:
				default:
					h.log.WithField("bot", c.room).Warn("dropping slow runtime")
					h.drop(c)
				}
			}
			h.mu.Unlock()

		case <-h.stop:
			h.mu.Lock()
			for _, clients := range h.rooms {
				for c := range clients {
					h.drop(c)
				}
			}
			h.mu.Unlock()
			return
		}
	}
}

// drop removes c and closes its send channel. Callers hold h.mu.
func (h *Hub) drop(c *Client) {
	clients := h.rooms[c.room]
	if !clients[c] {
		return
	}
	delete(clients, c)
	if len(clients) == 0 {
		delete(h.rooms, c.room)
	}
	close(c.send)
	metrics.FeedClientDisconnected()
}

// Stop disconnects every client and ends Run.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.stop) })
}

// Clients returns the number of runtimes connected for bot.
func (h *Hub) Clients(bot string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rooms[bot])
}

// Publish sends ev to the runtimes of the bot it concerns.
func (h *Hub) Publish(ev models.SnapshotEvent) {
	data, err := json.Marshal(ev)
	if err != nil {
		h.log.WithError(err).Error("marshal snapshot event")
		return
	}
	select {
	case h.broadcast <- broadcastMsg{room: ev.BotName, data: data}:
	case <-h.stop:
	}
}

// Forward relays every event l delivers to the connected runtimes until ctx
// is cancelled.
func (h *Hub) Forward(ctx context.Context, l Listener) error {
	return l.Listen(ctx, h.Publish)
}

func (h *Hub) join(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.stop:
		return false
	}
}

func (h *Hub) leave(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.stop:
	}
}
