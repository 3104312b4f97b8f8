// Package live pushes job events to websocket viewers. Viewers only listen;
// every change goes through the HTTP actions.
package live

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"gigflow/models"
	"gigflow/mq"
)

type Client struct {
	Conn   *websocket.Conn
	Send   chan []byte
	Room   string
	UserID string
}

type broadcastMsg struct {
	Room string
	Data []byte
}

// Hub keeps one room per job. All room state is owned by Run.
type Hub struct {
	rooms      map[string]map[*Client]bool
	register   chan *Client
	unregister chan *Client
	broadcast  chan broadcastMsg
	quit       chan struct{}
	stopOnce   sync.Once
}

func NewHub() *Hub {
	return &Hub{
		rooms:      make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan broadcastMsg),
		quit:       make(chan struct{}),
	}
}

func (h *Hub) drop(c *Client) {
	conns := h.rooms[c.Room]
	if !conns[c] {
		return
	}
	delete(conns, c)
	close(c.Send)
	if len(conns) == 0 {
		delete(h.rooms, c.Room)
	}
}

func (h *Hub) Run() {
	for {
		select {
		case c := <-h.register:
			if h.rooms[c.Room] == nil {
				h.rooms[c.Room] = make(map[*Client]bool)
			}
			h.rooms[c.Room][c] = true

		case c := <-h.unregister:
			h.drop(c)

		case m := <-h.broadcast:
			for c := range h.rooms[m.Room] {
				select {
				case c.Send <- m.Data:
				default:
					// slow viewer; it refetches on reconnect
					h.drop(c)
				}
			}

		case <-h.quit:
			for _, conns := range h.rooms {
				for c := range conns {
					close(c.Send)
				}
			}
			h.rooms = map[string]map[*Client]bool{}
			return
		}
	}
}

func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.quit) })
}

func (h *Hub) Register(c *Client) {
	select {
	case h.register <- c:
	case <-h.quit:
		close(c.Send)
	}
}

func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.quit:
	}
}

func (h *Hub) Broadcast(room string, data []byte) {
	select {
	case h.broadcast <- broadcastMsg{Room: room, Data: data}:
	case <-h.quit:
	}
}

// Relay forwards engagement events from the broker into job rooms until ctx
// is done. Running it on every instance fans events out across instances.
func Relay(ctx context.Context, sub mq.Subscriber, h *Hub) {
	for payload := range sub.Subscribe(ctx, mq.EngagementChannel) {
		var ev models.JobEvent
		if err := json.Unmarshal(payload, &ev); err != nil || ev.JobID == "" {
			log.Warn().Err(err).Msg("dropping malformed job event")
			continue
		}
		h.Broadcast(ev.JobID, payload)
	}
}
