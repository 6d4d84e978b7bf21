package chat

import (
	"log/slog"
)

// Hub routes messages between the clients of one process, partitioned by
// dinner room. All state is owned by the run goroutine; the channels are
// the only way in.
type Hub struct {
	rooms      map[string]map[*Client]bool
	register   chan *Client
	unregister chan *Client
	broadcast  chan outbound
	logger     *slog.Logger
}

type outbound struct {
	dinnerID string
	payload  []byte
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		rooms:      make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan outbound),
		logger:     logger,
	}
}

// Run owns the room map until ctx-free shutdown; it exits when both
// channels are drained and closed, which in practice means process exit.
func (h *Hub) Run() {
	for {
		select {
		case c := <-h.register:
			room := h.rooms[c.dinnerID]
			if room == nil {
				room = make(map[*Client]bool)
				h.rooms[c.dinnerID] = room
			}
			room[c] = true
			h.logger.Debug("chat client joined", "dinner_id", c.dinnerID, "user_id", c.userID)

		case c := <-h.unregister:
			if room, ok := h.rooms[c.dinnerID]; ok {
				if _, ok := room[c]; ok {
					delete(room, c)
					close(c.send)
					if len(room) == 0 {
						delete(h.rooms, c.dinnerID)
					}
				}
			}

		case msg := <-h.broadcast:
			for c := range h.rooms[msg.dinnerID] {
				select {
				case c.send <- msg.payload:
				default:
					// Slow consumer; drop it rather than block the hub.
					delete(h.rooms[msg.dinnerID], c)
					close(c.send)
				}
			}
		}
	}
}

// Broadcast queues a payload for every client in the dinner's room.
func (h *Hub) Broadcast(dinnerID string, payload []byte) {
	h.broadcast <- outbound{dinnerID: dinnerID, payload: payload}
}
