package relay

import (
	"context"

	"support-chat-backend/internal/relay/event"

	"github.com/rs/zerolog/log"
)

// Frame is an encoded envelope addressed to a room. Except names a session
// that must not receive it.
type Frame struct {
	Room    string
	Except  string
	Payload []byte
}

type membership struct {
	sessionID string
	room      string
}

// Hub owns room membership. All state is confined to the Run goroutine.
type Hub struct {
	rooms   map[string]map[string]*Client
	clients map[string]*Client

	register   chan *Client
	unregister chan *Client
	join       chan membership
	leave      chan membership
	broadcast  chan Frame
	query      chan func()
	done       chan struct{}
}

func NewHub() *Hub {
	return &Hub{
		rooms:      make(map[string]map[string]*Client),
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		join:       make(chan membership),
		leave:      make(chan membership),
		broadcast:  make(chan Frame, 256),
		query:      make(chan func()),
		done:       make(chan struct{}),
	}
}

// Run processes hub operations until ctx is cancelled, then disconnects every
// client.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			for _, client := range h.clients {
				h.remove(client)
			}
			return

		case client := <-h.register:
			h.clients[client.ID] = client
			h.add(client, event.SessionRoom(client.ID))
			incConnections()

		case client := <-h.unregister:
			if current, ok := h.clients[client.ID]; ok && current == client {
				h.remove(client)
			}

		case m := <-h.join:
			if client, ok := h.clients[m.sessionID]; ok {
				h.add(client, m.room)
			}

		case m := <-h.leave:
			if client, ok := h.clients[m.sessionID]; ok {
				h.drop(client, m.room)
			}

		case frame := <-h.broadcast:
			h.deliver(frame)

		case fn := <-h.query:
			fn()
		}
	}
}

func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.done:
	}
}

func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

func (h *Hub) Join(sessionID, room string) {
	select {
	case h.join <- membership{sessionID: sessionID, room: room}:
	case <-h.done:
	}
}

func (h *Hub) Leave(sessionID, room string) {
	select {
	case h.leave <- membership{sessionID: sessionID, room: room}:
	case <-h.done:
	}
}

// Broadcast queues a frame for fan-out. Delivery is best effort.
func (h *Hub) Broadcast(frame Frame) {
	select {
	case h.broadcast <- frame:
	case <-h.done:
	}
}

// Members lists the sessions currently in room.
func (h *Hub) Members(room string) []string {
	var out []string
	h.do(func() {
		for id := range h.rooms[room] {
			out = append(out, id)
		}
	})
	return out
}

func (h *Hub) RoomCount() int {
	var n int
	h.do(func() { n = len(h.rooms) })
	return n
}

func (h *Hub) do(fn func()) {
	finished := make(chan struct{})
	select {
	case h.query <- func() { fn(); close(finished) }:
		<-finished
	case <-h.done:
	}
}

func (h *Hub) add(client *Client, room string) {
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[string]*Client)
		h.rooms[room] = members
		setRooms(len(h.rooms))
	}
	members[client.ID] = client
	client.rooms[room] = struct{}{}
}

func (h *Hub) drop(client *Client, room string) {
	members, ok := h.rooms[room]
	if !ok {
		return
	}
	delete(members, client.ID)
	delete(client.rooms, room)
	if len(members) == 0 {
		delete(h.rooms, room)
		setRooms(len(h.rooms))
	}
}

func (h *Hub) remove(client *Client) {
	for room := range client.rooms {
		h.drop(client, room)
	}
	delete(h.clients, client.ID)
	close(client.send)
	decConnections()
}

func (h *Hub) deliver(frame Frame) {
	members, ok := h.rooms[frame.Room]
	if !ok {
		return
	}

	delivered := 0
	var slow []*Client
	for id, client := range members {
		if id == frame.Except {
			continue
		}
		select {
		case client.send <- frame.Payload:
			delivered++
		default:
			slow = append(slow, client)
		}
	}

	for _, client := range slow {
		log.Warn().Str("session", client.ID).Str("room", frame.Room).Msg("dropping slow relay client")
		h.remove(client)
		incDropped()
	}
	if delivered > 0 {
		addDelivered(delivered)
	}
}
