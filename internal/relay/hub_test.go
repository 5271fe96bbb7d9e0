package relay

import (
	"context"
	"sort"
	"testing"
	"time"

	"support-chat-backend/internal/relay/event"

	"github.com/stretchr/testify/require"
)

func startHub(t *testing.T) *Hub {
	t.Helper()
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	t.Cleanup(func() {
		cancel()
		<-hub.done
	})
	return hub
}

func receive(t *testing.T, client *Client) []byte {
	t.Helper()
	select {
	case payload := <-client.send:
		return payload
	case <-time.After(time.Second):
		t.Fatalf("client %s received nothing", client.ID)
		return nil
	}
}

func requireSilent(t *testing.T, client *Client) {
	t.Helper()
	select {
	case payload, ok := <-client.send:
		if ok {
			t.Fatalf("client %s unexpectedly received %s", client.ID, payload)
		}
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHubDeliversToRoomMembersExceptSender(t *testing.T) {
	hub := startHub(t)

	a := newClient(nil, "a", nil, nil)
	b := newClient(nil, "b", nil, nil)
	c := newClient(nil, "c", nil, nil)
	for _, cl := range []*Client{a, b, c} {
		hub.Register(cl)
	}

	room := event.ConversationRoom("conv-1")
	hub.Join("a", room)
	hub.Join("b", room)

	members := hub.Members(room)
	sort.Strings(members)
	require.Equal(t, []string{"a", "b"}, members)

	hub.Broadcast(Frame{Room: room, Except: "a", Payload: []byte("hello")})
	require.Equal(t, []byte("hello"), receive(t, b))
	requireSilent(t, a)
	requireSilent(t, c)

	hub.Broadcast(Frame{Room: event.SessionRoom("c"), Payload: []byte("direct")})
	require.Equal(t, []byte("direct"), receive(t, c))
}

func TestHubLeaveAndUnregisterPruneRooms(t *testing.T) {
	hub := startHub(t)

	a := newClient(nil, "a", nil, nil)
	hub.Register(a)
	hub.Join("a", "room-x")
	require.Equal(t, 2, hub.RoomCount())

	hub.Leave("a", "room-x")
	require.Empty(t, hub.Members("room-x"))
	require.Equal(t, 1, hub.RoomCount())

	hub.Unregister(a)
	require.Equal(t, 0, hub.RoomCount())

	_, ok := <-a.send
	require.False(t, ok)
}

func TestHubIgnoresStaleUnregister(t *testing.T) {
	hub := startHub(t)

	first := newClient(nil, "same", nil, nil)
	hub.Register(first)
	second := newClient(nil, "same", nil, nil)
	hub.Register(second)

	hub.Unregister(first)
	require.Equal(t, []string{"same"}, hub.Members(event.SessionRoom("same")))
}

func TestHubDropsSlowClients(t *testing.T) {
	hub := startHub(t)

	slow := newClient(nil, "slow", nil, nil)
	hub.Register(slow)
	for i := 0; i < sendBufferSize; i++ {
		hub.Broadcast(Frame{Room: event.SessionRoom("slow"), Payload: []byte("x")})
	}
	require.Len(t, hub.Members(event.SessionRoom("slow")), 1)

	hub.Broadcast(Frame{Room: event.SessionRoom("slow"), Payload: []byte("overflow")})
	require.Eventually(t, func() bool {
		return len(hub.Members(event.SessionRoom("slow"))) == 0
	}, time.Second, 10*time.Millisecond)
}

func TestHubOperationsAfterShutdownReturn(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	a := newClient(nil, "a", nil, nil)
	hub.Register(a)
	cancel()
	<-hub.done

	_, ok := <-a.send
	require.False(t, ok)

	hub.Join("a", "room")
	hub.Broadcast(Frame{Room: "room", Payload: []byte("late")})
	require.Nil(t, hub.Members("room"))
}
