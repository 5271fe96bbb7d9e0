package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"support-chat-backend/internal/env"
	"support-chat-backend/internal/logging"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog/log"
)

// Message is the unit a broker carries between the API and the relay.
// Event holds an encoded envelope; ActivityToken marks presence activity.
type Message struct {
	Room          string          `json:"room,omitempty"`
	Except        string          `json:"except,omitempty"`
	Event         json.RawMessage `json:"event,omitempty"`
	ActivityToken string          `json:"activityToken,omitempty"`
}

type Broker interface {
	Publish(ctx context.Context, msg Message) error
}

// ActivitySink receives presence activity carried by broker messages.
type ActivitySink interface {
	Activity(token string)
}

// LocalBroker delivers straight into the in-process hub.
type LocalBroker struct {
	hub *Hub

	mu       sync.RWMutex
	activity ActivitySink
}

func NewLocalBroker(hub *Hub, activity ActivitySink) *LocalBroker {
	return &LocalBroker{hub: hub, activity: activity}
}

// SetActivitySink wires presence after construction; the tracker itself
// publishes through this broker.
func (b *LocalBroker) SetActivitySink(activity ActivitySink) {
	b.mu.Lock()
	b.activity = activity
	b.mu.Unlock()
}

func (b *LocalBroker) Publish(_ context.Context, msg Message) error {
	b.Deliver(msg)
	return nil
}

func (b *LocalBroker) Deliver(msg Message) {
	if msg.ActivityToken != "" {
		b.mu.RLock()
		activity := b.activity
		b.mu.RUnlock()
		if activity != nil {
			activity.Activity(msg.ActivityToken)
		}
	}
	if msg.Room != "" && len(msg.Event) > 0 {
		b.hub.Broadcast(Frame{Room: msg.Room, Except: msg.Except, Payload: msg.Event})
	}
}

// RedisBroker fans messages out through one Redis pub/sub channel so the API
// and the relay can run as separate processes.
type RedisBroker struct {
	client  *redis.Client
	channel string
}

func NewRedisClient() *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     env.Get(env.ChatRedisURL),
		Password: env.Get(env.ChatRedisPass),
		DB:       0,
	})
}

func NewRedisBroker(client *redis.Client, channel string) *RedisBroker {
	if channel == "" {
		channel = env.GetOrDefault(env.RelayChannel, "support-chat:relay")
	}
	return &RedisBroker{client: client, channel: channel}
}

func (b *RedisBroker) Publish(ctx context.Context, msg Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("relay broker: marshal message: %w", err)
	}
	if err := b.client.Publish(ctx, b.channel, payload).Err(); err != nil {
		return fmt.Errorf("relay broker: redis publish: %w", err)
	}
	return nil
}

// Subscribe feeds every message on the channel to deliver until ctx ends.
func (b *RedisBroker) Subscribe(ctx context.Context, deliver func(Message)) error {
	subscriber := b.client.Subscribe(ctx, b.channel)
	defer subscriber.Close()

	if _, err := subscriber.Receive(ctx); err != nil {
		return fmt.Errorf("relay broker: subscribe %s: %w", b.channel, err)
	}
	log.Info().Str("channel", b.channel).Msg("subscribed to relay channel")

	ch := subscriber.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case raw, ok := <-ch:
			if !ok {
				return nil
			}
			var msg Message
			if err := json.Unmarshal([]byte(raw.Payload), &msg); err != nil {
				log.Warn().Err(err).Str("channel", b.channel).Msg("discarding malformed relay message")
				continue
			}
			log.Debug().Str("room", msg.Room).Str("token", logging.ShortToken(msg.ActivityToken)).Msg("relay message received")
			deliver(msg)
		}
	}
}

func (b *RedisBroker) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}
