package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/redis/go-redis/v9"
	"github.com/segmentio/ksuid"
)

/*
LEARNING: REDIS PUB/SUB RELAY

Several broker instances behind a load balancer each hold a subset of the
clients. A topic message published on one instance must reach subscribers on
all of them:

  broker A → PUBLISH annosync:topics {origin:A, ...} → Redis
  Redis → broker B (origin != B) → local delivery
  Redis → broker A (origin == A) → ignored, already delivered locally
*/

// Envelope is what travels over the Redis channel
type Envelope struct {
	Origin      string          `json:"origin"`
	Destination string          `json:"destination"`
	Body        json.RawMessage `json:"body"`
}

// Encode serializes an envelope for PUBLISH
func Encode(origin, destination string, body []byte) ([]byte, error) {
	if !json.Valid(body) {
		return nil, fmt.Errorf("body for %s is not valid JSON", destination)
	}
	data, err := json.Marshal(Envelope{Origin: origin, Destination: destination, Body: body})
	if err != nil {
		return nil, fmt.Errorf("failed to encode envelope: %w", err)
	}
	return data, nil
}

// Decode parses an envelope received from Redis
func Decode(payload string) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		return nil, fmt.Errorf("failed to decode envelope: %w", err)
	}
	if env.Destination == "" {
		return nil, fmt.Errorf("envelope without destination")
	}
	return &env, nil
}

// Redis relays topic messages between broker instances
type Redis struct {
	client  *redis.Client
	channel string
	origin  string
}

// NewRedis connects to Redis and checks the connection
func NewRedis(ctx context.Context, addr, channel string) (*Redis, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if _, err := client.Ping(ctx).Result(); err != nil {
		client.Close()
		return nil, fmt.Errorf("could not connect to redis at %s: %w", addr, err)
	}

	r := &Redis{
		client:  client,
		channel: channel,
		origin:  ksuid.New().String(),
	}
	log.Printf("✓ Redis relay connected: %s (channel: %s, origin: %s)", addr, channel, r.origin)
	return r, nil
}

// Origin identifies this instance in relayed envelopes
func (r *Redis) Origin() string {
	return r.origin
}

// Publish sends a topic message to the other instances
func (r *Redis) Publish(ctx context.Context, destination string, body []byte) error {
	data, err := Encode(r.origin, destination, body)
	if err != nil {
		return err
	}
	if err := r.client.Publish(ctx, r.channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish to redis: %w", err)
	}
	return nil
}

// Run delivers messages from other instances until ctx is cancelled
func (r *Redis) Run(ctx context.Context, deliver func(destination string, body []byte)) {
	pubsub := r.client.Subscribe(ctx, r.channel)
	defer pubsub.Close()

	messages := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-messages:
			if !ok {
				return
			}
			env, err := Decode(msg.Payload)
			if err != nil {
				log.Printf("⚠️  Dropping relay message: %v", err)
				continue
			}
			if env.Origin == r.origin {
				continue
			}
			deliver(env.Destination, env.Body)
		}
	}
}

func (r *Redis) Close() error {
	return r.client.Close()
}
