package realtime

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// DefaultChannel is the pub/sub channel shared by all server instances.
const DefaultChannel = "todos:changed"

const (
	dialTimeout = 3 * time.Second
	pingTimeout = 2 * time.Second
)

// RedisRelay publishes change notifications over redis pub/sub so listeners
// connected to another instance see writes made here.
type RedisRelay struct {
	client   *redis.Client
	channel  string
	instance string
}

// NewRedisRelay connects to redisURL and verifies the connection.
func NewRedisRelay(ctx context.Context, redisURL string) (*RedisRelay, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("redis: invalid URL: %w", err)
	}
	opts.DialTimeout = dialTimeout

	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis: ping failed: %w", err)
	}

	slog.Info("redis relay connected", "addr", opts.Addr)
	return NewRedisRelayWithClient(client), nil
}

// NewRedisRelayWithClient wraps an existing client.
func NewRedisRelayWithClient(client *redis.Client) *RedisRelay {
	return &RedisRelay{client: client, channel: DefaultChannel, instance: uuid.NewString()}
}

// Publish announces a change for ownerID to every instance.
func (r *RedisRelay) Publish(ctx context.Context, ownerID string) error {
	return r.client.Publish(ctx, r.channel, encodeMessage(r.instance, ownerID)).Err()
}

// Run delivers notifications from other instances into hub until ctx ends.
func (r *RedisRelay) Run(ctx context.Context, hub *Hub) error {
	sub := r.client.Subscribe(ctx, r.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("redis subscribe: %w", err)
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			instance, owner, ok := decodeMessage(msg.Payload)
			if !ok {
				slog.Debug("relay: malformed message", "payload", msg.Payload)
				continue
			}
			if instance == r.instance {
				continue
			}
			hub.Deliver(owner)
		}
	}
}

// Close closes the underlying client.
func (r *RedisRelay) Close() error {
	return r.client.Close()
}

func encodeMessage(instance, ownerID string) string {
	return instance + "|" + ownerID
}

func decodeMessage(payload string) (instance, ownerID string, ok bool) {
	instance, ownerID, ok = strings.Cut(payload, "|")
	if !ok || instance == "" || ownerID == "" {
		return "", "", false
	}
	return instance, ownerID, true
}
