package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisClient is a minimal pub/sub client.
type RedisClient interface {
	Publish(ctx context.Context, channel string, message interface{}) error
	Subscribe(ctx context.Context, channel string) (<-chan Message, error)
	Close() error
}

// Message is a received pub/sub payload.
type Message struct {
	Channel string
	Payload []byte
	Time    time.Time
}

type redisClient struct {
	client *redis.Client
}

// NewRedisClient connects to addr and verifies the connection with a PING.
func NewRedisClient(addr, password string, db int) (RedisClient, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return NewRedisClientFrom(client), nil
}

// NewRedisClientFrom wraps an existing go-redis client.
func NewRedisClientFrom(client *redis.Client) RedisClient {
	return &redisClient{client: client}
}

func (r *redisClient) Publish(ctx context.Context, channel string, message interface{}) error {
	payload, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	return r.client.Publish(ctx, channel, payload).Err()
}

// Subscribe delivers messages until ctx is done. The returned channel is closed afterwards.
func (r *redisClient) Subscribe(ctx context.Context, channel string) (<-chan Message, error) {
	pubsub := r.client.Subscribe(ctx, channel)

	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", channel, err)
	}

	messageCh := make(chan Message)
	go func() {
		defer close(messageCh)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case msg, ok := <-ch:
				if !ok {
					return
				}
				select {
				case messageCh <- Message{
					Channel: msg.Channel,
					Payload: []byte(msg.Payload),
					Time:    time.Now(),
				}:
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	return messageCh, nil
}

func (r *redisClient) Close() error {
	return r.client.Close()
}
