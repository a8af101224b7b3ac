package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis/v8"

	"github.com/fixora/pim/internal/logger"
	"github.com/fixora/pim/internal/ports"
)

// DefaultChannel is the pub/sub channel domain events are published on
const DefaultChannel = "pim.events"

// RedisPublisher publishes domain events as JSON on a Redis pub/sub channel
type RedisPublisher struct {
	client  *redis.Client
	channel string
	logger  logger.Logger
}

// NewRedisPublisher creates a publisher over an established client
func NewRedisPublisher(client *redis.Client, channel string, log logger.Logger) *RedisPublisher {
	if channel == "" {
		channel = DefaultChannel
	}
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &RedisPublisher{client: client, channel: channel, logger: log}
}

var _ ports.EventPublisher = (*RedisPublisher)(nil)

// Publish publishes a domain event
func (p *RedisPublisher) Publish(ctx context.Context, event ports.Event) error {
	payload, err := encodeEvent(event)
	if err != nil {
		return err
	}

	receivers, err := p.client.Publish(ctx, p.channel, payload).Result()
	if err != nil {
		p.logger.Error(ctx, "Failed to publish event", err, map[string]interface{}{
			"event_id":   event.ID,
			"event_type": event.Type,
			"channel":    p.channel,
		})
		return fmt.Errorf("failed to publish event: %w", err)
	}

	p.logger.Debug(ctx, "Event published", map[string]interface{}{
		"event_id":   event.ID,
		"event_type": event.Type,
		"channel":    p.channel,
		"receivers":  receivers,
	})
	return nil
}

func encodeEvent(event ports.Event) ([]byte, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event: %w", err)
	}
	return payload, nil
}

// Connect parses a redis:// URL and verifies the server answers
func Connect(ctx context.Context, url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}
