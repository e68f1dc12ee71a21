package pubsub

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/sogos/pixelpipe/internal/domain/service"
)

// taskChannel is where every status transition is published. Subscribers
// (the GUI's live view) see the same transitions the poll endpoints would.
const taskChannel = "events:tasks"

// TaskEvent is one observed status transition of a task.
type TaskEvent struct {
	TaskID    int64   `json:"task_id"`
	Status    string  `json:"status"`
	Data      *string `json:"data,omitempty"`
	Timestamp int64   `json:"timestamp"`
}

// Publisher defines the interface for publishing task events.
type Publisher interface {
	PublishTaskEvent(ctx context.Context, event *TaskEvent) error
}

// Subscriber defines the interface for subscribing to task events.
type Subscriber interface {
	SubscribeTaskEvents(ctx context.Context) (<-chan *TaskEvent, func(), error)
}

// RedisPubSub implements Publisher and Subscriber using Redis pub/sub.
type RedisPubSub struct {
	client *redis.Client
	logger service.Logger
}

// RedisConfig holds Redis pub/sub configuration.
type RedisConfig struct {
	URL string
}

// NewRedisPubSub creates a new Redis pub/sub client.
func NewRedisPubSub(cfg RedisConfig, logger service.Logger) (*RedisPubSub, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	// Test connection
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis for pubsub: %w", err)
	}

	return &RedisPubSub{
		client: client,
		logger: logger,
	}, nil
}

// NewRedisPubSubFromClient creates a RedisPubSub using an existing Redis client.
func NewRedisPubSubFromClient(client *redis.Client, logger service.Logger) *RedisPubSub {
	return &RedisPubSub{
		client: client,
		logger: logger,
	}
}

// PublishTaskEvent publishes one status transition to the task channel.
func (p *RedisPubSub) PublishTaskEvent(ctx context.Context, event *TaskEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal task event: %w", err)
	}

	if err := p.client.Publish(ctx, taskChannel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish task event: %w", err)
	}

	p.logger.Debug("published task event",
		"channel", taskChannel,
		"task_id", event.TaskID,
		"status", event.Status,
	)

	return nil
}

// SubscribeTaskEvents subscribes to status transitions.
// Returns a channel that receives events, a cleanup function, and an error.
func (p *RedisPubSub) SubscribeTaskEvents(ctx context.Context) (<-chan *TaskEvent, func(), error) {
	pubsub := p.client.Subscribe(ctx, taskChannel)

	// Verify subscription is active
	_, err := pubsub.Receive(ctx)
	if err != nil {
		pubsub.Close()
		return nil, nil, fmt.Errorf("failed to subscribe to channel %s: %w", taskChannel, err)
	}

	eventCh := make(chan *TaskEvent, 10)

	// Goroutine to forward messages to the event channel
	go func() {
		defer close(eventCh)

		msgCh := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgCh:
				if !ok {
					return
				}

				var event TaskEvent
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					p.logger.Error("failed to unmarshal task event",
						"error", err,
						"payload", msg.Payload,
					)
					continue
				}

				select {
				case eventCh <- &event:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	cleanup := func() {
		pubsub.Close()
	}

	p.logger.Debug("subscribed to task events", "channel", taskChannel)

	return eventCh, cleanup, nil
}

// Close closes the Redis connection.
func (p *RedisPubSub) Close() error {
	return p.client.Close()
}
