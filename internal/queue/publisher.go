package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"schoolportal/internal/logger"
)

// Publisher defines the interface for publishing events to a stream.
type Publisher interface {
	// Publish adds an event to the specified stream.
	// Returns the message ID assigned by Redis.
	Publish(ctx context.Context, stream string, event CommentEvent) (messageID string, err error)
}

// RedisPublisher implements Publisher using Redis Streams.
type RedisPublisher struct {
	client *redis.Client
	maxLen int64
	log    *zap.Logger
}

// DefaultStreamMaxLen caps the stream length; XADD trims approximately.
const DefaultStreamMaxLen = 100000

// NewPublisher creates a new Publisher backed by Redis Streams.
func NewPublisher(client *redis.Client, log *zap.Logger) Publisher {
	return &RedisPublisher{client: client, maxLen: DefaultStreamMaxLen, log: logger.Component(log, "Publisher")}
}

// Publish adds an event to the stream using XADD with an auto-generated ID.
func (p *RedisPublisher) Publish(ctx context.Context, stream string, event CommentEvent) (string, error) {
	startTime := time.Now()

	values, err := event.ToMap()
	if err != nil {
		p.log.Error("Publish FAILED", zap.String("stream", stream), zap.String("type", event.Type), zap.Error(err))
		return "", fmt.Errorf("serialize event: %w", err)
	}

	messageID, err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		MaxLen: p.maxLen,
		Approx: true,
		Values: values,
	}).Result()
	if err != nil {
		p.log.Error("Publish FAILED", zap.String("stream", stream), zap.String("type", event.Type), zap.Error(err))
		return "", fmt.Errorf("xadd to stream: %w", err)
	}

	p.log.Debug("Publish OK",
		zap.String("stream", stream),
		zap.String("type", event.Type),
		zap.String("msg_id", messageID),
		zap.String("post_id", event.PostID),
		zap.String("comment_id", event.CommentID),
		zap.Duration("duration", time.Since(startTime)))

	return messageID, nil
}
