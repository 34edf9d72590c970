// Package sink forwards document content snapshots to interested
// outsiders. Stores are fire-and-forget: a failed store is logged and
// never surfaces to the broadcast path.
package sink

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ErrNoSnapshot is returned when no content has been stored for a
// document, or when there is no store to read from at all.
var ErrNoSnapshot = errors.New("sink: no snapshot")

// Sink receives the latest content snapshot for a document and serves
// it back to readers.
type Sink interface {
	Store(ctx context.Context, documentID, content string)
	Snapshot(ctx context.Context, documentID string) (string, error)
}

// RedisSink keeps the most recent snapshot per document under a TTL and
// publishes an update event for external consumers (the document store,
// notification service).
type RedisSink struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

func NewRedisSink(client *redis.Client, ttl time.Duration, logger *zap.Logger) *RedisSink {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisSink{client: client, ttl: ttl, logger: logger}
}

func snapshotKey(documentID string) string {
	return fmt.Sprintf("doc:snapshot:%s", documentID)
}

func eventChannel(documentID string) string {
	return fmt.Sprintf("doc:events:%s", documentID)
}

func (s *RedisSink) Store(ctx context.Context, documentID, content string) {
	if err := s.client.Set(ctx, snapshotKey(documentID), content, s.ttl).Err(); err != nil {
		s.logger.Warn("Failed to store document snapshot",
			zap.String("documentId", documentID),
			zap.Error(err))
		return
	}

	if err := s.client.Publish(ctx, eventChannel(documentID), "updated").Err(); err != nil {
		s.logger.Debug("Failed to publish document event",
			zap.String("documentId", documentID),
			zap.Error(err))
	}
}

// Snapshot returns the stored content for a document.
func (s *RedisSink) Snapshot(ctx context.Context, documentID string) (string, error) {
	content, err := s.client.Get(ctx, snapshotKey(documentID)).Result()
	if err == redis.Nil {
		return "", ErrNoSnapshot
	}
	return content, err
}

// NopSink discards snapshots and holds none. Used when Redis is not
// configured.
type NopSink struct{}

func (NopSink) Store(context.Context, string, string) {}

func (NopSink) Snapshot(context.Context, string) (string, error) {
	return "", ErrNoSnapshot
}

// For returns a Redis-backed sink when a client is available, otherwise
// a NopSink.
func For(client *redis.Client, ttl time.Duration, logger *zap.Logger) Sink {
	if client == nil {
		return NopSink{}
	}
	return NewRedisSink(client, ttl, logger)
}
