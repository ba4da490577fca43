// Package cache keeps the latest snapshot per stream in Redis and appends
// refreshed assessments to a capped Redis stream for downstream consumers.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"renal-risk-stream/internal/config"
	"renal-risk-stream/internal/stream"
)

// ErrSnapshotNotFound is returned when no snapshot is cached for a stream.
var ErrSnapshotNotFound = errors.New("cache: snapshot not found")

// Options tune key layout and retention.
type Options struct {
	KeyPrefix   string
	SnapshotTTL time.Duration
	FeedStream  string
	FeedMaxLen  int64
}

// SnapshotCache stores snapshots in Redis.
type SnapshotCache struct {
	client *redis.Client
	opts   Options
}

// NewClient builds a go-redis client from configuration.
func NewClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})
}

// OptionsFromConfig maps the redis section onto cache options.
func OptionsFromConfig(cfg config.RedisConfig) Options {
	return Options{
		KeyPrefix:   cfg.KeyPrefix,
		SnapshotTTL: cfg.SnapshotTTL,
		FeedStream:  cfg.FeedStream,
		FeedMaxLen:  cfg.FeedMaxLen,
	}
}

// New wraps client. A zero TTL keeps snapshots until overwritten; an empty
// FeedStream disables the feed.
func New(client *redis.Client, opts Options) *SnapshotCache {
	if opts.KeyPrefix == "" {
		opts.KeyPrefix = "renalwatch"
	}
	return &SnapshotCache{client: client, opts: opts}
}

// Ping checks connectivity.
func (c *SnapshotCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close releases the client.
func (c *SnapshotCache) Close() error {
	return c.client.Close()
}

// LatestKey is the key holding the latest snapshot of a stream.
func (c *SnapshotCache) LatestKey(id uuid.UUID) string {
	return fmt.Sprintf("%s:stream:%s:latest", c.opts.KeyPrefix, id)
}

// Put stores snap as the latest snapshot of its stream and appends the
// fused assessment to the feed.
func (c *SnapshotCache) Put(ctx context.Context, snap stream.Snapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	_, err = c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, c.LatestKey(snap.StreamID), payload, c.opts.SnapshotTTL)
		if c.opts.FeedStream != "" {
			pipe.XAdd(ctx, &redis.XAddArgs{
				Stream: c.opts.FeedStream,
				MaxLen: c.opts.FeedMaxLen,
				Approx: c.opts.FeedMaxLen > 0,
				Values: feedValues(snap, payload),
			})
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("cache snapshot: %w", err)
	}
	return nil
}

// Latest returns the cached snapshot of a stream.
func (c *SnapshotCache) Latest(ctx context.Context, id uuid.UUID) (stream.Snapshot, error) {
	raw, err := c.client.Get(ctx, c.LatestKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return stream.Snapshot{}, ErrSnapshotNotFound
	}
	if err != nil {
		return stream.Snapshot{}, fmt.Errorf("get snapshot: %w", err)
	}

	var snap stream.Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return stream.Snapshot{}, fmt.Errorf("decode snapshot: %w", err)
	}
	return snap, nil
}

func feedValues(snap stream.Snapshot, payload []byte) map[string]interface{} {
	return map[string]interface{}{
		"stream_id":  snap.StreamID.String(),
		"seq":        snap.Seq,
		"elapsed_ms": snap.ElapsedMS,
		"final_risk": snap.Fusion.FinalRisk.String(),
		"strategy":   snap.Fusion.Strategy,
		"data":       string(payload),
		"timestamp":  snap.GeneratedAt.Unix(),
	}
}
