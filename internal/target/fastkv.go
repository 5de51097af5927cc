package target

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/yhlac/wallsyncd/internal/config"
	"github.com/yhlac/wallsyncd/internal/media"
)

// RedisClient is the subset of the go-redis client used by FastKV
type RedisClient interface {
	TxPipelined(ctx context.Context, fn func(redis.Pipeliner) error) ([]redis.Cmder, error)
}

// FastKV overwrites the current artifacts and metadata in Redis
type FastKV struct {
	client RedisClient
	prefix string
	ttl    time.Duration
	logger *slog.Logger
}

// NewFastKV creates a fast key-value target. A zero ttl never expires keys.
func NewFastKV(client RedisClient, prefix string, ttl time.Duration, logger *slog.Logger) *FastKV {
	return &FastKV{
		client: client,
		prefix: prefix,
		ttl:    ttl,
		logger: logger,
	}
}

// NewRedisClient builds a client from configuration
func NewRedisClient(cfg config.FastKVConfig, password string) *redis.Client {
	opts := &redis.Options{
		Addr: cfg.Addr,
		DB:   cfg.DB,
	}
	if password != "" {
		opts.Password = password
	}
	return redis.NewClient(opts)
}

func (f *FastKV) Name() string   { return NameFastKV }
func (f *FastKV) Kind() Kind     { return KindFastKV }
func (f *FastKV) Policy() Policy { return PolicyOverwrite }

// MetadataKey returns the key holding the metadata document
func (f *FastKV) MetadataKey() string { return f.prefix + "metadata" }

// ColorKey returns the key holding the accent color
func (f *FastKV) ColorKey() string { return f.prefix + "color" }

// ImageKey returns the key holding an artifact
func (f *FastKV) ImageKey(role media.Role) string { return f.prefix + "image:" + string(role) }

// Write sets every key in a single MULTI/EXEC so readers never observe a
// half-written day
func (f *FastKV) Write(ctx context.Context, p *Payload) Result {
	meta, err := json.Marshal(p.Metadata)
	if err != nil {
		return failed(fmt.Errorf("failed to encode metadata: %w", err))
	}

	_, err = f.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, f.MetadataKey(), meta, f.ttl)
		pipe.Set(ctx, f.ColorKey(), p.Metadata.Color, f.ttl)
		for _, a := range p.Artifacts {
			pipe.Set(ctx, f.ImageKey(a.Role), a.Bytes, f.ttl)
		}
		return nil
	})
	if err != nil {
		return writeFailed(f.Name(), err)
	}

	f.logger.Info("fast kv updated", "keys", len(p.Artifacts)+2)
	return Result{Outcome: OutcomeUpdated}
}
