package seen

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisPrefix namespaces the keys written by RedisRepository.
const DefaultRedisPrefix = "harvest:"

// RedisRepository stores the set as a sorted set scored by insertion index,
// which keeps the order stable across loads. The batch is a list.
type RedisRepository struct {
	client *redis.Client
	prefix string
}

// NewRedisRepository initializes a Redis-backed repository.
func NewRedisRepository(addr, prefix string) *RedisRepository {
	return NewRedisRepositoryWithClient(redis.NewClient(&redis.Options{Addr: addr}), prefix)
}

// NewRedisRepositoryWithClient builds a repository on an existing client.
func NewRedisRepositoryWithClient(client *redis.Client, prefix string) *RedisRepository {
	return &RedisRepository{client: client, prefix: prefix}
}

// Close closes the Redis client.
func (r *RedisRepository) Close() error {
	return r.client.Close()
}

func (r *RedisRepository) seenKey() string  { return r.prefix + "seen" }
func (r *RedisRepository) batchKey() string { return r.prefix + "new" }

// Load reads the sorted set in score order. A missing key yields an empty
// set.
func (r *RedisRepository) Load(ctx context.Context) (*Set, error) {
	urls, err := r.client.ZRange(ctx, r.seenKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load seen set: %w", err)
	}
	return NewSet(urls...), nil
}

// Save replaces the sorted set inside a MULTI/EXEC transaction.
func (r *RedisRepository) Save(ctx context.Context, snapshot *Set) error {
	urls := snapshot.URLs()
	members := make([]redis.Z, len(urls))
	for i, u := range urls {
		members[i] = redis.Z{Score: float64(i), Member: u}
	}

	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, r.seenKey())
		if len(members) > 0 {
			pipe.ZAdd(ctx, r.seenKey(), members...)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save seen set: %w", err)
	}
	return nil
}

func (r *RedisRepository) SaveBatch(ctx context.Context, batch []string) error {
	values := make([]any, len(batch))
	for i, u := range batch {
		values[i] = u
	}

	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, r.batchKey())
		if len(values) > 0 {
			pipe.RPush(ctx, r.batchKey(), values...)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save new URL batch: %w", err)
	}
	return nil
}

// LoadBatch reads the most recently saved batch.
func (r *RedisRepository) LoadBatch(ctx context.Context) ([]string, error) {
	batch, err := r.client.LRange(ctx, r.batchKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load new URL batch: %w", err)
	}
	return batch, nil
}
