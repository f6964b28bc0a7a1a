package bucket

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	// redisKeyBuckets is the Redis set holding all known bucket names.
	redisKeyBuckets = "edge:buckets"

	// redisEntryPrefix prefixes every stored entry key:
	// edge:bucket:<bucket-name>:<request-key>
	redisEntryPrefix = "edge:bucket:"
)

// RedisStore implements Store on a Redis backend. Bucket names are tracked
// in a Redis set so buckets can be enumerated and pruned; entries are
// JSON-encoded under a per-bucket key prefix.
//
// The store is shared state: every gateway replica pointed at the same Redis
// observes the same buckets, which is what makes whole-bucket pruning during
// activation visible to still-running old replicas.
type RedisStore struct {
	redis  *redis.Client
	logger zerolog.Logger
}

// NewRedisStore creates a Redis-backed bucket store.
func NewRedisStore(redisClient *redis.Client, logger zerolog.Logger) *RedisStore {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	return &RedisStore{
		redis:  redisClient,
		logger: logger,
	}
}

// Open registers the bucket name. Opening an existing bucket is a no-op.
func (s *RedisStore) Open(ctx context.Context, name string) error {
	if err := s.redis.SAdd(ctx, redisKeyBuckets, name).Err(); err != nil {
		CacheErrors.WithLabelValues("open").Inc()
		return fmt.Errorf("redis sadd bucket: %w", err)
	}
	return nil
}

// Get retrieves an entry. Returns (nil, nil) on miss.
func (s *RedisStore) Get(ctx context.Context, name, key string) (*Entry, error) {
	data, err := s.redis.Get(ctx, entryKey(name, key)).Bytes()
	if err != nil {
		if err == redis.Nil {
			CacheMisses.WithLabelValues("redis").Inc()
			return nil, nil
		}
		CacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		CacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}

	CacheHits.WithLabelValues("redis").Inc()
	return &entry, nil
}

// Put stores an entry without TTL. A second Put with the same key replaces
// the prior entry.
func (s *RedisStore) Put(ctx context.Context, name, key string, entry *Entry) error {
	if entry == nil {
		return fmt.Errorf("cache entry cannot be nil")
	}

	data, err := json.Marshal(entry)
	if err != nil {
		CacheErrors.WithLabelValues("put").Inc()
		return fmt.Errorf("marshal cache entry: %w", err)
	}

	if err := s.redis.Set(ctx, entryKey(name, key), data, 0).Err(); err != nil {
		CacheErrors.WithLabelValues("put").Inc()
		return fmt.Errorf("redis set: %w", err)
	}

	CacheWrittenBytes.WithLabelValues("redis").Add(float64(len(data)))
	return nil
}

// DeleteExcept removes every bucket not named in keep. A failure to delete
// one bucket is logged and does not stop deletion of the others: partial
// cleanup is preferable to a version that never activates.
func (s *RedisStore) DeleteExcept(ctx context.Context, keep map[string]struct{}) error {
	names, err := s.redis.SMembers(ctx, redisKeyBuckets).Result()
	if err != nil {
		CacheErrors.WithLabelValues("delete").Inc()
		return fmt.Errorf("redis smembers buckets: %w", err)
	}

	for _, name := range names {
		if _, ok := keep[name]; ok {
			continue
		}
		if err := s.deleteBucket(ctx, name); err != nil {
			CacheErrors.WithLabelValues("delete").Inc()
			s.logger.Warn().Err(err).Str("bucket", name).Msg("Failed to delete bucket, continuing")
			continue
		}
		BucketsDeleted.Inc()
		s.logger.Info().Str("bucket", name).Msg("Deleted stale bucket")
	}

	return nil
}

// Names enumerates all known bucket names.
func (s *RedisStore) Names(ctx context.Context) ([]string, error) {
	names, err := s.redis.SMembers(ctx, redisKeyBuckets).Result()
	if err != nil {
		return nil, fmt.Errorf("redis smembers buckets: %w", err)
	}
	return names, nil
}

// deleteBucket removes all entries of a bucket and unregisters its name.
func (s *RedisStore) deleteBucket(ctx context.Context, name string) error {
	iter := s.redis.Scan(ctx, 0, entryKey(name, "*"), 100).Iterator()
	for iter.Next(ctx) {
		if err := s.redis.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("redis del %s: %w", iter.Val(), err)
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("redis scan bucket %s: %w", name, err)
	}

	if err := s.redis.SRem(ctx, redisKeyBuckets, name).Err(); err != nil {
		return fmt.Errorf("redis srem bucket: %w", err)
	}
	return nil
}

func entryKey(name, key string) string {
	return redisEntryPrefix + name + ":" + key
}
