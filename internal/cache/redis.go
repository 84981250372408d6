package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"cassa/internal/log"
)

const (
	redisTimeout   = 500 * time.Millisecond
	redisScanBatch = 100
)

// RedisCache shares entries between instances. Values are stored as JSON
// under namespace-prefixed keys. Redis failures degrade to cache misses.
type RedisCache[T any] struct {
	client    redis.UniversalClient
	namespace string
	ttl       time.Duration
	logger    *log.Logger
}

var _ Cache[int] = (*RedisCache[int])(nil)

func NewRedisCache[T any](client redis.UniversalClient, namespace string, ttl time.Duration, logger *log.Logger) *RedisCache[T] {
	return &RedisCache[T]{
		client:    client,
		namespace: namespace,
		ttl:       ttl,
		logger:    logger.WithComponent(log.ComponentCache),
	}
}

// NewRedisClient dials addr and checks the connection.
func NewRedisClient(ctx context.Context, addr string) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, err
	}
	return rdb, nil
}

func (r *RedisCache[T]) key(k string) string { return r.namespace + k }

func (r *RedisCache[T]) ctx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), redisTimeout)
}

func (r *RedisCache[T]) Get(key string) (T, bool) {
	var zero T
	ctx, cancel := r.ctx()
	defer cancel()

	b, err := r.client.Get(ctx, r.key(key)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			r.logger.Warn("Redis get failed", "key", key, log.FieldError, err)
		}
		return zero, false
	}
	var v T
	if err := json.Unmarshal(b, &v); err != nil {
		r.logger.Warn("Dropping undecodable cache entry", "key", key, log.FieldError, err)
		r.Delete(key)
		return zero, false
	}
	return v, true
}

func (r *RedisCache[T]) Set(key string, data T) {
	b, err := json.Marshal(data)
	if err != nil {
		r.logger.Warn("Cache value not encodable", "key", key, log.FieldError, err)
		return
	}
	ctx, cancel := r.ctx()
	defer cancel()
	if err := r.client.Set(ctx, r.key(key), b, r.ttl).Err(); err != nil {
		r.logger.Warn("Redis set failed", "key", key, log.FieldError, err)
	}
}

func (r *RedisCache[T]) Delete(key string) {
	ctx, cancel := r.ctx()
	defer cancel()
	if err := r.client.Del(ctx, r.key(key)).Err(); err != nil {
		r.logger.Warn("Redis delete failed", "key", key, log.FieldError, err)
	}
}

func (r *RedisCache[T]) DeletePrefix(prefix string) int {
	keys := r.scan(r.key(prefix) + "*")
	if len(keys) == 0 {
		return 0
	}
	ctx, cancel := r.ctx()
	defer cancel()
	n, err := r.client.Del(ctx, keys...).Result()
	if err != nil {
		r.logger.Warn("Redis delete failed", "prefix", prefix, log.FieldError, err)
		return 0
	}
	return int(n)
}

// Size counts the keys in this cache's namespace.
func (r *RedisCache[T]) Size() int {
	return len(r.scan(r.namespace + "*"))
}

func (r *RedisCache[T]) scan(match string) []string {
	ctx, cancel := r.ctx()
	defer cancel()
	var keys []string
	iter := r.client.Scan(ctx, 0, match, redisScanBatch).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		r.logger.Warn("Redis scan failed", "match", match, log.FieldError, err)
	}
	return keys
}
