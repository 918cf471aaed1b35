package cache

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const keyPrefix = "recipes:user-active:"

// NewRedisClient creates and pings a Redis client.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	return rdb, nil
}

// RedisVerifier shares cached verification results between server replicas.
type RedisVerifier struct {
	inner Lookup
	rdb   *redis.Client
	ttl   time.Duration
	log   zerolog.Logger
}

// NewRedisVerifier wraps inner with a Redis-backed cache.
func NewRedisVerifier(inner Lookup, rdb *redis.Client, ttl time.Duration, log zerolog.Logger) *RedisVerifier {
	return &RedisVerifier{inner: inner, rdb: rdb, ttl: ttl, log: log}
}

func redisKey(uid uint) string {
	return keyPrefix + strconv.FormatUint(uint64(uid), 10)
}

// Verify reads the cached flag for uid. When Redis is unreachable the inner
// lookup answers directly.
func (v *RedisVerifier) Verify(ctx context.Context, uid uint) bool {
	val, err := v.rdb.Get(ctx, redisKey(uid)).Result()
	switch {
	case err == nil:
		return val == "1"
	case !errors.Is(err, redis.Nil):
		v.log.Warn().Err(err).Uint("user_id", uid).Msg("verifier cache read failed")
	}

	active, err := v.inner(ctx, uid)
	if err != nil {
		return false
	}
	flag := "0"
	if active {
		flag = "1"
	}
	if err := v.rdb.Set(ctx, redisKey(uid), flag, v.ttl).Err(); err != nil {
		v.log.Warn().Err(err).Uint("user_id", uid).Msg("verifier cache write failed")
	}
	return active
}

// Invalidate removes uid from the shared cache.
func (v *RedisVerifier) Invalidate(ctx context.Context, uid uint) {
	if err := v.rdb.Del(ctx, redisKey(uid)).Err(); err != nil {
		v.log.Warn().Err(err).Uint("user_id", uid).Msg("verifier cache invalidate failed")
	}
}
