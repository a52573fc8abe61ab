package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "finboard:tokens:"

// RedisKey returns the hash holding every token kind of a namespace.
func RedisKey(namespace string) string {
	return redisKeyPrefix + namespace
}

// RedisRepository stores sealed tokens in one Redis hash per namespace so several
// BFF replicas can share sessions. It satisfies tokenstore.Backend.
type RedisRepository struct {
	rc  *redis.Client
	ttl time.Duration
}

type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	// TTL expires idle namespaces; zero keeps them forever.
	TTL time.Duration
}

func NewRedisRepository(ctx context.Context, opts RedisOptions) (*RedisRepository, error) {
	rc := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := rc.Ping(pingCtx).Err(); err != nil {
		rc.Close()
		return nil, fmt.Errorf("ping redis %s: %w", opts.Addr, err)
	}
	return &RedisRepository{rc: rc, ttl: opts.TTL}, nil
}

func (r *RedisRepository) Put(ctx context.Context, namespace, kind, value string) error {
	key := RedisKey(namespace)
	_, err := r.rc.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, kind, value)
		if r.ttl > 0 {
			pipe.Expire(ctx, key, r.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis put token: %w", err)
	}
	return nil
}

func (r *RedisRepository) Get(ctx context.Context, namespace, kind string) (string, bool, error) {
	v, err := r.rc.HGet(ctx, RedisKey(namespace), kind).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis get token: %w", err)
	}
	return v, true, nil
}

func (r *RedisRepository) Delete(ctx context.Context, namespace string) error {
	if err := r.rc.Del(ctx, RedisKey(namespace)).Err(); err != nil {
		return fmt.Errorf("redis delete tokens: %w", err)
	}
	return nil
}

func (r *RedisRepository) Ping(ctx context.Context) error {
	return r.rc.Ping(ctx).Err()
}

func (r *RedisRepository) Close() error {
	return r.rc.Close()
}
