package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisKV adapts go-redis to the KV seam
type redisKV struct {
	rdb *redis.Client
}

// openRedisKV parses redisURL and verifies connectivity
func openRedisKV(ctx context.Context, redisURL string) (KV, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("redis.ParseURL: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return &redisKV{rdb: rdb}, nil
}

func (r *redisKV) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := r.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrKVMiss
	}
	if err != nil {
		return nil, err
	}
	return b, nil
}

func (r *redisKV) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return r.rdb.Set(ctx, key, value, ttl).Err()
}

func (r *redisKV) Publish(ctx context.Context, channel string, payload []byte) error {
	return r.rdb.Publish(ctx, channel, payload).Err()
}

func (r *redisKV) Subscribe(ctx context.Context, channel string) (Subscription, error) {
	ps := r.rdb.Subscribe(ctx, channel)
	// force the SUBSCRIBE roundtrip so a dead broker fails here, not on first receive
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, err
	}

	sub := &redisSub{ps: ps, out: make(chan []byte, 64)}
	go sub.pump(ps.Channel())
	return sub, nil
}

func (r *redisKV) Ping(ctx context.Context) error { return r.rdb.Ping(ctx).Err() }

func (r *redisKV) Close() error { return r.rdb.Close() }

type redisSub struct {
	ps  *redis.PubSub
	out chan []byte
}

func (s *redisSub) pump(in <-chan *redis.Message) {
	defer close(s.out)
	for m := range in {
		s.out <- []byte(m.Payload)
	}
}

func (s *redisSub) Messages() <-chan []byte { return s.out }

func (s *redisSub) Close() error { return s.ps.Close() }
