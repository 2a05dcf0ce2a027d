package broker

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis implements Broker on a go-redis client.
type Redis struct {
	rdb *redis.Client
}

// NewRedis wraps rdb.
func NewRedis(rdb *redis.Client) *Redis {
	return &Redis{rdb: rdb}
}

func (b *Redis) Push(ctx context.Context, queue string, payloads ...[]byte) error {
	if len(payloads) == 0 {
		return nil
	}
	if len(payloads) == 1 {
		return b.rdb.RPush(ctx, queue, payloads[0]).Err()
	}
	pipe := b.rdb.Pipeline()
	for _, p := range payloads {
		pipe.RPush(ctx, queue, p)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// Pop uses BLPOP; Redis requires timeout >= 1s for blocking semantics.
func (b *Redis) Pop(ctx context.Context, queue string, timeout time.Duration) ([]byte, error) {
	res, err := b.rdb.BLPop(ctx, timeout, queue).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrEmpty
		}
		return nil, err
	}
	if len(res) < 2 {
		return nil, ErrEmpty
	}
	return []byte(res[1]), nil
}

func (b *Redis) Publish(ctx context.Context, channel string, payload []byte) error {
	return b.rdb.Publish(ctx, channel, payload).Err()
}

func (b *Redis) Subscribe(ctx context.Context, channel string) (<-chan []byte, func() error) {
	pubsub := b.rdb.Subscribe(ctx, channel)
	out := make(chan []byte, 64)
	go func() {
		defer close(out)
		for msg := range pubsub.Channel() {
			select {
			case out <- []byte(msg.Payload):
			default:
				// Slow subscriber; drop rather than stall the pubsub reader.
			}
		}
	}()
	return out, pubsub.Close
}

func (b *Redis) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := b.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrMiss
		}
		return nil, err
	}
	return val, nil
}

func (b *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return b.rdb.Set(ctx, key, value, ttl).Err()
}

func (b *Redis) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return b.rdb.Del(ctx, keys...).Err()
}
