// Package broker abstracts the Redis features the platform relies on: work
// lists for background workers, pub/sub for live monitoring, and a TTL
// key-value cache for content and login sessions.
package broker

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrEmpty is returned by Pop when no item arrived before the timeout.
	ErrEmpty = errors.New("queue empty")
	// ErrMiss is returned by Get for absent or expired keys.
	ErrMiss = errors.New("cache miss")
)

// Broker is implemented by Redis and by Local.
type Broker interface {
	// Push appends payloads to the tail of a list.
	Push(ctx context.Context, queue string, payloads ...[]byte) error
	// Pop removes the head of a list, waiting up to timeout.
	Pop(ctx context.Context, queue string, timeout time.Duration) ([]byte, error)

	Publish(ctx context.Context, channel string, payload []byte) error
	// Subscribe returns a message channel and a function that ends the
	// subscription and closes the channel.
	Subscribe(ctx context.Context, channel string) (<-chan []byte, func() error)

	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
}
