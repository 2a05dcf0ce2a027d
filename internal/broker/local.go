package broker

import (
	"context"
	"sync"
	"time"
)

// Local is an in-process Broker for single-node development and tests.
type Local struct {
	mu      sync.Mutex
	lists   map[string][][]byte
	signals map[string]chan struct{}
	subs    map[string]map[int]chan []byte
	nextSub int
	kv      map[string]entry
	now     func() time.Time
}

type entry struct {
	value   []byte
	expires time.Time
}

// NewLocal returns an empty Local broker.
func NewLocal() *Local {
	return &Local{
		lists:   make(map[string][][]byte),
		signals: make(map[string]chan struct{}),
		subs:    make(map[string]map[int]chan []byte),
		kv:      make(map[string]entry),
		now:     time.Now,
	}
}

func (b *Local) signal(queue string) chan struct{} {
	ch, ok := b.signals[queue]
	if !ok {
		ch = make(chan struct{}, 1)
		b.signals[queue] = ch
	}
	return ch
}

func (b *Local) Push(_ context.Context, queue string, payloads ...[]byte) error {
	b.mu.Lock()
	for _, p := range payloads {
		b.lists[queue] = append(b.lists[queue], append([]byte(nil), p...))
	}
	ch := b.signal(queue)
	b.mu.Unlock()

	select {
	case ch <- struct{}{}:
	default:
	}
	return nil
}

func (b *Local) Pop(ctx context.Context, queue string, timeout time.Duration) ([]byte, error) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for {
		b.mu.Lock()
		if items := b.lists[queue]; len(items) > 0 {
			head := items[0]
			b.lists[queue] = items[1:]
			more := len(items) > 1
			ch := b.signal(queue)
			b.mu.Unlock()
			if more {
				select {
				case ch <- struct{}{}:
				default:
				}
			}
			return head, nil
		}
		ch := b.signal(queue)
		b.mu.Unlock()

		select {
		case <-ch:
		case <-deadline.C:
			return nil, ErrEmpty
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Len reports the number of items waiting in queue.
func (b *Local) Len(queue string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.lists[queue])
}

func (b *Local) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs[channel] {
		select {
		case ch <- append([]byte(nil), payload...):
		default:
		}
	}
	return nil
}

func (b *Local) Subscribe(_ context.Context, channel string) (<-chan []byte, func() error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextSub++
	id := b.nextSub
	ch := make(chan []byte, 64)
	if b.subs[channel] == nil {
		b.subs[channel] = make(map[int]chan []byte)
	}
	b.subs[channel][id] = ch

	var once sync.Once
	return ch, func() error {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs[channel], id)
			b.mu.Unlock()
			close(ch)
		})
		return nil
	}
}

func (b *Local) Get(_ context.Context, key string) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.kv[key]
	if !ok {
		return nil, ErrMiss
	}
	if !e.expires.IsZero() && !b.now().Before(e.expires) {
		delete(b.kv, key)
		return nil, ErrMiss
	}
	return append([]byte(nil), e.value...), nil
}

func (b *Local) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	e := entry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		e.expires = b.now().Add(ttl)
	}
	b.kv[key] = e
	return nil
}

func (b *Local) Del(_ context.Context, keys ...string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, k := range keys {
		delete(b.kv, k)
	}
	return nil
}
