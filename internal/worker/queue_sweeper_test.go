package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

type countingSweeper struct {
	calls atomic.Int32
	fail  bool
}

func (s *countingSweeper) Sweep(context.Context) (int, int, error) {
	s.calls.Add(1)
	if s.fail {
		return 0, 0, errors.New("store down")
	}
	return 1, 2, nil
}

func TestQueueSweeperRunsOnInterval(t *testing.T) {
	s := &countingSweeper{}
	w := NewQueueSweeper(s, 20*time.Millisecond, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool { return s.calls.Load() >= 3 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done
}

func TestQueueSweeperSurvivesErrors(t *testing.T) {
	s := &countingSweeper{fail: true}
	w := NewQueueSweeper(s, 10*time.Millisecond, zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	w.Start(ctx)

	assert.GreaterOrEqual(t, s.calls.Load(), int32(2))
}
