package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stemsi/ieltsmock-backend/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedSource struct {
	mu     sync.Mutex
	script []model.QueueStatus
	calls  int
}

func (s *scriptedSource) PollStatus(context.Context, int) (*model.QueueStatusView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	status := s.script[min(s.calls, len(s.script)-1)]
	s.calls++
	return &model.QueueStatusView{Status: status}, nil
}

func TestQueuePollerReturnsWhenReady(t *testing.T) {
	src := &scriptedSource{script: []model.QueueStatus{
		model.QueueStatusWaiting, model.QueueStatusAssigned, model.QueueStatusPreparation,
	}}
	p := NewQueuePoller(src, model.PollPolicy{IntervalMS: 1, MaxPolls: 10})

	view, err := p.Wait(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, model.QueueStatusPreparation, view.Status)
	assert.Equal(t, 3, src.calls)
}

func TestQueuePollerGivesUp(t *testing.T) {
	src := &scriptedSource{script: []model.QueueStatus{model.QueueStatusWaiting}}
	p := NewQueuePoller(src, model.PollPolicy{IntervalMS: 1, MaxPolls: 4})

	view, err := p.Wait(context.Background(), 1)
	assert.ErrorIs(t, err, ErrNotStarted)
	require.NotNil(t, view)
	assert.Equal(t, model.QueueStatusWaiting, view.Status)
	assert.Equal(t, 4, src.calls)
}

func TestQueuePollerStopsOnTimeout(t *testing.T) {
	src := &scriptedSource{script: []model.QueueStatus{model.QueueStatusWaiting, model.QueueStatusTimeout}}
	p := NewQueuePoller(src, model.PollPolicy{IntervalMS: 1, MaxPolls: 10})

	view, err := p.Wait(context.Background(), 1)
	assert.ErrorIs(t, err, ErrNotQueued)
	assert.Equal(t, model.QueueStatusTimeout, view.Status)
}

func TestQueuePollerHonoursContext(t *testing.T) {
	src := &scriptedSource{script: []model.QueueStatus{model.QueueStatusWaiting}}
	p := NewQueuePoller(src, model.PollPolicy{IntervalMS: 1000, MaxPolls: 30})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := p.Wait(ctx, 1)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.Equal(t, 1, src.calls)
}
