package session

import (
	"context"
	"errors"
	"time"

	"github.com/stemsi/ieltsmock-backend/internal/model"
)

var (
	// ErrNotStarted is returned when the poll budget runs out while the
	// student is still waiting. It is a warning for the caller, who may
	// poll again.
	ErrNotStarted = errors.New("test has not started yet")
	// ErrNotQueued is returned when the entry is gone, left or timed out.
	ErrNotQueued = errors.New("not in the waiting queue")
)

// StatusSource reports a student's queue state.
type StatusSource interface {
	PollStatus(ctx context.Context, studentID int) (*model.QueueStatusView, error)
}

// QueuePoller waits for a student's queue entry to reach preparation or
// started, within the configured poll policy.
type QueuePoller struct {
	source StatusSource
	policy model.PollPolicy
}

// NewQueuePoller creates a poller with the given policy.
func NewQueuePoller(source StatusSource, policy model.PollPolicy) *QueuePoller {
	return &QueuePoller{source: source, policy: policy}
}

// Wait polls until the entry is ready, leaves the waiting states, or the
// poll budget is spent. The last view is returned alongside ErrNotStarted
// and ErrNotQueued.
func (p *QueuePoller) Wait(ctx context.Context, studentID int) (*model.QueueStatusView, error) {
	interval := time.Duration(p.policy.IntervalMS) * time.Millisecond
	polls := max(p.policy.MaxPolls, 1)

	var last *model.QueueStatusView
	for i := range polls {
		if i > 0 {
			t := time.NewTimer(interval)
			select {
			case <-ctx.Done():
				t.Stop()
				return last, ctx.Err()
			case <-t.C:
			}
		}

		view, err := p.source.PollStatus(ctx, studentID)
		if err != nil {
			return last, err
		}
		last = view

		switch view.Status {
		case model.QueueStatusPreparation, model.QueueStatusStarted:
			return view, nil
		case model.QueueStatusWaiting, model.QueueStatusAssigned:
			continue
		default:
			return view, ErrNotQueued
		}
	}
	return last, ErrNotStarted
}
