package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/ieltsmock-backend/internal/apperr"
	"github.com/stemsi/ieltsmock-backend/internal/model"
	"github.com/stemsi/ieltsmock-backend/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAttempts struct {
	mu         sync.Mutex
	saves      int
	highlights int
	submits    atomic.Int32
	failSubmit error
	violations []model.ViolationKind
	details    []string
}

func (f *fakeAttempts) SaveSection(_ context.Context, id uuid.UUID, section model.Section, answers model.SectionAnswers) (*model.Attempt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saves++
	a := &model.Attempt{ID: id, Answers: model.NewAnswers()}
	a.Answers.Merge(section, answers)
	return a, nil
}

func (f *fakeAttempts) SaveHighlights(_ context.Context, id uuid.UUID, hl []model.Highlight) (*model.Attempt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.highlights++
	return &model.Attempt{ID: id, Highlights: hl}, nil
}

func (f *fakeAttempts) Submit(_ context.Context, id uuid.UUID) (*service.SubmitResult, error) {
	f.submits.Add(1)
	if f.failSubmit != nil {
		return nil, f.failSubmit
	}
	return &service.SubmitResult{Attempt: &model.Attempt{ID: id, IsSubmitted: true}}, nil
}

func (f *fakeAttempts) RecordViolation(_ context.Context, _ *model.Attempt, kind model.ViolationKind, detail string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.violations = append(f.violations, kind)
	f.details = append(f.details, detail)
}

func newSession(t *testing.T, remaining int, hooks Hooks) (*Session, *fakeAttempts) {
	t.Helper()
	fake := &fakeAttempts{}
	a := &model.Attempt{ID: uuid.New(), TestID: uuid.New(), StudentName: "Alice"}
	s := New(context.Background(), a, remaining, fake, Options{
		Tick:        2 * time.Millisecond,
		SubmitDelay: 5 * time.Millisecond,
		Hooks:       hooks,
	}, zerolog.Nop())
	t.Cleanup(s.Close)
	return s, fake
}

func TestSessionRefusesActionsWhileBlocked(t *testing.T) {
	s, fake := newSession(t, 600, Hooks{})
	ctx := context.Background()

	_, err := s.SaveSection(ctx, model.SectionReading, model.SectionAnswers{"1": "A"})
	assert.ErrorIs(t, err, ErrBlocked)
	assert.ErrorIs(t, s.Navigate(model.SectionReading), ErrBlocked)

	s.Gate().EnterFullscreen()
	a, err := s.SaveSection(ctx, model.SectionReading, model.SectionAnswers{"1": "A"})
	require.NoError(t, err)
	assert.Equal(t, "A", a.Answers.Reading["1"])

	require.NoError(t, s.Navigate(model.SectionReading))
	s.Gate().Blur()
	_, err = s.SaveHighlights(ctx, nil)
	assert.ErrorIs(t, err, ErrBlocked)

	assert.Equal(t, 1, fake.saves)
	assert.Zero(t, fake.highlights)
	assert.Equal(t, []model.ViolationKind{model.ViolationWindowBlur}, fake.violations)
	assert.Equal(t, []string{"reading"}, fake.details)
}

func TestSessionNavigateValidates(t *testing.T) {
	s, _ := newSession(t, 600, Hooks{})
	s.Gate().EnterFullscreen()

	assert.ErrorIs(t, s.Navigate(model.Section("speaking")), apperr.ErrValidation)
	require.NoError(t, s.Navigate(model.SectionWriting))
	assert.Equal(t, model.SectionWriting, s.Section())
}

func TestSessionSubmitOnce(t *testing.T) {
	var submitted atomic.Int32
	s, fake := newSession(t, 600, Hooks{Submitted: func(*service.SubmitResult) { submitted.Add(1) }})
	ctx := context.Background()

	var wg sync.WaitGroup
	var fresh atomic.Int32
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := s.Submit(ctx)
			if assert.NoError(t, err) && !res.AlreadySubmitted {
				fresh.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), fake.submits.Load())
	assert.Equal(t, int32(1), fresh.Load())
	assert.Equal(t, int32(1), submitted.Load())

	// Locked or not, exam edits are refused after submit.
	s.Gate().EnterFullscreen()
	_, err := s.SaveSection(ctx, model.SectionReading, model.SectionAnswers{"1": "A"})
	assert.ErrorIs(t, err, apperr.ErrAlreadySubmitted)
}

func TestSessionSubmitRetriesAfterFailure(t *testing.T) {
	s, fake := newSession(t, 600, Hooks{})
	fake.failSubmit = errors.New("db down")

	_, err := s.Submit(context.Background())
	require.Error(t, err)

	fake.failSubmit = nil
	res, err := s.Submit(context.Background())
	require.NoError(t, err)
	assert.False(t, res.AlreadySubmitted)
	assert.Equal(t, int32(2), fake.submits.Load())
}

func TestSessionAutoSubmitsOnTimeout(t *testing.T) {
	timeUp := make(chan struct{}, 1)
	submitted := make(chan *service.SubmitResult, 1)
	s, fake := newSession(t, 3, Hooks{
		TimeUp:    func() { timeUp <- struct{}{} },
		Submitted: func(res *service.SubmitResult) { submitted <- res },
	})

	done := make(chan struct{})
	go func() {
		s.Run(context.Background())
		close(done)
	}()

	select {
	case <-timeUp:
	case <-time.After(time.Second):
		t.Fatal("no time-up notification")
	}
	select {
	case res := <-submitted:
		assert.True(t, res.Attempt.IsSubmitted)
	case <-time.After(time.Second):
		t.Fatal("no auto-submit")
	}
	<-done

	// A manual submit racing the timer is a no-op.
	res, err := s.Submit(context.Background())
	require.NoError(t, err)
	assert.True(t, res.AlreadySubmitted)
	assert.Equal(t, int32(1), fake.submits.Load())
}

func TestSessionCloseReleasesRun(t *testing.T) {
	s, fake := newSession(t, 600, Hooks{})
	done := make(chan struct{})
	go func() {
		s.Run(context.Background())
		close(done)
	}()

	s.Close()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return")
	}
	assert.Zero(t, fake.submits.Load())

	s.Gate().EnterFullscreen()
	assert.ErrorIs(t, s.Navigate(model.SectionReading), ErrClosed)
}
