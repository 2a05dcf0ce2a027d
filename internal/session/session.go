package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/ieltsmock-backend/internal/apperr"
	"github.com/stemsi/ieltsmock-backend/internal/model"
	"github.com/stemsi/ieltsmock-backend/internal/service"
)

var (
	// ErrBlocked is returned for exam actions while the gate is locked.
	ErrBlocked = errors.New("exam is locked until fullscreen is restored")
	// ErrClosed is returned once the session has ended.
	ErrClosed = errors.New("session closed")
)

// Attempts is the slice of the attempt service a session drives.
type Attempts interface {
	SaveSection(ctx context.Context, attemptID uuid.UUID, section model.Section, answers model.SectionAnswers) (*model.Attempt, error)
	SaveHighlights(ctx context.Context, attemptID uuid.UUID, highlights []model.Highlight) (*model.Attempt, error)
	Submit(ctx context.Context, attemptID uuid.UUID) (*service.SubmitResult, error)
	RecordViolation(ctx context.Context, a *model.Attempt, kind model.ViolationKind, detail string)
}

// Hooks receive session notifications. Nil hooks are skipped.
type Hooks struct {
	Tick        func(remaining int, warning bool)
	TimeUp      func()
	GateChanged func(blocked bool)
	Submitted   func(res *service.SubmitResult)
}

// Options configures a Session.
type Options struct {
	Tick        time.Duration
	SubmitDelay time.Duration
	Hooks       Hooks
}

// Session is the controller for one connected exam. The timer and manual
// submit requests both go through Submit, which seals the attempt once.
type Session struct {
	ctx      context.Context
	attempt  *model.Attempt
	attempts Attempts
	timer    *Timer
	gate     *Gate
	hooks    Hooks
	log      zerolog.Logger

	mu      sync.Mutex
	section model.Section
	result  *service.SubmitResult

	closeOnce sync.Once
	closed    chan struct{}
}

// New builds a session for attempt with remaining seconds on the clock.
// ctx bounds background violation reporting.
func New(ctx context.Context, attempt *model.Attempt, remaining int, attempts Attempts, opts Options, log zerolog.Logger) *Session {
	s := &Session{
		ctx:      ctx,
		attempt:  attempt,
		attempts: attempts,
		hooks:    opts.Hooks,
		section:  model.SectionListening,
		closed:   make(chan struct{}),
		log: log.With().
			Str("component", "exam_session").
			Str("attempt_id", attempt.ID.String()).
			Logger(),
	}
	s.timer = NewTimer(remaining, TimerOptions{
		Tick:        opts.Tick,
		AutoSubmit:  true,
		SubmitDelay: opts.SubmitDelay,
		OnTick: func(left int) {
			if s.hooks.Tick != nil {
				s.hooks.Tick(left, left > 0 && left < WarningThreshold)
			}
		},
		OnTimeout: func() {
			s.log.Info().Msg("Exam time is up")
			if s.hooks.TimeUp != nil {
				s.hooks.TimeUp()
			}
		},
	})
	s.gate = NewGate(s.hooks.GateChanged, s.reportViolation)
	return s
}

// Run starts the timer and blocks until the session closes, ctx ends, or
// the timer requests an automatic submit.
func (s *Session) Run(ctx context.Context) {
	s.timer.Start(ctx)

	select {
	case <-ctx.Done():
	case <-s.closed:
	case <-s.timer.AutoSubmit():
		if _, err := s.Submit(ctx); err != nil {
			s.log.Error().Err(err).Msg("Auto-submit failed")
		}
	}
}

// Gate exposes the anti-cheat gate for client signals.
func (s *Session) Gate() *Gate {
	return s.gate
}

// Remaining returns the seconds left on the session clock.
func (s *Session) Remaining() int {
	return s.timer.Remaining()
}

// Section returns the section the client last navigated to.
func (s *Session) Section() model.Section {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.section
}

func (s *Session) reportViolation(kind model.ViolationKind) {
	s.log.Warn().Str("violation", string(kind)).Msg("Anti-cheat signal")
	s.attempts.RecordViolation(s.ctx, s.attempt, kind, string(s.Section()))
}

// ready refuses exam actions after submit or while the gate is locked.
func (s *Session) ready() error {
	s.mu.Lock()
	sealed := s.result != nil
	s.mu.Unlock()
	if sealed {
		return apperr.AlreadySubmitted("attempt has already been submitted")
	}
	select {
	case <-s.closed:
		return ErrClosed
	default:
	}
	if s.gate.Blocked() {
		return ErrBlocked
	}
	return nil
}

// Navigate moves the client to another section.
func (s *Session) Navigate(section model.Section) error {
	if !section.Valid() {
		return apperr.Validation(map[string]string{"section": "section must be one of reading, listening, writing"})
	}
	if err := s.ready(); err != nil {
		return err
	}
	s.mu.Lock()
	s.section = section
	s.mu.Unlock()
	return nil
}

// SaveSection autosaves answers for section.
func (s *Session) SaveSection(ctx context.Context, section model.Section, answers model.SectionAnswers) (*model.Attempt, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	return s.attempts.SaveSection(ctx, s.attempt.ID, section, answers)
}

// SaveHighlights replaces the highlight list.
func (s *Session) SaveHighlights(ctx context.Context, highlights []model.Highlight) (*model.Attempt, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	return s.attempts.SaveHighlights(ctx, s.attempt.ID, highlights)
}

// Submit seals the attempt. Submitting is allowed while the gate is locked,
// and only the first successful call reaches the attempt service; later
// calls return the cached result flagged as already submitted.
func (s *Session) Submit(ctx context.Context) (*service.SubmitResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.result != nil {
		return &service.SubmitResult{Attempt: s.result.Attempt, AlreadySubmitted: true}, nil
	}

	res, err := s.attempts.Submit(ctx, s.attempt.ID)
	if err != nil {
		return nil, err
	}
	s.result = res
	s.timer.Stop()
	s.log.Info().Bool("already_submitted", res.AlreadySubmitted).Msg("Exam submitted")

	if s.hooks.Submitted != nil {
		s.hooks.Submitted(res)
	}
	return res, nil
}

// Close stops the timer and releases Run. It is safe to call repeatedly.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.timer.Stop()
		close(s.closed)
	})
}
