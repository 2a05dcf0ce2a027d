package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/ieltsmock-backend/internal/apperr"
	"github.com/stemsi/ieltsmock-backend/internal/broker"
	"github.com/stemsi/ieltsmock-backend/internal/config"
	"github.com/stemsi/ieltsmock-backend/internal/model"
	"github.com/stemsi/ieltsmock-backend/internal/repository"
)

// MonitorService publishes live exam events and builds monitor snapshots.
type MonitorService struct {
	store  *repository.Store
	broker broker.Broker
	log    zerolog.Logger
	now    func() time.Time
}

// NewMonitorService creates a new MonitorService.
func NewMonitorService(store *repository.Store, b broker.Broker, log zerolog.Logger) *MonitorService {
	return &MonitorService{
		store:  store,
		broker: b,
		log:    log.With().Str("component", "monitor_service").Logger(),
		now:    time.Now,
	}
}

// Publish sends ev on its test's monitor channel. Failures are logged only;
// monitoring never blocks the exam flow.
func (s *MonitorService) Publish(ctx context.Context, ev model.MonitorEvent) {
	if ev.At.IsZero() {
		ev.At = s.now()
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		s.log.Error().Err(err).Msg("marshal monitor event")
		return
	}
	channel := config.CacheKey.TestMonitorChannel(ev.TestID.String())
	if err := s.broker.Publish(ctx, channel, payload); err != nil {
		s.log.Warn().Err(err).Str("channel", channel).Msg("publish monitor event failed")
	}
}

// Subscribe opens the monitor channel for testID.
func (s *MonitorService) Subscribe(ctx context.Context, testID uuid.UUID) (<-chan []byte, func() error) {
	return s.broker.Subscribe(ctx, config.CacheKey.TestMonitorChannel(testID.String()))
}

// Snapshot returns the current attempts, queue and violation counts of a
// test owned by adminID. The three reads run concurrently.
func (s *MonitorService) Snapshot(ctx context.Context, testID uuid.UUID, adminID int) (*model.MonitorSnapshot, error) {
	test, err := s.store.Tests.GetByID(ctx, testID)
	if err != nil {
		return nil, notFound(err, "test not found")
	}
	if test.CreatedBy != adminID {
		return nil, apperr.Forbidden("test belongs to another admin")
	}

	var (
		attempts      []model.Attempt
		queue         []model.QueueEntry
		counts        map[uuid.UUID]int
		attemptErr    error
		queueErr      error
		violationsErr error
		wg            sync.WaitGroup
	)

	wg.Add(3)
	go func() {
		defer wg.Done()
		attempts, attemptErr = s.store.Attempts.ListByTest(ctx, testID)
	}()
	go func() {
		defer wg.Done()
		queue, queueErr = s.store.Queue.ListByTest(ctx, testID)
	}()
	go func() {
		defer wg.Done()
		counts, violationsErr = s.store.Violations.CountByTest(ctx, testID)
	}()
	wg.Wait()

	// Attempts are critical; queue and violations are best-effort.
	if attemptErr != nil {
		return nil, fmt.Errorf("list attempts: %w", attemptErr)
	}
	snapshot := &model.MonitorSnapshot{
		Test:           test,
		Attempts:       attempts,
		Queue:          []model.QueueEntry{},
		ViolationCount: map[uuid.UUID]int{},
	}
	if queueErr == nil && queue != nil {
		snapshot.Queue = queue
	} else if queueErr != nil {
		s.log.Warn().Err(queueErr).Msg("monitor snapshot: queue unavailable")
	}
	if violationsErr == nil && counts != nil {
		snapshot.ViolationCount = counts
		for _, n := range counts {
			snapshot.TotalViolation += n
		}
	} else if violationsErr != nil {
		s.log.Warn().Err(violationsErr).Msg("monitor snapshot: violations unavailable")
	}
	return snapshot, nil
}
