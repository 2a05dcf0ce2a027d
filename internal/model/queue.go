package model

import (
	"time"

	"github.com/google/uuid"
)

// QueueStatus is the state of a waiting-queue entry.
type QueueStatus string

const (
	QueueStatusWaiting     QueueStatus = "waiting"
	QueueStatusAssigned    QueueStatus = "assigned"
	QueueStatusPreparation QueueStatus = "preparation"
	QueueStatusStarted     QueueStatus = "started"
	QueueStatusLeft        QueueStatus = "left"
	QueueStatusTimeout     QueueStatus = "timeout"
	// QueueStatusNone is reported by status polls when no entry exists.
	QueueStatusNone QueueStatus = "none"
)

// Valid reports whether s is a persistable status.
func (s QueueStatus) Valid() bool {
	switch s {
	case QueueStatusWaiting, QueueStatusAssigned, QueueStatusPreparation,
		QueueStatusStarted, QueueStatusLeft, QueueStatusTimeout:
		return true
	}
	return false
}

// Terminal reports whether an entry in this status can no longer be left or
// timed out.
func (s QueueStatus) Terminal() bool {
	return s == QueueStatusLeft || s == QueueStatusStarted
}

// QueueEntry is a student's place in the waiting room for a test.
type QueueEntry struct {
	ID                   uuid.UUID   `json:"id"`
	StudentID            int         `json:"student_id"`
	TestCode             string      `json:"test_code"`
	TestID               uuid.UUID   `json:"test_id"`
	Status               QueueStatus `json:"status"`
	JoinedAt             time.Time   `json:"joined_at"`
	AssignedAt           *time.Time  `json:"assigned_at,omitempty"`
	PreparationStartedAt *time.Time  `json:"preparation_started_at,omitempty"`
	StartedAt            *time.Time  `json:"started_at,omitempty"`
	LeftAt               *time.Time  `json:"left_at,omitempty"`
	TimeoutAt            *time.Time  `json:"timeout_at,omitempty"`
}

// Stamp sets status and the one timestamp paired with it.
func (e *QueueEntry) Stamp(status QueueStatus, at time.Time) {
	e.Status = status
	t := at
	switch status {
	case QueueStatusAssigned:
		e.AssignedAt = &t
	case QueueStatusPreparation:
		e.PreparationStartedAt = &t
	case QueueStatusStarted:
		e.StartedAt = &t
	case QueueStatusLeft:
		e.LeftAt = &t
	case QueueStatusTimeout:
		e.TimeoutAt = &t
	}
}

// EnterTestCodeRequest is the payload for joining a test's waiting queue.
type EnterTestCodeRequest struct {
	TestCode string `json:"test_code" binding:"required,test_key"`
}

// TransitionQueueRequest is the admin payload for moving an entry.
type TransitionQueueRequest struct {
	Status QueueStatus `json:"status" binding:"required,oneof=waiting assigned preparation started left timeout"`
}

// PollPolicy tells clients how often and how long to poll queue status.
type PollPolicy struct {
	IntervalMS int `json:"interval_ms"`
	MaxPolls   int `json:"max_polls"`
}

// QueueStatusView is the response to a queue status poll.
type QueueStatusView struct {
	Status                   QueueStatus `json:"status"`
	QueueID                  *uuid.UUID  `json:"queue_id,omitempty"`
	TestID                   *uuid.UUID  `json:"test_id,omitempty"`
	JoinedAt                 *time.Time  `json:"joined_at,omitempty"`
	PreparationTimeRemaining *int        `json:"preparation_time_remaining,omitempty"`
	VariantCode              string      `json:"variant_code,omitempty"`
	Poll                     PollPolicy  `json:"poll"`
}
