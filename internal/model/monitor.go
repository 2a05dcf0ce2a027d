package model

import (
	"time"

	"github.com/google/uuid"
)

// MonitorEventType names a live-monitor notification.
type MonitorEventType string

const (
	MonitorAttemptStarted   MonitorEventType = "attempt_started"
	MonitorAttemptResumed   MonitorEventType = "attempt_resumed"
	MonitorAttemptSaved     MonitorEventType = "attempt_saved"
	MonitorAttemptSubmitted MonitorEventType = "attempt_submitted"
	MonitorViolation        MonitorEventType = "violation"
	MonitorQueueChanged     MonitorEventType = "queue_changed"
	MonitorTestStatus       MonitorEventType = "test_status"
)

// MonitorEvent is published on a test's monitor channel.
type MonitorEvent struct {
	Type        MonitorEventType `json:"type"`
	TestID      uuid.UUID        `json:"test_id"`
	AttemptID   *uuid.UUID       `json:"attempt_id,omitempty"`
	StudentName string           `json:"student_name,omitempty"`
	Section     Section          `json:"section,omitempty"`
	Violation   ViolationKind    `json:"violation,omitempty"`
	QueueStatus QueueStatus      `json:"queue_status,omitempty"`
	At          time.Time        `json:"at"`
}

// GradeJob asks the grading worker to score a sealed attempt.
type GradeJob struct {
	AttemptID uuid.UUID `json:"attempt_id"`
}

// MonitorSnapshot is the initial state sent to a monitor subscriber.
type MonitorSnapshot struct {
	Test           *Test             `json:"test"`
	Attempts       []Attempt         `json:"attempts"`
	Queue          []QueueEntry      `json:"queue"`
	ViolationCount map[uuid.UUID]int `json:"violation_count"`
	TotalViolation int               `json:"total_violation"`
}
