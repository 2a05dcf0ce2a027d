package model

import (
	"time"

	"github.com/google/uuid"
)

// ViolationKind names an anti-cheat signal reported by the exam client.
type ViolationKind string

const (
	ViolationFullscreenExit ViolationKind = "fullscreen_exit"
	ViolationWindowBlur     ViolationKind = "window_blur"
	ViolationTabHidden      ViolationKind = "tab_hidden"
)

// Violation is a recorded anti-cheat event. Recording is best-effort
// deterrence; it never blocks submission.
type Violation struct {
	ID         int64         `json:"id"`
	AttemptID  uuid.UUID     `json:"attempt_id"`
	TestID     uuid.UUID     `json:"test_id"`
	Kind       ViolationKind `json:"kind"`
	Detail     string        `json:"detail,omitempty"`
	RecordedAt time.Time     `json:"recorded_at"`
}
