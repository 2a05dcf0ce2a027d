package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Section names an answer-bearing IELTS section.
type Section string

const (
	SectionReading   Section = "reading"
	SectionListening Section = "listening"
	SectionWriting   Section = "writing"
)

// Sections lists the answer-bearing sections in exam order.
var Sections = []Section{SectionListening, SectionReading, SectionWriting}

// Valid reports whether s is one of the answer-bearing sections.
func (s Section) Valid() bool {
	switch s {
	case SectionReading, SectionListening, SectionWriting:
		return true
	}
	return false
}

// AnswerKey maps section to question id to the accepted answer. Alternative
// answers are separated by "|".
type AnswerKey map[Section]map[string]string

// DefaultTestDuration is the exam length in minutes when none is given.
const DefaultTestDuration = 180

// Test is an exam definition. Reading, Listening and Writing hold opaque
// section content (parsed passages, question groups, prompts) as authored.
type Test struct {
	ID          uuid.UUID       `json:"id"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Type        string          `json:"type"`
	Reading     json.RawMessage `json:"reading,omitempty"`
	Listening   json.RawMessage `json:"listening,omitempty"`
	Writing     json.RawMessage `json:"writing,omitempty"`
	AnswerKey   AnswerKey       `json:"answer_key,omitempty"`
	Duration    int             `json:"duration"`
	IsActive    bool            `json:"is_active"`
	MocIDs      []uuid.UUID     `json:"moc_ids"`
	CreatedBy   int             `json:"created_by"`
	StartedAt   *time.Time      `json:"started_at,omitempty"`
	EndedAt     *time.Time      `json:"ended_at,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// CreateTestRequest is the payload for creating a test.
type CreateTestRequest struct {
	Title       string          `json:"title" binding:"required,max=255"`
	Description string          `json:"description" binding:"max=2000"`
	Type        string          `json:"type" binding:"omitempty,oneof=academic general moc"`
	Reading     json.RawMessage `json:"reading"`
	Listening   json.RawMessage `json:"listening"`
	Writing     json.RawMessage `json:"writing"`
	AnswerKey   AnswerKey       `json:"answer_key"`
	Duration    int             `json:"duration" binding:"omitempty,min=1,max=600"`
	MocIDs      []uuid.UUID     `json:"moc_ids"`
}

// UpdateTestRequest is the payload for updating a test. Nil fields are left
// unchanged.
type UpdateTestRequest struct {
	Title       *string         `json:"title" binding:"omitempty,max=255"`
	Description *string         `json:"description" binding:"omitempty,max=2000"`
	Type        *string         `json:"type" binding:"omitempty,oneof=academic general moc"`
	Reading     json.RawMessage `json:"reading"`
	Listening   json.RawMessage `json:"listening"`
	Writing     json.RawMessage `json:"writing"`
	AnswerKey   AnswerKey       `json:"answer_key"`
	Duration    *int            `json:"duration" binding:"omitempty,min=1,max=600"`
	MocIDs      []uuid.UUID     `json:"moc_ids"`
}

// TestContent is the student-facing view of a test after variant overlay.
// Answer keys are never included.
type TestContent struct {
	TestID         uuid.UUID       `json:"test_id"`
	VariantID      *uuid.UUID      `json:"variant_id,omitempty"`
	Title          string          `json:"title"`
	Type           string          `json:"type"`
	Duration       int             `json:"duration"`
	Reading        json.RawMessage `json:"reading"`
	Listening      json.RawMessage `json:"listening"`
	Writing        json.RawMessage `json:"writing"`
	ListeningAudio *string         `json:"listening_audio,omitempty"`
}
