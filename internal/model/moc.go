package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ParsedContent holds section content extracted from uploaded variant files.
type ParsedContent struct {
	Reading   json.RawMessage `json:"reading,omitempty"`
	Listening json.RawMessage `json:"listening,omitempty"`
}

// MocTest is an alternate content variant of a test. When assigned to an
// attempt, its non-empty fields replace the corresponding test fields.
type MocTest struct {
	ID             uuid.UUID       `json:"id"`
	Title          string          `json:"title"`
	Type           string          `json:"type"`
	ReadingFile    *string         `json:"reading_file,omitempty"`
	ListeningFile  *string         `json:"listening_file,omitempty"`
	ListeningAudio *string         `json:"listening_audio,omitempty"`
	WritingTopics  json.RawMessage `json:"writing_topics,omitempty"`
	AnswerKey      AnswerKey       `json:"answer_key,omitempty"`
	ParsedContent  ParsedContent   `json:"parsed_content"`
	IsActive       bool            `json:"is_active"`
	CreatedBy      int             `json:"created_by"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// CreateMocTestRequest is the payload for creating a variant.
type CreateMocTestRequest struct {
	Title          string          `json:"title" binding:"required,max=255"`
	Type           string          `json:"type" binding:"omitempty,oneof=academic general moc"`
	ReadingFile    *string         `json:"reading_file"`
	ListeningFile  *string         `json:"listening_file"`
	ListeningAudio *string         `json:"listening_audio"`
	WritingTopics  json.RawMessage `json:"writing_topics"`
	AnswerKey      AnswerKey       `json:"answer_key"`
	ParsedContent  ParsedContent   `json:"parsed_content"`
	IsActive       bool            `json:"is_active"`
}

// StartMocRequest opens a MOC session test over the given variants.
type StartMocRequest struct {
	Title    string      `json:"title" binding:"required,max=255"`
	MocIDs   []uuid.UUID `json:"moc_ids" binding:"required,min=1"`
	Duration int         `json:"duration" binding:"omitempty,min=1,max=600"`
}
