package model

import (
	"time"

	"github.com/google/uuid"
)

// AttemptStatus is derived from an attempt's timestamps.
type AttemptStatus string

const (
	AttemptStatusCreated    AttemptStatus = "CREATED"
	AttemptStatusInProgress AttemptStatus = "IN_PROGRESS"
	AttemptStatusSubmitted  AttemptStatus = "SUBMITTED"
)

// SectionAnswers maps question id to the student's answer.
type SectionAnswers map[string]any

// Answers holds one answer map per section.
type Answers struct {
	Reading   SectionAnswers `json:"reading"`
	Listening SectionAnswers `json:"listening"`
	Writing   SectionAnswers `json:"writing"`
}

// NewAnswers returns Answers with every section initialised.
func NewAnswers() Answers {
	return Answers{
		Reading:   SectionAnswers{},
		Listening: SectionAnswers{},
		Writing:   SectionAnswers{},
	}
}

// Section returns the answer map for s, or nil for an unknown section.
func (a *Answers) Section(s Section) SectionAnswers {
	switch s {
	case SectionReading:
		return a.Reading
	case SectionListening:
		return a.Listening
	case SectionWriting:
		return a.Writing
	}
	return nil
}

// Merge overlays values onto section s key by key. Keys absent from values
// keep their previous answers.
func (a *Answers) Merge(s Section, values SectionAnswers) {
	dst := a.Section(s)
	if dst == nil {
		dst = SectionAnswers{}
	}
	for k, v := range values {
		dst[k] = v
	}
	switch s {
	case SectionReading:
		a.Reading = dst
	case SectionListening:
		a.Listening = dst
	case SectionWriting:
		a.Writing = dst
	}
}

// Highlight is a text range the student marked in a passage. Section and
// Target are optional locators; clients may send only text, range and color.
type Highlight struct {
	Text    string  `json:"text" binding:"max=4000"`
	Start   int     `json:"start" binding:"min=0"`
	End     int     `json:"end" binding:"gtefield=Start"`
	Color   string  `json:"color,omitempty" binding:"max=32"`
	Section Section `json:"section,omitempty" binding:"omitempty,ielts_section"`
	Target  string  `json:"target,omitempty" binding:"omitempty,max=128"`
}

// SectionScore is the raw and band score for an auto-graded section.
type SectionScore struct {
	Correct int     `json:"correct"`
	Total   int     `json:"total"`
	Band    float64 `json:"band"`
}

// Scores holds grading output. Writing and speaking bands are filled in by
// examiners; Overall is set only once all four bands exist.
type Scores struct {
	Reading   *SectionScore `json:"reading,omitempty"`
	Listening *SectionScore `json:"listening,omitempty"`
	Writing   *float64      `json:"writing,omitempty"`
	Speaking  *float64      `json:"speaking,omitempty"`
	Overall   *float64      `json:"overall,omitempty"`
	GradedAt  time.Time     `json:"graded_at"`
}

// Attempt is one student's sitting of a test, bound to one test key.
type Attempt struct {
	ID            uuid.UUID   `json:"id"`
	TestID        uuid.UUID   `json:"test_id"`
	TestKey       string      `json:"test_key"`
	StudentName   string      `json:"student_name"`
	StudentID     *int        `json:"student_id,omitempty"`
	AssignedMocID *uuid.UUID  `json:"assigned_moc_id,omitempty"`
	Answers       Answers     `json:"answers"`
	Highlights    []Highlight `json:"highlights"`
	Recordings    []string    `json:"recordings"`
	Scores        *Scores     `json:"scores,omitempty"`
	StartedAt     time.Time   `json:"started_at"`
	LastSaved     *time.Time  `json:"last_saved,omitempty"`
	SubmittedAt   *time.Time  `json:"submitted_at,omitempty"`
	IsSubmitted   bool        `json:"is_submitted"`
	Duration      int         `json:"duration"`
}

// Status derives the lifecycle state.
func (a *Attempt) Status() AttemptStatus {
	switch {
	case a.IsSubmitted:
		return AttemptStatusSubmitted
	case a.LastSaved != nil:
		return AttemptStatusInProgress
	default:
		return AttemptStatusCreated
	}
}

// AccessRequest is the payload for entering a test with a key.
type AccessRequest struct {
	TestKey  string `json:"test_key" binding:"required,test_key"`
	FullName string `json:"full_name" binding:"required,max=255"`
}

// SaveSectionRequest carries a partial answer map for one section.
type SaveSectionRequest struct {
	Answers SectionAnswers `json:"answers" binding:"required"`
}

// SaveHighlightsRequest replaces the highlight list.
type SaveHighlightsRequest struct {
	Highlights []Highlight `json:"highlights" binding:"omitempty,dive"`
}

// AttemptResult is the admin reporting row for one attempt.
type AttemptResult struct {
	ID          uuid.UUID  `json:"id"`
	TestKey     string     `json:"test_key"`
	TestTitle   string     `json:"test_title"`
	StudentName string     `json:"student_name"`
	StartedAt   time.Time  `json:"started_at"`
	SubmittedAt *time.Time `json:"submitted_at"`
	IsSubmitted bool       `json:"is_submitted"`
	Duration    int        `json:"duration"`
	Scores      *Scores    `json:"scores,omitempty"`
}
