// Package docstore reads and writes the legacy single-file JSON database and
// imports it into a repository.Store.
package docstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Account is a legacy owner, admin or student record. Password holds a
// bcrypt hash.
type Account struct {
	ID        string  `json:"id"`
	Email     string  `json:"email"`
	Login     string  `json:"login,omitempty"`
	Password  string  `json:"password"`
	Name      string  `json:"name,omitempty"`
	FullName  string  `json:"fullName,omitempty"`
	IsActive  *bool   `json:"isActive,omitempty"`
	CreatedAt string  `json:"createdAt,omitempty"`
	LastLogin *string `json:"lastLogin,omitempty"`
	CreatedBy string  `json:"createdBy,omitempty"`
}

// Identity returns the email, falling back to the login name.
func (a *Account) Identity() string {
	if a.Email != "" {
		return a.Email
	}
	return a.Login
}

// Test is a legacy test definition.
type Test struct {
	ID          string                    `json:"id"`
	Title       string                    `json:"title"`
	Description string                    `json:"description"`
	Type        string                    `json:"type"`
	Reading     json.RawMessage           `json:"reading"`
	Listening   json.RawMessage           `json:"listening"`
	Writing     json.RawMessage           `json:"writing"`
	AnswerKey   map[string]map[string]any `json:"answerKey"`
	Duration    int                       `json:"duration"`
	IsActive    bool                      `json:"isActive"`
	MocIDs      []string                  `json:"mocIds,omitempty"`
	CreatedBy   string                    `json:"createdBy"`
	CreatedAt   string                    `json:"createdAt,omitempty"`
	StartedAt   *string                   `json:"startedAt"`
	EndedAt     *string                   `json:"endedAt"`
}

// TestKey is a legacy access key.
type TestKey struct {
	ID        string  `json:"id"`
	Key       string  `json:"key"`
	TestID    string  `json:"testId"`
	AdminID   string  `json:"adminId"`
	IsActive  bool    `json:"isActive"`
	CreatedAt string  `json:"createdAt,omitempty"`
	UsedBy    *string `json:"usedBy"`
	UsedAt    *string `json:"usedAt"`
}

// Attempt is a legacy attempt.
type Attempt struct {
	ID          string                    `json:"id"`
	TestKey     string                    `json:"testKey"`
	TestID      string                    `json:"testId"`
	StudentName string                    `json:"studentName"`
	StudentID   *string                   `json:"studentId"`
	Answers     map[string]map[string]any `json:"answers"`
	Highlights  json.RawMessage           `json:"highlights"`
	StartedAt   string                    `json:"startedAt"`
	LastSaved   *string                   `json:"lastSaved,omitempty"`
	SubmittedAt *string                   `json:"submittedAt"`
	IsSubmitted bool                      `json:"isSubmitted"`
	Duration    int                       `json:"duration"`
}

// MocTest is a legacy content variant.
type MocTest struct {
	ID             string                    `json:"id"`
	Title          string                    `json:"title"`
	Type           string                    `json:"type"`
	ReadingFile    *string                   `json:"readingFile"`
	ListeningFile  *string                   `json:"listeningFile"`
	ListeningAudio *string                   `json:"listeningAudio"`
	WritingTopics  json.RawMessage           `json:"writingTopics"`
	AnswerKey      map[string]map[string]any `json:"answerKey"`
	ParsedContent  json.RawMessage           `json:"parsedContent"`
	CreatedAt      string                    `json:"createdAt,omitempty"`
	CreatedBy      string                    `json:"createdBy"`
	IsActive       bool                      `json:"isActive"`
}

// QueueEntry is a legacy waiting-queue entry.
type QueueEntry struct {
	ID                   string  `json:"id"`
	StudentID            string  `json:"studentId"`
	TestCode             string  `json:"testCode"`
	TestID               string  `json:"testId"`
	Status               string  `json:"status"`
	JoinedAt             string  `json:"joinedAt"`
	AssignedAt           *string `json:"assignedAt"`
	PreparationStartedAt *string `json:"preparationStartedAt"`
	StartedAt            *string `json:"startedAt"`
	LeftAt               *string `json:"leftAt"`
	TimeoutAt            *string `json:"timeoutAt"`
}

// Document is the whole legacy database file.
type Document struct {
	Owners   []Account    `json:"owners"`
	Admins   []Account    `json:"admins"`
	Tests    []Test       `json:"tests"`
	TestKeys []TestKey    `json:"testKeys"`
	Attempts []Attempt    `json:"attempts"`
	Students []Account    `json:"students"`
	MocTests []MocTest    `json:"mocTests"`
	Queue    []QueueEntry `json:"queue"`
}

// EnsureStructure defaults every missing collection to an empty array.
func EnsureStructure(doc *Document) *Document {
	if doc.Owners == nil {
		doc.Owners = []Account{}
	}
	if doc.Admins == nil {
		doc.Admins = []Account{}
	}
	if doc.Tests == nil {
		doc.Tests = []Test{}
	}
	if doc.TestKeys == nil {
		doc.TestKeys = []TestKey{}
	}
	if doc.Attempts == nil {
		doc.Attempts = []Attempt{}
	}
	if doc.Students == nil {
		doc.Students = []Account{}
	}
	if doc.MocTests == nil {
		doc.MocTests = []MocTest{}
	}
	if doc.Queue == nil {
		doc.Queue = []QueueEntry{}
	}
	return doc
}

// Load reads the document at path, creating an empty one when the file does
// not exist.
func Load(path string) (*Document, error) {
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		doc := EnsureStructure(&Document{})
		if err := Save(path, doc); err != nil {
			return nil, err
		}
		return doc, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return EnsureStructure(&doc), nil
}

// Save writes doc to path as indented JSON. The file is replaced atomically.
func Save(path string, doc *Document) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	raw, err := json.MarshalIndent(EnsureStructure(doc), "", "  ")
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".docstore-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}
