package model

import (
	"time"

	"github.com/google/uuid"
)

// TestKey is a single-use access credential binding one student to one test.
type TestKey struct {
	Key       string     `json:"key"`
	TestID    uuid.UUID  `json:"test_id"`
	CreatedBy int        `json:"created_by"`
	IsActive  bool       `json:"is_active"`
	UsedBy    *string    `json:"used_by"`
	UsedAt    *time.Time `json:"used_at"`
	CreatedAt time.Time  `json:"created_at"`
}

// TestKeyListItem is a key joined with its test title for admin listings.
type TestKeyListItem struct {
	TestKey
	TestTitle string `json:"test_title"`
}

// GenerateKeysRequest asks for a batch of keys for one test.
type GenerateKeysRequest struct {
	Count int `json:"count" binding:"omitempty,min=1,max=200"`
}
