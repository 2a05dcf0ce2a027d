package model

import "time"

// Student is a registered student account. Registered students use the
// waiting queue; anonymous candidates only need a test key and a name.
type Student struct {
	ID           int       `json:"id"`
	Email        string    `json:"email"`
	FullName     string    `json:"full_name"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// StudentRegisterRequest is the payload for student self-registration.
type StudentRegisterRequest struct {
	Email    string `json:"email" binding:"required,email,max=255"`
	FullName string `json:"full_name" binding:"required,max=255"`
	Password string `json:"password" binding:"required,min=6,max=128"`
}

// StudentLoginRequest is the payload for student authentication.
type StudentLoginRequest struct {
	Email    string `json:"email" binding:"required,email,max=255"`
	Password string `json:"password" binding:"required,min=6,max=128"`
}

// StudentSummary aggregates attempts by candidate name for admin reporting.
type StudentSummary struct {
	Name              string     `json:"name"`
	TotalAttempts     int        `json:"total_attempts"`
	CompletedAttempts int        `json:"completed_attempts"`
	LastAttempt       *time.Time `json:"last_attempt"`
}

// UpdateProfileRequest is the payload for a student renaming themselves.
type UpdateProfileRequest struct {
	FullName string `json:"full_name" binding:"required,max=255"`
}

// StudentStats summarises a registered student's history.
type StudentStats struct {
	TotalAttempts     int      `json:"total_attempts"`
	CompletedAttempts int      `json:"completed_attempts"`
	AverageBand       *float64 `json:"average_band"`
	BestBand          *float64 `json:"best_band"`
}
