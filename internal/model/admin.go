package model

import "time"

// AdminRole distinguishes the platform owner from regular test administrators.
type AdminRole string

const (
	AdminRoleOwner AdminRole = "owner"
	AdminRoleAdmin AdminRole = "admin"
)

// Admin represents an administrator who authors tests and issues keys.
type Admin struct {
	ID           int       `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	PasswordHash string    `json:"-"`
	Role         AdminRole `json:"role"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// AdminLoginRequest is the payload for admin authentication.
type AdminLoginRequest struct {
	Email    string `json:"email" binding:"required,email,max=255"`
	Password string `json:"password" binding:"required,min=6,max=128"`
}

// CreateAdminRequest is the payload for the owner creating an admin.
type CreateAdminRequest struct {
	Email    string `json:"email" binding:"required,email,max=255"`
	Name     string `json:"name" binding:"required,max=255"`
	Password string `json:"password" binding:"required,min=6,max=128"`
}

// ResetPasswordRequest is the payload for the owner resetting an admin password.
type ResetPasswordRequest struct {
	Password string `json:"password" binding:"required,min=6,max=128"`
}

// SetActiveRequest toggles an account.
type SetActiveRequest struct {
	IsActive *bool `json:"is_active" binding:"required"`
}

// AdminStats summarises one admin's footprint for the owner dashboard.
type AdminStats struct {
	AdminID        int    `json:"admin_id"`
	Name           string `json:"name"`
	Email          string `json:"email"`
	TotalTests     int    `json:"total_tests"`
	TotalKeys      int    `json:"total_keys"`
	TotalAttempts  int    `json:"total_attempts"`
	SubmittedCount int    `json:"submitted_count"`
}

// SystemStats is the owner's platform-wide summary.
type SystemStats struct {
	TotalAdmins       int `json:"total_admins"`
	ActiveAdmins      int `json:"active_admins"`
	TotalTests        int `json:"total_tests"`
	TotalKeys         int `json:"total_keys"`
	TotalAttempts     int `json:"total_attempts"`
	CompletedAttempts int `json:"completed_attempts"`
}
