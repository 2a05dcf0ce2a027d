package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/stemsi/ieltsmock-backend/internal/apperr"
	"github.com/stemsi/ieltsmock-backend/internal/model"
	"github.com/stemsi/ieltsmock-backend/internal/repository"
)

// AdminLoginResult is returned by a successful admin or owner login.
type AdminLoginResult struct {
	Admin *model.Admin `json:"admin"`
	*TokenPair
}

// AdminService handles admin authentication and the owner's management of
// admin accounts.
type AdminService struct {
	admins repository.AdminRepository
	auth   *AuthService
	log    zerolog.Logger
}

// NewAdminService creates a new AdminService.
func NewAdminService(admins repository.AdminRepository, auth *AuthService, log zerolog.Logger) *AdminService {
	return &AdminService{
		admins: admins,
		auth:   auth,
		log:    log.With().Str("component", "admin_service").Logger(),
	}
}

// Login authenticates an admin or the owner by email and password.
func (s *AdminService) Login(ctx context.Context, email, password string) (*AdminLoginResult, error) {
	admin, err := s.admins.GetByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.InvalidCredentials("invalid credentials")
		}
		return nil, fmt.Errorf("get admin: %w", err)
	}
	if err := s.auth.CheckPassword(admin.PasswordHash, password); err != nil {
		return nil, err
	}
	if !admin.IsActive {
		return nil, apperr.Forbidden("account is deactivated")
	}

	tokens, err := s.auth.IssueAdminTokens(admin.ID, admin.Role)
	if err != nil {
		return nil, err
	}
	return &AdminLoginResult{Admin: admin, TokenPair: tokens}, nil
}

// GetByID retrieves an admin by ID.
func (s *AdminService) GetByID(ctx context.Context, id int) (*model.Admin, error) {
	admin, err := s.admins.GetByID(ctx, id)
	if err != nil {
		return nil, notFound(err, "admin not found")
	}
	return admin, nil
}

// CreateAccount creates an admin or owner account.
func (s *AdminService) CreateAccount(ctx context.Context, email, name, password string, role model.AdminRole) (*model.Admin, error) {
	hash, err := s.auth.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	admin := &model.Admin{
		Email:        strings.TrimSpace(email),
		Name:         strings.TrimSpace(name),
		PasswordHash: hash,
		Role:         role,
		IsActive:     true,
	}
	if err := s.admins.Create(ctx, admin); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, apperr.Conflict("email is already registered")
		}
		return nil, fmt.Errorf("create admin: %w", err)
	}
	s.log.Info().Int("admin_id", admin.ID).Str("role", string(role)).Msg("Admin account created")
	return admin, nil
}

// CreateAdmin is the owner creating a regular admin.
func (s *AdminService) CreateAdmin(ctx context.Context, req *model.CreateAdminRequest) (*model.Admin, error) {
	return s.CreateAccount(ctx, req.Email, req.Name, req.Password, model.AdminRoleAdmin)
}

// ListAdmins returns every regular admin.
func (s *AdminService) ListAdmins(ctx context.Context) ([]model.Admin, error) {
	admins, err := s.admins.List(ctx, model.AdminRoleAdmin)
	if err != nil {
		return nil, fmt.Errorf("list admins: %w", err)
	}
	if admins == nil {
		admins = []model.Admin{}
	}
	return admins, nil
}

// managed returns a regular admin; owners cannot be managed through the API.
func (s *AdminService) managed(ctx context.Context, id int) (*model.Admin, error) {
	admin, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if admin.Role == model.AdminRoleOwner {
		return nil, apperr.Forbidden("the owner account cannot be modified")
	}
	return admin, nil
}

// SetActive activates or deactivates an admin.
func (s *AdminService) SetActive(ctx context.Context, id int, active bool) error {
	if _, err := s.managed(ctx, id); err != nil {
		return err
	}
	if err := s.admins.SetActive(ctx, id, active); err != nil {
		return notFound(err, "admin not found")
	}
	s.log.Info().Int("admin_id", id).Bool("active", active).Msg("Admin status changed")
	return nil
}

// ResetPassword sets a new password for an admin.
func (s *AdminService) ResetPassword(ctx context.Context, id int, password string) error {
	if _, err := s.managed(ctx, id); err != nil {
		return err
	}
	hash, err := s.auth.HashPassword(password)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.admins.UpdatePassword(ctx, id, hash); err != nil {
		return notFound(err, "admin not found")
	}
	return nil
}

// Delete removes an admin account.
func (s *AdminService) Delete(ctx context.Context, id int) error {
	if _, err := s.managed(ctx, id); err != nil {
		return err
	}
	if err := s.admins.Delete(ctx, id); err != nil {
		return notFound(err, "admin not found")
	}
	s.log.Info().Int("admin_id", id).Msg("Admin deleted")
	return nil
}

// Stats returns the per-admin footprint.
func (s *AdminService) Stats(ctx context.Context) ([]model.AdminStats, error) {
	stats, err := s.admins.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("admin stats: %w", err)
	}
	if stats == nil {
		stats = []model.AdminStats{}
	}
	return stats, nil
}

// StatsFor returns one admin's footprint.
func (s *AdminService) StatsFor(ctx context.Context, adminID int) (*model.AdminStats, error) {
	stats, err := s.Stats(ctx)
	if err != nil {
		return nil, err
	}
	for i := range stats {
		if stats[i].AdminID == adminID {
			return &stats[i], nil
		}
	}
	admin, err := s.GetByID(ctx, adminID)
	if err != nil {
		return nil, err
	}
	return &model.AdminStats{AdminID: admin.ID, Name: admin.Name, Email: admin.Email}, nil
}

// SystemStats aggregates the per-admin stats into platform totals.
func (s *AdminService) SystemStats(ctx context.Context) (*model.SystemStats, error) {
	admins, err := s.ListAdmins(ctx)
	if err != nil {
		return nil, err
	}
	stats, err := s.Stats(ctx)
	if err != nil {
		return nil, err
	}

	out := &model.SystemStats{TotalAdmins: len(admins)}
	for _, a := range admins {
		if a.IsActive {
			out.ActiveAdmins++
		}
	}
	for _, st := range stats {
		out.TotalTests += st.TotalTests
		out.TotalKeys += st.TotalKeys
		out.TotalAttempts += st.TotalAttempts
		out.CompletedAttempts += st.SubmittedCount
	}
	return out, nil
}
