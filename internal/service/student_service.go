package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/rs/zerolog"
	"github.com/stemsi/ieltsmock-backend/internal/apperr"
	"github.com/stemsi/ieltsmock-backend/internal/model"
	"github.com/stemsi/ieltsmock-backend/internal/repository"
)

// StudentLoginResult is returned by student registration and login.
type StudentLoginResult struct {
	Student *model.Student `json:"student"`
	*TokenPair
}

// StudentService handles registered student accounts and their history.
type StudentService struct {
	students repository.StudentRepository
	attempts repository.AttemptRepository
	auth     *AuthService
	log      zerolog.Logger
}

// NewStudentService creates a new StudentService.
func NewStudentService(students repository.StudentRepository, attempts repository.AttemptRepository, auth *AuthService, log zerolog.Logger) *StudentService {
	return &StudentService{
		students: students,
		attempts: attempts,
		auth:     auth,
		log:      log.With().Str("component", "student_service").Logger(),
	}
}

// Register creates a student account and logs it in.
func (s *StudentService) Register(ctx context.Context, req *model.StudentRegisterRequest) (*StudentLoginResult, error) {
	hash, err := s.auth.HashPassword(req.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	student := &model.Student{
		Email:        strings.TrimSpace(req.Email),
		FullName:     strings.TrimSpace(req.FullName),
		PasswordHash: hash,
	}
	if err := s.students.Create(ctx, student); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, apperr.Conflict("email is already registered")
		}
		return nil, fmt.Errorf("create student: %w", err)
	}

	tokens, err := s.auth.IssueStudentTokens(ctx, student.ID)
	if err != nil {
		return nil, err
	}
	s.log.Info().Int("student_id", student.ID).Msg("Student registered")
	return &StudentLoginResult{Student: student, TokenPair: tokens}, nil
}

// Login authenticates a student. A new login replaces any earlier session.
func (s *StudentService) Login(ctx context.Context, email, password string) (*StudentLoginResult, error) {
	student, err := s.students.GetByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.InvalidCredentials("invalid credentials")
		}
		return nil, fmt.Errorf("get student: %w", err)
	}
	if err := s.auth.CheckPassword(student.PasswordHash, password); err != nil {
		return nil, err
	}

	tokens, err := s.auth.IssueStudentTokens(ctx, student.ID)
	if err != nil {
		return nil, err
	}
	return &StudentLoginResult{Student: student, TokenPair: tokens}, nil
}

// Profile returns the student record.
func (s *StudentService) Profile(ctx context.Context, id int) (*model.Student, error) {
	student, err := s.students.GetByID(ctx, id)
	if err != nil {
		return nil, notFound(err, "student not found")
	}
	return student, nil
}

// UpdateProfile renames the student.
func (s *StudentService) UpdateProfile(ctx context.Context, id int, fullName string) (*model.Student, error) {
	name := strings.TrimSpace(fullName)
	if name == "" {
		return nil, apperr.Validation(map[string]string{"full_name": "full_name is required"})
	}
	student, err := s.students.UpdateFullName(ctx, id, name)
	if err != nil {
		return nil, notFound(err, "student not found")
	}
	return student, nil
}

// Attempts returns the student's attempt history, newest first.
func (s *StudentService) Attempts(ctx context.Context, id int) ([]model.AttemptResult, error) {
	results, err := s.attempts.ListResultsByStudent(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	if results == nil {
		results = []model.AttemptResult{}
	}
	return results, nil
}

// Stats summarises the student's attempts and overall bands.
func (s *StudentService) Stats(ctx context.Context, id int) (*model.StudentStats, error) {
	results, err := s.Attempts(ctx, id)
	if err != nil {
		return nil, err
	}

	stats := &model.StudentStats{TotalAttempts: len(results)}
	var sum float64
	var graded int
	for _, r := range results {
		if r.IsSubmitted {
			stats.CompletedAttempts++
		}
		if r.Scores == nil || r.Scores.Overall == nil {
			continue
		}
		band := *r.Scores.Overall
		sum += band
		graded++
		if stats.BestBand == nil || band > *stats.BestBand {
			b := band
			stats.BestBand = &b
		}
	}
	if graded > 0 {
		avg := math.Round(sum/float64(graded)*10) / 10
		stats.AverageBand = &avg
	}
	return stats, nil
}
