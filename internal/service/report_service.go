package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/stemsi/ieltsmock-backend/internal/model"
	"github.com/stemsi/ieltsmock-backend/internal/repository"
)

// ReportService serves the admin results and student summaries.
type ReportService struct {
	attempts repository.AttemptRepository
}

// NewReportService creates a new ReportService.
func NewReportService(attempts repository.AttemptRepository) *ReportService {
	return &ReportService{attempts: attempts}
}

// Results lists attempts made with adminID's keys, optionally for one test.
func (s *ReportService) Results(ctx context.Context, adminID int, testID *uuid.UUID) ([]model.AttemptResult, error) {
	results, err := s.attempts.ListResultsByCreator(ctx, adminID, testID)
	if err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}
	if results == nil {
		results = []model.AttemptResult{}
	}
	return results, nil
}

// Students aggregates adminID's attempts by candidate name.
func (s *ReportService) Students(ctx context.Context, adminID int) ([]model.StudentSummary, error) {
	out, err := s.attempts.SummarizeStudents(ctx, adminID)
	if err != nil {
		return nil, fmt.Errorf("summarize students: %w", err)
	}
	if out == nil {
		out = []model.StudentSummary{}
	}
	return out, nil
}
