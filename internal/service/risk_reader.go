package service

import (
	"context"
	"fmt"

	"github.com/kursadbilgin/risk-alert-engine/internal/domain"
	"github.com/kursadbilgin/risk-alert-engine/internal/repository"
	"go.uber.org/zap"
)

// RiskReader pulls an academic snapshot and reduces it to the candidates
// failing one rule.
type RiskReader struct {
	store  repository.AcademicStore
	logger *zap.Logger
}

func NewRiskReader(store repository.AcademicStore, logger *zap.Logger) (*RiskReader, error) {
	if store == nil {
		return nil, fmt.Errorf("academic store is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &RiskReader{
		store:  store,
		logger: logger,
	}, nil
}

func (r *RiskReader) Candidates(
	ctx context.Context,
	kind domain.RuleKind,
	rules domain.RuleSet,
	academicYear *int,
) ([]domain.RiskCandidate, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	filter := repository.AcademicFilter{AcademicYear: academicYear}

	var candidates []domain.RiskCandidate
	switch kind {
	case domain.RuleAttendance:
		records, err := r.store.Attendance(ctx, filter)
		if err != nil {
			return nil, fmt.Errorf("failed to read attendance: %w", err)
		}
		candidates = EvaluateAttendance(records, rules.Attendance)
	case domain.RuleMarks:
		records, err := r.store.Marks(ctx, filter)
		if err != nil {
			return nil, fmt.Errorf("failed to read marks: %w", err)
		}
		candidates = EvaluateMarks(records, rules.Marks)
	case domain.RuleDecline:
		records, err := r.store.Marks(ctx, filter)
		if err != nil {
			return nil, fmt.Errorf("failed to read marks: %w", err)
		}
		candidates = EvaluateDecline(records, rules.Decline)
	default:
		return nil, fmt.Errorf("%w: unsupported rule kind %q", domain.ErrValidation, kind)
	}

	addressable := candidates[:0]
	for _, c := range candidates {
		if c.StudentUserID == "" {
			r.logger.Warn("student has no linked user account, skipping candidate",
				zap.String("rule", kind.String()),
				zap.String("studentId", c.StudentID),
				zap.String("subjectId", c.SubjectID),
			)
			continue
		}
		addressable = append(addressable, c)
	}

	return addressable, nil
}
