package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kursadbilgin/risk-alert-engine/internal/domain"
	"github.com/kursadbilgin/risk-alert-engine/internal/observability"
	"github.com/kursadbilgin/risk-alert-engine/internal/repository"
	"go.uber.org/zap"
)

// AlertEngine runs evaluation passes: read candidates, address them, write.
type AlertEngine struct {
	reader    *RiskReader
	directory repository.Directory
	writer    *AlertWriter
	rules     domain.RuleSet
	logger    *zap.Logger
	now       func() time.Time
}

func NewAlertEngine(
	reader *RiskReader,
	directory repository.Directory,
	writer *AlertWriter,
	rules domain.RuleSet,
	logger *zap.Logger,
) (*AlertEngine, error) {
	if reader == nil || writer == nil {
		return nil, fmt.Errorf("risk reader and alert writer are required")
	}
	if err := rules.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &AlertEngine{
		reader:    reader,
		directory: directory,
		writer:    writer,
		rules:     rules,
		logger:    logger,
		now:       time.Now,
	}, nil
}

// TriggerLowAttendanceAlerts evaluates attendance with the configured
// threshold, or with threshold when it is non-nil.
func (e *AlertEngine) TriggerLowAttendanceAlerts(ctx context.Context, threshold *float64) (RunSummary, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	rules := e.rules
	if threshold != nil {
		rules.Attendance = domain.AttendanceRule{Threshold: *threshold}
		if err := rules.Attendance.Validate(); err != nil {
			return RunSummary{}, err
		}
	}

	start := e.now()
	summary, err := e.runPass(ctx, domain.RuleAttendance, rules, nil, nil)
	summary.Duration = e.now().Sub(start)
	if err != nil {
		return summary, err
	}

	e.logSummary(ctx, "low attendance pass finished", summary)
	return summary, nil
}

// TriggerAtRiskAlerts runs the marks and decline passes. A pass whose read
// fails is skipped and listed in FailedKinds; an error is returned only when
// every pass failed.
func (e *AlertEngine) TriggerAtRiskAlerts(ctx context.Context, academicYear *int) (RunSummary, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if academicYear != nil && (*academicYear < 1900 || *academicYear > 9999) {
		return RunSummary{}, fmt.Errorf("%w: academic year %d out of range", domain.ErrValidation, *academicYear)
	}

	start := e.now()
	escalation := newEscalationResolver(e.directory, academicYear)

	var (
		summary RunSummary
		errs    []error
	)
	for _, kind := range []domain.RuleKind{domain.RuleMarks, domain.RuleDecline} {
		passSummary, err := e.runPass(ctx, kind, e.rules, academicYear, escalation)
		if err != nil {
			observability.WithContextLogger(e.logger, ctx).Error("at-risk pass skipped",
				zap.String("rule", kind.String()),
				zap.Error(err),
			)
			summary.FailedKinds = append(summary.FailedKinds, kind)
			errs = append(errs, err)
			continue
		}
		summary.add(passSummary)
	}
	summary.Duration = e.now().Sub(start)

	if len(summary.FailedKinds) == 2 {
		return summary, errors.Join(errs...)
	}

	e.logSummary(ctx, "at-risk pass finished", summary)
	return summary, nil
}

func (e *AlertEngine) runPass(
	ctx context.Context,
	kind domain.RuleKind,
	rules domain.RuleSet,
	academicYear *int,
	escalation *escalationResolver,
) (RunSummary, error) {
	candidates, err := e.reader.Candidates(ctx, kind, rules, academicYear)
	if err != nil {
		return RunSummary{}, err
	}

	verdicts := make([]domain.Verdict, 0, len(candidates))
	for _, c := range candidates {
		var faculty, tutor string
		if escalation != nil {
			faculty, tutor = escalation.resolve(ctx, c, e.logger)
		}
		verdicts = append(verdicts, BuildVerdict(c, faculty, tutor))
	}

	return e.writer.Write(ctx, verdicts), nil
}

func (e *AlertEngine) logSummary(ctx context.Context, msg string, summary RunSummary) {
	observability.WithContextLogger(e.logger, ctx).Info(msg,
		zap.Int("sent", summary.AlertsSent),
		zap.Int("skipped", summary.Skipped),
		zap.Int("errors", summary.Errors),
		zap.Duration("duration", summary.Duration),
	)
}

// escalationResolver memoizes directory lookups for a single run.
type escalationResolver struct {
	directory    repository.Directory
	academicYear *int
	faculty      map[string]string
	tutors       map[int]string
}

func newEscalationResolver(directory repository.Directory, academicYear *int) *escalationResolver {
	if directory == nil {
		return nil
	}
	return &escalationResolver{
		directory:    directory,
		academicYear: academicYear,
		faculty:      make(map[string]string),
		tutors:       make(map[int]string),
	}
}

// resolve returns the subject's faculty and, only when there is none, the
// semester tutor. Lookup failures leave the alert student-only.
func (r *escalationResolver) resolve(ctx context.Context, c domain.RiskCandidate, logger *zap.Logger) (string, string) {
	faculty, ok := r.faculty[c.SubjectID]
	if !ok {
		var err error
		faculty, err = r.directory.FacultyForSubject(ctx, c.SubjectID, r.academicYear)
		if err != nil {
			logger.Warn("failed to resolve subject faculty",
				zap.String("subjectId", c.SubjectID),
				zap.Error(err),
			)
			return "", ""
		}
		r.faculty[c.SubjectID] = faculty
	}
	if faculty != "" {
		return faculty, ""
	}

	tutor, ok := r.tutors[c.Semester]
	if !ok {
		var err error
		tutor, err = r.directory.TutorForSemester(ctx, c.Semester)
		if err != nil {
			logger.Warn("failed to resolve semester tutor",
				zap.Int("semester", c.Semester),
				zap.Error(err),
			)
			return "", ""
		}
		r.tutors[c.Semester] = tutor
	}
	return "", tutor
}
