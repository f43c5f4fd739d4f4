package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kursadbilgin/risk-alert-engine/internal/domain"
	"github.com/kursadbilgin/risk-alert-engine/internal/observability"
	"github.com/kursadbilgin/risk-alert-engine/internal/repository"
	"go.uber.org/zap"
)

// RunSummary aggregates the outcome of one job or trigger run.
type RunSummary struct {
	AlertsSent int           `json:"alertsSent"`
	Skipped    int           `json:"skipped"`
	Errors     int           `json:"errors"`
	Deleted    int64         `json:"deleted,omitempty"`
	Duration   time.Duration `json:"-"`
	// FailedKinds lists rule kinds whose pass was skipped because the
	// academic store could not be read.
	FailedKinds []domain.RuleKind `json:"failedKinds,omitempty"`
}

func (s *RunSummary) add(other RunSummary) {
	s.AlertsSent += other.AlertsSent
	s.Skipped += other.Skipped
	s.Errors += other.Errors
	s.Deleted += other.Deleted
	s.FailedKinds = append(s.FailedKinds, other.FailedKinds...)
}

// AlertWriter persists verdicts as auto notifications, suppressing any whose
// recipient still has an unread alert for the same context key.
type AlertWriter struct {
	notifications repository.NotificationRepository
	metrics       *observability.Metrics
	logger        *zap.Logger
	now           func() time.Time
	newID         func() string
}

func NewAlertWriter(
	notifications repository.NotificationRepository,
	metrics *observability.Metrics,
	logger *zap.Logger,
) (*AlertWriter, error) {
	if notifications == nil {
		return nil, fmt.Errorf("notification repository is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &AlertWriter{
		notifications: notifications,
		metrics:       metrics,
		logger:        logger,
		now:           func() time.Time { return time.Now().UTC() },
		newID:         uuid.NewString,
	}, nil
}

type alertAudience struct {
	recipientID string
	role        string
	body        string
}

// Write processes verdicts one at a time. A failing recipient is counted in
// Errors and never stops the remaining verdicts.
func (w *AlertWriter) Write(ctx context.Context, verdicts []domain.Verdict) RunSummary {
	if ctx == nil {
		ctx = context.Background()
	}
	logger := observability.WithContextLogger(w.logger, ctx)

	var summary RunSummary
	for _, v := range verdicts {
		for _, audience := range audiencesFor(v) {
			created, err := w.writeOne(ctx, v, audience)
			rule := v.Kind.String()
			switch {
			case err != nil:
				summary.Errors++
				w.metrics.IncAlertError(rule)
				logger.Error("failed to write alert",
					zap.String("rule", rule),
					zap.String("contextKey", v.ContextKey),
					zap.String("recipientId", audience.recipientID),
					zap.Error(err),
				)
			case created:
				summary.AlertsSent++
				w.metrics.IncAlertCreated(rule)
			default:
				summary.Skipped++
				w.metrics.IncAlertSkipped(rule)
				logger.Debug("unread alert already exists",
					zap.String("contextKey", v.ContextKey),
					zap.String("recipientId", audience.recipientID),
				)
			}
		}
	}

	return summary
}

func (w *AlertWriter) writeOne(ctx context.Context, v domain.Verdict, audience alertAudience) (bool, error) {
	exists, err := w.notifications.ExistsUnreadByContext(ctx, audience.recipientID, v.ContextKey)
	if err != nil {
		return false, fmt.Errorf("dedup check: %w", err)
	}
	if exists {
		return false, nil
	}

	kind := v.Kind
	contextKey := v.ContextKey
	notification := &domain.Notification{
		ID:          w.newID(),
		RecipientID: audience.recipientID,
		Category:    domain.CategoryAuto,
		Title:       v.Title,
		Body:        audience.body,
		ContextKey:  &contextKey,
		RuleKind:    &kind,
		Metadata:    alertMetadata(v, audience.role),
		CreatedAt:   w.now(),
	}
	if err := notification.Validate(); err != nil {
		return false, err
	}

	if err := w.notifications.Create(ctx, notification); err != nil {
		return false, fmt.Errorf("create notification: %w", err)
	}
	return true, nil
}

func audiencesFor(v domain.Verdict) []alertAudience {
	audiences := []alertAudience{{
		recipientID: v.RecipientID,
		role:        "student",
		body:        v.Reason,
	}}
	if v.SecondaryRecipientID != "" && v.SecondaryRecipientID != v.RecipientID {
		body := v.Reason
		if name := v.Candidate.StudentName; name != "" {
			body = name + ": " + v.Reason
		}
		audiences = append(audiences, alertAudience{
			recipientID: v.SecondaryRecipientID,
			role:        "escalation",
			body:        body,
		})
	}
	return audiences
}

func alertMetadata(v domain.Verdict, role string) map[string]any {
	c := v.Candidate
	metadata := map[string]any{
		"audience":    role,
		"studentId":   c.StudentID,
		"subjectId":   c.SubjectID,
		"subjectName": c.SubjectName,
		"value":       c.Value,
		"threshold":   c.Threshold,
	}
	if v.Kind == domain.RuleDecline {
		metadata["previous"] = c.Previous
	}
	return metadata
}
