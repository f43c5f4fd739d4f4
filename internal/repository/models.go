package repository

import (
	"time"

	"github.com/kursadbilgin/risk-alert-engine/internal/domain"
	"gorm.io/datatypes"
)

// NotificationModel is the persistence model for the notifications table.
type NotificationModel struct {
	ID          string            `gorm:"type:uuid;primaryKey"`
	RecipientID string            `gorm:"type:varchar(64);not null"`
	SenderID    *string           `gorm:"type:varchar(64)"`
	Category    domain.Category   `gorm:"type:varchar(16);not null"`
	Title       string            `gorm:"type:varchar(200);not null"`
	Body        string            `gorm:"type:text;not null"`
	ContextKey  *string           `gorm:"type:varchar(255)"`
	RuleKind    *domain.RuleKind  `gorm:"type:varchar(20)"`
	Metadata    datatypes.JSONMap `gorm:"type:jsonb"`
	IsRead      bool              `gorm:"not null;default:false"`
	ReadAt      *time.Time        `gorm:"type:timestamptz"`
	CreatedAt   time.Time         `gorm:"type:timestamptz;not null"`
}

func (NotificationModel) TableName() string {
	return "notifications"
}

// CategoryStat is one row of the delivery statistics aggregate.
type CategoryStat struct {
	Category domain.Category `gorm:"column:category"`
	IsRead   bool            `gorm:"column:is_read"`
	Count    int64           `gorm:"column:count"`
}

type attendanceRow struct {
	StudentID       string `gorm:"column:student_id"`
	StudentUserID   string `gorm:"column:student_user_id"`
	StudentName     string `gorm:"column:student_name"`
	Semester        int    `gorm:"column:semester"`
	SubjectID       string `gorm:"column:subject_id"`
	SubjectName     string `gorm:"column:subject_name"`
	TotalClasses    int    `gorm:"column:total_classes"`
	AttendedClasses int    `gorm:"column:attended_classes"`
}

type markRow struct {
	StudentID     string  `gorm:"column:student_id"`
	StudentUserID string  `gorm:"column:student_user_id"`
	StudentName   string  `gorm:"column:student_name"`
	Semester      int     `gorm:"column:semester"`
	SubjectID     string  `gorm:"column:subject_id"`
	SubjectName   string  `gorm:"column:subject_name"`
	ExamType      string  `gorm:"column:exam_type"`
	ExamOrder     int     `gorm:"column:exam_order"`
	Obtained      float64 `gorm:"column:marks_obtained"`
	Max           float64 `gorm:"column:max_marks"`
}

func notificationModelFromDomain(n *domain.Notification) *NotificationModel {
	if n == nil {
		return nil
	}

	var metadata datatypes.JSONMap
	if len(n.Metadata) > 0 {
		metadata = datatypes.JSONMap(n.Metadata)
	}

	return &NotificationModel{
		ID:          n.ID,
		RecipientID: n.RecipientID,
		SenderID:    n.SenderID,
		Category:    n.Category,
		Title:       n.Title,
		Body:        n.Body,
		ContextKey:  n.ContextKey,
		RuleKind:    n.RuleKind,
		Metadata:    metadata,
		IsRead:      n.IsRead,
		ReadAt:      n.ReadAt,
		CreatedAt:   n.CreatedAt,
	}
}

func notificationModelToDomain(m *NotificationModel) *domain.Notification {
	if m == nil {
		return nil
	}

	var metadata map[string]any
	if len(m.Metadata) > 0 {
		metadata = map[string]any(m.Metadata)
	}

	return &domain.Notification{
		ID:          m.ID,
		RecipientID: m.RecipientID,
		SenderID:    m.SenderID,
		Category:    m.Category,
		Title:       m.Title,
		Body:        m.Body,
		ContextKey:  m.ContextKey,
		RuleKind:    m.RuleKind,
		Metadata:    metadata,
		IsRead:      m.IsRead,
		ReadAt:      m.ReadAt,
		CreatedAt:   m.CreatedAt,
	}
}

func attendanceRowToDomain(r attendanceRow) domain.AttendanceRecord {
	return domain.AttendanceRecord{
		StudentID:       r.StudentID,
		StudentUserID:   r.StudentUserID,
		StudentName:     r.StudentName,
		Semester:        r.Semester,
		SubjectID:       r.SubjectID,
		SubjectName:     r.SubjectName,
		TotalClasses:    r.TotalClasses,
		AttendedClasses: r.AttendedClasses,
	}
}

func markRowToDomain(r markRow) domain.MarkRecord {
	return domain.MarkRecord{
		StudentID:     r.StudentID,
		StudentUserID: r.StudentUserID,
		StudentName:   r.StudentName,
		Semester:      r.Semester,
		SubjectID:     r.SubjectID,
		SubjectName:   r.SubjectName,
		ExamType:      r.ExamType,
		ExamOrder:     r.ExamOrder,
		Obtained:      r.Obtained,
		Max:           r.Max,
	}
}
