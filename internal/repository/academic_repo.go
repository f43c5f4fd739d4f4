package repository

import (
	"context"

	"github.com/kursadbilgin/risk-alert-engine/internal/domain"
	"gorm.io/gorm"
)

// AcademicFilter narrows academic queries. Nil fields are not applied.
type AcademicFilter struct {
	StudentID    *string
	SubjectID    *string
	AcademicYear *int
}

// AcademicStore is the read-only view over the portal's academic tables.
type AcademicStore interface {
	Attendance(ctx context.Context, filter AcademicFilter) ([]domain.AttendanceRecord, error)
	// Marks returns rows ordered chronologically per student and subject.
	Marks(ctx context.Context, filter AcademicFilter) ([]domain.MarkRecord, error)
}

// Directory resolves who supervises a subject or a semester.
type Directory interface {
	FacultyForSubject(ctx context.Context, subjectID string, academicYear *int) (string, error)
	TutorForSemester(ctx context.Context, semester int) (string, error)
}

type GormAcademicRepo struct {
	db *gorm.DB
}

func NewGormAcademicRepo(db *gorm.DB) *GormAcademicRepo {
	return &GormAcademicRepo{db: db}
}

func (r *GormAcademicRepo) Attendance(ctx context.Context, filter AcademicFilter) ([]domain.AttendanceRecord, error) {
	query := r.db.WithContext(ctx).
		Table("attendance AS a").
		Select(`CAST(a.student_id AS TEXT) AS student_id,
			COALESCE(CAST(st.user_id AS TEXT), '') AS student_user_id,
			st.student_name,
			st.semester,
			CAST(a.subject_id AS TEXT) AS subject_id,
			s.subject_name,
			a.total_classes,
			a.attended_classes`).
		Joins("JOIN students st ON st.id = a.student_id").
		Joins("JOIN subjects s ON s.id = a.subject_id")
	query = applyAcademicFilter(query, "a", filter)

	var rows []attendanceRow
	if err := query.Order("a.student_id, a.subject_id").Scan(&rows).Error; err != nil {
		return nil, storeError(err)
	}

	records := make([]domain.AttendanceRecord, 0, len(rows))
	for _, row := range rows {
		records = append(records, attendanceRowToDomain(row))
	}
	return records, nil
}

func (r *GormAcademicRepo) Marks(ctx context.Context, filter AcademicFilter) ([]domain.MarkRecord, error) {
	query := r.db.WithContext(ctx).
		Table("marks AS m").
		Select(`CAST(m.student_id AS TEXT) AS student_id,
			COALESCE(CAST(st.user_id AS TEXT), '') AS student_user_id,
			st.student_name,
			st.semester,
			CAST(m.subject_id AS TEXT) AS subject_id,
			s.subject_name,
			m.exam_type,
			m.exam_order,
			m.marks_obtained,
			m.max_marks`).
		Joins("JOIN students st ON st.id = m.student_id").
		Joins("JOIN subjects s ON s.id = m.subject_id")
	query = applyAcademicFilter(query, "m", filter)

	var rows []markRow
	if err := query.Order("m.student_id, m.subject_id, m.exam_order, m.exam_type").Scan(&rows).Error; err != nil {
		return nil, storeError(err)
	}

	records := make([]domain.MarkRecord, 0, len(rows))
	for _, row := range rows {
		records = append(records, markRowToDomain(row))
	}
	return records, nil
}

func applyAcademicFilter(query *gorm.DB, alias string, filter AcademicFilter) *gorm.DB {
	if filter.AcademicYear != nil {
		query = query.
			Joins("JOIN student_subjects ss ON ss.student_id = "+alias+".student_id AND ss.subject_id = "+alias+".subject_id").
			Where("ss.academic_year = ?", *filter.AcademicYear)
	}
	if filter.StudentID != nil {
		query = query.Where("CAST("+alias+".student_id AS TEXT) = ?", *filter.StudentID)
	}
	if filter.SubjectID != nil {
		query = query.Where("CAST("+alias+".subject_id AS TEXT) = ?", *filter.SubjectID)
	}
	return query
}

type GormDirectoryRepo struct {
	db *gorm.DB
}

func NewGormDirectoryRepo(db *gorm.DB) *GormDirectoryRepo {
	return &GormDirectoryRepo{db: db}
}

// FacultyForSubject returns the faculty user assigned to the subject, or ""
// when nobody is assigned.
func (r *GormDirectoryRepo) FacultyForSubject(ctx context.Context, subjectID string, academicYear *int) (string, error) {
	query := r.db.WithContext(ctx).
		Table("faculty_subjects").
		Where("CAST(subject_id AS TEXT) = ?", subjectID)
	if academicYear != nil {
		query = query.Where("academic_year = ?", *academicYear)
	}

	var ids []string
	err := query.
		Order("academic_year DESC").
		Limit(1).
		Pluck("CAST(faculty_user_id AS TEXT)", &ids).Error
	if err != nil {
		return "", storeError(err)
	}
	if len(ids) == 0 {
		return "", nil
	}
	return ids[0], nil
}

// TutorForSemester returns the tutor user of a semester, or "" when none.
func (r *GormDirectoryRepo) TutorForSemester(ctx context.Context, semester int) (string, error) {
	var ids []string
	err := r.db.WithContext(ctx).
		Table("semester_tutors").
		Where("semester = ?", semester).
		Limit(1).
		Pluck("CAST(tutor_user_id AS TEXT)", &ids).Error
	if err != nil {
		return "", storeError(err)
	}
	if len(ids) == 0 {
		return "", nil
	}
	return ids[0], nil
}
