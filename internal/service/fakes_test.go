package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/kursadbilgin/risk-alert-engine/internal/domain"
	"github.com/kursadbilgin/risk-alert-engine/internal/lock"
	"github.com/kursadbilgin/risk-alert-engine/internal/repository"
)

type fakeNotificationRepo struct {
	createFn                func(ctx context.Context, n *domain.Notification) error
	getByIDFn               func(ctx context.Context, id string) (*domain.Notification, error)
	existsUnreadByContextFn func(ctx context.Context, recipientID string, contextKey string) (bool, error)
	listForRecipientFn      func(ctx context.Context, recipientID string, params repository.ListParams) ([]domain.Notification, int64, error)
	markReadFn              func(ctx context.Context, id string, recipientID string, readAt time.Time) (bool, error)
	markManyReadFn          func(ctx context.Context, ids []string, recipientID string, readAt time.Time) (int64, error)
	countUnreadFn           func(ctx context.Context, recipientID string) (int64, error)
	categoryStatsFn         func(ctx context.Context, since time.Time) ([]repository.CategoryStat, error)
	deleteReadBeforeFn      func(ctx context.Context, cutoff time.Time) (int64, error)
	deleteFn                func(ctx context.Context, id string) error
}

func (f *fakeNotificationRepo) Create(ctx context.Context, n *domain.Notification) error {
	if f.createFn != nil {
		return f.createFn(ctx, n)
	}
	return nil
}

func (f *fakeNotificationRepo) GetByID(ctx context.Context, id string) (*domain.Notification, error) {
	if f.getByIDFn != nil {
		return f.getByIDFn(ctx, id)
	}
	return nil, domain.ErrNotFound
}

func (f *fakeNotificationRepo) ExistsUnreadByContext(ctx context.Context, recipientID string, contextKey string) (bool, error) {
	if f.existsUnreadByContextFn != nil {
		return f.existsUnreadByContextFn(ctx, recipientID, contextKey)
	}
	return false, nil
}

func (f *fakeNotificationRepo) ListForRecipient(ctx context.Context, recipientID string, params repository.ListParams) ([]domain.Notification, int64, error) {
	if f.listForRecipientFn != nil {
		return f.listForRecipientFn(ctx, recipientID, params)
	}
	return nil, 0, nil
}

func (f *fakeNotificationRepo) MarkRead(ctx context.Context, id string, recipientID string, readAt time.Time) (bool, error) {
	if f.markReadFn != nil {
		return f.markReadFn(ctx, id, recipientID, readAt)
	}
	return true, nil
}

func (f *fakeNotificationRepo) MarkManyRead(ctx context.Context, ids []string, recipientID string, readAt time.Time) (int64, error) {
	if f.markManyReadFn != nil {
		return f.markManyReadFn(ctx, ids, recipientID, readAt)
	}
	return int64(len(ids)), nil
}

func (f *fakeNotificationRepo) CountUnread(ctx context.Context, recipientID string) (int64, error) {
	if f.countUnreadFn != nil {
		return f.countUnreadFn(ctx, recipientID)
	}
	return 0, nil
}

func (f *fakeNotificationRepo) CategoryStats(ctx context.Context, since time.Time) ([]repository.CategoryStat, error) {
	if f.categoryStatsFn != nil {
		return f.categoryStatsFn(ctx, since)
	}
	return nil, nil
}

func (f *fakeNotificationRepo) DeleteReadBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	if f.deleteReadBeforeFn != nil {
		return f.deleteReadBeforeFn(ctx, cutoff)
	}
	return 0, nil
}

func (f *fakeNotificationRepo) Delete(ctx context.Context, id string) error {
	if f.deleteFn != nil {
		return f.deleteFn(ctx, id)
	}
	return nil
}

// memoryNotificationRepo keeps rows in memory and applies the same filters
// as the gorm repository.
type memoryNotificationRepo struct {
	mu   sync.Mutex
	rows map[string]domain.Notification
}

func newMemoryNotificationRepo(rows ...domain.Notification) *memoryNotificationRepo {
	repo := &memoryNotificationRepo{rows: make(map[string]domain.Notification)}
	for _, row := range rows {
		repo.rows[row.ID] = row
	}
	return repo
}

func (m *memoryNotificationRepo) Create(_ context.Context, n *domain.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[n.ID] = *n
	return nil
}

func (m *memoryNotificationRepo) GetByID(_ context.Context, id string) (*domain.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &row, nil
}

func (m *memoryNotificationRepo) ExistsUnreadByContext(_ context.Context, recipientID string, contextKey string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, row := range m.rows {
		if row.RecipientID == recipientID && !row.IsRead && row.ContextKey != nil && *row.ContextKey == contextKey {
			return true, nil
		}
	}
	return false, nil
}

func (m *memoryNotificationRepo) ListForRecipient(_ context.Context, recipientID string, params repository.ListParams) ([]domain.Notification, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	items := make([]domain.Notification, 0)
	for _, row := range m.rows {
		if row.RecipientID != recipientID || (params.UnreadOnly && row.IsRead) {
			continue
		}
		items = append(items, row)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].CreatedAt.After(items[j].CreatedAt) })
	return items, int64(len(items)), nil
}

func (m *memoryNotificationRepo) MarkRead(_ context.Context, id string, recipientID string, readAt time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok || row.RecipientID != recipientID || row.IsRead {
		return false, nil
	}
	row.IsRead = true
	row.ReadAt = &readAt
	m.rows[id] = row
	return true, nil
}

func (m *memoryNotificationRepo) MarkManyRead(ctx context.Context, ids []string, recipientID string, readAt time.Time) (int64, error) {
	var updated int64
	for _, id := range ids {
		ok, _ := m.MarkRead(ctx, id, recipientID, readAt)
		if ok {
			updated++
		}
	}
	return updated, nil
}

func (m *memoryNotificationRepo) CountUnread(_ context.Context, recipientID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var count int64
	for _, row := range m.rows {
		if row.RecipientID == recipientID && !row.IsRead {
			count++
		}
	}
	return count, nil
}

func (m *memoryNotificationRepo) CategoryStats(context.Context, time.Time) ([]repository.CategoryStat, error) {
	return nil, nil
}

func (m *memoryNotificationRepo) DeleteReadBefore(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var deleted int64
	for id, row := range m.rows {
		if row.IsRead && row.CreatedAt.Before(cutoff) {
			delete(m.rows, id)
			deleted++
		}
	}
	return deleted, nil
}

func (m *memoryNotificationRepo) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[id]; !ok {
		return domain.ErrNotFound
	}
	delete(m.rows, id)
	return nil
}

func (m *memoryNotificationRepo) get(id string) (domain.Notification, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	return row, ok
}

func (m *memoryNotificationRepo) all() []domain.Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	rows := make([]domain.Notification, 0, len(m.rows))
	for _, row := range m.rows {
		rows = append(rows, row)
	}
	return rows
}

type fakeAcademicStore struct {
	attendanceFn func(ctx context.Context, filter repository.AcademicFilter) ([]domain.AttendanceRecord, error)
	marksFn      func(ctx context.Context, filter repository.AcademicFilter) ([]domain.MarkRecord, error)
}

func (f *fakeAcademicStore) Attendance(ctx context.Context, filter repository.AcademicFilter) ([]domain.AttendanceRecord, error) {
	if f.attendanceFn != nil {
		return f.attendanceFn(ctx, filter)
	}
	return nil, nil
}

func (f *fakeAcademicStore) Marks(ctx context.Context, filter repository.AcademicFilter) ([]domain.MarkRecord, error) {
	if f.marksFn != nil {
		return f.marksFn(ctx, filter)
	}
	return nil, nil
}

type fakeDirectory struct {
	facultyForSubjectFn func(ctx context.Context, subjectID string, academicYear *int) (string, error)
	tutorForSemesterFn  func(ctx context.Context, semester int) (string, error)
}

func (f *fakeDirectory) FacultyForSubject(ctx context.Context, subjectID string, academicYear *int) (string, error) {
	if f.facultyForSubjectFn != nil {
		return f.facultyForSubjectFn(ctx, subjectID, academicYear)
	}
	return "", nil
}

func (f *fakeDirectory) TutorForSemester(ctx context.Context, semester int) (string, error) {
	if f.tutorForSemesterFn != nil {
		return f.tutorForSemesterFn(ctx, semester)
	}
	return "", nil
}

type fakeLocker struct {
	tryAcquireFn func(ctx context.Context, name string) (lock.ReleaseFunc, bool, error)
}

func (f *fakeLocker) TryAcquire(ctx context.Context, name string) (lock.ReleaseFunc, bool, error) {
	if f.tryAcquireFn != nil {
		return f.tryAcquireFn(ctx, name)
	}
	return func(context.Context) error { return nil }, true, nil
}

func attendance(studentID string, subjectName string, total int, attended int) domain.AttendanceRecord {
	return domain.AttendanceRecord{
		StudentID:       studentID,
		StudentUserID:   "user-" + studentID,
		StudentName:     "Student " + studentID,
		Semester:        3,
		SubjectID:       "sub-" + subjectName,
		SubjectName:     subjectName,
		TotalClasses:    total,
		AttendedClasses: attended,
	}
}

func mark(studentID string, subjectName string, order int, obtained float64, maxMarks float64) domain.MarkRecord {
	return domain.MarkRecord{
		StudentID:     studentID,
		StudentUserID: "user-" + studentID,
		StudentName:   "Student " + studentID,
		Semester:      3,
		SubjectID:     "sub-" + subjectName,
		SubjectName:   subjectName,
		ExamType:      "series_test",
		ExamOrder:     order,
		Obtained:      obtained,
		Max:           maxMarks,
	}
}
