package domain

import (
	"fmt"
	"strings"
)

// RuleKind identifies one academic-risk rule.
type RuleKind string

const (
	RuleAttendance RuleKind = "attendance"
	RuleMarks      RuleKind = "marks"
	RuleDecline    RuleKind = "decline"
)

func (k RuleKind) String() string { return string(k) }

func (k RuleKind) IsValid() bool {
	switch k {
	case RuleAttendance, RuleMarks, RuleDecline:
		return true
	}
	return false
}

func ParseRuleKindFromString(s string) (RuleKind, error) {
	k := RuleKind(strings.ToLower(strings.TrimSpace(s)))
	if !k.IsValid() {
		return "", fmt.Errorf("%w: invalid rule kind %q", ErrValidation, s)
	}
	return k, nil
}

// AttendanceRecord is one student's attendance tally for a subject.
type AttendanceRecord struct {
	StudentID       string
	StudentUserID   string
	StudentName     string
	Semester        int
	SubjectID       string
	SubjectName     string
	TotalClasses    int
	AttendedClasses int
}

// MarkRecord is one exam result. ExamOrder gives the chronological position
// of the exam within the subject.
type MarkRecord struct {
	StudentID     string
	StudentUserID string
	StudentName   string
	Semester      int
	SubjectID     string
	SubjectName   string
	ExamType      string
	ExamOrder     int
	Obtained      float64
	Max           float64
}

// Percentage returns obtained/max*100, or 0 when max is not positive.
func (m MarkRecord) Percentage() float64 {
	if m.Max <= 0 {
		return 0
	}
	return m.Obtained * 100 / m.Max
}

// RiskCandidate is one student/subject pair that failed a rule in the current pass.
type RiskCandidate struct {
	StudentID     string
	StudentUserID string
	StudentName   string
	Semester      int
	SubjectID     string
	SubjectName   string
	MetricType    RuleKind
	Value         float64
	Previous      float64
	Threshold     float64
	Reason        string
}

// Verdict is the evaluated outcome for a candidate: who is told, and what.
type Verdict struct {
	Kind                 RuleKind
	RecipientID          string
	SecondaryRecipientID string
	Title                string
	Reason               string
	ContextKey           string
	Candidate            RiskCandidate
}

// ContextKey builds the deduplication key "{ruleKind}:{studentId}:{subjectId}".
func ContextKey(kind RuleKind, studentID, subjectID string) string {
	return fmt.Sprintf("%s:%s:%s", kind, studentID, subjectID)
}
