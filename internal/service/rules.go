package service

import (
	"cmp"
	"fmt"
	"slices"
	"strconv"

	"github.com/kursadbilgin/risk-alert-engine/internal/domain"
)

const (
	titleLowAttendance = "Low attendance alert"
	titleLowMarks      = "Low marks alert"
	titleDecline       = "Performance decline alert"
)

// EvaluateAttendance returns a candidate for every record whose attendance
// percentage is strictly below the rule threshold. Records without any
// classes held are never flagged.
func EvaluateAttendance(records []domain.AttendanceRecord, rule domain.AttendanceRule) []domain.RiskCandidate {
	candidates := make([]domain.RiskCandidate, 0)
	for _, r := range records {
		if r.TotalClasses <= 0 {
			continue
		}

		pct := float64(r.AttendedClasses) * 100 / float64(r.TotalClasses)
		if pct >= rule.Threshold {
			continue
		}

		candidates = append(candidates, domain.RiskCandidate{
			StudentID:     r.StudentID,
			StudentUserID: r.StudentUserID,
			StudentName:   r.StudentName,
			Semester:      r.Semester,
			SubjectID:     r.SubjectID,
			SubjectName:   r.SubjectName,
			MetricType:    domain.RuleAttendance,
			Value:         pct,
			Threshold:     rule.Threshold,
			Reason: fmt.Sprintf("Attendance in %s is %.1f%% (below %s%%)",
				r.SubjectName, pct, formatThreshold(rule.Threshold)),
		})
	}
	return candidates
}

// EvaluateMarks flags student/subject pairs whose most recent exam
// percentage is strictly below the rule threshold.
func EvaluateMarks(records []domain.MarkRecord, rule domain.MarksRule) []domain.RiskCandidate {
	candidates := make([]domain.RiskCandidate, 0)
	for _, exams := range groupExams(records) {
		latest := exams[len(exams)-1]
		pct := latest.Percentage()
		if pct >= rule.Threshold {
			continue
		}

		c := candidateFromMark(latest, domain.RuleMarks)
		c.Value = pct
		c.Threshold = rule.Threshold
		c.Reason = fmt.Sprintf("Latest %s score in %s is %.1f%% (below %s%%)",
			examLabel(latest), latest.SubjectName, pct, formatThreshold(rule.Threshold))
		candidates = append(candidates, c)
	}
	return candidates
}

// EvaluateDecline compares the two most recent exams of each student/subject
// pair and flags a drop of at least rule.Delta percentage points.
func EvaluateDecline(records []domain.MarkRecord, rule domain.DeclineRule) []domain.RiskCandidate {
	candidates := make([]domain.RiskCandidate, 0)
	for _, exams := range groupExams(records) {
		if len(exams) < 2 {
			continue
		}

		previous := exams[len(exams)-2]
		latest := exams[len(exams)-1]
		prev := previous.Percentage()
		curr := latest.Percentage()
		drop := percentageDrop(previous, latest)
		if drop < rule.Delta {
			continue
		}

		c := candidateFromMark(latest, domain.RuleDecline)
		c.Value = curr
		c.Previous = prev
		c.Threshold = rule.Delta
		c.Reason = fmt.Sprintf("Performance in %s dropped by %.1f%% (from %.1f%% to %.1f%%)",
			latest.SubjectName, drop, prev, curr)
		candidates = append(candidates, c)
	}
	return candidates
}

// percentageDrop returns the point drop from a to b as one quotient. Two
// separately rounded percentages can miss an exact delta (7/15 to 4/15).
func percentageDrop(a, b domain.MarkRecord) float64 {
	return (a.Obtained*b.Max - b.Obtained*a.Max) * 100 / (a.Max * b.Max)
}

// BuildVerdict addresses a candidate to the student and, when one is known,
// to an escalation recipient. faculty wins over tutor.
func BuildVerdict(c domain.RiskCandidate, faculty string, tutor string) domain.Verdict {
	secondary := faculty
	if secondary == "" {
		secondary = tutor
	}
	if secondary == c.StudentUserID {
		secondary = ""
	}

	return domain.Verdict{
		Kind:                 c.MetricType,
		RecipientID:          c.StudentUserID,
		SecondaryRecipientID: secondary,
		Title:                verdictTitle(c.MetricType),
		Reason:               c.Reason,
		ContextKey:           domain.ContextKey(c.MetricType, c.StudentID, c.SubjectID),
		Candidate:            c,
	}
}

func verdictTitle(kind domain.RuleKind) string {
	switch kind {
	case domain.RuleAttendance:
		return titleLowAttendance
	case domain.RuleMarks:
		return titleLowMarks
	case domain.RuleDecline:
		return titleDecline
	}
	return "Academic risk alert"
}

// groupExams buckets marks per student/subject, each bucket in exam order.
// Buckets keep the order in which their first row was seen. Rows without a
// positive maximum are dropped.
func groupExams(records []domain.MarkRecord) [][]domain.MarkRecord {
	index := make(map[string]int)
	groups := make([][]domain.MarkRecord, 0)
	for _, r := range records {
		if r.Max <= 0 {
			continue
		}
		key := r.StudentID + "\x00" + r.SubjectID
		i, ok := index[key]
		if !ok {
			i = len(groups)
			index[key] = i
			groups = append(groups, nil)
		}
		groups[i] = append(groups[i], r)
	}

	for _, g := range groups {
		slices.SortStableFunc(g, func(a, b domain.MarkRecord) int {
			return cmp.Compare(a.ExamOrder, b.ExamOrder)
		})
	}
	return groups
}

func candidateFromMark(m domain.MarkRecord, kind domain.RuleKind) domain.RiskCandidate {
	return domain.RiskCandidate{
		StudentID:     m.StudentID,
		StudentUserID: m.StudentUserID,
		StudentName:   m.StudentName,
		Semester:      m.Semester,
		SubjectID:     m.SubjectID,
		SubjectName:   m.SubjectName,
		MetricType:    kind,
	}
}

func examLabel(m domain.MarkRecord) string {
	if m.ExamType == "" {
		return "exam"
	}
	return m.ExamType
}

func formatThreshold(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
