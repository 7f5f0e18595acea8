// Package report derives tri-state daily reports, student and class
// summaries, and mirror snapshots from the ledger.
package report

import (
	"time"

	"classattend/internal/attendance"
)

// NoPeriod is reported when no rows exist for a subject on a date.
const NoPeriod = "N/A"

// DailyLine is one enrolled student in a daily report.
type DailyLine struct {
	StudentID string            `db:"id" json:"student_id"`
	RollNo    string            `db:"roll_no" json:"roll_no"`
	Name      string            `db:"name" json:"name"`
	Email     string            `db:"email" json:"email,omitempty"`
	Status    attendance.Status `json:"status"`
}

// Daily is the per-subject, per-date tri-state report.
type Daily struct {
	SubjectID   string      `json:"subject_id"`
	SubjectCode string      `json:"subject_code"`
	SubjectName string      `json:"subject_name"`
	Date        string      `json:"date"`
	Period      string      `json:"period"`
	Lines       []DailyLine `json:"lines"`
	Enrolled    int         `json:"enrolled"`
	Present     int         `json:"present"`
	Absent      int         `json:"absent"`
	NotMarked   int         `json:"not_marked"`
	PresentPct  float64     `json:"present_pct"`
}

// SubjectLine is one subject in a student summary. ExpectedClasses comes
// from the weekly schedule and is not reconciled with TotalClasses.
type SubjectLine struct {
	SubjectID       string  `db:"subject_id" json:"subject_id"`
	SubjectCode     string  `db:"subject_code" json:"subject_code"`
	SubjectName     string  `db:"subject_name" json:"subject_name"`
	PresentCount    int     `db:"present_count" json:"present_count"`
	TotalClasses    int     `db:"total_classes" json:"total_classes"`
	Percentage      float64 `json:"percentage"`
	ExpectedClasses int     `json:"expected_classes"`
	WeeklyClasses   int     `json:"weekly_classes"`
}

// StudentSummary aggregates a student's attendance per enrolled subject.
type StudentSummary struct {
	StudentID string        `json:"student_id"`
	RollNo    string        `json:"roll_no"`
	Name      string        `json:"name"`
	Subjects  []SubjectLine `json:"subjects"`
	Present   int           `json:"present"`
	Total     int           `json:"total"`
	Overall   float64       `json:"overall"`
}

// ClassLine is one student in a class summary.
type ClassLine struct {
	StudentID    string  `db:"id" json:"student_id"`
	RollNo       string  `db:"roll_no" json:"roll_no"`
	Name         string  `db:"name" json:"name"`
	Division     string  `db:"division" json:"division"`
	PresentCount int     `db:"present_count" json:"present_count"`
	TotalClasses int     `db:"total_classes" json:"total_classes"`
	Percentage   float64 `json:"percentage"`
}

// ClassSummary covers every student over an inclusive date range.
type ClassSummary struct {
	From  string      `json:"from"`
	To    string      `json:"to"`
	Lines []ClassLine `json:"lines"`
}

// ClassDayLine is one student's tri-state status per enrolled subject code.
type ClassDayLine struct {
	StudentID string                       `json:"student_id"`
	RollNo    string                       `json:"roll_no"`
	Name      string                       `json:"name"`
	Statuses  map[string]attendance.Status `json:"statuses"`
}

// ClassDay is the whole class on one date.
type ClassDay struct {
	Date  string         `json:"date"`
	Lines []ClassDayLine `json:"lines"`
}

// ExpectedClasses is weekly * number of weeks touched by the inclusive
// range, counting a trailing partial week as a full one.
func ExpectedClasses(weekly int, from, to time.Time) int {
	if weekly <= 0 || from.After(to) {
		return 0
	}
	days := int(to.Sub(from).Hours()/24) + 1
	weeks := (days + 6) / 7
	return weekly * weeks
}
