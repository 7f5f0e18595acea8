package attendance

import (
	"fmt"
	"strings"
	"time"
)

// Status is a persisted attendance mark.
type Status string

const (
	StatusPresent Status = "present"
	StatusAbsent  Status = "absent"
	// StatusNotMarked is derived from a missing row and never stored.
	StatusNotMarked Status = "not_marked"
)

// ParseStatus accepts the two persistable statuses.
func ParseStatus(s string) (Status, error) {
	switch st := Status(strings.ToLower(strings.TrimSpace(s))); st {
	case StatusPresent, StatusAbsent:
		return st, nil
	}
	return "", fmt.Errorf("invalid status %q", s)
}

// Period is a class-time slot such as "10:15-11:15".
type Period string

// Periods is the closed set of class slots in day order.
var Periods = []Period{
	"10:15-11:15",
	"11:15-12:15",
	"01:15-02:15",
	"02:15-03:15",
	"03:30-04:30",
	"04:30-05:30",
}

// ParsePeriod normalizes whitespace ("10:15 - 11:15") and checks membership.
func ParsePeriod(s string) (Period, error) {
	p := Period(strings.Join(strings.Fields(s), ""))
	for _, known := range Periods {
		if p == known {
			return p, nil
		}
	}
	return "", fmt.Errorf("invalid period %q", s)
}

// Display renders the period the way timetables print it.
func (p Period) Display() string {
	return strings.Replace(string(p), "-", " - ", 1)
}

// DateLayout is the persisted calendar date format.
const DateLayout = "2006-01-02"

// ParseDate parses a YYYY-MM-DD calendar date.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: want YYYY-MM-DD", s)
	}
	return t, nil
}

// FormatDate renders t's calendar date.
func FormatDate(t time.Time) string { return t.Format(DateLayout) }

// Record is one ledger row.
type Record struct {
	StudentID string `db:"student_id" json:"student_id"`
	SubjectID string `db:"subject_id" json:"subject_id"`
	Date      string `db:"date" json:"date"`
	Period    Period `db:"period" json:"period"`
	Status    Status `db:"status" json:"status"`
}

// Entry is a ledger row joined with student and subject details.
type Entry struct {
	Record
	RollNo      string `db:"roll_no" json:"roll_no"`
	StudentName string `db:"student_name" json:"student_name"`
	SubjectCode string `db:"subject_code" json:"subject_code"`
	SubjectName string `db:"subject_name" json:"subject_name"`
}

// Filter narrows a ledger listing. Zero values mean "any".
type Filter struct {
	StudentID string
	SubjectID string
	From      time.Time
	To        time.Time
	Period    Period
	Status    Status
	Limit     uint64
	Offset    uint64
}

// FinalizeResult reports how a finalize partitioned the enrolled students.
type FinalizeResult struct {
	SubjectID string   `json:"subject_id"`
	Date      string   `json:"date"`
	Period    Period   `json:"period"`
	Enrolled  int      `json:"enrolled"`
	Present   []string `json:"present"`
	Absent    []string `json:"absent"`
	Failed    []string `json:"failed,omitempty"`
}

// Written is the number of rows that were stored successfully.
func (r FinalizeResult) Written() int { return len(r.Present) + len(r.Absent) }

// Mismatch reports whether some rows could not be written.
func (r FinalizeResult) Mismatch() bool { return len(r.Failed) > 0 }
