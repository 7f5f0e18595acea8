package report

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/jmoiron/sqlx"

	"classattend/internal/apperr"
	"classattend/internal/attendance"
	"classattend/internal/directory"
	"classattend/internal/sheets"
	"classattend/internal/store"
)

// Service reads the ledger and directory to build reports. It never writes.
type Service struct {
	db     *store.DB
	dir    *directory.Repository
	ledger *attendance.Repository
	weekly map[string]int
}

// NewService wires the aggregator. weekly maps subject code to scheduled
// classes per week and may be nil.
func NewService(db *store.DB, dir *directory.Repository, ledger *attendance.Repository, weekly map[string]int) *Service {
	if weekly == nil {
		weekly = map[string]int{}
	}
	return &Service{db: db, dir: dir, ledger: ledger, weekly: weekly}
}

type periodMark struct {
	StudentID string            `db:"student_id"`
	Period    string            `db:"period"`
	Status    attendance.Status `db:"status"`
}

// DailyReport returns the tri-state status of every student enrolled in the
// subject on date.
func (s *Service) DailyReport(ctx context.Context, subjectID string, date time.Time) (Daily, error) {
	const op = "report.DailyReport"
	day := attendance.FormatDate(date)
	var (
		sub      directory.Subject
		students []directory.Student
		marks    []periodMark
	)
	// enrollment and marks must come from one snapshot or the counts drift
	err := s.db.ReadTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		if sub, err = s.dir.SubjectIn(ctx, tx, subjectID); err != nil {
			return err
		}
		if students, err = s.dir.EnrolledStudents(ctx, tx, subjectID); err != nil {
			return err
		}
		err = tx.SelectContext(ctx, &marks, tx.Rebind(`
			SELECT student_id, period, status FROM attendance WHERE subject_id = ? AND date = ?
		`), subjectID, day)
		return apperr.Storage(op, err)
	})
	if err != nil {
		return Daily{}, err
	}

	statuses := map[string]attendance.Status{}
	periods := map[string]int{}
	for _, m := range marks {
		periods[m.Period]++
		statuses[m.StudentID] = merge(statuses[m.StudentID], m.Status)
	}

	out := Daily{
		SubjectID:   sub.ID,
		SubjectCode: sub.Code,
		SubjectName: sub.Name,
		Date:        day,
		Period:      modePeriod(periods),
		Lines:       make([]DailyLine, 0, len(students)),
		Enrolled:    len(students),
	}
	for _, st := range students {
		status, ok := statuses[st.ID]
		if !ok {
			status = attendance.StatusNotMarked
		}
		switch status {
		case attendance.StatusPresent:
			out.Present++
		case attendance.StatusAbsent:
			out.Absent++
		default:
			out.NotMarked++
		}
		out.Lines = append(out.Lines, DailyLine{StudentID: st.ID, RollNo: st.RollNo, Name: st.Name, Email: st.Email, Status: status})
	}
	out.PresentPct = sheets.Percent(out.Present, out.Enrolled)
	return out, nil
}

// merge folds one period's status into the day's; present on any period wins.
func merge(cur, next attendance.Status) attendance.Status {
	if cur == attendance.StatusPresent || next == attendance.StatusPresent {
		return attendance.StatusPresent
	}
	return next
}

func modePeriod(counts map[string]int) string {
	best, n := NoPeriod, 0
	for p, c := range counts {
		if c > n || (c == n && p < best) {
			best, n = p, c
		}
	}
	return best
}

type subjectAgg struct {
	SubjectLine
	FirstDate string `db:"first_date"`
	LastDate  string `db:"last_date"`
}

// StudentSummary aggregates recorded sessions per enrolled subject.
func (s *Service) StudentSummary(ctx context.Context, studentID string) (StudentSummary, error) {
	const op = "report.StudentSummary"
	st, err := s.dir.GetStudent(ctx, studentID)
	if err != nil {
		return StudentSummary{}, err
	}

	var rows []subjectAgg
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(`
		SELECT sub.id AS subject_id, sub.code AS subject_code, sub.name AS subject_name,
			COUNT(CASE WHEN a.status = 'present' THEN 1 END) AS present_count,
			COUNT(a.status) AS total_classes,
			COALESCE(MIN(a.date), '') AS first_date,
			COALESCE(MAX(a.date), '') AS last_date
		FROM enrollments e
		JOIN subjects sub ON sub.id = e.subject_id
		LEFT JOIN attendance a ON a.student_id = e.student_id AND a.subject_id = e.subject_id
		WHERE e.student_id = ?
		GROUP BY sub.id, sub.code, sub.name
		ORDER BY sub.name
	`), studentID); err != nil {
		return StudentSummary{}, apperr.Storage(op, fmt.Errorf("aggregate student %s: %w", studentID, err))
	}

	out := StudentSummary{StudentID: st.ID, RollNo: st.RollNo, Name: st.Name, Subjects: make([]SubjectLine, 0, len(rows))}
	for _, r := range rows {
		line := r.SubjectLine
		line.Percentage = sheets.Percent(line.PresentCount, line.TotalClasses)
		line.WeeklyClasses = s.weekly[line.SubjectCode]
		if r.FirstDate != "" {
			from, ferr := attendance.ParseDate(r.FirstDate)
			to, terr := attendance.ParseDate(r.LastDate)
			if ferr == nil && terr == nil {
				line.ExpectedClasses = ExpectedClasses(line.WeeklyClasses, from, to)
			}
		}
		out.Present += line.PresentCount
		out.Total += line.TotalClasses
		out.Subjects = append(out.Subjects, line)
	}
	out.Overall = sheets.Percent(out.Present, out.Total)
	return out, nil
}

// ClassSummary aggregates every student across all subjects in [from, to].
func (s *Service) ClassSummary(ctx context.Context, from, to time.Time) (ClassSummary, error) {
	const op = "report.ClassSummary"
	if from.After(to) {
		return ClassSummary{}, apperr.Validation(op, "from %s is after to %s", attendance.FormatDate(from), attendance.FormatDate(to))
	}
	out := ClassSummary{From: attendance.FormatDate(from), To: attendance.FormatDate(to)}
	if err := s.db.SelectContext(ctx, &out.Lines, s.db.Rebind(`
		SELECT s.id, s.roll_no, s.name, s.division,
			COUNT(CASE WHEN a.status = 'present' THEN 1 END) AS present_count,
			COUNT(DISTINCT a.date || '|' || a.period || '|' || a.subject_id) AS total_classes
		FROM students s
		LEFT JOIN attendance a ON a.student_id = s.id AND a.date >= ? AND a.date <= ?
		GROUP BY s.id, s.roll_no, s.name, s.division
		ORDER BY s.roll_no
	`), out.From, out.To); err != nil {
		return ClassSummary{}, apperr.Storage(op, err)
	}
	for i := range out.Lines {
		out.Lines[i].Percentage = sheets.Percent(out.Lines[i].PresentCount, out.Lines[i].TotalClasses)
	}
	if out.Lines == nil {
		out.Lines = []ClassLine{}
	}
	return out, nil
}

// StudentHistory lists every ledger row of a student, newest first.
func (s *Service) StudentHistory(ctx context.Context, studentID string) ([]attendance.Entry, error) {
	if _, err := s.dir.GetStudent(ctx, studentID); err != nil {
		return nil, err
	}
	return s.ledger.List(ctx, attendance.Filter{StudentID: studentID})
}

type dayMark struct {
	StudentID string            `db:"student_id"`
	Code      string            `db:"code"`
	Status    attendance.Status `db:"status"`
}

// ClassDay reports each student's status on date for every subject they are
// enrolled in, keyed by subject code.
func (s *Service) ClassDay(ctx context.Context, date time.Time) (ClassDay, error) {
	const op = "report.ClassDay"
	students, err := s.dir.ListStudents(ctx)
	if err != nil {
		return ClassDay{}, err
	}

	var enrolled []dayMark
	if err := s.db.SelectContext(ctx, &enrolled, `
		SELECT e.student_id, sub.code, 'not_marked' AS status
		FROM enrollments e JOIN subjects sub ON sub.id = e.subject_id
	`); err != nil {
		return ClassDay{}, apperr.Storage(op, err)
	}
	day := attendance.FormatDate(date)
	var marks []dayMark
	if err := s.db.SelectContext(ctx, &marks, s.db.Rebind(`
		SELECT a.student_id, sub.code, a.status
		FROM attendance a JOIN subjects sub ON sub.id = a.subject_id
		WHERE a.date = ?
	`), day); err != nil {
		return ClassDay{}, apperr.Storage(op, err)
	}

	byStudent := map[string]map[string]attendance.Status{}
	for _, e := range enrolled {
		if byStudent[e.StudentID] == nil {
			byStudent[e.StudentID] = map[string]attendance.Status{}
		}
		byStudent[e.StudentID][e.Code] = attendance.StatusNotMarked
	}
	for _, m := range marks {
		statuses, ok := byStudent[m.StudentID]
		if !ok {
			continue
		}
		if _, ok := statuses[m.Code]; !ok {
			continue
		}
		statuses[m.Code] = merge(statuses[m.Code], m.Status)
	}

	out := ClassDay{Date: day, Lines: make([]ClassDayLine, 0, len(students))}
	for _, st := range students {
		statuses := byStudent[st.ID]
		if statuses == nil {
			statuses = map[string]attendance.Status{}
		}
		out.Lines = append(out.Lines, ClassDayLine{StudentID: st.ID, RollNo: st.RollNo, Name: st.Name, Statuses: statuses})
	}
	return out, nil
}

type sheetMark struct {
	StudentID string            `db:"student_id"`
	Date      string            `db:"date"`
	Status    attendance.Status `db:"status"`
}

// SubjectSheet builds the mirror table for a subject: one row per enrolled
// student and one column per date with any recorded session. A zero from or
// to leaves that side of the range open.
func (s *Service) SubjectSheet(ctx context.Context, subjectID string, from, to time.Time) (sheets.Table, error) {
	const op = "report.SubjectSheet"
	if !from.IsZero() && !to.IsZero() && from.After(to) {
		return sheets.Table{}, apperr.Validation(op, "from %s is after to %s", attendance.FormatDate(from), attendance.FormatDate(to))
	}
	if _, err := s.dir.GetSubject(ctx, subjectID); err != nil {
		return sheets.Table{}, err
	}
	students, err := s.dir.EnrolledStudents(ctx, s.db, subjectID)
	if err != nil {
		return sheets.Table{}, err
	}

	qb := s.db.Builder().
		Select("student_id", "date", "status").
		From("attendance").
		Where("subject_id = ?", subjectID).
		OrderBy("date")
	if !from.IsZero() {
		qb = qb.Where("date >= ?", attendance.FormatDate(from))
	}
	if !to.IsZero() {
		qb = qb.Where("date <= ?", attendance.FormatDate(to))
	}
	query, args, err := qb.ToSql()
	if err != nil {
		return sheets.Table{}, apperr.Storage(op, err)
	}
	var marks []sheetMark
	if err := s.db.SelectContext(ctx, &marks, query, args...); err != nil {
		return sheets.Table{}, apperr.Storage(op, err)
	}

	byStudent := map[string]map[string]attendance.Status{}
	dates := map[string]bool{}
	for _, m := range marks {
		dates[m.Date] = true
		if byStudent[m.StudentID] == nil {
			byStudent[m.StudentID] = map[string]attendance.Status{}
		}
		byStudent[m.StudentID][m.Date] = merge(byStudent[m.StudentID][m.Date], m.Status)
	}

	var tbl sheets.Table
	for d := range dates {
		tbl.Dates = append(tbl.Dates, d)
	}
	sort.Strings(tbl.Dates)
	for _, st := range students {
		row := sheets.Row{RollNo: st.RollNo, Name: st.Name, Marks: map[string]string{}}
		for d, status := range byStudent[st.ID] {
			row.Marks[d] = sheets.Mark(status == attendance.StatusPresent)
		}
		row.Recompute()
		tbl.Rows = append(tbl.Rows, row)
	}
	return tbl, nil
}

// Snapshots builds a SubjectSheet for every subject and names each with key.
func (s *Service) Snapshots(ctx context.Context, from, to time.Time, key func(code string) string) ([]sheets.Snapshot, error) {
	subjects, err := s.dir.ListSubjects(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]sheets.Snapshot, 0, len(subjects))
	for _, sub := range subjects {
		tbl, err := s.SubjectSheet(ctx, sub.ID, from, to)
		if err != nil {
			return nil, err
		}
		out = append(out, sheets.Snapshot{Key: key(sub.Code), Table: tbl})
	}
	return out, nil
}

// Snapshot is Snapshots for a single subject.
func (s *Service) Snapshot(ctx context.Context, subjectID string, from, to time.Time, key func(code string) string) (sheets.Snapshot, error) {
	sub, err := s.dir.GetSubject(ctx, subjectID)
	if err != nil {
		return sheets.Snapshot{}, err
	}
	tbl, err := s.SubjectSheet(ctx, sub.ID, from, to)
	if err != nil {
		return sheets.Snapshot{}, err
	}
	return sheets.Snapshot{Key: key(sub.Code), Table: tbl}, nil
}

// ExpectedClasses is the scheduled class count for a subject code over [from, to].
func (s *Service) ExpectedClasses(code string, from, to time.Time) int {
	return ExpectedClasses(s.weekly[code], from, to)
}
