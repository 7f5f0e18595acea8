package report

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"classattend/internal/apperr"
	"classattend/internal/attendance"
	"classattend/internal/directory"
	"classattend/internal/logger"
	"classattend/internal/sheets"
	"classattend/internal/store/storetest"
)

type fixture struct {
	reports  *Service
	ledger   *attendance.Service
	dir      *directory.Service
	foc, me  directory.Subject
	students []directory.Student
}

func newFixture(t *testing.T, names ...string) *fixture {
	t.Helper()
	ctx := context.Background()
	db := storetest.PrepareDB(t)
	dirRepo := directory.NewRepository(db)
	ledgerRepo := attendance.NewRepository(db)
	f := &fixture{dir: directory.NewService(dirRepo, logger.Discard())}

	_, err := f.dir.SeedSubjects(ctx, []directory.Subject{
		{Code: "FOC", Name: "Fiber Optic Communication"},
		{Code: "ME", Name: "Microwave Engineering"},
	})
	require.NoError(t, err)
	f.foc, err = f.dir.SubjectByCode(ctx, "FOC")
	require.NoError(t, err)
	f.me, err = f.dir.SubjectByCode(ctx, "ME")
	require.NoError(t, err)

	for _, n := range names {
		st, err := f.dir.RegisterStudent(ctx, directory.NewStudent{RollNo: "R" + n, Name: "Student " + n})
		require.NoError(t, err)
		f.students = append(f.students, st)
	}
	f.ledger = attendance.NewService(db, ledgerRepo, dirRepo, nil, logger.Discard(), attendance.Options{})
	f.reports = NewService(db, dirRepo, ledgerRepo, map[string]int{"FOC": 3})
	return f
}

func date(s string) time.Time {
	t, err := attendance.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return t
}

func statuses(d Daily) []attendance.Status {
	out := make([]attendance.Status, 0, len(d.Lines))
	for _, l := range d.Lines {
		out = append(out, l.Status)
	}
	return out
}

func TestDailyReportBeforeMarks(t *testing.T) {
	f := newFixture(t, "A", "B", "C")
	d, err := f.reports.DailyReport(context.Background(), f.foc.ID, date("2024-01-10"))
	require.NoError(t, err)

	assert.Equal(t, 3, d.Enrolled)
	assert.Equal(t, 3, d.NotMarked)
	assert.Equal(t, 0.0, d.PresentPct)
	assert.Equal(t, NoPeriod, d.Period)
	for _, l := range d.Lines {
		assert.Equal(t, attendance.StatusNotMarked, l.Status)
	}
}

func TestDailyReportAfterFinalize(t *testing.T) {
	f := newFixture(t, "A", "B", "C")
	ctx := context.Background()
	_, err := f.ledger.Finalize(ctx, f.foc.ID, date("2024-01-10"), "10:15-11:15", []string{f.students[0].ID})
	require.NoError(t, err)

	d, err := f.reports.DailyReport(ctx, f.foc.ID, date("2024-01-10"))
	require.NoError(t, err)
	assert.Equal(t, []attendance.Status{attendance.StatusPresent, attendance.StatusAbsent, attendance.StatusAbsent}, statuses(d))
	assert.Equal(t, 1, d.Present)
	assert.Equal(t, 2, d.Absent)
	assert.Equal(t, 0, d.NotMarked)
	assert.Equal(t, 33.3, d.PresentPct)
	assert.Equal(t, "10:15-11:15", d.Period)
	assert.Equal(t, "FOC", d.SubjectCode)
}

func TestDailyReportPresentWinsAcrossPeriods(t *testing.T) {
	f := newFixture(t, "A", "B")
	ctx := context.Background()
	day := date("2024-01-10")
	_, err := f.ledger.Finalize(ctx, f.foc.ID, day, "10:15-11:15", nil)
	require.NoError(t, err)
	_, err = f.ledger.Finalize(ctx, f.foc.ID, day, "11:15-12:15", []string{f.students[1].ID})
	require.NoError(t, err)

	d, err := f.reports.DailyReport(ctx, f.foc.ID, day)
	require.NoError(t, err)
	assert.Equal(t, []attendance.Status{attendance.StatusAbsent, attendance.StatusPresent}, statuses(d))
	// two rows each, tie broken by the earlier slot string
	assert.Equal(t, "10:15-11:15", d.Period)
}

func TestDailyReportUnknownSubject(t *testing.T) {
	f := newFixture(t)
	_, err := f.reports.DailyReport(context.Background(), "missing", date("2024-01-10"))
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	d, err := f.reports.DailyReport(context.Background(), f.foc.ID, date("2024-01-10"))
	require.NoError(t, err)
	assert.Equal(t, 0.0, d.PresentPct)
	assert.Empty(t, d.Lines)
}

func TestDailyReportDuringFinalize(t *testing.T) {
	f := newFixture(t, "A", "B", "C", "D")
	ctx := context.Background()
	day := date("2024-01-10")
	all := make([]string, 0, len(f.students))
	for _, st := range f.students {
		all = append(all, st.ID)
	}
	_, err := f.ledger.Finalize(ctx, f.foc.ID, day, "10:15-11:15", all)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		for i := 0; i < 20; i++ {
			present := all
			if i%2 == 0 {
				present = nil
			}
			if _, err := f.ledger.Finalize(ctx, f.foc.ID, day, "10:15-11:15", present); err != nil {
				done <- err
				return
			}
		}
		done <- nil
	}()

	for i := 0; i < 20; i++ {
		d, err := f.reports.DailyReport(ctx, f.foc.ID, day)
		require.NoError(t, err)
		assert.Equal(t, 4, d.Enrolled)
		assert.Zero(t, d.NotMarked)
		// a finalize flips every row at once, never half of them
		assert.Contains(t, []int{0, 4}, d.Present)
		assert.Equal(t, d.Enrolled, d.Present+d.Absent)
	}
	require.NoError(t, <-done)
}

func TestModePeriod(t *testing.T) {
	assert.Equal(t, NoPeriod, modePeriod(nil))
	assert.Equal(t, "b", modePeriod(map[string]int{"a": 1, "b": 2}))
	assert.Equal(t, "a", modePeriod(map[string]int{"b": 2, "a": 2}))
}

func TestStudentSummary(t *testing.T) {
	f := newFixture(t, "A", "B", "C")
	ctx := context.Background()
	a := f.students[0].ID
	for i, d := range []string{"2024-01-01", "2024-01-02", "2024-01-09"} {
		var present []string
		if i != 1 {
			present = []string{a}
		}
		_, err := f.ledger.Finalize(ctx, f.foc.ID, date(d), "10:15-11:15", present)
		require.NoError(t, err)
	}

	sum, err := f.reports.StudentSummary(ctx, a)
	require.NoError(t, err)
	require.Len(t, sum.Subjects, 2)

	byCode := map[string]SubjectLine{}
	for _, l := range sum.Subjects {
		byCode[l.SubjectCode] = l
	}
	foc := byCode["FOC"]
	assert.Equal(t, 2, foc.PresentCount)
	assert.Equal(t, 3, foc.TotalClasses)
	assert.Equal(t, 66.7, foc.Percentage)
	assert.Equal(t, 3, foc.WeeklyClasses)
	// 2024-01-01..2024-01-09 touches two weeks
	assert.Equal(t, 6, foc.ExpectedClasses)

	me := byCode["ME"]
	assert.Equal(t, 0, me.TotalClasses)
	assert.Equal(t, 0.0, me.Percentage)
	assert.Equal(t, 0, me.ExpectedClasses)

	assert.Equal(t, 2, sum.Present)
	assert.Equal(t, 3, sum.Total)
	assert.Equal(t, 66.7, sum.Overall)

	_, err = f.reports.StudentSummary(ctx, "ghost")
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestClassSummary(t *testing.T) {
	f := newFixture(t, "A", "B")
	ctx := context.Background()
	a, b := f.students[0].ID, f.students[1].ID
	_, err := f.ledger.Finalize(ctx, f.foc.ID, date("2024-01-10"), "10:15-11:15", []string{a})
	require.NoError(t, err)
	_, err = f.ledger.Finalize(ctx, f.me.ID, date("2024-01-10"), "11:15-12:15", []string{a, b})
	require.NoError(t, err)
	_, err = f.ledger.Finalize(ctx, f.foc.ID, date("2024-02-01"), "10:15-11:15", []string{b})
	require.NoError(t, err)

	sum, err := f.reports.ClassSummary(ctx, date("2024-01-01"), date("2024-01-31"))
	require.NoError(t, err)
	require.Len(t, sum.Lines, 2)
	assert.Equal(t, "RA", sum.Lines[0].RollNo)
	assert.Equal(t, 2, sum.Lines[0].PresentCount)
	assert.Equal(t, 2, sum.Lines[0].TotalClasses)
	assert.Equal(t, 100.0, sum.Lines[0].Percentage)
	assert.Equal(t, 1, sum.Lines[1].PresentCount)
	assert.Equal(t, 2, sum.Lines[1].TotalClasses)
	assert.Equal(t, 50.0, sum.Lines[1].Percentage)

	empty, err := f.reports.ClassSummary(ctx, date("2023-01-01"), date("2023-01-01"))
	require.NoError(t, err)
	require.Len(t, empty.Lines, 2)
	assert.Equal(t, 0, empty.Lines[0].TotalClasses)
	assert.Equal(t, 0.0, empty.Lines[0].Percentage)
}

func TestClassSummaryRejectsInvertedRange(t *testing.T) {
	f := newFixture(t, "A")
	_, err := f.reports.ClassSummary(context.Background(), date("2024-02-01"), date("2024-01-01"))
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

func TestClassDay(t *testing.T) {
	f := newFixture(t, "A", "B")
	ctx := context.Background()
	_, err := f.ledger.Finalize(ctx, f.foc.ID, date("2024-01-10"), "10:15-11:15", []string{f.students[1].ID})
	require.NoError(t, err)

	day, err := f.reports.ClassDay(ctx, date("2024-01-10"))
	require.NoError(t, err)
	require.Len(t, day.Lines, 2)
	assert.Equal(t, map[string]attendance.Status{"FOC": attendance.StatusAbsent, "ME": attendance.StatusNotMarked}, day.Lines[0].Statuses)
	assert.Equal(t, map[string]attendance.Status{"FOC": attendance.StatusPresent, "ME": attendance.StatusNotMarked}, day.Lines[1].Statuses)
}

func TestStudentHistory(t *testing.T) {
	f := newFixture(t, "A")
	ctx := context.Background()
	_, err := f.ledger.Finalize(ctx, f.foc.ID, date("2024-01-10"), "10:15-11:15", nil)
	require.NoError(t, err)

	hist, err := f.reports.StudentHistory(ctx, f.students[0].ID)
	require.NoError(t, err)
	require.Len(t, hist, 1)
	assert.Equal(t, attendance.StatusAbsent, hist[0].Status)

	_, err = f.reports.StudentHistory(ctx, "ghost")
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestSubjectSheet(t *testing.T) {
	f := newFixture(t, "A", "B")
	ctx := context.Background()
	a, b := f.students[0].ID, f.students[1].ID
	_, err := f.ledger.Finalize(ctx, f.foc.ID, date("2024-01-01"), "10:15-11:15", []string{a, b})
	require.NoError(t, err)
	_, err = f.ledger.Finalize(ctx, f.foc.ID, date("2024-01-02"), "10:15-11:15", []string{b})
	require.NoError(t, err)

	tbl, err := f.reports.SubjectSheet(ctx, f.foc.ID, time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, []string{"2024-01-01", "2024-01-02"}, tbl.Dates)
	require.Len(t, tbl.Rows, 2)
	assert.Equal(t, sheets.MarkAbsent, tbl.Rows[0].Marks["2024-01-02"])
	assert.Equal(t, 50.0, tbl.Rows[0].Percentage)
	assert.Equal(t, 2, tbl.Rows[1].Present)

	ranged, err := f.reports.SubjectSheet(ctx, f.foc.ID, date("2024-01-02"), time.Time{})
	require.NoError(t, err)
	assert.Equal(t, []string{"2024-01-02"}, ranged.Dates)

	_, err = f.reports.SubjectSheet(ctx, f.foc.ID, date("2024-01-02"), date("2024-01-01"))
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	snaps, err := f.reports.Snapshots(ctx, time.Time{}, time.Time{}, func(code string) string { return code + "_ENTC" })
	require.NoError(t, err)
	require.Len(t, snaps, 2)
	keys := []string{snaps[0].Key, snaps[1].Key}
	assert.ElementsMatch(t, []string{"FOC_ENTC", "ME_ENTC"}, keys)
}

func TestExpectedClasses(t *testing.T) {
	tests := []struct {
		name     string
		weekly   int
		from, to string
		want     int
	}{
		{"single day", 3, "2024-01-01", "2024-01-01", 3},
		{"exact week", 3, "2024-01-01", "2024-01-07", 3},
		{"partial second week", 4, "2024-01-01", "2024-01-08", 8},
		{"no schedule", 0, "2024-01-01", "2024-03-01", 0},
		{"inverted", 3, "2024-01-02", "2024-01-01", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExpectedClasses(tt.weekly, date(tt.from), date(tt.to)))
		})
	}

	f := newFixture(t)
	assert.Equal(t, 6, f.reports.ExpectedClasses("FOC", date("2024-01-01"), date("2024-01-14")))
	assert.Equal(t, 0, f.reports.ExpectedClasses("ME", date("2024-01-01"), date("2024-01-14")))
}
