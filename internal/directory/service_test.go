package directory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"classattend/internal/apperr"
	"classattend/internal/logger"
	"classattend/internal/store/storetest"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	db := storetest.PrepareDB(t)
	return NewService(NewRepository(db), logger.Discard())
}

func seed(t *testing.T, svc *Service, codes ...string) []Subject {
	t.Helper()
	ctx := context.Background()
	var subjects []Subject
	for _, code := range codes {
		subjects = append(subjects, Subject{Code: code, Name: code + " course"})
	}
	_, err := svc.SeedSubjects(ctx, subjects)
	require.NoError(t, err)
	out, err := svc.ListSubjects(ctx)
	require.NoError(t, err)
	return out
}

func register(t *testing.T, svc *Service, roll, name string, subjectIDs ...string) Student {
	t.Helper()
	st, err := svc.RegisterStudent(context.Background(), NewStudent{RollNo: roll, Name: name, SubjectIDs: subjectIDs})
	require.NoError(t, err)
	return st
}

func TestSeedSubjectsIsIdempotent(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	n, err := svc.SeedSubjects(ctx, DefaultSubjects)
	require.NoError(t, err)
	assert.Equal(t, len(DefaultSubjects), n)

	n, err = svc.SeedSubjects(ctx, DefaultSubjects)
	require.NoError(t, err)
	assert.Zero(t, n)

	foc, err := svc.SubjectByCode(ctx, "FOC")
	require.NoError(t, err)
	assert.Equal(t, "Fiber Optic Communication", foc.Name)
}

func TestRegisterStudent(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	subjects := seed(t, svc, "FOC", "ME")

	t.Run("enrolls in all subjects by default", func(t *testing.T) {
		st := register(t, svc, "R01", "Asha")
		got, err := svc.ListEnrolledSubjects(ctx, st.ID)
		require.NoError(t, err)
		assert.Len(t, got, 2)
	})

	t.Run("enrolls in given subjects", func(t *testing.T) {
		st := register(t, svc, "R02", "Bala", subjects[0].ID)
		got, err := svc.ListEnrolledSubjects(ctx, st.ID)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, subjects[0].ID, got[0].ID)
	})

	t.Run("duplicate roll number conflicts", func(t *testing.T) {
		_, err := svc.RegisterStudent(ctx, NewStudent{RollNo: "R01", Name: "Other"})
		assert.True(t, apperr.Is(err, apperr.KindConflict), "got %v", err)
	})

	t.Run("invalid input", func(t *testing.T) {
		_, err := svc.RegisterStudent(ctx, NewStudent{RollNo: "R 9", Name: "X1", Email: "bad"})
		require.True(t, apperr.Is(err, apperr.KindValidation))
		assert.Len(t, apperr.FieldsOf(err), 3)
	})

	t.Run("unknown subject rolls back", func(t *testing.T) {
		_, err := svc.RegisterStudent(ctx, NewStudent{RollNo: "R03", Name: "Chitra", SubjectIDs: []string{"missing"}})
		assert.True(t, apperr.Is(err, apperr.KindNotFound), "got %v", err)
		_, err = svc.StudentByRoll(ctx, "R03")
		assert.True(t, apperr.Is(err, apperr.KindNotFound))
	})
}

func TestEnroll(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	subjects := seed(t, svc, "FOC")
	st := register(t, svc, "R01", "Asha", subjects[0].ID)

	require.NoError(t, svc.Enroll(ctx, st.ID, subjects[0].ID))
	students, err := svc.ListEnrolledStudents(ctx, subjects[0].ID)
	require.NoError(t, err)
	assert.Len(t, students, 1)

	assert.True(t, apperr.Is(svc.Enroll(ctx, "nobody", subjects[0].ID), apperr.KindNotFound))
	assert.True(t, apperr.Is(svc.Enroll(ctx, st.ID, "nothing"), apperr.KindNotFound))
}

func TestBulkEnrollAll(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	subjects := seed(t, svc, "FOC", "ME", "MC")
	register(t, svc, "R01", "Asha", subjects[0].ID)
	register(t, svc, "R02", "Bala", subjects[1].ID)

	n, err := svc.BulkEnrollAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	n, err = svc.BulkEnrollAll(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	status, err := svc.EnrollmentStatus(ctx)
	require.NoError(t, err)
	require.Len(t, status, 2)
	for _, s := range status {
		assert.True(t, s.Complete(), s.RollNo)
		assert.Equal(t, 3, s.Total)
	}
}

func TestUpdateStudentReplacesEnrollments(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	subjects := seed(t, svc, "FOC", "ME")
	st := register(t, svc, "R01", "Asha")

	name := "Asha Rao"
	only := []string{subjects[1].ID}
	got, err := svc.UpdateStudent(ctx, st.ID, StudentUpdate{Name: &name, SubjectIDs: &only})
	require.NoError(t, err)
	assert.Equal(t, "Asha Rao", got.Name)
	assert.Equal(t, "R01", got.RollNo)

	enrolled, err := svc.ListEnrolledSubjects(ctx, st.ID)
	require.NoError(t, err)
	require.Len(t, enrolled, 1)
	assert.Equal(t, subjects[1].ID, enrolled[0].ID)

	_, err = svc.UpdateStudent(ctx, "missing", StudentUpdate{Name: &name})
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestDeleteStudentCascades(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	subjects := seed(t, svc, "FOC")
	st := register(t, svc, "R01", "Asha")

	require.NoError(t, svc.DeleteStudent(ctx, st.ID))
	students, err := svc.ListEnrolledStudents(ctx, subjects[0].ID)
	require.NoError(t, err)
	assert.Empty(t, students)

	assert.True(t, apperr.Is(svc.DeleteStudent(ctx, st.ID), apperr.KindNotFound))
}

func TestEnrollInAll(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	subjects := seed(t, svc, "FOC", "ME")
	st := register(t, svc, "R01", "Asha", subjects[0].ID)

	n, err := svc.EnrollInAll(ctx, st.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = svc.EnrollInAll(ctx, "missing")
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}
