package directory

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"classattend/internal/apperr"
	"classattend/internal/store"
)

const studentColumns = "id, roll_no, name, email, department, year, division, image_ref, created_at"

// Repository persists students, subjects and enrollments.
type Repository struct {
	db *store.DB
}

// NewRepository creates a repo.
func NewRepository(db *store.DB) *Repository {
	return &Repository{db: db}
}

// DB exposes the handle so callers can open a transaction spanning several calls.
func (r *Repository) DB() *store.DB { return r.db }

// InsertStudent writes a new student row.
func (r *Repository) InsertStudent(ctx context.Context, q sqlx.ExtContext, s Student) error {
	_, err := q.ExecContext(ctx, q.Rebind(`
		INSERT INTO students (id, roll_no, name, email, department, year, division, image_ref, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`), s.ID, s.RollNo, s.Name, s.Email, s.Department, s.Year, s.Division, s.ImageRef, s.CreatedAt)
	if store.IsUniqueViolation(err) {
		return apperr.Conflict("directory.InsertStudent", "roll number %q already registered", s.RollNo)
	}
	if store.IsIntegrityViolation(err) {
		return apperr.E(apperr.KindIntegrity, "directory.InsertStudent", err)
	}
	return apperr.Storage("directory.InsertStudent", err)
}

// UpdateStudent overwrites the mutable columns of a student.
func (r *Repository) UpdateStudent(ctx context.Context, q sqlx.ExtContext, s Student) error {
	res, err := q.ExecContext(ctx, q.Rebind(`
		UPDATE students
		SET roll_no = ?, name = ?, email = ?, department = ?, year = ?, division = ?, image_ref = ?
		WHERE id = ?
	`), s.RollNo, s.Name, s.Email, s.Department, s.Year, s.Division, s.ImageRef, s.ID)
	if store.IsUniqueViolation(err) {
		return apperr.Conflict("directory.UpdateStudent", "roll number %q already registered", s.RollNo)
	}
	if store.IsIntegrityViolation(err) {
		return apperr.E(apperr.KindIntegrity, "directory.UpdateStudent", err)
	}
	if err != nil {
		return apperr.Storage("directory.UpdateStudent", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFound("directory.UpdateStudent", "student %s not found", s.ID)
	}
	return nil
}

// GetStudent returns a single student by id.
func (r *Repository) GetStudent(ctx context.Context, id string) (Student, error) {
	var s Student
	err := r.db.GetContext(ctx, &s, r.db.Rebind("SELECT "+studentColumns+" FROM students WHERE id = ?"), id)
	if store.IsNoRows(err) {
		return Student{}, apperr.NotFound("directory.GetStudent", "student %s not found", id)
	}
	return s, apperr.Storage("directory.GetStudent", err)
}

// GetStudentByRoll looks a student up by roll number.
func (r *Repository) GetStudentByRoll(ctx context.Context, rollNo string) (Student, error) {
	var s Student
	err := r.db.GetContext(ctx, &s, r.db.Rebind("SELECT "+studentColumns+" FROM students WHERE roll_no = ?"), rollNo)
	if store.IsNoRows(err) {
		return Student{}, apperr.NotFound("directory.GetStudentByRoll", "roll number %q not found", rollNo)
	}
	return s, apperr.Storage("directory.GetStudentByRoll", err)
}

// ListStudents returns every student ordered by roll number.
func (r *Repository) ListStudents(ctx context.Context) ([]Student, error) {
	var out []Student
	err := r.db.SelectContext(ctx, &out, "SELECT "+studentColumns+" FROM students ORDER BY roll_no")
	return out, apperr.Storage("directory.ListStudents", err)
}

// DeleteStudent removes a student; enrollments and ledger rows cascade.
func (r *Repository) DeleteStudent(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, r.db.Rebind("DELETE FROM students WHERE id = ?"), id)
	if err != nil {
		return apperr.Storage("directory.DeleteStudent", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFound("directory.DeleteStudent", "student %s not found", id)
	}
	return nil
}

// InsertSubject adds a subject unless its code already exists.
func (r *Repository) InsertSubject(ctx context.Context, s Subject) (bool, error) {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`
		INSERT INTO subjects (id, code, name) VALUES (?, ?, ?)
		ON CONFLICT (code) DO NOTHING
	`), s.ID, s.Code, s.Name)
	if err != nil {
		return false, apperr.Storage("directory.InsertSubject", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// ListSubjects returns the catalogue ordered by name.
func (r *Repository) ListSubjects(ctx context.Context) ([]Subject, error) {
	var out []Subject
	err := r.db.SelectContext(ctx, &out, "SELECT id, code, name FROM subjects ORDER BY name")
	return out, apperr.Storage("directory.ListSubjects", err)
}

// GetSubject returns a subject by id.
func (r *Repository) GetSubject(ctx context.Context, id string) (Subject, error) {
	return r.SubjectIn(ctx, r.db, id)
}

// SubjectIn is GetSubject read through q.
func (r *Repository) SubjectIn(ctx context.Context, q sqlx.QueryerContext, id string) (Subject, error) {
	var s Subject
	err := sqlx.GetContext(ctx, q, &s, r.db.Rebind("SELECT id, code, name FROM subjects WHERE id = ?"), id)
	if store.IsNoRows(err) {
		return Subject{}, apperr.NotFound("directory.GetSubject", "subject %s not found", id)
	}
	return s, apperr.Storage("directory.GetSubject", err)
}

// GetSubjectByCode returns a subject by its unique code.
func (r *Repository) GetSubjectByCode(ctx context.Context, code string) (Subject, error) {
	var s Subject
	err := r.db.GetContext(ctx, &s, r.db.Rebind("SELECT id, code, name FROM subjects WHERE code = ?"), code)
	if store.IsNoRows(err) {
		return Subject{}, apperr.NotFound("directory.GetSubjectByCode", "subject %q not found", code)
	}
	return s, apperr.Storage("directory.GetSubjectByCode", err)
}

// Enroll inserts the pair and reports whether it was new.
func (r *Repository) Enroll(ctx context.Context, q sqlx.ExtContext, studentID, subjectID string) (bool, error) {
	res, err := q.ExecContext(ctx, q.Rebind(`
		INSERT INTO enrollments (student_id, subject_id) VALUES (?, ?)
		ON CONFLICT (student_id, subject_id) DO NOTHING
	`), studentID, subjectID)
	if store.IsForeignKeyViolation(err) {
		return false, apperr.NotFound("directory.Enroll", "student %s or subject %s not found", studentID, subjectID)
	}
	if err != nil {
		return false, apperr.Storage("directory.Enroll", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// EnrollMissing inserts every missing student x subject pair. An empty
// studentID covers the whole population.
func (r *Repository) EnrollMissing(ctx context.Context, studentID string) (int, error) {
	query := `
		INSERT INTO enrollments (student_id, subject_id)
		SELECT s.id, sub.id FROM students s CROSS JOIN subjects sub
		WHERE 1 = 1`
	var args []any
	if studentID != "" {
		query += " AND s.id = ?"
		args = append(args, studentID)
	}
	query += " ON CONFLICT (student_id, subject_id) DO NOTHING"

	res, err := r.db.ExecContext(ctx, r.db.Rebind(query), args...)
	if err != nil {
		return 0, apperr.Storage("directory.EnrollMissing", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// ClearEnrollments drops every enrollment of a student.
func (r *Repository) ClearEnrollments(ctx context.Context, q sqlx.ExtContext, studentID string) error {
	_, err := q.ExecContext(ctx, q.Rebind("DELETE FROM enrollments WHERE student_id = ?"), studentID)
	return apperr.Storage("directory.ClearEnrollments", err)
}

// EnrolledSubjects lists a student's subjects ordered by name.
func (r *Repository) EnrolledSubjects(ctx context.Context, studentID string) ([]Subject, error) {
	var out []Subject
	err := r.db.SelectContext(ctx, &out, r.db.Rebind(`
		SELECT sub.id, sub.code, sub.name
		FROM subjects sub
		JOIN enrollments e ON e.subject_id = sub.id
		WHERE e.student_id = ?
		ORDER BY sub.name
	`), studentID)
	return out, apperr.Storage("directory.EnrolledSubjects", err)
}

// EnrolledStudents lists a subject's students ordered by roll number.
func (r *Repository) EnrolledStudents(ctx context.Context, q sqlx.QueryerContext, subjectID string) ([]Student, error) {
	var out []Student
	err := sqlx.SelectContext(ctx, q, &out, r.db.Rebind(`
		SELECT s.id, s.roll_no, s.name, s.email, s.department, s.year, s.division, s.image_ref, s.created_at
		FROM students s
		JOIN enrollments e ON e.student_id = s.id
		WHERE e.subject_id = ?
		ORDER BY s.roll_no
	`), subjectID)
	return out, apperr.Storage("directory.EnrolledStudents", err)
}

// EnrolledIDs returns the ids enrolled in a subject, sorted, read through q so
// a ledger transaction sees a consistent enrollment set.
func (r *Repository) EnrolledIDs(ctx context.Context, q sqlx.ExtContext, subjectID string) ([]string, error) {
	var ids []string
	err := sqlx.SelectContext(ctx, q, &ids, q.Rebind(`
		SELECT student_id FROM enrollments WHERE subject_id = ? ORDER BY student_id
	`), subjectID)
	return ids, apperr.Storage("directory.EnrolledIDs", err)
}

// EnrollmentStatus counts enrollments per student against the catalogue size.
func (r *Repository) EnrollmentStatus(ctx context.Context) ([]EnrollmentStatus, error) {
	var out []EnrollmentStatus
	err := r.db.SelectContext(ctx, &out, `
		SELECT s.id, s.roll_no, s.name,
			COUNT(e.subject_id) AS enrolled,
			(SELECT COUNT(*) FROM subjects) AS total
		FROM students s
		LEFT JOIN enrollments e ON e.student_id = s.id
		GROUP BY s.id, s.roll_no, s.name
		ORDER BY s.roll_no
	`)
	if err != nil {
		return nil, apperr.Storage("directory.EnrollmentStatus", fmt.Errorf("count enrollments: %w", err))
	}
	return out, nil
}
