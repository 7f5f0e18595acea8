package directory

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"classattend/internal/apperr"
	"classattend/internal/logger"
	"classattend/internal/validate"
)

// Service owns the student <-> subject relation.
type Service struct {
	repo *Repository
	log  logger.Logger
	now  func() time.Time
}

// NewService creates a service backed by a repository.
func NewService(repo *Repository, log logger.Logger) *Service {
	return &Service{repo: repo, log: log, now: time.Now}
}

// Repository exposes the underlying repo to collaborators that share its transactions.
func (s *Service) Repository() *Repository { return s.repo }

// RegisterStudent validates and stores a student, then enrolls them in the
// requested subjects, or in every subject when none are given.
func (s *Service) RegisterStudent(ctx context.Context, in NewStudent) (Student, error) {
	const op = "directory.RegisterStudent"
	in.RollNo = strings.TrimSpace(in.RollNo)
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.TrimSpace(in.Email)
	if err := validate.Struct(op, in); err != nil {
		return Student{}, err
	}

	st := Student{
		ID:         uuid.NewString(),
		RollNo:     in.RollNo,
		Name:       in.Name,
		Email:      in.Email,
		Department: in.Department,
		Year:       in.Year,
		Division:   in.Division,
		ImageRef:   in.ImageRef,
		CreatedAt:  s.now().UTC(),
	}

	subjectIDs := in.SubjectIDs
	if len(subjectIDs) == 0 {
		all, err := s.repo.ListSubjects(ctx)
		if err != nil {
			return Student{}, err
		}
		for _, sub := range all {
			subjectIDs = append(subjectIDs, sub.ID)
		}
	}

	err := s.repo.DB().WithTx(ctx, func(tx *sqlx.Tx) error {
		if err := s.repo.InsertStudent(ctx, tx, st); err != nil {
			return err
		}
		for _, subjectID := range subjectIDs {
			if _, err := s.repo.Enroll(ctx, tx, st.ID, subjectID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return Student{}, err
	}
	s.log.Info("registered student %s (%s) in %d subjects", st.RollNo, st.ID, len(subjectIDs))
	return st, nil
}

// GetStudent returns a student by id.
func (s *Service) GetStudent(ctx context.Context, id string) (Student, error) {
	return s.repo.GetStudent(ctx, id)
}

// StudentByRoll returns a student by roll number.
func (s *Service) StudentByRoll(ctx context.Context, rollNo string) (Student, error) {
	return s.repo.GetStudentByRoll(ctx, strings.TrimSpace(rollNo))
}

// ListStudents returns all students ordered by roll number.
func (s *Service) ListStudents(ctx context.Context) ([]Student, error) {
	return s.repo.ListStudents(ctx)
}

// UpdateStudent applies a partial edit. A supplied subject list replaces the
// enrollments in the same transaction as the field changes.
func (s *Service) UpdateStudent(ctx context.Context, id string, upd StudentUpdate) (Student, error) {
	const op = "directory.UpdateStudent"
	if err := validate.Struct(op, upd); err != nil {
		return Student{}, err
	}
	st, err := s.repo.GetStudent(ctx, id)
	if err != nil {
		return Student{}, err
	}
	apply := func(dst *string, src *string) {
		if src != nil {
			*dst = strings.TrimSpace(*src)
		}
	}
	apply(&st.RollNo, upd.RollNo)
	apply(&st.Name, upd.Name)
	apply(&st.Email, upd.Email)
	apply(&st.Department, upd.Department)
	apply(&st.Year, upd.Year)
	apply(&st.Division, upd.Division)
	apply(&st.ImageRef, upd.ImageRef)

	err = s.repo.DB().WithTx(ctx, func(tx *sqlx.Tx) error {
		if err := s.repo.UpdateStudent(ctx, tx, st); err != nil {
			return err
		}
		if upd.SubjectIDs == nil {
			return nil
		}
		if err := s.repo.ClearEnrollments(ctx, tx, st.ID); err != nil {
			return err
		}
		for _, subjectID := range *upd.SubjectIDs {
			if _, err := s.repo.Enroll(ctx, tx, st.ID, subjectID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return Student{}, err
	}
	return st, nil
}

// DeleteStudent removes a student together with enrollments and ledger rows.
func (s *Service) DeleteStudent(ctx context.Context, id string) error {
	if err := s.repo.DeleteStudent(ctx, id); err != nil {
		return err
	}
	s.log.Info("deleted student %s", id)
	return nil
}

// Enroll adds the pair; enrolling twice is not an error.
func (s *Service) Enroll(ctx context.Context, studentID, subjectID string) error {
	if _, err := s.repo.GetStudent(ctx, studentID); err != nil {
		return err
	}
	if _, err := s.repo.GetSubject(ctx, subjectID); err != nil {
		return err
	}
	_, err := s.repo.Enroll(ctx, s.repo.DB(), studentID, subjectID)
	return err
}

// BulkEnrollAll enrolls every student in every subject and returns how many
// pairs were newly created.
func (s *Service) BulkEnrollAll(ctx context.Context) (int, error) {
	n, err := s.repo.EnrollMissing(ctx, "")
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.log.Info("bulk enroll created %d enrollments", n)
	}
	return n, nil
}

// EnrollInAll enrolls one student in every subject.
func (s *Service) EnrollInAll(ctx context.Context, studentID string) (int, error) {
	if _, err := s.repo.GetStudent(ctx, studentID); err != nil {
		return 0, err
	}
	return s.repo.EnrollMissing(ctx, studentID)
}

// ListEnrolledSubjects returns the subjects a student takes.
func (s *Service) ListEnrolledSubjects(ctx context.Context, studentID string) ([]Subject, error) {
	return s.repo.EnrolledSubjects(ctx, studentID)
}

// ListEnrolledStudents returns the students taking a subject.
func (s *Service) ListEnrolledStudents(ctx context.Context, subjectID string) ([]Student, error) {
	return s.repo.EnrolledStudents(ctx, s.repo.DB(), subjectID)
}

// EnrollmentStatus reports per-student enrollment completeness.
func (s *Service) EnrollmentStatus(ctx context.Context) ([]EnrollmentStatus, error) {
	return s.repo.EnrollmentStatus(ctx)
}

// ListSubjects returns the catalogue.
func (s *Service) ListSubjects(ctx context.Context) ([]Subject, error) {
	return s.repo.ListSubjects(ctx)
}

// GetSubject returns a subject by id.
func (s *Service) GetSubject(ctx context.Context, id string) (Subject, error) {
	return s.repo.GetSubject(ctx, id)
}

// SubjectByCode returns a subject by code.
func (s *Service) SubjectByCode(ctx context.Context, code string) (Subject, error) {
	return s.repo.GetSubjectByCode(ctx, code)
}

// SeedSubjects inserts subjects whose codes are missing and returns how many were added.
func (s *Service) SeedSubjects(ctx context.Context, subjects []Subject) (int, error) {
	added := 0
	for _, sub := range subjects {
		if strings.TrimSpace(sub.Code) == "" || strings.TrimSpace(sub.Name) == "" {
			return added, apperr.Validation("directory.SeedSubjects", "subject code and name required")
		}
		if sub.ID == "" {
			sub.ID = uuid.NewString()
		}
		ok, err := s.repo.InsertSubject(ctx, sub)
		if err != nil {
			return added, err
		}
		if ok {
			added++
		}
	}
	if added > 0 {
		s.log.Info("seeded %d subjects", added)
	}
	return added, nil
}
