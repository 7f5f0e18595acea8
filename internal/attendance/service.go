package attendance

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"

	"classattend/internal/apperr"
	"classattend/internal/directory"
	"classattend/internal/logger"
	"classattend/internal/metrics"
	"classattend/internal/notify"
	"classattend/internal/store"
)

// Options tunes notification dispatch.
type Options struct {
	NotifyTimeout time.Duration
	NotifyPresent bool
	NotifyAbsent  bool
}

// Service is the attendance ledger.
type Service struct {
	db       *store.DB
	repo     *Repository
	dir      *directory.Repository
	notifier notify.Sender
	log      logger.Logger
	opts     Options
	wg       sync.WaitGroup
}

// NewService creates a ledger. A nil notifier disables notifications.
func NewService(db *store.DB, repo *Repository, dir *directory.Repository, notifier notify.Sender, log logger.Logger, opts Options) *Service {
	if opts.NotifyTimeout <= 0 {
		opts.NotifyTimeout = 10 * time.Second
	}
	return &Service{db: db, repo: repo, dir: dir, notifier: notifier, log: log, opts: opts}
}

// Repository exposes the ledger rows for read-side consumers.
func (s *Service) Repository() *Repository { return s.repo }

// MarkAttendance upserts a single row and, after commit, hands a
// notification to the notifier.
func (s *Service) MarkAttendance(ctx context.Context, studentID, subjectID string, date time.Time, period, status string) error {
	const op = "attendance.MarkAttendance"
	rec, err := s.record(op, studentID, subjectID, date, period, status)
	if err != nil {
		return err
	}
	if rec.StudentID == "" || rec.SubjectID == "" {
		return apperr.Validation(op, "student and subject required")
	}
	err = s.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		return s.repo.Upsert(ctx, tx, rec)
	})
	if err != nil {
		return err
	}
	metrics.Marks.WithLabelValues(string(rec.Status)).Inc()
	s.dispatch(rec.SubjectID, rec.Date, rec.Period, map[string]Status{rec.StudentID: rec.Status})
	return nil
}

// Finalize partitions the students enrolled in subject into present and
// absent for (subject, date, period). Every enrolled student ends up with
// exactly one row for the key; rows that fail to write keep their previous
// state and are listed in the result.
func (s *Service) Finalize(ctx context.Context, subjectID string, date time.Time, period string, presentIDs []string) (FinalizeResult, error) {
	const op = "attendance.Finalize"
	p, err := ParsePeriod(period)
	if err != nil {
		return FinalizeResult{}, apperr.E(apperr.KindValidation, op, err)
	}
	if date.IsZero() {
		return FinalizeResult{}, apperr.Validation(op, "date required")
	}
	if _, err := s.dir.GetSubject(ctx, subjectID); err != nil {
		return FinalizeResult{}, err
	}

	present := map[string]bool{}
	for _, id := range presentIDs {
		if id = strings.TrimSpace(id); id != "" {
			present[id] = true
		}
	}

	res := FinalizeResult{SubjectID: subjectID, Date: FormatDate(date), Period: p}
	written := map[string]Status{}
	start := time.Now()

	err = s.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		enrolled, err := s.dir.EnrolledIDs(ctx, tx, subjectID)
		if err != nil {
			return err
		}
		res.Enrolled = len(enrolled)

		plan := make(map[string]Status, len(enrolled)+len(present))
		for id := range present {
			plan[id] = StatusPresent
		}
		for _, id := range enrolled {
			if !present[id] {
				plan[id] = StatusAbsent
			}
		}
		ids := make([]string, 0, len(plan))
		for id := range plan {
			ids = append(ids, id)
		}
		// a stable write order keeps racing finalizes from interleaving row locks
		sort.Strings(ids)

		for _, id := range ids {
			rec := Record{StudentID: id, SubjectID: subjectID, Date: res.Date, Period: p, Status: plan[id]}
			err := store.Savepoint(ctx, tx, "mark_row", func() error {
				return s.repo.Upsert(ctx, tx, rec)
			})
			if err != nil {
				if ctx.Err() != nil {
					return apperr.Storage(op, ctx.Err())
				}
				s.log.Warn("finalize %s %s %s: mark %s %s failed: %v", subjectID, res.Date, p, id, rec.Status, err)
				res.Failed = append(res.Failed, id)
				continue
			}
			written[id] = rec.Status
		}
		return nil
	})
	metrics.FinalizeDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return FinalizeResult{}, err
	}

	for id, st := range written {
		if st == StatusPresent {
			res.Present = append(res.Present, id)
		} else {
			res.Absent = append(res.Absent, id)
		}
		metrics.Marks.WithLabelValues(string(st)).Inc()
	}
	sort.Strings(res.Present)
	sort.Strings(res.Absent)
	metrics.Finalizes.Inc()
	metrics.FinalizeFailedRows.Add(float64(len(res.Failed)))
	if res.Mismatch() {
		s.log.Error("finalize %s %s %s: %d of %d rows failed", subjectID, res.Date, p, len(res.Failed), len(written)+len(res.Failed))
	} else {
		s.log.Info("finalize %s %s %s: %d present, %d absent", subjectID, res.Date, p, len(res.Present), len(res.Absent))
	}

	s.dispatch(subjectID, res.Date, p, written)
	return res, nil
}

// List returns ledger rows matching f.
func (s *Service) List(ctx context.Context, f Filter) ([]Entry, error) {
	if !f.From.IsZero() && !f.To.IsZero() && f.From.After(f.To) {
		return nil, apperr.Validation("attendance.List", "from %s is after to %s", FormatDate(f.From), FormatDate(f.To))
	}
	return s.repo.List(ctx, f)
}

// History returns every row for a student, newest first.
func (s *Service) History(ctx context.Context, studentID string) ([]Entry, error) {
	if _, err := s.dir.GetStudent(ctx, studentID); err != nil {
		return nil, err
	}
	return s.repo.List(ctx, Filter{StudentID: studentID})
}

// Wait blocks until in-flight notifications have finished or timed out.
func (s *Service) Wait() { s.wg.Wait() }

func (s *Service) record(op, studentID, subjectID string, date time.Time, period, status string) (Record, error) {
	st, err := ParseStatus(status)
	if err != nil {
		return Record{}, apperr.E(apperr.KindValidation, op, err)
	}
	p, err := ParsePeriod(period)
	if err != nil {
		return Record{}, apperr.E(apperr.KindValidation, op, err)
	}
	if date.IsZero() {
		return Record{}, apperr.Validation(op, "date required")
	}
	return Record{
		StudentID: strings.TrimSpace(studentID),
		SubjectID: strings.TrimSpace(subjectID),
		Date:      FormatDate(date),
		Period:    p,
		Status:    st,
	}, nil
}

func (s *Service) wants(st Status) bool {
	switch st {
	case StatusPresent:
		return s.opts.NotifyPresent
	case StatusAbsent:
		return s.opts.NotifyAbsent
	}
	return false
}

// dispatch sends notifications in the background. It runs only after the
// ledger write committed and never reports back to the caller.
func (s *Service) dispatch(subjectID, date string, period Period, marks map[string]Status) {
	if s.notifier == nil || len(marks) == 0 {
		return
	}
	wanted := map[string]Status{}
	for id, st := range marks {
		if s.wants(st) {
			wanted[id] = st
		}
	}
	if len(wanted) == 0 {
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), s.opts.NotifyTimeout)
		defer cancel()

		subject, err := s.dir.GetSubject(ctx, subjectID)
		if err != nil {
			s.log.Warn("notify: load subject %s: %v", subjectID, err)
			metrics.Notifications.WithLabelValues(metrics.ResultFailed).Add(float64(len(wanted)))
			return
		}
		students, err := s.dir.EnrolledStudents(ctx, s.db, subjectID)
		if err != nil {
			s.log.Warn("notify: load students for %s: %v", subjectID, err)
			metrics.Notifications.WithLabelValues(metrics.ResultFailed).Add(float64(len(wanted)))
			return
		}
		byID := make(map[string]directory.Student, len(students))
		for _, st := range students {
			byID[st.ID] = st
		}

		ids := make([]string, 0, len(wanted))
		for id := range wanted {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			st, ok := byID[id]
			if !ok {
				if st, err = s.dir.GetStudent(ctx, id); err != nil {
					s.log.Warn("notify: load student %s: %v", id, err)
					metrics.Notifications.WithLabelValues(metrics.ResultFailed).Inc()
					continue
				}
			}
			if st.Email == "" {
				metrics.Notifications.WithLabelValues(metrics.ResultSkipped).Inc()
				continue
			}
			n := notify.Notification{
				To:          st.Email,
				StudentName: st.Name,
				RollNo:      st.RollNo,
				SubjectName: subject.Name,
				Date:        date,
				Period:      period.Display(),
				Status:      string(wanted[id]),
			}
			if err := s.notifier.Send(ctx, n); err != nil {
				s.log.Warn("notify %s (%s): %v", st.RollNo, n.Status, apperr.External("attendance.notify", err))
				metrics.Notifications.WithLabelValues(metrics.ResultFailed).Inc()
				if ctx.Err() != nil {
					s.log.Warn("notify: abandoned %s %s after timeout", subjectID, date)
					return
				}
				continue
			}
			metrics.Notifications.WithLabelValues(metrics.ResultOK).Inc()
		}
	}()
}
