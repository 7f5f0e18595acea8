package attendance

import (
	"context"

	"github.com/jmoiron/sqlx"

	"classattend/internal/apperr"
	"classattend/internal/store"
)

// Repository persists ledger rows.
type Repository struct {
	db *store.DB
}

// NewRepository creates a repo.
func NewRepository(db *store.DB) *Repository {
	return &Repository{db: db}
}

// Upsert writes the row for its composite key, overwriting any earlier status.
func (r *Repository) Upsert(ctx context.Context, q sqlx.ExtContext, rec Record) error {
	_, err := q.ExecContext(ctx, q.Rebind(`
		INSERT INTO attendance (student_id, subject_id, date, period, status)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (student_id, subject_id, date, period) DO UPDATE SET status = excluded.status
	`), rec.StudentID, rec.SubjectID, rec.Date, string(rec.Period), string(rec.Status))
	if store.IsForeignKeyViolation(err) {
		return apperr.NotFound("attendance.Upsert", "student %s or subject %s not found", rec.StudentID, rec.SubjectID)
	}
	if store.IsIntegrityViolation(err) {
		return apperr.E(apperr.KindIntegrity, "attendance.Upsert", err)
	}
	if err != nil {
		return apperr.E(apperr.KindStorage, "attendance.Upsert", err)
	}
	return nil
}

// List returns joined ledger rows matching f, newest first.
func (r *Repository) List(ctx context.Context, f Filter) ([]Entry, error) {
	qb := r.db.Builder().
		Select(
			"a.student_id", "a.subject_id", "a.date", "a.period", "a.status",
			"s.roll_no", "s.name AS student_name", "sub.code AS subject_code", "sub.name AS subject_name",
		).
		From("attendance a").
		Join("students s ON s.id = a.student_id").
		Join("subjects sub ON sub.id = a.subject_id").
		OrderBy("a.date DESC", "a.period", "s.roll_no", "sub.name")

	if f.StudentID != "" {
		qb = qb.Where("a.student_id = ?", f.StudentID)
	}
	if f.SubjectID != "" {
		qb = qb.Where("a.subject_id = ?", f.SubjectID)
	}
	if !f.From.IsZero() {
		qb = qb.Where("a.date >= ?", FormatDate(f.From))
	}
	if !f.To.IsZero() {
		qb = qb.Where("a.date <= ?", FormatDate(f.To))
	}
	if f.Period != "" {
		qb = qb.Where("a.period = ?", string(f.Period))
	}
	if f.Status != "" {
		qb = qb.Where("a.status = ?", string(f.Status))
	}
	if f.Limit > 0 {
		qb = qb.Limit(f.Limit)
	}
	if f.Offset > 0 {
		qb = qb.Offset(f.Offset)
	}

	query, args, err := qb.ToSql()
	if err != nil {
		return nil, apperr.Storage("attendance.List", err)
	}
	var out []Entry
	if err := r.db.SelectContext(ctx, &out, query, args...); err != nil {
		return nil, apperr.Storage("attendance.List", err)
	}
	return out, nil
}

// records returns the raw rows for one (subject, date, period) key.
func (r *Repository) records(ctx context.Context, subjectID, date string, period Period) ([]Record, error) {
	var out []Record
	err := r.db.SelectContext(ctx, &out, r.db.Rebind(`
		SELECT student_id, subject_id, date, period, status
		FROM attendance
		WHERE subject_id = ? AND date = ? AND period = ?
		ORDER BY student_id
	`), subjectID, date, string(period))
	return out, apperr.Storage("attendance.records", err)
}
