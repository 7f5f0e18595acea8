package users

import (
	"context"
	"time"

	"classattend/internal/apperr"
	"classattend/internal/store"
)

// User is a staff account.
type User struct {
	ID           string     `db:"id" json:"id"`
	Username     string     `db:"username" json:"username"`
	PasswordHash string     `db:"password_hash" json:"-"`
	Role         Role       `db:"role" json:"role"`
	Name         string     `db:"name" json:"name"`
	Email        string     `db:"email" json:"email"`
	Department   string     `db:"department" json:"department"`
	IsActive     bool       `db:"is_active" json:"is_active"`
	LastLogin    *time.Time `db:"last_login" json:"last_login,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
}

// Can reports whether the user's role grants p.
func (u User) Can(p Permission) bool { return u.IsActive && u.Role.Can(p) }

const userColumns = "id, username, password_hash, role, name, email, department, is_active, last_login, created_at"

// Repository persists users.
type Repository struct {
	db *store.DB
}

// NewRepository creates a new user repository.
func NewRepository(db *store.DB) *Repository {
	return &Repository{db: db}
}

// CreateUser inserts a user.
func (r *Repository) CreateUser(ctx context.Context, u User) error {
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`
		INSERT INTO users (id, username, password_hash, role, name, email, department, is_active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`), u.ID, u.Username, u.PasswordHash, string(u.Role), u.Name, u.Email, u.Department, u.IsActive, u.CreatedAt)
	if store.IsUniqueViolation(err) {
		return apperr.Conflict("users.CreateUser", "username %q already exists", u.Username)
	}
	return apperr.Storage("users.CreateUser", err)
}

// GetUserByUsername retrieves a user by username.
func (r *Repository) GetUserByUsername(ctx context.Context, username string) (User, error) {
	var u User
	err := r.db.GetContext(ctx, &u, r.db.Rebind("SELECT "+userColumns+" FROM users WHERE username = ?"), username)
	if store.IsNoRows(err) {
		return User{}, apperr.NotFound("users.GetUserByUsername", "user %q not found", username)
	}
	return u, apperr.Storage("users.GetUserByUsername", err)
}

// GetUserByID retrieves a user by id.
func (r *Repository) GetUserByID(ctx context.Context, id string) (User, error) {
	var u User
	err := r.db.GetContext(ctx, &u, r.db.Rebind("SELECT "+userColumns+" FROM users WHERE id = ?"), id)
	if store.IsNoRows(err) {
		return User{}, apperr.NotFound("users.GetUserByID", "user %s not found", id)
	}
	return u, apperr.Storage("users.GetUserByID", err)
}

// ListUsers returns all users ordered by role then username.
func (r *Repository) ListUsers(ctx context.Context) ([]User, error) {
	var out []User
	err := r.db.SelectContext(ctx, &out, "SELECT "+userColumns+" FROM users ORDER BY role, username")
	return out, apperr.Storage("users.ListUsers", err)
}

// CountUsers returns the number of accounts.
func (r *Repository) CountUsers(ctx context.Context) (int, error) {
	var n int
	err := r.db.GetContext(ctx, &n, "SELECT COUNT(*) FROM users")
	return n, apperr.Storage("users.CountUsers", err)
}

// UpdatePassword stores a new hash.
func (r *Repository) UpdatePassword(ctx context.Context, id, hash string) error {
	res, err := r.db.ExecContext(ctx, r.db.Rebind("UPDATE users SET password_hash = ? WHERE id = ?"), hash, id)
	if err != nil {
		return apperr.Storage("users.UpdatePassword", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFound("users.UpdatePassword", "user %s not found", id)
	}
	return nil
}

// SetActive enables or disables an account.
func (r *Repository) SetActive(ctx context.Context, id string, active bool) error {
	res, err := r.db.ExecContext(ctx, r.db.Rebind("UPDATE users SET is_active = ? WHERE id = ?"), active, id)
	if err != nil {
		return apperr.Storage("users.SetActive", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFound("users.SetActive", "user %s not found", id)
	}
	return nil
}

// TouchLastLogin records a successful login.
func (r *Repository) TouchLastLogin(ctx context.Context, id string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, r.db.Rebind("UPDATE users SET last_login = ? WHERE id = ?"), at, id)
	return apperr.Storage("users.TouchLastLogin", err)
}
