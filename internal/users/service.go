package users

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"classattend/internal/apperr"
	"classattend/internal/logger"
	"classattend/internal/validate"
)

// ErrInvalidCredentials is returned for any failed login, whatever the cause.
var ErrInvalidCredentials = errors.New("invalid credentials")

// ErrInactive is returned when a deactivated account tries to log in.
var ErrInactive = errors.New("user account is deactivated")

// NewUser contains data needed to create an account.
type NewUser struct {
	Username   string `json:"username" validate:"required,min=3,max=50,rollno"`
	Password   string `json:"password" validate:"required,min=6,max=72"`
	Role       string `json:"role" validate:"required,oneof=HOD 'Class Teacher' Teacher"`
	Name       string `json:"name" validate:"required,min=2,max=100,personname"`
	Email      string `json:"email" validate:"omitempty,max=100,email"`
	Department string `json:"department" validate:"max=50"`
}

// DefaultUsers are created when the users table is empty.
var DefaultUsers = []NewUser{
	{Username: "admin", Password: "admin123", Role: string(RoleHOD), Name: "Head of Department", Email: "hod@example.com", Department: "ENTC"},
	{Username: "classteacher", Password: "teacher123", Role: string(RoleClassTeacher), Name: "Class Teacher", Email: "classteacher@example.com", Department: "ENTC"},
	{Username: "teacher", Password: "teacher123", Role: string(RoleTeacher), Name: "Subject Teacher", Email: "teacher@example.com", Department: "ENTC"},
}

// Service provides account business logic.
type Service struct {
	repo *Repository
	log  logger.Logger
	cost int
	now  func() time.Time
}

// NewService creates a new user service.
func NewService(repo *Repository, log logger.Logger) *Service {
	return &Service{repo: repo, log: log, cost: bcrypt.DefaultCost, now: time.Now}
}

// SetCost overrides the bcrypt cost used for new hashes.
func (s *Service) SetCost(cost int) { s.cost = cost }

// Create registers a new account.
func (s *Service) Create(ctx context.Context, in NewUser) (User, error) {
	in.Username = strings.TrimSpace(in.Username)
	if err := validate.Struct("users.Create", in); err != nil {
		return User{}, err
	}
	role, err := ParseRole(in.Role)
	if err != nil {
		return User{}, apperr.E(apperr.KindValidation, "users.Create", err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.cost)
	if err != nil {
		return User{}, fmt.Errorf("failed to hash password: %w", err)
	}
	u := User{
		ID:           uuid.NewString(),
		Username:     in.Username,
		PasswordHash: string(hash),
		Role:         role,
		Name:         in.Name,
		Email:        in.Email,
		Department:   in.Department,
		IsActive:     true,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.repo.CreateUser(ctx, u); err != nil {
		return User{}, err
	}
	return u, nil
}

// Authenticate checks a username and password pair.
func (s *Service) Authenticate(ctx context.Context, username, password string) (User, error) {
	u, err := s.repo.GetUserByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			s.log.Warn("login failed: unknown user %q", username)
			return User{}, ErrInvalidCredentials
		}
		return User{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		s.log.Warn("login failed: bad password for %q", username)
		return User{}, ErrInvalidCredentials
	}
	if !u.IsActive {
		return User{}, ErrInactive
	}
	now := s.now().UTC()
	if err := s.repo.TouchLastLogin(ctx, u.ID, now); err != nil {
		s.log.Warn("record last login for %s: %v", u.Username, err)
	} else {
		u.LastLogin = &now
	}
	return u, nil
}

// ChangePassword replaces the password after verifying the current one.
func (s *Service) ChangePassword(ctx context.Context, id, oldPassword, newPassword string) error {
	const op = "users.ChangePassword"
	if len(newPassword) < 6 || len(newPassword) > 72 {
		return apperr.E(apperr.KindValidation, op, errors.New("new password must be 6 to 72 characters"),
			apperr.FieldError{Field: "new_password", Error: "must be 6 to 72 characters"})
	}
	u, err := s.repo.GetUserByID(ctx, id)
	if err != nil {
		return err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(oldPassword)); err != nil {
		return apperr.E(apperr.KindValidation, op, errors.New("current password is incorrect"),
			apperr.FieldError{Field: "old_password", Error: "is incorrect"})
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), s.cost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	return s.repo.UpdatePassword(ctx, id, string(hash))
}

// Get returns a user by id.
func (s *Service) Get(ctx context.Context, id string) (User, error) {
	return s.repo.GetUserByID(ctx, id)
}

// List returns all users.
func (s *Service) List(ctx context.Context) ([]User, error) {
	return s.repo.ListUsers(ctx)
}

// SetActive enables or disables an account.
func (s *Service) SetActive(ctx context.Context, id string, active bool) error {
	return s.repo.SetActive(ctx, id, active)
}

// SeedDefaults creates the sample accounts when no users exist yet.
func (s *Service) SeedDefaults(ctx context.Context) (int, error) {
	n, err := s.repo.CountUsers(ctx)
	if err != nil || n > 0 {
		return 0, err
	}
	for _, nu := range DefaultUsers {
		if _, err := s.Create(ctx, nu); err != nil {
			return 0, fmt.Errorf("seed %s: %w", nu.Username, err)
		}
		s.log.Info("sample user created: %s (%s)", nu.Username, nu.Role)
	}
	return len(DefaultUsers), nil
}
