package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"estateadmin/internal/config"
	"estateadmin/internal/database"
	"estateadmin/internal/models"

	"github.com/rs/zerolog"
)

// UserService manages accounts and role assignment for the admin screens.
type UserService struct {
	db     *database.DB
	logger *zerolog.Logger
}

func NewUserService(db *database.DB, logger *zerolog.Logger) *UserService {
	return &UserService{db: db, logger: logger}
}

func (s *UserService) Register(ctx context.Context, user *models.User) error {
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))
	if user.Email == "" || !strings.Contains(user.Email, "@") {
		return fmt.Errorf("%w: a valid email is required", database.ErrInvalidInput)
	}
	if user.FullName == "" {
		return fmt.Errorf("%w: full name is required", database.ErrInvalidInput)
	}
	if len(user.Roles) == 0 {
		user.Roles = []models.Role{models.RoleUser}
	}
	for _, role := range user.Roles {
		if !role.Valid() {
			return fmt.Errorf("%w: unknown role %q", database.ErrInvalidInput, role)
		}
	}

	if _, err := s.db.GetUserByEmail(ctx, user.Email); err == nil {
		return fmt.Errorf("%w: email %s is already registered", database.ErrInvalidInput, user.Email)
	} else if !errors.Is(err, database.ErrNotFound) {
		return err
	}

	user.IsActive = true
	if err := s.db.CreateUser(ctx, user); err != nil {
		return err
	}
	s.logger.Info().Int64("user_id", user.ID).Str("email", user.Email).Msg("user registered")
	return nil
}

func (s *UserService) Get(ctx context.Context, id int64) (*models.User, error) {
	return s.db.GetUser(ctx, id)
}

func (s *UserService) List(ctx context.Context, filter database.UserFilter) ([]*models.User, error) {
	return s.db.ListUsers(ctx, filter)
}

// AssignRole replaces the user's roles with a single role.
func (s *UserService) AssignRole(ctx context.Context, userID int64, role models.Role) error {
	if !role.Valid() {
		return fmt.Errorf("%w: unknown role %q", database.ErrInvalidInput, role)
	}
	if err := s.db.SetUserRole(ctx, userID, role); err != nil {
		return err
	}
	s.logger.Info().Int64("user_id", userID).Str("role", string(role)).Msg("role assigned")
	return nil
}

// Seed creates the configured bootstrap users when they do not exist yet.
// Existing users keep their current roles untouched.
func (s *UserService) Seed(ctx context.Context, seed config.SeedConfig) error {
	for _, su := range seed.Users {
		email := strings.ToLower(strings.TrimSpace(su.Email))
		_, err := s.db.GetUserByEmail(ctx, email)
		if err == nil {
			continue
		}
		if !errors.Is(err, database.ErrNotFound) {
			return err
		}

		user := &models.User{
			Email:    email,
			FullName: su.FullName,
			Roles:    []models.Role{su.Role},
			IsActive: true,
		}
		if err := s.db.CreateUser(ctx, user); err != nil {
			return fmt.Errorf("failed to seed user %s: %w", email, err)
		}
		s.logger.Info().Str("email", email).Str("role", string(su.Role)).Msg("seed user created")
	}
	return nil
}
