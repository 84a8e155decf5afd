package services

import (
	"context"
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"librarycatalog/internal/database"
	"librarycatalog/internal/logging"
	"librarycatalog/internal/models"
)

const (
	defaultBcryptCost = bcrypt.DefaultCost

	maxUsernameLength = 50
	// bcrypt ignores input past 72 bytes.
	maxPasswordLength = 72
)

// ─── User Accounts ────────────────────────────────────────────────────────────

func validateCredentials(username, password string) (string, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return "", invalidf("username and password are required")
	}
	if len(username) > maxUsernameLength {
		return "", invalidf("username must be at most %d characters", maxUsernameLength)
	}
	if len(password) > maxPasswordLength {
		return "", invalidf("password must be at most %d bytes", maxPasswordLength)
	}
	return username, nil
}

func (s *libraryService) hash(password string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(password), s.opts.bcryptCost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

// Register creates a user with a bcrypt-hashed password.
func (s *libraryService) Register(ctx context.Context, username, password string) (*models.User, error) {
	username, err := validateCredentials(username, password)
	if err != nil {
		return nil, err
	}
	hash, err := s.hash(password)
	if err != nil {
		return nil, err
	}

	user := &models.User{Username: username, Password: hash, CreatedAt: s.now()}
	if err := s.userRepo.Create(s.scoped(ctx), user); err != nil {
		if database.IsUniqueViolation(err) {
			return nil, ErrDuplicateUsername
		}
		logging.Ctx(ctx).Error().Err(err).Str("username", username).Msg("register failed")
		return nil, err
	}
	logging.Ctx(ctx).Info().Uint("user_id", user.UserID).Str("username", username).Msg("user registered")
	return user, nil
}

// Login verifies the credential. Unknown users and wrong passwords are
// indistinguishable to the caller.
func (s *libraryService) Login(ctx context.Context, username, password string) (*models.User, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, invalidf("username and password are required")
	}
	user, err := s.userRepo.GetByUsername(s.scoped(ctx), username)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

func (s *libraryService) GetUser(ctx context.Context, id uint) (*models.User, error) {
	user, err := s.userRepo.GetByID(s.scoped(ctx), id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return user, nil
}

// UpdateUser replaces both the username and the password.
func (s *libraryService) UpdateUser(ctx context.Context, id uint, username, password string) (*models.User, error) {
	username, err := validateCredentials(username, password)
	if err != nil {
		return nil, err
	}
	hash, err := s.hash(password)
	if err != nil {
		return nil, err
	}

	var user *models.User
	err = s.scoped(ctx).Transaction(func(tx *gorm.DB) error {
		u, err := s.userRepo.GetByID(tx, id)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrUserNotFound
			}
			return err
		}
		if err := s.userRepo.UpdateCredentials(tx, id, username, hash); err != nil {
			if database.IsUniqueViolation(err) {
				return ErrDuplicateUsername
			}
			return err
		}
		u.Username = username
		u.Password = hash
		user = u
		return nil
	})
	if err != nil {
		return nil, err
	}
	logging.Ctx(ctx).Info().Uint("user_id", id).Msg("user updated")
	return user, nil
}

// DeleteUser soft-deletes the user so the ledger keeps its references.
// A user still holding books cannot be deleted.
func (s *libraryService) DeleteUser(ctx context.Context, id uint) error {
	err := s.scoped(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.userRepo.GetByID(tx, id); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrUserNotFound
			}
			return err
		}
		held, err := s.bookRepo.CountHeldBy(tx, id)
		if err != nil {
			return err
		}
		if held > 0 {
			return ErrUserHasActiveCheckouts
		}
		return s.userRepo.Delete(tx, id)
	})
	if err != nil {
		return err
	}
	logging.Ctx(ctx).Info().Uint("user_id", id).Msg("user deleted")
	return nil
}
