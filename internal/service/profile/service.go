package profile

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"storefront/internal/domain"
	profilerepo "storefront/internal/repository/profile"
	"storefront/internal/validation"
)

// Service handles profile signup, login and account edits.
type Service struct {
	repo        profilerepo.Repository
	validate    *validator.Validate
	logger      *zap.Logger
	bcryptCost  int
	passwordMin int
}

// New creates a Service. A cost outside bcrypt's range falls back to the default.
func New(repo profilerepo.Repository, bcryptCost int, logger *zap.Logger) *Service {
	if bcryptCost < bcrypt.MinCost || bcryptCost > bcrypt.MaxCost {
		bcryptCost = bcrypt.DefaultCost
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		repo:        repo,
		validate:    validation.New(),
		logger:      logger,
		bcryptCost:  bcryptCost,
		passwordMin: 8,
	}
}

// SignupInput captures fields expected by the sign-up endpoint.
type SignupInput struct {
	Username string `json:"username" validate:"required,min=3,max=150"`
	Password string `json:"password" validate:"required"`
	FullName string `json:"fullName" validate:"max=100"`
	Email    string `json:"email" validate:"omitempty,email,max=254"`
	Phone    string `json:"phone" validate:"omitempty,numeric,min=5,max=20"`
}

// UpdateInput carries the editable contact fields.
type UpdateInput struct {
	FullName string `json:"fullName" validate:"required,max=100"`
	Email    string `json:"email" validate:"required,email,max=254"`
	Phone    string `json:"phone" validate:"required,numeric,min=5,max=20"`
}

// PasswordInput is a password change request.
type PasswordInput struct {
	CurrentPassword string `json:"currentPassword" validate:"required"`
	NewPassword     string `json:"newPassword" validate:"required"`
}

// Signup registers a new profile.
func (s *Service) Signup(ctx context.Context, in SignupInput) (*domain.Profile, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.TrimSpace(strings.ToLower(in.Email))
	if err := validation.Struct(s.validate, &in); err != nil {
		return nil, err
	}
	password := strings.TrimSpace(in.Password)
	if err := validatePassword(password, s.passwordMin); err != nil {
		return nil, err
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return nil, err
	}

	p, err := s.repo.Create(ctx, domain.Profile{
		Username:     in.Username,
		PasswordHash: string(hashed),
		FullName:     in.FullName,
		Email:        in.Email,
		Phone:        in.Phone,
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("profile created", zap.Int64("profile_id", p.ID), zap.String("username", p.Username))
	return p, nil
}

// Authenticate checks credentials. Unknown users and wrong passwords both
// return domain.ErrInvalidCredentials.
func (s *Service) Authenticate(ctx context.Context, username, password string) (*domain.Profile, error) {
	p, err := s.repo.GetByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrInvalidCredentials
		}
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(p.PasswordHash), []byte(strings.TrimSpace(password))); err != nil {
		return nil, domain.ErrInvalidCredentials
	}
	return p, nil
}

func (s *Service) Get(ctx context.Context, id int64) (*domain.Profile, error) {
	return s.repo.GetByID(ctx, id)
}

// Update replaces the contact fields of the profile.
func (s *Service) Update(ctx context.Context, id int64, in UpdateInput) (*domain.Profile, error) {
	in.Email = strings.TrimSpace(strings.ToLower(in.Email))
	if err := validation.Struct(s.validate, &in); err != nil {
		return nil, err
	}
	return s.repo.Update(ctx, domain.Profile{
		ID:       id,
		FullName: in.FullName,
		Email:    in.Email,
		Phone:    in.Phone,
	})
}

// ChangePassword verifies the current password before storing the new one.
func (s *Service) ChangePassword(ctx context.Context, id int64, in PasswordInput) error {
	if err := validation.Struct(s.validate, &in); err != nil {
		return err
	}
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(p.PasswordHash), []byte(strings.TrimSpace(in.CurrentPassword))); err != nil {
		return domain.ErrInvalidCredentials
	}
	password := strings.TrimSpace(in.NewPassword)
	if err := validatePassword(password, s.passwordMin); err != nil {
		return err
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return err
	}
	if err := s.repo.UpdatePassword(ctx, id, string(hashed)); err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return nil
}

func validatePassword(p string, min int) error {
	if len(p) < min {
		return domain.NewValidationError("password", fmt.Sprintf("must be at least %d characters", min))
	}
	hasUpper := false
	hasLower := false
	hasDigit := false
	for _, r := range p {
		switch {
		case r >= 'A' && r <= 'Z':
			hasUpper = true
		case r >= 'a' && r <= 'z':
			hasLower = true
		case r >= '0' && r <= '9':
			hasDigit = true
		}
	}
	if !hasUpper || !hasLower || !hasDigit {
		return domain.NewValidationError("password", "must contain at least 1 uppercase letter, 1 lowercase letter, and 1 number")
	}
	return nil
}
