package users

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"

	"github.com/agrobid/agrobid/internal/domain/validate"
	"github.com/agrobid/agrobid/pkg/auth"
	"github.com/agrobid/agrobid/pkg/database"
)

var (
	ErrUserAlreadyExists  = errors.New("user with this email already exists")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrUserNotFound       = errors.New("user not found")
	ErrAccountDeactivated = errors.New("account is deactivated")
	ErrWrongPassword      = errors.New("current password is incorrect")
)

var (
	emailRe   = regexp.MustCompile(`^\w+([.-]?\w+)*@\w+([.-]?\w+)*(\.\w{2,3})+$`)
	phoneRe   = regexp.MustCompile(`^[0-9]{10}$`)
	pincodeRe = regexp.MustCompile(`^[0-9]{6}$`)
)

// RegisterCommand carries everything needed to create an account. Exactly one
// of the detail blocks should be set, matching the role.
type RegisterCommand struct {
	Name     string
	Email    string
	Password string
	Role     Role
	Phone    string
	Address  Address

	FarmerDetails      *FarmerDetails
	BuyerDetails       *BuyerDetails
	TransporterDetails *TransporterDetails
	ProfileImage       *string
}

// UpdateProfileCommand carries mutable profile fields. Role and email are not
// updatable.
type UpdateProfileCommand struct {
	UserID  uuid.UUID
	Name    string
	Phone   string
	Address *Address

	FarmerDetails      *FarmerDetails
	BuyerDetails       *BuyerDetails
	TransporterDetails *TransporterDetails
	ProfileImage       *string
}

// Service implements account management
type Service struct {
	repo      Repository
	txManager database.TransactionManager
}

// NewService creates a new user service
func NewService(repo Repository, txManager database.TransactionManager) *Service {
	return &Service{repo: repo, txManager: txManager}
}

// Register creates a new account after validating the registration payload.
func (s *Service) Register(ctx context.Context, cmd RegisterCommand) (*User, error) {
	if err := validateRegistration(cmd); err != nil {
		return nil, err
	}

	existing, err := s.repo.GetByEmail(ctx, cmd.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to check existing user: %w", err)
	}
	if existing != nil {
		return nil, ErrUserAlreadyExists
	}

	hash, err := auth.HashPassword(cmd.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	now := time.Now()
	user := &User{
		ID:           uuid.New(),
		Name:         cmd.Name,
		Email:        cmd.Email,
		PasswordHash: hash,
		Role:         cmd.Role,
		Phone:        cmd.Phone,
		Address:      cmd.Address,
		ProfileImage: cmd.ProfileImage,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if user.Address.Country == "" {
		user.Address.Country = "India"
	}

	// Only the detail block matching the role is stored.
	switch cmd.Role {
	case RoleFarmer:
		user.FarmerDetails = cmd.FarmerDetails
	case RoleBuyer:
		user.BuyerDetails = cmd.BuyerDetails
	case RoleTransporter:
		user.TransporterDetails = cmd.TransporterDetails
	}

	tx, err := s.txManager.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := s.repo.CreateUser(ctx, tx, user); err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return user, nil
}

// Login verifies credentials and stamps the last login time.
func (s *Service) Login(ctx context.Context, email, password string) (*User, error) {
	user, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}
	if user == nil {
		return nil, ErrInvalidCredentials
	}
	if !user.Active {
		return nil, ErrAccountDeactivated
	}

	ok, err := auth.VerifyPassword(user.PasswordHash, password)
	if err != nil {
		return nil, fmt.Errorf("failed to verify password: %w", err)
	}
	if !ok {
		return nil, ErrInvalidCredentials
	}

	now := time.Now()
	user.LastLogin = &now
	user.UpdatedAt = now
	if err := s.repo.Update(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to record login: %w", err)
	}

	return user, nil
}

// GetProfile returns the authenticated user's own record.
func (s *Service) GetProfile(ctx context.Context, userID uuid.UUID) (*User, error) {
	user, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	return user, nil
}

// UpdateProfile mutates the profile fields present in the command.
func (s *Service) UpdateProfile(ctx context.Context, cmd UpdateProfileCommand) (*User, error) {
	user, err := s.GetProfile(ctx, cmd.UserID)
	if err != nil {
		return nil, err
	}

	var verr validate.Error
	if cmd.Name != "" {
		if len(cmd.Name) < 2 || len(cmd.Name) > 50 {
			verr.Addf("name must be between 2 and 50 characters")
		} else {
			user.Name = cmd.Name
		}
	}
	if cmd.Phone != "" {
		if !phoneRe.MatchString(cmd.Phone) {
			verr.Addf("phone must be a valid 10-digit number")
		} else {
			user.Phone = cmd.Phone
		}
	}
	if cmd.Address != nil {
		if !pincodeRe.MatchString(cmd.Address.Pincode) {
			verr.Addf("pincode must be a valid 6-digit code")
		} else {
			if cmd.Address.Country == "" {
				cmd.Address.Country = user.Address.Country
			}
			user.Address = *cmd.Address
		}
	}
	if err := verr.Err(); err != nil {
		return nil, err
	}

	// Detail blocks only apply to the matching role; others are ignored.
	switch user.Role {
	case RoleFarmer:
		if cmd.FarmerDetails != nil {
			user.FarmerDetails = cmd.FarmerDetails
		}
	case RoleBuyer:
		if cmd.BuyerDetails != nil {
			user.BuyerDetails = cmd.BuyerDetails
		}
	case RoleTransporter:
		if cmd.TransporterDetails != nil {
			user.TransporterDetails = cmd.TransporterDetails
		}
	}
	if cmd.ProfileImage != nil {
		user.ProfileImage = cmd.ProfileImage
	}

	user.UpdatedAt = time.Now()
	if err := s.repo.Update(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to update user: %w", err)
	}

	return user, nil
}

// ChangePassword verifies the current password before setting a new one.
func (s *Service) ChangePassword(ctx context.Context, userID uuid.UUID, current, next string) error {
	user, err := s.GetProfile(ctx, userID)
	if err != nil {
		return err
	}

	ok, err := auth.VerifyPassword(user.PasswordHash, current)
	if err != nil {
		return fmt.Errorf("failed to verify password: %w", err)
	}
	if !ok {
		return ErrWrongPassword
	}

	if len(next) < 6 {
		verr := validate.Error{}
		verr.Addf("password must be at least 6 characters")
		return &verr
	}

	hash, err := auth.HashPassword(next)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	user.PasswordHash = hash
	user.UpdatedAt = time.Now()
	if err := s.repo.Update(ctx, user); err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	return nil
}

// GetPublic returns another user's public projection.
func (s *Service) GetPublic(ctx context.Context, id uuid.UUID) (*PublicProfile, error) {
	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if user == nil || !user.Active {
		return nil, ErrUserNotFound
	}
	p := user.Public()
	return &p, nil
}

// List returns active users matching the filter.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]*User, int64, error) {
	if filter.Limit <= 0 {
		filter.Limit = 10
	}
	return s.repo.List(ctx, filter)
}

// Deactivate soft-deletes an account.
func (s *Service) Deactivate(ctx context.Context, userID uuid.UUID) error {
	user, err := s.GetProfile(ctx, userID)
	if err != nil {
		return err
	}
	user.Active = false
	user.UpdatedAt = time.Now()
	if err := s.repo.Update(ctx, user); err != nil {
		return fmt.Errorf("failed to deactivate user: %w", err)
	}
	return nil
}

func validateRegistration(cmd RegisterCommand) error {
	var verr validate.Error
	if len(cmd.Name) < 2 || len(cmd.Name) > 50 {
		verr.Addf("name must be between 2 and 50 characters")
	}
	if !emailRe.MatchString(cmd.Email) {
		verr.Addf("email must be a valid address")
	}
	if len(cmd.Password) < 6 {
		verr.Addf("password must be at least 6 characters")
	}
	if !cmd.Role.Valid() {
		verr.Addf("role must be one of farmer, buyer, transporter")
	}
	if !phoneRe.MatchString(cmd.Phone) {
		verr.Addf("phone must be a valid 10-digit number")
	}
	if cmd.Address.City == "" {
		verr.Addf("city is required")
	}
	if cmd.Address.State == "" {
		verr.Addf("state is required")
	}
	if !pincodeRe.MatchString(cmd.Address.Pincode) {
		verr.Addf("pincode must be a valid 6-digit code")
	}
	return verr.Err()
}
