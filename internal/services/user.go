package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/diewo77/go-recipes/internal/models"
	"gorm.io/gorm"
)

// UserService manages accounts and credential checks.
type UserService struct {
	DB *gorm.DB
	// OnChange, when set, runs after a user row is updated so cached
	// verifier answers for that user are dropped.
	OnChange func(ctx context.Context, uid uint)
}

func NewUserService(db *gorm.DB) *UserService { return &UserService{DB: db} }

// NormalizeEmail trims the address and lower-cases the domain part.
func NormalizeEmail(email string) string {
	email = strings.TrimSpace(email)
	at := strings.LastIndex(email, "@")
	if at < 0 {
		return email
	}
	return email[:at] + "@" + strings.ToLower(email[at+1:])
}

type CreateUserInput struct {
	Email    string
	Password string
	Name     string
}

// CreateUser stores a regular user with a hashed password.
func (s *UserService) CreateUser(ctx context.Context, in CreateUserInput) (*models.User, error) {
	return s.create(ctx, in, false)
}

// CreateSuperuser stores a user with staff and superuser rights.
func (s *UserService) CreateSuperuser(ctx context.Context, email, password string) (*models.User, error) {
	return s.create(ctx, CreateUserInput{Email: email, Password: password}, true)
}

func (s *UserService) create(ctx context.Context, in CreateUserInput, super bool) (*models.User, error) {
	email := NormalizeEmail(in.Email)
	if email == "" {
		return nil, errors.New("users must have an email address")
	}
	taken, err := s.emailTaken(ctx, email, 0)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, ErrEmailTaken
	}
	u := &models.User{Email: email, Name: in.Name, IsActive: true, IsStaff: super, IsSuperuser: super}
	if err := u.SetPassword(in.Password); err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	if err := s.DB.WithContext(ctx).Create(u).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	return u, nil
}

func (s *UserService) emailTaken(ctx context.Context, email string, exceptID uint) (bool, error) {
	var count int64
	q := s.DB.WithContext(ctx).Model(&models.User{}).Where("email = ?", email)
	if exceptID != 0 {
		q = q.Where("id <> ?", exceptID)
	}
	if err := q.Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// Authenticate returns the active user matching the credentials.
func (s *UserService) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	var u models.User
	err := s.DB.WithContext(ctx).Where("email = ?", NormalizeEmail(email)).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if !u.IsActive || !u.CheckPassword(password) {
		return nil, ErrInvalidCredentials
	}
	return &u, nil
}

// Get loads a user by id.
func (s *UserService) Get(ctx context.Context, id uint) (*models.User, error) {
	var u models.User
	err := s.DB.WithContext(ctx).First(&u, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// IsActive reports whether id names an existing active user.
func (s *UserService) IsActive(ctx context.Context, id uint) (bool, error) {
	var count int64
	err := s.DB.WithContext(ctx).Model(&models.User{}).
		Where("id = ? AND is_active = ?", id, true).
		Count(&count).Error
	return count > 0, err
}

// UpdateUserInput carries optional changes; nil fields are left untouched.
type UpdateUserInput struct {
	Email    *string
	Password *string
	Name     *string
}

// Update applies in to the user with the given id.
func (s *UserService) Update(ctx context.Context, id uint, in UpdateUserInput) (*models.User, error) {
	u, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if in.Email != nil {
		email := NormalizeEmail(*in.Email)
		taken, err := s.emailTaken(ctx, email, id)
		if err != nil {
			return nil, err
		}
		if taken {
			return nil, ErrEmailTaken
		}
		u.Email = email
	}
	if in.Name != nil {
		u.Name = *in.Name
	}
	if in.Password != nil {
		if err := u.SetPassword(*in.Password); err != nil {
			return nil, fmt.Errorf("hash password: %w", err)
		}
	}
	if err := s.DB.WithContext(ctx).Save(u).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("update user: %w", err)
	}
	if s.OnChange != nil {
		s.OnChange(ctx, u.ID)
	}
	return u, nil
}
