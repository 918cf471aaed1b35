package models

import (
	"time"

	"golang.org/x/crypto/bcrypt"
)

// User represents an account, identified by email instead of a username.
type User struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	Email       string    `gorm:"uniqueIndex;size:255;not null" json:"email"`
	Name        string    `gorm:"size:255" json:"name"`
	Password    string    `gorm:"size:255;not null" json:"-"` // Hashed, never exposed in JSON
	IsActive    bool      `gorm:"not null;default:true" json:"is_active"`
	IsStaff     bool      `gorm:"not null;default:false" json:"is_staff"`
	IsSuperuser bool      `gorm:"not null;default:false" json:"is_superuser"`
}

// MaxPasswordBytes is the longest password bcrypt accepts.
const MaxPasswordBytes = 72

// SetPassword hashes raw and stores the hash on the user.
func (u *User) SetPassword(raw string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(raw), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.Password = string(hash)
	return nil
}

// CheckPassword reports whether raw matches the stored hash.
func (u *User) CheckPassword(raw string) bool {
	if u.Password == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(raw)) == nil
}
