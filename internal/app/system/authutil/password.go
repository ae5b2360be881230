// internal/app/system/authutil/password.go
package authutil

import (
	"errors"
	"strings"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// Password validation constants
const (
	MinPasswordLength = 8
	// bcrypt ignores input past 72 bytes.
	MaxPasswordLength = 72
	BcryptCost        = 12
)

// Password validation errors
var (
	ErrPasswordTooShort = errors.New("Password must be at least 8 characters.")
	ErrPasswordTooLong  = errors.New("Password must be at most 72 characters.")
	ErrPasswordCommon   = errors.New("This password is too common. Please choose a different one.")
)

var commonPasswords = map[string]bool{
	"12345678":    true,
	"123456789":   true,
	"1234567890":  true,
	"password":    true,
	"password1":   true,
	"password123": true,
	"qwertyuiop":  true,
	"qwerty123":   true,
	"iloveyou":    true,
	"11111111":    true,
	"00000000":    true,
	"sunshine":    true,
	"football":    true,
	"baseball":    true,
	"princess":    true,
	"superman":    true,
	"welcome1":    true,
	"letmein1":    true,
	"passport":    true,
	"visa1234":    true,
}

// PasswordRules describes the password rules for clients.
func PasswordRules() string {
	return "Password must be 8 to 72 characters and cannot be a common password like \"password\"."
}

// ValidatePassword checks a password against the rules.
func ValidatePassword(password string) error {
	if len(password) < MinPasswordLength {
		return ErrPasswordTooShort
	}
	if len(password) > MaxPasswordLength {
		return ErrPasswordTooLong
	}
	if commonPasswords[strings.ToLower(password)] {
		return ErrPasswordCommon
	}
	return nil
}

// HashPassword hashes a password using bcrypt.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), BcryptCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckPassword compares a plain-text password with a bcrypt hash.
func CheckPassword(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

var (
	dummyOnce sync.Once
	dummyHash []byte
)

// CheckPasswordMissingUser spends the same bcrypt time as a real check
// when no account matched, so login timing does not reveal which emails
// exist. It always returns false.
func CheckPasswordMissingUser(password string) bool {
	dummyOnce.Do(func() {
		dummyHash, _ = bcrypt.GenerateFromPassword([]byte("visadesk-missing-user"), BcryptCost)
	})
	_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
	return false
}
