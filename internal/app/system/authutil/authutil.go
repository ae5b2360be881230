// internal/app/system/authutil/authutil.go
// Package authutil validates account fields and handles passwords.
package authutil

import (
	"net/mail"
	"strings"
	"unicode/utf8"
)

// Field limits for account input.
const (
	MaxNameLength  = 120
	MaxEmailLength = 254
	MaxPhoneLength = 20
)

// AccountInput is the normalized input for creating or editing a user.
type AccountInput struct {
	FullName string
	Email    string
	Phone    string
	Password string

	// RequirePassword is set for creation with password auth.
	RequirePassword bool
	// SkipEmail is set on edits that cannot change the email.
	SkipEmail bool
}

// ValidEmail reports whether s is a single bare address with a dotted domain.
func ValidEmail(s string) bool {
	if s == "" || len(s) > MaxEmailLength {
		return false
	}
	addr, err := mail.ParseAddress(s)
	if err != nil || addr.Address != s || addr.Name != "" {
		return false
	}
	at := strings.LastIndexByte(s, '@')
	domain := s[at+1:]
	dot := strings.LastIndexByte(domain, '.')
	return dot > 0 && dot < len(domain)-1
}

// Validate returns a field -> message map, empty when the input is valid.
func (in AccountInput) Validate() map[string]string {
	errs := map[string]string{}

	switch n := utf8.RuneCountInString(in.FullName); {
	case n == 0:
		errs["full_name"] = "Full name is required."
	case n > MaxNameLength:
		errs["full_name"] = "Full name is too long."
	}

	if !in.SkipEmail {
		if in.Email == "" {
			errs["email"] = "Email is required."
		} else if !ValidEmail(in.Email) {
			errs["email"] = "Please enter a valid email address."
		}
	}

	if len(in.Phone) > MaxPhoneLength {
		errs["phone"] = "Phone number is too long."
	}

	if in.Password != "" || in.RequirePassword {
		if err := ValidatePassword(in.Password); err != nil {
			errs["password"] = err.Error()
		}
	}
	return errs
}
