// internal/domain/models/status.go
package models

// Record status values shared by users and brands.
const (
	StatusActive   = "active"
	StatusDisabled = "disabled"
)

// IsValidStatus returns true if s is a recognized record status.
func IsValidStatus(s string) bool {
	return s == StatusActive || s == StatusDisabled
}
