// internal/domain/models/user.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// User is anyone who can sign in: brand staff, clients, and superadmins.
//
// BrandID is nil only for superadmins, who operate across brands.
// EmailCI is the folded email used for uniqueness and lookups.
type User struct {
	ID         primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	BrandID    *primitive.ObjectID `bson:"brand_id,omitempty" json:"brand_id,omitempty"`
	FullName   string              `bson:"full_name" json:"full_name"`
	FullNameCI string              `bson:"full_name_ci" json:"-"`
	Email      string              `bson:"email" json:"email"`
	EmailCI    string              `bson:"email_ci" json:"-"`
	Phone      string              `bson:"phone,omitempty" json:"phone,omitempty"`

	// Authentication
	AuthMethod   string  `bson:"auth_method" json:"auth_method"` // password, sso
	PasswordHash *string `bson:"password_hash,omitempty" json:"-"`
	SSOProvider  string  `bson:"sso_provider,omitempty" json:"sso_provider,omitempty"`
	SSOSubject   string  `bson:"sso_subject,omitempty" json:"-"`

	Role   string `bson:"role" json:"role"`
	Status string `bson:"status" json:"status"` // active, disabled

	LastLoginAt *time.Time `bson:"last_login_at,omitempty" json:"last_login_at,omitempty"`
	CreatedAt   time.Time  `bson:"created_at" json:"created_at"`
	UpdatedAt   time.Time  `bson:"updated_at" json:"updated_at"`
}

// User roles
const (
	RoleSuperAdmin = "superadmin"
	RoleAdmin      = "admin"
	RoleManager    = "manager"
	RoleAgent      = "agent"
	RoleClient     = "client"
)

// Auth methods
const (
	AuthPassword = "password"
	AuthSSO      = "sso"
)

// RoleInfo describes a role for the admin roles listing.
type RoleInfo struct {
	Role         string   `json:"role"`
	Label        string   `json:"label"`
	Capabilities []string `json:"capabilities"`
}

// Roles lists every role with what it may do, most privileged first.
var Roles = []RoleInfo{
	{Role: RoleSuperAdmin, Label: "Super Admin", Capabilities: []string{"brands", "countries", "all brand capabilities"}},
	{Role: RoleAdmin, Label: "Admin", Capabilities: []string{"staff", "catalog", "content", "load balancer", "cases", "loas", "reports", "audit"}},
	{Role: RoleManager, Label: "Manager", Capabilities: []string{"catalog", "content", "load balancer", "cases", "loas", "reports"}},
	{Role: RoleAgent, Label: "Agent", Capabilities: []string{"assigned cases", "loas", "messages"}},
	{Role: RoleClient, Label: "Client", Capabilities: []string{"applications", "documents", "messages", "account"}},
}

// StaffRoles are the roles a brand admin may grant.
func StaffRoles() []string {
	return []string{RoleAdmin, RoleManager, RoleAgent}
}

// IsValidRole checks if a role is valid.
func IsValidRole(role string) bool {
	for _, r := range Roles {
		if r.Role == role {
			return true
		}
	}
	return false
}

// IsStaffRole reports whether the role belongs to brand staff or a superadmin.
func IsStaffRole(role string) bool {
	switch role {
	case RoleSuperAdmin, RoleAdmin, RoleManager, RoleAgent:
		return true
	}
	return false
}

// IsProcessorRole reports whether users with this role can be assigned cases.
func IsProcessorRole(role string) bool {
	switch role {
	case RoleAdmin, RoleManager, RoleAgent:
		return true
	}
	return false
}

// InBrand reports whether the user belongs to the given brand.
// Superadmins belong to every brand.
func (u User) InBrand(brandID primitive.ObjectID) bool {
	if u.Role == RoleSuperAdmin {
		return true
	}
	return u.BrandID != nil && *u.BrandID == brandID
}
