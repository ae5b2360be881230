// internal/domain/models/brand.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Brand is a tenant: one marketing site with its own staff, clients,
// catalog and cases.
type Brand struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Slug         string             `bson:"slug" json:"slug"`
	Name         string             `bson:"name" json:"name"`
	NameCI       string             `bson:"name_ci" json:"-"`
	Domains      []string           `bson:"domains" json:"domains"`
	Status       string             `bson:"status" json:"status"`             // active, disabled
	CasePrefix   string             `bson:"case_prefix" json:"case_prefix"`   // e.g. "VD"
	SupportEmail string             `bson:"support_email" json:"support_email"`
	Currency     string             `bson:"currency" json:"currency"` // ISO 4217

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// DefaultCurrency is used when a brand does not set one.
const DefaultCurrency = "USD"

// PublicBrand is the subset of Brand exposed to anonymous callers.
type PublicBrand struct {
	Slug         string `json:"slug"`
	Name         string `json:"name"`
	SupportEmail string `json:"support_email"`
	Currency     string `json:"currency"`
}

// Public returns the anonymous view of the brand.
func (b Brand) Public() PublicBrand {
	return PublicBrand{
		Slug:         b.Slug,
		Name:         b.Name,
		SupportEmail: b.SupportEmail,
		Currency:     b.CurrencyOrDefault(),
	}
}

// CurrencyOrDefault returns the brand currency, falling back to USD.
func (b Brand) CurrencyOrDefault() string {
	if b.Currency == "" {
		return DefaultCurrency
	}
	return b.Currency
}
