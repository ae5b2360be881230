// internal/domain/models/catalog.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ServiceType is a visa or passport category a brand sells.
type ServiceType struct {
	ID                primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	BrandID           primitive.ObjectID `bson:"brand_id" json:"-"`
	Name              string             `bson:"name" json:"name"`
	Slug              string             `bson:"slug" json:"slug"`
	Kind              string             `bson:"kind" json:"kind"` // visa, passport
	Description       string             `bson:"description,omitempty" json:"description,omitempty"`
	RequiredDocuments []string           `bson:"required_documents" json:"required_documents"`
	IsActive          bool               `bson:"is_active" json:"is_active"`
	SortOrder         int                `bson:"sort_order" json:"sort_order"`
	CreatedAt         time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt         time.Time          `bson:"updated_at" json:"updated_at"`
}

// Service type kinds
const (
	KindVisa     = "visa"
	KindPassport = "passport"
)

// IsValidKind checks a service type kind.
func IsValidKind(k string) bool {
	return k == KindVisa || k == KindPassport
}

// ServiceLevel is a processing speed tier.
type ServiceLevel struct {
	ID             primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	BrandID        primitive.ObjectID `bson:"brand_id" json:"-"`
	Name           string             `bson:"name" json:"name"`
	Slug           string             `bson:"slug" json:"slug"`
	ProcessingDays int                `bson:"processing_days" json:"processing_days"`
	IsActive       bool               `bson:"is_active" json:"is_active"`
	SortOrder      int                `bson:"sort_order" json:"sort_order"`
	CreatedAt      time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt      time.Time          `bson:"updated_at" json:"updated_at"`
}
