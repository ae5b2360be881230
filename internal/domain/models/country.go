// internal/domain/models/country.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Country is a global ISO 3166-1 alpha-2 country record.
type Country struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Code      string             `bson:"code" json:"code"` // uppercase ISO2
	Name      string             `bson:"name" json:"name"`
	NameCI    string             `bson:"name_ci" json:"-"`
	IsActive  bool               `bson:"is_active" json:"is_active"`
	CreatedAt time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time          `bson:"updated_at" json:"updated_at"`
}

// CountryAccess controls, per brand, whether clients may apply from
// (hold citizenship/residence in) or to (travel to) a country.
type CountryAccess struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"-"`
	BrandID      primitive.ObjectID `bson:"brand_id" json:"-"`
	Code         string             `bson:"code" json:"code"`
	CanApplyFrom bool               `bson:"can_apply_from" json:"can_apply_from"`
	CanApplyTo   bool               `bson:"can_apply_to" json:"can_apply_to"`
	UpdatedAt    time.Time          `bson:"updated_at" json:"updated_at"`
}

// Access sides used by public country listings.
const (
	SideFrom = "from"
	SideTo   = "to"
)
