// internal/domain/models/address.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Address is a client's shipping/return address for passports and documents.
// At most one address per user has IsDefault set.
type Address struct {
	ID         primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	BrandID    primitive.ObjectID `bson:"brand_id" json:"-"`
	UserID     primitive.ObjectID `bson:"user_id" json:"-"`
	Label      string             `bson:"label" json:"label"`
	Recipient  string             `bson:"recipient" json:"recipient"`
	Line1      string             `bson:"line1" json:"line1"`
	Line2      string             `bson:"line2,omitempty" json:"line2,omitempty"`
	City       string             `bson:"city" json:"city"`
	Region     string             `bson:"region,omitempty" json:"region,omitempty"`
	PostalCode string             `bson:"postal_code" json:"postal_code"`
	Country    string             `bson:"country" json:"country"`
	Phone      string             `bson:"phone,omitempty" json:"phone,omitempty"`
	IsDefault  bool               `bson:"is_default" json:"is_default"`
	CreatedAt  time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt  time.Time          `bson:"updated_at" json:"updated_at"`
}
