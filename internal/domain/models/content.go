// internal/domain/models/content.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Content is one CMS page of a brand. Data is free-form: the marketing
// frontend owns its shape.
type Content struct {
	ID        primitive.ObjectID  `bson:"_id,omitempty" json:"-"`
	BrandID   primitive.ObjectID  `bson:"brand_id" json:"-"`
	Page      string              `bson:"page" json:"page"`
	Data      map[string]any      `bson:"data" json:"data"`
	Version   int64               `bson:"version" json:"version"`
	UpdatedBy *primitive.ObjectID `bson:"updated_by,omitempty" json:"updated_by,omitempty"`
	CreatedAt time.Time           `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time           `bson:"updated_at" json:"updated_at"`
}

// DefaultContentPage is the homepage slug.
const DefaultContentPage = "home"
