// internal/domain/models/loa.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// LOA is a Letter of Authorization: a PDF kept in object storage with
// its metadata here.
type LOA struct {
	ID          primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	BrandID     primitive.ObjectID  `bson:"brand_id" json:"-"`
	CaseID      *primitive.ObjectID `bson:"case_id,omitempty" json:"case_id,omitempty"`
	Name        string              `bson:"name" json:"name"`
	NameCI      string              `bson:"name_ci" json:"-"`
	Description string              `bson:"description,omitempty" json:"description,omitempty"`
	StoragePath string              `bson:"storage_path" json:"-"`
	URL         string              `bson:"url" json:"url"`
	ContentType string              `bson:"content_type" json:"content_type"`
	Size        int64               `bson:"size" json:"size"`
	UploadedBy  primitive.ObjectID  `bson:"uploaded_by" json:"uploaded_by"`
	CreatedAt   time.Time           `bson:"created_at" json:"created_at"`
	UpdatedAt   time.Time           `bson:"updated_at" json:"updated_at"`
}
