// internal/domain/models/notification.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Notification is an in-app notice for one user.
type Notification struct {
	ID        primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	BrandID   primitive.ObjectID  `bson:"brand_id" json:"-"`
	UserID    primitive.ObjectID  `bson:"user_id" json:"-"`
	Kind      string              `bson:"kind" json:"kind"`
	Title     string              `bson:"title" json:"title"`
	Body      string              `bson:"body,omitempty" json:"body,omitempty"`
	CaseID    *primitive.ObjectID `bson:"case_id,omitempty" json:"case_id,omitempty"`
	ReadAt    *time.Time          `bson:"read_at,omitempty" json:"read_at,omitempty"`
	CreatedAt time.Time           `bson:"created_at" json:"created_at"`
}

// Notification kinds
const (
	NotifyCaseStatus   = "case_status"
	NotifyCaseMessage  = "case_message"
	NotifyCaseAssigned = "case_assigned"
	NotifyLOAUploaded  = "loa_uploaded"
)
