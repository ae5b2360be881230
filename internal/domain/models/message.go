// internal/domain/models/message.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Message is one line of a case chat between the client and staff.
type Message struct {
	ID         primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	BrandID    primitive.ObjectID `bson:"brand_id" json:"-"`
	CaseID     primitive.ObjectID `bson:"case_id" json:"case_id"`
	SenderID   primitive.ObjectID `bson:"sender_id" json:"sender_id"`
	SenderRole string             `bson:"sender_role" json:"sender_role"` // client, staff
	SenderName string             `bson:"sender_name" json:"sender_name"`
	Body       string             `bson:"body" json:"body"`
	CreatedAt  time.Time          `bson:"created_at" json:"created_at"`
}

// Chat sides
const (
	SideClient = "client"
	SideStaff  = "staff"
)

// MaxMessageLength bounds a chat message body, in runes.
const MaxMessageLength = 4000
