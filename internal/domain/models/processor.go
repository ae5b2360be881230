// internal/domain/models/processor.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ProcessorWeight is one load balancer entry: the share of new cases a
// processor receives, in percent, and how many it has received since the
// weights were last saved.
type ProcessorWeight struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"-"`
	BrandID     primitive.ObjectID `bson:"brand_id" json:"-"`
	ProcessorID primitive.ObjectID `bson:"processor_id" json:"processor_id"`
	Weight      int                `bson:"weight" json:"weight"`
	Assigned    int64              `bson:"assigned" json:"assigned"`
	UpdatedAt   time.Time          `bson:"updated_at" json:"updated_at"`
}
