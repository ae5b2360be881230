// internal/app/store/cases/counter.go
package casestore

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const caseCounter = "case"

// FormatNumber renders a case number such as "VD-000042".
func FormatNumber(prefix string, seq int64) string {
	return fmt.Sprintf("%s-%06d", prefix, seq)
}

// NextNumber issues the brand's next case number. The counter document
// is created on first use.
func (s *Store) NextNumber(ctx context.Context, brandID primitive.ObjectID, prefix string) (string, error) {
	var doc struct {
		Seq int64 `bson:"seq"`
	}
	err := s.counters.FindOneAndUpdate(ctx,
		bson.M{"brand_id": brandID, "name": caseCounter},
		bson.M{
			"$inc": bson.M{"seq": int64(1)},
			"$set": bson.M{"updated_at": time.Now().UTC()},
		},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&doc)
	if err != nil {
		return "", err
	}
	return FormatNumber(prefix, doc.Seq), nil
}
