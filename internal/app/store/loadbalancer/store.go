// internal/app/store/loadbalancer/store.go
package lbstore

import (
	"context"
	"errors"
	"time"

	"github.com/dalemusser/visadesk/internal/app/system/weights"
	"github.com/dalemusser/visadesk/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// assignAttempts bounds the compare-and-increment loop in Assign.
const assignAttempts = 5

// Store keeps each brand's processor weights and assignment counters.
type Store struct {
	c     *mongo.Collection
	users *mongo.Collection
}

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("processor_weights"), users: db.Collection("users")}
}

// List returns the brand's weights, heaviest first.
func (s *Store) List(ctx context.Context, brandID primitive.ObjectID) ([]models.ProcessorWeight, error) {
	opts := options.Find().SetSort(bson.D{{Key: "weight", Value: -1}, {Key: "processor_id", Value: 1}})
	cur, err := s.c.Find(ctx, bson.M{"brand_id": brandID}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	out := []models.ProcessorWeight{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Replace swaps the brand's weight set in one ordered bulk write: listed
// processors are upserted with a zeroed counter and everyone else is
// removed. An empty set disables assignment. entries must already pass
// weights.Validate.
func (s *Store) Replace(ctx context.Context, brandID primitive.ObjectID, entries []weights.Entry) error {
	now := time.Now().UTC()
	keep := make([]primitive.ObjectID, 0, len(entries))
	writes := make([]mongo.WriteModel, 0, len(entries)+1)
	for _, e := range entries {
		keep = append(keep, e.ProcessorID)
		writes = append(writes, mongo.NewUpdateOneModel().
			SetFilter(bson.M{"brand_id": brandID, "processor_id": e.ProcessorID}).
			SetUpdate(bson.M{"$set": bson.M{
				"weight":     e.Weight,
				"assigned":   int64(0),
				"updated_at": now,
			}}).
			SetUpsert(true))
	}
	writes = append(writes, mongo.NewDeleteManyModel().
		SetFilter(bson.M{"brand_id": brandID, "processor_id": bson.M{"$nin": keep}}))

	_, err := s.c.BulkWrite(ctx, writes, options.BulkWrite().SetOrdered(true))
	return err
}

// Assign picks the next processor for the brand and bumps its counter.
// Only active staff of the brand are considered. ok is false when the
// brand has no usable weights.
//
// The increment only applies if the counter still holds the value the
// pick was based on; on a race the set is reloaded and picked again.
func (s *Store) Assign(ctx context.Context, brandID primitive.ObjectID) (primitive.ObjectID, bool, error) {
	for attempt := 0; attempt < assignAttempts; attempt++ {
		entries, err := s.eligible(ctx, brandID)
		if err != nil {
			return primitive.NilObjectID, false, err
		}
		if len(entries) == 0 {
			return primitive.NilObjectID, false, nil
		}
		i, err := weights.Pick(entries)
		if errors.Is(err, weights.ErrNoWinner) {
			return primitive.NilObjectID, false, nil
		}
		if err != nil {
			return primitive.NilObjectID, false, err
		}

		win := entries[i]
		res, err := s.c.UpdateOne(ctx,
			bson.M{"_id": win.ID, "assigned": win.Assigned},
			bson.M{"$inc": bson.M{"assigned": 1}},
		)
		if err != nil {
			return primitive.NilObjectID, false, err
		}
		if res.ModifiedCount == 1 {
			return win.ProcessorID, true, nil
		}
	}

	// Heavy contention: fall back to a plain increment on a fresh pick.
	entries, err := s.eligible(ctx, brandID)
	if err != nil || len(entries) == 0 {
		return primitive.NilObjectID, false, err
	}
	i, err := weights.Pick(entries)
	if err != nil {
		return primitive.NilObjectID, false, nil
	}
	if _, err := s.c.UpdateOne(ctx, bson.M{"_id": entries[i].ID}, bson.M{"$inc": bson.M{"assigned": 1}}); err != nil {
		return primitive.NilObjectID, false, err
	}
	return entries[i].ProcessorID, true, nil
}

// eligible lists the brand's weights whose processor is still an active
// agent, manager or admin of the brand.
func (s *Store) eligible(ctx context.Context, brandID primitive.ObjectID) ([]models.ProcessorWeight, error) {
	entries, err := s.List(ctx, brandID)
	if err != nil || len(entries) == 0 {
		return entries, err
	}
	ids := make([]primitive.ObjectID, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.ProcessorID)
	}
	cur, err := s.users.Find(ctx, bson.M{
		"_id":      bson.M{"$in": ids},
		"brand_id": brandID,
		"role":     bson.M{"$in": models.StaffRoles()},
		"status":   models.StatusActive,
	}, options.Find().SetProjection(bson.M{"_id": 1}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	active := make(map[primitive.ObjectID]struct{}, len(ids))
	for cur.Next(ctx) {
		var doc struct {
			ID primitive.ObjectID `bson:"_id"`
		}
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		active[doc.ID] = struct{}{}
	}
	if err := cur.Err(); err != nil {
		return nil, err
	}
	out := entries[:0]
	for _, e := range entries {
		if _, ok := active[e.ProcessorID]; ok {
			out = append(out, e)
		}
	}
	return out, nil
}

// HasWeight reports whether the processor is in the brand's weight set.
func (s *Store) HasWeight(ctx context.Context, brandID, processorID primitive.ObjectID) (bool, error) {
	n, err := s.c.CountDocuments(ctx, bson.M{"brand_id": brandID, "processor_id": processorID})
	return n > 0, err
}
