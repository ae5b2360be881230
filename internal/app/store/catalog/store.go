// internal/app/store/catalog/store.go
package catalogstore

import (
	"context"
	"errors"
	"time"

	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var (
	// ErrNotFound is returned when the record is missing or in another brand.
	ErrNotFound = errors.New("catalog entry not found")
	// ErrDuplicateSlug is returned when the slug is taken in the brand.
	ErrDuplicateSlug = errors.New("an entry with this slug already exists")
)

// DeleteResult tells the caller what Delete did.
type DeleteResult string

const (
	// Deleted means the record was removed.
	Deleted DeleteResult = "deleted"
	// Deactivated means a country pair still offers it, so it was only
	// switched off.
	Deactivated DeleteResult = "deactivated"
)

// Store keeps a brand's service types and service levels. Both live in
// their own collection and share the same rules.
type Store struct {
	types  *mongo.Collection
	levels *mongo.Collection
	pairs  *mongo.Collection
}

func New(db *mongo.Database) *Store {
	return &Store{
		types:  db.Collection("service_types"),
		levels: db.Collection("service_levels"),
		pairs:  db.Collection("country_pairs"),
	}
}

var bySortOrder = options.Find().SetSort(bson.D{{Key: "sort_order", Value: 1}, {Key: "name", Value: 1}})

func list[T any](ctx context.Context, c *mongo.Collection, brandID primitive.ObjectID, activeOnly bool) ([]T, error) {
	filter := bson.M{"brand_id": brandID}
	if activeOnly {
		filter["is_active"] = true
	}
	cur, err := c.Find(ctx, filter, bySortOrder)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	out := []T{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func get[T any](ctx context.Context, c *mongo.Collection, brandID, id primitive.ObjectID) (T, error) {
	var v T
	err := c.FindOne(ctx, bson.M{"_id": id, "brand_id": brandID}).Decode(&v)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return v, ErrNotFound
	}
	return v, err
}

func insert(ctx context.Context, c *mongo.Collection, doc any) error {
	if _, err := c.InsertOne(ctx, doc); err != nil {
		if wafflemongo.IsDup(err) {
			return ErrDuplicateSlug
		}
		return err
	}
	return nil
}

func update[T any](ctx context.Context, c *mongo.Collection, brandID, id primitive.ObjectID, set bson.M) (T, error) {
	var v T
	set["updated_at"] = time.Now().UTC()
	err := c.FindOneAndUpdate(ctx, bson.M{"_id": id, "brand_id": brandID}, bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&v)
	switch {
	case errors.Is(err, mongo.ErrNoDocuments):
		return v, ErrNotFound
	case wafflemongo.IsDup(err):
		return v, ErrDuplicateSlug
	}
	return v, err
}

// remove hard-deletes the record unless a pair offering references it
// through field, in which case it is deactivated.
func (s *Store) remove(ctx context.Context, c *mongo.Collection, field string, brandID, id primitive.ObjectID) (DeleteResult, error) {
	n, err := s.pairs.CountDocuments(ctx, bson.M{"brand_id": brandID, "offerings." + field: id})
	if err != nil {
		return "", err
	}
	if n > 0 {
		res, err := c.UpdateOne(ctx, bson.M{"_id": id, "brand_id": brandID},
			bson.M{"$set": bson.M{"is_active": false, "updated_at": time.Now().UTC()}})
		if err != nil {
			return "", err
		}
		if res.MatchedCount == 0 {
			return "", ErrNotFound
		}
		return Deactivated, nil
	}
	res, err := c.DeleteOne(ctx, bson.M{"_id": id, "brand_id": brandID})
	if err != nil {
		return "", err
	}
	if res.DeletedCount == 0 {
		return "", ErrNotFound
	}
	return Deleted, nil
}

// existing returns which ids exist in the brand's collection, keyed by ID.
func existing[T any](ctx context.Context, c *mongo.Collection, brandID primitive.ObjectID, ids []primitive.ObjectID, idOf func(T) primitive.ObjectID) (map[primitive.ObjectID]T, error) {
	out := make(map[primitive.ObjectID]T, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	cur, err := c.Find(ctx, bson.M{"brand_id": brandID, "_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	for cur.Next(ctx) {
		var v T
		if err := cur.Decode(&v); err != nil {
			return nil, err
		}
		out[idOf(v)] = v
	}
	return out, cur.Err()
}

func count(ctx context.Context, c *mongo.Collection, brandID primitive.ObjectID) (int64, error) {
	return c.CountDocuments(ctx, bson.M{"brand_id": brandID})
}
