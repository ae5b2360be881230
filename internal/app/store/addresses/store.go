// internal/app/store/addresses/store.go
package addressstore

import (
	"context"
	"errors"
	"time"

	"github.com/dalemusser/visadesk/internal/app/system/txn"
	"github.com/dalemusser/visadesk/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// ErrNotFound is returned when the address does not exist or belongs to
// another user.
var ErrNotFound = errors.New("address not found")

// Store keeps client addresses. At most one address per user is the
// default; every write that touches is_default runs in a transaction.
type Store struct {
	db  *mongo.Database
	c   *mongo.Collection
	log *zap.Logger
}

func New(db *mongo.Database, log *zap.Logger) *Store {
	return &Store{db: db, c: db.Collection("addresses"), log: log}
}

var newestFirst = bson.D{{Key: "is_default", Value: -1}, {Key: "updated_at", Value: -1}, {Key: "_id", Value: -1}}

// List returns the user's addresses, default first.
func (s *Store) List(ctx context.Context, userID primitive.ObjectID) ([]models.Address, error) {
	cur, err := s.c.Find(ctx, bson.M{"user_id": userID}, options.Find().SetSort(newestFirst))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	out := []models.Address{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Get loads one of the user's addresses.
func (s *Store) Get(ctx context.Context, userID, id primitive.ObjectID) (models.Address, error) {
	var a models.Address
	err := s.c.FindOne(ctx, bson.M{"_id": id, "user_id": userID}).Decode(&a)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.Address{}, ErrNotFound
	}
	return a, err
}

// Default returns the user's default address, if any.
func (s *Store) Default(ctx context.Context, userID primitive.ObjectID) (*models.Address, error) {
	var a models.Address
	err := s.c.FindOne(ctx, bson.M{"user_id": userID, "is_default": true}).Decode(&a)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *Store) clearDefault(ctx context.Context, userID, except primitive.ObjectID) error {
	_, err := s.c.UpdateMany(ctx,
		bson.M{"user_id": userID, "is_default": true, "_id": bson.M{"$ne": except}},
		bson.M{"$set": bson.M{"is_default": false}},
	)
	return err
}

// Create inserts an address. The user's first address becomes the
// default; asking for IsDefault clears the previous default.
func (s *Store) Create(ctx context.Context, a models.Address) (models.Address, error) {
	now := time.Now().UTC()
	a.ID = primitive.NewObjectID()
	a.CreatedAt = now
	a.UpdatedAt = now

	err := txn.Run(ctx, s.db, s.log, func(ctx context.Context) error {
		n, err := s.c.CountDocuments(ctx, bson.M{"user_id": a.UserID})
		if err != nil {
			return err
		}
		if n == 0 {
			a.IsDefault = true
		}
		if a.IsDefault {
			if err := s.clearDefault(ctx, a.UserID, a.ID); err != nil {
				return err
			}
		}
		_, err = s.c.InsertOne(ctx, a)
		return err
	})
	if err != nil {
		return models.Address{}, err
	}
	return a, nil
}

// Update holds the optional fields of an address update.
type Update struct {
	Label      *string
	Recipient  *string
	Line1      *string
	Line2      *string
	City       *string
	Region     *string
	PostalCode *string
	Country    *string
	Phone      *string
}

func (u Update) set() bson.M {
	set := bson.M{}
	add := func(k string, v *string) {
		if v != nil {
			set[k] = *v
		}
	}
	add("label", u.Label)
	add("recipient", u.Recipient)
	add("line1", u.Line1)
	add("line2", u.Line2)
	add("city", u.City)
	add("region", u.Region)
	add("postal_code", u.PostalCode)
	add("country", u.Country)
	add("phone", u.Phone)
	return set
}

// Update changes address fields and returns the result.
func (s *Store) Update(ctx context.Context, userID, id primitive.ObjectID, upd Update) (models.Address, error) {
	set := upd.set()
	set["updated_at"] = time.Now().UTC()
	var a models.Address
	err := s.c.FindOneAndUpdate(ctx,
		bson.M{"_id": id, "user_id": userID},
		bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&a)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.Address{}, ErrNotFound
	}
	return a, err
}

// SetDefault makes id the user's only default address.
func (s *Store) SetDefault(ctx context.Context, userID, id primitive.ObjectID) error {
	return txn.Run(ctx, s.db, s.log, func(ctx context.Context) error {
		res, err := s.c.UpdateOne(ctx,
			bson.M{"_id": id, "user_id": userID},
			bson.M{"$set": bson.M{"is_default": true, "updated_at": time.Now().UTC()}},
		)
		if err != nil {
			return err
		}
		if res.MatchedCount == 0 {
			return ErrNotFound
		}
		return s.clearDefault(ctx, userID, id)
	})
}

// Delete removes an address. Deleting the default promotes the most
// recently updated remaining address.
func (s *Store) Delete(ctx context.Context, userID, id primitive.ObjectID) error {
	return txn.Run(ctx, s.db, s.log, func(ctx context.Context) error {
		var gone models.Address
		err := s.c.FindOneAndDelete(ctx, bson.M{"_id": id, "user_id": userID}).Decode(&gone)
		if errors.Is(err, mongo.ErrNoDocuments) {
			return ErrNotFound
		}
		if err != nil || !gone.IsDefault {
			return err
		}

		var next models.Address
		err = s.c.FindOne(ctx, bson.M{"user_id": userID},
			options.FindOne().SetSort(bson.D{{Key: "updated_at", Value: -1}, {Key: "_id", Value: -1}}),
		).Decode(&next)
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil
		}
		if err != nil {
			return err
		}
		_, err = s.c.UpdateOne(ctx, bson.M{"_id": next.ID}, bson.M{"$set": bson.M{"is_default": true}})
		return err
	})
}
