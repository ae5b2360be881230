// internal/app/store/pairs/store.go
package pairstore

import (
	"context"
	"errors"
	"time"

	"github.com/dalemusser/visadesk/internal/domain/models"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var (
	// ErrNotFound is returned when the pair is missing or in another brand.
	ErrNotFound = errors.New("country pair not found")
	// ErrDuplicate is returned when the brand already has the (from, to) pair.
	ErrDuplicate = errors.New("this country pair already exists")
	// ErrSameCountry is returned when from and to are equal.
	ErrSameCountry = errors.New("from and to must be different countries")
	// ErrDuplicateOffering is returned when two offerings share a type and level.
	ErrDuplicateOffering = errors.New("each service type and level may be offered once per pair")
)

type Store struct {
	c *mongo.Collection
}

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("country_pairs")}
}

// Filter narrows a pair listing. Empty codes and a nil Active are ignored.
type Filter struct {
	From   string
	To     string
	Active *bool
}

func (f Filter) bson(brandID primitive.ObjectID) bson.M {
	m := bson.M{"brand_id": brandID}
	if f.From != "" {
		m["from_code"] = f.From
	}
	if f.To != "" {
		m["to_code"] = f.To
	}
	if f.Active != nil {
		m["is_active"] = *f.Active
	}
	return m
}

// List returns the brand's pairs ordered by from, then to.
func (s *Store) List(ctx context.Context, brandID primitive.ObjectID, f Filter) ([]models.CountryPair, error) {
	opts := options.Find().SetSort(bson.D{{Key: "from_code", Value: 1}, {Key: "to_code", Value: 1}})
	cur, err := s.c.Find(ctx, f.bson(brandID), opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	out := []models.CountryPair{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Get loads a pair of the brand.
func (s *Store) Get(ctx context.Context, brandID, id primitive.ObjectID) (models.CountryPair, error) {
	return s.one(ctx, bson.M{"_id": id, "brand_id": brandID})
}

// Find loads the brand's pair for (from, to).
func (s *Store) Find(ctx context.Context, brandID primitive.ObjectID, from, to string) (models.CountryPair, error) {
	return s.one(ctx, bson.M{"brand_id": brandID, "from_code": from, "to_code": to})
}

func (s *Store) one(ctx context.Context, filter bson.M) (models.CountryPair, error) {
	var p models.CountryPair
	err := s.c.FindOne(ctx, filter).Decode(&p)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.CountryPair{}, ErrNotFound
	}
	return p, err
}

// CheckOfferings rejects repeated (type, level) combinations.
func CheckOfferings(offerings []models.Offering) error {
	type key struct{ t, l primitive.ObjectID }
	seen := make(map[key]bool, len(offerings))
	for _, o := range offerings {
		k := key{o.ServiceTypeID, o.ServiceLevelID}
		if seen[k] {
			return ErrDuplicateOffering
		}
		seen[k] = true
	}
	return nil
}

// Create inserts a pair.
func (s *Store) Create(ctx context.Context, p models.CountryPair) (models.CountryPair, error) {
	if p.FromCode == p.ToCode {
		return models.CountryPair{}, ErrSameCountry
	}
	if err := CheckOfferings(p.Offerings); err != nil {
		return models.CountryPair{}, err
	}
	now := time.Now().UTC()
	p.ID = primitive.NewObjectID()
	if p.Offerings == nil {
		p.Offerings = []models.Offering{}
	}
	p.CreatedAt = now
	p.UpdatedAt = now
	if _, err := s.c.InsertOne(ctx, p); err != nil {
		if wafflemongo.IsDup(err) {
			return models.CountryPair{}, ErrDuplicate
		}
		return models.CountryPair{}, err
	}
	return p, nil
}

func (s *Store) set(ctx context.Context, brandID, id primitive.ObjectID, set bson.M) (models.CountryPair, error) {
	set["updated_at"] = time.Now().UTC()
	var p models.CountryPair
	err := s.c.FindOneAndUpdate(ctx, bson.M{"_id": id, "brand_id": brandID}, bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&p)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.CountryPair{}, ErrNotFound
	}
	return p, err
}

// Update changes the active flag and/or notes.
func (s *Store) Update(ctx context.Context, brandID, id primitive.ObjectID, active *bool, notes *string) (models.CountryPair, error) {
	set := bson.M{}
	if active != nil {
		set["is_active"] = *active
	}
	if notes != nil {
		set["notes"] = *notes
	}
	return s.set(ctx, brandID, id, set)
}

// SetOfferings replaces the pair's offerings. References to service
// types and levels are checked by the caller.
func (s *Store) SetOfferings(ctx context.Context, brandID, id primitive.ObjectID, offerings []models.Offering) (models.CountryPair, error) {
	if err := CheckOfferings(offerings); err != nil {
		return models.CountryPair{}, err
	}
	if offerings == nil {
		offerings = []models.Offering{}
	}
	return s.set(ctx, brandID, id, bson.M{"offerings": offerings})
}

// Delete removes a pair. Cases keep their own copy of the codes and quote.
func (s *Store) Delete(ctx context.Context, brandID, id primitive.ObjectID) error {
	res, err := s.c.DeleteOne(ctx, bson.M{"_id": id, "brand_id": brandID})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// ActiveFrom returns the brand's active pairs leaving from.
func (s *Store) ActiveFrom(ctx context.Context, brandID primitive.ObjectID, from string) ([]models.CountryPair, error) {
	active := true
	return s.List(ctx, brandID, Filter{From: from, Active: &active})
}
