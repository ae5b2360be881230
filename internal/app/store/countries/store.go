// internal/app/store/countries/store.go
package countrystore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dalemusser/visadesk/internal/domain/models"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"github.com/dalemusser/waffle/pantry/text"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var (
	// ErrNotFound is returned when no country has the code.
	ErrNotFound = errors.New("country not found")
	// ErrDuplicate is returned when the code already exists.
	ErrDuplicate = errors.New("a country with this code already exists")
)

// UnknownCodesError lists codes that are not in the country table.
type UnknownCodesError struct {
	Codes []string
}

func (e *UnknownCodesError) Error() string {
	return fmt.Sprintf("unknown country codes: %s", strings.Join(e.Codes, ", "))
}

// Store keeps the global country list and each brand's access rules.
type Store struct {
	countries *mongo.Collection
	access    *mongo.Collection
}

func New(db *mongo.Database) *Store {
	return &Store{
		countries: db.Collection("countries"),
		access:    db.Collection("country_access"),
	}
}

// List returns countries sorted by name. activeOnly drops inactive ones.
func (s *Store) List(ctx context.Context, activeOnly bool) ([]models.Country, error) {
	filter := bson.M{}
	if activeOnly {
		filter["is_active"] = true
	}
	cur, err := s.countries.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "name_ci", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	out := []models.Country{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Get loads a country by code.
func (s *Store) Get(ctx context.Context, code string) (models.Country, error) {
	var c models.Country
	err := s.countries.FindOne(ctx, bson.M{"code": code}).Decode(&c)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.Country{}, ErrNotFound
	}
	return c, err
}

// Names maps codes to country names for the given codes.
func (s *Store) Names(ctx context.Context, codes []string) (map[string]string, error) {
	out := make(map[string]string, len(codes))
	if len(codes) == 0 {
		return out, nil
	}
	cur, err := s.countries.Find(ctx, bson.M{"code": bson.M{"$in": codes}},
		options.Find().SetProjection(bson.M{"code": 1, "name": 1}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	for cur.Next(ctx) {
		var c models.Country
		if err := cur.Decode(&c); err != nil {
			return nil, err
		}
		out[c.Code] = c.Name
	}
	return out, cur.Err()
}

// Create inserts a country. code must already be normalized.
func (s *Store) Create(ctx context.Context, code, name string, active bool) (models.Country, error) {
	now := time.Now().UTC()
	c := models.Country{
		ID:        primitive.NewObjectID(),
		Code:      code,
		Name:      name,
		NameCI:    text.Fold(name),
		IsActive:  active,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if _, err := s.countries.InsertOne(ctx, c); err != nil {
		if wafflemongo.IsDup(err) {
			return models.Country{}, ErrDuplicate
		}
		return models.Country{}, err
	}
	return c, nil
}

// Update changes a country's name and/or active flag.
func (s *Store) Update(ctx context.Context, code string, name *string, active *bool) (models.Country, error) {
	set := bson.M{"updated_at": time.Now().UTC()}
	if name != nil {
		set["name"] = *name
		set["name_ci"] = text.Fold(*name)
	}
	if active != nil {
		set["is_active"] = *active
	}
	var c models.Country
	err := s.countries.FindOneAndUpdate(ctx, bson.M{"code": code}, bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&c)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.Country{}, ErrNotFound
	}
	return c, err
}

// Seed inserts countries whose code is missing. Existing rows are left
// alone so admin edits survive restarts. It returns how many were added.
func (s *Store) Seed(ctx context.Context, list []models.Country) (int64, error) {
	if len(list) == 0 {
		return 0, nil
	}
	now := time.Now().UTC()
	writes := make([]mongo.WriteModel, 0, len(list))
	for _, c := range list {
		writes = append(writes, mongo.NewUpdateOneModel().
			SetFilter(bson.M{"code": c.Code}).
			SetUpdate(bson.M{"$setOnInsert": bson.M{
				"code":       c.Code,
				"name":       c.Name,
				"name_ci":    text.Fold(c.Name),
				"is_active":  true,
				"created_at": now,
				"updated_at": now,
			}}).
			SetUpsert(true))
	}
	res, err := s.countries.BulkWrite(ctx, writes, options.BulkWrite().SetOrdered(false))
	if err != nil {
		return 0, err
	}
	return res.UpsertedCount, nil
}

// Access returns the brand's access rows keyed by code.
func (s *Store) Access(ctx context.Context, brandID primitive.ObjectID) (map[string]models.CountryAccess, error) {
	cur, err := s.access.Find(ctx, bson.M{"brand_id": brandID})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	out := map[string]models.CountryAccess{}
	for cur.Next(ctx) {
		var a models.CountryAccess
		if err := cur.Decode(&a); err != nil {
			return nil, err
		}
		out[a.Code] = a
	}
	return out, cur.Err()
}

// SetAccess upserts the listed access rows in one unordered bulk write.
// Every code must exist in the country table; nothing is written otherwise.
func (s *Store) SetAccess(ctx context.Context, brandID primitive.ObjectID, rows []models.CountryAccess) error {
	if len(rows) == 0 {
		return nil
	}
	codes := make([]string, 0, len(rows))
	for _, r := range rows {
		codes = append(codes, r.Code)
	}
	known, err := s.Names(ctx, codes)
	if err != nil {
		return err
	}
	var unknown []string
	for _, c := range codes {
		if _, ok := known[c]; !ok {
			unknown = append(unknown, c)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return &UnknownCodesError{Codes: unknown}
	}

	now := time.Now().UTC()
	writes := make([]mongo.WriteModel, 0, len(rows))
	for _, r := range rows {
		writes = append(writes, mongo.NewUpdateOneModel().
			SetFilter(bson.M{"brand_id": brandID, "code": r.Code}).
			SetUpdate(bson.M{"$set": bson.M{
				"can_apply_from": r.CanApplyFrom,
				"can_apply_to":   r.CanApplyTo,
				"updated_at":     now,
			}}).
			SetUpsert(true))
	}
	_, err = s.access.BulkWrite(ctx, writes, options.BulkWrite().SetOrdered(false))
	return err
}

// Allowed returns active countries the brand allows on side ("from" or
// "to"), sorted by name.
func (s *Store) Allowed(ctx context.Context, brandID primitive.ObjectID, side string) ([]models.Country, error) {
	field := "can_apply_to"
	if side == models.SideFrom {
		field = "can_apply_from"
	}
	codes, err := s.access.Distinct(ctx, "code", bson.M{"brand_id": brandID, field: true})
	if err != nil {
		return nil, err
	}
	if len(codes) == 0 {
		return []models.Country{}, nil
	}
	cur, err := s.countries.Find(ctx,
		bson.M{"code": bson.M{"$in": codes}, "is_active": true},
		options.Find().SetSort(bson.D{{Key: "name_ci", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	out := []models.Country{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// IsAllowed reports whether code is active and open on side for the brand.
func (s *Store) IsAllowed(ctx context.Context, brandID primitive.ObjectID, code, side string) (bool, error) {
	field := "can_apply_to"
	if side == models.SideFrom {
		field = "can_apply_from"
	}
	n, err := s.access.CountDocuments(ctx, bson.M{"brand_id": brandID, "code": code, field: true})
	if err != nil || n == 0 {
		return false, err
	}
	n, err = s.countries.CountDocuments(ctx, bson.M{"code": code, "is_active": true})
	return n > 0, err
}
