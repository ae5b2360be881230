// internal/app/store/brands/store.go
package brandstore

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/dalemusser/visadesk/internal/app/system/normalize"
	"github.com/dalemusser/visadesk/internal/app/system/tenant"
	"github.com/dalemusser/visadesk/internal/domain/models"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"github.com/dalemusser/waffle/pantry/text"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var (
	// ErrNotFound is tenant.ErrNotFound so the middleware can match it.
	ErrNotFound = tenant.ErrNotFound
	// ErrDuplicate is returned when the slug or a domain is taken.
	ErrDuplicate = errors.New("a brand with this slug or domain already exists")
)

type Store struct {
	c *mongo.Collection
}

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("brands")}
}

func (s *Store) one(ctx context.Context, filter bson.M, opts ...*options.FindOneOptions) (models.Brand, error) {
	var b models.Brand
	err := s.c.FindOne(ctx, filter, opts...).Decode(&b)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.Brand{}, ErrNotFound
	}
	return b, err
}

// GetByID loads a brand by ObjectID.
func (s *Store) GetByID(ctx context.Context, id primitive.ObjectID) (models.Brand, error) {
	return s.one(ctx, bson.M{"_id": id})
}

// GetBySlug implements tenant.Store.
func (s *Store) GetBySlug(ctx context.Context, slug string) (models.Brand, error) {
	return s.one(ctx, bson.M{"slug": normalize.Slug(slug)})
}

// GetByDomain implements tenant.Store. host is matched lowercased.
func (s *Store) GetByDomain(ctx context.Context, host string) (models.Brand, error) {
	return s.one(ctx, bson.M{"domains": strings.ToLower(strings.TrimSpace(host))})
}

// GetFirst implements tenant.Store: the oldest brand.
func (s *Store) GetFirst(ctx context.Context) (models.Brand, error) {
	return s.one(ctx, bson.M{}, options.FindOne().SetSort(bson.D{{Key: "_id", Value: 1}}))
}

// List returns every brand sorted by name.
func (s *Store) List(ctx context.Context) ([]models.Brand, error) {
	cur, err := s.c.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "name_ci", Value: 1}, {Key: "_id", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	out := []models.Brand{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Count returns the number of brands.
func (s *Store) Count(ctx context.Context) (int64, error) {
	return s.c.CountDocuments(ctx, bson.M{})
}

// NormalizeDomains lowercases, trims and de-duplicates domains.
func NormalizeDomains(in []string) []string {
	out := make([]string, 0, len(in))
	seen := map[string]bool{}
	for _, d := range in {
		d = strings.TrimSuffix(strings.ToLower(strings.TrimSpace(d)), ".")
		if d == "" || seen[d] {
			continue
		}
		seen[d] = true
		out = append(out, d)
	}
	return out
}

// Create inserts a brand after normalizing its fields.
func (s *Store) Create(ctx context.Context, b models.Brand) (models.Brand, error) {
	now := time.Now().UTC()
	b.ID = primitive.NewObjectID()
	b.Slug = normalize.Slug(b.Slug)
	b.Name = normalize.Name(b.Name)
	b.NameCI = text.Fold(b.Name)
	b.Domains = NormalizeDomains(b.Domains)
	b.CasePrefix = strings.ToUpper(strings.TrimSpace(b.CasePrefix))
	b.SupportEmail = normalize.Email(b.SupportEmail)
	b.Currency = normalize.Currency(b.Currency)
	if b.Currency == "" {
		b.Currency = models.DefaultCurrency
	}
	if b.Status == "" {
		b.Status = models.StatusActive
	}
	b.CreatedAt = now
	b.UpdatedAt = now

	if _, err := s.c.InsertOne(ctx, b); err != nil {
		if wafflemongo.IsDup(err) {
			return models.Brand{}, ErrDuplicate
		}
		return models.Brand{}, err
	}
	return b, nil
}

// Update holds the optional fields of a brand update. nil means unchanged.
type Update struct {
	Name         *string
	Domains      *[]string
	Status       *string
	CasePrefix   *string
	SupportEmail *string
	Currency     *string
}

// Update applies upd and returns the updated brand.
func (s *Store) Update(ctx context.Context, id primitive.ObjectID, upd Update) (models.Brand, error) {
	set := bson.M{"updated_at": time.Now().UTC()}
	if upd.Name != nil {
		name := normalize.Name(*upd.Name)
		set["name"] = name
		set["name_ci"] = text.Fold(name)
	}
	if upd.Domains != nil {
		set["domains"] = NormalizeDomains(*upd.Domains)
	}
	if upd.Status != nil {
		set["status"] = normalize.Status(*upd.Status)
	}
	if upd.CasePrefix != nil {
		set["case_prefix"] = strings.ToUpper(strings.TrimSpace(*upd.CasePrefix))
	}
	if upd.SupportEmail != nil {
		set["support_email"] = normalize.Email(*upd.SupportEmail)
	}
	if upd.Currency != nil {
		set["currency"] = normalize.Currency(*upd.Currency)
	}

	var b models.Brand
	err := s.c.FindOneAndUpdate(ctx, bson.M{"_id": id}, bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&b)
	switch {
	case errors.Is(err, mongo.ErrNoDocuments):
		return models.Brand{}, ErrNotFound
	case wafflemongo.IsDup(err):
		return models.Brand{}, ErrDuplicate
	case err != nil:
		return models.Brand{}, err
	}
	return b, nil
}
