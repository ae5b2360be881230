// internal/app/store/content/store.go
package contentstore

import (
	"context"
	"errors"
	"time"

	"github.com/dalemusser/visadesk/internal/app/system/cmsdoc"
	"github.com/dalemusser/visadesk/internal/domain/models"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var (
	ErrNotFound = errors.New("content page not found")
	// ErrVersionConflict is returned when the page changed since the
	// caller read it.
	ErrVersionConflict = errors.New("content was changed by someone else, reload and try again")
)

// setPathAttempts bounds retries of SetPath under concurrent edits.
const setPathAttempts = 3

type Store struct {
	c *mongo.Collection
}

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("content")}
}

// Get loads a page with Data normalized to plain maps and slices.
func (s *Store) Get(ctx context.Context, brandID primitive.ObjectID, page string) (models.Content, error) {
	var c models.Content
	err := s.c.FindOne(ctx, bson.M{"brand_id": brandID, "page": page}).Decode(&c)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.Content{}, ErrNotFound
	}
	if err != nil {
		return models.Content{}, err
	}
	c.Data = cmsdoc.NormalizeDoc(c.Data)
	return c, nil
}

// Summary is one row of the page list.
type Summary struct {
	Page      string    `bson:"page" json:"page"`
	Version   int64     `bson:"version" json:"version"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// ListPages returns the brand's pages by slug.
func (s *Store) ListPages(ctx context.Context, brandID primitive.ObjectID) ([]Summary, error) {
	cur, err := s.c.Find(ctx, bson.M{"brand_id": brandID},
		options.Find().
			SetProjection(bson.M{"page": 1, "version": 1, "updated_at": 1}).
			SetSort(bson.D{{Key: "page", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	out := []Summary{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// PutResult carries the page before and after a write, for orphan diffing.
type PutResult struct {
	Old     models.Content
	New     models.Content
	Created bool
}

// Put replaces a page's data. When expected is set it must equal the
// stored version (0 for a page that does not exist yet).
func (s *Store) Put(ctx context.Context, brandID primitive.ObjectID, page string, data map[string]any, expected *int64, by *primitive.ObjectID) (PutResult, error) {
	cur, err := s.Get(ctx, brandID, page)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return PutResult{}, err
	}
	if expected != nil && *expected != cur.Version {
		return PutResult{}, ErrVersionConflict
	}
	return s.write(ctx, brandID, page, cur, data, by)
}

// write stores data as the version after cur. It fails with
// ErrVersionConflict when another writer got there first.
func (s *Store) write(ctx context.Context, brandID primitive.ObjectID, page string, cur models.Content, data map[string]any, by *primitive.ObjectID) (PutResult, error) {
	now := time.Now().UTC()
	next := models.Content{
		BrandID:   brandID,
		Page:      page,
		Data:      cmsdoc.NormalizeDoc(data),
		Version:   cur.Version + 1,
		UpdatedBy: by,
		UpdatedAt: now,
	}

	if cur.ID.IsZero() {
		next.ID = primitive.NewObjectID()
		next.CreatedAt = now
		if _, err := s.c.InsertOne(ctx, next); err != nil {
			if wafflemongo.IsDup(err) {
				return PutResult{}, ErrVersionConflict
			}
			return PutResult{}, err
		}
		return PutResult{Old: cur, New: next, Created: true}, nil
	}

	next.ID = cur.ID
	next.CreatedAt = cur.CreatedAt
	res, err := s.c.UpdateOne(ctx,
		bson.M{"_id": cur.ID, "version": cur.Version},
		bson.M{"$set": bson.M{
			"data":       next.Data,
			"version":    next.Version,
			"updated_by": by,
			"updated_at": now,
		}})
	if err != nil {
		return PutResult{}, err
	}
	if res.MatchedCount == 0 {
		return PutResult{}, ErrVersionConflict
	}
	return PutResult{Old: cur, New: next}, nil
}

// SetPath writes value at a dotted path, creating intermediate maps and
// arrays, and bumps the version. It retries a few times if the page is
// edited concurrently. The returned result's Old holds the previous
// document.
func (s *Store) SetPath(ctx context.Context, brandID primitive.ObjectID, page, path string, value any, by *primitive.ObjectID) (PutResult, error) {
	if _, err := cmsdoc.ParsePath(path); err != nil {
		return PutResult{}, err
	}
	var lastErr error
	for i := 0; i < setPathAttempts; i++ {
		cur, err := s.Get(ctx, brandID, page)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return PutResult{}, err
		}
		data := cmsdoc.NormalizeDoc(cur.Data)
		if err := cmsdoc.Set(data, path, value); err != nil {
			return PutResult{}, err
		}
		res, err := s.write(ctx, brandID, page, cur, data, by)
		if !errors.Is(err, ErrVersionConflict) {
			return res, err
		}
		lastErr = err
	}
	return PutResult{}, lastErr
}
