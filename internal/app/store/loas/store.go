// internal/app/store/loas/store.go
package loastore

import (
	"context"
	"errors"
	"time"

	"github.com/dalemusser/visadesk/internal/domain/models"
	"github.com/dalemusser/waffle/pantry/text"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ErrNotFound is returned when the LOA is missing or in another brand.
var ErrNotFound = errors.New("LOA not found")

// Store keeps LOA records. The files themselves live in object storage;
// callers put and delete objects around these calls.
type Store struct {
	c *mongo.Collection
}

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("loas")}
}

// List returns the brand's LOAs, newest first. A non-nil caseID limits
// the list to that case.
func (s *Store) List(ctx context.Context, brandID primitive.ObjectID, caseID *primitive.ObjectID) ([]models.LOA, error) {
	filter := bson.M{"brand_id": brandID}
	if caseID != nil {
		filter["case_id"] = *caseID
	}
	cur, err := s.c.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	out := []models.LOA{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Get loads one LOA of the brand.
func (s *Store) Get(ctx context.Context, brandID, id primitive.ObjectID) (models.LOA, error) {
	var l models.LOA
	err := s.c.FindOne(ctx, bson.M{"_id": id, "brand_id": brandID}).Decode(&l)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.LOA{}, ErrNotFound
	}
	return l, err
}

// Create inserts a record for an object that is already stored.
func (s *Store) Create(ctx context.Context, l models.LOA) (models.LOA, error) {
	now := time.Now().UTC()
	l.ID = primitive.NewObjectID()
	l.NameCI = text.Fold(l.Name)
	l.CreatedAt = now
	l.UpdatedAt = now
	if _, err := s.c.InsertOne(ctx, l); err != nil {
		return models.LOA{}, err
	}
	return l, nil
}

// MetaUpdate holds the editable metadata of an LOA.
type MetaUpdate struct {
	Name        *string
	Description *string
	CaseID      **primitive.ObjectID // set to a nil pointer to detach
}

func (s *Store) update(ctx context.Context, brandID, id primitive.ObjectID, upd bson.M) (models.LOA, error) {
	var l models.LOA
	err := s.c.FindOneAndUpdate(ctx, bson.M{"_id": id, "brand_id": brandID}, upd,
		options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&l)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.LOA{}, ErrNotFound
	}
	return l, err
}

// UpdateMeta changes the name, description or case link.
func (s *Store) UpdateMeta(ctx context.Context, brandID, id primitive.ObjectID, upd MetaUpdate) (models.LOA, error) {
	set := bson.M{"updated_at": time.Now().UTC()}
	doc := bson.M{"$set": set}
	if upd.Name != nil {
		set["name"] = *upd.Name
		set["name_ci"] = text.Fold(*upd.Name)
	}
	if upd.Description != nil {
		set["description"] = *upd.Description
	}
	if upd.CaseID != nil {
		if *upd.CaseID == nil {
			doc["$unset"] = bson.M{"case_id": ""}
		} else {
			set["case_id"] = **upd.CaseID
		}
	}
	return s.update(ctx, brandID, id, doc)
}

// FileUpdate describes a newly stored object replacing the old one.
type FileUpdate struct {
	StoragePath string
	URL         string
	ContentType string
	Size        int64
	UploadedBy  primitive.ObjectID
}

// ReplaceFile points the record at a new object and returns the record
// as it was before, so the caller can delete the old object.
func (s *Store) ReplaceFile(ctx context.Context, brandID, id primitive.ObjectID, f FileUpdate) (old models.LOA, err error) {
	err = s.c.FindOneAndUpdate(ctx,
		bson.M{"_id": id, "brand_id": brandID},
		bson.M{"$set": bson.M{
			"storage_path": f.StoragePath,
			"url":          f.URL,
			"content_type": f.ContentType,
			"size":         f.Size,
			"uploaded_by":  f.UploadedBy,
			"updated_at":   time.Now().UTC(),
		}},
		options.FindOneAndUpdate().SetReturnDocument(options.Before),
	).Decode(&old)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.LOA{}, ErrNotFound
	}
	return old, err
}

// Delete removes the record and returns it, so the caller can delete the
// object.
func (s *Store) Delete(ctx context.Context, brandID, id primitive.ObjectID) (models.LOA, error) {
	var l models.LOA
	err := s.c.FindOneAndDelete(ctx, bson.M{"_id": id, "brand_id": brandID}).Decode(&l)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.LOA{}, ErrNotFound
	}
	return l, err
}
