// internal/app/store/catalog/types.go
package catalogstore

import (
	"context"
	"time"

	"github.com/dalemusser/visadesk/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ListTypes returns the brand's service types by sort order.
func (s *Store) ListTypes(ctx context.Context, brandID primitive.ObjectID, activeOnly bool) ([]models.ServiceType, error) {
	return list[models.ServiceType](ctx, s.types, brandID, activeOnly)
}

// GetType loads one service type of the brand.
func (s *Store) GetType(ctx context.Context, brandID, id primitive.ObjectID) (models.ServiceType, error) {
	return get[models.ServiceType](ctx, s.types, brandID, id)
}

// TypesByID loads the brand's service types among ids.
func (s *Store) TypesByID(ctx context.Context, brandID primitive.ObjectID, ids []primitive.ObjectID) (map[primitive.ObjectID]models.ServiceType, error) {
	return existing(ctx, s.types, brandID, ids, func(t models.ServiceType) primitive.ObjectID { return t.ID })
}

// CreateType inserts a service type.
func (s *Store) CreateType(ctx context.Context, t models.ServiceType) (models.ServiceType, error) {
	now := time.Now().UTC()
	t.ID = primitive.NewObjectID()
	if t.RequiredDocuments == nil {
		t.RequiredDocuments = []string{}
	}
	t.CreatedAt = now
	t.UpdatedAt = now
	if err := insert(ctx, s.types, t); err != nil {
		return models.ServiceType{}, err
	}
	return t, nil
}

// TypeUpdate holds the optional fields of a service type update.
type TypeUpdate struct {
	Name              *string
	Slug              *string
	Kind              *string
	Description       *string
	RequiredDocuments *[]string
	IsActive          *bool
	SortOrder         *int
}

// UpdateType applies upd and returns the updated service type.
func (s *Store) UpdateType(ctx context.Context, brandID, id primitive.ObjectID, upd TypeUpdate) (models.ServiceType, error) {
	set := bson.M{}
	if upd.Name != nil {
		set["name"] = *upd.Name
	}
	if upd.Slug != nil {
		set["slug"] = *upd.Slug
	}
	if upd.Kind != nil {
		set["kind"] = *upd.Kind
	}
	if upd.Description != nil {
		set["description"] = *upd.Description
	}
	if upd.RequiredDocuments != nil {
		set["required_documents"] = *upd.RequiredDocuments
	}
	if upd.IsActive != nil {
		set["is_active"] = *upd.IsActive
	}
	if upd.SortOrder != nil {
		set["sort_order"] = *upd.SortOrder
	}
	return update[models.ServiceType](ctx, s.types, brandID, id, set)
}

// DeleteType deletes a service type, or deactivates it when offered.
func (s *Store) DeleteType(ctx context.Context, brandID, id primitive.ObjectID) (DeleteResult, error) {
	return s.remove(ctx, s.types, "service_type_id", brandID, id)
}

// CountTypes returns how many service types the brand has.
func (s *Store) CountTypes(ctx context.Context, brandID primitive.ObjectID) (int64, error) {
	return count(ctx, s.types, brandID)
}
