// internal/app/store/catalog/levels.go
package catalogstore

import (
	"context"
	"time"

	"github.com/dalemusser/visadesk/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ListLevels returns the brand's service levels by sort order.
func (s *Store) ListLevels(ctx context.Context, brandID primitive.ObjectID, activeOnly bool) ([]models.ServiceLevel, error) {
	return list[models.ServiceLevel](ctx, s.levels, brandID, activeOnly)
}

// GetLevel loads one service level of the brand.
func (s *Store) GetLevel(ctx context.Context, brandID, id primitive.ObjectID) (models.ServiceLevel, error) {
	return get[models.ServiceLevel](ctx, s.levels, brandID, id)
}

// LevelsByID loads the brand's service levels among ids.
func (s *Store) LevelsByID(ctx context.Context, brandID primitive.ObjectID, ids []primitive.ObjectID) (map[primitive.ObjectID]models.ServiceLevel, error) {
	return existing(ctx, s.levels, brandID, ids, func(l models.ServiceLevel) primitive.ObjectID { return l.ID })
}

// CreateLevel inserts a service level.
func (s *Store) CreateLevel(ctx context.Context, l models.ServiceLevel) (models.ServiceLevel, error) {
	now := time.Now().UTC()
	l.ID = primitive.NewObjectID()
	l.CreatedAt = now
	l.UpdatedAt = now
	if err := insert(ctx, s.levels, l); err != nil {
		return models.ServiceLevel{}, err
	}
	return l, nil
}

// LevelUpdate holds the optional fields of a service level update.
type LevelUpdate struct {
	Name           *string
	Slug           *string
	ProcessingDays *int
	IsActive       *bool
	SortOrder      *int
}

// UpdateLevel applies upd and returns the updated service level.
func (s *Store) UpdateLevel(ctx context.Context, brandID, id primitive.ObjectID, upd LevelUpdate) (models.ServiceLevel, error) {
	set := bson.M{}
	if upd.Name != nil {
		set["name"] = *upd.Name
	}
	if upd.Slug != nil {
		set["slug"] = *upd.Slug
	}
	if upd.ProcessingDays != nil {
		set["processing_days"] = *upd.ProcessingDays
	}
	if upd.IsActive != nil {
		set["is_active"] = *upd.IsActive
	}
	if upd.SortOrder != nil {
		set["sort_order"] = *upd.SortOrder
	}
	return update[models.ServiceLevel](ctx, s.levels, brandID, id, set)
}

// DeleteLevel deletes a service level, or deactivates it when offered.
func (s *Store) DeleteLevel(ctx context.Context, brandID, id primitive.ObjectID) (DeleteResult, error) {
	return s.remove(ctx, s.levels, "service_level_id", brandID, id)
}

// CountLevels returns how many service levels the brand has.
func (s *Store) CountLevels(ctx context.Context, brandID primitive.ObjectID) (int64, error) {
	return count(ctx, s.levels, brandID)
}
