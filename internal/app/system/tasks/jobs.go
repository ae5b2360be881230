// internal/app/system/tasks/jobs.go
package tasks

import (
	"context"
	"time"

	"github.com/dalemusser/visadesk/internal/app/store/ratelimit"
	"github.com/dalemusser/visadesk/internal/app/system/weights"
	"github.com/dalemusser/visadesk/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// Job names
const (
	JobRateLimitCleanup    = "rate-limit-cleanup"
	JobStaleDraftCleanup   = "stale-draft-cleanup"
	JobNotificationCleanup = "notification-cleanup"
	JobCounterAudit        = "counter-audit"
)

// RateLimitCleanupJob removes login counters whose window and lockout
// have both passed. The TTL index catches anything this misses.
func RateLimitCleanupJob(store *ratelimit.Store, logger *zap.Logger) Job {
	return Job{
		Name:       JobRateLimitCleanup,
		Interval:   1 * time.Hour,
		StartDelay: 1 * time.Minute,
		Timeout:    1 * time.Minute,
		Run: func(ctx context.Context) error {
			n, err := store.DeleteExpired(ctx)
			if err != nil {
				return err
			}
			if n > 0 {
				logger.Info("cleaned up expired login counters", zap.Int64("deleted", n))
			}
			return nil
		},
	}
}

// StaleDraftCleanupJob soft-deletes drafts nobody has touched within retention.
func StaleDraftCleanupJob(db *mongo.Database, logger *zap.Logger, retention time.Duration) Job {
	return Job{
		Name:       JobStaleDraftCleanup,
		Interval:   6 * time.Hour,
		StartDelay: 2 * time.Minute,
		Timeout:    5 * time.Minute,
		Run: func(ctx context.Context) error {
			now := time.Now().UTC()
			result, err := db.Collection("cases").UpdateMany(ctx,
				bson.M{
					"status":     models.CaseDraft,
					"is_deleted": false,
					"updated_at": bson.M{"$lt": now.Add(-retention)},
				},
				bson.M{"$set": bson.M{"is_deleted": true, "updated_at": now}},
			)
			if err != nil {
				return err
			}
			if result.ModifiedCount > 0 {
				logger.Info("soft-deleted stale drafts",
					zap.Int64("count", result.ModifiedCount),
					zap.Duration("retention", retention))
			}
			return nil
		},
	}
}

// NotificationCleanupJob deletes read notifications older than retention.
func NotificationCleanupJob(db *mongo.Database, logger *zap.Logger, retention time.Duration) Job {
	return Job{
		Name:       JobNotificationCleanup,
		Interval:   24 * time.Hour,
		StartDelay: 3 * time.Minute,
		Timeout:    5 * time.Minute,
		Run: func(ctx context.Context) error {
			result, err := db.Collection("notifications").DeleteMany(ctx, bson.M{
				"read_at": bson.M{"$ne": nil, "$lt": time.Now().UTC().Add(-retention)},
			})
			if err != nil {
				return err
			}
			if result.DeletedCount > 0 {
				logger.Info("cleaned up read notifications",
					zap.Int64("deleted", result.DeletedCount))
			}
			return nil
		},
	}
}

// CounterAuditJob logs brands whose processor weights no longer sum to
// 100, and weighted processors that are no longer active staff. Assign
// skips the latter, so their share silently moves to everyone else.
func CounterAuditJob(db *mongo.Database, logger *zap.Logger) Job {
	return Job{
		Name:       JobCounterAudit,
		Interval:   24 * time.Hour,
		StartDelay: 4 * time.Minute,
		Timeout:    2 * time.Minute,
		Run: func(ctx context.Context) error {
			if err := auditWeightTotals(ctx, db, logger); err != nil {
				return err
			}
			return auditIneligibleProcessors(ctx, db, logger)
		},
	}
}

func auditWeightTotals(ctx context.Context, db *mongo.Database, logger *zap.Logger) error {
	cur, err := db.Collection("processor_weights").Aggregate(ctx, mongo.Pipeline{
		{{Key: "$group", Value: bson.M{
			"_id":      "$brand_id",
			"total":    bson.M{"$sum": "$weight"},
			"entries":  bson.M{"$sum": 1},
			"assigned": bson.M{"$sum": "$assigned"},
		}}},
		{{Key: "$match", Value: bson.M{"total": bson.M{"$ne": weights.Total}}}},
	})
	if err != nil {
		return err
	}
	defer cur.Close(ctx)

	for cur.Next(ctx) {
		var row struct {
			BrandID  primitive.ObjectID `bson:"_id"`
			Total    int                `bson:"total"`
			Entries  int                `bson:"entries"`
			Assigned int64              `bson:"assigned"`
		}
		if err := cur.Decode(&row); err != nil {
			return err
		}
		logger.Warn("processor weights do not sum to 100",
			zap.String("brand_id", row.BrandID.Hex()),
			zap.Int("total", row.Total),
			zap.Int("entries", row.Entries),
			zap.Int64("assigned", row.Assigned))
	}
	return cur.Err()
}

func auditIneligibleProcessors(ctx context.Context, db *mongo.Database, logger *zap.Logger) error {
	cur, err := db.Collection("processor_weights").Aggregate(ctx, mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"weight": bson.M{"$gt": 0}}}},
		{{Key: "$lookup", Value: bson.M{
			"from":         "users",
			"localField":   "processor_id",
			"foreignField": "_id",
			"as":           "user",
		}}},
		{{Key: "$match", Value: bson.M{"user": bson.M{"$not": bson.M{"$elemMatch": bson.M{
			"status": models.StatusActive,
			"role":   bson.M{"$in": models.StaffRoles()},
		}}}}}},
		{{Key: "$project", Value: bson.M{"brand_id": 1, "processor_id": 1, "weight": 1}}},
	})
	if err != nil {
		return err
	}
	defer cur.Close(ctx)
	for cur.Next(ctx) {
		var row struct {
			BrandID     primitive.ObjectID `bson:"brand_id"`
			ProcessorID primitive.ObjectID `bson:"processor_id"`
			Weight      int                `bson:"weight"`
		}
		if err := cur.Decode(&row); err != nil {
			return err
		}
		logger.Warn("weighted processor is not an active staff member",
			zap.String("brand_id", row.BrandID.Hex()),
			zap.String("processor_id", row.ProcessorID.Hex()),
			zap.Int("weight", row.Weight))
	}
	return cur.Err()
}
