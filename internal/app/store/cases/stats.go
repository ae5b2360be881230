// internal/app/store/cases/stats.go
package casestore

import (
	"context"
	"time"

	"github.com/dalemusser/visadesk/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Range bounds report queries on submitted_at. Zero bounds are open.
type Range struct {
	From time.Time
	To   time.Time
}

func (rg Range) match(brandID primitive.ObjectID) bson.M {
	m := bson.M{"brand_id": brandID, "is_deleted": false, "status": bson.M{"$ne": models.CaseDraft}}
	sub := bson.M{}
	if !rg.From.IsZero() {
		sub["$gte"] = rg.From
	}
	if !rg.To.IsZero() {
		sub["$lt"] = rg.To
	}
	if len(sub) > 0 {
		m["submitted_at"] = sub
	}
	return m
}

func aggregate[T any](ctx context.Context, c *mongo.Collection, pipeline mongo.Pipeline) ([]T, error) {
	cur, err := c.Aggregate(ctx, pipeline)
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

// StatusCount is the number of cases in one status.
type StatusCount struct {
	Status string `bson:"_id" json:"status"`
	Count  int64  `bson:"count" json:"count"`
}

// CountByStatus groups submitted cases by status.
func (s *Store) CountByStatus(ctx context.Context, brandID primitive.ObjectID, rg Range) ([]StatusCount, error) {
	return aggregate[StatusCount](ctx, s.c, mongo.Pipeline{
		{{Key: "$match", Value: rg.match(brandID)}},
		{{Key: "$group", Value: bson.M{"_id": "$status", "count": bson.M{"$sum": 1}}}},
		{{Key: "$sort", Value: bson.M{"_id": 1}}},
	})
}

// DayCount is the number of cases submitted on one UTC day.
type DayCount struct {
	Day   string `bson:"_id" json:"day"`
	Count int64  `bson:"count" json:"count"`
}

// SubmittedPerDay counts submissions per UTC day, oldest first.
func (s *Store) SubmittedPerDay(ctx context.Context, brandID primitive.ObjectID, rg Range) ([]DayCount, error) {
	return aggregate[DayCount](ctx, s.c, mongo.Pipeline{
		{{Key: "$match", Value: rg.match(brandID)}},
		{{Key: "$group", Value: bson.M{
			"_id":   bson.M{"$dateToString": bson.M{"format": "%Y-%m-%d", "date": "$submitted_at"}},
			"count": bson.M{"$sum": 1},
		}}},
		{{Key: "$sort", Value: bson.M{"_id": 1}}},
	})
}

// LevelRevenue is the paid total for one service level.
type LevelRevenue struct {
	LevelID primitive.ObjectID `bson:"_id" json:"service_level_id"`
	Total   int64              `bson:"total" json:"total"`
	Cases   int64              `bson:"cases" json:"cases"`
}

// RevenueByLevel sums quote totals of paid cases per service level.
func (s *Store) RevenueByLevel(ctx context.Context, brandID primitive.ObjectID, rg Range) ([]LevelRevenue, error) {
	match := rg.match(brandID)
	match["payment.status"] = models.PaymentPaid
	return aggregate[LevelRevenue](ctx, s.c, mongo.Pipeline{
		{{Key: "$match", Value: match}},
		{{Key: "$group", Value: bson.M{
			"_id":   "$service_level_id",
			"total": bson.M{"$sum": "$quote.total"},
			"cases": bson.M{"$sum": 1},
		}}},
		{{Key: "$sort", Value: bson.M{"total": -1}}},
	})
}

// PairCount is the number of cases for one route.
type PairCount struct {
	From  string `bson:"from" json:"from"`
	To    string `bson:"to" json:"to"`
	Count int64  `bson:"count" json:"count"`
}

// TopPairs returns the busiest routes.
func (s *Store) TopPairs(ctx context.Context, brandID primitive.ObjectID, rg Range, limit int64) ([]PairCount, error) {
	return aggregate[PairCount](ctx, s.c, mongo.Pipeline{
		{{Key: "$match", Value: rg.match(brandID)}},
		{{Key: "$group", Value: bson.M{
			"_id":   bson.M{"from": "$from_code", "to": "$to_code"},
			"count": bson.M{"$sum": 1},
		}}},
		{{Key: "$sort", Value: bson.D{{Key: "count", Value: -1}, {Key: "_id.from", Value: 1}, {Key: "_id.to", Value: 1}}}},
		{{Key: "$limit", Value: limit}},
		{{Key: "$project", Value: bson.M{"_id": 0, "from": "$_id.from", "to": "$_id.to", "count": 1}}},
	})
}

// Workload is the open case count of one processor.
type Workload struct {
	ProcessorID primitive.ObjectID `bson:"_id" json:"processor_id"`
	Open        int64              `bson:"open" json:"open"`
}

// OpenByProcessor counts open assigned cases per processor.
func (s *Store) OpenByProcessor(ctx context.Context, brandID primitive.ObjectID) ([]Workload, error) {
	return aggregate[Workload](ctx, s.c, mongo.Pipeline{
		{{Key: "$match", Value: bson.M{
			"brand_id":    brandID,
			"is_deleted":  false,
			"assigned_to": bson.M{"$ne": nil},
			"status":      bson.M{"$nin": append([]string{models.CaseDraft}, terminal...)},
		}}},
		{{Key: "$group", Value: bson.M{"_id": "$assigned_to", "open": bson.M{"$sum": 1}}}},
		{{Key: "$sort", Value: bson.M{"open": -1}}},
	})
}

// ExportFilter selects the rows of a CSV export.
type ExportFilter struct {
	Range
	Status string
}

// Each streams matching submitted cases, oldest first, to fn. It stops at
// the first error fn returns.
func (s *Store) Each(ctx context.Context, brandID primitive.ObjectID, f ExportFilter, fn func(models.Case) error) error {
	filter := f.match(brandID)
	if f.Status != "" {
		filter["status"] = f.Status
	}
	cur, err := s.c.Find(ctx, filter,
		options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}).SetBatchSize(200))
	if err != nil {
		return err
	}
	defer cur.Close(ctx)
	for cur.Next(ctx) {
		var c models.Case
		if err := cur.Decode(&c); err != nil {
			return err
		}
		if err := fn(c); err != nil {
			return err
		}
	}
	return cur.Err()
}
