// internal/app/store/messages/store.go
package messagestore

import (
	"context"
	"time"

	"github.com/dalemusser/visadesk/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MaxPage caps one poll.
const MaxPage = 100

type Store struct {
	c *mongo.Collection
}

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("case_messages")}
}

// List returns a case's messages in ascending order. With after set only
// newer messages are returned, so clients can poll.
func (s *Store) List(ctx context.Context, brandID, caseID primitive.ObjectID, after *primitive.ObjectID) ([]models.Message, error) {
	filter := bson.M{"brand_id": brandID, "case_id": caseID}
	if after != nil {
		filter["_id"] = bson.M{"$gt": *after}
	}
	cur, err := s.c.Find(ctx, filter,
		options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}).SetLimit(MaxPage))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	out := []models.Message{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Create inserts m. Body must already be sanitized and length checked.
func (s *Store) Create(ctx context.Context, m models.Message) (models.Message, error) {
	m.ID = primitive.NewObjectID()
	m.CreatedAt = time.Now().UTC()
	if _, err := s.c.InsertOne(ctx, m); err != nil {
		return models.Message{}, err
	}
	return m, nil
}

// Unread counts, per case, messages from the other side newer than the
// reader's last-read time. Cases without unread messages are omitted.
func (s *Store) Unread(ctx context.Context, brandID primitive.ObjectID, cases []models.Case, side string) (map[primitive.ObjectID]int64, error) {
	out := map[primitive.ObjectID]int64{}
	if len(cases) == 0 {
		return out, nil
	}
	or := make([]bson.M, 0, len(cases))
	for _, c := range cases {
		cond := bson.M{"case_id": c.ID}
		last := c.StaffLastReadAt
		if side == models.SideClient {
			last = c.ClientLastReadAt
		}
		if last != nil {
			cond["created_at"] = bson.M{"$gt": *last}
		}
		or = append(or, cond)
	}
	cur, err := s.c.Aggregate(ctx, mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"brand_id": brandID, "sender_role": bson.M{"$ne": side}, "$or": or}}},
		{{Key: "$group", Value: bson.M{"_id": "$case_id", "n": bson.M{"$sum": 1}}}},
	})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	for cur.Next(ctx) {
		var row struct {
			ID primitive.ObjectID `bson:"_id"`
			N  int64              `bson:"n"`
		}
		if err := cur.Decode(&row); err != nil {
			return nil, err
		}
		out[row.ID] = row.N
	}
	return out, cur.Err()
}
