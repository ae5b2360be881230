// internal/app/store/ratelimit/store.go
package ratelimit

import (
	"context"
	"errors"
	"time"

	"github.com/dalemusser/visadesk/internal/app/system/normalize"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Attempt tracks failed sign-ins for one email within one brand.
type Attempt struct {
	ID           primitive.ObjectID `bson:"_id,omitempty"`
	Key          string             `bson:"key"`
	AttemptCount int                `bson:"attempt_count"`
	WindowStart  time.Time          `bson:"window_start"`
	LockedUntil  *time.Time         `bson:"locked_until"`
	LastAttempt  time.Time          `bson:"last_attempt"` // TTL index
	CreatedAt    time.Time          `bson:"created_at"`
	UpdatedAt    time.Time          `bson:"updated_at"`
}

// Status is the outcome of a check.
type Status struct {
	Allowed     bool
	Remaining   int
	LockedUntil *time.Time
}

// Store counts failed logins with a window and a lockout.
type Store struct {
	c           *mongo.Collection
	maxAttempts int
	window      time.Duration
	lockout     time.Duration
	now         func() time.Time
}

// New creates a rate limit Store.
func New(db *mongo.Database, maxAttempts int, window, lockout time.Duration) *Store {
	return &Store{
		c:           db.Collection("rate_limits"),
		maxAttempts: maxAttempts,
		window:      window,
		lockout:     lockout,
		now:         time.Now,
	}
}

// Key scopes an email to a brand. Superadmin sign-ins use a nil brand.
func Key(brandID *primitive.ObjectID, email string) string {
	scope := "global"
	if brandID != nil {
		scope = brandID.Hex()
	}
	return scope + ":" + normalize.Email(email)
}

func (s *Store) find(ctx context.Context, key string) (*Attempt, error) {
	var a Attempt
	err := s.c.FindOne(ctx, bson.M{"key": key}).Decode(&a)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// Check reports whether another attempt is allowed. Lookup errors fail open.
func (s *Store) Check(ctx context.Context, key string) Status {
	full := Status{Allowed: true, Remaining: s.maxAttempts}
	a, err := s.find(ctx, key)
	if err != nil || a == nil {
		return full
	}
	now := s.now()
	if a.LockedUntil != nil && now.Before(*a.LockedUntil) {
		return Status{Allowed: false, Remaining: -1, LockedUntil: a.LockedUntil}
	}
	if now.After(a.WindowStart.Add(s.window)) {
		return full
	}
	remaining := s.maxAttempts - a.AttemptCount
	if remaining <= 0 {
		return Status{Allowed: false, Remaining: 0}
	}
	return Status{Allowed: true, Remaining: remaining}
}

// RecordFailure counts a failed attempt and returns the resulting status.
func (s *Store) RecordFailure(ctx context.Context, key string) (Status, error) {
	now := s.now()
	a, err := s.find(ctx, key)
	if err != nil {
		return Status{Allowed: true, Remaining: s.maxAttempts}, err
	}

	if a == nil || now.After(a.WindowStart.Add(s.window)) {
		a = &Attempt{Key: key, WindowStart: now, CreatedAt: now}
	}
	a.AttemptCount++
	a.LastAttempt = now
	a.UpdatedAt = now
	a.LockedUntil = nil

	st := Status{Allowed: true, Remaining: s.maxAttempts - a.AttemptCount}
	if a.AttemptCount >= s.maxAttempts {
		until := now.Add(s.lockout)
		a.LockedUntil = &until
		st = Status{Allowed: false, Remaining: -1, LockedUntil: &until}
	}

	_, err = s.c.UpdateOne(ctx,
		bson.M{"key": key},
		bson.M{
			"$set": bson.M{
				"attempt_count": a.AttemptCount,
				"window_start":  a.WindowStart,
				"locked_until":  a.LockedUntil,
				"last_attempt":  a.LastAttempt,
				"updated_at":    a.UpdatedAt,
			},
			"$setOnInsert": bson.M{"created_at": now},
		},
		options.Update().SetUpsert(true),
	)
	return st, err
}

// Clear removes the counter after a successful sign-in.
func (s *Store) Clear(ctx context.Context, key string) error {
	_, err := s.c.DeleteOne(ctx, bson.M{"key": key})
	return err
}

// Get returns the attempt record for key, or nil when there is none.
func (s *Store) Get(ctx context.Context, key string) (*Attempt, error) {
	return s.find(ctx, key)
}

// DeleteExpired removes records whose window and lockout have both passed.
func (s *Store) DeleteExpired(ctx context.Context) (int64, error) {
	now := s.now()
	res, err := s.c.DeleteMany(ctx, bson.M{
		"window_start": bson.M{"$lt": now.Add(-s.window)},
		"$or": []bson.M{
			{"locked_until": nil},
			{"locked_until": bson.M{"$lt": now}},
		},
	})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}
