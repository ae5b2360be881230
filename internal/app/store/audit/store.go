// internal/app/store/audit/store.go
package audit

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Event categories
const (
	CategoryAuth  = "auth"
	CategoryAdmin = "admin"
	CategoryCase  = "case"
)

// Auth event types
const (
	EventLoginSuccess             = "login_success"
	EventLoginFailedUserNotFound  = "login_failed_user_not_found"
	EventLoginFailedWrongPassword = "login_failed_wrong_password"
	EventLoginFailedUserDisabled  = "login_failed_user_disabled"
	EventLoginFailedWrongRole     = "login_failed_wrong_role"
	EventLoginLockedOut           = "login_locked_out"
	EventLogout                   = "logout"
	EventRegistered               = "registered"
	EventSSOLogin                 = "sso_login"
	EventSSOFailed                = "sso_failed"
	EventPasswordChanged          = "password_changed"
)

// Admin event types
const (
	EventUserCreated      = "user_created"
	EventUserUpdated      = "user_updated"
	EventUserDeleted      = "user_deleted"
	EventBrandCreated     = "brand_created"
	EventBrandUpdated     = "brand_updated"
	EventContentUpdated   = "content_updated"
	EventCatalogUpdated   = "catalog_updated"
	EventWeightsUpdated   = "weights_updated"
	EventCountryAccessSet = "country_access_updated"
	EventLOAUploaded      = "loa_uploaded"
	EventLOADeleted       = "loa_deleted"
)

// Case event types
const (
	EventCaseSubmitted     = "case_submitted"
	EventCaseStatusChanged = "case_status_changed"
	EventCaseAssigned      = "case_assigned"
	EventCaseArchived      = "case_archived"
	EventCaseDeleted       = "case_deleted"
	EventCaseRestored      = "case_restored"
	EventCasePayment       = "case_payment"
)

// Event is one audit record.
type Event struct {
	ID        primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	BrandID   *primitive.ObjectID `bson:"brand_id,omitempty" json:"brand_id,omitempty"`
	CreatedAt time.Time           `bson:"created_at" json:"created_at"`

	Category  string `bson:"category" json:"category"`
	EventType string `bson:"event_type" json:"event_type"`

	UserID  *primitive.ObjectID `bson:"user_id,omitempty" json:"user_id,omitempty"`   // affected user
	ActorID *primitive.ObjectID `bson:"actor_id,omitempty" json:"actor_id,omitempty"` // who acted, for admin and case events

	IP        string `bson:"ip" json:"ip"`
	UserAgent string `bson:"user_agent,omitempty" json:"user_agent,omitempty"`

	Success       bool   `bson:"success" json:"success"`
	FailureReason string `bson:"failure_reason,omitempty" json:"failure_reason,omitempty"`

	Details map[string]string `bson:"details,omitempty" json:"details,omitempty"`
}

// QueryFilter narrows Query and Count. A nil BrandID matches every brand.
type QueryFilter struct {
	BrandID   *primitive.ObjectID
	UserID    *primitive.ObjectID
	Category  string
	EventType string
	StartTime *time.Time
	EndTime   *time.Time
	Limit     int64
	Offset    int64
}

// Store manages audit event records.
type Store struct {
	c *mongo.Collection
}

// New creates a new audit Store.
func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("audit_logs")}
}

// Log records an audit event.
func (s *Store) Log(ctx context.Context, event Event) error {
	if event.ID.IsZero() {
		event.ID = primitive.NewObjectID()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	_, err := s.c.InsertOne(ctx, event)
	return err
}

func (f QueryFilter) bson() bson.M {
	q := bson.M{}
	if f.BrandID != nil {
		q["brand_id"] = *f.BrandID
	}
	if f.UserID != nil {
		q["$or"] = bson.A{bson.M{"user_id": *f.UserID}, bson.M{"actor_id": *f.UserID}}
	}
	if f.Category != "" {
		q["category"] = f.Category
	}
	if f.EventType != "" {
		q["event_type"] = f.EventType
	}
	if f.StartTime != nil || f.EndTime != nil {
		t := bson.M{}
		if f.StartTime != nil {
			t["$gte"] = *f.StartTime
		}
		if f.EndTime != nil {
			t["$lte"] = *f.EndTime
		}
		q["created_at"] = t
	}
	return q
}

// Query returns matching events, newest first. UserID matches either the
// affected user or the actor.
func (s *Store) Query(ctx context.Context, filter QueryFilter) ([]Event, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}).
		SetLimit(limit).
		SetSkip(filter.Offset)

	cur, err := s.c.Find(ctx, filter.bson(), opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	events := []Event{}
	if err := cur.All(ctx, &events); err != nil {
		return nil, err
	}
	return events, nil
}

// Count returns the number of events matching the filter.
func (s *Store) Count(ctx context.Context, filter QueryFilter) (int64, error) {
	return s.c.CountDocuments(ctx, filter.bson())
}
