// internal/app/store/users/userstore.go
package userstore

import (
	"context"
	"errors"
	"time"

	"github.com/dalemusser/visadesk/internal/app/system/normalize"
	"github.com/dalemusser/visadesk/internal/domain/models"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"github.com/dalemusser/waffle/pantry/text"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var (
	// ErrNotFound is returned when no user matches.
	ErrNotFound = errors.New("user not found")
	// ErrDuplicateEmail is returned when the email is already used in the brand.
	ErrDuplicateEmail = errors.New("a user with this email already exists")
	errBadRole        = errors.New("invalid role")
	errBadStatus      = errors.New(`status must be "active"|"disabled"`)
)

type Store struct {
	c *mongo.Collection
}

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("users")}
}

// brandFilter matches users of a brand; nil matches superadmins, who
// have no brand_id.
func brandFilter(brandID *primitive.ObjectID) any {
	if brandID == nil {
		return nil
	}
	return *brandID
}

func (s *Store) one(ctx context.Context, filter bson.M) (*models.User, error) {
	var u models.User
	if err := s.c.FindOne(ctx, filter).Decode(&u); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

// GetByID loads a user by ObjectID.
func (s *Store) GetByID(ctx context.Context, id primitive.ObjectID) (*models.User, error) {
	return s.one(ctx, bson.M{"_id": id})
}

// GetInBrand loads a user that belongs to brandID.
func (s *Store) GetInBrand(ctx context.Context, brandID, id primitive.ObjectID) (*models.User, error) {
	return s.one(ctx, bson.M{"_id": id, "brand_id": brandID})
}

// GetByEmail looks up a user by folded email within a brand (nil brand
// for superadmins).
func (s *Store) GetByEmail(ctx context.Context, brandID *primitive.ObjectID, email string) (*models.User, error) {
	return s.one(ctx, bson.M{
		"brand_id": brandFilter(brandID),
		"email_ci": text.Fold(normalize.Email(email)),
	})
}

// GetSuperAdminByEmail looks up a superadmin by email.
func (s *Store) GetSuperAdminByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.one(ctx, bson.M{
		"email_ci": text.Fold(normalize.Email(email)),
		"role":     models.RoleSuperAdmin,
	})
}

// GetBySSO looks up a brand user by provider subject.
func (s *Store) GetBySSO(ctx context.Context, brandID primitive.ObjectID, provider, subject string) (*models.User, error) {
	return s.one(ctx, bson.M{
		"brand_id":     brandID,
		"sso_provider": provider,
		"sso_subject":  subject,
	})
}

// GetByIDs loads multiple users by their ObjectIDs.
func (s *Store) GetByIDs(ctx context.Context, ids []primitive.ObjectID) ([]models.User, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	cur, err := s.c.Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var users []models.User
	if err := cur.All(ctx, &users); err != nil {
		return nil, err
	}
	return users, nil
}

// Names maps user IDs to full names.
func (s *Store) Names(ctx context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]string, error) {
	users, err := s.GetByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := make(map[primitive.ObjectID]string, len(users))
	for _, u := range users {
		out[u.ID] = u.FullName
	}
	return out, nil
}

// Create inserts a new user after normalizing & validating fields.
func (s *Store) Create(ctx context.Context, u models.User) (models.User, error) {
	u.ID = primitive.NewObjectID()
	u.FullName = normalize.Name(u.FullName)
	u.FullNameCI = text.Fold(u.FullName)
	u.Email = normalize.Email(u.Email)
	u.EmailCI = text.Fold(u.Email)
	u.Phone = normalize.Phone(u.Phone)
	u.Role = normalize.Role(u.Role)

	if u.Status == "" {
		u.Status = models.StatusActive
	}
	if u.AuthMethod == "" {
		u.AuthMethod = models.AuthPassword
	}
	if !models.IsValidRole(u.Role) {
		return models.User{}, errBadRole
	}
	if !models.IsValidStatus(u.Status) {
		return models.User{}, errBadStatus
	}

	now := time.Now().UTC()
	u.CreatedAt = now
	u.UpdatedAt = now

	if _, err := s.c.InsertOne(ctx, u); err != nil {
		if wafflemongo.IsDup(err) {
			return models.User{}, ErrDuplicateEmail
		}
		return models.User{}, err
	}
	return u, nil
}

// UpdateInput holds the optional fields for updating a user.
// All fields are pointers - nil means "don't update this field".
type UpdateInput struct {
	FullName     *string
	Phone        *string
	Role         *string
	Status       *string
	PasswordHash *string
}

// Update applies input and returns the updated user.
func (s *Store) Update(ctx context.Context, id primitive.ObjectID, input UpdateInput) (*models.User, error) {
	set := bson.M{"updated_at": time.Now().UTC()}
	if input.FullName != nil {
		name := normalize.Name(*input.FullName)
		set["full_name"] = name
		set["full_name_ci"] = text.Fold(name)
	}
	if input.Phone != nil {
		set["phone"] = normalize.Phone(*input.Phone)
	}
	if input.Role != nil {
		role := normalize.Role(*input.Role)
		if !models.IsValidRole(role) {
			return nil, errBadRole
		}
		set["role"] = role
	}
	if input.Status != nil {
		st := normalize.Status(*input.Status)
		if !models.IsValidStatus(st) {
			return nil, errBadStatus
		}
		set["status"] = st
	}
	if input.PasswordHash != nil {
		set["password_hash"] = *input.PasswordHash
	}

	var u models.User
	err := s.c.FindOneAndUpdate(ctx, bson.M{"_id": id}, bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&u)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// UpdatePassword replaces a user's password hash.
func (s *Store) UpdatePassword(ctx context.Context, id primitive.ObjectID, passwordHash string) error {
	_, err := s.Update(ctx, id, UpdateInput{PasswordHash: &passwordHash})
	return err
}

// LinkSSO records the provider subject on an existing account.
func (s *Store) LinkSSO(ctx context.Context, id primitive.ObjectID, provider, subject string) error {
	_, err := s.c.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{
		"sso_provider": provider,
		"sso_subject":  subject,
		"updated_at":   time.Now().UTC(),
	}})
	return err
}

// TouchLogin sets last_login_at.
func (s *Store) TouchLogin(ctx context.Context, id primitive.ObjectID) error {
	_, err := s.c.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{"last_login_at": time.Now().UTC()}})
	return err
}

// Delete deletes a user by ID.
// Returns the number of documents deleted (0 or 1).
func (s *Store) Delete(ctx context.Context, id primitive.ObjectID) (int64, error) {
	res, err := s.c.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

// StaffFilter narrows a staff listing. Empty fields are ignored; Q is a
// name or email prefix.
type StaffFilter struct {
	Role   string
	Status string
	Q      string
}

// ListStaff returns the staff of a brand sorted by name.
func (s *Store) ListStaff(ctx context.Context, brandID primitive.ObjectID, f StaffFilter) ([]models.User, error) {
	filter := bson.M{"brand_id": brandID, "role": bson.M{"$in": models.StaffRoles()}}
	if f.Role != "" {
		filter["role"] = f.Role
	}
	if f.Status != "" {
		filter["status"] = f.Status
	}
	if q := text.Fold(f.Q); q != "" {
		hi := q + "\uffff"
		filter["$or"] = []bson.M{
			{"full_name_ci": bson.M{"$gte": q, "$lt": hi}},
			{"email_ci": bson.M{"$gte": q, "$lt": hi}},
		}
	}
	opts := options.Find().SetSort(bson.D{{Key: "full_name_ci", Value: 1}, {Key: "_id", Value: 1}})
	cur, err := s.c.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	users := []models.User{}
	if err := cur.All(ctx, &users); err != nil {
		return nil, err
	}
	return users, nil
}

// CountActiveAdmins returns the number of active admins in a brand.
func (s *Store) CountActiveAdmins(ctx context.Context, brandID primitive.ObjectID) (int64, error) {
	return s.c.CountDocuments(ctx, bson.M{
		"brand_id": brandID,
		"role":     models.RoleAdmin,
		"status":   models.StatusActive,
	})
}

// ActiveProcessors returns which of ids are active processors of the
// brand, keyed by ID.
func (s *Store) ActiveProcessors(ctx context.Context, brandID primitive.ObjectID, ids []primitive.ObjectID) (map[primitive.ObjectID]models.User, error) {
	out := make(map[primitive.ObjectID]models.User, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	cur, err := s.c.Find(ctx, bson.M{
		"_id":      bson.M{"$in": ids},
		"brand_id": brandID,
		"role":     bson.M{"$in": models.StaffRoles()},
		"status":   models.StatusActive,
	})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	for cur.Next(ctx) {
		var u models.User
		if err := cur.Decode(&u); err != nil {
			return nil, err
		}
		out[u.ID] = u
	}
	return out, cur.Err()
}

// CountSuperAdmins returns the number of superadmins.
func (s *Store) CountSuperAdmins(ctx context.Context) (int64, error) {
	return s.c.CountDocuments(ctx, bson.M{"role": models.RoleSuperAdmin})
}
